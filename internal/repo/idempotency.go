// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the Idempotency
// model used to implement safe-retry semantics for newsletter publishing.
//
// A publish claims its (user_id, idempotency_key) pair by inserting a row
// with empty response columns. The primary key guarantees that exactly one
// concurrent claimant succeeds; the others observe ErrDuplicate and wait for
// the response to be recorded.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// ErrAlreadyCompleted is returned when a response is saved for a key whose
// response has already been recorded.
var ErrAlreadyCompleted = errors.New("idempotency record already completed")

// GetIdempotency returns a non-expired record (completed or in progress) or
// ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, userID, key string, now time.Time) (*domain.Idempotency, error) {
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ? AND expires_at > ?", userID, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// TryStartIdempotency inserts an in-progress row for (userID, key). A nil
// error means the caller owns the key and must later save a response or
// delete the row. ErrDuplicate means another request holds it. An expired
// row for the same pair is removed first so the key can be reused.
func TryStartIdempotency(ctx context.Context, db *gorm.DB, userID, key string, now time.Time, ttl time.Duration) error {
	if err := db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ? AND expires_at <= ?", userID, key, now).
		Delete(&domain.Idempotency{}).Error; err != nil {
		return err
	}
	rec := &domain.Idempotency{
		UserID:    userID,
		Key:       key,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// TakeOverStaleIdempotency transfers an in-progress claim created at or
// before staleBefore to the caller by resetting its created_at to now. It
// reports whether the caller now owns the key; the conditional update lets
// at most one caller take over a given stale claim.
func TakeOverStaleIdempotency(ctx context.Context, db *gorm.DB, userID, key string, now, staleBefore time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Idempotency{}).
		Where("user_id = ? AND idempotency_key = ? AND response_status_code IS NULL AND created_at <= ?", userID, key, staleBefore).
		Update("created_at", now)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SaveIdempotencyResponse records the response for an in-progress row. The
// first writer wins: a row that already holds a response is never
// overwritten and ErrAlreadyCompleted is returned. ErrNotFound is returned
// when no row exists.
func SaveIdempotencyResponse(ctx context.Context, db *gorm.DB, userID, key string, status int, headers domain.HeaderPairs, body []byte) error {
	if headers == nil {
		headers = domain.HeaderPairs{}
	}
	if body == nil {
		body = []byte{}
	}
	res := db.WithContext(ctx).
		Model(&domain.Idempotency{}).
		Where("user_id = ? AND idempotency_key = ? AND response_status_code IS NULL", userID, key).
		Updates(map[string]any{
			"response_status_code": status,
			"response_headers":     headers,
			"response_body":        body,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	var n int64
	if err := db.WithContext(ctx).
		Model(&domain.Idempotency{}).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrAlreadyCompleted
}

// DeleteIdempotency releases an in-progress claim. Completed rows are kept.
func DeleteIdempotency(ctx context.Context, db *gorm.DB, userID, key string) error {
	return db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ? AND response_status_code IS NULL", userID, key).
		Delete(&domain.Idempotency{}).Error
}

// PurgeExpiredIdempotency deletes every record whose expiry is at or before
// now and returns how many were removed.
func PurgeExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}
