// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for subscribers
// and their confirmation tokens.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a row is not found, functions return gorm.ErrRecordNotFound
//     (exported as ErrNotFound).
//   - A second subscription for the same address returns ErrDuplicate.
//   - On other DB errors the raw gorm error is propagated.
//
// Functions:
//
//   - InsertSubscriber(ctx, tx, ns, now) -> (id, error)
//     Inserts a pending_confirmation row with a fresh UUID.
//
//   - StoreToken(ctx, tx, subscriberID, token) -> error
//     Links a confirmation token to a subscriber.
//
//   - GetSubscriberIDFromToken(ctx, db, token) -> (id, error)
//     Resolves a token, or ErrNotFound when unknown.
//
//   - ConfirmSubscriber(ctx, tx, subscriberID) -> error
//     Moves the subscriber to confirmed. Confirming twice is a no-op.
//
//   - ListConfirmedSubscribers(ctx, db) -> []domain.ConfirmedSubscriber, error
//     Returns confirmed addresses ordered by subscription time.
//
// Usage:
//
//	err := db.Transaction(func(tx *gorm.DB) error {
//	    id, err := repo.InsertSubscriber(ctx, tx, ns, time.Now().UTC())
//	    if err != nil {
//	        return err
//	    }
//	    return repo.StoreToken(ctx, tx, id, token)
//	})
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// InsertSubscriber inserts a new subscriber in pending_confirmation state and
// returns its generated ID.
func InsertSubscriber(ctx context.Context, tx *gorm.DB, ns domain.NewSubscriber, now time.Time) (string, error) {
	s := &domain.Subscriber{
		ID:           uuid.NewString(),
		Email:        ns.Email.String(),
		Name:         ns.Name.String(),
		SubscribedAt: now.UTC(),
		Status:       domain.StatusPendingConfirmation,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		if isUniqueViolation(err) {
			return "", ErrDuplicate
		}
		return "", err
	}
	return s.ID, nil
}

// StoreToken persists a confirmation token for subscriberID.
func StoreToken(ctx context.Context, tx *gorm.DB, subscriberID, token string) error {
	err := tx.WithContext(ctx).Create(&domain.SubscriptionToken{
		Token:        token,
		SubscriberID: subscriberID,
	}).Error
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetSubscriberIDFromToken returns the subscriber a token belongs to, or
// ErrNotFound.
func GetSubscriberIDFromToken(ctx context.Context, db *gorm.DB, token string) (string, error) {
	var t domain.SubscriptionToken
	if err := db.WithContext(ctx).
		Select("subscriber_id").
		Where("token = ?", token).
		First(&t).Error; err != nil {
		return "", err
	}
	return t.SubscriberID, nil
}

// ConfirmSubscriber marks the subscriber as confirmed. It returns
// ErrNotFound if no such subscriber exists.
func ConfirmSubscriber(ctx context.Context, tx *gorm.DB, subscriberID string) error {
	res := tx.WithContext(ctx).
		Model(&domain.Subscriber{}).
		Where("id = ?", subscriberID).
		Update("status", domain.StatusConfirmed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSubscriber fetches a subscriber by ID.
func GetSubscriber(ctx context.Context, db *gorm.DB, id string) (*domain.Subscriber, error) {
	var s domain.Subscriber
	if err := db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListConfirmedSubscribers returns the email of every confirmed subscriber,
// oldest subscription first.
func ListConfirmedSubscribers(ctx context.Context, db *gorm.DB) ([]domain.ConfirmedSubscriber, error) {
	var out []domain.ConfirmedSubscriber
	err := db.WithContext(ctx).
		Model(&domain.Subscriber{}).
		Select("email").
		Where("status = ?", domain.StatusConfirmed).
		Order("subscribed_at ASC, id ASC").
		Scan(&out).Error
	return out, err
}
