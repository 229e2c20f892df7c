package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// GetStoredCredentials looks a user up by username. It returns ErrNotFound
// when the username is unknown.
func GetStoredCredentials(ctx context.Context, db *gorm.DB, username string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).
		Where("username = ?", username).
		First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUsername returns the username for a user ID.
func GetUsername(ctx context.Context, db *gorm.DB, userID string) (string, error) {
	var u domain.User
	if err := db.WithContext(ctx).
		Select("username").
		Where("id = ?", userID).
		First(&u).Error; err != nil {
		return "", err
	}
	return u.Username, nil
}

// UpdatePasswordHash replaces the stored hash. It returns ErrNotFound if the
// user does not exist.
func UpdatePasswordHash(ctx context.Context, db *gorm.DB, userID, hash string) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", userID).
		Update("password_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateUser inserts a user with a generated ID. ErrDuplicate is returned if
// the username is taken.
func CreateUser(ctx context.Context, db *gorm.DB, username, hash string) (*domain.User, error) {
	u := &domain.User{ID: uuid.NewString(), Username: username, PasswordHash: hash}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return u, nil
}

// SeedAdmin makes sure the bootstrap admin exists. An existing row with the
// same ID or username is left untouched, so a changed password survives
// restarts. It reports whether a row was inserted.
func SeedAdmin(ctx context.Context, db *gorm.DB, id, username, hash string) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.User{ID: id, Username: username, PasswordHash: hash})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
