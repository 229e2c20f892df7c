package services

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/auth"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

// PasswordChange is the admin change-password form.
type PasswordChange struct {
	Current  string
	New      string
	NewCheck string
}

// AccountService serves the logged-in admin's own account.
type AccountService struct {
	DB       *gorm.DB
	Verifier *auth.Verifier
}

// Username returns the username of userID.
func (s *AccountService) Username(ctx context.Context, userID string) (string, error) {
	return repo.GetUsername(ctx, s.DB, userID)
}

// ChangePassword checks, in order, that the new password was typed twice
// identically, that it is long enough, and that the current password is
// right, then stores the new hash.
func (s *AccountService) ChangePassword(ctx context.Context, userID string, req PasswordChange) error {
	tr := otel.Tracer("services/AccountService")
	ctx, span := tr.Start(ctx, "ChangePassword",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	if req.New != req.NewCheck {
		return &PasswordError{Kind: KindValidation, Err: ErrPasswordMismatch}
	}
	if len([]rune(req.New)) < auth.MinPasswordLength {
		return &PasswordError{Kind: KindValidation, Err: ErrPasswordTooShort}
	}

	username, err := repo.GetUsername(ctx, s.DB, userID)
	if err != nil {
		return &PasswordError{Kind: KindUnexpected, Err: fmt.Errorf("look up username: %w", err)}
	}
	if _, err := s.Verifier.ValidateCredentials(ctx, auth.Credentials{Username: username, Password: req.Current}); err != nil {
		if auth.IsInvalidCredentials(err) {
			return &PasswordError{Kind: KindUnauthorized, Err: ErrCurrentPasswordWrong}
		}
		return &PasswordError{Kind: KindUnexpected, Err: err}
	}

	if err := s.Verifier.ChangePassword(ctx, userID, req.New); err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) {
			return &PasswordError{Kind: KindValidation, Err: ErrPasswordTooShort}
		}
		return &PasswordError{Kind: KindUnexpected, Err: err}
	}
	return nil
}
