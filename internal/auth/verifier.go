package auth

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

// dummyHash is verified against when the username is unknown so that both
// outcomes cost one argon2 computation with the production parameters.
const dummyHash = "$argon2id$v=19$m=15000,t=2,p=1$gZiV/M1gPc22ElAH/Jh1Hw$CWOrkoo7oJBQ/iyh7uJ0LO2aLEfrHwTWllSAxT0zRno"

// MinPasswordLength is the shortest password ChangePassword accepts.
const MinPasswordLength = 12

// ErrorKind classifies authentication failures.
type ErrorKind int

const (
	// KindInvalidCredentials covers unknown usernames and wrong passwords.
	KindInvalidCredentials ErrorKind = iota + 1
	// KindUnexpected covers storage faults, malformed hashes and scheduling failures.
	KindUnexpected
)

// AuthError is returned by Verifier methods.
type AuthError struct {
	Kind ErrorKind
	Err  error
}

func (e *AuthError) Error() string {
	switch e.Kind {
	case KindInvalidCredentials:
		return "invalid credentials: " + e.Err.Error()
	default:
		return "unexpected authentication error: " + e.Err.Error()
	}
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsInvalidCredentials reports whether err is an AuthError of kind
// KindInvalidCredentials.
func IsInvalidCredentials(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Kind == KindInvalidCredentials
}

// ErrPasswordTooShort is returned by ChangePassword.
var ErrPasswordTooShort = errors.New("password is too short")

// Credentials are the username and password presented by a client.
type Credentials struct {
	Username string
	Password string
}

// Verifier checks credentials against the users table.
type Verifier struct {
	db     *gorm.DB
	pool   *HashPool
	params Params
}

// NewVerifier wires a Verifier. A nil pool gets a single-slot pool.
func NewVerifier(db *gorm.DB, pool *HashPool) *Verifier {
	if pool == nil {
		pool = NewHashPool(1)
	}
	return &Verifier{db: db, pool: pool, params: DefaultParams}
}

// ValidateCredentials returns the user ID for a matching username/password
// pair. Unknown usernames and wrong passwords both yield
// KindInvalidCredentials after the same amount of hashing work.
func (v *Verifier) ValidateCredentials(ctx context.Context, c Credentials) (string, error) {
	ctx, span := otel.Tracer("auth/verifier").Start(ctx, "ValidateCredentials",
		trace.WithAttributes(attribute.String("username", c.Username)))
	defer span.End()

	var (
		userID   string
		expected = dummyHash
	)
	u, err := repo.GetStoredCredentials(ctx, v.db, c.Username)
	switch {
	case err == nil:
		userID, expected = u.ID, u.PasswordHash
	case errors.Is(err, repo.ErrNotFound):
	default:
		return "", &AuthError{Kind: KindUnexpected, Err: fmt.Errorf("load stored credentials: %w", err)}
	}

	err = v.pool.Do(ctx, func() error { return VerifyPasswordHash(expected, c.Password) })
	switch {
	case errors.Is(err, ErrPasswordMismatch):
		return "", &AuthError{Kind: KindInvalidCredentials, Err: err}
	case err != nil:
		return "", &AuthError{Kind: KindUnexpected, Err: fmt.Errorf("verify password hash: %w", err)}
	}
	if userID == "" {
		return "", &AuthError{Kind: KindInvalidCredentials, Err: errors.New("unknown username")}
	}
	return userID, nil
}

// ChangePassword replaces the stored hash for userID. Passwords shorter than
// MinPasswordLength characters are rejected with ErrPasswordTooShort before
// any hashing happens.
func (v *Verifier) ChangePassword(ctx context.Context, userID, password string) error {
	ctx, span := otel.Tracer("auth/verifier").Start(ctx, "ChangePassword",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	hash, err := v.HashPassword(ctx, password)
	if err != nil {
		return &AuthError{Kind: KindUnexpected, Err: fmt.Errorf("hash new password: %w", err)}
	}
	if err := repo.UpdatePasswordHash(ctx, v.db, userID, hash); err != nil {
		return &AuthError{Kind: KindUnexpected, Err: fmt.Errorf("store new password hash: %w", err)}
	}
	return nil
}

// HashPassword computes a hash with the verifier's parameters on the pool.
func (v *Verifier) HashPassword(ctx context.Context, password string) (string, error) {
	var hash string
	if err := v.pool.Do(ctx, func() error {
		var err error
		hash, err = ComputePasswordHash(password, v.params)
		return err
	}); err != nil {
		return "", err
	}
	return hash, nil
}
