package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rivo/uniseg"
	"golang.org/x/text/unicode/norm"
)

// Validation errors returned by the Parse functions. Callers match them with
// errors.Is; the wrapped message names the rejected input.
var (
	ErrInvalidName           = errors.New("invalid subscriber name")
	ErrInvalidEmail          = errors.New("invalid subscriber email")
	ErrInvalidIdempotencyKey = errors.New("invalid idempotency key")
)

const (
	MaxNameGraphemes     = 256
	MaxIdempotencyKeyLen = 200
	forbiddenNameChars   = `/()"<>\{}`
)

var (
	validate         = validator.New()
	idempotencyKeyRe = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
)

// SubscriberName is a display name that passed ParseSubscriberName.
type SubscriberName string

// ParseSubscriberName normalizes s to NFC and rejects names that are blank,
// longer than MaxNameGraphemes user-perceived characters, or contain any of
// the characters / ( ) " < > \ { }.
func ParseSubscriberName(s string) (SubscriberName, error) {
	s = norm.NFC.String(s)
	switch {
	case strings.TrimSpace(s) == "":
		return "", fmt.Errorf("%w: name is empty", ErrInvalidName)
	case uniseg.GraphemeClusterCount(s) > MaxNameGraphemes:
		return "", fmt.Errorf("%w: name is longer than %d characters", ErrInvalidName, MaxNameGraphemes)
	case strings.ContainsAny(s, forbiddenNameChars):
		return "", fmt.Errorf("%w: %q contains a forbidden character", ErrInvalidName, s)
	}
	return SubscriberName(s), nil
}

func (n SubscriberName) String() string { return string(n) }

// SubscriberEmail is an address that passed ParseSubscriberEmail.
type SubscriberEmail string

// ParseSubscriberEmail accepts addresses that satisfy the usual
// local@domain grammar.
func ParseSubscriberEmail(s string) (SubscriberEmail, error) {
	s = strings.TrimSpace(s)
	if err := validate.Var(s, "required,email"); err != nil {
		return "", fmt.Errorf("%w: %q is not a valid email address", ErrInvalidEmail, s)
	}
	return SubscriberEmail(s), nil
}

func (e SubscriberEmail) String() string { return string(e) }

// NewSubscriber is a validated subscription request.
type NewSubscriber struct {
	Email SubscriberEmail
	Name  SubscriberName
}

// ParseNewSubscriber validates both fields of a subscription form.
func ParseNewSubscriber(name, email string) (NewSubscriber, error) {
	n, err := ParseSubscriberName(name)
	if err != nil {
		return NewSubscriber{}, err
	}
	e, err := ParseSubscriberEmail(email)
	if err != nil {
		return NewSubscriber{}, err
	}
	return NewSubscriber{Email: e, Name: n}, nil
}

// IdempotencyKey is a client-chosen token identifying one logical publish.
type IdempotencyKey string

// ParseIdempotencyKey accepts 1..MaxIdempotencyKeyLen characters from
// [A-Za-z0-9._~-:].
func ParseIdempotencyKey(s string) (IdempotencyKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: key is empty", ErrInvalidIdempotencyKey)
	}
	if len(s) > MaxIdempotencyKeyLen {
		return "", fmt.Errorf("%w: key is longer than %d characters", ErrInvalidIdempotencyKey, MaxIdempotencyKeyLen)
	}
	if !idempotencyKeyRe.MatchString(s) {
		return "", fmt.Errorf("%w: key contains unsupported characters", ErrInvalidIdempotencyKey)
	}
	return IdempotencyKey(s), nil
}

func (k IdempotencyKey) String() string { return string(k) }
