// Package services defines the business logic for subscriptions, newsletter
// publishing and admin account maintenance. This file centralizes the error
// kinds returned by service methods so that handlers can map them to HTTP
// status codes without inspecting messages.
package services

import "errors"

// Kind classifies a service failure.
type Kind int

const (
	// KindValidation means the caller sent input that will never succeed.
	KindValidation Kind = iota + 1
	// KindUnauthorized means a token or credential was not recognized.
	KindUnauthorized
	// KindConflict means the operation is already being performed.
	KindConflict
	// KindUnexpected covers storage, network and other infrastructure faults.
	KindUnexpected
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindUnexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

// SubscribeError is returned by SubscriptionService.Subscribe.
type SubscribeError struct {
	Kind Kind
	Err  error
}

func (e *SubscribeError) Error() string { return "subscribe: " + e.Err.Error() }
func (e *SubscribeError) Unwrap() error { return e.Err }
func (e *SubscribeError) kind() Kind    { return e.Kind }

// ConfirmError is returned by SubscriptionService.Confirm.
type ConfirmError struct {
	Kind Kind
	Err  error
}

func (e *ConfirmError) Error() string { return "confirm subscription: " + e.Err.Error() }
func (e *ConfirmError) Unwrap() error { return e.Err }
func (e *ConfirmError) kind() Kind    { return e.Kind }

// PublishError is returned by NewsletterService.Publish.
type PublishError struct {
	Kind Kind
	Err  error
}

func (e *PublishError) Error() string { return "publish newsletter: " + e.Err.Error() }
func (e *PublishError) Unwrap() error { return e.Err }
func (e *PublishError) kind() Kind    { return e.Kind }

// PasswordError is returned by AccountService.ChangePassword.
type PasswordError struct {
	Kind Kind
	Err  error
}

func (e *PasswordError) Error() string { return "change password: " + e.Err.Error() }
func (e *PasswordError) Unwrap() error { return e.Err }
func (e *PasswordError) kind() Kind    { return e.Kind }

// KindOf returns the Kind carried by err, or KindUnexpected for errors that
// did not originate from this package.
func KindOf(err error) Kind {
	var k interface{ kind() Kind }
	if errors.As(err, &k) {
		return k.kind()
	}
	return KindUnexpected
}

// Sentinel causes wrapped by the error types above.
var (
	ErrUnknownToken         = errors.New("subscription token is not recognized")
	ErrEmptyToken           = errors.New("subscription token is empty")
	ErrEmptyTitle           = errors.New("newsletter title is empty")
	ErrEmptyContent         = errors.New("newsletter content is empty")
	ErrPublishInProgress    = errors.New("a publish with this idempotency key is still in progress")
	ErrPasswordMismatch     = errors.New("new password and its confirmation differ")
	ErrPasswordTooShort     = errors.New("new password is too short")
	ErrCurrentPasswordWrong = errors.New("current password is incorrect")
)
