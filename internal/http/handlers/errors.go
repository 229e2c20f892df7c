// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP
// responses (via the `fail()` helper in this package). Clients branch on the
// code, never on the message.
//
// Conventions:
//   - Codes are lowercase snake_case.
//   - Generic codes mirror the HTTP status they travel with.
//   - Domain codes name the flow that failed.
//
// Browser flows (login, admin pages) redirect with a signed message instead
// and never see these codes.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "publish_in_progress",
//	  "message": "a publish with this idempotency key is still running"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeInvalidSubscriber = "invalid_subscriber"
	ErrCodeUnknownToken      = "unknown_token"
	ErrCodeInvalidIssue      = "invalid_issue"
	ErrCodePublishInProgress = "publish_in_progress"
)
