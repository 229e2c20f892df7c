// Package email delivers transactional and newsletter email through an
// external provider's HTTP API.
package email

import (
	"context"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// Client sends a single email. Implementations must honor ctx cancellation
// and return an error for any non-success provider response.
type Client interface {
	Send(ctx context.Context, recipient domain.SubscriberEmail, subject, htmlBody, textBody string) error
}
