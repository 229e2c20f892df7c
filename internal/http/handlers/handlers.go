// Package handlers wires HTTP endpoints to the application services.
//
// Endpoints:
//   - POST /subscriptions, GET /subscriptions/confirm      (subscriptions.go)
//   - POST /newsletters, GET|POST /admin/newsletters       (newsletters.go)
//   - GET|POST /login                                      (login.go)
//   - GET /admin/dashboard, GET|POST /admin/password,
//     POST /admin/logout                                   (admin.go)
//   - GET /health_check, GET /health                       (health.go)
//
// Handlers are transport-thin: they bind input, call a service, and map the
// service's error kind to a status code or a signed redirect.
package handlers

import (
	"context"
	"embed"
	"html/template"

	"github.com/tbourn/go-newsletter-backend/internal/auth"
	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/services"
	"github.com/tbourn/go-newsletter-backend/internal/session"
	"github.com/tbourn/go-newsletter-backend/internal/signing"
)

//
// Service contracts (context-aware)
//

// SubscriptionService registers and confirms subscribers.
type SubscriptionService interface {
	Subscribe(ctx context.Context, name, email string) error
	Confirm(ctx context.Context, token string) error
}

// NewsletterService publishes issues under an idempotency key.
type NewsletterService interface {
	Publish(ctx context.Context, userID string, key domain.IdempotencyKey, issue services.NewsletterIssue, respond services.ResponseFunc) (services.StoredResponse, bool, error)
}

// AccountService serves the logged-in admin's own account.
type AccountService interface {
	Username(ctx context.Context, userID string) (string, error)
	ChangePassword(ctx context.Context, userID string, req services.PasswordChange) error
}

// CredentialValidator checks a username/password pair.
type CredentialValidator interface {
	ValidateCredentials(ctx context.Context, c auth.Credentials) (string, error)
}

//
// Handler wiring
//

// Deps are the collaborators of Handlers.
type Deps struct {
	Subscriptions SubscriptionService
	Newsletters   NewsletterService
	Accounts      AccountService
	Credentials   CredentialValidator
	Sessions      *session.Manager
	Codec         *signing.Codec
}

// Handlers groups all HTTP endpoints.
type Handlers struct {
	subs     SubscriptionService
	news     NewsletterService
	accounts AccountService
	creds    CredentialValidator
	sessions *session.Manager
	codec    *signing.Codec
}

// New constructs Handlers from d.
func New(d Deps) *Handlers {
	return &Handlers{
		subs:     d.Subscriptions,
		news:     d.Newsletters,
		accounts: d.Accounts,
		creds:    d.Credentials,
		sessions: d.Sessions,
		codec:    d.Codec,
	}
}

//go:embed templates/*.html
var templateFS embed.FS

// Templates parses the embedded page templates. Install them with
// gin.Engine.SetHTMLTemplate.
func Templates() *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/*.html"))
}
