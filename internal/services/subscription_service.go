// Package services – SubscriptionService
//
// This file implements the double opt-in flow: a subscription request
// stores a pending subscriber with a one-time token and emails a
// confirmation link; following the link confirms the subscriber.
//
// Observability: public methods are OpenTelemetry-instrumented and outcomes
// are counted in subscriptions_total.

package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/email"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

const (
	tokenLength   = 25
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	confirmationSubject = "Welcome!"
)

// SubscriptionService owns subscriber sign-up and confirmation.
type SubscriptionService struct {
	DB      *gorm.DB
	Email   email.Client
	BaseURL string // public origin used to build confirmation links
	Log     *zerolog.Logger

	// Now and NewToken are replaceable in tests.
	Now      func() time.Time
	NewToken func() (string, error)
}

// Subscribe validates the form, stores a pending subscriber and its token in
// one transaction, then emails the confirmation link. If the email cannot be
// sent the stored rows are kept and a KindUnexpected error is returned.
func (s *SubscriptionService) Subscribe(ctx context.Context, name, address string) error {
	tr := otel.Tracer("services/SubscriptionService")
	ctx, span := tr.Start(ctx, "Subscribe")
	defer span.End()
	log := loggerOr(s.Log)

	ns, err := domain.ParseNewSubscriber(name, address)
	if err != nil {
		subscriptionsTotal.WithLabelValues("invalid").Inc()
		return &SubscribeError{Kind: KindValidation, Err: err}
	}

	token, err := s.newToken()
	if err != nil {
		return &SubscribeError{Kind: KindUnexpected, Err: err}
	}

	var subscriberID string
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		id, err := repo.InsertSubscriber(ctx, tx, ns, s.now())
		if err != nil {
			return fmt.Errorf("insert subscriber: %w", err)
		}
		if err := repo.StoreToken(ctx, tx, id, token); err != nil {
			return fmt.Errorf("store subscription token: %w", err)
		}
		subscriberID = id
		return nil
	})
	if err != nil {
		subscriptionsTotal.WithLabelValues("storage_error").Inc()
		return &SubscribeError{Kind: KindUnexpected, Err: err}
	}
	span.SetAttributes(attribute.String("subscriber.id", subscriberID))

	if err := s.sendConfirmationEmail(ctx, ns.Email, token); err != nil {
		subscriptionsTotal.WithLabelValues("email_error").Inc()
		log.Error().Err(err).Str("subscriber_id", subscriberID).Msg("failed to send confirmation email")
		return &SubscribeError{Kind: KindUnexpected, Err: fmt.Errorf("send confirmation email: %w", err)}
	}

	subscriptionsTotal.WithLabelValues("pending").Inc()
	log.Info().Str("subscriber_id", subscriberID).Msg("new subscriber saved")
	return nil
}

// Confirm marks the subscriber owning token as confirmed. Unknown tokens
// yield KindUnauthorized. Confirming twice succeeds.
func (s *SubscriptionService) Confirm(ctx context.Context, token string) error {
	tr := otel.Tracer("services/SubscriptionService")
	ctx, span := tr.Start(ctx, "Confirm")
	defer span.End()

	token = strings.TrimSpace(token)
	if token == "" {
		return &ConfirmError{Kind: KindValidation, Err: ErrEmptyToken}
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		id, err := repo.GetSubscriberIDFromToken(ctx, tx, token)
		if err != nil {
			return err
		}
		span.SetAttributes(attribute.String("subscriber.id", id))
		return repo.ConfirmSubscriber(ctx, tx, id)
	})
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return &ConfirmError{Kind: KindUnauthorized, Err: ErrUnknownToken}
	case err != nil:
		return &ConfirmError{Kind: KindUnexpected, Err: err}
	}
	subscriptionsTotal.WithLabelValues("confirmed").Inc()
	return nil
}

func (s *SubscriptionService) sendConfirmationEmail(ctx context.Context, to domain.SubscriberEmail, token string) error {
	link := fmt.Sprintf("%s/subscriptions/confirm?subscription_token=%s", strings.TrimRight(s.BaseURL, "/"), token)
	html := fmt.Sprintf("Welcome to our newsletter!<br />Click <a href=\"%s\">here</a> to confirm your subscription.", link)
	text := fmt.Sprintf("Welcome to our newsletter!\nVisit %s to confirm your subscription.", link)
	return s.Email.Send(ctx, to, confirmationSubject, html, text)
}

func (s *SubscriptionService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *SubscriptionService) newToken() (string, error) {
	if s.NewToken != nil {
		return s.NewToken()
	}
	return GenerateSubscriptionToken()
}

// GenerateSubscriptionToken returns 25 characters drawn uniformly from
// [A-Za-z0-9] using crypto/rand.
func GenerateSubscriptionToken() (string, error) {
	var b strings.Builder
	b.Grow(tokenLength)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := 0; i < tokenLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate subscription token: %w", err)
		}
		b.WriteByte(tokenAlphabet[n.Int64()])
	}
	return b.String(), nil
}
