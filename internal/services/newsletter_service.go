// Package services – NewsletterService
//
// NewsletterService publishes an issue to every confirmed subscriber. A
// publish is guarded by IdempotencyStore: the first request for a key sends
// the emails and records its response, later requests with the same key
// replay that response without sending anything.
//
// Delivery is best-effort per recipient. A failed or skipped recipient is
// logged and counted; it never aborts the batch.

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/email"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

// NewsletterIssue is the content of one publish.
type NewsletterIssue struct {
	Title       string
	HTMLContent string
	TextContent string
}

// PublishReport summarizes a delivery run.
type PublishReport struct {
	Recipients int `json:"recipients"`
	Delivered  int `json:"delivered"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// ResponseFunc renders the response recorded for a completed publish.
type ResponseFunc func(PublishReport) StoredResponse

// NewsletterService fans an issue out to confirmed subscribers.
type NewsletterService struct {
	DB          *gorm.DB
	Email       email.Client
	Idempotency *IdempotencyStore
	SendTimeout time.Duration // per-recipient bound; zero means no extra bound
	Log         *zerolog.Logger
}

// Validate reports the first problem with issue, if any.
func (i NewsletterIssue) Validate() error {
	if strings.TrimSpace(i.Title) == "" {
		return ErrEmptyTitle
	}
	if strings.TrimSpace(i.HTMLContent) == "" || strings.TrimSpace(i.TextContent) == "" {
		return ErrEmptyContent
	}
	return nil
}

// Publish delivers issue unless key was already used by userID, in which
// case the recorded response is returned with replayed=true. respond builds
// the response for a fresh run; it is stored before Publish returns.
func (s *NewsletterService) Publish(ctx context.Context, userID string, key domain.IdempotencyKey, issue NewsletterIssue, respond ResponseFunc) (resp StoredResponse, replayed bool, err error) {
	tr := otel.Tracer("services/NewsletterService")
	ctx, span := tr.Start(ctx, "Publish",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("idempotency.key", key.String()),
		),
	)
	defer span.End()
	log := loggerOr(s.Log).With().Str("user_id", userID).Str("idempotency_key", key.String()).Logger()

	if err := issue.Validate(); err != nil {
		return StoredResponse{}, false, &PublishError{Kind: KindValidation, Err: err}
	}

	saved, err := s.Idempotency.Begin(ctx, userID, key)
	switch {
	case errors.Is(err, ErrPublishInProgress):
		return StoredResponse{}, false, &PublishError{Kind: KindConflict, Err: err}
	case err != nil:
		return StoredResponse{}, false, &PublishError{Kind: KindUnexpected, Err: err}
	case saved != nil:
		publishReplaysTotal.Inc()
		log.Info().Msg("replaying stored publish response")
		return *saved, true, nil
	}

	subscribers, err := repo.ListConfirmedSubscribers(ctx, s.DB)
	if err != nil {
		if aerr := s.Idempotency.Abandon(context.WithoutCancel(ctx), userID, key); aerr != nil {
			log.Error().Err(aerr).Msg("release idempotency key")
		}
		return StoredResponse{}, false, &PublishError{Kind: KindUnexpected, Err: fmt.Errorf("list confirmed subscribers: %w", err)}
	}

	// A client disconnect must not cut the batch short.
	report := s.deliver(context.WithoutCancel(ctx), &log, issue, subscribers)
	span.SetAttributes(
		attribute.Int("newsletter.delivered", report.Delivered),
		attribute.Int("newsletter.failed", report.Failed),
		attribute.Int("newsletter.skipped", report.Skipped),
	)

	resp = respond(report)
	if err := s.Idempotency.Save(context.WithoutCancel(ctx), userID, key, resp); err != nil {
		return StoredResponse{}, false, &PublishError{Kind: KindUnexpected, Err: fmt.Errorf("save publish response: %w", err)}
	}
	log.Info().
		Int("delivered", report.Delivered).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Msg("newsletter issue published")
	return resp, false, nil
}

func (s *NewsletterService) deliver(ctx context.Context, log *zerolog.Logger, issue NewsletterIssue, subscribers []domain.ConfirmedSubscriber) PublishReport {
	report := PublishReport{Recipients: len(subscribers)}
	for _, sub := range subscribers {
		to, err := domain.ParseSubscriberEmail(sub.Email)
		if err != nil {
			report.Skipped++
			deliveriesTotal.WithLabelValues("skipped").Inc()
			log.Warn().Err(err).Msg("skipping a confirmed subscriber: stored contact details are invalid")
			continue
		}
		if err := s.send(ctx, to, issue); err != nil {
			report.Failed++
			deliveriesTotal.WithLabelValues("failed").Inc()
			log.Error().Err(err).Str("recipient", to.String()).Msg("failed to send newsletter issue")
			continue
		}
		report.Delivered++
		deliveriesTotal.WithLabelValues("delivered").Inc()
	}
	return report
}

func (s *NewsletterService) send(ctx context.Context, to domain.SubscriberEmail, issue NewsletterIssue) error {
	if s.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.SendTimeout)
		defer cancel()
	}
	return s.Email.Send(ctx, to, issue.Title, issue.HTMLContent, issue.TextContent)
}
