// Package services – IdempotencyStore
//
// IdempotencyStore guarantees that a publish identified by
// (user_id, idempotency_key) runs at most once and that every retry gets
// the byte-identical response of the first run.
//
// Protocol:
//  1. Begin looks for a completed record and returns it for replay.
//  2. Otherwise it tries to claim the key by inserting an in-progress row.
//     The database primary key lets exactly one concurrent caller win.
//  3. Losers poll until the winner saves its response, then replay it. If
//     the winner abandons the claim, a waiting caller takes it over.
//  4. The winner runs the side effects and calls Save (or Abandon).
//  5. A claim still in progress after StaleAfter is treated as left behind
//     by a dead owner and one waiting caller takes it over.

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
)

// StoredResponse is a complete HTTP response recorded for replay.
type StoredResponse struct {
	StatusCode int
	Headers    domain.HeaderPairs
	Body       []byte
}

// IdempotencyStore persists publish outcomes.
type IdempotencyStore struct {
	DB           *gorm.DB
	TTL          time.Duration // how long a record is replayed
	WaitTimeout  time.Duration // how long Begin waits for a concurrent owner
	PollInterval time.Duration
	StaleAfter   time.Duration // age at which an unfinished claim may be taken over

	Now func() time.Time
}

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultIdempotencyWait = 10 * time.Second
	defaultPollInterval    = 50 * time.Millisecond
	defaultStaleAfter      = 5 * time.Minute
)

// Get returns the completed response for (userID, key), or nil when there is
// none yet.
func (s *IdempotencyStore) Get(ctx context.Context, userID string, key domain.IdempotencyKey) (*StoredResponse, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, key.String(), s.now())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !rec.Completed() {
		return nil, nil
	}
	return toStored(rec), nil
}

// Save records resp for (userID, key). An existing claim is completed; if
// there is no claim a completed record is created. A response that was
// already recorded is never overwritten.
func (s *IdempotencyStore) Save(ctx context.Context, userID string, key domain.IdempotencyKey, resp StoredResponse) error {
	err := repo.SaveIdempotencyResponse(ctx, s.DB, userID, key.String(), resp.StatusCode, resp.Headers, resp.Body)
	if errors.Is(err, repo.ErrNotFound) {
		if err := repo.TryStartIdempotency(ctx, s.DB, userID, key.String(), s.now(), s.ttl()); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			return err
		}
		err = repo.SaveIdempotencyResponse(ctx, s.DB, userID, key.String(), resp.StatusCode, resp.Headers, resp.Body)
	}
	return err
}

// Begin either returns a stored response to replay, or claims the key and
// returns nil. A caller that receives nil owns the key and must call Save
// or Abandon. ErrPublishInProgress is returned if another owner does not
// finish within WaitTimeout.
func (s *IdempotencyStore) Begin(ctx context.Context, userID string, key domain.IdempotencyKey) (*StoredResponse, error) {
	tr := otel.Tracer("services/IdempotencyStore")
	ctx, span := tr.Start(ctx, "Begin",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("idempotency.key", key.String()),
		),
	)
	defer span.End()

	deadline := time.NewTimer(s.waitTimeout())
	defer deadline.Stop()
	ticker := time.NewTicker(s.pollInterval())
	defer ticker.Stop()

	for {
		now := s.now()
		rec, err := repo.GetIdempotency(ctx, s.DB, userID, key.String(), now)
		switch {
		case err == nil && rec.Completed():
			span.SetAttributes(attribute.Bool("idempotency.replay", true))
			return toStored(rec), nil
		case err == nil:
			staleBefore := now.Add(-s.staleAfter())
			if !rec.CreatedAt.After(staleBefore) {
				took, err := repo.TakeOverStaleIdempotency(ctx, s.DB, userID, key.String(), now, staleBefore)
				if err != nil {
					return nil, fmt.Errorf("take over idempotency key: %w", err)
				}
				if took {
					span.SetAttributes(attribute.Bool("idempotency.takeover", true))
					return nil, nil
				}
			}
		case errors.Is(err, repo.ErrNotFound):
			err := repo.TryStartIdempotency(ctx, s.DB, userID, key.String(), now, s.ttl())
			if err == nil {
				return nil, nil
			}
			if !errors.Is(err, repo.ErrDuplicate) {
				return nil, fmt.Errorf("claim idempotency key: %w", err)
			}
		default:
			return nil, fmt.Errorf("load idempotency record: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrPublishInProgress
		case <-ticker.C:
		}
	}
}

// Abandon releases a claim taken by Begin so that a retry can run.
func (s *IdempotencyStore) Abandon(ctx context.Context, userID string, key domain.IdempotencyKey) error {
	return repo.DeleteIdempotency(ctx, s.DB, userID, key.String())
}

// Purge removes expired records.
func (s *IdempotencyStore) Purge(ctx context.Context) (int64, error) {
	return repo.PurgeExpiredIdempotency(ctx, s.DB, s.now())
}

// RunJanitor purges expired records every interval until ctx is done.
func (s *IdempotencyStore) RunJanitor(ctx context.Context, interval time.Duration, log *zerolog.Logger) {
	log = loggerOr(log)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.Purge(ctx)
			if err != nil {
				log.Error().Err(err).Msg("purge expired idempotency records")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("expired idempotency records removed")
			}
		}
	}
}

func toStored(rec *domain.Idempotency) *StoredResponse {
	return &StoredResponse{
		StatusCode: *rec.ResponseStatusCode,
		Headers:    rec.ResponseHeaders,
		Body:       rec.ResponseBody,
	}
}

func (s *IdempotencyStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *IdempotencyStore) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return defaultIdempotencyTTL
}

func (s *IdempotencyStore) waitTimeout() time.Duration {
	if s.WaitTimeout > 0 {
		return s.WaitTimeout
	}
	return defaultIdempotencyWait
}

func (s *IdempotencyStore) staleAfter() time.Duration {
	if s.StaleAfter > 0 {
		return s.StaleAfter
	}
	return defaultStaleAfter
}

func (s *IdempotencyStore) pollInterval() time.Duration {
	if s.PollInterval > 0 {
		return s.PollInterval
	}
	return defaultPollInterval
}
