package auth

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// HashPool bounds how many argon2 computations run at once. Each one
// allocates Params.Memory KiB.
type HashPool struct {
	sem *semaphore.Weighted
}

// NewHashPool returns a pool with n slots (at least one).
func NewHashPool(n int) *HashPool {
	if n < 1 {
		n = 1
	}
	return &HashPool{sem: semaphore.NewWeighted(int64(n))}
}

// Do runs fn on a pool worker and waits for its result. If ctx ends before
// a slot frees up or before fn returns, Do returns the context error; fn
// still runs to completion in the background and releases its slot.
func (p *HashPool) Do(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire hash worker: %w", err)
	}
	done := make(chan error, 1)
	go func() {
		defer p.sem.Release(1)
		done <- fn()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("hash worker: %w", ctx.Err())
	}
}
