// Package ratelimit paces and bounds requests to remote sources.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limiter spaces calls to Wait at least interval apart. The first call passes
// immediately. A zero interval disables pacing.
type Limiter struct {
	limiter *rate.Limiter
	clock   clockwork.Clock
}

// NewLimiter returns a fixed-interval limiter driven by clock.
func NewLimiter(interval time.Duration, clock clockwork.Clock) *Limiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	l := &Limiter{clock: clock}
	if interval > 0 {
		l.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return l
}

// Wait blocks until the next call is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l == nil || l.limiter == nil {
		return nil
	}

	now := l.clock.Now()
	r := l.limiter.ReserveN(now, 1)
	if !r.OK() {
		return errors.New("rate limiter: reservation not possible")
	}
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		r.CancelAt(l.clock.Now())
		return ctx.Err()
	case <-l.clock.After(delay):
		return nil
	}
}

// Gate bounds the number of concurrent in-flight requests. It is shared by
// every worker that talks to the same remote API.
type Gate struct {
	sem *semaphore.Weighted
}

// NewGate allows up to n concurrent holders; n <= 0 means unbounded.
func NewGate(n int) *Gate {
	if n <= 0 {
		return &Gate{}
	}
	return &Gate{sem: semaphore.NewWeighted(int64(n))}
}

// Acquire blocks until a slot is free. The returned func releases it.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	if g == nil || g.sem == nil {
		return func() {}, ctx.Err()
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return func() {}, err
	}
	return func() { g.sem.Release(1) }, nil
}
