package ratelimit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_FirstCallPassesImmediately(t *testing.T) {
	fc := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	l := NewLimiter(2*time.Second, fc)

	require.NoError(t, l.Wait(context.Background()))
}

func TestLimiter_SpacesCalls(t *testing.T) {
	fc := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	l := NewLimiter(2*time.Second, fc)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, l.Wait(ctx))

	done := make(chan error, 1)
	go func() { done <- l.Wait(ctx) }()

	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	select {
	case <-done:
		t.Fatal("second call passed before the interval elapsed")
	default:
	}

	fc.Advance(2 * time.Second)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("second call did not pass after the interval")
	}
}

func TestLimiter_NoWaitAfterIdle(t *testing.T) {
	fc := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	l := NewLimiter(time.Second, fc)

	require.NoError(t, l.Wait(context.Background()))
	fc.Advance(5 * time.Second)
	require.NoError(t, l.Wait(context.Background()))
}

func TestLimiter_Cancellation(t *testing.T) {
	fc := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	l := NewLimiter(time.Minute, fc)

	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Wait(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, fc.BlockUntilContext(waitCtx, 1))
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-waitCtx.Done():
		t.Fatal("cancelled wait did not return")
	}
}

func TestLimiter_Disabled(t *testing.T) {
	l := NewLimiter(0, nil)
	for range 3 {
		require.NoError(t, l.Wait(context.Background()))
	}

	var nilLimiter *Limiter
	require.NoError(t, nilLimiter.Wait(context.Background()))
}

func TestGate_BoundsConcurrency(t *testing.T) {
	g := NewGate(2)
	ctx := context.Background()

	var inFlight, peak atomic.Int32
	done := make(chan struct{})
	for range 8 {
		go func() {
			defer func() { done <- struct{}{} }()
			release, err := g.Acquire(ctx)
			if err != nil {
				return
			}
			defer release()
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
		}()
	}
	for range 8 {
		<-done
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Positive(t, peak.Load())
}

func TestGate_AcquireCancelled(t *testing.T) {
	g := NewGate(1)
	release, err := g.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestGate_Unbounded(t *testing.T) {
	g := NewGate(0)
	for range 100 {
		release, err := g.Acquire(context.Background())
		require.NoError(t, err)
		defer release()
	}
}
