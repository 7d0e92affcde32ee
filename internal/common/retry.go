// Package common provides shared utilities for the advisor engine
package common

import (
	"context"
	"math/rand"
	"time"

	"github.com/stockbuddy/advisor/internal/models"
)

// Retrier executes fetches with exponential backoff and jitter.
type Retrier struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterPct     float64
}

// NewRetrier builds a Retrier from the engine retry config section.
func NewRetrier(cfg RetryConfig) Retrier {
	r := Retrier{
		MaxAttempts:   cfg.MaxAttempts,
		InitialDelay:  cfg.GetInitialDelay(),
		MaxDelay:      cfg.GetMaxDelay(),
		BackoffFactor: cfg.BackoffFactor,
		JitterPct:     cfg.JitterPct,
	}
	if r.MaxAttempts < 1 {
		r.MaxAttempts = 1
	}
	if r.BackoffFactor < 1 {
		r.BackoffFactor = 2.0
	}
	return r
}

// RetryWithResult executes fn with exponential backoff until it succeeds,
// attempts run out, or the error is not worth retrying. Fetch failures
// carry their own retry verdict: NOT_FOUND stops immediately, TRANSIENT
// and RATE_LIMITED back off and try again. Context cancellation always
// stops the loop.
func RetryWithResult[T any](ctx context.Context, r Retrier, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	delay := r.InitialDelay

	for attempt := 0; attempt < r.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ff, ok := models.AsFetchFailure(err); ok && !ff.Retryable() {
			return zero, err
		}
		// Only the caller's context stops the loop; a per-request timeout
		// inside fn is a transient failure and retries like any other.
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if attempt == r.MaxAttempts-1 {
			break
		}

		timer := time.NewTimer(jittered(delay, r.JitterPct))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * r.BackoffFactor)
		if delay > r.MaxDelay {
			delay = r.MaxDelay
		}
	}

	return zero, lastErr
}

// jittered spreads a delay by ±pct so concurrent retries don't align.
func jittered(d time.Duration, pct float64) time.Duration {
	if pct <= 0 || d <= 0 {
		return d
	}
	spread := 1 + pct*(2*rand.Float64()-1)
	if spread < 0 {
		spread = 0
	}
	return time.Duration(float64(d) * spread)
}
