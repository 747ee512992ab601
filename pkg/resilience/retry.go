// Package resilience provides the bounded exponential-backoff retry used for
// vector index writes and the circuit breaker guarding index reads.
package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Backoff describes a retry policy. The delay before retry n (0-based) is
// BaseDelay * 2^n plus a uniform jitter in [0, MaxJitter), capped at MaxDelay
// when MaxDelay is positive.
type Backoff struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxJitter      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

// Delay returns the wait before the retry that follows the given 0-based
// failed attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	delay := b.BaseDelay * time.Duration(1<<attempt)
	if delay < 0 {
		delay = b.MaxDelay
	}
	if b.MaxJitter > 0 {
		delay += time.Duration(rand.Int64N(int64(b.MaxJitter)))
	}
	if b.MaxDelay > 0 && delay > b.MaxDelay {
		delay = b.MaxDelay
	}
	return delay
}

// Retry calls fn until it succeeds, MaxAttempts attempts have failed, or ctx
// is done. Each attempt gets its own deadline when AttemptTimeout is set.
// The returned error wraps the last attempt's error.
func Retry(ctx context.Context, name string, b Backoff, fn func(ctx context.Context) error) error {
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = 1
	}
	logger := slog.Default().With("component", "retry", "operation", name)
	var lastErr error
	for attempt := 0; attempt < b.MaxAttempts; attempt++ {
		lastErr = runAttempt(ctx, b.AttemptTimeout, fn)
		if lastErr == nil {
			if attempt > 0 {
				logger.Info("succeeded after retry", "attempt", attempt+1)
			}
			return nil
		}
		if attempt == b.MaxAttempts-1 {
			break
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		}
		delay := b.Delay(attempt)
		logger.Warn("operation failed, retrying",
			"attempt", attempt+1,
			"max_attempts", b.MaxAttempts,
			"error", lastErr,
			"next_delay", delay,
		)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted during backoff: %w", ctx.Err())
		}
	}
	return fmt.Errorf("all %d attempts failed for %s: %w", b.MaxAttempts, name, lastErr)
}

func runAttempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}
