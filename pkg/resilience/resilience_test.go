package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	b := Backoff{BaseDelay: 2 * time.Second, MaxDelay: 10 * time.Second}
	assert.Equal(t, 2*time.Second, b.Delay(0))
	assert.Equal(t, 4*time.Second, b.Delay(1))
	assert.Equal(t, 8*time.Second, b.Delay(2))
	assert.Equal(t, 10*time.Second, b.Delay(3))
	assert.Equal(t, 10*time.Second, b.Delay(100))
}

func TestBackoffJitterBounds(t *testing.T) {
	b := Backoff{BaseDelay: time.Second, MaxJitter: 100 * time.Millisecond}
	for i := 0; i < 100; i++ {
		d := b.Delay(1)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.Less(t, d, 2*time.Second+100*time.Millisecond)
	}
}

func TestRetryStopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := Retry(context.Background(), "upsert", Backoff{MaxAttempts: 5}, func(ctx context.Context) error {
		calls++
		return boom
	})
	assert.Equal(t, 5, calls)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "all 5 attempts failed for upsert")
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "upsert", Backoff{MaxAttempts: 3}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryAbortsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, "upsert", Backoff{MaxAttempts: 5, BaseDelay: time.Hour}, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("boom")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryAttemptTimeout(t *testing.T) {
	err := Retry(context.Background(), "slow", Backoff{MaxAttempts: 2, AttemptTimeout: 10 * time.Millisecond}, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBreakerTripsAndRecovers(t *testing.T) {
	var states []State
	b := NewBreaker("qdrant", BreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		OnStateChange:    func(s State) { states = append(states, s) },
	})
	now := time.Now()
	b.now = func() time.Time { return now }
	ctx := context.Background()
	fail := func(context.Context) error { return errors.New("down") }
	ok := func(context.Context) error { return nil }

	assert.Error(t, b.Execute(ctx, fail))
	assert.Equal(t, StateClosed, b.State())
	assert.Error(t, b.Execute(ctx, fail))
	assert.Equal(t, StateOpen, b.State())

	err := b.Execute(ctx, ok)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	now = now.Add(time.Minute)
	require.NoError(t, b.Execute(ctx, ok))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, states)
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	b := NewBreaker("qdrant", BreakerConfig{FailureThreshold: 1})
	err := b.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, b.State())
}
