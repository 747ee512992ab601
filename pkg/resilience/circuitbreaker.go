package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the phase of a Breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig controls when the breaker trips and how it recovers.
type BreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	// OnStateChange, when set, is called with the new state under the
	// breaker's lock. It must not call back into the breaker.
	OnStateChange func(State)
}

// Breaker trips open after FailureThreshold consecutive failures and lets a
// single probe through once ResetTimeout has passed. Query paths use it so
// that an unreachable vector index fails fast instead of tying up handlers.
type Breaker struct {
	name      string
	cfg       BreakerConfig
	now       func() time.Time
	logger    *slog.Logger
	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probeSent bool
}

func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Execute runs fn when the breaker allows it. Cancellation of ctx is not
// counted as a failure.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn(ctx)
	b.after(err)
	return err
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		wait := b.cfg.ResetTimeout - b.now().Sub(b.openedAt)
		if wait > 0 {
			return fmt.Errorf("%w: %s (retry after %v)", ErrCircuitOpen, b.name, wait.Round(time.Millisecond))
		}
		b.setState(StateHalfOpen)
		b.probeSent = true
		return nil
	case StateHalfOpen:
		if b.probeSent {
			return fmt.Errorf("%w: %s (probe in flight)", ErrCircuitOpen, b.name)
		}
		b.probeSent = true
	}
	return nil
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil || errors.Is(err, context.Canceled) {
		if b.state == StateHalfOpen {
			b.logger.Info("circuit closed after successful probe")
			b.setState(StateClosed)
		}
		b.failures = 0
		b.probeSent = false
		return
	}
	b.failures++
	switch b.state {
	case StateClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.logger.Warn("circuit opened", "consecutive_failures", b.failures, "error", err)
			b.trip()
		}
	case StateHalfOpen:
		b.logger.Warn("probe failed, circuit re-opened", "error", err)
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.openedAt = b.now()
	b.probeSent = false
	b.setState(StateOpen)
}

func (b *Breaker) setState(s State) {
	if b.state == s {
		return
	}
	b.state = s
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(s)
	}
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probeSent = false
	b.setState(StateClosed)
}
