// Package resilience wraps the Fleet Store Adapter's backends so a
// struggling store raises StoreUnavailable promptly instead of being
// retried indefinitely (§4.1, SPEC_FULL.md's Fleet Store Adapter
// transaction section).
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/metrofleet/induction/internal/clock"
	"github.com/metrofleet/induction/internal/metrics"
)

// State is one of the three sliding-window circuit breaker states.
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

// ErrCircuitOpen is returned by Execute while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type eventKind int

const (
	eventAttempt eventKind = iota
	eventSuccess
	eventFailure
)

type event struct {
	ts   time.Time
	kind eventKind
}

// CircuitBreaker is a sliding-window breaker: it trips open once, in
// the trailing window, at least minAttempts attempts occurred and at
// least threshold of them failed.
type CircuitBreaker struct {
	mu sync.Mutex

	name     string
	state    State
	openedAt time.Time

	events []event
	window time.Duration

	threshold        int
	minAttempts      int
	successes        int
	successThreshold int
	resetTimeout     time.Duration

	clock clock.Clock
}

// Option configures a CircuitBreaker at construction time.
type Option func(*CircuitBreaker)

// WithClock overrides the clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(cb *CircuitBreaker) { cb.clock = c }
}

// WithHalfOpenSuccessThreshold sets how many consecutive successes in
// HALF_OPEN are required before closing again.
func WithHalfOpenSuccessThreshold(n int) Option {
	return func(cb *CircuitBreaker) { cb.successThreshold = n }
}

// New creates a sliding-window circuit breaker for a named backend
// (e.g. "sqlite", "badger", "redis").
func New(name string, threshold, minAttempts int, window, resetTimeout time.Duration, opts ...Option) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if minAttempts <= 0 {
		minAttempts = 5
	}
	if window <= 0 {
		window = 60 * time.Second
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}

	cb := &CircuitBreaker{
		name:             name,
		state:            StateClosed,
		threshold:        threshold,
		minAttempts:      minAttempts,
		window:           window,
		resetTimeout:     resetTimeout,
		successThreshold: 3,
		clock:            clock.System{},
	}
	for _, opt := range opts {
		opt(cb)
	}

	metrics.SetCircuitState(cb.name, int(cb.state))
	return cb
}

// Execute runs fn if the breaker allows it, recording the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.AllowRequest() {
		return ErrCircuitOpen
	}
	cb.recordAttempt()

	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// AllowRequest reports whether a call may proceed, transitioning
// OPEN -> HALF_OPEN once resetTimeout has elapsed.
func (cb *CircuitBreaker) AllowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.prune()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if cb.clock.Now().Sub(cb.openedAt) >= cb.resetTimeout {
			cb.transitionInto(StateHalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordAttempt() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.events = append(cb.events, event{ts: cb.clock.Now(), kind: eventAttempt})
	cb.prune()
}

// RecordSuccess marks a successful call, closing the breaker once
// enough consecutive successes land in HALF_OPEN.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.events = append(cb.events, event{ts: cb.clock.Now(), kind: eventSuccess})
	cb.prune()

	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.successThreshold {
			cb.transitionInto(StateClosed)
		}
	}
}

// RecordFailure marks a failed call. A failure in HALF_OPEN trips
// straight back to OPEN.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.events = append(cb.events, event{ts: cb.clock.Now(), kind: eventFailure})
	cb.prune()

	if cb.state == StateHalfOpen {
		cb.transitionInto(StateOpen)
		return
	}
	cb.evaluate()
}

func (cb *CircuitBreaker) prune() {
	cutoff := cb.clock.Now().Add(-cb.window)
	for i := range cb.events {
		if !cb.events[i].ts.Before(cutoff) {
			cb.events = cb.events[i:]
			return
		}
	}
	cb.events = nil
}

func (cb *CircuitBreaker) evaluate() {
	if cb.state != StateClosed {
		return
	}
	var attempts, failures int
	for _, e := range cb.events {
		switch e.kind {
		case eventAttempt:
			attempts++
		case eventFailure:
			failures++
		}
	}
	if attempts >= cb.minAttempts && failures >= cb.threshold {
		cb.transitionInto(StateOpen)
	}
}

func (cb *CircuitBreaker) transitionInto(s State) {
	if cb.state == s {
		return
	}
	cb.state = s
	switch s {
	case StateOpen:
		cb.openedAt = cb.clock.Now()
	case StateHalfOpen:
		cb.successes = 0
	case StateClosed:
		cb.events = nil
	}
	metrics.SetCircuitState(cb.name, int(s))
}

// GetState returns the current state.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
