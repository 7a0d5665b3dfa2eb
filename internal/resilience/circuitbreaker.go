// Package resilience guards recognition start-up against a failing speech
// service.
//
// [CircuitBreaker] is a three-state breaker (closed → open → half-open). Once
// a provider has failed MaxFailures times in a row, further stream starts are
// rejected immediately with [ErrCircuitOpen], so a session drops straight into
// manual-only navigation instead of waiting out another network timeout on
// stage. [FallbackGroup] puts several providers behind per-entry breakers and
// [STTFallback] applies that to [stt.Provider].
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker is
// open.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State represents the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls until the reset timeout elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker; any failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
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

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker]. Zero values
// select defaults.
type CircuitBreakerConfig struct {
	// Name labels log messages and state-change callbacks.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 3.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probe calls allowed while half-open.
	// Default: 1.
	HalfOpenMax int

	// Now returns the current time. Default: time.Now.
	Now func() time.Time

	// OnStateChange, if set, is called after every transition while the
	// breaker lock is not held.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name          string
	maxFailures   int
	resetTimeout  time.Duration
	halfOpenMax   int
	now           func() time.Time
	onStateChange func(name string, from, to State)

	mu           sync.Mutex
	state        State
	failures     int
	openedAt     time.Time
	probes       int
	probeSuccess int
}

// NewCircuitBreaker creates a [CircuitBreaker] with the supplied configuration.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		resetTimeout:  cfg.ResetTimeout,
		halfOpenMax:   cfg.HalfOpenMax,
		now:           cfg.Now,
		onStateChange: cfg.OnStateChange,
	}
}

// Name returns the breaker's label.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn if the breaker allows it and records the outcome.
// Cancellation of the caller's context is not counted as a failure.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.allow()
	if err != nil {
		return err
	}
	err = fn()
	cb.record(probe, err)
	return err
}

// allow decides whether a call may proceed and reports whether it is a
// half-open probe.
func (cb *CircuitBreaker) allow() (probe bool, err error) {
	cb.mu.Lock()
	var change func()
	defer func() {
		cb.mu.Unlock()
		if change != nil {
			change()
		}
	}()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		change = cb.setState(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.halfOpenMax {
			return false, ErrCircuitOpen
		}
		cb.probes++
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) record(probe bool, err error) {
	cb.mu.Lock()
	var change func()
	defer func() {
		cb.mu.Unlock()
		if change != nil {
			change()
		}
	}()

	if errors.Is(err, context.Canceled) {
		if probe {
			cb.probes--
		}
		return
	}

	switch {
	case err != nil && probe:
		change = cb.setState(StateOpen)
	case err != nil:
		cb.failures++
		if cb.failures >= cb.maxFailures {
			change = cb.setState(StateOpen)
		}
	case probe:
		cb.probeSuccess++
		if cb.probeSuccess >= cb.halfOpenMax {
			change = cb.setState(StateClosed)
		}
	default:
		cb.failures = 0
	}
}

// setState transitions the breaker and returns the notification to run once
// the lock is released. Must be called with cb.mu held.
func (cb *CircuitBreaker) setState(to State) func() {
	from := cb.state
	cb.state = to
	cb.probes, cb.probeSuccess = 0, 0
	switch to {
	case StateOpen:
		cb.openedAt = cb.now()
		slog.Warn("circuit breaker opened", "name", cb.name, "from", from.String(), "consecutive_failures", cb.failures)
	case StateClosed:
		cb.failures = 0
		slog.Info("circuit breaker closed", "name", cb.name)
	case StateHalfOpen:
		slog.Info("circuit breaker half-open", "name", cb.name)
	}
	if cb.onStateChange == nil || from == to {
		return nil
	}
	name, fn := cb.name, cb.onStateChange
	return func() { fn(name, from, to) }
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed].
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	change := cb.setState(StateClosed)
	cb.mu.Unlock()
	if change != nil {
		change()
	}
}
