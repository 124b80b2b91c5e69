// Package resilience guards calls to external providers.
//
// [CircuitBreaker] stops calling a provider after repeated failures and probes
// it again once a cool-down has passed. [FallbackGroup] orders several
// providers of one kind, each behind its own breaker, and moves on to the next
// when one fails. Speech recognition and passage lookup both use it.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until ResetTimeout has
	// passed since the last failure.
	StateOpen

	// StateHalfOpen lets up to HalfOpenMax probe calls through. A failing probe
	// re-opens the breaker; HalfOpenMax successes close it.
	StateHalfOpen
)

// String returns the state name used in logs and metrics.
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

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero values take defaults.
type CircuitBreakerConfig struct {
	// Name labels log lines and state change callbacks.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is the cool-down before probing. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probes allowed while half-open. Default: 3.
	HalfOpenMax int

	// OnStateChange, if set, is called after every transition. It runs with
	// the breaker unlocked.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker is a three-state breaker (closed, open, half-open).
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	onChange     func(name string, from, to State)
	now          func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probes      int
	probeOK     int
}

// NewCircuitBreaker returns a closed breaker configured by cfg.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		onChange:     cfg.OnStateChange,
		now:          time.Now,
	}
}

// Execute calls fn unless the breaker is open or out of probes, in which case
// it returns [ErrCircuitOpen] without calling fn. The error of fn is returned
// unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}

	callErr := fn()

	cb.mu.Lock()
	from := cb.state
	if callErr != nil {
		cb.fail(probe)
	} else {
		cb.succeed(probe)
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return callErr
}

// admit decides whether a call may proceed and whether it counts as a probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	from := cb.state
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailure) < cb.resetTimeout {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probes, cb.probeOK = 0, 0
	case StateHalfOpen:
		if cb.probes >= cb.halfOpenMax {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
	}
	probe = cb.state == StateHalfOpen
	if probe {
		cb.probes++
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return probe, nil
}

// fail records a failed call. cb.mu must be held.
func (cb *CircuitBreaker) fail(probe bool) {
	cb.lastFailure = cb.now()
	if probe {
		cb.state = StateOpen
		cb.failures = cb.maxFailures
		return
	}
	cb.failures++
	if cb.failures >= cb.maxFailures {
		cb.state = StateOpen
	}
}

// succeed records a successful call. cb.mu must be held.
func (cb *CircuitBreaker) succeed(probe bool) {
	if !probe {
		cb.failures = 0
		return
	}
	cb.probeOK++
	if cb.probeOK >= cb.halfOpenMax {
		cb.state = StateClosed
		cb.failures, cb.probes, cb.probeOK = 0, 0, 0
	}
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from == to {
		return
	}
	if to == StateOpen {
		slog.Warn("circuit breaker opened", "name", cb.name, "from", from.String())
	} else {
		slog.Info("circuit breaker state changed", "name", cb.name, "from", from.String(), "to", to.String())
	}
	if cb.onChange != nil {
		cb.onChange(cb.name, from, to)
	}
}

// State returns the current state. An open breaker whose cool-down has passed
// reports [StateHalfOpen]; the transition itself happens on the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.lastFailure) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failures, cb.probes, cb.probeOK = 0, 0, 0
	cb.mu.Unlock()
	cb.notify(from, StateClosed)
}
