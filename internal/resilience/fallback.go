package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no entry of a [FallbackGroup] succeeded.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig holds the breaker settings applied to every entry of a
// [FallbackGroup]. The breaker name is set per entry.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup tries a primary and then each fallback in registration order.
// Entries whose breaker is open are skipped.
//
// Entries must all be added before the group is shared between goroutines.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup returns a group whose first entry is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends an entry tried after all earlier ones.
func (fg *FallbackGroup[T]) AddFallback(name string, value T) {
	cb := fg.cfg.CircuitBreaker
	cb.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{name: name, value: value, breaker: NewCircuitBreaker(cb)})
}

// Names returns the entry names in the order they are tried.
func (fg *FallbackGroup[T]) Names() []string {
	names := make([]string, len(fg.entries))
	for i, e := range fg.entries {
		names[i] = e.name
	}
	return names
}

// Len returns the number of entries.
func (fg *FallbackGroup[T]) Len() int { return len(fg.entries) }

// Execute runs fn against each entry until one returns nil.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult runs fn against each entry of fg until one succeeds and
// returns its result. When every entry fails the error wraps [ErrAllFailed]
// and the last failure.
//
// fn can classify its error with [Permanent], which ends the search at once,
// or [Skip], which moves on to the next entry without counting against the
// entry's breaker. If every entry skipped, the last skip reason is returned
// on its own.
func ExecuteWithResult[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero     R
		lastErr  error
		lastSkip error
	)
	for i := range fg.entries {
		e := &fg.entries[i]
		var (
			res       R
			permanent error
			skipped   error
		)
		err := e.breaker.Execute(func() error {
			var callErr error
			res, callErr = fn(e.value)
			var ce *classifiedError
			if errors.As(callErr, &ce) {
				if ce.permanent {
					permanent = ce.err
				} else {
					skipped = ce.err
				}
				return nil
			}
			return callErr
		})
		switch {
		case permanent != nil:
			return zero, permanent
		case skipped != nil:
			lastSkip = skipped
			continue
		case err == nil:
			return res, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider with open circuit", "provider", e.name)
			continue
		}
		slog.Warn("provider failed, trying next", "provider", e.name, "err", err)
	}
	if lastErr == nil && lastSkip != nil {
		return zero, lastSkip
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

type classifiedError struct {
	err       error
	permanent bool
}

func (e *classifiedError) Error() string { return e.err.Error() }
func (e *classifiedError) Unwrap() error { return e.err }

// Permanent marks err as a final answer for [ExecuteWithResult]: it is
// returned to the caller without trying further entries. Permanent(nil)
// returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, permanent: true}
}

// Skip marks err as a healthy negative answer, such as a lookup miss: the
// next entry is tried and the breaker records a success. Skip(nil) returns
// nil.
func Skip(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err}
}
