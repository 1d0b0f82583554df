package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] failed or was
// skipped because its breaker is open.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig is the template for the breaker created per entry. Its Name
// field is overwritten with the entry name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary and zero or more fallbacks of the same
// provider type. Entries are tried in registration order.
//
// Entries must be registered before the group is shared between goroutines.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a group with primary as its first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends an entry with a fresh breaker.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Names lists the entry names in try order.
func (fg *FallbackGroup[T]) Names() []string {
	names := make([]string, len(fg.entries))
	for i, e := range fg.entries {
		names[i] = e.name
	}
	return names
}

// States reports the breaker state of every entry, keyed by name.
func (fg *FallbackGroup[T]) States() map[string]State {
	states := make(map[string]State, len(fg.entries))
	for _, e := range fg.entries {
		states[e.name] = e.breaker.State()
	}
	return states
}

// Available returns nil when at least one entry's breaker would admit a call.
func (fg *FallbackGroup[T]) Available() error {
	for _, e := range fg.entries {
		if e.breaker.State() != StateOpen {
			return nil
		}
	}
	return fmt.Errorf("%w: every circuit is open (%v)", ErrAllFailed, fg.Names())
}

// Execute runs fn against each entry until one succeeds.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult runs fn against each entry of fg until one succeeds and
// returns its result. Entries with an open breaker are skipped. When all
// entries fail the error wraps [ErrAllFailed] and carries the last failure.
func ExecuteWithResult[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var lastErr error
	for i := range fg.entries {
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("resilience: skipping provider, circuit open", "provider", entry.name)
			continue
		}
		slog.Warn("resilience: provider failed, trying next", "provider", entry.name, "err", err)
	}
	var zero R
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
