package quiz

import (
	"errors"
	"fmt"
)

// BatchConfig holds the progression tunables.
type BatchConfig struct {
	// BatchSize is the number of correct answers after which a summary is
	// offered. Default: 10.
	BatchSize int

	// PrefetchThreshold is the batch position at which the next batch is
	// fetched in the background. Must satisfy 0 < PrefetchThreshold < BatchSize.
	// Default: 7.
	PrefetchThreshold int
}

// DefaultBatchConfig returns BatchSize 10 and PrefetchThreshold 7.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{BatchSize: 10, PrefetchThreshold: 7}
}

// Validate reports whether the thresholds are usable.
func (c BatchConfig) Validate() error {
	var errs []error
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("quiz: batch size must be positive, got %d", c.BatchSize))
	}
	if c.PrefetchThreshold <= 0 || c.PrefetchThreshold >= c.BatchSize {
		errs = append(errs, fmt.Errorf("quiz: prefetch threshold must be in (0, %d), got %d",
			c.BatchSize, c.PrefetchThreshold))
	}
	return errors.Join(errs...)
}

// advance applies one correct answer to s and runs the coordinator
// transitions. It reports whether the caller must start a prefetch; in that
// case prefetchInFlight has already been set, so no concurrent caller can
// claim the same fetch. The caller must hold s.mu.
func (c BatchConfig) advance(s *Session) (startPrefetch bool) {
	s.currentIndex++
	s.batchPosition++
	s.totalCorrect++

	if s.batchPosition == c.PrefetchThreshold && !s.prefetchInFlight {
		s.prefetchInFlight = true
		startPrefetch = true
	}

	if s.batchPosition >= c.BatchSize {
		s.batchPosition = 0
		s.pendingSummary = true
	}
	return startPrefetch
}

// takeSummaryFlag returns and clears the pending summary flag. The caller
// must hold s.mu.
func takeSummaryFlag(s *Session) bool {
	v := s.pendingSummary
	s.pendingSummary = false
	return v
}
