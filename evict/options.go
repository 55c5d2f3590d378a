package evict

import (
	"log/slog"

	"golang.org/x/time/rate"
)

const defaultStatConcurrency = 16

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLogger sets the logger used for sweep summaries and per-entry failures.
// If nil, a discard logger is used (default behavior).
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

// WithDeleteLimiter throttles deletions during a sweep. Each delete waits
// for one token. A nil limiter disables throttling (default behavior).
func WithDeleteLimiter(l *rate.Limiter) Option {
	return func(s *Sweeper) {
		s.limiter = l
	}
}

// WithStatConcurrency sets how many entries are stat'ed in parallel while
// ranking. Values < 1 are invalid. Defaults to 16.
func WithStatConcurrency(n int) Option {
	return func(s *Sweeper) {
		s.statConcurrency = n
	}
}
