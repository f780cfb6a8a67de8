package scheduler

import (
	"time"

	"github.com/okian/brewtaste/pkg/logger"
)

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithConfig replaces the default scheduling policy.
func WithConfig(cfg Config) Option {
	return func(s *Scheduler) {
		s.cfg = cfg
	}
}

// WithDebounceWindow overrides just the debounce window.
func WithDebounceWindow(window time.Duration) Option {
	return func(s *Scheduler) {
		if window > 0 {
			s.cfg.DebounceWindow = window
		}
	}
}

// WithNow overrides the clock, mainly for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the scheduler.
func WithLogger(log logger.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}
