package renewal

import (
	"log/slog"
	"time"
)

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithSchedule sets the cron spec, e.g. "@every 15m" or "0 * * * *".
func WithSchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.schedule = spec
		}
	}
}

// WithBatchSize sets how many due subscriptions are listed per query.
func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithTimeout bounds a single scheduled sweep.
func WithTimeout(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}
