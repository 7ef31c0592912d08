package mirror

import (
	"log/slog"
	"time"
)

// Option configures the mirror Extension.
type Option func(*Extension)

// WithPrefix sets the subject prefix.
func WithPrefix(prefix string) Option {
	return func(e *Extension) {
		if prefix != "" {
			e.prefix = prefix
		}
	}
}

// WithKinds restricts publishing to the given record kinds.
func WithKinds(kinds ...Kind) Option {
	return func(e *Extension) {
		e.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			e.kinds[k] = true
		}
	}
}

// WithClock sets the clock used to stamp events.
func WithClock(clock func() time.Time) Option {
	return func(e *Extension) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger sets the logger for the extension.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extension) { e.logger = l }
}
