package extension

import (
	"time"

	"github.com/xraph/patron"
	"github.com/xraph/patron/plugin"
	"github.com/xraph/patron/store"
)

// Option configures the Patron Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine, overriding Config.Store.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithPatronOption passes a patron.Option through to the underlying engine.
func WithPatronOption(opt patron.Option) Option {
	return func(e *Extension) {
		e.patronOpts = append(e.patronOpts, opt)
	}
}

// WithPlugin registers a patron plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.patronOpts = append(e.patronOpts, patron.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithDisableRenewals prevents the renewal sweeper from starting.
func WithDisableRenewals() Option {
	return func(e *Extension) { e.config.DisableRenewals = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithPeriod sets the subscription period.
func WithPeriod(d time.Duration) Option {
	return func(e *Extension) { e.config.Period = d }
}

// WithMaxRetries sets the renewal retry budget.
func WithMaxRetries(n uint32) Option {
	return func(e *Extension) { e.config.MaxRetries = n }
}

// WithRetryInterval sets the minimum wait between failed renewals.
func WithRetryInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.RetryInterval = d }
}

// WithRenewalSchedule sets the sweeper's cron spec.
func WithRenewalSchedule(spec string) Option {
	return func(e *Extension) { e.config.RenewalSchedule = spec }
}

// WithStoreDriver selects a backend by driver name and DSN.
func WithStoreDriver(driver, dsn string) Option {
	return func(e *Extension) {
		e.config.Store.Driver = driver
		e.config.Store.DSN = dsn
	}
}

// WithMirror publishes record snapshots to the NATS server at url.
func WithMirror(url, prefix string) Option {
	return func(e *Extension) {
		e.config.Mirror.URL = url
		e.config.Mirror.Prefix = prefix
	}
}

// WithMetrics registers the Prometheus metrics plugin.
func WithMetrics() Option {
	return func(e *Extension) { e.config.Metrics = true }
}
