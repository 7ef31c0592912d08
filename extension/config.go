package extension

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/xraph/patron"
	"github.com/xraph/patron/renewal"
)

// Store drivers accepted in StoreConfig.Driver.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

// Config holds the Patron extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.patron" or "patron" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DisableRenewals prevents the unattended renewal sweeper from starting.
	DisableRenewals bool `json:"disable_renewals" mapstructure:"disable_renewals" yaml:"disable_renewals"`

	// Period is the access granted by one payment (default: 30 days).
	Period time.Duration `json:"period" mapstructure:"period" validate:"gte=0" yaml:"period"`

	// MaxRetries is the number of failed renewals tolerated before
	// cancellation (default: 3).
	MaxRetries uint32 `json:"max_retries" mapstructure:"max_retries" validate:"lte=100" yaml:"max_retries"`

	// RetryInterval is the minimum wait between failed renewals.
	RetryInterval time.Duration `json:"retry_interval" mapstructure:"retry_interval" validate:"gte=0" yaml:"retry_interval"`

	// EscrowAccount holds fees until creators withdraw them.
	EscrowAccount string `json:"escrow_account" mapstructure:"escrow_account" validate:"max=128" yaml:"escrow_account"`

	// RenewalSchedule is the sweeper's cron spec (default: "@every 1h").
	RenewalSchedule string `json:"renewal_schedule" mapstructure:"renewal_schedule" yaml:"renewal_schedule"`

	// RenewalBatchSize is the number of due subscriptions listed per query
	// (default: 100).
	RenewalBatchSize int `json:"renewal_batch_size" mapstructure:"renewal_batch_size" validate:"gte=0,lte=10000" yaml:"renewal_batch_size"`

	// Store selects the backend when none is supplied with WithStore.
	Store StoreConfig `json:"store" mapstructure:"store" yaml:"store"`

	// Mirror publishes record snapshots to NATS when URL is set.
	Mirror MirrorConfig `json:"mirror" mapstructure:"mirror" yaml:"mirror"`

	// Metrics registers the Prometheus metrics plugin.
	Metrics bool `json:"metrics" mapstructure:"metrics" yaml:"metrics"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// StoreConfig selects and locates the storage backend.
type StoreConfig struct {
	Driver string `json:"driver" mapstructure:"driver" validate:"omitempty,oneof=memory postgres sqlite mongo" yaml:"driver"`

	// DSN is the Postgres DSN, SQLite file path or MongoDB URI.
	DSN string `json:"dsn" mapstructure:"dsn" yaml:"dsn"`

	// Database is the MongoDB database name (default: "patron").
	Database string `json:"database" mapstructure:"database" yaml:"database"`
}

// MirrorConfig configures the NATS mirror.
type MirrorConfig struct {
	URL    string `json:"url" mapstructure:"url" validate:"omitempty,url" yaml:"url"`
	Prefix string `json:"prefix" mapstructure:"prefix" yaml:"prefix"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		EscrowAccount:    patron.DefaultEscrowAccount,
		RenewalSchedule:  renewal.DefaultSchedule,
		RenewalBatchSize: renewal.DefaultBatchSize,
		Store: StoreConfig{
			Driver:   DriverMemory,
			Database: "patron",
		},
	}
}

var validate = validator.New()

// Validate checks field constraints and the renewal schedule. Failures are
// reported as patron.ValidationError values collected in a patron.MultiError.
func (c Config) Validate() error {
	var errs patron.MultiError

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			errs.Add(patron.ValidationError{
				Field:   fe.Namespace(),
				Message: fmt.Sprintf("failed %q (%v)", fe.Tag(), fe.Value()),
			})
		}
	}

	if c.Store.Driver != "" && c.Store.Driver != DriverMemory && c.Store.DSN == "" {
		errs.Add(patron.ValidationError{
			Field:   "Config.Store.DSN",
			Message: fmt.Sprintf("required for driver %q", c.Store.Driver),
		})
	}

	if c.RenewalSchedule != "" {
		if _, err := cron.ParseStandard(c.RenewalSchedule); err != nil {
			errs.Add(patron.ValidationError{Field: "Config.RenewalSchedule", Message: err.Error()})
		}
	}

	return errs.ErrorOrNil()
}
