// Package extension provides the Forge extension adapter for Patron.
//
// It implements the forge.Extension interface to integrate Patron
// into a Forge application with DI registration, store selection,
// optional metrics and mirroring plugins, and the renewal sweeper.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.patron" or "patron" keys.
package extension

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/patron"
	"github.com/xraph/patron/mirror"
	"github.com/xraph/patron/observability"
	"github.com/xraph/patron/plugin"
	"github.com/xraph/patron/renewal"
	"github.com/xraph/patron/store"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "patron"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Recurring creator subscription ledger"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// openTimeout bounds connecting to a configured store or NATS server.
const openTimeout = 30 * time.Second

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Patron as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *patron.Patron
	store      store.Store
	sweeper    *renewal.Sweeper
	publisher  *mirror.NATSPublisher
	patronOpts []patron.Option
}

// New creates a new Patron Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Patron instance.
// This is nil until Register is called.
func (e *Extension) Engine() *patron.Patron { return e.engine }

// Sweeper returns the renewal sweeper. This is nil until Register is called.
func (e *Extension) Sweeper() *renewal.Sweeper { return e.sweeper }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.build(); err != nil {
		return err
	}

	if err := vessel.Provide(fapp.Container(), func() (*patron.Patron, error) {
		return e.engine, nil
	}); err != nil {
		return err
	}
	return vessel.Provide(fapp.Container(), func() (*renewal.Sweeper, error) {
		return e.sweeper, nil
	})
}

// build opens the store, assembles plugins and constructs the engine and
// sweeper from the resolved config.
func (e *Extension) build() error {
	if err := e.config.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()

	// Use the configured backend if no store was provided programmatically.
	if e.store == nil {
		s, err := openStore(ctx, e.config.Store)
		if err != nil {
			return err
		}
		e.store = s
	}

	plugins, err := e.buildPlugins()
	if err != nil {
		return err
	}

	opts := e.buildPatronOpts()
	for _, p := range plugins {
		opts = append(opts, patron.WithPlugin(p))
	}

	e.engine = patron.New(e.store, opts...)
	e.sweeper = renewal.New(e.engine,
		renewal.WithSchedule(e.config.RenewalSchedule),
		renewal.WithBatchSize(e.config.RenewalBatchSize),
		renewal.WithLogger(e.engine.Logger()),
	)
	return nil
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("patron: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	if !e.config.DisableRenewals {
		if err := e.sweeper.Start(); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension]. It waits for a running sweep before
// closing the store.
func (e *Extension) Stop(ctx context.Context) error {
	defer e.MarkStopped()

	var errs patron.MultiError
	if e.sweeper != nil {
		errs.Add(e.sweeper.Stop(ctx))
	}
	if e.engine != nil {
		errs.Add(e.engine.Stop())
	}
	if e.publisher != nil {
		errs.Add(e.publisher.Close())
	}
	return errs.ErrorOrNil()
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("patron: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildPatronOpts constructs patron.Option values from the resolved config.
func (e *Extension) buildPatronOpts() []patron.Option {
	opts := make([]patron.Option, 0, len(e.patronOpts)+4)

	if e.config.Period > 0 {
		opts = append(opts, patron.WithPeriod(e.config.Period))
	}
	if e.config.MaxRetries > 0 {
		opts = append(opts, patron.WithMaxRetries(e.config.MaxRetries))
	}
	if e.config.RetryInterval > 0 {
		opts = append(opts, patron.WithRetryInterval(e.config.RetryInterval))
	}
	if e.config.EscrowAccount != "" {
		opts = append(opts, patron.WithEscrowAccount(e.config.EscrowAccount))
	}

	// Append any pass-through patron options.
	opts = append(opts, e.patronOpts...)

	return opts
}

// buildPlugins returns the plugins enabled by config.
func (e *Extension) buildPlugins() ([]plugin.Plugin, error) {
	var plugins []plugin.Plugin

	if e.config.Metrics {
		factory := observability.NewPrometheusFactory(nil)
		plugins = append(plugins, observability.NewMetricsExtension(factory))
	}

	if e.config.Mirror.URL != "" {
		pub, err := mirror.ConnectNATS(e.config.Mirror.URL, slog.Default())
		if err != nil {
			return nil, err
		}
		e.publisher = pub
		plugins = append(plugins, mirror.New(pub, mirror.WithPrefix(e.config.Mirror.Prefix)))
	}

	return plugins, nil
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("patron: configuration is required but not found in config files; " +
				"ensure 'extensions.patron' or 'patron' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("patron: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("disable_renewals", e.config.DisableRenewals),
		forge.F("period", e.config.Period),
		forge.F("max_retries", e.config.MaxRetries),
		forge.F("retry_interval", e.config.RetryInterval),
		forge.F("renewal_schedule", e.config.RenewalSchedule),
		forge.F("store_driver", e.config.Store.Driver),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.patron", "patron"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("patron: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("patron: loaded config from file", forge.F("key", key))
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.EscrowAccount == "" {
		cfg.EscrowAccount = defaults.EscrowAccount
	}
	if cfg.RenewalSchedule == "" {
		cfg.RenewalSchedule = defaults.RenewalSchedule
	}
	if cfg.RenewalBatchSize == 0 {
		cfg.RenewalBatchSize = defaults.RenewalBatchSize
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = defaults.Store.Driver
	}
	if cfg.Store.Database == "" {
		cfg.Store.Database = defaults.Store.Database
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DisableRenewals {
		yamlConfig.DisableRenewals = true
	}
	if programmaticConfig.Metrics {
		yamlConfig.Metrics = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.EscrowAccount == "" {
		yamlConfig.EscrowAccount = programmaticConfig.EscrowAccount
	}
	if yamlConfig.RenewalSchedule == "" {
		yamlConfig.RenewalSchedule = programmaticConfig.RenewalSchedule
	}
	if yamlConfig.Store.Driver == "" {
		yamlConfig.Store = programmaticConfig.Store
	}
	if yamlConfig.Mirror.URL == "" {
		yamlConfig.Mirror = programmaticConfig.Mirror
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.Period == 0 {
		yamlConfig.Period = programmaticConfig.Period
	}
	if yamlConfig.MaxRetries == 0 {
		yamlConfig.MaxRetries = programmaticConfig.MaxRetries
	}
	if yamlConfig.RetryInterval == 0 {
		yamlConfig.RetryInterval = programmaticConfig.RetryInterval
	}
	if yamlConfig.RenewalBatchSize == 0 {
		yamlConfig.RenewalBatchSize = programmaticConfig.RenewalBatchSize
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
