package extension

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/patron"
	"github.com/xraph/patron/renewal"
	"github.com/xraph/patron/store/memory"
	"github.com/xraph/patron/types"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "cron descriptor", mutate: func(c *Config) { c.RenewalSchedule = "@daily" }},
		{name: "five field cron", mutate: func(c *Config) { c.RenewalSchedule = "*/15 * * * *" }},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Store = StoreConfig{Driver: "cassandra", DSN: "cassandra://x"} },
			wantErr: "Config.Store.Driver",
		},
		{
			name:    "driver without dsn",
			mutate:  func(c *Config) { c.Store.Driver = DriverPostgres },
			wantErr: "Config.Store.DSN",
		},
		{
			name:    "bad schedule",
			mutate:  func(c *Config) { c.RenewalSchedule = "whenever" },
			wantErr: "Config.RenewalSchedule",
		},
		{
			name:    "negative period",
			mutate:  func(c *Config) { c.Period = -time.Hour },
			wantErr: "Config.Period",
		},
		{
			name:    "batch too large",
			mutate:  func(c *Config) { c.RenewalBatchSize = 1_000_000 },
			wantErr: "Config.RenewalBatchSize",
		},
		{
			name:    "mirror url",
			mutate:  func(c *Config) { c.Mirror.URL = "not a url" },
			wantErr: "Config.Mirror.URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, patron.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMergeConfigurations(t *testing.T) {
	e := New()

	yaml := Config{
		RetryInterval: 72 * time.Hour,
		Store:         StoreConfig{Driver: DriverSQLite, DSN: "patron.db"},
	}
	programmatic := Config{
		DisableRenewals: true,
		RetryInterval:   time.Hour,
		MaxRetries:      5,
		Store:           StoreConfig{Driver: DriverPostgres, DSN: "postgres://x"},
	}

	got := e.mergeConfigurations(yaml, programmatic)
	assert.True(t, got.DisableRenewals)
	assert.Equal(t, 72*time.Hour, got.RetryInterval, "yaml wins")
	assert.Equal(t, uint32(5), got.MaxRetries, "programmatic fills gaps")
	assert.Equal(t, DriverSQLite, got.Store.Driver)
	assert.Equal(t, "patron", got.Store.Database)
	assert.Equal(t, renewal.DefaultSchedule, got.RenewalSchedule)
	assert.Equal(t, renewal.DefaultBatchSize, got.RenewalBatchSize)
	assert.Equal(t, patron.DefaultEscrowAccount, got.EscrowAccount)
}

func TestBuildWithSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "patron.db")

	e := New(
		WithStoreDriver(DriverSQLite, path),
		WithRetryInterval(24*time.Hour),
		WithMaxRetries(2),
	)
	e.config = e.mergeWithDefaults(e.config)
	require.NoError(t, e.build())
	t.Cleanup(func() { _ = e.Engine().Stop() })

	eng := e.Engine()
	require.NoError(t, eng.Start(ctx))
	require.NoError(t, e.Health(ctx))
	assert.Equal(t, 24*time.Hour, eng.RetryInterval())
	assert.Equal(t, uint32(2), eng.MaxRetries())
	require.NotNil(t, e.Sweeper())

	fee := types.MustParseMajor("2.5")
	_, err := eng.RegisterCreator(ctx, "alice", fee)
	require.NoError(t, err)
	_, err = eng.Deposit(ctx, "bob", fee)
	require.NoError(t, err)
	receipt, err := eng.Subscribe(ctx, "alice", "bob", true)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), receipt.PaymentID)

	report, err := e.Sweeper().RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Due)
}

func TestBuildKeepsProvidedStore(t *testing.T) {
	s := memory.New()
	e := New(WithStore(s), WithMetrics(), WithStoreDriver(DriverPostgres, "postgres://unused"))
	e.config = e.mergeWithDefaults(e.config)

	require.NoError(t, e.build())
	assert.Same(t, s, e.Engine().Store())
	assert.NotNil(t, e.Engine().Plugins().Get("observability-metrics"))
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	e := New(WithRenewalSchedule("sometimes"))
	e.config = e.mergeWithDefaults(e.config)

	err := e.build()
	require.Error(t, err)
	var multi patron.MultiError
	assert.True(t, errors.As(err, &multi))
	assert.Nil(t, e.Engine())
}

func TestHealthWithoutStore(t *testing.T) {
	require.Error(t, New().Health(context.Background()))
}
