package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/patron"
	"github.com/xraph/patron/store"
	"github.com/xraph/patron/store/sqlite"
	"github.com/xraph/patron/store/storetest"
)

func openTemp(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()
	s, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "patron.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return openTemp(t)
	})
}

func TestMigrationsRegistered(t *testing.T) {
	assert.Equal(t, "patron", sqlite.Migrations.Name())

	migrations := sqlite.Migrations.Migrations()
	require.Len(t, migrations, 4)
	for _, m := range migrations {
		assert.Equal(t, "patron", m.Group, m.Name)
		assert.NotNil(t, m.Up, m.Name)
		assert.NotNil(t, m.Down, m.Name)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	defer s.Close()

	insert := `INSERT INTO patron_accounts (id, balance, created_at, updated_at) VALUES ('fan1', 0, 0, 0)`
	_, err := sqlitedriver.Unwrap(s.DB()).NewRaw(insert).Exec(ctx)
	require.NoError(t, err)

	_, err = sqlitedriver.Unwrap(s.DB()).NewRaw(insert).Exec(ctx)
	require.Error(t, err)
	assert.True(t, sqlite.IsUniqueViolation(err))
	assert.False(t, sqlite.IsUniqueViolation(errors.New("boom")))
	assert.False(t, sqlite.IsUniqueViolation(nil))
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTemp(t)
	defer s.Close()

	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
}

func TestEngineSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "patron.db")
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	s, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	p := patron.New(s, patron.WithClock(clock))
	require.NoError(t, p.Start(ctx))

	_, err = p.RegisterCreator(ctx, "creator1", 1_000_000)
	require.NoError(t, err)
	_, err = p.Deposit(ctx, "fan1", 1_000_000)
	require.NoError(t, err)
	_, err = p.Subscribe(ctx, "creator1", "fan1", true)
	require.NoError(t, err)
	require.NoError(t, p.Stop())

	s, err = sqlite.Open(ctx, path)
	require.NoError(t, err)
	p = patron.New(s, patron.WithClock(clock))
	require.NoError(t, p.Start(ctx))
	defer p.Stop()

	active, err := p.IsActiveSubscriber(ctx, "creator1", "fan1")
	require.NoError(t, err)
	assert.True(t, active)

	now = now.Add(patron.DefaultPeriod)
	r, err := p.ProcessAutoRenewal(ctx, "creator1", "fan1")
	require.True(t, errors.Is(err, patron.ErrAutoRenewFailed))
	assert.Equal(t, uint64(1), r.PaymentID)

	_, err = p.RegisterCreator(ctx, "creator1", 1)
	require.ErrorIs(t, err, patron.ErrDuplicateCreator)
}
