package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xraph/grove/drivers/pgdriver"

	"github.com/xraph/patron/store"
	"github.com/xraph/patron/store/postgres"
	"github.com/xraph/patron/store/storetest"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, postgres.IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, postgres.IsUniqueViolation(fmt.Errorf("pgdriver: exec: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, postgres.IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, postgres.IsUniqueViolation(errors.New("23505")))
}

func TestMigrationsRegistered(t *testing.T) {
	assert.Equal(t, "patron", postgres.Migrations.Name())

	migrations := postgres.Migrations.Migrations()
	require.Len(t, migrations, 4)
	for _, m := range migrations {
		assert.Equal(t, "patron", m.Group, m.Name)
		assert.NotNil(t, m.Up, m.Name)
		assert.NotNil(t, m.Down, m.Name)
	}
}

// TestConformance runs the shared store suite against a live database when
// PATRON_POSTGRES_DSN is set.
func TestConformance(t *testing.T) {
	dsn := os.Getenv("PATRON_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PATRON_POSTGRES_DSN not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		s, err := postgres.Open(ctx, dsn)
		require.NoError(t, err)
		require.NoError(t, s.Migrate(ctx))
		_, err = pgdriver.Unwrap(s.DB()).NewRaw(
			`TRUNCATE patron_accounts, patron_transfers, patron_creators, patron_subscriptions, patron_payments`,
		).Exec(ctx)
		require.NoError(t, err)
		return s
	})
}
