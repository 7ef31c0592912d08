package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Patron store.
var Migrations = migrate.NewGroup("patron")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_patron_accounts",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS patron_accounts (
    id         TEXT PRIMARY KEY,
    balance    BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS patron_transfers (
    id           TEXT PRIMARY KEY,
    from_account TEXT NOT NULL DEFAULT '',
    to_account   TEXT NOT NULL,
    amount       BIGINT NOT NULL CHECK (amount > 0),
    kind         TEXT NOT NULL,
    created_at   BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_patron_transfers_from ON patron_transfers (from_account, created_at);
CREATE INDEX IF NOT EXISTS idx_patron_transfers_to ON patron_transfers (to_account, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS patron_transfers;
DROP TABLE IF EXISTS patron_accounts;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_patron_creators",
			Version: "20260101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS patron_creators (
    id                   TEXT PRIMARY KEY,
    fee                  BIGINT NOT NULL CHECK (fee > 0),
    total_earning        BIGINT NOT NULL DEFAULT 0,
    balance              BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
    auto_renewal_default BOOLEAN NOT NULL DEFAULT FALSE,
    total_subscribers    BIGINT NOT NULL DEFAULT 0,
    created_at           BIGINT NOT NULL,
    updated_at           BIGINT NOT NULL,
    CHECK (balance <= total_earning)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS patron_creators`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_patron_subscriptions",
			Version: "20260101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS patron_subscriptions (
    creator_id       TEXT NOT NULL,
    fan_id           TEXT NOT NULL,
    id               TEXT NOT NULL,
    started_at       BIGINT NOT NULL,
    expires_at       BIGINT NOT NULL,
    auto_renew       BOOLEAN NOT NULL DEFAULT FALSE,
    payment_attempts BIGINT NOT NULL DEFAULT 0,
    next_retry_at    BIGINT NOT NULL,
    cancelled_at     BIGINT,
    last_payment_id  BIGINT NOT NULL DEFAULT 0,
    created_at       BIGINT NOT NULL,
    updated_at       BIGINT NOT NULL,
    PRIMARY KEY (creator_id, fan_id)
);

CREATE INDEX IF NOT EXISTS idx_patron_subscriptions_fan ON patron_subscriptions (fan_id, creator_id);
CREATE INDEX IF NOT EXISTS idx_patron_subscriptions_due
    ON patron_subscriptions (next_retry_at, creator_id, fan_id)
    WHERE auto_renew AND cancelled_at IS NULL;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS patron_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_patron_payments",
			Version: "20260101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS patron_payments (
    id         BIGINT PRIMARY KEY CHECK (id >= 0),
    reference  TEXT NOT NULL UNIQUE,
    creator_id TEXT NOT NULL,
    fan_id     TEXT NOT NULL,
    amount     BIGINT NOT NULL,
    outcome    TEXT NOT NULL,
    kind       TEXT NOT NULL,
    created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_patron_payments_creator ON patron_payments (creator_id, id);
CREATE INDEX IF NOT EXISTS idx_patron_payments_fan ON patron_payments (fan_id, id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS patron_payments`)
				return err
			},
		},
	)
}
