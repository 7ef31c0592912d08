// Package store defines the composite persistence contract for patron.
package store

import (
	"context"

	"github.com/xraph/patron/account"
	"github.com/xraph/patron/creator"
	"github.com/xraph/patron/payment"
	"github.com/xraph/patron/subscription"
)

// TxFunc runs against a transactional view of the store.
type TxFunc func(ctx context.Context, tx Store) error

// Store is the unified storage interface for all patron records. The
// per-domain interfaces use prefixed method names so they embed without
// conflicts.
type Store interface {
	account.Store
	creator.Store
	subscription.Store
	payment.Store

	// Atomic runs fn in a transaction. Every write made through tx commits
	// together when fn returns nil and none commit otherwise. Calls on the
	// tx store must use the ctx handed to fn.
	Atomic(ctx context.Context, fn TxFunc) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
