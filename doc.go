// Package patron provides a recurring-billing ledger for creator
// subscriptions.
//
// Creators register a fee. Fans subscribe by prepaying one period. When the
// period lapses the ledger can renew unattended, retrying a bounded number
// of times before cancelling. Every money movement goes through a balance
// ledger with an append-only transfer journal, and every charge attempt is
// written to an append-only payment history.
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/patron"
//	    "github.com/xraph/patron/store/sqlite"
//	)
//
//	s, err := sqlite.Open(ctx, "patron.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	p := patron.New(s)
//	if err := p.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Stop()
//
// # Operations
//
// Creator registry:
//
//	p.RegisterCreator(ctx, "creator1", 1_000_000)
//	p.UpdateFee(ctx, "creator1", "creator1", 2_000_000)
//	p.Withdraw(ctx, "creator1", "creator1", 500_000)
//
// Subscriptions:
//
//	receipt, err := p.Subscribe(ctx, "creator1", "fan1", true)
//	receipt, err = p.ProcessAutoRenewal(ctx, "creator1", "fan1")
//	p.CancelAutoRenewal(ctx, "fan1", "creator1", "fan1")
//
// A failed renewal commits its state and still returns an error:
// ErrAutoRenewFailed while retries remain, ErrMaxRetriesExceeded when the
// subscription has been cancelled. Use IsPaymentFailure to tell these apart
// from calls that changed nothing.
//
// Queries never change state and derive status from the clock:
//
//	active, err := p.IsActiveSubscriber(ctx, "creator1", "fan1")
//	info, err := p.GetSubscriptionStatus(ctx, "creator1", "fan1")
//
// # Amounts
//
// Amounts are types.Micro, unsigned micro units of the native currency
// (1_000_000 micro = 1 major unit). Arithmetic is integer-only and checked.
//
// # Concurrency
//
// Mutating operations are serialized by the engine and each runs in a
// single store transaction. Readers see the state before or after an
// operation, never in between.
package patron
