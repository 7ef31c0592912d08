// Package plugin provides lifecycle hooks for patron. Hooks run after the
// operation that triggered them has committed; their errors are logged and
// never affect the operation.
package plugin

import (
	"context"

	"github.com/xraph/patron/account"
	"github.com/xraph/patron/creator"
	"github.com/xraph/patron/entitlement"
	"github.com/xraph/patron/payment"
	"github.com/xraph/patron/subscription"
	"github.com/xraph/patron/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. engine is the *patron.Patron.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Creator registry hooks
// ──────────────────────────────────────────────────

// OnCreatorRegistered is called after a creator registers.
type OnCreatorRegistered interface {
	Plugin
	OnCreatorRegistered(ctx context.Context, c *creator.Creator) error
}

// OnFeeUpdated is called after a creator changes their fee.
type OnFeeUpdated interface {
	Plugin
	OnFeeUpdated(ctx context.Context, c *creator.Creator, oldFee types.Micro) error
}

// OnAutoRenewalDefaultChanged is called after a creator changes their
// default auto-renew preference.
type OnAutoRenewalDefaultChanged interface {
	Plugin
	OnAutoRenewalDefaultChanged(ctx context.Context, c *creator.Creator) error
}

// OnWithdrawal is called after a creator withdraws from their balance.
type OnWithdrawal interface {
	Plugin
	OnWithdrawal(ctx context.Context, c *creator.Creator, t *account.Transfer) error
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscribed is called after a fan starts a new subscription term.
type OnSubscribed interface {
	Plugin
	OnSubscribed(ctx context.Context, sub *subscription.Subscription, e *payment.Entry) error
}

// OnRenewed is called after a successful unattended renewal.
type OnRenewed interface {
	Plugin
	OnRenewed(ctx context.Context, sub *subscription.Subscription, e *payment.Entry) error
}

// OnRenewalFailed is called after a renewal attempt the fan could not pay.
type OnRenewalFailed interface {
	Plugin
	OnRenewalFailed(ctx context.Context, sub *subscription.Subscription, e *payment.Entry) error
}

// OnSubscriptionCancelled is called when exhausted retries cancel a
// subscription.
type OnSubscriptionCancelled interface {
	Plugin
	OnSubscriptionCancelled(ctx context.Context, sub *subscription.Subscription, e *payment.Entry) error
}

// OnAutoRenewalCancelled is called after a fan turns off auto-renewal.
type OnAutoRenewalCancelled interface {
	Plugin
	OnAutoRenewalCancelled(ctx context.Context, sub *subscription.Subscription) error
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnPaymentRecorded is called for every payment history entry.
type OnPaymentRecorded interface {
	Plugin
	OnPaymentRecorded(ctx context.Context, e *payment.Entry) error
}

// OnTransfer is called for every committed account ledger transfer.
type OnTransfer interface {
	Plugin
	OnTransfer(ctx context.Context, t *account.Transfer) error
}

// ──────────────────────────────────────────────────
// Access hooks
// ──────────────────────────────────────────────────

// OnEntitlementChecked is called after a gateway access check.
type OnEntitlementChecked interface {
	Plugin
	OnEntitlementChecked(ctx context.Context, r *entitlement.Result) error
}
