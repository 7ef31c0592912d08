// Package observability provides a metrics extension for Patron that records
// billing lifecycle counts through a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/patron/account"
	"github.com/xraph/patron/creator"
	"github.com/xraph/patron/entitlement"
	"github.com/xraph/patron/payment"
	"github.com/xraph/patron/plugin"
	"github.com/xraph/patron/subscription"
	"github.com/xraph/patron/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                  = (*MetricsExtension)(nil)
	_ plugin.OnInit                  = (*MetricsExtension)(nil)
	_ plugin.OnCreatorRegistered     = (*MetricsExtension)(nil)
	_ plugin.OnFeeUpdated            = (*MetricsExtension)(nil)
	_ plugin.OnWithdrawal            = (*MetricsExtension)(nil)
	_ plugin.OnSubscribed            = (*MetricsExtension)(nil)
	_ plugin.OnRenewed               = (*MetricsExtension)(nil)
	_ plugin.OnRenewalFailed         = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCancelled = (*MetricsExtension)(nil)
	_ plugin.OnAutoRenewalCancelled  = (*MetricsExtension)(nil)
	_ plugin.OnPaymentRecorded       = (*MetricsExtension)(nil)
	_ plugin.OnTransfer              = (*MetricsExtension)(nil)
	_ plugin.OnEntitlementChecked    = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide billing metrics.
// Register it as a Patron plugin to track them automatically.
type MetricsExtension struct {
	factory MetricFactory

	// Creator metrics
	CreatorRegistered Counter
	FeeUpdated        Counter
	Withdrawals       Counter
	WithdrawalAmount  Histogram

	// Subscription metrics
	SubscriptionStarted   Counter
	SubscriptionRenewed   Counter
	RenewalFailed         Counter
	SubscriptionCancelled Counter
	AutoRenewalCancelled  Counter

	// Payment metrics
	PaymentsSucceeded Counter
	PaymentsFailed    Counter
	PaymentAmount     Histogram
	TransfersRecorded Counter

	// Entitlement metrics
	EntitlementChecks Counter
	EntitlementDenied Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		CreatorRegistered: factory.Counter("patron.creator.registered"),
		FeeUpdated:        factory.Counter("patron.creator.fee_updated"),
		Withdrawals:       factory.Counter("patron.creator.withdrawals"),
		WithdrawalAmount:  factory.Histogram("patron.creator.withdrawal_amount"),

		SubscriptionStarted:   factory.Counter("patron.subscription.started"),
		SubscriptionRenewed:   factory.Counter("patron.subscription.renewed"),
		RenewalFailed:         factory.Counter("patron.subscription.renewal_failed"),
		SubscriptionCancelled: factory.Counter("patron.subscription.cancelled"),
		AutoRenewalCancelled:  factory.Counter("patron.subscription.auto_renewal_cancelled"),

		PaymentsSucceeded: factory.Counter("patron.payment.succeeded"),
		PaymentsFailed:    factory.Counter("patron.payment.failed"),
		PaymentAmount:     factory.Histogram("patron.payment.amount"),
		TransfersRecorded: factory.Counter("patron.account.transfers"),

		EntitlementChecks: factory.Counter("patron.entitlement.checks"),
		EntitlementDenied: factory.Counter("patron.entitlement.denied"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Creator lifecycle hooks
// ──────────────────────────────────────────────────

// OnCreatorRegistered implements plugin.OnCreatorRegistered.
func (m *MetricsExtension) OnCreatorRegistered(_ context.Context, _ *creator.Creator) error {
	m.CreatorRegistered.Inc()
	return nil
}

// OnFeeUpdated implements plugin.OnFeeUpdated.
func (m *MetricsExtension) OnFeeUpdated(_ context.Context, _ *creator.Creator, _ types.Micro) error {
	m.FeeUpdated.Inc()
	return nil
}

// OnWithdrawal implements plugin.OnWithdrawal.
func (m *MetricsExtension) OnWithdrawal(_ context.Context, _ *creator.Creator, t *account.Transfer) error {
	m.Withdrawals.Inc()
	m.WithdrawalAmount.Observe(major(t.Amount))
	return nil
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscribed implements plugin.OnSubscribed.
func (m *MetricsExtension) OnSubscribed(_ context.Context, _ *subscription.Subscription, _ *payment.Entry) error {
	m.SubscriptionStarted.Inc()
	return nil
}

// OnRenewed implements plugin.OnRenewed.
func (m *MetricsExtension) OnRenewed(_ context.Context, _ *subscription.Subscription, _ *payment.Entry) error {
	m.SubscriptionRenewed.Inc()
	return nil
}

// OnRenewalFailed implements plugin.OnRenewalFailed.
func (m *MetricsExtension) OnRenewalFailed(_ context.Context, _ *subscription.Subscription, _ *payment.Entry) error {
	m.RenewalFailed.Inc()
	return nil
}

// OnSubscriptionCancelled implements plugin.OnSubscriptionCancelled.
func (m *MetricsExtension) OnSubscriptionCancelled(_ context.Context, _ *subscription.Subscription, _ *payment.Entry) error {
	m.SubscriptionCancelled.Inc()
	return nil
}

// OnAutoRenewalCancelled implements plugin.OnAutoRenewalCancelled.
func (m *MetricsExtension) OnAutoRenewalCancelled(_ context.Context, _ *subscription.Subscription) error {
	m.AutoRenewalCancelled.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Payment lifecycle hooks
// ──────────────────────────────────────────────────

// OnPaymentRecorded implements plugin.OnPaymentRecorded.
func (m *MetricsExtension) OnPaymentRecorded(_ context.Context, e *payment.Entry) error {
	if !e.Succeeded() {
		m.PaymentsFailed.Inc()
		return nil
	}
	m.PaymentsSucceeded.Inc()
	m.PaymentAmount.Observe(major(e.Amount))
	return nil
}

// OnTransfer implements plugin.OnTransfer.
func (m *MetricsExtension) OnTransfer(_ context.Context, _ *account.Transfer) error {
	m.TransfersRecorded.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Entitlement lifecycle hooks
// ──────────────────────────────────────────────────

// OnEntitlementChecked implements plugin.OnEntitlementChecked.
func (m *MetricsExtension) OnEntitlementChecked(_ context.Context, r *entitlement.Result) error {
	m.EntitlementChecks.Inc()
	if !r.Allowed {
		m.EntitlementDenied.Inc()
	}
	return nil
}

func major(amount types.Micro) float64 {
	return amount.Major().InexactFloat64()
}
