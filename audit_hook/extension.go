// Package audithook bridges Patron lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit store. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/patron/account"
	"github.com/xraph/patron/creator"
	"github.com/xraph/patron/entitlement"
	"github.com/xraph/patron/payment"
	"github.com/xraph/patron/plugin"
	"github.com/xraph/patron/subscription"
	"github.com/xraph/patron/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                      = (*Extension)(nil)
	_ plugin.OnCreatorRegistered         = (*Extension)(nil)
	_ plugin.OnFeeUpdated                = (*Extension)(nil)
	_ plugin.OnAutoRenewalDefaultChanged = (*Extension)(nil)
	_ plugin.OnWithdrawal                = (*Extension)(nil)
	_ plugin.OnSubscribed                = (*Extension)(nil)
	_ plugin.OnRenewed                   = (*Extension)(nil)
	_ plugin.OnRenewalFailed             = (*Extension)(nil)
	_ plugin.OnSubscriptionCancelled     = (*Extension)(nil)
	_ plugin.OnAutoRenewalCancelled      = (*Extension)(nil)
	_ plugin.OnEntitlementChecked        = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a single entry in the audit trail.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Patron lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Creator lifecycle hooks
// ──────────────────────────────────────────────────

// OnCreatorRegistered implements plugin.OnCreatorRegistered.
func (e *Extension) OnCreatorRegistered(ctx context.Context, c *creator.Creator) error {
	return e.record(ctx, ActionCreatorRegistered, SeverityInfo, OutcomeSuccess,
		ResourceCreator, c.ID, CategoryBilling, nil,
		"fee", c.Fee.String(),
	)
}

// OnFeeUpdated implements plugin.OnFeeUpdated.
func (e *Extension) OnFeeUpdated(ctx context.Context, c *creator.Creator, oldFee types.Micro) error {
	return e.record(ctx, ActionCreatorFeeUpdated, SeverityInfo, OutcomeSuccess,
		ResourceCreator, c.ID, CategoryBilling, nil,
		"old_fee", oldFee.String(),
		"fee", c.Fee.String(),
	)
}

// OnAutoRenewalDefaultChanged implements plugin.OnAutoRenewalDefaultChanged.
func (e *Extension) OnAutoRenewalDefaultChanged(ctx context.Context, c *creator.Creator) error {
	return e.record(ctx, ActionCreatorAutoRenewalDefault, SeverityInfo, OutcomeSuccess,
		ResourceCreator, c.ID, CategoryBilling, nil,
		"auto_renewal_default", c.AutoRenewalDefault,
	)
}

// OnWithdrawal implements plugin.OnWithdrawal.
func (e *Extension) OnWithdrawal(ctx context.Context, c *creator.Creator, t *account.Transfer) error {
	return e.record(ctx, ActionCreatorWithdrawal, SeverityInfo, OutcomeSuccess,
		ResourceCreator, c.ID, CategoryPayment, nil,
		"transfer_id", t.ID.String(),
		"amount", t.Amount.String(),
		"balance", c.Balance.String(),
	)
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscribed implements plugin.OnSubscribed.
func (e *Extension) OnSubscribed(ctx context.Context, sub *subscription.Subscription, pe *payment.Entry) error {
	return e.record(ctx, ActionSubscriptionStarted, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		subscriptionMeta(sub, pe)...,
	)
}

// OnRenewed implements plugin.OnRenewed.
func (e *Extension) OnRenewed(ctx context.Context, sub *subscription.Subscription, pe *payment.Entry) error {
	return e.record(ctx, ActionSubscriptionRenewed, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		subscriptionMeta(sub, pe)...,
	)
}

// OnRenewalFailed implements plugin.OnRenewalFailed.
func (e *Extension) OnRenewalFailed(ctx context.Context, sub *subscription.Subscription, pe *payment.Entry) error {
	meta := append(subscriptionMeta(sub, pe), "attempts", sub.PaymentAttempts)
	return e.record(ctx, ActionSubscriptionRenewalFailed, SeverityWarning, OutcomeFailure,
		ResourceSubscription, sub.ID.String(), CategoryPayment, nil,
		meta...,
	)
}

// OnSubscriptionCancelled implements plugin.OnSubscriptionCancelled.
func (e *Extension) OnSubscriptionCancelled(ctx context.Context, sub *subscription.Subscription, pe *payment.Entry) error {
	meta := append(subscriptionMeta(sub, pe), "attempts", sub.PaymentAttempts)
	return e.record(ctx, ActionSubscriptionCancelled, SeverityCritical, OutcomeFailure,
		ResourceSubscription, sub.ID.String(), CategorySubscription,
		fmt.Errorf("renewal retries exhausted after %d attempts", sub.PaymentAttempts),
		meta...,
	)
}

// OnAutoRenewalCancelled implements plugin.OnAutoRenewalCancelled.
func (e *Extension) OnAutoRenewalCancelled(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionAutoRenewalCancelled, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		"creator_id", sub.CreatorID,
		"fan_id", sub.FanID,
		"expires_at", sub.ExpiresAt,
	)
}

// ──────────────────────────────────────────────────
// Entitlement lifecycle hooks
// ──────────────────────────────────────────────────

// OnEntitlementChecked implements plugin.OnEntitlementChecked.
// Only denied checks are audited.
func (e *Extension) OnEntitlementChecked(ctx context.Context, r *entitlement.Result) error {
	if r.Allowed {
		return nil
	}
	return e.record(ctx, ActionEntitlementDenied, SeverityInfo, OutcomeFailure,
		ResourceEntitlement, r.CreatorID, CategoryAccess, nil,
		"fan_id", r.FanID,
		"status", string(r.Status),
		"reason", r.Reason,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func subscriptionMeta(sub *subscription.Subscription, pe *payment.Entry) []any {
	return []any{
		"creator_id", sub.CreatorID,
		"fan_id", sub.FanID,
		"payment_id", pe.ID,
		"amount", pe.Amount.String(),
		"expires_at", sub.ExpiresAt,
	}
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
