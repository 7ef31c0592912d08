// Package mirror publishes post-commit snapshots of patron records so that
// read-side services can maintain their own copy of the ledger.
//
// Each event is a JSON document published on "<prefix>.<kind>", for example
// "patron.subscription". Events are best-effort: a failed publish is logged
// by the plugin registry and never rolls back the operation.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/patron/account"
	"github.com/xraph/patron/creator"
	"github.com/xraph/patron/id"
	"github.com/xraph/patron/payment"
	"github.com/xraph/patron/plugin"
	"github.com/xraph/patron/subscription"
	"github.com/xraph/patron/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                      = (*Extension)(nil)
	_ plugin.OnShutdown                  = (*Extension)(nil)
	_ plugin.OnCreatorRegistered         = (*Extension)(nil)
	_ plugin.OnFeeUpdated                = (*Extension)(nil)
	_ plugin.OnAutoRenewalDefaultChanged = (*Extension)(nil)
	_ plugin.OnWithdrawal                = (*Extension)(nil)
	_ plugin.OnSubscribed                = (*Extension)(nil)
	_ plugin.OnRenewed                   = (*Extension)(nil)
	_ plugin.OnRenewalFailed             = (*Extension)(nil)
	_ plugin.OnSubscriptionCancelled     = (*Extension)(nil)
	_ plugin.OnAutoRenewalCancelled      = (*Extension)(nil)
	_ plugin.OnPaymentRecorded           = (*Extension)(nil)
	_ plugin.OnTransfer                  = (*Extension)(nil)
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "patron"

// Kind names the record type carried by an event.
type Kind string

const (
	KindCreator      Kind = "creator"
	KindSubscription Kind = "subscription"
	KindPayment      Kind = "payment"
	KindTransfer     Kind = "transfer"
)

// Actions carried alongside the snapshot.
const (
	ActionCreatorRegistered    = "registered"
	ActionFeeUpdated           = "fee_updated"
	ActionAutoRenewalDefault   = "auto_renewal_default"
	ActionWithdrawal           = "withdrawal"
	ActionSubscribed           = "subscribed"
	ActionRenewed              = "renewed"
	ActionRenewalFailed        = "renewal_failed"
	ActionCancelled            = "cancelled"
	ActionAutoRenewalCancelled = "auto_renewal_cancelled"
	ActionRecorded             = "recorded"
)

// Event is the envelope published for every mirrored change.
type Event struct {
	ID         id.EventID      `json:"id"`
	Kind       Kind            `json:"kind"`
	Action     string          `json:"action"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// Publisher delivers encoded events to a message bus.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// PublisherFunc is an adapter to use a plain function as a Publisher.
type PublisherFunc func(ctx context.Context, subject string, data []byte) error

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, subject string, data []byte) error {
	return f(ctx, subject, data)
}

// Flusher is implemented by publishers that buffer writes.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Extension is a plugin that mirrors committed state to a Publisher.
type Extension struct {
	pub    Publisher
	prefix string
	kinds  map[Kind]bool // nil = all kinds
	clock  func() time.Time
	logger *slog.Logger
}

// New creates a mirror plugin publishing through pub.
func New(pub Publisher, opts ...Option) *Extension {
	e := &Extension{
		pub:    pub,
		prefix: DefaultPrefix,
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "mirror" }

// Subject returns the subject events of kind are published on.
func (e *Extension) Subject(kind Kind) string {
	return e.prefix + "." + string(kind)
}

// OnShutdown implements plugin.OnShutdown by flushing buffered events.
func (e *Extension) OnShutdown(ctx context.Context) error {
	if f, ok := e.pub.(Flusher); ok {
		return f.Flush(ctx)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Creator hooks
// ──────────────────────────────────────────────────

// OnCreatorRegistered implements plugin.OnCreatorRegistered.
func (e *Extension) OnCreatorRegistered(ctx context.Context, c *creator.Creator) error {
	return e.publish(ctx, KindCreator, ActionCreatorRegistered, c)
}

// OnFeeUpdated implements plugin.OnFeeUpdated.
func (e *Extension) OnFeeUpdated(ctx context.Context, c *creator.Creator, _ types.Micro) error {
	return e.publish(ctx, KindCreator, ActionFeeUpdated, c)
}

// OnAutoRenewalDefaultChanged implements plugin.OnAutoRenewalDefaultChanged.
func (e *Extension) OnAutoRenewalDefaultChanged(ctx context.Context, c *creator.Creator) error {
	return e.publish(ctx, KindCreator, ActionAutoRenewalDefault, c)
}

// OnWithdrawal implements plugin.OnWithdrawal. The transfer itself arrives
// through OnTransfer.
func (e *Extension) OnWithdrawal(ctx context.Context, c *creator.Creator, _ *account.Transfer) error {
	return e.publish(ctx, KindCreator, ActionWithdrawal, c)
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscribed implements plugin.OnSubscribed.
func (e *Extension) OnSubscribed(ctx context.Context, sub *subscription.Subscription, _ *payment.Entry) error {
	return e.publish(ctx, KindSubscription, ActionSubscribed, sub)
}

// OnRenewed implements plugin.OnRenewed.
func (e *Extension) OnRenewed(ctx context.Context, sub *subscription.Subscription, _ *payment.Entry) error {
	return e.publish(ctx, KindSubscription, ActionRenewed, sub)
}

// OnRenewalFailed implements plugin.OnRenewalFailed.
func (e *Extension) OnRenewalFailed(ctx context.Context, sub *subscription.Subscription, _ *payment.Entry) error {
	return e.publish(ctx, KindSubscription, ActionRenewalFailed, sub)
}

// OnSubscriptionCancelled implements plugin.OnSubscriptionCancelled.
func (e *Extension) OnSubscriptionCancelled(ctx context.Context, sub *subscription.Subscription, _ *payment.Entry) error {
	return e.publish(ctx, KindSubscription, ActionCancelled, sub)
}

// OnAutoRenewalCancelled implements plugin.OnAutoRenewalCancelled.
func (e *Extension) OnAutoRenewalCancelled(ctx context.Context, sub *subscription.Subscription) error {
	return e.publish(ctx, KindSubscription, ActionAutoRenewalCancelled, sub)
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnPaymentRecorded implements plugin.OnPaymentRecorded.
func (e *Extension) OnPaymentRecorded(ctx context.Context, entry *payment.Entry) error {
	return e.publish(ctx, KindPayment, ActionRecorded, entry)
}

// OnTransfer implements plugin.OnTransfer.
func (e *Extension) OnTransfer(ctx context.Context, t *account.Transfer) error {
	return e.publish(ctx, KindTransfer, string(t.Kind), t)
}

func (e *Extension) publish(ctx context.Context, kind Kind, action string, record any) error {
	if e.kinds != nil && !e.kinds[kind] {
		return nil
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("mirror: encode %s: %w", kind, err)
	}
	evt := Event{
		ID:         id.NewEventID(),
		Kind:       kind,
		Action:     action,
		OccurredAt: e.clock().UTC(),
		Data:       data,
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("mirror: encode event: %w", err)
	}

	subject := e.Subject(kind)
	if err := e.pub.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("mirror: publish %s: %w", subject, err)
	}
	e.logger.Debug("mirror event published",
		"subject", subject,
		"action", action,
		"event_id", evt.ID.String(),
	)
	return nil
}
