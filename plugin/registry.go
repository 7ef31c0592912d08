package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/patron/account"
	"github.com/xraph/patron/creator"
	"github.com/xraph/patron/entitlement"
	"github.com/xraph/patron/payment"
	"github.com/xraph/patron/subscription"
	"github.com/xraph/patron/types"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages registered plugins and dispatches events to the hooks
// each one implements. Hook lists are resolved once at registration.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for dispatch
	onInit                      []OnInit
	onShutdown                  []OnShutdown
	onCreatorRegistered         []OnCreatorRegistered
	onFeeUpdated                []OnFeeUpdated
	onAutoRenewalDefaultChanged []OnAutoRenewalDefaultChanged
	onWithdrawal                []OnWithdrawal
	onSubscribed                []OnSubscribed
	onRenewed                   []OnRenewed
	onRenewalFailed             []OnRenewalFailed
	onSubscriptionCancelled     []OnSubscriptionCancelled
	onAutoRenewalCancelled      []OnAutoRenewalCancelled
	onPaymentRecorded           []OnPaymentRecorded
	onTransfer                  []OnTransfer
	onEntitlementChecked        []OnEntitlementChecked
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook call timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its hooks.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	var hooks []string
	cache := func(ok bool, name string, add func()) {
		if ok {
			add()
			hooks = append(hooks, name)
		}
	}

	v1, ok := p.(OnInit)
	cache(ok, "OnInit", func() { r.onInit = append(r.onInit, v1) })
	v2, ok := p.(OnShutdown)
	cache(ok, "OnShutdown", func() { r.onShutdown = append(r.onShutdown, v2) })
	v3, ok := p.(OnCreatorRegistered)
	cache(ok, "OnCreatorRegistered", func() { r.onCreatorRegistered = append(r.onCreatorRegistered, v3) })
	v4, ok := p.(OnFeeUpdated)
	cache(ok, "OnFeeUpdated", func() { r.onFeeUpdated = append(r.onFeeUpdated, v4) })
	v5, ok := p.(OnAutoRenewalDefaultChanged)
	cache(ok, "OnAutoRenewalDefaultChanged", func() {
		r.onAutoRenewalDefaultChanged = append(r.onAutoRenewalDefaultChanged, v5)
	})
	v6, ok := p.(OnWithdrawal)
	cache(ok, "OnWithdrawal", func() { r.onWithdrawal = append(r.onWithdrawal, v6) })
	v7, ok := p.(OnSubscribed)
	cache(ok, "OnSubscribed", func() { r.onSubscribed = append(r.onSubscribed, v7) })
	v8, ok := p.(OnRenewed)
	cache(ok, "OnRenewed", func() { r.onRenewed = append(r.onRenewed, v8) })
	v9, ok := p.(OnRenewalFailed)
	cache(ok, "OnRenewalFailed", func() { r.onRenewalFailed = append(r.onRenewalFailed, v9) })
	v10, ok := p.(OnSubscriptionCancelled)
	cache(ok, "OnSubscriptionCancelled", func() {
		r.onSubscriptionCancelled = append(r.onSubscriptionCancelled, v10)
	})
	v11, ok := p.(OnAutoRenewalCancelled)
	cache(ok, "OnAutoRenewalCancelled", func() {
		r.onAutoRenewalCancelled = append(r.onAutoRenewalCancelled, v11)
	})
	v12, ok := p.(OnPaymentRecorded)
	cache(ok, "OnPaymentRecorded", func() { r.onPaymentRecorded = append(r.onPaymentRecorded, v12) })
	v13, ok := p.(OnTransfer)
	cache(ok, "OnTransfer", func() { r.onTransfer = append(r.onTransfer, v13) })
	v14, ok := p.(OnEntitlementChecked)
	cache(ok, "OnEntitlementChecked", func() { r.onEntitlementChecked = append(r.onEntitlementChecked, v14) })

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"hooks", hooks,
	)

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	emit(ctx, r, "OnInit", &r.onInit, func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", &r.onShutdown, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitCreatorRegistered emits a creator registered event.
func (r *Registry) EmitCreatorRegistered(ctx context.Context, c *creator.Creator) {
	emit(ctx, r, "OnCreatorRegistered", &r.onCreatorRegistered, func(p OnCreatorRegistered) error {
		return p.OnCreatorRegistered(ctx, c)
	})
}

// EmitFeeUpdated emits a fee updated event.
func (r *Registry) EmitFeeUpdated(ctx context.Context, c *creator.Creator, oldFee types.Micro) {
	emit(ctx, r, "OnFeeUpdated", &r.onFeeUpdated, func(p OnFeeUpdated) error {
		return p.OnFeeUpdated(ctx, c, oldFee)
	})
}

// EmitAutoRenewalDefaultChanged emits an auto-renew preference event.
func (r *Registry) EmitAutoRenewalDefaultChanged(ctx context.Context, c *creator.Creator) {
	emit(ctx, r, "OnAutoRenewalDefaultChanged", &r.onAutoRenewalDefaultChanged,
		func(p OnAutoRenewalDefaultChanged) error {
			return p.OnAutoRenewalDefaultChanged(ctx, c)
		})
}

// EmitWithdrawal emits a creator withdrawal event.
func (r *Registry) EmitWithdrawal(ctx context.Context, c *creator.Creator, t *account.Transfer) {
	emit(ctx, r, "OnWithdrawal", &r.onWithdrawal, func(p OnWithdrawal) error {
		return p.OnWithdrawal(ctx, c, t)
	})
}

// EmitSubscribed emits a subscription started event.
func (r *Registry) EmitSubscribed(ctx context.Context, sub *subscription.Subscription, e *payment.Entry) {
	emit(ctx, r, "OnSubscribed", &r.onSubscribed, func(p OnSubscribed) error {
		return p.OnSubscribed(ctx, sub, e)
	})
}

// EmitRenewed emits a successful renewal event.
func (r *Registry) EmitRenewed(ctx context.Context, sub *subscription.Subscription, e *payment.Entry) {
	emit(ctx, r, "OnRenewed", &r.onRenewed, func(p OnRenewed) error {
		return p.OnRenewed(ctx, sub, e)
	})
}

// EmitRenewalFailed emits a failed renewal event.
func (r *Registry) EmitRenewalFailed(ctx context.Context, sub *subscription.Subscription, e *payment.Entry) {
	emit(ctx, r, "OnRenewalFailed", &r.onRenewalFailed, func(p OnRenewalFailed) error {
		return p.OnRenewalFailed(ctx, sub, e)
	})
}

// EmitSubscriptionCancelled emits a retries-exhausted cancellation event.
func (r *Registry) EmitSubscriptionCancelled(ctx context.Context, sub *subscription.Subscription, e *payment.Entry) {
	emit(ctx, r, "OnSubscriptionCancelled", &r.onSubscriptionCancelled, func(p OnSubscriptionCancelled) error {
		return p.OnSubscriptionCancelled(ctx, sub, e)
	})
}

// EmitAutoRenewalCancelled emits an auto-renewal cancelled event.
func (r *Registry) EmitAutoRenewalCancelled(ctx context.Context, sub *subscription.Subscription) {
	emit(ctx, r, "OnAutoRenewalCancelled", &r.onAutoRenewalCancelled, func(p OnAutoRenewalCancelled) error {
		return p.OnAutoRenewalCancelled(ctx, sub)
	})
}

// EmitPaymentRecorded emits a payment history event.
func (r *Registry) EmitPaymentRecorded(ctx context.Context, e *payment.Entry) {
	emit(ctx, r, "OnPaymentRecorded", &r.onPaymentRecorded, func(p OnPaymentRecorded) error {
		return p.OnPaymentRecorded(ctx, e)
	})
}

// EmitTransfer emits an account ledger transfer event.
func (r *Registry) EmitTransfer(ctx context.Context, t *account.Transfer) {
	if t == nil {
		return
	}
	emit(ctx, r, "OnTransfer", &r.onTransfer, func(p OnTransfer) error {
		return p.OnTransfer(ctx, t)
	})
}

// EmitEntitlementChecked emits an access check event.
func (r *Registry) EmitEntitlementChecked(ctx context.Context, result *entitlement.Result) {
	emit(ctx, r, "OnEntitlementChecked", &r.onEntitlementChecked, func(p OnEntitlementChecked) error {
		return p.OnEntitlementChecked(ctx, result)
	})
}

// emit snapshots the cached hook list under the read lock and calls each
// hook in registration order.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, list *[]T, call func(T) error) {
	r.mu.RLock()
	plugins := *list
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return call(p)
		}); err != nil {
			r.logger.Warn("plugin hook failed",
				"plugin", p.Name(),
				"hook", hook,
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the billing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
