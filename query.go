package patron

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/patron/creator"
	"github.com/xraph/patron/entitlement"
	"github.com/xraph/patron/payment"
	"github.com/xraph/patron/subscription"
)

const timeFormat = time.RFC3339

// ──────────────────────────────────────────────────
// Query Facade
// ──────────────────────────────────────────────────

// The methods below never change state. Subscription status is derived from
// the stored record and the engine clock on every call.

// GetCreator returns the registry record of creatorID.
func (p *Patron) GetCreator(ctx context.Context, creatorID string) (*creator.Creator, error) {
	return p.store.GetCreator(ctx, creatorID)
}

// ListCreators pages through registered creators.
func (p *Patron) ListCreators(ctx context.Context, opts creator.ListOpts) ([]*creator.Creator, error) {
	return p.store.ListCreators(ctx, opts)
}

// GetSubscriberInfo returns the stored subscription record of the pair.
func (p *Patron) GetSubscriberInfo(ctx context.Context, creatorID, fanID string) (*subscription.Subscription, error) {
	return p.store.GetSubscription(ctx, creatorID, fanID)
}

// IsActiveSubscriber reports whether fanID currently has access to
// creatorID. A pair without a record is not active.
func (p *Patron) IsActiveSubscriber(ctx context.Context, creatorID, fanID string) (bool, error) {
	info, err := p.GetSubscriptionStatus(ctx, creatorID, fanID)
	if err != nil {
		return false, err
	}
	return info.IsActive, nil
}

// GetSubscriptionStatus derives the status projection of the pair.
func (p *Patron) GetSubscriptionStatus(ctx context.Context, creatorID, fanID string) (subscription.Info, error) {
	sub, err := p.store.GetSubscription(ctx, creatorID, fanID)
	if errors.Is(err, ErrNoSubscription) {
		return subscription.Describe(nil, p.Now(), p.maxRetries), nil
	}
	if err != nil {
		return subscription.Info{}, err
	}
	return subscription.Describe(sub, p.Now(), p.maxRetries), nil
}

// GetPaymentHistory returns one payment history entry by ID.
func (p *Patron) GetPaymentHistory(ctx context.Context, paymentID uint64) (*payment.Entry, error) {
	return p.store.GetPayment(ctx, paymentID)
}

// ListPayments filters the payment history log.
func (p *Patron) ListPayments(ctx context.Context, opts payment.ListOpts) ([]*payment.Entry, error) {
	return p.store.ListPayments(ctx, opts)
}

// ListCreatorSubscribers returns the status of every fan that ever
// subscribed to creatorID.
func (p *Patron) ListCreatorSubscribers(ctx context.Context, creatorID string, opts subscription.ListOpts) ([]subscription.Info, error) {
	opts.CreatorID = creatorID
	return p.describeAll(ctx, opts)
}

// ListFanSubscriptions returns the status of every creator fanID ever
// subscribed to.
func (p *Patron) ListFanSubscriptions(ctx context.Context, fanID string, opts subscription.ListOpts) ([]subscription.Info, error) {
	opts.FanID = fanID
	return p.describeAll(ctx, opts)
}

// ListDueRenewals returns up to limit subscriptions ready for an
// unattended renewal attempt now, ordered by next retry time and then the
// (creator, fan) pair. Pass the Cursor of the last subscription seen to
// continue past it; the zero cursor starts from the beginning.
func (p *Patron) ListDueRenewals(ctx context.Context, after subscription.DueCursor, limit int) ([]*subscription.Subscription, error) {
	return p.store.ListDueRenewals(ctx, p.Now(), after, limit)
}

// Entitled answers a content gateway: may fanID see creatorID's
// subscriber-only content right now.
func (p *Patron) Entitled(ctx context.Context, creatorID, fanID string) (*entitlement.Result, error) {
	if _, err := p.store.GetCreator(ctx, creatorID); err != nil {
		if !errors.Is(err, ErrCreatorNotFound) {
			return nil, err
		}
		result := &entitlement.Result{
			CreatorID: creatorID,
			FanID:     fanID,
			Status:    subscription.StatusInactive,
			Reason:    entitlement.ReasonNoSuchCreator,
		}
		p.plugins.EmitEntitlementChecked(ctx, result)
		return result, nil
	}

	var result *entitlement.Result
	if creatorID == fanID {
		result = &entitlement.Result{
			Allowed:   true,
			CreatorID: creatorID,
			FanID:     fanID,
			Status:    subscription.StatusActive,
			Reason:    entitlement.ReasonSelfAccess,
		}
	} else {
		info, err := p.GetSubscriptionStatus(ctx, creatorID, fanID)
		if err != nil {
			return nil, err
		}
		result = entitlement.FromInfo(creatorID, fanID, info)
	}

	p.plugins.EmitEntitlementChecked(ctx, result)
	return result, nil
}

func (p *Patron) describeAll(ctx context.Context, opts subscription.ListOpts) ([]subscription.Info, error) {
	subs, err := p.store.ListSubscriptions(ctx, opts)
	if err != nil {
		return nil, err
	}
	now := p.Now()
	infos := make([]subscription.Info, 0, len(subs))
	for _, s := range subs {
		infos = append(infos, subscription.Describe(s, now, p.maxRetries))
	}
	return infos, nil
}
