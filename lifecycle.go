package patron

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/patron/account"
	"github.com/xraph/patron/creator"
	"github.com/xraph/patron/id"
	"github.com/xraph/patron/payment"
	"github.com/xraph/patron/store"
	"github.com/xraph/patron/subscription"
	"github.com/xraph/patron/types"
)

// Receipt describes the committed outcome of a charge attempt.
type Receipt struct {
	// PaymentID is the ID of the payment history entry written by the call.
	PaymentID    uint64                     `json:"payment_id"`
	Payment      *payment.Entry             `json:"payment"`
	Subscription *subscription.Subscription `json:"subscription"`
	Creator      *creator.Creator           `json:"creator"`
	Transfer     *account.Transfer          `json:"transfer,omitempty"`
}

// ──────────────────────────────────────────────────
// Subscription State Machine
// ──────────────────────────────────────────────────

// Subscribe charges the creator's current fee to fanID and starts a new
// subscription term. Nothing is committed on failure.
//
// The creator's AutoRenewalDefault is not consulted; clients pass it as
// autoRenew if they want it.
func (p *Patron) Subscribe(ctx context.Context, creatorID, fanID string, autoRenew bool) (*Receipt, error) {
	if err := p.checkAccount("creator_id", creatorID); err != nil {
		return nil, err
	}
	if err := p.checkAccount("fan_id", fanID); err != nil {
		return nil, err
	}

	var r *Receipt
	err := p.atomic(ctx, func(ctx context.Context, tx store.Store) error {
		now := p.Now()

		c, err := tx.GetCreator(ctx, creatorID)
		if err != nil {
			return err
		}

		prev, err := tx.GetSubscription(ctx, creatorID, fanID)
		switch {
		case err == nil:
			if prev.IsActive(now, p.maxRetries) {
				return fmt.Errorf("%w: creator %q fan %q (%s)",
					ErrDuplicateActiveSubscription, creatorID, fanID, prev.Status(now, p.maxRetries))
			}
		case !errors.Is(err, ErrNoSubscription):
			return err
		}

		xfer, err := p.transfer(ctx, tx, fanID, p.escrow, c.Fee, account.KindSubscription, now)
		if err != nil {
			return err
		}

		if err := c.Earn(c.Fee); err != nil {
			return fmt.Errorf("%w: %w", ErrAmountOverflow, err)
		}
		c.TotalSubscribers++
		c.Touch(now)
		if err := tx.UpdateCreator(ctx, c); err != nil {
			return err
		}

		entry := &payment.Entry{
			Reference: id.NewPaymentID(),
			CreatorID: creatorID,
			FanID:     fanID,
			Amount:    c.Fee,
			Outcome:   payment.OutcomeSuccess,
			Kind:      payment.KindSubscribe,
			CreatedAt: now,
		}
		if err := tx.AppendPayment(ctx, entry); err != nil {
			return err
		}

		sub := &subscription.Subscription{
			Entity:        types.NewEntity(now),
			ID:            id.NewSubscriptionID(),
			CreatorID:     creatorID,
			FanID:         fanID,
			StartedAt:     now,
			ExpiresAt:     now.Add(p.period),
			AutoRenew:     autoRenew,
			NextRetryAt:   now.Add(p.period),
			LastPaymentID: entry.ID,
		}
		if prev != nil {
			sub.CreatedAt = prev.CreatedAt
		}
		if err := tx.SaveSubscription(ctx, sub); err != nil {
			return err
		}

		r = &Receipt{
			PaymentID:    entry.ID,
			Payment:      entry,
			Subscription: sub,
			Creator:      c,
			Transfer:     xfer,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.plugins.EmitTransfer(ctx, r.Transfer)
	p.plugins.EmitPaymentRecorded(ctx, r.Payment)
	p.plugins.EmitSubscribed(ctx, r.Subscription, r.Payment)
	p.logger.Info("subscription started",
		"creator_id", creatorID,
		"fan_id", fanID,
		"payment_id", r.PaymentID,
		"expires_at", r.Subscription.ExpiresAt,
		"auto_renew", autoRenew,
	)
	return r, nil
}

// ProcessAutoRenewal charges the fan again once the term has lapsed. Any
// caller may trigger it.
//
// When the fan cannot pay, the call still commits: the attempt counter is
// incremented, a Failed history entry is appended and the next retry time
// is set. It then returns the receipt together with ErrAutoRenewFailed, or
// with ErrMaxRetriesExceeded once attempts exceed the retry budget, in
// which case the subscription is cancelled. ErrNotDue and ErrNoSubscription
// commit nothing.
func (p *Patron) ProcessAutoRenewal(ctx context.Context, creatorID, fanID string) (*Receipt, error) {
	var (
		r        *Receipt
		renewErr error
	)
	err := p.atomic(ctx, func(ctx context.Context, tx store.Store) error {
		now := p.Now()

		sub, err := tx.GetSubscription(ctx, creatorID, fanID)
		if err != nil {
			return err
		}
		switch {
		case sub.Cancelled():
			return fmt.Errorf("%w: creator %q fan %q was cancelled at %s",
				ErrNoSubscription, creatorID, fanID, sub.CancelledAt.Format(timeFormat))
		case !sub.AutoRenew:
			return fmt.Errorf("%w: auto-renewal is off for creator %q fan %q", ErrNotDue, creatorID, fanID)
		case !sub.IsExpired(now):
			return fmt.Errorf("%w: expires at %s", ErrNotDue, sub.ExpiresAt.Format(timeFormat))
		case now.Before(sub.NextRetryAt):
			return fmt.Errorf("%w: next retry at %s", ErrNotDue, sub.NextRetryAt.Format(timeFormat))
		}

		c, err := tx.GetCreator(ctx, creatorID)
		if err != nil {
			return err
		}

		entry := &payment.Entry{
			Reference: id.NewPaymentID(),
			CreatorID: creatorID,
			FanID:     fanID,
			Amount:    c.Fee,
			Kind:      payment.KindRenewal,
			CreatedAt: now,
		}

		xfer, err := p.transfer(ctx, tx, fanID, p.escrow, c.Fee, account.KindRenewal, now)
		switch {
		case err == nil:
			if err := c.Earn(c.Fee); err != nil {
				return fmt.Errorf("%w: %w", ErrAmountOverflow, err)
			}
			c.Touch(now)
			if err := tx.UpdateCreator(ctx, c); err != nil {
				return err
			}
			entry.Outcome = payment.OutcomeSuccess
			sub.ExpiresAt = now.Add(p.period)
			sub.NextRetryAt = sub.ExpiresAt
			sub.PaymentAttempts = 0

		case errors.Is(err, ErrInsufficientFunds):
			entry.Outcome = payment.OutcomeFailed
			sub.PaymentAttempts++
			sub.NextRetryAt = now.Add(p.retryInterval)
			renewErr = ErrAutoRenewFailed
			if sub.PaymentAttempts > p.maxRetries {
				cancelledAt := now
				sub.CancelledAt = &cancelledAt
				renewErr = ErrMaxRetriesExceeded
			}

		default:
			return err
		}

		if err := tx.AppendPayment(ctx, entry); err != nil {
			return err
		}
		sub.LastPaymentID = entry.ID
		sub.Touch(now)
		if err := tx.SaveSubscription(ctx, sub); err != nil {
			return err
		}

		r = &Receipt{
			PaymentID:    entry.ID,
			Payment:      entry,
			Subscription: sub,
			Creator:      c,
			Transfer:     xfer,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.plugins.EmitPaymentRecorded(ctx, r.Payment)

	if renewErr == nil {
		p.plugins.EmitTransfer(ctx, r.Transfer)
		p.plugins.EmitRenewed(ctx, r.Subscription, r.Payment)
		p.logger.Info("subscription renewed",
			"creator_id", creatorID,
			"fan_id", fanID,
			"payment_id", r.PaymentID,
			"expires_at", r.Subscription.ExpiresAt,
		)
		return r, nil
	}

	p.plugins.EmitRenewalFailed(ctx, r.Subscription, r.Payment)
	if r.Subscription.Cancelled() {
		p.plugins.EmitSubscriptionCancelled(ctx, r.Subscription, r.Payment)
	}
	p.logger.Warn("subscription renewal failed",
		"creator_id", creatorID,
		"fan_id", fanID,
		"payment_id", r.PaymentID,
		"attempts", r.Subscription.PaymentAttempts,
		"cancelled", r.Subscription.Cancelled(),
	)
	return r, fmt.Errorf("%w: creator %q fan %q attempt %d of %d",
		renewErr, creatorID, fanID, r.Subscription.PaymentAttempts, p.maxRetries)
}

// CancelAutoRenewal turns off unattended renewal. Only the fan may call it.
// No refund is made; the paid term runs to ExpiresAt.
func (p *Patron) CancelAutoRenewal(ctx context.Context, caller, creatorID, fanID string) (*subscription.Subscription, error) {
	if err := authorize(caller, fanID); err != nil {
		return nil, err
	}

	var sub *subscription.Subscription
	err := p.atomic(ctx, func(ctx context.Context, tx store.Store) error {
		cur, err := tx.GetSubscription(ctx, creatorID, fanID)
		if err != nil {
			return err
		}
		cur.AutoRenew = false
		cur.Touch(p.Now())
		if err := tx.SaveSubscription(ctx, cur); err != nil {
			return err
		}
		sub = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.plugins.EmitAutoRenewalCancelled(ctx, sub)
	p.logger.Info("auto-renewal cancelled", "creator_id", creatorID, "fan_id", fanID)
	return sub, nil
}
