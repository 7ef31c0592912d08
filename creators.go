package patron

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/patron/account"
	"github.com/xraph/patron/creator"
	"github.com/xraph/patron/store"
	"github.com/xraph/patron/types"
)

// ──────────────────────────────────────────────────
// Creator Registry
// ──────────────────────────────────────────────────

// RegisterCreator creates the registry record for creatorID with zero
// earnings, balance and subscribers.
func (p *Patron) RegisterCreator(ctx context.Context, creatorID string, fee types.Micro) (*creator.Creator, error) {
	if err := p.checkAccount("creator_id", creatorID); err != nil {
		return nil, err
	}
	if err := checkFee(fee); err != nil {
		return nil, err
	}

	now := p.Now()
	c := &creator.Creator{
		Entity: types.NewEntity(now),
		ID:     creatorID,
		Fee:    fee,
	}

	err := p.atomic(ctx, func(ctx context.Context, tx store.Store) error {
		_, err := tx.GetCreator(ctx, creatorID)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %q", ErrDuplicateCreator, creatorID)
		case !errors.Is(err, ErrCreatorNotFound):
			return err
		}
		return tx.CreateCreator(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	p.plugins.EmitCreatorRegistered(ctx, c)
	p.logger.Info("creator registered", "creator_id", creatorID, "fee", fee)
	return c, nil
}

// UpdateFee changes the fee charged by future subscriptions and renewals.
// Only the creator may call it.
func (p *Patron) UpdateFee(ctx context.Context, caller, creatorID string, fee types.Micro) (*creator.Creator, error) {
	if err := authorize(caller, creatorID); err != nil {
		return nil, err
	}
	if err := checkFee(fee); err != nil {
		return nil, err
	}

	var (
		c      *creator.Creator
		oldFee types.Micro
	)
	err := p.updateCreator(ctx, creatorID, func(cur *creator.Creator) error {
		oldFee = cur.Fee
		cur.Fee = fee
		c = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.plugins.EmitFeeUpdated(ctx, c, oldFee)
	p.logger.Info("creator fee updated", "creator_id", creatorID, "old_fee", oldFee, "fee", fee)
	return c, nil
}

// SetAutoRenewalDefault stores the creator's preferred auto-renew flag for
// clients to pass into Subscribe. Existing subscriptions are not touched.
func (p *Patron) SetAutoRenewalDefault(ctx context.Context, caller, creatorID string, enabled bool) (*creator.Creator, error) {
	if err := authorize(caller, creatorID); err != nil {
		return nil, err
	}

	var c *creator.Creator
	err := p.updateCreator(ctx, creatorID, func(cur *creator.Creator) error {
		cur.AutoRenewalDefault = enabled
		c = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.plugins.EmitAutoRenewalDefaultChanged(ctx, c)
	return c, nil
}

// Withdraw pays amount of the creator's balance out of escrow to the
// creator's account. Partial withdrawals of a larger request never happen:
// an amount above the balance fails with ErrInsufficientBalance.
func (p *Patron) Withdraw(ctx context.Context, caller, creatorID string, amount types.Micro) (*account.Transfer, error) {
	if err := authorize(caller, creatorID); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, fmt.Errorf("%w: withdrawal of zero", ErrInvalidAmount)
	}

	var (
		c    *creator.Creator
		xfer *account.Transfer
	)
	err := p.atomic(ctx, func(ctx context.Context, tx store.Store) error {
		now := p.Now()

		cur, err := tx.GetCreator(ctx, creatorID)
		if err != nil {
			return err
		}
		if err := cur.Withdraw(amount); err != nil {
			return fmt.Errorf("%w: requested %d, balance %d", ErrInsufficientBalance, amount, cur.Balance)
		}
		cur.Touch(now)
		if err := tx.UpdateCreator(ctx, cur); err != nil {
			return err
		}

		xfer, err = p.transfer(ctx, tx, p.escrow, creatorID, amount, account.KindWithdrawal, now)
		if err != nil {
			return err
		}
		c = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.plugins.EmitTransfer(ctx, xfer)
	p.plugins.EmitWithdrawal(ctx, c, xfer)
	p.logger.Info("creator withdrawal", "creator_id", creatorID, "amount", amount, "balance", c.Balance)
	return xfer, nil
}

// updateCreator loads, mutates and saves one creator record atomically.
func (p *Patron) updateCreator(ctx context.Context, creatorID string, mutate func(*creator.Creator) error) error {
	return p.atomic(ctx, func(ctx context.Context, tx store.Store) error {
		cur, err := tx.GetCreator(ctx, creatorID)
		if err != nil {
			return err
		}
		if err := mutate(cur); err != nil {
			return err
		}
		cur.Touch(p.Now())
		return tx.UpdateCreator(ctx, cur)
	})
}

func checkFee(fee types.Micro) error {
	if fee == 0 {
		return ErrZeroFee
	}
	if !fee.Valid() {
		return fmt.Errorf("%w: fee %d exceeds %d", ErrInvalidAmount, fee, types.MaxMicro)
	}
	return nil
}

func authorize(caller, owner string) error {
	if caller == "" || caller != owner {
		return fmt.Errorf("%w: caller %q is not %q", ErrUnauthorized, caller, owner)
	}
	return nil
}
