package patron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/patron/account"
	"github.com/xraph/patron/id"
	"github.com/xraph/patron/store"
	"github.com/xraph/patron/types"
)

// ──────────────────────────────────────────────────
// Account Ledger
// ──────────────────────────────────────────────────

// Deposit funds accountID from outside the ledger.
func (p *Patron) Deposit(ctx context.Context, accountID string, amount types.Micro) (*account.Transfer, error) {
	if err := p.checkAccount("account", accountID); err != nil {
		return nil, err
	}

	var xfer *account.Transfer
	err := p.atomic(ctx, func(ctx context.Context, tx store.Store) error {
		var err error
		xfer, err = p.transfer(ctx, tx, account.External, accountID, amount, account.KindDeposit, p.Now())
		return err
	})
	if err != nil {
		return nil, err
	}

	p.plugins.EmitTransfer(ctx, xfer)
	p.logger.Debug("deposit recorded", "account", accountID, "amount", amount)
	return xfer, nil
}

// Transfer moves amount between two participant accounts. It fails with
// ErrInsufficientFunds, leaving both balances untouched, when from cannot
// cover amount. The escrow account cannot be used directly.
func (p *Patron) Transfer(ctx context.Context, from, to string, amount types.Micro) (*account.Transfer, error) {
	if err := p.checkAccount("from", from); err != nil {
		return nil, err
	}
	if err := p.checkAccount("to", to); err != nil {
		return nil, err
	}

	var xfer *account.Transfer
	err := p.atomic(ctx, func(ctx context.Context, tx store.Store) error {
		var err error
		xfer, err = p.transfer(ctx, tx, from, to, amount, account.KindTransfer, p.Now())
		return err
	})
	if err != nil {
		return nil, err
	}

	p.plugins.EmitTransfer(ctx, xfer)
	return xfer, nil
}

// Balance returns the spendable balance of accountID. Unknown accounts
// hold zero.
func (p *Patron) Balance(ctx context.Context, accountID string) (types.Micro, error) {
	a, err := p.store.GetAccount(ctx, accountID)
	if errors.Is(err, ErrAccountNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return a.Balance, nil
}

// ListTransfers reads the transfer journal.
func (p *Patron) ListTransfers(ctx context.Context, opts account.ListOpts) ([]*account.Transfer, error) {
	return p.store.ListTransfers(ctx, opts)
}

// transfer debits from and credits to inside tx. A failed debit leaves no
// trace in tx, so callers may recover from ErrInsufficientFunds and keep
// using the transaction.
func (p *Patron) transfer(
	ctx context.Context,
	tx store.Store,
	from, to string,
	amount types.Micro,
	kind account.Kind,
	now time.Time,
) (*account.Transfer, error) {
	if amount == 0 || !amount.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	if from == to {
		return nil, fmt.Errorf("%w: transfer from %q to itself", ErrInvalidInput, from)
	}

	if from != account.External {
		if err := tx.DebitAccount(ctx, from, amount, now); err != nil {
			return nil, err
		}
	}
	if err := tx.CreditAccount(ctx, to, amount, now); err != nil {
		return nil, err
	}

	xfer := &account.Transfer{
		ID:        id.NewTransferID(),
		From:      from,
		To:        to,
		Amount:    amount,
		Kind:      kind,
		CreatedAt: now,
	}
	if err := tx.RecordTransfer(ctx, xfer); err != nil {
		return nil, err
	}
	return xfer, nil
}

// checkAccount rejects empty identifiers and the reserved escrow account.
func (p *Patron) checkAccount(field, accountID string) error {
	if accountID == "" {
		return ValidationError{Field: field, Message: "account identifier is empty"}
	}
	if accountID == p.escrow {
		return fmt.Errorf("%w: %s %q is reserved", ErrUnauthorized, field, accountID)
	}
	return nil
}
