package account

import (
	"context"
	"time"

	"github.com/xraph/patron/types"
)

// Store persists balances and the transfer journal.
//
// DebitAccount must be a guarded update: it fails with
// patron.ErrInsufficientFunds, leaving the balance untouched, when the
// account holds less than amount. CreditAccount creates the account on
// first credit.
type Store interface {
	GetAccount(ctx context.Context, accountID string) (*Account, error)
	CreditAccount(ctx context.Context, accountID string, amount types.Micro, at time.Time) error
	DebitAccount(ctx context.Context, accountID string, amount types.Micro, at time.Time) error
	RecordTransfer(ctx context.Context, t *Transfer) error
	ListTransfers(ctx context.Context, opts ListOpts) ([]*Transfer, error)
}
