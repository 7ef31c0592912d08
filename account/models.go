// Package account models the native-currency balance ledger that every
// money-moving operation in patron runs through.
package account

import (
	"time"

	"github.com/xraph/patron/id"
	"github.com/xraph/patron/types"
)

// External is the pseudo account on the far side of deposits. It never
// holds a balance.
const External = ""

// Kind classifies a transfer.
type Kind string

const (
	KindDeposit      Kind = "deposit"
	KindSubscription Kind = "subscription"
	KindRenewal      Kind = "renewal"
	KindWithdrawal   Kind = "withdrawal"
	KindTransfer     Kind = "transfer"
)

// Account is the spendable balance held by one account identifier.
type Account struct {
	types.Entity
	ID      string      `json:"id"`
	Balance types.Micro `json:"balance"`
}

// Transfer is one journal line: amount moved from From to To.
type Transfer struct {
	ID        id.TransferID `json:"id"`
	From      string        `json:"from,omitempty"`
	To        string        `json:"to"`
	Amount    types.Micro   `json:"amount"`
	Kind      Kind          `json:"kind"`
	CreatedAt time.Time     `json:"created_at"`
}

// ListOpts filters the transfer journal. AccountID matches either side.
type ListOpts struct {
	AccountID string
	Kind      Kind
	Limit     int
	Offset    int
}

// Matches reports whether t passes the filter.
func (o ListOpts) Matches(t *Transfer) bool {
	if o.AccountID != "" && t.From != o.AccountID && t.To != o.AccountID {
		return false
	}
	return o.Kind == "" || t.Kind == o.Kind
}
