package payment

import "context"

// Store is the payment history log. There is no update or delete.
//
// AppendPayment assigns the next ID to e before persisting it. GetPayment
// fails with patron.ErrNotFound for an unknown ID.
type Store interface {
	AppendPayment(ctx context.Context, e *Entry) error
	GetPayment(ctx context.Context, paymentID uint64) (*Entry, error)
	ListPayments(ctx context.Context, opts ListOpts) ([]*Entry, error)
}
