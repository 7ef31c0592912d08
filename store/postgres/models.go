package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/patron/account"
	"github.com/xraph/patron/creator"
	"github.com/xraph/patron/id"
	"github.com/xraph/patron/payment"
	"github.com/xraph/patron/subscription"
	"github.com/xraph/patron/types"
)

// Timestamps are stored as Unix nanoseconds so that every backend round-trips
// the engine clock exactly, without time zone handling.

func toNanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:patron_accounts"`

	ID        string `grove:"id,pk"`
	Balance   int64  `grove:"balance"`
	CreatedAt int64  `grove:"created_at"`
	UpdatedAt int64  `grove:"updated_at"`
}

func fromAccountModel(m *accountModel) *account.Account {
	return &account.Account{
		Entity: types.Entity{
			CreatedAt: fromNanos(m.CreatedAt),
			UpdatedAt: fromNanos(m.UpdatedAt),
		},
		ID:      m.ID,
		Balance: types.Micro(m.Balance),
	}
}

type transferModel struct {
	grove.BaseModel `grove:"table:patron_transfers"`

	ID          string `grove:"id,pk"`
	FromAccount string `grove:"from_account"`
	ToAccount   string `grove:"to_account"`
	Amount      int64  `grove:"amount"`
	Kind        string `grove:"kind"`
	CreatedAt   int64  `grove:"created_at"`
}

func toTransferModel(t *account.Transfer) *transferModel {
	return &transferModel{
		ID:          t.ID.String(),
		FromAccount: t.From,
		ToAccount:   t.To,
		Amount:      int64(t.Amount),
		Kind:        string(t.Kind),
		CreatedAt:   toNanos(t.CreatedAt),
	}
}

func fromTransferModel(m *transferModel) (*account.Transfer, error) {
	xferID, err := id.ParseTransferID(m.ID)
	if err != nil {
		return nil, err
	}
	return &account.Transfer{
		ID:        xferID,
		From:      m.FromAccount,
		To:        m.ToAccount,
		Amount:    types.Micro(m.Amount),
		Kind:      account.Kind(m.Kind),
		CreatedAt: fromNanos(m.CreatedAt),
	}, nil
}

// ==================== Creator models ====================

type creatorModel struct {
	grove.BaseModel `grove:"table:patron_creators"`

	ID                 string `grove:"id,pk"`
	Fee                int64  `grove:"fee"`
	TotalEarning       int64  `grove:"total_earning"`
	Balance            int64  `grove:"balance"`
	AutoRenewalDefault bool   `grove:"auto_renewal_default"`
	TotalSubscribers   int64  `grove:"total_subscribers"`
	CreatedAt          int64  `grove:"created_at"`
	UpdatedAt          int64  `grove:"updated_at"`
}

func toCreatorModel(c *creator.Creator) *creatorModel {
	return &creatorModel{
		ID:                 c.ID,
		Fee:                int64(c.Fee),
		TotalEarning:       int64(c.TotalEarning),
		Balance:            int64(c.Balance),
		AutoRenewalDefault: c.AutoRenewalDefault,
		TotalSubscribers:   int64(c.TotalSubscribers),
		CreatedAt:          toNanos(c.CreatedAt),
		UpdatedAt:          toNanos(c.UpdatedAt),
	}
}

func fromCreatorModel(m *creatorModel) *creator.Creator {
	return &creator.Creator{
		Entity: types.Entity{
			CreatedAt: fromNanos(m.CreatedAt),
			UpdatedAt: fromNanos(m.UpdatedAt),
		},
		ID:                 m.ID,
		Fee:                types.Micro(m.Fee),
		TotalEarning:       types.Micro(m.TotalEarning),
		Balance:            types.Micro(m.Balance),
		AutoRenewalDefault: m.AutoRenewalDefault,
		TotalSubscribers:   uint64(m.TotalSubscribers),
	}
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:patron_subscriptions"`

	CreatorID       string `grove:"creator_id,pk"`
	FanID           string `grove:"fan_id,pk"`
	ID              string `grove:"id"`
	StartedAt       int64  `grove:"started_at"`
	ExpiresAt       int64  `grove:"expires_at"`
	AutoRenew       bool   `grove:"auto_renew"`
	PaymentAttempts int64  `grove:"payment_attempts"`
	NextRetryAt     int64  `grove:"next_retry_at"`
	CancelledAt     *int64 `grove:"cancelled_at"`
	LastPaymentID   int64  `grove:"last_payment_id"`
	CreatedAt       int64  `grove:"created_at"`
	UpdatedAt       int64  `grove:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	m := &subscriptionModel{
		CreatorID:       s.CreatorID,
		FanID:           s.FanID,
		ID:              s.ID.String(),
		StartedAt:       toNanos(s.StartedAt),
		ExpiresAt:       toNanos(s.ExpiresAt),
		AutoRenew:       s.AutoRenew,
		PaymentAttempts: int64(s.PaymentAttempts),
		NextRetryAt:     toNanos(s.NextRetryAt),
		LastPaymentID:   int64(s.LastPaymentID),
		CreatedAt:       toNanos(s.CreatedAt),
		UpdatedAt:       toNanos(s.UpdatedAt),
	}
	if s.CancelledAt != nil {
		at := toNanos(*s.CancelledAt)
		m.CancelledAt = &at
	}
	return m
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}

	s := &subscription.Subscription{
		Entity: types.Entity{
			CreatedAt: fromNanos(m.CreatedAt),
			UpdatedAt: fromNanos(m.UpdatedAt),
		},
		ID:              subID,
		CreatorID:       m.CreatorID,
		FanID:           m.FanID,
		StartedAt:       fromNanos(m.StartedAt),
		ExpiresAt:       fromNanos(m.ExpiresAt),
		AutoRenew:       m.AutoRenew,
		PaymentAttempts: uint32(m.PaymentAttempts),
		NextRetryAt:     fromNanos(m.NextRetryAt),
		LastPaymentID:   uint64(m.LastPaymentID),
	}
	if m.CancelledAt != nil {
		at := fromNanos(*m.CancelledAt)
		s.CancelledAt = &at
	}
	return s, nil
}

// ==================== Payment models ====================

type paymentModel struct {
	grove.BaseModel `grove:"table:patron_payments"`

	ID        int64  `grove:"id,pk"`
	Reference string `grove:"reference"`
	CreatorID string `grove:"creator_id"`
	FanID     string `grove:"fan_id"`
	Amount    int64  `grove:"amount"`
	Outcome   string `grove:"outcome"`
	Kind      string `grove:"kind"`
	CreatedAt int64  `grove:"created_at"`
}

func toPaymentModel(e *payment.Entry) *paymentModel {
	return &paymentModel{
		ID:        int64(e.ID),
		Reference: e.Reference.String(),
		CreatorID: e.CreatorID,
		FanID:     e.FanID,
		Amount:    int64(e.Amount),
		Outcome:   string(e.Outcome),
		Kind:      string(e.Kind),
		CreatedAt: toNanos(e.CreatedAt),
	}
}

func fromPaymentModel(m *paymentModel) (*payment.Entry, error) {
	ref, err := id.ParsePaymentID(m.Reference)
	if err != nil {
		return nil, err
	}
	return &payment.Entry{
		ID:        uint64(m.ID),
		Reference: ref,
		CreatorID: m.CreatorID,
		FanID:     m.FanID,
		Amount:    types.Micro(m.Amount),
		Outcome:   payment.Outcome(m.Outcome),
		Kind:      payment.Kind(m.Kind),
		CreatedAt: fromNanos(m.CreatedAt),
	}, nil
}
