package mongo

import (
	"time"

	"github.com/xraph/patron/account"
	"github.com/xraph/patron/creator"
	"github.com/xraph/patron/id"
	"github.com/xraph/patron/payment"
	"github.com/xraph/patron/subscription"
	"github.com/xraph/patron/types"
)

// Timestamps are stored as Unix nanoseconds; BSON dates only keep
// milliseconds.

func toNanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

// ==================== Account models ====================

type accountModel struct {
	ID        string `bson:"_id"`
	Balance   int64  `bson:"balance"`
	CreatedAt int64  `bson:"created_at"`
	UpdatedAt int64  `bson:"updated_at"`
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
	ID        string `bson:"_id"`
	From      string `bson:"from"`
	To        string `bson:"to"`
	Amount    int64  `bson:"amount"`
	Kind      string `bson:"kind"`
	CreatedAt int64  `bson:"created_at"`
}

func toTransferModel(t *account.Transfer) *transferModel {
	return &transferModel{
		ID:        t.ID.String(),
		From:      t.From,
		To:        t.To,
		Amount:    int64(t.Amount),
		Kind:      string(t.Kind),
		CreatedAt: toNanos(t.CreatedAt),
	}
}

func fromTransferModel(m *transferModel) (*account.Transfer, error) {
	xferID, err := id.ParseTransferID(m.ID)
	if err != nil {
		return nil, err
	}
	return &account.Transfer{
		ID:        xferID,
		From:      m.From,
		To:        m.To,
		Amount:    types.Micro(m.Amount),
		Kind:      account.Kind(m.Kind),
		CreatedAt: fromNanos(m.CreatedAt),
	}, nil
}

// ==================== Creator models ====================

type creatorModel struct {
	ID                 string `bson:"_id"`
	Fee                int64  `bson:"fee"`
	TotalEarning       int64  `bson:"total_earning"`
	Balance            int64  `bson:"balance"`
	AutoRenewalDefault bool   `bson:"auto_renewal_default"`
	TotalSubscribers   int64  `bson:"total_subscribers"`
	CreatedAt          int64  `bson:"created_at"`
	UpdatedAt          int64  `bson:"updated_at"`
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

// subscriptionModel is keyed by the unique (creator_id, fan_id) index and
// leaves _id to the server, so a fresh term replaces the document in place.
type subscriptionModel struct {
	CreatorID       string `bson:"creator_id"`
	FanID           string `bson:"fan_id"`
	TermID          string `bson:"term_id"`
	StartedAt       int64  `bson:"started_at"`
	ExpiresAt       int64  `bson:"expires_at"`
	AutoRenew       bool   `bson:"auto_renew"`
	PaymentAttempts int64  `bson:"payment_attempts"`
	NextRetryAt     int64  `bson:"next_retry_at"`
	CancelledAt     *int64 `bson:"cancelled_at"`
	LastPaymentID   int64  `bson:"last_payment_id"`
	CreatedAt       int64  `bson:"created_at"`
	UpdatedAt       int64  `bson:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	m := &subscriptionModel{
		CreatorID:       s.CreatorID,
		FanID:           s.FanID,
		TermID:          s.ID.String(),
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
	subID, err := id.ParseSubscriptionID(m.TermID)
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
	ID        int64  `bson:"_id"`
	Reference string `bson:"reference"`
	CreatorID string `bson:"creator_id"`
	FanID     string `bson:"fan_id"`
	Amount    int64  `bson:"amount"`
	Outcome   string `bson:"outcome"`
	Kind      string `bson:"kind"`
	CreatedAt int64  `bson:"created_at"`
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

// counterModel holds a monotonically increasing sequence.
type counterModel struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}
