// Package storetest is a conformance suite for store.Store implementations.
// Each backend's tests call Run with a factory returning an empty, migrated
// store.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/patron"
	"github.com/xraph/patron/account"
	"github.com/xraph/patron/creator"
	"github.com/xraph/patron/id"
	"github.com/xraph/patron/payment"
	"github.com/xraph/patron/store"
	"github.com/xraph/patron/subscription"
	"github.com/xraph/patron/types"
)

// Factory returns an empty, migrated store. Run closes it when the subtest
// ends.
type Factory func(t *testing.T) store.Store

var epoch = time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)

// Run executes the suite.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"Accounts", testAccounts},
		{"Transfers", testTransfers},
		{"Creators", testCreators},
		{"Subscriptions", testSubscriptions},
		{"DueRenewals", testDueRenewals},
		{"Payments", testPayments},
		{"AtomicRollback", testAtomicRollback},
		{"AtomicRecoversFromFailedDebit", testAtomicRecoversFromFailedDebit},
		{"ConcurrentCreatorUpdates", testConcurrentCreatorUpdates},
		{"EngineLifecycle", testEngineLifecycle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func sameTime(t *testing.T, want, got time.Time, field string) {
	t.Helper()
	assert.True(t, want.Equal(got), "%s: want %s, got %s", field, want, got)
}

func testAccounts(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetAccount(ctx, "fan1")
	require.ErrorIs(t, err, patron.ErrAccountNotFound)

	require.NoError(t, s.CreditAccount(ctx, "fan1", 700, epoch))
	require.NoError(t, s.CreditAccount(ctx, "fan1", 300, epoch.Add(time.Second)))

	a, err := s.GetAccount(ctx, "fan1")
	require.NoError(t, err)
	assert.Equal(t, types.Micro(1000), a.Balance)
	sameTime(t, epoch, a.CreatedAt, "created_at")
	sameTime(t, epoch.Add(time.Second), a.UpdatedAt, "updated_at")

	err = s.CreditAccount(ctx, "fan1", types.MaxMicro, epoch)
	require.ErrorIs(t, err, patron.ErrAmountOverflow)
	a, err = s.GetAccount(ctx, "fan1")
	require.NoError(t, err)
	assert.Equal(t, types.Micro(1000), a.Balance, "an overflowing credit leaves the balance untouched")

	require.NoError(t, s.CreditAccount(ctx, "whale", types.MaxMicro, epoch))
	err = s.CreditAccount(ctx, "whale", 1, epoch)
	require.ErrorIs(t, err, patron.ErrAmountOverflow)

	err = s.DebitAccount(ctx, "fan1", 1001, epoch)
	require.ErrorIs(t, err, patron.ErrInsufficientFunds)
	err = s.DebitAccount(ctx, "nobody", 1, epoch)
	require.ErrorIs(t, err, patron.ErrInsufficientFunds)

	require.NoError(t, s.DebitAccount(ctx, "fan1", 1000, epoch))
	a, err = s.GetAccount(ctx, "fan1")
	require.NoError(t, err)
	assert.Zero(t, a.Balance)
}

func testTransfers(t *testing.T, s store.Store) {
	ctx := context.Background()
	record := func(from, to string, amount types.Micro, kind account.Kind, at time.Time) *account.Transfer {
		xfer := &account.Transfer{
			ID:        id.NewTransferID(),
			From:      from,
			To:        to,
			Amount:    amount,
			Kind:      kind,
			CreatedAt: at,
		}
		require.NoError(t, s.RecordTransfer(ctx, xfer))
		return xfer
	}

	deposit := record(account.External, "fan1", 10, account.KindDeposit, epoch)
	sub := record("fan1", "escrow", 4, account.KindSubscription, epoch.Add(time.Minute))
	record("fan2", "escrow", 4, account.KindSubscription, epoch.Add(2*time.Minute))

	all, err := s.ListTransfers(ctx, account.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := s.ListTransfers(ctx, account.ListOpts{AccountID: "fan1"})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, deposit.ID.String(), mine[0].ID.String())
	assert.Equal(t, sub.ID.String(), mine[1].ID.String())
	assert.Equal(t, account.External, mine[0].From)
	sameTime(t, deposit.CreatedAt, mine[0].CreatedAt, "created_at")

	subs, err := s.ListTransfers(ctx, account.ListOpts{Kind: account.KindSubscription, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "fan2", subs[0].From)
}

func testCreators(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetCreator(ctx, "creator1")
	require.ErrorIs(t, err, patron.ErrCreatorNotFound)

	for _, cid := range []string{"creator2", "creator1"} {
		require.NoError(t, s.CreateCreator(ctx, &creator.Creator{
			Entity: types.NewEntity(epoch),
			ID:     cid,
			Fee:    1_000_000,
		}))
	}

	err = s.CreateCreator(ctx, &creator.Creator{Entity: types.NewEntity(epoch), ID: "creator1", Fee: 5})
	require.ErrorIs(t, err, patron.ErrDuplicateCreator)

	c, err := s.GetCreator(ctx, "creator1")
	require.NoError(t, err)
	assert.Equal(t, types.Micro(1_000_000), c.Fee)

	c.TotalEarning = 3_000_000
	c.Balance = 2_000_000
	c.TotalSubscribers = 3
	c.AutoRenewalDefault = true
	c.Touch(epoch.Add(time.Hour))
	require.NoError(t, s.UpdateCreator(ctx, c))

	got, err := s.GetCreator(ctx, "creator1")
	require.NoError(t, err)
	assert.Equal(t, c.TotalEarning, got.TotalEarning)
	assert.Equal(t, c.Balance, got.Balance)
	assert.Equal(t, uint64(3), got.TotalSubscribers)
	assert.True(t, got.AutoRenewalDefault)
	sameTime(t, epoch, got.CreatedAt, "created_at")
	sameTime(t, epoch.Add(time.Hour), got.UpdatedAt, "updated_at")

	err = s.UpdateCreator(ctx, &creator.Creator{ID: "ghost", Fee: 1})
	require.ErrorIs(t, err, patron.ErrCreatorNotFound)

	list, err := s.ListCreators(ctx, creator.ListOpts{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "creator1", list[0].ID)
	assert.Equal(t, "creator2", list[1].ID)

	list, err = s.ListCreators(ctx, creator.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "creator2", list[0].ID)
}

func newSubscription(creatorID, fanID string, expiresAt time.Time, autoRenew bool) *subscription.Subscription {
	return &subscription.Subscription{
		Entity:      types.NewEntity(expiresAt.Add(-subscription.DefaultPeriod)),
		ID:          id.NewSubscriptionID(),
		CreatorID:   creatorID,
		FanID:       fanID,
		StartedAt:   expiresAt.Add(-subscription.DefaultPeriod),
		ExpiresAt:   expiresAt,
		AutoRenew:   autoRenew,
		NextRetryAt: expiresAt,
	}
}

func testSubscriptions(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetSubscription(ctx, "creator1", "fan1")
	require.ErrorIs(t, err, patron.ErrNoSubscription)

	first := newSubscription("creator1", "fan1", epoch, true)
	require.NoError(t, s.SaveSubscription(ctx, first))
	require.NoError(t, s.SaveSubscription(ctx, newSubscription("creator1", "fan2", epoch, false)))
	require.NoError(t, s.SaveSubscription(ctx, newSubscription("creator2", "fan1", epoch, false)))

	got, err := s.GetSubscription(ctx, "creator1", "fan1")
	require.NoError(t, err)
	assert.Equal(t, first.ID.String(), got.ID.String())
	assert.True(t, got.AutoRenew)
	assert.Nil(t, got.CancelledAt)
	sameTime(t, first.ExpiresAt, got.ExpiresAt, "expires_at")
	sameTime(t, first.StartedAt, got.StartedAt, "started_at")

	cancelledAt := epoch.Add(3 * time.Hour)
	got.PaymentAttempts = 4
	got.CancelledAt = &cancelledAt
	got.LastPaymentID = 9
	require.NoError(t, s.SaveSubscription(ctx, got))

	again, err := s.GetSubscription(ctx, "creator1", "fan1")
	require.NoError(t, err)
	assert.Equal(t, uint32(4), again.PaymentAttempts)
	assert.Equal(t, uint64(9), again.LastPaymentID)
	require.NotNil(t, again.CancelledAt)
	sameTime(t, cancelledAt, *again.CancelledAt, "cancelled_at")

	renewed := newSubscription("creator1", "fan1", epoch.Add(subscription.DefaultPeriod), false)
	require.NoError(t, s.SaveSubscription(ctx, renewed))
	replaced, err := s.GetSubscription(ctx, "creator1", "fan1")
	require.NoError(t, err)
	assert.Equal(t, renewed.ID.String(), replaced.ID.String())
	assert.Nil(t, replaced.CancelledAt, "a fresh term clears the cancellation")
	assert.Zero(t, replaced.PaymentAttempts)

	byCreator, err := s.ListSubscriptions(ctx, subscription.ListOpts{CreatorID: "creator1"})
	require.NoError(t, err)
	require.Len(t, byCreator, 2)
	assert.Equal(t, "fan1", byCreator[0].FanID)
	assert.Equal(t, "fan2", byCreator[1].FanID)

	byFan, err := s.ListSubscriptions(ctx, subscription.ListOpts{FanID: "fan1"})
	require.NoError(t, err)
	require.Len(t, byFan, 2)
	assert.Equal(t, "creator1", byFan[0].CreatorID)
	assert.Equal(t, "creator2", byFan[1].CreatorID)
}

func testDueRenewals(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := epoch.Add(10 * 24 * time.Hour)

	later := newSubscription("creator1", "fan-late", now.Add(-time.Hour), true)
	retried := newSubscription("creator2", "fan-retried", now.Add(-48*time.Hour), true)
	retried.PaymentAttempts = 1
	retried.NextRetryAt = now.Add(-30 * time.Minute)
	notExpired := newSubscription("creator1", "fan-current", now.Add(time.Hour), true)
	manual := newSubscription("creator1", "fan-manual", now.Add(-time.Hour), false)
	waiting := newSubscription("creator1", "fan-waiting", now.Add(-time.Hour), true)
	waiting.NextRetryAt = now.Add(time.Minute)
	cancelled := newSubscription("creator1", "fan-cancelled", now.Add(-time.Hour), true)
	cancelledAt := now.Add(-time.Minute)
	cancelled.CancelledAt = &cancelledAt
	exact := newSubscription("creator3", "fan-exact", now, true)
	tied := newSubscription("creator3", "fan-a", now, true)

	for _, sub := range []*subscription.Subscription{later, retried, notExpired, manual, waiting, cancelled, exact, tied} {
		require.NoError(t, s.SaveSubscription(ctx, sub))
	}

	fanIDs := func(subs []*subscription.Subscription) []string {
		fans := make([]string, 0, len(subs))
		for _, sub := range subs {
			assert.True(t, sub.DueForRenewal(now))
			fans = append(fans, sub.FanID)
		}
		return fans
	}

	due, err := s.ListDueRenewals(ctx, now, subscription.DueCursor{}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"fan-late", "fan-retried", "fan-a", "fan-exact"}, fanIDs(due),
		"ordered by next retry, then creator, then fan")

	// Walking one at a time visits every due subscription exactly once.
	var (
		walked []string
		after  subscription.DueCursor
	)
	for range 10 {
		page, err := s.ListDueRenewals(ctx, now, after, 1)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		require.Len(t, page, 1)
		walked = append(walked, fanIDs(page)...)
		after = page[0].Cursor()
	}
	assert.Equal(t, fanIDs(due), walked)

	rest, err := s.ListDueRenewals(ctx, now, retried.Cursor(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"fan-a", "fan-exact"}, fanIDs(rest))
}

func testPayments(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetPayment(ctx, 0)
	require.ErrorIs(t, err, patron.ErrNotFound)

	entries := []*payment.Entry{
		{CreatorID: "creator1", FanID: "fan1", Amount: 5, Outcome: payment.OutcomeSuccess, Kind: payment.KindSubscribe},
		{CreatorID: "creator1", FanID: "fan1", Amount: 5, Outcome: payment.OutcomeFailed, Kind: payment.KindRenewal},
		{CreatorID: "creator2", FanID: "fan1", Amount: 8, Outcome: payment.OutcomeSuccess, Kind: payment.KindSubscribe},
	}
	for i, e := range entries {
		e.Reference = id.NewPaymentID()
		e.CreatedAt = epoch.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.AppendPayment(ctx, e))
		assert.Equal(t, uint64(i), e.ID, "payment IDs start at zero and increase by one")
	}

	got, err := s.GetPayment(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, entries[1].Reference.String(), got.Reference.String())
	assert.Equal(t, payment.OutcomeFailed, got.Outcome)
	assert.Equal(t, payment.KindRenewal, got.Kind)
	assert.Equal(t, types.Micro(5), got.Amount)
	sameTime(t, entries[1].CreatedAt, got.CreatedAt, "created_at")

	_, err = s.GetPayment(ctx, 3)
	require.ErrorIs(t, err, patron.ErrNotFound)

	succeeded, err := s.ListPayments(ctx, payment.ListOpts{FanID: "fan1", Outcome: payment.OutcomeSuccess})
	require.NoError(t, err)
	require.Len(t, succeeded, 2)
	assert.Equal(t, uint64(0), succeeded[0].ID)
	assert.Equal(t, uint64(2), succeeded[1].ID)

	byCreator, err := s.ListPayments(ctx, payment.ListOpts{CreatorID: "creator1", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, byCreator, 1)
	assert.Equal(t, uint64(1), byCreator[0].ID)
}

func testAtomicRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		if err := tx.CreditAccount(ctx, "fan1", 100, epoch); err != nil {
			return err
		}
		if err := tx.CreateCreator(ctx, &creator.Creator{Entity: types.NewEntity(epoch), ID: "creator1", Fee: 1}); err != nil {
			return err
		}
		e := &payment.Entry{Reference: id.NewPaymentID(), CreatorID: "creator1", FanID: "fan1",
			Amount: 1, Outcome: payment.OutcomeSuccess, Kind: payment.KindSubscribe, CreatedAt: epoch}
		if err := tx.AppendPayment(ctx, e); err != nil {
			return err
		}
		return tx.Atomic(ctx, func(context.Context, store.Store) error { return boom })
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetAccount(ctx, "fan1")
	require.ErrorIs(t, err, patron.ErrAccountNotFound)
	_, err = s.GetCreator(ctx, "creator1")
	require.ErrorIs(t, err, patron.ErrCreatorNotFound)
	_, err = s.GetPayment(ctx, 0)
	require.ErrorIs(t, err, patron.ErrNotFound)
}

func testAtomicRecoversFromFailedDebit(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreditAccount(ctx, "fan1", 5, epoch))

	err := s.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		if err := tx.DebitAccount(ctx, "fan1", 6, epoch); !errors.Is(err, patron.ErrInsufficientFunds) {
			return errors.Join(errors.New("expected insufficient funds"), err)
		}
		e := &payment.Entry{Reference: id.NewPaymentID(), CreatorID: "creator1", FanID: "fan1",
			Amount: 6, Outcome: payment.OutcomeFailed, Kind: payment.KindRenewal, CreatedAt: epoch}
		return tx.AppendPayment(ctx, e)
	})
	require.NoError(t, err)

	a, err := s.GetAccount(ctx, "fan1")
	require.NoError(t, err)
	assert.Equal(t, types.Micro(5), a.Balance)

	e, err := s.GetPayment(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeFailed, e.Outcome)
}

// testConcurrentCreatorUpdates runs read-modify-write transactions on one
// creator from several goroutines. No increment may be lost.
func testConcurrentCreatorUpdates(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateCreator(ctx, &creator.Creator{Entity: types.NewEntity(epoch), ID: "creator1", Fee: 1}))

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
				c, err := tx.GetCreator(ctx, "creator1")
				if err != nil {
					return err
				}
				c.TotalEarning += 1_000
				c.Balance += 1_000
				return tx.UpdateCreator(ctx, c)
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	c, err := s.GetCreator(ctx, "creator1")
	require.NoError(t, err)
	assert.Equal(t, types.Micro(workers*1_000), c.TotalEarning)
	assert.Equal(t, types.Micro(workers*1_000), c.Balance)
}

func testEngineLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := epoch
	p := patron.New(s, patron.WithClock(func() time.Time { return now }))

	_, err := p.RegisterCreator(ctx, "creator1", 1_000_000)
	require.NoError(t, err)
	_, err = p.Deposit(ctx, "fan1", 1_500_000)
	require.NoError(t, err)

	r, err := p.Subscribe(ctx, "creator1", "fan1", true)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), r.PaymentID)

	_, err = p.Subscribe(ctx, "creator1", "fan1", true)
	require.ErrorIs(t, err, patron.ErrDuplicateActiveSubscription)

	now = now.Add(p.Period())
	for attempt := uint32(1); attempt <= p.MaxRetries(); attempt++ {
		r, err = p.ProcessAutoRenewal(ctx, "creator1", "fan1")
		require.ErrorIs(t, err, patron.ErrAutoRenewFailed)
		assert.Equal(t, attempt, r.Subscription.PaymentAttempts)
	}

	active, err := p.IsActiveSubscriber(ctx, "creator1", "fan1")
	require.NoError(t, err)
	assert.True(t, active)

	_, err = p.ProcessAutoRenewal(ctx, "creator1", "fan1")
	require.ErrorIs(t, err, patron.ErrMaxRetriesExceeded)

	active, err = p.IsActiveSubscriber(ctx, "creator1", "fan1")
	require.NoError(t, err)
	assert.False(t, active)

	_, err = p.Withdraw(ctx, "creator1", "creator1", 1_000_001)
	require.ErrorIs(t, err, patron.ErrInsufficientBalance)
	_, err = p.Withdraw(ctx, "creator1", "creator1", 1_000_000)
	require.NoError(t, err)

	c, err := p.GetCreator(ctx, "creator1")
	require.NoError(t, err)
	assert.Equal(t, types.Micro(1_000_000), c.TotalEarning)
	assert.Zero(t, c.Balance)

	escrow, err := p.Balance(ctx, p.EscrowAccount())
	require.NoError(t, err)
	assert.Zero(t, escrow)

	fan, err := p.Balance(ctx, "fan1")
	require.NoError(t, err)
	assert.Equal(t, types.Micro(500_000), fan)

	history, err := p.ListPayments(ctx, payment.ListOpts{CreatorID: "creator1"})
	require.NoError(t, err)
	assert.Len(t, history, 5)
}
