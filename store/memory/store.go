// Package memory provides an in-process store.Store for tests and
// single-instance deployments. Transactions copy the state, run against the
// copy and swap it in on success.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/xraph/patron"
	"github.com/xraph/patron/account"
	"github.com/xraph/patron/creator"
	"github.com/xraph/patron/payment"
	"github.com/xraph/patron/store"
	"github.com/xraph/patron/subscription"
	"github.com/xraph/patron/types"
)

var _ store.Store = (*Store)(nil)

type pairKey struct {
	creatorID string
	fanID     string
}

type state struct {
	accounts      map[string]account.Account
	transfers     []account.Transfer
	creators      map[string]creator.Creator
	subscriptions map[pairKey]subscription.Subscription
	payments      []payment.Entry
}

func newState() *state {
	return &state{
		accounts:      make(map[string]account.Account),
		creators:      make(map[string]creator.Creator),
		subscriptions: make(map[pairKey]subscription.Subscription),
	}
}

func (st *state) clone() *state {
	c := &state{
		accounts:      make(map[string]account.Account, len(st.accounts)),
		transfers:     slices.Clone(st.transfers),
		creators:      make(map[string]creator.Creator, len(st.creators)),
		subscriptions: make(map[pairKey]subscription.Subscription, len(st.subscriptions)),
		payments:      slices.Clone(st.payments),
	}
	for k, v := range st.accounts {
		c.accounts[k] = v
	}
	for k, v := range st.creators {
		c.creators[k] = v
	}
	for k, v := range st.subscriptions {
		c.subscriptions[k] = copySubscription(v)
	}
	return c
}

func copySubscription(s subscription.Subscription) subscription.Subscription {
	if s.CancelledAt != nil {
		at := *s.CancelledAt
		s.CancelledAt = &at
	}
	return s
}

// Store is an in-memory store.Store.
type Store struct {
	mu   *sync.RWMutex
	st   *state
	inTx bool
}

// New creates an empty memory store.
func New() *Store {
	return &Store{
		mu: &sync.RWMutex{},
		st: newState(),
	}
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) rlock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

// ──────────────────────────────────────────────────
// Core methods
// ──────────────────────────────────────────────────

// Atomic implements store.Store. Nested calls join the outer transaction.
func (s *Store) Atomic(ctx context.Context, fn store.TxFunc) error {
	if s.inTx {
		return fn(ctx, s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Store{mu: s.mu, st: s.st.clone(), inTx: true}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Account methods
// ──────────────────────────────────────────────────

func (s *Store) GetAccount(_ context.Context, accountID string) (*account.Account, error) {
	defer s.rlock()()

	a, ok := s.st.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", patron.ErrAccountNotFound, accountID)
	}
	return &a, nil
}

func (s *Store) CreditAccount(_ context.Context, accountID string, amount types.Micro, at time.Time) error {
	defer s.lock()()

	a, ok := s.st.accounts[accountID]
	if !ok {
		a = account.Account{ID: accountID, Entity: types.NewEntity(at)}
	}
	balance, err := a.Balance.Add(amount)
	if err != nil {
		return fmt.Errorf("%w: %w", patron.ErrAmountOverflow, err)
	}
	a.Balance = balance
	a.Touch(at)
	s.st.accounts[accountID] = a
	return nil
}

func (s *Store) DebitAccount(_ context.Context, accountID string, amount types.Micro, at time.Time) error {
	defer s.lock()()

	a := s.st.accounts[accountID]
	if a.Balance < amount {
		return fmt.Errorf("%w: %q holds %d, needs %d", patron.ErrInsufficientFunds, accountID, a.Balance, amount)
	}
	a.Balance -= amount
	a.Touch(at)
	s.st.accounts[accountID] = a
	return nil
}

func (s *Store) RecordTransfer(_ context.Context, t *account.Transfer) error {
	defer s.lock()()

	s.st.transfers = append(s.st.transfers, *t)
	return nil
}

func (s *Store) ListTransfers(_ context.Context, opts account.ListOpts) ([]*account.Transfer, error) {
	defer s.rlock()()

	result := make([]*account.Transfer, 0)
	for i := range s.st.transfers {
		if opts.Matches(&s.st.transfers[i]) {
			t := s.st.transfers[i]
			result = append(result, &t)
		}
	}
	return page(result, opts.Limit, opts.Offset), nil
}

// ──────────────────────────────────────────────────
// Creator methods
// ──────────────────────────────────────────────────

func (s *Store) CreateCreator(_ context.Context, c *creator.Creator) error {
	defer s.lock()()

	if _, exists := s.st.creators[c.ID]; exists {
		return fmt.Errorf("%w: %q", patron.ErrDuplicateCreator, c.ID)
	}
	s.st.creators[c.ID] = *c
	return nil
}

func (s *Store) GetCreator(_ context.Context, creatorID string) (*creator.Creator, error) {
	defer s.rlock()()

	c, ok := s.st.creators[creatorID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", patron.ErrCreatorNotFound, creatorID)
	}
	return &c, nil
}

func (s *Store) UpdateCreator(_ context.Context, c *creator.Creator) error {
	defer s.lock()()

	if _, exists := s.st.creators[c.ID]; !exists {
		return fmt.Errorf("%w: %q", patron.ErrCreatorNotFound, c.ID)
	}
	s.st.creators[c.ID] = *c
	return nil
}

func (s *Store) ListCreators(_ context.Context, opts creator.ListOpts) ([]*creator.Creator, error) {
	defer s.rlock()()

	result := make([]*creator.Creator, 0, len(s.st.creators))
	for _, c := range s.st.creators {
		result = append(result, &c)
	}
	slices.SortFunc(result, func(a, b *creator.Creator) int { return cmp.Compare(a.ID, b.ID) })
	return page(result, opts.Limit, opts.Offset), nil
}

// ──────────────────────────────────────────────────
// Subscription methods
// ──────────────────────────────────────────────────

func (s *Store) GetSubscription(_ context.Context, creatorID, fanID string) (*subscription.Subscription, error) {
	defer s.rlock()()

	sub, ok := s.st.subscriptions[pairKey{creatorID, fanID}]
	if !ok {
		return nil, fmt.Errorf("%w: creator %q fan %q", patron.ErrNoSubscription, creatorID, fanID)
	}
	sub = copySubscription(sub)
	return &sub, nil
}

func (s *Store) SaveSubscription(_ context.Context, sub *subscription.Subscription) error {
	defer s.lock()()

	s.st.subscriptions[pairKey{sub.CreatorID, sub.FanID}] = copySubscription(*sub)
	return nil
}

func (s *Store) ListSubscriptions(_ context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	defer s.rlock()()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.st.subscriptions {
		if opts.Matches(&sub) {
			sub = copySubscription(sub)
			result = append(result, &sub)
		}
	}
	slices.SortFunc(result, comparePair)
	return page(result, opts.Limit, opts.Offset), nil
}

func (s *Store) ListDueRenewals(_ context.Context, now time.Time, after subscription.DueCursor, limit int) ([]*subscription.Subscription, error) {
	defer s.rlock()()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.st.subscriptions {
		if sub.DueForRenewal(now) && after.Before(&sub) {
			sub = copySubscription(sub)
			result = append(result, &sub)
		}
	}
	slices.SortFunc(result, func(a, b *subscription.Subscription) int {
		if c := a.NextRetryAt.Compare(b.NextRetryAt); c != 0 {
			return c
		}
		return comparePair(a, b)
	})
	return page(result, limit, 0), nil
}

func comparePair(a, b *subscription.Subscription) int {
	if c := cmp.Compare(a.CreatorID, b.CreatorID); c != 0 {
		return c
	}
	return cmp.Compare(a.FanID, b.FanID)
}

// ──────────────────────────────────────────────────
// Payment methods
// ──────────────────────────────────────────────────

func (s *Store) AppendPayment(_ context.Context, e *payment.Entry) error {
	defer s.lock()()

	e.ID = uint64(len(s.st.payments))
	s.st.payments = append(s.st.payments, *e)
	return nil
}

func (s *Store) GetPayment(_ context.Context, paymentID uint64) (*payment.Entry, error) {
	defer s.rlock()()

	if paymentID >= uint64(len(s.st.payments)) {
		return nil, fmt.Errorf("%w: payment %d", patron.ErrNotFound, paymentID)
	}
	e := s.st.payments[paymentID]
	return &e, nil
}

func (s *Store) ListPayments(_ context.Context, opts payment.ListOpts) ([]*payment.Entry, error) {
	defer s.rlock()()

	result := make([]*payment.Entry, 0)
	for i := range s.st.payments {
		if opts.Matches(&s.st.payments[i]) {
			e := s.st.payments[i]
			result = append(result, &e)
		}
	}
	return page(result, opts.Limit, opts.Offset), nil
}

// page applies offset then limit; a zero limit means no limit.
func page[T any](items []T, limit, offset int) []T {
	start := min(max(offset, 0), len(items))
	end := len(items)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return items[start:end]
}
