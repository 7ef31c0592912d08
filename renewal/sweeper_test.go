package renewal_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/patron"
	"github.com/xraph/patron/renewal"
	"github.com/xraph/patron/store/memory"
	"github.com/xraph/patron/subscription"
	"github.com/xraph/patron/types"
)

const fee = types.Micro(1_000_000)

type fakeRenewer struct {
	mu      sync.Mutex
	due     []*subscription.Subscription
	results map[string]error
	calls   []string
	listErr error
}

func (f *fakeRenewer) ListDueRenewals(_ context.Context, after subscription.DueCursor, limit int) ([]*subscription.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*subscription.Subscription
	for _, sub := range f.due {
		if limit > 0 && len(out) == limit {
			break
		}
		if after.Before(sub) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (f *fakeRenewer) ProcessAutoRenewal(_ context.Context, creatorID, fanID string) (*patron.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fanID)
	err := f.results[fanID]
	if err == nil || errors.Is(err, patron.ErrMaxRetriesExceeded) {
		for i, sub := range f.due {
			if sub.CreatorID == creatorID && sub.FanID == fanID {
				f.due = append(f.due[:i:i], f.due[i+1:]...)
				break
			}
		}
	}
	return &patron.Receipt{}, err
}

// subs returns due subscriptions in the given order, one second of retry
// time apart.
func subs(fans ...string) []*subscription.Subscription {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	out := make([]*subscription.Subscription, len(fans))
	for i, fan := range fans {
		out[i] = &subscription.Subscription{
			CreatorID:   "alice",
			FanID:       fan,
			NextRetryAt: base.Add(time.Duration(i) * time.Second),
		}
	}
	return out
}

func TestRunOnceClassifiesOutcomes(t *testing.T) {
	r := &fakeRenewer{
		due: subs("ok", "broke", "gone", "late", "boom"),
		results: map[string]error{
			"broke": fmt.Errorf("%w: attempt 1 of 3", patron.ErrAutoRenewFailed),
			"gone":  fmt.Errorf("%w: attempt 4 of 3", patron.ErrMaxRetriesExceeded),
			"late":  fmt.Errorf("%w: next retry later", patron.ErrNotDue),
			"boom":  errors.New("disk on fire"),
		},
	}

	report, err := renewal.New(r).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, report.Due)
	assert.Equal(t, 1, report.Renewed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Cancelled)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, []string{"ok", "broke", "gone", "late", "boom"}, r.calls)
}

func TestRunOnceWalksBatches(t *testing.T) {
	tests := []struct {
		name      string
		batchSize int
		wantCalls int
	}{
		{name: "single batch", batchSize: 10, wantCalls: 5},
		{name: "exact batches", batchSize: 5, wantCalls: 5},
		{name: "many batches", batchSize: 2, wantCalls: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRenewer{due: subs("a", "b", "c", "d", "e")}
			report, err := renewal.New(r, renewal.WithBatchSize(tt.batchSize)).RunOnce(context.Background())
			require.NoError(t, err)
			assert.Len(t, r.calls, tt.wantCalls)
			assert.Equal(t, tt.wantCalls, report.Renewed)
		})
	}
}

func TestRunOnceVisitsStillDueItemsOnce(t *testing.T) {
	r := &fakeRenewer{
		due:     subs("a", "b"),
		results: map[string]error{"a": patron.ErrAutoRenewFailed, "b": patron.ErrAutoRenewFailed},
	}

	report, err := renewal.New(r, renewal.WithBatchSize(2)).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, r.calls)
	assert.Equal(t, 2, report.Failed)
}

func TestRunOnceListError(t *testing.T) {
	r := &fakeRenewer{listErr: errors.New("store offline")}

	_, err := renewal.New(r).RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store offline")
}

func TestRunOnceAgainstEngine(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	p := patron.New(memory.New(), patron.WithClock(func() time.Time { return now }))
	require.NoError(t, p.Start(ctx))
	t.Cleanup(func() { _ = p.Stop() })

	_, err := p.RegisterCreator(ctx, "alice", fee)
	require.NoError(t, err)
	for _, fan := range []string{"rich", "poor", "manual"} {
		_, err = p.Deposit(ctx, fan, fee)
		require.NoError(t, err)
		_, err = p.Subscribe(ctx, "alice", fan, fan != "manual")
		require.NoError(t, err)
	}
	_, err = p.Deposit(ctx, "rich", fee)
	require.NoError(t, err)

	s := renewal.New(p)

	report, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Due, "nothing is due before expiry")

	now = now.Add(p.Period())
	report, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Due)
	assert.Equal(t, 1, report.Renewed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, report, s.LastReport())

	info, err := p.GetSubscriptionStatus(ctx, "alice", "poor")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusGracePeriod, info.Status)

	for range 3 {
		_, err = s.RunOnce(ctx)
		require.NoError(t, err)
	}
	info, err = p.GetSubscriptionStatus(ctx, "alice", "poor")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCancelled, info.Status)
	assert.Equal(t, uint32(4), info.PaymentAttempts)

	due, err := p.ListDueRenewals(ctx, subscription.DueCursor{}, 0)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestRunOnceReachesFansBehindAFullBatchOfFailures(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	p := patron.New(memory.New(), patron.WithClock(func() time.Time { return now }))
	require.NoError(t, p.Start(ctx))
	t.Cleanup(func() { _ = p.Stop() })

	_, err := p.RegisterCreator(ctx, "alice", fee)
	require.NoError(t, err)
	for _, fan := range []string{"broke1", "broke2", "rich"} {
		_, err = p.Deposit(ctx, fan, fee)
		require.NoError(t, err)
		_, err = p.Subscribe(ctx, "alice", fan, true)
		require.NoError(t, err)
	}
	_, err = p.Deposit(ctx, "rich", fee)
	require.NoError(t, err)

	s := renewal.New(p, renewal.WithBatchSize(2))
	now = now.Add(p.Period())

	report, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Due)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 1, report.Renewed)

	active, err := p.IsActiveSubscriber(ctx, "alice", "rich")
	require.NoError(t, err)
	assert.True(t, active)
	info, err := p.GetSubscriptionStatus(ctx, "alice", "rich")
	require.NoError(t, err)
	assert.False(t, info.IsExpired)

	for _, fan := range []string{"broke1", "broke2"} {
		info, err := p.GetSubscriptionStatus(ctx, "alice", fan)
		require.NoError(t, err)
		assert.Equal(t, uint32(1), info.PaymentAttempts, "%s is attempted once per sweep", fan)
	}
}

type countingRenewer struct {
	fakeRenewer
	lists atomic.Int32
}

func (c *countingRenewer) ListDueRenewals(ctx context.Context, after subscription.DueCursor, limit int) ([]*subscription.Subscription, error) {
	c.lists.Add(1)
	return c.fakeRenewer.ListDueRenewals(ctx, after, limit)
}

func TestStartRunsOnSchedule(t *testing.T) {
	r := &countingRenewer{}
	s := renewal.New(r, renewal.WithSchedule("@every 1s"))

	require.NoError(t, s.Start())
	require.Error(t, s.Start(), "second start is rejected")

	require.Eventually(t, func() bool { return r.lists.Load() > 0 }, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx), "stop is idempotent")
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := renewal.New(&fakeRenewer{}, renewal.WithSchedule("every tuesday"))
	require.Error(t, s.Start())
}
