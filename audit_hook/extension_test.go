package audithook_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/patron"
	audithook "github.com/xraph/patron/audit_hook"
	"github.com/xraph/patron/store/memory"
	"github.com/xraph/patron/types"
)

type trail struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (tr *trail) Record(_ context.Context, e *audithook.AuditEvent) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.events = append(tr.events, e)
	return nil
}

func (tr *trail) actions() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]string, 0, len(tr.events))
	for _, e := range tr.events {
		out = append(out, e.Action)
	}
	return out
}

func newEngine(t *testing.T, ext *audithook.Extension, now *time.Time) *patron.Patron {
	t.Helper()
	p := patron.New(memory.New(),
		patron.WithPlugin(ext),
		patron.WithClock(func() time.Time { return *now }),
	)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop() })
	return p
}

func TestAuditTrailFollowsLifecycle(t *testing.T) {
	ctx := context.Background()
	tr := &trail{}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := newEngine(t, audithook.New(tr), &now)

	fee := types.MustParseMajor("1")
	_, err := p.RegisterCreator(ctx, "creator1", fee)
	require.NoError(t, err)
	_, err = p.Deposit(ctx, "fan1", fee)
	require.NoError(t, err)
	_, err = p.Subscribe(ctx, "creator1", "fan1", true)
	require.NoError(t, err)

	now = now.Add(patron.DefaultPeriod)
	for {
		_, err = p.ProcessAutoRenewal(ctx, "creator1", "fan1")
		if errors.Is(err, patron.ErrMaxRetriesExceeded) {
			break
		}
		require.ErrorIs(t, err, patron.ErrAutoRenewFailed)
	}

	_, err = p.Entitled(ctx, "creator1", "fan1")
	require.NoError(t, err)

	assert.Equal(t, []string{
		audithook.ActionCreatorRegistered,
		audithook.ActionSubscriptionStarted,
		audithook.ActionSubscriptionRenewalFailed,
		audithook.ActionSubscriptionRenewalFailed,
		audithook.ActionSubscriptionRenewalFailed,
		audithook.ActionSubscriptionRenewalFailed,
		audithook.ActionSubscriptionCancelled,
		audithook.ActionEntitlementDenied,
	}, tr.actions())

	cancelled := tr.events[6]
	assert.Equal(t, audithook.SeverityCritical, cancelled.Severity)
	assert.Equal(t, uint32(4), cancelled.Metadata["attempts"])
	assert.NotEmpty(t, cancelled.Reason)
}

func TestAuditActionFilters(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("enabled", func(t *testing.T) {
		tr := &trail{}
		p := newEngine(t, audithook.New(tr, audithook.WithEnabledActions(audithook.ActionCreatorFeeUpdated)), &now)
		_, err := p.RegisterCreator(ctx, "creator1", 1)
		require.NoError(t, err)
		_, err = p.UpdateFee(ctx, "creator1", "creator1", 2)
		require.NoError(t, err)

		assert.Equal(t, []string{audithook.ActionCreatorFeeUpdated}, tr.actions())
		assert.Equal(t, "0.000001", tr.events[0].Metadata["old_fee"])
	})

	t.Run("disabled", func(t *testing.T) {
		tr := &trail{}
		p := newEngine(t, audithook.New(tr, audithook.WithDisabledActions(audithook.ActionCreatorRegistered)), &now)
		_, err := p.RegisterCreator(ctx, "creator1", 1)
		require.NoError(t, err)
		_, err = p.SetAutoRenewalDefault(ctx, "creator1", "creator1", true)
		require.NoError(t, err)

		assert.Equal(t, []string{audithook.ActionCreatorAutoRenewalDefault}, tr.actions())
	})
}

func TestRecorderErrorsAreSwallowed(t *testing.T) {
	ext := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	}))
	now := time.Now()
	p := newEngine(t, ext, &now)

	_, err := p.RegisterCreator(context.Background(), "creator1", 1)
	require.NoError(t, err)
}
