package plugin_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/patron/account"
	"github.com/xraph/patron/creator"
	"github.com/xraph/patron/payment"
	"github.com/xraph/patron/plugin"
	"github.com/xraph/patron/subscription"
)

type recorder struct {
	name string
	mu   sync.Mutex
	seen []string
	fail bool
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) note(event string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, event)
	if r.fail {
		return errors.New("boom")
	}
	return nil
}

func (r *recorder) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func (r *recorder) OnCreatorRegistered(_ context.Context, c *creator.Creator) error {
	return r.note("creator:" + c.ID)
}

func (r *recorder) OnSubscribed(_ context.Context, sub *subscription.Subscription, _ *payment.Entry) error {
	return r.note("subscribed:" + sub.FanID)
}

func (r *recorder) OnTransfer(_ context.Context, t *account.Transfer) error {
	return r.note("transfer:" + string(t.Kind))
}

type slow struct{}

func (slow) Name() string { return "slow" }

func (slow) OnShutdown(ctx context.Context) error {
	time.Sleep(200 * time.Millisecond)
	return nil
}

func TestRegisterCachesHooks(t *testing.T) {
	reg := plugin.NewRegistry()
	rec := &recorder{name: "rec"}
	require.NoError(t, reg.Register(rec))

	ctx := context.Background()
	reg.EmitCreatorRegistered(ctx, &creator.Creator{ID: "c1"})
	reg.EmitSubscribed(ctx, &subscription.Subscription{FanID: "f1"}, &payment.Entry{})
	reg.EmitTransfer(ctx, &account.Transfer{Kind: account.KindDeposit})
	reg.EmitTransfer(ctx, nil)
	reg.EmitRenewed(ctx, &subscription.Subscription{}, &payment.Entry{})

	assert.Equal(t, []string{"creator:c1", "subscribed:f1", "transfer:deposit"}, rec.events())
	assert.Equal(t, 1, reg.Count())
	assert.Same(t, rec, reg.Get("rec"))
	assert.Nil(t, reg.Get("missing"))
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	reg := plugin.NewRegistry()
	require.NoError(t, reg.Register(&recorder{name: "rec"}))
	assert.Error(t, reg.Register(&recorder{name: "rec"}))
	assert.Len(t, reg.List(), 1)
}

func TestHookErrorsDoNotStopDispatch(t *testing.T) {
	reg := plugin.NewRegistry()
	bad := &recorder{name: "bad", fail: true}
	good := &recorder{name: "good"}
	require.NoError(t, reg.Register(bad))
	require.NoError(t, reg.Register(good))

	reg.EmitCreatorRegistered(context.Background(), &creator.Creator{ID: "c1"})

	assert.Equal(t, []string{"creator:c1"}, bad.events())
	assert.Equal(t, []string{"creator:c1"}, good.events())
}

func TestHookTimeout(t *testing.T) {
	reg := plugin.NewRegistry().WithTimeout(20 * time.Millisecond)
	require.NoError(t, reg.Register(slow{}))

	start := time.Now()
	reg.EmitShutdown(context.Background())
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}
