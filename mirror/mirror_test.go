package mirror_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/patron"
	"github.com/xraph/patron/creator"
	"github.com/xraph/patron/id"
	"github.com/xraph/patron/mirror"
	"github.com/xraph/patron/store/memory"
	"github.com/xraph/patron/subscription"
	"github.com/xraph/patron/types"
)

const fee = types.Micro(1_000_000)

type message struct {
	subject string
	event   mirror.Event
}

type recorder struct {
	mu   sync.Mutex
	msgs []message
}

func (r *recorder) Publish(_ context.Context, subject string, data []byte) error {
	var evt mirror.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, message{subject: subject, event: evt})
	return nil
}

func (r *recorder) subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.subject + ":" + m.event.Action
	}
	return out
}

func (r *recorder) last() mirror.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.msgs[len(r.msgs)-1].event
}

func newEngine(t *testing.T, pl *mirror.Extension) (*patron.Patron, *time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := patron.New(memory.New(),
		patron.WithPlugin(pl),
		patron.WithClock(func() time.Time { return now }),
	)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop() })
	return p, &now
}

func TestMirrorPublishesSnapshots(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	p, now := newEngine(t, mirror.New(rec, mirror.WithPrefix("billing")))

	_, err := p.RegisterCreator(ctx, "alice", fee)
	require.NoError(t, err)
	_, err = p.Deposit(ctx, "bob", fee)
	require.NoError(t, err)
	_, err = p.Subscribe(ctx, "alice", "bob", true)
	require.NoError(t, err)

	got := rec.last()
	assert.Equal(t, mirror.KindSubscription, got.Kind)
	assert.Equal(t, id.PrefixEvent, got.ID.Prefix())
	var sub subscription.Subscription
	require.NoError(t, json.Unmarshal(got.Data, &sub))
	assert.Equal(t, "alice", sub.CreatorID)
	assert.True(t, sub.AutoRenew)

	*now = now.Add(p.Period())
	_, err = p.ProcessAutoRenewal(ctx, "alice", "bob")
	require.ErrorIs(t, err, patron.ErrAutoRenewFailed)

	_, err = p.Withdraw(ctx, "alice", "alice", fee)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"billing.creator:registered",
		"billing.transfer:deposit",
		"billing.transfer:subscription",
		"billing.payment:recorded",
		"billing.subscription:subscribed",
		"billing.payment:recorded",
		"billing.subscription:renewal_failed",
		"billing.transfer:withdrawal",
		"billing.creator:withdrawal",
	}, rec.subjects())

	var c creator.Creator
	require.NoError(t, json.Unmarshal(rec.last().Data, &c))
	assert.Equal(t, types.Micro(0), c.Balance)
	assert.Equal(t, fee, c.TotalEarning)
}

func TestMirrorKindFilter(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	p, _ := newEngine(t, mirror.New(rec, mirror.WithKinds(mirror.KindPayment)))

	_, err := p.RegisterCreator(ctx, "alice", fee)
	require.NoError(t, err)
	_, err = p.Deposit(ctx, "bob", fee)
	require.NoError(t, err)
	_, err = p.Subscribe(ctx, "alice", "bob", false)
	require.NoError(t, err)

	assert.Equal(t, []string{"patron.payment:recorded"}, rec.subjects())
}

func TestMirrorPublishFailureDoesNotFailOperation(t *testing.T) {
	ctx := context.Background()
	pub := mirror.PublisherFunc(func(context.Context, string, []byte) error {
		return errors.New("bus down")
	})
	p, _ := newEngine(t, mirror.New(pub))

	c, err := p.RegisterCreator(ctx, "alice", fee)
	require.NoError(t, err)
	assert.Equal(t, fee, c.Fee)

	stored, err := p.GetCreator(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.ID)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "patron.transfer", mirror.New(nil).Subject(mirror.KindTransfer))
	assert.Equal(t, "x.creator", mirror.New(nil, mirror.WithPrefix("x")).Subject(mirror.KindCreator))
}
