package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/patron"
	"github.com/xraph/patron/observability"
	"github.com/xraph/patron/store/memory"
	"github.com/xraph/patron/types"
)

func TestMetricsExtensionRecordsLifecycle(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	factory := observability.NewPrometheusFactory(reg)
	metrics := observability.NewMetricsExtension(factory)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := patron.New(memory.New(),
		patron.WithPlugin(metrics),
		patron.WithClock(func() time.Time { return now }),
	)
	require.NoError(t, p.Start(ctx))
	defer p.Stop()

	_, err := p.RegisterCreator(ctx, "creator1", types.MustParseMajor("2"))
	require.NoError(t, err)
	_, err = p.Deposit(ctx, "fan1", types.MustParseMajor("2"))
	require.NoError(t, err)
	_, err = p.Subscribe(ctx, "creator1", "fan1", true)
	require.NoError(t, err)

	now = now.Add(patron.DefaultPeriod)
	_, err = p.ProcessAutoRenewal(ctx, "creator1", "fan1")
	require.True(t, errors.Is(err, patron.ErrAutoRenewFailed))

	res, err := p.Entitled(ctx, "creator1", "stranger")
	require.NoError(t, err)
	require.False(t, res.Allowed)

	_, err = p.Withdraw(ctx, "creator1", "creator1", types.MustParseMajor("1"))
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CreatorRegistered))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SubscriptionStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RenewalFailed))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.SubscriptionRenewed))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PaymentsSucceeded))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PaymentsFailed))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.TransfersRecorded), "deposit, subscribe and withdrawal")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Withdrawals))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EntitlementDenied))

	count, err := testutil.GatherAndCount(reg, "patron_payment_amount", "patron_subscription_started")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPrometheusFactoryReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	f1 := observability.NewPrometheusFactory(reg)
	f2 := observability.NewPrometheusFactory(reg)

	c1 := f1.Counter("patron.test.events")
	c2 := f2.Counter("patron.test.events")
	c1.Inc()
	c2.Add(2)

	assert.Same(t, f1.Counter("patron.test.events"), c1)
	assert.Equal(t, 3.0, testutil.ToFloat64(c1.(prometheus.Counter)))
}
