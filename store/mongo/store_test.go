package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/patron/id"
	"github.com/xraph/patron/store"
	"github.com/xraph/patron/store/storetest"
	"github.com/xraph/patron/subscription"
	"github.com/xraph/patron/types"
)

func TestSubscriptionModelRoundTrip(t *testing.T) {
	now := time.Date(2026, 4, 2, 8, 0, 0, 123456789, time.UTC)
	cancelled := now.Add(time.Hour)
	sub := &subscription.Subscription{
		Entity:          types.NewEntity(now),
		ID:              id.NewSubscriptionID(),
		CreatorID:       "creator1",
		FanID:           "fan1",
		StartedAt:       now,
		ExpiresAt:       now.Add(subscription.DefaultPeriod),
		AutoRenew:       true,
		PaymentAttempts: 4,
		NextRetryAt:     now,
		CancelledAt:     &cancelled,
		LastPaymentID:   12,
	}

	got, err := fromSubscriptionModel(toSubscriptionModel(sub))
	require.NoError(t, err)
	assert.Equal(t, sub, got, "nanosecond timestamps survive the round trip")

	sub.CancelledAt = nil
	m := toSubscriptionModel(sub)
	assert.Nil(t, m.CancelledAt)
}

// TestConformance runs the shared store suite against a live replica set
// when PATRON_MONGO_URI is set.
func TestConformance(t *testing.T) {
	uri := os.Getenv("PATRON_MONGO_URI")
	if uri == "" {
		t.Skip("PATRON_MONGO_URI not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		s, err := Open(ctx, uri, "patron_test")
		require.NoError(t, err)
		require.NoError(t, s.Database().Drop(ctx))
		require.NoError(t, s.Migrate(ctx))
		return s
	})
}
