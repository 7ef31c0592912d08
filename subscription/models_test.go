package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusDerivation(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expires := start.Add(DefaultPeriod)
	cancelledAt := expires.Add(time.Hour)

	tests := []struct {
		name      string
		sub       Subscription
		now       time.Time
		status    Status
		active    bool
		expired   bool
		grace     bool
		renewable bool
	}{
		{
			name:   "fresh",
			sub:    Subscription{ExpiresAt: expires, AutoRenew: true},
			now:    start,
			status: StatusActive, active: true,
		},
		{
			name:    "expired at exact boundary",
			sub:     Subscription{ExpiresAt: expires},
			now:     expires,
			status:  StatusExpired,
			expired: true,
		},
		{
			name:    "expired with auto renew and no attempts",
			sub:     Subscription{ExpiresAt: expires, AutoRenew: true},
			now:     expires.Add(time.Second),
			status:  StatusExpired,
			expired: true, renewable: true,
		},
		{
			name:   "grace after one failure",
			sub:    Subscription{ExpiresAt: expires, AutoRenew: true, PaymentAttempts: 1},
			now:    expires.Add(time.Second),
			status: StatusGracePeriod, active: true, expired: true, grace: true, renewable: true,
		},
		{
			name:   "grace at max retries",
			sub:    Subscription{ExpiresAt: expires, AutoRenew: true, PaymentAttempts: 3},
			now:    expires.Add(time.Second),
			status: StatusGracePeriod, active: true, expired: true, grace: true, renewable: true,
		},
		{
			name:    "auto renew turned off during grace",
			sub:     Subscription{ExpiresAt: expires, PaymentAttempts: 2},
			now:     expires.Add(time.Second),
			status:  StatusExpired,
			expired: true,
		},
		{
			name:    "cancelled",
			sub:     Subscription{ExpiresAt: expires, AutoRenew: true, PaymentAttempts: 4, CancelledAt: &cancelledAt},
			now:     cancelledAt,
			status:  StatusCancelled,
			expired: true,
		},
		{
			name:    "waiting for retry interval",
			sub:     Subscription{ExpiresAt: expires, AutoRenew: true, PaymentAttempts: 1, NextRetryAt: expires.Add(72 * time.Hour)},
			now:     expires.Add(time.Hour),
			status: StatusGracePeriod, active: true, expired: true, grace: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.sub
			assert.Equal(t, tt.status, s.Status(tt.now, DefaultMaxRetries))
			assert.Equal(t, tt.active, s.IsActive(tt.now, DefaultMaxRetries))
			assert.Equal(t, tt.expired, s.IsExpired(tt.now))
			assert.Equal(t, tt.grace, s.InGracePeriod(tt.now, DefaultMaxRetries))
			assert.Equal(t, tt.renewable, s.DueForRenewal(tt.now))
		})
	}
}

func TestDescribeNil(t *testing.T) {
	info := Describe(nil, time.Now(), DefaultMaxRetries)
	assert.Equal(t, StatusInactive, info.Status)
	assert.False(t, info.IsActive)
}

func TestListOptsMatches(t *testing.T) {
	s := &Subscription{CreatorID: "c1", FanID: "f1"}
	assert.True(t, ListOpts{}.Matches(s))
	assert.True(t, ListOpts{CreatorID: "c1"}.Matches(s))
	assert.True(t, ListOpts{FanID: "f1"}.Matches(s))
	assert.False(t, ListOpts{CreatorID: "c2"}.Matches(s))
	assert.False(t, ListOpts{CreatorID: "c1", FanID: "f2"}.Matches(s))
}

func TestDueCursorBefore(t *testing.T) {
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	sub := &Subscription{CreatorID: "c2", FanID: "f2", NextRetryAt: at}

	tests := []struct {
		name   string
		cursor DueCursor
		before bool
	}{
		{name: "zero", cursor: DueCursor{}, before: true},
		{name: "earlier retry", cursor: DueCursor{NextRetryAt: at.Add(-time.Second), CreatorID: "c9", FanID: "f9"}, before: true},
		{name: "later retry", cursor: DueCursor{NextRetryAt: at.Add(time.Second)}, before: false},
		{name: "lower creator", cursor: DueCursor{NextRetryAt: at, CreatorID: "c1", FanID: "f9"}, before: true},
		{name: "higher creator", cursor: DueCursor{NextRetryAt: at, CreatorID: "c3"}, before: false},
		{name: "lower fan", cursor: DueCursor{NextRetryAt: at, CreatorID: "c2", FanID: "f1"}, before: true},
		{name: "same position", cursor: sub.Cursor(), before: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.before, tt.cursor.Before(sub))
		})
	}
}
