// Package subscription models the per-(creator, fan) subscription record
// and derives its lifecycle status from stored fields and the current time.
package subscription

import (
	"time"

	"github.com/xraph/patron/id"
	"github.com/xraph/patron/types"
)

const (
	// DefaultPeriod is the duration granted by one successful payment.
	DefaultPeriod = 30 * 24 * time.Hour

	// DefaultMaxRetries is the number of failed renewals tolerated before
	// the subscription is cancelled.
	DefaultMaxRetries uint32 = 3
)

// Status is the derived lifecycle state of a subscription. It is never
// persisted.
type Status string

const (
	StatusInactive    Status = "inactive"
	StatusActive      Status = "active"
	StatusGracePeriod Status = "grace_period"
	StatusExpired     Status = "expired"
	StatusCancelled   Status = "cancelled"
)

// Subscription is the record for one (creator, fan) pair. A fresh subscribe
// overwrites the record in place and assigns a new term ID.
type Subscription struct {
	types.Entity
	ID              id.SubscriptionID `json:"id"`
	CreatorID       string            `json:"creator_id"`
	FanID           string            `json:"fan_id"`
	StartedAt       time.Time         `json:"started_at"`
	ExpiresAt       time.Time         `json:"expires_at"`
	AutoRenew       bool              `json:"auto_renew"`
	PaymentAttempts uint32            `json:"payment_attempts"`
	NextRetryAt     time.Time         `json:"next_retry_at"`
	CancelledAt     *time.Time        `json:"cancelled_at,omitempty"`
	LastPaymentID   uint64            `json:"last_payment_id"`
}

// Cancelled reports whether retries were exhausted on this term.
func (s *Subscription) Cancelled() bool {
	return s.CancelledAt != nil
}

// IsExpired reports whether the paid period has lapsed.
func (s *Subscription) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// InGracePeriod reports whether an expired subscription is still honoured
// while renewal retries remain. Grace requires AutoRenew: once the fan turns
// renewal off no further attempt will run, so a cancelled auto-renewal ends
// access at expiry instead of leaving the fan in grace indefinitely.
func (s *Subscription) InGracePeriod(now time.Time, maxRetries uint32) bool {
	return s.IsExpired(now) &&
		s.AutoRenew &&
		!s.Cancelled() &&
		s.PaymentAttempts > 0 &&
		s.PaymentAttempts <= maxRetries
}

// IsActive reports whether the fan currently has access.
func (s *Subscription) IsActive(now time.Time, maxRetries uint32) bool {
	if s.Cancelled() {
		return false
	}
	return !s.IsExpired(now) || s.InGracePeriod(now, maxRetries)
}

// Status derives the lifecycle state at now.
func (s *Subscription) Status(now time.Time, maxRetries uint32) Status {
	switch {
	case s.Cancelled():
		return StatusCancelled
	case !s.IsExpired(now):
		return StatusActive
	case s.InGracePeriod(now, maxRetries):
		return StatusGracePeriod
	default:
		return StatusExpired
	}
}

// DueForRenewal reports whether an unattended renewal may run at now.
func (s *Subscription) DueForRenewal(now time.Time) bool {
	return s.AutoRenew &&
		!s.Cancelled() &&
		s.IsExpired(now) &&
		!now.Before(s.NextRetryAt)
}

// DueCursor is a position in the due-renewal order: next retry time, then
// creator, then fan. The zero value starts before every subscription.
type DueCursor struct {
	NextRetryAt time.Time
	CreatorID   string
	FanID       string
}

// IsZero reports whether c starts from the beginning.
func (c DueCursor) IsZero() bool {
	return c.NextRetryAt.IsZero() && c.CreatorID == "" && c.FanID == ""
}

// Before reports whether c sorts strictly before s in due-renewal order.
func (c DueCursor) Before(s *Subscription) bool {
	if c.IsZero() {
		return true
	}
	switch {
	case !c.NextRetryAt.Equal(s.NextRetryAt):
		return c.NextRetryAt.Before(s.NextRetryAt)
	case c.CreatorID != s.CreatorID:
		return c.CreatorID < s.CreatorID
	default:
		return c.FanID < s.FanID
	}
}

// Cursor returns the position of s in due-renewal order. Listing after it
// resumes with the next subscription.
func (s *Subscription) Cursor() DueCursor {
	return DueCursor{NextRetryAt: s.NextRetryAt, CreatorID: s.CreatorID, FanID: s.FanID}
}

// Info is the read-only status projection of a subscription.
type Info struct {
	CreatorID       string     `json:"creator_id"`
	FanID           string     `json:"fan_id"`
	Status          Status     `json:"status"`
	IsActive        bool       `json:"is_active"`
	IsExpired       bool       `json:"is_expired"`
	InGracePeriod   bool       `json:"in_grace_period"`
	AutoRenew       bool       `json:"auto_renew"`
	PaymentAttempts uint32     `json:"payment_attempts"`
	StartedAt       time.Time  `json:"started_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
	NextRetryAt     time.Time  `json:"next_retry_at"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
}

// Describe computes Info at now. A nil record yields StatusInactive.
func Describe(s *Subscription, now time.Time, maxRetries uint32) Info {
	if s == nil {
		return Info{Status: StatusInactive}
	}
	return Info{
		CreatorID:       s.CreatorID,
		FanID:           s.FanID,
		Status:          s.Status(now, maxRetries),
		IsActive:        s.IsActive(now, maxRetries),
		IsExpired:       s.IsExpired(now),
		InGracePeriod:   s.InGracePeriod(now, maxRetries),
		AutoRenew:       s.AutoRenew,
		PaymentAttempts: s.PaymentAttempts,
		StartedAt:       s.StartedAt,
		ExpiresAt:       s.ExpiresAt,
		NextRetryAt:     s.NextRetryAt,
		CancelledAt:     s.CancelledAt,
	}
}

// ListOpts filters subscriptions by creator and/or fan.
type ListOpts struct {
	CreatorID string
	FanID     string
	Limit     int
	Offset    int
}

// Matches reports whether s passes the filter.
func (o ListOpts) Matches(s *Subscription) bool {
	return (o.CreatorID == "" || s.CreatorID == o.CreatorID) &&
		(o.FanID == "" || s.FanID == o.FanID)
}
