// Package entitlement describes the answer given to a content gateway that
// asks whether a fan may access a creator's subscriber-only content.
package entitlement

import (
	"time"

	"github.com/xraph/patron/subscription"
)

// Reasons reported with a denied or conditional result.
const (
	ReasonSubscribed    = "subscribed"
	ReasonGracePeriod   = "renewal pending"
	ReasonNoRecord      = "no subscription"
	ReasonExpired       = "subscription expired"
	ReasonCancelled     = "subscription cancelled"
	ReasonSelfAccess    = "creator owns the content"
	ReasonNoSuchCreator = "creator not registered"
)

// Result is computed fresh on every check and never cached.
type Result struct {
	Allowed   bool                `json:"allowed"`
	CreatorID string              `json:"creator_id"`
	FanID     string              `json:"fan_id"`
	Status    subscription.Status `json:"status"`
	ExpiresAt time.Time           `json:"expires_at,omitempty"`
	Reason    string              `json:"reason"`
}

// FromInfo builds a Result from a subscription status projection.
func FromInfo(creatorID, fanID string, info subscription.Info) *Result {
	r := &Result{
		Allowed:   info.IsActive,
		CreatorID: creatorID,
		FanID:     fanID,
		Status:    info.Status,
		ExpiresAt: info.ExpiresAt,
	}
	switch info.Status {
	case subscription.StatusActive:
		r.Reason = ReasonSubscribed
	case subscription.StatusGracePeriod:
		r.Reason = ReasonGracePeriod
	case subscription.StatusExpired:
		r.Reason = ReasonExpired
	case subscription.StatusCancelled:
		r.Reason = ReasonCancelled
	default:
		r.Reason = ReasonNoRecord
	}
	return r
}
