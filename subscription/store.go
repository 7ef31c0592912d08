package subscription

import (
	"context"
	"time"
)

// Store persists subscription records keyed by (creator, fan).
//
// GetSubscription fails with patron.ErrNoSubscription when the pair has no
// record. SaveSubscription inserts or overwrites the pair's record.
// ListDueRenewals returns records for which DueForRenewal(now) holds and
// which sort after the cursor, ordered by next retry time, then creator,
// then fan. A zero limit means no limit.
type Store interface {
	GetSubscription(ctx context.Context, creatorID, fanID string) (*Subscription, error)
	SaveSubscription(ctx context.Context, s *Subscription) error
	ListSubscriptions(ctx context.Context, opts ListOpts) ([]*Subscription, error)
	ListDueRenewals(ctx context.Context, now time.Time, after DueCursor, limit int) ([]*Subscription, error)
}
