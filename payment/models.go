// Package payment models the append-only payment history log. Every charge
// attempt (initial subscribe, successful renewal, failed renewal) produces
// exactly one entry.
package payment

import (
	"time"

	"github.com/xraph/patron/id"
	"github.com/xraph/patron/types"
)

// Outcome is the result of a charge attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Kind is the operation that produced the charge.
type Kind string

const (
	KindSubscribe Kind = "subscribe"
	KindRenewal   Kind = "renewal"
)

// Entry is one immutable payment history line. ID is assigned by the store,
// starting at 0 and increasing by one per entry.
type Entry struct {
	ID        uint64       `json:"id"`
	Reference id.PaymentID `json:"reference"`
	CreatorID string       `json:"creator_id"`
	FanID     string       `json:"fan_id"`
	Amount    types.Micro  `json:"amount"`
	Outcome   Outcome      `json:"outcome"`
	Kind      Kind         `json:"kind"`
	CreatedAt time.Time    `json:"created_at"`
}

// Succeeded reports whether money was collected.
func (e *Entry) Succeeded() bool { return e.Outcome == OutcomeSuccess }

// ListOpts filters the log. Results are ordered by ID ascending.
type ListOpts struct {
	CreatorID string
	FanID     string
	Outcome   Outcome
	Limit     int
	Offset    int
}

// Matches reports whether e passes the filter.
func (o ListOpts) Matches(e *Entry) bool {
	return (o.CreatorID == "" || e.CreatorID == o.CreatorID) &&
		(o.FanID == "" || e.FanID == o.FanID) &&
		(o.Outcome == "" || e.Outcome == o.Outcome)
}
