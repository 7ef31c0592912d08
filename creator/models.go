// Package creator models the creator registry: one record per creator with
// its fee, cumulative earnings and withdrawable balance.
package creator

import (
	"errors"
	"fmt"

	"github.com/xraph/patron/types"
)

// Creator is the registry record of an account that charges a recurring fee.
type Creator struct {
	types.Entity
	ID                 string      `json:"id"`
	Fee                types.Micro `json:"fee"`
	TotalEarning       types.Micro `json:"total_earning"`
	Balance            types.Micro `json:"balance"`
	AutoRenewalDefault bool        `json:"auto_renewal_default"`
	TotalSubscribers   uint64      `json:"total_subscribers"`
}

// Earn credits a collected fee to both earnings and withdrawable balance.
// On error the record is unchanged.
func (c *Creator) Earn(amount types.Micro) error {
	total, err := c.TotalEarning.Add(amount)
	if err != nil {
		return err
	}
	balance, err := c.Balance.Add(amount)
	if err != nil {
		return err
	}
	c.TotalEarning, c.Balance = total, balance
	return nil
}

// Withdraw removes amount from the withdrawable balance. Earnings are not
// affected. It returns types.ErrUnderflow if amount exceeds the balance.
func (c *Creator) Withdraw(amount types.Micro) error {
	balance, err := c.Balance.Sub(amount)
	if err != nil {
		return err
	}
	c.Balance = balance
	return nil
}

// CheckInvariants verifies the record-level invariants.
func (c *Creator) CheckInvariants() error {
	var errs []error
	if c.Fee == 0 {
		errs = append(errs, fmt.Errorf("creator %q: fee is zero", c.ID))
	}
	if c.Balance > c.TotalEarning {
		errs = append(errs, fmt.Errorf("creator %q: balance %d exceeds total earning %d",
			c.ID, c.Balance, c.TotalEarning))
	}
	return errors.Join(errs...)
}

// ListOpts pages through creators ordered by ID.
type ListOpts struct {
	Limit  int
	Offset int
}
