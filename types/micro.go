// Package types provides common types used across patron.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/shopspring/decimal"
)

// MicroDecimals is the number of decimal places between the native currency
// major unit and its micro unit.
const MicroDecimals = 6

// MaxMicro is the largest representable amount. It fits a signed 64-bit
// column so every store backend can hold it without conversion.
const MaxMicro Micro = math.MaxInt64

var (
	// ErrOverflow is returned when an addition would exceed MaxMicro.
	ErrOverflow = errors.New("types: amount overflow")
	// ErrUnderflow is returned when a subtraction would go below zero.
	ErrUnderflow = errors.New("types: amount underflow")
	// ErrInvalidAmount is returned when an amount cannot be parsed.
	ErrInvalidAmount = errors.New("types: invalid amount")
)

// Micro is an amount of the native currency in micro units
// (1 major unit = 1_000_000 micro). All arithmetic is integer-only and
// checked; amounts are never negative.
type Micro uint64

// Add returns m + other, or ErrOverflow if the sum exceeds MaxMicro.
func (m Micro) Add(other Micro) (Micro, error) {
	if m > MaxMicro || other > MaxMicro-m {
		return m, fmt.Errorf("%w: %d + %d", ErrOverflow, m, other)
	}
	return m + other, nil
}

// Sub returns m - other, or ErrUnderflow if other > m.
func (m Micro) Sub(other Micro) (Micro, error) {
	if other > m {
		return m, fmt.Errorf("%w: %d - %d", ErrUnderflow, m, other)
	}
	return m - other, nil
}

// IsZero returns true if the amount is zero.
func (m Micro) IsZero() bool { return m == 0 }

// Valid reports whether the amount is within the storable range.
func (m Micro) Valid() bool { return m <= MaxMicro }

// Major returns the amount in major units as an exact decimal.
func (m Micro) Major() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(m)), -MicroDecimals)
}

// String returns the amount in major units with all six decimals,
// e.g. "1.500000" for 1_500_000 micro.
func (m Micro) String() string {
	return m.Major().StringFixed(MicroDecimals)
}

// ParseMajor parses a major-unit decimal string ("1.5") into micro units.
// More than six fractional digits, negative values and values above
// MaxMicro are rejected.
func ParseMajor(s string) (Micro, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidAmount, s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}
	scaled := d.Shift(MicroDecimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, MicroDecimals)
	}
	n := scaled.BigInt()
	if !n.IsUint64() || Micro(n.Uint64()) > MaxMicro {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidAmount, s)
	}
	return Micro(n.Uint64()), nil
}

// MustParseMajor is like ParseMajor but panics on error. Use for constants.
func MustParseMajor(s string) Micro {
	m, err := ParseMajor(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Sum adds all amounts, failing on overflow.
func Sum(amounts ...Micro) (Micro, error) {
	var total Micro
	for _, a := range amounts {
		next, err := total.Add(a)
		if err != nil {
			return total, err
		}
		total = next
	}
	return total, nil
}

// MarshalJSON implements json.Marshaler.
func (m Micro) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Micro   uint64 `json:"micro"`
		Display string `json:"display"`
	}{
		Micro:   uint64(m),
		Display: m.String(),
	})
}

// UnmarshalJSON implements json.Unmarshaler. It accepts the object form
// produced by MarshalJSON or a bare integer of micro units. Values above
// MaxMicro are rejected.
func (m *Micro) UnmarshalJSON(data []byte) error {
	n, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		var v struct {
			Micro uint64 `json:"micro"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidAmount, err)
		}
		n = v.Micro
	}
	if Micro(n) > MaxMicro {
		return fmt.Errorf("%w: %d is out of range", ErrInvalidAmount, n)
	}
	*m = Micro(n)
	return nil
}
