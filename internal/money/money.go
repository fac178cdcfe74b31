// Package money holds prices and totals as integer minor units.
// Conversion to a decimal string happens only when presenting a value.
package money

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Cents is an amount in minor currency units (cents for USD).
type Cents int64

var (
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrOverflow       = errors.New("amount out of range")
)

// Times returns the amount multiplied by quantity. A product that does not fit
// in int64 cents returns ErrOverflow.
func (c Cents) Times(quantity int) (Cents, error) {
	if c == 0 || quantity == 0 {
		return 0, nil
	}
	q := int64(quantity)
	v := int64(c)
	if (v == -1 && q == math.MinInt64) || (q == -1 && v == math.MinInt64) {
		return 0, fmt.Errorf("%w: %d × %d", ErrOverflow, v, q)
	}
	product := v * q
	if product/q != v {
		return 0, fmt.Errorf("%w: %d × %d", ErrOverflow, v, q)
	}
	return Cents(product), nil
}

// Sum adds amounts. Addition over integers is exact and order-independent; a
// total that does not fit in int64 cents returns ErrOverflow.
func Sum(amounts ...Cents) (Cents, error) {
	var total Cents
	for _, a := range amounts {
		if (a > 0 && total > math.MaxInt64-a) || (a < 0 && total < math.MinInt64-a) {
			return 0, fmt.Errorf("%w: sum exceeds %d", ErrOverflow, int64(math.MaxInt64))
		}
		total += a
	}
	return total, nil
}

// Decimal returns the amount in major units.
func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

// String formats the amount with exactly two decimal places, e.g. "25.00".
func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}

// Parse converts a major-unit string such as "19.99" into cents.
// More than two fractional digits is rejected rather than rounded.
func Parse(s string) (Cents, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, ErrNegativeAmount
	}
	minor := d.Shift(2)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("parse amount %q: more than two decimal places", s)
	}
	return Cents(minor.IntPart()), nil
}
