// Package money provides the fixed-point amount type used for every monetary
// value in the billing core. Amounts are always rounded to two fractional
// digits; binary floating point is never involved.
package money

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits kept for every amount.
const Scale = 2

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrPrecision     = errors.New("amount has more than 2 fractional digits")
)

// Amount is an immutable fixed-point decimal with Scale fractional digits.
// The zero value is 0.00.
type Amount struct {
	d decimal.Decimal
}

// Zero is 0.00.
var Zero = Amount{}

func fromDecimal(d decimal.Decimal) Amount {
	return Amount{d: d.Round(Scale)}
}

// FromMinor builds an amount from integer minor units (e.g. paise, cents).
func FromMinor(minor int64) Amount {
	return Amount{d: decimal.New(minor, -Scale)}
}

// FromInt builds an amount from whole currency units.
func FromInt(units int64) Amount {
	return Amount{d: decimal.NewFromInt(units)}
}

// FromDecimal rounds d to Scale digits (half away from zero).
func FromDecimal(d decimal.Decimal) Amount {
	return fromDecimal(d)
}

// Parse reads a decimal string such as "1250.50". Inputs with more than
// Scale fractional digits are rejected rather than silently rounded.
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !d.Equal(d.Round(Scale)) {
		return Zero, fmt.Errorf("%w: %q", ErrPrecision, s)
	}
	return fromDecimal(d), nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Decimal() decimal.Decimal { return a.d }

func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }
func (a Amount) Sub(b Amount) Amount { return Amount{d: a.d.Sub(b.d)} }
func (a Amount) Neg() Amount { return Amount{d: a.d.Neg()} }
func (a Amount) Abs() Amount { return Amount{d: a.d.Abs()} }

// MulInt multiplies by an integer quantity; the result needs no rounding.
func (a Amount) MulInt(q int64) Amount {
	return Amount{d: a.d.Mul(decimal.NewFromInt(q))}
}

// DivInt divides by n, rounding half away from zero. Dividing by zero yields Zero.
func (a Amount) DivInt(n int64) Amount {
	if n == 0 {
		return Zero
	}
	return Amount{d: a.d.DivRound(decimal.NewFromInt(n), Scale)}
}

// Ratio returns a/b with 4 fractional digits, or 0 when b is zero.
func (a Amount) Ratio(b Amount) decimal.Decimal {
	if b.d.IsZero() {
		return decimal.Zero
	}
	return a.d.DivRound(b.d, 4)
}

// Percent returns a/b*100 rounded to 2 fractional digits, or 0 when b is zero.
func (a Amount) Percent(b Amount) decimal.Decimal {
	if b.d.IsZero() {
		return decimal.Zero
	}
	return a.d.Mul(decimal.NewFromInt(100)).DivRound(b.d, 2)
}

func (a Amount) Cmp(b Amount) int { return a.d.Cmp(b.d) }
func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }
func (a Amount) GreaterThan(b Amount) bool { return a.d.GreaterThan(b.d) }
func (a Amount) LessThan(b Amount) bool { return a.d.LessThan(b.d) }
func (a Amount) LessOrEqual(b Amount) bool { return a.d.LessThanOrEqual(b.d) }
func (a Amount) GreaterOrEqual(b Amount) bool { return a.d.GreaterThanOrEqual(b.d) }
func (a Amount) Sign() int { return a.d.Sign() }
func (a Amount) IsZero() bool { return a.d.IsZero() }
func (a Amount) IsPositive() bool { return a.d.IsPositive() }
func (a Amount) IsNegative() bool { return a.d.IsNegative() }

// MinorUnits returns the amount in integer minor units.
func (a Amount) MinorUnits() int64 {
	return a.d.Shift(Scale).IntPart()
}

// String renders the amount with exactly Scale fractional digits.
func (a Amount) String() string { return a.d.StringFixed(Scale) }

func Max(a, b Amount) Amount {
	if a.d.GreaterThanOrEqual(b.d) {
		return a
	}
	return b
}

func Min(a, b Amount) Amount {
	if a.d.LessThanOrEqual(b.d) {
		return a
	}
	return b
}

// Sum adds all amounts; an empty list sums to Zero.
func Sum(amounts ...Amount) Amount {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Allocate splits a across weights proportionally. Every share is rounded to
// Scale digits and the rounding remainder lands on the last positive weight,
// so the shares always add up to a exactly. With no positive weight the whole
// amount goes to the first slot.
func (a Amount) Allocate(weights []Amount) []Amount {
	out := make([]Amount, len(weights))
	if len(weights) == 0 {
		return out
	}

	totalW := Zero
	last := -1
	for i, w := range weights {
		if w.IsPositive() {
			totalW = totalW.Add(w)
			last = i
		}
	}
	if last < 0 {
		out[0] = a
		return out
	}

	allocated := Zero
	for i, w := range weights {
		if !w.IsPositive() || i == last {
			continue
		}
		share := Amount{d: a.d.Mul(w.d).DivRound(totalW.d, Scale)}
		out[i] = share
		allocated = allocated.Add(share)
	}
	out[last] = a.Sub(allocated)
	return out
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// MarshalJSON encodes the amount as a quoted fixed-point string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts both "12.50" and 12.50.
func (a *Amount) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, string(b))
	}
	if !d.Equal(d.Round(Scale)) {
		return fmt.Errorf("%w: %s", ErrPrecision, string(b))
	}
	*a = fromDecimal(d)
	return nil
}

func (a Amount) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Amount) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Scan implements sql.Scanner for NUMERIC columns.
func (a *Amount) Scan(src any) error {
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return err
	}
	*a = fromDecimal(d)
	return nil
}

// Value implements driver.Valuer.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}
