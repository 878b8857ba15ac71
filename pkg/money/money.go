// Package money implements the fixed-point amount used for every balance and
// transaction in the ledger. Amounts always carry exactly two decimal places.
package money

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits kept by Money.
const Scale = 2

var (
	ErrTooPrecise = errors.New("money: more than 2 decimal places")
	ErrInvalid    = errors.New("money: invalid amount")
)

// Money is an immutable fixed-point amount. The zero value is 0.00.
type Money struct {
	d decimal.Decimal
}

// Zero is 0.00.
var Zero = Money{}

// Max is the largest magnitude a ledger column holds (NUMERIC(15,2)). Its
// minor units fit an int64 with room to spare.
var Max = Money{d: decimal.RequireFromString("9999999999999.99")}

// Parse reads a decimal string such as "400" or "12.50".
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return fromDecimal(d)
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// NewFromInt returns a whole-unit amount.
func NewFromInt(units int64) Money {
	return Money{d: decimal.NewFromInt(units)}
}

// FromMinor converts minor units (kobo, cents) into Money.
func FromMinor(minor int64) Money {
	return Money{d: decimal.New(minor, -Scale)}
}

func fromDecimal(d decimal.Decimal) (Money, error) {
	if !d.Equal(d.Truncate(Scale)) {
		return Money{}, ErrTooPrecise
	}
	if d.Abs().GreaterThan(Max.d) {
		return Money{}, fmt.Errorf("%w: %s exceeds %s", ErrInvalid, d.String(), Max)
	}
	return Money{d: d}, nil
}

// Minor returns the amount in minor units.
func (m Money) Minor() int64 {
	return m.d.Shift(Scale).IntPart()
}

func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }

func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }

// Cmp returns -1, 0 or +1.
func (m Money) Cmp(o Money) int { return m.d.Cmp(o.d) }

func (m Money) Equal(o Money) bool { return m.d.Equal(o.d) }

func (m Money) LessThan(o Money) bool { return m.d.LessThan(o.d) }

func (m Money) IsPositive() bool { return m.d.IsPositive() }

func (m Money) IsNegative() bool { return m.d.IsNegative() }

func (m Money) IsZero() bool { return m.d.IsZero() }

// InRange reports whether the magnitude is at most Max.
func (m Money) InRange() bool { return !m.d.Abs().GreaterThan(Max.d) }

// Decimal exposes the underlying value for formatting and metrics.
func (m Money) Decimal() decimal.Decimal { return m.d }

// String renders the amount with exactly two decimals.
func (m Money) String() string {
	return m.d.StringFixed(Scale)
}

// MarshalJSON renders a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		return ErrInvalid
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Scan implements sql.Scanner for numeric columns.
func (m *Money) Scan(src any) error {
	if v, ok := src.(Money); ok {
		*m = v
		return nil
	}
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return fmt.Errorf("money: scan: %w", err)
	}
	*m = Money{d: d.Round(Scale)}
	return nil
}

// Value implements driver.Valuer.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}
