// Package core holds the kidcash domain: users and families, the ledger,
// money requests, savings goals and the money type they all share.
package core

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor units (cents, kopecks). It encodes to JSON as
// a bare integer.
type Money struct {
	Cents int64
}

// Cents builds a Money value from minor units.
func Cents(c int64) Money {
	return Money{Cents: c}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Add returns the sum, saturating at the int64 bounds.
func (m Money) Add(o Money) Money {
	sum, err := m.CheckedAdd(o)
	if err != nil {
		if o.Cents > 0 {
			return Money{Cents: math.MaxInt64}
		}
		return Money{Cents: math.MinInt64}
	}
	return sum
}

// CheckedAdd returns ErrInvalidAmount when the sum does not fit in int64.
func (m Money) CheckedAdd(o Money) (Money, error) {
	if (o.Cents > 0 && m.Cents > math.MaxInt64-o.Cents) ||
		(o.Cents < 0 && m.Cents < math.MinInt64-o.Cents) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: m.Cents + o.Cents}, nil
}

func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

func (m Money) IsZero() bool {
	return m.Cents == 0
}

// Decimal returns the major-unit value for display only. Arithmetic stays in cents.
func (m Money) Decimal() float64 {
	return float64(m.Cents) / 100.0
}

func (m Money) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, m.Cents, 10), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		m.Cents = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return ErrInvalidAmount
	}
	m.Cents = v
	return nil
}

// ParseDecimalToCents converts a positive decimal string to cents.
//
// Both "12.34" and "12,34" are accepted and the value rounds half-up to
// the cent. Signs, zero, amounts beyond int64 cents and malformed input
// yield ErrInvalidAmount.
//
//	ParseDecimalToCents("5")      -> 500
//	ParseDecimalToCents("12,5")   -> 1250
//	ParseDecimalToCents("0.125")  -> 13
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")

	whole, frac, hasFrac := strings.Cut(s, ".")
	if hasFrac && strings.Contains(frac, ".") {
		return 0, ErrInvalidAmount
	}
	if whole == "" {
		whole = "0"
	}
	// ASCII digits only: no signs, exponents or other scripts.
	if !allDigits(whole) || !allDigits(frac) {
		return 0, ErrInvalidAmount
	}

	lit := whole
	if frac != "" {
		lit += "." + frac
	}
	d, err := decimal.NewFromString(lit)
	if err != nil {
		return 0, ErrInvalidAmount
	}

	cents := d.Shift(2).Round(0)
	if !cents.IsPositive() || cents.GreaterThan(maxCents) {
		return 0, ErrInvalidAmount
	}
	return cents.IntPart(), nil
}

var maxCents = decimal.NewFromInt(math.MaxInt64)

// ParseMoney is ParseDecimalToCents returning Money.
func ParseMoney(s string) (Money, error) {
	c, err := ParseDecimalToCents(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: c}, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
