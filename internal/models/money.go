package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money wraps shopspring/decimal so every monetary value in the system
// marshals, scans, and prints the same way regardless of which table or
// API payload it passes through.
type Money struct {
	decimal.Decimal
}

// NewMoney builds a Money from a string, matching the precision callers
// expect from a wire payload (e.g. "4.50").
func NewMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Money{d}, nil
}

// MoneyFromDecimal builds a Money directly from a decimal.Decimal, e.g. the
// result of an arithmetic operation already performed in decimal space.
func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money{d}
}

func Zero() Money {
	return Money{decimal.Zero}
}

func (m Money) Add(other Money) Money {
	return Money{m.Decimal.Add(other.Decimal)}
}

func (m Money) Sub(other Money) Money {
	return Money{m.Decimal.Sub(other.Decimal)}
}

func (m Money) Neg() Money {
	return Money{m.Decimal.Neg()}
}

func (m Money) IsNegative() bool {
	return m.Decimal.IsNegative()
}

func (m Money) IsZero() bool {
	return m.Decimal.IsZero()
}

func (m Money) String() string {
	return m.Decimal.StringFixed(2)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Decimal.StringFixed(2))
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", s, err)
		}
		m.Decimal = d
		return nil
	}
	// tolerate bare JSON numbers too
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	m.Decimal = decimal.NewFromFloat(f)
	return nil
}

func (m Money) Value() (driver.Value, error) {
	return m.Decimal.StringFixed(2), nil
}

func (m *Money) Scan(src interface{}) error {
	d := decimal.Decimal{}
	if err := d.Scan(src); err != nil {
		return err
	}
	m.Decimal = d
	return nil
}
