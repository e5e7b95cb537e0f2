// Package money converts decimal amounts to and from ISO-4217 minor units.
// The ledger stores integer minor units; parsing works on decimals.
package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Common currency codes (ISO-4217)
const (
	EUR = "EUR"
	USD = "USD"
	GBP = "GBP"
	CHF = "CHF"
	JPY = "JPY" // no minor unit
)

// DefaultCurrency is used when an account carries no currency code.
const DefaultCurrency = EUR

// Money is a monetary value in minor units.
type Money struct {
	m *money.Money
}

// New creates Money from minor units.
func New(amountMinor int64, currencyCode string) *Money {
	return &Money{m: money.New(amountMinor, Normalize(currencyCode))}
}

// Conversion errors returned by NewFromDecimal.
var (
	ErrOutOfRange     = errors.New("amount does not fit in minor units")
	ErrBelowMinorUnit = errors.New("amount is smaller than the currency's minor unit")
)

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// NewFromDecimal rounds amount half away from zero to the currency's minor
// unit. Amounts that overflow int64 or round to zero are rejected.
func NewFromDecimal(amount decimal.Decimal, currencyCode string) (*Money, error) {
	code := Normalize(currencyCode)
	cur := money.GetCurrency(code)
	if cur == nil {
		code = DefaultCurrency
		cur = money.GetCurrency(code)
	}
	shifted := amount.Shift(int32(cur.Fraction)).Round(0)
	if shifted.GreaterThan(maxMinor) || shifted.LessThan(minMinor) {
		return nil, fmt.Errorf("%w: %s %s", ErrOutOfRange, amount.String(), code)
	}
	if shifted.IsZero() {
		return nil, fmt.Errorf("%w: %s %s", ErrBelowMinorUnit, amount.String(), code)
	}
	return New(shifted.IntPart(), code), nil
}

// Normalize upper-cases a currency code and defaults empty codes.
func Normalize(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency
	}
	return code
}

// Known reports whether code is an ISO-4217 currency go-money knows about.
func Known(code string) bool {
	return money.GetCurrency(Normalize(code)) != nil
}

// Validate returns an error for unknown currency codes.
func Validate(code string) error {
	if !Known(code) {
		return fmt.Errorf("unknown currency %q", code)
	}
	return nil
}

// Amount returns the amount in minor units.
func (m *Money) Amount() int64 {
	if m == nil || m.m == nil {
		return 0
	}
	return m.m.Amount()
}

// Currency returns the ISO-4217 code.
func (m *Money) Currency() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Currency().Code
}

// IsNegative reports whether the amount is below zero.
func (m *Money) IsNegative() bool {
	return m != nil && m.m != nil && m.m.IsNegative()
}

// Abs returns the absolute value.
func (m *Money) Abs() *Money {
	if m == nil || m.m == nil {
		return New(0, DefaultCurrency)
	}
	return &Money{m: m.m.Absolute()}
}

// Display formats the value for people, e.g. "€150.00".
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Display()
}

// ToDecimal converts back to a decimal in major units.
func (m *Money) ToDecimal() decimal.Decimal {
	if m == nil || m.m == nil {
		return decimal.Zero
	}
	return decimal.New(m.m.Amount(), -int32(m.m.Currency().Fraction))
}

// String returns the amount as a plain decimal string (e.g. "-12.50").
func (m *Money) String() string {
	if m == nil || m.m == nil {
		return "0"
	}
	return m.ToDecimal().StringFixed(int32(m.m.Currency().Fraction))
}
