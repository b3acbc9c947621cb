// Package money implements exact fixed-point monetary values.
//
// An amount is an integer count of a currency's minor unit. Arithmetic is
// only defined between values of the same currency; moving between
// currencies is an explicit Convert with a rate. Rounding happens at the
// boundaries that produce a Money value and nowhere else.
package money

import (
	"fmt"

	"github.com/mcclellann/loanledger/pkg/apperr"
	"github.com/shopspring/decimal"
)

// ErrOverflow reports arithmetic whose result does not fit in int64 minor
// units.
var ErrOverflow = fmt.Errorf("amount overflows int64 minor units: %w", apperr.ErrInvalidAmount)

// AddInt64 returns a+b and whether the sum fit in an int64.
func AddInt64(a, b int64) (int64, bool) {
	s := a + b
	if (a > 0 && b > 0 && s < 0) || (a < 0 && b < 0 && s >= 0) {
		return 0, false
	}
	return s, true
}

// SubInt64 returns a-b and whether the difference fit in an int64.
func SubInt64(a, b int64) (int64, bool) {
	d := a - b
	if (b < 0 && d < a) || (b > 0 && d > a) {
		return 0, false
	}
	return d, true
}

// Money is an amount of minor units tagged with its currency.
type Money struct {
	Amount   int64    `json:"amount"`
	Currency Currency `json:"currency"`
}

// New returns amount minor units of c.
func New(amount int64, c Currency) Money {
	return Money{Amount: amount, Currency: c}
}

// Zero returns the zero amount of c.
func Zero(c Currency) Money {
	return Money{Currency: c}
}

// Parse reads a major-unit string such as "12000.50". Digits beyond the
// currency's exponent are rounded with p.
func Parse(s string, c Currency, p RoundingPolicy) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("parse amount %q: %w", s, apperr.ErrInvalidAmount)
	}
	m, err := FromDecimal(d, c, p)
	if err != nil {
		return Money{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return m, nil
}

func (m Money) check(other Money) error {
	if !m.Currency.Same(other.Currency) {
		return fmt.Errorf("%s and %s: %w", m.Currency.Code, other.Currency.Code, apperr.ErrCurrencyMismatch)
	}
	return nil
}

// Add returns m + other. A sum outside int64 minor units is an
// ErrInvalidAmount.
func (m Money) Add(other Money) (Money, error) {
	if err := m.check(other); err != nil {
		return Money{}, err
	}
	sum, ok := AddInt64(m.Amount, other.Amount)
	if !ok {
		return Money{}, fmt.Errorf("%s + %s: %w", m, other, ErrOverflow)
	}
	return Money{Amount: sum, Currency: m.Currency}, nil
}

// Sub returns m - other.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.check(other); err != nil {
		return Money{}, err
	}
	diff, ok := SubInt64(m.Amount, other.Amount)
	if !ok {
		return Money{}, fmt.Errorf("%s - %s: %w", m, other, ErrOverflow)
	}
	return Money{Amount: diff, Currency: m.Currency}, nil
}

// Cmp compares m and other: -1 if m < other, 0 if equal, +1 if m > other.
func (m Money) Cmp(other Money) (int, error) {
	if err := m.check(other); err != nil {
		return 0, err
	}
	switch {
	case m.Amount < other.Amount:
		return -1, nil
	case m.Amount > other.Amount:
		return 1, nil
	}
	return 0, nil
}

// MulScalar multiplies by f and rounds the product once with p.
func (m Money) MulScalar(f decimal.Decimal, p RoundingPolicy) (Money, error) {
	return FromDecimal(m.Decimal().Mul(f), m.Currency, p)
}

// Convert returns m expressed in currency to at rate (units of to per unit
// of m's currency), rounded with p to to's exponent.
func (m Money) Convert(to Currency, rate decimal.Decimal, p RoundingPolicy) (Money, error) {
	return FromDecimal(m.Decimal().Mul(rate), to, p)
}

// Neg returns -m.
func (m Money) Neg() Money {
	return Money{Amount: -m.Amount, Currency: m.Currency}
}

// Abs returns |m|.
func (m Money) Abs() Money {
	if m.Amount < 0 {
		return m.Neg()
	}
	return m
}

func (m Money) IsZero() bool     { return m.Amount == 0 }
func (m Money) IsPositive() bool { return m.Amount > 0 }
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -m.Currency.Exponent)
}

// String renders "USD 12.34".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Currency.Code, m.Decimal().StringFixed(m.Currency.Exponent))
}

// Format renders the amount with the currency symbol, falling back to the code.
func (m Money) Format() string {
	sym := m.Currency.Symbol
	if sym == "" {
		return m.String()
	}
	amount := m.Decimal().StringFixed(m.Currency.Exponent)
	if m.Amount < 0 {
		return "-" + sym + amount[1:]
	}
	return sym + amount
}

// Sum adds values of one currency. An empty input is an error because the
// currency of the result would be unknown.
func Sum(values ...Money) (Money, error) {
	if len(values) == 0 {
		return Money{}, fmt.Errorf("sum of no values: %w", apperr.ErrInvalidAmount)
	}
	total := Zero(values[0].Currency)
	for _, v := range values {
		var err error
		if total, err = total.Add(v); err != nil {
			return Money{}, err
		}
	}
	return total, nil
}
