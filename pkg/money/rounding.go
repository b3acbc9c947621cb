package money

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/mcclellann/loanledger/pkg/apperr"
	"github.com/shopspring/decimal"
)

// RoundingPolicy selects how an exact value is brought to a currency's
// minor unit. The zero value rounds half to even.
type RoundingPolicy string

const (
	HalfEven RoundingPolicy = "half_even"
	HalfUp   RoundingPolicy = "half_up" // half away from zero
	Down     RoundingPolicy = "down"    // toward zero
	Up       RoundingPolicy = "up"      // away from zero
	Floor    RoundingPolicy = "floor"
	Ceiling  RoundingPolicy = "ceiling"
)

// OrDefault returns p, or HalfEven when p is unset.
func (p RoundingPolicy) OrDefault() RoundingPolicy {
	if p == "" {
		return HalfEven
	}
	return p
}

// Valid reports whether p names a known policy. The empty policy is valid.
func (p RoundingPolicy) Valid() bool {
	switch p {
	case "", HalfEven, HalfUp, Down, Up, Floor, Ceiling:
		return true
	}
	return false
}

// ParseRoundingPolicy accepts the policy names case-insensitively, with
// dashes or underscores.
func ParseRoundingPolicy(s string) (RoundingPolicy, error) {
	p := RoundingPolicy(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if p == "" {
		return HalfEven, nil
	}
	if !p.Valid() {
		return "", fmt.Errorf("unknown rounding policy %q", s)
	}
	return p, nil
}

// Round rounds d to places decimal digits. It is used for display and rate
// quantization; monetary boundaries go through FromRatio.
func (p RoundingPolicy) Round(d decimal.Decimal, places int32) decimal.Decimal {
	switch p.OrDefault() {
	case HalfUp:
		return d.Round(places)
	case Down:
		return d.RoundDown(places)
	case Up:
		return d.RoundUp(places)
	case Floor:
		return d.RoundFloor(places)
	case Ceiling:
		return d.RoundCeil(places)
	default:
		return d.RoundBank(places)
	}
}

// FromRatio returns num/den expressed in minor units of c, rounded exactly
// once with p. The division is carried out on big integers so no digit is
// lost before the rounding decision. A zero den or a result outside int64
// minor units is an ErrInvalidAmount.
func FromRatio(num, den decimal.Decimal, c Currency, p RoundingPolicy) (Money, error) {
	if den.IsZero() {
		return Money{}, fmt.Errorf("%s / 0: %w", num, apperr.ErrInvalidAmount)
	}
	// num is scaled to minor units before the division
	num = num.Shift(c.Exponent)

	n := num.Coefficient()
	d := den.Coefficient()
	shift := int64(num.Exponent()) - int64(den.Exponent())
	if shift > 0 {
		n.Mul(n, pow10(shift))
	} else if shift < 0 {
		d.Mul(d, pow10(-shift))
	}

	q, r := new(big.Int).QuoRem(n, d, new(big.Int))
	q = roundQuotient(q, r, d, n.Sign()*d.Sign() < 0, p)
	if !q.IsInt64() {
		return Money{}, fmt.Errorf("%s %s overflows int64 minor units: %w", c.Code, num.Shift(-c.Exponent).Div(den), apperr.ErrInvalidAmount)
	}
	return Money{Amount: q.Int64(), Currency: c}, nil
}

// FromDecimal converts a major-unit decimal to Money, rounding with p.
func FromDecimal(d decimal.Decimal, c Currency, p RoundingPolicy) (Money, error) {
	return FromRatio(d, decimal.NewFromInt(1), c, p)
}

func roundQuotient(q, r, d *big.Int, negative bool, p RoundingPolicy) *big.Int {
	if r.Sign() == 0 {
		return q
	}
	step := big.NewInt(1)
	if negative {
		step.SetInt64(-1)
	}
	away := false
	switch p.OrDefault() {
	case Down:
	case Up:
		away = true
	case Floor:
		away = negative
	case Ceiling:
		away = !negative
	case HalfUp, HalfEven:
		twice := new(big.Int).Abs(r)
		twice.Lsh(twice, 1)
		switch twice.Cmp(new(big.Int).Abs(d)) {
		case 1:
			away = true
		case 0:
			away = p.OrDefault() == HalfUp || q.Bit(0) == 1
		}
	}
	if away {
		return q.Add(q, step)
	}
	return q
}

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

// PowInt raises d to a non-negative integer power exactly.
func PowInt(d decimal.Decimal, n int64) decimal.Decimal {
	if n < 0 {
		panic("money: negative exponent")
	}
	result := decimal.NewFromInt(1)
	base := d
	for n > 0 {
		if n&1 == 1 {
			result = result.Mul(base)
		}
		base = base.Mul(base)
		n >>= 1
	}
	return result
}
