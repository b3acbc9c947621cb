// Package interest computes interest between two dates under a day-count
// convention. Everything here is pure.
package interest

import (
	"fmt"
	"strings"
	"time"

	"github.com/mcclellann/loanledger/pkg/apperr"
	"github.com/mcclellann/loanledger/pkg/money"
	"github.com/shopspring/decimal"
)

// DayCount is a day-count convention.
type DayCount string

const (
	Actual365 DayCount = "ACT/365"
	Actual360 DayCount = "ACT/360"
	Thirty360 DayCount = "30/360"
)

// ParseDayCount accepts "act/365", "ACT_360", "30/360" and similar spellings.
func ParseDayCount(s string) (DayCount, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer("_", "/", "-", "/", "ACTUAL", "ACT").Replace(norm)
	switch DayCount(norm) {
	case "":
		return Actual365, nil
	case Actual365, Actual360, Thirty360:
		return DayCount(norm), nil
	case "30/360/US", "30U/360":
		return Thirty360, nil
	}
	return "", fmt.Errorf("day count %q: %w", s, apperr.ErrInvalidTerms)
}

// Valid reports whether dc is a known convention.
func (dc DayCount) Valid() bool {
	switch dc {
	case Actual365, Actual360, Thirty360:
		return true
	}
	return false
}

// Basis is the number of days in the convention's year.
func (dc DayCount) Basis() int64 {
	if dc == Actual365 {
		return 365
	}
	return 360
}

// Days counts the days between from and to under dc. Only the calendar
// dates matter; the time of day is ignored.
func (dc DayCount) Days(from, to time.Time) int64 {
	if dc == Thirty360 {
		return thirty360(from, to)
	}
	return actualDays(from, to)
}

// YearFraction is Days/Basis.
func (dc DayCount) YearFraction(from, to time.Time) decimal.Decimal {
	return decimal.NewFromInt(dc.Days(from, to)).Div(decimal.NewFromInt(dc.Basis()))
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func actualDays(from, to time.Time) int64 {
	return int64(civil(to).Sub(civil(from)).Hours() / 24)
}

// thirty360 is the US bond basis: D1=31 becomes 30, and D2=31 becomes 30
// when D1 is 30 or 31.
func thirty360(from, to time.Time) int64 {
	y1, m1, d1 := from.Date()
	y2, m2, d2 := to.Date()
	if d1 == 31 {
		d1 = 30
	}
	if d2 == 31 && d1 >= 30 {
		d2 = 30
	}
	return int64(360*(y2-y1) + 30*(int(m2)-int(m1)) + (d2 - d1))
}

// Compounding selects how the rate applies across the interval.
type Compounding string

const (
	Simple Compounding = "simple"
	Daily  Compounding = "daily"
)

// Valid reports whether c is known. The empty value means Simple.
func (c Compounding) Valid() bool {
	switch c {
	case "", Simple, Daily:
		return true
	}
	return false
}

// ParseCompounding reads a compounding name.
func ParseCompounding(s string) (Compounding, error) {
	c := Compounding(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return Simple, nil
	}
	if !c.Valid() {
		return "", fmt.Errorf("compounding %q: %w", s, apperr.ErrInvalidTerms)
	}
	return c, nil
}

// Accrue returns the interest on principal at annualRate from from to to,
// rounded once with p to the principal's currency.
//
// Simple interest is P*rate*days/basis. Daily compounding is
// P*((1+rate/basis)^days - 1), evaluated as
// P*((basis+rate)^days - basis^days) / basis^days so it stays exact.
func Accrue(principal money.Money, annualRate decimal.Decimal, from, to time.Time, dc DayCount, comp Compounding, p money.RoundingPolicy) (money.Money, error) {
	if to.Before(from) {
		return money.Money{}, fmt.Errorf("accrue %s..%s: %w", from.Format(time.DateOnly), to.Format(time.DateOnly), apperr.ErrInvalidInterval)
	}
	if annualRate.IsNegative() {
		return money.Money{}, fmt.Errorf("negative rate %s: %w", annualRate, apperr.ErrInvalidTerms)
	}
	if !dc.Valid() {
		return money.Money{}, fmt.Errorf("day count %q: %w", dc, apperr.ErrInvalidTerms)
	}
	days := dc.Days(from, to)
	if days <= 0 || principal.IsZero() || annualRate.IsZero() {
		return money.Zero(principal.Currency), nil
	}
	basis := decimal.NewFromInt(dc.Basis())
	p0 := principal.Decimal()

	switch comp {
	case "", Simple:
		num := p0.Mul(annualRate).Mul(decimal.NewFromInt(days))
		return money.FromRatio(num, basis, principal.Currency, p)
	case Daily:
		grown := money.PowInt(basis.Add(annualRate), days)
		base := money.PowInt(basis, days)
		return money.FromRatio(p0.Mul(grown.Sub(base)), base, principal.Currency, p)
	}
	return money.Money{}, fmt.Errorf("compounding %q: %w", comp, apperr.ErrInvalidTerms)
}
