// Package amortization turns loan terms into a repayment schedule.
package amortization

import (
	"fmt"
	"time"

	"github.com/mcclellann/loanledger/pkg/interest"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/money"
	"github.com/shopspring/decimal"
)

// Generate builds version 1 of the schedule for terms. The result depends
// only on terms; LoanID is left for the caller to set.
//
// The principal column always sums to terms.Principal: the final
// installment takes whatever principal is still outstanding.
func Generate(terms models.LoanTerms) (models.Schedule, error) {
	if err := terms.Validate(); err != nil {
		return models.Schedule{}, err
	}
	terms = terms.Normalized()

	cur := terms.Principal.Currency
	outstanding := terms.Principal
	original := terms.Principal
	n := terms.TermCount

	var (
		level money.Money
		err   error
	)
	switch terms.Method {
	case models.ReducingBalance:
		level, err = LevelPayment(terms)
	case models.EqualPrincipal, models.FlatRate:
		level, err = money.FromRatio(original.Decimal(), decimal.NewFromInt(int64(n)), cur, terms.Rounding)
	}
	if err != nil {
		return models.Schedule{}, fmt.Errorf("level payment: %w", err)
	}

	installments := make([]models.Installment, 0, n)
	start := DueDate(terms, 0)
	for k := 1; k <= n; k++ {
		due := DueDate(terms, k)

		base := outstanding
		if terms.Method == models.FlatRate || terms.Method == models.InterestOnlyBullet {
			base = original
		}
		in, err := interest.Accrue(base, terms.NominalRate, start, due, terms.DayCount, terms.Compounding, terms.Rounding)
		if err != nil {
			return models.Schedule{}, fmt.Errorf("installment %d: %w", k, err)
		}

		var principal money.Money
		switch terms.Method {
		case models.ReducingBalance:
			principal = money.New(level.Amount-in.Amount, cur)
		case models.EqualPrincipal, models.FlatRate:
			principal = level
		case models.InterestOnlyBullet:
			principal = money.Zero(cur)
		}
		principal = clamp(principal, outstanding)
		if k == n {
			principal = outstanding
		}
		outstanding.Amount -= principal.Amount
		total, err := principal.Add(in)
		if err != nil {
			return models.Schedule{}, fmt.Errorf("installment %d: %w", k, err)
		}

		installments = append(installments, models.Installment{
			Sequence:      k,
			DueDate:       due,
			Principal:     principal,
			Interest:      in,
			TotalDue:      total,
			PaidPrincipal: money.Zero(cur),
			PaidInterest:  money.Zero(cur),
			Status:        models.Scheduled,
		})
		start = due
	}

	return models.Schedule{
		Version:      1,
		Terms:        terms,
		Installments: installments,
	}, nil
}

func clamp(m, limit money.Money) money.Money {
	if m.Amount < 0 {
		return money.Zero(m.Currency)
	}
	if m.Amount > limit.Amount {
		return limit
	}
	return m
}

// PeriodRate returns the per-period rate of terms as num/den.
func PeriodRate(terms models.LoanTerms) (num, den decimal.Decimal) {
	terms = terms.Normalized()
	switch terms.Period.Kind {
	case models.Weekly:
		return terms.NominalRate, decimal.NewFromInt(52)
	case models.Custom:
		return terms.NominalRate.Mul(decimal.NewFromInt(int64(terms.Period.Days))), decimal.NewFromInt(terms.DayCount.Basis())
	}
	return terms.NominalRate, decimal.NewFromInt(12)
}

// LevelPayment is the annuity payment P*r/(1-(1+r)^-n), rounded once.
//
// With r = num/den the formula is evaluated as
// P*num*(den+num)^n / (den*((den+num)^n - den^n)) so no precision is lost
// before the rounding.
func LevelPayment(terms models.LoanTerms) (money.Money, error) {
	terms = terms.Normalized()
	p := terms.Principal
	n := int64(terms.TermCount)
	num, den := PeriodRate(terms)
	if num.IsZero() {
		return money.FromRatio(p.Decimal(), decimal.NewFromInt(n), p.Currency, terms.Rounding)
	}
	an := money.PowInt(den.Add(num), n)
	bn := money.PowInt(den, n)
	return money.FromRatio(p.Decimal().Mul(num).Mul(an), den.Mul(an.Sub(bn)), p.Currency, terms.Rounding)
}

// DueDate returns the due date of installment k. k = 0 is the start of the
// first period, one period before the first payment date.
func DueDate(terms models.LoanTerms, k int) time.Time {
	first := terms.FirstPaymentDate
	switch terms.Period.Kind {
	case models.Weekly:
		return first.AddDate(0, 0, 7*(k-1))
	case models.Custom:
		return first.AddDate(0, 0, terms.Period.Days*(k-1))
	}
	return addMonths(first, k-1)
}

// addMonths steps t by months keeping t's day of month, clamped to the
// length of the target month.
func addMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	target := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(target.Year(), target.Month(), t.Location()); d > last {
		d = last
	}
	return time.Date(target.Year(), target.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(y int, m time.Month, loc *time.Location) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, loc).Day()
}

// Totals sums the principal and interest columns of s.
func Totals(s models.Schedule) (principal, charged money.Money) {
	cur := s.Terms.Principal.Currency
	principal, charged = money.Zero(cur), money.Zero(cur)
	for _, in := range s.Installments {
		principal.Amount += in.Principal.Amount
		charged.Amount += in.Interest.Amount
	}
	return principal, charged
}
