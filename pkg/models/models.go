package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/apperr"
	"github.com/mcclellann/loanledger/pkg/interest"
	"github.com/mcclellann/loanledger/pkg/money"
	"github.com/shopspring/decimal"
)

type PeriodKind string

const (
	Monthly PeriodKind = "monthly"
	Weekly  PeriodKind = "weekly"
	Custom  PeriodKind = "custom"
)

// Period is the spacing between installments. Days is only read for Custom.
type Period struct {
	Kind PeriodKind `json:"kind"`
	Days int        `json:"days,omitempty"`
}

type Method string

const (
	ReducingBalance    Method = "reducing_balance"
	EqualPrincipal     Method = "equal_principal"
	FlatRate           Method = "flat_rate"
	InterestOnlyBullet Method = "interest_only_bullet"
)

// LoanTerms are the inputs to schedule generation.
type LoanTerms struct {
	Principal        money.Money          `json:"principal"`
	NominalRate      decimal.Decimal      `json:"nominal_rate"` // annual, 0.12 = 12%
	TermCount        int                  `json:"term_count"`
	Period           Period               `json:"period"`
	DayCount         interest.DayCount    `json:"day_count"`
	Compounding      interest.Compounding `json:"compounding,omitempty"`
	FirstPaymentDate time.Time            `json:"first_payment_date"`
	Rounding         money.RoundingPolicy `json:"rounding,omitempty"`
	Method           Method               `json:"method,omitempty"`
}

// Normalized fills the documented defaults.
func (t LoanTerms) Normalized() LoanTerms {
	if t.Method == "" {
		t.Method = ReducingBalance
	}
	if t.DayCount == "" {
		t.DayCount = interest.Actual365
	}
	if t.Compounding == "" {
		t.Compounding = interest.Simple
	}
	t.Rounding = t.Rounding.OrDefault()
	return t
}

// Validate reports the first problem with t as ErrInvalidTerms.
func (t LoanTerms) Validate() error {
	t = t.Normalized()
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), apperr.ErrInvalidTerms)
	}
	switch {
	case t.TermCount <= 0:
		return invalid("term count %d", t.TermCount)
	case !t.Principal.IsPositive():
		return invalid("principal %s", t.Principal)
	case t.NominalRate.IsNegative():
		return invalid("nominal rate %s", t.NominalRate)
	case t.FirstPaymentDate.IsZero():
		return invalid("first payment date missing")
	case !t.DayCount.Valid():
		return invalid("day count %q", t.DayCount)
	case !t.Compounding.Valid():
		return invalid("compounding %q", t.Compounding)
	case !t.Rounding.Valid():
		return invalid("rounding %q", t.Rounding)
	}
	switch t.Period.Kind {
	case Monthly, Weekly:
	case Custom:
		if t.Period.Days <= 0 {
			return invalid("custom period of %d days", t.Period.Days)
		}
	default:
		return invalid("period %q", t.Period.Kind)
	}
	switch t.Method {
	case ReducingBalance, EqualPrincipal, FlatRate, InterestOnlyBullet:
	default:
		return invalid("method %q", t.Method)
	}
	return nil
}

type InstallmentStatus string

const (
	Scheduled     InstallmentStatus = "scheduled"
	PartiallyPaid InstallmentStatus = "partially_paid"
	Paid          InstallmentStatus = "paid"
	Defaulted     InstallmentStatus = "defaulted"
)

type Installment struct {
	Sequence      int               `json:"sequence"`
	DueDate       time.Time         `json:"due_date"`
	Principal     money.Money       `json:"principal"`
	Interest      money.Money       `json:"interest"`
	TotalDue      money.Money       `json:"total_due"`
	PaidPrincipal money.Money       `json:"paid_principal"`
	PaidInterest  money.Money       `json:"paid_interest"`
	Status        InstallmentStatus `json:"status"`
}

// PrincipalDue is the unpaid principal of the installment.
func (i Installment) PrincipalDue() money.Money {
	return money.New(i.Principal.Amount-i.PaidPrincipal.Amount, i.Principal.Currency)
}

// InterestDue is the unpaid interest of the installment.
func (i Installment) InterestDue() money.Money {
	return money.New(i.Interest.Amount-i.PaidInterest.Amount, i.Interest.Currency)
}

// Open reports whether the installment can still take payments.
func (i Installment) Open() bool {
	return i.Status == Scheduled || i.Status == PartiallyPaid
}

// Schedule is one version of a loan's repayment plan.
type Schedule struct {
	LoanID       uuid.UUID     `json:"loan_id"`
	Version      int           `json:"version"`
	Terms        LoanTerms     `json:"terms"`
	Installments []Installment `json:"installments"`
	Reason       string        `json:"reason,omitempty"`
	EffectiveAt  time.Time     `json:"effective_at"`
}

// Clone returns a copy whose installments can be changed independently.
func (s Schedule) Clone() Schedule {
	s.Installments = append([]Installment(nil), s.Installments...)
	return s
}

// OutstandingPrincipal sums unpaid principal over installments that are
// still open.
func (s Schedule) OutstandingPrincipal() money.Money {
	total := money.Zero(s.Terms.Principal.Currency)
	for _, in := range s.Installments {
		if in.Open() {
			total.Amount += in.PrincipalDue().Amount
		}
	}
	return total
}

// OutstandingInterest sums unpaid scheduled interest over open installments.
func (s Schedule) OutstandingInterest() money.Money {
	total := money.Zero(s.Terms.Principal.Currency)
	for _, in := range s.Installments {
		if in.Open() {
			total.Amount += in.InterestDue().Amount
		}
	}
	return total
}
