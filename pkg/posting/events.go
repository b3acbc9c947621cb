package posting

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/apperr"
	"github.com/mcclellann/loanledger/pkg/interest"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/money"
	"github.com/shopspring/decimal"
)

// Meta is carried by every event. Key is the idempotency key: an event is
// applied at most once per key.
type Meta struct {
	Key    string    `json:"key"`
	At     time.Time `json:"at"`
	LoanID uuid.UUID `json:"loan_id"`
}

func (m Meta) EventMeta() Meta { return m }

func (m Meta) validate() error {
	switch {
	case m.Key == "":
		return fmt.Errorf("event without key: %w", apperr.ErrInvalidTerms)
	case m.LoanID == uuid.Nil:
		return fmt.Errorf("event %q without loan id: %w", m.Key, apperr.ErrInvalidTerms)
	case m.At.IsZero():
		return fmt.Errorf("event %q without timestamp: %w", m.Key, apperr.ErrInvalidInterval)
	}
	return nil
}

// Event is a domain event the pipeline turns into postings.
type Event interface {
	EventMeta() Meta
}

type Kind string

const (
	KindDisbursement Kind = "disbursement"
	KindRepayment    Kind = "repayment"
	KindWriteOff     Kind = "write_off"
	KindRestructure  Kind = "restructure"
)

type Disbursement struct {
	Meta
	Terms models.LoanTerms
}

type Repayment struct {
	Meta
	Amount money.Money
}

type WriteOff struct {
	Meta
	Reason string
}

// Restructure replaces the remaining installments of a loan with a schedule
// generated from Terms. Terms.Principal must equal the outstanding principal.
type Restructure struct {
	Meta
	Terms  models.LoanTerms
	Reason string
}

// KindOf names the event type.
func KindOf(ev Event) Kind {
	switch ev.(type) {
	case Disbursement, *Disbursement:
		return KindDisbursement
	case Repayment, *Repayment:
		return KindRepayment
	case WriteOff, *WriteOff:
		return KindWriteOff
	case Restructure, *Restructure:
		return KindRestructure
	}
	return ""
}

// Terms is the wire form of LoanTerms: the principal is a decimal string in
// major units and currencies are referenced by code.
type Terms struct {
	Principal        string          `json:"principal"`
	Currency         money.Code      `json:"currency"`
	NominalRate      decimal.Decimal `json:"nominal_rate"`
	TermCount        int             `json:"term_count"`
	Period           string          `json:"period"`
	PeriodDays       int             `json:"period_days,omitempty"`
	DayCount         string          `json:"day_count,omitempty"`
	Compounding      string          `json:"compounding,omitempty"`
	FirstPaymentDate time.Time       `json:"first_payment_date"`
	Rounding         string          `json:"rounding,omitempty"`
	Method           string          `json:"method,omitempty"`
}

// Resolve converts t to LoanTerms using the currencies in catalog.
func (t Terms) Resolve(catalog *money.Catalog) (models.LoanTerms, error) {
	cur, err := catalog.Lookup(t.Currency)
	if err != nil {
		return models.LoanTerms{}, err
	}
	policy := money.HalfEven
	if t.Rounding != "" {
		if policy, err = money.ParseRoundingPolicy(t.Rounding); err != nil {
			return models.LoanTerms{}, fmt.Errorf("%v: %w", err, apperr.ErrInvalidTerms)
		}
	}
	principal, err := money.Parse(t.Principal, cur, policy)
	if err != nil {
		return models.LoanTerms{}, err
	}
	terms := models.LoanTerms{
		Principal:        principal,
		NominalRate:      t.NominalRate,
		TermCount:        t.TermCount,
		Period:           models.Period{Kind: models.PeriodKind(t.Period), Days: t.PeriodDays},
		FirstPaymentDate: t.FirstPaymentDate,
		Rounding:         policy,
		Method:           models.Method(t.Method),
	}
	if terms.Period.Kind == "" {
		terms.Period.Kind = models.Monthly
	}
	if t.DayCount != "" {
		if terms.DayCount, err = interest.ParseDayCount(t.DayCount); err != nil {
			return models.LoanTerms{}, fmt.Errorf("%v: %w", err, apperr.ErrInvalidTerms)
		}
	}
	if t.Compounding != "" {
		if terms.Compounding, err = interest.ParseCompounding(t.Compounding); err != nil {
			return models.LoanTerms{}, fmt.Errorf("%v: %w", err, apperr.ErrInvalidTerms)
		}
	}
	return terms.Normalized(), terms.Validate()
}

// wireEvent is the JSON form accepted by DecodeEvent.
type wireEvent struct {
	Kind     Kind       `json:"kind"`
	Key      string     `json:"key"`
	LoanID   uuid.UUID  `json:"loan_id"`
	At       time.Time  `json:"at"`
	Terms    *Terms     `json:"terms,omitempty"`
	Amount   string     `json:"amount,omitempty"`
	Currency money.Code `json:"currency,omitempty"`
	Reason   string     `json:"reason,omitempty"`
}

// DecodeEvent parses a JSON event such as
//
//	{"kind":"repayment","key":"pay-7","loan_id":"...","at":"2024-02-01T00:00:00Z","amount":"500.00","currency":"USD"}
//
// resolving currencies through catalog.
func DecodeEvent(data []byte, catalog *money.Catalog) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode event: %v: %w", err, apperr.ErrInvalidTerms)
	}
	meta := Meta{Key: w.Key, At: w.At, LoanID: w.LoanID}

	terms := func() (models.LoanTerms, error) {
		if w.Terms == nil {
			return models.LoanTerms{}, fmt.Errorf("%s event without terms: %w", w.Kind, apperr.ErrInvalidTerms)
		}
		return w.Terms.Resolve(catalog)
	}

	switch w.Kind {
	case KindDisbursement:
		t, err := terms()
		if err != nil {
			return nil, err
		}
		return Disbursement{Meta: meta, Terms: t}, nil
	case KindRepayment:
		cur, err := catalog.Lookup(w.Currency)
		if err != nil {
			return nil, err
		}
		amt, err := money.Parse(w.Amount, cur, money.HalfEven)
		if err != nil {
			return nil, err
		}
		return Repayment{Meta: meta, Amount: amt}, nil
	case KindWriteOff:
		return WriteOff{Meta: meta, Reason: w.Reason}, nil
	case KindRestructure:
		t, err := terms()
		if err != nil {
			return nil, err
		}
		return Restructure{Meta: meta, Terms: t, Reason: w.Reason}, nil
	}
	return nil, fmt.Errorf("unknown event kind %q: %w", w.Kind, apperr.ErrInvalidTerms)
}
