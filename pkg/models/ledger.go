package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/apperr"
	"github.com/mcclellann/loanledger/pkg/money"
	"github.com/shopspring/decimal"
)

type AccountType string

const (
	Asset     AccountType = "asset"
	Liability AccountType = "liability"
	Equity    AccountType = "equity"
	Income    AccountType = "income"
	Expense   AccountType = "expense"
)

func (t AccountType) Valid() bool {
	switch t {
	case Asset, Liability, Equity, Income, Expense:
		return true
	}
	return false
}

// DebitNormal reports whether the account type carries a debit balance.
func (t AccountType) DebitNormal() bool {
	return t == Asset || t == Expense
}

type Account struct {
	ID       string      `json:"id" toml:"id"`
	Name     string      `json:"name" toml:"name"`
	Type     AccountType `json:"type" toml:"type"`
	Currency money.Code  `json:"currency" toml:"currency"`
}

type Side string

const (
	Debit  Side = "debit"
	Credit Side = "credit"
)

// Opposite flips the side.
func (s Side) Opposite() Side {
	if s == Debit {
		return Credit
	}
	return Debit
}

// FXLeg records the conversion behind a line in a multi-currency entry.
type FXLeg struct {
	Rate   ExchangeRate `json:"rate"`
	Source money.Money  `json:"source"`
}

type Line struct {
	AccountID   string      `json:"account_id"`
	Side        Side        `json:"side"`
	Amount      money.Money `json:"amount"`
	Memo        string      `json:"memo,omitempty"`
	Installment int         `json:"installment,omitempty"`
	FX          *FXLeg      `json:"fx,omitempty"`
}

// Signed returns the amount positive for a debit and negative for a credit.
func (l Line) Signed() int64 {
	if l.Side == Credit {
		return -l.Amount.Amount
	}
	return l.Amount.Amount
}

type JournalEntry struct {
	ID             uuid.UUID  `json:"id"`
	Timestamp      time.Time  `json:"timestamp"`
	Lines          []Line     `json:"lines"`
	SourceEventRef string     `json:"source_event_ref,omitempty"`
	Reverses       *uuid.UUID `json:"reverses,omitempty"`
	Memo           string     `json:"memo,omitempty"`
}

// Accounts returns the distinct account IDs touched by e, sorted.
func (e JournalEntry) Accounts() []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range e.Lines {
		if !seen[l.AccountID] {
			seen[l.AccountID] = true
			out = append(out, l.AccountID)
		}
	}
	sort.Strings(out)
	return out
}

// Currencies returns the distinct currency codes used by e, sorted.
func (e JournalEntry) Currencies() []money.Code {
	seen := make(map[money.Code]bool)
	var out []money.Code
	for _, l := range e.Lines {
		if c := l.Amount.Currency.Code; !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ExchangeRate quotes units of Quote per unit of Base from AsOf on.
type ExchangeRate struct {
	Base  money.Code      `json:"base"`
	Quote money.Code      `json:"quote"`
	Rate  decimal.Decimal `json:"rate"`
	AsOf  time.Time       `json:"as_of"`
}

func (r ExchangeRate) Validate() error {
	if !r.Base.Valid() || !r.Quote.Valid() {
		return fmt.Errorf("rate %s/%s: %w", r.Base, r.Quote, apperr.ErrUnknownCurrency)
	}
	if !r.Rate.IsPositive() {
		return fmt.Errorf("rate %s/%s is %s: %w", r.Base, r.Quote, r.Rate, apperr.ErrInvalidAmount)
	}
	if r.AsOf.IsZero() {
		return fmt.Errorf("rate %s/%s has no timestamp: %w", r.Base, r.Quote, apperr.ErrInvalidInterval)
	}
	return nil
}

// RevaluationMark is the reporting-currency value last recorded for an
// account by revaluation.
type RevaluationMark struct {
	AccountID string          `json:"account_id"`
	Position  money.Money     `json:"position"`
	Reporting money.Money     `json:"reporting"`
	Rate      decimal.Decimal `json:"rate"`
	AsOf      time.Time       `json:"as_of"`
}

// Commit is what a store persists in one transaction. EventKey is unique
// across all commits.
type Commit struct {
	EventKey string
	Entries  []JournalEntry
	Schedule *Schedule
	Marks    []RevaluationMark
}
