package ledger

import (
	"fmt"

	"github.com/mcclellann/loanledger/pkg/apperr"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/money"
)

// Validate checks e against the chart and catalog without touching storage.
//
// Every currency in e must balance on its own. An entry in more than one
// currency has to say how the currencies relate: at least one line carries
// an FX leg, and each FX leg converts to exactly the line amount.
func Validate(e models.JournalEntry, chart *Chart, catalog *money.Catalog) error {
	if len(e.Lines) < 2 {
		return fmt.Errorf("entry %s has %d lines: %w", e.ID, len(e.Lines), apperr.ErrUnbalancedEntry)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("entry %s has no timestamp: %w", e.ID, apperr.ErrInvalidInterval)
	}

	sums := make(map[money.Code]int64)
	hasFX := false
	for i, l := range e.Lines {
		acct, err := chart.Account(l.AccountID)
		if err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
		if l.Side != models.Debit && l.Side != models.Credit {
			return fmt.Errorf("line %d: side %q: %w", i+1, l.Side, apperr.ErrUnbalancedEntry)
		}
		if !l.Amount.IsPositive() {
			return fmt.Errorf("line %d: amount %s: %w", i+1, l.Amount, apperr.ErrInvalidAmount)
		}
		cur, err := catalog.Lookup(l.Amount.Currency.Code)
		if err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
		if !cur.Same(l.Amount.Currency) || acct.Currency != cur.Code {
			return fmt.Errorf("line %d: %s posted to %s account %q: %w", i+1, l.Amount.Currency.Code, acct.Currency, acct.ID, apperr.ErrCurrencyMismatch)
		}
		if l.FX != nil {
			hasFX = true
			if err := checkFX(l); err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
		}
		sum, ok := money.AddInt64(sums[cur.Code], l.Signed())
		if !ok {
			return fmt.Errorf("line %d: %s total: %w", i+1, cur.Code, money.ErrOverflow)
		}
		sums[cur.Code] = sum
	}

	for code, sum := range sums {
		if sum != 0 {
			return fmt.Errorf("entry %s: %s off by %d minor units: %w", e.ID, code, sum, apperr.ErrUnbalancedEntry)
		}
	}
	if len(sums) > 1 && !hasFX {
		return fmt.Errorf("entry %s spans %d currencies without an fx line: %w", e.ID, len(sums), apperr.ErrUnbalancedEntry)
	}
	return nil
}

func checkFX(l models.Line) error {
	fx := l.FX
	if fx.Rate.Base != fx.Source.Currency.Code || fx.Rate.Quote != l.Amount.Currency.Code {
		return fmt.Errorf("fx rate %s/%s does not convert %s to %s: %w",
			fx.Rate.Base, fx.Rate.Quote, fx.Source.Currency.Code, l.Amount.Currency.Code, apperr.ErrCurrencyMismatch)
	}
	if !fx.Rate.Rate.IsPositive() {
		return fmt.Errorf("fx rate %s: %w", fx.Rate.Rate, apperr.ErrInvalidAmount)
	}
	want, err := fx.Source.Convert(l.Amount.Currency, fx.Rate.Rate, money.HalfEven)
	if err != nil {
		return fmt.Errorf("fx source %s: %w", fx.Source, err)
	}
	if want != l.Amount {
		return fmt.Errorf("fx line is %s, %s at %s is %s: %w", l.Amount, fx.Source, fx.Rate.Rate, want, apperr.ErrUnbalancedEntry)
	}
	return nil
}
