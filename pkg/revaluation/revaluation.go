// Package revaluation restates foreign-currency positions in the reporting
// currency and posts the unrealized exchange difference.
package revaluation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/apperr"
	"github.com/mcclellann/loanledger/pkg/fx"
	"github.com/mcclellann/loanledger/pkg/ledger"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/money"
	"github.com/mcclellann/loanledger/pkg/store"
)

// Namespace derives revaluation entry IDs from account and date.
var Namespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("loanledger/revaluation"))

// Accounts are the reporting-currency accounts a revaluation posts to.
type Accounts struct {
	Adjustment         string `toml:"adjustment" json:"adjustment"`
	UnrealizedGainLoss string `toml:"unrealized_gain_loss" json:"unrealized_gain_loss"`
}

type Config struct {
	Reporting money.Code
	// Accounts is keyed by the currency of the revalued position.
	Accounts map[money.Code]Accounts
	Logger   log.Logger
}

// MarkReader loads the last recorded reporting value of an account.
type MarkReader interface {
	LoadMark(ctx context.Context, accountID string) (models.RevaluationMark, error)
}

type Revaluer struct {
	ledger    *ledger.Ledger
	marks     MarkReader
	feed      fx.Feed
	reporting money.Currency
	accounts  map[money.Code]Accounts
	logger    log.Logger
}

// NewRevaluer checks that the configured accounts exist and are held in the
// reporting currency.
func NewRevaluer(l *ledger.Ledger, marks MarkReader, feed fx.Feed, cfg Config) (*Revaluer, error) {
	reporting, err := l.Catalog().Lookup(cfg.Reporting)
	if err != nil {
		return nil, fmt.Errorf("reporting currency: %w", err)
	}
	for code, accts := range cfg.Accounts {
		for _, id := range []string{accts.Adjustment, accts.UnrealizedGainLoss} {
			a, err := l.Chart().Account(id)
			if err != nil {
				return nil, fmt.Errorf("%s revaluation: %w", code, err)
			}
			if a.Currency != reporting.Code {
				return nil, fmt.Errorf("%s revaluation account %q is in %s: %w", code, id, a.Currency, apperr.ErrCurrencyMismatch)
			}
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNopLogger()
	}
	return &Revaluer{
		ledger:    l,
		marks:     marks,
		feed:      feed,
		reporting: reporting,
		accounts:  cfg.Accounts,
		logger:    cfg.Logger,
	}, nil
}

func (r *Revaluer) Reporting() money.Currency { return r.reporting }

type target struct {
	account  models.Account
	accounts Accounts
	rate     models.ExchangeRate
}

// Revalue restates accountIDs at asOf and returns the entries posted.
// Accounts already in the reporting currency are skipped. Every rate is
// resolved before anything is committed, so a missing rate posts nothing.
func (r *Revaluer) Revalue(ctx context.Context, accountIDs []string, asOf time.Time) ([]models.JournalEntry, error) {
	if asOf.IsZero() {
		return nil, fmt.Errorf("revaluation without date: %w", apperr.ErrInvalidInterval)
	}

	var targets []target
	for _, id := range accountIDs {
		a, err := r.ledger.Chart().Account(id)
		if err != nil {
			return nil, err
		}
		if a.Currency == r.reporting.Code {
			continue
		}
		accts, ok := r.accounts[a.Currency]
		if !ok {
			return nil, fmt.Errorf("no revaluation accounts for %s: %w", a.Currency, apperr.ErrUnknownAccount)
		}
		rate, err := r.feed.RateAtOrBefore(ctx, a.Currency, r.reporting.Code, asOf)
		if err != nil {
			return nil, fmt.Errorf("revalue %s: %w", id, err)
		}
		targets = append(targets, target{account: a, accounts: accts, rate: rate})
	}

	var posted []models.JournalEntry
	for _, t := range targets {
		e, err := r.revalue(ctx, t, asOf)
		if err != nil {
			return posted, err
		}
		if e != nil {
			posted = append(posted, *e)
		}
	}
	return posted, nil
}

func eventKey(accountID string, asOf time.Time) string {
	return "revaluation/" + accountID + "@" + asOf.UTC().Format(time.RFC3339Nano)
}

// revalue handles one account under its ledger locks. It returns nil when
// nothing was posted.
func (r *Revaluer) revalue(ctx context.Context, t target, asOf time.Time) (*models.JournalEntry, error) {
	id := t.account.ID
	var posted *models.JournalEntry
	err := r.ledger.Locked(ctx, []string{id, t.accounts.Adjustment, t.accounts.UnrealizedGainLoss}, func(tx *ledger.Tx) error {
		mark, err := r.marks.LoadMark(ctx, id)
		first := errors.Is(err, store.ErrNotFound)
		if err != nil && !first {
			return apperr.Storage("load mark", err)
		}
		if !first && asOf.Before(mark.AsOf) {
			return fmt.Errorf("revalue %s at %s, last revalued %s: %w", id, asOf.Format(time.RFC3339), mark.AsOf.Format(time.RFC3339), apperr.ErrInvalidInterval)
		}

		position, err := tx.BalanceOf(ctx, id, asOf)
		if err != nil {
			return err
		}
		value, err := position.Convert(r.reporting, t.rate.Rate, money.HalfEven)
		if err != nil {
			return err
		}
		next := models.RevaluationMark{AccountID: id, Position: position, Reporting: value, Rate: t.rate.Rate, AsOf: asOf}
		key := eventKey(id, asOf)

		if first {
			r.logger.Log("msg", "initial mark", "account", id, "position", position, "value", value, "rate", t.rate.Rate)
			return tx.Apply(ctx, models.Commit{EventKey: key, Marks: []models.RevaluationMark{next}})
		}

		flow, err := position.Sub(mark.Position)
		if err != nil {
			return err
		}
		flowValue, err := flow.Convert(r.reporting, t.rate.Rate, money.HalfEven)
		if err != nil {
			return err
		}
		carried, err := mark.Reporting.Add(flowValue)
		if err != nil {
			return err
		}
		diff, err := value.Sub(carried)
		if err != nil {
			return err
		}
		delta := diff.Amount
		if delta == 0 {
			return nil
		}

		// a rise in value is a gain on a debit-normal account
		gain := (delta > 0) == t.account.Type.DebitNormal()
		adjSide := models.Credit
		if gain {
			adjSide = models.Debit
		}
		if delta < 0 {
			delta = -delta
		}
		amount := money.New(delta, r.reporting)
		e := models.JournalEntry{
			ID:             uuid.NewSHA1(Namespace, []byte(key)),
			Timestamp:      asOf,
			SourceEventRef: key,
			Memo:           fmt.Sprintf("revaluation of %s at %s %s/%s", id, t.rate.Rate, t.rate.Base, t.rate.Quote),
			Lines: []models.Line{
				{AccountID: t.accounts.Adjustment, Side: adjSide, Amount: amount},
				{AccountID: t.accounts.UnrealizedGainLoss, Side: adjSide.Opposite(), Amount: amount},
			},
		}
		if err := tx.Apply(ctx, models.Commit{EventKey: key, Entries: []models.JournalEntry{e}, Marks: []models.RevaluationMark{next}}); err != nil {
			return err
		}
		r.logger.Log("msg", "revalued", "account", id, "delta", amount, "gain", gain, "rate", t.rate.Rate)
		posted = &e
		return nil
	})
	return posted, err
}
