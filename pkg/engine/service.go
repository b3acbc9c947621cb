// Package engine exposes the accounting engine as one Service.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/amortization"
	"github.com/mcclellann/loanledger/pkg/apperr"
	"github.com/mcclellann/loanledger/pkg/fx"
	"github.com/mcclellann/loanledger/pkg/ledger"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/money"
	"github.com/mcclellann/loanledger/pkg/posting"
	"github.com/mcclellann/loanledger/pkg/revaluation"
	"github.com/mcclellann/loanledger/pkg/store"
)

// Service is the interface offered to the HTTP server and the CLI.
type Service interface {
	GenerateSchedule(ctx context.Context, terms models.LoanTerms) (models.Schedule, error)
	PostEvent(ctx context.Context, ev posting.Event) ([]models.JournalEntry, error)
	BalanceOf(ctx context.Context, accountID string, asOf time.Time) (money.Money, error)
	Revalue(ctx context.Context, accountIDs []string, asOf time.Time) ([]models.JournalEntry, error)

	Schedule(ctx context.Context, loanID uuid.UUID) (models.Schedule, error)
	ScheduleHistory(ctx context.Context, loanID uuid.UUID) ([]models.Schedule, error)
	Reverse(ctx context.Context, entryID uuid.UUID, at time.Time) (models.JournalEntry, error)
	Entry(ctx context.Context, id uuid.UUID) (models.JournalEntry, error)
	Entries(ctx context.Context, accountID string, from, to time.Time) ([]models.JournalEntry, error)

	RecordRate(ctx context.Context, r models.ExchangeRate) error
	Rate(ctx context.Context, base, quote money.Code, at time.Time) (models.ExchangeRate, error)
	Rates(ctx context.Context, base, quote money.Code) ([]models.ExchangeRate, error)

	Accounts() []models.Account
	Catalog() *money.Catalog
}

type service struct {
	ledger   *ledger.Ledger
	pipeline *posting.Pipeline
	revaluer *revaluation.Revaluer
	rates    *fx.Store
	feed     fx.Feed
	storage  store.Storage
}

// NewService joins the engine components. feed answers rate queries and
// usually falls back from rates to a remote feed.
func NewService(l *ledger.Ledger, p *posting.Pipeline, r *revaluation.Revaluer, rates *fx.Store, feed fx.Feed, s store.Storage) Service {
	return &service{
		ledger:   l,
		pipeline: p,
		revaluer: r,
		rates:    rates,
		feed:     feed,
		storage:  s,
	}
}

func (s *service) GenerateSchedule(_ context.Context, terms models.LoanTerms) (models.Schedule, error) {
	if _, err := s.ledger.Catalog().Lookup(terms.Principal.Currency.Code); err != nil {
		return models.Schedule{}, err
	}
	return amortization.Generate(terms)
}

func (s *service) PostEvent(ctx context.Context, ev posting.Event) ([]models.JournalEntry, error) {
	return s.pipeline.Post(ctx, ev)
}

func (s *service) BalanceOf(ctx context.Context, accountID string, asOf time.Time) (money.Money, error) {
	return s.ledger.BalanceOf(ctx, accountID, asOf)
}

func (s *service) Revalue(ctx context.Context, accountIDs []string, asOf time.Time) ([]models.JournalEntry, error) {
	if len(accountIDs) == 0 {
		for _, a := range s.ledger.Chart().List() {
			accountIDs = append(accountIDs, a.ID)
		}
	}
	return s.revaluer.Revalue(ctx, accountIDs, asOf)
}

func (s *service) Schedule(ctx context.Context, loanID uuid.UUID) (models.Schedule, error) {
	sch, err := s.storage.LoadSchedule(ctx, loanID)
	if err != nil {
		return models.Schedule{}, translate("load schedule", err)
	}
	return sch, nil
}

func (s *service) ScheduleHistory(ctx context.Context, loanID uuid.UUID) ([]models.Schedule, error) {
	history, err := s.storage.ScheduleHistory(ctx, loanID)
	if err != nil {
		return nil, translate("load schedule history", err)
	}
	return history, nil
}

func (s *service) Reverse(ctx context.Context, entryID uuid.UUID, at time.Time) (models.JournalEntry, error) {
	return s.ledger.Reverse(ctx, entryID, at)
}

func (s *service) Entry(ctx context.Context, id uuid.UUID) (models.JournalEntry, error) {
	return s.ledger.Entry(ctx, id)
}

func (s *service) Entries(ctx context.Context, accountID string, from, to time.Time) ([]models.JournalEntry, error) {
	return s.ledger.Entries(ctx, accountID, from, to)
}

func (s *service) RecordRate(ctx context.Context, r models.ExchangeRate) error {
	for _, code := range []money.Code{r.Base, r.Quote} {
		if _, err := s.ledger.Catalog().Lookup(code); err != nil {
			return err
		}
	}
	return s.rates.Record(ctx, r)
}

func (s *service) Rate(ctx context.Context, base, quote money.Code, at time.Time) (models.ExchangeRate, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return s.feed.RateAtOrBefore(ctx, base, quote, at)
}

func (s *service) Rates(ctx context.Context, base, quote money.Code) ([]models.ExchangeRate, error) {
	return s.rates.List(ctx, base, quote)
}

func (s *service) Accounts() []models.Account { return s.ledger.Chart().List() }
func (s *service) Catalog() *money.Catalog    { return s.ledger.Catalog() }

// translate keeps not-found errors and hides any other storage failure
// behind ErrStorageUnavailable.
func translate(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return apperr.Storage(op, err)
}
