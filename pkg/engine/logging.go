package engine

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/apperr"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/money"
	"github.com/mcclellann/loanledger/pkg/posting"
)

// loggingService decorates a Service with logging
type loggingService struct {
	logger log.Logger
	next   Service
}

// NewLoggingService returns a Service that logs every call that reads or
// changes the books.
func NewLoggingService(logger log.Logger, s Service) Service {
	return &loggingService{
		next:   s,
		logger: logger,
	}
}

// log appends the error kind, and for storage failures the cause the error
// itself hides.
func (s *loggingService) log(kv ...interface{}) {
	for i := 0; i+1 < len(kv); i += 2 {
		err, ok := kv[i+1].(error)
		if kv[i] != "err" || !ok || err == nil {
			continue
		}
		kind := apperr.KindOf(err)
		kv = append(kv, "err_kind", kind)
		if kind == apperr.KindStorageUnavailable {
			kv = append(kv, "cause", apperr.Cause(err))
		}
		break
	}
	s.logger.Log(kv...)
}

func (s *loggingService) GenerateSchedule(ctx context.Context, terms models.LoanTerms) (sch models.Schedule, err error) {
	defer func(begin time.Time) {
		s.log(
			"method", "generate_schedule",
			"principal", terms.Principal,
			"rate", terms.NominalRate,
			"terms", terms.TermCount,
			"installments", len(sch.Installments),
			"took", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.GenerateSchedule(ctx, terms)
}

func (s *loggingService) PostEvent(ctx context.Context, ev posting.Event) (entries []models.JournalEntry, err error) {
	defer func(begin time.Time) {
		meta := ev.EventMeta()
		s.log(
			"method", "post_event",
			"kind", posting.KindOf(ev),
			"key", meta.Key,
			"loan", meta.LoanID,
			"entries", len(entries),
			"took", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.PostEvent(ctx, ev)
}

func (s *loggingService) BalanceOf(ctx context.Context, accountID string, asOf time.Time) (b money.Money, err error) {
	defer func(begin time.Time) {
		s.log(
			"method", "balance_of",
			"account", accountID,
			"as_of", asOf,
			"balance", b,
			"took", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.BalanceOf(ctx, accountID, asOf)
}

func (s *loggingService) Revalue(ctx context.Context, accountIDs []string, asOf time.Time) (entries []models.JournalEntry, err error) {
	defer func(begin time.Time) {
		s.log(
			"method", "revalue",
			"accounts", len(accountIDs),
			"as_of", asOf,
			"entries", len(entries),
			"took", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.Revalue(ctx, accountIDs, asOf)
}

func (s *loggingService) Schedule(ctx context.Context, loanID uuid.UUID) (models.Schedule, error) {
	return s.next.Schedule(ctx, loanID)
}

func (s *loggingService) ScheduleHistory(ctx context.Context, loanID uuid.UUID) ([]models.Schedule, error) {
	return s.next.ScheduleHistory(ctx, loanID)
}

func (s *loggingService) Reverse(ctx context.Context, entryID uuid.UUID, at time.Time) (e models.JournalEntry, err error) {
	defer func(begin time.Time) {
		s.log(
			"method", "reverse",
			"entry", entryID,
			"reversal", e.ID,
			"took", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.Reverse(ctx, entryID, at)
}

func (s *loggingService) Entry(ctx context.Context, id uuid.UUID) (models.JournalEntry, error) {
	return s.next.Entry(ctx, id)
}

func (s *loggingService) Entries(ctx context.Context, accountID string, from, to time.Time) ([]models.JournalEntry, error) {
	return s.next.Entries(ctx, accountID, from, to)
}

func (s *loggingService) RecordRate(ctx context.Context, r models.ExchangeRate) (err error) {
	defer func(begin time.Time) {
		s.log(
			"method", "record_rate",
			"base", r.Base,
			"quote", r.Quote,
			"rate", r.Rate,
			"as_of", r.AsOf,
			"took", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.RecordRate(ctx, r)
}

func (s *loggingService) Rate(ctx context.Context, base, quote money.Code, at time.Time) (models.ExchangeRate, error) {
	return s.next.Rate(ctx, base, quote, at)
}

func (s *loggingService) Rates(ctx context.Context, base, quote money.Code) ([]models.ExchangeRate, error) {
	return s.next.Rates(ctx, base, quote)
}

func (s *loggingService) Accounts() []models.Account { return s.next.Accounts() }
func (s *loggingService) Catalog() *money.Catalog    { return s.next.Catalog() }
