package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/apperr"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/money"
)

var (
	// ErrNotFound is returned by lookups that match nothing.
	ErrNotFound = apperr.ErrNotFound
	// ErrDuplicate is returned when a commit reuses an event key, an entry
	// ID or a schedule version.
	ErrDuplicate = errors.New("duplicate key")
)

// Storage defines the persistence operations of the ledger, the posting
// pipeline and the rate store.
type Storage interface {
	// Append persists every part of c in one transaction, or nothing. A
	// schedule in c replaces the stored schedule of the same version.
	Append(ctx context.Context, c models.Commit) error
	HasEvent(ctx context.Context, key string) (bool, error)

	Entry(ctx context.Context, id uuid.UUID) (models.JournalEntry, error)
	// LoadEntries returns entries touching accountID with from <= Timestamp
	// <= to, oldest first. A zero from or to leaves that end open.
	LoadEntries(ctx context.Context, accountID string, from, to time.Time) ([]models.JournalEntry, error)

	// LoadSchedule returns the latest version of a loan's schedule.
	LoadSchedule(ctx context.Context, loanID uuid.UUID) (models.Schedule, error)
	ScheduleHistory(ctx context.Context, loanID uuid.UUID) ([]models.Schedule, error)
	// SaveSchedule inserts a new schedule version; an existing version is
	// ErrDuplicate.
	SaveSchedule(ctx context.Context, s models.Schedule) error

	LoadMark(ctx context.Context, accountID string) (models.RevaluationMark, error)

	SaveRate(ctx context.Context, r models.ExchangeRate) error
	// RateAtOrBefore returns the latest rate for base/quote with AsOf <= at.
	RateAtOrBefore(ctx context.Context, base, quote money.Code, at time.Time) (models.ExchangeRate, error)
	// ListRates returns recorded rates ordered by pair then AsOf. Empty
	// codes match every pair.
	ListRates(ctx context.Context, base, quote money.Code) ([]models.ExchangeRate, error)

	Close() error
}
