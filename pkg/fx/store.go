package fx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mcclellann/loanledger/pkg/apperr"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/money"
	"github.com/mcclellann/loanledger/pkg/store"
)

// RateStorage is the part of store.Storage the rate store needs.
type RateStorage interface {
	SaveRate(ctx context.Context, r models.ExchangeRate) error
	RateAtOrBefore(ctx context.Context, base, quote money.Code, at time.Time) (models.ExchangeRate, error)
	ListRates(ctx context.Context, base, quote money.Code) ([]models.ExchangeRate, error)
}

// Store is the time-indexed exchange rate store. Per pair it answers with
// the latest rate at or before the requested instant, falling back to the
// recorded inverse pair.
type Store struct {
	storage RateStorage
}

func NewStore(s RateStorage) *Store {
	return &Store{storage: s}
}

// NewMemoryStore returns a Store that keeps rates in process.
func NewMemoryStore() *Store {
	return NewStore(store.NewMemoryStore())
}

// Record adds r. A later Record for the same pair and instant replaces it.
func (s *Store) Record(ctx context.Context, r models.ExchangeRate) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Base == r.Quote {
		return fmt.Errorf("rate %s/%s: same currency: %w", r.Base, r.Quote, apperr.ErrInvalidAmount)
	}
	if err := s.storage.SaveRate(ctx, r); err != nil {
		return apperr.Storage("save rate", err)
	}
	return nil
}

func (s *Store) RateAtOrBefore(ctx context.Context, base, quote money.Code, at time.Time) (models.ExchangeRate, error) {
	if base == quote {
		return Identity(base, at), nil
	}
	r, err := s.storage.RateAtOrBefore(ctx, base, quote, at)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.ExchangeRate{}, apperr.Storage("load rate", err)
	}

	inv, err := s.storage.RateAtOrBefore(ctx, quote, base, at)
	if err == nil {
		return Invert(inv), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.ExchangeRate{}, apperr.Storage("load rate", err)
	}
	return models.ExchangeRate{}, noRate(base, quote, at)
}

// List returns recorded rates; empty codes match any pair.
func (s *Store) List(ctx context.Context, base, quote money.Code) ([]models.ExchangeRate, error) {
	rates, err := s.storage.ListRates(ctx, base, quote)
	if err != nil {
		return nil, apperr.Storage("list rates", err)
	}
	return rates, nil
}
