// Package fx resolves exchange rates as of a point in time.
//
// The authoritative rates live in a Store backed by persistent storage. A
// remote feed can be layered behind it with a cache and logging decorators
// in the same way the services in cmd/api are wired.
package fx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mcclellann/loanledger/pkg/apperr"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/money"
	"github.com/shopspring/decimal"
)

// InversePrecision is the number of decimal places kept when a rate is
// derived from the recorded inverse pair.
const InversePrecision = 12

// Feed answers "what was base/quote at time at". A feed returns an error
// wrapping apperr.ErrNoRateAvailable when it has no rate at or before at.
type Feed interface {
	RateAtOrBefore(ctx context.Context, base, quote money.Code, at time.Time) (models.ExchangeRate, error)
}

// FeedFunc adapts a function to Feed.
type FeedFunc func(ctx context.Context, base, quote money.Code, at time.Time) (models.ExchangeRate, error)

func (f FeedFunc) RateAtOrBefore(ctx context.Context, base, quote money.Code, at time.Time) (models.ExchangeRate, error) {
	return f(ctx, base, quote, at)
}

// Identity is the rate of a currency against itself.
func Identity(code money.Code, at time.Time) models.ExchangeRate {
	return models.ExchangeRate{Base: code, Quote: code, Rate: decimal.NewFromInt(1), AsOf: at}
}

// Invert returns the quote/base rate derived from r.
func Invert(r models.ExchangeRate) models.ExchangeRate {
	return models.ExchangeRate{
		Base:  r.Quote,
		Quote: r.Base,
		Rate:  decimal.NewFromInt(1).DivRound(r.Rate, InversePrecision),
		AsOf:  r.AsOf,
	}
}

func noRate(base, quote money.Code, at time.Time) error {
	return fmt.Errorf("%s/%s at %s: %w", base, quote, at.Format(time.RFC3339), apperr.ErrNoRateAvailable)
}

// Fallback asks each feed in turn and returns the first rate found. Only
// ErrNoRateAvailable moves on to the next feed; any other error stops.
func Fallback(feeds ...Feed) Feed {
	return FeedFunc(func(ctx context.Context, base, quote money.Code, at time.Time) (models.ExchangeRate, error) {
		for _, f := range feeds {
			r, err := f.RateAtOrBefore(ctx, base, quote, at)
			if err == nil {
				return r, nil
			}
			if !errors.Is(err, apperr.ErrNoRateAvailable) {
				return models.ExchangeRate{}, err
			}
		}
		return models.ExchangeRate{}, noRate(base, quote, at)
	})
}

// Convert expresses m in currency to using the rate at at, rounding half to
// even. The rate used is returned for the entry's FX leg.
func Convert(ctx context.Context, feed Feed, m money.Money, to money.Currency, at time.Time) (money.Money, models.ExchangeRate, error) {
	r, err := feed.RateAtOrBefore(ctx, m.Currency.Code, to.Code, at)
	if err != nil {
		return money.Money{}, models.ExchangeRate{}, err
	}
	converted, err := m.Convert(to, r.Rate, money.HalfEven)
	if err != nil {
		return money.Money{}, models.ExchangeRate{}, err
	}
	return converted, r, nil
}
