package fx

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/money"
)

// loggingFeed decorates a Feed with logging
type loggingFeed struct {
	next   Feed
	logger log.Logger
}

// NewLoggingFeed returns a new logging Feed
func NewLoggingFeed(logger log.Logger, f Feed) Feed {
	return &loggingFeed{
		next:   f,
		logger: logger,
	}
}

func (f *loggingFeed) RateAtOrBefore(ctx context.Context, base, quote money.Code, at time.Time) (r models.ExchangeRate, err error) {
	defer func(begin time.Time) {
		f.logger.Log(
			"method", "rate_at_or_before",
			"base", base,
			"quote", quote,
			"at", at.Format(time.RFC3339),
			"rate", r.Rate,
			"took", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return f.next.RateAtOrBefore(ctx, base, quote, at)
}
