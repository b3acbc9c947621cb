package fx

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/money"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// cachingFeed decorates a Feed with a TTL cache of answered lookups.
// Misses are never cached so a rate recorded later is picked up. A hit is
// served until it expires, even if a closer rate has been recorded or the
// rate corrected since. Concurrent lookups of the same key share one call
// to next.
type cachingFeed struct {
	next   Feed
	cache  *cache.Cache
	group  singleflight.Group
	logger log.Logger
}

// NewCachingFeed returns a Feed caching the answers of next for ttl.
func NewCachingFeed(ttl time.Duration, logger log.Logger, next Feed) Feed {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &cachingFeed{
		next:   next,
		cache:  cache.New(ttl, 2*ttl),
		logger: logger,
	}
}

func cacheKey(base, quote money.Code, at time.Time) string {
	return fmt.Sprintf("%s/%s@%d", base, quote, at.UnixNano())
}

func (c *cachingFeed) RateAtOrBefore(ctx context.Context, base, quote money.Code, at time.Time) (models.ExchangeRate, error) {
	key := cacheKey(base, quote, at)
	if v, ok := c.cache.Get(key); ok {
		return v.(models.ExchangeRate), nil
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		r, err := c.next.RateAtOrBefore(ctx, base, quote, at)
		if err != nil {
			return nil, err
		}
		c.cache.SetDefault(key, r)
		return r, nil
	})
	if err != nil {
		return models.ExchangeRate{}, err
	}
	if shared {
		c.logger.Log("msg", "shared rate lookup", "pair", string(base)+"/"+string(quote))
	}
	return v.(models.ExchangeRate), nil
}
