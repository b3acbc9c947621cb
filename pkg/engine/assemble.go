package engine

import (
	"context"
	"fmt"

	"github.com/go-kit/log"
	"github.com/mcclellann/loanledger/pkg/config"
	"github.com/mcclellann/loanledger/pkg/fx"
	"github.com/mcclellann/loanledger/pkg/idempotency"
	"github.com/mcclellann/loanledger/pkg/ledger"
	"github.com/mcclellann/loanledger/pkg/lock"
	"github.com/mcclellann/loanledger/pkg/money"
	"github.com/mcclellann/loanledger/pkg/posting"
	"github.com/mcclellann/loanledger/pkg/revaluation"
	"github.com/mcclellann/loanledger/pkg/store"
)

// Engine is an assembled Service together with the resources it owns.
type Engine struct {
	Service Service
	closers []func() error
}

// Close releases the database connection and the redis client.
func (e *Engine) Close() error {
	var first error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Assemble builds the engine described by cfg. Components log through
// logger tagged with their name.
func Assemble(ctx context.Context, cfg config.Config, logger log.Logger) (*Engine, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	e := &Engine{}
	fail := func(err error) (*Engine, error) {
		e.Close()
		return nil, err
	}

	catalog, err := money.NewCatalog(cfg.CurrencyList()...)
	if err != nil {
		return nil, fmt.Errorf("currencies: %w", err)
	}
	chart, err := ledger.NewChart(cfg.AccountList()...)
	if err != nil {
		return nil, fmt.Errorf("chart of accounts: %w", err)
	}

	var storage store.Storage
	if cfg.Database.Driver == "memory" {
		storage = store.NewMemoryStore()
	} else {
		sqlStore, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, log.With(logger, "component", "store"))
		if err != nil {
			return nil, err
		}
		storage = sqlStore
	}
	e.closers = append(e.closers, storage.Close)

	locks := lock.NewKeyed()
	l, err := ledger.NewLedger(storage, chart, catalog, ledger.Options{
		LockTimeout: cfg.LockTimeoutDuration(),
		Logger:      log.With(logger, "component", "ledger"),
		Locks:       locks,
	})
	if err != nil {
		return fail(err)
	}

	rules, err := posting.NewRules(chart, cfg.PostingRules())
	if err != nil {
		return fail(err)
	}
	var guard idempotency.Guard = idempotency.Nop{}
	if cfg.Redis.Addr != "" {
		g := idempotency.NewRedisGuard(cfg.Redis.Addr, cfg.GuardTTL())
		e.closers = append(e.closers, g.Close)
		guard = g
	}
	pipeline := posting.NewPipeline(l, storage, rules, posting.Options{
		Guard:       guard,
		LockTimeout: cfg.LockTimeoutDuration(),
		Logger:      log.With(logger, "component", "posting"),
		Locks:       locks,
	})

	rates := fx.NewStore(storage)
	var feed fx.Feed = rates
	if cfg.Rates.FeedURL != "" {
		remote := fx.NewHTTPFeed(cfg.Rates.FeedURL, cfg.FeedTimeout())
		remote = fx.NewLoggingFeed(log.With(logger, "component", "rate_feed"), remote)
		remote = fx.NewCachingFeed(cfg.CacheTTL(), log.With(logger, "component", "rate_cache"), remote)
		feed = fx.Fallback(rates, remote)
	}

	revaluer, err := revaluation.NewRevaluer(l, storage, feed, revaluation.Config{
		Reporting: money.Code(cfg.ReportingCurrency),
		Accounts:  cfg.RevaluationAccounts(),
		Logger:    log.With(logger, "component", "revaluation"),
	})
	if err != nil {
		return fail(err)
	}

	svc := NewService(l, pipeline, revaluer, rates, feed, storage)
	e.Service = NewLoggingService(log.With(logger, "component", "engine"), svc)
	return e, nil
}
