package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/mcclellann/loanledger/pkg/config"
	"github.com/mcclellann/loanledger/pkg/engine"
	"golang.org/x/time/rate"
)

func main() {
	configPath := flag.String("config", "", "path to the TOML config (default $LOANLEDGER_CONFIG)")
	flag.Parse()

	w := log.NewSyncWriter(os.Stderr)
	logger := log.NewLogfmtLogger(w)
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	cfg, err := config.Load(*configPath)
	if err != nil {
		level.Error(logger).Log("msg", "loading config", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e, err := engine.Assemble(ctx, cfg, logger)
	if err != nil {
		level.Error(logger).Log("msg", "assembling engine", "err", err)
		os.Exit(1)
	}
	defer e.Close()

	srv := NewServer(e.Service, log.With(logger, "component", "http"))
	limiter := rate.NewLimiter(rate.Limit(cfg.HTTP.RateLimit), cfg.HTTP.Burst)

	server := &http.Server{
		Addr:         cfg.HTTP.Listen,
		Handler:      srv.Router(limiter),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if every := cfg.RevalueInterval(); every > 0 {
		go revalueEvery(ctx, e.Service, every, log.With(logger, "component", "revaluation_job"))
	}

	serverErr := make(chan error, 1)
	go func() {
		level.Info(logger).Log("msg", "server starting", "addr", cfg.HTTP.Listen, "db", cfg.Database.Driver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		level.Error(logger).Log("msg", "server failed", "err", err)
		return
	case sig := <-quit:
		level.Info(logger).Log("msg", "shutting down", "signal", sig)
	}
	cancel()

	shutdown, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := server.Shutdown(shutdown); err != nil {
		level.Error(logger).Log("msg", "shutdown", "err", err)
	}
	level.Info(logger).Log("msg", "server exited")
}

// revalueEvery revalues the whole chart at each tick until ctx ends.
func revalueEvery(ctx context.Context, svc engine.Service, every time.Duration, logger log.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			entries, err := svc.Revalue(ctx, nil, now.UTC())
			if err != nil {
				level.Warn(logger).Log("msg", "revaluation failed", "err", err)
				continue
			}
			level.Info(logger).Log("msg", "revaluation complete", "entries", len(entries))
		}
	}
}
