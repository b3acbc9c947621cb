// Package config loads the engine configuration from a TOML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/money"
	"github.com/mcclellann/loanledger/pkg/posting"
	"github.com/mcclellann/loanledger/pkg/revaluation"
	"github.com/pelletier/go-toml"
)

const (
	defaultDriver      = "sqlite3"
	defaultDSN         = "loanledger.db"
	defaultListen      = ":8080"
	defaultLockTimeout = "2s"
	defaultFeedTimeout = "5s"
	defaultCacheTTL    = "5m"
	defaultGuardTTL    = "72h"
	defaultRateLimit   = 50
	defaultBurst       = 100
)

type Database struct {
	// Driver is sqlite3, postgres or memory.
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

type Redis struct {
	// Addr enables the shared idempotency guard when set.
	Addr string `toml:"addr"`
	TTL  string `toml:"ttl"`
}

type Rates struct {
	// FeedURL is consulted when the local rate store has no rate.
	FeedURL     string `toml:"feed_url"`
	FeedTimeout string `toml:"feed_timeout"`
	// CacheTTL is how long a looked-up rate is reused. A rate recorded or
	// corrected later for the same pair and instant is not seen until the
	// cached answer expires.
	CacheTTL    string `toml:"cache_ttl"`
}

type HTTP struct {
	Listen string `toml:"listen"`
	// RateLimit is requests per second across all clients.
	RateLimit float64 `toml:"rate_limit"`
	Burst     int     `toml:"burst"`
}

type Currency struct {
	Code     string `toml:"code"`
	Exponent int    `toml:"exponent"`
	Symbol   string `toml:"symbol"`
	Name     string `toml:"name"`
}

type Account struct {
	ID       string `toml:"id"`
	Name     string `toml:"name"`
	Type     string `toml:"type"`
	Currency string `toml:"currency"`
}

type Config struct {
	ReportingCurrency string `toml:"reporting_currency"`
	LockTimeout       string `toml:"lock_timeout"`
	// RevalueEvery schedules revaluation of the whole chart in the server.
	// Empty disables it.
	RevalueEvery      string `toml:"revalue_every"`

	Database Database `toml:"database"`
	Redis    Redis    `toml:"redis"`
	Rates    Rates    `toml:"rates"`
	HTTP     HTTP     `toml:"http"`

	Currencies []Currency `toml:"currencies"`
	Accounts   []Account  `toml:"accounts"`
	// Posting and Revaluation are keyed by currency code.
	Posting     map[string]posting.AccountSet   `toml:"posting"`
	Revaluation map[string]revaluation.Accounts `toml:"revaluation"`
}

// Load reads the file at path, or at $LOANLEDGER_CONFIG when path is empty.
// Without either it starts from Default. Environment overrides and defaults
// are applied and the result is validated.
func Load(path string) (Config, error) {
	if path == "" {
		path = strings.TrimSpace(os.Getenv("LOANLEDGER_CONFIG"))
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if cfg, err = Parse(data); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes TOML without applying defaults or validating.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Encode renders cfg as TOML.
func Encode(cfg Config) ([]byte, error) {
	return toml.Marshal(cfg)
}

func env(name string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

func (c *Config) applyEnv() {
	env("LOANLEDGER_DB_DRIVER", &c.Database.Driver)
	env("LOANLEDGER_DB_DSN", &c.Database.DSN)
	env("LOANLEDGER_REDIS_ADDR", &c.Redis.Addr)
	env("LOANLEDGER_RATE_FEED_URL", &c.Rates.FeedURL)
	env("LOANLEDGER_LISTEN", &c.HTTP.Listen)
}

func (c *Config) applyDefaults() {
	orDefault := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	orDefault(&c.Database.Driver, defaultDriver)
	if c.Database.Driver == defaultDriver {
		orDefault(&c.Database.DSN, defaultDSN)
	}
	orDefault(&c.LockTimeout, defaultLockTimeout)
	orDefault(&c.Redis.TTL, defaultGuardTTL)
	orDefault(&c.Rates.FeedTimeout, defaultFeedTimeout)
	orDefault(&c.Rates.CacheTTL, defaultCacheTTL)
	orDefault(&c.HTTP.Listen, defaultListen)
	if c.HTTP.RateLimit <= 0 {
		c.HTTP.RateLimit = defaultRateLimit
	}
	if c.HTTP.Burst <= 0 {
		c.HTTP.Burst = defaultBurst
	}
}

// Validate checks durations and that every account, rule and the reporting
// currency refer to configured currencies and accounts.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres", "memory":
	default:
		return fmt.Errorf("database driver %q not supported", c.Database.Driver)
	}
	if c.Database.Driver != "memory" && c.Database.DSN == "" {
		return fmt.Errorf("database dsn missing for %s", c.Database.Driver)
	}
	for name, d := range map[string]string{
		"lock_timeout":       c.LockTimeout,
		"redis.ttl":          c.Redis.TTL,
		"rates.feed_timeout": c.Rates.FeedTimeout,
		"rates.cache_ttl":    c.Rates.CacheTTL,
	} {
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.RevalueEvery != "" {
		if d, err := time.ParseDuration(c.RevalueEvery); err != nil || d <= 0 {
			return fmt.Errorf("revalue_every %q is not a positive duration", c.RevalueEvery)
		}
	}

	currencies := make(map[string]bool)
	for _, cur := range c.Currencies {
		if currencies[cur.Code] {
			return fmt.Errorf("currency %s defined twice", cur.Code)
		}
		currencies[cur.Code] = true
	}
	if !currencies[c.ReportingCurrency] {
		return fmt.Errorf("reporting currency %q is not configured", c.ReportingCurrency)
	}

	accounts := make(map[string]string)
	for _, a := range c.Accounts {
		if !currencies[a.Currency] {
			return fmt.Errorf("account %q: currency %q is not configured", a.ID, a.Currency)
		}
		accounts[a.ID] = a.Currency
	}
	for code, set := range c.Posting {
		for _, id := range []string{set.Cash, set.Receivable, set.InterestIncome, set.WriteOffExpense} {
			if _, ok := accounts[id]; !ok {
				return fmt.Errorf("posting.%s: account %q is not configured", code, id)
			}
		}
	}
	for code, accts := range c.Revaluation {
		for _, id := range []string{accts.Adjustment, accts.UnrealizedGainLoss} {
			cur, ok := accounts[id]
			if !ok {
				return fmt.Errorf("revaluation.%s: account %q is not configured", code, id)
			}
			if cur != c.ReportingCurrency {
				return fmt.Errorf("revaluation.%s: account %q is not in %s", code, id, c.ReportingCurrency)
			}
		}
	}
	return nil
}

func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// LockTimeoutDuration and the other duration accessors assume a validated
// config.
func (c Config) LockTimeoutDuration() time.Duration { return mustDuration(c.LockTimeout) }
func (c Config) GuardTTL() time.Duration            { return mustDuration(c.Redis.TTL) }
func (c Config) FeedTimeout() time.Duration         { return mustDuration(c.Rates.FeedTimeout) }
func (c Config) CacheTTL() time.Duration            { return mustDuration(c.Rates.CacheTTL) }

// RevalueInterval is zero when periodic revaluation is off.
func (c Config) RevalueInterval() time.Duration {
	if c.RevalueEvery == "" {
		return 0
	}
	return mustDuration(c.RevalueEvery)
}

// CurrencyList converts the configured currencies.
func (c Config) CurrencyList() []money.Currency {
	out := make([]money.Currency, 0, len(c.Currencies))
	for _, cur := range c.Currencies {
		out = append(out, money.Currency{
			Code:     money.Code(cur.Code),
			Exponent: int32(cur.Exponent),
			Symbol:   cur.Symbol,
			Name:     cur.Name,
		})
	}
	return out
}

// AccountList converts the configured chart of accounts.
func (c Config) AccountList() []models.Account {
	out := make([]models.Account, 0, len(c.Accounts))
	for _, a := range c.Accounts {
		out = append(out, models.Account{
			ID:       a.ID,
			Name:     a.Name,
			Type:     models.AccountType(a.Type),
			Currency: money.Code(a.Currency),
		})
	}
	return out
}

func (c Config) PostingRules() map[money.Code]posting.AccountSet {
	out := make(map[money.Code]posting.AccountSet, len(c.Posting))
	for code, set := range c.Posting {
		out[money.Code(code)] = set
	}
	return out
}

func (c Config) RevaluationAccounts() map[money.Code]revaluation.Accounts {
	out := make(map[money.Code]revaluation.Accounts, len(c.Revaluation))
	for code, accts := range c.Revaluation {
		out[money.Code(code)] = accts
	}
	return out
}

// Default is a USD-reporting book lending in USD and EUR, stored in
// loanledger.db.
func Default() Config {
	cfg := Config{
		ReportingCurrency: "USD",
		Database:          Database{Driver: defaultDriver, DSN: defaultDSN},
		Currencies: []Currency{
			{Code: "USD", Exponent: 2, Symbol: "$", Name: "US Dollar"},
			{Code: "EUR", Exponent: 2, Symbol: "€", Name: "Euro"},
		},
		Accounts: []Account{
			{ID: "usd-cash", Name: "Cash USD", Type: "asset", Currency: "USD"},
			{ID: "usd-loans-receivable", Name: "Loans receivable USD", Type: "asset", Currency: "USD"},
			{ID: "usd-interest-income", Name: "Interest income USD", Type: "income", Currency: "USD"},
			{ID: "usd-write-offs", Name: "Loan write-offs USD", Type: "expense", Currency: "USD"},
			{ID: "eur-cash", Name: "Cash EUR", Type: "asset", Currency: "EUR"},
			{ID: "eur-loans-receivable", Name: "Loans receivable EUR", Type: "asset", Currency: "EUR"},
			{ID: "eur-interest-income", Name: "Interest income EUR", Type: "income", Currency: "EUR"},
			{ID: "eur-write-offs", Name: "Loan write-offs EUR", Type: "expense", Currency: "EUR"},
			{ID: "fx-revaluation-adjustment", Name: "FX revaluation adjustment", Type: "asset", Currency: "USD"},
			{ID: "fx-unrealized-gain-loss", Name: "Unrealized FX gain/loss", Type: "income", Currency: "USD"},
		},
		Posting: map[string]posting.AccountSet{
			"USD": {Cash: "usd-cash", Receivable: "usd-loans-receivable", InterestIncome: "usd-interest-income", WriteOffExpense: "usd-write-offs"},
			"EUR": {Cash: "eur-cash", Receivable: "eur-loans-receivable", InterestIncome: "eur-interest-income", WriteOffExpense: "eur-write-offs"},
		},
		Revaluation: map[string]revaluation.Accounts{
			"EUR": {Adjustment: "fx-revaluation-adjustment", UnrealizedGainLoss: "fx-unrealized-gain-loss"},
		},
	}
	cfg.applyDefaults()
	return cfg
}
