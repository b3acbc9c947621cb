package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
reporting_currency = "USD"
revalue_every = "24h"

[database]
driver = "postgres"
dsn = "postgres://ledger@localhost/ledger?sslmode=disable"

[http]
rate_limit = 10.0

[[currencies]]
code = "USD"
exponent = 2

[[currencies]]
code = "JPY"
exponent = 0

[[accounts]]
id = "cash"
type = "asset"
currency = "USD"

[[accounts]]
id = "receivable"
type = "asset"
currency = "USD"

[[accounts]]
id = "interest"
type = "income"
currency = "USD"

[[accounts]]
id = "write-off"
type = "expense"
currency = "USD"

[posting.USD]
cash = "cash"
receivable = "receivable"
interest_income = "interest"
write_off_expense = "write-off"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loanledger.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 10.0, cfg.HTTP.RateLimit)
	assert.Equal(t, defaultBurst, cfg.HTTP.Burst)
	assert.Equal(t, defaultListen, cfg.HTTP.Listen)
	assert.Equal(t, 2*time.Second, cfg.LockTimeoutDuration())
	assert.Equal(t, 72*time.Hour, cfg.GuardTTL())
	assert.Equal(t, 24*time.Hour, cfg.RevalueInterval())

	currencies := cfg.CurrencyList()
	require.Len(t, currencies, 2)
	assert.Equal(t, money.Currency{Code: "JPY", Exponent: 0}, currencies[1])

	accounts := cfg.AccountList()
	require.Len(t, accounts, 4)
	assert.Equal(t, models.Income, accounts[2].Type)
	assert.Equal(t, "interest", cfg.PostingRules()["USD"].InterestIncome)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOANLEDGER_CONFIG", writeConfig(t, sample))
	t.Setenv("LOANLEDGER_DB_DRIVER", " sqlite3 ")
	t.Setenv("LOANLEDGER_DB_DSN", "/var/lib/loanledger/ledger.db")
	t.Setenv("LOANLEDGER_REDIS_ADDR", "redis:6379")
	t.Setenv("LOANLEDGER_LISTEN", ":9090")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "/var/lib/loanledger/ledger.db", cfg.Database.DSN)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, ":9090", cfg.HTTP.Listen)
	assert.Equal(t, "USD", cfg.ReportingCurrency)
}

func TestDefaultIsValid(t *testing.T) {
	t.Setenv("LOANLEDGER_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "loanledger.db", cfg.Database.DSN)
	assert.Len(t, cfg.RevaluationAccounts(), 1)
}

func TestExampleFileIsValid(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Posting, cfg.Posting)
	assert.Equal(t, Default().Revaluation, cfg.Revaluation)
	assert.Len(t, cfg.Accounts, len(Default().Accounts))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"missing dsn", func(c *Config) { c.Database.Driver = "postgres"; c.Database.DSN = "" }},
		{"bad duration", func(c *Config) { c.LockTimeout = "soon" }},
		{"negative revaluation interval", func(c *Config) { c.RevalueEvery = "-1h" }},
		{"reporting not configured", func(c *Config) { c.ReportingCurrency = "GBP" }},
		{"duplicate currency", func(c *Config) { c.Currencies = append(c.Currencies, c.Currencies[0]) }},
		{"account currency", func(c *Config) { c.Accounts[0].Currency = "CHF" }},
		{"posting account", func(c *Config) {
			set := c.Posting["USD"]
			set.Cash = "missing"
			c.Posting["USD"] = set
		}},
		{"revaluation currency", func(c *Config) {
			accts := c.Revaluation["EUR"]
			accts.Adjustment = "eur-cash"
			c.Revaluation["EUR"] = accts
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())

	memory := Default()
	memory.Database = Database{Driver: "memory"}
	assert.NoError(t, memory.Validate())
}

func TestParseRejectsMalformedTOML(t *testing.T) {
	_, err := Parse([]byte("reporting_currency = "))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestEncodeRoundTrip(t *testing.T) {
	data, err := Encode(Default())
	require.NoError(t, err)
	cfg, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, Default().Accounts, cfg.Accounts)
	assert.Equal(t, Default().Database, cfg.Database)
}
