package engine

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/apperr"
	"github.com/mcclellann/loanledger/pkg/config"
	"github.com/mcclellann/loanledger/pkg/interest"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/money"
	"github.com/mcclellann/loanledger/pkg/posting"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, logger log.Logger) Service {
	t.Helper()
	cfg := config.Default()
	cfg.Database = config.Database{Driver: "sqlite3", DSN: filepath.Join(t.TempDir(), "engine.db")}
	e, err := Assemble(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e.Service
}

func terms(t *testing.T, svc Service, code money.Code, principal string) models.LoanTerms {
	t.Helper()
	cur, err := svc.Catalog().Lookup(code)
	require.NoError(t, err)
	p, err := money.Parse(principal, cur, money.HalfEven)
	require.NoError(t, err)
	return models.LoanTerms{
		Principal:        p,
		NominalRate:      decimal.RequireFromString("0.12"),
		TermCount:        12,
		Period:           models.Period{Kind: models.Monthly},
		DayCount:         interest.Thirty360,
		FirstPaymentDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestLoanLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newEngine(t, nil)
	loanID := uuid.New()

	sch, err := svc.GenerateSchedule(ctx, terms(t, svc, "USD", "12000"))
	require.NoError(t, err)
	require.Len(t, sch.Installments, 12)
	assert.Equal(t, int64(12000), sch.Installments[0].Interest.Amount)

	_, err = svc.PostEvent(ctx, posting.Disbursement{Meta: posting.Meta{Key: "d", At: t0, LoanID: loanID}, Terms: terms(t, svc, "USD", "12000")})
	require.NoError(t, err)

	stored, err := svc.Schedule(ctx, loanID)
	require.NoError(t, err)
	require.Len(t, stored.Installments, 12)
	assert.Equal(t, sch.Installments[11].TotalDue, stored.Installments[11].TotalDue)
	assert.Equal(t, 1, stored.Version)

	usd, _ := svc.Catalog().Lookup("USD")
	entries, err := svc.PostEvent(ctx, posting.Repayment{Meta: posting.Meta{Key: "p1", At: t0.AddDate(0, 1, 0), LoanID: loanID}, Amount: money.New(106619, usd)})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	receivable, err := svc.BalanceOf(ctx, "usd-loans-receivable", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(1200000-94619), receivable.Amount)
	income, err := svc.BalanceOf(ctx, "usd-interest-income", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(12000), income.Amount)

	// before the repayment
	earlier, err := svc.BalanceOf(ctx, "usd-loans-receivable", t0.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1200000), earlier.Amount)

	rev, err := svc.Reverse(ctx, entries[0].ID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, entries[0].ID, *rev.Reverses)
	receivable, err = svc.BalanceOf(ctx, "usd-loans-receivable", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(1200000), receivable.Amount)

	_, err = svc.Reverse(ctx, entries[0].ID, time.Time{})
	assert.True(t, errors.Is(err, apperr.ErrDuplicateEvent))

	_, err = svc.Schedule(ctx, uuid.New())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	history, err := svc.ScheduleHistory(ctx, loanID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRevalueForeignLoan(t *testing.T) {
	ctx := context.Background()
	svc := newEngine(t, nil)
	loanID := uuid.New()

	_, err := svc.PostEvent(ctx, posting.Disbursement{Meta: posting.Meta{Key: "d", At: t0, LoanID: loanID}, Terms: terms(t, svc, "EUR", "1000")})
	require.NoError(t, err)

	jan := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	require.NoError(t, svc.RecordRate(ctx, models.ExchangeRate{Base: "EUR", Quote: "USD", Rate: decimal.RequireFromString("1.10"), AsOf: jan}))
	require.NoError(t, svc.RecordRate(ctx, models.ExchangeRate{Base: "EUR", Quote: "USD", Rate: decimal.RequireFromString("1.15"), AsOf: feb}))

	posted, err := svc.Revalue(ctx, []string{"eur-loans-receivable"}, jan)
	require.NoError(t, err)
	assert.Empty(t, posted)

	posted, err = svc.Revalue(ctx, []string{"eur-loans-receivable"}, feb)
	require.NoError(t, err)
	require.Len(t, posted, 1)
	assert.Equal(t, int64(5000), posted[0].Lines[0].Amount.Amount)
	assert.Equal(t, models.Debit, posted[0].Lines[0].Side)

	gain, err := svc.BalanceOf(ctx, "fx-unrealized-gain-loss", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), gain.Amount)

	// every account in the chart; the other EUR accounts only get marked
	posted, err = svc.Revalue(ctx, nil, feb)
	require.NoError(t, err)
	assert.Empty(t, posted)

	r, err := svc.Rate(ctx, "USD", "EUR", feb)
	require.NoError(t, err)
	assert.Equal(t, "0.869565217391", r.Rate.String())

	rates, err := svc.Rates(ctx, "EUR", "")
	require.NoError(t, err)
	assert.Len(t, rates, 2)

	err = svc.RecordRate(ctx, models.ExchangeRate{Base: "GBP", Quote: "USD", Rate: decimal.RequireFromString("1.27"), AsOf: jan})
	assert.True(t, errors.Is(err, apperr.ErrUnknownCurrency))
}

func TestLoggingServiceLogsCalls(t *testing.T) {
	var buf bytes.Buffer
	svc := newEngine(t, log.NewLogfmtLogger(&buf))
	ctx := context.Background()

	_, err := svc.BalanceOf(ctx, "usd-cash", time.Time{})
	require.NoError(t, err)
	_, err = svc.BalanceOf(ctx, "nope", time.Time{})
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, "component=engine")
	assert.Contains(t, out, "method=balance_of")
	assert.Contains(t, out, "err_kind=UnknownAccount")
	assert.Contains(t, out, "component=store")
}

func TestAssembleRejectsBadRules(t *testing.T) {
	cfg := config.Default()
	cfg.Database = config.Database{Driver: "memory"}
	set := cfg.Posting["USD"]
	set.Receivable = "usd-interest-income"
	cfg.Posting["USD"] = set

	_, err := Assemble(context.Background(), cfg, nil)
	assert.Error(t, err)
}
