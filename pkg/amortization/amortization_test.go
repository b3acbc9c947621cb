package amortization

import (
	"errors"
	"testing"
	"time"

	"github.com/mcclellann/loanledger/pkg/apperr"
	"github.com/mcclellann/loanledger/pkg/interest"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var usd = money.Currency{Code: "USD", Exponent: 2}

func twelveThousand() models.LoanTerms {
	return models.LoanTerms{
		Principal:        money.New(1200000, usd),
		NominalRate:      decimal.RequireFromString("0.12"),
		TermCount:        12,
		Period:           models.Period{Kind: models.Monthly},
		DayCount:         interest.Thirty360,
		FirstPaymentDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func assertReconciles(t *testing.T, s models.Schedule) {
	t.Helper()
	principal, _ := Totals(s)
	assert.Equal(t, s.Terms.Principal, principal, "principal column must sum to the loan principal")
	for i, in := range s.Installments {
		assert.Equal(t, i+1, in.Sequence)
		assert.False(t, in.Principal.IsNegative())
		assert.Equal(t, in.Principal.Amount+in.Interest.Amount, in.TotalDue.Amount)
		assert.Equal(t, models.Scheduled, in.Status)
	}
}

func TestReducingBalance(t *testing.T) {
	s, err := Generate(twelveThousand())
	require.NoError(t, err)
	require.Len(t, s.Installments, 12)
	assertReconciles(t, s)

	assert.Equal(t, 1, s.Version)
	assert.Equal(t, models.ReducingBalance, s.Terms.Method)
	level, err := LevelPayment(s.Terms)
	require.NoError(t, err)
	assert.Equal(t, int64(106619), level.Amount)

	first := s.Installments[0]
	assert.Equal(t, int64(12000), first.Interest.Amount)
	assert.Equal(t, int64(94619), first.Principal.Amount)
	assert.Equal(t, int64(106619), first.TotalDue.Amount)

	// interest falls as the balance falls
	for i := 1; i < len(s.Installments); i++ {
		assert.LessOrEqual(t, s.Installments[i].Interest.Amount, s.Installments[i-1].Interest.Amount)
	}
	last := s.Installments[11]
	assert.InDelta(t, 106619, last.TotalDue.Amount, 10)
}

func TestGenerateIsDeterministic(t *testing.T) {
	a, err := Generate(twelveThousand())
	require.NoError(t, err)
	b, err := Generate(twelveThousand())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMethods(t *testing.T) {
	tests := []struct {
		method        models.Method
		firstInterest int64
		firstPrinc    int64
		lastInterest  int64
		lastPrinc     int64
	}{
		{models.EqualPrincipal, 12000, 100000, 1000, 100000},
		{models.FlatRate, 12000, 100000, 12000, 100000},
		{models.InterestOnlyBullet, 12000, 0, 12000, 1200000},
	}
	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			terms := twelveThousand()
			terms.Method = tt.method
			s, err := Generate(terms)
			require.NoError(t, err)
			assertReconciles(t, s)
			assert.Equal(t, tt.firstInterest, s.Installments[0].Interest.Amount)
			assert.Equal(t, tt.firstPrinc, s.Installments[0].Principal.Amount)
			assert.Equal(t, tt.lastInterest, s.Installments[11].Interest.Amount)
			assert.Equal(t, tt.lastPrinc, s.Installments[11].Principal.Amount)
		})
	}
}

func TestZeroRateSplitsEvenly(t *testing.T) {
	terms := twelveThousand()
	terms.Principal = money.New(100000, usd)
	terms.NominalRate = decimal.Zero
	terms.TermCount = 3
	s, err := Generate(terms)
	require.NoError(t, err)
	assertReconciles(t, s)
	assert.Equal(t, int64(33333), s.Installments[0].Principal.Amount)
	assert.Equal(t, int64(33333), s.Installments[1].Principal.Amount)
	assert.Equal(t, int64(33334), s.Installments[2].Principal.Amount)
	for _, in := range s.Installments {
		assert.True(t, in.Interest.IsZero())
	}
}

func TestMonthEndDueDates(t *testing.T) {
	terms := twelveThousand()
	terms.FirstPaymentDate = time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	terms.TermCount = 4
	s, err := Generate(terms)
	require.NoError(t, err)

	want := []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"}
	for i, in := range s.Installments {
		assert.Equal(t, want[i], in.DueDate.Format("2006-01-02"))
	}
	assert.Equal(t, "2023-12-31", DueDate(terms, 0).Format("2006-01-02"))
}

func TestWeeklyAndCustomPeriods(t *testing.T) {
	terms := twelveThousand()
	terms.Period = models.Period{Kind: models.Weekly}
	terms.DayCount = interest.Actual365
	s, err := Generate(terms)
	require.NoError(t, err)
	assertReconciles(t, s)
	assert.Equal(t, 7*24*time.Hour, s.Installments[1].DueDate.Sub(s.Installments[0].DueDate))

	terms.Period = models.Period{Kind: models.Custom, Days: 14}
	s, err = Generate(terms)
	require.NoError(t, err)
	assertReconciles(t, s)
	assert.Equal(t, 14*24*time.Hour, s.Installments[1].DueDate.Sub(s.Installments[0].DueDate))

	num, den := PeriodRate(terms)
	assert.True(t, num.Equal(decimal.RequireFromString("1.68")))
	assert.True(t, den.Equal(decimal.NewFromInt(365)))
}

func TestLongDailyCompoundedLoanReconciles(t *testing.T) {
	terms := twelveThousand()
	terms.Principal = money.New(25000000, usd)
	terms.NominalRate = decimal.RequireFromString("0.0675")
	terms.TermCount = 120
	terms.DayCount = interest.Actual365
	terms.Compounding = interest.Daily
	s, err := Generate(terms)
	require.NoError(t, err)
	assertReconciles(t, s)
}

func TestInvalidTerms(t *testing.T) {
	terms := twelveThousand()
	terms.TermCount = 0
	_, err := Generate(terms)
	assert.True(t, errors.Is(err, apperr.ErrInvalidTerms))

	terms = twelveThousand()
	terms.Period = models.Period{Kind: models.Custom, Days: -3}
	_, err = Generate(terms)
	assert.True(t, errors.Is(err, apperr.ErrInvalidTerms))
}
