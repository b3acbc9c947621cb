package interest

import (
	"errors"
	"testing"
	"time"

	"github.com/mcclellann/loanledger/pkg/apperr"
	"github.com/mcclellann/loanledger/pkg/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var usd = money.Currency{Code: "USD", Exponent: 2}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDays(t *testing.T) {
	tests := []struct {
		name     string
		dc       DayCount
		from, to time.Time
		want     int64
	}{
		{"act leap february", Actual365, date(2024, 2, 1), date(2024, 3, 1), 29},
		{"act year", Actual360, date(2023, 1, 1), date(2024, 1, 1), 365},
		{"30/360 month", Thirty360, date(2024, 1, 15), date(2024, 2, 15), 30},
		{"30/360 feb", Thirty360, date(2024, 1, 31), date(2024, 2, 29), 29},
		{"30/360 d1 31", Thirty360, date(2024, 1, 31), date(2024, 3, 31), 60},
		{"30/360 d2 31 kept", Thirty360, date(2024, 1, 15), date(2024, 3, 31), 76},
		{"30/360 year", Thirty360, date(2023, 6, 30), date(2024, 6, 30), 360},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dc.Days(tt.from, tt.to))
		})
	}
}

func TestYearFraction(t *testing.T) {
	yf := Thirty360.YearFraction(date(2024, 1, 1), date(2024, 7, 1))
	assert.True(t, yf.Equal(decimal.RequireFromString("0.5")), yf.String())
	assert.Equal(t, int64(365), Actual365.Basis())
	assert.Equal(t, int64(360), Actual360.Basis())
}

func TestAccrueSimple(t *testing.T) {
	p := money.New(1200000, usd)
	rate := decimal.RequireFromString("0.12")

	got, err := Accrue(p, rate, date(2024, 1, 1), date(2024, 2, 1), Thirty360, Simple, money.HalfEven)
	require.NoError(t, err)
	assert.Equal(t, int64(12000), got.Amount)

	// 12000 * 0.12 * 31/365 = 122.30136...
	got, err = Accrue(p, rate, date(2024, 1, 1), date(2024, 2, 1), Actual365, "", money.HalfEven)
	require.NoError(t, err)
	assert.Equal(t, int64(12230), got.Amount)
}

func TestAccrueDaily(t *testing.T) {
	p := money.New(1000000, usd)
	rate := decimal.RequireFromString("0.365")

	// 10000 * ((1+0.001)^2 - 1) = 20.01
	got, err := Accrue(p, rate, date(2024, 1, 1), date(2024, 1, 3), Actual365, Daily, money.HalfEven)
	require.NoError(t, err)
	assert.Equal(t, int64(2001), got.Amount)

	simple, err := Accrue(p, rate, date(2024, 1, 1), date(2024, 1, 3), Actual365, Simple, money.HalfEven)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), simple.Amount)
}

func TestAccrueEdges(t *testing.T) {
	p := money.New(100, usd)
	rate := decimal.RequireFromString("0.05")

	got, err := Accrue(p, rate, date(2024, 1, 1), date(2024, 1, 1), Actual360, Simple, money.HalfEven)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
	assert.Equal(t, usd, got.Currency)

	_, err = Accrue(p, rate, date(2024, 1, 2), date(2024, 1, 1), Actual360, Simple, money.HalfEven)
	assert.True(t, errors.Is(err, apperr.ErrInvalidInterval))

	_, err = Accrue(p, rate.Neg(), date(2024, 1, 1), date(2024, 1, 2), Actual360, Simple, money.HalfEven)
	assert.True(t, errors.Is(err, apperr.ErrInvalidTerms))

	_, err = Accrue(p, rate, date(2024, 1, 1), date(2024, 3, 2), Actual360, "monthly", money.HalfEven)
	assert.True(t, errors.Is(err, apperr.ErrInvalidTerms))
}

func TestParse(t *testing.T) {
	dc, err := ParseDayCount("act_360")
	require.NoError(t, err)
	assert.Equal(t, Actual360, dc)
	dc, err = ParseDayCount("30/360")
	require.NoError(t, err)
	assert.Equal(t, Thirty360, dc)
	_, err = ParseDayCount("bus/252")
	assert.Error(t, err)

	c, err := ParseCompounding("DAILY")
	require.NoError(t, err)
	assert.Equal(t, Daily, c)
	_, err = ParseCompounding("hourly")
	assert.Error(t, err)
}
