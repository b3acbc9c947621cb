package money

import (
	"errors"
	"math"
	"testing"

	"github.com/mcclellann/loanledger/pkg/apperr"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usd = Currency{Code: "USD", Exponent: 2, Symbol: "$", Name: "US Dollar"}
	eur = Currency{Code: "EUR", Exponent: 2, Symbol: "€"}
	jpy = Currency{Code: "JPY", Exponent: 0}
)

func TestAddSubSameCurrency(t *testing.T) {
	a := New(1050, usd)
	b := New(225, usd)

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, int64(1275), sum.Amount)

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, int64(825), diff.Amount)
}

func TestMixedCurrencyIsRejected(t *testing.T) {
	a := New(100, usd)
	b := New(100, eur)

	_, err := a.Add(b)
	assert.True(t, errors.Is(err, apperr.ErrCurrencyMismatch))
	_, err = a.Sub(b)
	assert.True(t, errors.Is(err, apperr.ErrCurrencyMismatch))
	_, err = a.Cmp(b)
	assert.True(t, errors.Is(err, apperr.ErrCurrencyMismatch))

	// same code, different exponent is a different unit
	_, err = a.Add(New(1, Currency{Code: "USD", Exponent: 3}))
	assert.True(t, errors.Is(err, apperr.ErrCurrencyMismatch))
}

func TestCmp(t *testing.T) {
	c, err := New(5, usd).Cmp(New(7, usd))
	require.NoError(t, err)
	assert.Equal(t, -1, c)
	c, _ = New(7, usd).Cmp(New(7, usd))
	assert.Equal(t, 0, c)
	c, _ = New(9, usd).Cmp(New(7, usd))
	assert.Equal(t, 1, c)
}

func TestFromDecimalRounding(t *testing.T) {
	tests := []struct {
		in     string
		policy RoundingPolicy
		want   int64
	}{
		{"0.125", HalfEven, 12},
		{"0.135", HalfEven, 14},
		{"-0.125", HalfEven, -12},
		{"0.125", HalfUp, 13},
		{"-0.125", HalfUp, -13},
		{"0.129", Down, 12},
		{"-0.129", Down, -12},
		{"0.121", Up, 13},
		{"-0.121", Up, -13},
		{"-0.121", Floor, -13},
		{"0.129", Floor, 12},
		{"0.121", Ceiling, 13},
		{"-0.129", Ceiling, -12},
		{"0.1251", HalfEven, 13},
		{"12.00", "", 1200},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy)+"/"+tt.in, func(t *testing.T) {
			got, err := FromDecimal(decimal.RequireFromString(tt.in), usd, tt.policy)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Amount)
		})
	}
}

func TestFromRatioIsExact(t *testing.T) {
	// 100.00 / 3 = 33.333... rounds to 33.33; 200.00 / 3 to 66.67
	got, err := FromRatio(decimal.NewFromInt(100), decimal.NewFromInt(3), usd, HalfEven)
	require.NoError(t, err)
	assert.Equal(t, int64(3333), got.Amount)
	got, err = FromRatio(decimal.NewFromInt(200), decimal.NewFromInt(3), usd, HalfEven)
	require.NoError(t, err)
	assert.Equal(t, int64(6667), got.Amount)
	// 1/8 of a yen is below the minor unit
	got, err = FromRatio(decimal.NewFromInt(1), decimal.NewFromInt(8), jpy, HalfEven)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Amount)

	_, err = FromRatio(decimal.NewFromInt(1), decimal.Zero, usd, HalfEven)
	assert.ErrorIs(t, err, apperr.ErrInvalidAmount)
}

func TestConvert(t *testing.T) {
	a := New(100000, eur)
	got, err := a.Convert(usd, decimal.RequireFromString("1.15"), HalfEven)
	require.NoError(t, err)
	assert.Equal(t, New(115000, usd), got)

	got, err = New(1000, usd).Convert(jpy, decimal.RequireFromString("151.235"), HalfEven)
	require.NoError(t, err)
	assert.Equal(t, int64(1512), got.Amount)
}

func TestMulScalarRoundsOnce(t *testing.T) {
	got, err := New(1001, usd).MulScalar(decimal.RequireFromString("0.5"), HalfEven)
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.Amount)
	got, err = New(1001, usd).MulScalar(decimal.RequireFromString("0.5"), HalfUp)
	require.NoError(t, err)
	assert.Equal(t, int64(501), got.Amount)
}

func TestAmountsOutsideInt64(t *testing.T) {
	huge := New(math.MaxInt64/2+1, usd)
	tests := []struct {
		name string
		do   func() error
	}{
		{"parse 1e30", func() error { _, err := Parse("1e30", usd, HalfEven); return err }},
		{"parse negative", func() error { _, err := Parse("-92233720368547758.09", usd, HalfEven); return err }},
		{"convert", func() error {
			_, err := huge.Convert(jpy, decimal.NewFromInt(1000), HalfEven)
			return err
		}},
		{"mul scalar", func() error { _, err := huge.MulScalar(decimal.NewFromInt(2), HalfEven); return err }},
		{"add", func() error { _, err := huge.Add(huge); return err }},
		{"sub", func() error { _, err := New(-math.MaxInt64, usd).Sub(New(2, usd)); return err }},
		{"sum", func() error { _, err := Sum(huge, huge, New(-2, usd)); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() { err = tt.do() })
			assert.ErrorIs(t, err, apperr.ErrInvalidAmount)
		})
	}

	// the boundary itself still fits
	m, err := Parse("92233720368547758.07", usd, HalfEven)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), m.Amount)
	_, err = New(math.MaxInt64, usd).Add(New(-1, usd))
	assert.NoError(t, err)
}

func TestParseAndString(t *testing.T) {
	m, err := Parse("12000.50", usd, HalfEven)
	require.NoError(t, err)
	assert.Equal(t, int64(1200050), m.Amount)
	assert.Equal(t, "USD 12000.50", m.String())
	assert.Equal(t, "$12000.50", m.Format())
	assert.Equal(t, "-$0.05", New(-5, usd).Format())
	assert.Equal(t, "JPY 15", New(15, jpy).Format())

	_, err = Parse("twelve", usd, HalfEven)
	assert.True(t, errors.Is(err, apperr.ErrInvalidAmount))
}

func TestSum(t *testing.T) {
	total, err := Sum(New(1, usd), New(2, usd), New(3, usd))
	require.NoError(t, err)
	assert.Equal(t, int64(6), total.Amount)

	_, err = Sum()
	assert.Error(t, err)
	_, err = Sum(New(1, usd), New(1, eur))
	assert.True(t, errors.Is(err, apperr.ErrCurrencyMismatch))
}

func TestPowInt(t *testing.T) {
	got := PowInt(decimal.RequireFromString("1.01"), 12)
	assert.Equal(t, "1.126825030131969720661201", got.String())
	assert.True(t, PowInt(decimal.NewFromInt(7), 0).Equal(decimal.NewFromInt(1)))
}

func TestParseRoundingPolicy(t *testing.T) {
	p, err := ParseRoundingPolicy("Half-Up")
	require.NoError(t, err)
	assert.Equal(t, HalfUp, p)
	p, err = ParseRoundingPolicy("")
	require.NoError(t, err)
	assert.Equal(t, HalfEven, p)
	_, err = ParseRoundingPolicy("banker")
	assert.Error(t, err)
}

func TestCatalog(t *testing.T) {
	cat, err := NewCatalog(usd, eur)
	require.NoError(t, err)

	got, err := cat.Lookup("USD")
	require.NoError(t, err)
	assert.Equal(t, usd, got)

	_, err = cat.Lookup("GBP")
	assert.True(t, errors.Is(err, apperr.ErrUnknownCurrency))

	list := cat.List()
	require.Len(t, list, 2)
	assert.Equal(t, Code("EUR"), list[0].Code)

	// redefinition is allowed until referenced
	require.NoError(t, cat.Register(Currency{Code: "EUR", Exponent: 2, Symbol: "EUR"}))
	cat.MarkReferenced("EUR")
	assert.True(t, cat.Referenced("EUR"))
	err = cat.Register(Currency{Code: "EUR", Exponent: 3})
	assert.True(t, errors.Is(err, apperr.ErrCurrencyInUse))
	// re-registering the identical definition is a no-op
	require.NoError(t, cat.Register(Currency{Code: "EUR", Exponent: 2, Symbol: "EUR"}))

	assert.Error(t, cat.Register(Currency{Code: "usd", Exponent: 2}))
	assert.Error(t, cat.Register(Currency{Code: "XAU", Exponent: 6}))
}

func TestParseCode(t *testing.T) {
	c, err := ParseCode(" usd ")
	require.NoError(t, err)
	assert.Equal(t, Code("USD"), c)
	_, err = ParseCode("US")
	assert.True(t, errors.Is(err, apperr.ErrUnknownCurrency))
}
