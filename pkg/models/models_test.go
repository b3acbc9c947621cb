package models

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/apperr"
	"github.com/mcclellann/loanledger/pkg/interest"
	"github.com/mcclellann/loanledger/pkg/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var usd = money.Currency{Code: "USD", Exponent: 2}

func validTerms() LoanTerms {
	return LoanTerms{
		Principal:        money.New(1200000, usd),
		NominalRate:      decimal.RequireFromString("0.12"),
		TermCount:        12,
		Period:           Period{Kind: Monthly},
		DayCount:         interest.Thirty360,
		FirstPaymentDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestLoanTermsValidate(t *testing.T) {
	require.NoError(t, validTerms().Validate())

	tests := []struct {
		name   string
		mutate func(*LoanTerms)
	}{
		{"zero terms", func(lt *LoanTerms) { lt.TermCount = 0 }},
		{"negative rate", func(lt *LoanTerms) { lt.NominalRate = decimal.RequireFromString("-0.01") }},
		{"zero principal", func(lt *LoanTerms) { lt.Principal = money.Zero(usd) }},
		{"custom without days", func(lt *LoanTerms) { lt.Period = Period{Kind: Custom} }},
		{"unknown period", func(lt *LoanTerms) { lt.Period = Period{Kind: "fortnightly"} }},
		{"no first payment", func(lt *LoanTerms) { lt.FirstPaymentDate = time.Time{} }},
		{"unknown method", func(lt *LoanTerms) { lt.Method = "balloon" }},
		{"unknown day count", func(lt *LoanTerms) { lt.DayCount = "BUS/252" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lt := validTerms()
			tt.mutate(&lt)
			assert.True(t, errors.Is(lt.Validate(), apperr.ErrInvalidTerms))
		})
	}
}

func TestScheduleOutstanding(t *testing.T) {
	s := Schedule{
		Terms: validTerms(),
		Installments: []Installment{
			{Sequence: 1, Principal: money.New(500, usd), Interest: money.New(100, usd), PaidPrincipal: money.New(500, usd), PaidInterest: money.New(100, usd), Status: Paid},
			{Sequence: 2, Principal: money.New(500, usd), Interest: money.New(80, usd), PaidPrincipal: money.New(200, usd), PaidInterest: money.New(80, usd), Status: PartiallyPaid},
			{Sequence: 3, Principal: money.New(500, usd), Interest: money.New(60, usd), PaidPrincipal: money.Zero(usd), PaidInterest: money.Zero(usd), Status: Scheduled},
		},
	}
	assert.Equal(t, int64(800), s.OutstandingPrincipal().Amount)
	assert.Equal(t, int64(60), s.OutstandingInterest().Amount)

	c := s.Clone()
	c.Installments[2].Status = Defaulted
	assert.Equal(t, Scheduled, s.Installments[2].Status)
}

func TestEntryHelpers(t *testing.T) {
	eur := money.Currency{Code: "EUR", Exponent: 2}
	e := JournalEntry{Lines: []Line{
		{AccountID: "cash", Side: Debit, Amount: money.New(10, usd)},
		{AccountID: "bank", Side: Credit, Amount: money.New(10, usd)},
		{AccountID: "cash", Side: Credit, Amount: money.New(9, eur)},
	}}
	assert.Equal(t, []string{"bank", "cash"}, e.Accounts())
	assert.Equal(t, []money.Code{"EUR", "USD"}, e.Currencies())
	assert.Equal(t, int64(-10), e.Lines[1].Signed())
	assert.Equal(t, Credit, Debit.Opposite())
	assert.True(t, Asset.DebitNormal())
	assert.False(t, Income.DebitNormal())
}

func TestEntryCodecRoundTrip(t *testing.T) {
	orig := uuid.New()
	e := JournalEntry{
		ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte("k")),
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Lines: []Line{
			{AccountID: "cash", Side: Debit, Amount: money.New(1050, usd), Installment: 2},
			{AccountID: "receivable", Side: Credit, Amount: money.New(1050, usd), FX: &FXLeg{
				Rate:   ExchangeRate{Base: "EUR", Quote: "USD", Rate: decimal.RequireFromString("1.05"), AsOf: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
				Source: money.New(1000, money.Currency{Code: "EUR", Exponent: 2}),
			}},
		},
		SourceEventRef: "repay-1",
		Reverses:       &orig,
	}
	b, err := EncodeEntry(e)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"v":1`)
	assert.Contains(t, string(b), `"kind":"journal_entry"`)

	got, err := DecodeEntry(b)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.True(t, e.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, *e.Reverses, *got.Reverses)
	require.Len(t, got.Lines, 2)
	assert.Equal(t, e.Lines[0], got.Lines[0])
	assert.True(t, got.Lines[1].FX.Rate.Rate.Equal(decimal.RequireFromString("1.05")))
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	_, err := DecodeEntry([]byte(`{"v":7,"kind":"journal_entry","data":{}}`))
	assert.True(t, errors.Is(err, ErrUnsupportedVersion))

	_, err = DecodeSchedule([]byte(`{"v":1,"kind":"journal_entry","data":{}}`))
	assert.Error(t, err)
}

func TestScheduleCodec(t *testing.T) {
	s := Schedule{LoanID: uuid.New(), Version: 2, Terms: validTerms(), Reason: "restructure"}
	b, err := EncodeSchedule(s)
	require.NoError(t, err)
	got, err := DecodeSchedule(b)
	require.NoError(t, err)
	assert.Equal(t, s.LoanID, got.LoanID)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, int64(1200000), got.Terms.Principal.Amount)
}
