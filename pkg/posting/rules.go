package posting

import (
	"fmt"

	"github.com/mcclellann/loanledger/pkg/apperr"
	"github.com/mcclellann/loanledger/pkg/ledger"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/money"
)

// AccountSet names the accounts loan events in one currency post to.
type AccountSet struct {
	Cash            string `toml:"cash" json:"cash"`
	Receivable      string `toml:"receivable" json:"receivable"`
	InterestIncome  string `toml:"interest_income" json:"interest_income"`
	WriteOffExpense string `toml:"write_off_expense" json:"write_off_expense"`
}

// Rules maps a loan currency to its accounts.
type Rules struct {
	sets map[money.Code]AccountSet
}

// NewRules checks that every account in sets exists in chart, has the
// expected type and is denominated in the set's currency.
func NewRules(chart *ledger.Chart, sets map[money.Code]AccountSet) (*Rules, error) {
	r := &Rules{sets: make(map[money.Code]AccountSet, len(sets))}
	for code, set := range sets {
		for _, want := range []struct {
			id   string
			role string
			typ  models.AccountType
		}{
			{set.Cash, "cash", models.Asset},
			{set.Receivable, "receivable", models.Asset},
			{set.InterestIncome, "interest income", models.Income},
			{set.WriteOffExpense, "write-off expense", models.Expense},
		} {
			a, err := chart.Account(want.id)
			if err != nil {
				return nil, fmt.Errorf("%s rules, %s: %w", code, want.role, err)
			}
			if a.Type != want.typ {
				return nil, fmt.Errorf("%s rules: %s account %q is %s, want %s", code, want.role, a.ID, a.Type, want.typ)
			}
			if a.Currency != code {
				return nil, fmt.Errorf("%s rules: %s account %q is in %s: %w", code, want.role, a.ID, a.Currency, apperr.ErrCurrencyMismatch)
			}
		}
		r.sets[code] = set
	}
	return r, nil
}

// For returns the accounts for loans in code.
func (r *Rules) For(code money.Code) (AccountSet, error) {
	set, ok := r.sets[code]
	if !ok {
		return AccountSet{}, fmt.Errorf("no posting rules for %s: %w", code, apperr.ErrUnknownAccount)
	}
	return set, nil
}
