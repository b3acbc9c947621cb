package ledger

import (
	"fmt"
	"sort"

	"github.com/mcclellann/loanledger/pkg/apperr"
	"github.com/mcclellann/loanledger/pkg/models"
)

// Chart is the fixed chart of accounts the ledger posts to.
type Chart struct {
	accounts map[string]models.Account
}

// NewChart checks and indexes accounts. IDs must be unique.
func NewChart(accounts ...models.Account) (*Chart, error) {
	c := &Chart{accounts: make(map[string]models.Account, len(accounts))}
	for _, a := range accounts {
		if a.ID == "" {
			return nil, fmt.Errorf("account without id")
		}
		if _, dup := c.accounts[a.ID]; dup {
			return nil, fmt.Errorf("account %q defined twice", a.ID)
		}
		if !a.Type.Valid() {
			return nil, fmt.Errorf("account %q: unknown type %q", a.ID, a.Type)
		}
		if !a.Currency.Valid() {
			return nil, fmt.Errorf("account %q: %w", a.ID, apperr.ErrUnknownCurrency)
		}
		c.accounts[a.ID] = a
	}
	return c, nil
}

func (c *Chart) Account(id string) (models.Account, error) {
	a, ok := c.accounts[id]
	if !ok {
		return models.Account{}, fmt.Errorf("account %q: %w", id, apperr.ErrUnknownAccount)
	}
	return a, nil
}

// List returns the accounts ordered by ID.
func (c *Chart) List() []models.Account {
	out := make([]models.Account, 0, len(c.accounts))
	for _, a := range c.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
