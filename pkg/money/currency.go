package money

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mcclellann/loanledger/pkg/apperr"
)

// Code is a three letter currency code such as "USD".
type Code string

// ParseCode trims and upper-cases s and checks its shape.
func ParseCode(s string) (Code, error) {
	c := Code(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("currency code %q: %w", s, apperr.ErrUnknownCurrency)
	}
	return c, nil
}

// Valid reports whether c is three upper-case ASCII letters.
func (c Code) Valid() bool {
	if len(c) != 3 {
		return false
	}
	for i := 0; i < len(c); i++ {
		if c[i] < 'A' || c[i] > 'Z' {
			return false
		}
	}
	return true
}

const maxExponent = 4

// Currency describes a currency and the exponent of its minor unit.
type Currency struct {
	Code     Code   `json:"code"`
	Exponent int32  `json:"exponent"`
	Symbol   string `json:"symbol,omitempty"`
	Name     string `json:"name,omitempty"`
}

// Same reports whether c and o denote the same unit of account. Symbol and
// name are presentation only.
func (c Currency) Same(o Currency) bool {
	return c.Code == o.Code && c.Exponent == o.Exponent
}

func (c Currency) validate() error {
	if !c.Code.Valid() {
		return fmt.Errorf("currency code %q: %w", c.Code, apperr.ErrUnknownCurrency)
	}
	if c.Exponent < 0 || c.Exponent > maxExponent {
		return fmt.Errorf("currency %s exponent %d outside 0..%d", c.Code, c.Exponent, maxExponent)
	}
	return nil
}

// Catalog is the authoritative set of currencies. A currency referenced by a
// committed entry can no longer be redefined.
type Catalog struct {
	mu         sync.RWMutex
	currencies map[Code]Currency
	referenced map[Code]bool
}

// NewCatalog returns a catalog holding cs.
func NewCatalog(cs ...Currency) (*Catalog, error) {
	c := &Catalog{
		currencies: make(map[Code]Currency),
		referenced: make(map[Code]bool),
	}
	for _, cur := range cs {
		if err := c.Register(cur); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register adds or redefines a currency.
func (c *Catalog) Register(cur Currency) error {
	if err := cur.validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.currencies[cur.Code]; ok && existing != cur && c.referenced[cur.Code] {
		return fmt.Errorf("redefine %s: %w", cur.Code, apperr.ErrCurrencyInUse)
	}
	c.currencies[cur.Code] = cur
	return nil
}

// Lookup returns the currency for code.
func (c *Catalog) Lookup(code Code) (Currency, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cur, ok := c.currencies[code]
	if !ok {
		return Currency{}, fmt.Errorf("currency %q: %w", code, apperr.ErrUnknownCurrency)
	}
	return cur, nil
}

// List returns all currencies ordered by code.
func (c *Catalog) List() []Currency {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Currency, 0, len(c.currencies))
	for _, cur := range c.currencies {
		out = append(out, cur)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// MarkReferenced freezes the definitions of codes.
func (c *Catalog) MarkReferenced(codes ...Code) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, code := range codes {
		c.referenced[code] = true
	}
}

// Referenced reports whether code has been used by a committed entry.
func (c *Catalog) Referenced(code Code) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.referenced[code]
}
