package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/money"
)

// MemoryStore keeps everything in process. It has the same commit semantics
// as SQLStore and is used by tests and by the "memory" driver.
type MemoryStore struct {
	mu        sync.RWMutex
	events    map[string]bool
	entries   []models.JournalEntry
	byID      map[uuid.UUID]int
	schedules map[uuid.UUID][]models.Schedule
	marks     map[string]models.RevaluationMark
	rates     map[[2]money.Code][]models.ExchangeRate
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:    make(map[string]bool),
		byID:      make(map[uuid.UUID]int),
		schedules: make(map[uuid.UUID][]models.Schedule),
		marks:     make(map[string]models.RevaluationMark),
		rates:     make(map[[2]money.Code][]models.ExchangeRate),
	}
}

func (m *MemoryStore) Append(ctx context.Context, c models.Commit) error {
	if c.EventKey == "" {
		return errors.New("append: empty event key")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.events[c.EventKey] {
		return fmt.Errorf("event %q: %w", c.EventKey, ErrDuplicate)
	}
	seen := make(map[uuid.UUID]bool)
	for _, e := range c.Entries {
		if _, ok := m.byID[e.ID]; ok || seen[e.ID] {
			return fmt.Errorf("entry %s: %w", e.ID, ErrDuplicate)
		}
		seen[e.ID] = true
	}

	m.events[c.EventKey] = true
	for _, e := range c.Entries {
		m.byID[e.ID] = len(m.entries)
		m.entries = append(m.entries, e)
	}
	if c.Schedule != nil {
		m.putSchedule(c.Schedule.Clone())
	}
	for _, mk := range c.Marks {
		m.marks[mk.AccountID] = mk
	}
	return nil
}

func (m *MemoryStore) putSchedule(s models.Schedule) {
	versions := m.schedules[s.LoanID]
	for i, existing := range versions {
		if existing.Version == s.Version {
			versions[i] = s
			return
		}
	}
	m.schedules[s.LoanID] = append(versions, s)
}

func (m *MemoryStore) checkVersion(s models.Schedule) error {
	for _, existing := range m.schedules[s.LoanID] {
		if existing.Version == s.Version {
			return fmt.Errorf("schedule %s v%d: %w", s.LoanID, s.Version, ErrDuplicate)
		}
	}
	return nil
}

func (m *MemoryStore) HasEvent(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.events[key], nil
}

func (m *MemoryStore) Entry(ctx context.Context, id uuid.UUID) (models.JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.byID[id]
	if !ok {
		return models.JournalEntry{}, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	return m.entries[i], nil
}

func (m *MemoryStore) LoadEntries(ctx context.Context, accountID string, from, to time.Time) ([]models.JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.JournalEntry
	for _, e := range m.entries {
		if !from.IsZero() && e.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && e.Timestamp.After(to) {
			continue
		}
		for _, l := range e.Lines {
			if l.AccountID == accountID {
				out = append(out, e)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *MemoryStore) LoadSchedule(ctx context.Context, loanID uuid.UUID) (models.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	versions := m.schedules[loanID]
	if len(versions) == 0 {
		return models.Schedule{}, fmt.Errorf("schedule for loan %s: %w", loanID, ErrNotFound)
	}
	latest := versions[0]
	for _, s := range versions[1:] {
		if s.Version > latest.Version {
			latest = s
		}
	}
	return latest.Clone(), nil
}

func (m *MemoryStore) ScheduleHistory(ctx context.Context, loanID uuid.UUID) ([]models.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	versions := m.schedules[loanID]
	if len(versions) == 0 {
		return nil, fmt.Errorf("schedule for loan %s: %w", loanID, ErrNotFound)
	}
	out := make([]models.Schedule, len(versions))
	for i, s := range versions {
		out[i] = s.Clone()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (m *MemoryStore) SaveSchedule(ctx context.Context, s models.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkVersion(s); err != nil {
		return err
	}
	m.schedules[s.LoanID] = append(m.schedules[s.LoanID], s.Clone())
	return nil
}

func (m *MemoryStore) LoadMark(ctx context.Context, accountID string) (models.RevaluationMark, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mk, ok := m.marks[accountID]
	if !ok {
		return models.RevaluationMark{}, fmt.Errorf("mark for %s: %w", accountID, ErrNotFound)
	}
	return mk, nil
}

func (m *MemoryStore) SaveRate(ctx context.Context, r models.ExchangeRate) error {
	if err := r.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]money.Code{r.Base, r.Quote}
	list := m.rates[key]
	i := sort.Search(len(list), func(i int) bool { return !list[i].AsOf.Before(r.AsOf) })
	if i < len(list) && list[i].AsOf.Equal(r.AsOf) {
		list[i] = r
		return nil
	}
	list = append(list, models.ExchangeRate{})
	copy(list[i+1:], list[i:])
	list[i] = r
	m.rates[key] = list
	return nil
}

func (m *MemoryStore) RateAtOrBefore(ctx context.Context, base, quote money.Code, at time.Time) (models.ExchangeRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.rates[[2]money.Code{base, quote}]
	i := sort.Search(len(list), func(i int) bool { return list[i].AsOf.After(at) })
	if i == 0 {
		return models.ExchangeRate{}, fmt.Errorf("rate %s/%s at %s: %w", base, quote, at.Format(time.RFC3339), ErrNotFound)
	}
	return list[i-1], nil
}

func (m *MemoryStore) ListRates(ctx context.Context, base, quote money.Code) ([]models.ExchangeRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ExchangeRate
	for key, list := range m.rates {
		if (base == "" || key[0] == base) && (quote == "" || key[1] == quote) {
			out = append(out, list...)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Base != out[j].Base {
			return out[i].Base < out[j].Base
		}
		if out[i].Quote != out[j].Quote {
			return out[i].Quote < out[j].Quote
		}
		return out[i].AsOf.Before(out[j].AsOf)
	})
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
