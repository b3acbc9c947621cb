package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/apperr"
	"github.com/mcclellann/loanledger/pkg/lock"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/money"
	"github.com/mcclellann/loanledger/pkg/store"
)

// DefaultLockTimeout bounds how long a commit waits for its account locks.
const DefaultLockTimeout = 2 * time.Second

var (
	// EntryNamespace derives entry IDs from idempotency keys.
	EntryNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("loanledger/journal-entry"))
	// ReversalNamespace derives a reversal's ID from the reversed entry's ID.
	ReversalNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("loanledger/reversal"))
)

// EntryID is the ID of the entry posted for an idempotency key.
func EntryID(key string) uuid.UUID {
	return uuid.NewSHA1(EntryNamespace, []byte(key))
}

type Options struct {
	LockTimeout time.Duration
	Logger      log.Logger
	// Locks may be shared with other components; nil creates a private set.
	Locks *lock.Keyed
}

// Ledger validates and commits journal entries and answers balance queries.
type Ledger struct {
	storage store.Storage
	chart   *Chart
	catalog *money.Catalog
	locks   *lock.Keyed
	timeout time.Duration
	logger  log.Logger

	mu       sync.Mutex
	balances map[string]*running
}

// running is the cached position of one account: debits minus credits over
// every committed entry, and the latest timestamp among them.
type running struct {
	raw    int64
	latest time.Time
}

// NewLedger creates a Ledger over s. Every account currency must be in the
// catalog.
func NewLedger(s store.Storage, chart *Chart, catalog *money.Catalog, opts Options) (*Ledger, error) {
	for _, a := range chart.List() {
		if _, err := catalog.Lookup(a.Currency); err != nil {
			return nil, fmt.Errorf("account %q: %w", a.ID, err)
		}
	}
	if opts.LockTimeout == 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	if opts.Locks == nil {
		opts.Locks = lock.NewKeyed()
	}
	return &Ledger{
		storage:  s,
		chart:    chart,
		catalog:  catalog,
		locks:    opts.Locks,
		timeout:  opts.LockTimeout,
		logger:   opts.Logger,
		balances: make(map[string]*running),
	}, nil
}

func (l *Ledger) Chart() *Chart            { return l.chart }
func (l *Ledger) Catalog() *money.Catalog { return l.catalog }

func accountKey(id string) string { return "account/" + id }

// Post commits a single entry. The entry ID defaults to one derived from
// SourceEventRef, which doubles as the idempotency key.
func (l *Ledger) Post(ctx context.Context, e models.JournalEntry) (models.JournalEntry, error) {
	key := e.SourceEventRef
	if key == "" {
		if e.ID == uuid.Nil {
			return models.JournalEntry{}, fmt.Errorf("entry without id or source event: %w", apperr.ErrInvalidTerms)
		}
		key = "entry/" + e.ID.String()
	}
	if e.ID == uuid.Nil {
		e.ID = EntryID(key)
	}
	if err := l.Apply(ctx, models.Commit{EventKey: key, Entries: []models.JournalEntry{e}}); err != nil {
		return models.JournalEntry{}, err
	}
	return e, nil
}

// Apply validates and commits c atomically while holding the locks of every
// account its entries and marks touch.
func (l *Ledger) Apply(ctx context.Context, c models.Commit) error {
	return l.Locked(ctx, commitAccounts(c), func(tx *Tx) error {
		return tx.Apply(ctx, c)
	})
}

// Locked runs fn while holding the locks of accountIDs. Balances read
// through the Tx cannot change until fn returns, and the Tx commits without
// locking again.
func (l *Ledger) Locked(ctx context.Context, accountIDs []string, fn func(tx *Tx) error) error {
	keys := make([]string, 0, len(accountIDs))
	held := make(map[string]bool, len(accountIDs))
	for _, id := range accountIDs {
		keys = append(keys, accountKey(id))
		held[id] = true
	}
	release, err := l.locks.Acquire(ctx, l.timeout, keys...)
	if err != nil {
		return err
	}
	defer release()
	return fn(&Tx{l: l, held: held})
}

// Tx is the view of the ledger inside Locked.
type Tx struct {
	l    *Ledger
	held map[string]bool
}

func (tx *Tx) BalanceOf(ctx context.Context, accountID string, asOf time.Time) (money.Money, error) {
	return tx.l.BalanceOf(ctx, accountID, asOf)
}

// Apply commits c. Every account c touches must be held.
func (tx *Tx) Apply(ctx context.Context, c models.Commit) error {
	for _, id := range commitAccounts(c) {
		if !tx.held[id] {
			return fmt.Errorf("account %q is not locked by this transaction", id)
		}
	}
	return tx.l.commit(ctx, c)
}

func commitAccounts(c models.Commit) []string {
	var ids []string
	for _, e := range c.Entries {
		ids = append(ids, e.Accounts()...)
	}
	for _, m := range c.Marks {
		ids = append(ids, m.AccountID)
	}
	return ids
}

// commit runs with the account locks held.
func (l *Ledger) commit(ctx context.Context, c models.Commit) error {
	for _, e := range c.Entries {
		if err := Validate(e, l.chart, l.catalog); err != nil {
			return err
		}
	}
	next, err := l.project(ctx, c.Entries)
	if err != nil {
		return err
	}

	if err := l.storage.Append(ctx, c); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("event %q: %w", c.EventKey, apperr.ErrDuplicateEvent)
		}
		l.logger.Log("msg", "commit failed", "event", c.EventKey, "err", err)
		return apperr.Storage("append entries", err)
	}

	for _, e := range c.Entries {
		l.catalog.MarkReferenced(e.Currencies()...)
	}
	l.mu.Lock()
	for id, r := range next {
		l.balances[id] = r
	}
	l.mu.Unlock()
	l.logger.Log("msg", "committed", "event", c.EventKey, "entries", len(c.Entries), "marks", len(c.Marks))
	return nil
}

// project returns the running balance of every account entries touch as it
// stands once they are committed. A balance that leaves int64 minor units
// rejects the commit.
func (l *Ledger) project(ctx context.Context, entries []models.JournalEntry) (map[string]*running, error) {
	next := make(map[string]*running)
	for _, e := range entries {
		for _, line := range e.Lines {
			r, ok := next[line.AccountID]
			if !ok {
				cur, err := l.current(ctx, line.AccountID)
				if err != nil {
					return nil, err
				}
				r = &cur
				next[line.AccountID] = r
			}
			raw, ok := money.AddInt64(r.raw, line.Signed())
			if !ok {
				return nil, fmt.Errorf("account %q balance: %w", line.AccountID, money.ErrOverflow)
			}
			r.raw = raw
			if e.Timestamp.After(r.latest) {
				r.latest = e.Timestamp
			}
		}
	}
	return next, nil
}

// current is the cached running balance of accountID, loaded from storage
// on first use.
func (l *Ledger) current(ctx context.Context, accountID string) (running, error) {
	l.mu.Lock()
	r, ok := l.balances[accountID]
	var cached running
	if ok {
		cached = *r
	}
	l.mu.Unlock()
	if ok {
		return cached, nil
	}
	folded, err := l.fold(ctx, accountID, time.Time{})
	if err != nil {
		return running{}, err
	}
	return *folded, nil
}

func (l *Ledger) fold(ctx context.Context, accountID string, asOf time.Time) (*running, error) {
	entries, err := l.storage.LoadEntries(ctx, accountID, time.Time{}, asOf)
	if err != nil {
		return nil, apperr.Storage("load entries", err)
	}
	r := &running{}
	for _, e := range entries {
		for _, line := range e.Lines {
			if line.AccountID != accountID {
				continue
			}
			raw, ok := money.AddInt64(r.raw, line.Signed())
			if !ok {
				return nil, fmt.Errorf("account %q balance: %w", accountID, money.ErrOverflow)
			}
			r.raw = raw
		}
		if e.Timestamp.After(r.latest) {
			r.latest = e.Timestamp
		}
	}
	return r, nil
}

// BalanceOf returns the position of accountID at asOf on the account's
// normal side. A zero asOf means every committed entry.
func (l *Ledger) BalanceOf(ctx context.Context, accountID string, asOf time.Time) (money.Money, error) {
	acct, err := l.chart.Account(accountID)
	if err != nil {
		return money.Money{}, err
	}
	cur, err := l.catalog.Lookup(acct.Currency)
	if err != nil {
		return money.Money{}, err
	}

	l.mu.Lock()
	r, ok := l.balances[accountID]
	var raw int64
	if ok {
		raw = r.raw
		ok = asOf.IsZero() || !asOf.Before(r.latest)
	}
	l.mu.Unlock()

	if !ok {
		folded, err := l.fold(ctx, accountID, asOf)
		if err != nil {
			return money.Money{}, err
		}
		raw = folded.raw
	}
	if !acct.Type.DebitNormal() {
		raw = -raw
	}
	return money.New(raw, cur), nil
}

// Reverse posts the mirror image of an entry. The reversal's ID is derived
// from the original's, so an entry can be reversed once.
func (l *Ledger) Reverse(ctx context.Context, entryID uuid.UUID, at time.Time) (models.JournalEntry, error) {
	orig, err := l.Entry(ctx, entryID)
	if err != nil {
		return models.JournalEntry{}, err
	}
	if at.IsZero() {
		at = orig.Timestamp
	}
	rev := models.JournalEntry{
		ID:             uuid.NewSHA1(ReversalNamespace, orig.ID[:]),
		Timestamp:      at,
		SourceEventRef: "reversal/" + orig.ID.String(),
		Reverses:       &orig.ID,
		Memo:           "reversal of " + orig.ID.String(),
	}
	for _, line := range orig.Lines {
		line.Side = line.Side.Opposite()
		rev.Lines = append(rev.Lines, line)
	}
	if err := l.Apply(ctx, models.Commit{EventKey: rev.SourceEventRef, Entries: []models.JournalEntry{rev}}); err != nil {
		return models.JournalEntry{}, err
	}
	return rev, nil
}

// Entry retrieves a committed entry.
func (l *Ledger) Entry(ctx context.Context, id uuid.UUID) (models.JournalEntry, error) {
	e, err := l.storage.Entry(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.JournalEntry{}, err
		}
		return models.JournalEntry{}, apperr.Storage("load entry", err)
	}
	return e, nil
}

// Entries returns the committed entries touching accountID in [from, to].
func (l *Ledger) Entries(ctx context.Context, accountID string, from, to time.Time) ([]models.JournalEntry, error) {
	if _, err := l.chart.Account(accountID); err != nil {
		return nil, err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, fmt.Errorf("entries %s..%s: %w", from, to, apperr.ErrInvalidInterval)
	}
	entries, err := l.storage.LoadEntries(ctx, accountID, from, to)
	if err != nil {
		return nil, apperr.Storage("load entries", err)
	}
	return entries, nil
}
