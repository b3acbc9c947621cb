// Package posting turns loan events into ledger postings and schedule
// updates.
package posting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/google/uuid"
	"github.com/mcclellann/loanledger/pkg/amortization"
	"github.com/mcclellann/loanledger/pkg/apperr"
	"github.com/mcclellann/loanledger/pkg/idempotency"
	"github.com/mcclellann/loanledger/pkg/ledger"
	"github.com/mcclellann/loanledger/pkg/lock"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/money"
	"github.com/mcclellann/loanledger/pkg/store"
)

// ReleaseTimeout bounds giving back an idempotency claim after a failed event.
const ReleaseTimeout = time.Second

type Options struct {
	// Guard catches replayed keys before the loan is locked. Defaults to
	// idempotency.Nop; the store's event table has the final word.
	Guard       idempotency.Guard
	LockTimeout time.Duration
	Logger      log.Logger
	Locks       *lock.Keyed
}

// Pipeline applies events one loan at a time.
type Pipeline struct {
	ledger  *ledger.Ledger
	storage store.Storage
	rules   *Rules
	guard   idempotency.Guard
	locks   *lock.Keyed
	timeout time.Duration
	logger  log.Logger
}

func NewPipeline(l *ledger.Ledger, s store.Storage, rules *Rules, opts Options) *Pipeline {
	if opts.Guard == nil {
		opts.Guard = idempotency.Nop{}
	}
	if opts.LockTimeout == 0 {
		opts.LockTimeout = ledger.DefaultLockTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	if opts.Locks == nil {
		opts.Locks = lock.NewKeyed()
	}
	return &Pipeline{
		ledger:  l,
		storage: s,
		rules:   rules,
		guard:   opts.Guard,
		locks:   opts.Locks,
		timeout: opts.LockTimeout,
		logger:  opts.Logger,
	}
}

func loanKey(id uuid.UUID) string { return "loan/" + id.String() }

// Post applies ev and returns the entries it committed. The entries, the
// schedule change and the event key are stored in one transaction.
func (p *Pipeline) Post(ctx context.Context, ev Event) ([]models.JournalEntry, error) {
	meta := ev.EventMeta()
	if err := meta.validate(); err != nil {
		return nil, err
	}

	claimed, err := p.guard.Claim(ctx, meta.Key)
	switch {
	case err != nil:
		p.logger.Log("msg", "idempotency guard unavailable", "key", meta.Key, "err", err)
	case !claimed:
		// a claimed key is a duplicate only once the event table has it
		seen, err := p.storage.HasEvent(ctx, meta.Key)
		if err != nil {
			return nil, apperr.Storage("check event", err)
		}
		if seen {
			return nil, fmt.Errorf("event %q: %w", meta.Key, apperr.ErrDuplicateEvent)
		}
		p.logger.Log("msg", "idempotency key claimed but not committed", "key", meta.Key)
	}

	entries, err := p.post(ctx, ev, meta)
	if err != nil && claimed && !errors.Is(err, apperr.ErrDuplicateEvent) {
		p.release(ctx, meta.Key)
	}
	return entries, err
}

// release gives the claim on key back. It runs after ctx may have expired,
// so it gets a deadline of its own.
func (p *Pipeline) release(ctx context.Context, key string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ReleaseTimeout)
	defer cancel()
	if err := p.guard.Release(rctx, key); err != nil {
		p.logger.Log("msg", "release idempotency key", "key", key, "err", err)
	}
}

func (p *Pipeline) post(ctx context.Context, ev Event, meta Meta) ([]models.JournalEntry, error) {
	release, err := p.locks.Acquire(ctx, p.timeout, loanKey(meta.LoanID))
	if err != nil {
		return nil, err
	}
	defer release()

	seen, err := p.storage.HasEvent(ctx, meta.Key)
	if err != nil {
		return nil, apperr.Storage("check event", err)
	}
	if seen {
		return nil, fmt.Errorf("event %q: %w", meta.Key, apperr.ErrDuplicateEvent)
	}

	var c models.Commit
	switch ev := ev.(type) {
	case Disbursement:
		c, err = p.disburse(ctx, ev)
	case *Disbursement:
		c, err = p.disburse(ctx, *ev)
	case Repayment:
		c, err = p.repay(ctx, ev)
	case *Repayment:
		c, err = p.repay(ctx, *ev)
	case WriteOff:
		c, err = p.writeOff(ctx, ev)
	case *WriteOff:
		c, err = p.writeOff(ctx, *ev)
	case Restructure:
		c, err = p.restructure(ctx, ev)
	case *Restructure:
		c, err = p.restructure(ctx, *ev)
	default:
		err = fmt.Errorf("unsupported event %T: %w", ev, apperr.ErrInvalidTerms)
	}
	if err != nil {
		return nil, err
	}
	c.EventKey = meta.Key

	if err := p.ledger.Apply(ctx, c); err != nil {
		return nil, err
	}
	p.logger.Log("msg", "event posted", "kind", KindOf(ev), "key", meta.Key, "loan", meta.LoanID, "entries", len(c.Entries))
	return c.Entries, nil
}

// schedule loads the current schedule of a loan. found is false when the
// loan has not been disbursed.
func (p *Pipeline) schedule(ctx context.Context, loanID uuid.UUID) (s models.Schedule, found bool, err error) {
	s, err = p.storage.LoadSchedule(ctx, loanID)
	switch {
	case err == nil:
		return s, true, nil
	case errors.Is(err, store.ErrNotFound):
		return models.Schedule{}, false, nil
	}
	return models.Schedule{}, false, apperr.Storage("load schedule", err)
}

func (p *Pipeline) existing(ctx context.Context, loanID uuid.UUID) (models.Schedule, AccountSet, error) {
	s, found, err := p.schedule(ctx, loanID)
	if err != nil {
		return models.Schedule{}, AccountSet{}, err
	}
	if !found {
		return models.Schedule{}, AccountSet{}, fmt.Errorf("loan %s: %w", loanID, apperr.ErrNotFound)
	}
	set, err := p.rules.For(s.Terms.Principal.Currency.Code)
	if err != nil {
		return models.Schedule{}, AccountSet{}, err
	}
	return s, set, nil
}

func entryFor(meta Meta, memo string, lines ...models.Line) models.JournalEntry {
	return models.JournalEntry{
		ID:             ledger.EntryID(meta.Key),
		Timestamp:      meta.At,
		SourceEventRef: meta.Key,
		Memo:           memo,
		Lines:          lines,
	}
}

func (p *Pipeline) disburse(ctx context.Context, ev Disbursement) (models.Commit, error) {
	_, found, err := p.schedule(ctx, ev.LoanID)
	if err != nil {
		return models.Commit{}, err
	}
	if found {
		return models.Commit{}, fmt.Errorf("loan %s already disbursed: %w", ev.LoanID, apperr.ErrInvalidTerms)
	}
	set, err := p.rules.For(ev.Terms.Principal.Currency.Code)
	if err != nil {
		return models.Commit{}, err
	}
	s, err := amortization.Generate(ev.Terms)
	if err != nil {
		return models.Commit{}, err
	}
	s.LoanID = ev.LoanID
	s.EffectiveAt = ev.At

	principal := s.Terms.Principal
	e := entryFor(ev.Meta, "disbursement of loan "+ev.LoanID.String(),
		models.Line{AccountID: set.Receivable, Side: models.Debit, Amount: principal},
		models.Line{AccountID: set.Cash, Side: models.Credit, Amount: principal},
	)
	return models.Commit{Entries: []models.JournalEntry{e}, Schedule: &s}, nil
}

// repay allocates the payment oldest installment first, interest before
// principal, rolling any excess into the next installment.
func (p *Pipeline) repay(ctx context.Context, ev Repayment) (models.Commit, error) {
	if !ev.Amount.IsPositive() {
		return models.Commit{}, fmt.Errorf("repayment of %s: %w", ev.Amount, apperr.ErrInvalidAmount)
	}
	s, set, err := p.existing(ctx, ev.LoanID)
	if err != nil {
		return models.Commit{}, err
	}
	cur := s.Terms.Principal.Currency
	if !ev.Amount.Currency.Same(cur) {
		return models.Commit{}, fmt.Errorf("repayment in %s for a %s loan: %w", ev.Amount.Currency.Code, cur.Code, apperr.ErrCurrencyMismatch)
	}
	outstanding, err := s.OutstandingPrincipal().Add(s.OutstandingInterest())
	if err != nil {
		return models.Commit{}, fmt.Errorf("outstanding on loan %s: %w", ev.LoanID, err)
	}
	if ev.Amount.Amount > outstanding.Amount {
		return models.Commit{}, fmt.Errorf("repayment of %s exceeds outstanding %s: %w", ev.Amount, outstanding, apperr.ErrInvalidAmount)
	}

	lines := []models.Line{{AccountID: set.Cash, Side: models.Debit, Amount: ev.Amount}}
	remaining := ev.Amount.Amount
	for i := range s.Installments {
		if remaining == 0 {
			break
		}
		in := &s.Installments[i]
		if !in.Open() {
			continue
		}

		toInterest := min(remaining, in.InterestDue().Amount)
		remaining -= toInterest
		toPrincipal := min(remaining, in.PrincipalDue().Amount)
		remaining -= toPrincipal

		if toInterest > 0 {
			in.PaidInterest = money.New(in.PaidInterest.Amount+toInterest, cur)
			lines = append(lines, models.Line{AccountID: set.InterestIncome, Side: models.Credit, Amount: money.New(toInterest, cur), Installment: in.Sequence})
		}
		if toPrincipal > 0 {
			in.PaidPrincipal = money.New(in.PaidPrincipal.Amount+toPrincipal, cur)
			lines = append(lines, models.Line{AccountID: set.Receivable, Side: models.Credit, Amount: money.New(toPrincipal, cur), Installment: in.Sequence})
		}
		if in.InterestDue().IsZero() && in.PrincipalDue().IsZero() {
			in.Status = models.Paid
		} else if toInterest > 0 || toPrincipal > 0 {
			in.Status = models.PartiallyPaid
		}
	}

	e := entryFor(ev.Meta, "repayment of loan "+ev.LoanID.String(), lines...)
	return models.Commit{Entries: []models.JournalEntry{e}, Schedule: &s}, nil
}

func (p *Pipeline) writeOff(ctx context.Context, ev WriteOff) (models.Commit, error) {
	s, set, err := p.existing(ctx, ev.LoanID)
	if err != nil {
		return models.Commit{}, err
	}
	principal := s.OutstandingPrincipal()
	if !principal.IsPositive() {
		return models.Commit{}, fmt.Errorf("loan %s has nothing outstanding: %w", ev.LoanID, apperr.ErrInvalidAmount)
	}
	for i := range s.Installments {
		if s.Installments[i].Open() {
			s.Installments[i].Status = models.Defaulted
		}
	}
	memo := "write-off of loan " + ev.LoanID.String()
	if ev.Reason != "" {
		memo += ": " + ev.Reason
	}
	e := entryFor(ev.Meta, memo,
		models.Line{AccountID: set.WriteOffExpense, Side: models.Debit, Amount: principal},
		models.Line{AccountID: set.Receivable, Side: models.Credit, Amount: principal},
	)
	return models.Commit{Entries: []models.JournalEntry{e}, Schedule: &s}, nil
}

// restructure stores a new schedule version for the outstanding principal.
// It posts no entry: the receivable is unchanged.
func (p *Pipeline) restructure(ctx context.Context, ev Restructure) (models.Commit, error) {
	s, _, err := p.existing(ctx, ev.LoanID)
	if err != nil {
		return models.Commit{}, err
	}
	outstanding := s.OutstandingPrincipal()
	if !ev.Terms.Principal.Currency.Same(outstanding.Currency) {
		return models.Commit{}, fmt.Errorf("restructure in %s for a %s loan: %w", ev.Terms.Principal.Currency.Code, outstanding.Currency.Code, apperr.ErrCurrencyMismatch)
	}
	if ev.Terms.Principal.Amount != outstanding.Amount {
		return models.Commit{}, fmt.Errorf("restructured principal %s, outstanding %s: %w", ev.Terms.Principal, outstanding, apperr.ErrInvalidTerms)
	}

	next, err := amortization.Generate(ev.Terms)
	if err != nil {
		return models.Commit{}, err
	}
	next.LoanID = ev.LoanID
	next.Version = s.Version + 1
	next.Reason = ev.Reason
	next.EffectiveAt = ev.At
	return models.Commit{Schedule: &next}, nil
}
