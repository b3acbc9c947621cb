package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/mcclellann/loanledger/pkg/models"
	"github.com/mcclellann/loanledger/pkg/money"
)

// SQLStore implements Storage on database/sql. It speaks sqlite (the
// default) and postgres; the schema is shared and only placeholders differ.
type SQLStore struct {
	db       *sql.DB
	postgres bool
}

// NewSQLiteStore opens a sqlite database file and migrates it.
func NewSQLiteStore(dataSourceName string) (*SQLStore, error) {
	return Open(context.Background(), "sqlite3", dataSourceName, nil)
}

// Open connects to driver ("sqlite3" or "postgres") and brings the schema
// up to date.
func Open(ctx context.Context, driver, dsn string, logger log.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	var (
		s   *SQLStore
		err error
	)
	switch driver {
	case "sqlite3", "sqlite":
		s, err = openSQLite(ctx, dsn)
	case "postgres", "postgresql":
		s, err = openPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	applied, err := s.migrate(ctx)
	if err != nil {
		s.db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	logger.Log("msg", "database connection established", "driver", driver, "migrations_applied", applied)
	return s, nil
}

func openSQLite(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	// one connection: sqlite serializes writers anyway and ":memory:"
	// databases are per connection
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run %q: %w", pragma, err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func openPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(15 * time.Minute)
	return &SQLStore{db: db, postgres: true}, nil
}

// bind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) bind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isUniqueViolation recognizes primary key and unique constraint failures
// from either driver.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func nanos(t time.Time, open int64) int64 {
	if t.IsZero() {
		return open
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// Append writes the event key, entries, schedule and marks of c in one
// transaction. The schedule replaces a stored schedule of the same version.
func (s *SQLStore) Append(ctx context.Context, c models.Commit) error {
	if c.EventKey == "" {
		return errors.New("append: empty event key")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.bind(`INSERT INTO events (event_key, committed_at) VALUES (?, ?)`), c.EventKey, time.Now().UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("event %q: %w", c.EventKey, ErrDuplicate)
		}
		return fmt.Errorf("failed to record event: %w", err)
	}

	for _, e := range c.Entries {
		body, err := models.EncodeEntry(e)
		if err != nil {
			return err
		}
		ts := e.Timestamp.UnixNano()
		_, err = tx.ExecContext(ctx, s.bind(`INSERT INTO entries (id, event_key, ts, body) VALUES (?, ?, ?, ?)`), e.ID.String(), c.EventKey, ts, string(body))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("entry %s: %w", e.ID, ErrDuplicate)
			}
			return fmt.Errorf("failed to insert entry %s: %w", e.ID, err)
		}
		for _, account := range e.Accounts() {
			_, err = tx.ExecContext(ctx, s.bind(`INSERT INTO entry_accounts (entry_id, account_id, ts) VALUES (?, ?, ?)`), e.ID.String(), account, ts)
			if err != nil {
				return fmt.Errorf("failed to index entry %s: %w", e.ID, err)
			}
		}
	}

	if c.Schedule != nil {
		body, err := models.EncodeSchedule(*c.Schedule)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.bind(`INSERT INTO schedules (loan_id, version, body) VALUES (?, ?, ?)
			ON CONFLICT (loan_id, version) DO UPDATE SET body = excluded.body`), c.Schedule.LoanID.String(), c.Schedule.Version, string(body))
		if err != nil {
			return fmt.Errorf("failed to save schedule: %w", err)
		}
	}

	for _, m := range c.Marks {
		body, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode mark %s: %w", m.AccountID, err)
		}
		_, err = tx.ExecContext(ctx, s.bind(`INSERT INTO marks (account_id, as_of, body) VALUES (?, ?, ?)
			ON CONFLICT (account_id) DO UPDATE SET as_of = excluded.as_of, body = excluded.body`), m.AccountID, m.AsOf.UnixNano(), string(body))
		if err != nil {
			return fmt.Errorf("failed to save mark %s: %w", m.AccountID, err)
		}
	}

	return tx.Commit()
}

// SaveSchedule stores a new schedule version outside of any event.
func (s *SQLStore) SaveSchedule(ctx context.Context, sch models.Schedule) error {
	body, err := models.EncodeSchedule(sch)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.bind(`INSERT INTO schedules (loan_id, version, body) VALUES (?, ?, ?)`), sch.LoanID.String(), sch.Version, string(body))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("schedule %s v%d: %w", sch.LoanID, sch.Version, ErrDuplicate)
		}
		return fmt.Errorf("failed to save schedule: %w", err)
	}
	return nil
}

func (s *SQLStore) HasEvent(ctx context.Context, key string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, s.bind(`SELECT COUNT(1) FROM events WHERE event_key = ?`), key).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check event: %w", err)
	}
	return count > 0, nil
}

// Entry retrieves a committed entry by ID.
func (s *SQLStore) Entry(ctx context.Context, id uuid.UUID) (models.JournalEntry, error) {
	var body string
	err := s.db.QueryRowContext(ctx, s.bind(`SELECT body FROM entries WHERE id = ?`), id.String()).Scan(&body)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.JournalEntry{}, fmt.Errorf("entry %s: %w", id, ErrNotFound)
		}
		return models.JournalEntry{}, fmt.Errorf("failed to get entry: %w", err)
	}
	return models.DecodeEntry([]byte(body))
}

func (s *SQLStore) LoadEntries(ctx context.Context, accountID string, from, to time.Time) ([]models.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(`SELECT e.body FROM entries e
		JOIN entry_accounts a ON a.entry_id = e.id
		WHERE a.account_id = ? AND a.ts >= ? AND a.ts <= ?
		ORDER BY a.ts ASC, e.id ASC`), accountID, nanos(from, math.MinInt64), nanos(to, math.MaxInt64))
	if err != nil {
		return nil, fmt.Errorf("failed to load entries for %s: %w", accountID, err)
	}
	defer rows.Close()

	var entries []models.JournalEntry
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan entry row: %w", err)
		}
		e, err := models.DecodeEntry([]byte(body))
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return entries, nil
}

func (s *SQLStore) LoadSchedule(ctx context.Context, loanID uuid.UUID) (models.Schedule, error) {
	var body string
	err := s.db.QueryRowContext(ctx, s.bind(`SELECT body FROM schedules WHERE loan_id = ? ORDER BY version DESC LIMIT 1`), loanID.String()).Scan(&body)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Schedule{}, fmt.Errorf("schedule for loan %s: %w", loanID, ErrNotFound)
		}
		return models.Schedule{}, fmt.Errorf("failed to get schedule: %w", err)
	}
	return models.DecodeSchedule([]byte(body))
}

func (s *SQLStore) ScheduleHistory(ctx context.Context, loanID uuid.UUID) ([]models.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(`SELECT body FROM schedules WHERE loan_id = ? ORDER BY version ASC`), loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule history: %w", err)
	}
	defer rows.Close()

	var out []models.Schedule
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan schedule row: %w", err)
		}
		sch, err := models.DecodeSchedule([]byte(body))
		if err != nil {
			return nil, err
		}
		out = append(out, sch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("schedule for loan %s: %w", loanID, ErrNotFound)
	}
	return out, nil
}

func (s *SQLStore) LoadMark(ctx context.Context, accountID string) (models.RevaluationMark, error) {
	var body string
	err := s.db.QueryRowContext(ctx, s.bind(`SELECT body FROM marks WHERE account_id = ?`), accountID).Scan(&body)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.RevaluationMark{}, fmt.Errorf("mark for %s: %w", accountID, ErrNotFound)
		}
		return models.RevaluationMark{}, fmt.Errorf("failed to get mark: %w", err)
	}
	var m models.RevaluationMark
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		return models.RevaluationMark{}, fmt.Errorf("decode mark %s: %w", accountID, err)
	}
	return m, nil
}

// SaveRate records r, replacing any rate for the same pair and instant.
func (s *SQLStore) SaveRate(ctx context.Context, r models.ExchangeRate) error {
	if err := r.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, s.bind(`INSERT INTO rates (base, quote, as_of, rate) VALUES (?, ?, ?, ?)
		ON CONFLICT (base, quote, as_of) DO UPDATE SET rate = excluded.rate`), string(r.Base), string(r.Quote), r.AsOf.UnixNano(), r.Rate.String())
	if err != nil {
		return fmt.Errorf("failed to save rate: %w", err)
	}
	return nil
}

func (s *SQLStore) RateAtOrBefore(ctx context.Context, base, quote money.Code, at time.Time) (models.ExchangeRate, error) {
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT base, quote, rate, as_of FROM rates
		WHERE base = ? AND quote = ? AND as_of <= ?
		ORDER BY as_of DESC LIMIT 1`), string(base), string(quote), at.UnixNano())
	r, err := scanRate(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.ExchangeRate{}, fmt.Errorf("rate %s/%s at %s: %w", base, quote, at.Format(time.RFC3339), ErrNotFound)
		}
		return models.ExchangeRate{}, fmt.Errorf("failed to get rate: %w", err)
	}
	return r, nil
}

func (s *SQLStore) ListRates(ctx context.Context, base, quote money.Code) ([]models.ExchangeRate, error) {
	query := `SELECT base, quote, rate, as_of FROM rates`
	var (
		where []string
		args  []any
	)
	if base != "" {
		where = append(where, "base = ?")
		args = append(args, string(base))
	}
	if quote != "" {
		where = append(where, "quote = ?")
		args = append(args, string(quote))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY base ASC, quote ASC, as_of ASC"

	rows, err := s.db.QueryContext(ctx, s.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rates: %w", err)
	}
	defer rows.Close()

	var out []models.ExchangeRate
	for rows.Next() {
		r, err := scanRate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rate row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRate(row scanner) (models.ExchangeRate, error) {
	var (
		r           models.ExchangeRate
		base, quote string
		asOf        int64
	)
	if err := row.Scan(&base, &quote, &r.Rate, &asOf); err != nil {
		return models.ExchangeRate{}, err
	}
	r.Base, r.Quote = money.Code(base), money.Code(quote)
	r.AsOf = fromNanos(asOf)
	return r, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
