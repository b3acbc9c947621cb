package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type migration struct {
	version    string
	statements []string
}

// The DDL sticks to types both sqlite and postgres accept. Amounts and rates
// live inside TEXT columns so no precision is lost; timestamps are Unix
// nanoseconds.
var migrations = []migration{
	{"0001_events_entries", []string{
		`CREATE TABLE IF NOT EXISTS events (
			event_key TEXT PRIMARY KEY,
			committed_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS entries (
			id TEXT PRIMARY KEY,
			event_key TEXT NOT NULL REFERENCES events(event_key),
			ts BIGINT NOT NULL,
			body TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS entry_accounts (
			entry_id TEXT NOT NULL REFERENCES entries(id),
			account_id TEXT NOT NULL,
			ts BIGINT NOT NULL,
			PRIMARY KEY (entry_id, account_id)
		)`,
		`CREATE INDEX IF NOT EXISTS entry_accounts_by_account ON entry_accounts (account_id, ts)`,
	}},
	{"0002_schedules_marks", []string{
		`CREATE TABLE IF NOT EXISTS schedules (
			loan_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			body TEXT NOT NULL,
			PRIMARY KEY (loan_id, version)
		)`,
		`CREATE TABLE IF NOT EXISTS marks (
			account_id TEXT PRIMARY KEY,
			as_of BIGINT NOT NULL,
			body TEXT NOT NULL
		)`,
	}},
	{"0003_rates", []string{
		`CREATE TABLE IF NOT EXISTS rates (
			base TEXT NOT NULL,
			quote TEXT NOT NULL,
			as_of BIGINT NOT NULL,
			rate TEXT NOT NULL,
			PRIMARY KEY (base, quote, as_of)
		)`,
	}},
}

// migrate applies every migration not yet recorded in schema_migrations and
// returns how many ran.
func (s *SQLStore) migrate(ctx context.Context) (int, error) {
	const ddl = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at BIGINT NOT NULL
	)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return 0, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		done, err := s.isApplied(ctx, m.version)
		if err != nil {
			return applied, err
		}
		if done {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return applied, fmt.Errorf("begin tx for migration %q: %w", m.version, err)
		}
		for _, stmt := range m.statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return applied, fmt.Errorf("execute migration %q: %w", m.version, err)
			}
		}
		if _, err := tx.ExecContext(ctx, s.bind(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`), m.version, time.Now().UnixNano()); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("record migration %q: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return applied, fmt.Errorf("commit migration %q: %w", m.version, err)
		}
		applied++
	}
	return applied, nil
}

func (s *SQLStore) isApplied(ctx context.Context, version string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.bind(`SELECT COUNT(1) FROM schema_migrations WHERE version = ?`), version).Scan(&count)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("check migration %q status: %w", version, err)
	}
	return count > 0, nil
}
