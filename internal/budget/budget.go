// Package budget persists the Type2 daily reasoning budget and a usage
// ledger of every provider call the bridge makes, in a small SQLite
// database. Adapted from internal/usage/store.go
// append-only-records-plus-aggregation shape, repurposed here for a
// single rolling daily counter instead of a cost ledger, plus a
// provider-call audit trail used by `stats`/`status`.
package budget

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite-backed Type2 budget counter and provider usage
// ledger. SQLite serializes writes internally, so Store is safe for
// concurrent use without an additional mutex.
type Store struct {
	db *sql.DB
}

// Open creates (or opens) the budget database at dbPath, migrating the
// schema if needed.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("budget: open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("budget: migrate schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS type2_budget (
		day_iso    TEXT PRIMARY KEY,
		used_count INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS provider_calls (
		id          TEXT PRIMARY KEY,
		timestamp   TEXT NOT NULL,
		provider    TEXT NOT NULL,
		depth       TEXT NOT NULL,
		ok          INTEGER NOT NULL,
		elapsed_ms  INTEGER NOT NULL,
		event_id    INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_provider_calls_ts ON provider_calls(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// dayISO formats now as the calendar-day key the budget rolls over on.
func dayISO(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

// Consume rolls the budget over to today if needed, then attempts to
// consume one slot. Returns (allowed, usedAfter). If the day has
// changed since the last consumption, usedCount resets to 0 before the
// check, against the daily Type2 budget.
func (s *Store) Consume(ctx context.Context, now time.Time, perDayLimit int) (bool, int, error) {
	day := dayISO(now)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("budget: begin tx: %w", err)
	}
	defer tx.Rollback()

	var used int
	err = tx.QueryRowContext(ctx, `SELECT used_count FROM type2_budget WHERE day_iso = ?`, day).Scan(&used)
	switch {
	case err == sql.ErrNoRows:
		used = 0
		if _, err := tx.ExecContext(ctx, `INSERT INTO type2_budget (day_iso, used_count) VALUES (?, 0)`, day); err != nil {
			return false, 0, fmt.Errorf("budget: seed day row: %w", err)
		}
	case err != nil:
		return false, 0, fmt.Errorf("budget: read day row: %w", err)
	}

	if used >= perDayLimit {
		if err := tx.Commit(); err != nil {
			return false, used, fmt.Errorf("budget: commit: %w", err)
		}
		return false, used, nil
	}

	used++
	if _, err := tx.ExecContext(ctx, `UPDATE type2_budget SET used_count = ? WHERE day_iso = ?`, used, day); err != nil {
		return false, 0, fmt.Errorf("budget: update day row: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, used, fmt.Errorf("budget: commit: %w", err)
	}
	return true, used, nil
}

// UsedToday returns the current day's used count without consuming a
// slot, for `status`/`stats` reporting.
func (s *Store) UsedToday(ctx context.Context, now time.Time) (int, error) {
	day := dayISO(now)
	var used int
	err := s.db.QueryRowContext(ctx, `SELECT used_count FROM type2_budget WHERE day_iso = ?`, day).Scan(&used)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("budget: read used today: %w", err)
	}
	return used, nil
}

// ResetToday forces today's used count to zero; called on a life-stage
// transition.
func (s *Store) ResetToday(ctx context.Context, now time.Time) error {
	day := dayISO(now)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO type2_budget (day_iso, used_count) VALUES (?, 0)
		 ON CONFLICT(day_iso) DO UPDATE SET used_count = 0`, day)
	if err != nil {
		return fmt.Errorf("budget: reset today: %w", err)
	}
	return nil
}

// CallRecord is one provider-call audit entry.
type CallRecord struct {
	Provider  string
	Depth     string
	OK        bool
	Elapsed   time.Duration
	EventID   int64
	Timestamp time.Time
}

// RecordCall appends a provider-call audit entry. Best-effort: a
// logging failure here never blocks Type2's reasoning step.
func (s *Store) RecordCall(ctx context.Context, rec CallRecord) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("budget: generate call id: %w", err)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	okInt := 0
	if rec.OK {
		okInt = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO provider_calls (id, timestamp, provider, depth, ok, elapsed_ms, event_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id.String(), rec.Timestamp.UTC().Format(time.RFC3339), rec.Provider, rec.Depth,
		okInt, rec.Elapsed.Milliseconds(), rec.EventID,
	)
	if err != nil {
		return fmt.Errorf("budget: record call: %w", err)
	}
	return nil
}

// RecentCalls returns the most recent n provider-call records, newest
// first, for `stats`.
func (s *Store) RecentCalls(ctx context.Context, n int) ([]CallRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, provider, depth, ok, elapsed_ms, event_id
		 FROM provider_calls ORDER BY timestamp DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("budget: query recent calls: %w", err)
	}
	defer rows.Close()

	var out []CallRecord
	for rows.Next() {
		var rec CallRecord
		var ts string
		var okInt int
		var elapsedMs int64
		if err := rows.Scan(&ts, &rec.Provider, &rec.Depth, &okInt, &elapsedMs, &rec.EventID); err != nil {
			return nil, fmt.Errorf("budget: scan call row: %w", err)
		}
		rec.OK = okInt != 0
		rec.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			rec.Timestamp = parsed
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
