// Package sqlite implements a single-file Entry Store on modernc.org/sqlite
// for local use by habitctl. Dates are stored as YYYY-MM-DD text and
// timestamps as RFC3339 text.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alem-hub/habit-hub/internal/domain/progress"
	"github.com/alem-hub/habit-hub/internal/domain/shared"
)

// Store implements progress.Store on database/sql.
type Store struct {
	db *sql.DB
}

var _ progress.Store = (*Store)(nil)

// Open opens (and creates if needed) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle without touching the schema.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate applies the schema idempotently.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range strings.Split(schema, ";\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: schema statement %d failed: %w", i, err)
		}
	}
	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ══════════════════════════════════════════════════════════════════════════════
// ENCODING HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: invalid timestamp %q: %w", value, err)
	}
	return t, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

// classify marks driver errors as transient unless they already carry a kind.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") ||
		strings.Contains(err.Error(), "CHECK constraint failed") {
		return shared.WrapError("sqlite", op, shared.ErrDataIntegrity, "constraint violation", err)
	}
	return shared.TransientError("sqlite", op, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEMA
// ══════════════════════════════════════════════════════════════════════════════

const schema = `
CREATE TABLE IF NOT EXISTS habits (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    name TEXT NOT NULL,
    category TEXT NOT NULL CHECK (category IN
        ('morning', 'physical', 'nutrition', 'work', 'development', 'social', 'reflection', 'sleep')),
    tracking_type TEXT NOT NULL DEFAULT 'binary',
    frequency TEXT NOT NULL DEFAULT 'daily' CHECK (frequency IN ('daily', 'weekly', 'monthly')),
    target_value REAL NOT NULL DEFAULT 0,
    target_unit TEXT NOT NULL DEFAULT '',
    points INTEGER NOT NULL DEFAULT 0 CHECK (points >= 0),
    is_active INTEGER NOT NULL DEFAULT 1,
    display_order INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_habits_user ON habits(user_id, display_order);
CREATE TABLE IF NOT EXISTS habit_entries (
    id TEXT PRIMARY KEY,
    habit_id TEXT NOT NULL REFERENCES habits(id),
    user_id TEXT NOT NULL,
    entry_date TEXT NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('completed', 'skipped', 'partial', 'failed')),
    value REAL,
    text TEXT NOT NULL DEFAULT '',
    time_spent_minutes INTEGER,
    difficulty INTEGER CHECK (difficulty IS NULL OR difficulty BETWEEN 1 AND 5),
    mood INTEGER CHECK (mood IS NULL OR mood BETWEEN 1 AND 5),
    recorded_at TEXT NOT NULL,
    UNIQUE (habit_id, entry_date)
);
CREATE INDEX IF NOT EXISTS idx_entries_user_date ON habit_entries(user_id, entry_date DESC);
CREATE TABLE IF NOT EXISTS daily_scores (
    user_id TEXT NOT NULL,
    score_date TEXT NOT NULL,
    total_points INTEGER NOT NULL DEFAULT 0,
    morning INTEGER NOT NULL DEFAULT 0,
    physical INTEGER NOT NULL DEFAULT 0,
    nutrition INTEGER NOT NULL DEFAULT 0,
    work INTEGER NOT NULL DEFAULT 0,
    development INTEGER NOT NULL DEFAULT 0,
    social INTEGER NOT NULL DEFAULT 0,
    reflection INTEGER NOT NULL DEFAULT 0,
    sleep INTEGER NOT NULL DEFAULT 0,
    completed_habits INTEGER NOT NULL DEFAULT 0,
    total_habits INTEGER NOT NULL DEFAULT 0,
    percentile REAL,
    rank INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (user_id, score_date)
);
CREATE TABLE IF NOT EXISTS streaks (
    habit_id TEXT NOT NULL REFERENCES habits(id),
    start_date TEXT NOT NULL,
    user_id TEXT NOT NULL,
    last_date TEXT NOT NULL,
    end_date TEXT,
    length INTEGER NOT NULL CHECK (length > 0),
    is_active INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (habit_id, start_date)
);
CREATE TABLE IF NOT EXISTS user_levels (
    user_id TEXT PRIMARY KEY,
    total_xp INTEGER NOT NULL DEFAULT 0 CHECK (total_xp >= 0),
    current_level INTEGER NOT NULL DEFAULT 1,
    current_level_xp INTEGER NOT NULL DEFAULT 0,
    next_level_xp INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    total_points INTEGER NOT NULL DEFAULT 0,
    achievements_unlocked INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS achievement_unlocks (
    user_id TEXT NOT NULL,
    code TEXT NOT NULL,
    points INTEGER NOT NULL DEFAULT 0,
    unlocked_at TEXT NOT NULL,
    PRIMARY KEY (user_id, code)
);
`
