package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/alem-hub/habit-hub/internal/domain/habit"
	"github.com/alem-hub/habit-hub/internal/domain/shared"
	"github.com/alem-hub/habit-hub/pkg/timeutil"
)

const habitColumns = `id, user_id, name, category, tracking_type, frequency,
	target_value, target_unit, points, is_active, display_order, created_at`

const entryColumns = `id, habit_id, user_id, entry_date, status, value, text,
	time_spent_minutes, difficulty, mood, recorded_at`

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) GetHabits(ctx context.Context, userID string, activeOnly bool) ([]*habit.Habit, error) {
	query := `SELECT ` + habitColumns + ` FROM habits WHERE user_id = ?`
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY display_order, id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, classify("GetHabits", err)
	}
	defer rows.Close()

	var out []*habit.Habit
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, classify("GetHabits", err)
		}
		out = append(out, h)
	}
	return out, classify("GetHabits", rows.Err())
}

func (s *Store) GetHabit(ctx context.Context, habitID string) (*habit.Habit, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+habitColumns+` FROM habits WHERE id = ?`, habitID)
	h, err := scanHabit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrHabitNotFound
		}
		return nil, classify("GetHabit", err)
	}
	return h, nil
}

func (s *Store) SaveHabit(ctx context.Context, h *habit.Habit) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO habits (`+habitColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			tracking_type = excluded.tracking_type,
			frequency = excluded.frequency,
			target_value = excluded.target_value,
			target_unit = excluded.target_unit,
			points = excluded.points,
			is_active = excluded.is_active,
			display_order = excluded.display_order`,
		h.ID, h.UserID, h.Name, string(h.Category), string(h.TrackingType), string(h.Frequency),
		h.TargetValue, h.TargetUnit, h.Points, h.IsActive, h.DisplayOrder, formatTime(h.CreatedAt),
	)
	return classify("SaveHabit", err)
}

func (s *Store) GetEntries(ctx context.Context, filter habit.EntryFilter) ([]*habit.Entry, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{filter.UserID}
	)
	if filter.HabitID != "" {
		where = append(where, "habit_id = ?")
		args = append(args, filter.HabitID)
	}
	if !filter.Range.From.IsZero() {
		where = append(where, "entry_date >= ?")
		args = append(args, timeutil.FormatDate(filter.Range.From))
	}
	if !filter.Range.To.IsZero() {
		where = append(where, "entry_date <= ?")
		args = append(args, timeutil.FormatDate(filter.Range.To))
	}

	// YYYY-MM-DD sorts lexically in date order.
	query := `SELECT ` + entryColumns + ` FROM habit_entries WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY entry_date DESC, habit_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("GetEntries", err)
	}
	defer rows.Close()

	var out []*habit.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, classify("GetEntries", err)
		}
		out = append(out, e)
	}
	return out, classify("GetEntries", rows.Err())
}

func (s *Store) GetEntry(ctx context.Context, habitID string, date time.Time) (*habit.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM habit_entries WHERE habit_id = ? AND entry_date = ?`,
		habitID, timeutil.FormatDate(date))
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrEntryNotFound
		}
		return nil, classify("GetEntry", err)
	}
	return e, nil
}

func (s *Store) SaveEntry(ctx context.Context, e *habit.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO habit_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (habit_id, entry_date) DO UPDATE SET
			status = excluded.status,
			value = excluded.value,
			text = excluded.text,
			time_spent_minutes = excluded.time_spent_minutes,
			difficulty = excluded.difficulty,
			mood = excluded.mood,
			recorded_at = excluded.recorded_at`,
		e.ID, e.HabitID, e.UserID, timeutil.FormatDate(e.Date), string(e.Status),
		nullFloat(e.Value), e.Text, nullInt(e.TimeSpentMinutes), nullInt(e.Difficulty), nullInt(e.Mood),
		formatTime(e.RecordedAt),
	)
	return classify("SaveEntry", err)
}

func scanHabit(row scanner) (*habit.Habit, error) {
	var (
		h                             habit.Habit
		category, tracking, frequency string
		createdAt                     string
	)
	err := row.Scan(&h.ID, &h.UserID, &h.Name, &category, &tracking, &frequency,
		&h.TargetValue, &h.TargetUnit, &h.Points, &h.IsActive, &h.DisplayOrder, &createdAt)
	if err != nil {
		return nil, err
	}
	if h.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	h.Category = shared.Category(category)
	h.TrackingType = habit.TrackingType(tracking)
	h.Frequency = habit.Frequency(frequency)
	return &h, nil
}

func scanEntry(row scanner) (*habit.Entry, error) {
	var (
		e                      habit.Entry
		date, status, recorded string
		value                  sql.NullFloat64
		spent, diff, mood      sql.NullInt64
	)
	err := row.Scan(&e.ID, &e.HabitID, &e.UserID, &date, &status, &value, &e.Text,
		&spent, &diff, &mood, &recorded)
	if err != nil {
		return nil, err
	}
	if e.Date, err = timeutil.ParseDate(date); err != nil {
		return nil, err
	}
	if e.RecordedAt, err = parseTime(recorded); err != nil {
		return nil, err
	}
	e.Status = habit.Status(status)
	e.Value = floatPtr(value)
	e.TimeSpentMinutes = intPtr(spent)
	e.Difficulty = intPtr(diff)
	e.Mood = intPtr(mood)
	return &e, nil
}
