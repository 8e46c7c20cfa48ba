package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/habit-hub/internal/domain/achievement"
	"github.com/alem-hub/habit-hub/internal/domain/habit"
	"github.com/alem-hub/habit-hub/internal/domain/level"
	"github.com/alem-hub/habit-hub/internal/domain/progress"
	"github.com/alem-hub/habit-hub/internal/domain/score"
	"github.com/alem-hub/habit-hub/internal/domain/shared"
	"github.com/alem-hub/habit-hub/internal/domain/streak"
	"github.com/alem-hub/habit-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store implements progress.Store for PostgreSQL.
type Store struct {
	conn *Connection
}

// NewStore creates a new Store.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

var _ progress.Store = (*Store)(nil)

const habitColumns = `id, user_id, name, category, tracking_type, frequency,
	target_value, target_unit, points, is_active, display_order, created_at`

const entryColumns = `id, habit_id, user_id, entry_date, status, value, text,
	time_spent_minutes, difficulty, mood, recorded_at`

// ─────────────────────────────────────────────────────────────────────────────
// Habits
// ─────────────────────────────────────────────────────────────────────────────

// GetHabits implements habit.HabitRepository.
func (s *Store) GetHabits(ctx context.Context, userID string, activeOnly bool) ([]*habit.Habit, error) {
	query := `SELECT ` + habitColumns + ` FROM habits WHERE user_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY display_order, id`

	rows, err := s.conn.Query(ctx, query, userID)
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

// GetHabit implements habit.HabitRepository.
func (s *Store) GetHabit(ctx context.Context, habitID string) (*habit.Habit, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+habitColumns+` FROM habits WHERE id = $1`, habitID)
	h, err := scanHabit(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrHabitNotFound
		}
		return nil, classify("GetHabit", err)
	}
	return h, nil
}

// SaveHabit implements habit.HabitRepository.
func (s *Store) SaveHabit(ctx context.Context, h *habit.Habit) error {
	query := `
		INSERT INTO habits (` + habitColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			tracking_type = EXCLUDED.tracking_type,
			frequency = EXCLUDED.frequency,
			target_value = EXCLUDED.target_value,
			target_unit = EXCLUDED.target_unit,
			points = EXCLUDED.points,
			is_active = EXCLUDED.is_active,
			display_order = EXCLUDED.display_order
	`
	_, err := s.conn.Exec(ctx, query,
		h.ID, h.UserID, h.Name, string(h.Category), string(h.TrackingType), string(h.Frequency),
		h.TargetValue, h.TargetUnit, h.Points, h.IsActive, h.DisplayOrder, h.CreatedAt,
	)
	return classify("SaveHabit", err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Entries
// ─────────────────────────────────────────────────────────────────────────────

// GetEntries implements habit.EntryRepository.
func (s *Store) GetEntries(ctx context.Context, filter habit.EntryFilter) ([]*habit.Entry, error) {
	var (
		where = []string{"user_id = $1"}
		args  = []any{filter.UserID}
	)
	if filter.HabitID != "" {
		args = append(args, filter.HabitID)
		where = append(where, fmt.Sprintf("habit_id = $%d", len(args)))
	}
	if !filter.Range.From.IsZero() {
		args = append(args, timeutil.DateOf(filter.Range.From))
		where = append(where, fmt.Sprintf("entry_date >= $%d", len(args)))
	}
	if !filter.Range.To.IsZero() {
		args = append(args, timeutil.DateOf(filter.Range.To))
		where = append(where, fmt.Sprintf("entry_date <= $%d", len(args)))
	}

	query := `SELECT ` + entryColumns + ` FROM habit_entries WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY entry_date DESC, habit_id`

	rows, err := s.conn.Query(ctx, query, args...)
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

// GetEntry implements habit.EntryRepository.
func (s *Store) GetEntry(ctx context.Context, habitID string, date time.Time) (*habit.Entry, error) {
	row := s.conn.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM habit_entries WHERE habit_id = $1 AND entry_date = $2`,
		habitID, timeutil.DateOf(date))
	e, err := scanEntry(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrEntryNotFound
		}
		return nil, classify("GetEntry", err)
	}
	return e, nil
}

// SaveEntry implements habit.EntryRepository. (habit_id, entry_date) is unique;
// a second write for the same day replaces the first.
func (s *Store) SaveEntry(ctx context.Context, e *habit.Entry) error {
	query := `
		INSERT INTO habit_entries (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (habit_id, entry_date) DO UPDATE SET
			status = EXCLUDED.status,
			value = EXCLUDED.value,
			text = EXCLUDED.text,
			time_spent_minutes = EXCLUDED.time_spent_minutes,
			difficulty = EXCLUDED.difficulty,
			mood = EXCLUDED.mood,
			recorded_at = EXCLUDED.recorded_at
	`
	_, err := s.conn.Exec(ctx, query,
		e.ID, e.HabitID, e.UserID, timeutil.DateOf(e.Date), string(e.Status), e.Value, e.Text,
		e.TimeSpentMinutes, e.Difficulty, e.Mood, e.RecordedAt,
	)
	return classify("SaveEntry", err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Derived state (read)
// ─────────────────────────────────────────────────────────────────────────────

const scoreColumns = `user_id, score_date, total_points, morning, physical, nutrition,
	work, development, social, reflection, sleep, completed_habits, total_habits, percentile, rank`

// GetDailyScore implements progress.Reader.
func (s *Store) GetDailyScore(ctx context.Context, userID string, date time.Time) (*score.DailyScore, error) {
	row := s.conn.QueryRow(ctx,
		`SELECT `+scoreColumns+` FROM daily_scores WHERE user_id = $1 AND score_date = $2`,
		userID, timeutil.DateOf(date))

	var (
		ds   score.DailyScore
		c    = &ds.Categories
		rank int
	)
	err := row.Scan(&ds.UserID, &ds.Date, &ds.TotalPoints,
		&c.Morning, &c.Physical, &c.Nutrition, &c.Work, &c.Development, &c.Social, &c.Reflection, &c.Sleep,
		&ds.CompletedHabits, &ds.TotalHabits, &ds.Percentile, &rank)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NewDomainError("score", "Get", shared.ErrNotFound, "daily score not found")
		}
		return nil, classify("GetDailyScore", err)
	}
	ds.Date = timeutil.DateOf(ds.Date)
	ds.Rank = shared.Rank(rank)
	return &ds, nil
}

// SumDailyPoints implements progress.Reader.
func (s *Store) SumDailyPoints(ctx context.Context, userID string, exclude time.Time) (int, error) {
	var total int
	err := s.conn.QueryRow(ctx,
		`SELECT COALESCE(SUM(total_points), 0) FROM daily_scores WHERE user_id = $1 AND score_date <> $2`,
		userID, timeutil.DateOf(exclude)).Scan(&total)
	return total, classify("SumDailyPoints", err)
}

// GetPeerTotals implements progress.Reader.
func (s *Store) GetPeerTotals(ctx context.Context, date time.Time, excludeUserID string) ([]int, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT total_points FROM daily_scores WHERE score_date = $1 AND user_id <> $2 ORDER BY total_points`,
		timeutil.DateOf(date), excludeUserID)
	if err != nil {
		return nil, classify("GetPeerTotals", err)
	}
	totals, err := pgx.CollectRows(rows, pgx.RowTo[int])
	return totals, classify("GetPeerTotals", err)
}

const streakColumns = `habit_id, user_id, start_date, end_date, last_date, length, is_active`

// GetStreaks implements progress.Reader.
func (s *Store) GetStreaks(ctx context.Context, habitID string) ([]streak.Streak, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+streakColumns+` FROM streaks WHERE habit_id = $1 ORDER BY start_date DESC`, habitID)
	if err != nil {
		return nil, classify("GetStreaks", err)
	}
	defer rows.Close()
	return collectStreaks(rows)
}

// GetActiveStreaks implements progress.Reader.
func (s *Store) GetActiveStreaks(ctx context.Context, userID string) (map[string]streak.Streak, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+streakColumns+` FROM streaks WHERE user_id = $1 AND is_active`, userID)
	if err != nil {
		return nil, classify("GetActiveStreaks", err)
	}
	defer rows.Close()

	runs, err := collectStreaks(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[string]streak.Streak, len(runs))
	for _, r := range runs {
		out[r.HabitID] = r
	}
	return out, nil
}

// GetLevelData implements progress.Reader.
func (s *Store) GetLevelData(ctx context.Context, userID string) (*level.UserLevelData, error) {
	var d level.UserLevelData
	err := s.conn.QueryRow(ctx, `
		SELECT user_id, total_xp, current_level, current_level_xp, next_level_xp,
			   longest_streak, total_points, achievements_unlocked, updated_at
		FROM user_levels WHERE user_id = $1`, userID).
		Scan(&d.UserID, &d.TotalXP, &d.CurrentLevel, &d.CurrentLevelXP, &d.NextLevelXP,
			&d.LongestStreak, &d.TotalPoints, &d.AchievementsUnlocked, &d.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrLevelDataNotFound
		}
		return nil, classify("GetLevelData", err)
	}
	return &d, nil
}

// GetUnlocks implements progress.Reader.
func (s *Store) GetUnlocks(ctx context.Context, userID string) ([]achievement.Unlock, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT user_id, code, points, unlocked_at FROM achievement_unlocks
		WHERE user_id = $1 ORDER BY unlocked_at, code`, userID)
	if err != nil {
		return nil, classify("GetUnlocks", err)
	}
	defer rows.Close()

	var out []achievement.Unlock
	for rows.Next() {
		var u achievement.Unlock
		if err := rows.Scan(&u.UserID, &u.Code, &u.Points, &u.UnlockedAt); err != nil {
			return nil, classify("GetUnlocks", err)
		}
		out = append(out, u)
	}
	return out, classify("GetUnlocks", rows.Err())
}

// ListUserIDs implements progress.Reader.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx, `SELECT DISTINCT user_id FROM habits ORDER BY user_id`)
	if err != nil {
		return nil, classify("ListUserIDs", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return ids, classify("ListUserIDs", err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Derived state (write)
// ─────────────────────────────────────────────────────────────────────────────

// WithinTx implements progress.UnitOfWork on a single pgx transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(w progress.Writer) error) error {
	err := s.conn.WithTx(ctx, RecomputeTxOptions(), func(tx pgx.Tx) error {
		return fn(&txWriter{tx: tx})
	})
	return classify("Commit", err)
}

type txWriter struct {
	tx pgx.Tx
}

func (w *txWriter) WriteDailyScore(ctx context.Context, ds *score.DailyScore) error {
	c := ds.Categories
	_, err := w.tx.Exec(ctx, `
		INSERT INTO daily_scores (`+scoreColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (user_id, score_date) DO UPDATE SET
			total_points = EXCLUDED.total_points,
			morning = EXCLUDED.morning,
			physical = EXCLUDED.physical,
			nutrition = EXCLUDED.nutrition,
			work = EXCLUDED.work,
			development = EXCLUDED.development,
			social = EXCLUDED.social,
			reflection = EXCLUDED.reflection,
			sleep = EXCLUDED.sleep,
			completed_habits = EXCLUDED.completed_habits,
			total_habits = EXCLUDED.total_habits,
			percentile = EXCLUDED.percentile,
			rank = EXCLUDED.rank`,
		ds.UserID, timeutil.DateOf(ds.Date), ds.TotalPoints,
		c.Morning, c.Physical, c.Nutrition, c.Work, c.Development, c.Social, c.Reflection, c.Sleep,
		ds.CompletedHabits, ds.TotalHabits, ds.Percentile, ds.Rank.Int(),
	)
	return classify("WriteDailyScore", err)
}

func (w *txWriter) ReplaceStreaks(ctx context.Context, userID, habitID string, runs []streak.Streak) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM streaks WHERE habit_id = $1`, habitID)
	for _, r := range runs {
		var end *time.Time
		if r.EndDate != nil {
			d := timeutil.DateOf(*r.EndDate)
			end = &d
		}
		batch.Queue(`INSERT INTO streaks (`+streakColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			habitID, userID, timeutil.DateOf(r.StartDate), end, timeutil.DateOf(r.LastDate), r.Length, r.IsActive)
	}
	return classify("ReplaceStreaks", w.tx.SendBatch(ctx, batch).Close())
}

func (w *txWriter) WriteLevelData(ctx context.Context, d *level.UserLevelData) error {
	_, err := w.tx.Exec(ctx, `
		INSERT INTO user_levels (user_id, total_xp, current_level, current_level_xp, next_level_xp,
			longest_streak, total_points, achievements_unlocked, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			total_xp = EXCLUDED.total_xp,
			current_level = EXCLUDED.current_level,
			current_level_xp = EXCLUDED.current_level_xp,
			next_level_xp = EXCLUDED.next_level_xp,
			longest_streak = EXCLUDED.longest_streak,
			total_points = EXCLUDED.total_points,
			achievements_unlocked = EXCLUDED.achievements_unlocked,
			updated_at = EXCLUDED.updated_at`,
		d.UserID, d.TotalXP, d.CurrentLevel, d.CurrentLevelXP, d.NextLevelXP,
		d.LongestStreak, d.TotalPoints, d.AchievementsUnlocked, d.UpdatedAt,
	)
	return classify("WriteLevelData", err)
}

func (w *txWriter) WriteAchievementUnlock(ctx context.Context, u achievement.Unlock) error {
	_, err := w.tx.Exec(ctx, `
		INSERT INTO achievement_unlocks (user_id, code, points, unlocked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, code) DO NOTHING`,
		u.UserID, u.Code, u.Points, u.UnlockedAt,
	)
	return classify("WriteAchievementUnlock", err)
}

// ══════════════════════════════════════════════════════════════════════════════
// SCANNING
// ══════════════════════════════════════════════════════════════════════════════

func scanHabit(row pgx.Row) (*habit.Habit, error) {
	var (
		h                              habit.Habit
		category, tracking, frequency string
	)
	err := row.Scan(&h.ID, &h.UserID, &h.Name, &category, &tracking, &frequency,
		&h.TargetValue, &h.TargetUnit, &h.Points, &h.IsActive, &h.DisplayOrder, &h.CreatedAt)
	if err != nil {
		return nil, err
	}
	h.Category = shared.Category(category)
	h.TrackingType = habit.TrackingType(tracking)
	h.Frequency = habit.Frequency(frequency)
	return &h, nil
}

func scanEntry(row pgx.Row) (*habit.Entry, error) {
	var (
		e      habit.Entry
		status string
	)
	err := row.Scan(&e.ID, &e.HabitID, &e.UserID, &e.Date, &status, &e.Value, &e.Text,
		&e.TimeSpentMinutes, &e.Difficulty, &e.Mood, &e.RecordedAt)
	if err != nil {
		return nil, err
	}
	e.Date = timeutil.DateOf(e.Date)
	e.Status = habit.Status(status)
	return &e, nil
}

func collectStreaks(rows pgx.Rows) ([]streak.Streak, error) {
	var out []streak.Streak
	for rows.Next() {
		var r streak.Streak
		if err := rows.Scan(&r.HabitID, &r.UserID, &r.StartDate, &r.EndDate, &r.LastDate, &r.Length, &r.IsActive); err != nil {
			return nil, classify("ScanStreak", err)
		}
		r.StartDate = timeutil.DateOf(r.StartDate)
		r.LastDate = timeutil.DateOf(r.LastDate)
		if r.EndDate != nil {
			d := timeutil.DateOf(*r.EndDate)
			r.EndDate = &d
		}
		out = append(out, r)
	}
	return out, classify("ScanStreaks", rows.Err())
}
