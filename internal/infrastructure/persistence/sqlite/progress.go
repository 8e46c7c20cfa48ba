package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/habit-hub/internal/domain/achievement"
	"github.com/alem-hub/habit-hub/internal/domain/level"
	"github.com/alem-hub/habit-hub/internal/domain/progress"
	"github.com/alem-hub/habit-hub/internal/domain/score"
	"github.com/alem-hub/habit-hub/internal/domain/shared"
	"github.com/alem-hub/habit-hub/internal/domain/streak"
	"github.com/alem-hub/habit-hub/pkg/timeutil"
)

const scoreColumns = `user_id, score_date, total_points, morning, physical, nutrition,
	work, development, social, reflection, sleep, completed_habits, total_habits, percentile, rank`

const streakColumns = `habit_id, user_id, start_date, end_date, last_date, length, is_active`

const levelColumns = `user_id, total_xp, current_level, current_level_xp, next_level_xp,
	longest_streak, total_points, achievements_unlocked, updated_at`

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) GetDailyScore(ctx context.Context, userID string, date time.Time) (*score.DailyScore, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scoreColumns+` FROM daily_scores WHERE user_id = ? AND score_date = ?`,
		userID, timeutil.FormatDate(date))

	var (
		ds         score.DailyScore
		c          = &ds.Categories
		day        string
		percentile sql.NullFloat64
		rank       int
	)
	err := row.Scan(&ds.UserID, &day, &ds.TotalPoints,
		&c.Morning, &c.Physical, &c.Nutrition, &c.Work, &c.Development, &c.Social, &c.Reflection, &c.Sleep,
		&ds.CompletedHabits, &ds.TotalHabits, &percentile, &rank)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.NewDomainError("score", "Get", shared.ErrNotFound, "daily score not found")
		}
		return nil, classify("GetDailyScore", err)
	}
	if ds.Date, err = timeutil.ParseDate(day); err != nil {
		return nil, classify("GetDailyScore", err)
	}
	ds.Percentile = floatPtr(percentile)
	ds.Rank = shared.Rank(rank)
	return &ds, nil
}

func (s *Store) SumDailyPoints(ctx context.Context, userID string, exclude time.Time) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_points), 0) FROM daily_scores WHERE user_id = ? AND score_date <> ?`,
		userID, timeutil.FormatDate(exclude)).Scan(&total)
	return total, classify("SumDailyPoints", err)
}

func (s *Store) GetPeerTotals(ctx context.Context, date time.Time, excludeUserID string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT total_points FROM daily_scores WHERE score_date = ? AND user_id <> ? ORDER BY total_points`,
		timeutil.FormatDate(date), excludeUserID)
	if err != nil {
		return nil, classify("GetPeerTotals", err)
	}
	defer rows.Close()

	var totals []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, classify("GetPeerTotals", err)
		}
		totals = append(totals, v)
	}
	return totals, classify("GetPeerTotals", rows.Err())
}

func (s *Store) GetStreaks(ctx context.Context, habitID string) ([]streak.Streak, error) {
	return s.queryStreaks(ctx, "GetStreaks",
		`SELECT `+streakColumns+` FROM streaks WHERE habit_id = ? ORDER BY start_date DESC`, habitID)
}

func (s *Store) GetActiveStreaks(ctx context.Context, userID string) (map[string]streak.Streak, error) {
	runs, err := s.queryStreaks(ctx, "GetActiveStreaks",
		`SELECT `+streakColumns+` FROM streaks WHERE user_id = ? AND is_active = 1`, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]streak.Streak, len(runs))
	for _, r := range runs {
		out[r.HabitID] = r
	}
	return out, nil
}

func (s *Store) queryStreaks(ctx context.Context, op, query string, args ...any) ([]streak.Streak, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []streak.Streak
	for rows.Next() {
		var (
			r           streak.Streak
			start, last string
			end         sql.NullString
		)
		if err := rows.Scan(&r.HabitID, &r.UserID, &start, &end, &last, &r.Length, &r.IsActive); err != nil {
			return nil, classify(op, err)
		}
		if r.StartDate, err = timeutil.ParseDate(start); err != nil {
			return nil, classify(op, err)
		}
		if r.LastDate, err = timeutil.ParseDate(last); err != nil {
			return nil, classify(op, err)
		}
		if end.Valid {
			d, err := timeutil.ParseDate(end.String)
			if err != nil {
				return nil, classify(op, err)
			}
			r.EndDate = &d
		}
		out = append(out, r)
	}
	return out, classify(op, rows.Err())
}

func (s *Store) GetLevelData(ctx context.Context, userID string) (*level.UserLevelData, error) {
	var (
		d       level.UserLevelData
		updated string
	)
	err := s.db.QueryRowContext(ctx, `SELECT `+levelColumns+` FROM user_levels WHERE user_id = ?`, userID).
		Scan(&d.UserID, &d.TotalXP, &d.CurrentLevel, &d.CurrentLevelXP, &d.NextLevelXP,
			&d.LongestStreak, &d.TotalPoints, &d.AchievementsUnlocked, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrLevelDataNotFound
		}
		return nil, classify("GetLevelData", err)
	}
	if d.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, classify("GetLevelData", err)
	}
	return &d, nil
}

func (s *Store) GetUnlocks(ctx context.Context, userID string) ([]achievement.Unlock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, code, points, unlocked_at FROM achievement_unlocks
		WHERE user_id = ? ORDER BY unlocked_at, code`, userID)
	if err != nil {
		return nil, classify("GetUnlocks", err)
	}
	defer rows.Close()

	var out []achievement.Unlock
	for rows.Next() {
		var (
			u  achievement.Unlock
			at string
		)
		if err := rows.Scan(&u.UserID, &u.Code, &u.Points, &at); err != nil {
			return nil, classify("GetUnlocks", err)
		}
		if u.UnlockedAt, err = parseTime(at); err != nil {
			return nil, classify("GetUnlocks", err)
		}
		out = append(out, u)
	}
	return out, classify("GetUnlocks", rows.Err())
}

func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM habits ORDER BY user_id`)
	if err != nil {
		return nil, classify("ListUserIDs", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classify("ListUserIDs", err)
		}
		ids = append(ids, id)
	}
	return ids, classify("ListUserIDs", rows.Err())
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// WithinTx runs fn in one database transaction. Nothing is visible to readers
// unless fn returns nil and the commit succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(w progress.Writer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("Begin", err)
	}

	if err := fn(&txWriter{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return classify("Rollback", fmt.Errorf("tx error: %w, rollback error: %v", err, rbErr))
		}
		return classify("Commit", err)
	}
	if err := ctx.Err(); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify("Commit", err)
	}
	return nil
}

type txWriter struct {
	q querier
}

func (w *txWriter) WriteDailyScore(ctx context.Context, ds *score.DailyScore) error {
	c := ds.Categories
	_, err := w.q.ExecContext(ctx, `
		INSERT INTO daily_scores (`+scoreColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, score_date) DO UPDATE SET
			total_points = excluded.total_points,
			morning = excluded.morning,
			physical = excluded.physical,
			nutrition = excluded.nutrition,
			work = excluded.work,
			development = excluded.development,
			social = excluded.social,
			reflection = excluded.reflection,
			sleep = excluded.sleep,
			completed_habits = excluded.completed_habits,
			total_habits = excluded.total_habits,
			percentile = excluded.percentile,
			rank = excluded.rank`,
		ds.UserID, timeutil.FormatDate(ds.Date), ds.TotalPoints,
		c.Morning, c.Physical, c.Nutrition, c.Work, c.Development, c.Social, c.Reflection, c.Sleep,
		ds.CompletedHabits, ds.TotalHabits, nullFloat(ds.Percentile), ds.Rank.Int(),
	)
	return classify("WriteDailyScore", err)
}

func (w *txWriter) ReplaceStreaks(ctx context.Context, userID, habitID string, runs []streak.Streak) error {
	if _, err := w.q.ExecContext(ctx, `DELETE FROM streaks WHERE habit_id = ?`, habitID); err != nil {
		return classify("ReplaceStreaks", err)
	}
	for _, r := range runs {
		var end sql.NullString
		if r.EndDate != nil {
			end = sql.NullString{String: timeutil.FormatDate(*r.EndDate), Valid: true}
		}
		_, err := w.q.ExecContext(ctx,
			`INSERT INTO streaks (`+streakColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			habitID, userID, timeutil.FormatDate(r.StartDate), end, timeutil.FormatDate(r.LastDate),
			r.Length, r.IsActive)
		if err != nil {
			return classify("ReplaceStreaks", err)
		}
	}
	return nil
}

func (w *txWriter) WriteLevelData(ctx context.Context, d *level.UserLevelData) error {
	_, err := w.q.ExecContext(ctx, `
		INSERT INTO user_levels (`+levelColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			total_xp = excluded.total_xp,
			current_level = excluded.current_level,
			current_level_xp = excluded.current_level_xp,
			next_level_xp = excluded.next_level_xp,
			longest_streak = excluded.longest_streak,
			total_points = excluded.total_points,
			achievements_unlocked = excluded.achievements_unlocked,
			updated_at = excluded.updated_at`,
		d.UserID, d.TotalXP, d.CurrentLevel, d.CurrentLevelXP, d.NextLevelXP,
		d.LongestStreak, d.TotalPoints, d.AchievementsUnlocked, formatTime(d.UpdatedAt),
	)
	return classify("WriteLevelData", err)
}

func (w *txWriter) WriteAchievementUnlock(ctx context.Context, u achievement.Unlock) error {
	_, err := w.q.ExecContext(ctx, `
		INSERT INTO achievement_unlocks (user_id, code, points, unlocked_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, code) DO NOTHING`,
		u.UserID, u.Code, u.Points, formatTime(u.UnlockedAt),
	)
	return classify("WriteAchievementUnlock", err)
}
