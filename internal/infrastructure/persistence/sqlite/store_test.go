package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/habit-hub/internal/domain/achievement"
	"github.com/alem-hub/habit-hub/internal/domain/habit"
	"github.com/alem-hub/habit-hub/internal/domain/level"
	"github.com/alem-hub/habit-hub/internal/domain/progress"
	"github.com/alem-hub/habit-hub/internal/domain/score"
	"github.com/alem-hub/habit-hub/internal/domain/shared"
	"github.com/alem-hub/habit-hub/internal/domain/streak"
	"github.com/alem-hub/habit-hub/pkg/timeutil"
)

func TestWithinTx_RollsBackOnWriteFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO daily_scores").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	s := New(db)
	err = s.WithinTx(context.Background(), func(w progress.Writer) error {
		return w.WriteDailyScore(context.Background(), &score.DailyScore{
			UserID: "user-1",
			Date:   timeutil.Date(2024, 1, 1),
		})
	})

	require.Error(t, err)
	assert.True(t, shared.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTx_CommitsStreakReplacement(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM streaks").
		WithArgs("habit-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO streaks").
		WithArgs("habit-1", "user-1", "2024-01-01", sqlmock.AnyArg(), "2024-01-03", 3, true).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	s := New(db)
	err = s.WithinTx(context.Background(), func(w progress.Writer) error {
		return w.ReplaceStreaks(context.Background(), "user-1", "habit-1", []streak.Streak{{
			HabitID:   "habit-1",
			UserID:    "user-1",
			StartDate: timeutil.Date(2024, 1, 1),
			LastDate:  timeutil.Date(2024, 1, 3),
			Length:    3,
			IsActive:  true,
		}})
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTx_CallbackErrorRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	integrity := shared.NewDomainError("saga", "Commit", shared.ErrDataIntegrity, "bad")
	err = New(db).WithinTx(context.Background(), func(progress.Writer) error { return integrity })

	assert.ErrorIs(t, err, shared.ErrDataIntegrity)
	assert.False(t, shared.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	created := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	h := &habit.Habit{
		ID:           "habit-1",
		UserID:       "user-1",
		Name:         "Morning run",
		Category:     shared.CategoryPhysical,
		TrackingType: habit.TrackingBinary,
		Frequency:    habit.FrequencyDaily,
		Points:       5,
		IsActive:     true,
		CreatedAt:    created,
	}
	require.NoError(t, s.SaveHabit(ctx, h))

	got, err := s.GetHabit(ctx, "habit-1")
	require.NoError(t, err)
	assert.Equal(t, "Morning run", got.Name)
	assert.True(t, got.IsActive)
	assert.True(t, got.CreatedAt.Equal(created))

	_, err = s.GetHabit(ctx, "missing")
	assert.ErrorIs(t, err, shared.ErrHabitNotFound)

	mood := 4
	for day := 1; day <= 3; day++ {
		e := &habit.Entry{
			ID:         "entry-" + timeutil.FormatDate(timeutil.Date(2024, 1, day)),
			HabitID:    "habit-1",
			UserID:     "user-1",
			Date:       timeutil.Date(2024, 1, day),
			Status:     habit.StatusCompleted,
			RecordedAt: created.AddDate(0, 0, day),
		}
		if day == 2 {
			e.Mood = &mood
		}
		require.NoError(t, s.SaveEntry(ctx, e))
	}

	entries, err := s.GetEntries(ctx, habit.EntryFilter{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, timeutil.Date(2024, 1, 3), entries[0].Date)
	require.NotNil(t, entries[1].Mood)
	assert.Equal(t, 4, *entries[1].Mood)
	assert.Nil(t, entries[0].Value)

	ranged, err := s.GetEntries(ctx, habit.EntryFilter{
		UserID: "user-1",
		Range:  shared.DateRange{From: timeutil.Date(2024, 1, 2), To: timeutil.Date(2024, 1, 2)},
	})
	require.NoError(t, err)
	assert.Len(t, ranged, 1)

	// Same (habit, day) replaces the row.
	require.NoError(t, s.SaveEntry(ctx, &habit.Entry{
		ID: "entry-x", HabitID: "habit-1", UserID: "user-1",
		Date: timeutil.Date(2024, 1, 3), Status: habit.StatusSkipped, RecordedAt: created,
	}))
	e, err := s.GetEntry(ctx, "habit-1", timeutil.Date(2024, 1, 3))
	require.NoError(t, err)
	assert.Equal(t, habit.StatusSkipped, e.Status)
	assert.Equal(t, "entry-2024-01-03", e.ID)
}

func TestStore_DerivedState(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	now := time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveHabit(ctx, &habit.Habit{
		ID: "habit-1", UserID: "user-1", Name: "Read", Category: shared.CategoryDevelopment,
		TrackingType: habit.TrackingBinary, Frequency: habit.FrequencyDaily, IsActive: true, CreatedAt: now,
	}))

	pct := 50.0
	end := timeutil.Date(2024, 1, 1)
	err := s.WithinTx(ctx, func(w progress.Writer) error {
		if err := w.WriteDailyScore(ctx, &score.DailyScore{UserID: "user-1", Date: timeutil.Date(2024, 1, 2), TotalPoints: 8}); err != nil {
			return err
		}
		if err := w.WriteDailyScore(ctx, &score.DailyScore{UserID: "user-1", Date: timeutil.Date(2024, 1, 3), TotalPoints: 5, Percentile: &pct, Rank: 2}); err != nil {
			return err
		}
		if err := w.WriteDailyScore(ctx, &score.DailyScore{UserID: "user-2", Date: timeutil.Date(2024, 1, 3), TotalPoints: 9}); err != nil {
			return err
		}
		if err := w.ReplaceStreaks(ctx, "user-1", "habit-1", []streak.Streak{
			{HabitID: "habit-1", UserID: "user-1", StartDate: timeutil.Date(2024, 1, 3), LastDate: timeutil.Date(2024, 1, 3), Length: 1, IsActive: true},
			{HabitID: "habit-1", UserID: "user-1", StartDate: end, LastDate: end, EndDate: &end, Length: 1},
		}); err != nil {
			return err
		}
		if err := w.WriteLevelData(ctx, &level.UserLevelData{UserID: "user-1", TotalXP: 13, CurrentLevel: 1, NextLevelXP: 100, UpdatedAt: now}); err != nil {
			return err
		}
		u := achievement.Unlock{UserID: "user-1", Code: "primer-paso", Points: 10, UnlockedAt: now}
		if err := w.WriteAchievementUnlock(ctx, u); err != nil {
			return err
		}
		u.UnlockedAt = now.Add(time.Hour)
		return w.WriteAchievementUnlock(ctx, u)
	})
	require.NoError(t, err)

	ds, err := s.GetDailyScore(ctx, "user-1", timeutil.Date(2024, 1, 3))
	require.NoError(t, err)
	assert.Equal(t, 5, ds.TotalPoints)
	assert.Equal(t, shared.Rank(2), ds.Rank)
	require.NotNil(t, ds.Percentile)
	assert.InDelta(t, 50.0, *ds.Percentile, 0.001)

	_, err = s.GetDailyScore(ctx, "user-1", timeutil.Date(2024, 1, 9))
	assert.True(t, shared.IsNotFound(err))

	sum, err := s.SumDailyPoints(ctx, "user-1", timeutil.Date(2024, 1, 3))
	require.NoError(t, err)
	assert.Equal(t, 8, sum)

	peers, err := s.GetPeerTotals(ctx, timeutil.Date(2024, 1, 3), "user-1")
	require.NoError(t, err)
	assert.Equal(t, []int{9}, peers)

	runs, err := s.GetStreaks(ctx, "habit-1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.True(t, runs[0].IsActive)
	require.NotNil(t, runs[1].EndDate)
	assert.Equal(t, end, *runs[1].EndDate)

	active, err := s.GetActiveStreaks(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, active, 1)

	data, err := s.GetLevelData(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 13, data.TotalXP)

	_, err = s.GetLevelData(ctx, "user-9")
	assert.ErrorIs(t, err, shared.ErrLevelDataNotFound)

	unlocks, err := s.GetUnlocks(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, unlocks, 1)
	assert.True(t, unlocks[0].UnlockedAt.Equal(now))

	ids, err := s.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1"}, ids)
}

func TestStore_FailedTxLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(w progress.Writer) error {
		if err := w.WriteLevelData(ctx, &level.UserLevelData{UserID: "user-1", TotalXP: 40, UpdatedAt: time.Now()}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetLevelData(ctx, "user-1")
	assert.ErrorIs(t, err, shared.ErrLevelDataNotFound)
}
