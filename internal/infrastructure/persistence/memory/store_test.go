package memory

import (
	"context"
	"errors"
	"testing"
	"time"

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

func entry(habitID string, day int, status habit.Status) *habit.Entry {
	return &habit.Entry{
		ID:      habitID + "-" + timeutil.FormatDate(timeutil.Date(2024, 1, day)),
		HabitID: habitID,
		UserID:  "user-1",
		Date:    timeutil.Date(2024, 1, day),
		Status:  status,
	}
}

func TestStore_EntriesNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	for _, e := range []*habit.Entry{
		entry("a", 1, habit.StatusCompleted),
		entry("a", 3, habit.StatusCompleted),
		entry("b", 2, habit.StatusSkipped),
		entry("a", 2, habit.StatusFailed),
	} {
		require.NoError(t, s.SaveEntry(ctx, e))
	}

	all, err := s.GetEntries(ctx, habit.EntryFilter{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "a-2024-01-03", all[0].ID)
	assert.Equal(t, "a-2024-01-02", all[1].ID)
	assert.Equal(t, "b-2024-01-02", all[2].ID)

	onlyA, err := s.GetEntries(ctx, habit.EntryFilter{
		UserID:  "user-1",
		HabitID: "a",
		Range:   shared.DateRange{From: timeutil.Date(2024, 1, 2)},
	})
	require.NoError(t, err)
	assert.Len(t, onlyA, 2)

	// Same (habit, date) overwrites.
	require.NoError(t, s.SaveEntry(ctx, entry("a", 3, habit.StatusSkipped)))
	got, err := s.GetEntry(ctx, "a", timeutil.Date(2024, 1, 3))
	require.NoError(t, err)
	assert.Equal(t, habit.StatusSkipped, got.Status)

	_, err = s.GetEntry(ctx, "a", timeutil.Date(2024, 1, 9))
	assert.ErrorIs(t, err, shared.ErrEntryNotFound)
}

func TestStore_WithinTxIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	day := timeutil.Date(2024, 1, 1)

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(w progress.Writer) error {
		if err := w.WriteDailyScore(ctx, &score.DailyScore{UserID: "user-1", Date: day, TotalPoints: 8}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetDailyScore(ctx, "user-1", day)
	assert.True(t, shared.IsNotFound(err))

	err = s.WithinTx(ctx, func(w progress.Writer) error {
		return w.WriteDailyScore(ctx, &score.DailyScore{UserID: "user-1", Date: day, TotalPoints: 8})
	})
	require.NoError(t, err)

	ds, err := s.GetDailyScore(ctx, "user-1", day)
	require.NoError(t, err)
	assert.Equal(t, 8, ds.TotalPoints)
}

func TestStore_CanceledBeforeApply(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())

	err := s.WithinTx(ctx, func(w progress.Writer) error {
		require.NoError(t, w.WriteLevelData(ctx, &level.UserLevelData{UserID: "user-1", TotalXP: 10}))
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.GetLevelData(context.Background(), "user-1")
	assert.ErrorIs(t, err, shared.ErrLevelDataNotFound)
}

func TestStore_DerivedReads(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	first := time.Date(2024, 1, 7, 10, 0, 0, 0, time.UTC)

	err := s.WithinTx(ctx, func(w progress.Writer) error {
		for d, pts := range map[int]int{1: 8, 2: 8, 3: 13} {
			if err := w.WriteDailyScore(ctx, &score.DailyScore{UserID: "user-1", Date: timeutil.Date(2024, 1, d), TotalPoints: pts}); err != nil {
				return err
			}
		}
		if err := w.WriteDailyScore(ctx, &score.DailyScore{UserID: "user-2", Date: timeutil.Date(2024, 1, 3), TotalPoints: 20}); err != nil {
			return err
		}
		if err := w.ReplaceStreaks(ctx, "user-1", "a", []streak.Streak{
			{HabitID: "a", UserID: "user-1", StartDate: timeutil.Date(2024, 1, 1), Length: 3, IsActive: true},
		}); err != nil {
			return err
		}
		if err := w.WriteAchievementUnlock(ctx, achievement.Unlock{UserID: "user-1", Code: "primer-paso", Points: 10, UnlockedAt: first}); err != nil {
			return err
		}
		return w.WriteAchievementUnlock(ctx, achievement.Unlock{UserID: "user-1", Code: "primer-paso", Points: 10, UnlockedAt: first.Add(time.Hour)})
	})
	require.NoError(t, err)

	sum, err := s.SumDailyPoints(ctx, "user-1", timeutil.Date(2024, 1, 3))
	require.NoError(t, err)
	assert.Equal(t, 16, sum)

	peers, err := s.GetPeerTotals(ctx, timeutil.Date(2024, 1, 3), "user-1")
	require.NoError(t, err)
	assert.Equal(t, []int{20}, peers)

	active, err := s.GetActiveStreaks(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, active["a"].Length)

	unlocks, err := s.GetUnlocks(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, unlocks, 1)
	assert.True(t, unlocks[0].UnlockedAt.Equal(first))

	// Empty run set clears the habit's streaks.
	require.NoError(t, s.WithinTx(ctx, func(w progress.Writer) error {
		return w.ReplaceStreaks(ctx, "user-1", "a", nil)
	}))
	runs, err := s.GetStreaks(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestStore_ListUserIDs(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for _, h := range []*habit.Habit{
		{ID: "h1", UserID: "user-b", IsActive: true},
		{ID: "h2", UserID: "user-a", IsActive: true},
		{ID: "h3", UserID: "user-b", IsActive: false, DisplayOrder: 1},
	} {
		require.NoError(t, s.SaveHabit(ctx, h))
	}

	ids, err := s.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-a", "user-b"}, ids)

	active, err := s.GetHabits(ctx, "user-b", true)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	all, err := s.GetHabits(ctx, "user-b", false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
