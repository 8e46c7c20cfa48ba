package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/habit-hub/internal/domain/habit"
	"github.com/alem-hub/habit-hub/internal/domain/shared"
	"github.com/alem-hub/habit-hub/pkg/timeutil"
)

var day = timeutil.Date(2024, 1, 7)

func mkHabit(id string, cat shared.Category, points int) *habit.Habit {
	return &habit.Habit{
		ID:          id,
		UserID:      "user-1",
		Name:        id,
		Category:    cat,
		Frequency:   habit.FrequencyDaily,
		TargetValue: 10,
		Points:      points,
		IsActive:    true,
		CreatedAt:   timeutil.Date(2024, 1, 1),
	}
}

func mkEntry(habitID string, status habit.Status) *habit.Entry {
	return &habit.Entry{
		ID:      "e-" + habitID,
		HabitID: habitID,
		UserID:  "user-1",
		Date:    day,
		Status:  status,
	}
}

func fixture() []*habit.Habit {
	return []*habit.Habit{
		mkHabit("run", shared.CategoryPhysical, 8),
		mkHabit("read", shared.CategoryDevelopment, 5),
		mkHabit("journal", shared.CategoryReflection, 3),
		mkHabit("water", shared.CategoryNutrition, 4),
		mkHabit("sleep", shared.CategorySleep, 6),
	}
}

func TestCompute_Additivity(t *testing.T) {
	agg := NewAggregator(PartialNone)
	entries := []*habit.Entry{
		mkEntry("run", habit.StatusCompleted),
		mkEntry("read", habit.StatusCompleted),
		mkEntry("journal", habit.StatusSkipped),
		mkEntry("water", habit.StatusFailed),
		mkEntry("sleep", habit.StatusPartial),
	}

	s, err := agg.Compute("user-1", day, entries, fixture())
	require.NoError(t, err)

	assert.Equal(t, 13, s.TotalPoints)
	assert.Equal(t, s.TotalPoints, s.Categories.Sum())
	assert.Equal(t, 8, s.Categories.Physical)
	assert.Equal(t, 5, s.Categories.Get(shared.CategoryDevelopment))
	assert.Equal(t, 0, s.Categories.Reflection)
	assert.Equal(t, 2, s.CompletedHabits)
	assert.Equal(t, 5, s.TotalHabits)
	assert.Equal(t, 40, s.CompletionRate())
	assert.False(t, s.IsPerfectDay())
}

func TestCompute_Idempotent(t *testing.T) {
	agg := NewAggregator(PartialProportional)
	entries := []*habit.Entry{
		mkEntry("run", habit.StatusCompleted),
		mkEntry("read", habit.StatusCompleted),
	}

	first, err := agg.Compute("user-1", day, entries, fixture())
	require.NoError(t, err)
	second, err := agg.Compute("user-1", day, entries, fixture())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCompute_PartialPolicy(t *testing.T) {
	value := 7.5
	entry := mkEntry("run", habit.StatusPartial)
	entry.Value = &value

	tests := []struct {
		name   string
		policy PartialPolicy
		value  *float64
		want   int
	}{
		{"none ignores partial", PartialNone, &value, 0},
		{"proportional floors", PartialProportional, &value, 6},
		{"proportional caps at points", PartialProportional, ptr(25.0), 8},
		{"proportional without value", PartialProportional, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := *entry
			e.Value = tt.value

			s, err := NewAggregator(tt.policy).Compute("user-1", day, []*habit.Entry{&e}, fixture())
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.TotalPoints)
			assert.Equal(t, tt.want, s.Categories.Physical)
			assert.Equal(t, 0, s.CompletedHabits)
		})
	}
}

func TestCompute_TotalHabits(t *testing.T) {
	habits := fixture()
	habits[0].Deactivate()
	habits[1].CreatedAt = day.AddDate(0, 0, 1)

	weekly := mkHabit("yoga", shared.CategoryPhysical, 10)
	weekly.Frequency = habit.FrequencyWeekly
	weekly.CreatedAt = timeutil.Date(2024, 1, 6) // Saturday of the same week
	habits = append(habits, weekly)

	// Entry of a deactivated habit still earns its points.
	s, err := NewAggregator(PartialNone).Compute("user-1", day, []*habit.Entry{mkEntry("run", habit.StatusCompleted)}, habits)
	require.NoError(t, err)

	assert.Equal(t, 4, s.TotalHabits)
	assert.Equal(t, 8, s.TotalPoints)
}

func TestCompute_DataIntegrity(t *testing.T) {
	agg := NewAggregator(PartialNone)

	other := mkEntry("run", habit.StatusCompleted)
	other.UserID = "user-2"

	wrongDay := mkEntry("run", habit.StatusCompleted)
	wrongDay.Date = day.AddDate(0, 0, -1)

	tests := []struct {
		name    string
		entries []*habit.Entry
	}{
		{"unknown habit", []*habit.Entry{mkEntry("ghost", habit.StatusCompleted)}},
		{"foreign user", []*habit.Entry{other}},
		{"wrong date", []*habit.Entry{wrongDay}},
		{"duplicate", []*habit.Entry{mkEntry("run", habit.StatusCompleted), mkEntry("run", habit.StatusSkipped)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := agg.Compute("user-1", day, tt.entries, fixture())
			require.Error(t, err)
			assert.True(t, shared.IsDataIntegrity(err))
		})
	}
}

func TestApplyRank(t *testing.T) {
	s := &DailyScore{UserID: "user-1", Date: day, TotalPoints: 20}

	ApplyRank(s, []int{30, 30, 25, 20, 10, 5})
	assert.Equal(t, shared.Rank(3), s.Rank)
	require.NotNil(t, s.Percentile)
	assert.InDelta(t, 33.33, *s.Percentile, 0.001)

	ApplyRank(s, nil)
	assert.True(t, s.Rank.IsUnranked())
	assert.Nil(t, s.Percentile)
}

func TestParsePartialPolicy(t *testing.T) {
	p, err := ParsePartialPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PartialNone, p)

	_, err = ParsePartialPolicy("full")
	assert.True(t, shared.IsValidation(err))
}

func ptr(v float64) *float64 { return &v }
