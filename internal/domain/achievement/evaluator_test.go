package achievement

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/habit-hub/internal/domain/shared"
)

var now = time.Date(2024, 1, 7, 20, 0, 0, 0, time.UTC)

func TestStats_Satisfies(t *testing.T) {
	stats := Stats{
		TotalPoints:          56,
		LongestStreakByHabit: map[string]int{"run": 7, "read": 3},
		CompletionsByCategory: map[shared.Category]int{
			shared.CategoryPhysical: 7,
		},
		TotalCompletions:     10,
		ChallengeCompletions: 1,
		ForumActivity:        4,
	}

	tests := []struct {
		name string
		req  Requirement
		want bool
	}{
		{"streak reached", StreakRequirement(7), true},
		{"streak not reached", StreakRequirement(8), false},
		{"points reached", PointsRequirement(56), true},
		{"points not reached", PointsRequirement(57), false},
		{"category reached", CategoryRequirement(shared.CategoryPhysical, 7), true},
		{"category missing", CategoryRequirement(shared.CategorySleep, 1), false},
		{"challenge", ChallengeRequirement(1), true},
		{"forum", ForumRequirement(5), false},
		{"first habit", FirstHabitRequirement(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.req.Validate())
			assert.Equal(t, tt.want, stats.Satisfies(tt.req))
		})
	}

	assert.False(t, Stats{}.Satisfies(FirstHabitRequirement()))
}

func TestEvaluate_UnlocksAllQualifyingInOnePass(t *testing.T) {
	ev := NewEvaluator(EvaluatorConfig{})
	stats := Stats{
		TotalPoints:          56,
		LongestStreakByHabit: map[string]int{"run": 7},
		TotalCompletions:     7,
	}

	unlocks := ev.Evaluate("user-1", stats, DefaultCatalog(), nil, now)

	codes := Codes(unlocks)
	assert.ElementsMatch(t, []string{"primer-paso", "semana-de-fuego"}, codes)
	assert.Equal(t, 60, TotalPoints(unlocks))
	for _, u := range unlocks {
		assert.Equal(t, "user-1", u.UserID)
		assert.Equal(t, now, u.UnlockedAt)
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	ev := NewEvaluator(EvaluatorConfig{})
	stats := Stats{LongestStreakByHabit: map[string]int{"run": 30}, TotalCompletions: 30}
	catalog := DefaultCatalog()

	first := ev.Evaluate("user-1", stats, catalog, nil, now)
	require.NotEmpty(t, first)

	second := ev.Evaluate("user-1", stats, catalog, Codes(first), now.Add(time.Hour))
	assert.Empty(t, second)
}

func TestEvaluate_SkipsMalformedRequirement(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	var skipped []string
	ev := NewEvaluator(EvaluatorConfig{
		Logger:           logger,
		OnPredicateError: func(code string, _ error) { skipped = append(skipped, code) },
	})

	catalog := MustNewCatalog([]Achievement{
		{Code: "broken", Title: "Broken", Rarity: RarityCommon, Category: CategoryHabits, Points: 5,
			Requirement: Requirement{Kind: "moon_phase"}},
		{Code: "zero-days", Title: "Zero", Rarity: RarityCommon, Category: CategoryStreak, Points: 5,
			Requirement: StreakRequirement(0)},
		{Code: "ok", Title: "OK", Rarity: RarityCommon, Category: CategoryHabits, Points: 5,
			Requirement: FirstHabitRequirement()},
	})

	unlocks := ev.Evaluate("user-1", Stats{TotalCompletions: 1}, catalog, nil, now)

	require.Len(t, unlocks, 1)
	assert.Equal(t, "ok", unlocks[0].Code)
	assert.Equal(t, []string{"broken", "zero-days"}, skipped)
	assert.Contains(t, logs.String(), "skipping achievement with invalid requirement")
}

func TestRequirement_JSON(t *testing.T) {
	t.Run("typed union", func(t *testing.T) {
		var a Achievement
		err := json.Unmarshal([]byte(`{
			"code": "madrugador",
			"title": "Madrugador",
			"rarity": "rare",
			"category": "consistency",
			"points": 75,
			"requirement": {"type": "habit_category", "category": "morning", "count": 30}
		}`), &a)
		require.NoError(t, err)

		assert.Equal(t, CategoryRequirement(shared.CategoryMorning, 30), a.Requirement)
		assert.NoError(t, a.Requirement.Validate())

		out, err := json.Marshal(a.Requirement)
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"habit_category","category":"morning","count":30}`, string(out))
	})

	t.Run("malformed payload does not fail decoding", func(t *testing.T) {
		var r Requirement
		require.NoError(t, json.Unmarshal([]byte(`{"type":"streak","days":"seven"}`), &r))

		assert.Equal(t, KindStreak, r.Kind)
		err := r.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrInvalidRequirement)
	})

	t.Run("unknown kind", func(t *testing.T) {
		var r Requirement
		require.NoError(t, json.Unmarshal([]byte(`{"type":"telepathy"}`), &r))
		assert.ErrorIs(t, r.Validate(), shared.ErrInvalidRequirement)
	})
}

func TestNewCatalog(t *testing.T) {
	_, err := NewCatalog([]Achievement{
		{Code: "a", Title: "A"},
		{Code: "a", Title: "A again"},
	})
	assert.ErrorIs(t, err, shared.ErrInvalidCatalog)

	_, err = NewCatalog([]Achievement{{Title: "No code"}})
	assert.ErrorIs(t, err, shared.ErrInvalidCatalog)

	c := DefaultCatalog()
	a, ok := c.Get("semana-de-fuego")
	require.True(t, ok)
	assert.Equal(t, 50, a.Points)
	assert.Equal(t, StreakRequirement(7), a.Requirement)
}
