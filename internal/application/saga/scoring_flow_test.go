package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/habit-hub/internal/domain/achievement"
	"github.com/alem-hub/habit-hub/internal/domain/habit"
	"github.com/alem-hub/habit-hub/internal/domain/progress"
	"github.com/alem-hub/habit-hub/internal/domain/shared"
	"github.com/alem-hub/habit-hub/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/habit-hub/pkg/timeutil"
)

const testUser = "user-1"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) setDay(day time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = day.Add(12 * time.Hour)
}

type recordingBus struct {
	mu     sync.Mutex
	events []shared.Event
}

func (b *recordingBus) Publish(event shared.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

type failingCommitStore struct {
	*memory.Store
	err error
}

func (s *failingCommitStore) WithinTx(ctx context.Context, fn func(w progress.Writer) error) error {
	return s.Store.WithinTx(ctx, func(w progress.Writer) error {
		if err := fn(w); err != nil {
			return err
		}
		return s.err
	})
}

type fixture struct {
	store *memory.Store
	clock *testClock
	bus   *recordingBus
	flow  *ScoringFlow
}

func newFixture(t *testing.T, catalog *achievement.Catalog, store progress.Store) *fixture {
	t.Helper()

	mem := memory.NewStore()
	if store == nil {
		store = mem
	} else if fs, ok := store.(*failingCommitStore); ok {
		mem = fs.Store
	}

	f := &fixture{
		store: mem,
		clock: &testClock{now: timeutil.Date(2024, 1, 1).Add(12 * time.Hour)},
		bus:   &recordingBus{},
	}

	flow, err := NewScoringFlowBuilder().
		WithStore(store).
		WithCatalog(catalog).
		WithEventBus(f.bus).
		WithClock(f.clock).
		Build()
	require.NoError(t, err)
	f.flow = flow
	return f
}

func (f *fixture) addHabit(t *testing.T, id string, category shared.Category, points int) {
	t.Helper()
	h, err := habit.NewHabit(habit.NewHabitParams{
		ID:        id,
		UserID:    testUser,
		Name:      "Ejercicio Matutino",
		Category:  category,
		Points:    points,
		CreatedAt: timeutil.Date(2024, 1, 1),
	})
	require.NoError(t, err)
	require.NoError(t, f.store.SaveHabit(context.Background(), h))
}

func (f *fixture) record(t *testing.T, habitID string, day time.Time, status habit.Status) {
	t.Helper()
	e, err := habit.NewEntry(habit.NewEntryParams{
		ID:         fmt.Sprintf("%s-%s", habitID, timeutil.FormatDate(day)),
		HabitID:    habitID,
		UserID:     testUser,
		Date:       day,
		Status:     status,
		RecordedAt: day.Add(8 * time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, f.store.SaveEntry(context.Background(), e))
}

func onlyWeekOfFire(t *testing.T) *achievement.Catalog {
	t.Helper()
	a, ok := achievement.DefaultCatalog().Get("semana-de-fuego")
	require.True(t, ok)
	return achievement.MustNewCatalog([]achievement.Achievement{a})
}

func countEvents(events []shared.Event, eventType shared.EventType) int {
	n := 0
	for _, e := range events {
		if e.EventType() == eventType {
			n++
		}
	}
	return n
}

func TestScoringFlow_WeekOfFireScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, onlyWeekOfFire(t), nil)
	f.addHabit(t, "ejercicio", shared.CategoryPhysical, 8)

	var res *RecomputeResult
	for d := 1; d <= 7; d++ {
		day := timeutil.Date(2024, 1, d)
		f.clock.setDay(day)
		f.record(t, "ejercicio", day, habit.StatusCompleted)

		var err error
		res, err = f.flow.Recompute(ctx, testUser, day)
		require.NoError(t, err)
		assert.Equal(t, 8, res.DailyScore.TotalPoints)
		assert.Equal(t, 1, res.DailyScore.CompletedHabits)
		assert.Equal(t, 1, res.DailyScore.TotalHabits)
	}

	current := res.Streaks["ejercicio"]
	assert.Equal(t, 7, current.Length)
	assert.True(t, current.IsActive)
	assert.Nil(t, current.EndDate)

	require.Len(t, res.NewAchievements, 1)
	assert.Equal(t, "semana-de-fuego", res.NewAchievements[0].Code)
	assert.Equal(t, 50, res.NewAchievements[0].Points)

	assert.True(t, res.LevelChanged)
	assert.Equal(t, 1, res.PreviousLevel.Level)
	assert.Equal(t, 2, res.Level.Level)
	assert.Equal(t, 106, res.Level.TotalXP)
	require.NotNil(t, res.LevelUp)
	assert.Equal(t, 1, res.LevelUp.LevelsGained())

	data, err := f.store.GetLevelData(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 56, data.TotalPoints)
	assert.Equal(t, 106, data.TotalXP)
	assert.Equal(t, 2, data.CurrentLevel)
	assert.Equal(t, 6, data.CurrentLevelXP)
	assert.Equal(t, 7, data.LongestStreak)
	assert.Equal(t, 1, data.AchievementsUnlocked)

	assert.Equal(t, 1, countEvents(res.Events, shared.EventLevelUp))
	assert.Equal(t, 1, countEvents(res.Events, shared.EventAchievementUnlocked))
	assert.Equal(t, 1, countEvents(res.Events, shared.EventDailyScoreRecomputed))

	// Skipping the eighth day closes the streak.
	day8 := timeutil.Date(2024, 1, 8)
	f.clock.setDay(day8)
	f.record(t, "ejercicio", day8, habit.StatusSkipped)

	res, err = f.flow.Recompute(ctx, testUser, day8)
	require.NoError(t, err)
	assert.Equal(t, 0, res.DailyScore.TotalPoints)

	closed := res.Streaks["ejercicio"]
	assert.False(t, closed.IsActive)
	assert.Equal(t, 7, closed.Length)
	require.NotNil(t, closed.EndDate)
	assert.True(t, closed.EndDate.Equal(timeutil.Date(2024, 1, 7)))
	assert.Equal(t, 0, closed.Current())

	assert.False(t, res.LevelChanged)
	assert.Equal(t, 106, res.Level.TotalXP)
	assert.Empty(t, res.NewAchievements)
	assert.Equal(t, 1, countEvents(res.Events, shared.EventStreakBroken))
}

func TestScoringFlow_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, achievement.DefaultCatalog(), nil)
	f.addHabit(t, "ejercicio", shared.CategoryPhysical, 8)
	f.addHabit(t, "lectura", shared.CategoryDevelopment, 5)

	day := timeutil.Date(2024, 1, 1)
	f.record(t, "ejercicio", day, habit.StatusCompleted)
	f.record(t, "lectura", day, habit.StatusFailed)

	first, err := f.flow.Recompute(ctx, testUser, day)
	require.NoError(t, err)
	second, err := f.flow.Recompute(ctx, testUser, day)
	require.NoError(t, err)

	assert.Equal(t, first.DailyScore, second.DailyScore)
	assert.Equal(t, first.Streaks, second.Streaks)
	assert.Equal(t, first.Level, second.Level)

	// primer-paso is unlocked once and never again.
	require.Len(t, first.NewAchievements, 1)
	assert.Equal(t, "primer-paso", first.NewAchievements[0].Code)
	assert.Empty(t, second.NewAchievements)
	assert.False(t, second.LevelChanged)

	unlocks, err := f.store.GetUnlocks(ctx, testUser)
	require.NoError(t, err)
	assert.Len(t, unlocks, 1)
	assert.Equal(t, 18, second.Level.TotalXP)
}

func TestScoringFlow_CommitFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	store := &failingCommitStore{Store: memory.NewStore(), err: errors.New("connection reset")}
	f := newFixture(t, achievement.DefaultCatalog(), store)
	f.addHabit(t, "ejercicio", shared.CategoryPhysical, 8)

	day := timeutil.Date(2024, 1, 1)
	f.record(t, "ejercicio", day, habit.StatusCompleted)

	_, err := f.flow.Recompute(ctx, testUser, day)
	require.Error(t, err)
	assert.True(t, shared.IsRetryable(err))

	var flowErr *ScoringFlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, StepCommit, flowErr.Step)

	_, err = f.store.GetDailyScore(ctx, testUser, day)
	assert.True(t, shared.IsNotFound(err))
	_, err = f.store.GetLevelData(ctx, testUser)
	assert.ErrorIs(t, err, shared.ErrLevelDataNotFound)
	unlocks, err := f.store.GetUnlocks(ctx, testUser)
	require.NoError(t, err)
	assert.Empty(t, unlocks)
	assert.Empty(t, f.bus.events)
}

func TestScoringFlow_DataIntegrityFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, achievement.DefaultCatalog(), nil)
	f.addHabit(t, "ejercicio", shared.CategoryPhysical, 8)

	day := timeutil.Date(2024, 1, 1)
	f.record(t, "ghost", day, habit.StatusCompleted)

	_, err := f.flow.Recompute(ctx, testUser, day)
	require.Error(t, err)
	assert.True(t, shared.IsDataIntegrity(err))
	assert.False(t, shared.IsRetryable(err))

	_, err = f.store.GetDailyScore(ctx, testUser, day)
	assert.True(t, shared.IsNotFound(err))
}

func TestScoringFlow_CanceledContext(t *testing.T) {
	f := newFixture(t, achievement.DefaultCatalog(), nil)
	f.addHabit(t, "ejercicio", shared.CategoryPhysical, 8)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.flow.Recompute(ctx, testUser, timeutil.Date(2024, 1, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScoringFlow_InvalidInput(t *testing.T) {
	f := newFixture(t, achievement.DefaultCatalog(), nil)

	_, err := f.flow.Recompute(context.Background(), "", timeutil.Date(2024, 1, 1))
	assert.True(t, shared.IsValidation(err))

	_, err = f.flow.Recompute(context.Background(), testUser, time.Time{})
	assert.True(t, shared.IsValidation(err))
}

func TestScoringFlow_RejectsFutureDate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, achievement.DefaultCatalog(), nil)
	f.addHabit(t, "ejercicio", shared.CategoryPhysical, 8)

	for d := 1; d <= 3; d++ {
		f.record(t, "ejercicio", timeutil.Date(2024, 1, d), habit.StatusCompleted)
	}
	today := timeutil.Date(2024, 1, 3)
	f.clock.setDay(today)

	res, err := f.flow.Recompute(ctx, testUser, today)
	require.NoError(t, err)
	require.True(t, res.Streaks["ejercicio"].IsActive)

	f.bus.mu.Lock()
	published := len(f.bus.events)
	f.bus.mu.Unlock()

	future := timeutil.Date(2024, 2, 1)
	_, err = f.flow.Recompute(ctx, testUser, future)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrFutureTimestamp)
	assert.True(t, shared.IsValidation(err))

	_, err = f.store.GetDailyScore(ctx, testUser, future)
	assert.True(t, shared.IsNotFound(err))

	runs, err := f.store.GetStreaks(ctx, "ejercicio")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].IsActive)
	assert.Equal(t, 3, runs[0].Length)
	assert.Nil(t, runs[0].EndDate)

	f.bus.mu.Lock()
	defer f.bus.mu.Unlock()
	assert.Len(t, f.bus.events, published)
	assert.Zero(t, countEvents(f.bus.events, shared.EventStreakBroken))
}

type userGate map[string]bool

func (g userGate) PeerRankingFor(userID string) bool        { return g[userID] }
func (g userGate) AchievementBonusesFor(userID string) bool { return g[userID] }

func TestScoringFlow_FeaturesAreDecidedPerUser(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	day := timeutil.Date(2024, 1, 1)

	for _, userID := range []string{"user-1", "user-2"} {
		h, err := habit.NewHabit(habit.NewHabitParams{
			ID:        "ejercicio-" + userID,
			UserID:    userID,
			Name:      "Ejercicio Matutino",
			Category:  shared.CategoryPhysical,
			Points:    8,
			CreatedAt: day,
		})
		require.NoError(t, err)
		require.NoError(t, store.SaveHabit(ctx, h))

		e, err := habit.NewEntry(habit.NewEntryParams{
			ID:         "entry-" + userID,
			HabitID:    h.ID,
			UserID:     userID,
			Date:       day,
			Status:     habit.StatusCompleted,
			RecordedAt: day.Add(8 * time.Hour),
		})
		require.NoError(t, err)
		require.NoError(t, store.SaveEntry(ctx, e))
	}

	cfg := DefaultScoringFlowConfig()
	cfg.Features = userGate{"user-1": true}
	flow, err := NewScoringFlowBuilder().
		WithStore(store).
		WithCatalog(achievement.DefaultCatalog()).
		WithClock(&testClock{now: day.Add(12 * time.Hour)}).
		WithConfig(cfg).
		Build()
	require.NoError(t, err)

	off, err := flow.Recompute(ctx, "user-2", day)
	require.NoError(t, err)
	assert.Equal(t, shared.Unranked, off.DailyScore.Rank)
	assert.Nil(t, off.DailyScore.Percentile)
	require.Len(t, off.NewAchievements, 1)
	assert.Zero(t, off.NewAchievements[0].Points)
	assert.Equal(t, 8, off.Level.TotalXP)

	on, err := flow.Recompute(ctx, "user-1", day)
	require.NoError(t, err)
	assert.Equal(t, shared.Rank(1), on.DailyScore.Rank)
	assert.NotNil(t, on.DailyScore.Percentile)
	require.Len(t, on.NewAchievements, 1)
	assert.Equal(t, 10, on.NewAchievements[0].Points)
	assert.Equal(t, 18, on.Level.TotalXP)
}

func TestScoringFlow_ConcurrentRecomputesSerialize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, achievement.DefaultCatalog(), nil)
	f.addHabit(t, "ejercicio", shared.CategoryPhysical, 8)

	day := timeutil.Date(2024, 1, 1)
	f.record(t, "ejercicio", day, habit.StatusCompleted)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.flow.Recompute(ctx, testUser, day)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	unlocks, err := f.store.GetUnlocks(ctx, testUser)
	require.NoError(t, err)
	assert.Len(t, unlocks, 1)

	data, err := f.store.GetLevelData(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 18, data.TotalXP)
}

func TestBuilder_RequiresStore(t *testing.T) {
	_, err := NewScoringFlowBuilder().Build()
	assert.Error(t, err)
}
