// Package saga contains complex business processes that orchestrate
// multiple domain operations in a coordinated manner.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alem-hub/habit-hub/internal/domain/achievement"
	"github.com/alem-hub/habit-hub/internal/domain/habit"
	"github.com/alem-hub/habit-hub/internal/domain/level"
	"github.com/alem-hub/habit-hub/internal/domain/progress"
	"github.com/alem-hub/habit-hub/internal/domain/score"
	"github.com/alem-hub/habit-hub/internal/domain/shared"
	"github.com/alem-hub/habit-hub/internal/domain/streak"
	"github.com/alem-hub/habit-hub/internal/infrastructure/lock"
	"github.com/alem-hub/habit-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCORING FLOW SAGA
// Recompute of derived state for one (user, date):
// Acquire Lock → Load → Score → Streaks → Level → Achievements (≤ N passes,
//
//	level re-run after each) → Commit (one unit of work) → Invalidate Cache →
//	Publish Events
//
// Stages run in this fixed order. Nothing is written before Commit, so a
// failure or cancellation at any earlier stage leaves stored state untouched.
// ══════════════════════════════════════════════════════════════════════════════

// FlowStep represents a stage of the scoring flow.
type FlowStep string

const (
	StepAcquireLock  FlowStep = "acquire_lock"
	StepLoad         FlowStep = "load"
	StepScore        FlowStep = "score"
	StepStreaks      FlowStep = "streaks"
	StepLevel        FlowStep = "level"
	StepAchievements FlowStep = "achievements"
	StepCommit       FlowStep = "commit"
	StepInvalidate   FlowStep = "invalidate_cache"
	StepPublish      FlowStep = "publish_events"
	StepComplete     FlowStep = "complete"
)

// Outcome labels used for metrics.
const (
	OutcomeSuccess   = "success"
	OutcomeIntegrity = "data_integrity"
	OutcomeTransient = "transient"
	OutcomeCanceled  = "canceled"
	OutcomeInvalid   = "invalid"
)

// RecomputeResult is the bundle returned to the caller after a recompute.
type RecomputeResult struct {
	// UserID - the user whose state was recomputed.
	UserID string

	// Date - the recomputed calendar day.
	Date time.Time

	// DailyScore - the overwritten score for Date.
	DailyScore *score.DailyScore

	// Streaks - the latest streak of every habit, keyed by habit ID.
	Streaks map[string]streak.Streak

	// LevelChanged - true when the level differs from the stored one.
	LevelChanged bool

	// PreviousLevel - progress before this recompute.
	PreviousLevel level.Progress

	// Level - progress after achievements were applied.
	Level level.Progress

	// LevelUp is set when the level increased.
	LevelUp *level.LevelUp

	// NewAchievements - achievements unlocked by this recompute.
	NewAchievements []achievement.Unlock

	// Events - domain events emitted by this recompute.
	Events []shared.Event

	// Duration - wall time of the recompute.
	Duration time.Duration
}

// HasNewAchievements returns true if any achievements were unlocked.
func (r *RecomputeResult) HasNewAchievements() bool {
	return len(r.NewAchievements) > 0
}

// scoringState tracks the current state of one recompute.
type scoringState struct {
	CurrentStep FlowStep
	UserID      string
	Date        time.Time
	Reference   time.Time
	Now         time.Time

	Habits      []*habit.Habit
	DayEntries  []*habit.Entry
	History     []*habit.Entry
	PriorLevel  *level.UserLevelData
	PriorActive map[string]streak.Streak
	Unlocked    []achievement.Unlock
	External    habit.ExternalStats
	OtherPoints int
	PeerTotals  []int

	PeerRanking bool
	Bonuses     bool

	DailyScore *score.DailyScore
	Runs       map[string][]streak.Streak
	Current    map[string]streak.Streak

	TotalPoints int
	TotalXP     int
	Progress    level.Progress
	Stats       achievement.Stats
	NewUnlocks  []achievement.Unlock

	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// COLLABORATORS
// ══════════════════════════════════════════════════════════════════════════════

// StreakCache is the read-side streak cache invalidated after each commit.
type StreakCache interface {
	Invalidate(ctx context.Context, habitIDs ...string) error
}

// FeatureGate decides per-user rollouts. It is asked once per recompute.
type FeatureGate interface {
	PeerRankingFor(userID string) bool
	AchievementBonusesFor(userID string) bool
}

type allFeatures struct{}

func (allFeatures) PeerRankingFor(string) bool        { return true }
func (allFeatures) AchievementBonusesFor(string) bool { return true }

// Metrics receives recompute observations.
type Metrics interface {
	ObserveRecompute(outcome string, duration time.Duration)
	AchievementsUnlocked(n int)
	LevelUp()
	PredicateError(code string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveRecompute(string, time.Duration) {}
func (noopMetrics) AchievementsUnlocked(int)               {}
func (noopMetrics) LevelUp()                               {}
func (noopMetrics) PredicateError(string)                  {}

type noopCache struct{}

func (noopCache) Invalidate(context.Context, ...string) error { return nil }

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ScoringFlowConfig contains configuration for the scoring flow saga.
type ScoringFlowConfig struct {
	// PartialPolicy - how PARTIAL entries are credited.
	PartialPolicy score.PartialPolicy

	// MaxAchievementPasses bounds the achievement → level loop.
	MaxAchievementPasses int

	// Features decides per user whether Rank/Percentile are filled and
	// whether achievement points count toward XP. Nil enables both.
	Features FeatureGate

	// Logger - structured logger.
	Logger *slog.Logger
}

// DefaultScoringFlowConfig returns default configuration.
func DefaultScoringFlowConfig() ScoringFlowConfig {
	return ScoringFlowConfig{
		PartialPolicy:        score.PartialNone,
		MaxAchievementPasses: 2,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SCORING FLOW SAGA IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ScoringFlow orchestrates the full recompute pipeline.
type ScoringFlow struct {
	// Dependencies
	store     progress.Store
	locker    lock.Locker
	levels    *level.Table
	catalog   *achievement.Catalog
	stats     habit.StatsSource
	cache     StreakCache
	publisher shared.EventPublisher
	clock     timeutil.Clock
	metrics   Metrics
	logger    *slog.Logger

	// Engines
	aggregator *score.Aggregator
	calculator *streak.Calculator
	evaluator  *achievement.Evaluator

	// Configuration
	maxPasses int
	features  FeatureGate
}

// Recompute runs the complete recompute for (userID, date).
// Calling it twice with unchanged entries yields the same score, streaks and level.
func (f *ScoringFlow) Recompute(ctx context.Context, userID string, date time.Time) (*RecomputeResult, error) {
	now := f.clock.Now().UTC()
	today := timeutil.Today(f.clock)
	date = timeutil.DateOf(date)

	state := &scoringState{
		CurrentStep: StepAcquireLock,
		UserID:      userID,
		Date:        date,
		Reference:   today,
		Now:         now,
		PeerRanking: f.features.PeerRankingFor(userID),
		Bonuses:     f.features.AchievementBonusesFor(userID),
	}

	result, err := f.run(ctx, state)
	duration := f.clock.Now().Sub(now)

	if err != nil {
		outcome := classifyOutcome(err)
		f.metrics.ObserveRecompute(outcome, duration)
		f.logger.Warn("recompute failed",
			"user_id", userID,
			"date", timeutil.FormatDate(date),
			"step", string(state.CurrentStep),
			"outcome", outcome,
			"error", err,
		)
		return nil, err
	}

	result.Duration = duration
	f.metrics.ObserveRecompute(OutcomeSuccess, duration)
	f.logger.Debug("recompute completed",
		"user_id", userID,
		"date", timeutil.FormatDate(date),
		"total_points", result.DailyScore.TotalPoints,
		"level", result.Level.Level,
		"new_achievements", len(result.NewAchievements),
		"duration", duration,
	)
	return result, nil
}

func (f *ScoringFlow) run(ctx context.Context, state *scoringState) (*RecomputeResult, error) {
	if err := shared.RequireID("scoring", "Recompute", "user id", state.UserID); err != nil {
		return nil, f.wrapError(state, err)
	}
	if state.Date.IsZero() {
		return nil, f.wrapError(state, shared.NewDomainError("scoring", "Recompute", shared.ErrEmptyValue, "date is required"))
	}
	// Серии считаются относительно сегодняшнего дня, будущие даты запрещены.
	if state.Date.After(state.Reference) {
		return nil, f.wrapError(state, shared.NewDomainError("scoring", "Recompute", shared.ErrFutureTimestamp, "recompute date is in the future"))
	}

	// Step 1: Acquire per-user lock
	unlock, err := f.locker.Lock(ctx, lockKey(state.UserID))
	if err != nil {
		if ctx.Err() != nil {
			return nil, f.wrapError(state, err)
		}
		return nil, f.wrapError(state, shared.WrapError("scoring", "Lock", shared.ErrLockNotAcquired, "recompute lock", err))
	}
	defer unlock()

	// Step 2: Load
	state.CurrentStep = StepLoad
	if err := f.stepLoad(ctx, state); err != nil {
		return nil, f.wrapError(state, err)
	}

	// Step 3: Daily score
	state.CurrentStep = StepScore
	if err := f.stepScore(state); err != nil {
		return nil, f.wrapError(state, err)
	}

	// Step 4: Streaks
	state.CurrentStep = StepStreaks
	if err := f.stepStreaks(state); err != nil {
		return nil, f.wrapError(state, err)
	}

	// Step 5: Totals and level
	state.CurrentStep = StepLevel
	if err := f.stepLevel(state); err != nil {
		return nil, f.wrapError(state, err)
	}

	// Step 6: Achievements, re-running the level after each unlocking pass
	state.CurrentStep = StepAchievements
	if err := f.stepAchievements(state); err != nil {
		return nil, f.wrapError(state, err)
	}

	previous, err := f.previousProgress(state)
	if err != nil {
		return nil, f.wrapError(state, err)
	}

	// Step 7: Commit everything in one unit of work
	state.CurrentStep = StepCommit
	if err := ctx.Err(); err != nil {
		return nil, f.wrapError(state, err)
	}
	if err := f.stepCommit(ctx, state); err != nil {
		return nil, f.wrapError(state, err)
	}

	// Step 8: Invalidate read cache (non-critical)
	state.CurrentStep = StepInvalidate
	f.stepInvalidate(ctx, state)

	// Step 9: Build and publish events (non-critical)
	state.CurrentStep = StepPublish
	result := f.buildResult(state, previous)
	f.stepPublish(state)
	result.Events = state.Events

	state.CurrentStep = StepComplete
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SAGA STEPS
// ══════════════════════════════════════════════════════════════════════════════

// stepLoad reads everything the pipeline needs. Nothing is written here.
func (f *ScoringFlow) stepLoad(ctx context.Context, state *scoringState) error {
	var err error

	if state.Habits, err = f.store.GetHabits(ctx, state.UserID, false); err != nil {
		return classifyStoreError("LoadHabits", err)
	}

	state.DayEntries, err = f.store.GetEntries(ctx, habit.EntryFilter{
		UserID: state.UserID,
		Range:  shared.SingleDay(state.Date),
	})
	if err != nil {
		return classifyStoreError("LoadDayEntries", err)
	}

	state.History, err = f.store.GetEntries(ctx, habit.EntryFilter{
		UserID: state.UserID,
		Range:  shared.Until(state.Reference),
	})
	if err != nil {
		return classifyStoreError("LoadHistory", err)
	}

	state.PriorLevel, err = f.store.GetLevelData(ctx, state.UserID)
	if err != nil {
		if !shared.IsNotFound(err) {
			return classifyStoreError("LoadLevel", err)
		}
		state.PriorLevel = nil
	}

	if state.PriorActive, err = f.store.GetActiveStreaks(ctx, state.UserID); err != nil {
		return classifyStoreError("LoadStreaks", err)
	}

	if state.Unlocked, err = f.store.GetUnlocks(ctx, state.UserID); err != nil {
		return classifyStoreError("LoadUnlocks", err)
	}

	if state.OtherPoints, err = f.store.SumDailyPoints(ctx, state.UserID, state.Date); err != nil {
		return classifyStoreError("SumPoints", err)
	}

	if state.PeerRanking {
		if state.PeerTotals, err = f.store.GetPeerTotals(ctx, state.Date, state.UserID); err != nil {
			return classifyStoreError("LoadPeers", err)
		}
	}

	if state.External, err = f.stats.GetExternalStats(ctx, state.UserID); err != nil {
		// External counters only gate a few achievements; the recompute proceeds without them.
		f.logger.Warn("external stats unavailable", "user_id", state.UserID, "error", err)
		state.External = habit.ExternalStats{}
	}

	return nil
}

// stepScore computes the daily score with overwrite semantics.
func (f *ScoringFlow) stepScore(state *scoringState) error {
	ds, err := f.aggregator.Compute(state.UserID, state.Date, state.DayEntries, state.Habits)
	if err != nil {
		return err
	}
	if state.PeerRanking {
		score.ApplyRank(ds, state.PeerTotals)
	}
	state.DailyScore = ds
	return nil
}

// stepStreaks recomputes every habit's runs from the entry log.
func (f *ScoringFlow) stepStreaks(state *scoringState) error {
	byHabit := habit.GroupByHabit(state.History)
	known := habit.IndexByID(state.Habits)

	for habitID := range byHabit {
		if _, ok := known[habitID]; !ok {
			return shared.IntegrityError("scoring", "Streaks", "entries reference unknown habit %s", habitID)
		}
	}

	state.Runs = make(map[string][]streak.Streak, len(state.Habits))
	state.Current = make(map[string]streak.Streak, len(state.Habits))

	for _, h := range state.Habits {
		runs, err := f.calculator.Runs(h, byHabit[h.ID], state.Reference)
		if err != nil {
			return err
		}
		state.Runs[h.ID] = runs

		current := streak.Streak{HabitID: h.ID, UserID: h.UserID}
		if len(runs) > 0 {
			current = runs[0]
		}
		state.Current[h.ID] = current
	}
	return nil
}

// stepLevel derives totals from stored daily scores plus the fresh one.
func (f *ScoringFlow) stepLevel(state *scoringState) error {
	state.TotalPoints = state.OtherPoints + state.DailyScore.TotalPoints
	state.TotalXP = state.TotalPoints
	if state.Bonuses {
		state.TotalXP += achievement.TotalPoints(state.Unlocked)
	}

	p, err := f.levels.Compute(state.TotalXP)
	if err != nil {
		return err
	}
	state.Progress = p
	state.Stats = f.buildStats(state)
	return nil
}

// stepAchievements evaluates the catalog at most maxPasses times.
// Each unlocking pass feeds its bonus back into XP and the level.
func (f *ScoringFlow) stepAchievements(state *scoringState) error {
	codes := achievement.Codes(state.Unlocked)

	for pass := 0; pass < f.maxPasses; pass++ {
		unlocks := f.evaluator.Evaluate(state.UserID, state.Stats, f.catalog, codes, state.Now)
		if len(unlocks) == 0 {
			break
		}

		bonus := 0
		for i := range unlocks {
			if !state.Bonuses {
				unlocks[i].Points = 0
			}
			bonus += unlocks[i].Points
			codes = append(codes, unlocks[i].Code)
		}
		state.NewUnlocks = append(state.NewUnlocks, unlocks...)

		state.TotalXP += bonus
		state.Stats = state.Stats.WithBonus(bonus)

		p, err := f.levels.Compute(state.TotalXP)
		if err != nil {
			return err
		}
		state.Progress = p
	}
	return nil
}

// stepCommit stages all writes and commits them atomically.
func (f *ScoringFlow) stepCommit(ctx context.Context, state *scoringState) error {
	data := &level.UserLevelData{
		UserID:               state.UserID,
		LongestStreak:        state.longestStreak(),
		TotalPoints:          state.TotalPoints,
		AchievementsUnlocked: len(state.Unlocked) + len(state.NewUnlocks),
		UpdatedAt:            state.Now,
	}
	data.Apply(state.Progress)

	err := f.store.WithinTx(ctx, func(w progress.Writer) error {
		if err := w.WriteDailyScore(ctx, state.DailyScore); err != nil {
			return err
		}
		for _, h := range state.Habits {
			if err := w.ReplaceStreaks(ctx, state.UserID, h.ID, state.Runs[h.ID]); err != nil {
				return err
			}
		}
		if err := w.WriteLevelData(ctx, data); err != nil {
			return err
		}
		for _, u := range state.NewUnlocks {
			if err := w.WriteAchievementUnlock(ctx, u); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return classifyStoreError("Commit", err)
	}
	return nil
}

// stepInvalidate drops cached streaks of the user's habits.
func (f *ScoringFlow) stepInvalidate(ctx context.Context, state *scoringState) {
	ids := make([]string, 0, len(state.Habits))
	for _, h := range state.Habits {
		ids = append(ids, h.ID)
	}
	if err := f.cache.Invalidate(ctx, ids...); err != nil {
		f.logger.Warn("streak cache invalidation failed", "user_id", state.UserID, "error", err)
	}
}

// stepPublish publishes the collected events; failures are logged only.
func (f *ScoringFlow) stepPublish(state *scoringState) {
	if f.publisher == nil {
		return
	}
	for _, event := range state.Events {
		if err := f.publisher.Publish(event); err != nil {
			f.logger.Warn("event publish failed",
				"event_type", string(event.EventType()),
				"user_id", state.UserID,
				"error", err,
			)
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func lockKey(userID string) string {
	return "recompute:" + userID
}

// previousProgress returns the level before this recompute (level 1 for new users).
func (f *ScoringFlow) previousProgress(state *scoringState) (level.Progress, error) {
	if state.PriorLevel == nil {
		return f.levels.Compute(0)
	}
	return f.levels.Compute(state.PriorLevel.TotalXP)
}

func (s *scoringState) longestStreak() int {
	best := 0
	for _, runs := range s.Runs {
		if n := streak.Longest(runs); n > best {
			best = n
		}
	}
	return best
}

// buildStats assembles the achievement snapshot from the full history.
func (f *ScoringFlow) buildStats(state *scoringState) achievement.Stats {
	byID := habit.IndexByID(state.Habits)
	stats := achievement.Stats{
		TotalPoints:           state.TotalXP,
		LongestStreakByHabit:  make(map[string]int, len(state.Runs)),
		StreaksByCategory:     make(map[shared.Category]int),
		CompletionsByCategory: make(map[shared.Category]int),
		ChallengeCompletions:  state.External.ChallengeCompletions,
		ForumActivity:         state.External.ForumActivity,
	}

	for habitID, runs := range state.Runs {
		longest := streak.Longest(runs)
		stats.LongestStreakByHabit[habitID] = longest
		if h, ok := byID[habitID]; ok && longest > stats.StreaksByCategory[h.Category] {
			stats.StreaksByCategory[h.Category] = longest
		}
	}

	for _, e := range state.History {
		if !e.IsCompleted() {
			continue
		}
		stats.TotalCompletions++
		if h, ok := byID[e.HabitID]; ok {
			stats.CompletionsByCategory[h.Category]++
		}
	}
	return stats
}

// buildResult assembles the result bundle and the events to publish.
func (f *ScoringFlow) buildResult(state *scoringState, previous level.Progress) *RecomputeResult {
	result := &RecomputeResult{
		UserID:          state.UserID,
		Date:            state.Date,
		DailyScore:      state.DailyScore,
		Streaks:         state.Current,
		PreviousLevel:   previous,
		Level:           state.Progress,
		LevelChanged:    previous.Level != state.Progress.Level,
		NewAchievements: state.NewUnlocks,
	}

	ds := state.DailyScore
	state.Events = append(state.Events, shared.NewDailyScoreRecomputedEvent(
		state.UserID, state.Date, ds.TotalPoints, ds.CompletedHabits, ds.TotalHabits, state.Now))

	for _, h := range state.Habits {
		prev, wasActive := state.PriorActive[h.ID]
		cur := state.Current[h.ID]

		if wasActive && !(cur.IsActive && cur.StartDate.Equal(prev.StartDate)) {
			length, end := prev.Length, prev.LastDate
			for _, r := range state.Runs[h.ID] {
				if r.StartDate.Equal(prev.StartDate) {
					length, end = r.Length, r.LastDate
					break
				}
			}
			state.Events = append(state.Events, shared.NewStreakBrokenEvent(state.UserID, h.ID, length, end, state.Now))
		}
		if cur.IsActive && (!wasActive || !cur.StartDate.Equal(prev.StartDate)) {
			state.Events = append(state.Events, shared.NewStreakStartedEvent(state.UserID, h.ID, cur.StartDate, state.Now))
		}
	}

	if up, ok := level.DetectLevelUp(previous, state.Progress); ok {
		result.LevelUp = &up
		f.metrics.LevelUp()
		state.Events = append(state.Events, shared.NewLevelUpEvent(
			state.UserID, up.From.Level, up.To.Level, up.To.Name, up.To.Emoji, up.To.TotalXP, state.Now))
	}

	if len(state.NewUnlocks) > 0 {
		f.metrics.AchievementsUnlocked(len(state.NewUnlocks))
	}
	for _, u := range state.NewUnlocks {
		a, _ := f.catalog.Get(u.Code)
		state.Events = append(state.Events, shared.NewAchievementUnlockedEvent(
			state.UserID, u.Code, a.Title, string(a.Rarity), u.Points, state.Now))
	}

	return result
}

// classifyStoreError keeps domain errors and context errors as they are and
// marks anything else coming from the store as transient.
func classifyStoreError(op string, err error) error {
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
	return shared.TransientError("scoring", op, err)
}

func classifyOutcome(err error) string {
	switch {
	case shared.IsDataIntegrity(err):
		return OutcomeIntegrity
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	case shared.IsRetryable(err):
		return OutcomeTransient
	default:
		return OutcomeInvalid
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// ScoringFlowError represents an error during the scoring flow.
type ScoringFlowError struct {
	Step   FlowStep
	UserID string
	Date   time.Time
	Cause  error
}

// Error implements the error interface.
func (e *ScoringFlowError) Error() string {
	return fmt.Sprintf("scoring_flow: %s failed for user %s on %s: %v",
		e.Step, e.UserID, timeutil.FormatDate(e.Date), e.Cause)
}

// Unwrap returns the underlying error.
func (e *ScoringFlowError) Unwrap() error {
	return e.Cause
}

func (f *ScoringFlow) wrapError(state *scoringState, err error) error {
	return &ScoringFlowError{
		Step:   state.CurrentStep,
		UserID: state.UserID,
		Date:   state.Date,
		Cause:  err,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SCORING FLOW BUILDER (Fluent API)
// ══════════════════════════════════════════════════════════════════════════════

// ScoringFlowBuilder provides a fluent API for building ScoringFlow.
type ScoringFlowBuilder struct {
	store     progress.Store
	locker    lock.Locker
	levels    *level.Table
	catalog   *achievement.Catalog
	stats     habit.StatsSource
	cache     StreakCache
	publisher shared.EventPublisher
	clock     timeutil.Clock
	metrics   Metrics
	config    ScoringFlowConfig
}

// NewScoringFlowBuilder creates a new builder.
func NewScoringFlowBuilder() *ScoringFlowBuilder {
	return &ScoringFlowBuilder{
		config: DefaultScoringFlowConfig(),
	}
}

// WithStore sets the store.
func (b *ScoringFlowBuilder) WithStore(store progress.Store) *ScoringFlowBuilder {
	b.store = store
	return b
}

// WithLocker sets the per-user locker.
func (b *ScoringFlowBuilder) WithLocker(l lock.Locker) *ScoringFlowBuilder {
	b.locker = l
	return b
}

// WithLevels sets the level table.
func (b *ScoringFlowBuilder) WithLevels(t *level.Table) *ScoringFlowBuilder {
	b.levels = t
	return b
}

// WithCatalog sets the achievement catalog.
func (b *ScoringFlowBuilder) WithCatalog(c *achievement.Catalog) *ScoringFlowBuilder {
	b.catalog = c
	return b
}

// WithStatsSource sets the external counters source.
func (b *ScoringFlowBuilder) WithStatsSource(s habit.StatsSource) *ScoringFlowBuilder {
	b.stats = s
	return b
}

// WithStreakCache sets the streak read cache.
func (b *ScoringFlowBuilder) WithStreakCache(c StreakCache) *ScoringFlowBuilder {
	b.cache = c
	return b
}

// WithEventBus sets the event publisher.
func (b *ScoringFlowBuilder) WithEventBus(p shared.EventPublisher) *ScoringFlowBuilder {
	b.publisher = p
	return b
}

// WithClock sets the clock.
func (b *ScoringFlowBuilder) WithClock(c timeutil.Clock) *ScoringFlowBuilder {
	b.clock = c
	return b
}

// WithMetrics sets the metrics sink.
func (b *ScoringFlowBuilder) WithMetrics(m Metrics) *ScoringFlowBuilder {
	b.metrics = m
	return b
}

// WithConfig sets the configuration.
func (b *ScoringFlowBuilder) WithConfig(config ScoringFlowConfig) *ScoringFlowBuilder {
	b.config = config
	return b
}

// Build creates the ScoringFlow instance.
func (b *ScoringFlowBuilder) Build() (*ScoringFlow, error) {
	if b.store == nil {
		return nil, errors.New("store is required")
	}

	cfg := b.config
	if cfg.MaxAchievementPasses < 1 {
		cfg.MaxAchievementPasses = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scoring_flow")

	f := &ScoringFlow{
		store:      b.store,
		locker:     b.locker,
		levels:     b.levels,
		catalog:    b.catalog,
		stats:      b.stats,
		cache:      b.cache,
		publisher:  b.publisher,
		clock:      b.clock,
		metrics:    b.metrics,
		logger:     logger,
		aggregator: score.NewAggregator(cfg.PartialPolicy),
		calculator: streak.NewCalculator(),
		maxPasses:  cfg.MaxAchievementPasses,
		features:   cfg.Features,
	}

	if f.locker == nil {
		f.locker = lock.NewKeyedMutex()
	}
	if f.features == nil {
		f.features = allFeatures{}
	}
	if f.levels == nil {
		f.levels = level.DefaultTable()
	}
	if f.catalog == nil {
		f.catalog = achievement.DefaultCatalog()
	}
	if f.stats == nil {
		f.stats = habit.NoExternalStats{}
	}
	if f.cache == nil {
		f.cache = noopCache{}
	}
	if f.clock == nil {
		f.clock = timeutil.SystemClock{}
	}
	if f.metrics == nil {
		f.metrics = noopMetrics{}
	}

	metrics := f.metrics
	f.evaluator = achievement.NewEvaluator(achievement.EvaluatorConfig{
		Logger:           logger,
		OnPredicateError: func(code string, _ error) { metrics.PredicateError(code) },
	})

	return f, nil
}

// Levels returns the level table used by the flow.
func (f *ScoringFlow) Levels() *level.Table {
	return f.levels
}

// Catalog returns the achievement catalog used by the flow.
func (f *ScoringFlow) Catalog() *achievement.Catalog {
	return f.catalog
}
