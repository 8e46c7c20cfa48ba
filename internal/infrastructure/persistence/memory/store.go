// Package memory implements an in-process Store used by tests and the
// single-binary demo mode. Writes made inside WithinTx are staged and applied
// under one lock only when the callback succeeds.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/habit-hub/internal/domain/achievement"
	"github.com/alem-hub/habit-hub/internal/domain/habit"
	"github.com/alem-hub/habit-hub/internal/domain/level"
	"github.com/alem-hub/habit-hub/internal/domain/progress"
	"github.com/alem-hub/habit-hub/internal/domain/score"
	"github.com/alem-hub/habit-hub/internal/domain/shared"
	"github.com/alem-hub/habit-hub/internal/domain/streak"
	"github.com/alem-hub/habit-hub/pkg/timeutil"
)

// Store is a thread-safe in-memory implementation of progress.Store.
type Store struct {
	mu sync.RWMutex

	habits  map[string]*habit.Habit
	entries map[string]map[int]*habit.Entry // habitID -> day number -> entry
	scores  map[string]map[int]*score.DailyScore
	streaks map[string][]streak.Streak // habitID -> runs, newest first
	levels  map[string]*level.UserLevelData
	unlocks map[string]map[string]achievement.Unlock
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		habits:  make(map[string]*habit.Habit),
		entries: make(map[string]map[int]*habit.Entry),
		scores:  make(map[string]map[int]*score.DailyScore),
		streaks: make(map[string][]streak.Streak),
		levels:  make(map[string]*level.UserLevelData),
		unlocks: make(map[string]map[string]achievement.Unlock),
	}
}

var _ progress.Store = (*Store)(nil)

// ══════════════════════════════════════════════════════════════════════════════
// HABITS & ENTRIES
// ══════════════════════════════════════════════════════════════════════════════

// GetHabits implements habit.HabitRepository.
func (s *Store) GetHabits(ctx context.Context, userID string, activeOnly bool) ([]*habit.Habit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*habit.Habit
	for _, h := range s.habits {
		if h.UserID != userID || (activeOnly && !h.IsActive) {
			continue
		}
		cp := *h
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetHabit implements habit.HabitRepository.
func (s *Store) GetHabit(ctx context.Context, habitID string) (*habit.Habit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.habits[habitID]
	if !ok {
		return nil, shared.ErrHabitNotFound
	}
	cp := *h
	return &cp, nil
}

// SaveHabit implements habit.HabitRepository.
func (s *Store) SaveHabit(ctx context.Context, h *habit.Habit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *h
	s.habits[h.ID] = &cp
	return nil
}

// GetEntries implements habit.EntryRepository.
func (s *Store) GetEntries(ctx context.Context, filter habit.EntryFilter) ([]*habit.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*habit.Entry
	for habitID, byDay := range s.entries {
		if filter.HabitID != "" && habitID != filter.HabitID {
			continue
		}
		for _, e := range byDay {
			if e.UserID != filter.UserID || !filter.Range.Contains(e.Date) {
				continue
			}
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].HabitID < out[j].HabitID
	})
	return out, nil
}

// GetEntry implements habit.EntryRepository.
func (s *Store) GetEntry(ctx context.Context, habitID string, date time.Time) (*habit.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[habitID][timeutil.DayNumber(date)]
	if !ok {
		return nil, shared.ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

// SaveEntry implements habit.EntryRepository. The (habit, date) key is unique.
func (s *Store) SaveEntry(ctx context.Context, e *habit.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	byDay, ok := s.entries[e.HabitID]
	if !ok {
		byDay = make(map[int]*habit.Entry)
		s.entries[e.HabitID] = byDay
	}
	cp := *e
	byDay[timeutil.DayNumber(e.Date)] = &cp
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DERIVED STATE (READ)
// ══════════════════════════════════════════════════════════════════════════════

// GetDailyScore implements progress.Reader.
func (s *Store) GetDailyScore(ctx context.Context, userID string, date time.Time) (*score.DailyScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ds, ok := s.scores[userID][timeutil.DayNumber(date)]
	if !ok {
		return nil, shared.NewDomainError("score", "Get", shared.ErrNotFound, "daily score not found")
	}
	cp := *ds
	return &cp, nil
}

// SumDailyPoints implements progress.Reader.
func (s *Store) SumDailyPoints(ctx context.Context, userID string, exclude time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	skip := timeutil.DayNumber(exclude)
	total := 0
	for day, ds := range s.scores[userID] {
		if day != skip {
			total += ds.TotalPoints
		}
	}
	return total, nil
}

// GetPeerTotals implements progress.Reader.
func (s *Store) GetPeerTotals(ctx context.Context, date time.Time, excludeUserID string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := timeutil.DayNumber(date)
	var out []int
	for userID, byDay := range s.scores {
		if userID == excludeUserID {
			continue
		}
		if ds, ok := byDay[day]; ok {
			out = append(out, ds.TotalPoints)
		}
	}
	sort.Ints(out)
	return out, nil
}

// GetStreaks implements progress.Reader.
func (s *Store) GetStreaks(ctx context.Context, habitID string) ([]streak.Streak, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]streak.Streak(nil), s.streaks[habitID]...), nil
}

// GetActiveStreaks implements progress.Reader.
func (s *Store) GetActiveStreaks(ctx context.Context, userID string) (map[string]streak.Streak, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]streak.Streak)
	for habitID, runs := range s.streaks {
		for _, r := range runs {
			if r.UserID == userID && r.IsActive {
				out[habitID] = r
			}
		}
	}
	return out, nil
}

// GetLevelData implements progress.Reader.
func (s *Store) GetLevelData(ctx context.Context, userID string) (*level.UserLevelData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.levels[userID]
	if !ok {
		return nil, shared.ErrLevelDataNotFound
	}
	cp := *data
	return &cp, nil
}

// GetUnlocks implements progress.Reader.
func (s *Store) GetUnlocks(ctx context.Context, userID string) ([]achievement.Unlock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]achievement.Unlock, 0, len(s.unlocks[userID]))
	for _, u := range s.unlocks[userID] {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UnlockedAt.Equal(out[j].UnlockedAt) {
			return out[i].UnlockedAt.Before(out[j].UnlockedAt)
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

// ListUserIDs implements progress.Reader.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, h := range s.habits {
		seen[h.UserID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DERIVED STATE (WRITE)
// ══════════════════════════════════════════════════════════════════════════════

// WithinTx implements progress.UnitOfWork. Writes are staged and applied
// atomically after fn returns nil and the context is still alive.
func (s *Store) WithinTx(ctx context.Context, fn func(w progress.Writer) error) error {
	tx := &stagedTx{}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range tx.ops {
		op(s)
	}
	return nil
}

type stagedTx struct {
	ops []func(s *Store)
}

func (tx *stagedTx) WriteDailyScore(ctx context.Context, ds *score.DailyScore) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := *ds
	tx.ops = append(tx.ops, func(s *Store) {
		byDay, ok := s.scores[cp.UserID]
		if !ok {
			byDay = make(map[int]*score.DailyScore)
			s.scores[cp.UserID] = byDay
		}
		byDay[timeutil.DayNumber(cp.Date)] = &cp
	})
	return nil
}

func (tx *stagedTx) ReplaceStreaks(ctx context.Context, _ string, habitID string, runs []streak.Streak) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := append([]streak.Streak(nil), runs...)
	tx.ops = append(tx.ops, func(s *Store) {
		if len(cp) == 0 {
			delete(s.streaks, habitID)
			return
		}
		s.streaks[habitID] = cp
	})
	return nil
}

func (tx *stagedTx) WriteLevelData(ctx context.Context, data *level.UserLevelData) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := *data
	tx.ops = append(tx.ops, func(s *Store) {
		s.levels[cp.UserID] = &cp
	})
	return nil
}

func (tx *stagedTx) WriteAchievementUnlock(ctx context.Context, u achievement.Unlock) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.ops = append(tx.ops, func(s *Store) {
		byCode, ok := s.unlocks[u.UserID]
		if !ok {
			byCode = make(map[string]achievement.Unlock)
			s.unlocks[u.UserID] = byCode
		}
		if _, exists := byCode[u.Code]; !exists {
			byCode[u.Code] = u
		}
	})
	return nil
}
