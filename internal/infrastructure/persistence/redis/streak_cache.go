package redis

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/habit-hub/internal/domain/streak"
	"github.com/alem-hub/habit-hub/pkg/circuitbreaker"
	"github.com/alem-hub/habit-hub/pkg/timeutil"
)

// cachedRun is the wire form of a streak run.
type cachedRun struct {
	HabitID   string  `json:"habit_id"`
	UserID    string  `json:"user_id"`
	StartDate string  `json:"start_date"`
	EndDate   *string `json:"end_date,omitempty"`
	LastDate  string  `json:"last_date"`
	Length    int     `json:"length"`
	IsActive  bool    `json:"is_active"`
}

// StreakCache caches a habit's streak runs, newest first. The recompute
// pipeline invalidates entries after each commit.
type StreakCache struct {
	cache   *Cache
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
}

// NewStreakCache creates a StreakCache. A non-positive ttl uses TTLStreakCache.
func NewStreakCache(cache *Cache, ttl time.Duration) *StreakCache {
	if ttl <= 0 {
		ttl = TTLStreakCache
	}
	return &StreakCache{cache: cache, ttl: ttl}
}

// WithBreaker guards reads and writes with cb. While the circuit is open
// Get reports a miss and Set is skipped. Invalidate is never gated.
func (s *StreakCache) WithBreaker(cb *circuitbreaker.CircuitBreaker) *StreakCache {
	s.breaker = cb
	return s
}

// Get returns the cached runs. ok is false on a miss.
func (s *StreakCache) Get(ctx context.Context, habitID string) ([]streak.Streak, bool, error) {
	var wire []cachedRun
	err := s.guard(ctx, func(ctx context.Context) error {
		return s.cache.Get(ctx, StreakKey(habitID), &wire)
	})
	if err != nil {
		if errors.Is(err, ErrCacheMiss) || circuitbreaker.IsRejected(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	runs, err := decodeRuns(wire)
	if err != nil {
		return nil, false, err
	}
	return runs, true, nil
}

// Set stores runs for habitID.
func (s *StreakCache) Set(ctx context.Context, habitID string, runs []streak.Streak) error {
	err := s.guard(ctx, func(ctx context.Context) error {
		return s.cache.Set(ctx, StreakKey(habitID), encodeRuns(runs), s.ttl)
	})
	if circuitbreaker.IsRejected(err) {
		return nil
	}
	return err
}

// Invalidate drops the cached runs of the given habits.
func (s *StreakCache) Invalidate(ctx context.Context, habitIDs ...string) error {
	keys := make([]string, 0, len(habitIDs))
	for _, id := range habitIDs {
		keys = append(keys, StreakKey(id))
	}
	return s.cache.Delete(ctx, keys...)
}

func (s *StreakCache) guard(ctx context.Context, fn func(context.Context) error) error {
	if s.breaker == nil {
		return fn(ctx)
	}
	return s.breaker.Execute(ctx, fn)
}

// IsCacheFailure reports whether err means Redis itself is unhealthy.
func IsCacheFailure(err error) bool {
	return err != nil &&
		!errors.Is(err, ErrCacheMiss) &&
		!errors.Is(err, ErrCacheSerialization) &&
		!errors.Is(err, ErrCacheKeyEmpty)
}

func encodeRuns(runs []streak.Streak) []cachedRun {
	out := make([]cachedRun, 0, len(runs))
	for _, r := range runs {
		w := cachedRun{
			HabitID:   r.HabitID,
			UserID:    r.UserID,
			StartDate: timeutil.FormatDate(r.StartDate),
			LastDate:  timeutil.FormatDate(r.LastDate),
			Length:    r.Length,
			IsActive:  r.IsActive,
		}
		if r.EndDate != nil {
			end := timeutil.FormatDate(*r.EndDate)
			w.EndDate = &end
		}
		out = append(out, w)
	}
	return out
}

func decodeRuns(wire []cachedRun) ([]streak.Streak, error) {
	out := make([]streak.Streak, 0, len(wire))
	for _, w := range wire {
		start, err := timeutil.ParseDate(w.StartDate)
		if err != nil {
			return nil, errors.Join(ErrCacheSerialization, err)
		}
		last, err := timeutil.ParseDate(w.LastDate)
		if err != nil {
			return nil, errors.Join(ErrCacheSerialization, err)
		}
		r := streak.Streak{
			HabitID:   w.HabitID,
			UserID:    w.UserID,
			StartDate: start,
			LastDate:  last,
			Length:    w.Length,
			IsActive:  w.IsActive,
		}
		if w.EndDate != nil {
			end, err := timeutil.ParseDate(*w.EndDate)
			if err != nil {
				return nil, errors.Join(ErrCacheSerialization, err)
			}
			r.EndDate = &end
		}
		out = append(out, r)
	}
	return out, nil
}
