package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/habit-hub/internal/domain/streak"
	"github.com/alem-hub/habit-hub/pkg/circuitbreaker"
	"github.com/alem-hub/habit-hub/pkg/timeutil"
)

func TestRuns_KeepClosedRunEndDate(t *testing.T) {
	end := timeutil.Date(2024, 1, 7)
	runs := []streak.Streak{
		{HabitID: "h1", UserID: "u1", StartDate: timeutil.Date(2024, 1, 9), LastDate: timeutil.Date(2024, 1, 10), Length: 2, IsActive: true},
		{HabitID: "h1", UserID: "u1", StartDate: timeutil.Date(2024, 1, 1), LastDate: end, EndDate: &end, Length: 7},
	}

	wire := encodeRuns(runs)
	require.Len(t, wire, 2)
	assert.Nil(t, wire[0].EndDate)
	require.NotNil(t, wire[1].EndDate)
	assert.Equal(t, "2024-01-07", *wire[1].EndDate)

	back, err := decodeRuns(wire)
	require.NoError(t, err)
	assert.Equal(t, runs, back)
}

func TestRuns_RejectCorruptDates(t *testing.T) {
	_, err := decodeRuns([]cachedRun{{HabitID: "h1", StartDate: "yesterday", LastDate: "2024-01-01"}})
	assert.ErrorIs(t, err, ErrCacheSerialization)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "streak:h1", StreakKey("h1"))
	assert.Equal(t, "lock:recompute:u1", LockKey("recompute:u1"))
}

func unreachable(t *testing.T) *Cache {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheFromClient(client)
}

func TestStreakCache_SurfacesConnectionErrors(t *testing.T) {
	cache := NewStreakCache(unreachable(t), 0)

	_, ok, err := cache.Get(context.Background(), "h1")
	assert.Error(t, err)
	assert.False(t, ok)

	assert.Error(t, cache.Invalidate(context.Background(), "h1"))
	assert.NoError(t, cache.Invalidate(context.Background()))
}

func TestStreakCache_OpenBreakerDegradesToMiss(t *testing.T) {
	cb := circuitbreaker.New("streak-cache",
		circuitbreaker.WithFailureThreshold(1),
		circuitbreaker.WithTimeout(time.Hour),
		circuitbreaker.WithIsFailure(IsCacheFailure),
	)
	cache := NewStreakCache(unreachable(t), 0).WithBreaker(cb)
	ctx := context.Background()

	_, _, err := cache.Get(ctx, "h1")
	require.Error(t, err)
	require.Equal(t, circuitbreaker.StateOpen, cb.State())

	runs, ok, err := cache.Get(ctx, "h1")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, runs)
	assert.NoError(t, cache.Set(ctx, "h1", nil))
	assert.Error(t, cache.Invalidate(ctx, "h1"))
}

func TestIsCacheFailure(t *testing.T) {
	assert.False(t, IsCacheFailure(nil))
	assert.False(t, IsCacheFailure(ErrCacheMiss))
	assert.False(t, IsCacheFailure(ErrCacheSerialization))
	assert.True(t, IsCacheFailure(ErrCacheConnection))
}

func TestLocker_ReturnsErrorWhenRedisIsDown(t *testing.T) {
	l := NewLocker(unreachable(t), time.Second)

	unlock, err := l.Lock(context.Background(), "recompute:u1")
	assert.Error(t, err)
	assert.Nil(t, unlock)
}
