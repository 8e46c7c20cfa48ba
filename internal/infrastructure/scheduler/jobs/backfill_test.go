package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/habit-hub/internal/domain/shared"
	"github.com/alem-hub/habit-hub/pkg/timeutil"
)

type staticUsers struct {
	ids []string
	err error
}

func (s staticUsers) ListUserIDs(context.Context) ([]string, error) { return s.ids, s.err }

type call struct {
	userID string
	date   string
}

type recorder struct {
	mu    sync.Mutex
	calls []call
	fail  map[string]error
	fails map[string]int
}

func (r *recorder) recompute(_ context.Context, userID string, date time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{userID, timeutil.FormatDate(date)})
	if n := r.fails[userID]; n > 0 {
		r.fails[userID] = n - 1
		return r.fail[userID]
	}
	if r.fails == nil {
		return r.fail[userID]
	}
	return nil
}

type countingMetrics struct{ ok, failed int }

func (m *countingMetrics) BackfillResult(ok bool) {
	if ok {
		m.ok++
	} else {
		m.failed++
	}
}

var clock = timeutil.FixedClock{At: time.Date(2024, 3, 10, 23, 30, 0, 0, time.UTC)}

func TestBackfillJob_RecomputesWindowInOrder(t *testing.T) {
	rec := &recorder{}
	m := &countingMetrics{}
	job := NewBackfillJob(staticUsers{ids: []string{"u1", "u2"}}, rec.recompute, clock, m,
		BackfillConfig{LookbackDays: 3, MaxAttempts: 1})

	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, []call{
		{"u1", "2024-03-08"}, {"u1", "2024-03-09"}, {"u1", "2024-03-10"},
		{"u2", "2024-03-08"}, {"u2", "2024-03-09"}, {"u2", "2024-03-10"},
	}, rec.calls)
	assert.Equal(t, 6, m.ok)

	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.Users)
	assert.Equal(t, 6, stats.Recomputes)
	assert.Zero(t, stats.Failures)
}

func TestBackfillJob_RetriesTransientFailures(t *testing.T) {
	rec := &recorder{
		fail:  map[string]error{"u1": shared.TransientError("store", "Commit", errors.New("conn reset"))},
		fails: map[string]int{"u1": 1},
	}
	m := &countingMetrics{}
	job := NewBackfillJob(staticUsers{ids: []string{"u1"}}, rec.recompute, clock, m,
		BackfillConfig{LookbackDays: 1, MaxAttempts: 3})

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, rec.calls, 2)
	assert.Equal(t, 1, m.ok)
}

func TestBackfillJob_IntegrityErrorIsNotRetried(t *testing.T) {
	rec := &recorder{fail: map[string]error{"bad": shared.IntegrityError("streak", "Compute", "overlap")}}
	m := &countingMetrics{}
	job := NewBackfillJob(staticUsers{ids: []string{"bad", "good"}}, rec.recompute, clock, m,
		BackfillConfig{LookbackDays: 1, MaxAttempts: 3})

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrDataIntegrity)

	// One attempt for the failing user, then the next user still runs.
	assert.Equal(t, []call{{"bad", "2024-03-10"}, {"good", "2024-03-10"}}, rec.calls)
	assert.Equal(t, 1, m.ok)
	assert.Equal(t, 1, m.failed)
	assert.Equal(t, 1, job.LastStats().Failures)
}

func TestBackfillJob_ListFailure(t *testing.T) {
	job := NewBackfillJob(staticUsers{err: errors.New("db down")}, (&recorder{}).recompute, clock, nil,
		DefaultBackfillConfig())

	assert.Error(t, job.Run(context.Background()))
}

func TestBackfillJob_StopsOnCancel(t *testing.T) {
	rec := &recorder{}
	job := NewBackfillJob(staticUsers{ids: []string{"u1"}}, rec.recompute, clock, nil,
		DefaultBackfillConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, job.Run(ctx), context.Canceled)
	assert.Empty(t, rec.calls)
}
