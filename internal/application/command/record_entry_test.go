package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/habit-hub/internal/application/saga"
	"github.com/alem-hub/habit-hub/internal/domain/achievement"
	"github.com/alem-hub/habit-hub/internal/domain/habit"
	"github.com/alem-hub/habit-hub/internal/domain/shared"
	"github.com/alem-hub/habit-hub/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/habit-hub/pkg/timeutil"
)

type sequenceIDs struct {
	mu sync.Mutex
	n  int
}

func (s *sequenceIDs) GenerateID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return "id-" + string(rune('a'+s.n-1))
}

type captureBus struct {
	events []shared.Event
}

func (b *captureBus) Publish(event shared.Event) error {
	b.events = append(b.events, event)
	return nil
}

type setup struct {
	store   *memory.Store
	clock   *timeutil.FixedClock
	bus     *captureBus
	habits  *CreateHabitHandler
	entries *RecordEntryHandler
}

func newSetup(t *testing.T) *setup {
	t.Helper()
	clock := &timeutil.FixedClock{At: time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)}
	store := memory.NewStore()
	bus := &captureBus{}

	flow, err := saga.NewScoringFlowBuilder().
		WithStore(store).
		WithCatalog(achievement.DefaultCatalog()).
		WithClock(clock).
		Build()
	require.NoError(t, err)

	ids := &sequenceIDs{}
	return &setup{
		store:  store,
		clock:  clock,
		bus:    bus,
		habits: NewCreateHabitHandler(store, ids, clock, nil),
		entries: NewRecordEntryHandler(store, flow, bus, RecordEntryHandlerConfig{
			IDGenerator: ids,
			Clock:       clock,
		}),
	}
}

func (s *setup) createHabit(t *testing.T) *habit.Habit {
	t.Helper()
	h, err := s.habits.Handle(context.Background(), CreateHabitCommand{
		UserID:   "user-1",
		Name:     "Ejercicio Matutino",
		Category: "physical",
		Points:   8,
	})
	require.NoError(t, err)
	return h
}

func TestRecordEntry_RecordsAndRecomputes(t *testing.T) {
	s := newSetup(t)
	h := s.createHabit(t)

	res, err := s.entries.Handle(context.Background(), RecordEntryCommand{
		UserID:  "user-1",
		HabitID: h.ID,
		Status:  "completed",
	})
	require.NoError(t, err)

	assert.False(t, res.Corrected)
	assert.True(t, res.Entry.Date.Equal(timeutil.Date(2024, 1, 3)))
	require.NotNil(t, res.Recompute)
	assert.Equal(t, 8, res.Recompute.DailyScore.TotalPoints)
	assert.Equal(t, 1, res.Recompute.Streaks[h.ID].Length)

	require.NotEmpty(t, s.bus.events)
	assert.Equal(t, shared.EventEntryRecorded, s.bus.events[0].EventType())
}

type flakyRecomputer struct {
	next     Recomputer
	failures int
	calls    int
}

func (r *flakyRecomputer) Recompute(ctx context.Context, userID string, date time.Time) (*saga.RecomputeResult, error) {
	r.calls++
	if r.calls <= r.failures {
		return nil, shared.TransientError("store", "Commit", errors.New("connection reset"))
	}
	return r.next.Recompute(ctx, userID, date)
}

func TestRecordEntry_RetriesTransientRecompute(t *testing.T) {
	s := newSetup(t)
	h := s.createHabit(t)

	flaky := &flakyRecomputer{next: s.entries.recomputer, failures: 1}
	handler := NewRecordEntryHandler(s.store, flaky, nil, RecordEntryHandlerConfig{
		IDGenerator: s.entries.ids,
		Clock:       s.clock,
		MaxAttempts: 2,
	})

	res, err := handler.Handle(context.Background(), RecordEntryCommand{
		UserID:  "user-1",
		HabitID: h.ID,
		Status:  "completed",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, flaky.calls)
	assert.Equal(t, 8, res.Recompute.DailyScore.TotalPoints)

	// Without a retry budget the transient failure surfaces.
	flaky = &flakyRecomputer{next: s.entries.recomputer, failures: 1}
	handler = NewRecordEntryHandler(s.store, flaky, nil, RecordEntryHandlerConfig{
		IDGenerator: s.entries.ids,
		Clock:       s.clock,
		MaxAttempts: 1,
	})
	_, err = handler.Handle(context.Background(), RecordEntryCommand{
		UserID:  "user-1",
		HabitID: h.ID,
		Status:  "skipped",
	})
	require.Error(t, err)
	assert.True(t, shared.IsRetryable(err))
	assert.Equal(t, 1, flaky.calls)
}

func TestRecordEntry_SameDayCorrection(t *testing.T) {
	s := newSetup(t)
	h := s.createHabit(t)
	ctx := context.Background()

	first, err := s.entries.Handle(ctx, RecordEntryCommand{UserID: "user-1", HabitID: h.ID, Status: "failed"})
	require.NoError(t, err)
	assert.Equal(t, 0, first.Recompute.DailyScore.TotalPoints)

	second, err := s.entries.Handle(ctx, RecordEntryCommand{UserID: "user-1", HabitID: h.ID, Status: "completed"})
	require.NoError(t, err)
	assert.True(t, second.Corrected)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)
	assert.Equal(t, 8, second.Recompute.DailyScore.TotalPoints)

	entries, err := s.store.GetEntries(ctx, habit.EntryFilter{UserID: "user-1"})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRecordEntry_PastDayIsImmutable(t *testing.T) {
	s := newSetup(t)
	h := s.createHabit(t)
	ctx := context.Background()

	_, err := s.entries.Handle(ctx, RecordEntryCommand{UserID: "user-1", HabitID: h.ID, Date: "2024-01-02", Status: "completed"})
	require.NoError(t, err)

	_, err = s.entries.Handle(ctx, RecordEntryCommand{UserID: "user-1", HabitID: h.ID, Date: "2024-01-02", Status: "failed"})
	assert.ErrorIs(t, err, shared.ErrEntryImmutable)
}

func TestRecordEntry_Rejections(t *testing.T) {
	s := newSetup(t)
	h := s.createHabit(t)
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  RecordEntryCommand
		kind error
	}{
		{"missing status", RecordEntryCommand{UserID: "user-1", HabitID: h.ID}, shared.ErrValidation},
		{"bad status", RecordEntryCommand{UserID: "user-1", HabitID: h.ID, Status: "done"}, shared.ErrValidation},
		{"bad date", RecordEntryCommand{UserID: "user-1", HabitID: h.ID, Status: "completed", Date: "03/01/2024"}, shared.ErrValidation},
		{"future date", RecordEntryCommand{UserID: "user-1", HabitID: h.ID, Status: "completed", Date: "2024-01-04"}, shared.ErrFutureTimestamp},
		{"other user", RecordEntryCommand{UserID: "user-2", HabitID: h.ID, Status: "completed"}, shared.ErrHabitUserMismatch},
		{"unknown habit", RecordEntryCommand{UserID: "user-1", HabitID: "nope", Status: "completed"}, shared.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.entries.Handle(ctx, tt.cmd)
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestRecordEntry_InactiveHabit(t *testing.T) {
	s := newSetup(t)
	h := s.createHabit(t)
	ctx := context.Background()

	_, err := s.habits.HandleSetActive(ctx, SetHabitActiveCommand{UserID: "user-1", HabitID: h.ID, Active: false})
	require.NoError(t, err)

	_, err = s.entries.Handle(ctx, RecordEntryCommand{UserID: "user-1", HabitID: h.ID, Status: "completed"})
	assert.ErrorIs(t, err, shared.ErrHabitInactive)
}

func TestCreateHabit_Validation(t *testing.T) {
	s := newSetup(t)

	_, err := s.habits.Handle(context.Background(), CreateHabitCommand{
		UserID:   "user-1",
		Name:     "Cocinar",
		Category: "cooking",
	})
	assert.True(t, shared.IsValidation(err))
}
