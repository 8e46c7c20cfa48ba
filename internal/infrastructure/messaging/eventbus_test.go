package messaging

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/habit-hub/internal/domain/shared"
	"github.com/alem-hub/habit-hub/pkg/timeutil"
)

type countingObserver struct {
	mu        sync.Mutex
	published int
	failed    int
}

func (o *countingObserver) EventPublished(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.published++
}

func (o *countingObserver) HandlerFinished(_ string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.failed++
	}
}

func levelUp() shared.Event {
	return shared.NewLevelUpEvent("user-1", 1, 2, "Apprentice", "🌿", 106, time.Date(2024, 1, 7, 12, 0, 0, 0, time.UTC))
}

func TestInMemoryEventBus_SyncDelivery(t *testing.T) {
	obs := &countingObserver{}
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{Observer: obs})
	defer bus.Close()

	var typed, all []shared.EventType
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(e shared.Event) error {
		typed = append(typed, e.EventType())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, e.EventType())
		return errors.New("subscriber down")
	}))
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error {
		panic("boom")
	}))

	require.NoError(t, bus.Publish(levelUp()))
	require.NoError(t, bus.Publish(shared.NewStreakStartedEvent("user-1", "h1", timeutil.Date(2024, 1, 7), time.Now())))

	assert.Equal(t, []shared.EventType{shared.EventLevelUp}, typed)
	assert.Equal(t, []shared.EventType{shared.EventLevelUp, shared.EventStreakStarted}, all)
	assert.Equal(t, 2, obs.published)
	assert.Equal(t, 3, obs.failed)
}

func TestInMemoryEventBus_AsyncDrainsOnClose(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})

	var mu sync.Mutex
	seen := 0
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen++
		return nil
	}))

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(levelUp()))
	}
	require.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, seen, 5)
	assert.ErrorIs(t, bus.Publish(levelUp()), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestInMemoryEventBus_RejectsNil(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{})
	assert.ErrorIs(t, bus.Publish(nil), ErrNilEvent)
	assert.ErrorIs(t, bus.Subscribe(shared.EventLevelUp, nil), ErrNilHandler)
	assert.ErrorIs(t, bus.SubscribeAll(nil), ErrNilHandler)
}

func TestRedisEventBus_HandleRemote(t *testing.T) {
	local := NewInMemoryEventBus(InMemoryEventBusConfig{})
	bus := &RedisEventBus{localBus: local, instanceID: "me", logger: slog.Default()}

	var got []shared.Event
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		got = append(got, e)
		return nil
	}))

	own, err := encodeEnvelope("me", levelUp())
	require.NoError(t, err)
	bus.handleRemote(own)
	assert.Empty(t, got)

	remote, err := encodeEnvelope("other", levelUp())
	require.NoError(t, err)
	bus.handleRemote(remote)
	require.Len(t, got, 1)
	assert.Equal(t, shared.EventLevelUp, got[0].EventType())
	assert.Equal(t, "user-1", got[0].AggregateID())
	assert.EqualValues(t, 2, got[0].Payload()["new_level"])

	bus.handleRemote("{not json")
	assert.Len(t, got, 1)
}
