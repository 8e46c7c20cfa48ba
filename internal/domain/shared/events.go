// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types produced by the scoring pipeline.
const (
	// Entry events
	EventEntryRecorded  EventType = "habit.entry_recorded"
	EventEntryCorrected EventType = "habit.entry_corrected"

	// Progress events
	EventDailyScoreRecomputed EventType = "progress.daily_score_recomputed"
	EventLevelUp              EventType = "progress.level_up"
	EventStreakStarted        EventType = "progress.streak_started"
	EventStreakBroken         EventType = "progress.streak_broken"

	// Achievement events
	EventAchievementUnlocked EventType = "achievement.unlocked"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event stamped with the given time.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Entry Events
// ═══════════════════════════════════════════════════════════════════════════

// EntryRecordedEvent is emitted when a habit entry is written or corrected.
type EntryRecordedEvent struct {
	BaseEvent
	UserID    string    `json:"user_id"`
	HabitID   string    `json:"habit_id"`
	Date      time.Time `json:"date"`
	Status    string    `json:"status"`
	Corrected bool      `json:"corrected"`
}

// Payload implements Event interface.
func (e EntryRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"habit_id":  e.HabitID,
		"date":      e.Date.Format("2006-01-02"),
		"status":    e.Status,
		"corrected": e.Corrected,
	}
}

// NewEntryRecordedEvent creates a new EntryRecordedEvent.
func NewEntryRecordedEvent(userID, habitID string, date time.Time, status string, corrected bool, at time.Time) EntryRecordedEvent {
	eventType := EventEntryRecorded
	if corrected {
		eventType = EventEntryCorrected
	}
	return EntryRecordedEvent{
		BaseEvent: NewBaseEvent(eventType, userID, at),
		UserID:    userID,
		HabitID:   habitID,
		Date:      date,
		Status:    status,
		Corrected: corrected,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// DailyScoreRecomputedEvent is emitted after every successful recompute.
type DailyScoreRecomputedEvent struct {
	BaseEvent
	UserID          string    `json:"user_id"`
	Date            time.Time `json:"date"`
	TotalPoints     int       `json:"total_points"`
	CompletedHabits int       `json:"completed_habits"`
	TotalHabits     int       `json:"total_habits"`
}

// Payload implements Event interface.
func (e DailyScoreRecomputedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":          e.UserID,
		"date":             e.Date.Format("2006-01-02"),
		"total_points":     e.TotalPoints,
		"completed_habits": e.CompletedHabits,
		"total_habits":     e.TotalHabits,
	}
}

// NewDailyScoreRecomputedEvent creates a new DailyScoreRecomputedEvent.
func NewDailyScoreRecomputedEvent(userID string, date time.Time, totalPoints, completed, total int, at time.Time) DailyScoreRecomputedEvent {
	return DailyScoreRecomputedEvent{
		BaseEvent:       NewBaseEvent(EventDailyScoreRecomputed, userID, at),
		UserID:          userID,
		Date:            date,
		TotalPoints:     totalPoints,
		CompletedHabits: completed,
		TotalHabits:     total,
	}
}

// LevelUpEvent is emitted when a user reaches a new level.
type LevelUpEvent struct {
	BaseEvent
	UserID    string `json:"user_id"`
	OldLevel  int    `json:"old_level"`
	NewLevel  int    `json:"new_level"`
	LevelName string `json:"level_name"`
	Emoji     string `json:"emoji"`
	TotalXP   int    `json:"total_xp"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID,
		"old_level":  e.OldLevel,
		"new_level":  e.NewLevel,
		"level_name": e.LevelName,
		"emoji":      e.Emoji,
		"total_xp":   e.TotalXP,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(userID string, oldLevel, newLevel int, name, emoji string, totalXP int, at time.Time) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: NewBaseEvent(EventLevelUp, userID, at),
		UserID:    userID,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
		LevelName: name,
		Emoji:     emoji,
		TotalXP:   totalXP,
	}
}

// LevelsGained returns how many levels were gained at once.
func (e LevelUpEvent) LevelsGained() int {
	return e.NewLevel - e.OldLevel
}

// StreakBrokenEvent is emitted when a previously active streak is closed.
type StreakBrokenEvent struct {
	BaseEvent
	UserID         string    `json:"user_id"`
	HabitID        string    `json:"habit_id"`
	PreviousLength int       `json:"previous_length"`
	EndDate        time.Time `json:"end_date"`
}

// Payload implements Event interface.
func (e StreakBrokenEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":         e.UserID,
		"habit_id":        e.HabitID,
		"previous_length": e.PreviousLength,
		"end_date":        e.EndDate.Format("2006-01-02"),
	}
}

// NewStreakBrokenEvent creates a new StreakBrokenEvent.
func NewStreakBrokenEvent(userID, habitID string, previousLength int, endDate, at time.Time) StreakBrokenEvent {
	return StreakBrokenEvent{
		BaseEvent:      NewBaseEvent(EventStreakBroken, userID, at),
		UserID:         userID,
		HabitID:        habitID,
		PreviousLength: previousLength,
		EndDate:        endDate,
	}
}

// StreakStartedEvent is emitted when a habit gets a new active streak.
type StreakStartedEvent struct {
	BaseEvent
	UserID    string    `json:"user_id"`
	HabitID   string    `json:"habit_id"`
	StartDate time.Time `json:"start_date"`
}

// Payload implements Event interface.
func (e StreakStartedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID,
		"habit_id":   e.HabitID,
		"start_date": e.StartDate.Format("2006-01-02"),
	}
}

// NewStreakStartedEvent creates a new StreakStartedEvent.
func NewStreakStartedEvent(userID, habitID string, startDate, at time.Time) StreakStartedEvent {
	return StreakStartedEvent{
		BaseEvent: NewBaseEvent(EventStreakStarted, userID, at),
		UserID:    userID,
		HabitID:   habitID,
		StartDate: startDate,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementUnlockedEvent is emitted once per newly unlocked achievement.
type AchievementUnlockedEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
	Code   string `json:"code"`
	Title  string `json:"title"`
	Rarity string `json:"rarity"`
	Points int    `json:"points"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID,
		"code":    e.Code,
		"title":   e.Title,
		"rarity":  e.Rarity,
		"points":  e.Points,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(userID, code, title, rarity string, points int, at time.Time) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent: NewBaseEvent(EventAchievementUnlocked, userID, at),
		UserID:    userID,
		Code:      code,
		Title:     title,
		Rarity:    rarity,
		Points:    points,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope serializes an event payload into an envelope.
func NewEnvelope(id string, event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return EventEnvelope{}, err
	}
	return EventEnvelope{
		ID:          id,
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Version:     1,
		Payload:     payload,
	}, nil
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
