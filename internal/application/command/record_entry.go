package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/alem-hub/habit-hub/internal/application/saga"
	"github.com/alem-hub/habit-hub/internal/domain/habit"
	"github.com/alem-hub/habit-hub/internal/domain/shared"
	"github.com/alem-hub/habit-hub/pkg/retry"
	"github.com/alem-hub/habit-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ENTRY COMMAND
// Writes one entry of the habit log and recomputes the user's derived state
// for that day. An existing entry may only be corrected on its own day.
// ══════════════════════════════════════════════════════════════════════════════

// RecordEntryCommand contains the data to record an entry.
type RecordEntryCommand struct {
	// UserID is the owner of the habit.
	UserID string `json:"user_id" validate:"required,max=64"`

	// HabitID is the habit being logged.
	HabitID string `json:"habit_id" validate:"required,max=64"`

	// Date is the calendar day (YYYY-MM-DD). Empty means today.
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`

	// Status is the outcome for the day.
	Status string `json:"status" validate:"required,oneof=completed skipped partial failed"`

	// Value is the measured value for numeric habits.
	Value *float64 `json:"value,omitempty" validate:"omitempty,gte=0"`

	// Text is a free-form note.
	Text string `json:"text,omitempty" validate:"max=1000"`

	// TimeSpentMinutes is the time spent.
	TimeSpentMinutes *int `json:"time_spent_minutes,omitempty" validate:"omitempty,gte=0,lte=1440"`

	// Difficulty is the perceived difficulty (1-5).
	Difficulty *int `json:"difficulty,omitempty" validate:"omitempty,min=1,max=5"`

	// Mood is the mood after the habit (1-5).
	Mood *int `json:"mood,omitempty" validate:"omitempty,min=1,max=5"`

	// CorrelationID for tracing.
	CorrelationID string `json:"-"`
}

// RecordEntryResult contains the result of recording an entry.
type RecordEntryResult struct {
	// Entry is the stored entry.
	Entry *habit.Entry

	// Corrected is true when an existing same-day entry was replaced.
	Corrected bool

	// Recompute is the outcome of the recompute for the entry's day.
	Recompute *saga.RecomputeResult
}

// Recomputer recomputes derived state for a (user, date).
type Recomputer interface {
	Recompute(ctx context.Context, userID string, date time.Time) (*saga.RecomputeResult, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordEntryHandler handles the RecordEntryCommand.
type RecordEntryHandler struct {
	repo       habit.Repository
	recomputer Recomputer
	publisher  shared.EventPublisher
	ids        IDGenerator
	clock      timeutil.Clock
	validate   *validator.Validate
	retrier    *retry.Retrier
	logger     *slog.Logger
}

// RecordEntryHandlerConfig contains configuration for the handler.
type RecordEntryHandlerConfig struct {
	IDGenerator IDGenerator
	Clock       timeutil.Clock
	Logger      *slog.Logger

	// MaxAttempts bounds recompute attempts on transient store failures.
	MaxAttempts int
}

// NewRecordEntryHandler creates a new RecordEntryHandler.
func NewRecordEntryHandler(
	repo habit.Repository,
	recomputer Recomputer,
	publisher shared.EventPublisher,
	config RecordEntryHandlerConfig,
) *RecordEntryHandler {
	h := &RecordEntryHandler{
		repo:       repo,
		recomputer: recomputer,
		publisher:  publisher,
		ids:        config.IDGenerator,
		clock:      config.Clock,
		validate:   newValidator(),
		logger:     config.Logger,
	}
	if h.ids == nil {
		h.ids = UUIDGenerator{}
	}
	if h.clock == nil {
		h.clock = timeutil.SystemClock{}
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.retrier = retry.New(retry.RecomputeConfig(config.MaxAttempts, h.logger))
	return h
}

// Handle executes the record entry command.
func (h *RecordEntryHandler) Handle(ctx context.Context, cmd RecordEntryCommand) (*RecordEntryResult, error) {
	// Validate command
	if err := h.validate.Struct(cmd); err != nil {
		return nil, validationError("RecordEntry", err)
	}

	now := h.clock.Now().UTC()
	today := timeutil.Today(h.clock)

	date := today
	if cmd.Date != "" {
		parsed, err := timeutil.ParseDate(cmd.Date)
		if err != nil {
			return nil, shared.WrapError("command", "RecordEntry", shared.ErrInvalidFormat, "invalid date", err)
		}
		date = parsed
	}
	if date.After(today) {
		return nil, shared.ErrEntryInFuture
	}

	// Load habit and check ownership
	hab, err := h.repo.GetHabit(ctx, cmd.HabitID)
	if err != nil {
		return nil, fmt.Errorf("record_entry: failed to get habit: %w", err)
	}
	if hab.UserID != cmd.UserID {
		return nil, shared.ErrHabitUserMismatch
	}
	if !hab.IsActive {
		return nil, shared.ErrHabitInactive
	}

	status, err := habit.ParseStatus(cmd.Status)
	if err != nil {
		return nil, err
	}

	entry, err := habit.NewEntry(habit.NewEntryParams{
		ID:               h.ids.GenerateID(),
		HabitID:          hab.ID,
		UserID:           cmd.UserID,
		Date:             date,
		Status:           status,
		Value:            cmd.Value,
		Text:             cmd.Text,
		TimeSpentMinutes: cmd.TimeSpentMinutes,
		Difficulty:       cmd.Difficulty,
		Mood:             cmd.Mood,
		RecordedAt:       now,
	})
	if err != nil {
		return nil, err
	}

	// Same-day correction keeps the original entry ID
	result := &RecordEntryResult{Entry: entry}
	existing, err := h.repo.GetEntry(ctx, hab.ID, date)
	switch {
	case err == nil:
		if err := existing.Correct(entry, today); err != nil {
			return nil, err
		}
		result.Entry = existing
		result.Corrected = true
	case errors.Is(err, shared.ErrEntryNotFound) || shared.IsNotFound(err):
	default:
		return nil, fmt.Errorf("record_entry: failed to get entry: %w", err)
	}

	if err := h.repo.SaveEntry(ctx, result.Entry); err != nil {
		return nil, fmt.Errorf("record_entry: failed to save entry: %w", err)
	}

	event := shared.NewEntryRecordedEvent(cmd.UserID, hab.ID, date, string(status), result.Corrected, now)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	if h.publisher != nil {
		if err := h.publisher.Publish(event); err != nil {
			h.logger.Warn("event publish failed", "event_type", string(event.EventType()), "error", err)
		}
	}

	// Recompute derived state for the entry's day
	// Запись уже сохранена, поэтому повторяется только пересчёт.
	var recompute *saga.RecomputeResult
	err = h.retrier.Do(ctx, func(ctx context.Context) error {
		var rerr error
		recompute, rerr = h.recomputer.Recompute(ctx, cmd.UserID, date)
		return rerr
	})
	if err != nil {
		return nil, fmt.Errorf("record_entry: recompute failed: %w", err)
	}
	result.Recompute = recompute

	h.logger.Info("entry recorded",
		"user_id", cmd.UserID,
		"habit_id", hab.ID,
		"date", timeutil.FormatDate(date),
		"status", string(status),
		"corrected", result.Corrected,
	)

	return result, nil
}
