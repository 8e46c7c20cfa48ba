package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/alem-hub/habit-hub/internal/domain/habit"
	"github.com/alem-hub/habit-hub/internal/domain/shared"
	"github.com/alem-hub/habit-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE HABIT COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// CreateHabitCommand contains the data to create a habit.
type CreateHabitCommand struct {
	UserID       string  `json:"user_id" validate:"required,max=64"`
	Name         string  `json:"name" validate:"required,max=100"`
	Category     string  `json:"category" validate:"required,oneof=morning physical nutrition work development social reflection sleep"`
	TrackingType string  `json:"tracking_type" validate:"omitempty,oneof=binary numeric duration rating text"`
	Frequency    string  `json:"frequency" validate:"omitempty,oneof=daily weekly monthly"`
	TargetValue  float64 `json:"target_value" validate:"gte=0"`
	TargetUnit   string  `json:"target_unit" validate:"max=20"`
	Points       int     `json:"points" validate:"gte=0,lte=1000"`
	DisplayOrder int     `json:"display_order"`
}

// CreateHabitHandler handles the CreateHabitCommand.
type CreateHabitHandler struct {
	repo     habit.HabitRepository
	ids      IDGenerator
	clock    timeutil.Clock
	validate *validator.Validate
	logger   *slog.Logger
}

// NewCreateHabitHandler creates a new CreateHabitHandler.
func NewCreateHabitHandler(repo habit.HabitRepository, ids IDGenerator, clock timeutil.Clock, logger *slog.Logger) *CreateHabitHandler {
	if ids == nil {
		ids = UUIDGenerator{}
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CreateHabitHandler{
		repo:     repo,
		ids:      ids,
		clock:    clock,
		validate: newValidator(),
		logger:   logger,
	}
}

// Handle executes the create habit command.
func (h *CreateHabitHandler) Handle(ctx context.Context, cmd CreateHabitCommand) (*habit.Habit, error) {
	if err := h.validate.Struct(cmd); err != nil {
		return nil, validationError("CreateHabit", err)
	}

	created, err := habit.NewHabit(habit.NewHabitParams{
		ID:           h.ids.GenerateID(),
		UserID:       cmd.UserID,
		Name:         cmd.Name,
		Category:     shared.Category(cmd.Category),
		TrackingType: habit.TrackingType(cmd.TrackingType),
		Frequency:    habit.Frequency(cmd.Frequency),
		TargetValue:  cmd.TargetValue,
		TargetUnit:   cmd.TargetUnit,
		Points:       cmd.Points,
		DisplayOrder: cmd.DisplayOrder,
		CreatedAt:    h.clock.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	if err := h.repo.SaveHabit(ctx, created); err != nil {
		return nil, fmt.Errorf("create_habit: failed to save habit: %w", err)
	}

	h.logger.Info("habit created", "user_id", cmd.UserID, "habit_id", created.ID, "category", cmd.Category)
	return created, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SET HABIT ACTIVE COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// SetHabitActiveCommand soft-deactivates or re-activates a habit.
// Entries and streaks of an inactive habit are kept.
type SetHabitActiveCommand struct {
	UserID  string `json:"user_id" validate:"required"`
	HabitID string `json:"habit_id" validate:"required"`
	Active  bool   `json:"active"`
}

// HandleSetActive executes the set-active command.
func (h *CreateHabitHandler) HandleSetActive(ctx context.Context, cmd SetHabitActiveCommand) (*habit.Habit, error) {
	if err := h.validate.Struct(cmd); err != nil {
		return nil, validationError("SetHabitActive", err)
	}

	hab, err := h.repo.GetHabit(ctx, cmd.HabitID)
	if err != nil {
		return nil, fmt.Errorf("set_habit_active: failed to get habit: %w", err)
	}
	if hab.UserID != cmd.UserID {
		return nil, shared.ErrHabitUserMismatch
	}

	if cmd.Active {
		hab.Activate()
	} else {
		hab.Deactivate()
	}

	if err := h.repo.SaveHabit(ctx, hab); err != nil {
		return nil, fmt.Errorf("set_habit_active: failed to save habit: %w", err)
	}
	return hab, nil
}
