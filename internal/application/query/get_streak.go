// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alem-hub/habit-hub/internal/domain/habit"
	"github.com/alem-hub/habit-hub/internal/domain/shared"
	"github.com/alem-hub/habit-hub/internal/domain/streak"
	"github.com/alem-hub/habit-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STREAK QUERY
// Текущая серия привычки. Кэш - только оптимизация чтения: при промахе
// серия пересчитывается из журнала записей.
// ══════════════════════════════════════════════════════════════════════════════

// GetStreakQuery содержит параметры запроса серии.
type GetStreakQuery struct {
	// UserID - владелец привычки.
	UserID string

	// HabitID - привычка.
	HabitID string
}

// Validate проверяет корректность параметров запроса.
func (q GetStreakQuery) Validate() error {
	if q.UserID == "" || q.HabitID == "" {
		return shared.NewDomainError("query", "GetStreak", shared.ErrInvalidID, "user_id and habit_id are required")
	}
	return nil
}

// StreakDTO - представление серии для клиентов.
type StreakDTO struct {
	HabitID   string     `json:"habit_id"`
	HabitName string     `json:"habit_name"`
	Current   int        `json:"current"`
	Longest   int        `json:"longest"`
	IsActive  bool       `json:"is_active"`
	StartDate *time.Time `json:"start_date,omitempty"`
	LastDate  *time.Time `json:"last_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	FromCache bool       `json:"from_cache"`
}

// StreakCache - кэш серий привычки (от новых к старым).
type StreakCache interface {
	Get(ctx context.Context, habitID string) ([]streak.Streak, bool, error)
	Set(ctx context.Context, habitID string, runs []streak.Streak) error
}

// GetStreakHandler обрабатывает запрос серии.
type GetStreakHandler struct {
	repo       habit.Repository
	cache      StreakCache
	calculator *streak.Calculator
	clock      timeutil.Clock
	logger     *slog.Logger
}

// NewGetStreakHandler создаёт обработчик. cache может быть nil.
func NewGetStreakHandler(repo habit.Repository, cache StreakCache, clock timeutil.Clock, logger *slog.Logger) *GetStreakHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GetStreakHandler{
		repo:       repo,
		cache:      cache,
		calculator: streak.NewCalculator(),
		clock:      clock,
		logger:     logger,
	}
}

// Handle выполняет запрос.
func (h *GetStreakHandler) Handle(ctx context.Context, q GetStreakQuery) (*StreakDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	hab, err := h.repo.GetHabit(ctx, q.HabitID)
	if err != nil {
		return nil, fmt.Errorf("get_streak: failed to get habit: %w", err)
	}
	if hab.UserID != q.UserID {
		return nil, shared.ErrHabitUserMismatch
	}

	runs, fromCache := h.cached(ctx, hab.ID)
	if !fromCache {
		runs, err = h.recompute(ctx, hab)
		if err != nil {
			return nil, err
		}
		if h.cache != nil {
			if err := h.cache.Set(ctx, hab.ID, runs); err != nil {
				h.logger.Warn("streak cache write failed", "habit_id", hab.ID, "error", err)
			}
		}
	}

	return toStreakDTO(hab, runs, fromCache), nil
}

func (h *GetStreakHandler) cached(ctx context.Context, habitID string) ([]streak.Streak, bool) {
	if h.cache == nil {
		return nil, false
	}
	runs, ok, err := h.cache.Get(ctx, habitID)
	if err != nil {
		// Ошибка кэша не должна ломать чтение.
		h.logger.Warn("streak cache read failed", "habit_id", habitID, "error", err)
		return nil, false
	}
	return runs, ok
}

func (h *GetStreakHandler) recompute(ctx context.Context, hab *habit.Habit) ([]streak.Streak, error) {
	today := timeutil.Today(h.clock)
	entries, err := h.repo.GetEntries(ctx, habit.EntryFilter{
		UserID:  hab.UserID,
		HabitID: hab.ID,
		Range:   shared.Until(today),
	})
	if err != nil {
		return nil, fmt.Errorf("get_streak: failed to load entries: %w", err)
	}

	runs, err := h.calculator.Runs(hab, entries, today)
	if err != nil {
		if errors.Is(err, shared.ErrDataIntegrity) {
			h.logger.Error("streak integrity violation", "habit_id", hab.ID, "error", err)
		}
		return nil, err
	}
	return runs, nil
}

func toStreakDTO(hab *habit.Habit, runs []streak.Streak, fromCache bool) *StreakDTO {
	dto := &StreakDTO{
		HabitID:   hab.ID,
		HabitName: hab.Name,
		Longest:   streak.Longest(runs),
		FromCache: fromCache,
	}
	if len(runs) == 0 {
		return dto
	}

	latest := runs[0]
	start, last := latest.StartDate, latest.LastDate
	dto.Current = latest.Current()
	dto.IsActive = latest.IsActive
	dto.StartDate = &start
	dto.LastDate = &last
	dto.EndDate = latest.EndDate
	return dto
}
