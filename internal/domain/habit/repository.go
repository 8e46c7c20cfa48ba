package habit

import (
	"context"
	"time"

	"github.com/alem-hub/habit-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Контракт хранилища привычек и журнала записей.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// EntryFilter задаёт выборку записей журнала.
type EntryFilter struct {
	// UserID - обязательный владелец записей.
	UserID string

	// HabitID - если не пусто, только записи этой привычки.
	HabitID string

	// Range - включительный диапазон дат.
	Range shared.DateRange
}

// HabitRepository определяет операции над определениями привычек.
type HabitRepository interface {
	// GetHabits возвращает привычки пользователя, упорядоченные по DisplayOrder.
	// activeOnly=false включает отключённые привычки.
	GetHabits(ctx context.Context, userID string, activeOnly bool) ([]*Habit, error)

	// GetHabit возвращает привычку по ID.
	// Возвращает ErrHabitNotFound, если привычки нет.
	GetHabit(ctx context.Context, habitID string) (*Habit, error)

	// SaveHabit создаёт или обновляет привычку.
	SaveHabit(ctx context.Context, h *Habit) error
}

// EntryRepository определяет операции над журналом записей.
type EntryRepository interface {
	// GetEntries возвращает записи, упорядоченные по дате от новых к старым.
	GetEntries(ctx context.Context, filter EntryFilter) ([]*Entry, error)

	// GetEntry возвращает запись по (habitID, date).
	// Возвращает ErrEntryNotFound, если записи нет.
	GetEntry(ctx context.Context, habitID string, date time.Time) (*Entry, error)

	// SaveEntry записывает запись. Существующая запись за тот же день
	// перезаписывается (исправление в тот же день проверяет вызывающий).
	SaveEntry(ctx context.Context, e *Entry) error
}

// Repository объединяет привычки и журнал.
type Repository interface {
	HabitRepository
	EntryRepository
}

// ══════════════════════════════════════════════════════════════════════════════
// EXTERNAL STATS
// ══════════════════════════════════════════════════════════════════════════════

// ExternalStats - счётчики, которые ведут соседние подсистемы (челленджи, форум).
type ExternalStats struct {
	ChallengeCompletions int
	ForumActivity        int
}

// StatsSource - необязательный внешний источник счётчиков для достижений.
type StatsSource interface {
	GetExternalStats(ctx context.Context, userID string) (ExternalStats, error)
}

// NoExternalStats - источник по умолчанию, всегда возвращает нули.
type NoExternalStats struct{}

// GetExternalStats implements StatsSource.
func (NoExternalStats) GetExternalStats(context.Context, string) (ExternalStats, error) {
	return ExternalStats{}, nil
}
