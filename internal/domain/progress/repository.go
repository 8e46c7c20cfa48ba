// Package progress определяет контракт хранилища производного состояния:
// дневные счета, серии, уровень и разблокировки. Всё это пересчитывается
// из журнала записей, поэтому запись идёт только через единицу работы.
package progress

import (
	"context"
	"time"

	"github.com/alem-hub/habit-hub/internal/domain/achievement"
	"github.com/alem-hub/habit-hub/internal/domain/habit"
	"github.com/alem-hub/habit-hub/internal/domain/level"
	"github.com/alem-hub/habit-hub/internal/domain/score"
	"github.com/alem-hub/habit-hub/internal/domain/streak"
)

// ══════════════════════════════════════════════════════════════════════════════
// READ SIDE
// ══════════════════════════════════════════════════════════════════════════════

// Reader - чтение производного состояния.
type Reader interface {
	// GetDailyScore возвращает счёт за день или ErrNotFound.
	GetDailyScore(ctx context.Context, userID string, date time.Time) (*score.DailyScore, error)

	// SumDailyPoints суммирует TotalPoints всех дней пользователя, кроме exclude.
	SumDailyPoints(ctx context.Context, userID string, exclude time.Time) (int, error)

	// GetPeerTotals возвращает TotalPoints других пользователей за дату.
	GetPeerTotals(ctx context.Context, date time.Time, excludeUserID string) ([]int, error)

	// GetStreaks возвращает сохранённые серии привычки, от новых к старым.
	GetStreaks(ctx context.Context, habitID string) ([]streak.Streak, error)

	// GetActiveStreaks возвращает активные серии пользователя по привычкам.
	GetActiveStreaks(ctx context.Context, userID string) (map[string]streak.Streak, error)

	// GetLevelData возвращает состояние уровня или ErrLevelDataNotFound.
	GetLevelData(ctx context.Context, userID string) (*level.UserLevelData, error)

	// GetUnlocks возвращает разблокированные достижения пользователя.
	GetUnlocks(ctx context.Context, userID string) ([]achievement.Unlock, error)

	// ListUserIDs возвращает всех пользователей, у которых есть привычки.
	ListUserIDs(ctx context.Context) ([]string, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE SIDE
// ══════════════════════════════════════════════════════════════════════════════

// Writer - запись производного состояния внутри одной транзакции.
type Writer interface {
	// WriteDailyScore перезаписывает счёт за (пользователь, дата).
	WriteDailyScore(ctx context.Context, s *score.DailyScore) error

	// ReplaceStreaks заменяет все серии привычки новым набором.
	ReplaceStreaks(ctx context.Context, userID, habitID string, runs []streak.Streak) error

	// WriteLevelData перезаписывает состояние уровня.
	WriteLevelData(ctx context.Context, data *level.UserLevelData) error

	// WriteAchievementUnlock сохраняет разблокировку. Повтор не меняет UnlockedAt.
	WriteAchievementUnlock(ctx context.Context, u achievement.Unlock) error
}

// UnitOfWork фиксирует все записи пересчёта атомарно.
// Если fn вернула ошибку или контекст отменён, ничего не сохраняется.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(w Writer) error) error
}

// Store - полный контракт хранилища движка.
type Store interface {
	habit.Repository
	Reader
	UnitOfWork
}
