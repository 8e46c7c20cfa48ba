package achievement

import (
	"log/slog"
	"time"

	"github.com/alem-hub/habit-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATS SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Stats - снимок агрегированной статистики пользователя для оценки достижений.
type Stats struct {
	// TotalPoints - накопленные очки с учётом уже полученных бонусов.
	TotalPoints int

	// LongestStreakByHabit - самая длинная серия по каждой привычке.
	LongestStreakByHabit map[string]int

	// StreaksByCategory - самая длинная серия в каждой категории.
	StreaksByCategory map[shared.Category]int

	// CompletionsByCategory - число выполнений в каждой категории за всё время.
	CompletionsByCategory map[shared.Category]int

	// TotalCompletions - число выполнений за всё время.
	TotalCompletions int

	// ChallengeCompletions - завершённые челленджи (внешний источник).
	ChallengeCompletions int

	// ForumActivity - активность на форуме (внешний источник).
	ForumActivity int
}

// LongestStreak возвращает самую длинную серию среди всех привычек.
func (s Stats) LongestStreak() int {
	best := 0
	for _, n := range s.LongestStreakByHabit {
		if n > best {
			best = n
		}
	}
	return best
}

// WithBonus возвращает копию снимка с добавленными очками.
func (s Stats) WithBonus(points int) Stats {
	s.TotalPoints += points
	return s
}

// Satisfies проверяет требование на снимке.
// Перед вызовом требование должно пройти Validate.
func (s Stats) Satisfies(r Requirement) bool {
	switch r.Kind {
	case KindStreak:
		return s.LongestStreak() >= r.Days
	case KindPoints:
		return s.TotalPoints >= r.Amount
	case KindHabitCategory:
		return s.CompletionsByCategory[r.Category] >= r.Count
	case KindChallengeCompleted:
		return s.ChallengeCompletions >= r.Count
	case KindForumActivity:
		return s.ForumActivity >= r.Count
	case KindFirstHabit:
		return s.TotalCompletions > 0 || s.TotalPoints > 0
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATOR
// ══════════════════════════════════════════════════════════════════════════════

// EvaluatorConfig содержит зависимости оценщика.
type EvaluatorConfig struct {
	// Logger - логгер для предупреждений о некорректных требованиях.
	Logger *slog.Logger

	// OnPredicateError вызывается для каждого пропущенного достижения (метрики).
	OnPredicateError func(code string, err error)
}

// Evaluator оценивает каталог достижений на снимке статистики.
type Evaluator struct {
	logger           *slog.Logger
	onPredicateError func(code string, err error)
}

// NewEvaluator создаёт оценщик.
func NewEvaluator(cfg EvaluatorConfig) *Evaluator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		logger:           logger,
		onPredicateError: cfg.OnPredicateError,
	}
}

// Evaluate возвращает достижения, которые выполнены, но ещё не получены.
// Все такие достижения разблокируются за один проход с UnlockedAt = now.
// Повторный вызов с уже полученными кодами ничего не возвращает.
// Достижение с некорректным требованием пропускается с предупреждением.
func (e *Evaluator) Evaluate(userID string, stats Stats, catalog *Catalog, alreadyUnlocked []string, now time.Time) []Unlock {
	if catalog == nil {
		return nil
	}

	unlocked := make(map[string]struct{}, len(alreadyUnlocked))
	for _, code := range alreadyUnlocked {
		unlocked[code] = struct{}{}
	}

	var out []Unlock
	for _, a := range catalog.items {
		if _, ok := unlocked[a.Code]; ok {
			continue
		}

		if err := a.Requirement.Validate(); err != nil {
			e.logger.Warn("skipping achievement with invalid requirement",
				"code", a.Code,
				"kind", string(a.Requirement.Kind),
				"error", err,
			)
			if e.onPredicateError != nil {
				e.onPredicateError(a.Code, err)
			}
			continue
		}

		if !stats.Satisfies(a.Requirement) {
			continue
		}

		out = append(out, Unlock{
			UserID:     userID,
			Code:       a.Code,
			Points:     a.Points,
			UnlockedAt: now,
		})
	}

	return out
}
