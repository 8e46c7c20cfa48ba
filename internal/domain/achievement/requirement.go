// Package achievement описывает каталог достижений и правила их разблокировки.
// Требование достижения - типизированное объединение (RequirementKind + поля вида),
// поэтому оценщик проверяет каждый вид явно, без разбора произвольного JSON.
package achievement

import (
	"encoding/json"
	"fmt"

	"github.com/alem-hub/habit-hub/internal/domain/shared"
)

// RequirementKind - вид предиката разблокировки.
type RequirementKind string

const (
	// KindStreak - любая серия длиной не меньше Days.
	KindStreak RequirementKind = "streak"
	// KindPoints - накопленные очки не меньше Amount.
	KindPoints RequirementKind = "points"
	// KindHabitCategory - выполнений в категории Category не меньше Count.
	KindHabitCategory RequirementKind = "habit_category"
	// KindChallengeCompleted - завершённых челленджей не меньше Count.
	KindChallengeCompleted RequirementKind = "challenge_completed"
	// KindFirstHabit - хотя бы одно выполнение за всё время.
	KindFirstHabit RequirementKind = "first_habit"
	// KindForumActivity - активностей на форуме не меньше Count.
	KindForumActivity RequirementKind = "forum_activity"
)

// Requirement - предикат разблокировки.
type Requirement struct {
	Kind     RequirementKind
	Days     int
	Amount   int
	Category shared.Category
	Count    int

	// malformed - причина, по которой JSON требования не удалось разобрать.
	malformed string
}

// Конструкторы требований для статических каталогов.

func StreakRequirement(days int) Requirement {
	return Requirement{Kind: KindStreak, Days: days}
}

func PointsRequirement(amount int) Requirement {
	return Requirement{Kind: KindPoints, Amount: amount}
}

func CategoryRequirement(c shared.Category, count int) Requirement {
	return Requirement{Kind: KindHabitCategory, Category: c, Count: count}
}

func ChallengeRequirement(count int) Requirement {
	return Requirement{Kind: KindChallengeCompleted, Count: count}
}

func FirstHabitRequirement() Requirement {
	return Requirement{Kind: KindFirstHabit}
}

func ForumRequirement(count int) Requirement {
	return Requirement{Kind: KindForumActivity, Count: count}
}

// Validate проверяет, что требование можно вычислить.
// Ошибка имеет вид ErrInvalidRequirement.
func (r Requirement) Validate() error {
	invalid := func(msg string) error {
		return shared.NewDomainError("achievement", "Validate", shared.ErrInvalidRequirement, msg)
	}

	if r.malformed != "" {
		return invalid(r.malformed)
	}

	switch r.Kind {
	case KindStreak:
		if r.Days < 1 {
			return invalid("streak requirement needs days >= 1")
		}
	case KindPoints:
		if r.Amount < 1 {
			return invalid("points requirement needs amount >= 1")
		}
	case KindHabitCategory:
		if !r.Category.IsValid() {
			return invalid(fmt.Sprintf("habit_category requirement has unknown category %q", r.Category))
		}
		if r.Count < 1 {
			return invalid("habit_category requirement needs count >= 1")
		}
	case KindChallengeCompleted, KindForumActivity:
		if r.Count < 1 {
			return invalid(string(r.Kind) + " requirement needs count >= 1")
		}
	case KindFirstHabit:
	default:
		return shared.WrapError("achievement", "Validate", shared.ErrInvalidRequirement,
			fmt.Sprintf("kind %q", r.Kind), shared.ErrUnknownRequirementKind)
	}
	return nil
}

// String возвращает человекочитаемое описание требования.
func (r Requirement) String() string {
	switch r.Kind {
	case KindStreak:
		return fmt.Sprintf("streak >= %d", r.Days)
	case KindPoints:
		return fmt.Sprintf("points >= %d", r.Amount)
	case KindHabitCategory:
		return fmt.Sprintf("%s completions >= %d", r.Category, r.Count)
	case KindChallengeCompleted:
		return fmt.Sprintf("challenges >= %d", r.Count)
	case KindForumActivity:
		return fmt.Sprintf("forum activity >= %d", r.Count)
	case KindFirstHabit:
		return "first completion"
	default:
		return fmt.Sprintf("unknown(%s)", r.Kind)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// JSON
// ══════════════════════════════════════════════════════════════════════════════

// requirementJSON - форма требования в каталоге: {"type":"streak","days":7}.
type requirementJSON struct {
	Type     string `json:"type"`
	Days     int    `json:"days,omitempty"`
	Amount   int    `json:"amount,omitempty"`
	Category string `json:"category,omitempty"`
	Count    int    `json:"count,omitempty"`
}

// UnmarshalJSON разбирает требование из каталога.
// Некорректное содержимое не прерывает загрузку каталога: требование
// помечается как malformed, и оценщик пропустит только это достижение.
func (r *Requirement) UnmarshalJSON(data []byte) error {
	var raw requirementJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		*r = Requirement{malformed: fmt.Sprintf("cannot decode requirement: %v", err)}
		// Вид всё равно полезен для логов, если его удаётся прочитать.
		var tagged struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &tagged) == nil {
			r.Kind = RequirementKind(tagged.Type)
		}
		return nil
	}

	*r = Requirement{
		Kind:     RequirementKind(raw.Type),
		Days:     raw.Days,
		Amount:   raw.Amount,
		Category: shared.Category(raw.Category),
		Count:    raw.Count,
	}
	return nil
}

// MarshalJSON сериализует требование в форму каталога.
func (r Requirement) MarshalJSON() ([]byte, error) {
	return json.Marshal(requirementJSON{
		Type:     string(r.Kind),
		Days:     r.Days,
		Amount:   r.Amount,
		Category: string(r.Category),
		Count:    r.Count,
	})
}
