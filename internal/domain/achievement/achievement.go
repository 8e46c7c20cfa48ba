package achievement

import (
	"fmt"
	"strings"
	"time"

	"github.com/alem-hub/habit-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Rarity - редкость достижения.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// IsValid проверяет корректность редкости.
func (r Rarity) IsValid() bool {
	switch r {
	case RarityCommon, RarityRare, RarityEpic, RarityLegendary:
		return true
	default:
		return false
	}
}

// Emoji возвращает значок редкости.
func (r Rarity) Emoji() string {
	switch r {
	case RarityRare:
		return "🔷"
	case RarityEpic:
		return "🟣"
	case RarityLegendary:
		return "🌟"
	default:
		return "⚪"
	}
}

// Category - раздел каталога достижений.
type Category string

const (
	CategoryStreak      Category = "streak"
	CategoryHabits      Category = "habits"
	CategoryMilestone   Category = "milestone"
	CategoryChallenges  Category = "challenges"
	CategoryConsistency Category = "consistency"
	CategorySocial      Category = "social"
)

// IsValid проверяет корректность раздела.
func (c Category) IsValid() bool {
	switch c {
	case CategoryStreak, CategoryHabits, CategoryMilestone, CategoryChallenges, CategoryConsistency, CategorySocial:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Achievement - правило разблокировки из статического каталога.
type Achievement struct {
	Code        string      `json:"code" validate:"omitempty,max=64"`
	Title       string      `json:"title" validate:"required,max=100"`
	Description string      `json:"description,omitempty"`
	Rarity      Rarity      `json:"rarity" validate:"required,oneof=common rare epic legendary"`
	Category    Category    `json:"category" validate:"required,oneof=streak habits milestone challenges consistency social"`
	Points      int         `json:"points" validate:"min=0"`
	Requirement Requirement `json:"requirement"`
}

// Unlock - факт разблокировки достижения пользователем.
// Существование записи означает, что достижение получено.
type Unlock struct {
	UserID     string    `json:"user_id"`
	Code       string    `json:"code"`
	Points     int       `json:"points"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// TotalPoints суммирует бонусные очки разблокировок.
func TotalPoints(unlocks []Unlock) int {
	total := 0
	for _, u := range unlocks {
		total += u.Points
	}
	return total
}

// Codes возвращает коды разблокированных достижений.
func Codes(unlocks []Unlock) []string {
	out := make([]string, len(unlocks))
	for i, u := range unlocks {
		out[i] = u.Code
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// Catalog - неизменяемый каталог достижений. Порядок элементов сохраняется.
type Catalog struct {
	items  []Achievement
	byCode map[string]int
}

// NewCatalog создаёт каталог. Коды обязательны и уникальны.
// Требования здесь не проверяются: некорректное требование
// пропускается оценщиком, а не ломает весь каталог.
func NewCatalog(items []Achievement) (*Catalog, error) {
	c := &Catalog{
		items:  make([]Achievement, 0, len(items)),
		byCode: make(map[string]int, len(items)),
	}
	for _, a := range items {
		code := strings.TrimSpace(a.Code)
		if code == "" {
			return nil, shared.NewDomainError("achievement", "NewCatalog", shared.ErrInvalidCatalog,
				fmt.Sprintf("achievement %q has no code", a.Title))
		}
		if _, dup := c.byCode[code]; dup {
			return nil, shared.WrapError("achievement", "NewCatalog", shared.ErrInvalidCatalog, code, shared.ErrDuplicateAchievement)
		}
		if a.Points < 0 {
			return nil, shared.NewDomainError("achievement", "NewCatalog", shared.ErrInvalidCatalog,
				fmt.Sprintf("achievement %s has negative points", code))
		}
		a.Code = code
		c.byCode[code] = len(c.items)
		c.items = append(c.items, a)
	}
	return c, nil
}

// MustNewCatalog паникует при ошибке. Только для статических каталогов.
func MustNewCatalog(items []Achievement) *Catalog {
	c, err := NewCatalog(items)
	if err != nil {
		panic(err)
	}
	return c
}

// All возвращает копию элементов каталога.
func (c *Catalog) All() []Achievement {
	out := make([]Achievement, len(c.items))
	copy(out, c.items)
	return out
}

// Get возвращает достижение по коду.
func (c *Catalog) Get(code string) (Achievement, bool) {
	i, ok := c.byCode[code]
	if !ok {
		return Achievement{}, false
	}
	return c.items[i], true
}

// Len возвращает размер каталога.
func (c *Catalog) Len() int {
	return len(c.items)
}
