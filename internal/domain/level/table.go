// Package level определяет таблицу уровней и прогрессию опыта (XP).
// Таблица статична: загружается при старте процесса и не меняется.
package level

import (
	"fmt"
	"sort"
	"time"

	"github.com/alem-hub/habit-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL CONFIG
// ══════════════════════════════════════════════════════════════════════════════

// Config - одна строка таблицы уровней.
type Config struct {
	Level      int      `json:"level" validate:"required,min=1"`
	Name       string   `json:"name" validate:"required,max=50"`
	Emoji      string   `json:"emoji" validate:"required"`
	RequiredXP int      `json:"required_xp" validate:"min=0"`
	Color      string   `json:"color" validate:"omitempty,hexcolor"`
	Benefits   []string `json:"benefits,omitempty" validate:"dive,required"`
}

// Table - упорядоченная таблица уровней.
// Инвариант: уровни идут подряд с 1, RequiredXP строго возрастает, у уровня 1 он равен 0.
type Table struct {
	levels []Config
}

// NewTable проверяет упорядоченность и создаёт таблицу.
// Строки могут прийти в любом порядке - они сортируются по номеру уровня.
func NewTable(levels []Config) (*Table, error) {
	if len(levels) == 0 {
		return nil, shared.ErrEmptyLevelTable
	}

	sorted := make([]Config, len(levels))
	copy(sorted, levels)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })

	for i, cfg := range sorted {
		if cfg.Level != i+1 {
			return nil, shared.NewDomainError("level", "NewTable", shared.ErrInvalidCatalog,
				fmt.Sprintf("levels must be numbered 1..%d without gaps, got %d at position %d", len(sorted), cfg.Level, i+1))
		}
		if i == 0 {
			if cfg.RequiredXP != 0 {
				return nil, shared.ErrLevelTableBase
			}
			continue
		}
		if cfg.RequiredXP <= sorted[i-1].RequiredXP {
			return nil, shared.ErrLevelTableOrder
		}
	}

	return &Table{levels: sorted}, nil
}

// MustNewTable паникует при ошибке. Только для статических таблиц.
func MustNewTable(levels []Config) *Table {
	t, err := NewTable(levels)
	if err != nil {
		panic(err)
	}
	return t
}

// Levels возвращает копию строк таблицы.
func (t *Table) Levels() []Config {
	out := make([]Config, len(t.levels))
	copy(out, t.levels)
	return out
}

// MaxLevel возвращает номер максимального уровня.
func (t *Table) MaxLevel() int {
	return len(t.levels)
}

// RequiredXP возвращает порог уровня или false для несуществующего уровня.
func (t *Table) RequiredXP(level int) (int, bool) {
	if level < 1 || level > len(t.levels) {
		return 0, false
	}
	return t.levels[level-1].RequiredXP, true
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// Progress - результат вычисления уровня для заданного totalXP.
type Progress struct {
	Level          int    `json:"level"`
	Name           string `json:"name"`
	Emoji          string `json:"emoji"`
	Color          string `json:"color"`
	TotalXP        int    `json:"total_xp"`
	CurrentLevelXP int    `json:"current_level_xp"`
	NextLevelXP    int    `json:"next_level_xp"`
	IsMaxLevel     bool   `json:"is_max_level"`
}

// Percent возвращает прогресс внутри уровня (0-100). На максимальном уровне - 100.
func (p Progress) Percent() int {
	if p.IsMaxLevel || p.NextLevelXP == 0 {
		return 100
	}
	pct := p.CurrentLevelXP * 100 / p.NextLevelXP
	if pct > 100 {
		pct = 100
	}
	return pct
}

// XPToNextLevel возвращает, сколько XP осталось до следующего уровня.
func (p Progress) XPToNextLevel() int {
	if p.IsMaxLevel {
		return 0
	}
	return p.NextLevelXP - p.CurrentLevelXP
}

// Compute находит наибольший уровень L с RequiredXP(L) <= totalXP.
// Монотонна: больший totalXP никогда не даёт меньший уровень.
func (t *Table) Compute(totalXP int) (Progress, error) {
	if totalXP < 0 {
		return Progress{}, shared.ErrNegativeTotalXP
	}

	// Первый уровень, чей порог строго больше totalXP; нужный - предыдущий.
	idx := sort.Search(len(t.levels), func(i int) bool {
		return t.levels[i].RequiredXP > totalXP
	}) - 1

	cfg := t.levels[idx]
	p := Progress{
		Level:          cfg.Level,
		Name:           cfg.Name,
		Emoji:          cfg.Emoji,
		Color:          cfg.Color,
		TotalXP:        totalXP,
		CurrentLevelXP: totalXP - cfg.RequiredXP,
	}

	if idx == len(t.levels)-1 {
		p.IsMaxLevel = true
	} else {
		p.NextLevelXP = t.levels[idx+1].RequiredXP - cfg.RequiredXP
	}

	return p, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// USER LEVEL DATA
// ══════════════════════════════════════════════════════════════════════════════

// UserLevelData - накопленное состояние пользователя.
type UserLevelData struct {
	UserID string `json:"user_id"`

	// TotalXP - TotalPoints плюс очки разблокированных достижений
	// (если бонусы включены). По нему считается уровень.
	TotalXP        int `json:"total_xp"`
	CurrentLevel   int `json:"current_level"`
	CurrentLevelXP int `json:"current_level_xp"`
	NextLevelXP    int `json:"next_level_xp"`
	LongestStreak  int `json:"longest_streak"`

	// TotalPoints - сумма сохранённых дневных счетов. Бонусы достижений
	// сюда не входят.
	TotalPoints          int       `json:"total_points"`
	AchievementsUnlocked int       `json:"achievements_unlocked"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Apply переносит вычисленный прогресс в состояние пользователя.
func (d *UserLevelData) Apply(p Progress) {
	d.TotalXP = p.TotalXP
	d.CurrentLevel = p.Level
	d.CurrentLevelXP = p.CurrentLevelXP
	d.NextLevelXP = p.NextLevelXP
}

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL UP
// ══════════════════════════════════════════════════════════════════════════════

// LevelUp описывает повышение уровня между двумя вычислениями.
type LevelUp struct {
	From Progress
	To   Progress
}

// LevelsGained возвращает количество полученных уровней.
func (l LevelUp) LevelsGained() int {
	return l.To.Level - l.From.Level
}

// DetectLevelUp возвращает повышение уровня, если next выше prev.
func DetectLevelUp(prev, next Progress) (LevelUp, bool) {
	if next.Level <= prev.Level {
		return LevelUp{}, false
	}
	return LevelUp{From: prev, To: next}, true
}
