// Package score вычисляет дневной счёт пользователя с разбивкой по категориям.
// DailyScore полностью выводится из записей за день и никогда не правится вручную.
package score

import (
	"time"

	"github.com/alem-hub/habit-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATEGORY BREAKDOWN
// ══════════════════════════════════════════════════════════════════════════════

// Breakdown - очки дня по восьми фиксированным категориям.
type Breakdown struct {
	Morning     int `json:"morning"`
	Physical    int `json:"physical"`
	Nutrition   int `json:"nutrition"`
	Work        int `json:"work"`
	Development int `json:"development"`
	Social      int `json:"social"`
	Reflection  int `json:"reflection"`
	Sleep       int `json:"sleep"`
}

// slot возвращает указатель на поле категории или nil для неизвестной.
func (b *Breakdown) slot(c shared.Category) *int {
	switch c {
	case shared.CategoryMorning:
		return &b.Morning
	case shared.CategoryPhysical:
		return &b.Physical
	case shared.CategoryNutrition:
		return &b.Nutrition
	case shared.CategoryWork:
		return &b.Work
	case shared.CategoryDevelopment:
		return &b.Development
	case shared.CategorySocial:
		return &b.Social
	case shared.CategoryReflection:
		return &b.Reflection
	case shared.CategorySleep:
		return &b.Sleep
	default:
		return nil
	}
}

// Add добавляет очки в категорию. Возвращает false для неизвестной категории.
func (b *Breakdown) Add(c shared.Category, points int) bool {
	p := b.slot(c)
	if p == nil {
		return false
	}
	*p += points
	return true
}

// Get возвращает очки категории.
func (b Breakdown) Get(c shared.Category) int {
	p := b.slot(c)
	if p == nil {
		return 0
	}
	return *p
}

// Sum возвращает сумму по всем категориям.
func (b Breakdown) Sum() int {
	return b.Morning + b.Physical + b.Nutrition + b.Work +
		b.Development + b.Social + b.Reflection + b.Sleep
}

// AsMap возвращает разбивку в каноническом порядке категорий.
func (b Breakdown) AsMap() map[shared.Category]int {
	out := make(map[shared.Category]int, 8)
	for _, c := range shared.AllCategories() {
		out[c] = b.Get(c)
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// DAILY SCORE
// ══════════════════════════════════════════════════════════════════════════════

// DailyScore - одна запись на пару (пользователь, дата). Семантика перезаписи.
type DailyScore struct {
	// UserID - владелец счёта.
	UserID string `json:"user_id"`

	// Date - календарный день.
	Date time.Time `json:"date"`

	// TotalPoints - сумма очков за день, равна Categories.Sum().
	TotalPoints int `json:"total_points"`

	// Categories - разбивка по категориям.
	Categories Breakdown `json:"categories"`

	// CompletedHabits - количество выполненных записей.
	CompletedHabits int `json:"completed_habits"`

	// TotalHabits - количество активных привычек, применимых к дате.
	TotalHabits int `json:"total_habits"`

	// Percentile - доля других пользователей с меньшим счётом (0-100), если известна.
	Percentile *float64 `json:"percentile,omitempty"`

	// Rank - место среди пользователей за день (1 - лучший), 0 если неизвестно.
	Rank shared.Rank `json:"rank,omitempty"`
}

// CompletionRate возвращает долю выполненных привычек (0-100).
func (d *DailyScore) CompletionRate() int {
	if d.TotalHabits == 0 {
		return 0
	}
	rate := d.CompletedHabits * 100 / d.TotalHabits
	if rate > 100 {
		rate = 100
	}
	return rate
}

// IsPerfectDay возвращает true, если выполнены все применимые привычки.
func (d *DailyScore) IsPerfectDay() bool {
	return d.TotalHabits > 0 && d.CompletedHabits >= d.TotalHabits
}
