// Package streak вычисляет серии последовательных выполнений привычки.
// Серия всегда пересчитывается из журнала записей; кэш - только оптимизация чтения.
package streak

import (
	"time"

	"github.com/alem-hub/habit-hub/internal/domain/habit"
	"github.com/alem-hub/habit-hub/internal/domain/shared"
	"github.com/alem-hub/habit-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Streak - максимальная серия подряд выполненных периодов одной привычки.
// Идентифицируется парой (HabitID, StartDate).
type Streak struct {
	// HabitID - привычка серии.
	HabitID string

	// UserID - владелец привычки.
	UserID string

	// StartDate - дата первого выполнения в серии.
	StartDate time.Time

	// EndDate - дата последнего выполнения; nil, пока серия активна.
	EndDate *time.Time

	// LastDate - дата последнего выполнения (заполнена всегда).
	LastDate time.Time

	// Length - количество подряд выполненных периодов.
	Length int

	// IsActive - серия продолжается на опорный день.
	IsActive bool
}

// IsZero возвращает true, если серии нет (ни одного выполнения).
func (s Streak) IsZero() bool {
	return s.Length == 0
}

// Current возвращает длину текущей серии: Length для активной и 0 для закрытой.
func (s Streak) Current() int {
	if s.IsActive {
		return s.Length
	}
	return 0
}

// Longest возвращает максимальную длину среди серий.
func Longest(runs []Streak) int {
	best := 0
	for _, r := range runs {
		if r.Length > best {
			best = r.Length
		}
	}
	return best
}

// ══════════════════════════════════════════════════════════════════════════════
// CALCULATOR
// ══════════════════════════════════════════════════════════════════════════════

// Calculator вычисляет серии по записям, упорядоченным от новых к старым.
// Не имеет состояния и безопасен для конкурентного использования.
type Calculator struct{}

// NewCalculator создаёт калькулятор серий.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// period - схлопнутый календарный период привычки.
type period struct {
	index     int
	completed bool
	// firstDone / lastDone - крайние даты выполнений внутри периода.
	firstDone time.Time
	lastDone  time.Time
}

// Compute возвращает последнюю серию привычки на опорный день reference.
// Серия активна, если самая свежая запись выполнена и её период совпадает
// с опорным или предшествует ему. Иначе серия историческая и EndDate
// равна дате последнего выполнения. Без выполнений возвращается нулевая серия.
func (c *Calculator) Compute(h *habit.Habit, entriesDesc []*habit.Entry, reference time.Time) (Streak, error) {
	runs, err := c.Runs(h, entriesDesc, reference)
	if err != nil {
		return Streak{}, err
	}
	if len(runs) == 0 {
		return Streak{HabitID: h.ID, UserID: h.UserID}, nil
	}
	return runs[0], nil
}

// Runs возвращает все максимальные серии привычки, от новых к старым.
// Не более одной серии (самая новая) может быть активной.
func (c *Calculator) Runs(h *habit.Habit, entriesDesc []*habit.Entry, reference time.Time) ([]Streak, error) {
	if h == nil {
		return nil, shared.NewDomainError("streak", "Runs", shared.ErrInvalidInput, "habit is required")
	}
	reference = timeutil.DateOf(reference)

	if err := validateEntries(h, entriesDesc, reference); err != nil {
		return nil, err
	}
	if len(entriesDesc) == 0 {
		return nil, nil
	}

	p := h.Period()
	periods := collapse(p, entriesDesc)

	var runs []Streak
	var current *Streak
	prevIndex := 0

	for _, per := range periods {
		if !per.completed {
			// Невыполненный период закрывает текущую серию.
			if current != nil {
				runs = append(runs, *current)
				current = nil
			}
			continue
		}

		if current != nil && prevIndex-per.index == 1 {
			current.Length++
			current.StartDate = per.firstDone
		} else {
			if current != nil {
				runs = append(runs, *current)
			}
			current = &Streak{
				HabitID:   h.ID,
				UserID:    h.UserID,
				StartDate: per.firstDone,
				LastDate:  per.lastDone,
				Length:    1,
			}
		}
		prevIndex = per.index
	}
	if current != nil {
		runs = append(runs, *current)
	}

	newest := periods[0]
	refIndex := timeutil.PeriodIndex(p, reference)
	activeNewest := newest.completed && refIndex-newest.index <= 1

	for i := range runs {
		if i == 0 && activeNewest {
			runs[i].IsActive = true
			continue
		}
		end := runs[i].LastDate
		runs[i].EndDate = &end
	}

	return runs, nil
}

// validateEntries проверяет целостность журнала: строгий порядок по убыванию
// даты, отсутствие дубликатов, чужих записей и записей из будущего.
func validateEntries(h *habit.Habit, entries []*habit.Entry, reference time.Time) error {
	for i, e := range entries {
		if e == nil {
			return shared.IntegrityError("streak", "Validate", "nil entry at position %d", i)
		}
		if e.HabitID != h.ID {
			return shared.IntegrityError("streak", "Validate", "entry %s belongs to habit %s, not %s", e.ID, e.HabitID, h.ID)
		}
		if timeutil.DateOf(e.Date).After(reference) {
			return shared.IntegrityError("streak", "Validate", "entry %s is dated after the reference day %s", e, timeutil.FormatDate(reference))
		}
		if i == 0 {
			continue
		}
		prev := entries[i-1]
		switch diff := timeutil.DayDiff(e.Date, prev.Date); {
		case diff == 0:
			return shared.IntegrityError("streak", "Validate", "duplicate entry for habit %s on %s", h.ID, timeutil.FormatDate(e.Date))
		case diff < 0:
			return shared.IntegrityError("streak", "Validate", "entries out of order: %s before %s", prev, e)
		}
	}
	return nil
}

// collapse группирует записи по периодам привычки (от новых к старым).
// Период выполнен, если в нём есть хотя бы одна выполненная запись.
func collapse(p timeutil.Period, entriesDesc []*habit.Entry) []period {
	periods := make([]period, 0, len(entriesDesc))
	for _, e := range entriesDesc {
		idx := timeutil.PeriodIndex(p, e.Date)
		if len(periods) == 0 || periods[len(periods)-1].index != idx {
			periods = append(periods, period{index: idx})
		}
		cur := &periods[len(periods)-1]
		if !e.IsCompleted() {
			continue
		}
		day := timeutil.DateOf(e.Date)
		if !cur.completed {
			cur.completed = true
			cur.lastDone = day
		}
		cur.firstDone = day
	}
	return periods
}
