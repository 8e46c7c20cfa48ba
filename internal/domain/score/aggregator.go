package score

import (
	"fmt"
	"math"
	"time"

	"github.com/alem-hub/habit-hub/internal/domain/habit"
	"github.com/alem-hub/habit-hub/internal/domain/shared"
	"github.com/alem-hub/habit-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PARTIAL POLICY
// ══════════════════════════════════════════════════════════════════════════════

// PartialPolicy определяет, сколько очков приносит частичное выполнение.
// Политика одна на процесс и применяется ко всем записям одинаково.
type PartialPolicy string

const (
	// PartialNone - частичное выполнение не приносит очков.
	PartialNone PartialPolicy = "none"

	// PartialProportional - floor(value / target * points), не больше points.
	PartialProportional PartialPolicy = "proportional"
)

// IsValid проверяет корректность политики.
func (p PartialPolicy) IsValid() bool {
	return p == PartialNone || p == PartialProportional
}

// ParsePartialPolicy разбирает политику; пустая строка означает PartialNone.
func ParsePartialPolicy(value string) (PartialPolicy, error) {
	if value == "" {
		return PartialNone, nil
	}
	p := PartialPolicy(value)
	if !p.IsValid() {
		return "", shared.NewDomainError("score", "ParsePartialPolicy", shared.ErrInvalidInput,
			fmt.Sprintf("unknown partial policy %q", value))
	}
	return p, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATOR
// ══════════════════════════════════════════════════════════════════════════════

// Aggregator считает DailyScore по записям одного дня.
type Aggregator struct {
	policy PartialPolicy
}

// NewAggregator создаёт агрегатор с указанной политикой частичного выполнения.
func NewAggregator(policy PartialPolicy) *Aggregator {
	if !policy.IsValid() {
		policy = PartialNone
	}
	return &Aggregator{policy: policy}
}

// Policy возвращает политику частичного выполнения.
func (a *Aggregator) Policy() PartialPolicy {
	return a.policy
}

// Compute считает счёт пользователя за дату.
// habits - все привычки пользователя, включая отключённые: записи отключённой
// привычки приносят очки, но сама она не входит в TotalHabits.
// Повторный вызов с теми же данными даёт тот же результат.
func (a *Aggregator) Compute(userID string, date time.Time, entries []*habit.Entry, habits []*habit.Habit) (*DailyScore, error) {
	if err := shared.RequireID("score", "Compute", "user id", userID); err != nil {
		return nil, err
	}
	date = timeutil.DateOf(date)

	byID := habit.IndexByID(habits)
	result := &DailyScore{
		UserID: userID,
		Date:   date,
	}

	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e == nil {
			return nil, shared.IntegrityError("score", "Compute", "nil entry")
		}
		h, ok := byID[e.HabitID]
		if !ok {
			return nil, shared.IntegrityError("score", "Compute", "entry %s references unknown habit", e)
		}
		if e.UserID != userID || h.UserID != userID {
			return nil, shared.IntegrityError("score", "Compute", "entry %s does not belong to user %s", e, userID)
		}
		if !timeutil.IsSameDay(e.Date, date) {
			return nil, shared.IntegrityError("score", "Compute", "entry %s is not dated %s", e, timeutil.FormatDate(date))
		}
		if seen[e.HabitID] {
			return nil, shared.IntegrityError("score", "Compute", "duplicate entry for habit %s on %s", e.HabitID, timeutil.FormatDate(date))
		}
		seen[e.HabitID] = true

		points := a.pointsFor(h, e)
		if points > 0 && !result.Categories.Add(h.Category, points) {
			return nil, shared.IntegrityError("score", "Compute", "habit %s has unknown category %q", h.ID, h.Category)
		}
		result.TotalPoints += points

		if e.IsCompleted() {
			result.CompletedHabits++
		}
	}

	for _, h := range habits {
		if h.UserID == userID && h.IsApplicableOn(date) {
			result.TotalHabits++
		}
	}

	return result, nil
}

// pointsFor возвращает очки за одну запись согласно политике.
func (a *Aggregator) pointsFor(h *habit.Habit, e *habit.Entry) int {
	switch e.Status {
	case habit.StatusCompleted:
		return h.Points
	case habit.StatusPartial:
		if a.policy != PartialProportional {
			return 0
		}
		if e.Value == nil || h.TargetValue <= 0 || *e.Value <= 0 {
			return 0
		}
		points := int(math.Floor(*e.Value / h.TargetValue * float64(h.Points)))
		if points > h.Points {
			points = h.Points
		}
		return points
	default:
		return 0
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PEER RANKING
// ══════════════════════════════════════════════════════════════════════════════

// ApplyRank заполняет Rank и Percentile по счётам других пользователей за ту же дату.
// Rank плотный: равные счёта делят место. Percentile - доля пользователей
// со строго меньшим счётом. Без данных о других пользователях поля не заполняются.
func ApplyRank(s *DailyScore, peerTotals []int) {
	if len(peerTotals) == 0 {
		s.Rank = shared.Unranked
		s.Percentile = nil
		return
	}

	higher := make(map[int]struct{})
	below := 0
	for _, total := range peerTotals {
		switch {
		case total > s.TotalPoints:
			higher[total] = struct{}{}
		case total < s.TotalPoints:
			below++
		}
	}

	s.Rank = shared.Rank(len(higher) + 1)
	pct := math.Round(float64(below)/float64(len(peerTotals))*10000) / 100
	s.Percentile = &pct
}
