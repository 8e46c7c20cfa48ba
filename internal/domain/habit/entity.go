// Package habit содержит доменную модель привычек и журнала их выполнения.
// Журнал записей (Entry) - единственный источник истины, из которого
// пересчитываются серии, дневные очки, уровень и достижения.
package habit

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alem-hub/habit-hub/internal/domain/shared"
	"github.com/alem-hub/habit-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// TrackingType определяет, как пользователь отмечает выполнение привычки.
type TrackingType string

const (
	// TrackingBinary - выполнено / не выполнено.
	TrackingBinary TrackingType = "binary"
	// TrackingNumeric - числовое значение (стаканы воды, страницы).
	TrackingNumeric TrackingType = "numeric"
	// TrackingDuration - длительность в минутах.
	TrackingDuration TrackingType = "duration"
	// TrackingRating - оценка по шкале.
	TrackingRating TrackingType = "rating"
	// TrackingText - свободный текст (дневник).
	TrackingText TrackingType = "text"
)

// IsValid проверяет корректность типа отслеживания.
func (t TrackingType) IsValid() bool {
	switch t {
	case TrackingBinary, TrackingNumeric, TrackingDuration, TrackingRating, TrackingText:
		return true
	default:
		return false
	}
}

// Frequency определяет период, в котором привычка должна выполняться.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// IsValid проверяет корректность частоты.
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	default:
		return false
	}
}

// Period возвращает календарную единицу, в которой считается непрерывность серии.
func (f Frequency) Period() timeutil.Period {
	switch f {
	case FrequencyWeekly:
		return timeutil.PeriodWeek
	case FrequencyMonthly:
		return timeutil.PeriodMonth
	default:
		return timeutil.PeriodDay
	}
}

// Status - результат выполнения привычки за день.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
)

// IsValid проверяет корректность статуса.
func (s Status) IsValid() bool {
	switch s {
	case StatusCompleted, StatusSkipped, StatusPartial, StatusFailed:
		return true
	default:
		return false
	}
}

// ParseStatus разбирает статус из строки.
func ParseStatus(value string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(value)))
	if !s.IsValid() {
		return "", shared.ErrInvalidStatus
	}
	return s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: HABIT
// ══════════════════════════════════════════════════════════════════════════════

// Habit - определение привычки, принадлежащее пользователю.
// Привычки с записями никогда не удаляются физически, а отключаются (IsActive=false).
type Habit struct {
	// ID - уникальный идентификатор (UUID).
	ID string

	// UserID - владелец привычки.
	UserID string

	// Name - отображаемое название, например "Ejercicio Matutino".
	Name string

	// Category - одна из восьми фиксированных категорий.
	Category shared.Category

	// TrackingType - способ отметки выполнения.
	TrackingType TrackingType

	// Frequency - период выполнения.
	Frequency Frequency

	// TargetValue - целевое значение для числовых привычек (0 - нет цели).
	TargetValue float64

	// TargetUnit - единица измерения цели ("min", "pages").
	TargetUnit string

	// Points - награда за одно выполнение.
	Points int

	// IsActive - активна ли привычка.
	IsActive bool

	// DisplayOrder - порядок отображения.
	DisplayOrder int

	// CreatedAt - время создания.
	CreatedAt time.Time
}

// NewHabitParams содержит параметры для создания привычки.
type NewHabitParams struct {
	ID           string
	UserID       string
	Name         string
	Category     shared.Category
	TrackingType TrackingType
	Frequency    Frequency
	TargetValue  float64
	TargetUnit   string
	Points       int
	DisplayOrder int
	CreatedAt    time.Time
}

// NewHabit создаёт привычку с валидацией всех полей.
func NewHabit(params NewHabitParams) (*Habit, error) {
	if err := shared.RequireID("habit", "NewHabit", "habit id", params.ID); err != nil {
		return nil, err
	}
	if err := shared.RequireID("habit", "NewHabit", "user id", params.UserID); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(params.Name)
	if name == "" || len(name) > 100 {
		return nil, shared.NewDomainError("habit", "NewHabit", shared.ErrInvalidInput, "name must be 1-100 chars")
	}
	if !params.Category.IsValid() {
		return nil, shared.ErrInvalidCategory
	}

	tracking := params.TrackingType
	if tracking == "" {
		tracking = TrackingBinary
	}
	if !tracking.IsValid() {
		return nil, shared.NewDomainError("habit", "NewHabit", shared.ErrInvalidInput, "invalid tracking type")
	}

	frequency := params.Frequency
	if frequency == "" {
		frequency = FrequencyDaily
	}
	if !frequency.IsValid() {
		return nil, shared.ErrInvalidFrequency
	}

	if params.Points < 0 {
		return nil, shared.NewDomainError("habit", "NewHabit", shared.ErrNegativeValue, "points cannot be negative")
	}
	if params.TargetValue < 0 {
		return nil, shared.NewDomainError("habit", "NewHabit", shared.ErrNegativeValue, "target value cannot be negative")
	}

	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return &Habit{
		ID:           params.ID,
		UserID:       params.UserID,
		Name:         name,
		Category:     params.Category,
		TrackingType: tracking,
		Frequency:    frequency,
		TargetValue:  params.TargetValue,
		TargetUnit:   strings.TrimSpace(params.TargetUnit),
		Points:       params.Points,
		IsActive:     true,
		DisplayOrder: params.DisplayOrder,
		CreatedAt:    createdAt,
	}, nil
}

// Deactivate мягко отключает привычку. Записи и серии сохраняются.
func (h *Habit) Deactivate() {
	h.IsActive = false
}

// Activate снова включает привычку.
func (h *Habit) Activate() {
	h.IsActive = true
}

// Period возвращает период непрерывности серии для этой привычки.
func (h *Habit) Period() timeutil.Period {
	return h.Frequency.Period()
}

// IsApplicableOn возвращает true, если привычка учитывается в знаменателе
// дневного счёта на указанную дату. Недельная или месячная привычка
// учитывается в каждый день периода, в котором она была создана.
func (h *Habit) IsApplicableOn(day time.Time) bool {
	if !h.IsActive {
		return false
	}
	p := h.Period()
	return timeutil.PeriodIndex(p, h.CreatedAt) <= timeutil.PeriodIndex(p, day)
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry - одна запись журнала: результат привычки за календарный день.
// Уникальна по (HabitID, Date). Неизменяема, кроме исправления в тот же день.
type Entry struct {
	// ID - уникальный идентификатор записи.
	ID string

	// HabitID - привычка, к которой относится запись.
	HabitID string

	// UserID - владелец записи.
	UserID string

	// Date - календарный день (полночь UTC).
	Date time.Time

	// Status - результат за день.
	Status Status

	// Value - числовое значение (для numeric/duration/rating).
	Value *float64

	// Text - свободный текст.
	Text string

	// TimeSpentMinutes - затраченное время.
	TimeSpentMinutes *int

	// Difficulty - субъективная сложность (1-5).
	Difficulty *int

	// Mood - настроение (1-5).
	Mood *int

	// RecordedAt - момент записи или последнего исправления.
	RecordedAt time.Time
}

// NewEntryParams содержит параметры для создания записи.
type NewEntryParams struct {
	ID               string
	HabitID          string
	UserID           string
	Date             time.Time
	Status           Status
	Value            *float64
	Text             string
	TimeSpentMinutes *int
	Difficulty       *int
	Mood             *int
	RecordedAt       time.Time
}

// NewEntry создаёт запись журнала с валидацией.
func NewEntry(params NewEntryParams) (*Entry, error) {
	if err := shared.RequireID("habit", "NewEntry", "entry id", params.ID); err != nil {
		return nil, err
	}
	if err := shared.RequireID("habit", "NewEntry", "habit id", params.HabitID); err != nil {
		return nil, err
	}
	if err := shared.RequireID("habit", "NewEntry", "user id", params.UserID); err != nil {
		return nil, err
	}
	if params.Date.IsZero() {
		return nil, shared.NewDomainError("habit", "NewEntry", shared.ErrEmptyValue, "date is required")
	}
	if !params.Status.IsValid() {
		return nil, shared.ErrInvalidStatus
	}
	if err := validateScale("difficulty", params.Difficulty); err != nil {
		return nil, err
	}
	if err := validateScale("mood", params.Mood); err != nil {
		return nil, err
	}
	if params.TimeSpentMinutes != nil && *params.TimeSpentMinutes < 0 {
		return nil, shared.NewDomainError("habit", "NewEntry", shared.ErrNegativeValue, "time spent cannot be negative")
	}

	recordedAt := params.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	return &Entry{
		ID:               params.ID,
		HabitID:          params.HabitID,
		UserID:           params.UserID,
		Date:             timeutil.DateOf(params.Date),
		Status:           params.Status,
		Value:            params.Value,
		Text:             params.Text,
		TimeSpentMinutes: params.TimeSpentMinutes,
		Difficulty:       params.Difficulty,
		Mood:             params.Mood,
		RecordedAt:       recordedAt,
	}, nil
}

func validateScale(name string, v *int) error {
	if v == nil {
		return nil
	}
	if *v < 1 || *v > 5 {
		return shared.NewDomainError("habit", "NewEntry", shared.ErrValueOutOfRange, name+" must be between 1 and 5")
	}
	return nil
}

// IsCompleted возвращает true для выполненной записи.
func (e *Entry) IsCompleted() bool {
	return e.Status == StatusCompleted
}

// CanBeCorrectedOn проверяет, что запись можно исправить в указанный день.
// Исправление разрешено только в тот же календарный день, что и запись.
func (e *Entry) CanBeCorrectedOn(today time.Time) bool {
	return timeutil.IsSameDay(e.Date, today)
}

// Correct заменяет изменяемые поля записи значениями из update.
// Возвращает ErrEntryImmutable, если день записи уже прошёл.
func (e *Entry) Correct(update *Entry, today time.Time) error {
	if update.HabitID != e.HabitID || !timeutil.IsSameDay(update.Date, e.Date) {
		return shared.NewDomainError("habit", "Correct", shared.ErrInvalidInput, "correction must target the same habit and date")
	}
	if !e.CanBeCorrectedOn(today) {
		return shared.ErrEntryImmutable
	}

	e.Status = update.Status
	e.Value = update.Value
	e.Text = update.Text
	e.TimeSpentMinutes = update.TimeSpentMinutes
	e.Difficulty = update.Difficulty
	e.Mood = update.Mood
	e.RecordedAt = update.RecordedAt
	return nil
}

// String возвращает краткое описание записи для логов.
func (e *Entry) String() string {
	return fmt.Sprintf("%s@%s=%s", e.HabitID, timeutil.FormatDate(e.Date), e.Status)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// SortEntriesDesc сортирует записи от новых к старым по дате.
// При равных датах порядок стабилен, чтобы дубликаты оставались видимыми.
func SortEntriesDesc(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.After(entries[j].Date)
	})
}

// GroupByHabit раскладывает записи по привычкам, сохраняя исходный порядок.
func GroupByHabit(entries []*Entry) map[string][]*Entry {
	out := make(map[string][]*Entry)
	for _, e := range entries {
		out[e.HabitID] = append(out[e.HabitID], e)
	}
	return out
}

// IndexByID строит индекс привычек по ID.
func IndexByID(habits []*Habit) map[string]*Habit {
	out := make(map[string]*Habit, len(habits))
	for _, h := range habits {
		out[h.ID] = h
	}
	return out
}
