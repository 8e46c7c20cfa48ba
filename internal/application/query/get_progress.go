package query

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/habit-hub/internal/domain/achievement"
	"github.com/alem-hub/habit-hub/internal/domain/level"
	"github.com/alem-hub/habit-hub/internal/domain/progress"
	"github.com/alem-hub/habit-hub/internal/domain/score"
	"github.com/alem-hub/habit-hub/internal/domain/shared"
	"github.com/alem-hub/habit-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS QUERY
// Уровень, прогресс до следующего уровня и полученные достижения.
// Только чтение сохранённого состояния, без пересчёта.
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressQuery содержит параметры запроса прогресса.
type GetProgressQuery struct {
	// UserID - пользователь.
	UserID string
}

// AchievementDTO - полученное достижение.
type AchievementDTO struct {
	Code       string    `json:"code"`
	Title      string    `json:"title"`
	Emoji      string    `json:"emoji"`
	Rarity     string    `json:"rarity"`
	Points     int       `json:"points"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// ProgressDTO - представление уровня пользователя.
type ProgressDTO struct {
	// ─────────────────────────────────────────────────────────────────────────
	// Уровень
	// ─────────────────────────────────────────────────────────────────────────

	UserID        string `json:"user_id"`
	Level         int    `json:"level"`
	Name          string `json:"name"`
	Emoji         string `json:"emoji"`
	Color         string `json:"color"`
	TotalXP       int    `json:"total_xp"`
	TotalPoints   int    `json:"total_points"`
	XPToNextLevel int    `json:"xp_to_next_level"`
	Percent       int    `json:"percent"`
	IsMaxLevel    bool   `json:"is_max_level"`

	// ─────────────────────────────────────────────────────────────────────────
	// Статистика
	// ─────────────────────────────────────────────────────────────────────────

	LongestStreak int              `json:"longest_streak"`
	Achievements  []AchievementDTO `json:"achievements"`
}

// GetProgressHandler обрабатывает запрос прогресса.
type GetProgressHandler struct {
	reader  progress.Reader
	levels  *level.Table
	catalog *achievement.Catalog
}

// NewGetProgressHandler создаёт обработчик.
func NewGetProgressHandler(reader progress.Reader, levels *level.Table, catalog *achievement.Catalog) *GetProgressHandler {
	return &GetProgressHandler{reader: reader, levels: levels, catalog: catalog}
}

// Handle выполняет запрос. Пользователь без данных находится на первом уровне.
func (h *GetProgressHandler) Handle(ctx context.Context, q GetProgressQuery) (*ProgressDTO, error) {
	if err := shared.RequireID("query", "GetProgress", "user id", q.UserID); err != nil {
		return nil, err
	}

	data, err := h.reader.GetLevelData(ctx, q.UserID)
	if err != nil {
		if !shared.IsNotFound(err) {
			return nil, fmt.Errorf("get_progress: failed to get level data: %w", err)
		}
		data = &level.UserLevelData{UserID: q.UserID}
	}

	p, err := h.levels.Compute(data.TotalXP)
	if err != nil {
		return nil, err
	}

	unlocks, err := h.reader.GetUnlocks(ctx, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("get_progress: failed to get achievements: %w", err)
	}

	dto := &ProgressDTO{
		UserID:        q.UserID,
		Level:         p.Level,
		Name:          p.Name,
		Emoji:         p.Emoji,
		Color:         p.Color,
		TotalXP:       p.TotalXP,
		TotalPoints:   data.TotalPoints,
		XPToNextLevel: p.XPToNextLevel(),
		Percent:       p.Percent(),
		IsMaxLevel:    p.IsMaxLevel,
		LongestStreak: data.LongestStreak,
		Achievements:  make([]AchievementDTO, 0, len(unlocks)),
	}

	for _, u := range unlocks {
		item := AchievementDTO{Code: u.Code, Title: u.Code, Points: u.Points, UnlockedAt: u.UnlockedAt}
		if a, ok := h.catalog.Get(u.Code); ok {
			item.Title = a.Title
			item.Rarity = string(a.Rarity)
			item.Emoji = a.Rarity.Emoji()
		}
		dto.Achievements = append(dto.Achievements, item)
	}

	return dto, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GET DAILY SCORE QUERY
// ══════════════════════════════════════════════════════════════════════════════

// GetDailyScoreQuery содержит параметры запроса дневного счёта.
type GetDailyScoreQuery struct {
	UserID string
	Date   time.Time
}

// DailyScoreDTO - дневной счёт с разбивкой по категориям.
type DailyScoreDTO struct {
	UserID          string                  `json:"user_id"`
	Date            string                  `json:"date"`
	TotalPoints     int                     `json:"total_points"`
	Categories      map[shared.Category]int `json:"categories"`
	CompletedHabits int                     `json:"completed_habits"`
	TotalHabits     int                     `json:"total_habits"`
	CompletionRate  int                     `json:"completion_rate"`
	IsPerfectDay    bool                    `json:"is_perfect_day"`
	Rank            int                     `json:"rank,omitempty"`
	Percentile      *float64                `json:"percentile,omitempty"`
}

// GetDailyScoreHandler обрабатывает запрос дневного счёта.
type GetDailyScoreHandler struct {
	reader progress.Reader
}

// NewGetDailyScoreHandler создаёт обработчик.
func NewGetDailyScoreHandler(reader progress.Reader) *GetDailyScoreHandler {
	return &GetDailyScoreHandler{reader: reader}
}

// Handle выполняет запрос. Отсутствующий счёт возвращает ErrNotFound.
func (h *GetDailyScoreHandler) Handle(ctx context.Context, q GetDailyScoreQuery) (*DailyScoreDTO, error) {
	if err := shared.RequireID("query", "GetDailyScore", "user id", q.UserID); err != nil {
		return nil, err
	}

	ds, err := h.reader.GetDailyScore(ctx, q.UserID, timeutil.DateOf(q.Date))
	if err != nil {
		return nil, fmt.Errorf("get_daily_score: %w", err)
	}
	return toDailyScoreDTO(ds), nil
}

func toDailyScoreDTO(ds *score.DailyScore) *DailyScoreDTO {
	return &DailyScoreDTO{
		UserID:          ds.UserID,
		Date:            timeutil.FormatDate(ds.Date),
		TotalPoints:     ds.TotalPoints,
		Categories:      ds.Categories.AsMap(),
		CompletedHabits: ds.CompletedHabits,
		TotalHabits:     ds.TotalHabits,
		CompletionRate:  ds.CompletionRate(),
		IsPerfectDay:    ds.IsPerfectDay(),
		Rank:            ds.Rank.Int(),
		Percentile:      ds.Percentile,
	}
}
