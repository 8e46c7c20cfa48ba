package http

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/alem-hub/habit-hub/internal/application/command"
	"github.com/alem-hub/habit-hub/internal/application/query"
	"github.com/alem-hub/habit-hub/internal/application/saga"
	"github.com/alem-hub/habit-hub/internal/domain/habit"
	"github.com/alem-hub/habit-hub/internal/domain/shared"
	"github.com/alem-hub/habit-hub/internal/interface/http/handlers"
	"github.com/alem-hub/habit-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"name":    "Habit Hub API",
		"version": s.config.Version,
		"endpoints": fiber.Map{
			"health":   "/health",
			"metrics":  "/metrics",
			"habits":   "/api/v1/habits",
			"entries":  "/api/v1/entries",
			"progress": "/api/v1/users/{user_id}/progress",
		},
	})
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	status := s.deps.HealthChecker.Check(c.UserContext())
	if !status.Healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(status)
	}
	return c.JSON(status)
}

// handleReady reports readiness (for Kubernetes). Degraded optional checks
// still count as ready.
func (s *Server) handleReady(c *fiber.Ctx) error {
	status := s.deps.HealthChecker.Check(c.UserContext())
	if !status.Ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not_ready",
			"reason": status.Message,
		})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

// handleLive handles the liveness endpoint (for Kubernetes).
func (s *Server) handleLive(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// HABIT & ENTRY HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleCreateHabit handles POST /api/v1/habits
func (s *Server) handleCreateHabit(c *fiber.Ctx) error {
	if s.deps.CreateHabit == nil {
		return notConfigured(c)
	}

	var cmd command.CreateHabitCommand
	if err := c.BodyParser(&cmd); err != nil {
		return writeJSONError(c, fiber.StatusBadRequest, "invalid_request", "Invalid JSON payload")
	}

	created, err := s.deps.CreateHabit.Handle(c.UserContext(), cmd)
	if err != nil {
		return s.writeDomainError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toHabitResponse(created))
}

// setActiveRequest is the body of PATCH /api/v1/habits/:habitID
type setActiveRequest struct {
	UserID string `json:"user_id"`
	Active bool   `json:"active"`
}

// handleSetHabitActive handles PATCH /api/v1/habits/:habitID
func (s *Server) handleSetHabitActive(c *fiber.Ctx) error {
	if s.deps.CreateHabit == nil {
		return notConfigured(c)
	}

	var req setActiveRequest
	if err := c.BodyParser(&req); err != nil {
		return writeJSONError(c, fiber.StatusBadRequest, "invalid_request", "Invalid JSON payload")
	}

	hab, err := s.deps.CreateHabit.HandleSetActive(c.UserContext(), command.SetHabitActiveCommand{
		UserID:  req.UserID,
		HabitID: c.Params("habitID"),
		Active:  req.Active,
	})
	if err != nil {
		return s.writeDomainError(c, err)
	}
	return c.JSON(toHabitResponse(hab))
}

// handleRecordEntry handles POST /api/v1/entries
// The entry is stored and the recompute for its day runs before responding.
func (s *Server) handleRecordEntry(c *fiber.Ctx) error {
	if s.deps.RecordEntry == nil {
		return notConfigured(c)
	}

	var cmd command.RecordEntryCommand
	if err := c.BodyParser(&cmd); err != nil {
		return writeJSONError(c, fiber.StatusBadRequest, "invalid_request", "Invalid JSON payload")
	}
	cmd.CorrelationID = handlers.CorrelationIDFrom(c)

	result, err := s.deps.RecordEntry.Handle(c.UserContext(), cmd)
	if err != nil {
		return s.writeDomainError(c, err)
	}

	status := fiber.StatusCreated
	if result.Corrected {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(recordEntryResponse{
		Entry:     toEntryResponse(result.Entry),
		Corrected: result.Corrected,
		Recompute: toRecomputeResponse(result.Recompute),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRecompute handles POST /api/v1/users/:userID/recompute?date=YYYY-MM-DD
func (s *Server) handleRecompute(c *fiber.Ctx) error {
	if s.deps.Recomputer == nil {
		return notConfigured(c)
	}

	date, err := s.dateParam(c.Query("date"))
	if err != nil {
		return writeJSONError(c, fiber.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
	}

	result, err := s.deps.Recomputer.Recompute(c.UserContext(), c.Params("userID"), date)
	if err != nil {
		return s.writeDomainError(c, err)
	}
	return c.JSON(toRecomputeResponse(result))
}

// handleGetProgress handles GET /api/v1/users/:userID/progress
func (s *Server) handleGetProgress(c *fiber.Ctx) error {
	if s.deps.GetProgress == nil {
		return notConfigured(c)
	}

	dto, err := s.deps.GetProgress.Handle(c.UserContext(), query.GetProgressQuery{UserID: c.Params("userID")})
	if err != nil {
		return s.writeDomainError(c, err)
	}
	return c.JSON(dto)
}

// handleGetDailyScore handles GET /api/v1/users/:userID/scores/:date
// The literal "today" is accepted in place of a date.
func (s *Server) handleGetDailyScore(c *fiber.Ctx) error {
	if s.deps.GetDailyScore == nil {
		return notConfigured(c)
	}

	raw := c.Params("date")
	if raw == "today" {
		raw = ""
	}
	date, err := s.dateParam(raw)
	if err != nil {
		return writeJSONError(c, fiber.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
	}

	dto, err := s.deps.GetDailyScore.Handle(c.UserContext(), query.GetDailyScoreQuery{
		UserID: c.Params("userID"),
		Date:   date,
	})
	if err != nil {
		return s.writeDomainError(c, err)
	}
	return c.JSON(dto)
}

// handleGetStreak handles GET /api/v1/users/:userID/habits/:habitID/streak
func (s *Server) handleGetStreak(c *fiber.Ctx) error {
	if s.deps.GetStreak == nil {
		return notConfigured(c)
	}

	dto, err := s.deps.GetStreak.Handle(c.UserContext(), query.GetStreakQuery{
		UserID:  c.Params("userID"),
		HabitID: c.Params("habitID"),
	})
	if err != nil {
		return s.writeDomainError(c, err)
	}
	return c.JSON(dto)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSES
// ══════════════════════════════════════════════════════════════════════════════

type habitResponse struct {
	ID           string  `json:"id"`
	UserID       string  `json:"user_id"`
	Name         string  `json:"name"`
	Category     string  `json:"category"`
	TrackingType string  `json:"tracking_type"`
	Frequency    string  `json:"frequency"`
	TargetValue  float64 `json:"target_value,omitempty"`
	TargetUnit   string  `json:"target_unit,omitempty"`
	Points       int     `json:"points"`
	IsActive     bool    `json:"is_active"`
	DisplayOrder int     `json:"display_order"`
	CreatedAt    string  `json:"created_at"`
}

func toHabitResponse(h *habit.Habit) habitResponse {
	return habitResponse{
		ID:           h.ID,
		UserID:       h.UserID,
		Name:         h.Name,
		Category:     string(h.Category),
		TrackingType: string(h.TrackingType),
		Frequency:    string(h.Frequency),
		TargetValue:  h.TargetValue,
		TargetUnit:   h.TargetUnit,
		Points:       h.Points,
		IsActive:     h.IsActive,
		DisplayOrder: h.DisplayOrder,
		CreatedAt:    h.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type entryResponse struct {
	ID               string   `json:"id"`
	HabitID          string   `json:"habit_id"`
	UserID           string   `json:"user_id"`
	Date             string   `json:"date"`
	Status           string   `json:"status"`
	Value            *float64 `json:"value,omitempty"`
	Text             string   `json:"text,omitempty"`
	TimeSpentMinutes *int     `json:"time_spent_minutes,omitempty"`
	Difficulty       *int     `json:"difficulty,omitempty"`
	Mood             *int     `json:"mood,omitempty"`
	RecordedAt       string   `json:"recorded_at"`
}

func toEntryResponse(e *habit.Entry) entryResponse {
	return entryResponse{
		ID:               e.ID,
		HabitID:          e.HabitID,
		UserID:           e.UserID,
		Date:             timeutil.FormatDate(e.Date),
		Status:           string(e.Status),
		Value:            e.Value,
		Text:             e.Text,
		TimeSpentMinutes: e.TimeSpentMinutes,
		Difficulty:       e.Difficulty,
		Mood:             e.Mood,
		RecordedAt:       e.RecordedAt.UTC().Format(time.RFC3339),
	}
}

type recomputeResponse struct {
	UserID          string   `json:"user_id"`
	Date            string   `json:"date"`
	TotalPoints     int      `json:"total_points"`
	CompletedHabits int      `json:"completed_habits"`
	TotalHabits     int      `json:"total_habits"`
	Level           int      `json:"level"`
	TotalXP         int      `json:"total_xp"`
	LevelChanged    bool     `json:"level_changed"`
	NewAchievements []string `json:"new_achievements"`
}

func toRecomputeResponse(r *saga.RecomputeResult) *recomputeResponse {
	if r == nil {
		return nil
	}
	resp := &recomputeResponse{
		UserID:          r.UserID,
		Date:            timeutil.FormatDate(r.Date),
		Level:           r.Level.Level,
		TotalXP:         r.Level.TotalXP,
		LevelChanged:    r.LevelChanged,
		NewAchievements: make([]string, 0, len(r.NewAchievements)),
	}
	if r.DailyScore != nil {
		resp.TotalPoints = r.DailyScore.TotalPoints
		resp.CompletedHabits = r.DailyScore.CompletedHabits
		resp.TotalHabits = r.DailyScore.TotalHabits
	}
	for _, u := range r.NewAchievements {
		resp.NewAchievements = append(resp.NewAchievements, u.Code)
	}
	return resp
}

type recordEntryResponse struct {
	Entry     entryResponse      `json:"entry"`
	Corrected bool               `json:"corrected"`
	Recompute *recomputeResponse `json:"recompute,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// dateParam parses a YYYY-MM-DD value; empty means today.
func (s *Server) dateParam(raw string) (time.Time, error) {
	if raw == "" {
		return timeutil.Today(s.deps.Clock), nil
	}
	return timeutil.ParseDate(raw)
}

// errorResponse is the body of every error reply.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSONError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(errorResponse{Error: code, Message: message})
}

func notConfigured(c *fiber.Ctx) error {
	return writeJSONError(c, fiber.StatusNotImplemented, "not_implemented", "Handler not configured")
}

// writeDomainError maps the error taxonomy onto HTTP status codes.
func (s *Server) writeDomainError(c *fiber.Ctx, err error) error {
	status, code := classifyError(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed",
			"path", c.Path(),
			"correlation_id", handlers.CorrelationIDFrom(c),
			"error", err,
		)
		if status == fiber.StatusInternalServerError {
			return writeJSONError(c, status, code, "Internal server error")
		}
	}
	return writeJSONError(c, status, code, err.Error())
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrHabitUserMismatch):
		return fiber.StatusForbidden, "forbidden"
	case shared.IsNotFound(err):
		return fiber.StatusNotFound, "not_found"
	case shared.IsValidation(err), errors.Is(err, shared.ErrInvalidFormat):
		return fiber.StatusBadRequest, "invalid_request"
	case errors.Is(err, shared.ErrImmutable), errors.Is(err, shared.ErrInvalidState), shared.IsAlreadyExists(err):
		return fiber.StatusConflict, "conflict"
	case shared.IsDataIntegrity(err):
		return fiber.StatusUnprocessableEntity, "data_integrity"
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "timeout"
	case shared.IsRetryable(err):
		return fiber.StatusServiceUnavailable, "unavailable"
	default:
		return fiber.StatusInternalServerError, "internal_error"
	}
}

// handleFiberError renders errors returned by fiber itself, such as unknown
// routes or oversized bodies, in the same shape as handler errors.
func (s *Server) handleFiberError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return writeJSONError(c, fe.Code, "http_error", fe.Message)
	}
	s.logger.Error("unhandled error", "path", c.Path(), "error", err)
	return writeJSONError(c, fiber.StatusInternalServerError, "internal_error", "Internal server error")
}
