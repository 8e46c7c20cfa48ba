package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/habit-hub/internal/application/command"
	"github.com/alem-hub/habit-hub/internal/application/query"
	"github.com/alem-hub/habit-hub/internal/application/saga"
	"github.com/alem-hub/habit-hub/internal/domain/achievement"
	"github.com/alem-hub/habit-hub/internal/domain/level"
	"github.com/alem-hub/habit-hub/internal/domain/shared"
	"github.com/alem-hub/habit-hub/internal/infrastructure/metrics"
	"github.com/alem-hub/habit-hub/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/habit-hub/internal/interface/http/handlers"
	"github.com/alem-hub/habit-hub/pkg/timeutil"
)

type testServer struct {
	server *Server
	store  *memory.Store
}

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()

	clock := timeutil.FixedClock{At: time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)}
	store := memory.NewStore()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	flow, err := saga.NewScoringFlowBuilder().
		WithStore(store).
		WithCatalog(achievement.DefaultCatalog()).
		WithClock(clock).
		WithMetrics(m).
		Build()
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	if mutate != nil {
		mutate(&cfg)
	}

	deps := Dependencies{
		CreateHabit:     command.NewCreateHabitHandler(store, nil, clock, nil),
		RecordEntry:     command.NewRecordEntryHandler(store, flow, nil, command.RecordEntryHandlerConfig{Clock: clock}),
		Recomputer:      flow,
		GetProgress:     query.NewGetProgressHandler(store, level.DefaultTable(), achievement.DefaultCatalog()),
		GetStreak:       query.NewGetStreakHandler(store, nil, clock, nil),
		GetDailyScore:   query.NewGetDailyScoreHandler(store),
		RequestObserver: m,
		Gatherer:        reg,
		Clock:           clock,
	}
	return &testServer{server: NewServer(cfg, deps), store: store}
}

func (ts *testServer) do(t *testing.T, method, path, body string, headers ...string) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := ts.server.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func (ts *testServer) createHabit(t *testing.T) string {
	t.Helper()
	status, body := ts.do(t, fiber.MethodPost, "/api/v1/habits",
		`{"user_id":"user-1","name":"Ejercicio Matutino","category":"physical","points":8}`)
	require.Equal(t, fiber.StatusCreated, status)
	return body["id"].(string)
}

func TestServer_RecordEntryFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	habitID := ts.createHabit(t)

	status, body := ts.do(t, fiber.MethodPost, "/api/v1/entries",
		`{"user_id":"user-1","habit_id":"`+habitID+`","status":"completed"}`)
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, false, body["corrected"])

	recompute := body["recompute"].(map[string]any)
	assert.Equal(t, float64(8), recompute["total_points"])
	assert.Equal(t, "2024-01-03", recompute["date"])

	// Same-day correction replaces the entry.
	status, body = ts.do(t, fiber.MethodPost, "/api/v1/entries",
		`{"user_id":"user-1","habit_id":"`+habitID+`","status":"skipped"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["corrected"])

	status, body = ts.do(t, fiber.MethodGet, "/api/v1/users/user-1/scores/today", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(0), body["total_points"])
}

func TestServer_StreakAndProgress(t *testing.T) {
	ts := newTestServer(t, nil)
	habitID := ts.createHabit(t)

	for _, date := range []string{"2024-01-01", "2024-01-02", "2024-01-03"} {
		status, _ := ts.do(t, fiber.MethodPost, "/api/v1/entries",
			`{"user_id":"user-1","habit_id":"`+habitID+`","status":"completed","date":"`+date+`"}`)
		require.Equal(t, fiber.StatusCreated, status)
	}

	status, body := ts.do(t, fiber.MethodGet, "/api/v1/users/user-1/habits/"+habitID+"/streak", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(3), body["current"])
	assert.Equal(t, true, body["is_active"])

	status, body = ts.do(t, fiber.MethodGet, "/api/v1/users/user-1/progress", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "user-1", body["user_id"])
	assert.GreaterOrEqual(t, body["total_xp"].(float64), float64(24))

	status, body = ts.do(t, fiber.MethodPost, "/api/v1/users/user-1/recompute?date=2024-01-02", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "2024-01-02", body["date"])
	assert.Equal(t, float64(8), body["total_points"])
}

func TestServer_ErrorMapping(t *testing.T) {
	ts := newTestServer(t, nil)
	habitID := ts.createHabit(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"malformed json", fiber.MethodPost, "/api/v1/entries", `{`, fiber.StatusBadRequest, "invalid_request"},
		{"validation", fiber.MethodPost, "/api/v1/entries", `{"user_id":"user-1","habit_id":"x","status":"maybe"}`, fiber.StatusBadRequest, "invalid_request"},
		{"unknown habit", fiber.MethodPost, "/api/v1/entries", `{"user_id":"user-1","habit_id":"nope","status":"completed"}`, fiber.StatusNotFound, "not_found"},
		{"future entry", fiber.MethodPost, "/api/v1/entries", `{"user_id":"user-1","habit_id":"` + habitID + `","status":"completed","date":"2024-02-01"}`, fiber.StatusBadRequest, "invalid_request"},
		{"future recompute", fiber.MethodPost, "/api/v1/users/user-1/recompute?date=2024-02-01", "", fiber.StatusBadRequest, "invalid_request"},
		{"foreign habit", fiber.MethodGet, "/api/v1/users/user-2/habits/" + habitID + "/streak", "", fiber.StatusForbidden, "forbidden"},
		{"bad date", fiber.MethodGet, "/api/v1/users/user-1/scores/03-01-2024", "", fiber.StatusBadRequest, "invalid_date"},
		{"no score yet", fiber.MethodGet, "/api/v1/users/user-1/scores/2023-12-31", "", fiber.StatusNotFound, "not_found"},
		{"unknown route", fiber.MethodGet, "/api/v1/nothing", "", fiber.StatusNotFound, "http_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ts.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body["error"])
		})
	}
}

func TestServer_APIKey(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.APIKeys = []string{"secret"} })

	status, body := ts.do(t, fiber.MethodGet, "/api/v1/users/user-1/progress", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "missing_api_key", body["error"])

	status, _ = ts.do(t, fiber.MethodGet, "/api/v1/users/user-1/progress", "", "X-API-Key", "wrong")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = ts.do(t, fiber.MethodGet, "/api/v1/users/user-1/progress", "", fiber.HeaderAuthorization, "Bearer secret")
	assert.Equal(t, fiber.StatusOK, status)

	// Health stays public.
	status, _ = ts.do(t, fiber.MethodGet, "/health", "")
	assert.Equal(t, fiber.StatusOK, status)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, nil)
	checker := handlers.NewCompositeHealthChecker("test", time.Second)
	checker.AddCheck("store", func(context.Context) (any, error) { return nil, errors.New("down") })
	ts.server.deps.HealthChecker = checker

	status, body := ts.do(t, fiber.MethodGet, "/health", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, false, body["healthy"])

	status, body = ts.do(t, fiber.MethodGet, "/ready", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, "not_ready", body["status"])

	status, _ = ts.do(t, fiber.MethodGet, "/live", "")
	assert.Equal(t, fiber.StatusOK, status)

	req := httptest.NewRequest(fiber.MethodGet, "/metrics", nil)
	resp, err := ts.server.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "habithub_http_requests_total")
}

func TestServer_ReadyWhenOnlyOptionalChecksFail(t *testing.T) {
	ts := newTestServer(t, nil)
	checker := handlers.NewCompositeHealthChecker("test", time.Second)
	checker.AddCheck("database", func(context.Context) (any, error) { return map[string]int{"total_conns": 2}, nil })
	checker.AddOptionalCheck("redis", func(context.Context) (any, error) { return nil, errors.New("connection refused") })
	ts.server.deps.HealthChecker = checker

	status, body := ts.do(t, fiber.MethodGet, "/health", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, true, body["ready"])
	assert.Equal(t, []any{"redis"}, body["degraded"])

	status, body = ts.do(t, fiber.MethodGet, "/ready", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ready", body["status"])
}

func TestServer_CorrelationID(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(fiber.MethodGet, "/live", nil)
	req.Header.Set(handlers.HeaderCorrelationID, "corr-1")
	resp, err := ts.server.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "corr-1", resp.Header.Get(handlers.HeaderCorrelationID))
}

func TestClassifyError(t *testing.T) {
	status, code := classifyError(shared.TransientError("store", "Commit", errors.New("reset")))
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, "unavailable", code)

	status, _ = classifyError(shared.IntegrityError("streak", "Compute", "overlap"))
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)

	status, _ = classifyError(shared.ErrEntryImmutable)
	assert.Equal(t, fiber.StatusConflict, status)

	status, _ = classifyError(errors.New("boom"))
	assert.Equal(t, fiber.StatusInternalServerError, status)
}
