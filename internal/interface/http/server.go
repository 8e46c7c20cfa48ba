// Package http implements the REST API of the habit engine on top of fiber:
// recording habits and entries, triggering recomputes, reading progress,
// streaks and daily scores, plus health and Prometheus endpoints.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alem-hub/habit-hub/internal/application/command"
	"github.com/alem-hub/habit-hub/internal/application/query"
	"github.com/alem-hub/habit-hub/internal/interface/http/handlers"
	"github.com/alem-hub/habit-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	// ReadTimeout - maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout - maximum duration for writing the response.
	WriteTimeout time.Duration

	// IdleTimeout - maximum duration for idle connections.
	IdleTimeout time.Duration

	// BodyLimit - maximum request body size in bytes.
	BodyLimit int

	// EnableCORS - enable CORS headers.
	EnableCORS bool

	// AllowedOrigins - allowed origins for CORS.
	AllowedOrigins []string

	// EnableMetrics - expose Prometheus metrics at /metrics.
	EnableMetrics bool

	// RateLimitPerMinute - requests per minute per IP (0 = disabled).
	RateLimitPerMinute int

	// APIKeyHeader - header name for API key authentication.
	APIKeyHeader string

	// APIKeys - valid API keys; empty disables authentication.
	APIKeys []string

	// Version is reported by the root and health endpoints.
	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        60 * time.Second,
		BodyLimit:          1 << 20, // 1 MB
		EnableCORS:         true,
		AllowedOrigins:     []string{"*"},
		EnableMetrics:      true,
		RateLimitPerMinute: 100,
		APIKeyHeader:       "X-API-Key",
		Version:            "v1",
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	// Commands (CQRS write side)
	CreateHabit *command.CreateHabitHandler
	RecordEntry *command.RecordEntryHandler
	Recomputer  command.Recomputer

	// Queries (CQRS read side)
	GetProgress   *query.GetProgressHandler
	GetStreak     *query.GetStreakHandler
	GetDailyScore *query.GetDailyScoreHandler

	// HealthChecker backs /health and /ready.
	HealthChecker handlers.HealthChecker

	// RequestObserver records per-route request metrics.
	RequestObserver handlers.RequestObserver

	// Gatherer is exposed at /metrics (default: prometheus.DefaultGatherer).
	Gatherer prometheus.Gatherer

	// Clock decides "today" for requests without an explicit date.
	Clock timeutil.Clock

	// Logger - structured logger.
	Logger *slog.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config Config
	deps   Dependencies
	app    *fiber.App
	logger *slog.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.SystemClock{}
	}
	if deps.HealthChecker == nil {
		deps.HealthChecker = handlers.NewNoopHealthChecker()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		config:    config,
		deps:      deps,
		logger:    deps.Logger.With("component", "http"),
		startedAt: time.Now(),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "habit-hub",
		ReadTimeout:           config.ReadTimeout,
		WriteTimeout:          config.WriteTimeout,
		IdleTimeout:           config.IdleTimeout,
		BodyLimit:             config.BodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleFiberError,
	})

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupMiddleware() {
	s.app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	s.app.Use(handlers.CorrelationID())
	s.app.Use(handlers.RequestLogger(s.logger))
	if s.deps.RequestObserver != nil {
		s.app.Use(handlers.RequestMetrics(s.deps.RequestObserver))
	}

	if s.config.EnableCORS {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: strings.Join(s.config.AllowedOrigins, ","),
			AllowMethods: "GET,POST,PATCH,OPTIONS",
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, " + s.config.APIKeyHeader + ", " + handlers.HeaderCorrelationID,
			MaxAge:       86400,
		}))
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	s.app.Get("/", s.handleRoot)
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/healthz", s.handleHealth) // Kubernetes alias
	s.app.Get("/ready", s.handleReady)
	s.app.Get("/live", s.handleLive)

	if s.config.EnableMetrics {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// API v1
	// ─────────────────────────────────────────────────────────────────────────
	api := s.app.Group("/api/v1")

	if s.config.RateLimitPerMinute > 0 {
		api.Use(limiter.New(limiter.Config{
			Max:        s.config.RateLimitPerMinute,
			Expiration: time.Minute,
			LimitReached: func(c *fiber.Ctx) error {
				return writeJSONError(c, fiber.StatusTooManyRequests, "rate_limited", "Too many requests")
			},
		}))
	}

	auth := handlers.NewAPIKeyAuth(s.config.APIKeyHeader, s.config.APIKeys)
	if auth.Enabled() {
		api.Use(auth.Middleware())
	}

	api.Post("/habits", s.handleCreateHabit)
	api.Patch("/habits/:habitID", s.handleSetHabitActive)
	api.Post("/entries", s.handleRecordEntry)

	users := api.Group("/users/:userID")
	users.Post("/recompute", s.handleRecompute)
	users.Get("/progress", s.handleGetProgress)
	users.Get("/scores/:date", s.handleGetDailyScore)
	users.Get("/habits/:habitID/streak", s.handleGetStreak)
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start listens on the configured address. It blocks until Shutdown is called
// or the listener fails.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("http: server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("http server starting", "address", s.config.Address())

	err := s.app.Listen(s.config.Address())

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return err
}

// Shutdown gracefully stops the server, waiting for in-flight requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.app.ShutdownWithContext(ctx)
}

// IsRunning returns true if the server is listening.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns how long the server has been running.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startedAt)
}
