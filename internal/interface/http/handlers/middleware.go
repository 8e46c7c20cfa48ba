package handlers

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// APIKeyAuth provides API key authentication.
type APIKeyAuth struct {
	headerName string
	validKeys  map[string]bool
	mu         sync.RWMutex
}

// NewAPIKeyAuth creates a new API key authenticator.
func NewAPIKeyAuth(headerName string, keys []string) *APIKeyAuth {
	validKeys := make(map[string]bool, len(keys))
	for _, key := range keys {
		if key != "" {
			validKeys[key] = true
		}
	}

	return &APIKeyAuth{
		headerName: headerName,
		validKeys:  validKeys,
	}
}

// Enabled reports whether at least one key is configured.
func (a *APIKeyAuth) Enabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.validKeys) > 0
}

// IsValid checks if an API key is valid.
func (a *APIKeyAuth) IsValid(key string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.validKeys[key]
}

// Middleware rejects requests without a valid key in the configured header
// or in an Authorization: Bearer header.
func (a *APIKeyAuth) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get(a.headerName)
		if key == "" {
			auth := c.Get(fiber.HeaderAuthorization)
			if strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if key == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "missing_api_key",
				"message": "API key is required",
			})
		}
		if !a.IsValid(key) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "invalid_api_key",
				"message": "Invalid API key",
			})
		}

		return c.Next()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CORRELATION ID MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// HeaderCorrelationID carries the correlation ID in requests and responses.
const HeaderCorrelationID = "X-Correlation-ID"

type ctxKey string

const correlationKey ctxKey = "correlation_id"

// CorrelationID reuses an incoming X-Correlation-ID or assigns a new one,
// echoes it back and stores it in the request's user context.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(HeaderCorrelationID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(HeaderCorrelationID, id)
		c.Locals(string(correlationKey), id)
		c.SetUserContext(context.WithValue(c.UserContext(), correlationKey, id))
		return c.Next()
	}
}

// CorrelationIDFrom returns the correlation ID stored by CorrelationID.
func CorrelationIDFrom(c *fiber.Ctx) string {
	id, _ := c.Locals(string(correlationKey)).(string)
	return id
}

// ══════════════════════════════════════════════════════════════════════════════
// LOGGING & METRICS MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// RequestObserver receives one observation per finished request.
type RequestObserver interface {
	ObserveRequest(route string, status int, d time.Duration)
}

// RequestLogger logs every request with its status and latency.
// Server errors are logged at error level, client errors at warn.
func RequestLogger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := responseStatus(c, err)

		level := slog.LevelInfo
		switch {
		case status >= fiber.StatusInternalServerError:
			level = slog.LevelError
		case status >= fiber.StatusBadRequest:
			level = slog.LevelWarn
		}

		logger.Log(c.UserContext(), level, "http request",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"latency", time.Since(start),
			"correlation_id", CorrelationIDFrom(c),
		)
		return err
	}
}

// RequestMetrics reports each request under its route pattern, not its raw
// path, to keep label cardinality bounded.
func RequestMetrics(observer RequestObserver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		if route == "" || (route == "/" && c.Path() != "/") {
			route = "unmatched"
		}
		observer.ObserveRequest(route, responseStatus(c, err), time.Since(start))
		return err
	}
}

func responseStatus(c *fiber.Ctx, err error) int {
	if err != nil {
		if fe, ok := err.(*fiber.Error); ok {
			return fe.Code
		}
		return fiber.StatusInternalServerError
	}
	return c.Response().StatusCode()
}
