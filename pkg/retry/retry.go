// Package retry повторяет пересчёт при временных сбоях хранилища.
//
// Повторяются только ошибки, которые классификатор считает временными
// (по умолчанию shared.IsRetryable). Ошибки целостности данных и валидации
// возвращаются сразу.
package retry

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/alem-hub/habit-hub/internal/domain/shared"
)

// Config holds retry configuration.
type Config struct {
	// MaxAttempts counts the first call. Values below 1 mean a single call.
	MaxAttempts int

	// InitialDelay is the wait before the second attempt; it doubles after
	// every retry up to MaxDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// JitterFactor spreads each delay by ±factor.
	JitterFactor float64

	// RetryIf decides which failures are transient. Nil uses shared.IsRetryable.
	RetryIf func(error) bool

	Logger *slog.Logger
}

// RecomputeConfig returns the settings used around recompute calls.
func RecomputeConfig(maxAttempts int, logger *slog.Logger) Config {
	return Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		JitterFactor: 0.1,
		Logger:       logger,
	}
}

// Retrier runs an operation until it succeeds, fails permanently or runs
// out of attempts.
type Retrier struct {
	config Config
}

// New creates a Retrier.
func New(config Config) *Retrier {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.MaxDelay < config.InitialDelay {
		config.MaxDelay = config.InitialDelay
	}
	if config.RetryIf == nil {
		config.RetryIf = shared.IsRetryable
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Retrier{config: config}
}

// Do calls operation and retries transient failures. It returns the last
// error unchanged.
func (r *Retrier) Do(ctx context.Context, operation func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := operation(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.config.RetryIf(err) || attempt == r.config.MaxAttempts {
			return err
		}

		delay := r.delay(attempt)
		r.config.Logger.Warn("retrying after transient failure",
			"attempt", attempt,
			"max_attempts", r.config.MaxAttempts,
			"delay", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}

	return lastErr
}

func (r *Retrier) delay(attempt int) time.Duration {
	d := r.config.InitialDelay << (attempt - 1)
	if d > r.config.MaxDelay || d <= 0 {
		d = r.config.MaxDelay
	}
	if r.config.JitterFactor > 0 {
		d += time.Duration(float64(d) * r.config.JitterFactor * (rand.Float64()*2 - 1))
	}
	if d < 0 {
		d = 0
	}
	return d
}
