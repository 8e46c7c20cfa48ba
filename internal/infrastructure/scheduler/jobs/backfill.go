// Package jobs contains the scheduled jobs of the habit engine.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alem-hub/habit-hub/pkg/retry"
	"github.com/alem-hub/habit-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// BACKFILL JOB
// ══════════════════════════════════════════════════════════════════════════════

// RecomputeFunc recomputes derived state for one user and day.
type RecomputeFunc func(ctx context.Context, userID string, date time.Time) error

// UserLister lists every user with at least one habit.
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// BackfillMetrics receives one result per recompute attempt.
type BackfillMetrics interface {
	BackfillResult(ok bool)
}

type noopMetrics struct{}

func (noopMetrics) BackfillResult(bool) {}

// BackfillConfig contains configuration for the backfill job.
type BackfillConfig struct {
	// LookbackDays is how many days, ending today, are recomputed per user.
	LookbackDays int

	// MaxAttempts bounds retries of transient failures per recompute.
	MaxAttempts int

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultBackfillConfig returns sensible defaults.
func DefaultBackfillConfig() BackfillConfig {
	return BackfillConfig{
		LookbackDays: 2,
		MaxAttempts:  3,
	}
}

// BackfillStats contains statistics from one run.
type BackfillStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Users       int
	Recomputes  int
	Failures    int
}

// BackfillJob re-derives scores, streaks and levels for recent days so that
// streak breaks are recorded even for users who stopped logging.
type BackfillJob struct {
	users     UserLister
	recompute RecomputeFunc
	clock     timeutil.Clock
	metrics   BackfillMetrics
	retrier   *retry.Retrier
	logger    *slog.Logger
	lookback  int

	lastStats atomic.Pointer[BackfillStats]
}

// NewBackfillJob creates a new backfill job.
func NewBackfillJob(
	users UserLister,
	recompute RecomputeFunc,
	clock timeutil.Clock,
	metrics BackfillMetrics,
	config BackfillConfig,
) *BackfillJob {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.LookbackDays <= 0 {
		config.LookbackDays = 1
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &BackfillJob{
		users:     users,
		recompute: recompute,
		clock:     clock,
		metrics:   metrics,
		retrier:   retry.New(retry.RecomputeConfig(config.MaxAttempts, config.Logger.With("job", "backfill"))),
		logger:    config.Logger.With("job", "backfill"),
		lookback:  config.LookbackDays,
	}
}

// Name returns the job name.
func (j *BackfillJob) Name() string {
	return "backfill_recompute"
}

// Description returns a human-readable description.
func (j *BackfillJob) Description() string {
	return fmt.Sprintf("Recomputes the last %d day(s) for every user", j.lookback)
}

// LastStats returns statistics of the most recent run, or nil.
func (j *BackfillJob) LastStats() *BackfillStats {
	return j.lastStats.Load()
}

// Run recomputes each user's lookback window in ascending date order.
// A failing user does not stop the run; the failures are reported together.
func (j *BackfillJob) Run(ctx context.Context) error {
	stats := &BackfillStats{StartedAt: time.Now()}
	defer func() {
		stats.CompletedAt = time.Now()
		stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
		j.lastStats.Store(stats)
	}()

	userIDs, err := j.users.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("backfill: list users: %w", err)
	}
	stats.Users = len(userIDs)

	today := timeutil.Today(j.clock)
	dates := make([]time.Time, 0, j.lookback)
	for offset := j.lookback - 1; offset >= 0; offset-- {
		dates = append(dates, today.AddDate(0, 0, -offset))
	}

	var errs []error
	for _, userID := range userIDs {
		for _, date := range dates {
			if err := ctx.Err(); err != nil {
				return err
			}

			err := j.retrier.Do(ctx, func(ctx context.Context) error {
				return j.recompute(ctx, userID, date)
			})
			stats.Recomputes++
			j.metrics.BackfillResult(err == nil)

			if err != nil {
				stats.Failures++
				errs = append(errs, fmt.Errorf("%s@%s: %w", userID, timeutil.FormatDate(date), err))
				j.logger.Warn("backfill recompute failed",
					"user_id", userID,
					"date", timeutil.FormatDate(date),
					"error", err,
				)
			}
		}
	}

	j.logger.Info("backfill finished",
		"users", stats.Users,
		"recomputes", stats.Recomputes,
		"failures", stats.Failures,
	)

	if len(errs) > 0 {
		return fmt.Errorf("backfill: %d of %d recomputes failed: %w", stats.Failures, stats.Recomputes, errors.Join(errs...))
	}
	return nil
}
