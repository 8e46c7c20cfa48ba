// Package main - точка входа для фоновых процессов (Worker) Habit Hub.
//
// Worker отвечает за периодические задачи:
// - Ночной пересчёт последних дней для всех пользователей, чтобы серии
//   прерывались и счёт оставался верным даже без новых отметок
// - Повтор пересчётов после временных сбоев хранилища
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/alem-hub/habit-hub/config"
	"github.com/alem-hub/habit-hub/internal/app"
	"github.com/alem-hub/habit-hub/internal/infrastructure/scheduler"
	"github.com/alem-hub/habit-hub/internal/infrastructure/scheduler/jobs"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	// Создаём корневой контекст, отменяемый сигналом завершения
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log, closeLog, err := app.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	defer closeLog.Close()

	log.Info("starting Habit Hub Worker",
		"env", cfg.App.Environment,
		"timezone", cfg.App.Timezone,
		"backfill_cron", cfg.Scheduler.BackfillCron,
	)

	if !cfg.Scheduler.Enabled {
		log.Warn("scheduler is disabled, nothing to do")
		return nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ДВИЖОК
	// ─────────────────────────────────────────────────────────────────────────
	engine, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing connections...")
		engine.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ПЛАНИРОВЩИК И ЗАДАЧИ
	// ─────────────────────────────────────────────────────────────────────────
	sched, err := scheduler.New(scheduler.Config{
		Logger:     log,
		Location:   cfg.App.Location,
		JobTimeout: cfg.Scheduler.JobTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	backfillCfg := jobs.DefaultBackfillConfig()
	backfillCfg.LookbackDays = cfg.Scheduler.BackfillLookbackDays
	backfillCfg.MaxAttempts = cfg.Scoring.MaxAttempts
	backfillCfg.Logger = log

	backfill := jobs.NewBackfillJob(
		engine.Store,
		func(ctx context.Context, userID string, date time.Time) error {
			_, err := engine.Flow.Recompute(ctx, userID, date)
			return err
		},
		engine.Clock,
		engine.Metrics,
		backfillCfg,
	)

	if err := sched.Register(backfill, gocron.CronJob(cfg.Scheduler.BackfillCron, false)); err != nil {
		return fmt.Errorf("failed to register %s: %w", backfill.Name(), err)
	}

	sched.OnJobComplete(func(result scheduler.JobResult) {
		if !result.Success {
			return
		}
		if stats := backfill.LastStats(); stats != nil && result.JobName == backfill.Name() {
			log.Info("backfill summary",
				"users", stats.Users,
				"recomputes", stats.Recomputes,
				"failures", stats.Failures,
			)
		}
	})

	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	if cfg.Scheduler.RunOnStart {
		if _, err := sched.RunNow(ctx, backfill.Name()); err != nil {
			log.Warn("initial backfill failed", "error", err)
		}
	}

	for _, info := range sched.ListJobs() {
		log.Info("job scheduled", "job", info.Name, "next_run", info.NextRun)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("Habit Hub Worker is running")
	<-ctx.Done()

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	if err := sched.Stop(); err != nil {
		log.Warn("scheduler stop failed", "error", err)
	}

	log.Info("shutdown completed successfully")
	return nil
}
