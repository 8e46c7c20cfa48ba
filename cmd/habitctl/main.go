// Package main - habitctl, локальная консоль движка привычек.
//
// habitctl хранит привычки и отметки в одном файле SQLite и выполняет тот же
// пайплайн пересчёта, что и API: очки, серии, уровень и достижения.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/alem-hub/habit-hub/config"
	"github.com/alem-hub/habit-hub/internal/app"
	"github.com/alem-hub/habit-hub/internal/infrastructure/persistence/sqlite"
	"github.com/alem-hub/habit-hub/internal/interface/cli"
	"github.com/alem-hub/habit-hub/pkg/logger"
)

var CLI struct {
	Version     kong.VersionFlag
	DB          string `help:"SQLite database file." type:"path" default:"~/.local/share/habit-hub/habits.db" env:"HABITCTL_DB"`
	CatalogFile string `help:"Catalog JSON file with levels and achievements." type:"path" env:"SCORING_CATALOG_FILE"`
	Partial     string `help:"How PARTIAL entries are credited." enum:"none,proportional" default:"none" env:"SCORING_PARTIAL_POLICY"`
	Timezone    string `help:"Timezone that decides today." default:"Local" env:"APP_TIMEZONE"`
	JSON        bool   `name:"json" help:"Print JSON instead of text."`
	Verbose     bool   `short:"v" help:"Log debug output to stderr."`

	Habit     cli.HabitCmd     `cmd:"" help:"Manage habits."`
	Entry     cli.EntryCmd     `cmd:"" help:"Record habit outcomes."`
	Recompute cli.RecomputeCmd `cmd:"" help:"Recompute score, streaks, level and achievements."`
	Level     cli.LevelCmd     `cmd:"" help:"Show level and achievements."`
	Streak    cli.StreakCmd    `cmd:"" help:"Show a habit's streak."`
	Score     cli.ScoreCmd     `cmd:"" help:"Show a day's score."`
	Catalog   cli.CatalogCmd   `cmd:"" help:"Inspect level and achievement catalogs."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("habitctl"),
		kong.Description("Habit scoring and progression from the command line"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{"version": "v0.1.0"},
	)

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(kctx *kong.Context) error {
	ctx := context.Background()

	loc, err := time.LoadLocation(CLI.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", CLI.Timezone, err)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Format = logger.FormatConsole
	logCfg.Level = "warn"
	if CLI.Verbose {
		logCfg.Level = "debug"
	}
	log := slog.New(logger.NewHandler(os.Stderr, logCfg))
	slog.SetDefault(log)

	store, err := sqlite.Open(ctx, CLI.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	cfg := &config.Config{
		App: config.AppConfig{
			Name:     "habitctl",
			Version:  "v0.1.0",
			Timezone: CLI.Timezone,
			Location: loc,
		},
		Redis: config.RedisConfig{Disabled: true},
		Scoring: config.ScoringConfig{
			PartialPolicy:        CLI.Partial,
			CatalogFile:          CLI.CatalogFile,
			LockBackend:          config.LockBackendMemory,
			MaxAchievementPasses: 2,
			MaxAttempts:          1,
		},
		Features: config.LoadFeatureFlags(),
	}

	reg := prometheus.NewRegistry()
	engine, err := app.New(ctx, cfg, log, app.Options{
		Registerer: reg,
		Gatherer:   reg,
		Store:      store,
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	return kctx.Run(&cli.Context{
		Engine: engine,
		Out:    os.Stdout,
		JSON:   CLI.JSON,
	})
}
