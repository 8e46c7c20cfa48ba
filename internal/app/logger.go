package app

import (
	"io"
	"log/slog"

	"github.com/alem-hub/habit-hub/config"
	"github.com/alem-hub/habit-hub/pkg/logger"
)

// NewLogger builds the process logger from the observability settings and
// installs it as the slog default. The closer releases the log file.
func NewLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.Observability.LogLevel
	logCfg.Format = logger.Format(cfg.Observability.LogFormat)
	logCfg.File = cfg.Observability.LogFile
	if cfg.App.Debug {
		logCfg.Level = "debug"
	}

	log, closer, err := logger.New(logCfg)
	if err != nil {
		return nil, nil, err
	}
	log = log.With("service", cfg.App.Name)
	slog.SetDefault(log)

	return log, closer, nil
}
