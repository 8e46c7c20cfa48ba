// Package app assembles the scoring engine from configuration. The api and
// worker binaries share it so that both run the same pipeline against the
// same storage, lock and cache.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alem-hub/habit-hub/config"
	"github.com/alem-hub/habit-hub/internal/application/command"
	"github.com/alem-hub/habit-hub/internal/application/query"
	"github.com/alem-hub/habit-hub/internal/application/saga"
	"github.com/alem-hub/habit-hub/internal/domain/progress"
	"github.com/alem-hub/habit-hub/internal/domain/score"
	"github.com/alem-hub/habit-hub/internal/domain/shared"
	"github.com/alem-hub/habit-hub/internal/infrastructure/catalog"
	"github.com/alem-hub/habit-hub/internal/infrastructure/lock"
	"github.com/alem-hub/habit-hub/internal/infrastructure/messaging"
	"github.com/alem-hub/habit-hub/internal/infrastructure/metrics"
	"github.com/alem-hub/habit-hub/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/habit-hub/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/habit-hub/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/habit-hub/internal/interface/http/handlers"
	"github.com/alem-hub/habit-hub/pkg/circuitbreaker"
	"github.com/alem-hub/habit-hub/pkg/timeutil"
)

// eventBus is what the engine needs from either bus implementation.
type eventBus interface {
	shared.EventBus
	Close() error
}

// Engine holds the wired scoring engine and everything it owns.
type Engine struct {
	Config   *config.Config
	Logger   *slog.Logger
	Clock    timeutil.Clock
	Store    progress.Store
	Catalogs *catalog.Catalogs
	Flow     *saga.ScoringFlow
	Metrics  *metrics.Metrics
	Health   *handlers.CompositeHealthChecker

	// Gatherer exposes the engine's metrics registry.
	Gatherer prometheus.Gatherer

	// StreakCache is nil when Redis or the streak cache feature is off.
	StreakCache query.StreakCache

	// Events is the bus every recompute publishes to.
	Events shared.EventBus

	closers []func()
}

// Options adjusts how the engine is assembled.
type Options struct {
	// Registerer receives the engine metrics (default: prometheus.DefaultRegisterer).
	Registerer prometheus.Registerer

	// Gatherer is paired with Registerer (default: prometheus.DefaultGatherer).
	Gatherer prometheus.Gatherer

	// Store overrides the storage chosen from configuration.
	Store progress.Store

	// Clock overrides the wall clock in the configured timezone.
	Clock timeutil.Clock
}

// New connects storage and Redis, loads the catalogs and builds the scoring flow.
// Close must be called to release connections.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (e *Engine, err error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Features == nil {
		cfg.Features = config.NewFeatureFlags()
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	if opts.Clock == nil {
		opts.Clock = timeutil.SystemClock{Location: cfg.App.Location}
	}

	e = &Engine{
		Config:   cfg,
		Logger:   logger,
		Clock:    opts.Clock,
		Metrics:  metrics.New(opts.Registerer),
		Gatherer: opts.Gatherer,
		Health:   handlers.NewCompositeHealthChecker(cfg.App.Version, cfg.HTTP.HealthTimeout),
	}
	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// Catalogs
	// ─────────────────────────────────────────────────────────────────────────
	e.Catalogs, err = catalog.Load(cfg.Scoring.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	logger.Info("catalogs loaded",
		"levels", e.Catalogs.Levels.MaxLevel(),
		"achievements", e.Catalogs.Achievements.Len(),
		"file", cfg.Scoring.CatalogFile,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// Storage
	// ─────────────────────────────────────────────────────────────────────────
	if err := e.openStore(ctx, opts.Store); err != nil {
		return nil, err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Redis (optional unless the lock lives there)
	// ─────────────────────────────────────────────────────────────────────────
	cache, err := e.openRedis()
	if err != nil {
		return nil, err
	}

	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.Scoring.LockBackend == config.LockBackendRedis {
		locker = redis.NewLocker(cache, cfg.Scoring.LockTTL)
	}

	var invalidator saga.StreakCache
	if cache != nil && cfg.Features.StreakCacheEnabled() {
		breaker := circuitbreaker.CacheBreaker(redis.IsCacheFailure, func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		})
		sc := redis.NewStreakCache(cache, cfg.Redis.StreakTTL).WithBreaker(breaker)
		e.StreakCache = sc
		invalidator = sc
		e.addCacheCheck(cache, breaker)
	} else if cache != nil {
		e.addCacheCheck(cache, nil)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Event bus
	// ─────────────────────────────────────────────────────────────────────────
	bus, err := e.openEventBus(ctx, cache)
	if err != nil {
		return nil, err
	}
	e.Events = bus
	e.closers = append(e.closers, func() { _ = bus.Close() })
	if err := bus.SubscribeAll(e.logEvent); err != nil {
		return nil, fmt.Errorf("subscribe event log: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Scoring flow
	// ─────────────────────────────────────────────────────────────────────────
	policy, err := score.ParsePartialPolicy(cfg.Scoring.PartialPolicy)
	if err != nil {
		return nil, err
	}

	flowCfg := saga.DefaultScoringFlowConfig()
	flowCfg.PartialPolicy = policy
	flowCfg.MaxAchievementPasses = cfg.Scoring.MaxAchievementPasses
	flowCfg.Features = cfg.Features
	flowCfg.Logger = logger

	builder := saga.NewScoringFlowBuilder().
		WithStore(e.Store).
		WithLocker(locker).
		WithLevels(e.Catalogs.Levels).
		WithCatalog(e.Catalogs.Achievements).
		WithEventBus(bus).
		WithClock(e.Clock).
		WithMetrics(e.Metrics).
		WithConfig(flowCfg)
	if invalidator != nil {
		builder = builder.WithStreakCache(invalidator)
	}

	e.Flow, err = builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build scoring flow: %w", err)
	}

	return e, nil
}

func (e *Engine) openStore(ctx context.Context, override progress.Store) error {
	if override != nil {
		e.Store = override
		return nil
	}

	dbCfg := e.Config.Database
	if dbCfg.URL == "" {
		e.Logger.Warn("DATABASE_URL is not set, using the in-memory store")
		e.Store = memory.NewStore()
		return nil
	}

	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = dbCfg.URL
	pgCfg.MaxConns = int32(dbCfg.MaxConns)
	pgCfg.MinConns = int32(dbCfg.MinConns)
	pgCfg.MaxConnLifetime = dbCfg.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = dbCfg.ConnMaxIdleTime

	e.Logger.Info("connecting to database...")
	conn, err := postgres.NewConnection(ctx, pgCfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	e.closers = append(e.closers, conn.Close)
	e.Health.AddCheck("database", handlers.NewDatabaseCheck(conn.Health))

	if dbCfg.AutoMigrate {
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		e.Logger.Info("database schema is up to date")
	}

	e.Store = postgres.NewStore(conn)
	return nil
}

func (e *Engine) openRedis() (*redis.Cache, error) {
	rc := e.Config.Redis
	if rc.Disabled {
		return nil, nil
	}

	redisCfg := redis.DefaultConfig()
	redisCfg.Host = rc.Host
	redisCfg.Port = rc.Port
	redisCfg.Password = rc.Password
	redisCfg.DB = rc.DB
	redisCfg.PoolSize = rc.PoolSize
	redisCfg.DialTimeout = rc.DialTimeout
	redisCfg.ReadTimeout = rc.ReadTimeout
	redisCfg.WriteTimeout = rc.WriteTimeout

	e.Logger.Info("connecting to Redis...", "addr", redisCfg.Addr())
	cache, err := redis.NewCache(redisCfg)
	if err != nil {
		if e.Config.Scoring.LockBackend == config.LockBackendRedis {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		e.Logger.Warn("failed to connect to Redis, caching disabled", "error", err)
		return nil, nil
	}

	e.closers = append(e.closers, func() { _ = cache.Close() })
	return cache, nil
}

// addCacheCheck registers Redis as required only when the recompute lock
// lives there; otherwise a Redis outage just degrades the service.
func (e *Engine) addCacheCheck(cache *redis.Cache, breaker *circuitbreaker.CircuitBreaker) {
	check := handlers.NewCacheCheck(cache, breaker)
	if e.Config.Scoring.LockBackend == config.LockBackendRedis {
		e.Health.AddCheck("redis", check)
		return
	}
	e.Health.AddOptionalCheck("redis", check)
}

func (e *Engine) openEventBus(ctx context.Context, cache *redis.Cache) (eventBus, error) {
	local := messaging.DefaultInMemoryEventBusConfig()
	local.Logger = e.Logger
	local.Observer = e.Metrics

	if cache == nil || !e.Config.Features.EventFanoutEnabled() {
		return messaging.NewInMemoryEventBus(local), nil
	}

	bus, err := messaging.NewRedisEventBus(ctx, messaging.RedisEventBusConfig{
		Client:         cache.Client(),
		ChannelName:    e.Config.Redis.EventsChannel,
		LocalBusConfig: local,
		Logger:         e.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("start event fan-out: %w", err)
	}
	return bus, nil
}

func (e *Engine) logEvent(event shared.Event) error {
	e.Logger.Debug("domain event",
		"event_type", string(event.EventType()),
		"aggregate_id", event.AggregateID(),
	)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Handlers
// ─────────────────────────────────────────────────────────────────────────────

// CreateHabitHandler returns the habit command handler bound to the engine.
func (e *Engine) CreateHabitHandler() *command.CreateHabitHandler {
	return command.NewCreateHabitHandler(e.Store, nil, e.Clock, e.Logger)
}

// RecordEntryHandler returns the entry command handler bound to the engine.
func (e *Engine) RecordEntryHandler() *command.RecordEntryHandler {
	return command.NewRecordEntryHandler(e.Store, e.Flow, e.Events, command.RecordEntryHandlerConfig{
		Clock:       e.Clock,
		Logger:      e.Logger,
		MaxAttempts: e.Config.Scoring.MaxAttempts,
	})
}

// GetProgressHandler returns the progress query handler.
func (e *Engine) GetProgressHandler() *query.GetProgressHandler {
	return query.NewGetProgressHandler(e.Store, e.Catalogs.Levels, e.Catalogs.Achievements)
}

// GetStreakHandler returns the streak query handler, cache-backed when available.
func (e *Engine) GetStreakHandler() *query.GetStreakHandler {
	return query.NewGetStreakHandler(e.Store, e.StreakCache, e.Clock, e.Logger)
}

// GetDailyScoreHandler returns the daily score query handler.
func (e *Engine) GetDailyScoreHandler() *query.GetDailyScoreHandler {
	return query.NewGetDailyScoreHandler(e.Store)
}

// Close releases connections in reverse order of acquisition.
func (e *Engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}
