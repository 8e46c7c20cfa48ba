// Package metrics exposes Prometheus instruments for the recompute pipeline,
// the event bus and the HTTP surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "habithub"

// Metrics holds Prometheus metrics for the engine.
type Metrics struct {
	RecomputeTotal       *prometheus.CounterVec
	RecomputeDuration    *prometheus.HistogramVec
	UnlocksTotal         prometheus.Counter
	LevelUps             prometheus.Counter
	PredicateErrors      *prometheus.CounterVec
	EventsPublished      *prometheus.CounterVec
	EventHandlerFailures *prometheus.CounterVec
	BackfillRuns         *prometheus.CounterVec
	RequestCounter       *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
}

// New registers all metrics with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RecomputeTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scoring",
				Name:      "recomputes_total",
				Help:      "Total number of recompute runs by outcome",
			},
			[]string{"outcome"},
		),
		RecomputeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scoring",
				Name:      "recompute_duration_seconds",
				Help:      "Recompute duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		UnlocksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "achievements_unlocked_total",
			Help:      "Total number of achievements unlocked",
		}),
		LevelUps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "level_ups_total",
			Help:      "Total number of level-up transitions",
		}),
		PredicateErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scoring",
				Name:      "predicate_errors_total",
				Help:      "Achievement requirements skipped because they could not be evaluated",
			},
			[]string{"code"},
		),
		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Total number of events published",
			},
			[]string{"type"},
		),
		EventHandlerFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "handler_failures_total",
				Help:      "Total number of failed event handler executions",
			},
			[]string{"type"},
		),
		BackfillRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "backfill_recomputes_total",
				Help:      "Recomputes issued by the backfill job by result",
			},
			[]string{"result"},
		),
		RequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Recompute pipeline
// ─────────────────────────────────────────────────────────────────────────────

// ObserveRecompute records one recompute run.
func (m *Metrics) ObserveRecompute(outcome string, d time.Duration) {
	m.RecomputeTotal.WithLabelValues(outcome).Inc()
	m.RecomputeDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// AchievementsUnlocked counts newly unlocked achievements.
func (m *Metrics) AchievementsUnlocked(n int) {
	if n > 0 {
		m.UnlocksTotal.Add(float64(n))
	}
}

// LevelUp counts a level-up transition.
func (m *Metrics) LevelUp() {
	m.LevelUps.Inc()
}

// PredicateError counts a skipped achievement requirement.
func (m *Metrics) PredicateError(code string) {
	m.PredicateErrors.WithLabelValues(code).Inc()
}

// ─────────────────────────────────────────────────────────────────────────────
// Event bus
// ─────────────────────────────────────────────────────────────────────────────

// EventPublished implements messaging.Observer.
func (m *Metrics) EventPublished(eventType string) {
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// HandlerFinished implements messaging.Observer.
func (m *Metrics) HandlerFinished(eventType string, _ time.Duration, err error) {
	if err != nil {
		m.EventHandlerFailures.WithLabelValues(eventType).Inc()
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Scheduler and HTTP
// ─────────────────────────────────────────────────────────────────────────────

// BackfillResult counts one backfill recompute by result ("ok" or "error").
func (m *Metrics) BackfillResult(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.BackfillRuns.WithLabelValues(result).Inc()
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(route string, status int, d time.Duration) {
	m.RequestCounter.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(d.Seconds())
}
