// Package metrics registers the Prometheus instruments the server exposes on
// /metrics. All instruments live on a dedicated registry so tests can create
// isolated instances.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every instrument the server records.
type Metrics struct {
	registry *prometheus.Registry

	// Attempt pipeline.
	AttemptsProcessed *prometheus.CounterVec   // outcome: success|fail|duplicate|rejected
	AttemptDuration   prometheus.Histogram
	RuleApplied       *prometheus.CounterVec   // rule name

	// Kernel client.
	KernelCalls    *prometheus.CounterVec // source, outcome
	KernelDuration prometheus.Histogram
	KernelCircuit  prometheus.Gauge // 0 closed, 1 open

	// Matchmaking and battles.
	QueueDepth       prometheus.Gauge
	MatchesFormed    *prometheus.CounterVec // phase: 1|2
	BattlesCompleted *prometheus.CounterVec // reason: submission|forfeit|disconnect|kick
	BattleDuration   prometheus.Histogram

	// Caches.
	SummaryCacheOps     *prometheus.CounterVec // result: hit|miss|primed|evicted
	LeaderboardRefresh  *prometheus.CounterVec // board type
	LeaderboardDuration prometheus.Histogram

	// Transport.
	HTTPDuration  *prometheus.HistogramVec // route, method, status
	WSConnections prometheus.Gauge
	WSEvents      *prometheus.CounterVec // event name
}

// New creates a Metrics set on a fresh registry with Go runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		AttemptsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena", Subsystem: "attempts", Name: "processed_total",
			Help: "Puzzle attempts processed, by outcome.",
		}, []string{"outcome"}),
		AttemptDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "arena", Subsystem: "attempts", Name: "duration_seconds",
			Help:    "End-to-end attempt transaction duration.",
			Buckets: prometheus.DefBuckets,
		}),
		RuleApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena", Subsystem: "rules", Name: "applied_total",
			Help: "Difficulty rule firings, by rule.",
		}, []string{"rule"}),

		KernelCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena", Subsystem: "kernel", Name: "calls_total",
			Help: "Kernel evaluations, by source tier and outcome.",
		}, []string{"source", "outcome"}),
		KernelDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "arena", Subsystem: "kernel", Name: "duration_seconds",
			Help:    "Kernel call latency.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5},
		}),
		KernelCircuit: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "arena", Subsystem: "kernel", Name: "circuit_open",
			Help: "Whether the kernel circuit breaker is open.",
		}),

		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "arena", Subsystem: "matchmaking", Name: "queue_depth",
			Help: "Waiting players in the matchmaking queue.",
		}),
		MatchesFormed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena", Subsystem: "matchmaking", Name: "matches_formed_total",
			Help: "Matches formed, by clustering phase.",
		}, []string{"phase"}),
		BattlesCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena", Subsystem: "battles", Name: "completed_total",
			Help: "Battles reaching a terminal state, by reason.",
		}, []string{"reason"}),
		BattleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "arena", Subsystem: "battles", Name: "duration_seconds",
			Help:    "Active battle duration at settlement.",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1800},
		}),

		SummaryCacheOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena", Subsystem: "summary_cache", Name: "ops_total",
			Help: "Summary cache operations, by result.",
		}, []string{"result"}),
		LeaderboardRefresh: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena", Subsystem: "leaderboard", Name: "refresh_total",
			Help: "Leaderboard snapshot rebuilds, by board.",
		}, []string{"board"}),
		LeaderboardDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "arena", Subsystem: "leaderboard", Name: "refresh_duration_seconds",
			Help:    "Leaderboard rebuild duration.",
			Buckets: prometheus.DefBuckets,
		}),

		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "arena", Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "arena", Subsystem: "ws", Name: "connections",
			Help: "Live websocket connections.",
		}),
		WSEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arena", Subsystem: "ws", Name: "events_total",
			Help: "Websocket events emitted, by event name.",
		}, []string{"event"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveKernelCall records one kernel call.
func (m *Metrics) ObserveKernelCall(source string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.KernelCalls.WithLabelValues(source, outcome).Inc()
	m.KernelDuration.Observe(elapsed.Seconds())
}
