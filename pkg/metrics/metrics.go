// Package metrics provides performance tracking and observability for Comet
// using Prometheus metrics. It exposes counters, gauges, and histograms for
// the parsing hot path, the execution routing layer, and the worker pool.
//
// Metrics are registered once at package init via promauto and are safe for
// concurrent use. Labels identify the backend ("js", "wasm", "gpu") and the
// transport strategy ("main", "message", "stream-transfer") so that fallback
// behavior is observable in production.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsParsed counts records emitted to callers, labeled by backend
	// and strategy.
	RecordsParsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "comet",
		Name:      "records_parsed_total",
		Help:      "Total number of CSV records emitted to callers",
	}, []string{"backend", "strategy"})

	// ParseErrors counts fatal parse failures by error type.
	ParseErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "comet",
		Name:      "parse_errors_total",
		Help:      "Total number of fatal parse failures",
	}, []string{"type"})

	// StrategyFallbacks counts automatic strategy substitutions.
	StrategyFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "comet",
		Name:      "strategy_fallbacks_total",
		Help:      "Total number of automatic transport strategy fallbacks",
	}, []string{"requested", "actual"})

	// ActiveWorkers tracks the number of live worker units per pool.
	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "comet",
		Name:      "active_workers",
		Help:      "Number of live worker execution units",
	})

	// ParseDuration observes end-to-end parse latency per backend.
	ParseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "comet",
		Name:      "parse_duration_seconds",
		Help:      "End-to-end parse latency",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 12),
	}, []string{"backend"})
)

// Timer measures a single operation's duration and records it on Stop.
type Timer struct {
	start   time.Time
	backend string
}

// NewTimer starts a timer for the given backend label.
func NewTimer(backend string) *Timer {
	return &Timer{start: time.Now(), backend: backend}
}

// Stop records the elapsed time and returns it.
func (t *Timer) Stop() time.Duration {
	d := time.Since(t.start)
	ParseDuration.WithLabelValues(t.backend).Observe(d.Seconds())
	return d
}
