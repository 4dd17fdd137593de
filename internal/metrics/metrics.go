// Package metrics exposes the engine's internal counters and gauges
// (C7) via prometheus/client_golang, scraped by /metrics on the
// Broadcaster's HTTP server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector the engine populates. It is built once
// at startup and threaded into each component that has something to
// report.
type Metrics struct {
	registry *prometheus.Registry

	HydrationBatchesTotal   *prometheus.CounterVec
	HydrationPoolsHydrated  prometheus.Counter
	SubscriptionReconnects  *prometheus.CounterVec
	SubscriptionActive      *prometheus.GaugeVec
	DedupSuppressedTotal    prometheus.Counter
	DedupForwardedTotal     prometheus.Counter
	DecodeErrorsTotal       prometheus.Counter
	EvaluationsTotal        prometheus.Counter
	EvaluationDuration      prometheus.Histogram
	EventsDroppedTotal      prometheus.Counter
	BroadcastObserversGauge prometheus.Gauge
	BroadcastFanOutTotal    prometheus.Counter
}

// New constructs a Metrics registered against a fresh, unshared
// registry so repeated construction in tests doesn't collide with the
// default global registry's duplicate-registration panics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HydrationBatchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_hydration_batches_total",
			Help: "Hydration batches attempted, partitioned by outcome.",
		}, []string{"outcome"}),

		HydrationPoolsHydrated: f.NewCounter(prometheus.CounterOpts{
			Name: "arbiter_hydration_pools_hydrated_total",
			Help: "Pools whose reserves were successfully set during hydration.",
		}),

		SubscriptionReconnects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_subscription_reconnects_total",
			Help: "Reconnect attempts, partitioned by batch index.",
		}, []string{"batch"}),

		SubscriptionActive: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arbiter_subscription_active",
			Help: "1 if the batch currently has a live subscription, else 0.",
		}, []string{"batch"}),

		DedupSuppressedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "arbiter_dedup_suppressed_total",
			Help: "Sync logs suppressed as duplicates of an already-seen transaction hash.",
		}),

		DedupForwardedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "arbiter_dedup_forwarded_total",
			Help: "Sync logs forwarded to decode because they were not duplicates.",
		}),

		DecodeErrorsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "arbiter_decode_errors_total",
			Help: "Sync logs that failed to decode and were skipped.",
		}),

		EvaluationsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "arbiter_evaluations_total",
			Help: "Cycle evaluations performed.",
		}),

		EvaluationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbiter_evaluation_duration_seconds",
			Help:    "Wall time spent pricing a single cycle under the evaluator lock.",
			Buckets: prometheus.ExponentialBuckets(1e-7, 4, 10),
		}),

		EventsDroppedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "arbiter_events_dropped_total",
			Help: "RateUpdate events dropped because the handoff channel to the broadcaster was full.",
		}),

		BroadcastObserversGauge: f.NewGauge(prometheus.GaugeOpts{
			Name: "arbiter_broadcast_observers",
			Help: "Currently connected WebSocket observers.",
		}),

		BroadcastFanOutTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "arbiter_broadcast_fanout_total",
			Help: "RateUpdate messages written to observer connections.",
		}),
	}
}

// Register mounts the Prometheus scrape endpoint on mux at /metrics.
func (m *Metrics) Register(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
