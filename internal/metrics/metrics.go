// Package metrics holds the Prometheus instrumentation for the scheduling
// core. Collectors are registered once via promauto at construction.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the scheduler.
type Metrics struct {
	// Event store
	EventsIngested *prometheus.CounterVec
	EventsDeduped  prometheus.Counter

	// Reducer
	ReducerRuns     *prometheus.CounterVec
	ReducerDuration prometheus.Histogram
	ReducerQueueLag prometheus.Gauge

	// Queue planner
	QueueBuilds *prometheus.CounterVec

	// Session protocol
	ProtocolRejections *prometheus.CounterVec
	SessionsCompleted  prometheus.Counter

	// Fluency gate
	FluencyTests *prometheus.CounterVec
}

// New creates and registers all collectors on the default registerer.
func New() *Metrics {
	return &Metrics{
		EventsIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hifz_events_ingested_total",
				Help: "Review events accepted by the event store",
			},
			[]string{"event_type"},
		),
		EventsDeduped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "hifz_events_deduplicated_total",
				Help: "Ingest calls short-circuited by the client_event_id unique key",
			},
		),
		ReducerRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hifz_reducer_runs_total",
				Help: "Per-item state reductions executed",
			},
			[]string{"result"}, // ok, error
		),
		ReducerDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hifz_reducer_duration_seconds",
				Help:    "Wall time of one (user, ayah) reduction",
				Buckets: prometheus.DefBuckets,
			},
		),
		ReducerQueueLag: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "hifz_reducer_inflight_keys",
				Help: "Distinct (user, ayah) keys with reducer work in flight",
			},
		),
		QueueBuilds: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hifz_queue_builds_total",
				Help: "Today-queue computations by resulting mode",
			},
			[]string{"mode"},
		),
		ProtocolRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hifz_protocol_rejections_total",
				Help: "Step submissions rejected by the 3x3 sequence validator",
			},
			[]string{"scaffolding"},
		),
		SessionsCompleted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "hifz_sessions_completed_total",
				Help: "Session runs transitioned to COMPLETED",
			},
		),
		FluencyTests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hifz_fluency_tests_total",
				Help: "Fluency gate submissions by result",
			},
			[]string{"result"}, // passed, failed
		),
	}
}
