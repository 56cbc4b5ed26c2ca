package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RPC metrics
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "max_rpc_requests_total",
			Help: "Total RPC requests by target, method and outcome",
		},
		[]string{"target", "method", "ok"},
	)

	RPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "max_rpc_request_duration_seconds",
			Help:    "RPC request dispatch latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"target", "method"},
	)

	// Sync metrics
	SyncTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "max_sync_tasks_total",
			Help: "Total sync tasks by terminal state",
		},
		[]string{"state"},
	)

	SyncsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "max_syncs_total",
			Help: "Total syncs by final status",
		},
		[]string{"status"},
	)

	SyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "max_sync_duration_seconds",
			Help:    "Wall time of completed syncs",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
	)

	// Engine metrics
	EngineStoresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "max_engine_stores_total",
			Help: "Total entity upserts through the engine",
		},
	)

	EngineQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "max_engine_queries_total",
			Help: "Total engine queries",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RPCRequestsTotal,
		RPCRequestDuration,
		SyncTasksTotal,
		SyncsTotal,
		SyncDuration,
		EngineStoresTotal,
		EngineQueriesTotal,
	)
}

// Handler returns the Prometheus scrape handler, mountable on the HTTP
// transport at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
