// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// queryRequestsTotal counts completed /api/query and /api/query/agent
	// requests, partitioned by outcome: "ok" or "error".
	queryRequestsTotal *prometheus.CounterVec

	// queryDurationSeconds records the wall-clock duration of each query
	// request from first byte received to response completion.
	queryDurationSeconds *prometheus.HistogramVec

	// documentsIngestedTotal counts documents successfully ingested.
	documentsIngestedTotal prometheus.Counter

	// chunksIngestedTotal counts chunks written to the vector index.
	chunksIngestedTotal prometheus.Counter

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler name, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		queryRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docq",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total number of query requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		queryDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docq",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of query requests from receipt to response completion.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		documentsIngestedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docq",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total number of documents successfully ingested.",
		}),

		chunksIngestedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docq",
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Total number of chunks written to the vector index.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docq",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docq",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// queryTimer starts a timer for one query request. The returned func records
// the counter and duration under whatever outcome points to at call time, so
// handlers can flip it to "error" before the deferred call runs.
func (s *Server) queryTimer(outcome *string) func() {
	start := time.Now()
	return func() {
		s.metrics.queryRequestsTotal.WithLabelValues(*outcome).Inc()
		s.metrics.queryDurationSeconds.WithLabelValues(*outcome).Observe(time.Since(start).Seconds())
	}
}
