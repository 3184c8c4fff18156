// Package metrics provides Prometheus instrumentation for Inlet. It defines
// collectors for the ingestion path (connections, records, persistence) and
// an HTTP server that exposes them for scraping.
//
// # Basic Usage
//
//	// Count an accepted connection
//	metrics.ConnectionsAccepted.WithLabelValues("tcp").Inc()
//
//	// Track persist latency
//	timer := metrics.NewTimer("persist")
//	store.Insert(ctx, rec)
//	metrics.PersistLatency.WithLabelValues("mongodb").Observe(float64(timer.Stop().Nanoseconds()))
//
// # Metric Types
//
// Counter: Monotonically increasing values (e.g., total records parsed)
// Gauge: Values that can go up or down (e.g., active connections)
// Histogram: Distribution of values (e.g., persist latency percentiles)
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsAccepted counts connections accepted by the listener.
	// Labels: network (tcp/unix)
	ConnectionsAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inlet_connections_accepted_total",
			Help: "Total number of connections accepted",
		},
		[]string{"network"},
	)

	// ConnectionsActive tracks connections currently being drained.
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inlet_connections_active",
			Help: "Number of connections currently open",
		},
	)

	// RecordsParsed counts records produced by parsers.
	// Labels: parser (registered parser name)
	RecordsParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inlet_records_parsed_total",
			Help: "Total number of records parsed",
		},
		[]string{"parser"},
	)

	// RecordsDropped counts records discarded by the transform hook.
	// Labels: reason (filtered/error)
	RecordsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inlet_records_dropped_total",
			Help: "Total number of records dropped before persistence",
		},
		[]string{"reason"},
	)

	// DocumentsPersisted counts documents written to storage.
	// Labels: driver (mongodb/memory)
	DocumentsPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inlet_documents_persisted_total",
			Help: "Total number of documents written to storage",
		},
		[]string{"driver"},
	)

	// PipelineErrors counts errors that terminated a connection.
	// Labels: stage (read/decompress/parse/persist)
	//
	// Example:
	//	metrics.PipelineErrors.WithLabelValues("parse").Inc()
	PipelineErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inlet_pipeline_errors_total",
			Help: "Total number of pipeline errors by stage",
		},
		[]string{"stage"},
	)

	// PersistLatency tracks the distribution of storage write latencies in
	// nanoseconds. Buckets span memory-store writes up to slow remote inserts.
	// Labels: driver (mongodb/memory)
	PersistLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "inlet_persist_latency_nanoseconds",
			Help: "Storage write latency in nanoseconds",
			Buckets: []float64{
				1000,   // 1μs - Memory operations
				10000,  // 10μs - Fast I/O operations
				100000, // 100μs - Local network operations
				1e6,    // 1ms - Standard remote writes
				1e7,    // 10ms - Loaded storage
				1e8,    // 100ms - Degraded storage
				1e9,    // 1s - Timeouts imminent
			},
		},
		[]string{"driver"},
	)
)

// Timer provides a simple timing mechanism for measuring operation durations.
// It captures the start time on creation and calculates elapsed time on stop.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
// The name parameter is for identification in logs or metrics.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Stop returns the elapsed duration since creation. The timer can be stopped
// multiple times, each returning the total elapsed time since creation.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// Server exposes the collectors over HTTP for Prometheus scraping.
type Server struct {
	server *http.Server
}

// NewServer creates a metrics server listening on addr. The handler serves
// /metrics plus a /health endpoint for liveness probes.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the HTTP handler serving /metrics and /health.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called. A closed server returns nil.
func (s *Server) Start() error {
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
