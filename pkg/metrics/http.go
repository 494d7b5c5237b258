package metrics

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer is an HTTP server that exposes metrics
type MetricsServer struct {
	metrics     *Metrics
	server      *http.Server
	registry    *prometheus.Registry
	collectors  map[string]prometheus.Collector
	initialized bool
}

// NewMetricsServer creates a new metrics HTTP server
func NewMetricsServer(metrics *Metrics, addr string) *MetricsServer {
	ms := &MetricsServer{
		metrics:    metrics,
		registry:   prometheus.NewRegistry(),
		collectors: make(map[string]prometheus.Collector),
	}

	// Create HTTP server
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", ms.handleMetrics)
	mux.HandleFunc("/metrics/prometheus", ms.handlePrometheusMetrics)
	mux.HandleFunc("/metrics/json", ms.handleJSONMetrics)

	ms.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return ms
}

// Start starts the metrics server
func (ms *MetricsServer) Start() error {
	// Initialize Prometheus metrics if not already initialized
	if !ms.initialized {
		ms.initPrometheusMetrics()
	}

	// Start HTTP server in a goroutine
	go func() {
		if err := ms.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't crash the application
			// This is a non-critical component
		}
	}()

	return nil
}

// Stop stops the metrics server
func (ms *MetricsServer) Stop() error {
	return ms.server.Close()
}

// initPrometheusMetrics initializes Prometheus metrics
func (ms *MetricsServer) initPrometheusMetrics() {
	// Connection metrics
	ms.collectors["connections_active"] = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "clickhouse_async_connections_active",
			Help: "Number of active connections",
		},
		func() float64 { return float64(ms.metrics.ActiveConnections) },
	)
	ms.collectors["connections_total"] = prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "clickhouse_async_connections_total",
			Help: "Total number of connections",
		},
		func() float64 { return float64(ms.metrics.TotalConnections) },
	)
	ms.collectors["handshakes_failed"] = prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "clickhouse_async_handshakes_failed",
			Help: "Number of failed handshakes",
		},
		func() float64 { return float64(ms.metrics.FailedHandshakes) },
	)
	ms.collectors["connections_lost"] = prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "clickhouse_async_connections_lost",
			Help: "Number of connections lost to transport failures",
		},
		func() float64 { return float64(ms.metrics.ConnectionsLost) },
	)

	// Query metrics
	ms.collectors["queries_total"] = prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "clickhouse_async_queries_total",
			Help: "Total number of queries",
		},
		func() float64 { return float64(ms.metrics.TotalQueries) },
	)
	ms.collectors["queries_failed"] = prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "clickhouse_async_queries_failed",
			Help: "Number of failed queries",
		},
		func() float64 { return float64(ms.metrics.FailedQueries) },
	)
	ms.collectors["queries_canceled"] = prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "clickhouse_async_queries_canceled",
			Help: "Number of queries canceled before end of stream",
		},
		func() float64 { return float64(ms.metrics.CanceledQueries) },
	)
	ms.collectors["server_exceptions"] = prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "clickhouse_async_server_exceptions",
			Help: "Number of server-reported query exceptions",
		},
		func() float64 { return float64(ms.metrics.ServerExceptions) },
	)

	// Data metrics
	ms.collectors["blocks_received"] = prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "clickhouse_async_blocks_received",
			Help: "Number of data blocks received",
		},
		func() float64 { return float64(ms.metrics.BlocksReceived) },
	)
	ms.collectors["rows_received"] = prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "clickhouse_async_rows_received",
			Help: "Number of rows received",
		},
		func() float64 { return float64(ms.metrics.RowsReceived) },
	)

	// Ping metrics
	ms.collectors["pings_total"] = prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "clickhouse_async_pings_total",
			Help: "Total number of pings",
		},
		func() float64 { return float64(ms.metrics.TotalPings) },
	)
	ms.collectors["pings_failed"] = prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "clickhouse_async_pings_failed",
			Help: "Number of failed pings",
		},
		func() float64 { return float64(ms.metrics.FailedPings) },
	)

	// Latency metrics
	ms.collectors["query_latency_seconds"] = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "clickhouse_async_query_latency_seconds",
			Help: "Average query latency in seconds",
		},
		func() float64 {
			count := ms.metrics.QueryLatencyCount
			if count == 0 {
				return 0
			}
			return float64(ms.metrics.QueryLatencyTotal) / float64(count) / float64(time.Second)
		},
	)
	ms.collectors["handshake_latency_seconds"] = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "clickhouse_async_handshake_latency_seconds",
			Help: "Average handshake latency in seconds",
		},
		func() float64 {
			count := ms.metrics.HandshakeLatencyCount
			if count == 0 {
				return 0
			}
			return float64(ms.metrics.HandshakeLatencyTotal) / float64(count) / float64(time.Second)
		},
	)

	// Register all collectors with the registry
	for _, collector := range ms.collectors {
		ms.registry.MustRegister(collector)
	}

	ms.initialized = true
}

// handleMetrics handles the /metrics endpoint
func (ms *MetricsServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	// Default to Prometheus format
	http.Redirect(w, r, "/metrics/prometheus", http.StatusSeeOther)
}

// handlePrometheusMetrics handles the /metrics/prometheus endpoint
func (ms *MetricsServer) handlePrometheusMetrics(w http.ResponseWriter, r *http.Request) {
	// Serve Prometheus metrics
	h := promhttp.HandlerFor(ms.registry, promhttp.HandlerOpts{})
	h.ServeHTTP(w, r)
}

// handleJSONMetrics handles the /metrics/json endpoint
func (ms *MetricsServer) handleJSONMetrics(w http.ResponseWriter, r *http.Request) {
	// Get current metrics
	metricsData := ms.metrics.GetMetrics()

	// Marshal to JSON
	jsonData, err := json.MarshalIndent(metricsData, "", "  ")
	if err != nil {
		http.Error(w, "Failed to marshal metrics", http.StatusInternalServerError)
		return
	}

	// Set content type and write response
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(jsonData)))
	w.Write(jsonData)
}
