package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects performance metrics for the client
type Metrics struct {
	// Connection metrics
	ActiveConnections int64
	TotalConnections  int64
	FailedHandshakes  int64
	ConnectionsLost   int64

	// Query metrics
	TotalQueries     int64
	FailedQueries    int64
	CanceledQueries  int64
	ServerExceptions int64

	// Data metrics
	BlocksReceived int64
	RowsReceived   int64
	BytesRead      int64
	BytesWritten   int64

	// Ping metrics
	TotalPings  int64
	FailedPings int64

	// Latency metrics (in nanoseconds)
	QueryLatencyTotal     int64
	QueryLatencyCount     int64
	HandshakeLatencyTotal int64
	HandshakeLatencyCount int64

	// Mutex for atomic updates to complex structures
	mu sync.Mutex
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ConnectionStarted records a completed handshake
func (m *Metrics) ConnectionStarted(latency time.Duration) {
	atomic.AddInt64(&m.TotalConnections, 1)
	atomic.AddInt64(&m.ActiveConnections, 1)
	atomic.AddInt64(&m.HandshakeLatencyTotal, int64(latency))
	atomic.AddInt64(&m.HandshakeLatencyCount, 1)
}

// ConnectionClosed records the end of a connection
func (m *Metrics) ConnectionClosed() {
	atomic.AddInt64(&m.ActiveConnections, -1)
}

// HandshakeFailed records a rejected or failed handshake
func (m *Metrics) HandshakeFailed() {
	atomic.AddInt64(&m.FailedHandshakes, 1)
}

// ConnectionLost records a transport-level failure
func (m *Metrics) ConnectionLost() {
	atomic.AddInt64(&m.ConnectionsLost, 1)
}

// QueryExecuted records a completed query
func (m *Metrics) QueryExecuted(latency time.Duration) {
	atomic.AddInt64(&m.TotalQueries, 1)
	atomic.AddInt64(&m.QueryLatencyTotal, int64(latency))
	atomic.AddInt64(&m.QueryLatencyCount, 1)
}

// QueryFailed records a failed query
func (m *Metrics) QueryFailed() {
	atomic.AddInt64(&m.FailedQueries, 1)
}

// QueryCanceled records a query abandoned before end of stream
func (m *Metrics) QueryCanceled() {
	atomic.AddInt64(&m.CanceledQueries, 1)
}

// ServerExceptionReceived records a server-reported query error
func (m *Metrics) ServerExceptionReceived() {
	atomic.AddInt64(&m.ServerExceptions, 1)
}

// BlockReceived records an incoming data block
func (m *Metrics) BlockReceived(rows int) {
	atomic.AddInt64(&m.BlocksReceived, 1)
	atomic.AddInt64(&m.RowsReceived, int64(rows))
}

// PingCompleted records the outcome of a ping
func (m *Metrics) PingCompleted(success bool) {
	atomic.AddInt64(&m.TotalPings, 1)
	if !success {
		atomic.AddInt64(&m.FailedPings, 1)
	}
}

// GetMetrics returns a copy of the current metrics
func (m *Metrics) GetMetrics() map[string]interface{} {
	metrics := make(map[string]interface{})

	// Connection metrics
	metrics["active_connections"] = atomic.LoadInt64(&m.ActiveConnections)
	metrics["total_connections"] = atomic.LoadInt64(&m.TotalConnections)
	metrics["failed_handshakes"] = atomic.LoadInt64(&m.FailedHandshakes)
	metrics["connections_lost"] = atomic.LoadInt64(&m.ConnectionsLost)

	// Query metrics
	metrics["total_queries"] = atomic.LoadInt64(&m.TotalQueries)
	metrics["failed_queries"] = atomic.LoadInt64(&m.FailedQueries)
	metrics["canceled_queries"] = atomic.LoadInt64(&m.CanceledQueries)
	metrics["server_exceptions"] = atomic.LoadInt64(&m.ServerExceptions)

	// Data metrics
	metrics["blocks_received"] = atomic.LoadInt64(&m.BlocksReceived)
	metrics["rows_received"] = atomic.LoadInt64(&m.RowsReceived)

	// Ping metrics
	metrics["total_pings"] = atomic.LoadInt64(&m.TotalPings)
	metrics["failed_pings"] = atomic.LoadInt64(&m.FailedPings)

	// Calculated latency metrics (in milliseconds)
	queryLatencyTotal := atomic.LoadInt64(&m.QueryLatencyTotal)
	queryLatencyCount := atomic.LoadInt64(&m.QueryLatencyCount)
	if queryLatencyCount > 0 {
		metrics["avg_query_latency_ms"] = float64(queryLatencyTotal) / float64(queryLatencyCount) / float64(time.Millisecond)
	} else {
		metrics["avg_query_latency_ms"] = 0.0
	}

	handshakeLatencyTotal := atomic.LoadInt64(&m.HandshakeLatencyTotal)
	handshakeLatencyCount := atomic.LoadInt64(&m.HandshakeLatencyCount)
	if handshakeLatencyCount > 0 {
		metrics["avg_handshake_latency_ms"] = float64(handshakeLatencyTotal) / float64(handshakeLatencyCount) / float64(time.Millisecond)
	} else {
		metrics["avg_handshake_latency_ms"] = 0.0
	}

	return metrics
}

// Reset resets all metrics
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ActiveConnections = 0
	m.TotalConnections = 0
	m.FailedHandshakes = 0
	m.ConnectionsLost = 0
	m.TotalQueries = 0
	m.FailedQueries = 0
	m.CanceledQueries = 0
	m.ServerExceptions = 0
	m.BlocksReceived = 0
	m.RowsReceived = 0
	m.BytesRead = 0
	m.BytesWritten = 0
	m.TotalPings = 0
	m.FailedPings = 0
	m.QueryLatencyTotal = 0
	m.QueryLatencyCount = 0
	m.HandshakeLatencyTotal = 0
	m.HandshakeLatencyCount = 0
}
