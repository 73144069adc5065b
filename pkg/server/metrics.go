package server

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ServerMetrics aggregates metrics across the server.
type ServerMetrics struct {
	// Connections
	ActiveConnections int64
	TotalConnections  int64
	PeakConnections   int64

	// Events
	EventsReceived  int64
	EventsProcessed int64
	EventsDropped   int64

	// Instructions and replies
	InstructionsSent int64
	RepliesReceived  int64
	RepliesBuffered  int64
	RepliesDiscarded int64

	// Network
	BytesSent     int64
	BytesReceived int64

	// Errors
	HandlerErrors  int64
	HandlerPanics  int64
	RejectedFrames int64
	ProtocolErrors int64
	WriteErrors    int64

	// Latency (microseconds)
	EventLatencyP50 int64
	EventLatencyP99 int64

	CollectedAt time.Time
}

// Metrics returns a snapshot of the server's metrics.
func (s *Server) Metrics() *ServerMetrics {
	m := s.metrics.Snapshot()
	stats := s.conns.Stats()
	m.ActiveConnections = int64(stats.Active)
	m.TotalConnections = int64(stats.TotalCreated)
	m.PeakConnections = int64(stats.Peak)
	return m
}

// MetricsCollector collects and aggregates metrics over time. All methods
// are safe for concurrent use.
type MetricsCollector struct {
	eventsReceived   atomic.Int64
	eventsProcessed  atomic.Int64
	eventsDropped    atomic.Int64
	instructionsSent atomic.Int64
	repliesReceived  atomic.Int64
	repliesBuffered  atomic.Int64
	repliesDiscarded atomic.Int64
	bytesSent        atomic.Int64
	bytesReceived    atomic.Int64
	handlerErrors    atomic.Int64
	handlerPanics    atomic.Int64
	rejectedFrames   atomic.Int64
	protocolErrors   atomic.Int64
	writeErrors      atomic.Int64

	latencyMu sync.Mutex
	latencies []int64
}

// NewMetricsCollector creates a new MetricsCollector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		latencies: make([]int64, 0, 1000),
	}
}

// RecordEventReceived records an event received.
func (m *MetricsCollector) RecordEventReceived() { m.eventsReceived.Add(1) }

// RecordEventProcessed records an event processed.
func (m *MetricsCollector) RecordEventProcessed() { m.eventsProcessed.Add(1) }

// RecordEventDropped records an event dropped because the queue was full.
func (m *MetricsCollector) RecordEventDropped() { m.eventsDropped.Add(1) }

// RecordInstructionSent records an instruction written to a client.
func (m *MetricsCollector) RecordInstructionSent(bytes int) {
	m.instructionsSent.Add(1)
	m.bytesSent.Add(int64(bytes))
}

// RecordReplyReceived records a reply read from a client.
func (m *MetricsCollector) RecordReplyReceived() { m.repliesReceived.Add(1) }

// RecordReplyBuffered records a reply held for a later Call.
func (m *MetricsCollector) RecordReplyBuffered() { m.repliesBuffered.Add(1) }

// RecordReplyDiscarded records a reply nobody will read.
func (m *MetricsCollector) RecordReplyDiscarded() { m.repliesDiscarded.Add(1) }

// RecordBytesReceived records bytes received.
func (m *MetricsCollector) RecordBytesReceived(n int) { m.bytesReceived.Add(int64(n)) }

// RecordHandlerError records a handler that returned an error.
func (m *MetricsCollector) RecordHandlerError() { m.handlerErrors.Add(1) }

// RecordHandlerPanic records a handler panic.
func (m *MetricsCollector) RecordHandlerPanic() { m.handlerPanics.Add(1) }

// RecordRejectedFrame records a frame refused by ValidateData.
func (m *MetricsCollector) RecordRejectedFrame() { m.rejectedFrames.Add(1) }

// RecordProtocolError records a frame that could not be decoded.
func (m *MetricsCollector) RecordProtocolError() { m.protocolErrors.Add(1) }

// RecordWriteError records a write error.
func (m *MetricsCollector) RecordWriteError() { m.writeErrors.Add(1) }

// RecordEventLatency records event processing latency.
func (m *MetricsCollector) RecordEventLatency(d time.Duration) {
	m.latencyMu.Lock()
	defer m.latencyMu.Unlock()

	// Keep only recent samples
	if len(m.latencies) >= 1000 {
		m.latencies = m.latencies[500:]
	}
	m.latencies = append(m.latencies, d.Microseconds())
}

// Snapshot returns current metrics.
func (m *MetricsCollector) Snapshot() *ServerMetrics {
	metrics := &ServerMetrics{
		EventsReceived:   m.eventsReceived.Load(),
		EventsProcessed:  m.eventsProcessed.Load(),
		EventsDropped:    m.eventsDropped.Load(),
		InstructionsSent: m.instructionsSent.Load(),
		RepliesReceived:  m.repliesReceived.Load(),
		RepliesBuffered:  m.repliesBuffered.Load(),
		RepliesDiscarded: m.repliesDiscarded.Load(),
		BytesSent:        m.bytesSent.Load(),
		BytesReceived:    m.bytesReceived.Load(),
		HandlerErrors:    m.handlerErrors.Load(),
		HandlerPanics:    m.handlerPanics.Load(),
		RejectedFrames:   m.rejectedFrames.Load(),
		ProtocolErrors:   m.protocolErrors.Load(),
		WriteErrors:      m.writeErrors.Load(),
		CollectedAt:      time.Now(),
	}
	metrics.EventLatencyP50, metrics.EventLatencyP99 = m.latencyPercentiles()
	return metrics
}

func (m *MetricsCollector) latencyPercentiles() (p50, p99 int64) {
	m.latencyMu.Lock()
	sorted := make([]int64, len(m.latencies))
	copy(sorted, m.latencies)
	m.latencyMu.Unlock()

	n := len(sorted)
	if n == 0 {
		return 0, 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[n/2], sorted[(n*99)/100]
}

// Reset resets all counters.
func (m *MetricsCollector) Reset() {
	for _, c := range []*atomic.Int64{
		&m.eventsReceived, &m.eventsProcessed, &m.eventsDropped,
		&m.instructionsSent, &m.repliesReceived, &m.repliesBuffered, &m.repliesDiscarded,
		&m.bytesSent, &m.bytesReceived,
		&m.handlerErrors, &m.handlerPanics, &m.rejectedFrames, &m.protocolErrors, &m.writeErrors,
	} {
		c.Store(0)
	}

	m.latencyMu.Lock()
	m.latencies = m.latencies[:0]
	m.latencyMu.Unlock()
}
