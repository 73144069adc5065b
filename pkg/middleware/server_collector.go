package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vango-dev/domwire/pkg/server"
)

// ServerCollector exports a server's built-in counters to Prometheus. It
// reads a fresh snapshot on every scrape.
type ServerCollector struct {
	srv   *server.Server
	descs map[string]*prometheus.Desc
}

type serverMetric struct {
	name      string
	help      string
	valueType prometheus.ValueType
	value     func(m *server.ServerMetrics) float64
}

var serverMetrics = []serverMetric{
	{"active_connections", "Open websocket connections", prometheus.GaugeValue,
		func(m *server.ServerMetrics) float64 { return float64(m.ActiveConnections) }},
	{"peak_connections", "Highest number of open connections", prometheus.GaugeValue,
		func(m *server.ServerMetrics) float64 { return float64(m.PeakConnections) }},
	{"connections_total", "Connections accepted", prometheus.CounterValue,
		func(m *server.ServerMetrics) float64 { return float64(m.TotalConnections) }},
	{"events_received_total", "Events read from clients", prometheus.CounterValue,
		func(m *server.ServerMetrics) float64 { return float64(m.EventsReceived) }},
	{"events_dropped_total", "Events dropped because the queue was full", prometheus.CounterValue,
		func(m *server.ServerMetrics) float64 { return float64(m.EventsDropped) }},
	{"instructions_sent_total", "Instructions written to clients", prometheus.CounterValue,
		func(m *server.ServerMetrics) float64 { return float64(m.InstructionsSent) }},
	{"replies_received_total", "Replies read from clients", prometheus.CounterValue,
		func(m *server.ServerMetrics) float64 { return float64(m.RepliesReceived) }},
	{"replies_buffered_total", "Replies that arrived before their message number was issued", prometheus.CounterValue,
		func(m *server.ServerMetrics) float64 { return float64(m.RepliesBuffered) }},
	{"replies_discarded_total", "Replies for finished or unknown message numbers", prometheus.CounterValue,
		func(m *server.ServerMetrics) float64 { return float64(m.RepliesDiscarded) }},
	{"bytes_sent_total", "Bytes written to clients", prometheus.CounterValue,
		func(m *server.ServerMetrics) float64 { return float64(m.BytesSent) }},
	{"bytes_received_total", "Bytes read from clients", prometheus.CounterValue,
		func(m *server.ServerMetrics) float64 { return float64(m.BytesReceived) }},
	{"handler_panics_total", "Handler panics recovered", prometheus.CounterValue,
		func(m *server.ServerMetrics) float64 { return float64(m.HandlerPanics) }},
	{"rejected_frames_total", "Frames refused by ValidateData", prometheus.CounterValue,
		func(m *server.ServerMetrics) float64 { return float64(m.RejectedFrames) }},
	{"protocol_errors_total", "Frames that could not be decoded", prometheus.CounterValue,
		func(m *server.ServerMetrics) float64 { return float64(m.ProtocolErrors) }},
	{"write_errors_total", "Failed websocket writes", prometheus.CounterValue,
		func(m *server.ServerMetrics) float64 { return float64(m.WriteErrors) }},
}

// NewServerCollector returns a collector for srv. Register it once:
//
//	prometheus.MustRegister(middleware.NewServerCollector(srv))
func NewServerCollector(srv *server.Server, opts ...MetricsOption) *ServerCollector {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	descs := make(map[string]*prometheus.Desc, len(serverMetrics))
	for _, sm := range serverMetrics {
		descs[sm.name] = prometheus.NewDesc(
			prometheus.BuildFQName(config.Namespace, config.Subsystem, "server_"+sm.name),
			sm.help, nil, config.ConstLabels)
	}
	return &ServerCollector{srv: srv, descs: descs}
}

// Describe implements prometheus.Collector.
func (c *ServerCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, sm := range serverMetrics {
		ch <- c.descs[sm.name]
	}
}

// Collect implements prometheus.Collector.
func (c *ServerCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.srv.Metrics()
	for _, sm := range serverMetrics {
		ch <- prometheus.MustNewConstMetric(c.descs[sm.name], sm.valueType, sm.value(snap))
	}
}
