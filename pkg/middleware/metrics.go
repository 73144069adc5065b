package middleware

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vango-dev/domwire/pkg/live"
	"github.com/vango-dev/domwire/pkg/server"
	"github.com/vango-dev/domwire/pkg/upload"
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "domwire").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for event duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics middleware.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "domwire",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

type metrics struct {
	eventsTotal   *prometheus.CounterVec
	eventDuration *prometheus.HistogramVec
	eventErrors   *prometheus.CounterVec
}

// globalMetrics is created by the first call to Prometheus. Later calls
// share it so the collectors are registered once.
var (
	globalMetrics   *metrics
	globalMetricsMu sync.Mutex
)

func initMetrics(config MetricsConfig) *metrics {
	factory := promauto.With(config.Registry)

	return &metrics{
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "events_total",
			Help:        "Total number of events dispatched to handlers",
			ConstLabels: config.ConstLabels,
		}, []string{"url", "status"}),

		eventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "event_duration_seconds",
			Help:        "Handler duration in seconds, including waits for replies",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"url"}),

		eventErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "event_errors_total",
			Help:        "Total number of failed events by error type",
			ConstLabels: config.ConstLabels,
		}, []string{"url", "error_type"}),
	}
}

// Prometheus creates middleware that collects Prometheus metrics for events.
//
// Metrics collected:
//   - domwire_events_total: events by page URL and status
//   - domwire_event_duration_seconds: handler duration by page URL
//   - domwire_event_errors_total: failed events by page URL and error type
//
// Example:
//
//	srv := server.New(app, nil)
//	srv.Use(middleware.Prometheus(middleware.WithNamespace("myapp")))
//
//	// Expose metrics endpoint
//	http.Handle("/metrics", promhttp.Handler())
func Prometheus(opts ...MetricsOption) server.EventMiddleware {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	globalMetricsMu.Lock()
	if globalMetrics == nil {
		globalMetrics = initMetrics(config)
	}
	m := globalMetrics
	globalMetricsMu.Unlock()

	return server.EventMiddlewareFunc(func(ctx context.Context, ev server.EventInfo, next func(context.Context) error) error {
		url := ev.URL
		if url == "" {
			url = "/"
		}

		start := time.Now()
		err := next(ctx)
		m.eventDuration.WithLabelValues(url).Observe(time.Since(start).Seconds())

		status := "success"
		if err != nil {
			status = "error"
			m.eventErrors.WithLabelValues(url, categorizeError(err)).Inc()
		}
		m.eventsTotal.WithLabelValues(url, status).Inc()
		return err
	})
}

// categorizeError maps err to a small fixed set of label values.
func categorizeError(err error) string {
	var he *server.HandlerError
	if errors.As(err, &he) && he.IsPanic() {
		return "panic"
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, server.ErrConnectionClosed):
		return "disconnected"
	case errors.Is(err, upload.ErrIncompleteTransfer), errors.Is(err, upload.ErrTooLarge):
		return "upload"
	case errors.Is(err, live.ErrNotLive):
		return "detached"
	case errors.Is(err, server.ErrRedirectNotAllowed):
		return "redirect"
	case errors.Is(err, upload.ErrNotFound):
		return "not_found"
	}
	return "internal"
}

// Collector exposes the middleware's metrics for custom registrations.
type Collector struct {
	eventsTotal   *prometheus.CounterVec
	eventDuration *prometheus.HistogramVec
	eventErrors   *prometheus.CounterVec
}

// GetMetrics returns the global metrics collector.
// Returns nil if Prometheus middleware has not been initialized.
func GetMetrics() *Collector {
	globalMetricsMu.Lock()
	defer globalMetricsMu.Unlock()
	if globalMetrics == nil {
		return nil
	}
	return &Collector{
		eventsTotal:   globalMetrics.eventsTotal,
		eventDuration: globalMetrics.eventDuration,
		eventErrors:   globalMetrics.eventErrors,
	}
}
