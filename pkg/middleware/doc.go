// Package middleware provides observability middleware for domwire servers.
//
// This package includes:
//   - OpenTelemetry tracing of every event
//   - Prometheus metrics for events
//   - a Prometheus collector for the server's built-in counters
//
// All middleware implements server.EventMiddleware and is installed with
// Server.Use. It runs on the connection's event goroutine around the
// handler, after the page has been parsed.
//
// # OpenTelemetry Middleware
//
//	srv.Use(middleware.OpenTelemetry(
//	    middleware.WithTracerName("my-app"),
//	    middleware.WithEventFilter(func(ev server.EventInfo) bool {
//	        return ev.Func != "heartbeat"
//	    }),
//	))
//
// # Prometheus Metrics
//
//	srv.Use(middleware.Prometheus())
//	prometheus.MustRegister(middleware.NewServerCollector(srv))
//	http.Handle("/metrics", promhttp.Handler())
//
// # Context Propagation
//
// The tracing middleware passes the span's context to the handler, so
// Page.Context carries the trace into database drivers and HTTP clients:
//
//	func save(p *live.Page, args live.Args) error {
//	    row := db.QueryRowContext(p.Context(), "SELECT ...")
//	    ...
//	}
package middleware
