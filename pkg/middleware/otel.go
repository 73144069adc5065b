package middleware

import (
	"context"
	"fmt"

	"github.com/vango-dev/domwire/pkg/server"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Default tracer name for domwire applications.
const defaultTracerName = "domwire"

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "domwire").
	TracerName string

	// IncludeUserID includes the user ID in traces.
	// May identify people - disabled by default.
	IncludeUserID bool

	// Filter determines which events to trace.
	// Return true to trace the event, false to skip.
	// If nil, all events are traced.
	Filter func(ev server.EventInfo) bool

	// AttributeExtractor adds custom attributes to each span.
	AttributeExtractor func(ev server.EventInfo) []attribute.KeyValue

	// TracerProvider overrides the global provider.
	TracerProvider trace.TracerProvider
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithIncludeUserID enables including user ID in traces.
func WithIncludeUserID(include bool) OTelOption {
	return func(c *OTelConfig) {
		c.IncludeUserID = include
	}
}

// WithEventFilter sets a filter function for events.
func WithEventFilter(filter func(ev server.EventInfo) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(ev server.EventInfo) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.TracerProvider = tp
	}
}

// OpenTelemetry creates middleware that traces every event.
//
// Each event gets a server span named "domwire.<func>" carrying the
// handler name, page URL and connection id. The span's context is passed
// on, so handlers reach it through Page.Context and outgoing calls made
// with that context join the trace.
//
// Example:
//
//	srv.Use(middleware.OpenTelemetry(
//	    middleware.WithTracerName("my-app"),
//	))
//
// Without WithTracerProvider the global provider is used. Configure it in
// main() before starting the server:
//
//	otel.SetTracerProvider(tp)
func OpenTelemetry(opts ...OTelOption) server.EventMiddleware {
	config := OTelConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}

	var tracer trace.Tracer
	if config.TracerProvider != nil {
		tracer = config.TracerProvider.Tracer(config.TracerName)
	} else {
		tracer = otel.Tracer(config.TracerName)
	}

	return server.EventMiddlewareFunc(func(ctx context.Context, ev server.EventInfo, next func(context.Context) error) error {
		if config.Filter != nil && !config.Filter(ev) {
			return next(ctx)
		}

		attrs := []attribute.KeyValue{
			attribute.String("domwire.func", ev.Func),
			attribute.String("domwire.url", ev.URL),
			attribute.String("domwire.conn_id", ev.ConnID),
		}
		if config.IncludeUserID && ev.UID != "" {
			attrs = append(attrs, attribute.String("domwire.user_id", ev.UID))
		}
		if config.AttributeExtractor != nil {
			attrs = append(attrs, config.AttributeExtractor(ev)...)
		}

		spanCtx, span := tracer.Start(ctx, fmt.Sprintf("domwire.%s", ev.Func),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		err := next(context.WithValue(spanCtx, spanContextKey{}, span))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	})
}

type spanContextKey struct{}

// SpanFromContext returns the span the middleware started for the current
// event, or nil outside a traced event.
//
// Example:
//
//	func save(p *live.Page, args live.Args) error {
//	    if span := middleware.SpanFromContext(p.Context()); span != nil {
//	        span.SetAttributes(attribute.Int("rows", n))
//	    }
//	    return nil
//	}
func SpanFromContext(ctx context.Context) trace.Span {
	if span, ok := ctx.Value(spanContextKey{}).(trace.Span); ok {
		return span
	}
	return nil
}
