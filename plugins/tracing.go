package plugins

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrymomot/arbor/internal"
)

const defaultTracerName = "github.com/dmitrymomot/arbor"

type spanValue struct{}

// TracingConfig configures the OpenTelemetry tracing plugin.
type TracingConfig struct {
	// Provider creates the tracer. Default: the global provider.
	Provider trace.TracerProvider

	// Filter skips tracing for requests where it returns false.
	Filter func(c internal.Context) bool

	// Attributes adds custom attributes to every span.
	Attributes func(c internal.Context) []attribute.KeyValue

	// TracerName is the instrumentation name.
	TracerName string
}

// TracingOption configures the OpenTelemetry tracing plugin.
type TracingOption func(*TracingConfig)

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) TracingOption {
	return func(c *TracingConfig) {
		c.Provider = tp
	}
}

// WithTracerName sets the instrumentation name.
func WithTracerName(name string) TracingOption {
	return func(c *TracingConfig) {
		c.TracerName = name
	}
}

// WithSpanFilter sets a filter deciding which requests are traced.
func WithSpanFilter(fn func(c internal.Context) bool) TracingOption {
	return func(c *TracingConfig) {
		c.Filter = fn
	}
}

// WithSpanAttributes sets an extractor for custom span attributes.
func WithSpanAttributes(fn func(c internal.Context) []attribute.KeyValue) TracingOption {
	return func(c *TracingConfig) {
		c.Attributes = fn
	}
}

// Tracing returns a plugin starting a server span for every request.
//
// The span starts in onRequest, records errors from onError and ends in
// onResponse with the final status code. A request the client walks away
// from ends its span in onRequestAbort. Span names are "METHOD route".
func Tracing(opts ...TracingOption) internal.PluginFunc {
	cfg := TracingConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Provider == nil {
		cfg.Provider = otel.GetTracerProvider()
	}
	tracer := cfg.Provider.Tracer(cfg.TracerName)

	return func(i *internal.Instance) error {
		if err := i.OnRequest(func(c internal.Context) error {
			if cfg.Filter != nil && !cfg.Filter(c) {
				return nil
			}
			req := c.Request()
			_, route := routeLabels(c)

			attrs := []attribute.KeyValue{
				attribute.String("http.request.method", req.Method()),
				attribute.String("http.route", route),
				attribute.String("url.path", req.Path()),
				attribute.String("http.request.id", req.ID()),
			}
			if cfg.Attributes != nil {
				attrs = append(attrs, cfg.Attributes(c)...)
			}

			_, span := tracer.Start(c, req.Method()+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
			)
			c.Set(spanValue{}, span)
			return nil
		}); err != nil {
			return err
		}

		if err := i.OnError(func(c internal.Context, err error) error {
			if span, ok := c.Get(spanValue{}).(trace.Span); ok && span.IsRecording() {
				span.RecordError(err)
			}
			return nil
		}); err != nil {
			return err
		}

		if err := i.OnResponse(func(c internal.Context) error {
			span, ok := c.Get(spanValue{}).(trace.Span)
			if !ok {
				return nil
			}
			status := c.Reply().StatusCode()
			span.SetAttributes(attribute.Int("http.response.status_code", status))
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}
			span.End()
			return nil
		}); err != nil {
			return err
		}

		return i.OnRequestAbort(func(c internal.Context) error {
			span, ok := c.Get(spanValue{}).(trace.Span)
			if !ok {
				return nil
			}
			span.SetStatus(codes.Error, internal.ErrRequestAborted.Error())
			span.End()
			return nil
		})
	}
}

// SpanFromContext returns the request span started by the Tracing plugin,
// or a no-op span when the request is not traced.
func SpanFromContext(c internal.Context) trace.Span {
	if span, ok := c.Get(spanValue{}).(trace.Span); ok {
		return span
	}
	return trace.SpanFromContext(c)
}
