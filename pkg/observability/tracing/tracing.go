// Package tracing wires OpenTelemetry spans around the RPC call/notify
// path, parallel to pkg/observability/prometheus's counters and
// histograms: where the metrics package answers "how many, how fast
// on average", this package answers "what did one specific call do,
// and how did it relate to the call that triggered it." Both are
// attached to the same call sites (Proxy.BeginCall/BeginNotify,
// Protocol.dispatchCall/dispatchNotify) via the same optional
// SetTracer/SetMetrics pattern, so a binary that doesn't export spans
// pays nothing beyond a nil check.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer starts spans for the three shapes of RPC traffic this module
// carries: an outbound call, an outbound notify, and an inbound
// dispatch. It is safe for concurrent use — trace.Tracer itself is.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer wraps the global OpenTelemetry tracer registered under
// name (typically the binary name: "relayserver" or "relayclient").
// Call NewTracerProvider first if spans should actually be exported
// anywhere; without it, spans are recorded against OpenTelemetry's
// no-op provider and NewTracer still works, just silently.
func NewTracer(name string) *Tracer {
	return &Tracer{tracer: otel.Tracer(name)}
}

// ExporterConfig selects where finished spans are sent.
type ExporterConfig struct {
	// Exporter is one of "stdout", "jaeger", "zipkin", or "" (none —
	// NewTracerProvider returns a no-op provider in that case).
	Exporter string
	// Endpoint is the collector URL for "jaeger" or "zipkin"; unused
	// for "stdout".
	Endpoint string
	// ServiceName tags every span's resource attributes.
	ServiceName string
}

// NewTracerProvider builds and registers (via otel.SetTracerProvider)
// a TracerProvider per cfg. The caller owns the returned provider's
// lifecycle and must Shutdown it to flush any buffered spans.
func NewTracerProvider(ctx context.Context, cfg ExporterConfig) (*sdktrace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.Exporter {
	case "", "none":
		return sdktrace.NewTracerProvider(), nil
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "jaeger":
		exporter, err = jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)))
	case "zipkin":
		exporter, err = zipkin.New(cfg.Endpoint)
	default:
		return nil, fmt.Errorf("tracing: unknown exporter %q (want stdout, jaeger, zipkin, or none)", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("tracing: build %s exporter: %w", cfg.Exporter, err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	return provider, nil
}

// StartCall opens a client span for an outbound Proxy.BeginCall.
func (t *Tracer) StartCall(ctx context.Context, method string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, nil
	}
	return t.tracer.Start(ctx, "rpc.call/"+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("rpc.method", method)),
	)
}

// StartNotify opens a client span for an outbound Proxy.BeginNotify.
func (t *Tracer) StartNotify(ctx context.Context, method string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, nil
	}
	return t.tracer.Start(ctx, "rpc.notify/"+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("rpc.method", method)),
	)
}

// StartDispatch opens a server span for an inbound Protocol.dispatchCall
// or dispatchNotify.
func (t *Tracer) StartDispatch(ctx context.Context, method string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, nil
	}
	kind := trace.SpanKindServer
	return t.tracer.Start(ctx, "rpc.dispatch/"+method,
		trace.WithSpanKind(kind),
		trace.WithAttributes(attribute.String("rpc.method", method)),
	)
}

// End finishes span, recording err (if non-nil) as the span's status.
// End is nil-safe so callers needn't branch on whether a Tracer was
// ever attached.
func End(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
