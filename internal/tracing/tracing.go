// Package tracing provides the distributed-tracing span source the
// orchestrator wraps each turn and tool call in, so a nested-agent call
// tree (§9 "Agent-graph composition") can be reconstructed from span
// parent/child relationships in addition to the event stream's
// correlation ids.
//
// A TracerProvider is constructed once per process and a named tracer
// wraps each traced operation with `tracer.Start(ctx, name)` — simplified
// to the in-process SDK with no OTLP exporter wired, since none of the
// OTLP exporter packages (otlptrace/otlptracegrpc, the semconv resource
// attributes) are part of this module's dependency set; a caller that
// wants spans shipped somewhere registers its own span processor against
// the returned provider.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// NewProvider constructs a TracerProvider for this process. sampleRatio
// in [0,1] controls what fraction of turns are recorded; 1.0 records
// every turn.
func NewProvider(sampleRatio float64) *sdktrace.TracerProvider {
	sampler := sdktrace.TraceIDRatioBased(sampleRatio)
	return sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.ParentBased(sampler)))
}

// Tracer returns the named tracer clients of this package should use;
// callers typically request "radiumd/orchestrator" or
// "radiumd/workflow".
func Tracer(provider trace.TracerProvider, name string) trace.Tracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return provider.Tracer(name)
}

// StartTurn opens a span for one orchestrator turn, tagged with the
// session and correlation ids so a trace backend groups every tool-call
// span beneath it.
func StartTurn(ctx context.Context, tracer trace.Tracer, sessionID, correlationID string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, "orchestrator.turn",
		trace.WithAttributes(
			attribute.String("radium.session_id", sessionID),
			attribute.String("radium.correlation_id", correlationID),
		),
	)
}

// StartToolCall opens a child span for one tool invocation.
func StartToolCall(ctx context.Context, tracer trace.Tracer, toolName string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, "orchestrator.tool_call",
		trace.WithAttributes(attribute.String("radium.tool", toolName)),
	)
}

// EndWithError records err on span (if non-nil) and ends it.
func EndWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
