// Package tracing wraps the OpenTelemetry SDK with the handful of
// operations the core loop needs: a span per dispatched command, with
// arbitration decisions recorded as events on it, so a trace backend can
// show preemptions against the command that caused them.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Tracer starts and annotates spans for core-loop decisions.
type Tracer struct {
	tracer      oteltrace.Tracer
	serviceName string
}

// New builds a Tracer with an in-process TracerProvider and installs that
// provider globally via otel.SetTracerProvider, replacing any provider
// installed earlier.
func New(serviceName string) *Tracer {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	)
	otel.SetTracerProvider(tp)
	return &Tracer{tracer: otel.Tracer(serviceName), serviceName: serviceName}
}

// StartCommand opens a span around the handling of one core-loop command.
func (t *Tracer) StartCommand(ctx context.Context, commandType string, correlationID string) (context.Context, oteltrace.Span) {
	return t.tracer.Start(ctx, "command."+commandType, oteltrace.WithAttributes(
		attribute.String("correlation_id", correlationID),
	))
}

// RecordArbitrationDecision annotates the current span (if any) with the
// outcome of an arbitration pass: accepted, preempted, or denied.
func RecordArbitrationDecision(ctx context.Context, outcome string, winnerID, loserID string) {
	span := oteltrace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("arbitration.outcome", outcome)}
	if winnerID != "" {
		attrs = append(attrs, attribute.String("arbitration.winner", winnerID))
	}
	if loserID != "" {
		attrs = append(attrs, attribute.String("arbitration.loser", loserID))
	}
	span.AddEvent("arbitration_decision", oteltrace.WithAttributes(attrs...))
}

// RecordError marks the current span as failed and attaches the error.
func RecordError(ctx context.Context, err error) {
	span := oteltrace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// IDsFromContext extracts the trace and span id of the current span in ctx,
// formatted as the otel hex string or "" if ctx carries no valid span
// context.
// Shared by the informational events bus and the logging wrapper so neither
// has to duplicate SpanContext plumbing.
func IDsFromContext(ctx context.Context) (traceID, spanID string) {
	sc := oteltrace.SpanFromContext(ctx).SpanContext()
	if sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	if sc.HasSpanID() {
		spanID = sc.SpanID().String()
	}
	return traceID, spanID
}

// EndCommand finalizes a span started by StartCommand.
func EndCommand(span oteltrace.Span, outcome string) {
	span.SetAttributes(attribute.String("command.outcome", outcome))
	if outcome == "denied" || outcome == "error" {
		span.SetStatus(codes.Error, fmt.Sprintf("command outcome: %s", outcome))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
