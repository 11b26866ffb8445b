// Package observability — semantic convention attributes for the governed
// execution core's own operations (gate checks, engine invocations,
// capability decisions), layered on top of the generic RED-metrics Provider
// in observability.go.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Semantic convention attributes for the governed execution core.
var (
	AttrJobID      = attribute.Key("handshake.job.id")
	AttrTraceID    = attribute.Key("handshake.trace.id")
	AttrEngineID   = attribute.Key("handshake.engine.id")
	AttrOperation  = attribute.Key("handshake.operation")
	AttrGateName   = attribute.Key("handshake.gate.name")
	AttrGateResult = attribute.Key("handshake.gate.outcome")

	AttrCapabilityID     = attribute.Key("handshake.capability.id")
	AttrCapabilityResult = attribute.Key("handshake.capability.outcome")
)

// EngineOperation builds attributes for an engine invocation through
// mexruntime.Runtime.Execute.
func EngineOperation(engineID, operation string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEngineID.String(engineID),
		AttrOperation.String(operation),
	}
}

// GateOperation builds attributes for a single gate's pass/deny outcome.
func GateOperation(gate, outcome string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrGateName.String(gate),
		AttrGateResult.String(outcome),
	}
}

// CapabilityOperation builds attributes for a capability allow/deny
// decision made during gate evaluation.
func CapabilityOperation(capabilityID, outcome string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrCapabilityID.String(capabilityID),
		AttrCapabilityResult.String(outcome),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records err on the current span, if any.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
