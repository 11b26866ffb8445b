// Package mexruntime wires the gate pipeline (pkg/gates), the Flight
// Recorder (pkg/store), and Diagnostics (pkg/diagnostics) around a set of
// registered EngineAdapters to execute PlannedOperations end to end.
package mexruntime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nuntissura/handshake/pkg/diagnostics"
	"github.com/nuntissura/handshake/pkg/gates"
	"github.com/nuntissura/handshake/pkg/metering"
	"github.com/nuntissura/handshake/pkg/mex"
	"github.com/nuntissura/handshake/pkg/observability"
	"github.com/nuntissura/handshake/pkg/store"
)

var (
	// ErrAdapterMissing is returned when no EngineAdapter is registered for
	// a PlannedOperation's engine_id.
	ErrAdapterMissing = errors.New("mexruntime: engine adapter missing")
	// ErrEvidenceMissing is returned when a D0/D1 EngineResult comes back
	// with an empty evidence list.
	ErrEvidenceMissing = errors.New("mexruntime: engine result missing required evidence")
)

// GateDeniedError wraps a GateDenial so callers can type-assert to it while
// errors.Is still sees it as a denial.
type GateDeniedError struct {
	Denial *gates.GateDenial
}

func (e *GateDeniedError) Error() string { return e.Denial.Error() }

func (e *GateDeniedError) Unwrap() error { return e.Denial }

// Runtime executes PlannedOperations through the gate pipeline and a
// registered EngineAdapter, recording tool.call/tool.result/capability
// action/gate-outcome events and missing-evidence/denial diagnostics along
// the way.
type Runtime struct {
	registry    *mex.MexRegistry
	flightRec   *store.FlightRecorder
	diagnostics *diagnostics.Store
	pipeline    *gates.Pipeline
	obs         *observability.Provider
	meter       metering.Meter

	mu       sync.RWMutex
	adapters map[string]mex.EngineAdapter
}

// defaultTenantID is recorded against every metering.Event: the governed
// execution core has no multi-tenant billing concept of its own, so usage is
// tracked against a single logical tenant per deployment.
const defaultTenantID = "default"

func New(registry *mex.MexRegistry, fr *store.FlightRecorder, diag *diagnostics.Store, pipeline *gates.Pipeline) *Runtime {
	return &Runtime{
		registry:    registry,
		flightRec:   fr,
		diagnostics: diag,
		pipeline:    pipeline,
		adapters:    make(map[string]mex.EngineAdapter),
	}
}

// WithAdapter registers an EngineAdapter for engineID and returns the
// Runtime for chaining, mirroring the original's builder style.
func (rt *Runtime) WithAdapter(engineID string, adapter mex.EngineAdapter) *Runtime {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.adapters[engineID] = adapter
	return rt
}

// WithObservability attaches a Provider so Execute emits a span and RED
// metrics around every gate pipeline run and engine invocation. Optional —
// a nil Runtime.obs skips instrumentation entirely.
func (rt *Runtime) WithObservability(p *observability.Provider) *Runtime {
	rt.obs = p
	return rt
}

// WithMeter attaches a metering.Meter so every successful engine invocation
// is recorded as a usage event. Optional — a nil Runtime.meter skips
// metering entirely.
func (rt *Runtime) WithMeter(m metering.Meter) *Runtime {
	rt.meter = m
	return rt
}

func (rt *Runtime) adapter(engineID string) (mex.EngineAdapter, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	a, ok := rt.adapters[engineID]
	return a, ok
}

// Execute runs op through the fixed gate pipeline, then dispatches to the
// registered engine adapter. Every gate outcome and the tool call/result
// pair are recorded to the Flight Recorder; gate denials and missing
// evidence are additionally recorded as Diagnostics.
func (rt *Runtime) Execute(ctx context.Context, op *mex.PlannedOperation) (result *mex.EngineResult, err error) {
	traceID := op.OpID

	if rt.obs != nil {
		var finish func(error)
		ctx, finish = rt.obs.TrackOperation(ctx, "mexruntime.execute", observability.EngineOperation(op.EngineID, op.Operation)...)
		defer func() { finish(err) }()
	}

	for _, gate := range rt.pipeline.Gates() {
		denial := gate.Check(op, rt.registry)
		if denial == nil {
			if gate.Name() == "G-CAP" {
				for _, capID := range op.CapabilitiesRequested {
					rt.recordCapabilityAction(traceID, op, capID, "allow")
					rt.observeCapability(ctx, capID, "allow")
				}
			}
			rt.recordGateOutcome(traceID, op, gate.Name(), "pass", nil, nil)
			rt.observeGate(ctx, gate.Name(), "pass")
			continue
		}

		if gate.Name() == "G-CAP" {
			if capID, ok := denial.Details.(string); ok {
				rt.recordCapabilityAction(traceID, op, capID, "deny")
				rt.observeCapability(ctx, capID, "deny")
			}
		}
		diagID := rt.recordDenialDiagnostic(op, denial)
		rt.recordGateOutcome(traceID, op, gate.Name(), "deny", denial, diagID)
		rt.observeGate(ctx, gate.Name(), "deny")
		return nil, &GateDeniedError{Denial: denial}
	}

	adapter, ok := rt.adapter(op.EngineID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAdapterMissing, op.EngineID)
	}

	rt.recordToolCall(traceID, op)

	start := time.Now()
	result, err := adapter.Invoke(ctx, op)
	durationMs := uint64(time.Since(start).Milliseconds())

	if err != nil {
		rt.recordToolResult(traceID, op, nil, durationMs, "error", "MEX_ADAPTER_ERROR")
		return nil, fmt.Errorf("mexruntime: adapter failed: %w", err)
	}

	if op.Determinism.RequiresEvidence() && len(result.Evidence) == 0 {
		rt.recordMissingEvidenceDiagnostic(op)
		rt.recordToolResult(traceID, op, result, durationMs, "error", "MEX_EVIDENCE_MISSING")
		return nil, fmt.Errorf("%w: determinism=%s", ErrEvidenceMissing, op.Determinism)
	}

	result.Provenance = result.Provenance.WithEngineID(op.EngineID)
	rt.recordToolResult(traceID, op, result, durationMs, "success", "")
	rt.recordMeterEvent(ctx, op)

	return result, nil
}

// recordMeterEvent meters a successful engine invocation. Metering is
// best-effort: a failure here must never fail the operation it's metering.
func (rt *Runtime) recordMeterEvent(ctx context.Context, op *mex.PlannedOperation) {
	if rt.meter == nil {
		return
	}
	_ = rt.meter.Record(ctx, metering.Event{
		TenantID:  defaultTenantID,
		EventType: metering.EventExecution,
		Quantity:  1,
		Timestamp: time.Now(),
		Metadata: map[string]any{
			"engine_id": op.EngineID,
			"operation": op.Operation,
			"op_id":     op.OpID.String(),
		},
	})
}

func (rt *Runtime) observeGate(ctx context.Context, gate, outcome string) {
	if rt.obs == nil {
		return
	}
	observability.AddSpanEvent(ctx, "gate_outcome", observability.GateOperation(gate, outcome)...)
}

func (rt *Runtime) observeCapability(ctx context.Context, capID, outcome string) {
	if rt.obs == nil {
		return
	}
	observability.AddSpanEvent(ctx, "capability_action", observability.CapabilityOperation(capID, outcome)...)
}

func (rt *Runtime) recordCapabilityAction(traceID uuid.UUID, op *mex.PlannedOperation, capID, outcome string) {
	jobID := op.OpID
	_, _ = rt.flightRec.RecordEvent(store.Event{
		TraceID:      traceID,
		Actor:        store.ActorSystem,
		ActorID:      "mex_runtime",
		EventType:    store.EventCapabilityAction,
		JobID:        &jobID,
		CapabilityID: capID,
		Payload: map[string]any{
			"type":             string(store.EventCapabilityAction),
			"capability_id":    capID,
			"actor_id":         "mex_runtime",
			"job_id":           jobID.String(),
			"decision_outcome": outcome,
		},
	})
}

func (rt *Runtime) recordGateOutcome(traceID uuid.UUID, op *mex.PlannedOperation, gate, outcome string, denial *gates.GateDenial, diagID *uuid.UUID) {
	level := "info"
	var code, reason, severity string
	if denial != nil {
		code, reason, severity = denial.Code, denial.Reason, string(denial.Severity)
		if denial.Severity == gates.SeverityWarn {
			level = "warning"
		} else {
			level = "error"
		}
	}
	diagStr := ""
	if diagID != nil {
		diagStr = diagID.String()
	}

	jobID := op.OpID
	_, _ = rt.flightRec.RecordEvent(store.Event{
		TraceID:   traceID,
		Actor:     store.ActorSystem,
		ActorID:   "mex_runtime",
		EventType: store.EventSystem,
		JobID:     &jobID,
		Payload: map[string]any{
			"type":    string(store.EventSystem),
			"message": "gate_outcome",
			"level":   level,
			"details": map[string]any{
				"gate":          gate,
				"outcome":       outcome,
				"op_id":         op.OpID.String(),
				"engine_id":     op.EngineID,
				"operation":     op.Operation,
				"code":          code,
				"reason":        reason,
				"severity":      severity,
				"diagnostic_id": diagStr,
			},
		},
	})
}

func (rt *Runtime) recordDenialDiagnostic(op *mex.PlannedOperation, denial *gates.GateDenial) *uuid.UUID {
	severity := diagnostics.SeverityError
	if denial.Severity == gates.SeverityWarn {
		severity = diagnostics.SeverityWarning
	}

	message := denial.Reason
	if denial.Details != nil {
		message = fmt.Sprintf("%s (details: %v)", denial.Reason, denial.Details)
	}

	d, err := rt.diagnostics.Record(diagnostics.Input{
		Title:          "MEX gate denied: " + denial.Gate,
		Message:        message,
		Severity:       severity,
		Source:         diagnostics.Source{Kind: "engine"},
		Surface:        diagnostics.SurfaceSystem,
		Tool:           denial.Gate,
		Code:           denial.Code,
		JobID:          op.OpID.String(),
		Actor:          diagnostics.ActorSystem,
		LinkConfidence: diagnostics.LinkDirect,
	})
	if err != nil {
		return nil
	}
	return &d.ID
}

func (rt *Runtime) recordMissingEvidenceDiagnostic(op *mex.PlannedOperation) {
	_, _ = rt.diagnostics.Record(diagnostics.Input{
		Title:          "MEX result missing evidence",
		Message:        fmt.Sprintf("D0/D1 operation returned no evidence artifacts (determinism=%s)", op.Determinism),
		Severity:       diagnostics.SeverityError,
		Source:         diagnostics.Source{Kind: "engine"},
		Surface:        diagnostics.SurfaceSystem,
		Tool:           "mex_runtime",
		JobID:          op.OpID.String(),
		Actor:          diagnostics.ActorSystem,
		LinkConfidence: diagnostics.LinkDirect,
	})
}

func (rt *Runtime) recordToolCall(traceID uuid.UUID, op *mex.PlannedOperation) {
	var capID string
	if len(op.CapabilitiesRequested) > 0 {
		capID = op.CapabilitiesRequested[0]
	}
	jobID := op.OpID
	_, _ = rt.flightRec.RecordEvent(store.Event{
		TraceID:      traceID,
		Actor:        store.ActorSystem,
		ActorID:      "mex_runtime",
		EventType:    store.EventToolCall,
		JobID:        &jobID,
		CapabilityID: capID,
		Payload: map[string]any{
			"type":         string(store.EventToolCall),
			"tool_name":    "mex:" + op.EngineID,
			"operation":    op.Operation,
			"inputs":       mex.ArtifactRefs(op.Inputs),
			"status":       "success",
			"job_id":       jobID.String(),
			"trace_id":     traceID.String(),
			"capabilities": op.CapabilitiesRequested,
			"determinism":  string(op.Determinism),
		},
	})
}

func (rt *Runtime) recordToolResult(traceID uuid.UUID, op *mex.PlannedOperation, result *mex.EngineResult, durationMs uint64, status, errorCode string) {
	var outputs []string
	var toolVersion string
	if result != nil {
		outputs = append(outputs, mex.ArtifactRefs(result.Outputs)...)
		outputs = append(outputs, mex.ArtifactRefs(result.Evidence)...)
		if result.LogsRef != nil {
			outputs = append(outputs, result.LogsRef.Digest)
		}
		toolVersion = result.Provenance.EngineVersion
	}

	var capID string
	if len(op.CapabilitiesRequested) > 0 {
		capID = op.CapabilitiesRequested[0]
	}

	jobID := op.OpID
	_, _ = rt.flightRec.RecordEvent(store.Event{
		TraceID:      traceID,
		Actor:        store.ActorSystem,
		ActorID:      "mex_runtime",
		EventType:    store.EventToolResult,
		JobID:        &jobID,
		CapabilityID: capID,
		Payload: map[string]any{
			"type":         string(store.EventToolResult),
			"tool_name":    "mex:" + op.EngineID,
			"tool_version": toolVersion,
			"operation":    op.Operation,
			"inputs":       mex.ArtifactRefs(op.Inputs),
			"outputs":      outputs,
			"status":       status,
			"duration_ms":  durationMs,
			"error_code":   errorCode,
			"job_id":       jobID.String(),
			"trace_id":     traceID.String(),
			"capabilities": op.CapabilitiesRequested,
			"determinism":  string(op.Determinism),
		},
	})
}
