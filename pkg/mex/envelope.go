// Package mex implements the Managed Engine Execution runtime: the
// gate-checked, evidence-producing boundary between the micro-task executor
// and sandboxed engines (WASM modules, subprocess adapters, …).
package mex

import (
	"github.com/google/uuid"

	"github.com/nuntissura/handshake/pkg/interfaces"
)

// POESchemaVersion is the one schema_version PlannedOperation accepts.
const POESchemaVersion = "poe-1.0"

// DeterminismLevel classifies how reproducible an engine's output is.
// D0 is fully non-deterministic (LLM calls, network fetches) and MUST carry
// evidence; D3 is bit-reproducible.
type DeterminismLevel string

const (
	D0 DeterminismLevel = "D0"
	D1 DeterminismLevel = "D1"
	D2 DeterminismLevel = "D2"
	D3 DeterminismLevel = "D3"
)

var determinismRank = map[DeterminismLevel]int{D0: 0, D1: 1, D2: 2, D3: 3}

// Rank orders determinism levels for ceiling comparisons; unknown levels
// rank above D3 so an engine ceiling never silently accepts them.
func (d DeterminismLevel) Rank() int {
	if r, ok := determinismRank[d]; ok {
		return r
	}
	return len(determinismRank)
}

// RequiresEvidence is true for D0/D1: operations too non-deterministic to
// trust without an observation trail.
func (d DeterminismLevel) RequiresEvidence() bool {
	return d == D0 || d == D1
}

// Budget bounds an operation's resource consumption. At least one of the
// four limits must be set (enforced by G-BUDGET).
type Budget struct {
	CPUTimeMs    *uint64 `json:"cpu_time_ms,omitempty"`
	WallTimeMs   *uint64 `json:"wall_time_ms,omitempty"`
	MemoryBytes  *uint64 `json:"memory_bytes,omitempty"`
	OutputBytes  *uint64 `json:"output_bytes,omitempty"`
}

// EvidencePolicy records whether an operation's caller has committed to
// attaching evidence, and why.
type EvidencePolicy struct {
	Required bool   `json:"required"`
	Notes    string `json:"notes,omitempty"`
}

// OutputSpec bounds the shape and size of an operation's expected outputs.
type OutputSpec struct {
	ExpectedTypes []string `json:"expected_types,omitempty"`
	MaxBytes      *uint64  `json:"max_bytes,omitempty"`
}

// PlannedOperation is the signed request an engine adapter is asked to
// perform; it passes through the full gate pipeline before dispatch.
type PlannedOperation struct {
	SchemaVersion         string                 `json:"schema_version"`
	OpID                  uuid.UUID              `json:"op_id"`
	EngineID              string                 `json:"engine_id"`
	Operation             string                 `json:"operation"`
	Inputs                []*interfaces.Artifact `json:"inputs"`
	Params                map[string]any         `json:"params,omitempty"`
	CapabilitiesRequested []string               `json:"capabilities_requested"`
	Budget                Budget                 `json:"budget"`
	Determinism           DeterminismLevel       `json:"determinism"`
	EvidencePolicy        *EvidencePolicy        `json:"evidence_policy,omitempty"`
	OutputSpec            OutputSpec             `json:"output_spec"`
}

// Provenance records what produced an EngineResult, for audit and for
// G-PROVENANCE-adjacent checks downstream (not enforced by the gate itself,
// which only checks the request side).
type Provenance struct {
	EngineID            string   `json:"engine_id"`
	EngineVersion        string   `json:"engine_version,omitempty"`
	Implementation       string   `json:"implementation,omitempty"`
	Determinism          DeterminismLevel `json:"determinism"`
	ConfigHash           string   `json:"config_hash,omitempty"`
	Inputs               []string `json:"inputs,omitempty"`
	Outputs               []string `json:"outputs,omitempty"`
	CapabilitiesGranted   []string `json:"capabilities_granted,omitempty"`
}

// WithEngineID returns a copy of p with EngineID filled in if it was empty,
// mirroring the runtime's post-hoc provenance stamping.
func (p Provenance) WithEngineID(engineID string) Provenance {
	if p.EngineID == "" {
		p.EngineID = engineID
	}
	return p
}

// EngineResult is what an EngineAdapter returns for a PlannedOperation.
type EngineResult struct {
	Status     string                 `json:"status"`
	StartedAt  string                 `json:"started_at"`
	EndedAt    string                 `json:"ended_at"`
	Outputs    []*interfaces.Artifact `json:"outputs"`
	Evidence   []*interfaces.Artifact `json:"evidence"`
	Provenance Provenance             `json:"provenance"`
	Errors     []string               `json:"errors,omitempty"`
	LogsRef    *interfaces.Artifact   `json:"logs_ref,omitempty"`
}

// ArtifactRefs extracts the canonical digest reference for each artifact
// handle, skipping nils; used when logging tool-call/tool-result payloads.
func ArtifactRefs(handles []*interfaces.Artifact) []string {
	out := make([]string, 0, len(handles))
	for _, h := range handles {
		if h != nil {
			out = append(out, h.Digest)
		}
	}
	return out
}
