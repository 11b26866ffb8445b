// Package gates implements the six-gate pipeline the MEX runtime applies to
// every PlannedOperation before dispatching it to an engine adapter.
package gates

import (
	"encoding/json"

	"github.com/nuntissura/handshake/pkg/capabilities"
	"github.com/nuntissura/handshake/pkg/mex"
)

// DenialSeverity classifies a GateDenial for downstream diagnostic routing.
type DenialSeverity string

const (
	SeverityError DenialSeverity = "error"
	SeverityWarn  DenialSeverity = "warn"
)

// GateDenial is the typed failure payload routed to the Flight Recorder and
// to Diagnostics when a gate rejects an operation.
type GateDenial struct {
	Gate     string         `json:"gate"`
	Reason   string         `json:"reason"`
	Code     string         `json:"code,omitempty"`
	Details  any            `json:"details,omitempty"`
	Severity DenialSeverity `json:"severity"`
}

func (d *GateDenial) Error() string {
	return d.Gate + ": " + d.Reason
}

// Gate is a stateless predicate over a PlannedOperation.
type Gate interface {
	Name() string
	Check(op *mex.PlannedOperation, registry *mex.MexRegistry) *GateDenial
}

// Pipeline runs a fixed, ordered sequence of gates.
type Pipeline struct {
	gates []Gate
}

// NewPipeline builds the standard six-gate pipeline in the fixed order
// G-SCHEMA, G-CAP, G-INTEGRITY, G-BUDGET, G-PROVENANCE, G-DET.
func NewPipeline(capRegistry *capabilities.CapabilityRegistry) *Pipeline {
	return &Pipeline{gates: []Gate{
		&SchemaGate{},
		&CapabilityGate{Registry: capRegistry},
		&IntegrityGate{},
		&BudgetGate{},
		&ProvenanceGate{},
		&DetGate{},
	}}
}

// NewCustomPipeline builds a pipeline from an explicit gate list, for tests
// that want to exercise a subset or a custom ordering.
func NewCustomPipeline(gates ...Gate) *Pipeline {
	return &Pipeline{gates: gates}
}

// Gates returns the ordered gate list.
func (p *Pipeline) Gates() []Gate {
	return p.gates
}

// inlineSize returns the serialized byte size of v, the same yardstick
// G-INTEGRITY uses for the 32KiB inline-params cap.
func inlineSize(v any) (int, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return len(raw), nil
}
