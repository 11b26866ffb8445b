package gates

import "github.com/nuntissura/handshake/pkg/mex"

// ProvenanceGate (G-PROVENANCE) requires D0/D1 operations to carry an
// evidence policy, and requires at least one capability be explicitly
// requested so the eventual evidence has something to attribute to.
//
// Open Question #1 (SPEC_FULL §7): under GovStrict, evidence is required for
// every determinism level, not just D0/D1 — a strict-governance run has no
// room for an undocumented, non-evidenced operation even at D2/D3.
type ProvenanceGate struct {
	// StrictMode, when true, extends the evidence requirement to all
	// determinism levels instead of only D0/D1.
	StrictMode bool
}

func (g *ProvenanceGate) Name() string { return "G-PROVENANCE" }

func (g *ProvenanceGate) Check(op *mex.PlannedOperation, _ *mex.MexRegistry) *GateDenial {
	evidenceRequired := op.EvidencePolicy != nil && op.EvidencePolicy.Required
	needsEvidence := op.Determinism == mex.D0 || op.Determinism == mex.D1 || g.StrictMode

	if needsEvidence && !evidenceRequired {
		return &GateDenial{
			Gate:     g.Name(),
			Reason:   "Evidence policy missing for D0/D1 operation",
			Severity: SeverityError,
		}
	}

	if len(op.CapabilitiesRequested) == 0 {
		return &GateDenial{
			Gate:     g.Name(),
			Reason:   "Provenance requires explicit capabilities granted",
			Severity: SeverityError,
		}
	}

	return nil
}
