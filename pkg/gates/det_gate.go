package gates

import "github.com/nuntissura/handshake/pkg/mex"

// DetGate (G-DET) rejects operations whose requested determinism level
// exceeds the resolved engine's determinism ceiling.
type DetGate struct{}

func (g *DetGate) Name() string { return "G-DET" }

func (g *DetGate) Check(op *mex.PlannedOperation, registry *mex.MexRegistry) *GateDenial {
	engineSpec, ok := registry.GetEngine(op.EngineID)
	if !ok {
		return &GateDenial{
			Gate:     g.Name(),
			Reason:   "Engine not registered in MexRegistry",
			Details:  op.EngineID,
			Severity: SeverityError,
		}
	}

	if op.Determinism.Rank() > engineSpec.DeterminismCeiling.Rank() {
		return &GateDenial{
			Gate:   g.Name(),
			Reason: "Determinism level exceeds engine ceiling",
			Details: map[string]string{
				"requested": string(op.Determinism),
				"ceiling":   string(engineSpec.DeterminismCeiling),
			},
			Severity: SeverityError,
		}
	}

	return nil
}
