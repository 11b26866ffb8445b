package gates

import (
	"errors"
	"sort"

	"github.com/nuntissura/handshake/pkg/capabilities"
	"github.com/nuntissura/handshake/pkg/mex"
)

// CapabilityGate (G-CAP) checks that every requested capability is both
// known to the registry and granted by the resolved engine/operation specs.
type CapabilityGate struct {
	Registry *capabilities.CapabilityRegistry
}

func (g *CapabilityGate) Name() string { return "G-CAP" }

func (g *CapabilityGate) Check(op *mex.PlannedOperation, registry *mex.MexRegistry) *GateDenial {
	if len(op.CapabilitiesRequested) == 0 {
		return &GateDenial{
			Gate:     g.Name(),
			Reason:   "No capabilities requested; default-deny",
			Severity: SeverityError,
		}
	}

	engineSpec, ok := registry.GetEngine(op.EngineID)
	if !ok {
		return &GateDenial{
			Gate:     g.Name(),
			Reason:   "Engine not registered in MexRegistry",
			Details:  op.EngineID,
			Severity: SeverityError,
		}
	}

	operationSpec, ok := registry.GetOperation(op.EngineID, op.Operation)
	if !ok {
		return &GateDenial{
			Gate:   g.Name(),
			Reason: "Operation not registered for engine",
			Details: map[string]string{
				"engine_id": op.EngineID,
				"operation": op.Operation,
			},
			Severity: SeverityError,
		}
	}

	allowed := make(map[string]bool, len(engineSpec.RequiredCaps)+len(operationSpec.Capabilities))
	for _, c := range engineSpec.RequiredCaps {
		allowed[c] = true
	}
	for _, c := range operationSpec.Capabilities {
		allowed[c] = true
	}
	allowedList := make([]string, 0, len(allowed))
	for c := range allowed {
		allowedList = append(allowedList, c)
	}
	sort.Strings(allowedList)

	for _, cap := range op.CapabilitiesRequested {
		ok, err := g.Registry.EnforceCanPerform(cap, allowedList)
		switch {
		case err != nil && errors.Is(err, capabilities.ErrUnknownCapability):
			return &GateDenial{
				Gate:     g.Name(),
				Reason:   err.Error(),
				Code:     "HSK-4001",
				Details:  cap,
				Severity: SeverityError,
			}
		case err != nil:
			return &GateDenial{
				Gate:     g.Name(),
				Reason:   "Capability check failed: " + err.Error(),
				Details:  cap,
				Severity: SeverityError,
			}
		case !ok:
			return &GateDenial{
				Gate:     g.Name(),
				Reason:   "Capability not granted",
				Details:  cap,
				Severity: SeverityError,
			}
		}
	}

	return nil
}
