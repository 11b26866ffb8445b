package gates

import "github.com/nuntissura/handshake/pkg/mex"

// InlineParamsLimit is the 32KiB cap on a PlannedOperation's inline params;
// anything larger must be passed as an artifact handle instead.
const InlineParamsLimit = 32 * 1024

// IntegrityGate (G-INTEGRITY) enforces the artifact-first rule: inline
// params must fit in InlineParamsLimit bytes.
type IntegrityGate struct{}

func (g *IntegrityGate) Name() string { return "G-INTEGRITY" }

func (g *IntegrityGate) Check(op *mex.PlannedOperation, _ *mex.MexRegistry) *GateDenial {
	if op.Params == nil {
		return nil
	}
	size, err := inlineSize(op.Params)
	if err != nil {
		// Unserializable params fail closed under the same denial, since an
		// adapter could never consume them either.
		return &GateDenial{
			Gate:     g.Name(),
			Reason:   "params could not be serialized for size check",
			Severity: SeverityError,
		}
	}
	if size > InlineParamsLimit {
		return &GateDenial{
			Gate:     g.Name(),
			Reason:   "Inline params exceed 32KB; use artifact handles",
			Details:  size,
			Severity: SeverityError,
		}
	}
	return nil
}
