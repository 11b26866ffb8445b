package gates

import "github.com/nuntissura/handshake/pkg/mex"

// BudgetGate (G-BUDGET) requires at least one resource cap to avoid
// unbounded runs, and that output_spec.max_bytes never exceeds the budgeted
// output_bytes ceiling.
//
// Open Question #1 (SPEC_FULL §7): under GovLight, LightMode is a no-op
// relative to the base rule — a single budget field already satisfies
// "at least one limit set". The field exists so GovLight's relaxation is
// recorded explicitly rather than left implicit in the base check.
type BudgetGate struct {
	LightMode bool
}

func (g *BudgetGate) Name() string { return "G-BUDGET" }

func (g *BudgetGate) Check(op *mex.PlannedOperation, _ *mex.MexRegistry) *GateDenial {
	b := op.Budget
	if b.CPUTimeMs == nil && b.WallTimeMs == nil && b.MemoryBytes == nil && b.OutputBytes == nil {
		return &GateDenial{
			Gate:     g.Name(),
			Reason:   "Missing budget caps (cpu/wall/memory/output)",
			Severity: SeverityError,
		}
	}

	if b.OutputBytes != nil && op.OutputSpec.MaxBytes != nil && *op.OutputSpec.MaxBytes > *b.OutputBytes {
		return &GateDenial{
			Gate:     g.Name(),
			Reason:   "output_spec exceeds budgeted output_bytes",
			Details:  *op.OutputSpec.MaxBytes,
			Severity: SeverityError,
		}
	}

	return nil
}
