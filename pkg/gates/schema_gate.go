package gates

import "github.com/nuntissura/handshake/pkg/mex"

// SchemaGate rejects operations with a stale or missing schema_version, or a
// blank operation/engine_id.
type SchemaGate struct{}

func (g *SchemaGate) Name() string { return "G-SCHEMA" }

func (g *SchemaGate) Check(op *mex.PlannedOperation, _ *mex.MexRegistry) *GateDenial {
	if op.SchemaVersion != mex.POESchemaVersion {
		return &GateDenial{
			Gate:     g.Name(),
			Reason:   "Invalid schema_version (expected " + mex.POESchemaVersion + ")",
			Details:  op.SchemaVersion,
			Severity: SeverityError,
		}
	}
	if trimEmpty(op.Operation) || trimEmpty(op.EngineID) {
		return &GateDenial{
			Gate:     g.Name(),
			Reason:   "operation and engine_id must be non-empty",
			Severity: SeverityError,
		}
	}
	return nil
}

func trimEmpty(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
