package mex

import "context"

// EngineAdapter is the boundary a concrete engine (WASM module, subprocess,
// in-process Go engine) implements to receive gate-checked operations.
type EngineAdapter interface {
	Invoke(ctx context.Context, op *PlannedOperation) (*EngineResult, error)
}
