package mex

import (
	"errors"
	"sync"
)

// ErrEngineNotRegistered and ErrOperationNotRegistered are the two ways a
// PlannedOperation can fail to resolve against the registry; G-CAP and
// G-DET both check these before looking at capabilities.
var (
	ErrEngineNotRegistered    = errors.New("mex: engine not registered")
	ErrOperationNotRegistered = errors.New("mex: operation not registered for engine")
)

// OperationSpec describes one operation an engine exposes.
type OperationSpec struct {
	Name         string
	Capabilities []string
}

// EngineSpec describes one registered engine: its baseline required
// capabilities, determinism ceiling, and the operations it exposes.
type EngineSpec struct {
	EngineID           string
	RequiredCaps       []string
	DeterminismCeiling DeterminismLevel
	Operations         map[string]OperationSpec
}

// MexRegistry is the closed catalog of engines and operations the runtime
// will dispatch to. It is read-heavy and built once at startup, so a simple
// RWMutex-guarded map is sufficient — no need for the write-heavy patterns
// used by pkg/store's mutable stores.
type MexRegistry struct {
	mu      sync.RWMutex
	engines map[string]EngineSpec
}

func NewMexRegistry() *MexRegistry {
	return &MexRegistry{engines: make(map[string]EngineSpec)}
}

// RegisterEngine adds or replaces an engine's spec.
func (r *MexRegistry) RegisterEngine(spec EngineSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[spec.EngineID] = spec
}

// GetEngine returns the registered spec for engineID, if any.
func (r *MexRegistry) GetEngine(engineID string) (EngineSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.engines[engineID]
	return spec, ok
}

// GetOperation returns the registered operation spec for (engineID, op), if
// the engine exists and exposes that operation.
func (r *MexRegistry) GetOperation(engineID, operation string) (OperationSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.engines[engineID]
	if !ok {
		return OperationSpec{}, false
	}
	op, ok := spec.Operations[operation]
	return op, ok
}
