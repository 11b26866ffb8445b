package microtask

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrSwapTimeout is returned by a Swapper whose swap didn't finish inside
// the configured timeout.
var ErrSwapTimeout = errors.New("microtask: model swap timed out")

// Swapper performs the actual work of moving a new model into place. The
// default implementation is a no-op (models are assumed already
// addressable); callers that manage real VRAM/RAM residency supply their
// own.
type Swapper interface {
	Swap(ctx context.Context, currentModelID, targetModelID string, policy ModelSwapPolicy) error
}

// NoopSwapper treats every swap as instantaneous, for deployments where the
// LLM client resolves model ids without any local residency management.
type NoopSwapper struct{}

func (NoopSwapper) Swap(context.Context, string, string, ModelSwapPolicy) error { return nil }

// swapRequestRecord is the atomically-persisted record of a requested swap,
// referenced by ModelSwapRequested.state_persist_refs.
type swapRequestRecord struct {
	CurrentModelID string `json:"current_model_id"`
	TargetModelID  string `json:"target_model_id"`
	StateHash      string `json:"state_hash"`
	RequestedAt    string `json:"requested_at"`
}

// SwapOutcome is the eventual disposition of one escalation-triggered model
// swap.
type SwapOutcome struct {
	Outcome          string // "success" | "failure" | "timeout"
	ErrorSummary     string
	StateHash        string
	StatePersistRefs []string
	EffectiveModelID string // the model id in effect once the swap resolves
}

// swapState is the byte content hashed into SwapOutcome.StateHash and
// persisted alongside the request, the "state file" spec §4.9 step 6
// references.
type swapState struct {
	CurrentModelID string `json:"current_model_id"`
	TargetModelID  string `json:"target_model_id"`
	Strategy       SwapStrategy `json:"strategy"`
}

// PerformSwap persists the request + state files, runs swapper under the
// configured timeout, and resolves a fallback when the swap is disallowed,
// times out, or fails outright.
func PerformSwap(ctx context.Context, baseDir, jobID string, currentModelID, targetModelID string, policy ModelSwapPolicy, swapper Swapper) (*SwapOutcome, error) {
	stateBytes, err := json.Marshal(swapState{CurrentModelID: currentModelID, TargetModelID: targetModelID, Strategy: policy.Strategy})
	if err != nil {
		return nil, fmt.Errorf("microtask: marshal swap state: %w", err)
	}
	stateHash := sha256Hex(stateBytes)

	dir := filepath.Join(baseDir, jobID, "model_swap")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("microtask: ensure model_swap dir: %w", err)
	}

	requestedAt := time.Now().UTC().Format(time.RFC3339Nano)
	requestRec := swapRequestRecord{
		CurrentModelID: currentModelID,
		TargetModelID:  targetModelID,
		StateHash:      stateHash,
		RequestedAt:    requestedAt,
	}
	requestBytes, err := json.MarshalIndent(requestRec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("microtask: marshal swap request: %w", err)
	}

	requestRelPath := filepath.Join(jobID, "model_swap", "request_"+stateHash+".json")
	stateRelPath := filepath.Join(jobID, "model_swap", "swap_state_"+stateHash+".bin")

	if err := atomicWrite(filepath.Join(dir, "request_"+stateHash+".json"), requestBytes); err != nil {
		return nil, err
	}
	if err := atomicWrite(filepath.Join(dir, "swap_state_"+stateHash+".bin"), stateBytes); err != nil {
		return nil, err
	}

	outcome := &SwapOutcome{
		StateHash:        stateHash,
		StatePersistRefs: []string{requestRelPath, stateRelPath},
		EffectiveModelID: currentModelID,
	}

	if !policy.AllowSwaps {
		outcome.Outcome = "failure"
		outcome.ErrorSummary = "swap_disallowed_by_policy"
		applyFallback(outcome, policy, currentModelID)
		return outcome, nil
	}

	timeout := time.Duration(policy.SwapTimeoutMs) * time.Millisecond
	swapCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- swapper.Swap(swapCtx, currentModelID, targetModelID, policy)
	}()

	select {
	case err := <-done:
		if err != nil {
			outcome.Outcome = "failure"
			outcome.ErrorSummary = err.Error()
			applyFallback(outcome, policy, currentModelID)
			return outcome, nil
		}
		outcome.Outcome = "success"
		outcome.EffectiveModelID = targetModelID
		return outcome, nil
	case <-swapCtx.Done():
		outcome.Outcome = "timeout"
		outcome.ErrorSummary = "swap_timeout"
		applyFallback(outcome, policy, currentModelID)
		return outcome, nil
	}
}

// applyFallback resolves what model stays in effect after a failed or timed
// out swap per the configured FallbackStrategy: continue_with_current and
// rollback keep the current model, abort leaves none. It does not change
// Outcome; the caller emits ModelSwapRollback from the policy's strategy.
func applyFallback(outcome *SwapOutcome, policy ModelSwapPolicy, currentModelID string) {
	switch policy.FallbackStrategy {
	case FallbackRollback:
		outcome.EffectiveModelID = currentModelID
	case FallbackAbort:
		outcome.EffectiveModelID = ""
	default: // continue_with_current
		outcome.EffectiveModelID = currentModelID
	}
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("microtask: write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("microtask: commit %s: %w", filepath.Base(path), err)
	}
	return nil
}
