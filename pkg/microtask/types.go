// Package microtask implements the C9 Micro-Task Executor: a state machine
// that drives iterative LLM-backed work against a work-package scope,
// escalating through a model chain when a level exhausts its iteration
// budget, pausing at configured points, and distilling rescued failures
// into training candidates.
package microtask

// WorkPackageScope bounds what a micro-task run is allowed to touch and how
// its output is judged done.
type WorkPackageScope struct {
	InScopePaths []string `json:"in_scope_paths"`
	OutOfScope   []string `json:"out_of_scope"`
	DoneMeans    []string `json:"done_means"`
	TestPlan     []string `json:"test_plan"`
	Description  string   `json:"description"`
}

// SwapStrategy is how a model swap moves a new model into place.
type SwapStrategy string

const (
	UnloadReload SwapStrategy = "UnloadReload"
	DiskOffload  SwapStrategy = "DiskOffload"
	KeepHotSwap  SwapStrategy = "KeepHotSwap"
)

// FallbackStrategy is what happens when a model swap fails or times out.
type FallbackStrategy string

const (
	FallbackContinueWithCurrent FallbackStrategy = "continue_with_current"
	FallbackAbort               FallbackStrategy = "abort"
	FallbackRollback            FallbackStrategy = "rollback"
)

// ModelSwapPolicy bounds whether and how the executor may swap models
// mid-run.
type ModelSwapPolicy struct {
	AllowSwaps       bool             `json:"allow_swaps"`
	FallbackStrategy FallbackStrategy `json:"fallback_strategy"`
	SwapTimeoutMs    int64            `json:"swap_timeout_ms"`
	MaxVRAMMb        int64            `json:"max_vram_mb"`
	MaxRAMMb         int64            `json:"max_ram_mb"`
	Strategy         SwapStrategy     `json:"strategy"`
}

func DefaultModelSwapPolicy() ModelSwapPolicy {
	return ModelSwapPolicy{
		AllowSwaps:       true,
		FallbackStrategy: FallbackContinueWithCurrent,
		SwapTimeoutMs:    30_000,
		Strategy:         UnloadReload,
	}
}

// EscalationLevel is one rung of the model chain a micro-task climbs when
// the current model exhausts its iteration budget without completing.
type EscalationLevel struct {
	Level      int    `json:"level"`
	ModelID    string `json:"model_id"`
	IsCloud    bool   `json:"is_cloud"`
	IsHardGate bool   `json:"is_hard_gate"`
}

// ExecutionPolicy configures one micro-task run: iteration budgets, the
// escalation chain, pause points, and whether distillation candidates are
// recorded.
type ExecutionPolicy struct {
	MaxIterationsPerMT int               `json:"max_iterations_per_mt"`
	MaxTotalIterations int               `json:"max_total_iterations"`
	EnableDistillation bool              `json:"enable_distillation"`
	EscalationChain    []EscalationLevel `json:"escalation_chain"`
	PausePoints        []string          `json:"pause_points"`
	ModelSwapPolicy    ModelSwapPolicy   `json:"model_swap_policy"`
}

func DefaultExecutionPolicy() ExecutionPolicy {
	return ExecutionPolicy{
		MaxIterationsPerMT: 6,
		MaxTotalIterations: 24,
		ModelSwapPolicy:    DefaultModelSwapPolicy(),
	}
}

// MicroTaskInput is the job_inputs payload a MicroTaskExecution job carries.
type MicroTaskInput struct {
	WPID            string          `json:"wp_id"`
	WPScope         WorkPackageScope `json:"wp_scope"`
	ExecutionPolicy ExecutionPolicy  `json:"execution_policy"`
}
