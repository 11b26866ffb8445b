package microtask

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/nuntissura/handshake/pkg/llm"
	"github.com/nuntissura/handshake/pkg/store"
)

// mtCompletePattern matches the model's completion marker, capturing its
// (possibly empty) body.
var mtCompletePattern = regexp.MustCompile(`(?s)<mt_complete>(.*?)</mt_complete>`)

// Retriever fetches supporting context for a micro-task iteration; nil means
// retrieval is not configured for this run and the step is skipped entirely.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (string, error)
}

// ValidationHarness judges whether a candidate completion actually satisfies
// a work package's done_means.
type ValidationHarness interface {
	Validate(ctx context.Context, scope WorkPackageScope, output string) (bool, error)
}

// ShellValidationHarness runs each WorkPackageScope.TestPlan entry as a
// shell command; the work package is done iff every command exits zero.
type ShellValidationHarness struct{}

func (ShellValidationHarness) Validate(ctx context.Context, scope WorkPackageScope, _ string) (bool, error) {
	for _, cmd := range scope.TestPlan {
		if strings.TrimSpace(cmd) == "" {
			continue
		}
		//nolint:gosec // test_plan commands are operator-authored work-package config, not untrusted input
		c := exec.CommandContext(ctx, "sh", "-c", cmd)
		if err := c.Run(); err != nil {
			return false, nil
		}
	}
	return true, nil
}

// Executor drives one micro-task job's iteration loop end to end, emitting
// Flight Recorder events at every step per spec §4.9.
type Executor struct {
	BaseDir       string
	FlightRec     *store.FlightRecorder
	Jobs          *store.JobStore
	Validator     ValidationHarness
	Retriever     Retriever
	Swapper       Swapper
	StablePrefix  string
}

func NewExecutor(baseDir string, fr *store.FlightRecorder, jobs *store.JobStore) *Executor {
	return &Executor{
		BaseDir:   baseDir,
		FlightRec: fr,
		Jobs:      jobs,
		Validator: ShellValidationHarness{},
		Swapper:   NoopSwapper{},
	}
}

// runState is the executor's working state for one job's loop. It is held in
// memory for a single Run call and is not written to the run ledger: a
// resumed Run starts again at MT-001 on the first escalation level with its
// iteration counters at zero.
type runState struct {
	mtID             string
	levelIndex       int
	iterationsAtMT   int
	totalIterations  int
	priorFailedText  string
	rescuedByHigher  bool
}

// Run drives job through the micro-task loop until it completes, hits a
// hard gate, hits a pause point, or exhausts its total iteration budget.
func (e *Executor) Run(ctx context.Context, job *store.Job, input MicroTaskInput, client llm.LlmClient) (*store.Job, error) {
	traceID := job.TraceID
	jobID := job.JobID

	ledger, err := LoadRunLedger(e.BaseDir, jobID.String())
	if err != nil {
		return nil, err
	}
	resuming := len(ledger.Steps) > 0

	policy := input.ExecutionPolicy
	if len(policy.EscalationChain) == 0 {
		policy.EscalationChain = []EscalationLevel{{Level: 0, ModelID: client.Profile().ModelID}}
	}
	if policy.MaxIterationsPerMT <= 0 {
		policy.MaxIterationsPerMT = 6
	}
	if policy.MaxTotalIterations <= 0 {
		policy.MaxTotalIterations = 24
	}

	st := &runState{mtID: "MT-001"}

	if resuming {
		e.recordEvent(traceID, &jobID, store.EventMicroTaskResumed, map[string]any{
			"type": "micro_task_resumed", "mt_id": st.mtID,
		})
		recovered := ledger.RecoverableInProgress()
		for _, step := range recovered {
			step.Status = StepCompleted
			ledger.AppendStep(step)
		}
		_ = ledger.Save(e.BaseDir)
		e.recordEvent(traceID, &jobID, store.EventWorkflowRecovery, map[string]any{
			"type": "workflow_recovery", "recovered_steps": len(recovered),
		})
	} else {
		e.recordEvent(traceID, &jobID, store.EventMicroTaskLoopStarted, map[string]any{
			"type": "micro_task_loop_started", "wp_id": input.WPID,
		})
	}

	if contains(policy.PausePoints, st.mtID) && !resuming {
		return e.pause(job, ledger, st)
	}

	for {
		if st.totalIterations >= policy.MaxTotalIterations {
			return e.hardGate(job, traceID, st, "total_iteration_budget_exhausted")
		}

		e.recordEvent(traceID, &jobID, store.EventMicroTaskIterationStarted, map[string]any{
			"type": "micro_task_iteration_started", "mt_id": st.mtID,
			"level": policy.EscalationChain[st.levelIndex].Level,
		})

		level := policy.EscalationChain[st.levelIndex]

		assembled := Assemble(e.StablePrefix, map[string]string{
			"wp_id":       input.WPID,
			"description": input.WPScope.Description,
			"done_means":  strings.Join(input.WPScope.DoneMeans, "\n"),
		}, AssembleOptions{Tokenizer: NewTokenizer(client.Profile().TokenizerID)})

		e.recordEvent(traceID, &jobID, store.EventDataContextAssembled, map[string]any{
			"type":                 "data_context_assembled",
			"request_id":           st.mtID,
			"stable_prefix_hash":   assembled.StablePrefixHash,
			"variable_suffix_hash": assembled.VariableSuffixHash,
			"full_prompt_hash":     assembled.FullPromptHash,
		})

		if e.Retriever != nil {
			if err := e.runRetrieval(ctx, traceID, &jobID, st.mtID, assembled.FullPrompt); err != nil {
				return nil, err
			}
		}

		resp, err := client.Completion(ctx, llm.NewCompletionRequest(uuid.New(), assembled.FullPrompt, level.ModelID))
		if err != nil {
			return nil, fmt.Errorf("microtask: completion failed: %w", err)
		}
		e.recordEvent(traceID, &jobID, store.EventLLMInference, map[string]any{
			"type": "llm_inference", "model_id": level.ModelID, "mt_id": st.mtID,
		})

		st.totalIterations++
		st.iterationsAtMT++

		if match := mtCompletePattern.FindStringSubmatch(resp.Text); match != nil {
			ok, verr := e.Validator.Validate(ctx, input.WPScope, resp.Text)
			e.recordEvent(traceID, &jobID, store.EventMicroTaskValidation, map[string]any{
				"type": "micro_task_validation", "mt_id": st.mtID, "passed": ok,
			})
			if verr == nil && ok {
				e.recordEvent(traceID, &jobID, store.EventMicroTaskIterationComplete, map[string]any{
					"type": "micro_task_iteration_complete", "mt_id": st.mtID,
				})
				e.recordEvent(traceID, &jobID, store.EventMicroTaskComplete, map[string]any{
					"type": "micro_task_complete", "mt_id": st.mtID,
				})

				if st.rescuedByHigher && policy.EnableDistillation {
					if err := e.recordDistillation(traceID, &jobID, st, resp.Text); err != nil {
						return nil, err
					}
				}

				e.recordEvent(traceID, &jobID, store.EventMicroTaskLoopCompleted, map[string]any{
					"type": "micro_task_loop_completed", "wp_id": input.WPID,
				})
				return e.transition(job, store.JobCompleted, "micro_task_loop_completed")
			}
		}

		atLevelBudget := st.iterationsAtMT >= policy.MaxIterationsPerMT
		if !atLevelBudget {
			continue
		}

		// Level exhausted: escalate, or hard-gate if this was the last rung.
		if st.levelIndex >= len(policy.EscalationChain)-1 {
			if level.IsHardGate {
				return e.hardGate(job, traceID, st, "escalation_chain_exhausted_hard_gate")
			}
			return e.transition(job, store.JobFailed, "escalation_chain_exhausted")
		}

		st.priorFailedText = resp.Text
		next := policy.EscalationChain[st.levelIndex+1]
		e.recordEvent(traceID, &jobID, store.EventMicroTaskEscalated, map[string]any{
			"type": "micro_task_escalated", "mt_id": st.mtID,
			"from_model_id": level.ModelID, "to_model_id": next.ModelID,
		})

		outcome, err := e.performSwap(ctx, traceID, &jobID, jobID.String(), level.ModelID, next.ModelID, policy.ModelSwapPolicy)
		if err != nil {
			return nil, err
		}
		switch outcome.Outcome {
		case "success":
			st.levelIndex++
			st.iterationsAtMT = 0
			st.rescuedByHigher = true
		case "timeout", "failure":
			if policy.ModelSwapPolicy.FallbackStrategy == FallbackRollback {
				e.recordEvent(traceID, &jobID, store.EventModelSwapRollback, map[string]any{
					"type": "model_swap_rollback", "outcome": "rollback", "error_summary": outcome.ErrorSummary,
				})
			}
			if policy.ModelSwapPolicy.FallbackStrategy == FallbackAbort {
				return e.transition(job, store.JobFailed, "model_swap_aborted: "+outcome.ErrorSummary)
			}
			// continue_with_current (or rollback, which also continues with
			// the current level): stay at the same level with a fresh
			// per-level iteration budget.
			st.iterationsAtMT = 0
		}
	}
}

func (e *Executor) runRetrieval(ctx context.Context, traceID uuid.UUID, jobID *uuid.UUID, mtID, query string) error {
	normalized := normalizeNFC(query)
	queryHash := sha256Hex([]byte(normalized))
	requestID := uuid.New()

	e.recordEvent(traceID, jobID, store.EventDataRetrievalExecuted, map[string]any{
		"type":       "data_retrieval_executed",
		"request_id": requestID.String(),
		"query_hash": queryHash,
		"mt_id":      mtID,
	})

	if _, err := e.Retriever.Retrieve(ctx, query); err != nil {
		return fmt.Errorf("microtask: retrieval failed: %w", err)
	}
	return nil
}

// normalizeNFC applies Unicode NFC normalization so a retrieval query hashes
// identically regardless of its input decomposition form.
func normalizeNFC(s string) string { return norm.NFC.String(s) }

func (e *Executor) performSwap(ctx context.Context, traceID uuid.UUID, jobID *uuid.UUID, jobIDStr, currentModelID, targetModelID string, policy ModelSwapPolicy) (*SwapOutcome, error) {
	outcome, err := PerformSwap(ctx, e.BaseDir, jobIDStr, currentModelID, targetModelID, policy, e.Swapper)
	if err != nil {
		return nil, err
	}

	e.recordEvent(traceID, jobID, store.EventModelSwapRequested, map[string]any{
		"type": "model_swap_requested", "current_model_id": currentModelID, "target_model_id": targetModelID,
		"state_hash": outcome.StateHash, "state_persist_refs": outcome.StatePersistRefs,
	})

	switch outcome.Outcome {
	case "success":
		e.recordEvent(traceID, jobID, store.EventModelSwapCompleted, map[string]any{
			"type": "model_swap_completed", "outcome": "success",
		})
	case "timeout":
		e.recordEvent(traceID, jobID, store.EventModelSwapTimeout, map[string]any{
			"type": "model_swap_timeout", "outcome": "timeout", "error_summary": outcome.ErrorSummary,
		})
	case "failure":
		e.recordEvent(traceID, jobID, store.EventModelSwapFailed, map[string]any{
			"type": "model_swap_failed", "outcome": "failure", "error_summary": outcome.ErrorSummary,
		})
	}

	return outcome, nil
}

func (e *Executor) recordDistillation(traceID uuid.UUID, jobID *uuid.UUID, st *runState, teacherSuccess string) error {
	candidate := DistillationCandidate{
		SkillLogEntryID: uuid.New().String(),
		StudentAttempt:  st.priorFailedText,
		TeacherSuccess:  teacherSuccess,
	}
	path, err := WriteCandidateFile(e.BaseDir, jobID.String(), st.mtID, candidate)
	if err != nil {
		return err
	}
	e.recordEvent(traceID, jobID, store.EventMicroTaskDistillationCandidate, map[string]any{
		"type": "micro_task_distillation_candidate", "mt_id": st.mtID, "candidate_path": path,
	})
	return nil
}

func (e *Executor) hardGate(job *store.Job, traceID uuid.UUID, st *runState, reason string) (*store.Job, error) {
	jobID := job.JobID
	e.recordEvent(traceID, &jobID, store.EventMicroTaskHardGate, map[string]any{
		"type": "micro_task_hard_gate", "mt_id": st.mtID, "reason": reason,
	})
	return e.transition(job, store.JobAwaitingUser, reason)
}

func (e *Executor) pause(job *store.Job, ledger *RunLedger, st *runState) (*store.Job, error) {
	ledger.AppendStep(Step{StepID: st.mtID, IdempotencyKey: st.mtID, Status: StepInProgress, Recoverable: true})
	if err := ledger.Save(e.BaseDir); err != nil {
		return nil, err
	}
	return e.transition(job, store.JobAwaitingUser, "pause_point_hit: "+st.mtID)
}

func (e *Executor) transition(job *store.Job, to store.JobState, reason string) (*store.Job, error) {
	updated, err := e.Jobs.UpdateState(job.JobID, to, reason)
	if err != nil {
		return nil, fmt.Errorf("microtask: transition job: %w", err)
	}
	return updated, nil
}

func (e *Executor) recordEvent(traceID uuid.UUID, jobID *uuid.UUID, eventType store.EventType, payload map[string]any) {
	if e.FlightRec == nil {
		return
	}
	_, _ = e.FlightRec.RecordEvent(store.Event{
		TraceID:   traceID,
		Actor:     store.ActorSystem,
		ActorID:   "micro_task_executor",
		EventType: eventType,
		JobID:     jobID,
		Payload:   payload,
	})
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
