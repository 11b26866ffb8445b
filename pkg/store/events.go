package store

// EventType is the closed enum of Flight Recorder event kinds. Spec §3 calls
// for ~40 kinds; this set covers every kind emitted by the governed execution
// core (C2-C10) plus the Janitor and capability-registry build pipeline.
// Kinds belonging to the canvas/sheet/connector UI surfaces are intentionally
// absent: those components are out of scope (SPEC_FULL §2 OPEN QUESTION 2).
type EventType string

const (
	EventToolCall   EventType = "tool.call"
	EventToolResult EventType = "tool.result"

	EventLLMInference      EventType = "llm_inference"
	EventDataContextAssembled EventType = "data_context_assembled"
	EventDataRetrievalExecuted EventType = "data_retrieval_executed"

	EventCapabilityAction EventType = "capability_action"

	EventMicroTaskLoopStarted        EventType = "micro_task_loop_started"
	EventMicroTaskLoopCompleted      EventType = "micro_task_loop_completed"
	EventMicroTaskIterationStarted   EventType = "micro_task_iteration_started"
	EventMicroTaskValidation         EventType = "micro_task_validation"
	EventMicroTaskIterationComplete  EventType = "micro_task_iteration_complete"
	EventMicroTaskComplete           EventType = "micro_task_complete"
	EventMicroTaskEscalated          EventType = "micro_task_escalated"
	EventMicroTaskHardGate           EventType = "micro_task_hard_gate"
	EventMicroTaskDistillationCandidate EventType = "micro_task_distillation_candidate"
	EventMicroTaskResumed            EventType = "micro_task_resumed"

	EventModelSwapRequested EventType = "model_swap_requested"
	EventModelSwapCompleted EventType = "model_swap_completed"
	EventModelSwapTimeout   EventType = "model_swap_timeout"
	EventModelSwapFailed    EventType = "model_swap_failed"
	EventModelSwapRollback  EventType = "model_swap_rollback"

	EventWorkflowRecovery EventType = "workflow_recovery"

	EventGateTimeout  EventType = "gate.timeout"
	EventMcpLogging   EventType = "mcp.logging"

	EventCloudEgressDenied  EventType = "cloud_egress_denied"
	EventCloudEgressAllowed EventType = "cloud_egress_allowed"

	EventCapabilityRegistryDraft    EventType = "capability_registry_draft"
	EventCapabilityRegistryDiff     EventType = "capability_registry_diff"
	EventCapabilityRegistryReviewed EventType = "capability_registry_reviewed"
	EventCapabilityRegistryPublished EventType = "capability_registry_published"

	EventSystem     EventType = "system"
	EventDiagnostic EventType = "diagnostic"

	EventJobCreated    EventType = "job.created"
	EventJobStateChange EventType = "job.state_change"

	EventMetaGCSummary EventType = "meta.gc_summary"

	EventTerminalCommand EventType = "terminal.command"
	EventEditorEdit      EventType = "editor.edit"
	EventRuntimeChatMessageAppended EventType = "runtime_chat_message_appended"
	EventRuntimeChatAns001Validation EventType = "runtime_chat_ans001_validation"
	EventRuntimeChatSessionClosed   EventType = "runtime_chat_session_closed"
)

// Actor identifies the kind of entity that produced an event or a write.
type Actor string

const (
	ActorHuman Actor = "Human"
	ActorAgent Actor = "Agent"
	ActorSystem Actor = "System"
)
