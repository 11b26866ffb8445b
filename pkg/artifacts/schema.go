package artifacts

import (
	"encoding/json"
	"time"
)

// Type definitions for the governed execution core's artifact kinds.
const (
	TypeEngineEvidence            = "mex/evidence"
	TypeEngineResult              = "mex/result"
	TypeMicroTaskDistillation     = "microtask/distillation-candidate"
	TypeCapabilityRegistryPublish = "capabilities/registry-publication"
	TypeCloudEscalationBundle     = "llm/cloud-escalation-bundle"
)

// ArtifactEnvelope is the signed wrapper around every artifact persisted
// through this package: a PlannedOperation's inputs, an EngineResult's
// outputs/evidence, a micro-task distillation candidate, or a published
// capability registry document all travel as one of these.
type ArtifactEnvelope struct {
	Type           string          `json:"type"`             // e.g., "mex/evidence"
	SchemaVersion  string          `json:"schema_version"`   // e.g., "v1"
	ProducerID     string          `json:"producer_id"`      // e.g., engine id, "capability_registry_build"
	Timestamp      time.Time       `json:"timestamp"`        // RFC3339
	Payload        json.RawMessage `json:"payload"`          // canonical JSON of the typed payload
	Signature      string          `json:"signature"`        // signature over the Payload bytes only
	SignatureKeyID string          `json:"signature_key_id"` // id of the key used to sign
}

// EngineEvidence is the evidence payload an EngineAdapter attaches to a
// D0/D1-or-above EngineResult: what was observed to justify the claimed
// outcome, so G-PROVENANCE has something concrete to check for.
type EngineEvidence struct {
	EngineID    string            `json:"engine_id"`
	OperationID string            `json:"operation_id"`
	Observation string            `json:"observation"`
	InputDigest string            `json:"input_digest"`
	Details     map[string]string `json:"details,omitempty"`
}

// MicroTaskDistillationCandidate captures a completed micro-task iteration
// worth promoting into a reusable prompt/context template.
type MicroTaskDistillationCandidate struct {
	JobID             string `json:"job_id"`
	StepID            string `json:"step_id"`
	StablePrefixHash  string `json:"stable_prefix_hash"`
	VariableSuffixHash string `json:"variable_suffix_hash"`
	FullPromptHash    string `json:"full_prompt_hash"`
	ModelID           string `json:"model_id"`
	OutcomeSummary    string `json:"outcome_summary"`
}

// The evidence-type constants and payload types below are not referenced by
// any other package in this module.
const (
	TypeAlertEvidence      = "evidence/alert"
	TypePredictedReceipt   = "evidence/prediction"
	TypePolicyDraft        = "governance/policy-draft"
	TypeVerificationRecord = "evidence/verification"
	TypeVisualEvidence     = "evidence/visual"
)

type VisualEvidence struct {
	ScreenshotHash  string `json:"screenshot_hash"`
	DOMSnapshotHash string `json:"dom_snapshot_hash"`
	URL             string `json:"url"`
	VPPTimestamp    int64  `json:"vpp_timestamp"`
	ActionID        string `json:"action_id"`
}

type AlertEvidence struct {
	MetricName      string  `json:"metric_name"`
	Value           float64 `json:"value"`
	Threshold       float64 `json:"threshold"`
	Severity        string  `json:"severity"`
	ContextSnapshot string  `json:"context_snapshot"`
}

type PredictedReceipt struct {
	ObligationID       string  `json:"obligation_id"`
	EffectType         string  `json:"effect_type"`
	EstimatedDuration  string  `json:"estimated_duration"`
	SuccessProbability float64 `json:"success_probability"`
	ConfidenceScore    float64 `json:"confidence_score"`
}

type PolicyDraft struct {
	PolicyName         string `json:"policy_name"`
	RegoContent        string `json:"rego_content"`
	SourceHistoryRange string `json:"source_history_range"`
	Rationale          string `json:"rationale"`
}

type VerificationRecord struct {
	SubjectHash    string  `json:"subject_hash"`
	VerifierID     string  `json:"verifier_id"`
	DeceptionScore float64 `json:"deception_score"`
	IsPass         bool    `json:"is_pass"`
}
