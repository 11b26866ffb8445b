package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/nuntissura/handshake/pkg/canonicalize"
)

// EnvGovernanceMode is the env var PolicyFromEnv reads.
const EnvGovernanceMode = "HANDSHAKE_GOVERNANCE_MODE"

// RuntimeGovernanceMode gates whether a cloud-escalation completion request
// is even considered.
type RuntimeGovernanceMode string

const (
	GovLocked   RuntimeGovernanceMode = "locked"
	GovStrict   RuntimeGovernanceMode = "gov_strict"
	GovStandard RuntimeGovernanceMode = "gov_standard"
	GovLight    RuntimeGovernanceMode = "gov_light"
)

func parseGovernanceMode(v string) (RuntimeGovernanceMode, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "locked":
		return GovLocked, true
	case "gov_strict":
		return GovStrict, true
	case "gov_standard":
		return GovStandard, true
	case "gov_light":
		return GovLight, true
	default:
		return "", false
	}
}

// CloudEscalationPolicy wraps the governance mode that determines whether
// cloud-bound completion requests are allowed at all.
type CloudEscalationPolicy struct {
	GovernanceMode RuntimeGovernanceMode
}

// PolicyFromEnv reads HANDSHAKE_GOVERNANCE_MODE, defaulting to GovStandard.
func PolicyFromEnv() CloudEscalationPolicy {
	mode := GovStandard
	if v, ok := parseGovernanceMode(os.Getenv(EnvGovernanceMode)); ok {
		mode = v
	}
	return CloudEscalationPolicy{GovernanceMode: mode}
}

// ModelTier distinguishes local (sandboxed, no consent needed) from cloud
// (egress, consent-gated) model invocations.
type ModelTier string

const (
	TierLocal ModelTier = "local"
	TierCloud ModelTier = "cloud"
)

// ModelProfile identifies a model endpoint and its governance-relevant tier.
type ModelProfile struct {
	ModelID     string
	ContextSize int
	Tier        ModelTier
	TokenizerID string
}

func NewModelProfile(modelID string, contextSize int) ModelProfile {
	return ModelProfile{ModelID: modelID, ContextSize: contextSize, Tier: TierLocal}
}

func (p ModelProfile) WithTier(tier ModelTier) ModelProfile {
	p.Tier = tier
	return p
}

// TokenUsage reports a completion's token accounting.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest is a higher-level request than the chat-oriented
// Client/Message pair: a single prompt plus optional cloud-escalation
// consent bundle.
type CompletionRequest struct {
	RequestID       uuid.UUID
	Prompt          string
	ModelID         string
	CloudEscalation *CloudEscalationBundle
}

func NewCompletionRequest(requestID uuid.UUID, prompt, modelID string) CompletionRequest {
	return CompletionRequest{RequestID: requestID, Prompt: prompt, ModelID: modelID}
}

type CompletionResponse struct {
	Text      string
	Usage     TokenUsage
	LatencyMs int64
}

// LlmError is the closed error taxonomy CloudEscalationGuard and its
// wrapped LlmClient implementations return.
type LlmError struct {
	Kind    string
	Message string
}

func (e *LlmError) Error() string { return e.Kind + ": " + e.Message }

func errGovernanceLocked() *LlmError {
	return &LlmError{Kind: "governance_locked", Message: "cloud escalation denied: governance mode is locked"}
}

func errCloudConsentMismatch(msg string) *LlmError {
	return &LlmError{Kind: "cloud_consent_mismatch", Message: msg}
}

// ErrGovernanceLocked and ErrCloudConsentMismatch are sentinel kinds for
// errors.Is-style checks against LlmError.Kind.
var (
	ErrGovernanceLocked     = errors.New("governance_locked")
	ErrCloudConsentMismatch = errors.New("cloud_consent_mismatch")
)

func (e *LlmError) Unwrap() error {
	switch e.Kind {
	case "governance_locked":
		return ErrGovernanceLocked
	case "cloud_consent_mismatch":
		return ErrCloudConsentMismatch
	default:
		return nil
	}
}

// LlmClient is the cloud-escalation-aware completion interface that
// CloudEscalationGuard wraps; distinct from Client/Message above, which is
// this repo's lower-level, tool-call-oriented chat interface.
type LlmClient interface {
	Completion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Profile() ModelProfile
}

// ProjectionPlanV0_4 is the redaction/inclusion manifest for what's being
// sent off-box, per spec §4.7.
type ProjectionPlanV0_4 struct {
	SchemaVersion       string   `json:"schema_version"`
	ProjectionPlanID    string   `json:"projection_plan_id"`
	IncludeArtifactRefs []string `json:"include_artifact_refs"`
	IncludeFields       []string `json:"include_fields,omitempty"`
	RedactionsApplied   []string `json:"redactions_applied"`
	MaxBytes            uint32   `json:"max_bytes"`
	PayloadSHA256       string   `json:"payload_sha256"`
	CreatedAt           string   `json:"created_at"`
	JobID               string   `json:"job_id,omitempty"`
	WpID                string   `json:"wp_id,omitempty"`
	MtID                string   `json:"mt_id,omitempty"`
}

// ConsentReceiptV0_4 is the human approval record binding to a
// ProjectionPlan by id and payload hash.
type ConsentReceiptV0_4 struct {
	SchemaVersion    string `json:"schema_version"`
	ConsentReceiptID string `json:"consent_receipt_id"`
	ProjectionPlanID string `json:"projection_plan_id"`
	PayloadSHA256    string `json:"payload_sha256"`
	Approved         bool   `json:"approved"`
	ApprovedAt       string `json:"approved_at"`
	UserID           string `json:"user_id"`
	UISurface        string `json:"ui_surface,omitempty"`
	Notes            string `json:"notes,omitempty"`
}

// CloudEscalationRequestV0_4 is the canonical escalation request record.
type CloudEscalationRequestV0_4 struct {
	SchemaVersion     string `json:"schema_version"`
	RequestID         string `json:"request_id"`
	WpID              string `json:"wp_id"`
	MtID              string `json:"mt_id"`
	Reason            string `json:"reason"`
	LocalAttempts     uint32 `json:"local_attempts"`
	LastErrorSummary  string `json:"last_error_summary"`
	RequestedModelID  string `json:"requested_model_id"`
	ProjectionPlanID  string `json:"projection_plan_id"`
	ConsentReceiptID  string `json:"consent_receipt_id"`
}

// CloudEscalationBundle is the full consent bundle enforced at the outbound
// trust boundary: no raw payload travels without one.
type CloudEscalationBundle struct {
	Request        CloudEscalationRequestV0_4
	ProjectionPlan ProjectionPlanV0_4
	ConsentReceipt ConsentReceiptV0_4
}

// ValidateForPayloadSHA256 runs the ten equality checks spec §4.7 requires
// before a cloud escalation bundle is trusted to accompany an outbound
// completion request.
func (b *CloudEscalationBundle) ValidateForPayloadSHA256(computedPayloadSHA256, resolvedModelID string) error {
	if strings.TrimSpace(b.Request.SchemaVersion) != "hsk.cloud_escalation@0.4" {
		return errCloudConsentMismatch("CloudEscalationRequest.schema_version must be hsk.cloud_escalation@0.4")
	}
	if strings.TrimSpace(b.ProjectionPlan.SchemaVersion) != "hsk.projection_plan@0.4" {
		return errCloudConsentMismatch("ProjectionPlan.schema_version must be hsk.projection_plan@0.4")
	}
	if strings.TrimSpace(b.ConsentReceipt.SchemaVersion) != "hsk.consent_receipt@0.4" {
		return errCloudConsentMismatch("ConsentReceipt.schema_version must be hsk.consent_receipt@0.4")
	}
	if strings.TrimSpace(b.Request.RequestedModelID) != resolvedModelID {
		return errCloudConsentMismatch("CloudEscalationRequest.requested_model_id must match resolved request model_id")
	}
	if b.Request.ProjectionPlanID != b.ProjectionPlan.ProjectionPlanID {
		return errCloudConsentMismatch("CloudEscalationRequest.projection_plan_id must match ProjectionPlan.projection_plan_id")
	}
	if b.Request.ConsentReceiptID != b.ConsentReceipt.ConsentReceiptID {
		return errCloudConsentMismatch("CloudEscalationRequest.consent_receipt_id must match ConsentReceipt.consent_receipt_id")
	}
	if !b.ConsentReceipt.Approved {
		return errCloudConsentMismatch("ConsentReceipt.approved must be true")
	}
	if b.ConsentReceipt.ProjectionPlanID != b.ProjectionPlan.ProjectionPlanID {
		return errCloudConsentMismatch("ConsentReceipt.projection_plan_id must match ProjectionPlan.projection_plan_id")
	}
	if b.ConsentReceipt.PayloadSHA256 != b.ProjectionPlan.PayloadSHA256 {
		return errCloudConsentMismatch("ConsentReceipt.payload_sha256 must match ProjectionPlan.payload_sha256")
	}
	if computedPayloadSHA256 != b.ProjectionPlan.PayloadSHA256 {
		return errCloudConsentMismatch("payload_sha256 mismatch (computed canonical request bytes)")
	}
	return nil
}

// canonicalRequestBytes produces the deterministic byte form of req used
// for payload_sha256 binding — JCS over the (model_id, prompt) pair, the Go
// stand-in for the original's OpenAI-compatible canonical request bytes.
func canonicalRequestBytes(req CompletionRequest, resolvedModelID string) ([]byte, error) {
	return canonicalize.JCS(map[string]any{
		"model_id": resolvedModelID,
		"prompt":   req.Prompt,
	})
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// CloudEscalationGuard enforces ProjectionPlan + ConsentReceipt binding
// before letting a cloud-escalation-marked request reach the wrapped
// LlmClient. Requests not marked as cloud escalation pass straight through.
type CloudEscalationGuard struct {
	inner  LlmClient
	policy CloudEscalationPolicy
}

func NewCloudEscalationGuard(inner LlmClient, policy CloudEscalationPolicy) *CloudEscalationGuard {
	return &CloudEscalationGuard{inner: inner, policy: policy}
}

func NewCloudEscalationGuardFromEnv(inner LlmClient) *CloudEscalationGuard {
	return NewCloudEscalationGuard(inner, PolicyFromEnv())
}

func (g *CloudEscalationGuard) Completion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if req.CloudEscalation == nil {
		return g.inner.Completion(ctx, req)
	}

	if g.policy.GovernanceMode == GovLocked {
		return nil, errGovernanceLocked()
	}

	resolvedModelID := req.ModelID
	if strings.TrimSpace(resolvedModelID) == "" {
		resolvedModelID = g.inner.Profile().ModelID
	}

	canonicalBytes, err := canonicalRequestBytes(req, resolvedModelID)
	if err != nil {
		return nil, errCloudConsentMismatch("failed to canonicalize request for payload hashing: " + err.Error())
	}
	computedSHA256 := sha256Hex(canonicalBytes)

	if err := req.CloudEscalation.ValidateForPayloadSHA256(computedSHA256, resolvedModelID); err != nil {
		return nil, err
	}

	return g.inner.Completion(ctx, req)
}

func (g *CloudEscalationGuard) Profile() ModelProfile {
	return g.inner.Profile()
}
