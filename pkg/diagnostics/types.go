// Package diagnostics implements the deduplicated problem store (C3): a
// fingerprint-addressed collection of Diagnostic records, grouped into
// ProblemGroups by a deterministic canonical-tuple hash.
package diagnostics

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Severity is the canonical diagnostic severity (DIAG-SCHEMA-001).
type Severity string

const (
	SeverityFatal   Severity = "fatal"
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeverityHint    Severity = "hint"
)

var ErrUnknownSeverity = errors.New("diagnostics: unknown severity")

func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityFatal, SeverityError, SeverityWarning, SeverityInfo, SeverityHint:
		return Severity(s), nil
	default:
		return "", ErrUnknownSeverity
	}
}

// Source identifies what produced a diagnostic. Plugin and Matcher carry a
// parameter (serialized as "plugin:<name>"/"matcher:<name>"), matching the
// original's DiagnosticSource::Plugin(String)/Matcher(String) variants.
type Source struct {
	Kind string // "lsp", "terminal", "validator", "engine", "connector", "system", "plugin", "matcher"
	Name string // set only for Kind == "plugin" or "matcher"
}

var ErrInvalidSource = errors.New("diagnostics: invalid source")

func (s Source) String() string {
	switch s.Kind {
	case "plugin", "matcher":
		return s.Kind + ":" + s.Name
	default:
		return s.Kind
	}
}

func ParseSource(raw string) (Source, error) {
	if rest, ok := cutPrefix(raw, "plugin:"); ok {
		return Source{Kind: "plugin", Name: rest}, nil
	}
	if rest, ok := cutPrefix(raw, "matcher:"); ok {
		return Source{Kind: "matcher", Name: rest}, nil
	}
	switch raw {
	case "lsp", "terminal", "validator", "engine", "connector", "system":
		return Source{Kind: raw}, nil
	default:
		return Source{}, ErrInvalidSource
	}
}

func cutPrefix(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):], true
	}
	return "", false
}

// Surface names the UI/system surface a diagnostic is attached to.
type Surface string

const (
	SurfaceMonaco    Surface = "monaco"
	SurfaceCanvas    Surface = "canvas"
	SurfaceSheet     Surface = "sheet"
	SurfaceTerminal  Surface = "terminal"
	SurfaceConnector Surface = "connector"
	SurfaceSystem    Surface = "system"
)

// LinkConfidence describes how confidently a diagnostic is tied to its
// locations/entity references.
type LinkConfidence string

const (
	LinkDirect    LinkConfidence = "direct"
	LinkInferred  LinkConfidence = "inferred"
	LinkAmbiguous LinkConfidence = "ambiguous"
	LinkUnlinked  LinkConfidence = "unlinked"
)

// Status is the human triage state of a Diagnostic.
type Status string

const (
	StatusOpen         Status = "open"
	StatusAcknowledged Status = "acknowledged"
	StatusMuted        Status = "muted"
	StatusResolved     Status = "resolved"
)

// Actor attributes a diagnostic to its originator.
type Actor string

const (
	ActorHuman  Actor = "human"
	ActorAgent  Actor = "agent"
	ActorSystem Actor = "system"
)

// Range is a 1-indexed line/column span, serialized with the same
// startLine/startColumn/endLine/endColumn field names the original
// implementation and its editor surfaces use on the wire.
type Range struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn"`
	EndLine     int `json:"endLine"`
	EndColumn   int `json:"endColumn"`
}

// Location ties a diagnostic to a place: a path, a URI, a workspace surface
// id, and/or a knowledge-graph entity id, with an optional range.
type Location struct {
	Path     string `json:"path,omitempty"`
	URI      string `json:"uri,omitempty"`
	WorkspaceID string `json:"wsid,omitempty"`
	EntityID string `json:"entity_id,omitempty"`
	Range    *Range `json:"range,omitempty"`
}

// ArtifactHashes links a diagnostic to the content-addressed artifacts that
// produced it.
type ArtifactHashes struct {
	InputHash  string `json:"input_hash,omitempty"`
	OutputHash string `json:"output_hash,omitempty"`
	DiffHash   string `json:"diff_hash,omitempty"`
}

// EvidenceRefs cross-references a diagnostic to Flight Recorder events and
// related job/span ids.
type EvidenceRefs struct {
	FlightRecorderEventIDs  []string        `json:"fr_event_ids,omitempty"`
	RelatedJobIDs           []string        `json:"related_job_ids,omitempty"`
	RelatedActivitySpanIDs  []string        `json:"related_activity_span_ids,omitempty"`
	RelatedSessionSpanIDs   []string        `json:"related_session_span_ids,omitempty"`
	ArtifactHashes          *ArtifactHashes `json:"artifact_hashes,omitempty"`
}

// Diagnostic is a single recorded problem, deduplicated by Fingerprint.
type Diagnostic struct {
	ID               uuid.UUID      `json:"id"`
	Fingerprint      string         `json:"fingerprint"`
	Title            string         `json:"title"`
	Message          string         `json:"message"`
	Severity         Severity       `json:"severity"`
	Source           Source         `json:"source"`
	Surface          Surface        `json:"surface"`
	Tool             string         `json:"tool,omitempty"`
	Code             string         `json:"code,omitempty"`
	Tags             []string       `json:"tags,omitempty"`
	WorkspaceID      string         `json:"wsid,omitempty"`
	JobID            string         `json:"job_id,omitempty"`
	ModelID          string         `json:"model_id,omitempty"`
	Actor            Actor          `json:"actor,omitempty"`
	CapabilityID     string         `json:"capability_id,omitempty"`
	PolicyDecisionID string         `json:"policy_decision_id,omitempty"`
	Locations        []Location     `json:"locations,omitempty"`
	EvidenceRefs     *EvidenceRefs  `json:"evidence_refs,omitempty"`
	LinkConfidence   LinkConfidence `json:"link_confidence"`
	Status           Status         `json:"status,omitempty"`
	Count            uint64         `json:"count,omitempty"`
	FirstSeen        *time.Time     `json:"first_seen,omitempty"`
	LastSeen         *time.Time     `json:"last_seen,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
	UpdatedAt        *time.Time     `json:"updated_at,omitempty"`
}

// Input is what a caller supplies to record a new Diagnostic; ID,
// Fingerprint, and Timestamp (unless explicitly set) are derived.
type Input struct {
	Title            string
	Message          string
	Severity         Severity
	Source           Source
	Surface          Surface
	Tool             string
	Code             string
	Tags             []string
	WorkspaceID      string
	JobID            string
	ModelID          string
	Actor            Actor
	CapabilityID     string
	PolicyDecisionID string
	Locations        []Location
	EvidenceRefs     *EvidenceRefs
	LinkConfidence   LinkConfidence
	Status           Status
	Timestamp        *time.Time
}

// Filter narrows List results; zero-value fields are unconstrained.
type Filter struct {
	Severity    *Severity
	Source      string
	Surface     *Surface
	WorkspaceID string
	JobID       *uuid.UUID
	From        *time.Time
	To          *time.Time
	Fingerprint string
	Limit       int
}

// ProblemGroup is one deduplicated row in the aggregated problem list.
type ProblemGroup struct {
	Fingerprint string     `json:"fingerprint"`
	Count       uint64     `json:"count"`
	FirstSeen   time.Time  `json:"first_seen"`
	LastSeen    time.Time  `json:"last_seen"`
	Sample      Diagnostic `json:"sample"`
}
