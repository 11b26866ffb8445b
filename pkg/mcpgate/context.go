// Package mcpgate implements the C8 Tool Gate: a governance-checked client
// boundary in front of external MCP tool servers. Every tool call passes
// through allowed-tools, schema, capability, consent, and path-policy
// checks before dispatch, with Flight Recorder events at each step.
package mcpgate

import (
	"github.com/google/uuid"

	"github.com/nuntissura/handshake/pkg/store"
)

// Context carries the per-call governance state a tool invocation is
// checked against.
type Context struct {
	JobID                *uuid.UUID
	TraceID               uuid.UUID
	SessionID             string
	TaskID                string
	WorkflowRunID         string
	GrantedCapabilities   []string
	AccessMode            store.AccessMode
	HumanConsentObtained  bool
	AgenticModeEnabled    bool
	AllowedRoots          []string
}

// ConsentDecision is the outcome of a consent request.
type ConsentDecision string

const (
	ConsentAllow   ConsentDecision = "allow"
	ConsentDeny    ConsentDecision = "deny"
	ConsentTimeout ConsentDecision = "timeout"
)
