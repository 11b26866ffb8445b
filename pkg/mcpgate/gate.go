package mcpgate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nuntissura/handshake/pkg/store"
)

var (
	ErrToolNotAllowed       = errors.New("mcpgate: tool not in allowed_tools")
	ErrUnknownTool          = errors.New("mcpgate: unknown tool")
	ErrMissingInputSchema   = errors.New("mcpgate: tool has no input schema")
	ErrSchemaValidation     = errors.New("mcpgate: call arguments failed schema validation")
	ErrCapabilityDenied     = errors.New("mcpgate: capability denied")
	ErrConsentDenied        = errors.New("mcpgate: consent denied")
	ErrSecurityViolation    = errors.New("mcpgate: path outside allowed roots")
	ErrRequestTimeout       = errors.New("mcpgate: request timed out")
)

// ToolPolicy is the per-tool enforcement configuration a server operator
// attaches to an advertised tool.
type ToolPolicy struct {
	RequiresConsent bool
	PathArgs        []string // argument names whose value is checked against AllowedRoots
}

// GateConfig bounds the tool gate's behavior: which tools are reachable at
// all, per-tool policy, and the timeouts consent and dispatch are bounded
// by.
type GateConfig struct {
	AllowedTools   map[string]bool
	Policies       map[string]ToolPolicy
	ConsentTimeout time.Duration
	RequestTimeout time.Duration
}

// MinimalGateConfig returns a GateConfig that allows nothing and times out fast; a
// safe starting point callers narrow by adding tools explicitly.
func MinimalGateConfig() GateConfig {
	return GateConfig{
		AllowedTools:   map[string]bool{},
		Policies:       map[string]ToolPolicy{},
		ConsentTimeout: 30 * time.Second,
		RequestTimeout: 60 * time.Second,
	}
}

func (c GateConfig) policyFor(tool string) ToolPolicy {
	return c.Policies[tool]
}

// GateDispatcher handles server-to-client pushes (logging/message,
// sampling/createMessage) arriving while a GatedMcpClient call is pending.
type GateDispatcher interface {
	HandleLogging(ctx context.Context, params map[string]any)
	HandleSamplingCreateMessage(ctx context.Context, params map[string]any) (map[string]any, error)
}

// caller is the narrow surface GatedMcpClient needs from a connected
// transport: issue a tools/call request and get back its result or error.
type caller interface {
	Call(ctx context.Context, method string, params map[string]any) (any, error)
}

// transportCaller adapts a Transport (request/response framing) to caller
// (one request, one result). The gate issues only tools/call through it.
type transportCaller struct {
	mu        sync.Mutex
	transport Transport
	nextID    int64
}

func newTransportCaller(t Transport) *transportCaller {
	return &transportCaller{transport: t, nextID: 1}
}

func (c *transportCaller) Call(ctx context.Context, method string, params map[string]any) (any, error) {
	c.mu.Lock()
	id := NumberID(c.nextID)
	c.nextID++
	c.mu.Unlock()

	if err := c.transport.Send(ctx, NewJsonRpcRequest(id, method, params)); err != nil {
		return nil, fmt.Errorf("mcpgate: send %s: %w", method, err)
	}
	resp, err := c.transport.Recv(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcpgate: recv response to %s: %w", method, err)
	}
	return resp.IntoResult()
}

// GatedMcpClient is the client-side boundary every outbound MCP tool call
// passes through: allowed_tools, schema, capability, consent, and path
// policy all run before a call reaches the wire, with a Flight Recorder
// event at each decision point.
type GatedMcpClient struct {
	serverID  string
	call      caller
	config    GateConfig
	consent   ConsentProvider
	flightRec *store.FlightRecorder

	mu    sync.RWMutex
	tools map[string]ToolDescriptor
}

func NewGatedMcpClient(serverID string, transport Transport, config GateConfig, consent ConsentProvider, fr *store.FlightRecorder) *GatedMcpClient {
	return &GatedMcpClient{
		serverID:  serverID,
		call:      newTransportCaller(transport),
		config:    config,
		consent:   consent,
		flightRec: fr,
		tools:     make(map[string]ToolDescriptor),
	}
}

// RefreshTools replaces the descriptor cache with the given descriptors. It
// does not issue tools/list itself; the caller supplies the descriptors.
func (c *GatedMcpClient) RefreshTools(ctx context.Context, descriptors []ToolDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools = make(map[string]ToolDescriptor, len(descriptors))
	for _, d := range descriptors {
		c.tools[d.Name] = d
	}
}

func (c *GatedMcpClient) toolDescriptor(name string) (ToolDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.tools[name]
	return d, ok
}

// ToolsCall is the gated entry point for invoking a remote tool: every
// requested call passes through allowed_tools, schema, capability, consent,
// and path-policy checks in that fixed order before dispatch.
func (c *GatedMcpClient) ToolsCall(ctx context.Context, gateCtx *Context, toolName string, args map[string]any) (any, error) {
	traceID := gateCtx.TraceID

	if !c.config.AllowedTools[toolName] {
		c.recordGateDecision(traceID, gateCtx, toolName, "tool_not_allowed", "")
		return nil, fmt.Errorf("%w: %s", ErrToolNotAllowed, toolName)
	}

	descriptor, ok := c.toolDescriptor(toolName)
	if !ok {
		c.recordGateDecision(traceID, gateCtx, toolName, "unknown_tool", "")
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, toolName)
	}

	if descriptor.InputSchema == nil {
		c.recordGateDecision(traceID, gateCtx, toolName, "missing_input_schema", "")
		return nil, fmt.Errorf("%w: %s", ErrMissingInputSchema, toolName)
	}
	if err := validateArguments(toolName, descriptor.InputSchema, args); err != nil {
		c.recordGateDecision(traceID, gateCtx, toolName, "schema_validation_failed", err.Error())
		return nil, fmt.Errorf("%w: %v", ErrSchemaValidation, err)
	}

	if descriptor.CapabilityID != "" {
		// capability registry resolution happens in the pipeline the
		// caller wires this client into; here we only enforce the
		// already-resolved grant list carried on gateCtx, matching the
		// original's split between capability registry lookup (engine
		// side) and grant enforcement (gate side).
		granted := false
		for _, g := range gateCtx.GrantedCapabilities {
			if g == descriptor.CapabilityID {
				granted = true
				break
			}
		}
		if !granted {
			c.recordGateDecision(traceID, gateCtx, toolName, "capability_denied", descriptor.CapabilityID)
			return nil, fmt.Errorf("%w: %s requires %s", ErrCapabilityDenied, toolName, descriptor.CapabilityID)
		}
	}

	if c.requiresConsent(gateCtx, descriptor) {
		decision := c.enforceConsent(ctx, gateCtx, toolName, descriptor.CapabilityID)
		if decision != ConsentAllow {
			c.recordGateDecision(traceID, gateCtx, toolName, "consent_denied", string(decision))
			return nil, fmt.Errorf("%w: %s", ErrConsentDenied, decision)
		}
	}

	if policy := c.config.policyFor(toolName); len(policy.PathArgs) > 0 {
		if err := enforcePathPolicy(policy, args, gateCtx.AllowedRoots); err != nil {
			c.recordGateDecision(traceID, gateCtx, toolName, "security_violation", err.Error())
			return nil, fmt.Errorf("%w: %v", ErrSecurityViolation, err)
		}
	}

	return c.dispatch(ctx, gateCtx, toolName, args)
}

// requiresConsent mirrors the original's trigger: the tool's own policy, an
// ApplyScoped access mode, or a filesystem/network-shaped capability id all
// independently require consent; human_consent_obtained short-circuits all
// of them.
func (c *GatedMcpClient) requiresConsent(gateCtx *Context, descriptor ToolDescriptor) bool {
	if gateCtx.HumanConsentObtained {
		return false
	}
	policy := c.config.policyFor(descriptor.Name)
	if policy.RequiresConsent {
		return true
	}
	if gateCtx.AccessMode == store.AccessApplyScoped {
		return true
	}
	return strings.HasPrefix(descriptor.CapabilityID, "fs.") || strings.HasPrefix(descriptor.CapabilityID, "net.")
}

func (c *GatedMcpClient) enforceConsent(ctx context.Context, gateCtx *Context, toolName, capabilityID string) ConsentDecision {
	consentCtx, cancel := context.WithTimeout(ctx, c.config.ConsentTimeout)
	defer cancel()

	result := make(chan ConsentDecision, 1)
	go func() {
		result <- c.consent.RequestConsent(consentCtx, gateCtx, c.serverID, toolName, capabilityID)
	}()

	select {
	case decision := <-result:
		return decision
	case <-consentCtx.Done():
		return ConsentTimeout
	}
}

// enforcePathPolicy checks every path-shaped argument resolves under one of
// allowedRoots once canonicalized, the Go stand-in for the original's
// security::canonicalize_under_roots (not present in the retrieval pack;
// reconstructed from its one call site in the gate's path-policy step).
func enforcePathPolicy(policy ToolPolicy, args map[string]any, allowedRoots []string) error {
	for _, argName := range policy.PathArgs {
		raw, ok := args[argName]
		if !ok {
			continue
		}
		pathStr, ok := raw.(string)
		if !ok {
			return fmt.Errorf("argument %q is not a path string", argName)
		}
		if err := canonicalizeUnderRoots(pathStr, allowedRoots); err != nil {
			return err
		}
	}
	return nil
}

func canonicalizeUnderRoots(path string, roots []string) error {
	if len(roots) == 0 {
		return fmt.Errorf("no allowed roots configured")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path %q: %w", path, err)
	}
	cleaned := filepath.Clean(abs)
	for _, root := range roots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		absRoot = filepath.Clean(absRoot)
		if cleaned == absRoot || strings.HasPrefix(cleaned, absRoot+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("path %q escapes allowed roots", path)
}

func (c *GatedMcpClient) dispatch(ctx context.Context, gateCtx *Context, toolName string, args map[string]any) (any, error) {
	dispatchCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	c.recordToolCall(gateCtx, toolName, args)
	start := time.Now()

	type callResult struct {
		v   any
		err error
	}
	done := make(chan callResult, 1)
	go func() {
		v, err := c.call.Call(dispatchCtx, "tools/call", map[string]any{"name": toolName, "arguments": args})
		done <- callResult{v, err}
	}()

	select {
	case r := <-done:
		durationMs := time.Since(start).Milliseconds()
		if r.err != nil {
			c.recordToolResult(gateCtx, toolName, durationMs, "error", r.err.Error())
			return nil, r.err
		}
		c.recordToolResult(gateCtx, toolName, durationMs, "success", "")
		return r.v, nil
	case <-dispatchCtx.Done():
		c.recordGateDecision(gateCtx.TraceID, gateCtx, toolName, "request_timeout", "")
		return nil, fmt.Errorf("%w: %s", ErrRequestTimeout, toolName)
	}
}

func (c *GatedMcpClient) recordGateDecision(traceID uuid.UUID, gateCtx *Context, toolName, decision, detail string) {
	if c.flightRec == nil {
		return
	}
	eventType := store.EventSystem
	if decision == "request_timeout" {
		eventType = store.EventGateTimeout
	}
	_, _ = c.flightRec.RecordEvent(store.Event{
		TraceID:   traceID,
		Actor:     store.ActorSystem,
		ActorID:   "mcp_gate",
		EventType: eventType,
		JobID:     gateCtx.JobID,
		Payload: map[string]any{
			"type":       string(eventType),
			"message":    "mcp_gate_decision",
			"server_id":  c.serverID,
			"tool_name":  toolName,
			"decision":   decision,
			"detail":     detail,
			"session_id": gateCtx.SessionID,
		},
	})
}

func (c *GatedMcpClient) recordToolCall(gateCtx *Context, toolName string, args map[string]any) {
	if c.flightRec == nil {
		return
	}
	_, _ = c.flightRec.RecordEvent(store.Event{
		TraceID:   gateCtx.TraceID,
		Actor:     store.ActorSystem,
		ActorID:   "mcp_gate",
		EventType: store.EventToolCall,
		JobID:     gateCtx.JobID,
		Payload: map[string]any{
			"type":       string(store.EventToolCall),
			"tool_name":  toolName,
			"server_id":  c.serverID,
			"status":     "success",
			"session_id": gateCtx.SessionID,
		},
	})
}

func (c *GatedMcpClient) recordToolResult(gateCtx *Context, toolName string, durationMs int64, status, errorMsg string) {
	if c.flightRec == nil {
		return
	}
	_, _ = c.flightRec.RecordEvent(store.Event{
		TraceID:   gateCtx.TraceID,
		Actor:     store.ActorSystem,
		ActorID:   "mcp_gate",
		EventType: store.EventToolResult,
		JobID:     gateCtx.JobID,
		Payload: map[string]any{
			"type":        string(store.EventToolResult),
			"tool_name":   toolName,
			"server_id":   c.serverID,
			"status":      status,
			"duration_ms": durationMs,
			"error":       errorMsg,
			"session_id":  gateCtx.SessionID,
		},
	})
}
