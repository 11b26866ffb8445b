package mcpgate

import "context"

// ConsentProvider asks a human (or a stand-in, e.g. for tests) whether a
// tool call requiring consent may proceed.
type ConsentProvider interface {
	RequestConsent(ctx context.Context, gateCtx *Context, serverID, toolName, capabilityID string) ConsentDecision
}

// StaticConsentProvider always returns the same decision; used in tests and
// for servers running with a fixed consent policy.
type StaticConsentProvider struct {
	Decision ConsentDecision
}

func (p StaticConsentProvider) RequestConsent(context.Context, *Context, string, string, string) ConsentDecision {
	return p.Decision
}
