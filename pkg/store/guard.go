package store

import (
	"errors"

	"github.com/google/uuid"
)

// ErrSilentEdit is returned whenever an AI-attributed write does not carry
// both a job id and a trace id. It is the only error a WriteGuard ever
// returns for a rejected write, never a more specific "not found".
// DefaultWriteGuard checks only that both ids are present; it does not look
// the job up or compare it with any workflow run.
var ErrSilentEdit = errors.New("write guard: silent edit: ai write missing traceable job/trace id")

// WriteContext attributes a storage write to a human or an AI actor. AI
// writes must carry both JobID and TraceID or they are rejected as a
// "silent edit" — an AI making changes with no traceable origin.
type WriteContext struct {
	ActorKind Actor
	ActorID   string
	JobID     *uuid.UUID
	TraceID   *uuid.UUID
}

// HumanWriteContext builds a context for a human-originated write.
func HumanWriteContext(actorID string) WriteContext {
	return WriteContext{ActorKind: ActorHuman, ActorID: actorID}
}

// AIWriteContext builds a context for an AI-originated write.
func AIWriteContext(actorID string, jobID, traceID *uuid.UUID) WriteContext {
	return WriteContext{ActorKind: ActorAgent, ActorID: actorID, JobID: jobID, TraceID: traceID}
}

// WriteValidation is the receipt a WriteGuard returns on a successful check.
type WriteValidation struct {
	ActorKind  Actor
	ResourceID string
	JobID      *uuid.UUID
	TraceID    *uuid.UUID
}

// WriteGuard enforces that every AI-originated write is attributable to a
// job and trace id before it reaches storage.
type WriteGuard interface {
	ValidateWrite(ctx WriteContext, resourceID string) (*WriteValidation, error)
}

// DefaultWriteGuard is the sole WriteGuard implementation: human writes
// always pass, AI writes require both JobID and TraceID.
type DefaultWriteGuard struct{}

func (DefaultWriteGuard) ValidateWrite(ctx WriteContext, resourceID string) (*WriteValidation, error) {
	if ctx.ActorKind == ActorAgent && (ctx.JobID == nil || ctx.TraceID == nil) {
		return nil, ErrSilentEdit
	}
	return &WriteValidation{
		ActorKind:  ctx.ActorKind,
		ResourceID: resourceID,
		JobID:      ctx.JobID,
		TraceID:    ctx.TraceID,
	}, nil
}
