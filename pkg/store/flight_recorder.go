package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nuntissura/handshake/pkg/canonicalize"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrInvalidEvent      = errors.New("flight recorder: invalid event")
	ErrEventNotFound     = errors.New("flight recorder: event not found")
	ErrRetentionNotSet   = errors.New("flight recorder: retention window not configured")
)

// Event is the Flight Recorder's unit of record, field-for-field compatible
// with the original implementation's FlightEvent (api/flight_recorder.rs):
// every governance-relevant action in the system becomes one Event.
type Event struct {
	EventID          uuid.UUID      `json:"event_id"`
	TraceID          uuid.UUID      `json:"trace_id"`
	Timestamp        time.Time      `json:"timestamp"`
	Actor            Actor          `json:"actor"`
	ActorID          string         `json:"actor_id,omitempty"`
	EventType        EventType      `json:"event_type"`
	JobID            *uuid.UUID     `json:"job_id,omitempty"`
	WorkflowRunID    string         `json:"workflow_run_id,omitempty"`
	ModelID          string         `json:"model_id,omitempty"`
	WorkspaceIDs     []string       `json:"wsids,omitempty"`
	ActivitySpanID   string         `json:"activity_span_id,omitempty"`
	SessionSpanID    string         `json:"session_span_id,omitempty"`
	CapabilityID     string         `json:"capability_id,omitempty"`
	PolicyDecisionID string         `json:"policy_decision_id,omitempty"`
	Payload          map[string]any `json:"payload"`

	Sequence     uint64 `json:"sequence"`
	PreviousHash string `json:"previous_hash"`
	EntryHash    string `json:"entry_hash"`
}

// EventFilter narrows List results; zero-value fields are unconstrained,
// matching the original EventFilter's optional-field semantics.
type EventFilter struct {
	EventID   *uuid.UUID
	JobID     *uuid.UUID
	TraceID   *uuid.UUID
	From      *time.Time
	To        *time.Time
	Actor     *Actor
	EventType *EventType
	WorkspaceID string
}

func (f EventFilter) matches(e *Event) bool {
	if f.EventID != nil && *f.EventID != e.EventID {
		return false
	}
	if f.JobID != nil && (e.JobID == nil || *f.JobID != *e.JobID) {
		return false
	}
	if f.TraceID != nil && *f.TraceID != e.TraceID {
		return false
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	if f.Actor != nil && *f.Actor != e.Actor {
		return false
	}
	if f.EventType != nil && *f.EventType != e.EventType {
		return false
	}
	if f.WorkspaceID != "" {
		found := false
		for _, ws := range e.WorkspaceIDs {
			if ws == f.WorkspaceID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// FlightRecorder is the single-writer, hash-chained, append-only event log
// for C2. Mutex-guarded like the teacher's AuditStore; unlike AuditStore it
// speaks the spec's Event/EventType contract rather than the generic
// EntryType taxonomy used by the admin-console audit trail.
type FlightRecorder struct {
	mu             sync.Mutex
	events         []*Event
	byID           map[uuid.UUID]*Event
	chainHead      string
	sequence       uint64
	retentionDays  int
	retentionIsSet bool
}

// NewFlightRecorder constructs an empty recorder. retentionDays configures
// EnforceRetention's cutoff once, at construction, matching the original's
// JanitorConfig being fixed for the process lifetime rather than mutated.
func NewFlightRecorder(retentionDays int) *FlightRecorder {
	return &FlightRecorder{
		events:         make([]*Event, 0, 256),
		byID:           make(map[uuid.UUID]*Event),
		chainHead:      "",
		retentionDays:  retentionDays,
		retentionIsSet: retentionDays > 0,
	}
}

// RecordEvent validates, normalizes, and appends ev to the chain, returning
// the stored (hash-stamped) copy. Required fields: TraceID and EventType. A
// zero Timestamp is set to the current time; every Timestamp is normalized
// to UTC here.
func (r *FlightRecorder) RecordEvent(ev Event) (*Event, error) {
	if ev.TraceID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing trace_id", ErrInvalidEvent)
	}
	if ev.EventType == "" {
		return nil, fmt.Errorf("%w: missing event_type", ErrInvalidEvent)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.EventID == uuid.Nil {
		ev.EventID = uuid.New()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	ev.Timestamp = ev.Timestamp.UTC()
	ev.ActorID = normalizeText(ev.ActorID)
	ev.ModelID = normalizeText(ev.ModelID)
	if ev.Payload == nil {
		ev.Payload = map[string]any{}
	}

	r.sequence++
	ev.Sequence = r.sequence
	ev.PreviousHash = r.chainHead

	hash, err := r.computeEventHash(&ev)
	if err != nil {
		return nil, fmt.Errorf("flight recorder: hash event: %w", err)
	}
	ev.EntryHash = hash
	r.chainHead = hash

	stored := ev
	r.events = append(r.events, &stored)
	r.byID[stored.EventID] = &stored

	return &stored, nil
}

func (r *FlightRecorder) computeEventHash(ev *Event) (string, error) {
	canonical, err := canonicalize.JCS(ev)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(append([]byte(ev.PreviousHash), canonical...))
	return hex.EncodeToString(h[:]), nil
}

// normalizeText applies Unicode NFC normalization, matching diagnostics'
// string canonicalization so the same text always hashes identically
// regardless of input decomposition form.
func normalizeText(s string) string {
	if s == "" {
		return s
	}
	return norm.NFC.String(s)
}

// ListEvents returns events matching filter, ordered by sequence ascending.
func (r *FlightRecorder) ListEvents(filter EventFilter) []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Event, 0, len(r.events))
	for _, e := range r.events {
		if filter.matches(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// GetEvent looks up a single event by id.
func (r *FlightRecorder) GetEvent(id uuid.UUID) (*Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	cp := *e
	return &cp, nil
}

// VerifyChain recomputes each entry's hash and confirms the chain has not
// been tampered with, mirroring AuditStore.VerifyChain.
func (r *FlightRecorder) VerifyChain() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := ""
	for _, e := range r.events {
		if e.PreviousHash != prev {
			return fmt.Errorf("flight recorder: chain broken at sequence %d", e.Sequence)
		}
		want := e.EntryHash
		cp := *e
		cp.EntryHash = ""
		got, err := r.computeEventHash(&cp)
		if err != nil {
			return err
		}
		if got != want {
			return fmt.Errorf("flight recorder: hash mismatch at sequence %d", e.Sequence)
		}
		prev = e.EntryHash
	}
	return nil
}

// PruneReport summarizes an EnforceRetention pass. The Janitor copies its
// EventsPruned count into the report its Prune returns; it is not part of
// the meta.gc_summary event payload.
type PruneReport struct {
	CutoffTime   time.Time `json:"cutoff_time"`
	EventsBefore int       `json:"events_before"`
	EventsPruned int       `json:"events_pruned"`
	EventsAfter  int       `json:"events_after"`
}

// EnforceRetention drops events older than the configured retention window.
// Because events are hash-chained, pruning the head of the log invalidates
// VerifyChain for the pruned prefix; callers that prune MUST NOT later
// expect VerifyChain to validate from sequence 1 — only the retained
// suffix's internal consistency from its first retained PreviousHash
// onward is meaningful. The suffix is not re-anchored: its first entry
// keeps the PreviousHash of the pruned event before it, and neither this
// method nor the Janitor records a new logical root.
func (r *FlightRecorder) EnforceRetention(now time.Time) (*PruneReport, error) {
	if !r.retentionIsSet {
		return nil, ErrRetentionNotSet
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.UTC().AddDate(0, 0, -r.retentionDays)
	report := &PruneReport{CutoffTime: cutoff, EventsBefore: len(r.events)}

	kept := r.events[:0:0]
	for _, e := range r.events {
		if e.Timestamp.Before(cutoff) {
			delete(r.byID, e.EventID)
			continue
		}
		kept = append(kept, e)
	}
	r.events = kept
	report.EventsAfter = len(r.events)
	report.EventsPruned = report.EventsBefore - report.EventsAfter

	return report, nil
}

// Size reports the number of retained events.
func (r *FlightRecorder) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
