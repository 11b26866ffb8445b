// Package janitor implements periodic retention enforcement (C10): pruning
// terminal jobs past their retention window, emitting a meta.gc_summary
// event with that pass's report, then enforcing the Flight Recorder's own
// event-retention window. The event does not carry the Flight Recorder
// pass's figures; they appear only in the report Prune returns.
package janitor

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nuntissura/handshake/pkg/store"
)

// ArtifactKind names the class of row a RetentionPolicy governs. Only
// KindResult (terminal AI job rows) is implemented; the others are accepted
// in configuration but skipped, matching the original's Phase 1 scope.
type ArtifactKind string

const (
	KindResult     ArtifactKind = "result"
	KindLog        ArtifactKind = "log"
	KindEvidence   ArtifactKind = "evidence"
	KindCache      ArtifactKind = "cache"
	KindCheckpoint ArtifactKind = "checkpoint"
)

// RetentionPolicy configures one prune pass: rows of Kind older than
// WindowDays are pruned, excluding pinned rows, while at least MinVersions
// of the newest rows are always spared regardless of age.
type RetentionPolicy struct {
	Kind        ArtifactKind
	WindowDays  int
	MinVersions int
}

// DefaultResultPolicy matches the canonical policy exercised by the prune
// test fixtures: a 30 day window, keeping at least 3 of the newest rows.
func DefaultResultPolicy() RetentionPolicy {
	return RetentionPolicy{Kind: KindResult, WindowDays: 30, MinVersions: 3}
}

// Config configures a Janitor.
type Config struct {
	Policies []RetentionPolicy
	// DryRun scans and reports but never deletes.
	DryRun bool
	// Interval between background prune passes. Default: 1 hour.
	Interval time.Duration
	// The Flight Recorder's own retention window is set on the
	// FlightRecorder itself; Prune passes its now argument to
	// EnforceRetention rather than reading a clock, so a pass is
	// reproducible under test.
}

// DefaultConfig returns the Janitor's default configuration: one Result
// policy, live (non-dry-run) pruning, hourly background cadence.
func DefaultConfig() Config {
	return Config{
		Policies: []RetentionPolicy{DefaultResultPolicy()},
		DryRun:   false,
		Interval: time.Hour,
	}
}

// DryRunConfig returns a configuration that scans and reports but never
// deletes, for tests and operator previews.
func DryRunConfig() Config {
	cfg := DefaultConfig()
	cfg.DryRun = true
	return cfg
}

// PruneReport summarizes one prune() pass across all policies, the payload
// of the meta.gc_summary event and the janitor.prune operation's output.
// EventsPrunedByFR is filled after the event is recorded and is not in its
// payload.
type PruneReport struct {
	Timestamp          time.Time `json:"timestamp"`
	ItemsScanned       int       `json:"items_scanned"`
	ItemsPruned        int       `json:"items_pruned"`
	ItemsSparedPinned  int       `json:"items_spared_pinned"`
	ItemsSparedWindow  int       `json:"items_spared_window"`
	TotalBytesFreed    int64     `json:"total_bytes_freed"`
	DryRun             bool      `json:"dry_run"`
	EventsPrunedByFR   int       `json:"events_pruned_by_flight_recorder"`
}

// Janitor runs periodic retention enforcement across job storage and the
// Flight Recorder.
type Janitor struct {
	jobs            *store.JobStore
	flightRecorder  *store.FlightRecorder
	config          Config
	traceID         uuid.UUID
}

// New constructs a Janitor. traceID is the trace under which every
// meta.gc_summary event it emits is recorded; the Janitor has no workflow
// run or job of its own, so a fixed trace id groups its runs in the audit
// trail.
func New(jobs *store.JobStore, flightRecorder *store.FlightRecorder, config Config, traceID uuid.UUID) *Janitor {
	return &Janitor{jobs: jobs, flightRecorder: flightRecorder, config: config, traceID: traceID}
}

// Prune runs a single pass: for each configured policy, ask job storage to
// prune rows outside the window (excluding pinned, preserving min_versions),
// accumulate a PruneReport, emit it as a meta.gc_summary event, then enforce
// the Flight Recorder's own retention window. The report is constructed
// (and, for a live run, the deletions performed) by PruneTerminal before the
// summary event is recorded; if recording the event fails, Prune returns the
// report together with the error and the deletions stay in effect.
func (j *Janitor) Prune(now time.Time) (*PruneReport, error) {
	report := &PruneReport{Timestamp: now.UTC(), DryRun: j.config.DryRun}

	for _, policy := range j.config.Policies {
		if policy.Kind != KindResult {
			continue // other artifact kinds are out of scope for this pass
		}
		cutoff := now.UTC().AddDate(0, 0, -policy.WindowDays)
		scanned, pruned, sparedPinned, sparedWindow, bytesFreed := j.jobs.PruneTerminal(cutoff, policy.MinVersions, j.config.DryRun)
		report.ItemsScanned += scanned
		report.ItemsPruned += pruned
		report.ItemsSparedPinned += sparedPinned
		report.ItemsSparedWindow += sparedWindow
		report.TotalBytesFreed += bytesFreed
	}

	if err := j.emitGCSummary(report); err != nil {
		return report, err
	}

	frReport, err := j.flightRecorder.EnforceRetention(now)
	if err != nil {
		if err == store.ErrRetentionNotSet {
			return report, nil
		}
		return report, fmt.Errorf("janitor: enforce flight recorder retention: %w", err)
	}
	report.EventsPrunedByFR = frReport.EventsPruned

	return report, nil
}

func (j *Janitor) emitGCSummary(report *PruneReport) error {
	_, err := j.flightRecorder.RecordEvent(store.Event{
		TraceID:   j.traceID,
		Timestamp: report.Timestamp,
		Actor:     store.ActorSystem,
		ActorID:   "janitor",
		EventType: store.EventMetaGCSummary,
		Payload: map[string]any{
			"type":                 "meta.gc_summary",
			"timestamp":            report.Timestamp.Format(time.RFC3339),
			"items_scanned":        report.ItemsScanned,
			"items_pruned":         report.ItemsPruned,
			"items_spared_pinned":  report.ItemsSparedPinned,
			"items_spared_window":  report.ItemsSparedWindow,
			"total_bytes_freed":    report.TotalBytesFreed,
			"dry_run":              report.DryRun,
		},
	})
	if err != nil {
		return fmt.Errorf("janitor: emit meta.gc_summary: %w", err)
	}
	return nil
}
