package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobState is the lifecycle state of a workflow run. Transitions are
// forward-only with a single exception: AwaitingUser may return to Running
// once the user responds.
type JobState string

const (
	JobQueued              JobState = "Queued"
	JobRunning             JobState = "Running"
	JobCompleted           JobState = "Completed"
	JobCompletedWithIssues JobState = "CompletedWithIssues"
	JobAwaitingUser        JobState = "AwaitingUser"
	JobAwaitingValidation  JobState = "AwaitingValidation"
	JobStalled             JobState = "Stalled"
	JobFailed              JobState = "Failed"
	JobPoisoned            JobState = "Poisoned"
	JobCancelled           JobState = "Cancelled"
)

var terminalJobStates = map[JobState]bool{
	JobCompleted:           true,
	JobCompletedWithIssues: true,
	JobFailed:              true,
	JobPoisoned:            true,
	JobCancelled:           true,
}

// jobStateRank orders states for the forward-only transition check. The
// terminal states are reachable from any earlier rank but not from each
// other; the rank-2 waiting states may move among themselves.
var jobStateRank = map[JobState]int{
	JobQueued:              0,
	JobRunning:              1,
	JobAwaitingUser:         2,
	JobAwaitingValidation:   2,
	JobStalled:              2,
	JobCompleted:           3,
	JobCompletedWithIssues: 3,
	JobFailed:              3,
	JobPoisoned:            3,
	JobCancelled:           3,
}

var (
	ErrInvalidTransition = errors.New("job: invalid state transition")
	ErrJobNotFound       = errors.New("job: not found")
)

// AccessMode bounds what a job's tool/engine calls are allowed to do:
// AnalysisOnly never mutates external state; ApplyScoped may, and pulls in
// the MCP tool gate's consent requirement.
type AccessMode string

const (
	AccessAnalysisOnly AccessMode = "AnalysisOnly"
	AccessApplyScoped  AccessMode = "ApplyScoped"
)

// Job is a workflow run tracked by the execution core.
type Job struct {
	JobID               uuid.UUID
	TraceID             uuid.UUID
	State               JobState
	StatusReason        string
	WorkflowRunID       string
	AccessMode          AccessMode
	CapabilityProfileID string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	LastHeartbeat       time.Time
	Inputs              map[string]any
	Outputs             map[string]any
	ErrorMessage        string
	IsPinned            bool
	ByteSize            int64
}

// CanTransition reports whether moving from `from` to `to` is legal.
func CanTransition(from, to JobState) bool {
	if from == to {
		return true
	}
	if from == JobAwaitingUser && to == JobRunning {
		return true
	}
	if terminalJobStates[from] {
		return false
	}
	return jobStateRank[to] >= jobStateRank[from]
}

// JobStore tracks job lifecycle state in memory, guarded by a mutex like the
// rest of this package's stores.
type JobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[uuid.UUID]*Job)}
}

// CreateJob registers a new job in the Queued state.
func (s *JobStore) CreateJob(traceID uuid.UUID, inputs map[string]any) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	j := &Job{
		JobID:         uuid.New(),
		TraceID:       traceID,
		State:         JobQueued,
		StatusReason:  "queued",
		CreatedAt:     now,
		UpdatedAt:     now,
		LastHeartbeat: now,
		Inputs:        inputs,
	}
	s.jobs[j.JobID] = j
	return j
}

// GetJob returns a copy of the job's current state.
func (s *JobStore) GetJob(id uuid.UUID) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// UpdateState transitions a job, rejecting illegal transitions.
func (s *JobStore) UpdateState(id uuid.UUID, to JobState, reason string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if !CanTransition(j.State, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, to)
	}
	j.State = to
	j.StatusReason = reason
	j.UpdatedAt = time.Now().UTC()
	cp := *j
	return &cp, nil
}

// SetOutputs records the job's final outputs without altering state.
func (s *JobStore) SetOutputs(id uuid.UUID, outputs map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	j.Outputs = outputs
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// Heartbeat refreshes a running job's liveness timestamp.
func (s *JobStore) Heartbeat(id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	j.LastHeartbeat = at.UTC()
	return nil
}

// SetCreatedAt overrides a job's creation timestamp, for migrating
// historical jobs into storage and for retention tests that need
// deterministic ages.
func (s *JobStore) SetCreatedAt(id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	j.CreatedAt = at.UTC()
	return nil
}

// SetByteSize records the on-disk size attributed to a job, surfaced as
// PruneTerminal's TotalBytesFreed when the job is later pruned.
func (s *JobStore) SetByteSize(id uuid.UUID, size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	j.ByteSize = size
	return nil
}

// SetPinned marks a job exempt from retention pruning regardless of age.
func (s *JobStore) SetPinned(id uuid.UUID, pinned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	j.IsPinned = pinned
	return nil
}

// PruneTerminal deletes terminal-state jobs older than cutoff, excluding
// pinned jobs and preserving at least minVersions of the newest terminal
// jobs regardless of age. In dryRun mode nothing is deleted; the report
// still reflects what would have been pruned. Returns counts and the total
// ByteSize freed, for the Janitor's PruneReport.
func (s *JobStore) PruneTerminal(cutoff time.Time, minVersions int, dryRun bool) (scanned, pruned, sparedPinned, sparedWindow int, bytesFreed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var terminal []*Job
	for _, j := range s.jobs {
		if terminalJobStates[j.State] {
			terminal = append(terminal, j)
		}
	}
	sort.Slice(terminal, func(i, k int) bool { return terminal[i].CreatedAt.After(terminal[k].CreatedAt) })

	var toDelete []uuid.UUID
	for i, j := range terminal {
		if j.CreatedAt.After(cutoff) || j.CreatedAt.Equal(cutoff) {
			continue
		}
		scanned++
		if j.IsPinned {
			sparedPinned++
			continue
		}
		if i < minVersions {
			sparedWindow++
			continue
		}
		pruned++
		bytesFreed += j.ByteSize
		toDelete = append(toDelete, j.JobID)
	}

	if !dryRun {
		for _, id := range toDelete {
			delete(s.jobs, id)
		}
	}
	return scanned, pruned, sparedPinned, sparedWindow, bytesFreed
}

// FindStalled returns Running jobs whose last heartbeat is older than
// thresholdSeconds, candidates for the Janitor or a supervisor to mark
// Stalled.
func (s *JobStore) FindStalled(thresholdSeconds int64, now time.Time) []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.UTC().Add(-time.Duration(thresholdSeconds) * time.Second)
	var out []*Job
	for _, j := range s.jobs {
		if j.State == JobRunning && j.LastHeartbeat.Before(cutoff) {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out
}
