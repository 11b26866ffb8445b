package janitor

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nuntissura/handshake/pkg/store"
)

func newTestJanitor(t *testing.T, cfg Config) (*Janitor, *store.JobStore) {
	t.Helper()
	jobs := store.NewJobStore()
	fr := store.NewFlightRecorder(7)
	return New(jobs, fr, cfg, uuid.New()), jobs
}

func TestPruneRespectsPinnedItems(t *testing.T) {
	janitor, jobs := newTestJanitor(t, Config{Policies: []RetentionPolicy{DefaultResultPolicy()}})

	now := time.Now().UTC()
	old := now.AddDate(0, 0, -60)

	pinnedID := mustSeedTerminal(jobs, old, true)
	_ = mustSeedTerminal(jobs, old, false)
	for i := 0; i < 3; i++ {
		mustSeedTerminal(jobs, now, false)
	}

	report, err := janitor.Prune(now)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if report.ItemsSparedPinned != 1 {
		t.Errorf("items_spared_pinned = %d, want 1", report.ItemsSparedPinned)
	}
	if report.ItemsPruned != 1 {
		t.Errorf("items_pruned = %d, want 1", report.ItemsPruned)
	}

	if _, err := jobs.GetJob(pinnedID); err != nil {
		t.Errorf("pinned job should still exist: %v", err)
	}
}

func TestPruneRespectsWindow(t *testing.T) {
	janitor, jobs := newTestJanitor(t, Config{Policies: []RetentionPolicy{DefaultResultPolicy()}})

	now := time.Now().UTC()
	mustSeedTerminal(jobs, now.AddDate(0, 0, -5), false)
	mustSeedTerminal(jobs, now.AddDate(0, 0, -60), false)
	for i := 0; i < 3; i++ {
		mustSeedTerminal(jobs, now, false)
	}

	report, err := janitor.Prune(now)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if report.ItemsPruned < 1 {
		t.Errorf("items_pruned = %d, want >= 1", report.ItemsPruned)
	}
}

func TestDryRunDoesNotDelete(t *testing.T) {
	janitor, jobs := newTestJanitor(t, Config{Policies: []RetentionPolicy{DefaultResultPolicy()}, DryRun: true})

	now := time.Now().UTC()
	jobID := mustSeedTerminal(jobs, now.AddDate(0, 0, -60), false)
	for i := 0; i < 3; i++ {
		mustSeedTerminal(jobs, now, false)
	}

	report, err := janitor.Prune(now)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if report.ItemsPruned < 1 {
		t.Errorf("dry run should report prunable items, got %d", report.ItemsPruned)
	}
	if _, err := jobs.GetJob(jobID); err != nil {
		t.Errorf("job should still exist after dry run: %v", err)
	}
}

func TestMinVersionsConstraint(t *testing.T) {
	policy := RetentionPolicy{Kind: KindResult, WindowDays: 30, MinVersions: 3}
	janitor, jobs := newTestJanitor(t, Config{Policies: []RetentionPolicy{policy}})

	now := time.Now().UTC()
	old := now.AddDate(0, 0, -60)
	for i := 0; i < 3; i++ {
		mustSeedTerminal(jobs, old, false)
	}

	report, err := janitor.Prune(now)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if report.ItemsPruned != 0 {
		t.Errorf("items_pruned = %d, want 0 (min_versions)", report.ItemsPruned)
	}
}

func TestFlightRecorderEventEmitted(t *testing.T) {
	jobs := store.NewJobStore()
	fr := store.NewFlightRecorder(7)
	janitor := New(jobs, fr, DefaultConfig(), uuid.New())

	if _, err := janitor.Prune(time.Now()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events := fr.ListEvents(store.EventFilter{})
	count := 0
	for _, e := range events {
		if e.EventType == store.EventMetaGCSummary {
			count++
		}
	}
	if count != 1 {
		t.Errorf("meta.gc_summary events = %d, want 1", count)
	}
}

// mustSeedTerminal creates a job already in a terminal state with the given
// CreatedAt and pin flag, via JobStore's public mutators.
func mustSeedTerminal(jobs *store.JobStore, createdAt time.Time, pinned bool) uuid.UUID {
	j := jobs.CreateJob(uuid.New(), nil)
	if err := jobs.SetCreatedAt(j.JobID, createdAt); err != nil {
		panic(err)
	}
	if _, err := jobs.UpdateState(j.JobID, store.JobRunning, "running"); err != nil {
		panic(err)
	}
	if _, err := jobs.UpdateState(j.JobID, store.JobCompleted, "completed"); err != nil {
		panic(err)
	}
	if pinned {
		if err := jobs.SetPinned(j.JobID, true); err != nil {
			panic(err)
		}
	}
	return j.JobID
}
