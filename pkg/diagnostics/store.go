package diagnostics

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the in-memory, mutex-guarded diagnostics collection for C3.
type Store struct {
	mu    sync.Mutex
	items []*Diagnostic
}

func NewStore() *Store {
	return &Store{items: make([]*Diagnostic, 0, 256)}
}

// Record builds a Diagnostic from in, computing its fingerprint and
// normalizing text/locations/tags, and appends it.
func (s *Store) Record(in Input) (*Diagnostic, error) {
	now := time.Now().UTC()
	ts := now
	if in.Timestamp != nil {
		ts = in.Timestamp.UTC()
	}

	title := normalizeText(in.Title)
	message := normalizeText(in.Message)

	var normLocations []Location
	if in.Locations != nil {
		normLocations = normalizeLocations(in.Locations)
	}

	fingerprint, err := ComputeFingerprint(in.Source, in.Surface, in.Tool, in.Code, in.Severity, title, in.Locations, in.CapabilityID, in.PolicyDecisionID)
	if err != nil {
		return nil, err
	}

	var tags []string
	if in.Tags != nil {
		tags = normalizeTags(in.Tags)
	}

	d := &Diagnostic{
		ID:               uuid.New(),
		Fingerprint:      fingerprint,
		Title:            title,
		Message:          message,
		Severity:         in.Severity,
		Source:           in.Source,
		Surface:          in.Surface,
		Tool:             in.Tool,
		Code:             in.Code,
		Tags:             tags,
		WorkspaceID:      in.WorkspaceID,
		JobID:            in.JobID,
		ModelID:          in.ModelID,
		Actor:            in.Actor,
		CapabilityID:     in.CapabilityID,
		PolicyDecisionID: in.PolicyDecisionID,
		Locations:        normLocations,
		EvidenceRefs:     in.EvidenceRefs,
		LinkConfidence:   in.LinkConfidence,
		Status:           in.Status,
		Timestamp:        ts,
	}

	s.mu.Lock()
	s.items = append(s.items, d)
	s.mu.Unlock()

	return d, nil
}

// List returns diagnostics matching filter, newest first.
func (s *Store) List(filter Filter) []*Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Diagnostic, 0, len(s.items))
	for _, d := range s.items {
		if matchesFilter(d, filter) {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func matchesFilter(d *Diagnostic, f Filter) bool {
	if f.Severity != nil && *f.Severity != d.Severity {
		return false
	}
	if f.Source != "" && f.Source != d.Source.String() {
		return false
	}
	if f.Surface != nil && *f.Surface != d.Surface {
		return false
	}
	if f.WorkspaceID != "" && f.WorkspaceID != d.WorkspaceID {
		return false
	}
	if f.JobID != nil && f.JobID.String() != d.JobID {
		return false
	}
	if f.From != nil && d.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && d.Timestamp.After(*f.To) {
		return false
	}
	if f.Fingerprint != "" && f.Fingerprint != d.Fingerprint {
		return false
	}
	return true
}

// ListProblems aggregates diagnostics by fingerprint: sorts by
// fingerprint then timestamp, groups consecutive equal fingerprints,
// and for each group emits the latest-timestamp sample with count and
// first/last seen filled in — matching aggregate_grouped exactly,
// including its ">=" rule for tracking the latest sample (a later
// diagnostic with an identical timestamp still becomes the new sample).
func (s *Store) ListProblems() []ProblemGroup {
	s.mu.Lock()
	items := make([]Diagnostic, len(s.items))
	for i, d := range s.items {
		items[i] = *d
	}
	s.mu.Unlock()

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Fingerprint != items[j].Fingerprint {
			return items[i].Fingerprint < items[j].Fingerprint
		}
		return items[i].Timestamp.Before(items[j].Timestamp)
	})

	var groups []ProblemGroup
	i := 0
	for i < len(items) {
		fp := items[i].Fingerprint
		current := items[i]
		count := uint64(1)
		firstSeen := current.Timestamp
		lastSeen := current.Timestamp
		j := i + 1
		for j < len(items) && items[j].Fingerprint == fp {
			count++
			if items[j].Timestamp.Before(firstSeen) {
				firstSeen = items[j].Timestamp
			}
			if !items[j].Timestamp.Before(lastSeen) {
				lastSeen = items[j].Timestamp
				current = items[j]
			}
			j++
		}
		current.Count = count
		current.FirstSeen = &firstSeen
		current.LastSeen = &lastSeen
		groups = append(groups, ProblemGroup{
			Fingerprint: fp,
			Count:       count,
			FirstSeen:   firstSeen,
			LastSeen:    lastSeen,
			Sample:      current,
		})
		i = j
	}

	sort.SliceStable(groups, func(i, j int) bool { return groups[i].LastSeen.After(groups[j].LastSeen) })
	return groups
}

// Size reports the number of recorded (non-aggregated) diagnostics.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
