package runstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
)

type memoryLock struct {
	owner   string
	expires time.Time
}

// MemoryStore is an in-process Store for tests and single-process tools.
type MemoryStore struct {
	mu          sync.Mutex
	runs        map[string]Run
	assignments map[string][]Assignment
	active      map[Family]string
	locks       map[Family]memoryLock
	now         func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:        make(map[string]Run),
		assignments: make(map[string][]Assignment),
		active:      make(map[Family]string),
		locks:       make(map[Family]memoryLock),
		now:         time.Now,
	}
}

// SetClock replaces the clock used for leases and timestamps.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// AcquireLock takes the family lock for owner. An expired lease of another
// owner is taken over.
func (s *MemoryStore) AcquireLock(_ context.Context, family Family, owner string, lease time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if l, ok := s.locks[family]; ok && l.owner != owner && now.Before(l.expires) {
		return corpus.ConcurrentRunConflict("acquire lock",
			fmt.Errorf("family %s is locked by %s until %s", family, l.owner, l.expires.Format(time.RFC3339)))
	}
	s.locks[family] = memoryLock{owner: owner, expires: now.Add(lease)}
	return nil
}

// RenewLock extends the lease of owner or returns ErrLockLost.
func (s *MemoryStore) RenewLock(_ context.Context, family Family, owner string, lease time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[family]
	if !ok || l.owner != owner {
		return ErrLockLost
	}
	s.locks[family] = memoryLock{owner: owner, expires: s.now().Add(lease)}
	return nil
}

// Locked reports whether family holds an unexpired lock.
func (s *MemoryStore) Locked(_ context.Context, family Family) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[family]
	return ok && s.now().Before(l.expires), nil
}

// ReleaseLock drops the lock of owner or returns ErrLockLost.
func (s *MemoryStore) ReleaseLock(_ context.Context, family Family, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[family]
	if !ok || l.owner != owner {
		return ErrLockLost
	}
	delete(s.locks, family)
	return nil
}

// CreateRun stores run as pending.
func (s *MemoryStore) CreateRun(_ context.Context, run Run) error {
	if !run.Family.Valid() {
		return fmt.Errorf("runstore: unknown family %q", run.Family)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("runstore: run %s already exists", run.ID)
	}
	now := s.now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	run.Status = StatusPending
	run.ActivatedAt = nil
	s.runs[run.ID] = run
	return nil
}

// Transition moves a run along its lifecycle. Activation goes through Activate.
func (s *MemoryStore) Transition(_ context.Context, runID string, to Status, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	if to == StatusActive || !CanTransition(run.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, run.Status, to)
	}
	run.Status = to
	run.Reason = reason
	run.UpdatedAt = s.now().UTC()
	s.runs[runID] = run
	return nil
}

// SaveResults stores the clustering output and moves the run to LAYOUT_READY.
func (s *MemoryStore) SaveResults(_ context.Context, runID string, stats []ClusterStat, quality Quality, assignments []Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	if run.Status != StatusClustering {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, run.Status, StatusLayoutReady)
	}

	run.Stats = append([]ClusterStat(nil), stats...)
	run.Quality = quality
	run.DocumentCount = len(assignments)
	run.Status = StatusLayoutReady
	run.UpdatedAt = s.now().UTC()
	s.runs[runID] = run

	sorted := append([]Assignment(nil), assignments...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].DocumentID < sorted[j].DocumentID })
	s.assignments[runID] = sorted
	return nil
}

// Activate makes runID the active run of family and returns the run it
// replaced, which becomes inactive.
func (s *MemoryStore) Activate(_ context.Context, family Family, runID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return "", ErrRunNotFound
	}
	if run.Family != family {
		return "", fmt.Errorf("runstore: run %s belongs to family %s, not %s", runID, run.Family, family)
	}
	if run.Status != StatusLayoutReady {
		return "", fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, run.Status, StatusActive)
	}

	now := s.now().UTC()
	previous := s.active[family]
	if prev, ok := s.runs[previous]; ok && previous != "" {
		prev.Status = StatusInactive
		prev.UpdatedAt = now
		s.runs[previous] = prev
	}

	run.Status = StatusActive
	run.ActivatedAt = &now
	run.UpdatedAt = now
	s.runs[runID] = run
	s.active[family] = runID
	return previous, nil
}

// Active returns the active run of family or ErrNoActiveRun.
func (s *MemoryStore) Active(_ context.Context, family Family) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.active[family]
	if !ok {
		return Run{}, ErrNoActiveRun
	}
	return s.runs[id], nil
}

// Run returns the run or ErrRunNotFound.
func (s *MemoryStore) Run(_ context.Context, runID string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	return run, nil
}

// Runs lists the runs of family newest first.
func (s *MemoryStore) Runs(_ context.Context, family Family) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.familyRuns(family), nil
}

// familyRuns returns the runs of family newest first. Callers hold mu.
func (s *MemoryStore) familyRuns(family Family) []Run {
	var out []Run
	for _, r := range s.runs {
		if r.Family == family {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Assignments returns the assignments of runID sorted by document id.
func (s *MemoryStore) Assignments(_ context.Context, runID string) ([]Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return nil, ErrRunNotFound
	}
	return append([]Assignment(nil), s.assignments[runID]...), nil
}

// Prune deletes failed and inactive runs of family beyond the keep newest.
func (s *MemoryStore) Prune(_ context.Context, family Family, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept, deleted := 0, 0
	for _, r := range s.familyRuns(family) {
		if r.Status != StatusFailed && r.Status != StatusInactive {
			continue
		}
		if kept < keep {
			kept++
			continue
		}
		delete(s.runs, r.ID)
		delete(s.assignments, r.ID)
		deleted++
	}
	return deleted, nil
}
