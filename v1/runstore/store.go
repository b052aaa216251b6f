package runstore

import (
	"context"
	"time"
)

// Store persists runs. Implementations must make SaveResults and Activate
// atomic.
type Store interface {
	// AcquireLock takes the in-progress lock of family for owner. It fails
	// with corpus.ErrConcurrentRunConflict while another owner holds an
	// unexpired lease.
	AcquireLock(ctx context.Context, family Family, owner string, lease time.Duration) error

	// RenewLock extends owner's lease or returns ErrLockLost.
	RenewLock(ctx context.Context, family Family, owner string, lease time.Duration) error

	// ReleaseLock drops owner's lock. Releasing a lock held by someone else
	// returns ErrLockLost.
	ReleaseLock(ctx context.Context, family Family, owner string) error

	// Locked reports whether some owner holds an unexpired lease on family.
	Locked(ctx context.Context, family Family) (bool, error)

	// CreateRun stores a new run in status PENDING.
	CreateRun(ctx context.Context, run Run) error

	// Transition moves a run to status, recording reason. Moving to ACTIVE
	// is only possible through Activate.
	Transition(ctx context.Context, runID string, to Status, reason string) error

	// SaveResults writes stats, quality and assignments of a CLUSTERING run
	// and moves it to LAYOUT_READY in one transaction.
	SaveResults(ctx context.Context, runID string, stats []ClusterStat, quality Quality, assignments []Assignment) error

	// Activate makes a LAYOUT_READY run the active run of its family, marks
	// the previous active run INACTIVE and returns its id ("" if none).
	Activate(ctx context.Context, family Family, runID string) (previous string, err error)

	// Active returns the active run of family or ErrNoActiveRun.
	Active(ctx context.Context, family Family) (Run, error)

	// Run returns a run or ErrRunNotFound.
	Run(ctx context.Context, runID string) (Run, error)

	// Runs lists the runs of family, newest first.
	Runs(ctx context.Context, family Family) ([]Run, error)

	// Assignments returns the assignments of a run ordered by document id.
	Assignments(ctx context.Context, runID string) ([]Assignment, error)

	// Prune deletes FAILED and INACTIVE runs of family beyond the newest keep
	// of them and returns how many were deleted. Active and in-progress runs
	// are never deleted.
	Prune(ctx context.Context, family Family, keep int) (int, error)
}
