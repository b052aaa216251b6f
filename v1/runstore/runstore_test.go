package runstore_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/runstore"
)

func ptr(f float64) *float64 { return &f }

// readyRun creates a run and drives it to LAYOUT_READY.
func readyRun(t *testing.T, s runstore.Store, family runstore.Family, id string, created time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateRun(ctx, runstore.Run{
		ID:         id,
		Family:     family,
		Algorithm:  "hdbscan",
		Encoder:    "legal-v1",
		Parameters: []byte(`{"min_cluster_size":5}`),
		CreatedAt:  created,
	}))
	require.NoError(t, s.Transition(ctx, id, runstore.StatusProjecting, ""))
	require.NoError(t, s.Transition(ctx, id, runstore.StatusClustering, ""))
	require.NoError(t, s.SaveResults(ctx, id,
		[]runstore.ClusterStat{{Label: 0, Size: 2, DominantLegalArea: "tax", Stability: 1.5}},
		runstore.Quality{Silhouette: ptr(0.5)},
		[]runstore.Assignment{
			{DocumentID: "d2", Label: 0, Probability: 1, X: 1, Y: 2},
			{DocumentID: "d1", Label: 0, Probability: 0.5, X: 3, Y: 4},
		}))
}

// runStoreContract exercises behaviour every Store must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) runstore.Store) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("lock excludes other owners", func(t *testing.T) {
		s := newStore(t)
		locked, err := s.Locked(ctx, runstore.FamilyDensity)
		require.NoError(t, err)
		assert.False(t, locked)

		require.NoError(t, s.AcquireLock(ctx, runstore.FamilyDensity, "w1", time.Minute))
		locked, err = s.Locked(ctx, runstore.FamilyDensity)
		require.NoError(t, err)
		assert.True(t, locked)

		err = s.AcquireLock(ctx, runstore.FamilyDensity, "w2", time.Minute)
		require.Error(t, err)
		assert.True(t, errors.Is(err, corpus.ErrConcurrentRunConflict))

		// Other families are independent.
		require.NoError(t, s.AcquireLock(ctx, runstore.FamilyTopic, "w2", time.Minute))

		// Reentrant for the holder.
		require.NoError(t, s.AcquireLock(ctx, runstore.FamilyDensity, "w1", time.Minute))
		require.NoError(t, s.RenewLock(ctx, runstore.FamilyDensity, "w1", time.Minute))

		assert.ErrorIs(t, s.RenewLock(ctx, runstore.FamilyDensity, "w2", time.Minute), runstore.ErrLockLost)
		assert.ErrorIs(t, s.ReleaseLock(ctx, runstore.FamilyDensity, "w2"), runstore.ErrLockLost)

		require.NoError(t, s.ReleaseLock(ctx, runstore.FamilyDensity, "w1"))
		locked, err = s.Locked(ctx, runstore.FamilyDensity)
		require.NoError(t, err)
		assert.False(t, locked)
		require.NoError(t, s.AcquireLock(ctx, runstore.FamilyDensity, "w2", time.Minute))
	})

	t.Run("lifecycle and activation swap", func(t *testing.T) {
		s := newStore(t)

		_, err := s.Active(ctx, runstore.FamilyDensity)
		assert.ErrorIs(t, err, runstore.ErrNoActiveRun)

		readyRun(t, s, runstore.FamilyDensity, "r1", base)
		previous, err := s.Activate(ctx, runstore.FamilyDensity, "r1")
		require.NoError(t, err)
		assert.Equal(t, "", previous)

		active, err := s.Active(ctx, runstore.FamilyDensity)
		require.NoError(t, err)
		assert.Equal(t, "r1", active.ID)
		assert.Equal(t, runstore.StatusActive, active.Status)
		assert.Equal(t, 2, active.DocumentCount)
		require.NotNil(t, active.ActivatedAt)
		require.NotNil(t, active.Quality.Silhouette)
		assert.InDelta(t, 0.5, *active.Quality.Silhouette, 1e-12)
		assert.Nil(t, active.Quality.DaviesBouldin)
		require.Len(t, active.Stats, 1)
		assert.Equal(t, "tax", active.Stats[0].DominantLegalArea)

		readyRun(t, s, runstore.FamilyDensity, "r2", base.Add(time.Hour))

		// A run still being computed does not touch the pointer.
		active, err = s.Active(ctx, runstore.FamilyDensity)
		require.NoError(t, err)
		assert.Equal(t, "r1", active.ID)

		previous, err = s.Activate(ctx, runstore.FamilyDensity, "r2")
		require.NoError(t, err)
		assert.Equal(t, "r1", previous)

		old, err := s.Run(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, runstore.StatusInactive, old.Status)

		runs, err := s.Runs(ctx, runstore.FamilyDensity)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, "r2", runs[0].ID)

		assignments, err := s.Assignments(ctx, "r2")
		require.NoError(t, err)
		require.Len(t, assignments, 2)
		assert.Equal(t, "d1", assignments[0].DocumentID)
		assert.Equal(t, 3.0, assignments[0].X)
	})

	t.Run("invalid transitions", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateRun(ctx, runstore.Run{ID: "r", Family: runstore.FamilyTopic, Algorithm: "hdbscan", Encoder: "e"}))

		assert.ErrorIs(t, s.Transition(ctx, "r", runstore.StatusClustering, ""), runstore.ErrInvalidTransition)
		assert.ErrorIs(t, s.Transition(ctx, "r", runstore.StatusActive, ""), runstore.ErrInvalidTransition)
		assert.ErrorIs(t, s.SaveResults(ctx, "r", nil, runstore.Quality{}, nil), runstore.ErrInvalidTransition)

		_, err := s.Activate(ctx, runstore.FamilyTopic, "r")
		assert.ErrorIs(t, err, runstore.ErrInvalidTransition)

		require.NoError(t, s.Transition(ctx, "r", runstore.StatusFailed, "insufficient data"))
		run, err := s.Run(ctx, "r")
		require.NoError(t, err)
		assert.Equal(t, runstore.StatusFailed, run.Status)
		assert.Equal(t, "insufficient data", run.Reason)

		assert.ErrorIs(t, s.Transition(ctx, "missing", runstore.StatusFailed, ""), runstore.ErrRunNotFound)
		_, err = s.Run(ctx, "missing")
		assert.ErrorIs(t, err, runstore.ErrRunNotFound)
		_, err = s.Assignments(ctx, "missing")
		assert.ErrorIs(t, err, runstore.ErrRunNotFound)
	})

	t.Run("activation is scoped to the family", func(t *testing.T) {
		s := newStore(t)
		readyRun(t, s, runstore.FamilyTopic, "t1", base)

		_, err := s.Activate(ctx, runstore.FamilyDensity, "t1")
		require.Error(t, err)
		_, err = s.Active(ctx, runstore.FamilyDensity)
		assert.ErrorIs(t, err, runstore.ErrNoActiveRun)
	})

	t.Run("unknown family is rejected", func(t *testing.T) {
		s := newStore(t)
		assert.Error(t, s.CreateRun(ctx, runstore.Run{ID: "x", Family: "spectral"}))
	})

	t.Run("prune keeps active and newest finished runs", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 4; i++ {
			id := fmt.Sprintf("f%d", i)
			require.NoError(t, s.CreateRun(ctx, runstore.Run{
				ID: id, Family: runstore.FamilyDensity, Algorithm: "hdbscan", Encoder: "e",
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			}))
			require.NoError(t, s.Transition(ctx, id, runstore.StatusFailed, "boom"))
		}
		readyRun(t, s, runstore.FamilyDensity, "a1", base.Add(time.Hour))
		_, err := s.Activate(ctx, runstore.FamilyDensity, "a1")
		require.NoError(t, err)
		require.NoError(t, s.CreateRun(ctx, runstore.Run{
			ID: "p1", Family: runstore.FamilyDensity, Algorithm: "hdbscan", Encoder: "e",
			CreatedAt: base.Add(2 * time.Hour),
		}))

		deleted, err := s.Prune(ctx, runstore.FamilyDensity, 1)
		require.NoError(t, err)
		assert.Equal(t, 3, deleted)

		runs, err := s.Runs(ctx, runstore.FamilyDensity)
		require.NoError(t, err)
		ids := make([]string, len(runs))
		for i, r := range runs {
			ids[i] = r.ID
		}
		assert.Equal(t, []string{"p1", "a1", "f3"}, ids)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(*testing.T) runstore.Store { return runstore.NewMemoryStore() })
}

func TestMemoryStoreLeaseExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := runstore.NewMemoryStore()
	s.SetClock(func() time.Time { return now })

	require.NoError(t, s.AcquireLock(ctx, runstore.FamilyDensity, "crashed", 30*time.Second))
	assert.Error(t, s.AcquireLock(ctx, runstore.FamilyDensity, "w2", time.Minute))

	now = now.Add(31 * time.Second)
	locked, err := s.Locked(ctx, runstore.FamilyDensity)
	require.NoError(t, err)
	assert.False(t, locked, "expired lease must not count as held")

	require.NoError(t, s.AcquireLock(ctx, runstore.FamilyDensity, "w2", time.Minute))
	assert.ErrorIs(t, s.RenewLock(ctx, runstore.FamilyDensity, "crashed", time.Minute), runstore.ErrLockLost)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to runstore.Status
		want     bool
	}{
		{runstore.StatusPending, runstore.StatusProjecting, true},
		{runstore.StatusProjecting, runstore.StatusClustering, true},
		{runstore.StatusClustering, runstore.StatusLayoutReady, true},
		{runstore.StatusLayoutReady, runstore.StatusActive, true},
		{runstore.StatusActive, runstore.StatusInactive, true},
		{runstore.StatusPending, runstore.StatusActive, false},
		{runstore.StatusFailed, runstore.StatusPending, false},
		{runstore.StatusInactive, runstore.StatusActive, false},
		{runstore.StatusActive, runstore.StatusFailed, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, runstore.CanTransition(tt.from, tt.to))
		})
	}
	assert.True(t, runstore.StatusLayoutReady.InProgress())
	assert.False(t, runstore.StatusActive.InProgress())
}
