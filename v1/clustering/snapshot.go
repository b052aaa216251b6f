package clustering

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Aleph-Alpha/lexgraph/v1/runstore"
)

// Snapshot is the archived form of an activated run: the graph without edges.
type Snapshot struct {
	Nodes        []Node                 `json:"nodes"`
	ClusterStats []runstore.ClusterStat `json:"cluster_stats"`
	Metadata     GraphMetadata          `json:"metadata"`
}

// SnapshotKey is the archive key of a run.
func SnapshotKey(family runstore.Family, runID string) string {
	return fmt.Sprintf("runs/%s/%s.json", family, runID)
}

func (e *Engine) archiveRun(ctx context.Context, run runstore.Run) error {
	nodes, err := e.nodes(ctx, run)
	if err != nil {
		return err
	}
	data, err := json.Marshal(Snapshot{Nodes: nodes, ClusterStats: run.Stats, Metadata: metadataOf(run)})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return e.archive.Put(ctx, SnapshotKey(run.Family, run.ID), data, "application/json")
}

// Snapshot reads the archived snapshot of runID. The archive outlives
// retention, so runs already pruned from the store are looked up under the
// engine's own family.
func (e *Engine) Snapshot(ctx context.Context, runID string) (Snapshot, error) {
	if e.archive == nil {
		return Snapshot{}, fmt.Errorf("clustering: no snapshot archive configured")
	}
	family := e.cfg.Family
	run, err := e.runs.Run(ctx, runID)
	switch {
	case err == nil:
		family = run.Family
	case !isNotFound(err):
		return Snapshot{}, err
	}

	data, err := e.archive.Get(ctx, SnapshotKey(family, runID))
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot of %s: %w", runID, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot of %s: %w", runID, err)
	}
	return snap, nil
}
