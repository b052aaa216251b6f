package clustering_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/lexgraph/v1/clustering"
	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/hdbscan"
	"github.com/Aleph-Alpha/lexgraph/v1/reduction"
	"github.com/Aleph-Alpha/lexgraph/v1/runstore"
	"github.com/Aleph-Alpha/lexgraph/v1/vectordb"
)

const encoder corpus.EncoderID = "legal-v1"

type recordingPublisher struct {
	mu     sync.Mutex
	events []runstore.ActivationEvent
}

func (p *recordingPublisher) PublishActivation(_ context.Context, ev runstore.ActivationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type mapArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (a *mapArchive) Put(_ context.Context, key string, data []byte, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[key] = append([]byte(nil), data...)
	return nil
}

func (a *mapArchive) Get(_ context.Context, key string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.objects[key]
	if !ok {
		return nil, errors.New("no such object")
	}
	return data, nil
}

type fixture struct {
	repo      *corpus.MemoryRepository
	vectors   *vectordb.MemoryStore
	runs      *runstore.MemoryStore
	publisher *recordingPublisher
	archive   *mapArchive
}

func newFixture() *fixture {
	return &fixture{
		repo:      corpus.NewMemoryRepository(),
		vectors:   vectordb.NewMemoryStore(),
		runs:      runstore.NewMemoryStore(),
		publisher: &recordingPublisher{},
		archive:   &mapArchive{objects: map[string][]byte{}},
	}
}

var areas = []string{"tenancy", "tax", "labour"}

// addBlobs stores n documents spread over len(areas) well separated
// directions in 12 dimensions.
func (f *fixture) addBlobs(t *testing.T, n int) {
	t.Helper()
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < n; i++ {
		blob := i % len(areas)
		v := make([]float32, 12)
		v[blob*4] = 1
		for j := range v {
			v[j] += float32(rng.NormFloat64() * 0.05)
		}
		id := fmt.Sprintf("doc-%03d", i)
		meta := corpus.Metadata{LegalArea: areas[blob]}
		require.NoError(t, f.repo.SaveDocument(ctx, corpus.Document{
			ID: id, Text: "text of " + id, Metadata: meta, Status: corpus.StatusProcessed,
		}, nil))
		require.NoError(t, f.vectors.UpsertDocumentVectors(ctx, encoder,
			[]vectordb.DocumentVector{{DocumentID: id, Vector: v, Metadata: meta}}))
	}
}

func testConfig() clustering.Config {
	cfg := clustering.DefaultDensityConfig()
	cfg.Encoder = string(encoder)
	cfg.Projection = reduction.Params{Components: 4, Neighbors: 10, Epochs: 60, Seed: 1}
	cfg.Layout = reduction.Params{Components: 2, Neighbors: 10, MinDist: 0.1, Epochs: 60, Seed: 2}
	cfg.Density = hdbscan.Params{MinClusterSize: 5}
	return cfg
}

func (f *fixture) engine(t *testing.T, cfg clustering.Config, annotator clustering.Annotator) *clustering.Engine {
	t.Helper()
	e, err := clustering.NewEngine(clustering.EngineParams{
		Config:    cfg,
		Repo:      f.repo,
		Vectors:   f.vectors,
		Runs:      f.runs,
		Annotator: annotator,
		Publisher: f.publisher,
		Archive:   f.archive,
	})
	require.NoError(t, err)
	return e
}

func TestRunAccountsForEveryDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addBlobs(t, 50)
	e := f.engine(t, testConfig(), nil)

	run, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, runstore.StatusActive, run.Status)
	assert.Equal(t, 50, run.DocumentCount)
	assert.Equal(t, clustering.AlgorithmUMAPHDBSCAN, run.Algorithm)
	assert.JSONEq(t, `4`, string(mustField(t, run.Parameters, "projection", "components")))

	graph, err := e.Graph(ctx, runstore.FamilyDensity, 3)
	require.NoError(t, err)
	require.Len(t, graph.Nodes, 50)

	known := map[int]bool{}
	total := 0
	for _, s := range graph.ClusterStats {
		known[s.Label] = true
		total += s.Size
		assert.NotEmpty(t, s.DominantLegalArea)
	}
	noise := 0
	for _, n := range graph.Nodes {
		assert.Equal(t, run.ID, n.RunID)
		assert.NotEmpty(t, n.LegalArea)
		assert.GreaterOrEqual(t, n.Probability, 0.0)
		assert.LessOrEqual(t, n.Probability, 1.0)
		if n.Label == hdbscan.Noise {
			noise++
			continue
		}
		assert.True(t, known[n.Label], "label %d of %s has no stats", n.Label, n.DocumentID)
	}
	assert.Equal(t, 50, total+noise)

	if len(graph.ClusterStats) >= 2 {
		require.NotNil(t, graph.Metadata.Quality.Silhouette)
		assert.GreaterOrEqual(t, *graph.Metadata.Quality.Silhouette, -1.0)
		assert.LessOrEqual(t, *graph.Metadata.Quality.Silhouette, 1.0)
	} else {
		assert.Nil(t, graph.Metadata.Quality.Silhouette)
	}

	require.Len(t, graph.Edges, 150)
	for i, edge := range graph.Edges {
		assert.NotEqual(t, edge.Source, edge.Target)
		assert.Equal(t, i%3+1, edge.Rank)
	}
	assert.Equal(t, run.ID, graph.Metadata.RunID)
}

func mustField(t *testing.T, raw []byte, path ...string) []byte {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	var cur any = m
	for _, p := range path {
		cur = cur.(map[string]any)[p]
	}
	out, err := json.Marshal(cur)
	require.NoError(t, err)
	return out
}

func TestRunSwapsActiveRunAndNotifies(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addBlobs(t, 30)
	e := f.engine(t, testConfig(), nil)

	first, err := e.Run(ctx)
	require.NoError(t, err)
	second, err := e.Run(ctx)
	require.NoError(t, err)

	old, err := f.runs.Run(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, runstore.StatusInactive, old.Status)

	current, err := e.IsCurrent(ctx, runstore.FamilyDensity, second.ID)
	require.NoError(t, err)
	assert.True(t, current)
	stale, err := e.IsCurrent(ctx, runstore.FamilyDensity, first.ID)
	require.NoError(t, err)
	assert.False(t, stale)

	require.Len(t, f.publisher.events, 2)
	assert.Equal(t, "", f.publisher.events[0].PreviousRunID)
	assert.Equal(t, first.ID, f.publisher.events[1].PreviousRunID)
	assert.Equal(t, second.ID, f.publisher.events[1].RunID)

	snap, err := e.Snapshot(ctx, first.ID)
	require.NoError(t, err)
	assert.Len(t, snap.Nodes, 30)
	assert.Equal(t, first.ID, snap.Metadata.RunID)
	assert.Contains(t, f.archive.objects, clustering.SnapshotKey(runstore.FamilyDensity, second.ID))
}

func TestRunInsufficientData(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addBlobs(t, 4)
	e := f.engine(t, testConfig(), nil)

	run, err := e.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, corpus.ErrInsufficientData))
	assert.False(t, corpus.IsRetryable(err))
	assert.Equal(t, runstore.StatusFailed, run.Status)
	assert.Contains(t, run.Reason, "need at least 5")

	_, err = f.runs.Active(ctx, runstore.FamilyDensity)
	assert.ErrorIs(t, err, runstore.ErrNoActiveRun)

	// The lock was released.
	require.NoError(t, f.runs.AcquireLock(ctx, runstore.FamilyDensity, "other", time.Minute))
	assert.Empty(t, f.publisher.events)
}

func TestFailedRunKeepsActiveRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addBlobs(t, 20)
	e := f.engine(t, testConfig(), nil)

	good, err := e.Run(ctx)
	require.NoError(t, err)

	ids, err := f.repo.EligibleDocumentIDs(ctx)
	require.NoError(t, err)
	for _, id := range ids {
		require.NoError(t, f.repo.SetStatus(ctx, id, corpus.StatusFailed))
	}

	failed, err := e.Run(ctx)
	require.ErrorIs(t, err, corpus.ErrInsufficientData)
	assert.Equal(t, runstore.StatusFailed, failed.Status)

	active, err := f.runs.Active(ctx, runstore.FamilyDensity)
	require.NoError(t, err)
	assert.Equal(t, good.ID, active.ID)
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addBlobs(t, 20)
	e := f.engine(t, testConfig(), nil)

	require.NoError(t, f.runs.AcquireLock(ctx, runstore.FamilyDensity, "busy-worker", time.Hour))

	_, err := e.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, corpus.ErrConcurrentRunConflict))

	runs, err := f.runs.Runs(ctx, runstore.FamilyDensity)
	require.NoError(t, err)
	assert.Empty(t, runs)

	// Other families are not blocked.
	cfg := testConfig()
	cfg.Family = runstore.FamilyTopic
	_, err = f.engine(t, cfg, nil).Run(ctx)
	require.NoError(t, err)
}

type labelAnnotator struct{ calls int }

func (a *labelAnnotator) Parameters() any { return map[string]int{"top_n": 3} }

func (a *labelAnnotator) Annotate(_ context.Context, docs []corpus.Document, labels []int, stats []runstore.ClusterStat) ([]runstore.ClusterStat, error) {
	a.calls++
	if len(docs) != len(labels) {
		return nil, errors.New("length mismatch")
	}
	for i := range stats {
		stats[i].Name = fmt.Sprintf("group %d", stats[i].Label)
	}
	return stats, nil
}

func TestRunAppliesAnnotator(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addBlobs(t, 30)
	a := &labelAnnotator{}
	e := f.engine(t, testConfig(), a)

	run, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, a.calls)
	for _, s := range run.Stats {
		assert.Equal(t, fmt.Sprintf("group %d", s.Label), s.Name)
	}
	assert.JSONEq(t, `3`, string(mustField(t, run.Parameters, "annotation", "top_n")))
}

func TestGraphWithoutActiveRun(t *testing.T) {
	f := newFixture()
	e := f.engine(t, testConfig(), nil)

	_, err := e.Graph(context.Background(), runstore.FamilyDensity, 5)
	assert.ErrorIs(t, err, runstore.ErrNoActiveRun)

	current, err := e.IsCurrent(context.Background(), runstore.FamilyDensity, "anything")
	require.NoError(t, err)
	assert.False(t, current)
}

func TestNewEngineValidates(t *testing.T) {
	cfg := testConfig()
	cfg.Encoder = ""
	_, err := clustering.NewEngine(clustering.EngineParams{Config: cfg})
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Family = "spectral"
	_, err = clustering.NewEngine(clustering.EngineParams{Config: cfg})
	assert.Error(t, err)
}
