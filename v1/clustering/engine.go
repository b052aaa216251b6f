package clustering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/hdbscan"
	"github.com/Aleph-Alpha/lexgraph/v1/observability"
	"github.com/Aleph-Alpha/lexgraph/v1/reduction"
	"github.com/Aleph-Alpha/lexgraph/v1/runstore"
	"github.com/Aleph-Alpha/lexgraph/v1/tracer"
	"github.com/Aleph-Alpha/lexgraph/v1/vecmath"
	"github.com/Aleph-Alpha/lexgraph/v1/vectordb"
)

// Logger is the logging contract of the clustering package.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
}

// Publisher announces run activations. *kafka.EventProducer implements it.
type Publisher interface {
	PublishActivation(ctx context.Context, event runstore.ActivationEvent) error
}

// Archive stores run snapshots. *minio.MinioClient implements it.
type Archive interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Annotator adds per-group information to the stats of a run before it is
// persisted. The topic overlay uses it to attach keywords.
type Annotator interface {
	// Parameters are recorded with the run.
	Parameters() any

	// Annotate receives the clustered documents, their labels in the same
	// order and the stats to enrich.
	Annotate(ctx context.Context, docs []corpus.Document, labels []int, stats []runstore.ClusterStat) ([]runstore.ClusterStat, error)
}

// EngineParams groups the dependencies of NewEngine.
type EngineParams struct {
	Config  Config
	Repo    corpus.Repository
	Vectors vectordb.Store
	Runs    runstore.Store

	Annotator Annotator
	Publisher Publisher
	Archive   Archive

	Logger   Logger
	Observer observability.Observer
	Tracer   tracer.Spanner
}

// Engine computes runs of one family and serves graph reads of any family.
type Engine struct {
	cfg       Config
	repo      corpus.Repository
	vectors   vectordb.Store
	runs      runstore.Store
	annotator Annotator
	publisher Publisher
	archive   Archive
	logger    Logger
	observer  observability.Observer
	spans     tracer.Spanner
}

// NewEngine validates the configuration and returns an Engine.
func NewEngine(p EngineParams) (*Engine, error) {
	cfg := p.Config.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	spans := p.Tracer
	if spans == nil {
		spans = tracer.Noop{}
	}
	return &Engine{
		cfg:       cfg,
		repo:      p.Repo,
		vectors:   p.Vectors,
		runs:      p.Runs,
		annotator: p.Annotator,
		publisher: p.Publisher,
		archive:   p.Archive,
		logger:    p.Logger,
		observer:  p.Observer,
		spans:     spans,
	}, nil
}

// Family returns the family whose runs this engine computes.
func (e *Engine) Family() runstore.Family { return e.cfg.Family }

// Encoder returns the encoder whose vectors are clustered.
func (e *Engine) Encoder() corpus.EncoderID { return corpus.EncoderID(e.cfg.Encoder) }

type runParameters struct {
	Encoder    string           `json:"encoder"`
	Projection reduction.Params `json:"projection"`
	Layout     reduction.Params `json:"layout"`
	Density    hdbscan.Params   `json:"density"`
	Annotation any              `json:"annotation,omitempty"`
}

// corpusSnapshot is the input of one run, ordered by document id.
type corpusSnapshot struct {
	docs    []corpus.Document
	vectors [][]float64
}

// Run computes a new run and activates it. It fails with
// corpus.ErrConcurrentRunConflict while another run of the family is in
// progress. When the computation fails after the run was created, the run is
// marked FAILED with the error as reason, the active run stays untouched and
// the failed run is returned together with the error.
func (e *Engine) Run(ctx context.Context) (runstore.Run, error) {
	start := time.Now()
	ctx, span := e.spans.StartSpan(ctx, "clustering.Run")
	defer span.End()

	run, err := e.run(ctx)

	e.spans.RecordErrorOnSpan(span, err)
	e.spans.SetAttributes(span, map[string]interface{}{
		"clustering.family":    string(e.cfg.Family),
		"clustering.run_id":    run.ID,
		"clustering.status":    string(run.Status),
		"clustering.documents": run.DocumentCount,
	})
	observability.Observe(e.observer, observability.OperationContext{
		Component:   "clustering",
		Operation:   "run",
		Resource:    string(e.cfg.Family),
		SubResource: run.ID,
		Duration:    time.Since(start),
		Error:       err,
		Size:        int64(run.DocumentCount),
	})
	return run, err
}

func (e *Engine) run(ctx context.Context) (runstore.Run, error) {
	runID := uuid.NewString()
	family := e.cfg.Family
	if err := e.runs.AcquireLock(ctx, family, runID, e.cfg.LockLease); err != nil {
		return runstore.Run{}, err
	}
	defer func() {
		// The caller's context may be done by now.
		if err := e.runs.ReleaseLock(context.WithoutCancel(ctx), family, runID); err != nil {
			e.warn("failed to release run lock", err, map[string]interface{}{"family": string(family), "run_id": runID})
		}
	}()

	params, err := json.Marshal(e.parameters())
	if err != nil {
		return runstore.Run{}, fmt.Errorf("encode run parameters: %w", err)
	}
	run := runstore.Run{
		ID:         runID,
		Family:     family,
		Algorithm:  AlgorithmUMAPHDBSCAN,
		Encoder:    e.Encoder(),
		Parameters: params,
	}
	if err := e.runs.CreateRun(ctx, run); err != nil {
		return runstore.Run{}, fmt.Errorf("create run: %w", err)
	}
	e.info("run started", map[string]interface{}{"family": string(family), "run_id": runID})

	if err := e.compute(ctx, runID); err != nil {
		return e.fail(ctx, runID, err)
	}

	previous, err := e.runs.Activate(ctx, family, runID)
	if err != nil {
		return e.fail(ctx, runID, fmt.Errorf("activate run: %w", err))
	}
	run, err = e.runs.Run(ctx, runID)
	if err != nil {
		return runstore.Run{}, fmt.Errorf("read activated run: %w", err)
	}
	e.info("run activated", map[string]interface{}{
		"family":    string(family),
		"run_id":    runID,
		"previous":  previous,
		"documents": run.DocumentCount,
		"clusters":  len(run.Stats),
	})

	e.afterActivation(ctx, run, previous)
	return run, nil
}

func (e *Engine) parameters() runParameters {
	p := runParameters{
		Encoder:    e.cfg.Encoder,
		Projection: e.cfg.Projection,
		Layout:     e.cfg.Layout,
		Density:    e.cfg.Density,
	}
	if e.annotator != nil {
		p.Annotation = e.annotator.Parameters()
	}
	return p
}

// compute drives a created run up to LAYOUT_READY.
func (e *Engine) compute(ctx context.Context, runID string) error {
	if err := e.step(ctx, runID, runstore.StatusProjecting); err != nil {
		return err
	}
	snap, err := e.snapshot(ctx)
	if err != nil {
		return err
	}
	if n := len(snap.docs); n < e.cfg.MinDocuments {
		return corpus.InsufficientData("cluster",
			fmt.Errorf("%d documents with %s vectors, need at least %d", n, e.cfg.Encoder, e.cfg.MinDocuments))
	}

	projected, err := reduction.Project(ctx, snap.vectors, e.cfg.Projection)
	if err != nil {
		return fmt.Errorf("project: %w", err)
	}

	if err := e.step(ctx, runID, runstore.StatusClustering); err != nil {
		return err
	}

	var (
		clusters *hdbscan.Result
		layout   [][]float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		clusters, err = hdbscan.Run(gctx, projected, e.cfg.Density)
		if err != nil {
			return fmt.Errorf("cluster: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		layout, err = reduction.Project(gctx, snap.vectors, e.cfg.Layout)
		if err != nil {
			return fmt.Errorf("layout: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if err := e.runs.RenewLock(ctx, e.cfg.Family, runID, e.cfg.LockLease); err != nil {
		return err
	}

	stats := clusterStats(snap.docs, clusters)
	if e.annotator != nil {
		stats, err = e.annotator.Annotate(ctx, snap.docs, clusters.Labels, stats)
		if err != nil {
			return fmt.Errorf("annotate: %w", err)
		}
	}

	assignments := make([]runstore.Assignment, len(snap.docs))
	for i, doc := range snap.docs {
		assignments[i] = runstore.Assignment{
			DocumentID:  doc.ID,
			Label:       clusters.Labels[i],
			Probability: clusters.Probabilities[i],
			X:           layout[i][0],
			Y:           layout[i][1],
		}
	}
	quality := Evaluate(projected, clusters.Labels)
	if err := e.runs.SaveResults(ctx, runID, stats, quality, assignments); err != nil {
		return fmt.Errorf("save results: %w", err)
	}
	return nil
}

// step renews the family lock and moves the run to status.
func (e *Engine) step(ctx context.Context, runID string, status runstore.Status) error {
	if err := e.runs.RenewLock(ctx, e.cfg.Family, runID, e.cfg.LockLease); err != nil {
		return err
	}
	return e.runs.Transition(ctx, runID, status, "")
}

// snapshot reads the vectors of every processed document. Documents without a
// vector for the configured encoder are left out.
func (e *Engine) snapshot(ctx context.Context) (corpusSnapshot, error) {
	ids, err := e.repo.EligibleDocumentIDs(ctx)
	if err != nil {
		return corpusSnapshot{}, fmt.Errorf("list eligible documents: %w", err)
	}
	if len(ids) == 0 {
		return corpusSnapshot{}, nil
	}
	vectors, err := e.vectors.DocumentVectors(ctx, e.Encoder(), ids)
	if err != nil {
		return corpusSnapshot{}, fmt.Errorf("read document vectors: %w", err)
	}
	docs, err := e.repo.Documents(ctx, ids)
	if err != nil {
		return corpusSnapshot{}, fmt.Errorf("read documents: %w", err)
	}

	var snap corpusSnapshot
	for _, id := range ids {
		v, ok := vectors[id]
		doc, found := docs[id]
		if !ok || !found {
			continue
		}
		snap.docs = append(snap.docs, doc)
		snap.vectors = append(snap.vectors, vecmath.ToFloat64(v))
	}
	if skipped := len(ids) - len(snap.docs); skipped > 0 {
		e.warn("documents without vectors left out of run", nil, map[string]interface{}{
			"encoder": e.cfg.Encoder,
			"skipped": skipped,
		})
	}
	return snap, nil
}

// fail marks runID FAILED with cause as reason and returns the failed run
// together with cause.
func (e *Engine) fail(ctx context.Context, runID string, cause error) (runstore.Run, error) {
	ctx = context.WithoutCancel(ctx)
	if err := e.runs.Transition(ctx, runID, runstore.StatusFailed, cause.Error()); err != nil {
		e.logError("failed to mark run as failed", err, map[string]interface{}{"run_id": runID})
	}
	e.warn("run failed", cause, map[string]interface{}{"family": string(e.cfg.Family), "run_id": runID})

	run, err := e.runs.Run(ctx, runID)
	if err != nil {
		return runstore.Run{ID: runID, Family: e.cfg.Family, Status: runstore.StatusFailed, Reason: cause.Error()}, cause
	}
	return run, cause
}

// afterActivation publishes, archives and prunes. None of it can undo the
// activation, so failures are only logged.
func (e *Engine) afterActivation(ctx context.Context, run runstore.Run, previous string) {
	if e.publisher != nil && run.ActivatedAt != nil {
		err := e.publisher.PublishActivation(ctx, runstore.ActivationEvent{
			Family:        run.Family,
			RunID:         run.ID,
			PreviousRunID: previous,
			Algorithm:     run.Algorithm,
			ActivatedAt:   *run.ActivatedAt,
		})
		if err != nil {
			e.warn("failed to publish run activation", err, map[string]interface{}{"run_id": run.ID})
		}
	}

	if e.archive != nil {
		if err := e.archiveRun(ctx, run); err != nil {
			e.warn("failed to archive run snapshot", err, map[string]interface{}{"run_id": run.ID})
		}
	}

	if e.cfg.RetainRuns > 0 {
		n, err := e.runs.Prune(ctx, run.Family, e.cfg.RetainRuns)
		if err != nil {
			e.warn("failed to prune runs", err, map[string]interface{}{"family": string(run.Family)})
		} else if n > 0 {
			e.info("pruned runs", map[string]interface{}{"family": string(run.Family), "deleted": n})
		}
	}
}

// clusterStats summarises every selected cluster, ordered by label.
func clusterStats(docs []corpus.Document, res *hdbscan.Result) []runstore.ClusterStat {
	areas := make(map[int]map[string]int)
	for i, l := range res.Labels {
		if l == hdbscan.Noise {
			continue
		}
		if areas[l] == nil {
			areas[l] = make(map[string]int)
		}
		if a := docs[i].Metadata.LegalArea; a != "" {
			areas[l][a]++
		}
	}

	stats := make([]runstore.ClusterStat, 0, len(res.Clusters))
	for _, c := range res.Clusters {
		stats = append(stats, runstore.ClusterStat{
			Label:             c.Label,
			Size:              c.Size,
			Stability:         c.Stability,
			DominantLegalArea: dominant(areas[c.Label]),
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Label < stats[j].Label })
	return stats
}

// dominant returns the most frequent key, the smallest one on ties.
func dominant(counts map[string]int) string {
	best, bestN := "", 0
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}

func (e *Engine) info(msg string, fields map[string]interface{}) {
	if e.logger != nil {
		e.logger.Info(msg, nil, fields)
	}
}

func (e *Engine) warn(msg string, err error, fields map[string]interface{}) {
	if e.logger != nil {
		e.logger.Warn(msg, err, fields)
	}
}

func (e *Engine) logError(msg string, err error, fields map[string]interface{}) {
	if e.logger != nil {
		e.logger.Error(msg, err, fields)
	}
}

// isNotFound reports whether err means the run or active pointer is missing.
func isNotFound(err error) bool {
	return errors.Is(err, runstore.ErrRunNotFound) || errors.Is(err, runstore.ErrNoActiveRun)
}
