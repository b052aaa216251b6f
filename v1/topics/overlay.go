package topics

import (
	"context"
	"sort"

	"github.com/Aleph-Alpha/lexgraph/v1/clustering"
	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/observability"
	"github.com/Aleph-Alpha/lexgraph/v1/runstore"
	"github.com/Aleph-Alpha/lexgraph/v1/tracer"
	"github.com/Aleph-Alpha/lexgraph/v1/vectordb"
)

// Topic is one keyword group of the active topic run.
type Topic struct {
	Label          int       `json:"label"`
	Name           string    `json:"name"`
	Size           int       `json:"size"`
	Keywords       []string  `json:"keywords"`
	KeywordWeights []float64 `json:"keyword_weights"`
}

// OverlayParams groups the dependencies of NewOverlay.
type OverlayParams struct {
	Config  Config
	Repo    corpus.Repository
	Vectors vectordb.Store
	Runs    runstore.Store

	Publisher clustering.Publisher
	Archive   clustering.Archive
	Logger    clustering.Logger
	Observer  observability.Observer
	Tracer    tracer.Spanner
}

// Overlay computes and reads runs of the topic family. Its groups are
// independent of the density family's clusters.
type Overlay struct {
	engine    *clustering.Engine
	extractor *Extractor
}

// NewOverlay returns an Overlay.
func NewOverlay(p OverlayParams) (*Overlay, error) {
	if err := p.Config.Validate(); err != nil {
		return nil, err
	}
	extractor := NewExtractor(p.Config.Keywords)
	engine, err := clustering.NewEngine(clustering.EngineParams{
		Config:    p.Config.engineConfig(),
		Repo:      p.Repo,
		Vectors:   p.Vectors,
		Runs:      p.Runs,
		Annotator: extractor,
		Publisher: p.Publisher,
		Archive:   p.Archive,
		Logger:    p.Logger,
		Observer:  p.Observer,
		Tracer:    p.Tracer,
	})
	if err != nil {
		return nil, err
	}
	return &Overlay{engine: engine, extractor: extractor}, nil
}

// Run computes a new topic run and activates it.
func (o *Overlay) Run(ctx context.Context) (runstore.Run, error) {
	return o.engine.Run(ctx)
}

// Graph reads the active topic run. Its cluster stats carry keywords,
// keyword weights and labels.
func (o *Overlay) Graph(ctx context.Context, topK int) (clustering.Graph, error) {
	return o.engine.Graph(ctx, runstore.FamilyTopic, topK)
}

// IsCurrent reports whether runID is the active topic run.
func (o *Overlay) IsCurrent(ctx context.Context, runID string) (bool, error) {
	return o.engine.IsCurrent(ctx, runstore.FamilyTopic, runID)
}

// Snapshot reads the archived snapshot of a topic run.
func (o *Overlay) Snapshot(ctx context.Context, runID string) (clustering.Snapshot, error) {
	return o.engine.Snapshot(ctx, runID)
}

// Topics lists the groups of the active topic run ordered by label. The
// outlier group is not a topic. Only the run record is read.
func (o *Overlay) Topics(ctx context.Context) ([]Topic, error) {
	run, err := o.engine.ActiveRun(ctx, runstore.FamilyTopic)
	if err != nil {
		return nil, err
	}
	out := make([]Topic, 0, len(run.Stats))
	for _, s := range run.Stats {
		if s.Label < 0 {
			continue
		}
		out = append(out, Topic{
			Label:          s.Label,
			Name:           s.Name,
			Size:           s.Size,
			Keywords:       s.Keywords,
			KeywordWeights: s.KeywordWeights,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}
