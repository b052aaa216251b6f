package topics

import (
	"go.uber.org/fx"

	"github.com/Aleph-Alpha/lexgraph/v1/clustering"
	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/observability"
	"github.com/Aleph-Alpha/lexgraph/v1/runstore"
	"github.com/Aleph-Alpha/lexgraph/v1/tracer"
	"github.com/Aleph-Alpha/lexgraph/v1/vectordb"
)

// FXModule provides *Overlay. It expects a topics.Config in the graph.
var FXModule = fx.Module("topics",
	fx.Provide(NewOverlayWithDI),
)

// OverlayDIParams groups the dependencies of NewOverlayWithDI.
type OverlayDIParams struct {
	fx.In

	Config    Config
	Repo      corpus.Repository
	Vectors   vectordb.Store
	Runs      runstore.Store
	Publisher clustering.Publisher   `optional:"true"`
	Archive   clustering.Archive     `optional:"true"`
	Logger    clustering.Logger      `optional:"true"`
	Observer  observability.Observer `optional:"true"`
	Tracer    tracer.Spanner         `optional:"true"`
}

// NewOverlayWithDI creates the Overlay from injected dependencies.
func NewOverlayWithDI(p OverlayDIParams) (*Overlay, error) {
	return NewOverlay(OverlayParams{
		Config:    p.Config,
		Repo:      p.Repo,
		Vectors:   p.Vectors,
		Runs:      p.Runs,
		Publisher: p.Publisher,
		Archive:   p.Archive,
		Logger:    p.Logger,
		Observer:  p.Observer,
		Tracer:    p.Tracer,
	})
}
