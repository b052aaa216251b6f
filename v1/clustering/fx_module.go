package clustering

import (
	"go.uber.org/fx"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/observability"
	"github.com/Aleph-Alpha/lexgraph/v1/runstore"
	"github.com/Aleph-Alpha/lexgraph/v1/tracer"
	"github.com/Aleph-Alpha/lexgraph/v1/vectordb"
)

// FXModule provides the density *Engine. It expects a clustering.Config, a
// corpus.Repository, a vectordb.Store and a runstore.Store in the graph.
var FXModule = fx.Module("clustering",
	fx.Provide(NewEngineWithDI),
)

// EngineDIParams groups the dependencies of NewEngineWithDI.
type EngineDIParams struct {
	fx.In

	Config    Config
	Repo      corpus.Repository
	Vectors   vectordb.Store
	Runs      runstore.Store
	Publisher Publisher              `optional:"true"`
	Archive   Archive                `optional:"true"`
	Logger    Logger                 `optional:"true"`
	Observer  observability.Observer `optional:"true"`
	Tracer    tracer.Spanner         `optional:"true"`
}

// NewEngineWithDI creates the Engine from injected dependencies.
func NewEngineWithDI(p EngineDIParams) (*Engine, error) {
	return NewEngine(EngineParams{
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
