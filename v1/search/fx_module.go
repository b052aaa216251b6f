package search

import (
	"go.uber.org/fx"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/observability"
	"github.com/Aleph-Alpha/lexgraph/v1/tracer"
	"github.com/Aleph-Alpha/lexgraph/v1/vectordb"
)

// FXModule provides *Service. It expects a search.Config, a corpus.Repository,
// a vectordb.Store and an Embedder in the graph.
var FXModule = fx.Module("search",
	fx.Provide(NewServiceWithDI),
)

// ServiceDIParams groups the dependencies of NewServiceWithDI.
type ServiceDIParams struct {
	fx.In

	Config   Config
	Repo     corpus.Repository
	Store    vectordb.Store
	Embedder Embedder
	Logger   Logger                 `optional:"true"`
	Observer observability.Observer `optional:"true"`
	Tracer   tracer.Spanner         `optional:"true"`
}

// NewServiceWithDI creates the Service from injected dependencies.
func NewServiceWithDI(p ServiceDIParams) *Service {
	return NewService(ServiceParams{
		Config:   p.Config,
		Repo:     p.Repo,
		Store:    p.Store,
		Embedder: p.Embedder,
		Logger:   p.Logger,
		Observer: p.Observer,
		Tracer:   p.Tracer,
	})
}
