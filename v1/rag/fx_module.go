package rag

import (
	"go.uber.org/fx"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/observability"
	"github.com/Aleph-Alpha/lexgraph/v1/tracer"
	"github.com/Aleph-Alpha/lexgraph/v1/vectordb"
)

// FXModule provides *Service. A Generator is optional; without one every
// answer is degraded.
var FXModule = fx.Module("rag",
	fx.Provide(NewServiceWithDI),
)

// GeneratorFXModule provides the HTTP Generator from a GeneratorConfig.
var GeneratorFXModule = fx.Module("rag-generator",
	fx.Provide(
		NewHTTPGenerator,
		func(g *HTTPGenerator) Generator { return g },
	),
)

// ServiceDIParams groups the dependencies of NewServiceWithDI.
type ServiceDIParams struct {
	fx.In

	Config    Config
	Repo      corpus.Repository
	Store     vectordb.Store
	Embedder  Embedder
	Generator Generator              `optional:"true"`
	Logger    Logger                 `optional:"true"`
	Observer  observability.Observer `optional:"true"`
	Tracer    tracer.Spanner         `optional:"true"`
}

// NewServiceWithDI creates the Service from injected dependencies.
func NewServiceWithDI(p ServiceDIParams) *Service {
	return NewService(ServiceParams{
		Config:    p.Config,
		Repo:      p.Repo,
		Store:     p.Store,
		Embedder:  p.Embedder,
		Generator: p.Generator,
		Logger:    p.Logger,
		Observer:  p.Observer,
		Tracer:    p.Tracer,
	})
}
