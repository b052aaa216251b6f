package embedding

import (
	"go.uber.org/fx"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/observability"
	"github.com/Aleph-Alpha/lexgraph/v1/vectordb"
)

// FXModule wires the embedding system into Fx.
//
// It provides:
//   - *Registry (NewRegistryFromConfig)
//   - *Service  (NewServiceWithDI)
//   - *Indexer  (NewIndexerWithDI)
//
// The *Config is expected from the config module.
var FXModule = fx.Module(
	"embedding",

	fx.Provide(
		NewRegistryFromConfig,
		NewServiceWithDI,
		NewIndexerWithDI,
	),
)

// ServiceDIParams groups the dependencies of NewServiceWithDI.
type ServiceDIParams struct {
	fx.In

	Config   *Config
	Registry *Registry
	Cache    Cache                  `optional:"true"`
	Logger   Logger                 `optional:"true"`
	Observer observability.Observer `optional:"true"`
}

// NewServiceWithDI creates the Service from injected dependencies.
func NewServiceWithDI(p ServiceDIParams) *Service {
	return NewService(ServiceParams{
		Registry:  p.Registry,
		Cache:     p.Cache,
		BatchSize: p.Config.BatchSize,
		Logger:    p.Logger,
		Observer:  p.Observer,
	})
}

// IndexerDIParams groups the dependencies of NewIndexerWithDI.
type IndexerDIParams struct {
	fx.In

	Repo    corpus.Repository
	Store   vectordb.Store
	Service *Service
	Logger  Logger `optional:"true"`
}

// NewIndexerWithDI creates the Indexer from injected dependencies.
func NewIndexerWithDI(p IndexerDIParams) *Indexer {
	return NewIndexer(p.Repo, p.Store, p.Service, p.Logger)
}
