package qdrant

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/lexgraph/v1/observability"
)

// FXModule provides *QdrantClient and *Store.
var FXModule = fx.Module("qdrant",
	fx.Provide(
		NewClientWithDI,
		NewStoreWithDI,
	),
	fx.Invoke(RegisterLifecycle),
)

// ClientParams groups the dependencies of NewClientWithDI.
type ClientParams struct {
	fx.In

	Config   *Config
	Logger   Logger                 `optional:"true"`
	Observer observability.Observer `optional:"true"`
}

// NewClientWithDI creates the client from injected dependencies.
func NewClientWithDI(p ClientParams) (*QdrantClient, error) {
	return NewQdrantClient(QdrantParams{Config: p.Config, Logger: p.Logger, Observer: p.Observer})
}

// NewStoreWithDI creates the store using the configured collection prefix.
func NewStoreWithDI(client *QdrantClient, cfg *Config) *Store {
	return NewStore(client, cfg.CollectionPrefix)
}

// RegisterLifecycle closes the client on shutdown.
func RegisterLifecycle(lc fx.Lifecycle, client *QdrantClient) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
}
