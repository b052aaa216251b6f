package minio

import (
	"go.uber.org/fx"

	"github.com/Aleph-Alpha/lexgraph/v1/clustering"
	"github.com/Aleph-Alpha/lexgraph/v1/observability"
)

// FXModule provides the *MinioClient and binds it as the clustering
// engine's snapshot archive.
var FXModule = fx.Module("minio",
	fx.Provide(
		NewClientWithDI,
		func(m *MinioClient) clustering.Archive { return m },
	),
)

// MinioParams groups the dependencies of NewClientWithDI.
type MinioParams struct {
	fx.In

	Config   Config
	Logger   Logger                 `optional:"true"`
	Observer observability.Observer `optional:"true"`
}

// NewClientWithDI adapts NewClient to fx.
func NewClientWithDI(p MinioParams) (*MinioClient, error) {
	return NewClient(p.Config, p.Logger, p.Observer)
}
