package kafka

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/lexgraph/v1/clustering"
	"github.com/Aleph-Alpha/lexgraph/v1/observability"
)

// FXModule provides the *Producer and binds it as the clustering
// engine's activation publisher.
var FXModule = fx.Module("kafka",
	fx.Provide(
		NewProducerWithDI,
		func(p *Producer) clustering.Publisher { return p },
	),
	fx.Invoke(RegisterProducerLifecycle),
)

// ProducerParams groups the dependencies of NewProducerWithDI.
type ProducerParams struct {
	fx.In

	Config   Config
	Logger   Logger                 `optional:"true"`
	Observer observability.Observer `optional:"true"`
}

func NewProducerWithDI(p ProducerParams) (*Producer, error) {
	return NewProducer(p.Config, p.Logger, p.Observer)
}

// RegisterProducerLifecycle closes the producer when the app stops.
func RegisterProducerLifecycle(lc fx.Lifecycle, p *Producer) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return p.Close()
		},
	})
}
