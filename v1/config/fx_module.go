package config

import (
	"go.uber.org/fx"

	"github.com/Aleph-Alpha/lexgraph/v1/chunking"
	"github.com/Aleph-Alpha/lexgraph/v1/clustering"
	"github.com/Aleph-Alpha/lexgraph/v1/embedding"
	"github.com/Aleph-Alpha/lexgraph/v1/jobs"
	"github.com/Aleph-Alpha/lexgraph/v1/kafka"
	"github.com/Aleph-Alpha/lexgraph/v1/logger"
	"github.com/Aleph-Alpha/lexgraph/v1/metrics"
	"github.com/Aleph-Alpha/lexgraph/v1/minio"
	"github.com/Aleph-Alpha/lexgraph/v1/postgres"
	"github.com/Aleph-Alpha/lexgraph/v1/qdrant"
	"github.com/Aleph-Alpha/lexgraph/v1/rabbit"
	"github.com/Aleph-Alpha/lexgraph/v1/rag"
	"github.com/Aleph-Alpha/lexgraph/v1/redis"
	"github.com/Aleph-Alpha/lexgraph/v1/search"
	"github.com/Aleph-Alpha/lexgraph/v1/topics"
	"github.com/Aleph-Alpha/lexgraph/v1/tracer"
)

// FXModule supplies cfg and each component configuration to the graph.
func FXModule(cfg *Config) fx.Option {
	return fx.Module("config",
		fx.Supply(cfg),
		fx.Provide(
			func(c *Config) logger.Config { return c.Logger },
			func(c *Config) metrics.Config { return c.Metrics },
			func(c *Config) tracer.Config { return c.Tracer },
			func(c *Config) postgres.Config { return c.Postgres },
			func(c *Config) *qdrant.Config { return c.VectorStore.Qdrant },
			func(c *Config) *embedding.Config { return c.Embedding },
			func(c *Config) chunking.Config { return c.Chunking },
			func(c *Config) search.Config { return c.Search },
			func(c *Config) clustering.Config { return c.Clustering },
			func(c *Config) topics.Config { return c.Topics },
			func(c *Config) rag.Config { return c.RAG },
			func(c *Config) rag.GeneratorConfig { return c.Generator },
			func(c *Config) rabbit.Config { return c.Rabbit },
			func(c *Config) kafka.Config { return c.Kafka },
			func(c *Config) minio.Config { return c.Minio },
			func(c *Config) redis.Config { return c.Redis },
			func(c *Config) jobs.Config { return c.Jobs },
		),
	)
}
