package main

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/Aleph-Alpha/lexgraph/v1/chunking"
	"github.com/Aleph-Alpha/lexgraph/v1/clustering"
	"github.com/Aleph-Alpha/lexgraph/v1/config"
	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
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
	"github.com/Aleph-Alpha/lexgraph/v1/runstore"
	"github.com/Aleph-Alpha/lexgraph/v1/search"
	"github.com/Aleph-Alpha/lexgraph/v1/topics"
	"github.com/Aleph-Alpha/lexgraph/v1/tracer"
	"github.com/Aleph-Alpha/lexgraph/v1/vectordb"
)

// loggers hands the zap client to every package under its own Logger interface.
var loggers = fx.Provide(
	func(l *logger.LoggerClient) clustering.Logger { return l },
	func(l *logger.LoggerClient) embedding.Logger { return l },
	func(l *logger.LoggerClient) jobs.Logger { return l },
	func(l *logger.LoggerClient) kafka.Logger { return l },
	func(l *logger.LoggerClient) minio.Logger { return l },
	func(l *logger.LoggerClient) postgres.Logger { return l },
	func(l *logger.LoggerClient) qdrant.Logger { return l },
	func(l *logger.LoggerClient) rabbit.Logger { return l },
	func(l *logger.LoggerClient) rag.Logger { return l },
	func(l *logger.LoggerClient) redis.Logger { return l },
	func(l *logger.LoggerClient) search.Logger { return l },
	func(l *logger.LoggerClient) tracer.Logger { return l },
)

// core is shared by every command: configuration, logging, tracing, the
// document store, the run store, the vector store and the encoders.
func core(cfg *config.Config) fx.Option {
	return fx.Options(
		config.FXModule(cfg),
		fx.WithLogger(func(l *logger.LoggerClient) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Zap}
		}),
		logger.FXModule,
		loggers,
		tracer.FXModule,
		postgres.FXModule,
		redis.FXModule,
		runstore.FXModule,
		vectorStore(cfg.VectorStore.Backend),
		embedding.FXModule,
		fx.Provide(
			corpus.NewPGRepository,
			func(r *corpus.PGRepository) corpus.Repository { return r },
			func(c *redis.EmbeddingCache) embedding.Cache { return c },
			func(s *embedding.Service) search.Embedder { return s },
			func(s *embedding.Service) rag.Embedder { return s },
			chunking.New,
		),
		fx.Invoke(registerMigrations),
	)
}

func vectorStore(backend string) fx.Option {
	switch backend {
	case config.BackendQdrant:
		return fx.Options(
			qdrant.FXModule,
			fx.Provide(func(s *qdrant.Store) vectordb.Store { return s }),
		)
	case config.BackendMemory:
		return fx.Provide(func() vectordb.Store { return vectordb.NewMemoryStore() })
	default:
		return fx.Provide(
			vectordb.NewPGVectorStore,
			func(s *vectordb.PGVectorStore) vectordb.Store { return s },
		)
	}
}

type migrator interface {
	Migrate(ctx context.Context) error
}

func registerMigrations(lc fx.Lifecycle, pg postgres.Client, store vectordb.Store) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			models := append(corpus.Models(), runstore.Models()...)
			if err := pg.Migrate(ctx, models...); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if m, ok := store.(migrator); ok {
				if err := m.Migrate(ctx); err != nil {
					return fmt.Errorf("migrate vector store: %w", err)
				}
			}
			return nil
		},
	})
}

// queue adds the job queue and the dispatcher.
func queue(cfg *config.Config) fx.Option {
	return fx.Options(
		core(cfg),
		rabbit.FXModule,
		jobs.FXModule,
	)
}

// tracking adds the job status tracker. The dispatcher is never built, so
// no broker connection is needed.
func tracking(cfg *config.Config) fx.Option {
	return fx.Options(core(cfg), jobs.FXModule)
}

// engines adds the clustering engine and the topic overlay with their
// activation publisher and snapshot archive.
func engines(cfg *config.Config) fx.Option {
	return fx.Options(
		core(cfg),
		kafka.FXModule,
		minio.FXModule,
		clustering.FXModule,
		topics.FXModule,
	)
}

// readers adds the clustering engine and topic overlay without the
// publisher and archive. Graph reads need neither.
func readers(cfg *config.Config) fx.Option {
	return fx.Options(
		core(cfg),
		clustering.FXModule,
		topics.FXModule,
	)
}

func worker(cfg *config.Config) fx.Option {
	return fx.Options(
		engines(cfg),
		metrics.FXModule,
		rabbit.FXModule,
		jobs.FXModule,
		jobs.WorkerFXModule,
	)
}

func answering(cfg *config.Config) fx.Option {
	opts := []fx.Option{core(cfg), rag.FXModule}
	if cfg.Generator.Endpoint != "" {
		opts = append(opts, rag.GeneratorFXModule)
	}
	return fx.Options(opts...)
}

func searching(cfg *config.Config) fx.Option {
	return fx.Options(core(cfg), search.FXModule)
}
