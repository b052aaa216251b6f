package jobs

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/lexgraph/v1/clustering"
	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/embedding"
	"github.com/Aleph-Alpha/lexgraph/v1/observability"
	"github.com/Aleph-Alpha/lexgraph/v1/rabbit"
	"github.com/Aleph-Alpha/lexgraph/v1/redis"
	"github.com/Aleph-Alpha/lexgraph/v1/runstore"
	"github.com/Aleph-Alpha/lexgraph/v1/topics"
)

// FXModule provides the *Dispatcher and a redis-backed Tracker. It expects
// rabbit.Client, *redis.JSONStore, corpus.Repository and runstore.Store.
var FXModule = fx.Module("jobs",
	fx.Provide(
		func(store *redis.JSONStore, cfg Config) Tracker { return NewRedisTracker(store, cfg) },
		NewDispatcherWithDI,
	),
)

// WorkerFXModule adds a *Worker that consumes the queue while the app runs.
var WorkerFXModule = fx.Module("jobs-worker",
	fx.Provide(NewWorkerWithDI),
	fx.Invoke(RegisterWorkerLifecycle),
)

// DispatcherDIParams groups the dependencies of NewDispatcherWithDI.
type DispatcherDIParams struct {
	fx.In

	Config  Config
	Queue   rabbit.Client
	Tracker Tracker
	Docs    corpus.Repository
	Runs    runstore.Store
	Logger  Logger `optional:"true"`
}

// NewDispatcherWithDI adapts NewDispatcher to fx.
func NewDispatcherWithDI(p DispatcherDIParams) (*Dispatcher, error) {
	return NewDispatcher(DispatcherParams{
		Config:  p.Config,
		Queue:   p.Queue,
		Tracker: p.Tracker,
		Docs:    p.Docs,
		Runs:    p.Runs,
		Logger:  p.Logger,
	})
}

// WorkerDIParams groups the dependencies of NewWorkerWithDI.
type WorkerDIParams struct {
	fx.In

	Config     Config
	Queue      rabbit.Client
	Tracker    Tracker
	Clustering *clustering.Engine     `optional:"true"`
	Topics     *topics.Overlay        `optional:"true"`
	Indexer    *embedding.Indexer     `optional:"true"`
	Logger     Logger                 `optional:"true"`
	Observer   observability.Observer `optional:"true"`
}

// NewWorkerWithDI adapts NewWorker to fx.
func NewWorkerWithDI(p WorkerDIParams) (*Worker, error) {
	wp := WorkerParams{
		Config:   p.Config,
		Queue:    p.Queue,
		Tracker:  p.Tracker,
		Logger:   p.Logger,
		Observer: p.Observer,
	}
	// Typed nils must not end up in the interfaces.
	if p.Clustering != nil {
		wp.Clustering = p.Clustering
	}
	if p.Topics != nil {
		wp.Topics = p.Topics
	}
	if p.Indexer != nil {
		wp.Indexer = p.Indexer
	}
	return NewWorker(wp)
}

// RegisterWorkerLifecycle starts the worker with the app and drains it on stop.
func RegisterWorkerLifecycle(lc fx.Lifecycle, w *Worker) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			w.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return w.Stop(ctx)
		},
	})
}
