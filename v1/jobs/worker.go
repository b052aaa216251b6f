package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/observability"
	"github.com/Aleph-Alpha/lexgraph/v1/rabbit"
	"github.com/Aleph-Alpha/lexgraph/v1/runstore"
)

// Consumer is the consuming side of the work queue. *rabbit.RabbitClient
// implements it.
type Consumer interface {
	Consume(ctx context.Context, wg *sync.WaitGroup) <-chan rabbit.Message
}

// RunExecutor computes and activates one clustering run.
// *clustering.Engine and *topics.Overlay implement it.
type RunExecutor interface {
	Run(ctx context.Context) (runstore.Run, error)
}

// DocumentIndexer embeds stored documents. *embedding.Indexer implements it.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, documentID string, encoders ...corpus.EncoderID) error
	MarkFailed(ctx context.Context, documentID string) error
}

// WorkerParams groups the dependencies of NewWorker. Handlers left nil make
// jobs of their type fail.
type WorkerParams struct {
	Config     Config
	Queue      Consumer
	Tracker    Tracker
	Clustering RunExecutor
	Topics     RunExecutor
	Indexer    DocumentIndexer
	Logger     Logger
	Observer   observability.Observer
}

// Worker consumes jobs and runs them on a bounded pool.
type Worker struct {
	cfg      Config
	queue    Consumer
	tracker  Tracker
	runners  map[Type]RunExecutor
	indexer  DocumentIndexer
	logger   Logger
	observer observability.Observer
	pool     *ants.Pool
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration)

	consumers sync.WaitGroup
	inflight  sync.WaitGroup
	cancel    context.CancelFunc
}

// NewWorker validates p.Config and creates the pool. The worker does not
// consume until Start.
func NewWorker(p WorkerParams) (*Worker, error) {
	if err := p.Config.Validate(); err != nil {
		return nil, err
	}
	w := &Worker{
		cfg:      p.Config.withDefaults(),
		queue:    p.Queue,
		tracker:  p.Tracker,
		runners:  make(map[Type]RunExecutor),
		indexer:  p.Indexer,
		logger:   p.Logger,
		observer: p.Observer,
		now:      time.Now,
		sleep:    sleepCtx,
	}
	if p.Clustering != nil {
		w.runners[TypeClustering] = p.Clustering
	}
	if p.Topics != nil {
		w.runners[TypeTopics] = p.Topics
	}

	pool, err := ants.NewPool(w.cfg.Concurrency, ants.WithPanicHandler(func(v interface{}) {
		w.logError("Worker task panicked", fmt.Errorf("panic: %v", v), nil)
	}))
	if err != nil {
		return nil, fmt.Errorf("jobs: create worker pool: %w", err)
	}
	w.pool = pool
	return w, nil
}

// Start consumes the queue until Stop. It returns immediately.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	msgs := w.queue.Consume(ctx, &w.consumers)

	w.consumers.Add(1)
	go func() {
		defer w.consumers.Done()
		for msg := range msgs {
			w.inflight.Add(1)
			err := w.pool.Submit(func() {
				defer w.inflight.Done()
				w.Process(ctx, msg)
			})
			if err != nil {
				w.inflight.Done()
				w.logWarn("Failed to schedule job, requeueing", err, nil)
				w.settle(msg, true)
			}
		}
	}()
	w.logInfo("Job worker started", map[string]interface{}{"concurrency": w.cfg.Concurrency})
}

// Stop cancels running jobs, waits for them to settle their messages and
// releases the pool. Interrupted jobs are requeued.
func (w *Worker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}
	done := make(chan struct{})
	go func() {
		w.consumers.Wait()
		w.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("jobs: stop worker: %w", ctx.Err())
	}
	w.pool.Release()
	w.logInfo("Job worker stopped", nil)
	return nil
}

// Process runs one delivery to completion and settles it.
func (w *Worker) Process(ctx context.Context, msg rabbit.Message) {
	var job Job
	if err := json.Unmarshal(msg.Body(), &job); err != nil || job.ID == "" {
		if err == nil {
			err = errors.New("missing job id")
		}
		w.logError("Discarding malformed job", err, nil)
		w.settle(msg, false)
		return
	}

	status, err := w.tracker.Get(ctx, job.ID)
	if err != nil {
		if !errors.Is(err, ErrJobNotFound) {
			w.logWarn("Failed to read job status", err, fields(job))
		}
		status = Status{JobID: job.ID, Type: job.Type}
	}
	if status.State == StateSucceeded {
		w.logInfo("Skipping duplicate delivery of finished job", fields(job))
		w.release(ctx, job)
		w.ack(msg)
		return
	}

	status.Attempts++
	status.State, status.Reason = StateRunning, ""
	w.record(ctx, status)

	start := time.Now()
	result, err := w.execute(ctx, job, status.Attempts >= w.cfg.MaxAttempts)
	observability.Observe(w.observer, observability.OperationContext{
		Component: "jobs",
		Operation: "process",
		Resource:  string(job.Type),
		Duration:  time.Since(start),
		Error:     err,
		Size:      int64(len(job.DocumentIDs)),
	})

	switch {
	case err == nil:
		status.State, status.RunID, status.Detail = StateSucceeded, result.RunID, result.Detail
		w.record(ctx, status)
		w.logInfo("Job succeeded", merge(fields(job), map[string]interface{}{
			"run_id":   result.RunID,
			"duration": time.Since(start).String(),
		}))
		w.release(ctx, job)
		w.ack(msg)

	case ctx.Err() != nil:
		status.State, status.Reason = StateQueued, "interrupted by shutdown"
		w.record(context.WithoutCancel(ctx), status)
		w.settle(msg, true)

	case isTerminal(err):
		status.State, status.Reason = StateFailed, err.Error()
		w.record(ctx, status)
		w.logWarn("Job failed", err, fields(job))
		w.release(ctx, job)
		w.ack(msg)

	case corpus.IsRetryable(err) && status.Attempts < w.cfg.MaxAttempts:
		status.State, status.Reason = StateQueued, "retrying: "+err.Error()
		w.record(ctx, status)
		w.logWarn("Job failed, retrying", err, merge(fields(job), map[string]interface{}{"attempt": status.Attempts}))
		w.sleep(ctx, w.cfg.RetryBackoff*time.Duration(status.Attempts))
		w.settle(msg, true)

	default:
		status.State, status.Reason = StateFailed, err.Error()
		w.record(ctx, status)
		w.logError("Job failed, dead-lettering", err, merge(fields(job), map[string]interface{}{"attempt": status.Attempts}))
		w.release(ctx, job)
		w.settle(msg, false)
	}
}

// isTerminal reports errors that another attempt of the same job cannot fix.
func isTerminal(err error) bool {
	return errors.Is(err, corpus.ErrInsufficientData) ||
		errors.Is(err, corpus.ErrConcurrentRunConflict) ||
		errors.Is(err, corpus.ErrDocumentNotFound) ||
		errors.Is(err, corpus.ErrDimensionMismatch)
}

func (w *Worker) execute(ctx context.Context, job Job, final bool) (res Result, err error) {
	if w.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.JobTimeout)
		defer cancel()
	}
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, v)
		}
	}()

	switch job.Type {
	case TypeEmbedding:
		return w.embed(ctx, job, final)
	case TypeClustering, TypeTopics:
		runner, ok := w.runners[job.Type]
		if !ok {
			return Result{}, fmt.Errorf("no handler for %s jobs", job.Type)
		}
		run, err := runner.Run(ctx)
		if err != nil {
			return Result{}, err
		}
		return Result{RunID: run.ID, Detail: fmt.Sprintf("%d documents", run.DocumentCount)}, nil
	}
	return Result{}, fmt.Errorf("unknown job type %q", job.Type)
}

// embed indexes every document of the job. A retryable failure fails the
// job after all documents were tried; the redelivery re-indexes them all,
// which stores identical vectors. On the final attempt those documents are
// marked failed instead.
func (w *Worker) embed(ctx context.Context, job Job, final bool) (Result, error) {
	if w.indexer == nil {
		return Result{}, errors.New("no handler for embedding jobs")
	}

	var retry error
	indexed, failed := 0, 0
	for _, id := range job.DocumentIDs {
		err := w.indexer.IndexDocument(ctx, id, job.Encoders...)
		switch {
		case err == nil:
			indexed++
		case ctx.Err() != nil:
			return Result{}, ctx.Err()
		case errors.Is(err, corpus.ErrDocumentNotFound):
			failed++
		case corpus.IsRetryable(err) && !final:
			if retry == nil {
				retry = err
			}
		default:
			failed++
			w.logWarn("Document could not be indexed", err, map[string]interface{}{"document_id": id, "job_id": job.ID})
			if merr := w.indexer.MarkFailed(ctx, id); merr != nil {
				w.logWarn("Failed to mark document failed", merr, map[string]interface{}{"document_id": id})
			}
		}
	}
	if retry != nil {
		return Result{}, retry
	}
	return Result{Detail: fmt.Sprintf("%d indexed, %d failed", indexed, failed)}, nil
}

func (w *Worker) record(ctx context.Context, s Status) {
	s.UpdatedAt = w.now().UTC()
	if err := w.tracker.Put(ctx, s); err != nil {
		w.logWarn("Failed to record job status", err, map[string]interface{}{"job_id": s.JobID, "state": string(s.State)})
	}
}

// release frees the family of a finished clustering or topic job for the
// next trigger. Requeued jobs keep their claim.
func (w *Worker) release(ctx context.Context, job Job) {
	family, ok := job.Type.Family()
	if !ok {
		return
	}
	if err := w.tracker.Release(ctx, family, job.ID); err != nil {
		w.logWarn("Failed to release pending claim", err, fields(job))
	}
}

func (w *Worker) ack(msg rabbit.Message) {
	if err := msg.AckMsg(); err != nil {
		w.logWarn("Failed to ack job", err, nil)
	}
}

func (w *Worker) settle(msg rabbit.Message, requeue bool) {
	if err := msg.NackMsg(requeue); err != nil {
		w.logWarn("Failed to nack job", err, map[string]interface{}{"requeue": requeue})
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func fields(job Job) map[string]interface{} {
	return map[string]interface{}{"job_id": job.ID, "job_type": string(job.Type)}
}

func merge(a, b map[string]interface{}) map[string]interface{} {
	for k, v := range b {
		a[k] = v
	}
	return a
}

func (w *Worker) logInfo(msg string, f map[string]interface{}) {
	if w.logger != nil {
		w.logger.Info(msg, nil, f)
	}
}

func (w *Worker) logWarn(msg string, err error, f map[string]interface{}) {
	if w.logger != nil {
		w.logger.Warn(msg, err, f)
	}
}

func (w *Worker) logError(msg string, err error, f map[string]interface{}) {
	if w.logger != nil {
		w.logger.Error(msg, err, f)
	}
}
