package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/runstore"
)

// Publisher is the producing side of the work queue. *rabbit.RabbitClient
// implements it.
type Publisher interface {
	Publish(ctx context.Context, msg []byte, headers ...map[string]interface{}) error
}

// Logger is the logging contract of the jobs package.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
}

// Dispatcher enqueues jobs.
type Dispatcher struct {
	cfg     Config
	queue   Publisher
	tracker Tracker
	docs    corpus.Repository
	runs    runstore.Store
	logger  Logger
	now     func() time.Time
}

// DispatcherParams groups the dependencies of NewDispatcher.
type DispatcherParams struct {
	Config  Config
	Queue   Publisher
	Tracker Tracker
	Docs    corpus.Repository
	Runs    runstore.Store
	Logger  Logger
}

// NewDispatcher validates p.Config and returns a Dispatcher.
func NewDispatcher(p DispatcherParams) (*Dispatcher, error) {
	if err := p.Config.Validate(); err != nil {
		return nil, err
	}
	return &Dispatcher{
		cfg:     p.Config.withDefaults(),
		queue:   p.Queue,
		tracker: p.Tracker,
		docs:    p.Docs,
		runs:    p.Runs,
		logger:  p.Logger,
		now:     time.Now,
	}, nil
}

// TriggerClustering enqueues a regeneration of the density clustering.
func (d *Dispatcher) TriggerClustering(ctx context.Context) (Handle, error) {
	return d.trigger(ctx, TypeClustering)
}

// TriggerTopics enqueues a regeneration of the topic overlay.
func (d *Dispatcher) TriggerTopics(ctx context.Context) (Handle, error) {
	return d.trigger(ctx, TypeTopics)
}

// trigger enqueues a run of the family of t. A family has at most one
// queued or running job: the run lock covers runs started outside the
// queue, the tracker claim covers jobs no worker has picked up yet.
func (d *Dispatcher) trigger(ctx context.Context, t Type) (Handle, error) {
	family, _ := t.Family()
	op := "trigger " + string(t)

	locked, err := d.runs.Locked(ctx, family)
	if err != nil {
		return Handle{}, err
	}
	if locked {
		return Handle{}, corpus.ConcurrentRunConflict(op, fmt.Errorf("a %s run is in progress", family))
	}

	job := Job{ID: ulid.Make().String(), Type: t}
	if err := d.claim(ctx, family, job.ID, op); err != nil {
		return Handle{}, err
	}

	eligible, err := d.docs.EligibleDocumentIDs(ctx)
	if err != nil {
		d.release(ctx, family, job)
		return Handle{}, fmt.Errorf("count eligible documents: %w", err)
	}
	h, err := d.enqueue(ctx, job, len(eligible))
	if err != nil {
		d.release(ctx, family, job)
		return Handle{}, err
	}
	return h, nil
}

// claim makes jobID the pending job of family. A holder whose job already
// finished is stale and is replaced. A holder without a status is treated
// as live: its dispatcher has claimed but not yet recorded it.
func (d *Dispatcher) claim(ctx context.Context, family runstore.Family, jobID, op string) error {
	holder, ok, err := d.tracker.Claim(ctx, family, jobID)
	if err != nil {
		return fmt.Errorf("claim %s: %w", family, err)
	}
	if ok {
		return nil
	}

	st, err := d.tracker.Get(ctx, holder)
	switch {
	case errors.Is(err, ErrJobNotFound):
		return corpus.ConcurrentRunConflict(op, fmt.Errorf("a %s job is being enqueued", family))
	case err != nil:
		return fmt.Errorf("read pending job %s: %w", holder, err)
	case st.State == StateQueued || st.State == StateRunning:
		return corpus.ConcurrentRunConflict(op, fmt.Errorf("%s job %s is %s", family, holder, st.State))
	}

	if err := d.tracker.Release(ctx, family, holder); err != nil {
		return fmt.Errorf("release stale claim %s: %w", holder, err)
	}
	holder, ok, err = d.tracker.Claim(ctx, family, jobID)
	if err != nil {
		return fmt.Errorf("claim %s: %w", family, err)
	}
	if !ok {
		return corpus.ConcurrentRunConflict(op, fmt.Errorf("%s job %s was enqueued concurrently", family, holder))
	}
	return nil
}

func (d *Dispatcher) release(ctx context.Context, family runstore.Family, job Job) {
	if err := d.tracker.Release(ctx, family, job.ID); err != nil {
		d.warn("failed to release pending claim", err, job)
	}
}

// EnqueueEmbedding enqueues indexing of documentIDs. With no encoders every
// registered encoder is used.
func (d *Dispatcher) EnqueueEmbedding(ctx context.Context, documentIDs []string, encoders ...corpus.EncoderID) (Handle, error) {
	if len(documentIDs) == 0 {
		return Handle{}, fmt.Errorf("jobs: no documents to embed")
	}
	return d.enqueue(ctx, Job{Type: TypeEmbedding, DocumentIDs: documentIDs, Encoders: encoders}, len(documentIDs))
}

func (d *Dispatcher) enqueue(ctx context.Context, job Job, documents int) (Handle, error) {
	if job.ID == "" {
		job.ID = ulid.Make().String()
	}
	job.EnqueuedAt = d.now().UTC()

	body, err := json.Marshal(job)
	if err != nil {
		return Handle{}, fmt.Errorf("encode job: %w", err)
	}

	// The status is written first so a fast worker always finds it.
	status := Status{JobID: job.ID, Type: job.Type, State: StateQueued, UpdatedAt: job.EnqueuedAt}
	if err := d.tracker.Put(ctx, status); err != nil {
		return Handle{}, fmt.Errorf("record job %s: %w", job.ID, err)
	}
	if err := d.queue.Publish(ctx, body, map[string]interface{}{"job-type": string(job.Type), "job-id": job.ID}); err != nil {
		status.State, status.Reason, status.UpdatedAt = StateFailed, "enqueue failed: "+err.Error(), d.now().UTC()
		if terr := d.tracker.Put(ctx, status); terr != nil {
			d.warn("failed to record enqueue failure", terr, job)
		}
		return Handle{}, fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}

	h := Handle{JobID: job.ID, Type: job.Type, EstimatedDuration: d.cfg.Estimates.Estimate(job.Type, documents)}
	if d.logger != nil {
		d.logger.Info("Job enqueued", nil, map[string]interface{}{
			"job_id":    job.ID,
			"job_type":  string(job.Type),
			"documents": documents,
			"estimate":  h.EstimatedDuration.String(),
		})
	}
	return h, nil
}

// Status returns the recorded status of a job.
func (d *Dispatcher) Status(ctx context.Context, jobID string) (Status, error) {
	return d.tracker.Get(ctx, jobID)
}

func (d *Dispatcher) warn(msg string, err error, job Job) {
	if d.logger != nil {
		d.logger.Warn(msg, err, map[string]interface{}{"job_id": job.ID, "job_type": string(job.Type)})
	}
}
