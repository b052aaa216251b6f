package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/rabbit"
	"github.com/Aleph-Alpha/lexgraph/v1/redis"
	"github.com/Aleph-Alpha/lexgraph/v1/runstore"
)

type published struct {
	body    []byte
	headers map[string]interface{}
}

type fakeQueue struct {
	mu   sync.Mutex
	msgs []published
	err  error
	in   chan rabbit.Message
}

func (q *fakeQueue) Publish(_ context.Context, body []byte, headers ...map[string]interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	p := published{body: body}
	if len(headers) > 0 {
		p.headers = headers[0]
	}
	q.msgs = append(q.msgs, p)
	return nil
}

func (q *fakeQueue) Consume(ctx context.Context, wg *sync.WaitGroup) <-chan rabbit.Message {
	out := make(chan rabbit.Message)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-q.in:
				select {
				case out <- m:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

type fakeMessage struct {
	body []byte

	mu      sync.Mutex
	acked   bool
	nacked  bool
	requeue bool
	done    chan struct{}
}

func newMessage(t *testing.T, job Job) *fakeMessage {
	t.Helper()
	body, err := json.Marshal(job)
	require.NoError(t, err)
	return &fakeMessage{body: body, done: make(chan struct{})}
}

func (m *fakeMessage) AckMsg() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = true
	close(m.done)
	return nil
}

func (m *fakeMessage) NackMsg(requeue bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nacked, m.requeue = true, requeue
	close(m.done)
	return nil
}

func (m *fakeMessage) Body() []byte                   { return m.body }
func (m *fakeMessage) Header() map[string]interface{} { return nil }
func (m *fakeMessage) Redelivered() bool              { return false }

type fakeRunner struct {
	mu    sync.Mutex
	calls int
	errs  []error
}

func (r *fakeRunner) Run(context.Context) (runstore.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		if err != nil {
			return runstore.Run{}, err
		}
	}
	return runstore.Run{ID: fmt.Sprintf("run-%d", r.calls), DocumentCount: 12}, nil
}

type fakeIndexer struct {
	errs   map[string]error
	index  []string
	failed []string
}

func (f *fakeIndexer) IndexDocument(_ context.Context, id string, _ ...corpus.EncoderID) error {
	f.index = append(f.index, id)
	return f.errs[id]
}

func (f *fakeIndexer) MarkFailed(_ context.Context, id string) error {
	f.failed = append(f.failed, id)
	return nil
}

func seedCorpus(t *testing.T, n int) *corpus.MemoryRepository {
	t.Helper()
	repo := corpus.NewMemoryRepository()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("d%02d", i)
		require.NoError(t, repo.SaveDocument(ctx, corpus.Document{ID: id, Text: "text"}, nil))
		require.NoError(t, repo.SetStatus(ctx, id, corpus.StatusProcessed))
	}
	return repo
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Concurrency = 2
	cfg.MaxAttempts = 3
	cfg.RetryBackoff = time.Millisecond
	cfg.Estimates = Estimates{
		EmbeddingPerDocument:  time.Second,
		ClusteringPerDocument: 100 * time.Millisecond,
		TopicsPerDocument:     200 * time.Millisecond,
		Overhead:              10 * time.Second,
	}
	return cfg
}

func newDispatcher(t *testing.T, q *fakeQueue, tr Tracker, runs runstore.Store) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(DispatcherParams{
		Config:  testConfig(),
		Queue:   q,
		Tracker: tr,
		Docs:    seedCorpus(t, 20),
		Runs:    runs,
	})
	require.NoError(t, err)
	return d
}

func TestDispatcherTrigger(t *testing.T) {
	ctx := context.Background()
	q := &fakeQueue{}
	tr := NewMemoryTracker()
	d := newDispatcher(t, q, tr, runstore.NewMemoryStore())

	h, err := d.TriggerClustering(ctx)
	require.NoError(t, err)
	assert.Equal(t, TypeClustering, h.Type)
	assert.Len(t, h.JobID, 26)
	assert.Equal(t, 12*time.Second, h.EstimatedDuration, "20 docs x 100ms + 10s")

	h2, err := d.TriggerTopics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 14*time.Second, h2.EstimatedDuration)
	assert.NotEqual(t, h.JobID, h2.JobID)

	require.Len(t, q.msgs, 2)
	var job Job
	require.NoError(t, json.Unmarshal(q.msgs[0].body, &job))
	assert.Equal(t, h.JobID, job.ID)
	assert.Equal(t, TypeClustering, job.Type)
	assert.Equal(t, "clustering", q.msgs[0].headers["job-type"])

	st, err := d.Status(ctx, h.JobID)
	require.NoError(t, err)
	assert.Equal(t, StateQueued, st.State)
}

func TestDispatcherRejectsWhileRunInProgress(t *testing.T) {
	ctx := context.Background()
	q := &fakeQueue{}
	runs := runstore.NewMemoryStore()
	require.NoError(t, runs.AcquireLock(ctx, runstore.FamilyDensity, "busy", time.Minute))
	d := newDispatcher(t, q, NewMemoryTracker(), runs)

	_, err := d.TriggerClustering(ctx)
	assert.ErrorIs(t, err, corpus.ErrConcurrentRunConflict)
	assert.Empty(t, q.msgs, "conflicting trigger must not be queued")

	// The topic family is independent.
	_, err = d.TriggerTopics(ctx)
	require.NoError(t, err)
	assert.Len(t, q.msgs, 1)
}

func TestDispatcherRejectsWhileJobQueued(t *testing.T) {
	ctx := context.Background()
	q := &fakeQueue{}
	tr := NewMemoryTracker()
	d := newDispatcher(t, q, tr, runstore.NewMemoryStore())

	first, err := d.TriggerClustering(ctx)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err = d.TriggerClustering(ctx)
		assert.ErrorIs(t, err, corpus.ErrConcurrentRunConflict)
	}
	require.Len(t, q.msgs, 1, "only the first trigger is queued")

	// A worker finishing the job frees the family.
	w := newTestWorker(t, WorkerParams{Tracker: tr, Clustering: &fakeRunner{}})
	w.Process(ctx, newMessage(t, Job{ID: first.JobID, Type: TypeClustering}))

	second, err := d.TriggerClustering(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.JobID, second.JobID)
	assert.Len(t, q.msgs, 2)
}

func TestDispatcherReplacesStaleClaim(t *testing.T) {
	ctx := context.Background()
	q := &fakeQueue{}
	tr := NewMemoryTracker()
	d := newDispatcher(t, q, tr, runstore.NewMemoryStore())

	// A worker died after recording the failure but before releasing.
	require.NoError(t, tr.Put(ctx, Status{JobID: "old", Type: TypeTopics, State: StateFailed}))
	_, _, err := tr.Claim(ctx, runstore.FamilyTopic, "old")
	require.NoError(t, err)

	h, err := d.TriggerTopics(ctx)
	require.NoError(t, err)
	holder, ok, err := tr.Claim(ctx, runstore.FamilyTopic, "other")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, h.JobID, holder)
}

func TestDispatcherReleasesClaimWhenPublishFails(t *testing.T) {
	ctx := context.Background()
	q := &fakeQueue{err: errors.New("broker down")}
	tr := NewMemoryTracker()
	d := newDispatcher(t, q, tr, runstore.NewMemoryStore())

	_, err := d.TriggerClustering(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, corpus.ErrConcurrentRunConflict)
	assert.Empty(t, tr.claims)

	q.err = nil
	_, err = d.TriggerClustering(ctx)
	require.NoError(t, err)
}

func TestDispatcherEnqueueEmbedding(t *testing.T) {
	ctx := context.Background()
	q := &fakeQueue{}
	tr := NewMemoryTracker()
	d := newDispatcher(t, q, tr, runstore.NewMemoryStore())

	h, err := d.EnqueueEmbedding(ctx, []string{"a", "b", "c"}, "legal-v1")
	require.NoError(t, err)
	assert.Equal(t, 13*time.Second, h.EstimatedDuration)

	var job Job
	require.NoError(t, json.Unmarshal(q.msgs[0].body, &job))
	assert.Equal(t, []string{"a", "b", "c"}, job.DocumentIDs)
	assert.Equal(t, []corpus.EncoderID{"legal-v1"}, job.Encoders)

	_, err = d.EnqueueEmbedding(ctx, nil)
	assert.Error(t, err)

	q.err = errors.New("broker down")
	_, err = d.EnqueueEmbedding(ctx, []string{"x"})
	require.Error(t, err)
	assert.Len(t, tr.statuses, 2)
	for _, st := range tr.statuses {
		if st.JobID != h.JobID {
			assert.Equal(t, StateFailed, st.State)
			assert.Contains(t, st.Reason, "broker down")
		}
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{}.Validate())

	cfg := DefaultConfig()
	cfg.Concurrency = 1000
	assert.Error(t, cfg.Validate())

	_, err := NewDispatcher(DispatcherParams{Config: Config{MaxAttempts: -1}})
	assert.Error(t, err)
}

func newTestWorker(t *testing.T, p WorkerParams) *Worker {
	t.Helper()
	p.Config = testConfig()
	if p.Tracker == nil {
		p.Tracker = NewMemoryTracker()
	}
	if p.Queue == nil {
		p.Queue = &fakeQueue{in: make(chan rabbit.Message)}
	}
	w, err := NewWorker(p)
	require.NoError(t, err)
	w.sleep = func(context.Context, time.Duration) {}
	return w
}

func TestWorkerOutcomes(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		err         error
		wantState   State
		wantAck     bool
		wantRequeue bool
	}{
		{"success", nil, StateSucceeded, true, false},
		{"insufficient data is terminal", corpus.InsufficientData("run", errors.New("need at least 5")), StateFailed, true, false},
		{"conflict is not queued", corpus.ConcurrentRunConflict("run", errors.New("busy")), StateFailed, true, false},
		{"encoding failure is retried", corpus.EncodingFailure("embed", errors.New("timeout")), StateQueued, false, true},
		{"unknown error is dead-lettered", errors.New("disk full"), StateFailed, false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr := NewMemoryTracker()
			w := newTestWorker(t, WorkerParams{Tracker: tr, Clustering: &fakeRunner{errs: []error{tc.err}}})

			msg := newMessage(t, Job{ID: "j1", Type: TypeClustering})
			w.Process(ctx, msg)

			assert.Equal(t, tc.wantAck, msg.acked)
			if !tc.wantAck {
				assert.True(t, msg.nacked)
				assert.Equal(t, tc.wantRequeue, msg.requeue)
			}
			st, err := tr.Get(ctx, "j1")
			require.NoError(t, err)
			assert.Equal(t, tc.wantState, st.State)
			assert.Equal(t, 1, st.Attempts)
			if tc.err == nil {
				assert.Equal(t, "run-1", st.RunID)
			} else {
				assert.NotEmpty(t, st.Reason)
			}
		})
	}
}

func TestWorkerRetriesUntilMaxAttempts(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTracker()
	encErr := corpus.EncodingFailure("embed", errors.New("unreachable"))
	runner := &fakeRunner{errs: []error{encErr, encErr, encErr}}
	w := newTestWorker(t, WorkerParams{Tracker: tr, Topics: runner})

	job := Job{ID: "j2", Type: TypeTopics}
	for attempt := 1; attempt <= 3; attempt++ {
		msg := newMessage(t, job)
		w.Process(ctx, msg)
		require.True(t, msg.nacked)
		assert.Equal(t, attempt < 3, msg.requeue, "attempt %d", attempt)
	}
	st, err := tr.Get(ctx, "j2")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, 3, st.Attempts)
}

func TestWorkerKeepsClaimWhileRetrying(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTracker()
	_, _, err := tr.Claim(ctx, runstore.FamilyDensity, "j5")
	require.NoError(t, err)
	encErr := corpus.EncodingFailure("embed", errors.New("unreachable"))
	w := newTestWorker(t, WorkerParams{Tracker: tr, Clustering: &fakeRunner{errs: []error{encErr}}})

	job := Job{ID: "j5", Type: TypeClustering}
	w.Process(ctx, newMessage(t, job))
	assert.Equal(t, "j5", tr.claims[runstore.FamilyDensity], "requeued job keeps the family")

	w.Process(ctx, newMessage(t, job))
	assert.NotContains(t, tr.claims, runstore.FamilyDensity)
}

func TestWorkerSkipsFinishedJob(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTracker()
	runner := &fakeRunner{}
	w := newTestWorker(t, WorkerParams{Tracker: tr, Clustering: runner})

	job := Job{ID: "j3", Type: TypeClustering}
	w.Process(ctx, newMessage(t, job))
	dup := newMessage(t, job)
	w.Process(ctx, dup)

	assert.True(t, dup.acked)
	assert.Equal(t, 1, runner.calls, "redelivery of a finished job must not run it again")
}

func TestWorkerMalformedAndUnhandled(t *testing.T) {
	ctx := context.Background()
	w := newTestWorker(t, WorkerParams{})

	bad := &fakeMessage{body: []byte("{not json"), done: make(chan struct{})}
	w.Process(ctx, bad)
	assert.True(t, bad.nacked)
	assert.False(t, bad.requeue)

	noHandler := newMessage(t, Job{ID: "j4", Type: TypeClustering})
	w.Process(ctx, noHandler)
	assert.True(t, noHandler.nacked)
	assert.False(t, noHandler.requeue)
}

func TestWorkerEmbedding(t *testing.T) {
	ctx := context.Background()
	encErr := corpus.EncodingFailure("embed", errors.New("timeout"))

	t.Run("partial failures are marked", func(t *testing.T) {
		ix := &fakeIndexer{errs: map[string]error{
			"bad":  errors.New("malformed output"),
			"gone": fmt.Errorf("load: %w", corpus.ErrDocumentNotFound),
		}}
		tr := NewMemoryTracker()
		w := newTestWorker(t, WorkerParams{Tracker: tr, Indexer: ix})

		msg := newMessage(t, Job{ID: "e1", Type: TypeEmbedding, DocumentIDs: []string{"a", "bad", "gone", "b"}})
		w.Process(ctx, msg)

		assert.True(t, msg.acked)
		assert.Equal(t, []string{"a", "bad", "gone", "b"}, ix.index)
		assert.Equal(t, []string{"bad"}, ix.failed)
		st, _ := tr.Get(ctx, "e1")
		assert.Equal(t, "2 indexed, 2 failed", st.Detail)
	})

	t.Run("retryable failure requeues the whole job", func(t *testing.T) {
		ix := &fakeIndexer{errs: map[string]error{"slow": encErr}}
		w := newTestWorker(t, WorkerParams{Indexer: ix})

		msg := newMessage(t, Job{ID: "e2", Type: TypeEmbedding, DocumentIDs: []string{"slow", "ok"}})
		w.Process(ctx, msg)

		assert.True(t, msg.requeue)
		assert.Equal(t, []string{"slow", "ok"}, ix.index)
		assert.Empty(t, ix.failed)
	})

	t.Run("final attempt marks documents failed", func(t *testing.T) {
		ix := &fakeIndexer{errs: map[string]error{"slow": encErr}}
		tr := NewMemoryTracker()
		require.NoError(t, tr.Put(ctx, Status{JobID: "e3", Type: TypeEmbedding, State: StateQueued, Attempts: 2}))
		w := newTestWorker(t, WorkerParams{Tracker: tr, Indexer: ix})

		msg := newMessage(t, Job{ID: "e3", Type: TypeEmbedding, DocumentIDs: []string{"slow", "ok"}})
		w.Process(ctx, msg)

		assert.True(t, msg.acked)
		assert.Equal(t, []string{"slow"}, ix.failed)
	})
}

func TestWorkerConsumesQueue(t *testing.T) {
	q := &fakeQueue{in: make(chan rabbit.Message)}
	runner := &fakeRunner{}
	w := newTestWorker(t, WorkerParams{Queue: q, Clustering: runner})

	w.Start(context.Background())
	msgs := []*fakeMessage{
		newMessage(t, Job{ID: "c1", Type: TypeClustering}),
		newMessage(t, Job{ID: "c2", Type: TypeClustering}),
		newMessage(t, Job{ID: "c3", Type: TypeClustering}),
	}
	for _, m := range msgs {
		q.in <- m
	}
	for _, m := range msgs {
		select {
		case <-m.done:
		case <-time.After(5 * time.Second):
			t.Fatal("job not settled")
		}
		assert.True(t, m.acked)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Stop(stopCtx))
	assert.Equal(t, 3, runner.calls)
}

func TestRedisTracker(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	client, err := redis.NewClient(redis.Config{Host: mr.Host(), Port: port}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	tr := NewRedisTracker(redis.NewJSONStore(client), Config{StatusTTL: time.Minute})

	_, err = tr.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	want := Status{JobID: "r1", Type: TypeTopics, State: StateRunning, Attempts: 1, UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	require.NoError(t, tr.Put(ctx, want))
	got, err := tr.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	mr.FastForward(2 * time.Minute)
	_, err = tr.Get(ctx, "r1")
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, ok, err := tr.Claim(ctx, runstore.FamilyDensity, "r2")
	require.NoError(t, err)
	assert.True(t, ok)
	holder, ok, err := tr.Claim(ctx, runstore.FamilyDensity, "r3")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "r2", holder)
	assert.Equal(t, 12*time.Hour, mr.TTL("lexgraph:pending:density"))

	require.NoError(t, tr.Release(ctx, runstore.FamilyDensity, "r2"))
	_, ok, err = tr.Claim(ctx, runstore.FamilyDensity, "r3")
	require.NoError(t, err)
	assert.True(t, ok)
}
