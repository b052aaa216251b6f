package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Aleph-Alpha/lexgraph/v1/redis"
	"github.com/Aleph-Alpha/lexgraph/v1/runstore"
)

// ErrJobNotFound is returned for unknown or expired job ids.
var ErrJobNotFound = errors.New("jobs: job not found")

// Tracker records job statuses and the pending regeneration job of each
// run family.
type Tracker interface {
	Put(ctx context.Context, status Status) error
	Get(ctx context.Context, jobID string) (Status, error)

	// Claim makes jobID the pending job of family unless another job holds
	// the claim. It returns the holder and whether jobID holds it now.
	Claim(ctx context.Context, family runstore.Family, jobID string) (string, bool, error)

	// Release drops the claim of family if jobID holds it.
	Release(ctx context.Context, family runstore.Family, jobID string) error
}

const (
	trackerNamespace = "job"
	claimNamespace   = "pending"
)

// RedisTracker keeps statuses as JSON documents in redis with a TTL.
type RedisTracker struct {
	store    *redis.JSONStore
	ttl      time.Duration
	claimTTL time.Duration
}

// NewRedisTracker returns a Tracker on store using the TTLs of cfg.
func NewRedisTracker(store *redis.JSONStore, cfg Config) *RedisTracker {
	cfg = cfg.withDefaults()
	return &RedisTracker{store: store, ttl: cfg.StatusTTL, claimTTL: cfg.PendingTTL}
}

// Put stores status under its job id.
func (t *RedisTracker) Put(ctx context.Context, status Status) error {
	return t.store.Put(ctx, trackerNamespace, status.JobID, status, t.ttl)
}

// Get returns the status of jobID or ErrJobNotFound.
func (t *RedisTracker) Get(ctx context.Context, jobID string) (Status, error) {
	var s Status
	err := t.store.Get(ctx, trackerNamespace, jobID, &s)
	if errors.Is(err, redis.ErrNotFound) {
		return Status{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return s, err
}

// Claim uses SETNX, so concurrent dispatchers agree on a single holder.
// The claim expires after PendingTTL if no worker ever releases it.
func (t *RedisTracker) Claim(ctx context.Context, family runstore.Family, jobID string) (string, bool, error) {
	return t.store.Claim(ctx, claimNamespace, string(family), jobID, t.claimTTL)
}

func (t *RedisTracker) Release(ctx context.Context, family runstore.Family, jobID string) error {
	return t.store.Release(ctx, claimNamespace, string(family), jobID)
}

// MemoryTracker is an in-process Tracker. Neither statuses nor claims expire.
type MemoryTracker struct {
	mu       sync.Mutex
	statuses map[string]Status
	claims   map[runstore.Family]string
}

// NewMemoryTracker returns an empty MemoryTracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		statuses: make(map[string]Status),
		claims:   make(map[runstore.Family]string),
	}
}

// Put stores status under its job id.
func (t *MemoryTracker) Put(_ context.Context, status Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statuses[status.JobID] = status
	return nil
}

// Get returns the status of jobID or ErrJobNotFound.
func (t *MemoryTracker) Get(_ context.Context, jobID string) (Status, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.statuses[jobID]
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return s, nil
}

// Claim makes jobID the pending job of family unless another job holds it.
func (t *MemoryTracker) Claim(_ context.Context, family runstore.Family, jobID string) (string, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if holder, ok := t.claims[family]; ok {
		return holder, holder == jobID, nil
	}
	t.claims[family] = jobID
	return jobID, true, nil
}

func (t *MemoryTracker) Release(_ context.Context, family runstore.Family, jobID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.claims[family] == jobID {
		delete(t.claims, family)
	}
	return nil
}
