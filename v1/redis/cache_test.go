package redis

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/lexgraph/v1/observability"
)

type recordingObserver struct {
	mu  sync.Mutex
	ops []observability.OperationContext
}

func (r *recordingObserver) ObserveOperation(ctx observability.OperationContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, ctx)
}

func newMiniClient(t *testing.T, obs observability.Observer) (*miniredis.Miniredis, *RedisClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	client, err := NewClient(Config{Host: mr.Host(), Port: port, EmbeddingTTL: time.Hour}, nil, obs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestVectorCodec(t *testing.T) {
	v := []float32{0, 1.5, -2.25, 3.4028235e38}
	got, err := decodeVector(encodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
	_, err = decodeVector(nil)
	assert.Error(t, err)
}

func TestEmbeddingCache(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	mr, client := newMiniClient(t, obs)
	cache := NewEmbeddingCache(client)

	require.NoError(t, cache.SetVectors(ctx, map[string][]float32{
		"encoder:abc": {1, 2, 3},
		"encoder:def": {4, 5},
	}))

	assert.True(t, mr.Exists("lexgraph:emb:encoder:abc"))
	assert.Equal(t, time.Hour, mr.TTL("lexgraph:emb:encoder:abc"))

	got, err := cache.GetVectors(ctx, []string{"encoder:abc", "encoder:missing", "encoder:def"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]float32{
		"encoder:abc": {1, 2, 3},
		"encoder:def": {4, 5},
	}, got)

	t.Run("corrupt entries are misses", func(t *testing.T) {
		require.NoError(t, mr.Set("lexgraph:emb:encoder:bad", "xyz"))
		got, err := cache.GetVectors(ctx, []string{"encoder:bad"})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("empty input", func(t *testing.T) {
		got, err := cache.GetVectors(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.NoError(t, cache.SetVectors(ctx, nil))
	})

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.NotEmpty(t, obs.ops)
	assert.Equal(t, "redis", obs.ops[0].Component)
	assert.Equal(t, "pipeline_set", obs.ops[0].Operation)
	assert.Equal(t, int64(2), obs.ops[0].Size)
}

func TestEmbeddingCacheUnavailable(t *testing.T) {
	mr, client := newMiniClient(t, nil)
	mr.Close()

	_, err := NewEmbeddingCache(client).GetVectors(context.Background(), []string{"k"})
	assert.Error(t, err)
}

func TestJSONStore(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniClient(t, nil)
	store := NewJSONStore(client)

	type status struct {
		State    string `json:"state"`
		Attempts int    `json:"attempts"`
	}

	require.NoError(t, store.Put(ctx, "job", "j1", status{State: "running", Attempts: 2}, time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("lexgraph:job:j1"))

	var got status
	require.NoError(t, store.Get(ctx, "job", "j1", &got))
	assert.Equal(t, status{State: "running", Attempts: 2}, got)

	err := store.Get(ctx, "job", "nope", &got)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJSONStoreClaim(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniClient(t, nil)
	store := NewJSONStore(client)

	holder, ok, err := store.Claim(ctx, "pending", "density", "job-a", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "job-a", holder)
	assert.Equal(t, time.Hour, mr.TTL("lexgraph:pending:density"))

	holder, ok, err = store.Claim(ctx, "pending", "density", "job-b", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "job-a", holder)

	// Only the holder can release.
	require.NoError(t, store.Release(ctx, "pending", "density", "job-b"))
	assert.True(t, mr.Exists("lexgraph:pending:density"))
	require.NoError(t, store.Release(ctx, "pending", "density", "job-a"))
	assert.False(t, mr.Exists("lexgraph:pending:density"))

	_, ok, err = store.Claim(ctx, "pending", "density", "job-b", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultKeyPrefix, cfg.KeyPrefix)
	assert.Equal(t, DefaultEmbeddingTTL, cfg.EmbeddingTTL)

	cfg = Config{Port: 7000, KeyPrefix: "x:"}.withDefaults()
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "x:", cfg.KeyPrefix)
}
