package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// EmbeddingCache stores encoder outputs keyed by embedding.CacheKey.
type EmbeddingCache struct {
	r   *RedisClient
	ttl time.Duration
}

// NewEmbeddingCache returns a cache using the client's configured TTL.
func NewEmbeddingCache(r *RedisClient) *EmbeddingCache {
	return &EmbeddingCache{r: r, ttl: r.cfg.EmbeddingTTL}
}

// GetVectors reads keys with a single MGET. Missing or corrupt entries are
// left out of the result.
func (c *EmbeddingCache) GetVectors(ctx context.Context, keys []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.r.key("emb:" + k)
	}

	start := time.Now()
	values, err := c.r.client.MGet(ctx, full...).Result()
	c.r.observeOperation("mget", "embedding-cache", time.Since(start), err, int64(len(keys)))
	if err != nil {
		return nil, fmt.Errorf("redis: read embedding cache: %w", err)
	}

	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if vec, err := decodeVector([]byte(s)); err == nil {
			out[keys[i]] = vec
		}
	}
	return out, nil
}

// SetVectors writes entries in one pipeline.
func (c *EmbeddingCache) SetVectors(ctx context.Context, entries map[string][]float32) error {
	if len(entries) == 0 {
		return nil
	}

	start := time.Now()
	_, err := c.r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for k, v := range entries {
			p.Set(ctx, c.r.key("emb:"+k), encodeVector(v), c.ttl)
		}
		return nil
	})
	c.r.observeOperation("pipeline_set", "embedding-cache", time.Since(start), err, int64(len(entries)))
	if err != nil {
		return fmt.Errorf("redis: write embedding cache: %w", err)
	}
	return nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, fmt.Errorf("redis: invalid vector encoding of %d bytes", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out, nil
}
