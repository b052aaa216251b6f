package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
)

// Cache stores vectors by CacheKey. Implementations must return copies that
// callers may modify. A miss is simply absent from the result map.
type Cache interface {
	GetVectors(ctx context.Context, keys []string) (map[string][]float32, error)
	SetVectors(ctx context.Context, entries map[string][]float32) error
}

// CacheKey is "<encoder>:<hex sha256 of text>".
func CacheKey(encoder corpus.EncoderID, text string) string {
	sum := sha256.Sum256([]byte(text))
	return string(encoder) + ":" + hex.EncodeToString(sum[:])
}

// MemoryCache is an unbounded in-process Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

// NewMemoryCache returns an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{vectors: make(map[string][]float32)}
}

func (c *MemoryCache) GetVectors(_ context.Context, keys []string) (map[string][]float32, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string][]float32)
	for _, k := range keys {
		if v, ok := c.vectors[k]; ok {
			out[k] = append([]float32(nil), v...)
		}
	}
	return out, nil
}

func (c *MemoryCache) SetVectors(_ context.Context, entries map[string][]float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range entries {
		c.vectors[k] = append([]float32(nil), v...)
	}
	return nil
}

// Len returns the number of cached vectors.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vectors)
}
