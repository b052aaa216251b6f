package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// JSONStore keeps small JSON documents under "<prefix><namespace>:<id>".
type JSONStore struct {
	r *RedisClient
}

// NewJSONStore returns a JSONStore on r.
func NewJSONStore(r *RedisClient) *JSONStore {
	return &JSONStore{r: r}
}

// Put marshals v and stores it with ttl. A zero ttl keeps the key forever.
func (s *JSONStore) Put(ctx context.Context, namespace, id string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis: encode %s %s: %w", namespace, id, err)
	}

	key := s.r.key(namespace + ":" + id)
	start := time.Now()
	err = s.r.client.Set(ctx, key, data, ttl).Err()
	s.r.observeOperation("set", namespace, time.Since(start), err, int64(len(data)))
	if err != nil {
		return fmt.Errorf("redis: put %s %s: %w", namespace, id, err)
	}
	return nil
}

// Get loads the document into out. Returns ErrNotFound for a missing key.
func (s *JSONStore) Get(ctx context.Context, namespace, id string, out any) error {
	key := s.r.key(namespace + ":" + id)
	start := time.Now()
	data, err := s.r.client.Get(ctx, key).Bytes()
	s.r.observeOperation("get", namespace, time.Since(start), err, int64(len(data)))
	if err != nil {
		return translateError(err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("redis: decode %s %s: %w", namespace, id, err)
	}
	return nil
}

// releaseScript deletes KEYS[1] only while it still holds ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Claim sets "<namespace>:<id>" to owner unless the key exists. It returns
// the current holder and whether owner now holds the claim.
func (s *JSONStore) Claim(ctx context.Context, namespace, id, owner string, ttl time.Duration) (string, bool, error) {
	key := s.r.key(namespace + ":" + id)
	start := time.Now()
	ok, err := s.r.client.SetNX(ctx, key, owner, ttl).Result()
	s.r.observeOperation("setnx", namespace, time.Since(start), err, int64(len(owner)))
	if err != nil {
		return "", false, fmt.Errorf("redis: claim %s %s: %w", namespace, id, err)
	}
	if ok {
		return owner, true, nil
	}

	holder, err := s.r.client.Get(ctx, key).Result()
	if err != nil {
		if err = translateError(err); errors.Is(err, ErrNotFound) {
			// Released between SETNX and GET.
			return s.Claim(ctx, namespace, id, owner, ttl)
		}
		return "", false, fmt.Errorf("redis: read claim %s %s: %w", namespace, id, err)
	}
	return holder, false, nil
}

// Release drops the claim if owner still holds it.
func (s *JSONStore) Release(ctx context.Context, namespace, id, owner string) error {
	key := s.r.key(namespace + ":" + id)
	start := time.Now()
	err := releaseScript.Run(ctx, s.r.client, []string{key}, owner).Err()
	s.r.observeOperation("release", namespace, time.Since(start), err, 0)
	if err != nil {
		return fmt.Errorf("redis: release %s %s: %w", namespace, id, err)
	}
	return nil
}
