// Package redis wraps go-redis for the two things the engine keeps in Redis:
// the embedding cache and the status of background jobs.
//
// EmbeddingCache stores vectors as little-endian float32 bytes under
// "<prefix>emb:<encoder>:<sha256(text)>" with a TTL, and satisfies
// embedding.Cache. JSONStore keeps small JSON documents (job status records)
// with a TTL.
//
// # FX Module Integration
//
//	app := fx.New(
//	    redis.FXModule, // provides *RedisClient, *EmbeddingCache, *JSONStore
//	    // other modules...
//	)
//
// The client pings Redis on start and closes the pool on stop.
package redis
