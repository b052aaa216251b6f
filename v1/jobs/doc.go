// Package jobs runs embedding and clustering work in the background.
//
// A Dispatcher turns a request into a Job, records it as queued in the
// Tracker and publishes it on the work queue. It returns a Handle with the
// job id and an estimated duration. Clustering and topic triggers are
// rejected with corpus.ErrConcurrentRunConflict while a run of the same
// family holds its lock; they are never queued behind it.
//
// A Worker consumes the queue and runs jobs on a bounded goroutine pool.
// Delivery is at least once, so every handler is idempotent: re-indexing a
// document stores identical vectors and a duplicate clustering job produces
// another run, not a corrupted one. A job already recorded as succeeded is
// acknowledged without running again.
//
// Failure handling follows the corpus error taxonomy:
//
//	retryable (encoding failure)      requeued until MaxAttempts, then dead-lettered
//	terminal (insufficient data,
//	  concurrent run, unknown doc)    recorded as failed and acknowledged
//	anything else                     recorded as failed and dead-lettered
package jobs
