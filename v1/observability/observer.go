// Package observability defines the hook through which infrastructure adapters
// and engine services report the operations they perform.
//
// Adapters call ObserveOperation after every produce, consume, put, get, encode
// or search operation. The metrics package provides an Observer that turns
// these notifications into Prometheus counters and histograms; tests use small
// recording observers.
package observability

import "time"

// Observer receives a notification for every observed operation.
// Implementations must be safe for concurrent use and must not block.
type Observer interface {
	ObserveOperation(ctx OperationContext)
}

// OperationContext describes a single completed operation.
type OperationContext struct {
	// Component is the reporting package, e.g. "rabbit", "qdrant", "search".
	Component string

	// Operation is the verb, e.g. "produce", "consume", "encode", "query".
	Operation string

	// Resource is the primary target (queue, topic, bucket, collection, encoder).
	Resource string

	// SubResource is an optional secondary target (routing key, object key).
	SubResource string

	// Duration is the wall time the operation took.
	Duration time.Duration

	// Error is the operation error, nil on success.
	Error error

	// Size is the payload size in bytes or the number of items, depending on the operation.
	Size int64

	// Metadata carries optional low-cardinality extra labels.
	Metadata map[string]string
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx OperationContext)

// ObserveOperation calls f(ctx).
func (f ObserverFunc) ObserveOperation(ctx OperationContext) {
	f(ctx)
}

// Status returns "success" or "error" depending on ctx.Error.
func (ctx OperationContext) Status() string {
	if ctx.Error != nil {
		return "error"
	}
	return "success"
}

// Observe reports an operation to observer if it is non-nil.
func Observe(observer Observer, ctx OperationContext) {
	if observer == nil {
		return
	}
	observer.ObserveOperation(ctx)
}
