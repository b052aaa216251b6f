// Package metrics exposes Prometheus metrics for the engine.
//
// Each process owns an isolated registry whose collectors all carry a constant
// service label. The registry is served on /metrics by an HTTP server whose
// lifecycle is managed by FXModule.
//
// Besides the factory methods (CreateCounter, CreateHistogram, CreateGauge),
// *Metrics implements observability.Observer: every operation reported by the
// rabbit, kafka, minio, redis and qdrant adapters and by the search, clustering,
// embedding and RAG services lands in three shared vectors:
//
//	lexgraph_operations_total{component, operation, status}
//	lexgraph_operation_duration_seconds{component, operation}
//	lexgraph_operation_size{component, operation}
package metrics
