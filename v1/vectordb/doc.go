// Package vectordb defines the vector store port of the engine and its
// PostgreSQL (pgvector) and in-memory implementations. The qdrant package
// provides a third implementation over a Qdrant cluster.
//
// Vectors are keyed by (entity, encoder): a document or chunk stores one
// vector per EncoderID, never a concatenation. Nearest-neighbor queries are
// restricted to one encoder and can be narrowed with a FilterSet over the
// document's legal metadata:
//
//	filters := vectordb.NewFilterSet(
//	    vectordb.Must(
//	        vectordb.NewMatch(vectordb.FieldLegalArea, "tenancy"),
//	        vectordb.NewTimeRange(vectordb.FieldDecisionDate, vectordb.TimeRange{Gte: &from}),
//	    ),
//	    vectordb.MustNot(vectordb.NewMatch(vectordb.FieldDocumentType, "order")),
//	)
//	hits, err := store.Nearest(ctx, vectordb.NearestQuery{
//	    Encoder: "clean-v2",
//	    Vector:  q,
//	    Limit:   20,
//	    Filters: filters,
//	})
package vectordb
