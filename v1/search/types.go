package search

import (
	"errors"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/vectordb"
)

// ErrInvalidQuery is returned for a query with neither text nor vector, both,
// or no encoder.
var ErrInvalidQuery = errors.New("search: invalid query")

// Signal categories.
const (
	CategoryVector       = "vector"
	CategoryLegalArea    = "legal_area"
	CategoryDocumentType = "document_type"
	CategoryTemporal     = "temporal"
	CategoryParties      = "parties"
	CategoryPenaltyCap   = "penalty_cap"
)

// Query is a search request. Exactly one of Text and Vector must be set.
type Query struct {
	Text   string
	Vector []float32

	// Encoder is the preferred encoder. Required for vector queries.
	Encoder corpus.EncoderID

	TopN int

	// MinSimilarity drops candidates whose raw cosine similarity is below it.
	MinSimilarity float64

	Filters *vectordb.FilterSet

	// Anchor is the metadata the candidates are compared against. Without
	// an anchor only the vector signal is emitted.
	Anchor *corpus.Metadata

	ExcludeIDs []string
}

// Signal is one named, signed contribution to a result's score.
type Signal struct {
	Category string  `json:"category"`
	Detail   string  `json:"detail"`
	Weight   float64 `json:"weight"`
}

// Result is one ranked search hit.
type Result struct {
	Document      corpus.Document  `json:"document"`
	Score         float64          `json:"score"`
	Similarity    float64          `json:"similarity"`
	VectorEncoder corpus.EncoderID `json:"vector_encoder"`
	Signals       []Signal         `json:"signals"`
}
