package vectordb

import (
	"context"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
)

// Store persists document- and chunk-level vectors and answers nearest-neighbor
// queries. Implementations must make every write call atomic: either all
// vectors of the call are stored or none are.
type Store interface {
	// UpsertDocumentVectors stores one vector per document for encoder,
	// overwriting previous vectors of the same (document, encoder).
	UpsertDocumentVectors(ctx context.Context, encoder corpus.EncoderID, vectors []DocumentVector) error

	// ReplaceChunkVectors replaces all chunk vectors of documentID for
	// encoder. vectors[i] belongs to the chunk with ordinal i.
	ReplaceChunkVectors(ctx context.Context, documentID string, encoder corpus.EncoderID, vectors [][]float32) error

	// WriteDocument stores a document vector and replaces its chunk vectors
	// for encoder as one unit of work.
	WriteDocument(ctx context.Context, encoder corpus.EncoderID, doc DocumentVector, chunks [][]float32) error

	// Nearest returns the documents whose encoder vector is most similar to
	// q.Vector, by descending cosine similarity then ascending id.
	Nearest(ctx context.Context, q NearestQuery) ([]Neighbor, error)

	// DocumentVectors bulk-reads encoder vectors for ids. Documents without a
	// vector for encoder are absent from the result.
	DocumentVectors(ctx context.Context, encoder corpus.EncoderID, ids []string) (map[string][]float32, error)

	// ChunkVectors returns the chunk vectors of a document ordered by ordinal,
	// or an empty slice if the document has none for encoder.
	ChunkVectors(ctx context.Context, documentID string, encoder corpus.EncoderID) ([][]float32, error)

	// DeleteDocument removes every vector of a document.
	DeleteDocument(ctx context.Context, documentID string) error
}
