package corpus

import "context"

// Repository persists documents and their chunks. Chunks are owned by their
// document: replacing or deleting a document replaces or deletes its chunks.
type Repository interface {
	// SaveDocument upserts doc and atomically replaces its chunk list.
	SaveDocument(ctx context.Context, doc Document, chunks []Chunk) error

	// Document returns one document or ErrDocumentNotFound.
	Document(ctx context.Context, id string) (Document, error)

	// Documents returns the documents that exist among ids, keyed by id.
	Documents(ctx context.Context, ids []string) (map[string]Document, error)

	// Chunks returns the chunks of a document ordered by ordinal.
	Chunks(ctx context.Context, documentID string) ([]Chunk, error)

	// EligibleDocumentIDs returns ids of processed documents in ascending order.
	EligibleDocumentIDs(ctx context.Context) ([]string, error)

	// SetStatus updates the processing status of a document.
	SetStatus(ctx context.Context, id string, status DocumentStatus) error

	// DeleteDocument removes a document and everything it owns.
	DeleteDocument(ctx context.Context, id string) error
}
