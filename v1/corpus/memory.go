package corpus

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository is an in-process Repository for tests and single-node
// development setups.
type MemoryRepository struct {
	mu     sync.RWMutex
	docs   map[string]Document
	chunks map[string][]Chunk
	now    func() time.Time
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		docs:   make(map[string]Document),
		chunks: make(map[string][]Chunk),
		now:    time.Now,
	}
}

// SaveDocument replaces the document and its chunks. CreatedAt survives re-saves.
func (r *MemoryRepository) SaveDocument(_ context.Context, doc Document, chunks []Chunk) error {
	if err := ValidateChunks(doc.ID, chunks); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	if prev, ok := r.docs[doc.ID]; ok {
		doc.CreatedAt = prev.CreatedAt
	} else {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = StatusPending
	}
	doc.Metadata.Parties = append([]string(nil), doc.Metadata.Parties...)

	r.docs[doc.ID] = doc
	r.chunks[doc.ID] = append([]Chunk(nil), chunks...)
	return nil
}

// Document returns the document or ErrDocumentNotFound.
func (r *MemoryRepository) Document(_ context.Context, id string) (Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.docs[id]
	if !ok {
		return Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

// Documents returns the known documents among ids. Unknown ids are skipped.
func (r *MemoryRepository) Documents(_ context.Context, ids []string) (map[string]Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Document, len(ids))
	for _, id := range ids {
		if doc, ok := r.docs[id]; ok {
			out[id] = doc
		}
	}
	return out, nil
}

// Chunks returns a copy of the chunks of documentID in ordinal order.
func (r *MemoryRepository) Chunks(_ context.Context, documentID string) ([]Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.docs[documentID]; !ok {
		return nil, ErrDocumentNotFound
	}
	return append([]Chunk(nil), r.chunks[documentID]...), nil
}

// EligibleDocumentIDs returns the processed documents sorted by id.
func (r *MemoryRepository) EligibleDocumentIDs(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, doc := range r.docs {
		if doc.Status == StatusProcessed {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// SetStatus updates the status of a stored document.
func (r *MemoryRepository) SetStatus(_ context.Context, id string, status DocumentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[id]
	if !ok {
		return ErrDocumentNotFound
	}
	doc.Status = status
	doc.UpdatedAt = r.now().UTC()
	r.docs[id] = doc
	return nil
}

// DeleteDocument removes the document and its chunks. Unknown ids are a no-op.
func (r *MemoryRepository) DeleteDocument(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.docs, id)
	delete(r.chunks, id)
	return nil
}
