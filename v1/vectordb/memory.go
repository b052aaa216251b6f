package vectordb

import (
	"context"
	"sort"
	"sync"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/vecmath"
)

type memoryEntry struct {
	vector  []float32
	payload map[string]any
}

// MemoryStore is an exact, in-process Store. Nearest is a linear scan.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[corpus.EncoderID]map[string]memoryEntry
	chunks map[corpus.EncoderID]map[string][][]float32
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[corpus.EncoderID]map[string]memoryEntry),
		chunks: make(map[corpus.EncoderID]map[string][][]float32),
	}
}

func (s *MemoryStore) UpsertDocumentVectors(_ context.Context, encoder corpus.EncoderID, vectors []DocumentVector) error {
	raw := make([][]float32, len(vectors))
	for i, v := range vectors {
		raw[i] = v.Vector
	}
	if _, err := uniformDimension(raw); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.docs[encoder]
	if !ok {
		byID = make(map[string]memoryEntry)
		s.docs[encoder] = byID
	}
	for _, v := range vectors {
		byID[v.DocumentID] = memoryEntry{vector: clone(v.Vector), payload: Payload(v.Metadata)}
	}
	return nil
}

func (s *MemoryStore) ReplaceChunkVectors(_ context.Context, documentID string, encoder corpus.EncoderID, vectors [][]float32) error {
	if _, err := uniformDimension(vectors); err != nil {
		return err
	}

	copied := make([][]float32, len(vectors))
	for i, v := range vectors {
		copied[i] = clone(v)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.chunks[encoder]
	if !ok {
		byID = make(map[string][][]float32)
		s.chunks[encoder] = byID
	}
	if len(copied) == 0 {
		delete(byID, documentID)
		return nil
	}
	byID[documentID] = copied
	return nil
}

func (s *MemoryStore) WriteDocument(ctx context.Context, encoder corpus.EncoderID, doc DocumentVector, chunks [][]float32) error {
	if _, err := uniformDimension([][]float32{doc.Vector}); err != nil {
		return err
	}
	if _, err := uniformDimension(chunks); err != nil {
		return err
	}
	if err := s.UpsertDocumentVectors(ctx, encoder, []DocumentVector{doc}); err != nil {
		return err
	}
	return s.ReplaceChunkVectors(ctx, doc.DocumentID, encoder, chunks)
}

func (s *MemoryStore) Nearest(_ context.Context, q NearestQuery) ([]Neighbor, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	excluded := make(map[string]struct{}, len(q.ExcludeIDs))
	for _, id := range q.ExcludeIDs {
		excluded[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []Neighbor
	for id, e := range s.docs[q.Encoder] {
		if _, skip := excluded[id]; skip {
			continue
		}
		if len(e.vector) != len(q.Vector) {
			continue
		}
		if !q.Filters.Matches(e.payload) {
			continue
		}
		sim, err := vecmath.Cosine(q.Vector, e.vector)
		if err != nil {
			return nil, err
		}
		hits = append(hits, Neighbor{DocumentID: id, Similarity: sim})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].DocumentID < hits[j].DocumentID
	})
	if len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}

func (s *MemoryStore) DocumentVectors(_ context.Context, encoder corpus.EncoderID, ids []string) (map[string][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]float32, len(ids))
	byID := s.docs[encoder]
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out[id] = clone(e.vector)
		}
	}
	return out, nil
}

func (s *MemoryStore) ChunkVectors(_ context.Context, documentID string, encoder corpus.EncoderID) ([][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.chunks[encoder][documentID]
	out := make([][]float32, len(stored))
	for i, v := range stored {
		out[i] = clone(v)
	}
	return out, nil
}

func (s *MemoryStore) DeleteDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, byID := range s.docs {
		delete(byID, documentID)
	}
	for _, byID := range s.chunks {
		delete(byID, documentID)
	}
	return nil
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
