package vectordb

import (
	"errors"
	"fmt"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
)

// ErrInvalidVector is returned for empty or non-uniform vector sets.
var ErrInvalidVector = errors.New("vectordb: invalid vector")

// DocumentVector is a document's vector plus the metadata indexed with it for
// filtering.
type DocumentVector struct {
	DocumentID string
	Vector     []float32
	Metadata   corpus.Metadata
}

// NearestQuery is a nearest-neighbor request.
type NearestQuery struct {
	Encoder corpus.EncoderID
	Vector  []float32

	// Limit is the maximum number of neighbors returned. Must be positive.
	Limit int

	// Filters restricts candidates by document metadata. Optional.
	Filters *FilterSet

	// ExcludeIDs are never returned.
	ExcludeIDs []string
}

// Validate checks the query for obvious mistakes.
func (q NearestQuery) Validate() error {
	if q.Encoder == "" {
		return fmt.Errorf("%w: encoder is required", ErrInvalidVector)
	}
	if len(q.Vector) == 0 {
		return fmt.Errorf("%w: query vector is empty", ErrInvalidVector)
	}
	if q.Limit <= 0 {
		return fmt.Errorf("vectordb: limit must be positive, got %d", q.Limit)
	}
	return nil
}

// Neighbor is one nearest-neighbor hit.
type Neighbor struct {
	DocumentID string
	Similarity float64
}

// uniformDimension returns the common length of vectors or an error.
func uniformDimension(vectors [][]float32) (int, error) {
	if len(vectors) == 0 {
		return 0, nil
	}
	dim := len(vectors[0])
	if dim == 0 {
		return 0, fmt.Errorf("%w: zero-length vector", ErrInvalidVector)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("%w: vector %d has dimension %d, expected %d", ErrInvalidVector, i, len(v), dim)
		}
	}
	return dim, nil
}

// Payload returns the filterable fields of meta keyed by the Field* names.
// Empty values are omitted.
func Payload(meta corpus.Metadata) map[string]any {
	p := make(map[string]any)
	if meta.LegalArea != "" {
		p[FieldLegalArea] = meta.LegalArea
	}
	if meta.DocumentType != "" {
		p[FieldDocumentType] = meta.DocumentType
	}
	if meta.CaseNumber != "" {
		p[FieldCaseNumber] = meta.CaseNumber
	}
	if meta.Court != "" {
		p[FieldCourt] = meta.Court
	}
	if d := meta.ReferenceDate(); d != nil {
		p[FieldDecisionDate] = d.UTC()
	}
	if len(meta.Parties) > 0 {
		parties := make([]any, len(meta.Parties))
		for i, party := range meta.Parties {
			parties[i] = party
		}
		p[FieldParties] = parties
	}
	return p
}
