// Package corpus defines the documents and chunks the engine works on, the
// engine-wide error taxonomy, and the document repository with a PostgreSQL
// and an in-memory implementation.
package corpus

import (
	"fmt"
	"time"
)

// EncoderID identifies a text-to-vector model version with a fixed output dimension.
type EncoderID string

// DocumentStatus tracks a document through ingestion.
type DocumentStatus string

const (
	// StatusPending documents have text but no complete vector set yet.
	StatusPending DocumentStatus = "pending"
	// StatusProcessed documents are fully embedded and eligible for clustering.
	StatusProcessed DocumentStatus = "processed"
	// StatusFailed documents could not be embedded.
	StatusFailed DocumentStatus = "failed"
)

// Metadata is the structured legal metadata of a document.
type Metadata struct {
	CaseNumber   string     `json:"case_number,omitempty"`
	Court        string     `json:"court,omitempty"`
	LegalArea    string     `json:"legal_area,omitempty"`
	DocumentType string     `json:"document_type,omitempty"`
	Parties      []string   `json:"parties,omitempty"`
	DecisionDate *time.Time `json:"decision_date,omitempty"`
	FiledDate    *time.Time `json:"filed_date,omitempty"`
}

// ReferenceDate is the date used for temporal comparisons: the decision date
// when known, otherwise the filing date.
func (m Metadata) ReferenceDate() *time.Time {
	if m.DecisionDate != nil {
		return m.DecisionDate
	}
	return m.FiledDate
}

// Document is a legal document with its cleaned text.
type Document struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Metadata  Metadata       `json:"metadata"`
	Status    DocumentStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Chunk is an ordered, possibly overlapping window of a document's text.
// Start and End are byte offsets into Document.Text.
type Chunk struct {
	DocumentID string `json:"document_id"`
	Ordinal    int    `json:"ordinal"`
	Text       string `json:"text"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

// ValidateChunks checks that chunks belong to documentID and that their
// ordinals are contiguous from zero in slice order.
func ValidateChunks(documentID string, chunks []Chunk) error {
	for i, c := range chunks {
		if c.DocumentID != documentID {
			return fmt.Errorf("chunk %d belongs to document %q, expected %q", i, c.DocumentID, documentID)
		}
		if c.Ordinal != i {
			return fmt.Errorf("chunk ordinals must be contiguous from zero: position %d has ordinal %d", i, c.Ordinal)
		}
		if c.Start < 0 || c.End < c.Start {
			return fmt.Errorf("chunk %d has invalid span [%d, %d)", i, c.Start, c.End)
		}
	}
	return nil
}
