package rag

import (
	"context"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
)

// Embedder embeds questions. *embedding.Service implements it.
type Embedder interface {
	Embed(ctx context.Context, text string, encoder corpus.EncoderID) ([]float32, error)
	Chain(primary corpus.EncoderID) []corpus.EncoderID
}

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationRequest is the input of a Generator.
type GenerationRequest struct {
	Question string
	Context  []string
	History  []Message
}

// Generator produces an answer from a question and context passages. It may
// be unavailable.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// RetrievedChunk is a chunk with its similarity to the question.
type RetrievedChunk struct {
	corpus.Chunk
	Similarity float64 `json:"similarity"`
}

// Retrieval is the context selected for a question.
type Retrieval struct {
	DocumentID string           `json:"document_id"`
	Chunks     []RetrievedChunk `json:"chunks"`

	// Encoder is the encoder whose chunk vectors were used.
	Encoder corpus.EncoderID `json:"encoder"`

	// FallbackUsed is true when Encoder is not the head of the chain.
	FallbackUsed bool `json:"fallback_used"`

	// Tried lists the encoders consulted, in order, ending with Encoder.
	Tried []corpus.EncoderID `json:"tried"`
}

// AnswerRequest asks a question about one document.
type AnswerRequest struct {
	DocumentID string
	Question   string
	History    []Message
	TopK       int
}

// Answer is a generated answer and the context it was generated from. When
// generation fails the answer is degraded: Text is empty, Context is still
// filled and Err wraps corpus.ErrGenerationUnavailable.
type Answer struct {
	Text           string    `json:"text"`
	Context        Retrieval `json:"context"`
	Degraded       bool      `json:"degraded"`
	DegradedReason string    `json:"degraded_reason,omitempty"`
	Err            error     `json:"-"`
}
