package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/observability"
	"github.com/Aleph-Alpha/lexgraph/v1/tracer"
	"github.com/Aleph-Alpha/lexgraph/v1/vecmath"
	"github.com/Aleph-Alpha/lexgraph/v1/vectordb"
)

// Logger is the logging contract of the rag package.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
}

// ServiceParams groups the dependencies of NewService.
type ServiceParams struct {
	Config    Config
	Repo      corpus.Repository
	Store     vectordb.Store
	Embedder  Embedder
	Generator Generator

	Logger   Logger
	Observer observability.Observer
	Tracer   tracer.Spanner
}

// Service selects context chunks for questions about a document and composes
// answers. It is read-only and safe for concurrent use.
type Service struct {
	cfg       Config
	repo      corpus.Repository
	store     vectordb.Store
	embedder  Embedder
	generator Generator
	logger    Logger
	observer  observability.Observer
	spans     tracer.Spanner
}

// NewService returns a Service. A nil Generator makes every answer degraded.
func NewService(p ServiceParams) *Service {
	spans := p.Tracer
	if spans == nil {
		spans = tracer.Noop{}
	}
	return &Service{
		cfg:       p.Config.withDefaults(),
		repo:      p.Repo,
		store:     p.Store,
		embedder:  p.Embedder,
		generator: p.Generator,
		logger:    p.Logger,
		observer:  p.Observer,
		spans:     spans,
	}
}

// Retrieve returns the topK chunks of documentID most similar to question,
// by descending similarity and then ascending ordinal. The first encoder of
// the chain for which the document has chunk vectors is used. It fails with
// corpus.ErrDimensionMismatch when no encoder of the chain can be used.
func (s *Service) Retrieve(ctx context.Context, documentID, question string, topK int) (Retrieval, error) {
	start := time.Now()
	ctx, span := s.spans.StartSpan(ctx, "rag.Retrieve")
	defer span.End()

	r, err := s.retrieve(ctx, documentID, question, topK)

	s.spans.RecordErrorOnSpan(span, err)
	s.spans.SetAttributes(span, map[string]interface{}{
		"rag.document_id":   documentID,
		"rag.encoder":       string(r.Encoder),
		"rag.fallback_used": r.FallbackUsed,
		"rag.chunks":        len(r.Chunks),
	})
	observability.Observe(s.observer, observability.OperationContext{
		Component: "rag",
		Operation: "retrieve",
		Resource:  string(r.Encoder),
		Duration:  time.Since(start),
		Error:     err,
		Size:      int64(len(r.Chunks)),
	})
	return r, err
}

func (s *Service) retrieve(ctx context.Context, documentID, question string, topK int) (Retrieval, error) {
	if question == "" {
		return Retrieval{}, errors.New("rag: question is empty")
	}
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}
	if _, err := s.repo.Document(ctx, documentID); err != nil {
		return Retrieval{}, err
	}
	chunks, err := s.repo.Chunks(ctx, documentID)
	if err != nil {
		return Retrieval{}, fmt.Errorf("rag: read chunks: %w", err)
	}

	chain := s.embedder.Chain(corpus.EncoderID(s.cfg.DefaultEncoder))
	out := Retrieval{DocumentID: documentID}
	var embedErr error
	for i, enc := range chain {
		out.Tried = append(out.Tried, enc)

		vectors, err := s.store.ChunkVectors(ctx, documentID, enc)
		if err != nil {
			return Retrieval{}, fmt.Errorf("rag: read chunk vectors for %s: %w", enc, err)
		}
		if len(vectors) == 0 {
			continue
		}

		qv, err := s.embedder.Embed(ctx, question, enc)
		if err != nil {
			if embedErr == nil {
				embedErr = err
			}
			s.warn("Question embedding failed, trying next encoder", err, enc)
			continue
		}
		if len(qv) != len(vectors[0]) {
			s.warn("Question and chunk vectors differ in dimension, trying next encoder", nil, enc)
			continue
		}

		out.Encoder = enc
		out.FallbackUsed = i > 0
		out.Chunks = rank(chunks, vectors, qv, topK)
		return out, nil
	}

	if embedErr != nil {
		return out, embedErr
	}
	return out, corpus.DimensionMismatch("retrieve",
		fmt.Errorf("document %s has no chunk vectors for any of %v", documentID, chain))
}

// rank scores the chunks that have a vector. vectors[i] belongs to ordinal i.
func rank(chunks []corpus.Chunk, vectors [][]float32, question []float32, topK int) []RetrievedChunk {
	scored := make([]RetrievedChunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Ordinal < 0 || c.Ordinal >= len(vectors) {
			continue
		}
		sim, err := vecmath.Cosine(question, vectors[c.Ordinal])
		if err != nil {
			continue
		}
		scored = append(scored, RetrievedChunk{Chunk: c, Similarity: sim})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].Ordinal < scored[j].Ordinal
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// Answer retrieves context for req and asks the generator. A failing or
// missing generator does not fail the call: the answer comes back degraded
// with the retrieved context. Retrieval errors are returned as is.
func (s *Service) Answer(ctx context.Context, req AnswerRequest) (Answer, error) {
	ctx, span := s.spans.StartSpan(ctx, "rag.Answer")
	defer span.End()

	retrieval, err := s.Retrieve(ctx, req.DocumentID, req.Question, req.TopK)
	if err != nil {
		s.spans.RecordErrorOnSpan(span, err)
		return Answer{}, err
	}

	ans := Answer{Context: retrieval}
	if s.generator == nil {
		return degrade(ans, corpus.GenerationUnavailable("answer", errors.New("no generator configured"))), nil
	}

	passages := make([]string, len(retrieval.Chunks))
	for i, c := range retrieval.Chunks {
		passages[i] = c.Text
	}

	start := time.Now()
	gctx, cancel := context.WithTimeout(ctx, s.cfg.GenerationTimeout)
	defer cancel()
	text, err := s.generator.Generate(gctx, GenerationRequest{
		Question: req.Question,
		Context:  passages,
		History:  req.History,
	})
	observability.Observe(s.observer, observability.OperationContext{
		Component: "rag",
		Operation: "generate",
		Duration:  time.Since(start),
		Error:     err,
		Size:      int64(len(text)),
	})
	if err != nil {
		s.warn("Generation failed, returning context only", err, retrieval.Encoder)
		s.spans.SetAttributes(span, map[string]interface{}{"rag.degraded": true})
		return degrade(ans, corpus.GenerationUnavailable("answer", err)), nil
	}

	ans.Text = text
	return ans, nil
}

func degrade(ans Answer, err error) Answer {
	ans.Degraded = true
	ans.DegradedReason = err.Error()
	ans.Err = err
	return ans
}

func (s *Service) warn(msg string, err error, enc corpus.EncoderID) {
	if s.logger != nil {
		s.logger.Warn(msg, err, map[string]interface{}{"encoder": string(enc)})
	}
}
