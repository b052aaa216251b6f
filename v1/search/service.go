package search

import (
	"context"
	"fmt"
	"time"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/observability"
	"github.com/Aleph-Alpha/lexgraph/v1/tracer"
	"github.com/Aleph-Alpha/lexgraph/v1/vectordb"
)

// Embedder embeds query text. *embedding.Service implements it.
type Embedder interface {
	Embed(ctx context.Context, text string, encoder corpus.EncoderID) ([]float32, error)
	Chain(primary corpus.EncoderID) []corpus.EncoderID
	Dimension(encoder corpus.EncoderID) (int, bool)
}

// Logger is the logging contract of the search package.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
}

// ServiceParams groups the dependencies of NewService.
type ServiceParams struct {
	Config   Config
	Repo     corpus.Repository
	Store    vectordb.Store
	Embedder Embedder

	Logger   Logger
	Observer observability.Observer
	Tracer   tracer.Spanner
}

// Service answers hybrid search and similar-document queries. It is
// read-only and safe for concurrent use.
type Service struct {
	cfg      Config
	repo     corpus.Repository
	store    vectordb.Store
	embedder Embedder
	scorer   *Scorer
	logger   Logger
	observer observability.Observer
	spans    tracer.Spanner
}

// NewService returns a Service.
func NewService(p ServiceParams) *Service {
	cfg := p.Config.withDefaults()
	spans := p.Tracer
	if spans == nil {
		spans = tracer.Noop{}
	}
	return &Service{
		cfg:      cfg,
		repo:     p.Repo,
		store:    p.Store,
		embedder: p.Embedder,
		scorer:   NewScorer(cfg.Weights),
		logger:   p.Logger,
		observer: p.Observer,
		spans:    spans,
	}
}

type candidate struct {
	id         string
	similarity float64
	encoder    corpus.EncoderID
}

// Search runs q and returns at most q.TopN ranked results. An empty slice
// means nothing passed MinSimilarity or the filters.
func (s *Service) Search(ctx context.Context, q Query) ([]Result, error) {
	start := time.Now()
	ctx, span := s.spans.StartSpan(ctx, "search.Search")
	defer span.End()

	results, err := s.search(ctx, q)

	s.spans.RecordErrorOnSpan(span, err)
	s.spans.SetAttributes(span, map[string]interface{}{
		"search.encoder": string(q.Encoder),
		"search.text":    q.Text != "",
		"search.results": len(results),
	})
	observability.Observe(s.observer, observability.OperationContext{
		Component: "search",
		Operation: "search",
		Resource:  string(q.Encoder),
		Duration:  time.Since(start),
		Error:     err,
		Size:      int64(len(results)),
	})
	return results, err
}

func (s *Service) search(ctx context.Context, q Query) ([]Result, error) {
	if (q.Text == "") == (len(q.Vector) == 0) {
		return nil, fmt.Errorf("%w: exactly one of text or vector is required", ErrInvalidQuery)
	}
	if q.Encoder == "" {
		q.Encoder = corpus.EncoderID(s.cfg.DefaultEncoder)
	}
	if q.Encoder == "" {
		return nil, fmt.Errorf("%w: no encoder", ErrInvalidQuery)
	}
	topN := q.TopN
	if topN <= 0 {
		topN = s.cfg.DefaultTopN
	}
	limit := topN * s.cfg.OverFetch

	var (
		cands []candidate
		err   error
	)
	if len(q.Vector) > 0 {
		cands, err = s.vectorCandidates(ctx, q, limit)
	} else {
		cands, err = s.textCandidates(ctx, q, limit)
	}
	if err != nil {
		return nil, err
	}
	return s.rank(ctx, q, cands, topN)
}

func (s *Service) vectorCandidates(ctx context.Context, q Query, limit int) ([]candidate, error) {
	if dim, ok := s.embedder.Dimension(q.Encoder); ok && dim != len(q.Vector) {
		return nil, corpus.DimensionMismatch("search",
			fmt.Errorf("query vector has %d dimensions, encoder %s produces %d", len(q.Vector), q.Encoder, dim))
	}

	neighbors, err := s.store.Nearest(ctx, vectordb.NearestQuery{
		Encoder:    q.Encoder,
		Vector:     q.Vector,
		Limit:      limit,
		Filters:    q.Filters,
		ExcludeIDs: q.ExcludeIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("search: nearest neighbors: %w", err)
	}

	cands := make([]candidate, len(neighbors))
	for i, n := range neighbors {
		cands[i] = candidate{id: n.DocumentID, similarity: n.Similarity, encoder: q.Encoder}
	}
	return cands, nil
}

// textCandidates walks the encoder chain. A document found under a later
// encoder is kept only if it has no vector under any earlier encoder; such a
// document either was already scored or fell outside the earlier fetch.
func (s *Service) textCandidates(ctx context.Context, q Query, limit int) ([]candidate, error) {
	var (
		cands    []candidate
		earlier  []corpus.EncoderID
		firstErr error
		embedded bool
	)
	exclude := append([]string(nil), q.ExcludeIDs...)

	for _, enc := range s.embedder.Chain(q.Encoder) {
		qv, err := s.embedder.Embed(ctx, q.Text, enc)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if s.logger != nil {
				s.logger.Warn("Query embedding failed, trying next encoder", err, map[string]interface{}{
					"encoder": string(enc),
				})
			}
			continue
		}
		embedded = true

		neighbors, err := s.store.Nearest(ctx, vectordb.NearestQuery{
			Encoder:    enc,
			Vector:     qv,
			Limit:      limit,
			Filters:    q.Filters,
			ExcludeIDs: exclude,
		})
		if err != nil {
			return nil, fmt.Errorf("search: nearest neighbors for %s: %w", enc, err)
		}

		covered, err := s.coveredByEarlier(ctx, earlier, neighbors)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbors {
			if covered[n.DocumentID] {
				continue
			}
			cands = append(cands, candidate{id: n.DocumentID, similarity: n.Similarity, encoder: enc})
			exclude = append(exclude, n.DocumentID)
		}
		earlier = append(earlier, enc)
	}

	if !embedded && firstErr != nil {
		return nil, firstErr
	}
	return cands, nil
}

func (s *Service) coveredByEarlier(ctx context.Context, earlier []corpus.EncoderID, neighbors []vectordb.Neighbor) (map[string]bool, error) {
	covered := map[string]bool{}
	if len(earlier) == 0 || len(neighbors) == 0 {
		return covered, nil
	}
	ids := make([]string, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.DocumentID
	}
	for _, enc := range earlier {
		vecs, err := s.store.DocumentVectors(ctx, enc, ids)
		if err != nil {
			return nil, fmt.Errorf("search: vector coverage for %s: %w", enc, err)
		}
		for id := range vecs {
			covered[id] = true
		}
	}
	return covered, nil
}

func (s *Service) rank(ctx context.Context, q Query, cands []candidate, topN int) ([]Result, error) {
	kept := cands[:0]
	for _, c := range cands {
		if q.MinSimilarity > 0 && c.similarity < q.MinSimilarity {
			continue
		}
		kept = append(kept, c)
	}
	if len(kept) == 0 {
		return []Result{}, nil
	}

	ids := make([]string, len(kept))
	for i, c := range kept {
		ids[i] = c.id
	}
	docs, err := s.repo.Documents(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("search: load documents: %w", err)
	}

	results := make([]Result, 0, len(kept))
	for _, c := range kept {
		doc, ok := docs[c.id]
		if !ok {
			continue
		}
		signals, score := s.scorer.Score(c.similarity, c.encoder, doc.Metadata, q.Anchor)
		results = append(results, Result{
			Document:      doc,
			Score:         score,
			Similarity:    c.similarity,
			VectorEncoder: c.encoder,
			Signals:       signals,
		})
	}

	Rank(results)
	if len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}

// SimilarDocuments returns the documents most similar to documentID, using its
// own vector as the query and its metadata as the anchor. The first encoder of
// the default chain for which the document has a vector is used.
func (s *Service) SimilarDocuments(ctx context.Context, documentID string, topN int) ([]Result, error) {
	doc, err := s.repo.Document(ctx, documentID)
	if err != nil {
		return nil, err
	}

	chain := s.embedder.Chain(corpus.EncoderID(s.cfg.DefaultEncoder))
	for _, enc := range chain {
		vecs, err := s.store.DocumentVectors(ctx, enc, []string{documentID})
		if err != nil {
			return nil, fmt.Errorf("search: read vector of %s: %w", documentID, err)
		}
		v, ok := vecs[documentID]
		if !ok {
			continue
		}
		meta := doc.Metadata
		return s.Search(ctx, Query{
			Vector:     v,
			Encoder:    enc,
			TopN:       topN,
			Anchor:     &meta,
			ExcludeIDs: []string{documentID},
		})
	}

	return nil, corpus.DimensionMismatch("search.similar",
		fmt.Errorf("document %s has no vector for encoders %v", documentID, chain))
}
