package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/observability"
)

// ErrUnknownEncoder is returned for an encoder id that is not registered.
var ErrUnknownEncoder = errors.New("embedding: unknown encoder")

// Logger is the logging contract of the embedding package.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
}

// ServiceParams groups the dependencies of NewService.
type ServiceParams struct {
	Registry *Registry

	// Cache is optional.
	Cache Cache

	// BatchSize caps texts per backend call. Default 32.
	BatchSize int

	Logger   Logger
	Observer observability.Observer
}

// Service embeds texts with registered encoders.
type Service struct {
	registry  *Registry
	cache     Cache
	batchSize int
	logger    Logger
	observer  observability.Observer
}

// NewService returns a Service.
func NewService(p ServiceParams) *Service {
	batch := p.BatchSize
	if batch <= 0 {
		batch = 32
	}
	return &Service{
		registry:  p.Registry,
		cache:     p.Cache,
		batchSize: batch,
		logger:    p.Logger,
		observer:  p.Observer,
	}
}

// Registry returns the encoder registry of the service.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Chain returns the fallback chain starting at primary.
func (s *Service) Chain(primary corpus.EncoderID) []corpus.EncoderID {
	return s.registry.Chain(primary)
}

// Dimension returns the output dimension of a registered encoder.
func (s *Service) Dimension(encoder corpus.EncoderID) (int, bool) {
	enc, ok := s.registry.Encoder(encoder)
	if !ok {
		return 0, false
	}
	return enc.Dimension(), true
}

// Embed returns the vector of text under encoder.
func (s *Service) Embed(ctx context.Context, text string, encoder corpus.EncoderID) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text}, encoder)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per text, in input order. Either every vector
// is returned or the call fails with corpus.ErrEncodingFailure; a partial
// result is never returned.
func (s *Service) EmbedBatch(ctx context.Context, texts []string, encoder corpus.EncoderID) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	entry, ok := s.registry.entry(encoder)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoder, encoder)
	}

	start := time.Now()
	out, hits, err := s.embed(ctx, entry, texts)
	observability.Observe(s.observer, observability.OperationContext{
		Component: "embedding",
		Operation: "encode",
		Resource:  string(encoder),
		Duration:  time.Since(start),
		Error:     err,
		Size:      int64(len(texts)),
		Metadata:  map[string]string{"cache_hits": fmt.Sprint(hits)},
	})
	if err != nil {
		if IsOverloaded(err) {
			s.warn("Encoder backend is overloaded", err, encoder)
		}
		return nil, err
	}
	return out, nil
}

func (s *Service) embed(ctx context.Context, entry encoderEntry, texts []string) ([][]float32, int, error) {
	enc := entry.encoder
	out := make([][]float32, len(texts))

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = CacheKey(enc.ID(), t)
	}

	hits := 0
	if s.cache != nil {
		cached, err := s.cache.GetVectors(ctx, keys)
		if err != nil {
			s.warn("Embedding cache read failed", err, enc.ID())
		}
		for i, k := range keys {
			if v, ok := cached[k]; ok && len(v) == enc.Dimension() {
				out[i] = v
				hits++
			}
		}
	}

	var missing []int
	for i := range texts {
		if out[i] == nil {
			missing = append(missing, i)
		}
	}

	fresh := make(map[string][]float32, len(missing))
	for startIdx := 0; startIdx < len(missing); startIdx += s.batchSize {
		idx := missing[startIdx:min(startIdx+s.batchSize, len(missing))]
		batch := make([]string, len(idx))
		for j, i := range idx {
			batch[j] = texts[i]
		}

		vecs, err := s.encodeBounded(ctx, entry, batch)
		if err != nil {
			return nil, hits, err
		}
		for j, i := range idx {
			out[i] = vecs[j]
			fresh[keys[i]] = vecs[j]
		}
	}

	if s.cache != nil && len(fresh) > 0 {
		if err := s.cache.SetVectors(ctx, fresh); err != nil {
			s.warn("Embedding cache write failed", err, enc.ID())
		}
	}
	return out, hits, nil
}

// encodeBounded runs one backend call under the encoder's timeout and
// validates count and dimension of the result.
func (s *Service) encodeBounded(ctx context.Context, entry encoderEntry, batch []string) ([][]float32, error) {
	enc := entry.encoder
	op := "encode " + string(enc.ID())

	callCtx, cancel := context.WithTimeout(ctx, entry.timeout)
	defer cancel()

	vecs, err := enc.Encode(callCtx, batch)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, corpus.EncodingFailure(op, fmt.Errorf("timed out after %s: %w", entry.timeout, err))
		}
		return nil, corpus.EncodingFailure(op, err)
	}
	if len(vecs) != len(batch) {
		return nil, corpus.EncodingFailure(op, fmt.Errorf("backend returned %d vectors for %d texts", len(vecs), len(batch)))
	}
	for i, v := range vecs {
		if len(v) != enc.Dimension() {
			return nil, corpus.EncodingFailure(op, fmt.Errorf("vector %d has dimension %d, expected %d", i, len(v), enc.Dimension()))
		}
	}
	return vecs, nil
}

func (s *Service) warn(msg string, err error, encoder corpus.EncoderID) {
	if s.logger != nil {
		s.logger.Warn(msg, err, map[string]interface{}{"encoder": string(encoder)})
	}
}
