package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/vecmath"
	"github.com/Aleph-Alpha/lexgraph/v1/vectordb"
)

// stubEncoder returns canned vectors and counts calls.
type stubEncoder struct {
	id    corpus.EncoderID
	dim   int
	calls atomic.Int32
	fn    func(ctx context.Context, texts []string) ([][]float32, error)
}

func (s *stubEncoder) ID() corpus.EncoderID { return s.id }
func (s *stubEncoder) Dimension() int       { return s.dim }
func (s *stubEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls.Add(1)
	return s.fn(ctx, texts)
}

func constantVectors(dim int) func(context.Context, []string) ([][]float32, error) {
	return func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			v := make([]float32, dim)
			v[i%dim] = float32(len(texts[i]))
			out[i] = v
		}
		return out, nil
	}
}

func newService(t *testing.T, cache Cache, encoders ...Encoder) *Service {
	t.Helper()
	r := NewRegistry()
	for _, e := range encoders {
		r.Register(e)
	}
	return NewService(ServiceParams{Registry: r, Cache: cache, BatchSize: 2})
}

func TestHashingEncoderDeterministic(t *testing.T) {
	enc := NewHashingEncoder("hash", 64)
	ctx := context.Background()

	a, err := enc.Encode(ctx, []string{"Der Mieter kündigt den Mietvertrag."})
	require.NoError(t, err)
	b, err := enc.Encode(ctx, []string{"Der Mieter kündigt den Mietvertrag."})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a[0], 64)
	assert.InDelta(t, 1.0, vecmath.Norm(a[0]), 1e-6)

	sim, err := vecmath.Cosine(a[0], b[0])
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-9)
}

func TestHashingEncoderRelatedTextsAreCloser(t *testing.T) {
	enc := NewHashingEncoder("hash", 512)
	vecs, err := enc.Encode(context.Background(), []string{
		"termination of the lease by the tenant",
		"the tenant terminated the lease",
		"patent infringement of a pharmaceutical compound",
	})
	require.NoError(t, err)

	near, _ := vecmath.Cosine(vecs[0], vecs[1])
	far, _ := vecmath.Cosine(vecs[0], vecs[2])
	assert.Greater(t, near, far)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"573", "bgb", "kündigung"}, Tokenize("§ 573 BGB: Kündigung!"))
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	enc := &stubEncoder{id: "e", dim: 3, fn: constantVectors(3)}
	svc := newService(t, nil, enc)

	vecs, err := svc.EmbedBatch(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"}, "e")
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	for i, v := range vecs {
		var sum float32
		for _, x := range v {
			sum += x
		}
		assert.Equal(t, float32(i+1), sum)
	}
	// batch size 2 → 3 backend calls
	assert.Equal(t, int32(3), enc.calls.Load())
}

func TestEmbedBatchEmpty(t *testing.T) {
	svc := newService(t, nil, NewHashingEncoder("h", 8))
	vecs, err := svc.EmbedBatch(context.Background(), nil, "h")
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestEmbedBatchFailures(t *testing.T) {
	tests := []struct {
		name string
		fn   func(context.Context, []string) ([][]float32, error)
	}{
		{
			name: "backend error",
			fn: func(context.Context, []string) ([][]float32, error) {
				return nil, errors.New("connection refused")
			},
		},
		{
			name: "wrong count",
			fn: func(_ context.Context, texts []string) ([][]float32, error) {
				return make([][]float32, len(texts)-1), nil
			},
		},
		{
			name: "wrong dimension",
			fn: func(_ context.Context, texts []string) ([][]float32, error) {
				out := make([][]float32, len(texts))
				for i := range out {
					out[i] = []float32{1}
				}
				return out, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := NewMemoryCache()
			svc := newService(t, cache, &stubEncoder{id: "e", dim: 3, fn: tt.fn})

			vecs, err := svc.EmbedBatch(context.Background(), []string{"a", "b"}, "e")
			assert.Nil(t, vecs)
			assert.ErrorIs(t, err, corpus.ErrEncodingFailure)
			assert.True(t, corpus.IsRetryable(err))
			assert.Equal(t, 0, cache.Len())
		})
	}
}

func TestEmbedBatchTimeout(t *testing.T) {
	enc := &stubEncoder{id: "slow", dim: 2, fn: func(ctx context.Context, _ []string) ([][]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	r := NewRegistry()
	r.RegisterWithTimeout(enc, 20*time.Millisecond)
	svc := NewService(ServiceParams{Registry: r})

	start := time.Now()
	_, err := svc.Embed(context.Background(), "text", "slow")
	assert.ErrorIs(t, err, corpus.ErrEncodingFailure)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestEmbedUnknownEncoder(t *testing.T) {
	svc := newService(t, nil)
	_, err := svc.Embed(context.Background(), "text", "missing")
	assert.ErrorIs(t, err, ErrUnknownEncoder)
}

func TestEmbedUsesCache(t *testing.T) {
	enc := &stubEncoder{id: "e", dim: 3, fn: constantVectors(3)}
	cache := NewMemoryCache()
	svc := newService(t, cache, enc)
	ctx := context.Background()

	first, err := svc.EmbedBatch(ctx, []string{"a", "b"}, "e")
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())

	second, err := svc.EmbedBatch(ctx, []string{"b", "a"}, "e")
	require.NoError(t, err)
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, int32(1), enc.calls.Load())
}

func TestRegistryChain(t *testing.T) {
	r := NewRegistry()
	r.Register(NewHashingEncoder("a", 4))
	r.Register(NewHashingEncoder("b", 4))
	r.Register(NewHashingEncoder("c", 4))

	require.NoError(t, r.SetFallbacks("a", "b", "a", "c"))
	assert.Equal(t, []corpus.EncoderID{"a", "b", "c"}, r.Chain("a"))
	assert.Equal(t, []corpus.EncoderID{"b"}, r.Chain("b"))
	assert.Error(t, r.SetFallbacks("a", "zzz"))
	assert.Equal(t, []corpus.EncoderID{"a", "b", "c"}, r.IDs())
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{
		Encoders: []EncoderConfig{
			{ID: "clean", Kind: KindInference, Model: "m", Dimension: 8},
			{ID: "hash", Kind: KindHashing, Dimension: 8},
		},
		Chains: map[string][]string{"clean": {"hash"}},
	}
	assert.Error(t, cfg.Validate(), "inference encoder without endpoint")

	cfg.Endpoint = "http://inference"
	cfg.ServiceToken = "token"
	assert.NoError(t, cfg.Validate())

	cfg.Chains["clean"] = []string{"unknown"}
	assert.Error(t, cfg.Validate())
}

func TestInferenceEncoder(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, "/embeddings", r.URL.Path)

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "legal-embed", req.Model)

		// answer out of order; the encoder must sort by index
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{0, 1}},
				{"index": 0, "embedding": []float32{1, 0}},
			},
		})
	}))
	defer srv.Close()

	enc, err := NewInferenceEncoder(&Config{Endpoint: srv.URL + "/", ServiceToken: "secret"},
		EncoderConfig{ID: "clean", Kind: KindInference, Model: "legal-embed", Dimension: 2})
	require.NoError(t, err)

	vecs, err := enc.Encode(context.Background(), []string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestInferenceEncoderHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	enc, err := NewInferenceEncoder(&Config{Endpoint: srv.URL}, EncoderConfig{ID: "clean", Model: "m", Dimension: 2})
	require.NoError(t, err)

	_, err = enc.Encode(context.Background(), []string{"x"})
	assert.ErrorContains(t, err, "http 503")
	assert.True(t, IsOverloaded(err))

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "overloaded", se.Body)
}

func TestInferenceEncoderDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": []float32{1, 0, 0}}},
		})
	}))
	defer srv.Close()

	enc, err := NewInferenceEncoder(&Config{Endpoint: srv.URL}, EncoderConfig{ID: "clean", Model: "m", Dimension: 2})
	require.NoError(t, err)

	_, err = enc.Encode(context.Background(), []string{"x"})
	assert.ErrorContains(t, err, "returned 3 dimensions, configured 2")
	assert.False(t, IsOverloaded(err))
}

func seedCorpus(t *testing.T) *corpus.MemoryRepository {
	t.Helper()
	repo := corpus.NewMemoryRepository()
	doc := corpus.Document{ID: "d1", Text: "Die Kündigung des Mietvertrags war unwirksam.", Metadata: corpus.Metadata{LegalArea: "tenancy"}}
	chunks := []corpus.Chunk{
		{DocumentID: "d1", Ordinal: 0, Text: "Die Kündigung", Start: 0, End: 14},
		{DocumentID: "d1", Ordinal: 1, Text: "des Mietvertrags war unwirksam.", Start: 15, End: 47},
	}
	require.NoError(t, repo.SaveDocument(context.Background(), doc, chunks))
	return repo
}

func TestIndexDocument(t *testing.T) {
	repo := seedCorpus(t)
	store := vectordb.NewMemoryStore()
	svc := newService(t, nil, NewHashingEncoder("h1", 16), NewHashingEncoder("h2", 8))
	ix := NewIndexer(repo, store, svc, nil)
	ctx := context.Background()

	require.NoError(t, ix.IndexDocument(ctx, "d1", "h1", "h2"))

	docVecs, err := store.DocumentVectors(ctx, "h1", []string{"d1"})
	require.NoError(t, err)
	require.Len(t, docVecs["d1"], 16)

	chunks, err := store.ChunkVectors(ctx, "d1", "h2")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 8)

	doc, err := repo.Document(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, corpus.StatusProcessed, doc.Status)

	// idempotent: identical vectors after re-indexing
	require.NoError(t, ix.IndexDocument(ctx, "d1", "h1", "h2"))
	again, err := store.DocumentVectors(ctx, "h1", []string{"d1"})
	require.NoError(t, err)
	assert.Equal(t, docVecs["d1"], again["d1"])
}

func TestIndexDocumentEncodingFailurePersistsNothing(t *testing.T) {
	repo := seedCorpus(t)
	store := vectordb.NewMemoryStore()
	broken := &stubEncoder{id: "broken", dim: 4, fn: func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("503")
	}}
	svc := newService(t, nil, NewHashingEncoder("h1", 16), broken)
	ix := NewIndexer(repo, store, svc, nil)
	ctx := context.Background()

	err := ix.IndexDocument(ctx, "d1", "h1", "broken")
	assert.ErrorIs(t, err, corpus.ErrEncodingFailure)

	vecs, err := store.DocumentVectors(ctx, "h1", []string{"d1"})
	require.NoError(t, err)
	assert.Empty(t, vecs)

	doc, err := repo.Document(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, corpus.StatusPending, doc.Status)
}

func TestIndexDocumentNotFound(t *testing.T) {
	ix := NewIndexer(corpus.NewMemoryRepository(), vectordb.NewMemoryStore(), newService(t, nil, NewHashingEncoder("h", 4)), nil)
	err := ix.IndexDocument(context.Background(), "nope", "h")
	assert.ErrorIs(t, err, corpus.ErrDocumentNotFound)
	assert.NoError(t, ix.MarkFailed(context.Background(), "nope"))
}
