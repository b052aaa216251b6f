package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
)

// InferenceEncoder calls the OpenAI-compatible /embeddings endpoint of the
// inference service.
type InferenceEncoder struct {
	id           corpus.EncoderID
	model        string
	dimension    int
	baseURL      string
	serviceToken string
	httpClient   *http.Client
}

// NewInferenceEncoder builds an encoder for model with the endpoint settings of cfg.
func NewInferenceEncoder(cfg *Config, enc EncoderConfig) (*InferenceEncoder, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("inference: missing EMBEDDING_ENDPOINT")
	}

	timeout := cfg.HTTPTimeoutS
	if timeout <= 0 {
		timeout = 30
	}

	return &InferenceEncoder{
		id:           enc.encoderID(),
		model:        enc.Model,
		dimension:    enc.Dimension,
		baseURL:      strings.TrimRight(cfg.Endpoint, "/"),
		serviceToken: cfg.ServiceToken,
		httpClient:   &http.Client{Timeout: time.Duration(timeout) * time.Second},
	}, nil
}

func (e *InferenceEncoder) ID() corpus.EncoderID { return e.id }

func (e *InferenceEncoder) Dimension() int { return e.dimension }

// Encode generates embeddings for texts. The response is reordered by the
// index field so that vectors match input order.
func (e *InferenceEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("inference: no texts provided")
	}

	reqBody := map[string]any{
		"model": e.model,
		"input": texts,
	}

	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}

	if err := e.postJSON(ctx, e.baseURL+"/embeddings", reqBody, &parsed); err != nil {
		return nil, err
	}

	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("inference: got %d embeddings for %d texts", len(parsed.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(texts) || out[d.Index] != nil {
			return nil, fmt.Errorf("inference: invalid or duplicate index %d", d.Index)
		}
		if len(d.Embedding) != e.dimension {
			return nil, fmt.Errorf("inference: encoder %s returned %d dimensions, configured %d", e.id, len(d.Embedding), e.dimension)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
