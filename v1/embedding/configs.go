package embedding

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
)

// Encoder kinds.
const (
	KindInference = "inference"
	KindHashing   = "hashing"
)

// EMBEDDING_ENDPOINT must point to the root of the OpenAI-compatible inference
// service (no /embeddings appended).

// Config configures the encoders and the fallback chains.
type Config struct {
	// Endpoint is the base URL of the inference API.
	Endpoint string `yaml:"endpoint"`

	// ServiceToken is sent as a bearer token. Usually set via EMBEDDING_SERVICE_TOKEN.
	ServiceToken string `yaml:"-"`

	// HTTPTimeoutS is the HTTP client timeout in seconds (default 30).
	HTTPTimeoutS int `yaml:"http_timeout_seconds"`

	// BatchSize caps the number of texts per backend request (default 32).
	BatchSize int `yaml:"batch_size"`

	Encoders []EncoderConfig `yaml:"encoders"`

	// Chains maps an encoder to the encoders tried after it, in order.
	Chains map[string][]string `yaml:"chains"`
}

// EncoderConfig describes one encoder.
type EncoderConfig struct {
	ID        string        `yaml:"id"`
	Kind      string        `yaml:"kind"`
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension"`
	Timeout   time.Duration `yaml:"timeout"`
}

// NewConfig returns a config with a single hashing encoder and the endpoint
// settings read from the environment.
func NewConfig() *Config {
	timeout := 30
	if v := os.Getenv("EMBEDDING_HTTP_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			timeout = n
		}
	}

	return &Config{
		Endpoint:     os.Getenv("EMBEDDING_ENDPOINT"),
		ServiceToken: os.Getenv("EMBEDDING_SERVICE_TOKEN"),
		HTTPTimeoutS: timeout,
		BatchSize:    32,
		Encoders: []EncoderConfig{
			{ID: "hashing-v1", Kind: KindHashing, Dimension: 256},
		},
	}
}

// Validate ensures required fields are present.
func (c *Config) Validate() error {
	if len(c.Encoders) == 0 {
		return fmt.Errorf("embedding: no encoders configured")
	}

	seen := make(map[string]bool, len(c.Encoders))
	for _, e := range c.Encoders {
		if e.ID == "" {
			return fmt.Errorf("embedding: encoder without id")
		}
		if seen[e.ID] {
			return fmt.Errorf("embedding: duplicate encoder %q", e.ID)
		}
		seen[e.ID] = true

		if e.Dimension <= 0 {
			return fmt.Errorf("embedding: encoder %q needs a positive dimension", e.ID)
		}
		switch e.Kind {
		case KindHashing:
		case KindInference:
			if c.Endpoint == "" {
				return fmt.Errorf("embedding: missing EMBEDDING_ENDPOINT for encoder %q", e.ID)
			}
			if c.ServiceToken == "" {
				return fmt.Errorf("embedding: missing EMBEDDING_SERVICE_TOKEN for encoder %q", e.ID)
			}
			if e.Model == "" {
				return fmt.Errorf("embedding: encoder %q needs a model", e.ID)
			}
		default:
			return fmt.Errorf("embedding: encoder %q has unknown kind %q", e.ID, e.Kind)
		}
	}

	for primary, fallbacks := range c.Chains {
		if !seen[primary] {
			return fmt.Errorf("embedding: chain for unknown encoder %q", primary)
		}
		for _, f := range fallbacks {
			if !seen[f] {
				return fmt.Errorf("embedding: chain of %q names unknown encoder %q", primary, f)
			}
		}
	}
	return nil
}

func (e EncoderConfig) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return DefaultEncodeTimeout
}

func (e EncoderConfig) encoderID() corpus.EncoderID {
	return corpus.EncoderID(e.ID)
}
