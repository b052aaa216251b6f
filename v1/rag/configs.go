package rag

import "time"

// Config configures retrieval and answer composition.
type Config struct {
	// DefaultEncoder heads the encoder chain.
	DefaultEncoder string `yaml:"default_encoder"`

	// DefaultTopK applies when a request asks for no chunk count.
	// Default: 4
	DefaultTopK int `yaml:"default_top_k"`

	// GenerationTimeout bounds one generator call. Default: 60s
	GenerationTimeout time.Duration `yaml:"generation_timeout"`
}

func (c Config) withDefaults() Config {
	if c.DefaultTopK <= 0 {
		c.DefaultTopK = 4
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = 60 * time.Second
	}
	return c
}

// GeneratorConfig configures the HTTP generator.
type GeneratorConfig struct {
	// Endpoint is the base URL of an OpenAI-compatible API.
	Endpoint string `yaml:"endpoint"`

	Model string `yaml:"model"`

	// APIKey is sent as a bearer token. Usually set via GENERATION_API_KEY.
	APIKey string `yaml:"-"`

	// Timeout is the HTTP client timeout. Default: 60s
	Timeout time.Duration `yaml:"timeout"`

	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}
