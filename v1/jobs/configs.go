package jobs

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config configures dispatcher and worker.
type Config struct {
	// Concurrency is the number of jobs a worker runs at once.
	Concurrency int `yaml:"concurrency" validate:"min=1,max=256"`

	// MaxAttempts bounds deliveries of a job failing with a retryable error.
	MaxAttempts int `yaml:"max_attempts" validate:"min=1,max=100"`

	// RetryBackoff is multiplied by the attempt number before a requeue.
	RetryBackoff time.Duration `yaml:"retry_backoff" validate:"min=0"`

	// JobTimeout bounds a single handler call. Zero means no bound.
	JobTimeout time.Duration `yaml:"job_timeout" validate:"min=0"`

	// StatusTTL is how long job statuses stay readable.
	StatusTTL time.Duration `yaml:"status_ttl" validate:"min=0"`

	// PendingTTL bounds how long a queued clustering or topic job blocks
	// further triggers of its family when no worker releases it.
	PendingTTL time.Duration `yaml:"pending_ttl" validate:"min=0"`

	Estimates Estimates `yaml:"estimates"`
}

// Estimates parameterise EstimatedDuration: per-document cost times the
// number of documents plus Overhead.
type Estimates struct {
	EmbeddingPerDocument  time.Duration `yaml:"embedding_per_document" validate:"min=0"`
	ClusteringPerDocument time.Duration `yaml:"clustering_per_document" validate:"min=0"`
	TopicsPerDocument     time.Duration `yaml:"topics_per_document" validate:"min=0"`
	Overhead              time.Duration `yaml:"overhead" validate:"min=0"`
}

// DefaultConfig returns the defaults used for zero fields.
func DefaultConfig() Config {
	return Config{
		Concurrency:  4,
		MaxAttempts:  5,
		RetryBackoff: 2 * time.Second,
		JobTimeout:   2 * time.Hour,
		StatusTTL:    7 * 24 * time.Hour,
		PendingTTL:   12 * time.Hour,
		Estimates: Estimates{
			EmbeddingPerDocument:  200 * time.Millisecond,
			ClusteringPerDocument: 20 * time.Millisecond,
			TopicsPerDocument:     25 * time.Millisecond,
			Overhead:              5 * time.Second,
		},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Concurrency == 0 {
		c.Concurrency = d.Concurrency
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.JobTimeout == 0 {
		c.JobTimeout = d.JobTimeout
	}
	if c.StatusTTL == 0 {
		c.StatusTTL = d.StatusTTL
	}
	if c.PendingTTL == 0 {
		c.PendingTTL = d.PendingTTL
	}
	if c.Estimates == (Estimates{}) {
		c.Estimates = d.Estimates
	}
	return c
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration after defaults are applied.
func (c Config) Validate() error {
	if err := validate.Struct(c.withDefaults()); err != nil {
		return fmt.Errorf("jobs: invalid config: %w", err)
	}
	return nil
}

func (e Estimates) perDocument(t Type) time.Duration {
	switch t {
	case TypeEmbedding:
		return e.EmbeddingPerDocument
	case TypeClustering:
		return e.ClusteringPerDocument
	case TypeTopics:
		return e.TopicsPerDocument
	}
	return 0
}

// Estimate returns the expected duration of a job of type t over n documents.
func (e Estimates) Estimate(t Type, n int) time.Duration {
	return e.perDocument(t)*time.Duration(n) + e.Overhead
}
