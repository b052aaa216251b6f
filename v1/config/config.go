// Package config assembles the configuration of every lexgraph component.
//
// A configuration is built in three layers: the package defaults, a YAML
// file, and environment variables for secrets. A .env file next to the
// process is loaded first so that local runs can keep secrets out of the
// YAML file.
//
//	cfg, err := config.Load("lexgraph.yaml", ".env")
//	if err != nil {
//	    return err
//	}
//	app := fx.New(config.FXModule(cfg), ...)
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Aleph-Alpha/lexgraph/v1/chunking"
	"github.com/Aleph-Alpha/lexgraph/v1/clustering"
	"github.com/Aleph-Alpha/lexgraph/v1/embedding"
	"github.com/Aleph-Alpha/lexgraph/v1/jobs"
	"github.com/Aleph-Alpha/lexgraph/v1/kafka"
	"github.com/Aleph-Alpha/lexgraph/v1/logger"
	"github.com/Aleph-Alpha/lexgraph/v1/metrics"
	"github.com/Aleph-Alpha/lexgraph/v1/minio"
	"github.com/Aleph-Alpha/lexgraph/v1/postgres"
	"github.com/Aleph-Alpha/lexgraph/v1/qdrant"
	"github.com/Aleph-Alpha/lexgraph/v1/rabbit"
	"github.com/Aleph-Alpha/lexgraph/v1/rag"
	"github.com/Aleph-Alpha/lexgraph/v1/redis"
	"github.com/Aleph-Alpha/lexgraph/v1/search"
	"github.com/Aleph-Alpha/lexgraph/v1/topics"
	"github.com/Aleph-Alpha/lexgraph/v1/tracer"
)

// Vector store backends.
const (
	BackendPGVector = "pgvector"
	BackendQdrant   = "qdrant"
	BackendMemory   = "memory"
)

// Environment variables read by Load. Secrets never come from the YAML file.
const (
	EnvPostgresPassword = "LEXGRAPH_PG_PASSWORD"
	EnvEmbeddingToken   = "EMBEDDING_SERVICE_TOKEN"
	EnvGenerationKey    = "GENERATION_API_KEY"
	EnvRabbitPassword   = "RABBITMQ_PASSWORD"
	EnvMinioSecret      = "MINIO_SECRET_KEY"
	EnvRedisPassword    = "LEXGRAPH_REDIS_PASSWORD"
	EnvKafkaPassword    = "KAFKA_SASL_PASSWORD"
	EnvQdrantAPIKey     = "QDRANT_API_KEY"
	EnvLogLevel         = "LEXGRAPH_LOG_LEVEL"
)

// DefaultEncoder is the encoder used by search, clustering, topics and RAG
// when the file names none. It matches the hashing encoder of embedding.NewConfig.
const DefaultEncoder = "hashing-v1"

// VectorStore selects where chunk vectors live.
type VectorStore struct {
	Backend string         `yaml:"backend" validate:"oneof=pgvector qdrant memory"`
	Qdrant  *qdrant.Config `yaml:"qdrant"`
}

// Config is the root configuration.
type Config struct {
	Logger  logger.Config  `yaml:"logger"`
	Metrics metrics.Config `yaml:"metrics"`
	Tracer  tracer.Config  `yaml:"tracer"`

	Postgres    postgres.Config `yaml:"postgres"`
	VectorStore VectorStore     `yaml:"vector_store"`

	Embedding  *embedding.Config   `yaml:"embedding"`
	Chunking   chunking.Config     `yaml:"chunking"`
	Search     search.Config       `yaml:"search"`
	Clustering clustering.Config   `yaml:"clustering"`
	Topics     topics.Config       `yaml:"topics"`
	RAG        rag.Config          `yaml:"rag"`
	Generator  rag.GeneratorConfig `yaml:"generator"`

	Rabbit rabbit.Config `yaml:"rabbit"`
	Kafka  kafka.Config  `yaml:"kafka"`
	Minio  minio.Config  `yaml:"minio"`
	Redis  redis.Config  `yaml:"redis"`
	Jobs   jobs.Config   `yaml:"jobs"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logger: logger.Config{
			Level:       logger.Info,
			ServiceName: "lexgraph",
		},
		Metrics: metrics.Config{
			Address:                 metrics.DefaultMetricsAddress,
			EnableDefaultCollectors: true,
			Namespace:               metrics.DefaultNamespace,
			ServiceName:             "lexgraph",
		},
		Tracer: tracer.Config{
			ServiceName: "lexgraph",
			AppEnv:      "local",
		},
		Postgres: postgres.Config{
			Connection: postgres.Connection{
				Host:    "localhost",
				Port:    "5432",
				User:    "lexgraph",
				DbName:  "lexgraph",
				SSLMode: "disable",
			},
		},
		VectorStore: VectorStore{
			Backend: BackendPGVector,
			Qdrant:  qdrant.DefaultConfig(),
		},
		Embedding:  embedding.NewConfig(),
		Chunking:   chunking.DefaultConfig(),
		Search:     search.DefaultConfig(),
		Clustering: clustering.DefaultDensityConfig(),
		Topics:     topics.DefaultConfig(),
		Rabbit: rabbit.Config{
			Connection: rabbit.Connection{Host: "localhost", User: "guest", VHost: "/"},
		},
		Kafka: kafka.Config{Brokers: []string{"localhost:9092"}},
		Minio: minio.Config{
			Connection: minio.ConnectionConfig{
				Endpoint:             "localhost:9000",
				AccessBucketCreation: true,
			},
		},
		Redis: redis.Config{Host: "localhost", Port: 6379},
		Jobs:  jobs.DefaultConfig(),
	}
}

// Load reads the YAML file at path on top of Default and applies the
// environment. Missing env files are ignored; a missing config file is not,
// unless path is empty.
func Load(path string, envFiles ...string) (*Config, error) {
	loadEnvFiles(envFiles...)

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.fillEncoders()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFiles(files ...string) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "config: ignoring %s: %v\n", f, err)
		}
	}
}

func (c *Config) applyEnv() {
	setFromEnv(&c.Postgres.Connection.Password, EnvPostgresPassword)
	setFromEnv(&c.Generator.APIKey, EnvGenerationKey)
	setFromEnv(&c.Rabbit.Connection.Password, EnvRabbitPassword)
	setFromEnv(&c.Minio.Connection.SecretAccessKey, EnvMinioSecret)
	setFromEnv(&c.Redis.Password, EnvRedisPassword)
	setFromEnv(&c.Kafka.SASL.Password, EnvKafkaPassword)
	setFromEnv(&c.Logger.Level, EnvLogLevel)

	if c.Embedding == nil {
		c.Embedding = embedding.NewConfig()
	}
	setFromEnv(&c.Embedding.ServiceToken, EnvEmbeddingToken)

	if c.VectorStore.Qdrant == nil {
		c.VectorStore.Qdrant = qdrant.DefaultConfig()
	}
	setFromEnv(&c.VectorStore.Qdrant.ApiKey, EnvQdrantAPIKey)
}

func setFromEnv(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

// fillEncoders points every consumer at the first configured encoder when
// the file leaves them empty.
func (c *Config) fillEncoders() {
	enc := DefaultEncoder
	if len(c.Embedding.Encoders) > 0 {
		enc = c.Embedding.Encoders[0].ID
	}
	if c.Search.DefaultEncoder == "" {
		c.Search.DefaultEncoder = enc
	}
	if c.Clustering.Encoder == "" {
		c.Clustering.Encoder = enc
	}
	if c.Topics.Encoder == "" {
		c.Topics.Encoder = enc
	}
	if c.RAG.DefaultEncoder == "" {
		c.RAG.DefaultEncoder = enc
	}
}

// Validate checks the struct tags and every component configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	var errs []error
	if err := c.Embedding.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Clustering.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Topics.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Jobs.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := chunking.New(c.Chunking); err != nil {
		errs = append(errs, err)
	}

	known := make(map[string]bool, len(c.Embedding.Encoders))
	for _, e := range c.Embedding.Encoders {
		known[e.ID] = true
	}
	for name, enc := range map[string]string{
		"search":     c.Search.DefaultEncoder,
		"clustering": c.Clustering.Encoder,
		"topics":     c.Topics.Encoder,
		"rag":        c.RAG.DefaultEncoder,
	} {
		if !known[enc] {
			errs = append(errs, fmt.Errorf("config: %s uses unknown encoder %q", name, enc))
		}
	}

	if c.VectorStore.Backend == BackendQdrant && c.VectorStore.Qdrant.Endpoint == "" {
		errs = append(errs, fmt.Errorf("config: qdrant backend needs an endpoint"))
	}
	if c.Generator.Endpoint != "" && c.Generator.Model == "" {
		errs = append(errs, fmt.Errorf("config: generator endpoint set without a model"))
	}

	return errors.Join(errs...)
}
