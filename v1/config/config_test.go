package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/Aleph-Alpha/lexgraph/v1/embedding"
	"github.com/Aleph-Alpha/lexgraph/v1/jobs"
	"github.com/Aleph-Alpha/lexgraph/v1/qdrant"
	"github.com/Aleph-Alpha/lexgraph/v1/search"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendPGVector, cfg.VectorStore.Backend)
	assert.Equal(t, DefaultEncoder, cfg.Search.DefaultEncoder)
	assert.Equal(t, DefaultEncoder, cfg.Clustering.Encoder)
	assert.Equal(t, DefaultEncoder, cfg.Topics.Encoder)
	assert.Equal(t, DefaultEncoder, cfg.RAG.DefaultEncoder)
	assert.Equal(t, jobs.DefaultConfig(), cfg.Jobs)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeFile(t, "lexgraph.yaml", `
vector_store:
  backend: qdrant
  qdrant:
    endpoint: qdrant.internal
    port: 6334
embedding:
  encoders:
    - id: legal-small
      kind: hashing
      dimension: 128
    - id: hashing-v1
      kind: hashing
      dimension: 256
  chains:
    legal-small: [hashing-v1]
search:
  default_top_n: 20
jobs:
  concurrency: 8
  job_timeout: 30m
redis:
  host: cache
  password: from-file
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendQdrant, cfg.VectorStore.Backend)
	assert.Equal(t, "qdrant.internal", cfg.VectorStore.Qdrant.Endpoint)
	assert.Equal(t, "lexgraph", cfg.VectorStore.Qdrant.CollectionPrefix, "unset keys keep their default")

	require.Len(t, cfg.Embedding.Encoders, 2)
	assert.Equal(t, []string{"hashing-v1"}, cfg.Embedding.Chains["legal-small"])
	assert.Equal(t, "legal-small", cfg.Search.DefaultEncoder, "first encoder becomes the default")
	assert.Equal(t, "legal-small", cfg.Clustering.Encoder)

	assert.Equal(t, 20, cfg.Search.DefaultTopN)
	assert.Equal(t, search.DefaultWeights(), cfg.Search.Weights)
	assert.Equal(t, 8, cfg.Jobs.Concurrency)
	assert.Equal(t, 30*time.Minute, cfg.Jobs.JobTimeout)
	assert.Equal(t, jobs.DefaultConfig().MaxAttempts, cfg.Jobs.MaxAttempts)

	assert.Equal(t, "cache", cfg.Redis.Host)
	assert.Empty(t, cfg.Redis.Password, "secrets are never read from the file")
}

func TestLoadSecretsFromEnvironment(t *testing.T) {
	t.Setenv(EnvPostgresPassword, "pg-secret")
	t.Setenv(EnvEmbeddingToken, "token")
	t.Setenv(EnvGenerationKey, "gen-key")
	t.Setenv(EnvQdrantAPIKey, " qdrant-key ")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "pg-secret", cfg.Postgres.Connection.Password)
	assert.Equal(t, "token", cfg.Embedding.ServiceToken)
	assert.Equal(t, "gen-key", cfg.Generator.APIKey)
	assert.Equal(t, "qdrant-key", cfg.VectorStore.Qdrant.ApiKey)
	assert.Equal(t, "debug", cfg.Logger.Level)
}

func TestLoadEnvFile(t *testing.T) {
	t.Cleanup(func() {
		_ = os.Unsetenv(EnvRedisPassword)
		_ = os.Unsetenv(EnvMinioSecret)
	})
	t.Setenv(EnvMinioSecret, "from-process")

	env := writeFile(t, ".env", EnvRedisPassword+"=from-dotenv\n"+EnvMinioSecret+"=from-dotenv\n")

	cfg, err := Load("", env, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "from-dotenv", cfg.Redis.Password)
	assert.Equal(t, "from-process", cfg.Minio.Connection.SecretAccessKey, "the process environment wins over .env")
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "unknown backend",
			yaml: "vector_store:\n  backend: cassandra\n",
		},
		{
			name: "unknown encoder",
			yaml: "search:\n  default_encoder: nope\n",
		},
		{
			name: "overlap larger than window",
			yaml: "chunking:\n  window_words: 10\n  overlap_words: 10\n",
		},
		{
			name: "generator without model",
			yaml: "generator:\n  endpoint: http://llm.local\n",
		},
		{
			name: "no encoders",
			yaml: "embedding:\n  encoders: []\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "lexgraph.yaml", tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFXModuleSuppliesComponentConfigs(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	var (
		searchCfg search.Config
		qdrantCfg *qdrant.Config
		embedCfg  *embedding.Config
		jobsCfg   jobs.Config
	)
	app := fxtest.New(t,
		FXModule(cfg),
		fx.Populate(&searchCfg, &qdrantCfg, &embedCfg, &jobsCfg),
	)
	app.RequireStart()
	defer app.RequireStop()

	assert.Equal(t, cfg.Search, searchCfg)
	assert.Same(t, cfg.VectorStore.Qdrant, qdrantCfg)
	assert.Same(t, cfg.Embedding, embedCfg)
	assert.Equal(t, cfg.Jobs, jobsCfg)
}
