package qdrant

import (
	"context"
	"fmt"
	"time"

	qdrant "github.com/qdrant/go-client/qdrant"

	"github.com/Aleph-Alpha/lexgraph/v1/observability"
)

// Logger is the logging contract of the qdrant package.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
}

// QdrantClient wraps the official Qdrant Go client.
type QdrantClient struct {
	api      *qdrant.Client
	cfg      *Config
	logger   Logger
	observer observability.Observer
	started  bool
}

// QdrantParams groups the dependencies of NewQdrantClient.
type QdrantParams struct {
	Config   *Config
	Logger   Logger
	Observer observability.Observer
}

// NewQdrantClient connects to Qdrant and fails fast with a health check.
//
// Example:
//
//	client, _ := qdrant.NewQdrantClient(qdrant.QdrantParams{Config: cfg})
func NewQdrantClient(p QdrantParams) (*QdrantClient, error) {
	if p.Config == nil {
		p.Config = DefaultConfig()
	}

	port := p.Config.Port
	if port == 0 {
		port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   p.Config.Endpoint,
		Port:                   port,
		APIKey:                 p.Config.ApiKey,
		UseTLS:                 p.Config.UseTLS,
		SkipCompatibilityCheck: !p.Config.CheckCompatibility,
	})
	if err != nil {
		return nil, fmt.Errorf("[Qdrant] failed to initialize client: %w", err)
	}

	qc := &QdrantClient{
		api:      client,
		cfg:      p.Config,
		logger:   p.Logger,
		observer: p.Observer,
		started:  true,
	}

	if err := qc.healthCheck(); err != nil {
		return nil, fmt.Errorf("[Qdrant] health check failed: %w", err)
	}
	return qc, nil
}

// healthCheck calls the Qdrant health endpoint with a short timeout.
func (c *QdrantClient) healthCheck() error {
	if !c.started || c.api == nil {
		return fmt.Errorf("[Qdrant] client not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	resp, err := c.api.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("[Qdrant] health check failed: %w", err)
	}

	if c.logger != nil {
		c.logger.Info("Qdrant health check passed", nil, map[string]interface{}{
			"version":  resp.Version,
			"endpoint": c.cfg.Endpoint,
		})
	}
	return nil
}

// Client returns the underlying Qdrant SDK client.
func (c *QdrantClient) Client() *qdrant.Client {
	return c.api
}

// Close closes the gRPC connection.
func (c *QdrantClient) Close() error {
	if !c.started {
		return nil
	}
	c.started = false
	return c.api.Close()
}

// requestContext applies the configured per-request timeout.
func (c *QdrantClient) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

func (c *QdrantClient) observeOperation(operation, collection string, start time.Time, size int64, err error) {
	observability.Observe(c.observer, observability.OperationContext{
		Component: "qdrant",
		Operation: operation,
		Resource:  collection,
		Duration:  time.Since(start),
		Error:     err,
		Size:      size,
	})
}
