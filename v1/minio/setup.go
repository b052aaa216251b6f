package minio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Aleph-Alpha/lexgraph/v1/observability"
)

var (
	// ErrObjectNotFound is returned by Get for a missing key.
	ErrObjectNotFound = errors.New("minio: object not found")

	// ErrBucketMissing is returned when the bucket does not exist and may
	// not be created.
	ErrBucketMissing = errors.New("minio: bucket does not exist")

	// ErrObjectTooLarge is returned by Get for objects above MaxObjectSize.
	ErrObjectTooLarge = errors.New("minio: object too large")
)

// MinioClient reads and writes archive objects in one bucket.
type MinioClient struct {
	client   *minio.Client
	cfg      Config
	logger   Logger
	observer observability.Observer
}

// NewClient connects, validates the credentials and makes sure the bucket
// exists.
func NewClient(cfg Config, logger Logger, observer observability.Observer) (*MinioClient, error) {
	cfg = cfg.withDefaults()

	c, err := connectToMinio(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	m := &MinioClient{client: c, cfg: cfg, logger: logger, observer: observer}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.OperationTimeout)
	defer cancel()
	if err := m.ensureBucketExists(ctx); err != nil {
		return nil, err
	}
	m.logInfo(ctx, "Connected to MinIO", map[string]interface{}{
		"endpoint": cfg.Connection.Endpoint,
		"bucket":   cfg.Connection.BucketName,
	})
	return m, nil
}

func connectToMinio(cfg Config) (*minio.Client, error) {
	if cfg.Connection.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint cannot be empty")
	}
	return minio.New(cfg.Connection.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Connection.AccessKeyID, cfg.Connection.SecretAccessKey, ""),
		Secure: cfg.Connection.UseSSL,
		Region: cfg.Connection.Region,
	})
}

// ensureBucketExists creates the bucket when it is missing and creation is
// allowed.
func (m *MinioClient) ensureBucketExists(ctx context.Context) error {
	bucket := m.cfg.Connection.BucketName

	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check if bucket exists, bucket: %v, err: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if !m.cfg.Connection.AccessBucketCreation {
		return fmt.Errorf("%w: %s", ErrBucketMissing, bucket)
	}

	m.logInfo(ctx, "Bucket does not exist, creating it", map[string]interface{}{
		"bucket": bucket,
		"region": m.cfg.Connection.Region,
	})
	err = m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: m.cfg.Connection.Region})
	if err != nil {
		// Another instance may have won the race.
		if resp := minio.ToErrorResponse(err); resp.Code == "BucketAlreadyOwnedByYou" {
			return nil
		}
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	return nil
}

func (m *MinioClient) observeOperation(operation, key string, duration time.Duration, err error, size int64) {
	observability.Observe(m.observer, observability.OperationContext{
		Component:   "minio",
		Operation:   operation,
		Resource:    m.cfg.Connection.BucketName,
		SubResource: key,
		Duration:    duration,
		Error:       err,
		Size:        size,
	})
}

func (m *MinioClient) logInfo(ctx context.Context, msg string, fields map[string]interface{}) {
	if m.logger != nil {
		m.logger.InfoWithContext(ctx, msg, nil, fields)
	}
}

func (m *MinioClient) logWarn(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	if m.logger != nil {
		m.logger.WarnWithContext(ctx, msg, err, fields)
	}
}
