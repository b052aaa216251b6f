package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
)

// Put writes data under key, replacing any existing object.
func (m *MinioClient) Put(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.OperationTimeout)
	defer cancel()

	start := time.Now()
	_, err := m.client.PutObject(ctx, m.cfg.Connection.BucketName, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	m.observeOperation("put", key, time.Since(start), err, int64(len(data)))
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

// Get reads the object under key. A missing key yields ErrObjectNotFound.
func (m *MinioClient) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.OperationTimeout)
	defer cancel()

	start := time.Now()
	data, err := m.get(ctx, key)
	m.observeOperation("get", key, time.Since(start), err, int64(len(data)))
	return data, err
}

func (m *MinioClient) get(ctx context.Context, key string) ([]byte, error) {
	reader, err := m.client.GetObject(ctx, m.cfg.Connection.BucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateError(key, err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			m.logWarn(ctx, "failed to close object reader", err, map[string]interface{}{"key": key})
		}
	}()

	// GetObject is lazy; Stat surfaces a missing key.
	info, err := reader.Stat()
	if err != nil {
		return nil, translateError(key, err)
	}
	if info.Size > MaxObjectSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrObjectTooLarge, key, info.Size)
	}

	data := make([]byte, info.Size)
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

// Delete removes the object under key. Deleting a missing key is not an error.
func (m *MinioClient) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.OperationTimeout)
	defer cancel()

	start := time.Now()
	err := m.client.RemoveObject(ctx, m.cfg.Connection.BucketName, key, minio.RemoveObjectOptions{})
	m.observeOperation("delete", key, time.Since(start), err, 0)
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

func translateError(key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return fmt.Errorf("failed to get object %s: %w", key, err)
}
