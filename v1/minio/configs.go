package minio

import (
	"context"
	"time"
)

const (
	DefaultBucketName       = "lexgraph-runs"
	DefaultOperationTimeout = 30 * time.Second

	// MaxObjectSize bounds what Get reads into memory.
	MaxObjectSize int64 = 256 * 1024 * 1024
)

// Config configures the object archive.
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`

	// OperationTimeout bounds a single put or get.
	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

// ConnectionConfig holds the server address, credentials and bucket.
type ConnectionConfig struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"-"`
	UseSSL          bool   `yaml:"use_ssl"`
	BucketName      string `yaml:"bucket"`
	Region          string `yaml:"region"`

	// AccessBucketCreation lets the client create a missing bucket.
	AccessBucketCreation bool `yaml:"create_bucket"`
}

func (c Config) withDefaults() Config {
	if c.Connection.BucketName == "" {
		c.Connection.BucketName = DefaultBucketName
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = DefaultOperationTimeout
	}
	return c
}

// Logger is the context-aware logging contract of the minio package.
type Logger interface {
	InfoWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
}
