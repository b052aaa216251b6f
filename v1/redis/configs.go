package redis

import "time"

// Config defines the configuration of the Redis client.
type Config struct {
	// Host is the Redis server hostname or IP address
	// Default: "localhost"
	Host string `yaml:"host"`

	// Port is the Redis server port
	// Default: 6379
	Port int `yaml:"port"`

	// Username is the Redis username for ACL authentication (Redis 6.0+)
	Username string `yaml:"username"`

	// Password is the Redis password. Usually set via LEXGRAPH_REDIS_PASSWORD.
	Password string `yaml:"-"`

	// DB is the Redis database number to use
	DB int `yaml:"db"`

	// PoolSize is the maximum number of socket connections
	// Default: 10 per CPU
	PoolSize int `yaml:"pool_size"`

	// MaxRetries is the maximum number of retries before giving up
	// Default: 3
	MaxRetries int `yaml:"max_retries"`

	// DialTimeout is the timeout for establishing new connections
	// Default: 5 seconds
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// ReadTimeout is the timeout for socket reads
	// Default: 3 seconds
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// KeyPrefix namespaces every key written by this package.
	// Default: "lexgraph:"
	KeyPrefix string `yaml:"key_prefix"`

	// EmbeddingTTL is how long cached vectors live. Zero keeps them forever.
	// Default: 7 days
	EmbeddingTTL time.Duration `yaml:"embedding_ttl"`

	// TLS contains TLS/SSL configuration
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig contains TLS/SSL configuration parameters.
type TLSConfig struct {
	Enabled bool `yaml:"enabled"`

	// CACertPath is the file path to the CA certificate for verifying the server
	CACertPath string `yaml:"ca_cert_path"`

	// ClientCertPath and ClientKeyPath enable mutual TLS
	ClientCertPath string `yaml:"client_cert_path"`
	ClientKeyPath  string `yaml:"client_key_path"`

	// InsecureSkipVerify must only be used in testing
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Default values for configuration
const (
	DefaultHost         = "localhost"
	DefaultPort         = 6379
	DefaultMaxRetries   = 3
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultKeyPrefix    = "lexgraph:"
	DefaultEmbeddingTTL = 7 * 24 * time.Hour
)

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
	if c.EmbeddingTTL == 0 {
		c.EmbeddingTTL = DefaultEmbeddingTTL
	}
	return c
}
