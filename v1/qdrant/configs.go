package qdrant

import (
	"time"
)

// Config configures the connection to Qdrant and the naming of the
// collections the Store creates. The API key is normally injected from
// QDRANT_API_KEY by the config package.
type Config struct {
	// Endpoint is the gRPC host, without scheme or port.
	Endpoint string `yaml:"endpoint"`

	// Port is the gRPC port. Default: 6334
	Port int `yaml:"port"`

	ApiKey string `yaml:"-"`

	// UseTLS enables transport security, required by Qdrant Cloud.
	UseTLS bool `yaml:"use_tls"`

	// CollectionPrefix is prepended to every collection name, e.g.
	// "lexgraph_documents_<encoder>". Default: "lexgraph"
	CollectionPrefix string `yaml:"collection_prefix"`

	// Timeout bounds every request. Default: 5s
	Timeout time.Duration `yaml:"timeout"`

	// CheckCompatibility compares client and server versions on connect.
	CheckCompatibility bool `yaml:"check_compatibility"`
}

// DefaultConfig returns a config for a local, unsecured Qdrant.
func DefaultConfig() *Config {
	return &Config{
		Endpoint:           "localhost",
		Port:               6334,
		CollectionPrefix:   "lexgraph",
		Timeout:            5 * time.Second,
		CheckCompatibility: true,
	}
}
