package rabbit

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// Defaults of the job queue topology.
const (
	DefaultPort             = 5672
	DefaultExchangeName     = "lexgraph.jobs"
	DefaultQueueName        = "lexgraph.jobs"
	DefaultRoutingKey       = "job"
	DefaultDeadLetterName   = "lexgraph.jobs.dlq"
	DefaultPrefetchCount    = 4
	DefaultDelayToReconnect = time.Second
	DefaultConfirmTimeout   = 5 * time.Second
	DefaultContentType      = "application/json"
)

// Config is the configuration of the RabbitMQ client.
type Config struct {
	Connection Connection `yaml:"connection"`
	Channel    Channel    `yaml:"channel"`
	DeadLetter DeadLetter `yaml:"dead_letter"`
}

// Connection holds the broker address, credentials and TLS settings.
type Connection struct {
	Host string `yaml:"host"`
	Port uint   `yaml:"port"`
	User string `yaml:"user"`

	// Password is usually set via RABBITMQ_PASSWORD.
	Password string `yaml:"-"`

	VHost string `yaml:"vhost"`

	IsSSLEnabled   bool   `yaml:"ssl"`
	UseCert        bool   `yaml:"use_cert"`
	CACertPath     string `yaml:"ca_cert_path"`
	ClientCertPath string `yaml:"client_cert_path"`
	ClientKeyPath  string `yaml:"client_key_path"`
	ServerName     string `yaml:"server_name"`
}

// Channel configures the work exchange and queue.
type Channel struct {
	ExchangeName string `yaml:"exchange"`
	QueueName    string `yaml:"queue"`
	RoutingKey   string `yaml:"routing_key"`

	// PrefetchCount limits unacknowledged deliveries per consumer.
	PrefetchCount int `yaml:"prefetch_count"`

	// DelayToReconnect is the pause between reconnection attempts.
	DelayToReconnect time.Duration `yaml:"delay_to_reconnect"`

	// ConfirmTimeout bounds the wait for a publisher confirm.
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`

	ContentType string `yaml:"content_type"`
}

// DeadLetter configures where rejected messages go. An empty ExchangeName
// disables dead-lettering.
type DeadLetter struct {
	ExchangeName string `yaml:"exchange"`
	QueueName    string `yaml:"queue"`
	RoutingKey   string `yaml:"routing_key"`
}

// Enabled reports whether a dead-letter exchange is configured.
func (d DeadLetter) Enabled() bool { return d.ExchangeName != "" }

func (c Config) withDefaults() Config {
	if c.Connection.Port == 0 {
		c.Connection.Port = DefaultPort
	}
	if c.Channel.ExchangeName == "" {
		c.Channel.ExchangeName = DefaultExchangeName
	}
	if c.Channel.QueueName == "" {
		c.Channel.QueueName = DefaultQueueName
	}
	if c.Channel.RoutingKey == "" {
		c.Channel.RoutingKey = DefaultRoutingKey
	}
	if c.Channel.PrefetchCount <= 0 {
		c.Channel.PrefetchCount = DefaultPrefetchCount
	}
	if c.Channel.DelayToReconnect <= 0 {
		c.Channel.DelayToReconnect = DefaultDelayToReconnect
	}
	if c.Channel.ConfirmTimeout <= 0 {
		c.Channel.ConfirmTimeout = DefaultConfirmTimeout
	}
	if c.Channel.ContentType == "" {
		c.Channel.ContentType = DefaultContentType
	}
	if c.DeadLetter.Enabled() {
		if c.DeadLetter.QueueName == "" {
			c.DeadLetter.QueueName = c.DeadLetter.ExchangeName
		}
		if c.DeadLetter.RoutingKey == "" {
			c.DeadLetter.RoutingKey = c.Channel.RoutingKey
		}
	}
	return c
}

// URL returns the AMQP URL of the connection. Credentials are escaped.
func (c Connection) URL() string {
	scheme := "amqp"
	if c.IsSSLEnabled {
		scheme = "amqps"
	}
	u := url.URL{
		Scheme: scheme,
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
	}
	if c.VHost != "" {
		u.Path = "/" + c.VHost
	}
	return u.String()
}

// Logger is the context-aware logging contract of the rabbit package.
type Logger interface {
	InfoWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
}
