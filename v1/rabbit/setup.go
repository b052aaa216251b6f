package rabbit

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Aleph-Alpha/lexgraph/v1/observability"
)

const heartbeat = 2 * time.Second

// RabbitClient publishes to and consumes from the job queue. It owns one
// connection and one confirm-mode channel and replaces both when the broker
// connection drops.
type RabbitClient struct {
	cfg Config

	conn    *amqp.Connection
	channel *amqp.Channel

	// mu guards conn and channel.
	mu sync.RWMutex

	logger   Logger
	observer observability.Observer

	shutdownSignal    chan struct{}
	closeShutdownOnce sync.Once
}

// NewClient connects to the broker and declares the exchange, the work queue
// and the dead-letter topology.
//
// Example:
//
//	client, err := rabbit.NewClient(rabbit.Config{
//		Connection: rabbit.Connection{Host: "localhost", User: "guest", Password: "guest"},
//		DeadLetter: rabbit.DeadLetter{ExchangeName: rabbit.DefaultDeadLetterName},
//	}, log, nil)
func NewClient(cfg Config, logger Logger, observer observability.Observer) (*RabbitClient, error) {
	cfg = cfg.withDefaults()

	conn, err := newConnection(cfg)
	if err != nil {
		return nil, TranslateError(err)
	}
	ch, err := connectToChannel(conn, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, TranslateError(err)
	}

	rb := &RabbitClient{
		cfg:            cfg,
		conn:           conn,
		channel:        ch,
		logger:         logger,
		observer:       observer,
		shutdownSignal: make(chan struct{}),
	}
	rb.logInfo(context.Background(), "Connected to RabbitMQ", map[string]interface{}{
		"host":  cfg.Connection.Host,
		"queue": cfg.Channel.QueueName,
	})
	return rb, nil
}

// connectToChannel opens a confirm-mode channel and declares the topology.
// Declarations are idempotent, so every reconnect repeats them.
func connectToChannel(conn *amqp.Connection, cfg Config) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}
	fail := func(step string, err error) (*amqp.Channel, error) {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to %s: %w", step, err)
	}

	if err := ch.Confirm(false); err != nil {
		return fail("enable publisher confirms", err)
	}

	err = ch.ExchangeDeclare(cfg.Channel.ExchangeName, amqp.ExchangeDirect, true, false, false, false, nil)
	if err != nil {
		return fail("declare exchange", err)
	}

	queueArgs := amqp.Table{}
	if cfg.DeadLetter.Enabled() {
		err = ch.ExchangeDeclare(cfg.DeadLetter.ExchangeName, amqp.ExchangeDirect, true, false, false, false, nil)
		if err != nil {
			return fail("declare dead letter exchange", err)
		}
		if _, err = ch.QueueDeclare(cfg.DeadLetter.QueueName, true, false, false, false, nil); err != nil {
			return fail("declare dead letter queue", err)
		}
		err = ch.QueueBind(cfg.DeadLetter.QueueName, cfg.DeadLetter.RoutingKey, cfg.DeadLetter.ExchangeName, false, nil)
		if err != nil {
			return fail("bind dead letter queue", err)
		}
		queueArgs["x-dead-letter-exchange"] = cfg.DeadLetter.ExchangeName
		queueArgs["x-dead-letter-routing-key"] = cfg.DeadLetter.RoutingKey
	}

	if _, err = ch.QueueDeclare(cfg.Channel.QueueName, true, false, false, false, queueArgs); err != nil {
		return fail("declare queue", err)
	}
	err = ch.QueueBind(cfg.Channel.QueueName, cfg.Channel.RoutingKey, cfg.Channel.ExchangeName, false, nil)
	if err != nil {
		return fail("bind queue", err)
	}

	if err = ch.Qos(cfg.Channel.PrefetchCount, 0, false); err != nil {
		return fail("set QoS", err)
	}
	return ch, nil
}

// newConnection dials the broker. With SSL and UseCert the client presents
// a certificate; with SSL alone only the server is verified.
func newConnection(cfg Config) (*amqp.Connection, error) {
	amqpCfg := amqp.Config{
		Heartbeat: heartbeat,
		Vhost:     cfg.Connection.VHost,
	}
	if cfg.Connection.IsSSLEnabled {
		tlsConfig, err := createTLSConfig(cfg.Connection)
		if err != nil {
			return nil, err
		}
		amqpCfg.TLSClientConfig = tlsConfig
	}
	conn, err := amqp.DialConfig(cfg.Connection.URL(), amqpCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbit: %w", err)
	}
	return conn, nil
}

func createTLSConfig(c Connection) (*tls.Config, error) {
	tlsConfig := &tls.Config{ServerName: c.ServerName}
	if !c.UseCert {
		return tlsConfig, nil
	}

	caCert, err := os.ReadFile(c.CACertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA cert: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA cert")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCertPath, c.ClientKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load client cert: %w", err)
	}
	tlsConfig.RootCAs = pool
	tlsConfig.Certificates = []tls.Certificate{cert}
	return tlsConfig, nil
}

// RetryConnection watches the connection and re-dials when it closes. It
// returns after GracefulShutdown. Run it in its own goroutine.
func (rb *RabbitClient) RetryConnection() {
	ctx := context.Background()
outerLoop:
	for {
		errChan := make(chan *amqp.Error, 1)
		rb.mu.RLock()
		rb.conn.NotifyClose(errChan)
		rb.mu.RUnlock()

		select {
		case <-rb.shutdownSignal:
			rb.logInfo(ctx, "Stopping RetryConnection loop due to shutdown signal", nil)
			return
		case amqpErr := <-errChan:
			var cause error
			if amqpErr != nil {
				cause = amqpErr
			}
			rb.logWarn(ctx, "RabbitMQ connection closed, reconnecting", cause, nil)
		}

		for {
			select {
			case <-rb.shutdownSignal:
				rb.logInfo(ctx, "Stopping RetryConnection loop due to shutdown signal", nil)
				return
			default:
			}

			conn, err := newConnection(rb.cfg)
			if err != nil {
				rb.logError(ctx, "RabbitMQ reconnection failed", err, nil)
				rb.sleep(rb.cfg.Channel.DelayToReconnect)
				continue
			}
			ch, err := connectToChannel(conn, rb.cfg)
			if err != nil {
				_ = conn.Close()
				rb.logError(ctx, "Failed to re-establish RabbitMQ channel", err, nil)
				rb.sleep(rb.cfg.Channel.DelayToReconnect)
				continue
			}

			rb.mu.Lock()
			if rb.channel != nil {
				_ = rb.channel.Close()
			}
			rb.conn, rb.channel = conn, ch
			rb.mu.Unlock()

			rb.logInfo(ctx, "Reconnected to RabbitMQ", nil)
			continue outerLoop
		}
	}
}

func (rb *RabbitClient) sleep(d time.Duration) {
	select {
	case <-rb.shutdownSignal:
	case <-time.After(d):
	}
}

// GracefulShutdown stops consumers and the reconnect loop and closes the
// channel and connection. Safe to call more than once.
func (rb *RabbitClient) GracefulShutdown() {
	rb.closeShutdownOnce.Do(func() {
		close(rb.shutdownSignal)

		rb.mu.Lock()
		defer rb.mu.Unlock()

		rb.logInfo(context.Background(), "Shutting down RabbitMQ client", nil)
		if rb.channel != nil {
			if err := rb.channel.Close(); err != nil {
				rb.logWarn(context.Background(), "Failed to close rabbit channel", err, nil)
			}
		}
		if rb.conn != nil && !rb.conn.IsClosed() {
			if err := rb.conn.Close(); err != nil {
				rb.logWarn(context.Background(), "Failed to close rabbit connection", err, nil)
			}
		}
	})
}

func (rb *RabbitClient) currentChannel() (*amqp.Channel, error) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.channel == nil || rb.channel.IsClosed() {
		return nil, ErrChannelClosed
	}
	return rb.channel, nil
}

func (rb *RabbitClient) observeOperation(operation, resource, subResource string, duration time.Duration, err error, size int64) {
	observability.Observe(rb.observer, observability.OperationContext{
		Component:   "rabbit",
		Operation:   operation,
		Resource:    resource,
		SubResource: subResource,
		Duration:    duration,
		Error:       err,
		Size:        size,
	})
}

func (rb *RabbitClient) logInfo(ctx context.Context, msg string, fields map[string]interface{}) {
	if rb.logger != nil {
		rb.logger.InfoWithContext(ctx, msg, nil, fields)
	}
}

func (rb *RabbitClient) logWarn(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	if rb.logger != nil {
		rb.logger.WarnWithContext(ctx, msg, err, fields)
	}
}

func (rb *RabbitClient) logError(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	if rb.logger != nil {
		rb.logger.ErrorWithContext(ctx, msg, err, fields)
	}
}
