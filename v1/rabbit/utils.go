package rabbit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Client is the queue contract the job worker and dispatcher depend on.
type Client interface {
	Publish(ctx context.Context, msg []byte, headers ...map[string]interface{}) error
	Consume(ctx context.Context, wg *sync.WaitGroup) <-chan Message
}

// Message is a delivery that must be acknowledged or rejected exactly once.
type Message interface {
	AckMsg() error
	// NackMsg rejects the message. With requeue false it goes to the
	// dead-letter queue when one is configured.
	NackMsg(requeue bool) error
	Body() []byte
	Header() map[string]interface{}
	// Redelivered reports whether the broker delivered the message before.
	Redelivered() bool
}

// ConsumerMessage is the Message implementation backed by an AMQP delivery.
type ConsumerMessage struct {
	delivery amqp.Delivery
}

func (m *ConsumerMessage) AckMsg() error { return TranslateError(m.delivery.Ack(false)) }

func (m *ConsumerMessage) NackMsg(requeue bool) error {
	return TranslateError(m.delivery.Nack(false, requeue))
}

func (m *ConsumerMessage) Body() []byte { return m.delivery.Body }

func (m *ConsumerMessage) Redelivered() bool { return m.delivery.Redelivered }

func (m *ConsumerMessage) Header() map[string]interface{} {
	out := make(map[string]interface{}, len(m.delivery.Headers))
	for k, v := range m.delivery.Headers {
		out[k] = v
	}
	return out
}

// Publish sends msg persistently to the job exchange and waits for the
// broker's confirm.
func (rb *RabbitClient) Publish(ctx context.Context, msg []byte, headers ...map[string]interface{}) error {
	start := time.Now()
	err := rb.publish(ctx, msg, headers...)
	rb.observeOperation("produce", rb.cfg.Channel.ExchangeName, rb.cfg.Channel.RoutingKey, time.Since(start), err, int64(len(msg)))
	if err != nil {
		rb.logError(ctx, "Failed to publish message", err, map[string]interface{}{
			"exchange": rb.cfg.Channel.ExchangeName,
		})
	}
	return err
}

func (rb *RabbitClient) publish(ctx context.Context, msg []byte, headers ...map[string]interface{}) error {
	ch, err := rb.currentChannel()
	if err != nil {
		return err
	}

	table := amqp.Table{}
	for _, h := range headers {
		for k, v := range h {
			table[k] = v
		}
	}

	ctx, cancel := context.WithTimeout(ctx, rb.cfg.Channel.ConfirmTimeout)
	defer cancel()

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx,
		rb.cfg.Channel.ExchangeName,
		rb.cfg.Channel.RoutingKey,
		true,  // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  rb.cfg.Channel.ContentType,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Headers:      table,
			Body:         msg,
		},
	)
	if err != nil {
		return TranslateError(err)
	}
	if confirm == nil {
		return nil
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return TranslateError(err)
	}
	if !acked {
		return ErrPublishNacked
	}
	return nil
}

// Consume delivers messages from the work queue until ctx is cancelled or
// the client shuts down. The channel is closed on return; wg tracks the
// consumer goroutine.
func (rb *RabbitClient) Consume(ctx context.Context, wg *sync.WaitGroup) <-chan Message {
	return rb.consumeQueue(ctx, wg, rb.cfg.Channel.QueueName)
}

// ConsumeDLQ delivers messages from the dead-letter queue.
func (rb *RabbitClient) ConsumeDLQ(ctx context.Context, wg *sync.WaitGroup) <-chan Message {
	if !rb.cfg.DeadLetter.Enabled() {
		out := make(chan Message)
		close(out)
		return out
	}
	return rb.consumeQueue(ctx, wg, rb.cfg.DeadLetter.QueueName)
}

// consumeQueue re-subscribes whenever the delivery channel closes, which
// happens on reconnect. On return the subscription is cancelled and
// deliveries not handed out are requeued.
func (rb *RabbitClient) consumeQueue(ctx context.Context, wg *sync.WaitGroup, queueName string) <-chan Message {
	out := make(chan Message, rb.cfg.Channel.PrefetchCount)
	fields := map[string]interface{}{"queue": queueName}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(out)

		for {
			if rb.stopped(ctx) {
				rb.logInfo(ctx, "Stopping consumer", fields)
				return
			}

			sub, err := rb.subscribe(queueName)
			if err != nil {
				rb.logWarn(ctx, "Failed to establish consumer", err, fields)
				rb.sleepCtx(ctx, rb.cfg.Channel.DelayToReconnect)
				continue
			}
			if !rb.deliver(ctx, sub, out) {
				sub.cancel()
				rb.logInfo(ctx, "Stopping consumer", fields)
				return
			}
		}
	}()
	return out
}

// deliver forwards deliveries to out. It returns true when the broker closed
// the subscription and false when the consumer should stop.
func (rb *RabbitClient) deliver(ctx context.Context, sub *subscription, out chan<- Message) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-rb.shutdownSignal:
			return false
		case d, ok := <-sub.deliveries:
			if !ok {
				return true
			}
			rb.observeOperation("consume", sub.queue, d.RoutingKey, 0, nil, int64(len(d.Body)))
			select {
			case out <- &ConsumerMessage{delivery: d}:
			case <-ctx.Done():
				_ = d.Nack(false, true)
				return false
			case <-rb.shutdownSignal:
				return false
			}
		}
	}
}

type subscription struct {
	ch         *amqp.Channel
	queue      string
	tag        string
	deliveries <-chan amqp.Delivery
}

// cancel stops the broker from sending more deliveries and requeues the ones
// already buffered.
func (s *subscription) cancel() {
	if s.ch.IsClosed() {
		return
	}
	_ = s.ch.Cancel(s.tag, false)
	for d := range s.deliveries {
		_ = d.Nack(false, true)
	}
}

var consumerSeq atomic.Uint64

func (rb *RabbitClient) subscribe(queueName string) (*subscription, error) {
	ch, err := rb.currentChannel()
	if err != nil {
		return nil, err
	}
	tag := fmt.Sprintf("%s-%d", queueName, consumerSeq.Add(1))
	deliveries, err := ch.Consume(queueName, tag, false, false, false, false, nil)
	if err != nil {
		return nil, TranslateError(err)
	}
	return &subscription{ch: ch, queue: queueName, tag: tag, deliveries: deliveries}, nil
}

func (rb *RabbitClient) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-rb.shutdownSignal:
		return true
	default:
		return false
	}
}

func (rb *RabbitClient) sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-rb.shutdownSignal:
	case <-time.After(d):
	}
}

// IsShutdown reports whether GracefulShutdown was called.
func (rb *RabbitClient) IsShutdown() bool {
	select {
	case <-rb.shutdownSignal:
		return true
	default:
		return false
	}
}
