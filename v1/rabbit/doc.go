// Package rabbit is the AMQP transport of the background job queue.
//
// The client declares a durable direct exchange, a durable work queue and,
// when configured, a dead-letter exchange and queue that receive messages
// rejected without requeue. Messages are published persistent and every
// publish waits for the broker's confirm, so a nil error from Publish means
// the broker owns the message. Consumers acknowledge manually: a message is
// removed only after AckMsg, which gives at-least-once delivery.
//
// Basic usage:
//
//	client, err := rabbit.NewClient(cfg, log, obs)
//	if err != nil {
//		return err
//	}
//	defer client.GracefulShutdown()
//
//	err = client.Publish(ctx, body, map[string]interface{}{"job-type": "clustering"})
//
//	wg := &sync.WaitGroup{}
//	for msg := range client.Consume(ctx, wg) {
//		if err := handle(msg.Body()); err != nil {
//			_ = msg.NackMsg(true)
//			continue
//		}
//		_ = msg.AckMsg()
//	}
//
// The connection is monitored by RetryConnection, which re-dials and
// re-declares the topology after a broker restart. With fx, FXModule
// provides the client and runs RetryConnection for the lifetime of the app.
package rabbit
