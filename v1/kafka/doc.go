// Package kafka publishes clustering run activation events.
//
// Every time a run becomes the active run of its family, the clustering
// engine hands a runstore.ActivationEvent to the Producer, which writes it as
// a JSON message keyed by family. Keying by family keeps the events of one
// family in one partition, so consumers see activations in order.
//
// Basic usage:
//
//	producer, err := kafka.NewProducer(kafka.Config{
//		Brokers: []string{"localhost:9092"},
//		Topic:   "lexgraph.run-activated",
//	}, log, obs)
//	if err != nil {
//		return err
//	}
//	defer producer.Close()
//
//	err = producer.PublishActivation(ctx, event)
//
// TLS and SASL (PLAIN, SCRAM-SHA-256, SCRAM-SHA-512) are configured through
// Config.TLS and Config.SASL.
package kafka
