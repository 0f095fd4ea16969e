package broker

import (
	"github.com/Game-Triggers/prototype-sub000/internal/config"

	"github.com/segmentio/kafka-go"
)

// NewKafkaWriter returns a writer for one of the ledger's outgoing topics.
func NewKafkaWriter(cfg config.KafkaConfig, topic string) (*kafka.Writer, error) {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},    // Use hash balancer to guarantee order
		RequiredAcks: kafka.RequireOne, // Wait for acknowledgement from leader
		Async:        false,            // Synchronous writing for reliability
		MaxAttempts:  10,
	}

	return writer, nil
}
