package kafkarepo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Game-Triggers/prototype-sub000/internal/models"
	"github.com/Game-Triggers/prototype-sub000/internal/ports"

	"github.com/segmentio/kafka-go"
)

type EventRepository struct {
	writer *kafka.Writer
}

var _ ports.EventPublisher = (*EventRepository)(nil)

func NewEventRepository(writer *kafka.Writer) *EventRepository {
	return &EventRepository{
		writer: writer,
	}
}

// Publish sends a domain event to Kafka
func (r *EventRepository) Publish(ctx context.Context, event models.Event) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// The aggregate id is the key so events of one wallet or campaign stay ordered
	err = r.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: msgBytes,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	})

	if err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

func (r *EventRepository) Close() error {
	return r.writer.Close()
}
