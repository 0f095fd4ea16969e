package kafkarepo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/models"
	"github.com/Game-Triggers/prototype-sub000/internal/ports"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// CommandRepository hands key releases and auto top-ups to the services
// that own them by writing commands to Kafka.
type CommandRepository struct {
	writer *kafka.Writer
	nowFn  func() time.Time
}

var (
	_ ports.KeyPool        = (*CommandRepository)(nil)
	_ ports.PaymentGateway = (*CommandRepository)(nil)
)

func NewCommandRepository(writer *kafka.Writer) *CommandRepository {
	return &CommandRepository{
		writer: writer,
		nowFn:  time.Now,
	}
}

func (r *CommandRepository) ReleaseKey(ctx context.Context, streamerID, campaignID string, cooloff time.Duration) error {
	return r.send(ctx, models.Command{
		Type:           models.CommandReleaseKey,
		UserID:         streamerID,
		CampaignID:     campaignID,
		CooloffSeconds: int64(cooloff / time.Second),
	})
}

func (r *CommandRepository) InitiateAutoTopup(ctx context.Context, userID string, amount decimal.Decimal) error {
	return r.send(ctx, models.Command{
		Type:   models.CommandAutoTopup,
		UserID: userID,
		Amount: amount,
	})
}

func (r *CommandRepository) send(ctx context.Context, cmd models.Command) error {
	cmd.ID = uuid.NewString()
	cmd.IssuedAt = r.nowFn().UTC()

	msgBytes, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	// Keyed by user so commands for one streamer or brand stay ordered
	err = r.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(cmd.UserID),
		Value: msgBytes,
		Headers: []kafka.Header{
			{Key: "command_type", Value: []byte(cmd.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write command to kafka: %w", err)
	}
	return nil
}

func (r *CommandRepository) Close() error {
	return r.writer.Close()
}
