package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/models"

	"github.com/IBM/sarama"
)

func (m *PartitionManager) runWorker(ctx context.Context, partition int, partitionConsumer sarama.PartitionConsumer, batchProcessor *BatchProcessor) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	log := m.log.With("partition", partition)

	for {
		select {
		case <-ctx.Done():
			log.Infow("shutdown signal received")
			batchProcessor.ProcessRemaining(ctx)
			return

		case msg, ok := <-partitionConsumer.Messages():
			if !ok {
				batchProcessor.ProcessRemaining(ctx)
				return
			}
			var lifecycleMsg models.LifecycleMessage
			if err := json.Unmarshal(msg.Value, &lifecycleMsg); err != nil {
				log.Errorw("failed to unmarshal lifecycle message", "offset", msg.Offset, "error", err)
				continue
			}
			if err := validateMessage(lifecycleMsg); err != nil {
				log.Errorw("dropping lifecycle message", "offset", msg.Offset, "error", err)
				continue
			}
			batchProcessor.AddMessage(msg, lifecycleMsg)

		case err, ok := <-partitionConsumer.Errors():
			if ok {
				log.Errorw("kafka consumer error", "error", err)
			}

		case <-ticker.C:
			batchProcessor.ProcessBatch(ctx)
		}
	}
}
