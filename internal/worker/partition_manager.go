package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/config"
	"github.com/Game-Triggers/prototype-sub000/pkg/logger"

	"github.com/IBM/sarama"
)

// PartitionManager runs one consumer goroutine per partition of the
// lifecycle topic. Each partition batches its own messages, so ordering
// within a campaign holds as long as producers key by campaign id.
type PartitionManager struct {
	kafka    config.KafkaConfig
	interval time.Duration
	handler  LifecycleHandler
	log      *logger.Logger
	wg       sync.WaitGroup
}

func NewPartitionManager(kafka config.KafkaConfig, interval time.Duration, handler LifecycleHandler, log *logger.Logger) *PartitionManager {
	return &PartitionManager{
		kafka:    kafka,
		interval: interval,
		handler:  handler,
		log:      log,
	}
}

// Start blocks until ctx is cancelled and every partition worker has
// drained its batch.
func (m *PartitionManager) Start(ctx context.Context) error {
	m.log.Infow("starting lifecycle workers", "topic", m.kafka.LifecycleTopic, "partitions", m.kafka.Partitions)

	consumer, err := sarama.NewConsumer(m.kafka.Brokers, m.kafka.GetSaramaConfig())
	if err != nil {
		return fmt.Errorf("failed to create Kafka consumer: %w", err)
	}
	defer consumer.Close()

	return m.consume(ctx, consumer)
}

func (m *PartitionManager) consume(ctx context.Context, consumer sarama.Consumer) error {
	for partition := 0; partition < m.kafka.Partitions; partition++ {
		m.wg.Add(1)
		go m.startWorkerForPartition(ctx, consumer, partition)
	}

	// Wait for all workers to complete to prevent program termination
	m.wg.Wait()
	m.log.Infow("all partition workers stopped")
	return nil
}

func (m *PartitionManager) startWorkerForPartition(ctx context.Context, consumer sarama.Consumer, partition int) {
	defer m.wg.Done()

	partitionConsumer, err := consumer.ConsumePartition(
		m.kafka.LifecycleTopic,
		int32(partition),
		sarama.OffsetNewest,
	)
	if err != nil {
		m.log.Errorw("failed to create partition consumer", "partition", partition, "error", err)
		return
	}
	defer partitionConsumer.Close()

	batchProcessor := NewBatchProcessor(partition, m.handler, m.log)
	m.runWorker(ctx, partition, partitionConsumer, batchProcessor)
}
