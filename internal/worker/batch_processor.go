package worker

import (
	"context"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/models"
	"github.com/Game-Triggers/prototype-sub000/pkg/logger"

	"github.com/IBM/sarama"
)

// BatchProcessor buffers the lifecycle messages of one partition and hands
// them to the handler grouped by campaign, in arrival order.
type BatchProcessor struct {
	partitionID int
	handler     LifecycleHandler
	log         *logger.Logger

	messages      []*sarama.ConsumerMessage
	lifecycleMsgs []models.LifecycleMessage
	lastProcessed time.Time
}

func NewBatchProcessor(partitionID int, handler LifecycleHandler, log *logger.Logger) *BatchProcessor {
	return &BatchProcessor{
		partitionID:   partitionID,
		handler:       handler,
		log:           log.With("partition", partitionID),
		messages:      make([]*sarama.ConsumerMessage, 0),
		lifecycleMsgs: make([]models.LifecycleMessage, 0),
		lastProcessed: time.Now(),
	}
}

func (bp *BatchProcessor) AddMessage(msg *sarama.ConsumerMessage, lifecycleMsg models.LifecycleMessage) {
	bp.messages = append(bp.messages, msg)
	bp.lifecycleMsgs = append(bp.lifecycleMsgs, lifecycleMsg)
}

func (bp *BatchProcessor) Len() int {
	return len(bp.lifecycleMsgs)
}

// ProcessBatch handles everything buffered so far and clears the buffer.
// A failing message skips the rest of its campaign's messages in this
// batch; other campaigns are unaffected.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context) {
	if len(bp.lifecycleMsgs) == 0 {
		return
	}

	bp.log.Debugw("processing batch", "messages", len(bp.lifecycleMsgs))

	order, byCampaign := bp.groupByCampaign()
	failed := 0
	for _, campaignID := range order {
		msgs := byCampaign[campaignID]
		for i, msg := range msgs {
			if err := Dispatch(ctx, bp.handler, msg); err != nil {
				bp.log.Errorw("failed to process lifecycle message",
					"campaign_id", campaignID, "event_id", msg.EventID, "event_type", msg.EventType,
					"skipped", len(msgs)-i-1, "error", err)
				failed++
				// Continue processing other campaigns
				break
			}
		}
	}

	if last := bp.messages[len(bp.messages)-1]; last != nil {
		bp.log.Debugw("batch processed", "last_offset", last.Offset)
	}
	bp.messages = bp.messages[:0]
	bp.lifecycleMsgs = bp.lifecycleMsgs[:0]
	bp.lastProcessed = time.Now()

	if failed > 0 {
		bp.log.Warnw("batch processed with failures", "campaigns", len(order), "failed", failed)
	}
}

// ProcessRemaining drains the buffer before shutdown. The handler still
// gets a live context so in-flight work can commit.
func (bp *BatchProcessor) ProcessRemaining(ctx context.Context) {
	if len(bp.lifecycleMsgs) == 0 {
		return
	}
	bp.log.Infow("processing remaining messages before shutdown", "messages", len(bp.lifecycleMsgs))
	bp.ProcessBatch(context.WithoutCancel(ctx))
}

func (bp *BatchProcessor) groupByCampaign() ([]string, map[string][]models.LifecycleMessage) {
	var order []string
	byCampaign := make(map[string][]models.LifecycleMessage)

	for _, msg := range bp.lifecycleMsgs {
		if _, seen := byCampaign[msg.CampaignID]; !seen {
			order = append(order, msg.CampaignID)
		}
		byCampaign[msg.CampaignID] = append(byCampaign[msg.CampaignID], msg)
	}

	return order, byCampaign
}
