package worker

import (
	"context"
	"fmt"

	"github.com/Game-Triggers/prototype-sub000/internal/models"
	"github.com/Game-Triggers/prototype-sub000/internal/services"

	"github.com/shopspring/decimal"
)

// LifecycleHandler reacts to campaign lifecycle messages.
// *services.CampaignFinanceService implements it.
type LifecycleHandler interface {
	HandleCampaignActivation(ctx context.Context, campaignID string) error
	HandleCampaignPause(ctx context.Context, campaignID string) error
	HandleCampaignResume(ctx context.Context, campaignID string) error
	HandleBudgetIncrease(ctx context.Context, campaignID string, increase decimal.Decimal) error
	HandleBudgetDecrease(ctx context.Context, campaignID string, decrease decimal.Decimal) (decimal.Decimal, error)
	HandleMilestoneCompletion(ctx context.Context, input services.MilestoneInput) (*services.MilestoneResult, error)
	HandleCampaignCompletion(ctx context.Context, campaignID string) error
	HandleCampaignCancellation(ctx context.Context, campaignID, reason string) error
	HandleEarlyParticipationEnd(ctx context.Context, campaignID, streamerID, reason string) error
	HandleStreamerRemoval(ctx context.Context, campaignID, streamerID, reason string, forfeit bool) error
}

var _ LifecycleHandler = (*services.CampaignFinanceService)(nil)

// Dispatch routes one lifecycle message to its handler.
func Dispatch(ctx context.Context, h LifecycleHandler, msg models.LifecycleMessage) error {
	switch msg.EventType {
	case models.LifecycleActivated:
		return h.HandleCampaignActivation(ctx, msg.CampaignID)
	case models.LifecyclePaused:
		return h.HandleCampaignPause(ctx, msg.CampaignID)
	case models.LifecycleResumed:
		return h.HandleCampaignResume(ctx, msg.CampaignID)
	case models.LifecycleBudgetIncreased:
		return h.HandleBudgetIncrease(ctx, msg.CampaignID, msg.Amount)
	case models.LifecycleBudgetDecreased:
		_, err := h.HandleBudgetDecrease(ctx, msg.CampaignID, msg.Amount)
		return err
	case models.LifecycleMilestone:
		_, err := h.HandleMilestoneCompletion(ctx, services.MilestoneInput{
			CampaignID:    msg.CampaignID,
			StreamerID:    msg.StreamerID,
			MilestoneType: msg.MilestoneType,
			Amount:        msg.Amount,
		})
		return err
	case models.LifecycleCompleted:
		return h.HandleCampaignCompletion(ctx, msg.CampaignID)
	case models.LifecycleCancelled:
		return h.HandleCampaignCancellation(ctx, msg.CampaignID, msg.Reason)
	case models.LifecycleParticipantLeft:
		return h.HandleEarlyParticipationEnd(ctx, msg.CampaignID, msg.StreamerID, msg.Reason)
	case models.LifecycleStreamerRemoved:
		return h.HandleStreamerRemoval(ctx, msg.CampaignID, msg.StreamerID, msg.Reason, msg.ForfeitEarnings)
	default:
		return models.BadRequest("unknown lifecycle event type: %s", msg.EventType)
	}
}

func validateMessage(msg models.LifecycleMessage) error {
	if msg.CampaignID == "" {
		return fmt.Errorf("lifecycle message %s has no campaign id", msg.EventID)
	}
	return nil
}
