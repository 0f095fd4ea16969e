package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Domain events emitted by the ledger
const (
	EventFundsAdded           = "wallet.funds_added"
	EventFundsReserved        = "wallet.funds_reserved"
	EventFundsCharged         = "wallet.funds_charged"
	EventFundsReleased        = "wallet.funds_released"
	EventWithdrawalRequested  = "wallet.withdrawal_requested"
	EventEarningsCredited     = "earnings.credited"
	EventEarningsReleased     = "earnings.released"
	EventEarningsCancelled    = "earnings.cancelled"
	EventCampaignActivated    = "campaign.activated"
	EventCampaignPaused       = "campaign.paused"
	EventCampaignResumed      = "campaign.resumed"
	EventCampaignBudgetChange = "campaign.budget_changed"
	EventCampaignMilestone    = "campaign.milestone_completed"
	EventCampaignCompleted    = "campaign.completed"
	EventCampaignCancelled    = "campaign.cancelled"
	EventCampaignLowBudget    = "campaign.low_budget"
	EventParticipationEnded   = "participation.ended"
	EventStreamerRemoved      = "participation.streamer_removed"
	EventAdminForceComplete   = "admin.campaign.force_completed"
	EventAdminForceCancel     = "admin.campaign.force_cancelled"
	EventAdminBudgetOverride  = "admin.campaign.budget_overridden"
	EventAdminWalletFrozen    = "admin.wallet.frozen"
	EventAdminWalletUnfrozen  = "admin.wallet.unfrozen"
	EventAdminWalletAdjusted  = "admin.wallet.adjusted"
	EventAdminEarningsRelease = "admin.earnings.released"
	EventAdminDisputeHold     = "admin.wallet.dispute_hold"
)

// Event is the envelope published on the domain event bus.
type Event struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	AggregateID string         `json:"aggregateId"`
	OccurredAt  time.Time      `json:"occurredAt"`
	Payload     map[string]any `json:"payload"`
}

// Campaign lifecycle message types consumed from the lifecycle topic
const (
	LifecycleActivated       = "campaign.activated"
	LifecyclePaused          = "campaign.paused"
	LifecycleResumed         = "campaign.resumed"
	LifecycleBudgetIncreased = "campaign.budget_increased"
	LifecycleBudgetDecreased = "campaign.budget_decreased"
	LifecycleMilestone       = "campaign.milestone"
	LifecycleCompleted       = "campaign.completed"
	LifecycleCancelled       = "campaign.cancelled"
	LifecycleParticipantLeft = "participation.left_early"
	LifecycleStreamerRemoved = "participation.removed"
)

// LifecycleMessage is one campaign lifecycle event read from Kafka.
type LifecycleMessage struct {
	EventID         string          `json:"event_id"`
	EventType       string          `json:"event_type"`
	CampaignID      string          `json:"campaign_id"`
	StreamerID      string          `json:"streamer_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	MilestoneType   string          `json:"milestone_type,omitempty"`
	Reason          string          `json:"reason,omitempty"`
	ForfeitEarnings bool            `json:"forfeit_earnings,omitempty"`
}

// Commands sent to services outside the ledger
const (
	CommandReleaseKey = "gkey.release"
	CommandAutoTopup  = "payment.auto_topup"
)

// Command asks another service to act on behalf of the ledger.
type Command struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	UserID         string          `json:"userId"`
	CampaignID     string          `json:"campaignId,omitempty"`
	Amount         decimal.Decimal `json:"amount,omitempty"`
	CooloffSeconds int64           `json:"cooloffSeconds,omitempty"`
	IssuedAt       time.Time       `json:"issuedAt"`
}
