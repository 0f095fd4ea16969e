package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CampaignStatus string

// Campaign status constants
const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusPending   CampaignStatus = "pending"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusCancelled CampaignStatus = "cancelled"
	CampaignStatusRejected  CampaignStatus = "rejected"
)

type PaymentType string

// Payment models
const (
	PaymentTypeCPM   PaymentType = "cpm"
	PaymentTypeFixed PaymentType = "fixed"
)

// Campaign is owned by the campaign service; the ledger reads it and updates
// its status and budget fields.
type Campaign struct {
	ID                       string          `db:"id" json:"id"`
	BrandID                  string          `db:"brand_id" json:"brandId"`
	Title                    string          `db:"title" json:"title"`
	Budget                   decimal.Decimal `db:"budget" json:"budget"`
	RemainingBudget          decimal.Decimal `db:"remaining_budget" json:"remainingBudget"`
	PaymentType              PaymentType     `db:"payment_type" json:"paymentType"`
	PaymentRate              decimal.Decimal `db:"payment_rate" json:"paymentRate"`
	Status                   CampaignStatus  `db:"status" json:"status"`
	StartDate                *time.Time      `db:"start_date" json:"startDate,omitempty"`
	EndDate                  *time.Time      `db:"end_date" json:"endDate,omitempty"`
	GKeyCooloffHours         int             `db:"g_key_cooloff_hours" json:"gKeyCooloffHours"`
	CompletedAt              *time.Time      `db:"completed_at" json:"completedAt,omitempty"`
	CompletionReason         *string         `db:"completion_reason" json:"completionReason,omitempty"`
	FinalEarningsTransferred decimal.Decimal `db:"final_earnings_transferred" json:"finalEarningsTransferred"`
	Metadata                 Metadata        `db:"metadata" json:"metadata"`
	CreatedAt                time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt                time.Time       `db:"updated_at" json:"updatedAt"`
}

func (c *Campaign) IsCPM() bool {
	return c.PaymentType == PaymentTypeCPM
}

// SpentBudget returns budget minus remaining budget.
func (c *Campaign) SpentBudget() decimal.Decimal {
	return c.Budget.Sub(c.RemainingBudget)
}

type ParticipationStatus string

// Participation status constants
const (
	ParticipationStatusActive    ParticipationStatus = "active"
	ParticipationStatusPaused    ParticipationStatus = "paused"
	ParticipationStatusCompleted ParticipationStatus = "completed"
	ParticipationStatusLeftEarly ParticipationStatus = "left_early"
	ParticipationStatusRemoved   ParticipationStatus = "removed"
)

type Participation struct {
	ID                    string              `db:"id" json:"id"`
	CampaignID            string              `db:"campaign_id" json:"campaignId"`
	StreamerID            string              `db:"streamer_id" json:"streamerId"`
	Status                ParticipationStatus `db:"status" json:"status"`
	Impressions           int64               `db:"impressions" json:"impressions"`
	Clicks                int64               `db:"clicks" json:"clicks"`
	EstimatedEarnings     decimal.Decimal     `db:"estimated_earnings" json:"estimatedEarnings"`
	FinalEarnings         *decimal.Decimal    `db:"final_earnings" json:"finalEarnings,omitempty"`
	AverageViewers        float64             `db:"average_viewers" json:"averageViewers"`
	PeakViewers           int64               `db:"peak_viewers" json:"peakViewers"`
	LastActivityAt        *time.Time          `db:"last_activity_at" json:"lastActivityAt,omitempty"`
	JoinedAt              time.Time           `db:"joined_at" json:"joinedAt"`
	LeftAt                *time.Time          `db:"left_at" json:"leftAt,omitempty"`
	CompletedAt           *time.Time          `db:"completed_at" json:"completedAt,omitempty"`
	EarningsTransferredAt *time.Time          `db:"earnings_transferred_at" json:"earningsTransferredAt,omitempty"`
}

// CampaignMetrics aggregates participations for completion evaluation.
type CampaignMetrics struct {
	TotalImpressions   int64           `json:"totalImpressions"`
	TotalClicks        int64           `json:"totalClicks"`
	TotalEarnings      decimal.Decimal `json:"totalEarnings"`
	ActiveParticipants int             `json:"activeParticipants"`
	TotalParticipants  int             `json:"totalParticipants"`
	AverageViewers     float64         `json:"averageViewers"`
	PeakViewers        int64           `json:"peakViewers"`
	LastActivityAt     *time.Time      `json:"lastActivityAt,omitempty"`
}

// AggregateMetrics folds active and completed participations into metrics.
// Participations in other states are ignored.
func AggregateMetrics(participations []Participation) CampaignMetrics {
	m := CampaignMetrics{TotalEarnings: decimal.Zero}
	var viewerSum float64
	for i := range participations {
		p := &participations[i]
		if p.Status != ParticipationStatusActive && p.Status != ParticipationStatusCompleted {
			continue
		}
		m.TotalParticipants++
		if p.Status == ParticipationStatusActive {
			m.ActiveParticipants++
		}
		m.TotalImpressions += p.Impressions
		m.TotalClicks += p.Clicks
		m.TotalEarnings = m.TotalEarnings.Add(p.EstimatedEarnings)
		viewerSum += p.AverageViewers
		if p.PeakViewers > m.PeakViewers {
			m.PeakViewers = p.PeakViewers
		}
		if p.LastActivityAt != nil && (m.LastActivityAt == nil || p.LastActivityAt.After(*m.LastActivityAt)) {
			t := *p.LastActivityAt
			m.LastActivityAt = &t
		}
	}
	if m.TotalParticipants > 0 {
		m.AverageViewers = viewerSum / float64(m.TotalParticipants)
	}
	return m
}
