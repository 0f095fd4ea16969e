package services

import (
	"testing"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/models"
)

func TestImpressionTarget(t *testing.T) {
	tests := []struct {
		name     string
		campaign models.Campaign
		want     int64
	}{
		{name: "cpm", campaign: models.Campaign{PaymentType: models.PaymentTypeCPM, Budget: dec("100"), PaymentRate: dec("2")}, want: 50000},
		{name: "cpm floors", campaign: models.Campaign{PaymentType: models.PaymentTypeCPM, Budget: dec("10"), PaymentRate: dec("3")}, want: 3333},
		{name: "cpm without rate", campaign: models.Campaign{PaymentType: models.PaymentTypeCPM, Budget: dec("10"), PaymentRate: dec("0")}, want: 0},
		{name: "fixed", campaign: models.Campaign{PaymentType: models.PaymentTypeFixed, Budget: dec("2.5"), PaymentRate: dec("40")}, want: 2500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ImpressionTarget(&tt.campaign); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEvaluateCompletion(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	eightDaysAgo := now.Add(-8 * 24 * time.Hour)
	sixDaysAgo := now.Add(-6 * 24 * time.Hour)

	cpm := func(budget, remaining, rate string) models.Campaign {
		return models.Campaign{
			PaymentType:     models.PaymentTypeCPM,
			Budget:          dec(budget),
			RemainingBudget: dec(remaining),
			PaymentRate:     dec(rate),
		}
	}
	withEnd := func(c models.Campaign, end time.Time) models.Campaign {
		c.EndDate = &end
		return c
	}

	tests := []struct {
		name     string
		campaign models.Campaign
		metrics  models.CampaignMetrics
		want     CompletionDecision
	}{
		{
			name:     "impression target",
			campaign: cpm("100", "100", "2"),
			metrics:  models.CampaignMetrics{TotalImpressions: 50000, ActiveParticipants: 1, TotalParticipants: 1},
			want:     CompletionDecision{IsComplete: true, Reason: "Impression target achieved: 50000/50000"},
		},
		{
			name:     "impression target wins over end date",
			campaign: withEnd(cpm("100", "100", "2"), past),
			metrics:  models.CampaignMetrics{TotalImpressions: 60000},
			want:     CompletionDecision{IsComplete: true, Reason: "Impression target achieved: 60000/50000"},
		},
		{
			name:     "budget threshold",
			campaign: cpm("100", "4", "2"),
			metrics:  models.CampaignMetrics{TotalImpressions: 48000, ActiveParticipants: 1, TotalParticipants: 1},
			want:     CompletionDecision{IsComplete: true, Reason: "Budget threshold reached: 96.00% spent"},
		},
		{
			name:     "budget exhausted",
			campaign: cpm("0", "0", "2"),
			want:     CompletionDecision{IsComplete: true, Reason: "Budget exhausted"},
		},
		{
			name:     "end date reached",
			campaign: withEnd(cpm("100", "100", "2"), past),
			metrics:  models.CampaignMetrics{ActiveParticipants: 1, TotalParticipants: 1},
			want:     CompletionDecision{IsComplete: true, Reason: "End date reached: 2025-03-10T11:00:00Z"},
		},
		{
			name:     "end date ahead",
			campaign: withEnd(cpm("100", "100", "2"), future),
			metrics:  models.CampaignMetrics{ActiveParticipants: 1, TotalParticipants: 1},
		},
		{
			name:     "inactive participants",
			campaign: cpm("100", "100", "2"),
			metrics:  models.CampaignMetrics{TotalParticipants: 2, LastActivityAt: &eightDaysAgo},
			want:     CompletionDecision{IsComplete: true, Reason: "No active participants for 8 days"},
		},
		{
			name:     "recently inactive",
			campaign: cpm("100", "100", "2"),
			metrics:  models.CampaignMetrics{TotalParticipants: 2, LastActivityAt: &sixDaysAgo},
		},
		{
			name:     "no participants yet",
			campaign: cpm("100", "100", "2"),
			metrics:  models.CampaignMetrics{LastActivityAt: &eightDaysAgo},
		},
		{
			name:     "below minimum impressions",
			campaign: cpm("50", "4.99", "50"),
			metrics:  models.CampaignMetrics{TotalImpressions: 900, ActiveParticipants: 1, TotalParticipants: 1},
			want:     CompletionDecision{IsComplete: true, Reason: "Remaining budget 4.99 is below 100 impressions"},
		},
		{
			name: "fixed campaign in progress",
			campaign: models.Campaign{
				PaymentType:     models.PaymentTypeFixed,
				Budget:          dec("10"),
				RemainingBudget: dec("0.01"),
				PaymentRate:     dec("10"),
			},
			metrics: models.CampaignMetrics{TotalImpressions: 100, ActiveParticipants: 1, TotalParticipants: 1},
			want:    CompletionDecision{IsComplete: true, Reason: "Budget threshold reached: 99.90% spent"},
		},
		{
			name:     "healthy campaign",
			campaign: cpm("100", "60", "2"),
			metrics:  models.CampaignMetrics{TotalImpressions: 20000, ActiveParticipants: 3, TotalParticipants: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateCompletion(&tt.campaign, tt.metrics, now, DefaultCompletionCriteria())
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
