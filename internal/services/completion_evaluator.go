package services

import (
	"fmt"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CompletionCriteria are the thresholds used by EvaluateCompletion.
type CompletionCriteria struct {
	// Share of the budget, in percent, that completes a campaign once spent.
	BudgetThresholdPercent decimal.Decimal
	// Days without activity after which a campaign with no active
	// participants completes.
	InactivityDays int
	// CPM campaigns complete when less than this many impressions' worth of
	// budget is left.
	MinImpressionsLeft int64
}

func DefaultCompletionCriteria() CompletionCriteria {
	return CompletionCriteria{
		BudgetThresholdPercent: decimal.NewFromInt(95),
		InactivityDays:         7,
		MinImpressionsLeft:     100,
	}
}

type CompletionDecision struct {
	IsComplete bool   `json:"isComplete"`
	Reason     string `json:"reason,omitempty"`
}

// ImpressionTarget is the number of impressions the budget buys:
// floor(budget/rate*1000) for CPM, floor(budget*1000) for fixed campaigns.
// Zero means the campaign has no usable target.
func ImpressionTarget(campaign *models.Campaign) int64 {
	if campaign.IsCPM() {
		if !campaign.PaymentRate.IsPositive() {
			return 0
		}
		return campaign.Budget.Mul(thousand).Div(campaign.PaymentRate).Floor().IntPart()
	}
	return campaign.Budget.Mul(thousand).Floor().IntPart()
}

// EvaluateCompletion decides whether the campaign should complete. Checks
// run in priority order and the first match is reported.
func EvaluateCompletion(campaign *models.Campaign, metrics models.CampaignMetrics, now time.Time, criteria CompletionCriteria) CompletionDecision {
	if target := ImpressionTarget(campaign); target > 0 && metrics.TotalImpressions >= target {
		return complete("Impression target achieved: %d/%d", metrics.TotalImpressions, target)
	}

	if campaign.Budget.IsPositive() {
		spentPercent := campaign.SpentBudget().Mul(hundred).Div(campaign.Budget)
		if spentPercent.GreaterThanOrEqual(criteria.BudgetThresholdPercent) {
			return complete("Budget threshold reached: %s%% spent", spentPercent.StringFixed(2))
		}
	}

	if !campaign.RemainingBudget.IsPositive() {
		return complete("Budget exhausted")
	}

	if campaign.EndDate != nil && !now.Before(*campaign.EndDate) {
		return complete("End date reached: %s", campaign.EndDate.UTC().Format(time.RFC3339))
	}

	if metrics.ActiveParticipants == 0 && metrics.TotalParticipants > 0 && metrics.LastActivityAt != nil {
		idleDays := int(now.Sub(*metrics.LastActivityAt) / (24 * time.Hour))
		if idleDays >= criteria.InactivityDays {
			return complete("No active participants for %d days", idleDays)
		}
	}

	if campaign.IsCPM() {
		minLeft := campaign.PaymentRate.Div(thousand).Mul(decimal.NewFromInt(criteria.MinImpressionsLeft))
		if campaign.RemainingBudget.LessThan(minLeft) {
			return complete("Remaining budget %s is below %d impressions", campaign.RemainingBudget.StringFixed(2), criteria.MinImpressionsLeft)
		}
	}

	return CompletionDecision{}
}

func complete(format string, args ...any) CompletionDecision {
	return CompletionDecision{IsComplete: true, Reason: fmt.Sprintf(format, args...)}
}
