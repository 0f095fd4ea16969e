package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/models"
	"github.com/Game-Triggers/prototype-sub000/internal/ports"
	"github.com/Game-Triggers/prototype-sub000/pkg/logger"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	systemActor              = "system"
	finalSettlementMilestone = "final_settlement"
)

type CompletionConfig struct {
	Criteria    CompletionCriteria
	Concurrency int
	LockTTL     time.Duration
}

// CompletionService finds campaigns that are done and settles them.
type CompletionService struct {
	campaigns ports.CampaignRepository
	wallets   *WalletService
	finance   *CampaignFinanceService
	keys      ports.KeyPool
	locker    ports.Locker
	events    *eventEmitter
	cfg       CompletionConfig
	log       *logger.Logger
	nowFn     func() time.Time
}

func NewCompletionService(
	campaigns ports.CampaignRepository,
	wallets *WalletService,
	finance *CampaignFinanceService,
	keys ports.KeyPool,
	locker ports.Locker,
	publisher ports.EventPublisher,
	cfg CompletionConfig,
	log *logger.Logger,
) *CompletionService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &CompletionService{
		campaigns: campaigns,
		wallets:   wallets,
		finance:   finance,
		keys:      keys,
		locker:    locker,
		events:    newEventEmitter(publisher, log),
		cfg:       cfg,
		log:       log,
		nowFn:     time.Now,
	}
}

// SweepReport is the outcome of CheckAllCampaignsForCompletion.
type SweepReport struct {
	Checked   int               `json:"checked"`
	Completed []string          `json:"completed"`
	Failed    map[string]string `json:"failed,omitempty"`
}

type ParticipantSettlement struct {
	StreamerID string          `json:"streamerId"`
	Amount     decimal.Decimal `json:"amount"`
	Error      string          `json:"error,omitempty"`
}

// SettlementResult describes one completed campaign settlement.
type SettlementResult struct {
	CampaignID   string                  `json:"campaignId"`
	Reason       string                  `json:"reason"`
	Transferred  decimal.Decimal         `json:"transferred"`
	Charged      decimal.Decimal         `json:"charged"`
	Participants []ParticipantSettlement `json:"participants"`
	Failed       int                     `json:"failed"`
}

// CheckAllCampaignsForCompletion checks every active campaign concurrently.
// One campaign failing does not stop the others.
func (s *CompletionService) CheckAllCampaignsForCompletion(ctx context.Context) (*SweepReport, error) {
	campaigns, err := s.campaigns.ListCampaignsByStatus(ctx, models.CampaignStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active campaigns: %w", err)
	}

	report := &SweepReport{Checked: len(campaigns), Completed: []string{}, Failed: map[string]string{}}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)
	for i := range campaigns {
		campaignID := campaigns[i].ID
		g.Go(func() error {
			completed, err := s.CheckCampaignCompletion(ctx, campaignID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.log.Errorw("campaign completion check failed", "campaign_id", campaignID, "error", err)
				report.Failed[campaignID] = err.Error()
				return nil
			}
			if completed {
				report.Completed = append(report.Completed, campaignID)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(report.Completed)
	s.log.Infow("completion sweep finished", "checked", report.Checked,
		"completed", len(report.Completed), "failed", len(report.Failed))
	return report, nil
}

// CheckCampaignCompletion completes the campaign when it meets a completion
// criterion. It reports whether the campaign was completed by this call.
func (s *CompletionService) CheckCampaignCompletion(ctx context.Context, campaignID string) (bool, error) {
	var completed bool
	acquired, err := s.withSettlementLock(ctx, campaignID, func() error {
		campaign, err := s.campaigns.GetCampaign(ctx, campaignID)
		if err != nil {
			return err
		}
		if campaign.Status != models.CampaignStatusActive {
			return nil
		}

		metrics, err := s.GetCampaignMetrics(ctx, campaignID)
		if err != nil {
			return err
		}
		decision := EvaluateCompletion(campaign, metrics, s.nowFn().UTC(), s.cfg.Criteria)
		if !decision.IsComplete {
			return nil
		}

		s.log.Infow("campaign meets completion criteria", "campaign_id", campaignID, "reason", decision.Reason)
		if _, err := s.settle(ctx, campaign, decision.Reason, nil); err != nil {
			return err
		}
		completed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !acquired {
		s.log.Debugw("campaign is being settled elsewhere", "campaign_id", campaignID)
	}
	return completed, nil
}

// EvaluateCampaign runs the completion criteria without acting on them.
func (s *CompletionService) EvaluateCampaign(ctx context.Context, campaignID string) (CompletionDecision, models.CampaignMetrics, error) {
	campaign, err := s.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return CompletionDecision{}, models.CampaignMetrics{}, err
	}
	metrics, err := s.GetCampaignMetrics(ctx, campaignID)
	if err != nil {
		return CompletionDecision{}, models.CampaignMetrics{}, err
	}
	return EvaluateCompletion(campaign, metrics, s.nowFn().UTC(), s.cfg.Criteria), metrics, nil
}

// GetCampaignMetrics aggregates the campaign's active and completed
// participations.
func (s *CompletionService) GetCampaignMetrics(ctx context.Context, campaignID string) (models.CampaignMetrics, error) {
	participations, err := s.campaigns.ListParticipations(ctx, campaignID,
		models.ParticipationStatusActive, models.ParticipationStatusCompleted)
	if err != nil {
		return models.CampaignMetrics{}, fmt.Errorf("failed to list participations: %w", err)
	}
	return models.AggregateMetrics(participations), nil
}

// CompleteCampaign settles the campaign regardless of the completion
// criteria. metadata is merged into the campaign record.
func (s *CompletionService) CompleteCampaign(ctx context.Context, campaignID, reason string, metadata models.Metadata) (*SettlementResult, error) {
	var result *SettlementResult
	acquired, err := s.withSettlementLock(ctx, campaignID, func() error {
		campaign, err := s.campaigns.GetCampaign(ctx, campaignID)
		if err != nil {
			return err
		}
		if campaign.Status == models.CampaignStatusCompleted || campaign.Status == models.CampaignStatusCancelled {
			return models.BadRequest("campaign %s is already %s", campaignID, campaign.Status)
		}
		result, err = s.settle(ctx, campaign, reason, metadata)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, models.Conflict("campaign %s is being settled", campaignID)
	}
	return result, nil
}

func (s *CompletionService) withSettlementLock(ctx context.Context, campaignID string, fn func() error) (bool, error) {
	unlock, acquired, err := s.locker.Acquire(ctx, "campaign:settlement:"+campaignID, s.cfg.LockTTL)
	if err != nil {
		return false, err
	}
	if !acquired {
		return false, nil
	}
	defer func() {
		if err := unlock(ctx); err != nil {
			s.log.Warnw("failed to release settlement lock", "campaign_id", campaignID, "error", err)
		}
	}()
	return true, fn()
}

// FinalEarnings computes each participation's payout at settlement. CPM pays
// impressions/1000*rate; fixed splits the rate by impression share. Amounts
// are rounded to cents.
func FinalEarnings(campaign *models.Campaign, participations []models.Participation) []decimal.Decimal {
	out := make([]decimal.Decimal, len(participations))

	if campaign.IsCPM() {
		for i := range participations {
			impressions := decimal.NewFromInt(participations[i].Impressions)
			out[i] = impressions.Div(thousand).Mul(campaign.PaymentRate).Round(2)
		}
		return out
	}

	var total int64
	for i := range participations {
		total += participations[i].Impressions
	}
	for i := range participations {
		if total == 0 {
			out[i] = decimal.Zero
			continue
		}
		impressions := decimal.NewFromInt(participations[i].Impressions)
		out[i] = campaign.PaymentRate.Mul(impressions).Div(decimal.NewFromInt(total)).Round(2)
	}
	return out
}

// settle runs the settlement sequence. Errors before the campaign is marked
// completed are returned and leave the campaign active; later steps only log.
func (s *CompletionService) settle(ctx context.Context, campaign *models.Campaign, reason string, metadata models.Metadata) (*SettlementResult, error) {
	result := &SettlementResult{
		CampaignID:  campaign.ID,
		Reason:      reason,
		Transferred: decimal.Zero,
		Charged:     decimal.Zero,
	}

	active, err := s.campaigns.ListParticipations(ctx, campaign.ID, models.ParticipationStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active participations: %w", err)
	}

	earnings := FinalEarnings(campaign, active)

	// Participants paid by an earlier, interrupted settlement are skipped,
	// but what they got still counts against the settlement charge
	owed := decimal.Zero
	paidBefore := decimal.Zero
	for i := range active {
		switch {
		case active[i].EarningsTransferredAt == nil:
			owed = owed.Add(earnings[i])
		case active[i].FinalEarnings != nil:
			paidBefore = paidBefore.Add(*active[i].FinalEarnings)
		}
	}

	chargedBefore, err := s.settlementCharged(ctx, campaign)
	if err != nil {
		return nil, err
	}

	// The brand is charged before any credit so a brand that cannot pay
	// stops the settlement with nobody paid
	if due := paidBefore.Add(owed).Sub(chargedBefore); due.IsPositive() {
		charged, err := s.chargeSettlement(ctx, campaign, due)
		if err != nil {
			return nil, err
		}
		result.Charged = charged
	}

	result.Participants = make([]ParticipantSettlement, len(active))
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)
	for i := range active {
		g.Go(func() error {
			p := active[i]
			result.Participants[i] = ParticipantSettlement{StreamerID: p.StreamerID, Amount: earnings[i]}
			if p.EarningsTransferredAt != nil {
				result.Participants[i].Amount = decimal.Zero
				return nil
			}
			if err := s.settleParticipant(ctx, campaign, p, earnings[i]); err != nil {
				s.log.Errorw("failed to transfer final earnings", "campaign_id", campaign.ID,
					"streamer_id", p.StreamerID, "amount", earnings[i].String(), "error", err)
				result.Participants[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	for i := range result.Participants {
		if result.Participants[i].Error != "" {
			result.Failed++
			continue
		}
		result.Transferred = result.Transferred.Add(result.Participants[i].Amount)
	}

	// Charged funds that reached nobody go back to the reservation
	excess := chargedBefore.Add(result.Charged).Sub(paidBefore.Add(result.Transferred))
	if excess.IsPositive() {
		if _, err := s.wallets.ReverseCampaignCharge(ctx, campaign.BrandID, campaign.ID, excess,
			finalSettlementMilestone, "final earnings not transferred"); err != nil {
			return nil, fmt.Errorf("failed to reverse unpaid settlement charge: %w", err)
		}
		result.Charged = result.Charged.Sub(excess)
	}

	now := s.nowFn().UTC()
	campaign.Status = models.CampaignStatusCompleted
	campaign.CompletedAt = &now
	campaign.CompletionReason = &reason
	campaign.FinalEarningsTransferred = campaign.FinalEarningsTransferred.Add(result.Transferred)
	campaign.RemainingBudget = campaign.RemainingBudget.Sub(result.Charged)
	if campaign.RemainingBudget.IsNegative() {
		campaign.RemainingBudget = decimal.Zero
	}
	if campaign.Metadata == nil {
		campaign.Metadata = models.Metadata{}
	}
	for k, v := range metadata {
		campaign.Metadata[k] = v
	}
	campaign.UpdatedAt = now
	if err := s.campaigns.UpdateCampaign(ctx, campaign); err != nil {
		return nil, fmt.Errorf("failed to mark campaign completed: %w", err)
	}

	if _, err := s.campaigns.CompleteActiveParticipations(ctx, campaign.ID, now); err != nil {
		s.log.Errorw("failed to complete participations", "campaign_id", campaign.ID, "error", err)
	}

	cooloff := time.Duration(campaign.GKeyCooloffHours) * time.Hour
	for i := range active {
		if err := s.keys.ReleaseKey(ctx, active[i].StreamerID, campaign.ID, cooloff); err != nil {
			s.log.Warnw("failed to release streamer key", "campaign_id", campaign.ID,
				"streamer_id", active[i].StreamerID, "error", err)
		}
	}

	if err := s.finance.HandleCampaignCompletion(ctx, campaign.ID); err != nil {
		s.log.Errorw("campaign completion finance handling failed", "campaign_id", campaign.ID, "error", err)
	}

	metrics, err := s.GetCampaignMetrics(ctx, campaign.ID)
	if err != nil {
		s.log.Warnw("failed to compute final metrics", "campaign_id", campaign.ID, "error", err)
	}
	s.events.emit(ctx, models.EventCampaignCompleted, campaign.ID, map[string]any{
		"reason":                   reason,
		"finalEarningsTransferred": result.Transferred.String(),
		"participants":             len(active),
		"failedTransfers":          result.Failed,
		"totalImpressions":         metrics.TotalImpressions,
		"totalClicks":              metrics.TotalClicks,
		"peakViewers":              metrics.PeakViewers,
	})

	s.log.Infow("campaign settled", "campaign_id", campaign.ID, "reason", reason,
		"transferred", result.Transferred.String(), "failed", result.Failed)
	return result, nil
}

// chargeSettlement moves the owed earnings out of the campaign's
// reservation. Any shortfall is logged and left unfunded by the brand.
func (s *CompletionService) chargeSettlement(ctx context.Context, campaign *models.Campaign, owed decimal.Decimal) (decimal.Decimal, error) {
	reserved, err := s.wallets.GetReservedFunds(ctx, campaign.BrandID, campaign.ID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			reserved = decimal.Zero
		} else {
			return decimal.Zero, fmt.Errorf("failed to get reserved funds: %w", err)
		}
	}

	charge := minDecimal(owed, reserved)
	if owed.GreaterThan(reserved) {
		s.log.Warnw("final earnings exceed campaign reservation", "campaign_id", campaign.ID,
			"owed", owed.String(), "reserved", reserved.String())
	}
	if !charge.IsPositive() {
		return decimal.Zero, nil
	}
	if _, err := s.wallets.ChargeCampaignFunds(ctx, campaign.BrandID, campaign.ID, charge, finalSettlementMilestone); err != nil {
		return decimal.Zero, fmt.Errorf("failed to charge final settlement: %w", err)
	}
	return charge, nil
}

// settlementCharged is the net amount already charged to the brand by
// earlier settlement attempts of the campaign.
func (s *CompletionService) settlementCharged(ctx context.Context, campaign *models.Campaign) (decimal.Decimal, error) {
	txs, err := s.wallets.store.FindTransactions(ctx, models.TransactionFilter{
		UserID:     campaign.BrandID,
		CampaignID: campaign.ID,
		Types:      []models.TransactionType{models.TransactionTypeCampaignCharge},
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get settlement charges: %w", err)
	}
	settlement := txs[:0]
	for i := range txs {
		if txs[i].Metadata["milestoneType"] == finalSettlementMilestone {
			settlement = append(settlement, txs[i])
		}
	}
	return chargedTotal(settlement), nil
}

// settleParticipant credits the final earnings with no hold and releases
// them straight away.
func (s *CompletionService) settleParticipant(ctx context.Context, campaign *models.Campaign, p models.Participation, amount decimal.Decimal) error {
	if amount.IsPositive() {
		hold, err := s.wallets.CreditEarnings(ctx, CreditEarningsInput{
			UserID:      p.StreamerID,
			CampaignID:  campaign.ID,
			Amount:      amount,
			HoldDays:    0,
			CreatedBy:   systemActor,
			Description: fmt.Sprintf("Final earnings for campaign %s", campaign.ID),
		})
		if err != nil {
			return err
		}
		// An unreleased hold has already expired and is picked up by the next hold sweep
		if _, err := s.wallets.ReleaseEarnings(ctx, hold.ID, systemActor); err != nil {
			s.log.Warnw("final earnings left on hold", "campaign_id", campaign.ID,
				"streamer_id", p.StreamerID, "transaction_id", hold.ID, "error", err)
		}
	}

	now := s.nowFn().UTC()
	p.FinalEarnings = &amount
	p.EarningsTransferredAt = &now
	if err := s.campaigns.UpdateParticipation(ctx, &p); err != nil {
		s.log.Errorw("failed to record final earnings on participation", "campaign_id", campaign.ID,
			"streamer_id", p.StreamerID, "error", err)
	}
	return nil
}
