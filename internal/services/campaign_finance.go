package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/models"
	"github.com/Game-Triggers/prototype-sub000/internal/ports"
	"github.com/Game-Triggers/prototype-sub000/pkg/logger"

	"github.com/shopspring/decimal"
)

var thousand = decimal.NewFromInt(1000)

type FinanceConfig struct {
	DefaultHoldDays  int
	LowBudgetPercent decimal.Decimal
}

// CampaignFinanceService keeps campaign budgets and participant earnings in
// step with the ledger as campaigns move through their lifecycle.
type CampaignFinanceService struct {
	wallets   *WalletService
	store     ports.LedgerStore
	campaigns ports.CampaignRepository
	gateway   ports.PaymentGateway
	events    *eventEmitter
	cfg       FinanceConfig
	log       *logger.Logger
	nowFn     func() time.Time
}

func NewCampaignFinanceService(
	wallets *WalletService,
	store ports.LedgerStore,
	campaigns ports.CampaignRepository,
	gateway ports.PaymentGateway,
	publisher ports.EventPublisher,
	cfg FinanceConfig,
	log *logger.Logger,
) *CampaignFinanceService {
	return &CampaignFinanceService{
		wallets:   wallets,
		store:     store,
		campaigns: campaigns,
		gateway:   gateway,
		events:    newEventEmitter(publisher, log),
		cfg:       cfg,
		log:       log,
		nowFn:     time.Now,
	}
}

type MilestoneInput struct {
	CampaignID    string `validate:"required"`
	StreamerID    string `validate:"required"`
	MilestoneType string `validate:"required"`
	// Amount is the impression count for CPM campaigns.
	Amount decimal.Decimal `validate:"gte=0"`
}

type MilestoneResult struct {
	Earning         decimal.Decimal     `json:"earning"`
	Credit          *models.Transaction `json:"credit"`
	Charge          *models.Transaction `json:"charge"`
	RemainingBudget decimal.Decimal     `json:"remainingBudget"`
}

// ReconciliationReport compares the campaign's remaining budget with what
// the ledger says is still reserved.
type ReconciliationReport struct {
	CampaignID      string          `json:"campaignId"`
	Status          string          `json:"status"`
	RemainingBudget decimal.Decimal `json:"remainingBudget"`
	LedgerReserved  decimal.Decimal `json:"ledgerReserved"`
	LedgerCharged   decimal.Decimal `json:"ledgerCharged"`
	Drift           decimal.Decimal `json:"drift"`
	Consistent      bool            `json:"consistent"`
}

// HandleCampaignActivation reserves the campaign budget once and activates
// the campaign. A failed reservation puts the campaign back to draft.
func (s *CampaignFinanceService) HandleCampaignActivation(ctx context.Context, campaignID string) error {
	campaign, err := s.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}

	reserve, err := s.wallets.ReserveCampaignBudget(ctx, campaign.BrandID, campaign.ID, campaign.Budget)
	if err != nil {
		s.log.Errorw("campaign budget reservation failed", "campaign_id", campaignID, "error", err)
		if campaign.Status != models.CampaignStatusDraft {
			campaign.Status = models.CampaignStatusDraft
			campaign.UpdatedAt = s.nowFn().UTC()
			if updateErr := s.campaigns.UpdateCampaign(ctx, campaign); updateErr != nil {
				s.log.Errorw("failed to revert campaign to draft", "campaign_id", campaignID, "error", updateErr)
			}
		}
		return fmt.Errorf("failed to reserve campaign budget: %w", err)
	}
	if reserve == nil {
		s.log.Infow("campaign budget already reserved", "campaign_id", campaignID)
	}

	if campaign.Status != models.CampaignStatusActive {
		campaign.Status = models.CampaignStatusActive
		campaign.UpdatedAt = s.nowFn().UTC()
		if err := s.campaigns.UpdateCampaign(ctx, campaign); err != nil {
			return fmt.Errorf("failed to activate campaign: %w", err)
		}
	}

	if reserve != nil {
		s.events.emit(ctx, models.EventCampaignActivated, campaignID, map[string]any{
			"brandId": campaign.BrandID,
			"budget":  campaign.Budget.String(),
		})
	}
	return nil
}

// HandleCampaignPause pauses an active campaign. Its reservation is kept.
func (s *CampaignFinanceService) HandleCampaignPause(ctx context.Context, campaignID string) error {
	campaign, err := s.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	if campaign.Status != models.CampaignStatusActive {
		return models.BadRequest("campaign %s is %s, only active campaigns can be paused", campaignID, campaign.Status)
	}

	campaign.Status = models.CampaignStatusPaused
	campaign.UpdatedAt = s.nowFn().UTC()
	if err := s.campaigns.UpdateCampaign(ctx, campaign); err != nil {
		return fmt.Errorf("failed to pause campaign: %w", err)
	}

	s.events.emit(ctx, models.EventCampaignPaused, campaignID, nil)
	return nil
}

// HandleCampaignResume reactivates a paused campaign, reserving the
// remaining budget again if the earlier reservation was fully released.
func (s *CampaignFinanceService) HandleCampaignResume(ctx context.Context, campaignID string) error {
	campaign, err := s.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	if campaign.Status != models.CampaignStatusPaused {
		return models.BadRequest("campaign %s is %s, only paused campaigns can be resumed", campaignID, campaign.Status)
	}

	reserved, err := s.wallets.GetReservedFunds(ctx, campaign.BrandID, campaignID)
	if err != nil {
		return err
	}
	if reserved.IsZero() && campaign.RemainingBudget.IsPositive() {
		if _, err := s.wallets.ReserveCampaignFunds(ctx, campaign.BrandID, campaignID, campaign.RemainingBudget); err != nil {
			return fmt.Errorf("failed to reserve remaining budget: %w", err)
		}
	}

	campaign.Status = models.CampaignStatusActive
	campaign.UpdatedAt = s.nowFn().UTC()
	if err := s.campaigns.UpdateCampaign(ctx, campaign); err != nil {
		return fmt.Errorf("failed to resume campaign: %w", err)
	}

	s.events.emit(ctx, models.EventCampaignResumed, campaignID, nil)
	return nil
}

// HandleBudgetIncrease reserves the extra budget and raises the campaign's
// budget and remaining budget by the same amount.
func (s *CampaignFinanceService) HandleBudgetIncrease(ctx context.Context, campaignID string, increase decimal.Decimal) error {
	if err := requirePositive("budget increase", increase); err != nil {
		return err
	}
	campaign, err := s.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}

	if _, err := s.wallets.ReserveCampaignFunds(ctx, campaign.BrandID, campaignID, increase); err != nil {
		return fmt.Errorf("failed to reserve budget increase: %w", err)
	}

	previous := campaign.Budget
	campaign.Budget = campaign.Budget.Add(increase)
	campaign.RemainingBudget = campaign.RemainingBudget.Add(increase)
	campaign.UpdatedAt = s.nowFn().UTC()
	if err := s.campaigns.UpdateCampaign(ctx, campaign); err != nil {
		return fmt.Errorf("failed to update campaign budget: %w", err)
	}

	s.events.emit(ctx, models.EventCampaignBudgetChange, campaignID, map[string]any{
		"previousBudget": previous.String(),
		"budget":         campaign.Budget.String(),
	})
	return nil
}

// HandleBudgetDecrease lowers the budget and releases up to the decrease
// from the campaign's reservation. Returns the amount released.
func (s *CampaignFinanceService) HandleBudgetDecrease(ctx context.Context, campaignID string, decrease decimal.Decimal) (decimal.Decimal, error) {
	if err := requirePositive("budget decrease", decrease); err != nil {
		return decimal.Zero, err
	}
	campaign, err := s.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return decimal.Zero, err
	}
	if decrease.GreaterThan(campaign.RemainingBudget) {
		return decimal.Zero, models.BadRequest("decrease %s exceeds remaining budget %s", decrease, campaign.RemainingBudget)
	}

	reserved, err := s.wallets.GetReservedFunds(ctx, campaign.BrandID, campaignID)
	if err != nil {
		return decimal.Zero, err
	}
	release := minDecimal(decrease, reserved)
	if release.IsPositive() {
		if _, err := s.wallets.ReleaseReservedFunds(ctx, campaign.BrandID, campaignID, release, "budget decreased"); err != nil {
			return decimal.Zero, fmt.Errorf("failed to release reserved funds: %w", err)
		}
	}

	previous := campaign.Budget
	campaign.Budget = campaign.Budget.Sub(decrease)
	campaign.RemainingBudget = campaign.RemainingBudget.Sub(decrease)
	campaign.UpdatedAt = s.nowFn().UTC()
	if err := s.campaigns.UpdateCampaign(ctx, campaign); err != nil {
		return decimal.Zero, fmt.Errorf("failed to update campaign budget: %w", err)
	}

	s.events.emit(ctx, models.EventCampaignBudgetChange, campaignID, map[string]any{
		"previousBudget": previous.String(),
		"budget":         campaign.Budget.String(),
		"released":       release.String(),
	})
	return release, nil
}

// MilestoneEarning is what one milestone pays: amount/1000*rate for CPM
// campaigns, the flat rate otherwise. Rounded to cents.
func MilestoneEarning(campaign *models.Campaign, amount decimal.Decimal) decimal.Decimal {
	if campaign.IsCPM() {
		return amount.Div(thousand).Mul(campaign.PaymentRate).Round(2)
	}
	return campaign.PaymentRate.Round(2)
}

// HandleMilestoneCompletion charges the brand's reservation for a milestone,
// credits the streamer with the default hold, and lowers the campaign's
// remaining budget.
func (s *CampaignFinanceService) HandleMilestoneCompletion(ctx context.Context, input MilestoneInput) (*MilestoneResult, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	campaign, err := s.campaigns.GetCampaign(ctx, input.CampaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != models.CampaignStatusActive {
		return nil, models.BadRequest("campaign %s is %s, milestones need an active campaign", campaign.ID, campaign.Status)
	}

	earning := MilestoneEarning(campaign, input.Amount)
	if !earning.IsPositive() {
		return nil, models.BadRequest("milestone earns nothing")
	}
	if earning.GreaterThan(campaign.RemainingBudget) {
		return nil, models.BadRequest("milestone earning %s exceeds remaining budget %s", earning, campaign.RemainingBudget)
	}

	streamer, err := s.wallets.GetOrCreateWallet(ctx, input.StreamerID)
	if err != nil {
		return nil, err
	}
	if streamer.Type != models.WalletTypeStreamer {
		return nil, models.BadRequest("user %s does not own a streamer wallet", input.StreamerID)
	}

	charge, err := s.wallets.ChargeCampaignFunds(ctx, campaign.BrandID, campaign.ID, earning, input.MilestoneType)
	if err != nil {
		return nil, fmt.Errorf("failed to charge campaign funds: %w", err)
	}

	credit, err := s.wallets.CreditEarnings(ctx, CreditEarningsInput{
		UserID:      input.StreamerID,
		CampaignID:  campaign.ID,
		Amount:      earning,
		HoldDays:    s.cfg.DefaultHoldDays,
		CreatedBy:   campaign.BrandID,
		Description: fmt.Sprintf("Milestone %s in campaign %s", input.MilestoneType, campaign.ID),
	})
	if err != nil {
		s.log.Errorw("brand charged but streamer credit failed", "campaign_id", campaign.ID,
			"streamer_id", input.StreamerID, "charge_id", charge.ID, "error", err)
		return nil, fmt.Errorf("failed to credit streamer earnings: %w", err)
	}

	campaign.RemainingBudget = campaign.RemainingBudget.Sub(earning)
	campaign.UpdatedAt = s.nowFn().UTC()
	if err := s.campaigns.UpdateCampaign(ctx, campaign); err != nil {
		return nil, fmt.Errorf("failed to update remaining budget: %w", err)
	}

	if p, err := s.campaigns.GetParticipation(ctx, campaign.ID, input.StreamerID); err == nil {
		p.EstimatedEarnings = p.EstimatedEarnings.Add(earning)
		now := s.nowFn().UTC()
		p.LastActivityAt = &now
		if err := s.campaigns.UpdateParticipation(ctx, p); err != nil {
			s.log.Warnw("failed to update participation earnings", "campaign_id", campaign.ID, "streamer_id", input.StreamerID, "error", err)
		}
	}

	s.events.emit(ctx, models.EventCampaignMilestone, campaign.ID, map[string]any{
		"streamerId":      input.StreamerID,
		"milestoneType":   input.MilestoneType,
		"earning":         earning.String(),
		"remainingBudget": campaign.RemainingBudget.String(),
	})

	if _, err := s.CheckLowBudgetWarning(ctx, campaign.ID); err != nil {
		s.log.Warnw("low budget check failed", "campaign_id", campaign.ID, "error", err)
	}

	return &MilestoneResult{
		Earning:         earning,
		Credit:          credit,
		Charge:          charge,
		RemainingBudget: campaign.RemainingBudget,
	}, nil
}

// HandleCampaignCompletion releases what is left of the reservation, marks
// the campaign completed and releases participants' held earnings at once.
func (s *CampaignFinanceService) HandleCampaignCompletion(ctx context.Context, campaignID string) error {
	campaign, err := s.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}

	if err := s.releaseCampaignReservation(ctx, campaign, "campaign completed"); err != nil {
		return err
	}

	if campaign.Status != models.CampaignStatusCompleted {
		now := s.nowFn().UTC()
		campaign.Status = models.CampaignStatusCompleted
		campaign.CompletedAt = &now
		campaign.UpdatedAt = now
		if err := s.campaigns.UpdateCampaign(ctx, campaign); err != nil {
			return fmt.Errorf("failed to mark campaign completed: %w", err)
		}
	}

	participations, err := s.campaigns.ListParticipations(ctx, campaignID,
		models.ParticipationStatusActive, models.ParticipationStatusCompleted)
	if err != nil {
		return fmt.Errorf("failed to list participations: %w", err)
	}
	for i := range participations {
		streamerID := participations[i].StreamerID
		if _, err := s.wallets.ReleaseAllHeldEarnings(ctx, streamerID, campaignID, campaign.BrandID, nil); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			s.log.Errorw("failed to release held earnings", "campaign_id", campaignID, "streamer_id", streamerID, "error", err)
		}
	}
	return nil
}

// HandleCampaignCancellation releases the reservation, forfeits
// participants' held earnings and marks the campaign cancelled.
func (s *CampaignFinanceService) HandleCampaignCancellation(ctx context.Context, campaignID, reason string) error {
	campaign, err := s.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	return s.cancelCampaign(ctx, campaign, reason, nil)
}

func (s *CampaignFinanceService) cancelCampaign(ctx context.Context, campaign *models.Campaign, reason string, metadata models.Metadata) error {
	if campaign.Status == models.CampaignStatusCompleted || campaign.Status == models.CampaignStatusCancelled {
		return models.BadRequest("campaign %s is already %s", campaign.ID, campaign.Status)
	}

	if err := s.releaseCampaignReservation(ctx, campaign, "campaign cancelled"); err != nil {
		return err
	}

	participations, err := s.campaigns.ListParticipations(ctx, campaign.ID,
		models.ParticipationStatusActive, models.ParticipationStatusPaused)
	if err != nil {
		return fmt.Errorf("failed to list participations: %w", err)
	}
	for i := range participations {
		streamerID := participations[i].StreamerID
		if _, err := s.wallets.CancelHeldEarnings(ctx, streamerID, campaign.ID, "campaign cancelled"); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			s.log.Errorw("failed to cancel held earnings", "campaign_id", campaign.ID, "streamer_id", streamerID, "error", err)
		}
	}

	campaign.Status = models.CampaignStatusCancelled
	campaign.UpdatedAt = s.nowFn().UTC()
	if campaign.Metadata == nil {
		campaign.Metadata = models.Metadata{}
	}
	campaign.Metadata["cancellationReason"] = reason
	for k, v := range metadata {
		campaign.Metadata[k] = v
	}
	if err := s.campaigns.UpdateCampaign(ctx, campaign); err != nil {
		return fmt.Errorf("failed to mark campaign cancelled: %w", err)
	}

	s.events.emit(ctx, models.EventCampaignCancelled, campaign.ID, map[string]any{
		"reason":  reason,
		"brandId": campaign.BrandID,
	})
	return nil
}

func (s *CampaignFinanceService) releaseCampaignReservation(ctx context.Context, campaign *models.Campaign, reason string) error {
	reserved, err := s.wallets.GetReservedFunds(ctx, campaign.BrandID, campaign.ID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to get reserved funds: %w", err)
	}
	if !reserved.IsPositive() {
		return nil
	}
	if _, err := s.wallets.ReleaseReservedFunds(ctx, campaign.BrandID, campaign.ID, reserved, reason); err != nil {
		return fmt.Errorf("failed to release reserved funds: %w", err)
	}
	return nil
}

// HandleEarlyParticipationEnd ends a streamer's participation at their own
// request. Held earnings for the campaign are released.
func (s *CampaignFinanceService) HandleEarlyParticipationEnd(ctx context.Context, campaignID, streamerID, reason string) error {
	if err := s.endParticipation(ctx, campaignID, streamerID, models.ParticipationStatusLeftEarly); err != nil {
		return err
	}

	result, err := s.wallets.ReleaseAllHeldEarnings(ctx, streamerID, campaignID, streamerID, models.Metadata{"reason": reason})
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to release held earnings: %w", err)
	}

	payload := map[string]any{"streamerId": streamerID, "reason": reason}
	if result != nil {
		payload["released"] = result.Amount.String()
	}
	s.events.emit(ctx, models.EventParticipationEnded, campaignID, payload)
	return nil
}

// HandleStreamerRemoval removes a streamer from a campaign. Held earnings
// are forfeited when forfeit is set and released otherwise.
func (s *CampaignFinanceService) HandleStreamerRemoval(ctx context.Context, campaignID, streamerID, reason string, forfeit bool) error {
	if err := s.endParticipation(ctx, campaignID, streamerID, models.ParticipationStatusRemoved); err != nil {
		return err
	}

	var (
		result *ReleaseResult
		err    error
	)
	if forfeit {
		result, err = s.wallets.CancelHeldEarnings(ctx, streamerID, campaignID, reason)
	} else {
		result, err = s.wallets.ReleaseAllHeldEarnings(ctx, streamerID, campaignID, streamerID, models.Metadata{"reason": reason})
	}
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to settle held earnings: %w", err)
	}

	payload := map[string]any{"streamerId": streamerID, "reason": reason, "forfeited": forfeit}
	if result != nil {
		payload["amount"] = result.Amount.String()
	}
	s.events.emit(ctx, models.EventStreamerRemoved, campaignID, payload)
	return nil
}

func (s *CampaignFinanceService) endParticipation(ctx context.Context, campaignID, streamerID string, status models.ParticipationStatus) error {
	p, err := s.campaigns.GetParticipation(ctx, campaignID, streamerID)
	if err != nil {
		return err
	}
	if p.Status != models.ParticipationStatusActive && p.Status != models.ParticipationStatusPaused {
		return models.BadRequest("participation of %s in campaign %s is already %s", streamerID, campaignID, p.Status)
	}
	now := s.nowFn().UTC()
	p.Status = status
	p.LeftAt = &now
	if err := s.campaigns.UpdateParticipation(ctx, p); err != nil {
		return fmt.Errorf("failed to update participation: %w", err)
	}
	return nil
}

// CheckLowBudgetWarning reports whether the remaining budget is at or below
// the low budget share of the total. When it is, a warning event goes out
// and an auto top-up is started if the brand enabled one.
func (s *CampaignFinanceService) CheckLowBudgetWarning(ctx context.Context, campaignID string) (bool, error) {
	campaign, err := s.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return false, err
	}
	if !campaign.Budget.IsPositive() {
		return false, nil
	}

	threshold := campaign.Budget.Mul(s.cfg.LowBudgetPercent).Div(decimal.NewFromInt(100))
	if campaign.RemainingBudget.GreaterThan(threshold) {
		return false, nil
	}

	s.events.emit(ctx, models.EventCampaignLowBudget, campaignID, map[string]any{
		"brandId":         campaign.BrandID,
		"budget":          campaign.Budget.String(),
		"remainingBudget": campaign.RemainingBudget.String(),
	})

	due, err := s.wallets.CheckAutoTopup(ctx, campaign.BrandID)
	if err != nil {
		s.log.Warnw("auto top-up check failed", "campaign_id", campaignID, "error", err)
		return true, nil
	}
	if !due {
		return true, nil
	}

	wallet, err := s.store.GetWalletByUserID(ctx, campaign.BrandID)
	if err != nil {
		s.log.Warnw("failed to load brand wallet for auto top-up", "campaign_id", campaignID, "error", err)
		return true, nil
	}
	if err := s.gateway.InitiateAutoTopup(ctx, campaign.BrandID, wallet.AutoTopupAmount); err != nil {
		s.log.Warnw("auto top-up failed", "campaign_id", campaignID, "brand_id", campaign.BrandID, "error", err)
	}
	return true, nil
}

// ReconcileCampaign reports drift between campaign bookkeeping and the
// ledger. Only active and paused campaigns are expected to be consistent.
func (s *CampaignFinanceService) ReconcileCampaign(ctx context.Context, campaignID string) (*ReconciliationReport, error) {
	campaign, err := s.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	wallet, err := s.store.GetWalletByUserID(ctx, campaign.BrandID)
	if err != nil {
		return nil, err
	}
	txs, err := s.store.FindTransactions(ctx, campaignFundsFilter(wallet.ID, campaignID))
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign transactions: %w", err)
	}

	reserved := reservedProjection(txs, wallet.ReservedBalance)
	report := &ReconciliationReport{
		CampaignID:      campaignID,
		Status:          string(campaign.Status),
		RemainingBudget: campaign.RemainingBudget,
		LedgerReserved:  reserved,
		LedgerCharged:   chargedTotal(txs),
		Drift:           campaign.RemainingBudget.Sub(reserved),
	}
	report.Consistent = report.Drift.IsZero()

	if !report.Consistent && (campaign.Status == models.CampaignStatusActive || campaign.Status == models.CampaignStatusPaused) {
		s.log.Warnw("campaign budget drift", "campaign_id", campaignID,
			"remaining_budget", report.RemainingBudget.String(), "ledger_reserved", reserved.String())
	}
	return report, nil
}
