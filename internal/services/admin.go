package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/models"
	"github.com/Game-Triggers/prototype-sub000/internal/ports"
	"github.com/Game-Triggers/prototype-sub000/pkg/logger"

	"github.com/shopspring/decimal"
)

// AdminService exposes privileged overrides. Every action is tagged with
// the acting admin and emits an admin.* event.
type AdminService struct {
	engine     *TransactionEngine
	wallets    *WalletService
	finance    *CampaignFinanceService
	completion *CompletionService
	campaigns  ports.CampaignRepository
	store      ports.LedgerStore
	events     *eventEmitter
	log        *logger.Logger
	nowFn      func() time.Time
}

func NewAdminService(
	engine *TransactionEngine,
	wallets *WalletService,
	finance *CampaignFinanceService,
	completion *CompletionService,
	campaigns ports.CampaignRepository,
	store ports.LedgerStore,
	publisher ports.EventPublisher,
	log *logger.Logger,
) *AdminService {
	return &AdminService{
		engine:     engine,
		wallets:    wallets,
		finance:    finance,
		completion: completion,
		campaigns:  campaigns,
		store:      store,
		events:     newEventEmitter(publisher, log),
		log:        log,
		nowFn:      time.Now,
	}
}

type AdjustBalanceInput struct {
	UserID  string          `validate:"required"`
	AdminID string          `validate:"required"`
	Amount  decimal.Decimal `validate:"ne=0"`
	Reason  string          `validate:"required"`
}

type BudgetOverrideInput struct {
	CampaignID string          `validate:"required"`
	AdminID    string          `validate:"required"`
	Budget     decimal.Decimal `validate:"gte=0"`
	Reason     string          `validate:"required"`
	// RemainingBudget defaults to Budget minus what was already spent.
	RemainingBudget *decimal.Decimal
}

// ForceCompleteCampaign settles a campaign whether or not it meets the
// completion criteria.
func (s *AdminService) ForceCompleteCampaign(ctx context.Context, campaignID, adminID, reason string) (*SettlementResult, error) {
	if adminID == "" {
		return nil, models.BadRequest("admin id is required")
	}

	result, err := s.completion.CompleteCampaign(ctx, campaignID, fmt.Sprintf("Force completed by admin: %s", reason), models.Metadata{
		"adminForceCompleted": true,
		"forceCompletedBy":    adminID,
		"forceCompleteReason": reason,
	})
	if err != nil {
		return nil, err
	}

	s.events.emit(ctx, models.EventAdminForceComplete, campaignID, map[string]any{
		"adminId":     adminID,
		"reason":      reason,
		"transferred": result.Transferred.String(),
	})
	return result, nil
}

// ForceCancelCampaign cancels a campaign in any non-terminal state.
func (s *AdminService) ForceCancelCampaign(ctx context.Context, campaignID, adminID, reason string) error {
	if adminID == "" {
		return models.BadRequest("admin id is required")
	}
	campaign, err := s.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}

	err = s.finance.cancelCampaign(ctx, campaign, reason, models.Metadata{
		"adminForceCancelled": true,
		"forceCancelledBy":    adminID,
	})
	if err != nil {
		return err
	}

	s.events.emit(ctx, models.EventAdminForceCancel, campaignID, map[string]any{
		"adminId": adminID,
		"reason":  reason,
	})
	return nil
}

// OverrideBudget sets the campaign budget directly. The brand's reservation
// is left as is; the difference is a platform grant.
func (s *AdminService) OverrideBudget(ctx context.Context, input BudgetOverrideInput) (*models.Campaign, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	campaign, err := s.campaigns.GetCampaign(ctx, input.CampaignID)
	if err != nil {
		return nil, err
	}

	remaining := input.Budget.Sub(campaign.SpentBudget())
	if input.RemainingBudget != nil {
		remaining = *input.RemainingBudget
	}
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	if remaining.GreaterThan(input.Budget) {
		return nil, models.BadRequest("remaining budget %s exceeds budget %s", remaining, input.Budget)
	}

	previousBudget := campaign.Budget
	previousRemaining := campaign.RemainingBudget
	now := s.nowFn().UTC()

	campaign.Budget = input.Budget
	campaign.RemainingBudget = remaining
	if campaign.Metadata == nil {
		campaign.Metadata = models.Metadata{}
	}
	campaign.Metadata["budgetOverriddenBy"] = input.AdminID
	campaign.Metadata["budgetOverriddenAt"] = now
	campaign.Metadata["budgetOverrideReason"] = input.Reason
	campaign.Metadata["previousBudget"] = previousBudget.String()
	campaign.UpdatedAt = now
	if err := s.campaigns.UpdateCampaign(ctx, campaign); err != nil {
		return nil, fmt.Errorf("failed to override budget: %w", err)
	}

	s.events.emit(ctx, models.EventAdminBudgetOverride, campaign.ID, map[string]any{
		"adminId":                 input.AdminID,
		"reason":                  input.Reason,
		"previousBudget":          previousBudget.String(),
		"previousRemainingBudget": previousRemaining.String(),
		"budget":                  campaign.Budget.String(),
		"remainingBudget":         campaign.RemainingBudget.String(),
	})
	return campaign, nil
}

// FreezeWallet blocks every balance mutation on the user's wallet except
// admin adjustments.
func (s *AdminService) FreezeWallet(ctx context.Context, userID, adminID, reason string) (*models.Wallet, error) {
	if adminID == "" || reason == "" {
		return nil, models.BadRequest("admin id and reason are required")
	}

	var out models.Wallet
	err := s.engine.WithUserWallet(ctx, userID, func(tx ports.LedgerTx, wallet *models.Wallet) error {
		if wallet.IsFrozen {
			return models.BadRequest("wallet %s is already frozen", wallet.ID)
		}
		now := s.nowFn().UTC()
		wallet.IsFrozen = true
		wallet.FrozenAt = &now
		wallet.FrozenBy = &adminID
		wallet.FreezeReason = &reason
		if err := s.engine.SaveWallet(ctx, tx, wallet); err != nil {
			return err
		}
		out = *wallet
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Infow("wallet frozen", "user_id", userID, "admin_id", adminID, "reason", reason)
	s.events.emit(ctx, models.EventAdminWalletFrozen, userID, map[string]any{
		"adminId":  adminID,
		"reason":   reason,
		"walletId": out.ID,
	})
	return &out, nil
}

func (s *AdminService) UnfreezeWallet(ctx context.Context, userID, adminID, reason string) (*models.Wallet, error) {
	if adminID == "" {
		return nil, models.BadRequest("admin id is required")
	}

	var out models.Wallet
	err := s.engine.WithUserWallet(ctx, userID, func(tx ports.LedgerTx, wallet *models.Wallet) error {
		if !wallet.IsFrozen {
			return models.BadRequest("wallet %s is not frozen", wallet.ID)
		}
		wallet.IsFrozen = false
		wallet.FrozenAt = nil
		wallet.FrozenBy = nil
		wallet.FreezeReason = nil
		if err := s.engine.SaveWallet(ctx, tx, wallet); err != nil {
			return err
		}
		out = *wallet
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Infow("wallet unfrozen", "user_id", userID, "admin_id", adminID)
	s.events.emit(ctx, models.EventAdminWalletUnfrozen, userID, map[string]any{
		"adminId":  adminID,
		"reason":   reason,
		"walletId": out.ID,
	})
	return &out, nil
}

// AdjustWalletBalance records an ADMIN_ADJUSTMENT. It applies to frozen
// wallets too.
func (s *AdminService) AdjustWalletBalance(ctx context.Context, input AdjustBalanceInput) (*models.Transaction, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	wallet, err := s.wallets.GetOrCreateWallet(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	txn, err := s.engine.CreateTransaction(ctx, TransactionRequest{
		WalletID:    wallet.ID,
		Type:        models.TransactionTypeAdminAdjustment,
		Amount:      input.Amount,
		Description: fmt.Sprintf("Admin adjustment: %s", input.Reason),
		Metadata: models.Metadata{
			"adminAdjustment": true,
			"adjustedBy":      input.AdminID,
			"reason":          input.Reason,
		},
		CreatedBy:    input.AdminID,
		BypassFreeze: true,
	})
	if err != nil {
		return nil, err
	}

	s.events.emit(ctx, models.EventAdminWalletAdjusted, input.UserID, map[string]any{
		"adminId":       input.AdminID,
		"transactionId": txn.ID,
		"amount":        input.Amount.String(),
		"reason":        input.Reason,
	})
	return txn, nil
}

// ForceReleaseEarnings releases the user's pending holds without waiting
// for expiry. An empty campaignID releases holds from every campaign.
func (s *AdminService) ForceReleaseEarnings(ctx context.Context, userID, campaignID, adminID string) (*ReleaseResult, error) {
	if adminID == "" {
		return nil, models.BadRequest("admin id is required")
	}

	result, err := s.wallets.ReleaseAllHeldEarnings(ctx, userID, campaignID, adminID, models.Metadata{
		"adminForceReleased": true,
		"releasedBy":         adminID,
	})
	if err != nil {
		return nil, err
	}

	s.events.emit(ctx, models.EventAdminEarningsRelease, userID, map[string]any{
		"adminId":    adminID,
		"campaignId": campaignID,
		"count":      result.Count,
		"amount":     result.Amount.String(),
	})
	return result, nil
}

// PlaceDisputeHold moves amount out of the streamer's withdrawable balance
// while a dispute is investigated.
func (s *AdminService) PlaceDisputeHold(ctx context.Context, userID, adminID string, amount decimal.Decimal, reason string) (*models.Transaction, error) {
	if err := requirePositive("dispute amount", amount); err != nil {
		return nil, err
	}
	if adminID == "" {
		return nil, models.BadRequest("admin id is required")
	}

	var txn *models.Transaction
	err := s.engine.WithUserWallet(ctx, userID, func(tx ports.LedgerTx, wallet *models.Wallet) error {
		if wallet.Type != models.WalletTypeStreamer {
			return models.BadRequest("dispute holds apply to streamer wallets only")
		}
		var err error
		txn, err = s.engine.Apply(ctx, tx, wallet, TransactionRequest{
			WalletID:    wallet.ID,
			Type:        models.TransactionTypeDisputeHold,
			Amount:      amount.Neg(),
			Description: fmt.Sprintf("Dispute hold: %s", reason),
			Metadata:    models.Metadata{"disputeOpenedBy": adminID, "reason": reason},
			CreatedBy:   adminID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.events.emit(ctx, models.EventAdminDisputeHold, userID, map[string]any{
		"adminId":       adminID,
		"transactionId": txn.ID,
		"amount":        amount.String(),
		"action":        "placed",
	})
	return txn, nil
}

// ResolveDisputeHold closes a pending dispute hold. Forfeited funds stay
// out of the withdrawable balance and the closed hold is returned;
// otherwise the funds go back and the returning entry is returned.
func (s *AdminService) ResolveDisputeHold(ctx context.Context, transactionID, adminID string, forfeit bool) (*models.Transaction, error) {
	if adminID == "" {
		return nil, models.BadRequest("admin id is required")
	}
	hold, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if hold.Type != models.TransactionTypeDisputeHold || hold.Status != models.TransactionStatusPending {
		return nil, models.BadRequest("transaction %s is not an open dispute hold", transactionID)
	}

	var txn *models.Transaction
	err = s.engine.WithWallet(ctx, hold.WalletID, func(tx ports.LedgerTx, wallet *models.Wallet) error {
		now := s.nowFn().UTC()
		if forfeit {
			return tx.UpdateTransactionStatus(ctx, []string{hold.ID}, models.TransactionStatusCompleted, now)
		}
		if err := tx.UpdateTransactionStatus(ctx, []string{hold.ID}, models.TransactionStatusCancelled, now); err != nil {
			return err
		}
		var err error
		txn, err = s.engine.Apply(ctx, tx, wallet, TransactionRequest{
			WalletID:     wallet.ID,
			Type:         models.TransactionTypeDisputeHold,
			Amount:       hold.Amount.Neg(),
			Description:  fmt.Sprintf("Dispute hold %s returned", hold.ID),
			Metadata:     models.Metadata{"disputeResolvedBy": adminID, "reversalOf": hold.ID},
			CreatedBy:    adminID,
			BypassFreeze: true,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	action := "returned"
	if forfeit {
		action = "forfeited"
		if txn, err = s.store.GetTransaction(ctx, hold.ID); err != nil {
			return nil, err
		}
	}
	s.events.emit(ctx, models.EventAdminDisputeHold, hold.UserID, map[string]any{
		"adminId":           adminID,
		"holdTransactionId": hold.ID,
		"amount":            hold.Amount.Abs().String(),
		"action":            action,
	})
	return txn, nil
}
