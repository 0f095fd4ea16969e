package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/models"
	"github.com/Game-Triggers/prototype-sub000/internal/ports"
	"github.com/Game-Triggers/prototype-sub000/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type WalletConfig struct {
	Currency               string
	DefaultHoldDays        int
	MinimumWithdrawal      decimal.Decimal
	MaximumDailyWithdrawal decimal.Decimal
}

type WalletService struct {
	engine *TransactionEngine
	store  ports.LedgerStore
	cache  ports.BalanceCache
	users  ports.UserDirectory
	kyc    ports.KYCRepository
	events *eventEmitter
	cfg    WalletConfig
	log    *logger.Logger
	nowFn  func() time.Time
}

func NewWalletService(
	engine *TransactionEngine,
	store ports.LedgerStore,
	cache ports.BalanceCache,
	users ports.UserDirectory,
	kyc ports.KYCRepository,
	publisher ports.EventPublisher,
	cfg WalletConfig,
	log *logger.Logger,
) *WalletService {
	return &WalletService{
		engine: engine,
		store:  store,
		cache:  cache,
		users:  users,
		kyc:    kyc,
		events: newEventEmitter(publisher, log),
		cfg:    cfg,
		log:    log,
		nowFn:  time.Now,
	}
}

type AddFundsInput struct {
	UserID               string          `validate:"required"`
	Amount               decimal.Decimal `validate:"gt=0"`
	PaymentMethod        string
	GatewayTransactionID string
}

type CreditEarningsInput struct {
	UserID      string          `validate:"required"`
	CampaignID  string          `validate:"required"`
	Amount      decimal.Decimal `validate:"gt=0"`
	HoldDays    int             `validate:"gte=0"`
	CreatedBy   string
	Description string
}

type WithdrawalInput struct {
	UserID        string          `validate:"required"`
	Amount        decimal.Decimal `validate:"gt=0"`
	PaymentMethod string
}

// ReleaseResult summarizes a batch release or cancellation of holds.
type ReleaseResult struct {
	Count        int                  `json:"count"`
	Amount       decimal.Decimal      `json:"amount"`
	Transactions []models.Transaction `json:"transactions"`
}

// HoldSweepReport is returned by ReleaseAllExpiredHolds.
type HoldSweepReport struct {
	Users    int               `json:"users"`
	Released int               `json:"released"`
	Amount   decimal.Decimal   `json:"amount"`
	Failed   map[string]string `json:"failed,omitempty"`
}

// GetOrCreateWallet returns the user's wallet, creating it on first access.
// The wallet type follows the user's role.
func (s *WalletService) GetOrCreateWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	if userID == "" {
		return nil, models.BadRequest("user id is required")
	}

	wallet, err := s.store.GetWalletByUserID(ctx, userID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	walletType, err := s.users.WalletTypeFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	wallet = models.NewWallet(uuid.NewString(), userID, walletType, s.cfg.Currency, s.nowFn().UTC())
	if err := s.store.CreateWallet(ctx, wallet); err != nil {
		// Lost a creation race; the other wallet wins
		if errors.Is(err, models.ErrConflict) {
			return s.store.GetWalletByUserID(ctx, userID)
		}
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	s.log.Infow("wallet created", "user_id", userID, "wallet_id", wallet.ID, "type", walletType)
	return wallet, nil
}

// GetBalance serves the balance from cache, falling back to the store.
func (s *WalletService) GetBalance(ctx context.Context, userID string) (*models.WalletBalance, error) {
	balance, err := s.cache.GetBalance(ctx, userID)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.log.Warnw("balance cache error", "user_id", userID, "error", err)
	}

	wallet, err := s.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	snapshot := wallet.Snapshot()
	if err := s.cache.SetBalance(ctx, snapshot); err != nil {
		s.log.Warnw("failed to update balance cache", "user_id", userID, "error", err)
	}
	return &snapshot, nil
}

// AddFunds records a deposit on a brand wallet.
func (s *WalletService) AddFunds(ctx context.Context, input AddFundsInput) (*models.Transaction, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	wallet, err := s.GetOrCreateWallet(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if wallet.Type != models.WalletTypeBrand {
		return nil, models.BadRequest("funds can only be added to brand wallets")
	}

	txn, err := s.engine.CreateTransaction(ctx, TransactionRequest{
		WalletID:             wallet.ID,
		Type:                 models.TransactionTypeDeposit,
		Amount:               input.Amount,
		Description:          "Wallet deposit",
		CreatedBy:            input.UserID,
		PaymentMethod:        input.PaymentMethod,
		GatewayTransactionID: input.GatewayTransactionID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add funds: %w", err)
	}

	s.events.emit(ctx, models.EventFundsAdded, input.UserID, map[string]any{
		"transactionId": txn.ID,
		"amount":        txn.Amount.String(),
	})
	return txn, nil
}

// ReserveCampaignFunds earmarks amount of the brand's balance for a campaign.
func (s *WalletService) ReserveCampaignFunds(ctx context.Context, userID, campaignID string, amount decimal.Decimal) (*models.Transaction, error) {
	return s.reserveCampaignFunds(ctx, userID, campaignID, amount, false)
}

// ReserveCampaignBudget reserves the initial campaign budget unless the
// campaign already holds a reservation on the brand's wallet. It returns
// nil when nothing was reserved. The check runs under the wallet lock, so
// concurrent activations reserve once.
func (s *WalletService) ReserveCampaignBudget(ctx context.Context, userID, campaignID string, amount decimal.Decimal) (*models.Transaction, error) {
	return s.reserveCampaignFunds(ctx, userID, campaignID, amount, true)
}

func (s *WalletService) reserveCampaignFunds(ctx context.Context, userID, campaignID string, amount decimal.Decimal, once bool) (*models.Transaction, error) {
	if err := requirePositive("reserve amount", amount); err != nil {
		return nil, err
	}
	if _, err := s.GetOrCreateWallet(ctx, userID); err != nil {
		return nil, err
	}

	var txn *models.Transaction
	err := s.engine.WithUserWallet(ctx, userID, func(tx ports.LedgerTx, wallet *models.Wallet) error {
		if wallet.Type != models.WalletTypeBrand {
			return models.BadRequest("only brand wallets can reserve campaign funds")
		}
		if once {
			existing, err := tx.FindTransactions(ctx, models.TransactionFilter{
				WalletID:   wallet.ID,
				CampaignID: campaignID,
				Types:      []models.TransactionType{models.TransactionTypeCampaignReserve},
				Limit:      1,
			})
			if err != nil {
				return fmt.Errorf("failed to check campaign reservations: %w", err)
			}
			if len(existing) > 0 {
				return nil
			}
		}
		if wallet.Balance.LessThan(amount) {
			return models.BadRequest("insufficient balance: available %s, required %s", wallet.Balance, amount)
		}

		var err error
		txn, err = s.engine.Apply(ctx, tx, wallet, TransactionRequest{
			WalletID:    wallet.ID,
			Type:        models.TransactionTypeCampaignReserve,
			Amount:      amount.Neg(),
			Description: fmt.Sprintf("Budget reserved for campaign %s", campaignID),
			CreatedBy:   userID,
			CampaignID:  campaignID,
		})
		return err
	})
	if err != nil || txn == nil {
		return nil, err
	}

	s.events.emit(ctx, models.EventFundsReserved, campaignID, map[string]any{
		"userId":        userID,
		"transactionId": txn.ID,
		"amount":        amount.String(),
	})
	return txn, nil
}

// ChargeCampaignFunds consumes amount of the brand's reserved balance.
func (s *WalletService) ChargeCampaignFunds(ctx context.Context, userID, campaignID string, amount decimal.Decimal, milestoneType string) (*models.Transaction, error) {
	if err := requirePositive("charge amount", amount); err != nil {
		return nil, err
	}

	var txn *models.Transaction
	err := s.engine.WithUserWallet(ctx, userID, func(tx ports.LedgerTx, wallet *models.Wallet) error {
		if wallet.ReservedBalance.LessThan(amount) {
			return models.BadRequest("insufficient reserved funds: reserved %s, required %s", wallet.ReservedBalance, amount)
		}

		var err error
		txn, err = s.engine.Apply(ctx, tx, wallet, TransactionRequest{
			WalletID:    wallet.ID,
			Type:        models.TransactionTypeCampaignCharge,
			Amount:      amount.Neg(),
			Description: fmt.Sprintf("Campaign %s charged for %s", campaignID, milestoneType),
			Metadata:    models.Metadata{"milestoneType": milestoneType},
			CreatedBy:   userID,
			CampaignID:  campaignID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.events.emit(ctx, models.EventFundsCharged, campaignID, map[string]any{
		"userId":        userID,
		"transactionId": txn.ID,
		"amount":        amount.String(),
		"milestoneType": milestoneType,
	})
	return txn, nil
}

// ReverseCampaignCharge puts amount back into the campaign's reservation
// with a positive CAMPAIGN_CHARGE. Used when charged funds could not be
// paid out.
func (s *WalletService) ReverseCampaignCharge(ctx context.Context, userID, campaignID string, amount decimal.Decimal, milestoneType, reason string) (*models.Transaction, error) {
	if err := requirePositive("reversal amount", amount); err != nil {
		return nil, err
	}

	var txn *models.Transaction
	err := s.engine.WithUserWallet(ctx, userID, func(tx ports.LedgerTx, wallet *models.Wallet) error {
		var err error
		txn, err = s.engine.Apply(ctx, tx, wallet, TransactionRequest{
			WalletID:     wallet.ID,
			Type:         models.TransactionTypeCampaignCharge,
			Amount:       amount,
			Description:  fmt.Sprintf("Campaign %s charge reversed: %s", campaignID, reason),
			Metadata:     models.Metadata{"milestoneType": milestoneType, "reversal": true, "reason": reason},
			CreatedBy:    systemActor,
			CampaignID:   campaignID,
			BypassFreeze: true,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.events.emit(ctx, models.EventFundsReleased, campaignID, map[string]any{
		"userId":        userID,
		"transactionId": txn.ID,
		"amount":        amount.String(),
		"reason":        reason,
	})
	return txn, nil
}

// CreditEarnings records a pending EARNINGS_HOLD that expires after
// HoldDays.
func (s *WalletService) CreditEarnings(ctx context.Context, input CreditEarningsInput) (*models.Transaction, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	wallet, err := s.GetOrCreateWallet(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if wallet.Type != models.WalletTypeStreamer {
		return nil, models.BadRequest("earnings can only be credited to streamer wallets")
	}

	expiresAt := s.nowFn().UTC().Add(time.Duration(input.HoldDays) * 24 * time.Hour)
	description := input.Description
	if description == "" {
		description = fmt.Sprintf("Earnings from campaign %s", input.CampaignID)
	}

	txn, err := s.engine.CreateTransaction(ctx, TransactionRequest{
		WalletID:    wallet.ID,
		Type:        models.TransactionTypeEarningsHold,
		Amount:      input.Amount,
		Description: description,
		Metadata:    models.Metadata{"holdDays": input.HoldDays},
		CreatedBy:   input.CreatedBy,
		CampaignID:  input.CampaignID,
		ExpiresAt:   &expiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to credit earnings: %w", err)
	}

	s.events.emit(ctx, models.EventEarningsCredited, input.UserID, map[string]any{
		"transactionId": txn.ID,
		"campaignId":    input.CampaignID,
		"amount":        input.Amount.String(),
		"expiresAt":     expiresAt,
	})
	return txn, nil
}

// ReleaseEarnings releases one pending hold into the withdrawable balance,
// regardless of its expiry.
func (s *WalletService) ReleaseEarnings(ctx context.Context, transactionID, createdBy string) (*models.Transaction, error) {
	hold, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if hold.Type != models.TransactionTypeEarningsHold {
		return nil, models.BadRequest("transaction %s is not an earnings hold", transactionID)
	}
	if hold.Status != models.TransactionStatusPending {
		return nil, models.BadRequest("earnings hold %s is %s, not pending", transactionID, hold.Status)
	}

	var release *models.Transaction
	err = s.engine.WithWallet(ctx, hold.WalletID, func(tx ports.LedgerTx, wallet *models.Wallet) error {
		if err := tx.UpdateTransactionStatus(ctx, []string{hold.ID}, models.TransactionStatusCompleted, s.nowFn().UTC()); err != nil {
			return err
		}
		var err error
		release, err = s.engine.Apply(ctx, tx, wallet, releaseRequest(wallet.ID, *hold, createdBy, nil))
		return err
	})
	if err != nil {
		return nil, err
	}

	s.events.emit(ctx, models.EventEarningsReleased, hold.UserID, map[string]any{
		"holdTransactionId": hold.ID,
		"campaignId":        hold.CampaignIDValue(),
		"amount":            hold.Amount.String(),
	})
	return release, nil
}

// ReleaseEarningsForCampaign releases every expired pending hold of the
// user, limited to one campaign when campaignID is set.
func (s *WalletService) ReleaseEarningsForCampaign(ctx context.Context, userID, campaignID string) (*ReleaseResult, error) {
	now := s.nowFn().UTC()
	return s.releaseHolds(ctx, userID, campaignID, &now, userID, nil)
}

// ReleaseAllHeldEarnings releases the user's pending holds for a campaign
// without waiting for them to expire.
func (s *WalletService) ReleaseAllHeldEarnings(ctx context.Context, userID, campaignID, createdBy string, metadata models.Metadata) (*ReleaseResult, error) {
	return s.releaseHolds(ctx, userID, campaignID, nil, createdBy, metadata)
}

func (s *WalletService) releaseHolds(ctx context.Context, userID, campaignID string, dueBy *time.Time, createdBy string, metadata models.Metadata) (*ReleaseResult, error) {
	result := &ReleaseResult{Amount: decimal.Zero}

	err := s.engine.WithUserWallet(ctx, userID, func(tx ports.LedgerTx, wallet *models.Wallet) error {
		holds, err := tx.FindTransactions(ctx, models.TransactionFilter{
			WalletID:      wallet.ID,
			CampaignID:    campaignID,
			Types:         []models.TransactionType{models.TransactionTypeEarningsHold},
			Statuses:      []models.TransactionStatus{models.TransactionStatusPending},
			ExpiresBefore: dueBy,
		})
		if err != nil {
			return err
		}
		if len(holds) == 0 {
			return nil
		}

		if err := tx.UpdateTransactionStatus(ctx, transactionIDs(holds), models.TransactionStatusCompleted, s.nowFn().UTC()); err != nil {
			return err
		}

		for i := range holds {
			release, err := s.engine.Apply(ctx, tx, wallet, releaseRequest(wallet.ID, holds[i], createdBy, metadata))
			if err != nil {
				return fmt.Errorf("failed to release hold %s: %w", holds[i].ID, err)
			}
			result.Transactions = append(result.Transactions, *release)
			result.Amount = result.Amount.Add(holds[i].Amount)
			result.Count++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Count > 0 {
		s.events.emit(ctx, models.EventEarningsReleased, userID, map[string]any{
			"campaignId": campaignID,
			"count":      result.Count,
			"amount":     result.Amount.String(),
		})
	}
	return result, nil
}

func releaseRequest(walletID string, hold models.Transaction, createdBy string, metadata models.Metadata) TransactionRequest {
	md := models.Metadata{"holdTransactionId": hold.ID}
	for k, v := range metadata {
		md[k] = v
	}
	return TransactionRequest{
		WalletID:    walletID,
		Type:        models.TransactionTypeEarningsRelease,
		Amount:      hold.Amount,
		Description: fmt.Sprintf("Earnings released from hold %s", hold.ID),
		Metadata:    md,
		CreatedBy:   createdBy,
		CampaignID:  hold.CampaignIDValue(),
	}
}

// CancelHeldEarnings cancels the user's pending holds for a campaign and
// records a negative EARNINGS_CREDIT reversal for each. Withdrawable funds
// are untouched since the holds were never released.
func (s *WalletService) CancelHeldEarnings(ctx context.Context, userID, campaignID, reason string) (*ReleaseResult, error) {
	if campaignID == "" {
		return nil, models.BadRequest("campaign id is required")
	}
	result := &ReleaseResult{Amount: decimal.Zero}

	err := s.engine.WithUserWallet(ctx, userID, func(tx ports.LedgerTx, wallet *models.Wallet) error {
		holds, err := tx.FindTransactions(ctx, models.TransactionFilter{
			WalletID:   wallet.ID,
			CampaignID: campaignID,
			Types:      []models.TransactionType{models.TransactionTypeEarningsHold},
			Statuses:   []models.TransactionStatus{models.TransactionStatusPending},
		})
		if err != nil {
			return err
		}
		if len(holds) == 0 {
			return nil
		}

		if err := tx.UpdateTransactionStatus(ctx, transactionIDs(holds), models.TransactionStatusCancelled, s.nowFn().UTC()); err != nil {
			return err
		}

		for i := range holds {
			reversal, err := s.engine.Apply(ctx, tx, wallet, TransactionRequest{
				WalletID:    wallet.ID,
				Type:        models.TransactionTypeEarningsCredit,
				Amount:      holds[i].Amount.Neg(),
				Description: fmt.Sprintf("Held earnings cancelled: %s", reason),
				Metadata:    models.Metadata{"reversalOf": holds[i].ID, "reason": reason},
				CreatedBy:   userID,
				CampaignID:  campaignID,
			})
			if err != nil {
				return fmt.Errorf("failed to reverse hold %s: %w", holds[i].ID, err)
			}
			result.Transactions = append(result.Transactions, *reversal)
			result.Amount = result.Amount.Add(holds[i].Amount)
			result.Count++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Count > 0 {
		s.events.emit(ctx, models.EventEarningsCancelled, userID, map[string]any{
			"campaignId": campaignID,
			"count":      result.Count,
			"amount":     result.Amount.String(),
			"reason":     reason,
		})
	}
	return result, nil
}

// RequestWithdrawal starts a payout from the streamer's withdrawable
// balance. The entry stays processing until the payout settles.
func (s *WalletService) RequestWithdrawal(ctx context.Context, input WithdrawalInput) (*models.Transaction, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	kyc, err := s.kyc.GetKYC(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.BadRequest("KYC verification is required before withdrawing")
		}
		return nil, fmt.Errorf("failed to get kyc record: %w", err)
	}
	if kyc.Status != models.KYCStatusApproved {
		return nil, models.BadRequest("KYC status is %s, approval is required", kyc.Status)
	}
	if !kyc.BankDetailsVerified {
		return nil, models.BadRequest("bank details are not verified")
	}

	minimum := s.cfg.MinimumWithdrawal
	if kyc.MinimumWithdrawal.IsPositive() {
		minimum = kyc.MinimumWithdrawal
	}
	maximum := s.cfg.MaximumDailyWithdrawal
	if kyc.MaximumDailyWithdrawal.IsPositive() {
		maximum = kyc.MaximumDailyWithdrawal
	}
	if input.Amount.LessThan(minimum) {
		return nil, models.BadRequest("minimum withdrawal amount is %s", minimum)
	}

	now := s.nowFn().UTC()
	dayStart := now.Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	var txn *models.Transaction
	err = s.engine.WithUserWallet(ctx, input.UserID, func(tx ports.LedgerTx, wallet *models.Wallet) error {
		if wallet.Type != models.WalletTypeStreamer {
			return models.BadRequest("only streamer wallets can withdraw")
		}
		if wallet.WithdrawableBalance.LessThan(input.Amount) {
			return models.BadRequest("insufficient withdrawable balance: available %s, requested %s", wallet.WithdrawableBalance, input.Amount)
		}

		today, err := tx.FindTransactions(ctx, models.TransactionFilter{
			WalletID: wallet.ID,
			Types:    []models.TransactionType{models.TransactionTypeWithdrawal},
			Statuses: []models.TransactionStatus{
				models.TransactionStatusCompleted,
				models.TransactionStatusProcessing,
			},
			CreatedFrom: &dayStart,
			CreatedTo:   &dayEnd,
		})
		if err != nil {
			return err
		}
		todayTotal := models.SumAmounts(today).Abs()
		if todayTotal.Add(input.Amount).GreaterThan(maximum) {
			return models.BadRequest("daily withdrawal limit exceeded: withdrawn %s today, limit %s", todayTotal, maximum)
		}

		txn, err = s.engine.Apply(ctx, tx, wallet, TransactionRequest{
			WalletID:      wallet.ID,
			Type:          models.TransactionTypeWithdrawal,
			Amount:        input.Amount.Neg(),
			Description:   "Withdrawal request",
			CreatedBy:     input.UserID,
			PaymentMethod: input.PaymentMethod,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.events.emit(ctx, models.EventWithdrawalRequested, input.UserID, map[string]any{
		"transactionId": txn.ID,
		"amount":        input.Amount.String(),
	})
	return txn, nil
}

// GetReservedFunds returns what is still reserved for the campaign on the
// brand's wallet.
func (s *WalletService) GetReservedFunds(ctx context.Context, userID, campaignID string) (decimal.Decimal, error) {
	wallet, err := s.store.GetWalletByUserID(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	txs, err := s.store.FindTransactions(ctx, campaignFundsFilter(wallet.ID, campaignID))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get campaign transactions: %w", err)
	}
	return reservedProjection(txs, wallet.ReservedBalance), nil
}

// ReleaseReservedFunds returns amount of a campaign's reservation to the
// brand's balance via a CAMPAIGN_REFUND. Once nothing is left reserved the
// campaign's reserve entries are closed.
func (s *WalletService) ReleaseReservedFunds(ctx context.Context, userID, campaignID string, amount decimal.Decimal, reason string) (*models.Transaction, error) {
	if err := requirePositive("release amount", amount); err != nil {
		return nil, err
	}

	var txn *models.Transaction
	err := s.engine.WithUserWallet(ctx, userID, func(tx ports.LedgerTx, wallet *models.Wallet) error {
		txs, err := tx.FindTransactions(ctx, campaignFundsFilter(wallet.ID, campaignID))
		if err != nil {
			return err
		}
		reserved := reservedProjection(txs, wallet.ReservedBalance)
		if amount.GreaterThan(reserved) {
			return models.BadRequest("cannot release %s, only %s reserved for campaign %s", amount, reserved, campaignID)
		}

		txn, err = s.engine.Apply(ctx, tx, wallet, TransactionRequest{
			WalletID:    wallet.ID,
			Type:        models.TransactionTypeCampaignRefund,
			Amount:      amount,
			Description: fmt.Sprintf("Reserved funds released for campaign %s", campaignID),
			Metadata:    models.Metadata{"reason": reason},
			CreatedBy:   userID,
			CampaignID:  campaignID,
		})
		if err != nil {
			return err
		}

		if !reserved.Sub(amount).IsZero() {
			return nil
		}
		var open []string
		for i := range txs {
			if txs[i].Type == models.TransactionTypeCampaignReserve && txs[i].Status == models.TransactionStatusPending {
				open = append(open, txs[i].ID)
			}
		}
		if len(open) == 0 {
			return nil
		}
		return tx.UpdateTransactionStatus(ctx, open, models.TransactionStatusCompleted, s.nowFn().UTC())
	})
	if err != nil {
		return nil, err
	}

	s.events.emit(ctx, models.EventFundsReleased, campaignID, map[string]any{
		"userId":        userID,
		"transactionId": txn.ID,
		"amount":        amount.String(),
		"reason":        reason,
	})
	return txn, nil
}

func campaignFundsFilter(walletID, campaignID string) models.TransactionFilter {
	return models.TransactionFilter{
		WalletID:   walletID,
		CampaignID: campaignID,
		Types: []models.TransactionType{
			models.TransactionTypeCampaignReserve,
			models.TransactionTypeCampaignCharge,
			models.TransactionTypeCampaignRefund,
		},
	}
}

// reservedProjection derives the funds still reserved for one campaign:
// reserves minus charges minus refunds, capped by the wallet's total.
func reservedProjection(txs []models.Transaction, walletReserved decimal.Decimal) decimal.Decimal {
	reserved := decimal.Zero
	for i := range txs {
		t := &txs[i]
		if t.Status == models.TransactionStatusFailed || t.Status == models.TransactionStatusCancelled {
			continue
		}
		switch t.Type {
		case models.TransactionTypeCampaignReserve, models.TransactionTypeCampaignRefund:
			// reserve is negative, refund positive
			reserved = reserved.Sub(t.Amount)
		case models.TransactionTypeCampaignCharge:
			reserved = reserved.Add(t.Amount)
		}
	}
	if reserved.IsNegative() {
		return decimal.Zero
	}
	return minDecimal(reserved, walletReserved)
}

// chargedTotal sums the net charges recorded for a campaign. Charges are
// negative and reversals positive.
func chargedTotal(txs []models.Transaction) decimal.Decimal {
	total := decimal.Zero
	for i := range txs {
		if txs[i].Type == models.TransactionTypeCampaignCharge {
			total = total.Sub(txs[i].Amount)
		}
	}
	return total
}

// CheckAutoTopup reports whether the brand wallet is due an automatic top-up.
func (s *WalletService) CheckAutoTopup(ctx context.Context, userID string) (bool, error) {
	wallet, err := s.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return false, err
	}
	return wallet.Type == models.WalletTypeBrand &&
		wallet.AutoTopupEnabled &&
		wallet.Balance.LessThanOrEqual(wallet.AutoTopupThreshold), nil
}

// SetAutoTopup configures automatic top-ups on a brand wallet.
func (s *WalletService) SetAutoTopup(ctx context.Context, userID string, enabled bool, threshold, amount decimal.Decimal) (*models.Wallet, error) {
	if threshold.IsNegative() {
		return nil, models.BadRequest("auto top-up threshold must not be negative")
	}
	if enabled {
		if err := requirePositive("auto top-up amount", amount); err != nil {
			return nil, err
		}
	}
	if _, err := s.GetOrCreateWallet(ctx, userID); err != nil {
		return nil, err
	}

	var out models.Wallet
	err := s.engine.WithUserWallet(ctx, userID, func(tx ports.LedgerTx, wallet *models.Wallet) error {
		if wallet.Type != models.WalletTypeBrand {
			return models.BadRequest("auto top-up is only available for brand wallets")
		}
		wallet.AutoTopupEnabled = enabled
		wallet.AutoTopupThreshold = threshold
		wallet.AutoTopupAmount = amount
		if err := s.engine.SaveWallet(ctx, tx, wallet); err != nil {
			return err
		}
		out = *wallet
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTransactionHistory lists ledger entries matching filter, oldest first.
func (s *WalletService) GetTransactionHistory(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	if filter.UserID == "" && filter.WalletID == "" {
		return nil, models.BadRequest("user id or wallet id is required")
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	txs, err := s.store.FindTransactions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction history: %w", err)
	}
	return txs, nil
}

// ReleaseAllExpiredHolds releases expired holds across all wallets. A
// failure on one user is recorded and the sweep continues.
func (s *WalletService) ReleaseAllExpiredHolds(ctx context.Context) (*HoldSweepReport, error) {
	userIDs, err := s.store.ListUsersWithExpiredHolds(ctx, s.nowFn().UTC())
	if err != nil {
		return nil, err
	}

	report := &HoldSweepReport{Amount: decimal.Zero, Failed: map[string]string{}}
	for _, userID := range userIDs {
		report.Users++
		result, err := s.ReleaseEarningsForCampaign(ctx, userID, "")
		if err != nil {
			s.log.Errorw("failed to release expired holds", "user_id", userID, "error", err)
			report.Failed[userID] = err.Error()
			continue
		}
		report.Released += result.Count
		report.Amount = report.Amount.Add(result.Amount)
	}

	if report.Released > 0 || len(report.Failed) > 0 {
		s.log.Infow("expired holds released", "users", report.Users, "released", report.Released,
			"amount", report.Amount.String(), "failed", len(report.Failed))
	}
	return report, nil
}

func transactionIDs(txs []models.Transaction) []string {
	ids := make([]string, len(txs))
	for i := range txs {
		ids[i] = txs[i].ID
	}
	return ids
}
