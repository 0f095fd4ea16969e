package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/models"
	"github.com/Game-Triggers/prototype-sub000/internal/ports"
	"github.com/Game-Triggers/prototype-sub000/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionRequest describes one ledger entry to apply to a wallet.
type TransactionRequest struct {
	WalletID             string                 `validate:"required"`
	Type                 models.TransactionType `validate:"required"`
	Amount               decimal.Decimal
	Description          string
	Metadata             models.Metadata
	CreatedBy            string
	CampaignID           string
	ExpiresAt            *time.Time
	PaymentMethod        string
	GatewayTransactionID string
	// Status overrides the default status for the type when set.
	Status models.TransactionStatus
	// BypassFreeze is reserved for admin adjustments.
	BypassFreeze bool
}

// TransactionEngine is the only writer of wallet balances.
type TransactionEngine struct {
	store ports.LedgerStore
	cache ports.BalanceCache
	log   *logger.Logger
	nowFn func() time.Time
}

func NewTransactionEngine(store ports.LedgerStore, cache ports.BalanceCache, log *logger.Logger) *TransactionEngine {
	return &TransactionEngine{
		store: store,
		cache: cache,
		log:   log,
		nowFn: time.Now,
	}
}

// CreateTransaction applies req to its wallet and stores the entry, both in
// one storage transaction.
func (e *TransactionEngine) CreateTransaction(ctx context.Context, req TransactionRequest) (*models.Transaction, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}

	var txn *models.Transaction
	err := e.WithWallet(ctx, req.WalletID, func(tx ports.LedgerTx, wallet *models.Wallet) error {
		var err error
		txn, err = e.Apply(ctx, tx, wallet, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// ApplyBatch applies every request to the same wallet atomically. All
// requests must target walletID.
func (e *TransactionEngine) ApplyBatch(ctx context.Context, walletID string, reqs []TransactionRequest) ([]models.Transaction, error) {
	for i := range reqs {
		if reqs[i].WalletID != walletID {
			return nil, models.BadRequest("batch entry %d targets wallet %s, expected %s", i, reqs[i].WalletID, walletID)
		}
		if err := validateInput(reqs[i]); err != nil {
			return nil, err
		}
	}

	out := make([]models.Transaction, 0, len(reqs))
	err := e.WithWallet(ctx, walletID, func(tx ports.LedgerTx, wallet *models.Wallet) error {
		for i := range reqs {
			txn, err := e.Apply(ctx, tx, wallet, reqs[i])
			if err != nil {
				return fmt.Errorf("batch entry %d: %w", i, err)
			}
			out = append(out, *txn)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// WithWallet locks the wallet and runs fn in one storage transaction. The
// balance cache is refreshed after a successful commit.
func (e *TransactionEngine) WithWallet(ctx context.Context, walletID string, fn func(tx ports.LedgerTx, wallet *models.Wallet) error) error {
	return e.run(ctx, func(tx ports.LedgerTx) (*models.Wallet, error) {
		return tx.LockWallet(ctx, walletID)
	}, fn)
}

// WithUserWallet is WithWallet keyed by the owner.
func (e *TransactionEngine) WithUserWallet(ctx context.Context, userID string, fn func(tx ports.LedgerTx, wallet *models.Wallet) error) error {
	return e.run(ctx, func(tx ports.LedgerTx) (*models.Wallet, error) {
		return tx.LockWalletByUserID(ctx, userID)
	}, fn)
}

func (e *TransactionEngine) run(
	ctx context.Context,
	lock func(tx ports.LedgerTx) (*models.Wallet, error),
	fn func(tx ports.LedgerTx, wallet *models.Wallet) error,
) error {
	var wallet *models.Wallet
	err := e.store.InTx(ctx, func(tx ports.LedgerTx) error {
		w, err := lock(tx)
		if err != nil {
			return err
		}
		wallet = w
		return fn(tx, w)
	})
	if err != nil {
		return err
	}

	// Cache is refreshed outside the storage transaction
	if err := e.cache.SetBalance(ctx, wallet.Snapshot()); err != nil {
		e.log.Warnw("failed to update balance cache", "user_id", wallet.UserID, "error", err)
	}
	return nil
}

// Apply writes one entry against a wallet already locked by tx. wallet is
// updated in place.
func (e *TransactionEngine) Apply(ctx context.Context, tx ports.LedgerTx, wallet *models.Wallet, req TransactionRequest) (*models.Transaction, error) {
	now := e.nowFn().UTC()

	updated, txn, err := applyTransaction(*wallet, req, now)
	if err != nil {
		return nil, err
	}
	txn.ID = uuid.NewString()

	if err := e.SaveWallet(ctx, tx, &updated); err != nil {
		return nil, err
	}
	if err := tx.InsertTransaction(ctx, &txn); err != nil {
		return nil, err
	}

	*wallet = updated
	return &txn, nil
}

// SaveWallet bumps the version and persists the wallet.
func (e *TransactionEngine) SaveWallet(ctx context.Context, tx ports.LedgerTx, wallet *models.Wallet) error {
	wallet.Version++
	wallet.UpdatedAt = e.nowFn().UTC()
	if err := tx.SaveWallet(ctx, wallet); err != nil {
		wallet.Version--
		return err
	}
	return nil
}

// applyTransaction computes the wallet after req and the entry recording it.
// The entry's ID is left for the caller.
func applyTransaction(wallet models.Wallet, req TransactionRequest, now time.Time) (models.Wallet, models.Transaction, error) {
	if wallet.IsFrozen && !req.BypassFreeze {
		return wallet, models.Transaction{}, models.WalletFrozen(wallet.ID)
	}
	if req.Amount.IsZero() {
		return wallet, models.Transaction{}, models.BadRequest("transaction amount must not be zero")
	}

	amount := req.Amount
	switch req.Type {
	case models.TransactionTypeDeposit:
		wallet.Balance = wallet.Balance.Add(amount)
		if wallet.Type == models.WalletTypeBrand {
			wallet.TotalSpent = wallet.TotalSpent.Add(amount)
		}
	case models.TransactionTypeCampaignReserve, models.TransactionTypeCampaignRefund:
		// Reserve carries a negative amount, refund a positive one
		wallet.Balance = wallet.Balance.Add(amount)
		wallet.ReservedBalance = wallet.ReservedBalance.Sub(amount)
	case models.TransactionTypeCampaignCharge:
		wallet.ReservedBalance = wallet.ReservedBalance.Add(amount)
	case models.TransactionTypeEarningsHold:
		wallet.Balance = wallet.Balance.Add(amount)
		wallet.TotalEarnings = wallet.TotalEarnings.Add(amount)
	case models.TransactionTypeEarningsCredit:
		// Audit entry for a cancelled hold; balances and totalEarnings stay as they are
	case models.TransactionTypeEarningsRelease, models.TransactionTypeWithdrawal, models.TransactionTypeDisputeHold:
		wallet.WithdrawableBalance = wallet.WithdrawableBalance.Add(amount)
	case models.TransactionTypePlatformFee, models.TransactionTypeAdminAdjustment:
		wallet.Balance = wallet.Balance.Add(amount)
	default:
		return wallet, models.Transaction{}, models.BadRequest("unknown transaction type: %s", req.Type)
	}

	switch {
	case wallet.Balance.IsNegative():
		return wallet, models.Transaction{}, models.BadRequest("insufficient balance")
	case wallet.ReservedBalance.IsNegative():
		return wallet, models.Transaction{}, models.BadRequest("insufficient reserved balance")
	case wallet.WithdrawableBalance.IsNegative():
		return wallet, models.Transaction{}, models.BadRequest("insufficient withdrawable balance")
	}

	status := req.Status
	if status == "" {
		status = defaultStatus(req.Type, amount)
	}

	metadata := req.Metadata
	if metadata == nil {
		metadata = models.Metadata{}
	}

	txn := models.Transaction{
		WalletID:                 wallet.ID,
		UserID:                   wallet.UserID,
		Type:                     req.Type,
		Amount:                   amount,
		Currency:                 wallet.Currency,
		Status:                   status,
		CampaignID:               strPtr(req.CampaignID),
		PaymentMethod:            strPtr(req.PaymentMethod),
		GatewayTransactionID:     strPtr(req.GatewayTransactionID),
		Description:              req.Description,
		Metadata:                 metadata,
		BalanceAfter:             wallet.Balance,
		ReservedBalanceAfter:     wallet.ReservedBalance,
		WithdrawableBalanceAfter: wallet.WithdrawableBalance,
		ExpiresAt:                req.ExpiresAt,
		CreatedBy:                req.CreatedBy,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	if status == models.TransactionStatusCompleted {
		processedAt := now
		txn.ProcessedAt = &processedAt
	}

	return wallet, txn, nil
}

// defaultStatus: holds and reservations stay open until settled, payouts
// are processing until the gateway confirms.
func defaultStatus(t models.TransactionType, amount decimal.Decimal) models.TransactionStatus {
	switch t {
	case models.TransactionTypeEarningsHold, models.TransactionTypeCampaignReserve:
		return models.TransactionStatusPending
	case models.TransactionTypeDisputeHold:
		if amount.IsNegative() {
			return models.TransactionStatusPending
		}
	case models.TransactionTypeWithdrawal:
		return models.TransactionStatusProcessing
	}
	return models.TransactionStatusCompleted
}
