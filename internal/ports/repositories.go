package ports

import (
	"context"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/models"
)

// LedgerStore persists wallets and their append-only transactions.
type LedgerStore interface {
	// InTx runs fn inside one storage transaction. A non-nil error from fn
	// rolls back every write made through tx.
	InTx(ctx context.Context, fn func(tx LedgerTx) error) error

	GetWallet(ctx context.Context, walletID string) (*models.Wallet, error)
	GetWalletByUserID(ctx context.Context, userID string) (*models.Wallet, error)
	// CreateWallet fails with models.ErrConflict when the user already owns a wallet.
	CreateWallet(ctx context.Context, wallet *models.Wallet) error
	GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error)
	FindTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error)
	// ListUsersWithExpiredHolds returns owners of pending EARNINGS_HOLD entries expired at now.
	ListUsersWithExpiredHolds(ctx context.Context, now time.Time) ([]string, error)
}

// LedgerTx is the write side of the store, valid only inside LedgerStore.InTx.
type LedgerTx interface {
	// LockWallet loads the wallet and holds it exclusively until the
	// surrounding transaction ends.
	LockWallet(ctx context.Context, walletID string) (*models.Wallet, error)
	LockWalletByUserID(ctx context.Context, userID string) (*models.Wallet, error)
	SaveWallet(ctx context.Context, wallet *models.Wallet) error
	InsertTransaction(ctx context.Context, txn *models.Transaction) error
	// UpdateTransactionStatus only moves entries that are still pending or processing.
	UpdateTransactionStatus(ctx context.Context, transactionIDs []string, status models.TransactionStatus, at time.Time) error
	FindTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error)
}

// CampaignRepository gives the ledger access to campaigns and participations.
type CampaignRepository interface {
	GetCampaign(ctx context.Context, campaignID string) (*models.Campaign, error)
	ListCampaignsByStatus(ctx context.Context, status models.CampaignStatus) ([]models.Campaign, error)
	UpdateCampaign(ctx context.Context, campaign *models.Campaign) error
	ListParticipations(ctx context.Context, campaignID string, statuses ...models.ParticipationStatus) ([]models.Participation, error)
	GetParticipation(ctx context.Context, campaignID, streamerID string) (*models.Participation, error)
	UpdateParticipation(ctx context.Context, participation *models.Participation) error
	// CompleteActiveParticipations moves every active participation of the
	// campaign to completed and returns how many rows changed.
	CompleteActiveParticipations(ctx context.Context, campaignID string, at time.Time) (int64, error)
}

type KYCRepository interface {
	GetKYC(ctx context.Context, userID string) (*models.KYCRecord, error)
}

// UserDirectory resolves which kind of wallet a user gets.
type UserDirectory interface {
	WalletTypeFor(ctx context.Context, userID string) (models.WalletType, error)
}
