package postgresrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/models"
	"github.com/Game-Triggers/prototype-sub000/internal/ports"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const walletColumns = `
	id, user_id, wallet_type, balance, reserved_balance, withdrawable_balance,
	total_earnings, total_spent, currency, is_active, is_frozen, frozen_at, frozen_by,
	freeze_reason, auto_topup_enabled, auto_topup_threshold, auto_topup_amount,
	version, created_at, updated_at`

const transactionColumns = `
	id, wallet_id, user_id, transaction_type, amount, currency, status, campaign_id,
	payment_method, gateway_transaction_id, description, metadata, balance_after,
	reserved_balance_after, withdrawable_balance_after, processed_at, expires_at,
	created_by, created_at, updated_at`

const uniqueViolation = "23505"

// WalletRepo is the Postgres ledger store.
type WalletRepo struct {
	db *sqlx.DB
}

var _ ports.LedgerStore = (*WalletRepo)(nil)

func NewWalletRepo(db *sqlx.DB) *WalletRepo {
	return &WalletRepo{db: db}
}

// BeginTx starts a transaction and returns a transactional repository
func (r *WalletRepo) BeginTx(ctx context.Context) (*TxWalletRepo, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return NewTxWalletRepo(tx), nil
}

// InTx runs fn in a transaction, committing on success and rolling back otherwise.
func (r *WalletRepo) InTx(ctx context.Context, fn func(tx ports.LedgerTx) error) error {
	txRepo, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}

	if err := fn(txRepo); err != nil {
		if rollbackErr := txRepo.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w (rollback error: %v)", err, rollbackErr)
		}
		return err
	}

	if err := txRepo.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetWallet get a wallet by ID
func (r *WalletRepo) GetWallet(ctx context.Context, walletID string) (*models.Wallet, error) {
	var wallet models.Wallet
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`
	if err := r.db.GetContext(ctx, &wallet, query, walletID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NotFound("wallet not found: %s", walletID)
		}
		return nil, fmt.Errorf("failed to get wallet from postgres: %w", err)
	}
	return &wallet, nil
}

// GetWalletByUserID get the wallet owned by a user
func (r *WalletRepo) GetWalletByUserID(ctx context.Context, userID string) (*models.Wallet, error) {
	var wallet models.Wallet
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`
	if err := r.db.GetContext(ctx, &wallet, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NotFound("wallet not found for user %s", userID)
		}
		return nil, fmt.Errorf("failed to get wallet from postgres: %w", err)
	}
	return &wallet, nil
}

// CreateWallet create a new wallet
func (r *WalletRepo) CreateWallet(ctx context.Context, wallet *models.Wallet) error {
	query := `
		INSERT INTO wallets (` + walletColumns + `)
		VALUES (
			:id, :user_id, :wallet_type, :balance, :reserved_balance, :withdrawable_balance,
			:total_earnings, :total_spent, :currency, :is_active, :is_frozen, :frozen_at, :frozen_by,
			:freeze_reason, :auto_topup_enabled, :auto_topup_threshold, :auto_topup_amount,
			:version, :created_at, :updated_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, wallet); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return models.Conflict("wallet already exists for user %s", wallet.UserID)
		}
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

// GetTransaction get a ledger entry by ID
func (r *WalletRepo) GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	var txn models.Transaction
	query := `SELECT ` + transactionColumns + ` FROM wallet_transactions WHERE id = $1`
	if err := r.db.GetContext(ctx, &txn, query, transactionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NotFound("transaction not found: %s", transactionID)
		}
		return nil, fmt.Errorf("failed to get transaction from postgres: %w", err)
	}
	return &txn, nil
}

func (r *WalletRepo) FindTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	return findTransactions(ctx, r.db, filter, false)
}

func (r *WalletRepo) ListUsersWithExpiredHolds(ctx context.Context, now time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT user_id
		FROM wallet_transactions
		WHERE transaction_type = $1 AND status = $2 AND expires_at <= $3
	`
	var userIDs []string
	err := r.db.SelectContext(ctx, &userIDs, query,
		models.TransactionTypeEarningsHold, models.TransactionStatusPending, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list users with expired holds: %w", err)
	}
	return userIDs, nil
}

// findTransactions builds the filtered SELECT shared by the plain and the
// transactional repository.
func findTransactions(ctx context.Context, q sqlx.QueryerContext, filter models.TransactionFilter, forUpdate bool) ([]models.Transaction, error) {
	where := make([]string, 0, 8)
	args := make([]interface{}, 0, 8)

	if filter.WalletID != "" {
		where = append(where, "wallet_id = ?")
		args = append(args, filter.WalletID)
	}
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.CampaignID != "" {
		where = append(where, "campaign_id = ?")
		args = append(args, filter.CampaignID)
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		where = append(where, "transaction_type IN (?)")
		args = append(args, types)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		where = append(where, "status IN (?)")
		args = append(args, statuses)
	}
	if filter.ExpiresBefore != nil {
		where = append(where, "expires_at <= ?")
		args = append(args, *filter.ExpiresBefore)
	}
	if filter.CreatedFrom != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		where = append(where, "created_at < ?")
		args = append(args, *filter.CreatedTo)
	}

	query := `SELECT ` + transactionColumns + ` FROM wallet_transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if forUpdate {
		query += " FOR UPDATE"
	}

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)

	var txns []models.Transaction
	if err := sqlx.SelectContext(ctx, q, &txns, query, args...); err != nil {
		return nil, fmt.Errorf("failed to find transactions: %w", err)
	}
	return txns, nil
}
