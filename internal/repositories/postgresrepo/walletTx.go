package postgresrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/models"
	"github.com/Game-Triggers/prototype-sub000/internal/ports"

	"github.com/jmoiron/sqlx"
)

type TxWalletRepo struct {
	tx *sqlx.Tx
}

var _ ports.LedgerTx = (*TxWalletRepo)(nil)

func NewTxWalletRepo(tx *sqlx.Tx) *TxWalletRepo {
	return &TxWalletRepo{tx: tx}
}

func (r *TxWalletRepo) Commit() error {
	return r.tx.Commit()
}

func (r *TxWalletRepo) Rollback() error {
	return r.tx.Rollback()
}

func (r *TxWalletRepo) LockWallet(ctx context.Context, walletID string) (*models.Wallet, error) {
	var wallet models.Wallet
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1 FOR UPDATE`
	err := r.tx.GetContext(ctx, &wallet, query, walletID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NotFound("wallet not found: %s", walletID)
		}
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}
	return &wallet, nil
}

func (r *TxWalletRepo) LockWalletByUserID(ctx context.Context, userID string) (*models.Wallet, error) {
	var wallet models.Wallet
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1 FOR UPDATE`
	err := r.tx.GetContext(ctx, &wallet, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NotFound("wallet not found for user %s", userID)
		}
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}
	return &wallet, nil
}

// SaveWallet writes balances, freeze and auto top-up settings. The stored
// version must match wallet.Version-1, otherwise the write is rejected.
func (r *TxWalletRepo) SaveWallet(ctx context.Context, wallet *models.Wallet) error {
	query := `
		UPDATE wallets SET
			balance = :balance,
			reserved_balance = :reserved_balance,
			withdrawable_balance = :withdrawable_balance,
			total_earnings = :total_earnings,
			total_spent = :total_spent,
			is_active = :is_active,
			is_frozen = :is_frozen,
			frozen_at = :frozen_at,
			frozen_by = :frozen_by,
			freeze_reason = :freeze_reason,
			auto_topup_enabled = :auto_topup_enabled,
			auto_topup_threshold = :auto_topup_threshold,
			auto_topup_amount = :auto_topup_amount,
			version = :version,
			updated_at = :updated_at
		WHERE id = :id AND version = :version - 1
	`
	result, err := r.tx.NamedExecContext(ctx, query, wallet)
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return models.Conflict("wallet %s was modified concurrently", wallet.ID)
	}

	return nil
}

func (r *TxWalletRepo) InsertTransaction(ctx context.Context, txn *models.Transaction) error {
	query := `
		INSERT INTO wallet_transactions (` + transactionColumns + `)
		VALUES (
			:id, :wallet_id, :user_id, :transaction_type, :amount, :currency, :status, :campaign_id,
			:payment_method, :gateway_transaction_id, :description, :metadata, :balance_after,
			:reserved_balance_after, :withdrawable_balance_after, :processed_at, :expires_at,
			:created_by, :created_at, :updated_at
		)`
	if _, err := r.tx.NamedExecContext(ctx, query, txn); err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (r *TxWalletRepo) UpdateTransactionStatus(ctx context.Context, transactionIDs []string, status models.TransactionStatus, at time.Time) error {
	if len(transactionIDs) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`
		UPDATE wallet_transactions
		SET status = ?, processed_at = ?, updated_at = ?
		WHERE id IN (?) AND status IN (?)
	`, string(status), at, at, transactionIDs, []string{
		string(models.TransactionStatusPending),
		string(models.TransactionStatusProcessing),
	})
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	query = r.tx.Rebind(query)
	result, err := r.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows != int64(len(transactionIDs)) {
		return models.Conflict("expected %d open transactions, updated %d", len(transactionIDs), rows)
	}
	return nil
}

// FindTransactions locks the matched rows so status flips cannot race.
func (r *TxWalletRepo) FindTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	return findTransactions(ctx, r.tx, filter, true)
}
