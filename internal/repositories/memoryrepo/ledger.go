// Package memoryrepo holds in-process implementations of the ledger ports.
// They back the unit tests.
package memoryrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/models"
	"github.com/Game-Triggers/prototype-sub000/internal/ports"
)

// LedgerStore keeps wallets and transactions in maps. InTx works on a copy
// and swaps it in on success, so a failed callback leaves no trace.
type LedgerStore struct {
	mu      sync.Mutex
	wallets map[string]models.Wallet
	byUser  map[string]string
	txns    []models.Transaction
}

var _ ports.LedgerStore = (*LedgerStore)(nil)

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		wallets: map[string]models.Wallet{},
		byUser:  map[string]string{},
	}
}

func (s *LedgerStore) InTx(ctx context.Context, fn func(tx ports.LedgerTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &ledgerTx{
		wallets: make(map[string]models.Wallet, len(s.wallets)),
		byUser:  s.byUser,
		txns:    make([]models.Transaction, len(s.txns)),
	}
	for id, w := range s.wallets {
		tx.wallets[id] = w
	}
	copy(tx.txns, s.txns)

	if err := fn(tx); err != nil {
		return err
	}

	s.wallets = tx.wallets
	s.txns = tx.txns
	return nil
}

func (s *LedgerStore) GetWallet(_ context.Context, walletID string) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[walletID]
	if !ok {
		return nil, models.NotFound("wallet not found: %s", walletID)
	}
	return &w, nil
}

func (s *LedgerStore) GetWalletByUserID(_ context.Context, userID string) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byUser[userID]
	if !ok {
		return nil, models.NotFound("wallet not found for user %s", userID)
	}
	w := s.wallets[id]
	return &w, nil
}

func (s *LedgerStore) CreateWallet(_ context.Context, wallet *models.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUser[wallet.UserID]; ok {
		return models.Conflict("wallet already exists for user %s", wallet.UserID)
	}
	s.wallets[wallet.ID] = *wallet
	s.byUser[wallet.UserID] = wallet.ID
	return nil
}

func (s *LedgerStore) GetTransaction(_ context.Context, transactionID string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.txns {
		if s.txns[i].ID == transactionID {
			t := cloneTransaction(s.txns[i])
			return &t, nil
		}
	}
	return nil, models.NotFound("transaction not found: %s", transactionID)
}

func (s *LedgerStore) FindTransactions(_ context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filterTransactions(s.txns, filter), nil
}

func (s *LedgerStore) ListUsersWithExpiredHolds(_ context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[string]bool{}
	var users []string
	for i := range s.txns {
		t := &s.txns[i]
		if t.Type != models.TransactionTypeEarningsHold || t.Status != models.TransactionStatusPending {
			continue
		}
		if t.ExpiresAt == nil || t.ExpiresAt.After(now) || seen[t.UserID] {
			continue
		}
		seen[t.UserID] = true
		users = append(users, t.UserID)
	}
	sort.Strings(users)
	return users, nil
}

// Transactions returns every stored entry in insertion order.
func (s *LedgerStore) Transactions() []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filterTransactions(s.txns, models.TransactionFilter{})
}

// Seed inserts a transaction as-is, bypassing the engine. Test setup only.
func (s *LedgerStore) Seed(txn models.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txns = append(s.txns, cloneTransaction(txn))
}

type ledgerTx struct {
	wallets map[string]models.Wallet
	byUser  map[string]string
	txns    []models.Transaction
}

func (t *ledgerTx) LockWallet(_ context.Context, walletID string) (*models.Wallet, error) {
	w, ok := t.wallets[walletID]
	if !ok {
		return nil, models.NotFound("wallet not found: %s", walletID)
	}
	return &w, nil
}

func (t *ledgerTx) LockWalletByUserID(ctx context.Context, userID string) (*models.Wallet, error) {
	id, ok := t.byUser[userID]
	if !ok {
		return nil, models.NotFound("wallet not found for user %s", userID)
	}
	return t.LockWallet(ctx, id)
}

func (t *ledgerTx) SaveWallet(_ context.Context, wallet *models.Wallet) error {
	stored, ok := t.wallets[wallet.ID]
	if !ok {
		return models.NotFound("wallet not found: %s", wallet.ID)
	}
	if stored.Version != wallet.Version-1 {
		return models.Conflict("wallet %s was modified concurrently", wallet.ID)
	}
	t.wallets[wallet.ID] = *wallet
	return nil
}

func (t *ledgerTx) InsertTransaction(_ context.Context, txn *models.Transaction) error {
	for i := range t.txns {
		if t.txns[i].ID == txn.ID {
			return models.Conflict("transaction %s already exists", txn.ID)
		}
	}
	t.txns = append(t.txns, cloneTransaction(*txn))
	return nil
}

func (t *ledgerTx) UpdateTransactionStatus(_ context.Context, transactionIDs []string, status models.TransactionStatus, at time.Time) error {
	wanted := make(map[string]bool, len(transactionIDs))
	for _, id := range transactionIDs {
		wanted[id] = true
	}

	updated := 0
	for i := range t.txns {
		txn := &t.txns[i]
		if !wanted[txn.ID] {
			continue
		}
		if txn.Status != models.TransactionStatusPending && txn.Status != models.TransactionStatusProcessing {
			continue
		}
		processedAt := at
		txn.Status = status
		txn.ProcessedAt = &processedAt
		txn.UpdatedAt = at
		updated++
	}

	if updated != len(transactionIDs) {
		return models.Conflict("expected %d open transactions, updated %d", len(transactionIDs), updated)
	}
	return nil
}

func (t *ledgerTx) FindTransactions(_ context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	return filterTransactions(t.txns, filter), nil
}

func filterTransactions(txns []models.Transaction, filter models.TransactionFilter) []models.Transaction {
	out := make([]models.Transaction, 0)
	for i := range txns {
		if !filter.Matches(&txns[i]) {
			continue
		}
		out = append(out, cloneTransaction(txns[i]))
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out
}

func cloneTransaction(t models.Transaction) models.Transaction {
	if t.Metadata != nil {
		md := make(models.Metadata, len(t.Metadata))
		for k, v := range t.Metadata {
			md[k] = v
		}
		t.Metadata = md
	}
	return t
}
