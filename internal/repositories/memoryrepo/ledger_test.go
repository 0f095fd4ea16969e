package memoryrepo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/models"
	"github.com/Game-Triggers/prototype-sub000/internal/ports"

	"github.com/shopspring/decimal"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newStoreWithWallet(t *testing.T) (*LedgerStore, *models.Wallet) {
	t.Helper()
	store := NewLedgerStore()
	w := models.NewWallet("w-1", "user-1", models.WalletTypeStreamer, "USD", now)
	if err := store.CreateWallet(context.Background(), w); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	return store, w
}

func TestLedgerStore_CreateWalletConflict(t *testing.T) {
	store, _ := newStoreWithWallet(t)
	err := store.CreateWallet(context.Background(), models.NewWallet("w-2", "user-1", models.WalletTypeStreamer, "USD", now))
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("got %v, want conflict", err)
	}
}

func TestLedgerStore_InTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store, _ := newStoreWithWallet(t)
	boom := errors.New("boom")

	err := store.InTx(ctx, func(tx ports.LedgerTx) error {
		w, err := tx.LockWallet(ctx, "w-1")
		if err != nil {
			return err
		}
		w.Balance = decimal.NewFromInt(10)
		w.Version++
		if err := tx.SaveWallet(ctx, w); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, &models.Transaction{ID: "t-1", WalletID: "w-1", UserID: "user-1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}

	w, err := store.GetWallet(ctx, "w-1")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if !w.Balance.IsZero() || w.Version != 0 {
		t.Fatalf("wallet changed after rollback: %+v", w)
	}
	if n := len(store.Transactions()); n != 0 {
		t.Fatalf("transactions after rollback: %d", n)
	}
}

func TestLedgerTx_SaveWalletVersionCheck(t *testing.T) {
	ctx := context.Background()
	store, _ := newStoreWithWallet(t)

	err := store.InTx(ctx, func(tx ports.LedgerTx) error {
		w, err := tx.LockWallet(ctx, "w-1")
		if err != nil {
			return err
		}
		w.Version += 2
		return tx.SaveWallet(ctx, w)
	})
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("got %v, want conflict", err)
	}
}

func TestLedgerTx_UpdateTransactionStatus(t *testing.T) {
	ctx := context.Background()
	store, _ := newStoreWithWallet(t)
	store.Seed(models.Transaction{ID: "open", WalletID: "w-1", Status: models.TransactionStatusPending})
	store.Seed(models.Transaction{ID: "closed", WalletID: "w-1", Status: models.TransactionStatusCompleted})

	at := now.Add(time.Hour)
	err := store.InTx(ctx, func(tx ports.LedgerTx) error {
		return tx.UpdateTransactionStatus(ctx, []string{"open", "closed"}, models.TransactionStatusCancelled, at)
	})
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("got %v, want conflict", err)
	}
	open, _ := store.GetTransaction(ctx, "open")
	if open.Status != models.TransactionStatusPending {
		t.Fatalf("partial update leaked: %s", open.Status)
	}

	err = store.InTx(ctx, func(tx ports.LedgerTx) error {
		return tx.UpdateTransactionStatus(ctx, []string{"open"}, models.TransactionStatusCompleted, at)
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	open, _ = store.GetTransaction(ctx, "open")
	if open.Status != models.TransactionStatusCompleted || open.ProcessedAt == nil || !open.ProcessedAt.Equal(at) {
		t.Fatalf("unexpected transaction: %+v", open)
	}
}

func TestLedgerTx_InsertDuplicate(t *testing.T) {
	ctx := context.Background()
	store, _ := newStoreWithWallet(t)
	store.Seed(models.Transaction{ID: "t-1", WalletID: "w-1"})

	err := store.InTx(ctx, func(tx ports.LedgerTx) error {
		return tx.InsertTransaction(ctx, &models.Transaction{ID: "t-1", WalletID: "w-1"})
	})
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("got %v, want conflict", err)
	}
}

func TestLedgerStore_ListUsersWithExpiredHolds(t *testing.T) {
	ctx := context.Background()
	store := NewLedgerStore()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	store.Seed(models.Transaction{ID: "1", UserID: "b", Type: models.TransactionTypeEarningsHold, Status: models.TransactionStatusPending, ExpiresAt: &past})
	store.Seed(models.Transaction{ID: "2", UserID: "a", Type: models.TransactionTypeEarningsHold, Status: models.TransactionStatusPending, ExpiresAt: &now})
	store.Seed(models.Transaction{ID: "3", UserID: "b", Type: models.TransactionTypeEarningsHold, Status: models.TransactionStatusPending, ExpiresAt: &past})
	store.Seed(models.Transaction{ID: "4", UserID: "c", Type: models.TransactionTypeEarningsHold, Status: models.TransactionStatusPending, ExpiresAt: &future})
	store.Seed(models.Transaction{ID: "5", UserID: "d", Type: models.TransactionTypeEarningsHold, Status: models.TransactionStatusCompleted, ExpiresAt: &past})

	users, err := store.ListUsersWithExpiredHolds(ctx, now)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 2 || users[0] != "a" || users[1] != "b" {
		t.Fatalf("users: %v", users)
	}
}

func TestLocker(t *testing.T) {
	ctx := context.Background()
	clock := now
	locker := NewLocker(func() time.Time { return clock })

	unlock, ok, err := locker.Acquire(ctx, "k", time.Minute)
	if err != nil || !ok {
		t.Fatalf("acquire: %v %v", ok, err)
	}
	if _, ok, _ := locker.Acquire(ctx, "k", time.Minute); ok {
		t.Fatalf("lock acquired twice")
	}

	clock = clock.Add(2 * time.Minute)
	unlockSecond, ok, _ := locker.Acquire(ctx, "k", time.Minute)
	if !ok {
		t.Fatalf("expired lock not reacquired")
	}

	// A stale unlock leaves the newer holder alone
	if err := unlock(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, ok, _ := locker.Acquire(ctx, "k", time.Minute); ok {
		t.Fatalf("stale unlock released the newer lock")
	}
	if err := unlockSecond(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, ok, _ := locker.Acquire(ctx, "k", time.Minute); !ok {
		t.Fatalf("lock not released")
	}
}

func TestBalanceCache_KeepsNewestVersion(t *testing.T) {
	ctx := context.Background()
	cache := NewBalanceCache()

	if _, err := cache.GetBalance(ctx, "user-1"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
	_ = cache.SetBalance(ctx, models.WalletBalance{UserID: "user-1", Version: 3, Balance: decimal.NewFromInt(30)})
	_ = cache.SetBalance(ctx, models.WalletBalance{UserID: "user-1", Version: 2, Balance: decimal.NewFromInt(20)})

	got, err := cache.GetBalance(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 3 {
		t.Fatalf("version: got %d, want 3", got.Version)
	}
}
