package services

import (
	"context"
	"testing"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/models"
)

func TestApplyTransaction(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	base := models.Wallet{
		ID:                  "w-1",
		UserID:              "u-1",
		Type:                models.WalletTypeBrand,
		Balance:             dec("1000"),
		ReservedBalance:     dec("200"),
		WithdrawableBalance: dec("50"),
		TotalEarnings:       dec("0"),
		TotalSpent:          dec("1000"),
		Currency:            "USD",
	}

	type want struct {
		balance      string
		reserved     string
		withdrawable string
		earnings     string
		spent        string
		status       models.TransactionStatus
		err          error
	}

	tests := []struct {
		name   string
		wallet func(w *models.Wallet)
		req    TransactionRequest
		want   want
	}{
		{
			name: "deposit raises balance and total spent",
			req:  TransactionRequest{Type: models.TransactionTypeDeposit, Amount: dec("100")},
			want: want{balance: "1100", reserved: "200", withdrawable: "50", earnings: "0", spent: "1100", status: models.TransactionStatusCompleted},
		},
		{
			name: "reserve moves balance into reserved",
			req:  TransactionRequest{Type: models.TransactionTypeCampaignReserve, Amount: dec("-300")},
			want: want{balance: "700", reserved: "500", withdrawable: "50", earnings: "0", spent: "1000", status: models.TransactionStatusPending},
		},
		{
			name: "charge consumes reserved",
			req:  TransactionRequest{Type: models.TransactionTypeCampaignCharge, Amount: dec("-150")},
			want: want{balance: "1000", reserved: "50", withdrawable: "50", earnings: "0", spent: "1000", status: models.TransactionStatusCompleted},
		},
		{
			name: "earnings credit reversal leaves balances alone",
			req:  TransactionRequest{Type: models.TransactionTypeEarningsCredit, Amount: dec("-25")},
			want: want{balance: "1000", reserved: "200", withdrawable: "50", earnings: "0", spent: "1000", status: models.TransactionStatusCompleted},
		},
		{
			name: "refund moves reserved back to balance",
			req:  TransactionRequest{Type: models.TransactionTypeCampaignRefund, Amount: dec("200")},
			want: want{balance: "1200", reserved: "0", withdrawable: "50", earnings: "0", spent: "1000", status: models.TransactionStatusCompleted},
		},
		{
			name: "earnings hold raises balance and total earnings",
			req:  TransactionRequest{Type: models.TransactionTypeEarningsHold, Amount: dec("25")},
			want: want{balance: "1025", reserved: "200", withdrawable: "50", earnings: "25", spent: "1000", status: models.TransactionStatusPending},
		},
		{
			name: "earnings release raises withdrawable only",
			req:  TransactionRequest{Type: models.TransactionTypeEarningsRelease, Amount: dec("25")},
			want: want{balance: "1000", reserved: "200", withdrawable: "75", earnings: "0", spent: "1000", status: models.TransactionStatusCompleted},
		},
		{
			name: "withdrawal lowers withdrawable and stays processing",
			req:  TransactionRequest{Type: models.TransactionTypeWithdrawal, Amount: dec("-50")},
			want: want{balance: "1000", reserved: "200", withdrawable: "0", earnings: "0", spent: "1000", status: models.TransactionStatusProcessing},
		},
		{
			name: "negative dispute hold is pending",
			req:  TransactionRequest{Type: models.TransactionTypeDisputeHold, Amount: dec("-20")},
			want: want{balance: "1000", reserved: "200", withdrawable: "30", earnings: "0", spent: "1000", status: models.TransactionStatusPending},
		},
		{
			name: "admin adjustment touches balance only",
			req:  TransactionRequest{Type: models.TransactionTypeAdminAdjustment, Amount: dec("-1000")},
			want: want{balance: "0", reserved: "200", withdrawable: "50", earnings: "0", spent: "1000", status: models.TransactionStatusCompleted},
		},
		{
			name: "status override wins over the default",
			req:  TransactionRequest{Type: models.TransactionTypeWithdrawal, Amount: dec("-10"), Status: models.TransactionStatusCompleted},
			want: want{balance: "1000", reserved: "200", withdrawable: "40", earnings: "0", spent: "1000", status: models.TransactionStatusCompleted},
		},
		{
			name: "overdrawn balance is rejected",
			req:  TransactionRequest{Type: models.TransactionTypeCampaignReserve, Amount: dec("-1000.01")},
			want: want{err: models.ErrBadRequest},
		},
		{
			name: "overdrawn reserved is rejected",
			req:  TransactionRequest{Type: models.TransactionTypeCampaignCharge, Amount: dec("-200.01")},
			want: want{err: models.ErrBadRequest},
		},
		{
			name: "overdrawn withdrawable is rejected",
			req:  TransactionRequest{Type: models.TransactionTypeWithdrawal, Amount: dec("-51")},
			want: want{err: models.ErrBadRequest},
		},
		{
			name: "zero amount is rejected",
			req:  TransactionRequest{Type: models.TransactionTypeDeposit, Amount: dec("0")},
			want: want{err: models.ErrBadRequest},
		},
		{
			name: "unknown type is rejected",
			req:  TransactionRequest{Type: "BONUS", Amount: dec("5")},
			want: want{err: models.ErrBadRequest},
		},
		{
			name:   "frozen wallet is rejected",
			wallet: func(w *models.Wallet) { w.IsFrozen = true },
			req:    TransactionRequest{Type: models.TransactionTypeDeposit, Amount: dec("5")},
			want:   want{err: models.ErrWalletFrozen},
		},
		{
			name:   "frozen wallet accepts bypassing requests",
			wallet: func(w *models.Wallet) { w.IsFrozen = true },
			req:    TransactionRequest{Type: models.TransactionTypeAdminAdjustment, Amount: dec("5"), BypassFreeze: true},
			want:   want{balance: "1005", reserved: "200", withdrawable: "50", earnings: "0", spent: "1000", status: models.TransactionStatusCompleted},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := base
			if tt.wallet != nil {
				tt.wallet(&w)
			}
			tt.req.WalletID = w.ID
			tt.req.CampaignID = "c-1"

			got, txn, err := applyTransaction(w, tt.req, now)
			if tt.want.err != nil {
				assertErrorIs(t, err, tt.want.err)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			assertDecimal(t, "balance", got.Balance, tt.want.balance)
			assertDecimal(t, "reserved", got.ReservedBalance, tt.want.reserved)
			assertDecimal(t, "withdrawable", got.WithdrawableBalance, tt.want.withdrawable)
			assertDecimal(t, "total earnings", got.TotalEarnings, tt.want.earnings)
			assertDecimal(t, "total spent", got.TotalSpent, tt.want.spent)

			if txn.Status != tt.want.status {
				t.Fatalf("status: got %q, want %q", txn.Status, tt.want.status)
			}
			if (txn.ProcessedAt != nil) != (tt.want.status == models.TransactionStatusCompleted) {
				t.Fatalf("processedAt: got %v for status %q", txn.ProcessedAt, txn.Status)
			}
			if !txn.BalanceAfter.Equal(got.Balance) || !txn.ReservedBalanceAfter.Equal(got.ReservedBalance) ||
				!txn.WithdrawableBalanceAfter.Equal(got.WithdrawableBalance) {
				t.Fatalf("snapshot does not match wallet: %+v", txn)
			}
			if txn.CampaignIDValue() != "c-1" || txn.UserID != "u-1" || txn.Currency != "USD" {
				t.Fatalf("transaction fields not copied: %+v", txn)
			}
			if !txn.CreatedAt.Equal(now) {
				t.Fatalf("createdAt: got %v, want %v", txn.CreatedAt, now)
			}
		})
	}
}

func TestTransactionEngine_CreateTransaction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.brand(t, "brand-1", "")

	txn, err := env.engine.CreateTransaction(ctx, TransactionRequest{
		WalletID: w.ID,
		Type:     models.TransactionTypeDeposit,
		Amount:   dec("250"),
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	stored, err := env.store.GetTransaction(ctx, txn.ID)
	if err != nil {
		t.Fatalf("transaction not stored: %v", err)
	}
	assertDecimal(t, "balance after", stored.BalanceAfter, "250")

	w = env.wallet(t, "brand-1")
	assertDecimal(t, "balance", w.Balance, "250")
	if w.Version != 1 {
		t.Fatalf("version: got %d, want 1", w.Version)
	}

	cached, err := env.cache.GetBalance(ctx, "brand-1")
	if err != nil {
		t.Fatalf("balance not cached: %v", err)
	}
	if cached.Version != 1 || !cached.Balance.Equal(dec("250")) {
		t.Fatalf("cached snapshot: %+v", cached)
	}
}

func TestTransactionEngine_CreateTransactionValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.CreateTransaction(context.Background(), TransactionRequest{
		Type:   models.TransactionTypeDeposit,
		Amount: dec("1"),
	})
	assertErrorIs(t, err, models.ErrBadRequest)

	_, err = env.engine.CreateTransaction(context.Background(), TransactionRequest{
		WalletID: "missing",
		Type:     models.TransactionTypeDeposit,
		Amount:   dec("1"),
	})
	assertErrorIs(t, err, models.ErrNotFound)
}

func TestTransactionEngine_ApplyBatchIsAtomic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.brand(t, "brand-1", "100")
	before := len(env.store.Transactions())

	_, err := env.engine.ApplyBatch(ctx, w.ID, []TransactionRequest{
		{WalletID: w.ID, Type: models.TransactionTypeCampaignReserve, Amount: dec("-60")},
		{WalletID: w.ID, Type: models.TransactionTypeCampaignReserve, Amount: dec("-60")},
	})
	assertErrorIs(t, err, models.ErrBadRequest)

	if got := len(env.store.Transactions()); got != before {
		t.Fatalf("transactions: got %d, want %d", got, before)
	}
	w = env.wallet(t, "brand-1")
	assertDecimal(t, "balance", w.Balance, "100")
	assertDecimal(t, "reserved", w.ReservedBalance, "0")

	txs, err := env.engine.ApplyBatch(ctx, w.ID, []TransactionRequest{
		{WalletID: w.ID, Type: models.TransactionTypeCampaignReserve, Amount: dec("-60")},
		{WalletID: w.ID, Type: models.TransactionTypeCampaignCharge, Amount: dec("-10")},
	})
	if err != nil {
		t.Fatalf("apply batch: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("batch entries: got %d, want 2", len(txs))
	}
	assertDecimal(t, "reserved after batch", txs[1].ReservedBalanceAfter, "50")

	w = env.wallet(t, "brand-1")
	if w.Version != 3 {
		t.Fatalf("version: got %d, want 3", w.Version)
	}
}

func TestTransactionEngine_ApplyBatchRejectsForeignWallet(t *testing.T) {
	env := newTestEnv(t)
	w := env.brand(t, "brand-1", "100")

	_, err := env.engine.ApplyBatch(context.Background(), w.ID, []TransactionRequest{
		{WalletID: "other", Type: models.TransactionTypeDeposit, Amount: dec("1")},
	})
	assertErrorIs(t, err, models.ErrBadRequest)
}
