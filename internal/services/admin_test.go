package services

import (
	"context"
	"testing"

	"github.com/Game-Triggers/prototype-sub000/internal/models"
)

func TestAdminService_ForceCompleteCampaign(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.brand(t, "brand-1", "100")
	env.streamer(t, "streamer-1")
	env.activeCampaign(t, models.Campaign{ID: "c-1", BrandID: "brand-1", Budget: dec("100"), PaymentRate: dec("2")})
	env.putParticipation(models.Participation{CampaignID: "c-1", StreamerID: "streamer-1", Impressions: 1000, EstimatedEarnings: dec("0")})

	_, err := env.admin.ForceCompleteCampaign(ctx, "c-1", "", "no admin")
	assertErrorIs(t, err, models.ErrBadRequest)

	result, err := env.admin.ForceCompleteCampaign(ctx, "c-1", "admin-1", "brand request")
	if err != nil {
		t.Fatalf("force complete: %v", err)
	}
	if result.Reason != "Force completed by admin: brand request" {
		t.Fatalf("reason: %q", result.Reason)
	}
	assertDecimal(t, "transferred", result.Transferred, "2")

	c := env.campaign(t, "c-1")
	if c.Status != models.CampaignStatusCompleted {
		t.Fatalf("status: got %s, want completed", c.Status)
	}
	if c.Metadata["adminForceCompleted"] != true || c.Metadata["forceCompletedBy"] != "admin-1" {
		t.Fatalf("metadata: %+v", c.Metadata)
	}
	if n := len(env.events.OfType(models.EventAdminForceComplete)); n != 1 {
		t.Fatalf("admin events: got %d, want 1", n)
	}

	_, err = env.admin.ForceCompleteCampaign(ctx, "c-1", "admin-1", "again")
	assertErrorIs(t, err, models.ErrBadRequest)
}

func TestAdminService_ForceCancelCampaign(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.brand(t, "brand-1", "100")
	env.activeCampaign(t, models.Campaign{ID: "c-1", BrandID: "brand-1", Budget: dec("60"), PaymentRate: dec("2")})
	if err := env.finance.HandleCampaignPause(ctx, "c-1"); err != nil {
		t.Fatalf("pause: %v", err)
	}

	if err := env.admin.ForceCancelCampaign(ctx, "c-1", "admin-1", "policy violation"); err != nil {
		t.Fatalf("force cancel: %v", err)
	}

	c := env.campaign(t, "c-1")
	if c.Status != models.CampaignStatusCancelled {
		t.Fatalf("status: got %s, want cancelled", c.Status)
	}
	if c.Metadata["adminForceCancelled"] != true || c.Metadata["forceCancelledBy"] != "admin-1" || c.Metadata["cancellationReason"] != "policy violation" {
		t.Fatalf("metadata: %+v", c.Metadata)
	}
	w := env.wallet(t, "brand-1")
	assertDecimal(t, "balance", w.Balance, "100")
	assertDecimal(t, "reserved", w.ReservedBalance, "0")

	assertErrorIs(t, env.admin.ForceCancelCampaign(ctx, "c-1", "admin-1", "again"), models.ErrBadRequest)
}

func TestAdminService_OverrideBudget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.putCampaign(models.Campaign{ID: "c-1", BrandID: "brand-1", Budget: dec("100"), RemainingBudget: dec("60"), PaymentRate: dec("2")})

	explicit := dec("200")
	tests := []struct {
		name          string
		input         BudgetOverrideInput
		wantErr       error
		wantBudget    string
		wantRemaining string
	}{
		{
			name:          "keeps spent amount",
			input:         BudgetOverrideInput{CampaignID: "c-1", AdminID: "admin-1", Budget: dec("150"), Reason: "grant"},
			wantBudget:    "150",
			wantRemaining: "110",
		},
		{
			name:          "floors remaining at zero",
			input:         BudgetOverrideInput{CampaignID: "c-1", AdminID: "admin-1", Budget: dec("20"), Reason: "cut"},
			wantBudget:    "20",
			wantRemaining: "0",
		},
		{
			name:    "remaining above budget",
			input:   BudgetOverrideInput{CampaignID: "c-1", AdminID: "admin-1", Budget: dec("150"), Reason: "grant", RemainingBudget: &explicit},
			wantErr: models.ErrBadRequest,
		},
		{
			name:    "missing reason",
			input:   BudgetOverrideInput{CampaignID: "c-1", AdminID: "admin-1", Budget: dec("150")},
			wantErr: models.ErrBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Each case starts from the same campaign
			env.putCampaign(models.Campaign{ID: "c-1", BrandID: "brand-1", Budget: dec("100"), RemainingBudget: dec("60"), PaymentRate: dec("2")})

			c, err := env.admin.OverrideBudget(ctx, tt.input)
			if tt.wantErr != nil {
				assertErrorIs(t, err, tt.wantErr)
				return
			}
			if err != nil {
				t.Fatalf("override: %v", err)
			}
			assertDecimal(t, "budget", c.Budget, tt.wantBudget)
			assertDecimal(t, "remaining", c.RemainingBudget, tt.wantRemaining)
			if c.Metadata["previousBudget"] != "100" || c.Metadata["budgetOverriddenBy"] != "admin-1" {
				t.Fatalf("metadata: %+v", c.Metadata)
			}
		})
	}
}

func TestAdminService_FreezeAndAdjust(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.brand(t, "brand-1", "100")

	_, err := env.admin.FreezeWallet(ctx, "brand-1", "admin-1", "")
	assertErrorIs(t, err, models.ErrBadRequest)

	w, err := env.admin.FreezeWallet(ctx, "brand-1", "admin-1", "chargeback")
	if err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if !w.IsFrozen || w.FrozenBy == nil || *w.FrozenBy != "admin-1" {
		t.Fatalf("wallet not frozen: %+v", w)
	}
	_, err = env.admin.FreezeWallet(ctx, "brand-1", "admin-1", "chargeback")
	assertErrorIs(t, err, models.ErrBadRequest)

	txn, err := env.admin.AdjustWalletBalance(ctx, AdjustBalanceInput{UserID: "brand-1", AdminID: "admin-1", Amount: dec("-30"), Reason: "chargeback"})
	if err != nil {
		t.Fatalf("adjust frozen wallet: %v", err)
	}
	if txn.Metadata["adjustedBy"] != "admin-1" {
		t.Fatalf("metadata: %+v", txn.Metadata)
	}
	assertDecimal(t, "balance", env.wallet(t, "brand-1").Balance, "70")

	_, err = env.admin.AdjustWalletBalance(ctx, AdjustBalanceInput{UserID: "brand-1", AdminID: "admin-1", Amount: dec("-70.01"), Reason: "too much"})
	assertErrorIs(t, err, models.ErrBadRequest)
	_, err = env.admin.AdjustWalletBalance(ctx, AdjustBalanceInput{UserID: "brand-1", AdminID: "admin-1", Amount: dec("0"), Reason: "nothing"})
	assertErrorIs(t, err, models.ErrBadRequest)

	w, err = env.admin.UnfreezeWallet(ctx, "brand-1", "admin-1", "resolved")
	if err != nil {
		t.Fatalf("unfreeze: %v", err)
	}
	if w.IsFrozen || w.FrozenAt != nil {
		t.Fatalf("wallet still frozen: %+v", w)
	}
	_, err = env.admin.UnfreezeWallet(ctx, "brand-1", "admin-1", "resolved")
	assertErrorIs(t, err, models.ErrBadRequest)

	if _, err := env.wallets.AddFunds(ctx, AddFundsInput{UserID: "brand-1", Amount: dec("5")}); err != nil {
		t.Fatalf("deposit after unfreeze: %v", err)
	}
}

func TestAdminService_ForceReleaseEarnings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.streamer(t, "streamer-1")
	for _, c := range []string{"c-1", "c-2"} {
		if _, err := env.wallets.CreditEarnings(ctx, CreditEarningsInput{UserID: "streamer-1", CampaignID: c, Amount: dec("15"), HoldDays: 30}); err != nil {
			t.Fatalf("credit: %v", err)
		}
	}

	result, err := env.admin.ForceReleaseEarnings(ctx, "streamer-1", "c-1", "admin-1")
	if err != nil {
		t.Fatalf("force release: %v", err)
	}
	if result.Count != 1 || result.Transactions[0].Metadata["releasedBy"] != "admin-1" {
		t.Fatalf("unexpected result: %+v", result)
	}
	assertDecimal(t, "withdrawable", env.wallet(t, "streamer-1").WithdrawableBalance, "15")

	result, err = env.admin.ForceReleaseEarnings(ctx, "streamer-1", "", "admin-1")
	if err != nil {
		t.Fatalf("force release all: %v", err)
	}
	if result.Count != 1 {
		t.Fatalf("released: got %d, want 1", result.Count)
	}
	assertDecimal(t, "withdrawable", env.wallet(t, "streamer-1").WithdrawableBalance, "30")
}

func TestAdminService_DisputeHolds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.streamer(t, "streamer-1")
	env.brand(t, "brand-1", "10")
	env.withdrawable(t, "streamer-1", "c-1", "100")

	_, err := env.admin.PlaceDisputeHold(ctx, "brand-1", "admin-1", dec("5"), "wrong wallet")
	assertErrorIs(t, err, models.ErrBadRequest)
	_, err = env.admin.PlaceDisputeHold(ctx, "streamer-1", "admin-1", dec("100.01"), "too much")
	assertErrorIs(t, err, models.ErrBadRequest)

	returned, err := env.admin.PlaceDisputeHold(ctx, "streamer-1", "admin-1", dec("30"), "chargeback")
	if err != nil {
		t.Fatalf("place hold: %v", err)
	}
	if returned.Status != models.TransactionStatusPending {
		t.Fatalf("hold status: got %s, want pending", returned.Status)
	}
	forfeited, err := env.admin.PlaceDisputeHold(ctx, "streamer-1", "admin-1", dec("20"), "fraud")
	if err != nil {
		t.Fatalf("place hold: %v", err)
	}
	assertDecimal(t, "withdrawable while disputed", env.wallet(t, "streamer-1").WithdrawableBalance, "50")

	reversal, err := env.admin.ResolveDisputeHold(ctx, returned.ID, "admin-2", false)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	assertDecimal(t, "reversal amount", reversal.Amount, "30")

	closed, err := env.admin.ResolveDisputeHold(ctx, forfeited.ID, "admin-2", true)
	if err != nil {
		t.Fatalf("forfeit: %v", err)
	}
	if closed.ID != forfeited.ID || closed.Status != models.TransactionStatusCompleted {
		t.Fatalf("forfeited hold: %+v", closed)
	}

	w := env.wallet(t, "streamer-1")
	assertDecimal(t, "withdrawable", w.WithdrawableBalance, "80")
	assertDecimal(t, "balance", w.Balance, "100")

	stored, err := env.store.GetTransaction(ctx, returned.ID)
	if err != nil {
		t.Fatalf("get hold: %v", err)
	}
	if stored.Status != models.TransactionStatusCancelled {
		t.Fatalf("returned hold status: got %s, want cancelled", stored.Status)
	}

	_, err = env.admin.ResolveDisputeHold(ctx, returned.ID, "admin-2", false)
	assertErrorIs(t, err, models.ErrBadRequest)
}
