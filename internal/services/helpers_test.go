package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/models"
	"github.com/Game-Triggers/prototype-sub000/internal/repositories/memoryrepo"
	"github.com/Game-Triggers/prototype-sub000/pkg/logger"

	"github.com/shopspring/decimal"
)

type testEnv struct {
	now time.Time

	store     *memoryrepo.LedgerStore
	cache     *memoryrepo.BalanceCache
	campaigns *memoryrepo.CampaignRepository
	kyc       *memoryrepo.KYCRepository
	users     *memoryrepo.UserDirectory
	events    *memoryrepo.EventRecorder
	keys      *memoryrepo.KeyPool
	gateway   *memoryrepo.PaymentGateway
	locker    *memoryrepo.Locker

	engine     *TransactionEngine
	wallets    *WalletService
	finance    *CampaignFinanceService
	completion *CompletionService
	admin      *AdminService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return env.now }
	log := logger.NewNop()

	env.store = memoryrepo.NewLedgerStore()
	env.cache = memoryrepo.NewBalanceCache()
	env.campaigns = memoryrepo.NewCampaignRepository()
	env.kyc = memoryrepo.NewKYCRepository()
	env.users = memoryrepo.NewUserDirectory()
	env.events = memoryrepo.NewEventRecorder()
	env.keys = memoryrepo.NewKeyPool()
	env.gateway = memoryrepo.NewPaymentGateway()
	env.locker = memoryrepo.NewLocker(clock)

	env.engine = NewTransactionEngine(env.store, env.cache, log)
	env.wallets = NewWalletService(env.engine, env.store, env.cache, env.users, env.kyc, env.events, WalletConfig{
		Currency:               "USD",
		DefaultHoldDays:        3,
		MinimumWithdrawal:      decimal.NewFromInt(10),
		MaximumDailyWithdrawal: decimal.NewFromInt(1000),
	}, log)
	env.finance = NewCampaignFinanceService(env.wallets, env.store, env.campaigns, env.gateway, env.events, FinanceConfig{
		DefaultHoldDays:  3,
		LowBudgetPercent: decimal.NewFromInt(10),
	}, log)
	env.completion = NewCompletionService(env.campaigns, env.wallets, env.finance, env.keys, env.locker, env.events, CompletionConfig{
		Criteria:    DefaultCompletionCriteria(),
		Concurrency: 4,
		LockTTL:     time.Minute,
	}, log)
	env.admin = NewAdminService(env.engine, env.wallets, env.finance, env.completion, env.campaigns, env.store, env.events, log)

	env.engine.nowFn = clock
	env.wallets.nowFn = clock
	env.wallets.events.nowFn = clock
	env.finance.nowFn = clock
	env.finance.events.nowFn = clock
	env.completion.nowFn = clock
	env.completion.events.nowFn = clock
	env.admin.nowFn = clock
	env.admin.events.nowFn = clock

	return env
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

// brand registers a brand user and deposits funds when deposit is non-empty.
func (e *testEnv) brand(t *testing.T, userID, deposit string) *models.Wallet {
	t.Helper()
	e.users.Put(userID, models.WalletTypeBrand)
	if _, err := e.wallets.GetOrCreateWallet(context.Background(), userID); err != nil {
		t.Fatalf("create brand wallet %s: %v", userID, err)
	}
	if deposit != "" {
		if _, err := e.wallets.AddFunds(context.Background(), AddFundsInput{UserID: userID, Amount: dec(deposit)}); err != nil {
			t.Fatalf("deposit for %s: %v", userID, err)
		}
	}
	return e.wallet(t, userID)
}

func (e *testEnv) streamer(t *testing.T, userID string) *models.Wallet {
	t.Helper()
	e.users.Put(userID, models.WalletTypeStreamer)
	w, err := e.wallets.GetOrCreateWallet(context.Background(), userID)
	if err != nil {
		t.Fatalf("create streamer wallet %s: %v", userID, err)
	}
	return w
}

// withdrawable credits and immediately releases amount for the streamer.
func (e *testEnv) withdrawable(t *testing.T, userID, campaignID, amount string) {
	t.Helper()
	ctx := context.Background()
	hold, err := e.wallets.CreditEarnings(ctx, CreditEarningsInput{UserID: userID, CampaignID: campaignID, Amount: dec(amount)})
	if err != nil {
		t.Fatalf("credit earnings: %v", err)
	}
	if _, err := e.wallets.ReleaseEarnings(ctx, hold.ID, "test"); err != nil {
		t.Fatalf("release earnings: %v", err)
	}
}

func (e *testEnv) wallet(t *testing.T, userID string) *models.Wallet {
	t.Helper()
	w, err := e.store.GetWalletByUserID(context.Background(), userID)
	if err != nil {
		t.Fatalf("get wallet %s: %v", userID, err)
	}
	return w
}

func (e *testEnv) campaign(t *testing.T, campaignID string) *models.Campaign {
	t.Helper()
	c, err := e.campaigns.GetCampaign(context.Background(), campaignID)
	if err != nil {
		t.Fatalf("get campaign %s: %v", campaignID, err)
	}
	return c
}

func (e *testEnv) putCampaign(c models.Campaign) {
	if c.PaymentType == "" {
		c.PaymentType = models.PaymentTypeCPM
	}
	if c.Status == "" {
		c.Status = models.CampaignStatusActive
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = e.now
		c.UpdatedAt = e.now
	}
	e.campaigns.PutCampaign(c)
}

func (e *testEnv) putParticipation(p models.Participation) {
	if p.ID == "" {
		p.ID = p.CampaignID + ":" + p.StreamerID
	}
	if p.Status == "" {
		p.Status = models.ParticipationStatusActive
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = e.now
	}
	e.campaigns.PutParticipation(p)
}

func (e *testEnv) transactions(filter models.TransactionFilter) []models.Transaction {
	var out []models.Transaction
	for _, txn := range e.store.Transactions() {
		if filter.Matches(&txn) {
			out = append(out, txn)
		}
	}
	return out
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Fatalf("%s: got %s, want %s", name, got, want)
	}
}

func assertErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("error: got %v, want %v", err, target)
	}
}
