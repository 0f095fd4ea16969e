package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Game-Triggers/prototype-sub000/internal/broker"
	"github.com/Game-Triggers/prototype-sub000/internal/cache"
	"github.com/Game-Triggers/prototype-sub000/internal/config"
	"github.com/Game-Triggers/prototype-sub000/internal/database"
	"github.com/Game-Triggers/prototype-sub000/internal/repositories/kafkarepo"
	"github.com/Game-Triggers/prototype-sub000/internal/repositories/postgresrepo"
	"github.com/Game-Triggers/prototype-sub000/internal/repositories/redisrepo"
	"github.com/Game-Triggers/prototype-sub000/internal/services"
	"github.com/Game-Triggers/prototype-sub000/internal/worker"
	"github.com/Game-Triggers/prototype-sub000/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg *config.Config
	log *logger.Logger

	db       *sqlx.DB
	redis    *redis.Client
	events   *kafkarepo.EventRepository
	commands *kafkarepo.CommandRepository

	Wallets    *services.WalletService
	Finance    *services.CampaignFinanceService
	Completion *services.CompletionService
	Admin      *services.AdminService

	partitionManager *worker.PartitionManager
	sweeper          *worker.Sweeper
}

func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log}

	// Connect to database
	db, err := database.NewPostgres(cfg.Postgres.URL)
	if err != nil {
		return nil, fmt.Errorf("database connection error: %w", err)
	}
	a.db = db

	// Connect to cache
	a.redis, err = cache.NewRedis(cfg.Redis)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("cache connection error: %w", err)
	}

	// Connect to broker
	eventsWriter, err := broker.NewKafkaWriter(cfg.Kafka, cfg.Kafka.EventsTopic)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("broker connection error: %w", err)
	}
	a.events = kafkarepo.NewEventRepository(eventsWriter)

	commandsWriter, err := broker.NewKafkaWriter(cfg.Kafka, cfg.Kafka.CommandsTopic)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("broker connection error: %w", err)
	}
	a.commands = kafkarepo.NewCommandRepository(commandsWriter)

	// Initialize repositories
	ledgerRepo := postgresrepo.NewWalletRepo(db)
	campaignRepo := postgresrepo.NewCampaignRepository(db)
	kycRepo := postgresrepo.NewKYCRepository(db)
	userRepo := postgresrepo.NewUserRepository(db)
	balanceCache := redisrepo.NewWalletRepository(a.redis)
	locker := redisrepo.NewLockRepository(a.redis)

	// Initialize services
	engine := services.NewTransactionEngine(ledgerRepo, balanceCache, log)
	a.Wallets = services.NewWalletService(engine, ledgerRepo, balanceCache, userRepo, kycRepo, a.events, services.WalletConfig{
		Currency:               cfg.Ledger.Currency,
		DefaultHoldDays:        cfg.Ledger.DefaultHoldDays,
		MinimumWithdrawal:      cfg.Ledger.MinimumWithdrawal,
		MaximumDailyWithdrawal: cfg.Ledger.MaximumDailyWithdrawal,
	}, log.With("service", "wallet"))
	a.Finance = services.NewCampaignFinanceService(a.Wallets, ledgerRepo, campaignRepo, a.commands, a.events, services.FinanceConfig{
		DefaultHoldDays:  cfg.Ledger.DefaultHoldDays,
		LowBudgetPercent: cfg.Ledger.LowBudgetPercent,
	}, log.With("service", "campaign_finance"))
	a.Completion = services.NewCompletionService(campaignRepo, a.Wallets, a.Finance, a.commands, locker, a.events, services.CompletionConfig{
		Criteria: services.CompletionCriteria{
			BudgetThresholdPercent: cfg.Completion.BudgetThresholdPercent,
			InactivityDays:         cfg.Completion.InactivityDays,
			MinImpressionsLeft:     cfg.Completion.MinImpressionsLeft,
		},
		Concurrency: cfg.Worker.Concurrency,
		LockTTL:     cfg.Ledger.SettlementLockTTL,
	}, log.With("service", "completion"))
	a.Admin = services.NewAdminService(engine, a.Wallets, a.Finance, a.Completion, campaignRepo, ledgerRepo, a.events, log.With("service", "admin"))

	// Workers
	a.partitionManager = worker.NewPartitionManager(cfg.Kafka, cfg.Worker.ProcessingInterval, a.Finance, log.With("component", "lifecycle"))
	a.sweeper = worker.NewSweeper(a.Completion, a.Wallets, cfg.Worker.CompletionInterval, cfg.Worker.HoldReleaseInterval, log.With("component", "sweeper"))

	return a, nil
}

// Run consumes lifecycle events and runs the periodic sweeps until SIGINT
// or SIGTERM.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigChan:
			a.log.Infow("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.partitionManager.Start(ctx)
	})
	g.Go(func() error {
		return a.sweeper.Run(ctx)
	})
	return g.Wait()
}

// CheckCompletion runs one completion sweep over all active campaigns.
func (a *App) CheckCompletion(ctx context.Context) (*services.SweepReport, error) {
	return a.Completion.CheckAllCampaignsForCompletion(ctx)
}

// ReleaseHolds releases every earnings hold that has expired.
func (a *App) ReleaseHolds(ctx context.Context) (*services.HoldSweepReport, error) {
	return a.Wallets.ReleaseAllExpiredHolds(ctx)
}

func (a *App) Close() error {
	var errs []error
	if a.events != nil {
		errs = append(errs, a.events.Close())
	}
	if a.commands != nil {
		errs = append(errs, a.commands.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

// Migrate applies the ledger schema without starting anything else.
func Migrate(ctx context.Context, cfg *config.Config) error {
	db, err := database.NewPostgres(cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("database connection error: %w", err)
	}
	defer db.Close()
	return database.Migrate(ctx, db)
}
