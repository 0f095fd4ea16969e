package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/Game-Triggers/prototype-sub000/internal/app"
	"github.com/Game-Triggers/prototype-sub000/internal/config"
	"github.com/Game-Triggers/prototype-sub000/pkg/logger"

	"github.com/urfave/cli/v2"
)

func main() {
	cliApp := &cli.App{
		Name:  "ledger",
		Usage: "Wallet ledger and campaign settlement service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "postgres-url", Aliases: []string{"d"}, Usage: "Postgres connection URL"},
			&cli.StringFlag{Name: "redis-addr", Aliases: []string{"r"}, Usage: "Redis address"},
			&cli.StringFlag{Name: "kafka-brokers", Aliases: []string{"k"}, Usage: "Comma separated Kafka brokers"},
			&cli.IntFlag{Name: "partitions", Aliases: []string{"p"}, Usage: "Partitions of the lifecycle topic"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Consume campaign lifecycle events and run the periodic sweeps",
				Action: func(c *cli.Context) error {
					return withApp(c, func(a *app.App) error {
						return a.Run()
					})
				},
			},
			{
				Name:  "migrate",
				Usage: "Apply the database schema",
				Action: func(c *cli.Context) error {
					cfg, _, err := setup(c)
					if err != nil {
						return err
					}
					return app.Migrate(c.Context, cfg)
				},
			},
			{
				Name:  "check-completion",
				Usage: "Run one completion sweep over active campaigns",
				Action: func(c *cli.Context) error {
					return withApp(c, func(a *app.App) error {
						report, err := a.CheckCompletion(c.Context)
						if err != nil {
							return err
						}
						return printJSON(report)
					})
				},
			},
			{
				Name:  "release-holds",
				Usage: "Release every expired earnings hold",
				Action: func(c *cli.Context) error {
					return withApp(c, func(a *app.App) error {
						report, err := a.ReleaseHolds(c.Context)
						if err != nil {
							return err
						}
						return printJSON(report)
					})
				},
			},
			{
				Name:  "balance",
				Usage: "Print a user's wallet balance",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Required: true},
				},
				Action: func(c *cli.Context) error {
					return withApp(c, func(a *app.App) error {
						balance, err := a.Wallets.GetBalance(c.Context, c.String("user"))
						if err != nil {
							return err
						}
						return printJSON(balance)
					})
				},
			},
			{
				Name:  "force-complete",
				Usage: "Complete and settle a campaign regardless of its completion criteria",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "campaign", Aliases: []string{"c"}, Required: true},
					&cli.StringFlag{Name: "admin", Aliases: []string{"a"}, Required: true},
					&cli.StringFlag{Name: "reason", Value: "manual completion"},
				},
				Action: func(c *cli.Context) error {
					return withApp(c, func(a *app.App) error {
						result, err := a.Admin.ForceCompleteCampaign(c.Context, c.String("campaign"), c.String("admin"), c.String("reason"))
						if err != nil {
							return err
						}
						return printJSON(result)
					})
				},
			},
		},
	}

	if err := cliApp.RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

// setup loads configuration from the environment, applies flag overrides
// and builds the logger.
func setup(c *cli.Context) (*config.Config, *logger.Logger, error) {
	cfg := config.Load()

	// Override with flags if set
	if c.IsSet("postgres-url") {
		cfg.Postgres.URL = c.String("postgres-url")
	}
	if c.IsSet("redis-addr") {
		cfg.Redis.Addr = c.String("redis-addr")
	}
	if c.IsSet("kafka-brokers") {
		cfg.Kafka.Brokers = strings.Split(c.String("kafka-brokers"), ",")
	}
	if c.IsSet("partitions") {
		cfg.Kafka.Partitions = c.Int("partitions")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

func withApp(c *cli.Context, fn func(a *app.App) error) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	a, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("error creating an application instance: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Errorw("failed to close application", "error", err)
		}
	}()

	return fn(a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
