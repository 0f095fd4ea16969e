package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Development bool
	Postgres    PostgresConfig
	Kafka       KafkaConfig
	Redis       RedisConfig
	Worker      WorkerConfig
	Ledger      LedgerConfig
	Completion  CompletionConfig
}

type PostgresConfig struct {
	URL string
}

type KafkaConfig struct {
	Brokers []string
	// Domain events produced by the ledger
	EventsTopic string
	// Campaign lifecycle events consumed by the worker
	LifecycleTopic string
	// Key release and auto top-up commands for other services
	CommandsTopic string
	Partitions     int
	// Sarama-specific
	Version       string
	ConsumerGroup string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

type WorkerConfig struct {
	ProcessingInterval  time.Duration
	CompletionInterval  time.Duration
	HoldReleaseInterval time.Duration
	Concurrency         int
}

type LedgerConfig struct {
	Currency               string
	DefaultHoldDays        int
	MinimumWithdrawal      decimal.Decimal
	MaximumDailyWithdrawal decimal.Decimal
	LowBudgetPercent       decimal.Decimal
	SettlementLockTTL      time.Duration
}

type CompletionConfig struct {
	BudgetThresholdPercent decimal.Decimal
	InactivityDays         int
	MinImpressionsLeft     int64
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present. Callers apply their own
// overrides and then call Validate.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Development: getEnvAsBool("DEVELOPMENT", false),
		Postgres: PostgresConfig{
			URL: getEnv("POSTGRES_URL", ""),
		},
		Kafka: KafkaConfig{
			Brokers:        splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			EventsTopic:    getEnv("KAFKA_EVENTS_TOPIC", "ledger.events"),
			LifecycleTopic: getEnv("KAFKA_LIFECYCLE_TOPIC", "campaign.lifecycle"),
			CommandsTopic:  getEnv("KAFKA_COMMANDS_TOPIC", "ledger.commands"),
			Partitions:     getEnvAsInt("KAFKA_PARTITIONS", 1),
			Version:        getEnv("KAFKA_VERSION", ""),
			ConsumerGroup:  getEnv("KAFKA_CONSUMER_GROUP", "ledger-worker"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 10),
		},
		Worker: WorkerConfig{
			ProcessingInterval:  getEnvAsDuration("WORKER_PROCESSING_INTERVAL", 2*time.Second),
			CompletionInterval:  getEnvAsDuration("WORKER_COMPLETION_INTERVAL", 5*time.Minute),
			HoldReleaseInterval: getEnvAsDuration("WORKER_HOLD_RELEASE_INTERVAL", 15*time.Minute),
			Concurrency:         getEnvAsInt("WORKER_CONCURRENCY", 8),
		},
		Ledger: LedgerConfig{
			Currency:               getEnv("LEDGER_CURRENCY", "USD"),
			DefaultHoldDays:        getEnvAsInt("LEDGER_DEFAULT_HOLD_DAYS", 3),
			MinimumWithdrawal:      getEnvAsDecimal("LEDGER_MINIMUM_WITHDRAWAL", decimal.NewFromInt(10)),
			MaximumDailyWithdrawal: getEnvAsDecimal("LEDGER_MAXIMUM_DAILY_WITHDRAWAL", decimal.NewFromInt(1000)),
			LowBudgetPercent:       getEnvAsDecimal("LEDGER_LOW_BUDGET_PERCENT", decimal.NewFromInt(10)),
			SettlementLockTTL:      getEnvAsDuration("LEDGER_SETTLEMENT_LOCK_TTL", 2*time.Minute),
		},
		Completion: CompletionConfig{
			BudgetThresholdPercent: getEnvAsDecimal("COMPLETION_BUDGET_THRESHOLD_PERCENT", decimal.NewFromInt(95)),
			InactivityDays:         getEnvAsInt("COMPLETION_INACTIVITY_DAYS", 7),
			MinImpressionsLeft:     int64(getEnvAsInt("COMPLETION_MIN_IMPRESSIONS_LEFT", 100)),
		},
	}

	return cfg
}

// Validate checks that all required configuration fields are properly set
func (c *Config) Validate() error {
	if c.Postgres.URL == "" {
		return fmt.Errorf("POSTGRES_URL is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.Kafka.Partitions <= 0 {
		return fmt.Errorf("KAFKA_PARTITIONS must be positive")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}
	if c.Ledger.DefaultHoldDays < 0 {
		return fmt.Errorf("LEDGER_DEFAULT_HOLD_DAYS must not be negative")
	}
	if c.Ledger.MaximumDailyWithdrawal.LessThan(c.Ledger.MinimumWithdrawal) {
		return fmt.Errorf("LEDGER_MAXIMUM_DAILY_WITHDRAWAL is below LEDGER_MINIMUM_WITHDRAWAL")
	}
	return nil
}

func (k *KafkaConfig) GetSaramaConfig() *sarama.Config {
	config := sarama.NewConfig()

	if k.Version != "" {
		version, err := sarama.ParseKafkaVersion(k.Version)
		if err == nil {
			config.Version = version
		}
	}

	// Consumer settings
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.AutoCommit.Enable = true
	config.Consumer.Offsets.AutoCommit.Interval = 2 * time.Minute
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	// Settings for batch processing
	config.Consumer.Fetch.Min = 1
	config.Consumer.Fetch.Default = 1024 * 1024 // 1MB
	config.Consumer.MaxWaitTime = 100 * time.Millisecond

	config.Net.MaxOpenRequests = 5
	config.Net.DialTimeout = 30 * time.Second
	config.Net.ReadTimeout = 30 * time.Second
	config.Net.WriteTimeout = 30 * time.Second

	return config
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvAsDuration(name string, defaultValue time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(name)
	if !exists {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

func getEnvAsDecimal(name string, defaultValue decimal.Decimal) decimal.Decimal {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := decimal.NewFromString(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
