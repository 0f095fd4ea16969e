package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/models"
	"github.com/Game-Triggers/prototype-sub000/internal/ports"

	"github.com/go-redis/redis/v8"
)

const (
	expiration = 5 * time.Minute
)

var (
	ErrBalanceNotFound = fmt.Errorf("balance not found in cache: %w", models.ErrNotFound)
)

type WalletRepository struct {
	client *redis.Client
	prefix string
}

var _ ports.BalanceCache = (*WalletRepository)(nil)

func NewWalletRepository(client *redis.Client) *WalletRepository {
	return &WalletRepository{
		client: client,
		prefix: "wallet:",
	}
}

// SetBalance stores the snapshot unless the cache already holds a newer version.
func (r *WalletRepository) SetBalance(ctx context.Context, balance models.WalletBalance) error {
	key := r.getBalanceKey(balance.UserID)

	current, err := r.GetBalance(ctx, balance.UserID)
	if err == nil && current.Version > balance.Version {
		return nil
	}
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return err
	}

	payload, err := json.Marshal(balance)
	if err != nil {
		return fmt.Errorf("failed to marshal balance: %w", err)
	}

	if err := r.client.Set(ctx, key, payload, expiration).Err(); err != nil {
		return fmt.Errorf("failed to set balance in redis: %w", err)
	}

	return nil
}

func (r *WalletRepository) GetBalance(ctx context.Context, userID string) (*models.WalletBalance, error) {
	key := r.getBalanceKey(userID)

	payload, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrBalanceNotFound
		}
		return nil, fmt.Errorf("failed to get balance from redis: %w", err)
	}

	var balance models.WalletBalance
	if err := json.Unmarshal(payload, &balance); err != nil {
		return nil, fmt.Errorf("failed to parse balance from redis: %w", err)
	}

	return &balance, nil
}

func (r *WalletRepository) DeleteBalance(ctx context.Context, userID string) error {
	key := r.getBalanceKey(userID)

	err := r.client.Del(ctx, key).Err()
	if err != nil {
		return fmt.Errorf("failed to delete balance from redis: %w", err)
	}

	return nil
}

func (r *WalletRepository) getBalanceKey(userID string) string {
	return r.prefix + userID + ":balance"
}
