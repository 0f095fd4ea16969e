package ports

import (
	"context"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/models"
)

// BalanceCache holds wallet snapshots keyed by user id.
type BalanceCache interface {
	SetBalance(ctx context.Context, balance models.WalletBalance) error
	// GetBalance returns an error wrapping models.ErrNotFound on a miss.
	GetBalance(ctx context.Context, userID string) (*models.WalletBalance, error)
	DeleteBalance(ctx context.Context, userID string) error
}

// Locker hands out short-lived exclusive locks across processes.
type Locker interface {
	// Acquire returns acquired=false without error when someone else holds key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, acquired bool, err error)
}
