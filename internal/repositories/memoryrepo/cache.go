package memoryrepo

import (
	"context"
	"sync"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/models"
	"github.com/Game-Triggers/prototype-sub000/internal/ports"
)

type BalanceCache struct {
	mu       sync.Mutex
	balances map[string]models.WalletBalance
}

var _ ports.BalanceCache = (*BalanceCache)(nil)

func NewBalanceCache() *BalanceCache {
	return &BalanceCache{balances: map[string]models.WalletBalance{}}
}

// SetBalance keeps the newer snapshot when versions disagree.
func (c *BalanceCache) SetBalance(_ context.Context, balance models.WalletBalance) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.balances[balance.UserID]; ok && cur.Version > balance.Version {
		return nil
	}
	c.balances[balance.UserID] = balance
	return nil
}

func (c *BalanceCache) GetBalance(_ context.Context, userID string) (*models.WalletBalance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.balances[userID]
	if !ok {
		return nil, models.NotFound("balance not cached for user %s", userID)
	}
	return &b, nil
}

func (c *BalanceCache) DeleteBalance(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.balances, userID)
	return nil
}

// Locker is a process-local ports.Locker. Expiry uses the injected clock.
type Locker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	nowFn func() time.Time
}

var _ ports.Locker = (*Locker)(nil)

func NewLocker(nowFn func() time.Time) *Locker {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Locker{held: map[string]time.Time{}, nowFn: nowFn}
}

func (l *Locker) Acquire(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return nil, false, nil
	}
	expiresAt := now.Add(ttl)
	l.held[key] = expiresAt

	unlock := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key].Equal(expiresAt) {
			delete(l.held, key)
		}
		return nil
	}
	return unlock, true, nil
}
