package redisrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/Game-Triggers/prototype-sub000/internal/ports"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Deletes the key only when it still carries our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type LockRepository struct {
	client *redis.Client
	prefix string
}

var _ ports.Locker = (*LockRepository)(nil)

func NewLockRepository(client *redis.Client) *LockRepository {
	return &LockRepository{
		client: client,
		prefix: "lock:",
	}
}

func (r *LockRepository) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	fullKey := r.prefix + key
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	unlock := func(ctx context.Context) error {
		if err := unlockScript.Run(ctx, r.client, []string{fullKey}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("failed to release lock %s: %w", key, err)
		}
		return nil
	}
	return unlock, true, nil
}
