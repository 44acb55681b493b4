package cooldown

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces cooldown keys.
const DefaultRedisPrefix = "attendmark:cooldown:"

// Redis is a Governor shared by every replica pointed at the same Redis.
// Each admitted attempt is a SET NX with a millisecond TTL, so the window is
// armed atomically and expires on its own.
type Redis struct {
	client redis.Cmdable
	window time.Duration
	prefix string
}

// NewRedis creates a Redis-backed governor.
func NewRedis(client redis.Cmdable, window time.Duration) *Redis {
	return &Redis{client: client, window: window, prefix: DefaultRedisPrefix}
}

// Admit implements Governor.
func (r *Redis) Admit(ctx context.Context, key string) (bool, error) {
	if r.window <= 0 {
		return true, nil
	}
	ok, err := r.client.SetNX(ctx, r.prefix+key, 1, r.window).Result()
	if err != nil {
		return false, fmt.Errorf("cooldown admit: %w", err)
	}
	return ok, nil
}

// Release implements Governor.
func (r *Redis) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("cooldown release: %w", err)
	}
	return nil
}

var _ Governor = (*Redis)(nil)
