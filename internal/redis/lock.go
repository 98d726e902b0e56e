package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("queue lock not acquired")
)

// Locker guards critical sections per queue partition. Only one caller at
// a time may assign or compact queue numbers within a partition.
type Locker interface {
	WithPartitionLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

type redisPartitionLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPartitionLocker creates a locker that uses a per partition Redis key
func NewRedisPartitionLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisPartitionLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisPartitionLocker) WithPartitionLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lockKey := fmt.Sprintf("lock:queue:%s", key)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire queue lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, lockKey, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisPartitionLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release queue lock: %w", err)
	}
	return nil
}
