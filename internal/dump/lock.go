package dump

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another process holds the ingestion lock.
var ErrLockHeld = errors.New("ingestion lock held by another instance")

// Locker guards ingestion runs across replicas.
type Locker interface {
	// Acquire takes the lock for ttl. The returned release func frees it if
	// still held by this caller.
	Acquire(ctx context.Context, ttl time.Duration) (release func(context.Context) error, err error)
}

// LockKey is the Redis key for the ingestion lock.
const LockKey = "openletter:dump:lock"

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a single-instance Redis lock built on SET NX PX.
type RedisLock struct {
	client redis.UniversalClient
	key    string
}

func NewRedisLock(client redis.UniversalClient, key string) *RedisLock {
	if key == "" {
		key = LockKey
	}
	return &RedisLock{client: client, key: key}
}

func (l *RedisLock) Acquire(ctx context.Context, ttl time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire ingestion lock: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
			return fmt.Errorf("release ingestion lock: %w", err)
		}
		return nil
	}, nil
}

// localLock is used when Redis is not configured; the in-process running
// flag already serialises runs.
type localLock struct{}

func (localLock) Acquire(context.Context, time.Duration) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}
