package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "openletter:ratelimit:"

// incrScript counts a request and starts the window on the first one. It
// returns the count and the window's remaining milliseconds.
var incrScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

// RedisStore is a fixed-window limiter shared by every replica.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	vals, err := incrScript.Run(ctx, s.client, []string{redisKeyPrefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if len(vals) != 2 {
		return nil, fmt.Errorf("rate limit %s: unexpected reply %v", key, vals)
	}

	count := int(vals[0])
	remainingWindow := time.Duration(vals[1]) * time.Millisecond
	if remainingWindow <= 0 {
		remainingWindow = window
	}
	resetAt := s.now().Add(remainingWindow)

	if count <= limit {
		return &Result{Allowed: true, Limit: limit, Remaining: limit - count, ResetAt: resetAt}, nil
	}
	return &Result{
		Allowed:    false,
		Limit:      limit,
		Remaining:  0,
		ResetAt:    resetAt,
		RetryAfter: retryAfterSeconds(remainingWindow),
	}, nil
}
