package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_SlidingWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewInMemory()
	s.now = func() time.Time { return now }

	for i := range 3 {
		res, err := s.Allow(ctx, "sign:1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
		now = now.Add(10 * time.Second)
	}

	res, err := s.Allow(ctx, "sign:1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 30, res.RetryAfter)

	other, err := s.Allow(ctx, "sign:5.6.7.8", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are independent")

	// The first request leaves the window at +60s.
	now = now.Add(31 * time.Second)
	res, err = s.Allow(ctx, "sign:1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestInMemoryStore_Sweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewInMemory()
	s.now = func() time.Time { return now }

	_, err := s.Allow(ctx, "a", 1, time.Minute)
	require.NoError(t, err)
	_, err = s.Allow(ctx, "b", 1, time.Hour)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, s.Sweep())
	assert.Len(t, s.windows, 1)
}

func TestRedisStore_FixedWindow(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := NewRedisStore(client)

	for i := range 2 {
		res, err := s.Allow(ctx, "login:1.2.3.4", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 1-i, res.Remaining)
	}

	res, err := s.Allow(ctx, "login:1.2.3.4", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Positive(t, res.RetryAfter)
	assert.LessOrEqual(t, res.RetryAfter, 60)
	assert.Equal(t, time.Minute, mr.TTL(redisKeyPrefix+"login:1.2.3.4"))

	mr.FastForward(time.Minute + time.Second)
	res, err = s.Allow(ctx, "login:1.2.3.4", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, err := NewRedisStore(client).Allow(context.Background(), "k", 1, time.Minute)
	assert.Error(t, err)
}
