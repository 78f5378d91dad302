package ratelimiter

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisWindow(t *testing.T, budget int) (*RedisWindow, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewRedisWindow(rdb, "gemini", budget, time.Minute), mr
}

func TestNewRedisWindow_NilClient(t *testing.T) {
	assert.Nil(t, NewRedisWindow(nil, "k", 1, time.Second))
}

func TestRedisWindow_BudgetThenDeny(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestRedisWindow(t, 3)

	for i := 0; i < 3; i++ {
		ok, wait := l.TryAcquire(ctx)
		require.True(t, ok, "call %d", i)
		assert.Zero(t, wait)
	}
	ok, wait := l.TryAcquire(ctx)
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))

	st := l.Status(ctx)
	assert.Equal(t, 0, st.Remaining)

	mr.FastForward(time.Minute + time.Second)
	ok, _ = l.TryAcquire(ctx)
	assert.True(t, ok)
	assert.Equal(t, 2, l.Status(ctx).Remaining)
}

func TestRedisWindow_StatusEmpty(t *testing.T) {
	l, _ := newTestRedisWindow(t, 5)
	st := l.Status(context.Background())
	assert.Equal(t, Status{Budget: 5, Remaining: 5, ResetIn: time.Minute}, st)
}

func TestRedisWindow_FailsOpen(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	l := NewRedisWindow(rdb, "gemini", 1, time.Minute)
	mr.Close()

	ok, wait := l.TryAcquire(context.Background())
	assert.True(t, ok)
	assert.Zero(t, wait)
}
