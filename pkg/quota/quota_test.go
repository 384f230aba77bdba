package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCounter(t *testing.T) (*RedisCounter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisCounter(rdb), mr
}

func TestRedisCounterIncrementsBothPeriods(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCounter(t)
	c.now = func() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC) }

	for i := 0; i < 3; i++ {
		_, err := c.Add(ctx, "alice", 1)
		require.NoError(t, err)
	}
	u, err := c.Usage(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, Usage{Daily: 3, Monthly: 3}, u)

	assert.True(t, mr.Exists("podds:quota:alice:d:20250314"))
	assert.True(t, mr.Exists("podds:quota:alice:m:202503"))
	assert.Greater(t, mr.TTL("podds:quota:alice:d:20250314"), time.Duration(0))

	// next day keeps the monthly total
	c.now = func() time.Time { return time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC) }
	u, err = c.Add(ctx, "alice", 1)
	require.NoError(t, err)
	assert.Equal(t, Usage{Daily: 1, Monthly: 4}, u)
}

func TestRedisCounterConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	c, _ := newRedisCounter(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Add(ctx, "bob", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	u, err := c.Usage(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(20), u.Daily)
	assert.Equal(t, int64(20), u.Monthly)
}

func TestGuardRefusesAboveDailyLimit(t *testing.T) {
	ctx := context.Background()
	g := NewGuard(NewMemoryCounter(), "carol", Limits{Daily: 2})

	require.NoError(t, g.Acquire(ctx))
	require.NoError(t, g.Acquire(ctx))
	err := g.Acquire(ctx)
	assert.True(t, errors.Is(err, ErrExceeded))

	u, err := g.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), u.Daily)
}

func TestGuardUnlimited(t *testing.T) {
	ctx := context.Background()
	c, _ := newRedisCounter(t)
	g := NewGuard(c, "dave", Limits{})
	for i := 0; i < 50; i++ {
		require.NoError(t, g.Acquire(ctx))
	}
}
