package lease

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisLocker) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewRedisLocker(rdb)
}

func TestRedisLockerAcquireIsExclusive(t *testing.T) {
	mr, locker := newTestRedis(t)
	ctx := context.Background()

	ok, err := locker.Acquire(ctx, "purge", "node-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = locker.Acquire(ctx, "purge", "node-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// После истечения аренды ее может захватить другой экземпляр
	mr.FastForward(2 * time.Minute)
	ok, err = locker.Acquire(ctx, "purge", "node-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockerReleaseOnlyByOwner(t *testing.T) {
	mr, locker := newTestRedis(t)
	ctx := context.Background()

	_, err := locker.Acquire(ctx, "purge", "node-1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, locker.Release(ctx, "purge", "node-2", time.Time{}))
	assert.True(t, mr.Exists("lease:purge"))

	require.NoError(t, locker.Release(ctx, "purge", "node-1", time.Time{}))
	assert.False(t, mr.Exists("lease:purge"))
}

func TestRedisLockerReleaseKeepsMinimum(t *testing.T) {
	mr, locker := newTestRedis(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	locker.now = func() time.Time { return now }

	_, err := locker.Acquire(ctx, "purge", "node-1", time.Hour)
	require.NoError(t, err)

	require.NoError(t, locker.Release(ctx, "purge", "node-1", now.Add(30*time.Second)))

	assert.True(t, mr.Exists("lease:purge"))
	assert.Equal(t, 30*time.Second, mr.TTL("lease:purge"))
}
