package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestLockAcquireAndRelease(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	lock := NewRedisDistributedLock(client, "scheduler:reoptimize-lock")

	acquired, err := lock.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.True(t, lock.IsHeld())

	require.NoError(t, lock.Unlock(ctx))
	assert.False(t, lock.IsHeld())
}

func TestLockExcludesSecondHolder(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	first := NewRedisDistributedLock(client, "scheduler:retention-lock")
	second := NewRedisDistributedLock(client, "scheduler:retention-lock")

	acquired, err := first.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, acquired, "held lock must not be acquired by another instance")

	require.NoError(t, first.Unlock(ctx))

	acquired, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired, "released lock should be acquirable")
	require.NoError(t, second.Unlock(ctx))
}

func TestLockExpiresWithTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	first := NewRedisDistributedLock(client, "scheduler:reoptimize-lock")
	second := NewRedisDistributedLock(client, "scheduler:reoptimize-lock")

	acquired, err := first.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	// A crashed holder never unlocks; the TTL reclaims the key.
	mr.FastForward(lockTTL + time.Second)

	acquired, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired, "lock should be free after the TTL elapsed")
	require.NoError(t, second.Unlock(ctx))
}

func TestLockNilClientSingleInstanceMode(t *testing.T) {
	lock := NewRedisDistributedLock(nil, "scheduler:reoptimize-lock")
	ctx := context.Background()

	acquired, err := lock.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.True(t, lock.IsHeld())

	require.NoError(t, lock.Unlock(ctx))
	assert.False(t, lock.IsHeld())
}

func TestLockReleaseIsOwnershipChecked(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	first := NewRedisDistributedLock(client, "scheduler:retention-lock")
	second := NewRedisDistributedLock(client, "scheduler:retention-lock")

	acquired, err := first.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	// An instance that never acquired the lock cannot release it.
	require.NoError(t, second.Unlock(ctx))
	acquired, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, acquired)

	require.NoError(t, first.Unlock(ctx))
}
