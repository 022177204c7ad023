package access

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"custodia/pkg/platform/sentinel"
)

func TestCacheMissOnUnknownPair(t *testing.T) {
	cache := NewInMemoryCache(time.Minute)
	_, err := cache.Find(context.Background(), 1, "alice")
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestCacheStoresBothDecisions(t *testing.T) {
	cache := NewInMemoryCache(time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Save(ctx, 1, "alice", true))
	require.NoError(t, cache.Save(ctx, 1, "mallory", false))

	allowed, err := cache.Find(ctx, 1, "alice")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = cache.Find(ctx, 1, "mallory")
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestCacheEntriesExpire(t *testing.T) {
	cache := NewInMemoryCache(10 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, cache.Save(ctx, 1, "alice", true))
	time.Sleep(20 * time.Millisecond)

	_, err := cache.Find(ctx, 1, "alice")
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestCacheEvictsExpiredEntriesOnRead(t *testing.T) {
	cache := NewInMemoryCache(10 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, cache.Save(ctx, 1, "alice", true))
	time.Sleep(20 * time.Millisecond)

	_, err := cache.Find(ctx, 1, "alice")
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	cache.mu.Lock()
	defer cache.mu.Unlock()
	require.Empty(t, cache.decisions)
}

func TestInvalidateDropsAllPrincipalsForEvidence(t *testing.T) {
	cache := NewInMemoryCache(time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Save(ctx, 1, "alice", true))
	require.NoError(t, cache.Save(ctx, 1, "bob", false))
	require.NoError(t, cache.Save(ctx, 2, "alice", true))

	require.NoError(t, cache.Invalidate(ctx, 1))

	_, err := cache.Find(ctx, 1, "alice")
	require.ErrorIs(t, err, sentinel.ErrNotFound)
	_, err = cache.Find(ctx, 1, "bob")
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	// Other evidence untouched.
	allowed, err := cache.Find(ctx, 2, "alice")
	require.NoError(t, err)
	require.True(t, allowed)
}
