package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *PermissionCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewPermissionCache(client, time.Minute)
}

func TestPermissionCacheRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	userID := uuid.New()

	_, ok, err := cache.Get(ctx, userID)
	require.NoError(t, err)
	require.False(t, ok)

	perms := []string{"customers:read", "deals:write"}
	require.NoError(t, cache.Set(ctx, userID, perms))

	got, ok, err := cache.Get(ctx, userID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, perms, got)
}

func TestPermissionCacheBumpInvalidatesEverything(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	first := uuid.New()
	second := uuid.New()

	require.NoError(t, cache.Set(ctx, first, []string{"items:read"}))
	require.NoError(t, cache.Set(ctx, second, []string{"deals:read"}))

	require.NoError(t, cache.Bump(ctx))

	_, ok, err := cache.Get(ctx, first)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = cache.Get(ctx, second)
	require.NoError(t, err)
	require.False(t, ok)

	// New generation accepts fresh entries.
	require.NoError(t, cache.Set(ctx, first, []string{"items:read"}))
	got, ok, err := cache.Get(ctx, first)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"items:read"}, got)
}
