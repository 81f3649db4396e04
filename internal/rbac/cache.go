package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const cacheGenerationKey = "rbac:gen"

// PermissionCache caches effective permission sets in Redis. Keys embed a
// generation counter bumped on every role, binding, or permission mutation,
// so one INCR invalidates every cached set at once.
type PermissionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPermissionCache builds a cache. ttl bounds staleness when a bump is lost
// (for example a Redis failover between mutation and invalidation).
func NewPermissionCache(client *redis.Client, ttl time.Duration) *PermissionCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PermissionCache{client: client, ttl: ttl}
}

// Get returns the cached set for the user, if present under the current
// generation.
func (c *PermissionCache) Get(ctx context.Context, userID uuid.UUID) ([]string, bool, error) {
	key, err := c.key(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var perms []string
	if err := json.Unmarshal(raw, &perms); err != nil {
		return nil, false, err
	}
	return perms, true, nil
}

// Set caches the set for the user under the current generation.
func (c *PermissionCache) Set(ctx context.Context, userID uuid.UUID, permissions []string) error {
	key, err := c.key(ctx, userID)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(permissions)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Bump advances the generation, orphaning every cached set. Orphaned keys
// expire via TTL.
func (c *PermissionCache) Bump(ctx context.Context) error {
	return c.client.Incr(ctx, cacheGenerationKey).Err()
}

func (c *PermissionCache) key(ctx context.Context, userID uuid.UUID) (string, error) {
	gen, err := c.client.Get(ctx, cacheGenerationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("rbac:perms:%d:%s", gen, userID), nil
}
