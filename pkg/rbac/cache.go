package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// PermissionCache is a read-through cache of resolved permission sets. A miss
// is never an error; resolution falls back to storage. Entries are
// invalidated whenever a user's role memberships change.
type PermissionCache interface {
	// Get returns the cached permission set and whether it was present.
	Get(ctx context.Context, userID string) ([]string, bool)

	// Set stores the permission set for a user.
	Set(ctx context.Context, userID string, permissions []string)

	// Invalidate drops the cached set for a user.
	Invalidate(ctx context.Context, userID string) error

	// Close releases cache resources.
	Close() error
}

const redisKeyPrefix = "gatehouse:permissions:"

// RedisCache caches permission sets in Redis so invalidation takes effect
// across replicas.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to Redis and returns a permission cache.
func NewRedisCache(addr, password string, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

// Client exposes the underlying Redis client for health checks.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// Get returns the cached permission set for a user.
func (c *RedisCache) Get(ctx context.Context, userID string) ([]string, bool) {
	data, err := c.client.Get(ctx, redisKeyPrefix+userID).Result()
	if err != nil {
		return nil, false
	}
	var permissions []string
	if err := json.Unmarshal([]byte(data), &permissions); err != nil {
		return nil, false
	}
	return permissions, true
}

// Set stores the permission set for a user. Failures are ignored; the cache
// is best effort.
func (c *RedisCache) Set(ctx context.Context, userID string, permissions []string) {
	data, err := json.Marshal(permissions)
	if err != nil {
		return
	}
	c.client.Set(ctx, redisKeyPrefix+userID, data, c.ttl)
}

// Invalidate drops the cached set for a user.
func (c *RedisCache) Invalidate(ctx context.Context, userID string) error {
	return c.client.Del(ctx, redisKeyPrefix+userID).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ PermissionCache = (*RedisCache)(nil)

// LRUCache is an in-process expiring cache used when no Redis backend is
// configured. Invalidation is local to the process, so it only suits
// single-replica deployments.
type LRUCache struct {
	lru *expirable.LRU[string, []string]
}

// NewLRUCache creates an in-process permission cache with the given capacity
// and entry TTL.
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	return &LRUCache{
		lru: expirable.NewLRU[string, []string](size, nil, ttl),
	}
}

// Get returns the cached permission set for a user.
func (c *LRUCache) Get(ctx context.Context, userID string) ([]string, bool) {
	return c.lru.Get(userID)
}

// Set stores the permission set for a user.
func (c *LRUCache) Set(ctx context.Context, userID string, permissions []string) {
	c.lru.Add(userID, permissions)
}

// Invalidate drops the cached set for a user.
func (c *LRUCache) Invalidate(ctx context.Context, userID string) error {
	c.lru.Remove(userID)
	return nil
}

// Close is a no-op for the in-process cache.
func (c *LRUCache) Close() error {
	return nil
}

var _ PermissionCache = (*LRUCache)(nil)
