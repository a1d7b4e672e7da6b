package rank

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache holds a snapshot of the active tier list. Injected into the
// catalog so invalidation is an explicit call, not hidden module state.
type Cache interface {
	Get(ctx context.Context) ([]Tier, bool)
	Set(ctx context.Context, tiers []Tier)
	Invalidate(ctx context.Context)
}

const redisCacheKey = "rank:catalog"

// RedisCache backs the catalog cache with Redis so all API instances
// share one snapshot and one invalidation.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed tier cache.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context) ([]Tier, bool) {
	data, err := c.client.Get(ctx, redisCacheKey).Bytes()
	if err != nil {
		return nil, false
	}
	var tiers []Tier
	if err := json.Unmarshal(data, &tiers); err != nil {
		return nil, false
	}
	return tiers, true
}

func (c *RedisCache) Set(ctx context.Context, tiers []Tier) {
	data, err := json.Marshal(tiers)
	if err != nil {
		return
	}
	c.client.Set(ctx, redisCacheKey, data, c.ttl)
}

func (c *RedisCache) Invalidate(ctx context.Context) {
	c.client.Del(ctx, redisCacheKey)
}

// MemoryCache is a process-local TTL cache, used in tests and
// single-instance deployments.
type MemoryCache struct {
	mu        sync.Mutex
	tiers     []Tier
	expiresAt time.Time
	ttl       time.Duration
}

// NewMemoryCache creates an in-memory tier cache.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &MemoryCache{ttl: ttl}
}

func (c *MemoryCache) Get(ctx context.Context) ([]Tier, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tiers == nil || time.Now().After(c.expiresAt) {
		return nil, false
	}
	out := make([]Tier, len(c.tiers))
	copy(out, c.tiers)
	return out, true
}

func (c *MemoryCache) Set(ctx context.Context, tiers []Tier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tiers = make([]Tier, len(tiers))
	copy(c.tiers, tiers)
	c.expiresAt = time.Now().Add(c.ttl)
}

func (c *MemoryCache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tiers = nil
}
