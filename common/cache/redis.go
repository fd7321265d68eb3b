package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/agentforge/engine/common/logger"
)

const redisKeyPrefix = "afcache:"

// RedisCache is the Redis-backed ResultCache backend. Entries are stored
// as JSON under "afcache:<tenant>:<agent>:<version>:<hash>". Hit and miss
// counters are kept in-process; they reset with the service.
type RedisCache struct {
	client *redis.Client
	log    *logger.Logger

	mu      sync.Mutex
	hits    int64
	misses  int64
	tenants map[string]*tenantCounters
}

// NewRedisCache creates a ResultCache backed by the given Redis client
func NewRedisCache(client *redis.Client, log *logger.Logger) *RedisCache {
	return &RedisCache{
		client:  client,
		log:     log,
		tenants: make(map[string]*tenantCounters),
	}
}

func (c *RedisCache) redisKey(key Key) string {
	return redisKeyPrefix + key.String()
}

func (c *RedisCache) record(tenantID string, hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tc, ok := c.tenants[tenantID]
	if !ok {
		tc = &tenantCounters{}
		c.tenants[tenantID] = tc
	}
	if hit {
		c.hits++
		tc.hits++
	} else {
		c.misses++
		tc.misses++
	}
}

func (c *RedisCache) Get(ctx context.Context, key Key) (Entry, bool) {
	data, err := c.client.Get(ctx, c.redisKey(key)).Bytes()
	if err == redis.Nil {
		c.record(key.TenantID, false)
		return Entry{}, false
	}
	if err != nil {
		c.log.Warn("cache get failed, treating as miss", "key", key.String(), "error", err)
		c.record(key.TenantID, false)
		return Entry{}, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.log.Warn("cache entry corrupt, treating as miss", "key", key.String(), "error", err)
		c.record(key.TenantID, false)
		return Entry{}, false
	}
	if entry.TenantID != key.TenantID {
		c.record(key.TenantID, false)
		return Entry{}, false
	}

	c.record(key.TenantID, true)
	return entry, true
}

func (c *RedisCache) Set(ctx context.Context, key Key, entry Entry) {
	entry.TenantID = key.TenantID

	data, err := json.Marshal(entry)
	if err != nil {
		c.log.Warn("cache entry not serializable, skipping write", "key", key.String(), "error", err)
		return
	}
	if err := c.client.Set(ctx, c.redisKey(key), data, 0).Err(); err != nil {
		c.log.Warn("cache write failed", "key", key.String(), "error", err)
	}
}

func (c *RedisCache) Has(ctx context.Context, key Key) bool {
	n, err := c.client.Exists(ctx, c.redisKey(key)).Result()
	if err != nil {
		c.log.Warn("cache exists check failed", "key", key.String(), "error", err)
		return false
	}
	return n > 0
}

func (c *RedisCache) Invalidate(ctx context.Context, key Key) {
	if err := c.client.Del(ctx, c.redisKey(key)).Err(); err != nil {
		c.log.Warn("cache invalidate failed", "key", key.String(), "error", err)
	}
}

func (c *RedisCache) InvalidateTenant(ctx context.Context, tenantID string) int {
	pattern := fmt.Sprintf("%s%s:*", redisKeyPrefix, tenantID)
	removed := 0

	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.log.Warn("cache invalidate failed", "key", iter.Val(), "error", err)
			continue
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		c.log.Warn("cache tenant scan failed", "tenant_id", tenantID, "error", err)
	}
	return removed
}

func (c *RedisCache) Clear(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.log.Warn("cache clear failed", "key", iter.Val(), "error", err)
		}
	}
	if err := iter.Err(); err != nil {
		c.log.Warn("cache clear scan failed", "error", err)
	}
}

func (c *RedisCache) Stats(ctx context.Context) Stats {
	entries := c.countKeys(ctx, redisKeyPrefix+"*")

	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Entries: entries, Hits: c.hits, Misses: c.misses}
}

func (c *RedisCache) TenantStats(ctx context.Context, tenantID string) TenantStats {
	entries := c.countKeys(ctx, fmt.Sprintf("%s%s:*", redisKeyPrefix, tenantID))

	c.mu.Lock()
	defer c.mu.Unlock()

	stats := TenantStats{TenantID: tenantID, Entries: entries}
	if tc, ok := c.tenants[tenantID]; ok {
		stats.Hits = tc.hits
		stats.Misses = tc.misses
	}
	return stats
}

func (c *RedisCache) countKeys(ctx context.Context, pattern string) int {
	count := 0
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		c.log.Warn("cache key scan failed", "pattern", pattern, "error", err)
	}
	return count
}
