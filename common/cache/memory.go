package cache

import (
	"context"
	"strings"
	"sync"

	"github.com/agentforge/engine/common/logger"
)

type tenantCounters struct {
	hits   int64
	misses int64
}

// MemoryCache is the in-process ResultCache backend
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	hits    int64
	misses  int64
	tenants map[string]*tenantCounters
	log     *logger.Logger
}

// NewMemoryCache creates an empty in-memory result cache
func NewMemoryCache(log *logger.Logger) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]Entry),
		tenants: make(map[string]*tenantCounters),
		log:     log,
	}
}

func (c *MemoryCache) tenant(tenantID string) *tenantCounters {
	tc, ok := c.tenants[tenantID]
	if !ok {
		tc = &tenantCounters{}
		c.tenants[tenantID] = tc
	}
	return tc
}

func (c *MemoryCache) Get(ctx context.Context, key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key.String()]
	// an entry stored under another tenant is never served
	if ok && entry.TenantID != key.TenantID {
		ok = false
	}

	tc := c.tenant(key.TenantID)
	if ok {
		c.hits++
		tc.hits++
		return entry, true
	}
	c.misses++
	tc.misses++
	return Entry{}, false
}

func (c *MemoryCache) Set(ctx context.Context, key Key, entry Entry) {
	entry.TenantID = key.TenantID

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key.String()] = entry
}

func (c *MemoryCache) Has(ctx context.Context, key Key) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key.String()]
	return ok && entry.TenantID == key.TenantID
}

func (c *MemoryCache) Invalidate(ctx context.Context, key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key.String())
}

func (c *MemoryCache) InvalidateTenant(ctx context.Context, tenantID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	prefix := tenantID + ":"
	for k, entry := range c.entries {
		if entry.TenantID == tenantID || strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *MemoryCache) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry)
}

func (c *MemoryCache) Stats(ctx context.Context) Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Stats{
		Entries: len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
	}
}

func (c *MemoryCache) TenantStats(ctx context.Context, tenantID string) TenantStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := 0
	for _, entry := range c.entries {
		if entry.TenantID == tenantID {
			entries++
		}
	}

	stats := TenantStats{TenantID: tenantID, Entries: entries}
	if tc, ok := c.tenants[tenantID]; ok {
		stats.Hits = tc.hits
		stats.Misses = tc.misses
	}
	return stats
}
