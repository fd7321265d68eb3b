// Package cache provides the tenant-scoped result cache used to skip
// re-execution of agent nodes whose inputs have not changed. Cache
// operations never fail the caller: backend errors degrade to a miss
// (reads) or a warning log (writes).
package cache

import (
	"context"
	"time"
)

// Entry is one cached node result
type Entry struct {
	Output     any       `json:"output"`
	DurationMS int64     `json:"duration_ms"`
	CachedAt   time.Time `json:"cached_at"`
	TenantID   string    `json:"tenant_id"`
}

// Stats are global cache counters
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// TenantStats are per-tenant cache counters
type TenantStats struct {
	TenantID string `json:"tenant_id"`
	Entries  int    `json:"entries"`
	Hits     int64  `json:"hits"`
	Misses   int64  `json:"misses"`
}

// ResultCache stores agent node outputs keyed by (tenant, agent, version,
// inputs hash). Implementations must be safe for concurrent use and must
// enforce that a stored entry is only returned to its own tenant.
type ResultCache interface {
	// Get returns the cached entry for key, or ok=false on a miss
	Get(ctx context.Context, key Key) (Entry, bool)
	// Set stores an entry under key; failures are logged, never returned
	Set(ctx context.Context, key Key, entry Entry)
	// Has reports whether key is present without counting a hit or miss
	Has(ctx context.Context, key Key) bool
	// Invalidate removes a single entry
	Invalidate(ctx context.Context, key Key)
	// InvalidateTenant removes every entry belonging to a tenant and
	// returns how many were removed
	InvalidateTenant(ctx context.Context, tenantID string) int
	// Clear removes all entries
	Clear(ctx context.Context)
	// Stats returns global counters
	Stats(ctx context.Context) Stats
	// TenantStats returns counters scoped to one tenant
	TenantStats(ctx context.Context, tenantID string) TenantStats
}
