package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/agentmux/agentmux/internal/observability"
)

// ResponseCache is the two-tier response store. Reads check the local tier
// first; a shared-tier hit backfills the local tier with the (shorter)
// local TTL before returning. Writes go to both tiers. All operations are
// best-effort: tier failures are logged and degrade to a miss or no-op.
type ResponseCache struct {
	local      *MemoryTier
	shared     Tier // nil when the shared tier is disabled
	serializer Serializer
	config     ResponseCacheConfig
	logger     *observability.Logger

	localHits  atomic.Int64
	sharedHits atomic.Int64
	misses     atomic.Int64
	failures   atomic.Int64
	backfills  atomic.Int64
}

// ResponseCacheConfig holds configuration for the response cache.
type ResponseCacheConfig struct {
	LocalTTL  time.Duration // TTL for the local tier (default: 5 minutes)
	SharedTTL time.Duration // TTL for the shared tier (default: 1 hour)
}

// DefaultResponseCacheConfig returns sensible defaults.
func DefaultResponseCacheConfig() ResponseCacheConfig {
	return ResponseCacheConfig{
		LocalTTL:  5 * time.Minute,
		SharedTTL: time.Hour,
	}
}

// NewResponseCache creates a response cache. shared may be nil.
func NewResponseCache(local *MemoryTier, shared Tier, serializer Serializer, cfg ResponseCacheConfig, logger *observability.Logger) *ResponseCache {
	if cfg.LocalTTL <= 0 {
		cfg.LocalTTL = 5 * time.Minute
	}
	if cfg.SharedTTL <= 0 {
		cfg.SharedTTL = time.Hour
	}
	if serializer == nil {
		serializer = JSONSerializer{}
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &ResponseCache{
		local:      local,
		shared:     shared,
		serializer: serializer,
		config:     cfg,
		logger:     logger,
	}
}

// Get looks up key and, on a hit, deserializes the cached payload into dest.
// The returned Lookup distinguishes hit, miss, and tier failure; a failure
// is served exactly like a miss, never as an error. Corrupted payloads are
// treated as a miss.
func (c *ResponseCache) Get(ctx context.Context, key string, dest any) Lookup {
	if val, err := c.local.Get(ctx, key); err == nil && val != nil {
		if err := c.serializer.Unmarshal(val, dest); err == nil {
			c.localHits.Add(1)
			return Lookup{Outcome: OutcomeHit, Tier: TierLocal}
		}
		// Undeserializable local entry: drop it and fall through.
		_ = c.local.Delete(ctx, key)
	}

	if c.shared == nil {
		c.misses.Add(1)
		return Lookup{Outcome: OutcomeMiss}
	}

	val, err := c.shared.Get(ctx, key)
	if err != nil {
		c.failures.Add(1)
		c.logger.Warn("shared cache tier get failed", "key", key, "error", err)
		return Lookup{Outcome: OutcomeFailure, Tier: TierShared}
	}
	if val == nil {
		c.misses.Add(1)
		return Lookup{Outcome: OutcomeMiss}
	}

	if err := c.serializer.Unmarshal(val, dest); err != nil {
		c.misses.Add(1)
		c.logger.Warn("discarding undeserializable shared cache payload", "key", key, "error", err)
		return Lookup{Outcome: OutcomeMiss}
	}

	c.sharedHits.Add(1)

	// Backfill the local tier so the next lookup for this key stays local.
	if err := c.local.Set(ctx, key, val, c.config.LocalTTL); err == nil {
		c.backfills.Add(1)
	}

	return Lookup{Outcome: OutcomeHit, Tier: TierShared}
}

// Set serializes value and writes it to both tiers. ttl overrides the
// shared-tier TTL when positive; the local tier always uses its own shorter
// TTL. Failures are logged, never returned.
func (c *ResponseCache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := c.serializer.Marshal(value)
	if err != nil {
		c.failures.Add(1)
		c.logger.Warn("cache serialization failed, response not cached", "key", key, "error", err)
		return
	}

	if err := c.local.Set(ctx, key, data, c.config.LocalTTL); err != nil {
		c.failures.Add(1)
		c.logger.Warn("local cache tier set failed", "key", key, "error", err)
	}

	if c.shared == nil {
		return
	}

	sharedTTL := ttl
	if sharedTTL <= 0 {
		sharedTTL = c.config.SharedTTL
	}
	if err := c.shared.Set(ctx, key, data, sharedTTL); err != nil {
		c.failures.Add(1)
		c.logger.Warn("shared cache tier set failed", "key", key, "error", err)
	}
}

// Remove deletes key from both tiers, best-effort.
func (c *ResponseCache) Remove(ctx context.Context, key string) {
	_ = c.local.Delete(ctx, key)
	if c.shared != nil {
		if err := c.shared.Delete(ctx, key); err != nil {
			c.failures.Add(1)
			c.logger.Warn("shared cache tier delete failed", "key", key, "error", err)
		}
	}
}

// Clear compacts the local tier only. A shared-tier-wide clear is out of
// contract: it would require key enumeration the tier may not expose.
func (c *ResponseCache) Clear() {
	c.local.Flush()
}

// Ping checks both tiers.
func (c *ResponseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return err
	}
	if c.shared != nil {
		return c.shared.Ping(ctx)
	}
	return nil
}

// Close closes both tiers.
func (c *ResponseCache) Close() error {
	_ = c.local.Close()
	if c.shared != nil {
		return c.shared.Close()
	}
	return nil
}

// ResponseCacheStats holds per-tier statistics.
type ResponseCacheStats struct {
	LocalHits   int64   `json:"local_hits"`
	SharedHits  int64   `json:"shared_hits"`
	Misses      int64   `json:"misses"`
	Failures    int64   `json:"failures"`
	Backfills   int64   `json:"backfills"`
	HitRate     float64 `json:"hit_rate"`
	LocalStats  Stats   `json:"local_stats"`
	SharedStats Stats   `json:"shared_stats"`
}

// Stats returns combined statistics for both tiers.
func (c *ResponseCache) Stats() ResponseCacheStats {
	localHits := c.localHits.Load()
	sharedHits := c.sharedHits.Load()
	misses := c.misses.Load()
	total := localHits + sharedHits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(localHits+sharedHits) / float64(total)
	}

	stats := ResponseCacheStats{
		LocalHits:  localHits,
		SharedHits: sharedHits,
		Misses:     misses,
		Failures:   c.failures.Load(),
		Backfills:  c.backfills.Load(),
		HitRate:    hitRate,
		LocalStats: c.local.Stats(),
	}
	if c.shared != nil {
		stats.SharedStats = c.shared.Stats()
	}
	return stats
}
