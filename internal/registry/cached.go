package registry

import (
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	modelsCacheKey    = "models"
	filterCachePrefix = "filter:"
	defaultCacheTTL   = 30 * time.Second
	defaultCacheSweep = time.Minute
)

// Cached memoizes catalog snapshots in front of another Snapshot. Useful
// when the underlying catalog is rebuilt per read or filtering is hot.
// Results may lag catalog changes by up to the TTL; call Invalidate after
// a Replace to drop stale views immediately.
type Cached struct {
	inner Snapshot
	cache *gocache.Cache
}

// NewCached wraps inner with a memoizing layer. A non-positive ttl falls
// back to 30 seconds.
func NewCached(inner Snapshot, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cached{
		inner: inner,
		cache: gocache.New(ttl, defaultCacheSweep),
	}
}

// Models returns the memoized model list.
func (c *Cached) Models() []Model {
	if v, ok := c.cache.Get(modelsCacheKey); ok {
		return v.([]Model)
	}
	models := c.inner.Models()
	c.cache.SetDefault(modelsCacheKey, models)
	return models
}

// Model delegates to the underlying catalog; single lookups are already
// cheap.
func (c *Cached) Model(id string) (Model, bool) {
	return c.inner.Model(id)
}

// FilterByCapabilities returns the memoized capability filter result.
func (c *Cached) FilterByCapabilities(required []string) []Model {
	key := filterCachePrefix + strings.Join(required, ",")
	if v, ok := c.cache.Get(key); ok {
		return v.([]Model)
	}
	models := FilterByCapabilities(c.inner, required)
	c.cache.SetDefault(key, models)
	return models
}

// Invalidate drops all memoized views.
func (c *Cached) Invalidate() {
	c.cache.Flush()
}
