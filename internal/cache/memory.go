package cache

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryTier is the fast local cache tier: bounded, time-expiring, with a
// min-heap over expiration times for cheap eviction.
type MemoryTier struct {
	mu sync.RWMutex

	entries map[string]*memoryEntry
	expiry  expiryHeap

	maxEntries  int
	defaultTTL  time.Duration
	maxItemSize int

	sweepTicker *time.Ticker
	stopSweep   chan struct{}
	closeOnce   sync.Once

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

type memoryEntry struct {
	value     []byte
	expiresAt int64 // unix nano
}

type expiryItem struct {
	key       string
	expiresAt int64
}

// expiryHeap is a min-heap ordered by expiration time. Items may be stale:
// when a key is overwritten the old item stays in the heap and is skipped
// on pop by comparing its expiration against the live entry.
type expiryHeap []*expiryItem

func (h expiryHeap) Len() int            { return len(h) }
func (h expiryHeap) Less(i, j int) bool  { return h[i].expiresAt < h[j].expiresAt }
func (h expiryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x any)         { *h = append(*h, x.(*expiryItem)) }
func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// MemoryTierConfig holds configuration for the local tier.
type MemoryTierConfig struct {
	MaxEntries    int           // maximum number of items (default: 1000)
	DefaultTTL    time.Duration // default TTL (default: 5 minutes)
	MaxItemSize   int           // maximum size per item in bytes (default: 1MB)
	SweepInterval time.Duration // background expiry sweep interval (default: 1 minute)
}

// DefaultMemoryTierConfig returns sensible defaults.
func DefaultMemoryTierConfig() MemoryTierConfig {
	return MemoryTierConfig{
		MaxEntries:    1000,
		DefaultTTL:    5 * time.Minute,
		MaxItemSize:   1024 * 1024,
		SweepInterval: time.Minute,
	}
}

// NewMemoryTier creates the local cache tier.
func NewMemoryTier(cfg MemoryTierConfig) *MemoryTier {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1000
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	if cfg.MaxItemSize <= 0 {
		cfg.MaxItemSize = 1024 * 1024
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}

	t := &MemoryTier{
		entries:     make(map[string]*memoryEntry),
		expiry:      make(expiryHeap, 0),
		maxEntries:  cfg.MaxEntries,
		defaultTTL:  cfg.DefaultTTL,
		maxItemSize: cfg.MaxItemSize,
		stopSweep:   make(chan struct{}),
	}
	heap.Init(&t.expiry)

	t.sweepTicker = time.NewTicker(cfg.SweepInterval)
	go t.sweepLoop()

	return t
}

func (t *MemoryTier) sweepLoop() {
	for {
		select {
		case <-t.sweepTicker.C:
			t.mu.Lock()
			t.evictExpired(time.Now().UnixNano())
			t.mu.Unlock()
		case <-t.stopSweep:
			return
		}
	}
}

// evictExpired pops expired and stale heap items. Caller holds the lock.
func (t *MemoryTier) evictExpired(now int64) {
	for t.expiry.Len() > 0 {
		item := t.expiry[0]
		live, ok := t.entries[item.key]
		if !ok || live.expiresAt != item.expiresAt {
			heap.Pop(&t.expiry) // stale item, key was overwritten or deleted
			continue
		}
		if item.expiresAt > now {
			break
		}
		heap.Pop(&t.expiry)
		delete(t.entries, item.key)
	}
}

// evictOldest removes entries closest to expiry until below capacity.
// Caller holds the lock.
func (t *MemoryTier) evictOldest() {
	for t.expiry.Len() > 0 && len(t.entries) >= t.maxEntries {
		item := heap.Pop(&t.expiry).(*expiryItem)
		live, ok := t.entries[item.key]
		if !ok || live.expiresAt != item.expiresAt {
			continue
		}
		delete(t.entries, item.key)
	}
}

// Get retrieves a value, lazily deleting expired entries.
func (t *MemoryTier) Get(ctx context.Context, key string) ([]byte, error) {
	t.mu.RLock()
	entry, ok := t.entries[key]
	t.mu.RUnlock()

	if !ok {
		t.misses.Add(1)
		return nil, nil
	}

	if entry.expiresAt <= time.Now().UnixNano() {
		t.misses.Add(1)
		t.mu.Lock()
		if live, ok := t.entries[key]; ok && live == entry {
			delete(t.entries, key)
		}
		t.mu.Unlock()
		return nil, nil
	}

	t.hits.Add(1)
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

// Set stores a value. Oversized items are silently skipped.
func (t *MemoryTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if len(value) > t.maxItemSize {
		return nil
	}
	if ttl <= 0 {
		ttl = t.defaultTTL
	}

	expiresAt := time.Now().Add(ttl).UnixNano()
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.entries) >= t.maxEntries {
		t.evictExpired(time.Now().UnixNano())
		t.evictOldest()
	}

	t.entries[key] = &memoryEntry{value: valueCopy, expiresAt: expiresAt}
	heap.Push(&t.expiry, &expiryItem{key: key, expiresAt: expiresAt})

	t.sets.Add(1)
	return nil
}

// Delete removes a key.
func (t *MemoryTier) Delete(ctx context.Context, key string) error {
	t.mu.Lock()
	delete(t.entries, key)
	t.mu.Unlock()
	return nil
}

// Flush removes all entries.
func (t *MemoryTier) Flush() {
	t.mu.Lock()
	t.entries = make(map[string]*memoryEntry)
	t.expiry = make(expiryHeap, 0)
	heap.Init(&t.expiry)
	t.mu.Unlock()
}

// Len returns the number of live items.
func (t *MemoryTier) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Ping always returns nil for the local tier.
func (t *MemoryTier) Ping(ctx context.Context) error {
	return nil
}

// Close stops the sweep goroutine.
func (t *MemoryTier) Close() error {
	t.closeOnce.Do(func() {
		t.sweepTicker.Stop()
		close(t.stopSweep)
	})
	return nil
}

// Stats returns tier statistics.
func (t *MemoryTier) Stats() Stats {
	hits := t.hits.Load()
	misses := t.misses.Load()
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Hits:    hits,
		Misses:  misses,
		Sets:    t.sets.Load(),
		HitRate: hitRate,
	}
}
