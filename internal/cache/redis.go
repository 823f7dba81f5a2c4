package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisTier is the optional shared cache tier: network-addressable, larger
// capacity, longer TTL than the local tier.
type RedisTier struct {
	client     goredis.UniversalClient
	namespace  string
	defaultTTL time.Duration

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
	errors atomic.Int64
}

// RedisTierConfig holds configuration for the shared tier.
type RedisTierConfig struct {
	Addr     string `yaml:"addr"`     // redis address (e.g., "localhost:6379")
	Password string `yaml:"password"` // redis password
	DB       int    `yaml:"db"`       // redis database number

	// ClusterAddrs switches the client to cluster mode when non-empty.
	ClusterAddrs []string `yaml:"cluster_addrs"`

	Namespace    string        `yaml:"namespace"`      // key namespace prefix
	DefaultTTL   time.Duration `yaml:"default_ttl"`    // default TTL (default: 1 hour)
	DialTimeout  time.Duration `yaml:"dial_timeout"`   // connection timeout
	ReadTimeout  time.Duration `yaml:"read_timeout"`   // read timeout
	WriteTimeout time.Duration `yaml:"write_timeout"`  // write timeout
	PoolSize     int           `yaml:"pool_size"`      // connection pool size
	MinIdleConns int           `yaml:"min_idle_conns"` // minimum idle connections
	MaxRetries   int           `yaml:"max_retries"`    // maximum retries
}

// DefaultRedisTierConfig returns sensible defaults.
func DefaultRedisTierConfig() RedisTierConfig {
	return RedisTierConfig{
		Addr:         "localhost:6379",
		Namespace:    "agentmux",
		DefaultTTL:   time.Hour,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	}
}

// NewRedisTier creates the shared tier and verifies connectivity.
func NewRedisTier(cfg RedisTierConfig) (*RedisTier, error) {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}

	var client goredis.UniversalClient
	if len(cfg.ClusterAddrs) > 0 {
		client = goredis.NewClusterClient(&goredis.ClusterOptions{
			Addrs:        cfg.ClusterAddrs,
			Password:     cfg.Password,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
		})
	} else {
		client = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisTier{
		client:     client,
		namespace:  cfg.Namespace,
		defaultTTL: cfg.DefaultTTL,
	}, nil
}

func (t *RedisTier) prefixKey(key string) string {
	if t.namespace == "" {
		return key
	}
	return t.namespace + ":" + key
}

// Get retrieves a value from Redis. Returns nil, nil on a miss.
func (t *RedisTier) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := t.client.Get(ctx, t.prefixKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			t.misses.Add(1)
			return nil, nil
		}
		t.errors.Add(1)
		return nil, fmt.Errorf("redis get: %w", err)
	}

	t.hits.Add(1)
	return val, nil
}

// Set stores a value in Redis with TTL.
func (t *RedisTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = t.defaultTTL
	}

	if err := t.client.Set(ctx, t.prefixKey(key), value, ttl).Err(); err != nil {
		t.errors.Add(1)
		return fmt.Errorf("redis set: %w", err)
	}

	t.sets.Add(1)
	return nil
}

// Delete removes a key from Redis.
func (t *RedisTier) Delete(ctx context.Context, key string) error {
	if err := t.client.Del(ctx, t.prefixKey(key)).Err(); err != nil {
		t.errors.Add(1)
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity.
func (t *RedisTier) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (t *RedisTier) Close() error {
	return t.client.Close()
}

// Stats returns tier statistics.
func (t *RedisTier) Stats() Stats {
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
		Errors:  t.errors.Load(),
		HitRate: hitRate,
	}
}
