// Package agentmux routes LLM generation requests across configured
// backend models: content-derived response caching, pluggable
// load-balancing strategies informed by live metrics, lazy engine
// pooling, and bounded failover.
package agentmux

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/agentmux/agentmux/internal/cache"
	"github.com/agentmux/agentmux/internal/config"
	"github.com/agentmux/agentmux/internal/kernel"
	"github.com/agentmux/agentmux/internal/metrics"
	"github.com/agentmux/agentmux/internal/observability"
	"github.com/agentmux/agentmux/internal/registry"
	"github.com/agentmux/agentmux/internal/router"
	"github.com/agentmux/agentmux/internal/strategy"
	"github.com/agentmux/agentmux/pkg/backend"
	"github.com/agentmux/agentmux/pkg/types"
)

// EngineFactory constructs the execution engine for a configured model.
// Called lazily on the model's first routed request.
type EngineFactory = kernel.Factory

// Model re-exports the registry model descriptor for configuration.
type Model = registry.Model

// Mux is the top-level routing facade. Construct with New; safe for
// concurrent use.
type Mux struct {
	cfg       *config.Config
	logger    *observability.Logger
	tracing   *observability.TracerProvider
	catalog   *registry.Static
	cached    *registry.Cached
	pool      *kernel.Pool
	respCache *cache.ResponseCache
	collector *metrics.Collector
	router    *router.Router
	manager   *config.Manager
}

// Option customizes Mux construction.
type Option func(*options)

type options struct {
	logger     *observability.Logger
	strategies *strategy.Registry
}

// WithLogger overrides the logger built from the config's logging
// section.
func WithLogger(l *observability.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStrategyRegistry supplies a strategy registry, typically to add
// custom strategies beyond the built-ins.
func WithStrategyRegistry(r *strategy.Registry) Option {
	return func(o *options) { o.strategies = r }
}

// New wires a Mux from configuration. The factory is invoked lazily, once
// per model, on first use. A nil config gets defaults (and no models, so
// every Route fails until models are configured).
func New(cfg *config.Config, factory EngineFactory, opts ...Option) (*Mux, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, fmt.Errorf("agentmux: engine factory is required")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = observability.NewLogger(observability.LoggerConfig{
			Level:      observability.ParseLevel(cfg.Logging.Level),
			Output:     os.Stderr,
			AddSource:  cfg.Logging.AddSource,
			JSONFormat: cfg.Logging.Format != "text",
		})
	}

	tracing, err := observability.InitTracing(context.Background(), observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRate:  cfg.Tracing.SampleRate,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("agentmux: initializing tracing: %w", err)
	}

	catalog, err := registry.NewStatic(cfg.Models)
	if err != nil {
		return nil, err
	}
	cached := registry.NewCached(catalog, 0)

	strategies := o.strategies
	if strategies == nil {
		strategies = strategy.NewRegistry()
	}
	picker, err := strategies.New(cfg.Routing.Strategy)
	if err != nil {
		return nil, err
	}
	if wrr, ok := picker.(*strategy.WeightedRoundRobin); ok {
		for _, m := range cfg.Models {
			if m.Weight > 0 {
				wrr.SetWeight(m.ID, m.Weight)
			}
		}
	}

	collector := metrics.NewCollector(logger)
	pool := kernel.NewPool(factory, logger)

	var respCache *cache.ResponseCache
	if cfg.Cache.Enabled {
		local := cache.NewMemoryTier(cache.MemoryTierConfig{
			MaxEntries:    cfg.Cache.Local.MaxEntries,
			DefaultTTL:    cfg.Cache.LocalTTL,
			MaxItemSize:   cfg.Cache.Local.MaxItemSize,
			SweepInterval: cfg.Cache.Local.SweepInterval,
		})

		var shared cache.Tier
		if cfg.Cache.Shared.Enabled {
			redisTier, err := cache.NewRedisTier(cache.RedisTierConfig{
				Addr:         cfg.Cache.Shared.Addr,
				Password:     cfg.Cache.Shared.Password,
				DB:           cfg.Cache.Shared.DB,
				ClusterAddrs: cfg.Cache.Shared.ClusterAddrs,
				Namespace:    cfg.Cache.Shared.Namespace,
				DefaultTTL:   cfg.Cache.SharedTTL,
				DialTimeout:  cfg.Cache.Shared.DialTimeout,
				ReadTimeout:  cfg.Cache.Shared.ReadTimeout,
				WriteTimeout: cfg.Cache.Shared.WriteTimeout,
				PoolSize:     cfg.Cache.Shared.PoolSize,
				MinIdleConns: cfg.Cache.Shared.MinIdleConns,
				MaxRetries:   cfg.Cache.Shared.MaxRetries,
			})
			if err != nil {
				// Shared tier is optional by contract: degrade to
				// local-only and keep serving.
				logger.Warn("shared cache tier unavailable, continuing local-only", "error", err)
			} else {
				shared = redisTier
			}
		}

		respCache = cache.NewResponseCache(local, shared, nil, cache.ResponseCacheConfig{
			LocalTTL:  cfg.Cache.LocalTTL,
			SharedTTL: cfg.Cache.SharedTTL,
		}, logger)
	}

	keys := cache.NewKeyBuilder(cfg.Cache.KeyPrefix, nil, logger)

	rt := router.New(router.Options{
		Registry:     cached,
		Pool:         pool,
		Cache:        respCache,
		Keys:         keys,
		Picker:       picker,
		Collector:    collector,
		Logger:       logger,
		Tracer:       tracing.Tracer(),
		RetryEnabled: cfg.Routing.RetryEnabled,
		MaxRetries:   cfg.Routing.MaxRetries,
	})

	return &Mux{
		cfg:       cfg,
		logger:    logger,
		tracing:   tracing,
		catalog:   catalog,
		cached:    cached,
		pool:      pool,
		respCache: respCache,
		collector: collector,
		router:    rt,
	}, nil
}

// NewFromFile builds a Mux from a YAML config file and watches the file:
// edits swap the model catalog at runtime. The remaining sections apply at
// construction time only.
func NewFromFile(path string, factory EngineFactory, opts ...Option) (*Mux, error) {
	manager, err := config.NewManager(path, nil)
	if err != nil {
		return nil, err
	}

	m, err := New(manager.Current(), factory, opts...)
	if err != nil {
		manager.Close()
		return nil, err
	}
	m.manager = manager

	manager.OnChange(func(c *config.Config) {
		if err := m.ReplaceModels(c.Models); err != nil {
			m.logger.Warn("model catalog reload rejected", "error", err)
		}
	})
	return m, nil
}

// Route serves one generation request, from cache when possible.
func (m *Mux) Route(ctx context.Context, req *types.Request) (*types.Response, error) {
	return m.router.Route(ctx, req)
}

// RouteStream serves one streaming generation request. Streams bypass the
// response cache. The caller must Close the returned handler.
func (m *Mux) RouteStream(ctx context.Context, req *types.Request) (backend.StreamHandler, error) {
	return m.router.RouteStream(ctx, req)
}

// GetMetrics returns the performance summary for modelID over window.
func (m *Mux) GetMetrics(modelID string, window time.Duration) metrics.Summary {
	return m.router.GetMetrics(modelID, window)
}

// GetHealth returns the derived health snapshot for modelID.
func (m *Mux) GetHealth(modelID string) metrics.HealthSnapshot {
	return m.router.GetHealth(modelID)
}

// CacheStats returns response cache statistics.
func (m *Mux) CacheStats() cache.ResponseCacheStats {
	return m.router.CacheStats()
}

// ReplaceModels swaps the model catalog, for configuration reloads. Any
// memoized catalog views are dropped so the next route sees the new set.
func (m *Mux) ReplaceModels(models []Model) error {
	if err := m.catalog.Replace(models); err != nil {
		return err
	}
	m.cached.Invalidate()
	return nil
}

// Close releases the engine pool, the cache tiers, the config watcher,
// and the tracer.
func (m *Mux) Close(ctx context.Context) error {
	var firstErr error
	if m.manager != nil {
		if err := m.manager.Close(); err != nil {
			firstErr = err
		}
	}
	if err := m.pool.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if m.respCache != nil {
		if err := m.respCache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := m.tracing.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
