// Package router orchestrates request routing: cache consultation,
// candidate selection, engine acquisition, invocation, failover, and
// outcome recording.
package router

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentmux/agentmux/internal/cache"
	"github.com/agentmux/agentmux/internal/kernel"
	"github.com/agentmux/agentmux/internal/metrics"
	"github.com/agentmux/agentmux/internal/observability"
	"github.com/agentmux/agentmux/internal/registry"
	"github.com/agentmux/agentmux/internal/strategy"
	routeerr "github.com/agentmux/agentmux/pkg/errors"
	"github.com/agentmux/agentmux/pkg/types"
)

// candidate adapts a registry model to the strategy candidate contract.
type candidate struct {
	model registry.Model
}

func (c candidate) Key() string { return c.model.ID }

// capabilityFilter is satisfied by catalogs that memoize filter results.
type capabilityFilter interface {
	FilterByCapabilities(required []string) []registry.Model
}

// Options configures a Router. Cache may be nil to disable caching.
type Options struct {
	Registry  registry.Snapshot
	Pool      *kernel.Pool
	Cache     *cache.ResponseCache
	Keys      *cache.KeyBuilder
	Picker    strategy.Picker
	Collector *metrics.Collector
	Logger    *observability.Logger
	Tracer    trace.Tracer

	// RetryEnabled turns on failover to remaining candidates after a
	// backend failure.
	RetryEnabled bool
	// MaxRetries bounds additional attempts after the first.
	MaxRetries int
}

// Router routes requests to backend engines. Safe for concurrent use.
type Router struct {
	registry  registry.Snapshot
	pool      *kernel.Pool
	cache     *cache.ResponseCache
	keys      *cache.KeyBuilder
	picker    strategy.Picker
	collector *metrics.Collector
	logger    *observability.Logger
	tracer    trace.Tracer

	retryEnabled bool
	maxRetries   int
}

// New creates a router.
func New(opts Options) *Router {
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(observability.TracerName)
	}
	if opts.Keys == nil {
		opts.Keys = cache.NewKeyBuilder("", nil, opts.Logger)
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Router{
		registry:     opts.Registry,
		pool:         opts.Pool,
		cache:        opts.Cache,
		keys:         opts.Keys,
		picker:       opts.Picker,
		collector:    opts.Collector,
		logger:       opts.Logger,
		tracer:       opts.Tracer,
		retryEnabled: opts.RetryEnabled,
		maxRetries:   opts.MaxRetries,
	}
}

// Route serves one request: from cache when possible, otherwise by
// selecting a backend, invoking it, and caching the result. Callers
// receive either a response or a single terminal error describing the
// last attempted backend failure.
func (r *Router) Route(ctx context.Context, req *types.Request) (*types.Response, error) {
	ctx, span := observability.StartRouteSpan(ctx, r.tracer, req.Model, r.picker.Name())
	defer span.End()

	var key string
	if r.cache != nil {
		key = r.keys.Build(req)

		var cached types.Response
		lookup := r.cache.Get(ctx, key, &cached)
		if lookup.Outcome == cache.OutcomeHit {
			r.collector.RecordCacheHit(req.Model, string(lookup.Tier))
			cached.Cached = true
			observability.RecordRouteResult(span, true, cached.Model, nil)
			return &cached, nil
		}
		r.collector.RecordCacheMiss(req.Model, missTier(lookup))
	}

	resp, model, err := r.dispatch(ctx, req)
	if err != nil {
		observability.RecordRouteResult(span, false, "", err)
		return nil, err
	}

	if r.cache != nil {
		r.cache.Set(ctx, key, resp, model.CacheTTL)
	}
	observability.RecordRouteResult(span, false, model.ID, nil)
	return resp, nil
}

// missTier labels which tier the miss was observed against.
func missTier(lookup cache.Lookup) string {
	if lookup.Tier != "" {
		return string(lookup.Tier)
	}
	return string(cache.TierLocal)
}

// dispatch selects a candidate and invokes it, failing over across the
// remaining candidates from the same selection round when enabled.
func (r *Router) dispatch(ctx context.Context, req *types.Request) (*types.Response, registry.Model, error) {
	order, err := r.attemptOrder(req)
	if err != nil {
		return nil, registry.Model{}, err
	}

	attempts := 1
	if r.retryEnabled {
		attempts += r.maxRetries
	}
	if attempts > len(order) {
		attempts = len(order)
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			break
		}
		model := order[i]

		resp, err := r.invoke(ctx, model, req)
		if err == nil {
			return resp, model, nil
		}
		lastErr = err
		r.logger.Warn("backend attempt failed",
			"model", model.ID, "attempt", i+1, "attempts", attempts, "error", err)
	}

	if lastErr == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, registry.Model{}, routeerr.NewRoutingError("request canceled before dispatch", ctxErr)
		}
		return nil, registry.Model{}, routeerr.NewRoutingError("no backend attempt was made", nil)
	}
	return nil, registry.Model{}, lastErr
}

// attemptOrder derives the candidate list, asks the strategy for the
// primary pick, and places the remaining candidates after it in list
// order for failover.
func (r *Router) attemptOrder(req *types.Request) ([]registry.Model, error) {
	var required []string
	if req.Hints != nil {
		required = req.Hints.RequiredCapabilities
	}

	var models []registry.Model
	if f, ok := r.registry.(capabilityFilter); ok {
		models = f.FilterByCapabilities(required)
	} else {
		models = registry.FilterByCapabilities(r.registry, required)
	}
	if len(models) == 0 {
		return nil, routeerr.NewRoutingError("no candidates satisfy the request", nil)
	}

	candidates := make([]strategy.Candidate, len(models))
	for i, m := range models {
		candidates[i] = candidate{model: m}
	}

	picked, err := r.picker.Pick(candidates, strategy.Criteria{Perf: r.collector})
	if err != nil {
		return nil, routeerr.NewRoutingError("strategy selection failed", err)
	}

	order := make([]registry.Model, 0, len(models))
	order = append(order, picked.(candidate).model)
	for _, m := range models {
		if m.ID != picked.Key() {
			order = append(order, m)
		}
	}
	return order, nil
}

// invoke runs one tracked backend attempt.
func (r *Router) invoke(ctx context.Context, model registry.Model, req *types.Request) (*types.Response, error) {
	engine, err := r.pool.Acquire(ctx, model)
	if err != nil {
		r.collector.RecordError(model.ID, string(routeerr.KindBackendFailure), err)
		return nil, routeerr.NewBackendError(model.ID, err)
	}

	trackingID := r.collector.StartRequest(model.ID, metrics.KindCompletion)
	start := time.Now()

	resp, err := engine.Invoke(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		r.collector.EndRequest(trackingID, false, elapsed, nil)
		r.collector.RecordError(model.ID, string(routeerr.KindBackendFailure), err)
		return nil, routeerr.NewBackendError(model.ID, err)
	}

	r.collector.EndRequest(trackingID, true, elapsed, resp.Usage)
	return resp, nil
}

// GetMetrics returns the performance summary for modelID over window.
func (r *Router) GetMetrics(modelID string, window time.Duration) metrics.Summary {
	return r.collector.GetMetrics(modelID, window)
}

// GetHealth returns the derived health snapshot for modelID.
func (r *Router) GetHealth(modelID string) metrics.HealthSnapshot {
	return r.collector.GetHealth(modelID)
}

// CacheStats returns cache statistics, or zero stats when caching is
// disabled.
func (r *Router) CacheStats() cache.ResponseCacheStats {
	if r.cache == nil {
		return cache.ResponseCacheStats{}
	}
	return r.cache.Stats()
}
