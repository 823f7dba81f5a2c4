// Package metrics records per-backend request outcomes and derives the
// health and performance summaries that feed routing decisions.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentmux/agentmux/internal/observability"
	"github.com/agentmux/agentmux/pkg/types"
)

// RequestKind classifies a tracked request.
type RequestKind string

const (
	KindCompletion RequestKind = "completion"
	KindStream     RequestKind = "stream"
)

// latencyWindowSize bounds the sliding window of response-time samples per
// model; the oldest sample is evicted first.
const latencyWindowSize = 1000

// unhealthyErrorRate is the health boundary: a backend is healthy iff its
// observed error rate over all recorded requests is strictly below this.
const unhealthyErrorRate = 0.10

// HealthStatus is a point-in-time health judgment.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthUnknown   HealthStatus = "unknown"
)

// HealthSnapshot is derived on demand from accumulated metrics, not stored.
type HealthSnapshot struct {
	Model        string       `json:"model"`
	Status       HealthStatus `json:"status"`
	ErrorRate    float64      `json:"error_rate"`
	TotalCount   int64        `json:"total_count"`
	LastActivity time.Time    `json:"last_activity"`
}

// Healthy reports whether the snapshot status is healthy.
func (h HealthSnapshot) Healthy() bool {
	return h.Status == HealthHealthy
}

// Summary is the derived performance summary for one model.
//
// The Window parameter of GetMetrics currently reflects in-memory lifetime
// data only: there are no time-partitioned rollups, so every window returns
// the same process-lifetime numbers. This is a documented contract gap, not
// a bug.
type Summary struct {
	Model         string        `json:"model"`
	TotalRequests int64         `json:"total_requests"`
	SuccessRate   float64       `json:"success_rate"`
	AvgLatency    time.Duration `json:"avg_latency"`
	P95Latency    time.Duration `json:"p95_latency"`
	CacheHitRate  float64       `json:"cache_hit_rate"`
	TotalTokens   int64         `json:"total_tokens"`
	TotalCost     float64       `json:"total_cost"`
	LastActivity  time.Time     `json:"last_activity"`
}

// modelRecord accumulates metrics for one model. Each record has its own
// lock so one hot model cannot contend with others.
type modelRecord struct {
	mu sync.Mutex

	totalRequests int64
	successCount  int64
	failureCount  int64
	kindCounts    map[RequestKind]int64

	// latenciesMs is the bounded sliding window, oldest first.
	latenciesMs []float64

	cacheHits   map[string]int64 // tier -> hits
	cacheMisses map[string]int64 // tier -> misses
	errorKinds  map[string]int64

	totalTokens int64
	totalCost   float64

	lastUpdated time.Time
}

func newModelRecord() *modelRecord {
	return &modelRecord{
		kindCounts:  make(map[RequestKind]int64),
		latenciesMs: make([]float64, 0, 64),
		cacheHits:   make(map[string]int64),
		cacheMisses: make(map[string]int64),
		errorKinds:  make(map[string]int64),
	}
}

// trackedRequest is the ephemeral record of one in-flight operation.
type trackedRequest struct {
	model   string
	kind    RequestKind
	started time.Time
}

// Collector records request outcomes per model. All methods are safe for
// concurrent use; mutation of a model's record is guarded by that record's
// lock only.
type Collector struct {
	models   sync.Map // model id -> *modelRecord
	inflight sync.Map // tracking id -> *trackedRequest
	logger   *observability.Logger
}

// NewCollector creates a metrics collector.
func NewCollector(logger *observability.Logger) *Collector {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Collector{logger: logger}
}

func (c *Collector) record(model string) *modelRecord {
	if v, ok := c.models.Load(model); ok {
		return v.(*modelRecord)
	}
	v, _ := c.models.LoadOrStore(model, newModelRecord())
	return v.(*modelRecord)
}

// StartRequest allocates a tracking record for one dispatch and returns its
// opaque id. The caller must pass the id to EndRequest exactly once, or
// discard it explicitly on early cancellation; a leaked id lives for the
// process lifetime.
func (c *Collector) StartRequest(model string, kind RequestKind) string {
	id := uuid.NewString()
	c.inflight.Store(id, &trackedRequest{
		model:   model,
		kind:    kind,
		started: time.Now(),
	})

	rec := c.record(model)
	rec.mu.Lock()
	rec.totalRequests++
	rec.kindCounts[kind]++
	rec.lastUpdated = time.Now()
	rec.mu.Unlock()

	requestsStarted.WithLabelValues(model, string(kind)).Inc()
	return id
}

// EndRequest consumes a tracking id and records the outcome. When duration
// is zero the elapsed time since StartRequest is used. An unknown or
// already-consumed id is logged as a warning and is a no-op: it must never
// be able to crash an unrelated request path.
func (c *Collector) EndRequest(trackingID string, success bool, duration time.Duration, usage *types.Usage) {
	v, ok := c.inflight.LoadAndDelete(trackingID)
	if !ok {
		c.logger.Warn("unknown or duplicate tracking id in EndRequest", "tracking_id", trackingID)
		return
	}
	tracked := v.(*trackedRequest)

	if duration <= 0 {
		duration = time.Since(tracked.started)
	}
	latencyMs := float64(duration.Milliseconds())

	rec := c.record(tracked.model)
	rec.mu.Lock()
	if success {
		rec.successCount++
	} else {
		rec.failureCount++
	}
	if len(rec.latenciesMs) >= latencyWindowSize {
		copy(rec.latenciesMs, rec.latenciesMs[1:])
		rec.latenciesMs[len(rec.latenciesMs)-1] = latencyMs
	} else {
		rec.latenciesMs = append(rec.latenciesMs, latencyMs)
	}
	if usage != nil {
		rec.totalTokens += int64(usage.TotalTokens)
		rec.totalCost += usage.Cost
	}
	rec.lastUpdated = time.Now()
	rec.mu.Unlock()

	outcome := "success"
	if !success {
		outcome = "failure"
	}
	requestsCompleted.WithLabelValues(tracked.model, string(tracked.kind), outcome).Inc()
	requestLatency.WithLabelValues(tracked.model, string(tracked.kind)).Observe(duration.Seconds())
	if usage != nil {
		if usage.TotalTokens > 0 {
			tokensTotal.WithLabelValues(tracked.model).Add(float64(usage.TotalTokens))
		}
		if usage.Cost > 0 {
			costTotal.WithLabelValues(tracked.model).Add(usage.Cost)
		}
	}
}

// Discard drops a tracking id without recording an outcome, for callers
// that cancel before dispatch completes.
func (c *Collector) Discard(trackingID string) {
	c.inflight.Delete(trackingID)
}

// InflightCount returns the number of unconsumed tracking ids.
func (c *Collector) InflightCount() int {
	n := 0
	c.inflight.Range(func(_, _ any) bool { n++; return true })
	return n
}

// RecordCacheHit counts one cache hit for model against the given tier.
// Does not require an active tracking id.
func (c *Collector) RecordCacheHit(model, tier string) {
	rec := c.record(model)
	rec.mu.Lock()
	rec.cacheHits[tier]++
	rec.lastUpdated = time.Now()
	rec.mu.Unlock()

	cacheLookups.WithLabelValues(model, tier, "hit").Inc()
}

// RecordCacheMiss counts one cache miss for model against the given tier.
func (c *Collector) RecordCacheMiss(model, tier string) {
	rec := c.record(model)
	rec.mu.Lock()
	rec.cacheMisses[tier]++
	rec.lastUpdated = time.Now()
	rec.mu.Unlock()

	cacheLookups.WithLabelValues(model, tier, "miss").Inc()
}

// RecordError counts one error of the given kind for model.
func (c *Collector) RecordError(model, errorKind string, cause error) {
	rec := c.record(model)
	rec.mu.Lock()
	rec.errorKinds[errorKind]++
	rec.lastUpdated = time.Now()
	rec.mu.Unlock()

	errorsTotal.WithLabelValues(model, errorKind).Inc()
	if cause != nil {
		c.logger.Debug("recorded backend error", "model", model, "kind", errorKind, "error", cause)
	}
}

// GetMetrics computes the performance summary for model. The window
// parameter is accepted for interface stability but reflects lifetime data
// only; see Summary.
func (c *Collector) GetMetrics(model string, window time.Duration) Summary {
	v, ok := c.models.Load(model)
	if !ok {
		return Summary{Model: model}
	}
	rec := v.(*modelRecord)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	s := Summary{
		Model:         model,
		TotalRequests: rec.totalRequests,
		TotalTokens:   rec.totalTokens,
		TotalCost:     rec.totalCost,
		LastActivity:  rec.lastUpdated,
	}

	completed := rec.successCount + rec.failureCount
	if completed > 0 {
		s.SuccessRate = float64(rec.successCount) / float64(completed)
	}

	if n := len(rec.latenciesMs); n > 0 {
		sorted := make([]float64, n)
		copy(sorted, rec.latenciesMs)
		sort.Float64s(sorted)

		var sum float64
		for _, ms := range sorted {
			sum += ms
		}
		s.AvgLatency = time.Duration(sum / float64(n) * float64(time.Millisecond))

		idx := int(math.Ceil(0.95*float64(n))) - 1
		if idx < 0 {
			idx = 0
		}
		s.P95Latency = time.Duration(sorted[idx] * float64(time.Millisecond))
	}

	var hits, misses int64
	for _, h := range rec.cacheHits {
		hits += h
	}
	for _, m := range rec.cacheMisses {
		misses += m
	}
	if hits+misses > 0 {
		s.CacheHitRate = float64(hits) / float64(hits+misses)
	}

	return s
}

// GetHealth derives the health snapshot for model. An unknown model id
// yields an explicit Unknown status.
func (c *Collector) GetHealth(model string) HealthSnapshot {
	v, ok := c.models.Load(model)
	if !ok {
		return HealthSnapshot{Model: model, Status: HealthUnknown}
	}
	rec := v.(*modelRecord)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	snap := HealthSnapshot{
		Model:        model,
		Status:       HealthHealthy,
		TotalCount:   rec.totalRequests,
		LastActivity: rec.lastUpdated,
	}

	completed := rec.successCount + rec.failureCount
	if completed > 0 {
		snap.ErrorRate = float64(rec.failureCount) / float64(completed)
		if snap.ErrorRate >= unhealthyErrorRate {
			snap.Status = HealthUnhealthy
		}
	}

	if snap.Status == HealthHealthy {
		healthState.WithLabelValues(model).Set(1)
	} else {
		healthState.WithLabelValues(model).Set(0)
	}
	return snap
}

// Healthy reports whether model is currently healthy. Models with no
// recorded data count as healthy: absence of signal is not failure.
// Satisfies the selection-criteria reader consumed by strategies.
func (c *Collector) Healthy(model string) bool {
	snap := c.GetHealth(model)
	return snap.Status != HealthUnhealthy
}

// AvgLatencyMs returns the average response time over the sliding window.
// ok is false when no samples exist for model.
func (c *Collector) AvgLatencyMs(model string) (float64, bool) {
	v, loaded := c.models.Load(model)
	if !loaded {
		return 0, false
	}
	rec := v.(*modelRecord)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	n := len(rec.latenciesMs)
	if n == 0 {
		return 0, false
	}
	var sum float64
	for _, ms := range rec.latenciesMs {
		sum += ms
	}
	return sum / float64(n), true
}
