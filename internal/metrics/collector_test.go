package metrics

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmux/agentmux/pkg/types"
)

func TestCollectorTrackedRequestLifecycle(t *testing.T) {
	c := NewCollector(nil)

	id := c.StartRequest("m1", KindCompletion)
	require.NotEmpty(t, id)
	assert.Equal(t, 1, c.InflightCount())

	c.EndRequest(id, true, 120*time.Millisecond, &types.Usage{TotalTokens: 42, Cost: 0.01})
	assert.Equal(t, 0, c.InflightCount())

	s := c.GetMetrics("m1", 0)
	assert.Equal(t, int64(1), s.TotalRequests)
	assert.Equal(t, 1.0, s.SuccessRate)
	assert.Equal(t, int64(42), s.TotalTokens)
	assert.InDelta(t, 0.01, s.TotalCost, 1e-9)
	assert.Equal(t, 120*time.Millisecond, s.AvgLatency)
}

func TestCollectorTrackingIDsAreUnique(t *testing.T) {
	c := NewCollector(nil)

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := c.StartRequest("m1", KindCompletion)
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestCollectorDuplicateEndRequestIsNoOp(t *testing.T) {
	c := NewCollector(nil)

	id := c.StartRequest("m1", KindCompletion)
	c.EndRequest(id, true, time.Millisecond, nil)

	// Second end with the same id must not change anything.
	c.EndRequest(id, false, time.Millisecond, nil)

	s := c.GetMetrics("m1", 0)
	assert.Equal(t, 1.0, s.SuccessRate)
}

func TestCollectorUnknownTrackingIDIsNoOp(t *testing.T) {
	c := NewCollector(nil)
	c.EndRequest("no-such-id", true, time.Millisecond, nil)
	assert.Equal(t, int64(0), c.GetMetrics("m1", 0).TotalRequests)
}

func TestCollectorHealthBoundary(t *testing.T) {
	run := func(t *testing.T, failures int, want HealthStatus) {
		c := NewCollector(nil)
		for i := 0; i < 100; i++ {
			id := c.StartRequest("m1", KindCompletion)
			c.EndRequest(id, i >= failures, time.Millisecond, nil)
		}
		assert.Equal(t, want, c.GetHealth("m1").Status)
	}

	t.Run("9 percent errors is healthy", func(t *testing.T) {
		run(t, 9, HealthHealthy)
	})
	t.Run("10 percent errors is unhealthy", func(t *testing.T) {
		run(t, 10, HealthUnhealthy)
	})
	t.Run("11 percent errors is unhealthy", func(t *testing.T) {
		run(t, 11, HealthUnhealthy)
	})
}

func TestCollectorUnknownModelHealth(t *testing.T) {
	c := NewCollector(nil)
	snap := c.GetHealth("never-seen")
	assert.Equal(t, HealthUnknown, snap.Status)

	// Strategies treat absence of signal as usable.
	assert.True(t, c.Healthy("never-seen"))
}

func TestCollectorLatencyWindowBounded(t *testing.T) {
	c := NewCollector(nil)

	// Overflow the window with slow samples, then refill with fast ones;
	// the average must reflect only the newest windowful.
	for i := 0; i < 100; i++ {
		id := c.StartRequest("m1", KindCompletion)
		c.EndRequest(id, true, time.Second, nil)
	}
	for i := 0; i < latencyWindowSize; i++ {
		id := c.StartRequest("m1", KindCompletion)
		c.EndRequest(id, true, 10*time.Millisecond, nil)
	}

	avg, ok := c.AvgLatencyMs("m1")
	require.True(t, ok)
	assert.InDelta(t, 10, avg, 0.5)
}

func TestCollectorP95(t *testing.T) {
	c := NewCollector(nil)

	for i := 1; i <= 100; i++ {
		id := c.StartRequest("m1", KindCompletion)
		c.EndRequest(id, true, time.Duration(i)*time.Millisecond, nil)
	}

	s := c.GetMetrics("m1", 0)
	assert.Equal(t, 95*time.Millisecond, s.P95Latency)
}

func TestCollectorCacheHitRate(t *testing.T) {
	c := NewCollector(nil)

	c.RecordCacheHit("m1", "local")
	c.RecordCacheHit("m1", "shared")
	c.RecordCacheMiss("m1", "local")
	c.RecordCacheMiss("m1", "local")

	s := c.GetMetrics("m1", 0)
	assert.InDelta(t, 0.5, s.CacheHitRate, 0.001)
}

func TestCollectorUnseenModelSummaryIsZero(t *testing.T) {
	c := NewCollector(nil)
	s := c.GetMetrics("ghost", time.Minute)
	assert.Equal(t, "ghost", s.Model)
	assert.Zero(t, s.TotalRequests)
	assert.Zero(t, s.SuccessRate)
}

func TestCollectorConcurrentRecording(t *testing.T) {
	c := NewCollector(nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			model := fmt.Sprintf("m%d", g%2)
			for i := 0; i < 200; i++ {
				id := c.StartRequest(model, KindCompletion)
				c.EndRequest(id, i%10 != 0, time.Millisecond, nil)
			}
		}(g)
	}
	wg.Wait()

	total := c.GetMetrics("m0", 0).TotalRequests + c.GetMetrics("m1", 0).TotalRequests
	assert.Equal(t, int64(1600), total)
	assert.Equal(t, 0, c.InflightCount())
}

func TestCollectorAvgLatencyNoSamples(t *testing.T) {
	c := NewCollector(nil)
	_, ok := c.AvgLatencyMs("m1")
	assert.False(t, ok)

	// A started but unfinished request contributes no latency sample.
	c.StartRequest("m1", KindCompletion)
	_, ok = c.AvgLatencyMs("m1")
	assert.False(t, ok)
}
