package strategy

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCandidate string

func (c testCandidate) Key() string { return string(c) }

func candidates(keys ...string) []Candidate {
	out := make([]Candidate, len(keys))
	for i, k := range keys {
		out[i] = testCandidate(k)
	}
	return out
}

func TestRoundRobinFairness(t *testing.T) {
	rr := NewRoundRobin()
	cands := candidates("a", "b", "c")

	var got []string
	for i := 0; i < 6; i++ {
		c, err := rr.Pick(cands, Criteria{})
		require.NoError(t, err)
		got = append(got, c.Key())
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, got)
}

func TestRoundRobinConcurrentDistribution(t *testing.T) {
	rr := NewRoundRobin()
	cands := candidates("a", "b", "c")

	var mu sync.Mutex
	counts := make(map[string]int)
	var wg sync.WaitGroup
	for g := 0; g < 6; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c, err := rr.Pick(cands, Criteria{})
				require.NoError(t, err)
				mu.Lock()
				counts[c.Key()]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// 600 picks over 3 candidates: the atomic counter guarantees an
	// exactly even split regardless of interleaving.
	assert.Equal(t, 200, counts["a"])
	assert.Equal(t, 200, counts["b"])
	assert.Equal(t, 200, counts["c"])
}

func TestRandomCoversAllCandidates(t *testing.T) {
	r := NewRandom()
	cands := candidates("a", "b", "c")

	counts := make(map[string]int)
	for i := 0; i < 300; i++ {
		c, err := r.Pick(cands, Criteria{})
		require.NoError(t, err)
		counts[c.Key()]++
	}
	assert.Len(t, counts, 3)
	for key, n := range counts {
		assert.Greater(t, n, 0, key)
	}
}

func TestWeightedRoundRobinProportionality(t *testing.T) {
	wrr := NewWeightedRoundRobin()
	wrr.SetWeight("a", 2)
	wrr.SetWeight("b", 1)
	wrr.SetWeight("c", 1)
	cands := candidates("a", "b", "c")

	var got []string
	for i := 0; i < 12; i++ {
		c, err := wrr.Pick(cands, Criteria{})
		require.NoError(t, err)
		got = append(got, c.Key())
	}

	// Any window of 4 consecutive picks holds the weight-2 candidate
	// exactly twice.
	for start := 0; start+4 <= len(got); start++ {
		n := 0
		for _, k := range got[start : start+4] {
			if k == "a" {
				n++
			}
		}
		assert.Equal(t, 2, n, "window starting at %d: %v", start, got[start:start+4])
	}
}

func TestWeightedRoundRobinEqualWeightsCycle(t *testing.T) {
	wrr := NewWeightedRoundRobin()
	cands := candidates("a", "b", "c")

	// With equal weights the smooth algorithm degenerates to a fair
	// cycle with no adjacent repeats.
	var got []string
	for i := 0; i < 6; i++ {
		c, err := wrr.Pick(cands, Criteria{})
		require.NoError(t, err)
		got = append(got, c.Key())
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, got)
}

func TestWeightedRoundRobinDefaultWeightIsOne(t *testing.T) {
	wrr := NewWeightedRoundRobin()
	cands := candidates("a", "b")

	counts := make(map[string]int)
	for i := 0; i < 10; i++ {
		c, err := wrr.Pick(cands, Criteria{})
		require.NoError(t, err)
		counts[c.Key()]++
	}
	assert.Equal(t, 5, counts["a"])
	assert.Equal(t, 5, counts["b"])
}

type fakePerf struct {
	unhealthy map[string]bool
	latency   map[string]float64
}

func (f fakePerf) Healthy(key string) bool {
	return !f.unhealthy[key]
}

func (f fakePerf) AvgLatencyMs(key string) (float64, bool) {
	ms, ok := f.latency[key]
	return ms, ok
}

func TestPerformanceBasedPrefersLowestLatency(t *testing.T) {
	p := NewPerformanceBased()
	cands := candidates("slow", "fast", "medium")
	criteria := Criteria{Perf: fakePerf{
		latency: map[string]float64{"slow": 900, "fast": 40, "medium": 200},
	}}

	for i := 0; i < 10; i++ {
		c, err := p.Pick(cands, criteria)
		require.NoError(t, err)
		assert.Equal(t, "fast", c.Key())
	}
}

func TestPerformanceBasedAvoidsUnhealthy(t *testing.T) {
	p := NewPerformanceBased()
	cands := candidates("sick", "ok")
	criteria := Criteria{Perf: fakePerf{
		unhealthy: map[string]bool{"sick": true},
		latency:   map[string]float64{"sick": 1, "ok": 500},
	}}

	for i := 0; i < 10; i++ {
		c, err := p.Pick(cands, criteria)
		require.NoError(t, err)
		assert.Equal(t, "ok", c.Key())
	}
}

func TestPerformanceBasedNewBackendGetsTraffic(t *testing.T) {
	p := NewPerformanceBased()
	cands := candidates("warm", "cold")
	criteria := Criteria{Perf: fakePerf{
		latency: map[string]float64{"warm": 50},
	}}

	// The candidate without samples scores zero and wins over any
	// measured latency.
	c, err := p.Pick(cands, criteria)
	require.NoError(t, err)
	assert.Equal(t, "cold", c.Key())
}

func TestPerformanceBasedTiesBreakRandomly(t *testing.T) {
	p := NewPerformanceBased()
	cands := candidates("a", "b", "c")

	counts := make(map[string]int)
	for i := 0; i < 300; i++ {
		c, err := p.Pick(cands, Criteria{})
		require.NoError(t, err)
		counts[c.Key()]++
	}
	assert.Len(t, counts, 3)
}

func TestEmptyCandidates(t *testing.T) {
	pickers := []Picker{
		NewRoundRobin(),
		NewRandom(),
		NewWeightedRoundRobin(),
		NewPerformanceBased(),
	}
	for _, p := range pickers {
		_, err := p.Pick(nil, Criteria{})
		assert.ErrorIs(t, err, ErrNoCandidates, p.Name())
	}
}

func TestRegistryBuiltins(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, []string{
		NamePerformance,
		NameRandom,
		NameRoundRobin,
		NameWeightedRoundRobin,
	}, r.Names())

	for _, name := range r.Names() {
		p, err := r.New(name)
		require.NoError(t, err)
		assert.Equal(t, name, p.Name())
	}
}

func TestRegistryUnknownStrategy(t *testing.T) {
	r := NewRegistry()
	_, err := r.New("nope")
	assert.Error(t, err)
}

func TestRegistryCustomStrategy(t *testing.T) {
	r := NewRegistry()
	r.Register("first", func() Picker { return firstPicker{} })

	p, err := r.New("first")
	require.NoError(t, err)

	c, err := p.Pick(candidates("x", "y"), Criteria{})
	require.NoError(t, err)
	assert.Equal(t, "x", c.Key())
}

type firstPicker struct{}

func (firstPicker) Name() string { return "first" }

func (firstPicker) Pick(cands []Candidate, _ Criteria) (Candidate, error) {
	if len(cands) == 0 {
		return nil, ErrNoCandidates
	}
	return cands[0], nil
}
