package strategy

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// PerformanceBased scores candidates by observed performance and picks the
// best. Unhealthy candidates score +Inf; healthy candidates score their
// recent average latency, or zero when no samples exist yet so that new
// backends get traffic immediately. Ties are broken uniformly at random to
// avoid herding onto the first listed candidate.
type PerformanceBased struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewPerformanceBased creates a performance-based picker.
func NewPerformanceBased() *PerformanceBased {
	return &PerformanceBased{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Name returns the strategy name.
func (p *PerformanceBased) Name() string { return NamePerformance }

// Pick returns the lowest-scoring candidate. Without a PerfReader in the
// criteria all candidates score equally and the pick is random.
func (p *PerformanceBased) Pick(candidates []Candidate, criteria Criteria) (Candidate, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	bestScore := math.Inf(1)
	var best []Candidate
	for _, c := range candidates {
		score := p.score(c.Key(), criteria.Perf)
		switch {
		case score < bestScore:
			bestScore = score
			best = best[:0]
			best = append(best, c)
		case score == bestScore:
			best = append(best, c)
		}
	}

	if len(best) == 1 {
		return best[0], nil
	}
	p.mu.Lock()
	idx := p.rng.Intn(len(best))
	p.mu.Unlock()
	return best[idx], nil
}

func (p *PerformanceBased) score(key string, perf PerfReader) float64 {
	if perf == nil {
		return 0
	}
	if !perf.Healthy(key) {
		return math.Inf(1)
	}
	if avg, ok := perf.AvgLatencyMs(key); ok {
		return avg
	}
	return 0
}
