package strategy

import (
	"math/rand"
	"sync"
	"time"
)

// Random selects a candidate uniformly at random. Each picker owns its
// rand source, guarded by a mutex since rand.Rand is not concurrency-safe.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom creates a random picker seeded from the clock.
func NewRandom() *Random {
	return &Random{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Name returns the strategy name.
func (r *Random) Name() string { return NameRandom }

// Pick returns a uniformly random candidate.
func (r *Random) Pick(candidates []Candidate, _ Criteria) (Candidate, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	r.mu.Lock()
	idx := r.rng.Intn(len(candidates))
	r.mu.Unlock()
	return candidates[idx], nil
}
