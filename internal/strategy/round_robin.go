package strategy

import "sync/atomic"

// RoundRobin cycles through candidates in order. A single atomic counter
// keeps selection lock-free; concurrent calls each get a distinct slot.
type RoundRobin struct {
	counter atomic.Uint64
}

// NewRoundRobin creates a round-robin picker.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// Name returns the strategy name.
func (r *RoundRobin) Name() string { return NameRoundRobin }

// Pick returns the next candidate in rotation.
func (r *RoundRobin) Pick(candidates []Candidate, _ Criteria) (Candidate, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	next := r.counter.Add(1) - 1
	return candidates[next%uint64(len(candidates))], nil
}
