// Package strategy implements the candidate-selection policies used by the
// router. Each Picker chooses one backend from an ordered candidate list;
// all pickers are safe for concurrent use.
package strategy

import "errors"

// ErrNoCandidates is returned when selection is attempted over an empty
// candidate list.
var ErrNoCandidates = errors.New("strategy: no candidates available")

// Built-in strategy names, usable with the Registry.
const (
	NameRoundRobin         = "round-robin"
	NameRandom             = "random"
	NameWeightedRoundRobin = "weighted-round-robin"
	NamePerformance        = "performance"
)

// Candidate is one selectable backend. Key must be stable and unique
// within a candidate list.
type Candidate interface {
	Key() string
}

// PerfReader exposes the live performance signals performance-aware
// strategies consume. The metrics collector satisfies it.
type PerfReader interface {
	// Healthy reports whether the backend is currently usable. Backends
	// with no recorded signal count as healthy.
	Healthy(key string) bool
	// AvgLatencyMs returns the recent average response time in
	// milliseconds; ok is false when no samples exist.
	AvgLatencyMs(key string) (float64, bool)
}

// Criteria carries per-call selection context. A zero Criteria is valid
// for strategies that ignore it.
type Criteria struct {
	Perf PerfReader
}

// Picker selects one candidate from a non-empty list. Implementations
// must not mutate candidates and must return ErrNoCandidates on an empty
// list.
type Picker interface {
	Name() string
	Pick(candidates []Candidate, criteria Criteria) (Candidate, error)
}
