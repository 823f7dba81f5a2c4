package strategy

import "sync"

// WeightedRoundRobin implements smooth weighted round-robin: every pick,
// each candidate's credit grows by its weight, the highest credit wins
// (ties break by list order), and the winner's credit is reduced by the
// total weight. Over any window of totalWeight picks each candidate is
// chosen in proportion to its weight, and no candidate is picked twice in
// a row unless its weight is at least the sum of the others.
type WeightedRoundRobin struct {
	mu      sync.Mutex
	weights map[string]int
	credits map[string]int
}

// NewWeightedRoundRobin creates a weighted round-robin picker. Candidates
// without an explicit weight default to 1.
func NewWeightedRoundRobin() *WeightedRoundRobin {
	return &WeightedRoundRobin{
		weights: make(map[string]int),
		credits: make(map[string]int),
	}
}

// Name returns the strategy name.
func (w *WeightedRoundRobin) Name() string { return NameWeightedRoundRobin }

// SetWeight assigns the weight for a candidate key. Non-positive weights
// are clamped to 1.
func (w *WeightedRoundRobin) SetWeight(key string, weight int) {
	if weight <= 0 {
		weight = 1
	}
	w.mu.Lock()
	w.weights[key] = weight
	w.mu.Unlock()
}

func (w *WeightedRoundRobin) weightOf(key string) int {
	if wt, ok := w.weights[key]; ok {
		return wt
	}
	return 1
}

// Pick returns the candidate with the highest accumulated credit.
func (w *WeightedRoundRobin) Pick(candidates []Candidate, _ Criteria) (Candidate, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	total := 0
	var best Candidate
	bestCredit := 0
	for _, c := range candidates {
		wt := w.weightOf(c.Key())
		total += wt
		credit := w.credits[c.Key()] + wt
		w.credits[c.Key()] = credit
		if best == nil || credit > bestCredit {
			best = c
			bestCredit = credit
		}
	}

	w.credits[best.Key()] -= total
	return best, nil
}
