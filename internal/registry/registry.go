// Package registry holds the catalog of configured backend models and the
// capability filtering the router selects over.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Model describes one configured backend.
type Model struct {
	// ID is the stable identifier used in requests, metrics, and cache
	// keys.
	ID string `yaml:"id" json:"id"`

	// Capabilities this backend provides (e.g. "vision", "tools").
	Capabilities []string `yaml:"capabilities" json:"capabilities"`

	// Weight biases weighted selection. Zero means default weight 1.
	Weight int `yaml:"weight" json:"weight"`

	// CacheTTL overrides the shared-tier cache TTL for responses from
	// this backend. Zero means use the cache default.
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`

	// Metadata carries free-form per-model settings passed through to
	// the engine factory.
	Metadata map[string]string `yaml:"metadata" json:"metadata"`
}

// HasCapabilities reports whether the model provides every capability in
// required.
func (m Model) HasCapabilities(required []string) bool {
	for _, want := range required {
		found := false
		for _, have := range m.Capabilities {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Snapshot is a read-only view of the model catalog.
type Snapshot interface {
	// Models returns all registered models in a stable order.
	Models() []Model
	// Model returns the model with the given id.
	Model(id string) (Model, bool)
}

// Static is a fixed in-memory catalog, safe for concurrent reads and
// replaceable wholesale via Replace for configuration reloads.
type Static struct {
	mu     sync.RWMutex
	byID   map[string]Model
	sorted []Model
}

// NewStatic builds a catalog from models. Duplicate ids are rejected.
func NewStatic(models []Model) (*Static, error) {
	s := &Static{}
	if err := s.Replace(models); err != nil {
		return nil, err
	}
	return s, nil
}

// Replace swaps the whole catalog atomically.
func (s *Static) Replace(models []Model) error {
	byID := make(map[string]Model, len(models))
	for _, m := range models {
		if m.ID == "" {
			return fmt.Errorf("registry: model with empty id")
		}
		if _, dup := byID[m.ID]; dup {
			return fmt.Errorf("registry: duplicate model id %q", m.ID)
		}
		byID[m.ID] = m
	}

	sorted := make([]Model, len(models))
	copy(sorted, models)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	s.mu.Lock()
	s.byID = byID
	s.sorted = sorted
	s.mu.Unlock()
	return nil
}

// Models returns all models sorted by id.
func (s *Static) Models() []Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Model, len(s.sorted))
	copy(out, s.sorted)
	return out
}

// Model returns the model with the given id.
func (s *Static) Model(id string) (Model, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	return m, ok
}

// FilterByCapabilities returns the models in snap that provide every
// required capability. With no requirements all models pass.
func FilterByCapabilities(snap Snapshot, required []string) []Model {
	models := snap.Models()
	if len(required) == 0 {
		return models
	}
	out := make([]Model, 0, len(models))
	for _, m := range models {
		if m.HasCapabilities(required) {
			out = append(out, m)
		}
	}
	return out
}
