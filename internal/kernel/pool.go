// Package kernel manages the pool of live backend engines: lazy
// construction on first use, reuse thereafter, explicit disposal.
package kernel

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentmux/agentmux/internal/observability"
	"github.com/agentmux/agentmux/internal/registry"
	"github.com/agentmux/agentmux/pkg/backend"
)

// Factory constructs an engine for a model. Called at most once per model
// per pool generation; a failed construction is retried on the next
// Acquire.
type Factory func(ctx context.Context, model registry.Model) (backend.Engine, error)

// entry carries the once-guarded construction state for one model. The
// per-entry once means concurrent first accesses for different models do
// not serialize behind each other.
type entry struct {
	once   sync.Once
	engine backend.Engine
	err    error
}

// Pool is a get-or-create cache of engines keyed by model id. Safe for
// concurrent use.
type Pool struct {
	mu      sync.Mutex
	entries map[string]*entry
	factory Factory
	logger  *observability.Logger
	closed  bool
}

// NewPool creates an engine pool.
func NewPool(factory Factory, logger *observability.Logger) *Pool {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Pool{
		entries: make(map[string]*entry),
		factory: factory,
		logger:  logger,
	}
}

// Acquire returns the live engine for model, constructing it on first
// use. Exactly one construction runs per model even under concurrent
// access; other callers block until it settles. A construction failure is
// returned to every waiter and the slot is cleared so a later Acquire can
// retry.
func (p *Pool) Acquire(ctx context.Context, model registry.Model) (backend.Engine, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("kernel: pool is closed")
	}
	e, ok := p.entries[model.ID]
	if !ok {
		e = &entry{}
		p.entries[model.ID] = e
	}
	p.mu.Unlock()

	e.once.Do(func() {
		e.engine, e.err = p.factory(ctx, model)
		if e.err != nil {
			p.logger.Warn("engine construction failed", "model", model.ID, "error", e.err)
		} else {
			p.logger.Debug("engine constructed", "model", model.ID)
		}
	})

	if e.err != nil {
		// Clear the failed slot so the next Acquire retries, but only
		// if it still holds this entry.
		p.mu.Lock()
		if cur, ok := p.entries[model.ID]; ok && cur == e {
			delete(p.entries, model.ID)
		}
		p.mu.Unlock()
		return nil, e.err
	}
	return e.engine, nil
}

// Dispose shuts down and removes the engine for modelID, if present.
func (p *Pool) Dispose(modelID string) error {
	p.mu.Lock()
	e, ok := p.entries[modelID]
	if ok {
		delete(p.entries, modelID)
	}
	p.mu.Unlock()

	if !ok || e.engine == nil {
		return nil
	}
	if closer, ok := e.engine.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// Len returns the number of pooled entries.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Close disposes every pooled engine and rejects further Acquires. The
// first close error is returned.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	entries := p.entries
	p.entries = make(map[string]*entry)
	p.mu.Unlock()

	var firstErr error
	for id, e := range entries {
		if e.engine == nil {
			continue
		}
		if closer, ok := e.engine.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("kernel: closing engine %s: %w", id, err)
			}
		}
	}
	return firstErr
}
