package invoker

import (
	"context"
	"fmt"
	"sync"
)

// Registry maps stage names to invokers, with an optional fallback for
// stages without a dedicated entry. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	byStage  map[string]Invoker
	fallback Invoker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byStage: make(map[string]Invoker)}
}

// Register binds an invoker to a stage name, replacing any previous
// binding.
func (r *Registry) Register(stage string, inv Invoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byStage[stage] = inv
}

// SetFallback sets the invoker used for stages with no dedicated entry.
func (r *Registry) SetFallback(inv Invoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = inv
}

// Resolve returns the invoker for a stage.
func (r *Registry) Resolve(stage string) (Invoker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if inv, ok := r.byStage[stage]; ok {
		return inv, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoInvoker, stage)
}

// Invoke resolves and dispatches in one step, so the registry itself
// satisfies Invoker.
func (r *Registry) Invoke(ctx context.Context, req *Request) (*Result, error) {
	inv, err := r.Resolve(req.Stage)
	if err != nil {
		return nil, err
	}
	return inv.Invoke(ctx, req)
}
