package orchestration

import (
	"context"
	"fmt"
	"sync"
)

// Orchestrator is a user orchestration function. It is replayed from the
// start on every activation and must be deterministic.
type Orchestrator func(ctx *Context) (any, error)

// Activity is a single non-deterministic unit of work. Activities run on a
// worker, outside the replay engine, and may do arbitrary I/O.
type Activity func(ctx context.Context, input any) (any, error)

// Registry maps names to orchestrator and activity functions.
// It is safe for concurrent use.
type Registry struct {
	mu            sync.RWMutex
	orchestrators map[string]Orchestrator
	activities    map[string]Activity
}

func NewRegistry() *Registry {
	return &Registry{
		orchestrators: make(map[string]Orchestrator),
		activities:    make(map[string]Activity),
	}
}

func (r *Registry) AddOrchestrator(name string, fn Orchestrator) error {
	if name == "" {
		return fmt.Errorf("orchestrator name is required")
	}
	if fn == nil {
		return fmt.Errorf("orchestrator %q: function is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orchestrators[name]; exists {
		return fmt.Errorf("orchestrator %q already registered", name)
	}
	r.orchestrators[name] = fn
	return nil
}

func (r *Registry) AddActivity(name string, fn Activity) error {
	if name == "" {
		return fmt.Errorf("activity name is required")
	}
	if fn == nil {
		return fmt.Errorf("activity %q: function is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.activities[name]; exists {
		return fmt.Errorf("activity %q already registered", name)
	}
	r.activities[name] = fn
	return nil
}

// MustAddOrchestrator is AddOrchestrator that panics on error.
// Intended for registration at program startup.
func (r *Registry) MustAddOrchestrator(name string, fn Orchestrator) {
	if err := r.AddOrchestrator(name, fn); err != nil {
		panic(err)
	}
}

// MustAddActivity is AddActivity that panics on error.
func (r *Registry) MustAddActivity(name string, fn Activity) {
	if err := r.AddActivity(name, fn); err != nil {
		panic(err)
	}
}

func (r *Registry) Orchestrator(name string) (Orchestrator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.orchestrators[name]
	if !ok {
		return nil, fmt.Errorf("orchestrator %q not found", name)
	}
	return fn, nil
}

func (r *Registry) Activity(name string) (Activity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.activities[name]
	if !ok {
		return nil, fmt.Errorf("activity %q not found", name)
	}
	return fn, nil
}
