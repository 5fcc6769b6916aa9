// Package taskregistry implements the callable-persistence scheme from
// spec §9: Schedules and Jobs carry an opaque task_id string; the actual
// callable is resolved from a process-global registry, the same way on
// both the scheduler process (to validate task_id at schedule-creation
// time) and the worker process (to run it). Cross-version/cross-deployment
// consistency of task_id -> Func bindings is the caller's responsibility.
package taskregistry

import (
	"context"
	"fmt"
	"sync"
)

// Func is the signature every registered task must satisfy. It receives
// the job's positional and keyword arguments and returns an arbitrary
// value or an error — mirroring spec §4.3 step 4 ("On return value v" /
// "On exception e").
type Func func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

// Registry resolves task_id strings to Funcs. The zero value is usable.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]Func
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{tasks: make(map[string]Func)}
}

// Register binds id to fn. Registering the same id twice overwrites the
// previous binding — tasks are registered lazily on first use (spec §3),
// so last registration wins rather than erroring.
func (r *Registry) Register(id string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tasks == nil {
		r.tasks = make(map[string]Func)
	}
	r.tasks[id] = fn
}

// Lookup resolves id to its Func. ok is false if id was never registered
// on this process — the caller (Scheduler) must terminalize the owning
// schedule per spec §7's task-lookup-failure rule.
func (r *Registry) Lookup(id string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.tasks[id]
	return fn, ok
}

// MustLookup is a convenience for callers that already know the id is
// registered.
func (r *Registry) MustLookup(id string) Func {
	fn, ok := r.Lookup(id)
	if !ok {
		panic(fmt.Sprintf("taskregistry: task %q not registered", id))
	}
	return fn
}
