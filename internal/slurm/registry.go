package slurm

import (
	"context"
	"fmt"
	"sync"
)

// WorkerFunc is a function executable on a worker node. Closures cannot cross
// process boundaries, so remote work is dispatched by registered name.
type WorkerFunc func(ctx context.Context, args map[string]any) error

// Registry maps function names to worker functions. The same registrations
// must exist in the submitting process and the worker binary.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]WorkerFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]WorkerFunc)}
}

// Register binds a name to a worker function. Re-registering a name is an
// error: silently replacing a function would silently change what remote
// payloads execute.
func (r *Registry) Register(name string, fn WorkerFunc) error {
	if name == "" {
		return fmt.Errorf("function name must not be empty")
	}
	if fn == nil {
		return fmt.Errorf("function %q must not be nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.funcs[name]; ok {
		return fmt.Errorf("function %q already registered", name)
	}
	r.funcs[name] = fn
	return nil
}

// DefaultRegistry backs the worker entrypoint. Experiment packages register
// their functions here, typically from init, so that both the submitting
// process and the worker binary share one name space.
var DefaultRegistry = NewRegistry()

// Register binds a name to a worker function in the DefaultRegistry.
func Register(name string, fn WorkerFunc) error {
	return DefaultRegistry.Register(name, fn)
}

// Lookup returns the worker function registered under name.
func (r *Registry) Lookup(name string) (WorkerFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	if !ok {
		return nil, fmt.Errorf("function %q not registered", name)
	}
	return fn, nil
}
