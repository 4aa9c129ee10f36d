// Package metrics provides a caller-owned registry of named measurement
// series. There is deliberately no package-level singleton: each run owns its
// registry, and concurrent tasks contribute to it through the same channels
// that carry their results.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// Sample is one recorded measurement.
type Sample struct {
	Value float64   `json:"value"`
	At    time.Time `json:"at"`
}

// Registry accumulates named series of samples. It is safe for concurrent
// writers.
type Registry struct {
	mu     sync.Mutex
	series map[string][]Sample
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{series: make(map[string][]Sample)}
}

// Record appends a sample to the named series.
func (r *Registry) Record(name string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.series[name] = append(r.series[name], Sample{Value: value, At: time.Now()})
}

// Series returns a copy of the named series, in recording order.
func (r *Registry) Series(name string) []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sample, len(r.series[name]))
	copy(out, r.series[name])
	return out
}

// Names returns all series names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.series))
	for name := range r.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns all series keyed by name. The result is detached from the
// registry.
func (r *Registry) Snapshot() map[string][]Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]Sample, len(r.series))
	for name, samples := range r.series {
		s := make([]Sample, len(samples))
		copy(s, samples)
		out[name] = s
	}
	return out
}
