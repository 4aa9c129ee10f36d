// Package cache provides the content-addressable stores used to memoize
// experiment results: an in-memory provider for single-process runs and tests,
// and a SQLite-backed provider safe for concurrent use from multiple workers.
package cache

import (
	"errors"
	"os"
	"sync"
)

// ErrKeyMiss is returned by Get when a key is absent. It is a local, recoverable
// condition: callers treat it as "compute and populate".
var ErrKeyMiss = errors.New("key not in cache")

// EnvPath is the environment variable overriding the persistent cache location.
const EnvPath = "MEMOGRID_CACHE"

// DefaultFileName is the cache file used when neither an explicit path nor the
// environment override is present.
const DefaultFileName = "memogrid.sqlite3"

// ResolvePath resolves the persistent cache location: explicit argument first,
// then the MEMOGRID_CACHE environment variable, then DefaultFileName in the
// working directory.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(EnvPath); env != "" {
		return env
	}
	return DefaultFileName
}

// Provider is the capability interface all cache backends implement. Values
// are opaque serialized bytes; keys are content hashes (see cachekey).
type Provider interface {
	// Get returns the value stored under key, or ErrKeyMiss.
	Get(key []byte) ([]byte, error)
	// Set stores value under key, overwriting any previous value.
	Set(key, value []byte) error
	// Contains reports whether key is present.
	Contains(key []byte) bool
}

// MemoryProvider is a map-backed Provider. It is not shared across processes;
// use it for single-process runs and tests.
type MemoryProvider struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemory creates an empty in-memory provider.
func NewMemory() *MemoryProvider {
	return &MemoryProvider{items: make(map[string][]byte)}
}

func (p *MemoryProvider) Get(key []byte) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.items[string(key)]
	if !ok {
		return nil, ErrKeyMiss
	}
	return v, nil
}

func (p *MemoryProvider) Set(key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items[string(key)] = value
	return nil
}

func (p *MemoryProvider) Contains(key []byte) bool {
	_, err := p.Get(key)
	return err == nil
}
