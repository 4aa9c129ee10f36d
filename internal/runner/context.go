package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/vk/memogrid/internal/cache"
	"github.com/vk/memogrid/internal/cachekey"
	"github.com/vk/memogrid/internal/ctxlog"
	"github.com/vk/memogrid/internal/metrics"
	"github.com/vk/memogrid/internal/pool"
)

// checkpointTable holds sub-task checkpoints. It lives in the same cache file
// as the result table and can be dropped independently to reclaim space.
const checkpointTable = "checkpoints"

// Context is handed to the user function for each task. It exposes the task's
// identity, its attributed output stream, a metric recorder, and the
// checkpoint capability for sub-task-level memoization.
type Context struct {
	ctx       context.Context
	key       cachekey.Key
	registry  *metrics.Registry
	cachePath string

	mu sync.Mutex
	ck cache.Provider
}

// Context returns the underlying context for cancellation and deadlines.
func (c *Context) Context() context.Context {
	return c.ctx
}

// Key returns the task's content-addressable cache key.
func (c *Context) Key() cachekey.Key {
	return c.key
}

// Logger returns the task's logger.
func (c *Context) Logger() *slog.Logger {
	return ctxlog.FromContext(c.ctx)
}

// Output returns the task's attributed output stream.
func (c *Context) Output() io.Writer {
	return pool.Output(c.ctx)
}

// Record adds a sample to the named metric series of this task's result.
func (c *Context) Record(name string, value float64) {
	c.registry.Record(name, value)
}

// checkpoints returns the checkpoint store, opening it on first use. Each
// process opens its own handle on the shared cache file.
func (c *Context) checkpoints() (cache.Provider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ck != nil {
		return c.ck, nil
	}
	p, err := cache.Open(c.cachePath, checkpointTable)
	if err != nil {
		return nil, err
	}
	c.ck = p
	return c.ck, nil
}

// checkpointKey scopes a checkpoint to this task's key plus the checkpoint's
// own name and arguments.
func (c *Context) checkpointKey(name string, args []any) (cachekey.Key, error) {
	return cachekey.Derive(c.key.String()+"/"+name, args...)
}

// Checkpoint memoizes an inner computation. If a value for (task key, name,
// args) is already stored, fn is not called and the stored value is returned;
// otherwise fn runs and its value is persisted before returning. Values
// round-trip through JSON like task results.
func (c *Context) Checkpoint(name string, fn func() (any, error), args ...any) (any, error) {
	store, err := c.checkpoints()
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	key, err := c.checkpointKey(name, args)
	if err != nil {
		return nil, err
	}

	if raw, err := store.Get(key); err == nil {
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("decode checkpoint %s: %w", name, err)
		}
		return value, nil
	} else if !errors.Is(err, cache.ErrKeyMiss) {
		return nil, err
	}

	value, err := fn()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint %s: %w", name, err)
	}
	if err := store.Set(key, raw); err != nil {
		return nil, err
	}
	return value, nil
}

// CheckpointExists reports whether a checkpoint value is stored for (task
// key, name, args).
func (c *Context) CheckpointExists(name string, args ...any) (bool, error) {
	store, err := c.checkpoints()
	if err != nil {
		return false, err
	}
	key, err := c.checkpointKey(name, args)
	if err != nil {
		return false, err
	}
	return store.Contains(key), nil
}

// close releases the lazily opened checkpoint handle, if any.
func (c *Context) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if closer, ok := c.ck.(io.Closer); ok {
		closer.Close()
	}
	c.ck = nil
}

// RemoveCheckpoints drops the checkpoint table, reclaiming its space. The
// result table is unaffected.
func (c *Context) RemoveCheckpoints() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if closer, ok := c.ck.(io.Closer); ok {
		closer.Close()
	}
	c.ck = nil

	p, err := cache.Open(c.cachePath, checkpointTable)
	if err != nil {
		return err
	}
	defer p.Close()
	return p.Drop()
}
