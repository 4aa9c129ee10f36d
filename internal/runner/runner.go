// Package runner reconciles a configuration set against the persistent cache,
// schedules the miss-set on the worker pool, and reassembles ordered results.
package runner

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/vk/memogrid/internal/cache"
	"github.com/vk/memogrid/internal/cachekey"
	"github.com/vk/memogrid/internal/ctxlog"
	"github.com/vk/memogrid/internal/matrix"
	"github.com/vk/memogrid/internal/metrics"
	"github.com/vk/memogrid/internal/notify"
	"github.com/vk/memogrid/internal/pool"
)

// TaskFunc is the user-supplied experiment function, called once per
// configuration that is not already cached.
type TaskFunc func(tc *Context, config *matrix.Configuration) (any, error)

// Options controls a single Run or RunAll invocation.
type Options struct {
	// DryRun logs the planned configurations and returns without side effects.
	DryRun bool
	// ForceRun recomputes every configuration regardless of cache state.
	ForceRun bool
	// ForceCache asserts the run is fully servable from cache; any
	// configuration that would need computing fails with CacheMissError.
	ForceCache bool
	// CachePath overrides the persistent cache location (see cache.ResolvePath).
	CachePath string
}

// Runner executes configuration matrices for one user function.
type Runner struct {
	fn       TaskFunc
	fnID     string
	poolOpts []pool.Option
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers sets the worker pool size.
func WithWorkers(n int) Option {
	return func(r *Runner) { r.poolOpts = append(r.poolOpts, pool.WithWorkers(n)) }
}

// WithMaxTasksPerWorker bounds each pool worker's lifetime.
func WithMaxTasksPerWorker(n int) Option {
	return func(r *Runner) { r.poolOpts = append(r.poolOpts, pool.WithMaxTasksPerWorker(n)) }
}

// WithNotifier installs the notification capability on the pool.
func WithNotifier(p notify.Provider) Option {
	return func(r *Runner) { r.poolOpts = append(r.poolOpts, pool.WithNotifier(p)) }
}

// WithOutput sets the destination stream for attributed task output.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.poolOpts = append(r.poolOpts, pool.WithOutput(w)) }
}

// New creates a Runner for the given user function.
func New(fn TaskFunc, opts ...Option) *Runner {
	r := &Runner{fn: fn, fnID: cachekey.FuncID(fn)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run generates the matrix's configurations and executes them, returning
// results in configuration order. Previously computed configurations are
// served from the cache. Under DryRun, no results are returned and no user
// code executes.
func (r *Runner) Run(ctx context.Context, m *matrix.Matrix, opts Options) ([]Result, error) {
	set, err := matrix.Generate(m)
	if err != nil {
		return nil, err
	}
	return r.runSet(ctx, set, opts)
}

// keyFor derives the content-addressable key of one configuration: the user
// function's identity applied to the configuration's parameters, settings,
// and any injected dependency results.
func (r *Runner) keyFor(config *matrix.Configuration) (cachekey.Key, error) {
	return cachekey.Derive(r.fnID, config.Params(), config.Settings, config.Dependencies)
}

// runSet is the shared execution path for Run and RunAll: a set is reconciled
// against the cache, the miss-set runs on the pool, and results merge back in
// input order through a single cache-read path.
func (r *Runner) runSet(ctx context.Context, set *matrix.ConfigurationSet, opts Options) ([]Result, error) {
	logger := ctxlog.FromContext(ctx)

	if opts.DryRun {
		logger.Info("Dry run: planned configurations.", "count", set.Len())
		for i, config := range set.Configurations {
			logger.Info("Planned configuration.", "index", i, "params", config.Params())
		}
		return nil, nil
	}

	cachePath := cache.ResolvePath(opts.CachePath)
	store, err := cache.Open(cachePath, cache.DefaultTable)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	keys := make([]cachekey.Key, set.Len())
	ran := make([]bool, set.Len())

	p := pool.New(r.poolOpts...)
	for i, config := range set.Configurations {
		key, err := r.keyFor(config)
		if err != nil {
			return nil, err
		}
		keys[i] = key

		if store.Contains(key) && !opts.ForceRun {
			continue
		}
		if opts.ForceCache {
			return nil, &CacheMissError{Config: config}
		}
		ran[i] = true
		if err := p.Add(r.wrap(store, key, config, cachePath), pool.PriorityHigh); err != nil {
			return nil, err
		}
	}

	if _, err := p.Run(ctx); err != nil {
		return nil, err
	}

	// Re-read every result from the cache so fresh and pre-existing results
	// merge through one code path, in original configuration order.
	results := make([]Result, set.Len())
	misses := 0
	for i, config := range set.Configurations {
		raw, err := store.Get(keys[i])
		if err != nil {
			return nil, fmt.Errorf("result for configuration %d missing after run: %w", i, err)
		}
		res, err := decodeResult(raw, config, !ran[i])
		if err != nil {
			return nil, err
		}
		results[i] = res
		if ran[i] {
			misses++
		}
	}

	hits := set.Len() - misses
	ratio := 0.0
	if set.Len() > 0 {
		ratio = float64(hits) / float64(set.Len())
	}
	logger.Info("Run complete.", "configurations", set.Len(), "cache_hits", hits, "computed", misses, "hit_ratio", ratio)

	return results, nil
}

// wrap turns one configuration into a pool task that times the user call and
// writes its result into the cache under the configuration's key.
func (r *Runner) wrap(store cache.Provider, key cachekey.Key, config *matrix.Configuration, cachePath string) pool.TaskFunc {
	return func(taskCtx context.Context) (any, error) {
		tc := &Context{
			ctx:       taskCtx,
			key:       key,
			registry:  metrics.NewRegistry(),
			cachePath: cachePath,
		}
		defer tc.close()

		start := time.Now()
		value, err := r.fn(tc, config)
		elapsed := time.Since(start)
		if err != nil {
			return nil, err
		}

		raw, err := encodeResult(storedResult{
			Inner:     value,
			Metrics:   tc.registry.Snapshot(),
			Start:     start,
			RuntimeNS: int64(elapsed),
		})
		if err != nil {
			return nil, err
		}
		if err := store.Set(key, raw); err != nil {
			return nil, err
		}
		return nil, nil
	}
}
