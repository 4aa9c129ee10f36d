package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/memogrid/internal/matrix"
)

// testMatrix is the 3x3-minus-one matrix pinned throughout the suite.
func testMatrix() *matrix.Matrix {
	return &matrix.Matrix{
		Parameters: []matrix.Parameter{
			{Name: "param1", Values: []any{1, 2, 3}},
			{Name: "param2", Values: []any{4, 5, 6}},
		},
		Exclude: []map[string]any{{"param1": 3, "param2": 6}},
	}
}

func cachePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "cache.sqlite3")
}

// sumParams returns param1+param2 as the task value.
func sumParams(tc *Context, config *matrix.Configuration) (any, error) {
	p1, _ := config.Param("param1")
	p2, _ := config.Param("param2")
	return p1.(int) + p2.(int), nil
}

func TestRunComputesAllConfigurations(t *testing.T) {
	r := New(sumParams, WithWorkers(4))
	results, err := r.Run(context.Background(), testMatrix(), Options{CachePath: cachePath(t)})
	require.NoError(t, err)
	require.Len(t, results, 8)

	// Cached values round-trip through JSON, so numbers come back as float64.
	expected := []float64{5, 6, 7, 6, 7, 8, 7, 8}
	for i, res := range results {
		assert.Equal(t, expected[i], res.Inner, "result %d", i)
		assert.False(t, res.WasCached)
		assert.Greater(t, res.Runtime.Nanoseconds(), int64(-1))
		assert.False(t, res.Start.IsZero())
	}
}

func TestRunAtMostOnceUnderConcurrency(t *testing.T) {
	var calls atomic.Int32
	var mu sync.Mutex
	seen := make(map[string]int)

	fn := func(tc *Context, config *matrix.Configuration) (any, error) {
		calls.Add(1)
		mu.Lock()
		seen[fmt.Sprint(config.Params())]++
		mu.Unlock()
		return nil, nil
	}

	r := New(fn, WithWorkers(8))
	_, err := r.Run(context.Background(), testMatrix(), Options{CachePath: cachePath(t)})
	require.NoError(t, err)

	assert.Equal(t, int32(8), calls.Load())
	for params, count := range seen {
		assert.Equal(t, 1, count, "configuration %s ran more than once", params)
	}
}

func TestRunCacheHitOnSecondRun(t *testing.T) {
	path := cachePath(t)
	var calls atomic.Int32
	fn := func(tc *Context, config *matrix.Configuration) (any, error) {
		calls.Add(1)
		return sumParams(tc, config)
	}

	r := New(fn, WithWorkers(4))

	first, err := r.Run(context.Background(), testMatrix(), Options{CachePath: path})
	require.NoError(t, err)
	assert.Equal(t, int32(8), calls.Load())
	for _, res := range first {
		assert.False(t, res.WasCached)
	}

	second, err := r.Run(context.Background(), testMatrix(), Options{CachePath: path})
	require.NoError(t, err)
	assert.Equal(t, int32(8), calls.Load(), "second run must not invoke the user function")
	require.Len(t, second, len(first))
	for i := range second {
		assert.True(t, second[i].WasCached)
		assert.Equal(t, first[i].Inner, second[i].Inner, "result %d must be value-identical", i)
	}
}

func TestRunDryRun(t *testing.T) {
	fn := func(tc *Context, config *matrix.Configuration) (any, error) {
		t.Error("user function must not be called during a dry run")
		return nil, nil
	}

	r := New(fn)
	results, err := r.Run(context.Background(), testMatrix(), Options{DryRun: true, CachePath: cachePath(t)})
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestRunForceCache(t *testing.T) {
	path := cachePath(t)
	r := New(sumParams, WithWorkers(2))

	t.Run("empty cache fails naming the configuration", func(t *testing.T) {
		_, err := r.Run(context.Background(), testMatrix(), Options{ForceCache: true, CachePath: path})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCacheMiss)

		var miss *CacheMissError
		require.ErrorAs(t, err, &miss)
		assert.Equal(t, map[string]any{"param1": 1, "param2": 4}, miss.Config.Params())
	})

	t.Run("fully populated cache succeeds", func(t *testing.T) {
		_, err := r.Run(context.Background(), testMatrix(), Options{CachePath: path})
		require.NoError(t, err)

		results, err := r.Run(context.Background(), testMatrix(), Options{ForceCache: true, CachePath: path})
		require.NoError(t, err)
		require.Len(t, results, 8)
		for _, res := range results {
			assert.True(t, res.WasCached)
		}
	})
}

func TestRunForceRun(t *testing.T) {
	path := cachePath(t)
	var calls atomic.Int32
	fn := func(tc *Context, config *matrix.Configuration) (any, error) {
		calls.Add(1)
		return nil, nil
	}

	r := New(fn, WithWorkers(2))
	_, err := r.Run(context.Background(), testMatrix(), Options{CachePath: path})
	require.NoError(t, err)
	require.Equal(t, int32(8), calls.Load())

	results, err := r.Run(context.Background(), testMatrix(), Options{ForceRun: true, CachePath: path})
	require.NoError(t, err)
	assert.Equal(t, int32(16), calls.Load(), "ForceRun recomputes every configuration")
	for _, res := range results {
		assert.False(t, res.WasCached)
	}
}

func TestRunTaskErrorPropagates(t *testing.T) {
	boom := errors.New("experiment exploded")
	fn := func(tc *Context, config *matrix.Configuration) (any, error) {
		if v, _ := config.Param("param1"); v == 2 {
			return nil, boom
		}
		return nil, nil
	}

	r := New(fn, WithWorkers(2))
	_, err := r.Run(context.Background(), testMatrix(), Options{CachePath: cachePath(t)})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestRunInvalidMatrix(t *testing.T) {
	r := New(sumParams)
	_, err := r.Run(context.Background(), &matrix.Matrix{}, Options{CachePath: cachePath(t)})
	assert.ErrorIs(t, err, matrix.ErrInvalidMatrix)
}

func TestRunRecordsMetrics(t *testing.T) {
	fn := func(tc *Context, config *matrix.Configuration) (any, error) {
		tc.Record("accuracy", 0.9)
		tc.Record("accuracy", 0.95)
		return nil, nil
	}

	r := New(fn, WithWorkers(1))
	results, err := r.Run(context.Background(), &matrix.Matrix{
		Parameters: []matrix.Parameter{{Name: "p", Values: []any{1}}},
	}, Options{CachePath: cachePath(t)})
	require.NoError(t, err)
	require.Len(t, results, 1)

	series := results[0].Metrics["accuracy"]
	require.Len(t, series, 2)
	assert.Equal(t, 0.9, series[0].Value)
	assert.Equal(t, 0.95, series[1].Value)
}
