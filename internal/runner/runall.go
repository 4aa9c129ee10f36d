package runner

import (
	"context"
	"fmt"

	"github.com/vk/memogrid/internal/ctxlog"
	"github.com/vk/memogrid/internal/dag"
	"github.com/vk/memogrid/internal/matrix"
)

// RunAll executes multiple matrices as a dependency graph. Matrices run in
// topological order; after each one completes, its per-configuration inner
// values are injected under dependencies[<id>] into every matrix that lists it
// as a dependency, before that matrix's configurations are generated. Only the
// final matrix's results are returned.
//
// A cycle in the declared dependencies fails with ErrCyclicDependency before
// anything executes.
func (r *Runner) RunAll(ctx context.Context, matrices []*matrix.Matrix, opts Options) ([]Result, error) {
	logger := ctxlog.FromContext(ctx)

	byID := make(map[string]*matrix.Matrix, len(matrices))
	g := dag.New()
	for _, m := range matrices {
		if m.ID == "" {
			return nil, fmt.Errorf("%w: every matrix in a multi-matrix run needs an id", matrix.ErrInvalidMatrix)
		}
		if _, ok := byID[m.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate matrix id %q", matrix.ErrInvalidMatrix, m.ID)
		}
		byID[m.ID] = m
		g.AddNode(m.ID)
	}
	for _, m := range matrices {
		for _, dep := range m.Dependencies {
			if _, ok := byID[dep]; !ok {
				return nil, fmt.Errorf("%w: matrix %q depends on unknown matrix %q", matrix.ErrInvalidMatrix, m.ID, dep)
			}
			if err := g.AddEdge(dep, m.ID); err != nil {
				return nil, err
			}
		}
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	logger.Debug("Matrix execution order resolved.", "order", order)

	inners := make(map[string][]any, len(order))
	var final []Result
	for _, id := range order {
		m := byID[id]
		set, err := matrix.Generate(m)
		if err != nil {
			return nil, err
		}
		for _, dep := range m.Dependencies {
			set.PatchDependencies(dep, inners[dep])
		}

		results, err := r.runSet(ctx, set, opts)
		if err != nil {
			return nil, fmt.Errorf("matrix %q: %w", id, err)
		}

		values := make([]any, len(results))
		for i, res := range results {
			values[i] = res.Inner
		}
		inners[id] = values
		final = results
	}

	return final, nil
}
