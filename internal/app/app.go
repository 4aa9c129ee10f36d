// Package app wires the command-line surface: it loads matrix documents,
// validates the dependency graph, and renders the configuration plan. Full
// runs are a library-level activity, because the experiment function is Go
// code linked by the caller; the runnable surface here is plan and validate.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/vk/memogrid/internal/cache"
	"github.com/vk/memogrid/internal/ctxlog"
	"github.com/vk/memogrid/internal/dag"
	"github.com/vk/memogrid/internal/hclmatrix"
	"github.com/vk/memogrid/internal/matrix"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger.
func NewApp(outW io.Writer, cfg *Config) *App {
	logger := newLogger(cfg, outW)
	logger.Debug("Logger configured successfully.")
	return &App{outW: outW, logger: logger, config: cfg}
}

// Run executes the main application logic based on the provided configuration.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	matrices, err := hclmatrix.Load(ctx, a.config.MatrixPath)
	if err != nil {
		return fmt.Errorf("failed to load matrix documents: %w", err)
	}
	if len(matrices) == 0 {
		a.logger.Warn("No matrices found, nothing to do.", "path", a.config.MatrixPath)
		return nil
	}
	a.logger.Debug("Matrix documents loaded.", "count", len(matrices))

	order, sets, err := a.validate(matrices)
	if err != nil {
		return err
	}

	if a.config.Plan {
		a.printPlan(order, matrices, sets)
		return nil
	}

	total := 0
	for _, set := range sets {
		total += set.Len()
	}
	a.logger.Info("Matrix documents are valid.",
		"matrices", len(matrices), "configurations", total)
	fmt.Fprintf(a.outW, "%d matrices, %d configurations, dependency order: %s\n",
		len(matrices), total, strings.Join(order, " -> "))
	fmt.Fprintln(a.outW, a.cacheStatus())

	a.logger.Debug("App.Run method finished.")
	return nil
}

// validate checks ids, dependency references and acyclicity, generates every
// matrix's configuration set, and returns the execution order.
func (a *App) validate(matrices []*matrix.Matrix) ([]string, map[string]*matrix.ConfigurationSet, error) {
	byID := make(map[string]*matrix.Matrix, len(matrices))
	graph := dag.New()

	for _, m := range matrices {
		if m.ID == "" {
			return nil, nil, fmt.Errorf("matrix without an id")
		}
		if _, ok := byID[m.ID]; ok {
			return nil, nil, fmt.Errorf("duplicate matrix id %q", m.ID)
		}
		byID[m.ID] = m
		graph.AddNode(m.ID)
	}
	for _, m := range matrices {
		for _, dep := range m.Dependencies {
			if _, ok := byID[dep]; !ok {
				return nil, nil, fmt.Errorf("matrix %q depends on unknown matrix %q", m.ID, dep)
			}
			if err := graph.AddEdge(dep, m.ID); err != nil {
				return nil, nil, err
			}
		}
	}

	order, err := graph.TopologicalOrder()
	if err != nil {
		return nil, nil, err
	}

	sets := make(map[string]*matrix.ConfigurationSet, len(matrices))
	for _, id := range order {
		set, err := matrix.Generate(byID[id])
		if err != nil {
			return nil, nil, fmt.Errorf("matrix %q: %w", id, err)
		}
		sets[id] = set
	}
	return order, sets, nil
}

// cacheStatus reports the resolved result cache location and how many results
// it already holds. A missing file is reported as empty rather than created:
// validation must stay free of side effects.
func (a *App) cacheStatus() string {
	path := cache.ResolvePath(a.config.CachePath)
	if _, err := os.Stat(path); err != nil {
		return fmt.Sprintf("cache: %s (no results yet)", path)
	}

	store, err := cache.Open(path, cache.DefaultTable)
	if err != nil {
		return fmt.Sprintf("cache: %s (unreadable: %v)", path, err)
	}
	defer store.Close()

	n, err := store.Count()
	if err != nil {
		return fmt.Sprintf("cache: %s (unreadable: %v)", path, err)
	}
	return fmt.Sprintf("cache: %s (%d stored results)", path, n)
}

// printPlan renders each matrix's generated configurations in execution order.
func (a *App) printPlan(order []string, matrices []*matrix.Matrix, sets map[string]*matrix.ConfigurationSet) {
	byID := make(map[string]*matrix.Matrix, len(matrices))
	for _, m := range matrices {
		byID[m.ID] = m
	}

	for _, id := range order {
		m := byID[id]
		set := sets[id]

		fmt.Fprintf(a.outW, "matrix %q: %d configurations", id, set.Len())
		if len(m.Dependencies) > 0 {
			fmt.Fprintf(a.outW, " (after %s)", strings.Join(m.Dependencies, ", "))
		}
		fmt.Fprintln(a.outW)

		for i, c := range set.Configurations {
			fmt.Fprintf(a.outW, "  %d: %s\n", i, formatConfig(m, c))
		}
	}
}

// formatConfig renders a configuration's assignment in parameter declaration
// order.
func formatConfig(m *matrix.Matrix, c *matrix.Configuration) string {
	parts := make([]string, 0, len(m.Parameters))
	for _, p := range m.Parameters {
		if v, ok := c.Param(p.Name); ok {
			parts = append(parts, fmt.Sprintf("%s=%v", p.Name, v))
		}
	}
	return strings.Join(parts, " ")
}
