package hclmatrix

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/memogrid/internal/matrix"
)

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSingleMatrix(t *testing.T) {
	path := writeDoc(t, t.TempDir(), "sweep.hcl", `
matrix "sweep" {
  parameters {
    alpha = [0.1, 0.2]
    depth = [2, 4, 8]
  }

  exclude {
    alpha = 0.2
    depth = 8
  }

  settings {
    epochs  = 10
    dataset = "cifar10"
    shuffle = true
  }

  runtime {
    cpus        = 4
    mem_per_cpu = "2G"
  }
}
`)

	matrices, err := Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, matrices, 1)

	m := matrices[0]
	assert.Equal(t, "sweep", m.ID)

	require.Len(t, m.Parameters, 2)
	assert.Equal(t, matrix.Parameter{Name: "alpha", Values: []any{0.1, 0.2}}, m.Parameters[0])
	assert.Equal(t, matrix.Parameter{Name: "depth", Values: []any{2.0, 4.0, 8.0}}, m.Parameters[1])

	assert.Equal(t, []map[string]any{{"alpha": 0.2, "depth": 8.0}}, m.Exclude)
	assert.Equal(t, map[string]any{"epochs": 10.0, "dataset": "cifar10", "shuffle": true}, m.Settings)
	assert.Equal(t, map[string]any{"cpus": 4.0, "mem_per_cpu": "2G"}, m.Runtime)
	assert.Empty(t, m.Dependencies)
}

func TestLoadPreservesParameterOrder(t *testing.T) {
	// Declaration order drives enumeration order, so it must survive loading
	// even though HCL attribute decoding is map-based.
	path := writeDoc(t, t.TempDir(), "order.hcl", `
matrix "order" {
  parameters {
    zulu    = [1]
    alpha   = [2]
    mike    = [3]
    bravo   = [4]
    yankee  = [5]
    charlie = [6]
  }
}
`)

	matrices, err := Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, matrices, 1)

	var names []string
	for _, p := range matrices[0].Parameters {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"zulu", "alpha", "mike", "bravo", "yankee", "charlie"}, names)
}

func TestLoadMultipleMatricesWithDependencies(t *testing.T) {
	path := writeDoc(t, t.TempDir(), "pipeline.hcl", `
matrix "base" {
  parameters {
    seed = [1, 2, 3]
  }
}

matrix "train" {
  dependencies = ["base"]

  parameters {
    lr = [0.01, 0.001]
  }
}
`)

	matrices, err := Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, matrices, 2)

	assert.Equal(t, "base", matrices[0].ID)
	assert.Equal(t, "train", matrices[1].ID)
	assert.Equal(t, []string{"base"}, matrices[1].Dependencies)
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.hcl", `
matrix "a" {
  parameters {
    x = [1]
  }
}
`)
	writeDoc(t, dir, "b.hcl", `
matrix "b" {
  parameters {
    y = [2]
  }
}
`)
	writeDoc(t, dir, "notes.txt", "not a document")

	matrices, err := Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, matrices, 2)
}

func TestLoadRepeatedExcludeBlocks(t *testing.T) {
	path := writeDoc(t, t.TempDir(), "excl.hcl", `
matrix "m" {
  parameters {
    a = [1, 2]
    b = [3, 4]
  }

  exclude {
    a = 1
    b = 3
  }

  exclude {
    a = 2
  }
}
`)

	matrices, err := Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, matrices, 1)
	assert.Equal(t, []map[string]any{
		{"a": 1.0, "b": 3.0},
		{"a": 2.0},
	}, matrices[0].Exclude)
}

func TestLoadGeneratesConfigurations(t *testing.T) {
	path := writeDoc(t, t.TempDir(), "gen.hcl", `
matrix "gen" {
  parameters {
    a = [1, 2]
    b = ["x", "y"]
  }
}
`)

	matrices, err := Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, matrices, 1)

	set, err := matrix.Generate(matrices[0])
	require.NoError(t, err)
	require.Equal(t, 4, set.Len())
	assert.Equal(t, map[string]any{"a": 1.0, "b": "x"}, set.Configurations[0].Params())
	assert.Equal(t, map[string]any{"a": 1.0, "b": "y"}, set.Configurations[1].Params())
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing path", func(t *testing.T) {
		_, err := Load(context.Background(), filepath.Join(t.TempDir(), "absent.hcl"))
		assert.Error(t, err)
	})

	t.Run("malformed document", func(t *testing.T) {
		path := writeDoc(t, t.TempDir(), "bad.hcl", `matrix "m" {`)
		_, err := Load(context.Background(), path)
		assert.Error(t, err)
	})

	t.Run("scalar parameter value", func(t *testing.T) {
		path := writeDoc(t, t.TempDir(), "scalar.hcl", `
matrix "m" {
  parameters {
    a = 1
  }
}
`)
		_, err := Load(context.Background(), path)
		require.Error(t, err)
		assert.ErrorContains(t, err, "expected a list")
	})

	t.Run("non-string dependency", func(t *testing.T) {
		path := writeDoc(t, t.TempDir(), "dep.hcl", `
matrix "m" {
  dependencies = [1]

  parameters {
    a = [1]
  }
}
`)
		_, err := Load(context.Background(), path)
		assert.Error(t, err)
	})
}
