package matrix

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateOrdering(t *testing.T) {
	m := &Matrix{
		Parameters: []Parameter{
			{Name: "param1", Values: []any{1, 2, 3}},
			{Name: "param2", Values: []any{4, 5, 6}},
		},
		Exclude: []map[string]any{
			{"param1": 3, "param2": 6},
		},
	}

	set, err := Generate(m)
	require.NoError(t, err)

	expected := []map[string]any{
		{"param1": 1, "param2": 4},
		{"param1": 1, "param2": 5},
		{"param1": 1, "param2": 6},
		{"param1": 2, "param2": 4},
		{"param1": 2, "param2": 5},
		{"param1": 2, "param2": 6},
		{"param1": 3, "param2": 4},
		{"param1": 3, "param2": 5},
		// {"param1": 3, "param2": 6} is excluded.
	}

	require.Len(t, set.Configurations, len(expected))
	got := make([]map[string]any, 0, set.Len())
	for _, c := range set.Configurations {
		got = append(got, c.Params())
	}
	assert.Empty(t, cmp.Diff(expected, got))
}

func TestGenerateExclude(t *testing.T) {
	t.Run("absent key never matches", func(t *testing.T) {
		m := &Matrix{
			Parameters: []Parameter{{Name: "p", Values: []any{1, 2}}},
			Exclude:    []map[string]any{{"does_not_exist": 1}},
		}
		set, err := Generate(m)
		require.NoError(t, err)
		assert.Equal(t, 2, set.Len())
	})

	t.Run("adjacent matches are all removed", func(t *testing.T) {
		// Two neighbouring configurations match; a delete-while-iterating
		// implementation would skip the second one.
		m := &Matrix{
			Parameters: []Parameter{
				{Name: "a", Values: []any{1}},
				{Name: "b", Values: []any{1, 2, 3}},
			},
			Exclude: []map[string]any{{"b": 1}, {"b": 2}},
		}
		set, err := Generate(m)
		require.NoError(t, err)
		require.Equal(t, 1, set.Len())
		v, ok := set.Configurations[0].Param("b")
		require.True(t, ok)
		assert.Equal(t, 3, v)
	})

	t.Run("partial match does not exclude", func(t *testing.T) {
		m := &Matrix{
			Parameters: []Parameter{
				{Name: "a", Values: []any{1, 2}},
				{Name: "b", Values: []any{1, 2}},
			},
			Exclude: []map[string]any{{"a": 1, "b": 99}},
		}
		set, err := Generate(m)
		require.NoError(t, err)
		assert.Equal(t, 4, set.Len())
	})
}

func TestGenerateInvalidMatrix(t *testing.T) {
	t.Run("no parameters", func(t *testing.T) {
		_, err := Generate(&Matrix{})
		assert.ErrorIs(t, err, ErrInvalidMatrix)
	})

	t.Run("reserved names", func(t *testing.T) {
		for _, name := range []string{"settings", "runtime", "dependencies"} {
			_, err := Generate(&Matrix{
				Parameters: []Parameter{{Name: name, Values: []any{1}}},
			})
			assert.ErrorIs(t, err, ErrInvalidMatrix, name)
		}
	})

	t.Run("duplicate parameter", func(t *testing.T) {
		_, err := Generate(&Matrix{
			Parameters: []Parameter{
				{Name: "p", Values: []any{1}},
				{Name: "p", Values: []any{2}},
			},
		})
		assert.ErrorIs(t, err, ErrInvalidMatrix)
	})

	t.Run("empty value list", func(t *testing.T) {
		_, err := Generate(&Matrix{
			Parameters: []Parameter{{Name: "p", Values: nil}},
		})
		assert.ErrorIs(t, err, ErrInvalidMatrix)
	})
}

func TestConfigurationEquality(t *testing.T) {
	m := &Matrix{
		Parameters: []Parameter{{Name: "p", Values: []any{1, 2}}},
		Settings:   map[string]any{"seed": 42},
	}

	a, err := Generate(m)
	require.NoError(t, err)
	b, err := Generate(m)
	require.NoError(t, err)

	assert.True(t, a.Configurations[0].Equal(b.Configurations[0]))
	assert.False(t, a.Configurations[0].Equal(b.Configurations[1]))

	other := &Matrix{
		Parameters: []Parameter{{Name: "p", Values: []any{1, 2}}},
		Settings:   map[string]any{"seed": 7},
	}
	c, err := Generate(other)
	require.NoError(t, err)
	assert.False(t, a.Configurations[0].Equal(c.Configurations[0]), "differing settings break equality")
}

func TestSharedSettingsAndRuntime(t *testing.T) {
	settings := map[string]any{"seed": 1}
	runtime := map[string]any{"cpus": 2}
	set, err := Generate(&Matrix{
		Parameters: []Parameter{{Name: "p", Values: []any{1, 2}}},
		Settings:   settings,
		Runtime:    runtime,
	})
	require.NoError(t, err)

	// Attached by reference, not copied: later writes are visible everywhere.
	settings["seed"] = 99
	runtime["cpus"] = 16
	for _, c := range set.Configurations {
		assert.Equal(t, 99, c.Settings["seed"])
		assert.Equal(t, 16, c.Runtime["cpus"])
	}
}

func TestPatchDependencies(t *testing.T) {
	set, err := Generate(&Matrix{
		Parameters: []Parameter{{Name: "p", Values: []any{1, 2}}},
	})
	require.NoError(t, err)

	results := []any{"r1", "r2", "r3"}
	set.PatchDependencies("upstream", results)

	for _, c := range set.Configurations {
		assert.Equal(t, results, c.Dependencies["upstream"])
	}
}
