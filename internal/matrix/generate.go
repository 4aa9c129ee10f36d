package matrix

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrInvalidMatrix is returned when a matrix is structurally unusable: it
// declares no parameters, or a parameter name collides with a reserved name.
var ErrInvalidMatrix = errors.New("invalid matrix")

// Generate expands a matrix into the cartesian product of its parameter
// values, applies the exclude list, and attaches the shared settings and
// runtime maps to every configuration.
//
// Ordering is deterministic: the first-declared parameter varies slowest and
// the last-declared parameter varies fastest.
func Generate(m *Matrix) (*ConfigurationSet, error) {
	if len(m.Parameters) == 0 {
		return nil, fmt.Errorf("%w: matrix must declare at least one parameter", ErrInvalidMatrix)
	}

	seen := make(map[string]bool, len(m.Parameters))
	for _, p := range m.Parameters {
		for _, reserved := range reservedNames {
			if p.Name == reserved {
				return nil, fmt.Errorf("%w: %q is a reserved parameter name", ErrInvalidMatrix, p.Name)
			}
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("%w: duplicate parameter %q", ErrInvalidMatrix, p.Name)
		}
		seen[p.Name] = true
		if len(p.Values) == 0 {
			return nil, fmt.Errorf("%w: parameter %q has no values", ErrInvalidMatrix, p.Name)
		}
	}

	settings := m.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	runtime := m.Runtime
	if runtime == nil {
		runtime = map[string]any{}
	}

	set := &ConfigurationSet{Settings: settings, Runtime: runtime}

	for _, assignment := range product(m.Parameters) {
		if excluded(assignment, m.Exclude) {
			continue
		}
		set.Configurations = append(set.Configurations, &Configuration{
			params:   assignment,
			Settings: settings,
			Runtime:  runtime,
		})
	}

	return set, nil
}

// product returns every assignment of values to parameters, last parameter
// varying fastest.
func product(params []Parameter) []map[string]any {
	total := 1
	for _, p := range params {
		total *= len(p.Values)
	}

	out := make([]map[string]any, 0, total)
	indices := make([]int, len(params))
	for {
		assignment := make(map[string]any, len(params))
		for i, p := range params {
			assignment[p.Name] = p.Values[indices[i]]
		}
		out = append(out, assignment)

		// Advance like an odometer, rightmost digit first.
		pos := len(params) - 1
		for pos >= 0 {
			indices[pos]++
			if indices[pos] < len(params[pos].Values) {
				break
			}
			indices[pos] = 0
			pos--
		}
		if pos < 0 {
			return out
		}
	}
}

// excluded reports whether the assignment matches any exclude entry. An entry
// matches only if every one of its keys is present with an equal value, so a
// key absent from the assignment never matches.
func excluded(assignment map[string]any, exclude []map[string]any) bool {
	for _, entry := range exclude {
		if len(entry) == 0 {
			continue
		}
		matched := true
		for k, want := range entry {
			got, ok := assignment[k]
			if !ok || !deepEqual(got, want) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

func deepEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
