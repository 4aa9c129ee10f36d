package matrix

// Reserved parameter names. These collide with fields memogrid attaches to every
// generated configuration, so a matrix may not declare them as parameters.
var reservedNames = []string{"settings", "runtime", "dependencies"}

// Parameter is a single named axis of a matrix, holding the ordered candidate
// values it sweeps over.
type Parameter struct {
	Name   string
	Values []any
}

// Matrix is the user-supplied specification from which configurations are
// generated. Parameters keep their declaration order; generation sweeps the
// last-declared parameter fastest.
type Matrix struct {
	// ID names this matrix in a multi-matrix dependency graph. It may be empty
	// for standalone runs.
	ID string

	Parameters []Parameter

	// Settings and Runtime are shared, attached by reference to every generated
	// configuration.
	Settings map[string]any
	Runtime  map[string]any

	// Exclude lists partial assignments; a configuration matching every key of
	// an entry is removed from the generated set.
	Exclude []map[string]any

	// Dependencies lists the IDs of matrices whose results this matrix consumes.
	Dependencies []string
}

// Configuration is one concrete assignment of values to all matrix parameters.
// It is immutable after generation; the only later mutation is the one-time
// dependency patch performed by the orchestrator between matrices.
type Configuration struct {
	params map[string]any

	// Settings and Runtime are the shared maps of the owning set.
	Settings map[string]any
	Runtime  map[string]any

	// Dependencies maps an upstream matrix ID to that matrix's full
	// per-configuration result list. Populated by ConfigurationSet.PatchDependencies.
	Dependencies map[string][]any
}

// Param returns the value assigned to the named parameter.
func (c *Configuration) Param(name string) (any, bool) {
	v, ok := c.params[name]
	return v, ok
}

// Params returns the parameter assignment of this configuration. Callers must
// treat the returned map as read-only.
func (c *Configuration) Params() map[string]any {
	return c.params
}

// Equal reports structural equality: same parameter assignment and same
// settings. Runtime metadata does not participate.
func (c *Configuration) Equal(o *Configuration) bool {
	if o == nil {
		return false
	}
	return deepEqual(c.params, o.params) && deepEqual(c.Settings, o.Settings)
}

// ConfigurationSet is the ordered output of Generate. All configurations share
// one Settings/Runtime pair.
type ConfigurationSet struct {
	Configurations []*Configuration
	Settings       map[string]any
	Runtime        map[string]any
}

// Len returns the number of configurations in the set.
func (s *ConfigurationSet) Len() int {
	return len(s.Configurations)
}

// PatchDependencies attaches an upstream matrix's result list under the given
// ID on every configuration in the set. It is called at most once per upstream
// matrix, before any task for this set is scheduled.
func (s *ConfigurationSet) PatchDependencies(id string, results []any) {
	for _, c := range s.Configurations {
		if c.Dependencies == nil {
			c.Dependencies = make(map[string][]any)
		}
		c.Dependencies[id] = results
	}
}
