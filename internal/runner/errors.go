package runner

import (
	"errors"
	"fmt"

	"github.com/vk/memogrid/internal/dag"
	"github.com/vk/memogrid/internal/matrix"
)

// ErrCacheMiss is the sentinel wrapped by CacheMissError. It is raised only
// when ForceCache asserts full cache coverage and a configuration is absent;
// an ordinary miss is recovered by computing the result.
var ErrCacheMiss = errors.New("cache miss")

// ErrCyclicDependency is returned by RunAll when the declared matrix
// dependencies contain a cycle, before any matrix executes.
var ErrCyclicDependency = dag.ErrCycle

// CacheMissError names the configuration that ForceCache found missing.
type CacheMissError struct {
	Config *matrix.Configuration
}

func (e *CacheMissError) Error() string {
	return fmt.Sprintf("configuration %v was not found in the cache", e.Config.Params())
}

func (e *CacheMissError) Unwrap() error {
	return ErrCacheMiss
}
