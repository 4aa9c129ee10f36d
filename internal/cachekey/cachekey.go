// Package cachekey derives content-addressable cache keys from a computation's
// identity and inputs.
//
// Canonicalization strategy: the function identity and arguments are encoded as
// JSON and hashed with SHA-256. encoding/json sorts map keys and emits struct
// fields in declaration order, so structurally equal inputs always produce
// byte-equal keys. Function identity is the package-qualified symbol name, never
// a pointer, so keys are stable across processes and restarts.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"runtime"
)

// Key is an opaque content hash identifying one computation.
type Key []byte

// String returns the key as lowercase hex, for logging.
func (k Key) String() string {
	return hex.EncodeToString(k)
}

// payload is the canonical pre-image of a key.
type payload struct {
	Function string `json:"function"`
	Args     []any  `json:"args"`
}

// Derive computes the key for a computation identified by fnID applied to the
// given arguments. Arguments must be JSON-encodable.
func Derive(fnID string, args ...any) (Key, error) {
	if args == nil {
		args = []any{}
	}
	raw, err := json.Marshal(payload{Function: fnID, Args: args})
	if err != nil {
		return nil, fmt.Errorf("canonicalize cache key for %s: %w", fnID, err)
	}
	sum := sha256.Sum256(raw)
	return sum[:], nil
}

// ForFunc computes the key for a Go function value applied to the given
// arguments, using the function's symbol name as its identity.
func ForFunc(fn any, args ...any) (Key, error) {
	return Derive(FuncID(fn), args...)
}

// FuncID returns the package-qualified symbol name of a function value, e.g.
// "github.com/vk/memogrid/internal/runner.glob..func1". Bound methods and
// closures resolve to their defining symbol, which is stable for a given
// binary.
func FuncID(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return fmt.Sprintf("%T", fn)
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return fmt.Sprintf("%T", fn)
	}
	return f.Name()
}
