package runner

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vk/memogrid/internal/matrix"
	"github.com/vk/memogrid/internal/metrics"
)

// Result is the outcome of one configuration's run. It is written once and
// read-only afterwards.
type Result struct {
	// Config is the configuration this result belongs to.
	Config *matrix.Configuration

	// Inner is the value returned by the user function. Cached values
	// round-trip through JSON, so numbers normalize to float64 and structs to
	// maps.
	Inner any

	// Metrics holds the series recorded through the task context.
	Metrics map[string][]metrics.Sample

	// Start is when the user function began executing.
	Start time.Time

	// Runtime is the wall-clock duration of the user call.
	Runtime time.Duration

	// CPUTime and MemoryBytes are optional; they stay zero when the executor
	// cannot measure them meaningfully.
	CPUTime     time.Duration
	MemoryBytes int64

	// WasCached reports whether this result was served from the cache rather
	// than computed during this run.
	WasCached bool
}

// storedResult is the cache representation of a Result. The configuration and
// the WasCached flag are not stored: the former is reconstructed from the
// generated set on merge, the latter is a property of the reading run.
type storedResult struct {
	Inner       any                         `json:"inner"`
	Metrics     map[string][]metrics.Sample `json:"metrics,omitempty"`
	Start       time.Time                   `json:"start"`
	RuntimeNS   int64                       `json:"runtime_ns"`
	CPUTimeNS   int64                       `json:"cpu_time_ns,omitempty"`
	MemoryBytes int64                       `json:"memory_bytes,omitempty"`
}

func encodeResult(sr storedResult) ([]byte, error) {
	raw, err := json.Marshal(sr)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return raw, nil
}

func decodeResult(raw []byte, config *matrix.Configuration, wasCached bool) (Result, error) {
	var sr storedResult
	if err := json.Unmarshal(raw, &sr); err != nil {
		return Result{}, fmt.Errorf("decode cached result: %w", err)
	}
	return Result{
		Config:      config,
		Inner:       sr.Inner,
		Metrics:     sr.Metrics,
		Start:       sr.Start,
		Runtime:     time.Duration(sr.RuntimeNS),
		CPUTime:     time.Duration(sr.CPUTimeNS),
		MemoryBytes: sr.MemoryBytes,
		WasCached:   wasCached,
	}, nil
}
