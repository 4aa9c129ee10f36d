// Package slurm maps logical tasks onto the Slurm batch scheduler.
//
// Each task is two scheduled jobs. The main job deserializes its payload,
// submits its own check job, then runs user code; submitting the check job
// first means its dependency is satisfied even if the main job crashes or
// times out. The check job inspects the main job's accounting record and
// resubmits it on TIMEOUT. Because Slurm assigns a fresh native job id on
// every resubmission, a locally generated stable id is stamped into the job's
// comment field and all correlation runs on that field, never on the native
// id.
package slurm

import "fmt"

// Slurm accounting states the waiter classifies on.
const (
	StateCompleted   = "COMPLETED"
	StateTimeout     = "TIMEOUT"
	StateFailed      = "FAILED"
	StateCancelled   = "CANCELLED"
	StateOutOfMemory = "OUT_OF_MEMORY"
)

// Payload is the serialized unit of work shipped to a worker node: a
// registered function name, its arguments, and the task's stable identity.
type Payload struct {
	Function string         `json:"function"`
	Args     map[string]any `json:"args"`
	Runtime  map[string]any `json:"runtime,omitempty"`
	StableID string         `json:"stable_id"`
}

// JobRecord correlates a task's application-chosen stable id with the most
// recently known scheduler-native job id. Application logic must never key
// off NativeID alone: it changes on every restart.
type JobRecord struct {
	StableID string
	NativeID string
}

// JobFailedError reports a remote job that reached a terminal failure state.
type JobFailedError struct {
	NativeID string
	State    string
	Elapsed  string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s %s after %s", e.NativeID, e.State, e.Elapsed)
}
