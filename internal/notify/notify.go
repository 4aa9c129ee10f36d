// Package notify defines the completion/failure notification capability
// injected into the worker pool. Implementations render fixed messages to a
// sink; they carry no internal state of their own.
package notify

import (
	"fmt"
	"io"
	"log/slog"
)

// Provider receives lifecycle notifications from a pool run. Each call is a
// zero-argument, side-effecting hook.
type Provider interface {
	// JobCompletion fires once when every task of a run has finished.
	JobCompletion()
	// TaskCompletion fires after each successful task.
	TaskCompletion()
	// TaskFailure fires after each failed task, before the error propagates.
	TaskFailure()
}

// Noop is the default Provider. It does nothing.
type Noop struct{}

func (Noop) JobCompletion()  {}
func (Noop) TaskCompletion() {}
func (Noop) TaskFailure()    {}

// Console logs notifications through a slog.Logger.
type Console struct {
	Logger *slog.Logger
}

func (c Console) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c Console) JobCompletion()  { c.logger().Info("All tasks completed.") }
func (c Console) TaskCompletion() { c.logger().Info("Task completed.") }
func (c Console) TaskFailure()    { c.logger().Warn("Task failed.") }

// File appends one line per notification to a writer.
type File struct {
	W io.Writer
}

func (f File) write(msg string) {
	if f.W != nil {
		fmt.Fprintln(f.W, msg)
	}
}

func (f File) JobCompletion()  { f.write("job completed") }
func (f File) TaskCompletion() { f.write("task completed") }
func (f File) TaskFailure()    { f.write("task failed") }
