// Package pool runs queued tasks concurrently over a fixed set of workers,
// preserving submission order in the collected results. Workers may be given a
// bounded lifetime: after completing a set number of tasks a worker exits and a
// supervisor launches a replacement, which bounds per-worker memory growth in
// long sweeps.
package pool

import (
	"container/heap"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/vk/memogrid/internal/ctxlog"
	"github.com/vk/memogrid/internal/notify"
)

// Task priorities. Lower values are dispatched first when tasks queue ahead of
// worker availability. Priority is advisory pre-dispatch ordering only; it is
// not a global ordering guarantee once multiple workers are in flight.
const (
	PriorityHigh   = 1
	PriorityMedium = 2
	PriorityLow    = 3
)

// TaskFunc is a self-contained unit of work. Output intended for the task's
// attributed stream should go to Output(ctx).
type TaskFunc func(ctx context.Context) (any, error)

// task carries a closure plus the bookkeeping needed for ordered collection:
// the index preserves submission order (completion order is not deterministic)
// and the identifier prefixes the task's output.
type task struct {
	run        TaskFunc
	identifier string
	priority   int
	index      int
}

// Manager provides a simple interface for running multiple tasks in parallel.
type Manager struct {
	workers           int
	maxTasksPerWorker int
	notifier          notify.Provider
	out               io.Writer

	tasks   []*task
	idCount int
}

// Option configures a Manager.
type Option func(*Manager)

// WithWorkers sets the worker count. Defaults to the host parallelism.
func WithWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithMaxTasksPerWorker bounds each worker's lifetime to n tasks, after which
// it is replaced by a fresh worker. Zero disables the bound.
func WithMaxTasksPerWorker(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxTasksPerWorker = n
		}
	}
}

// WithNotifier installs the completion/failure notification capability.
func WithNotifier(p notify.Provider) Option {
	return func(m *Manager) {
		if p != nil {
			m.notifier = p
		}
	}
}

// WithOutput sets the destination stream for prefixed task output. Defaults
// to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(m *Manager) {
		if w != nil {
			m.out = w
		}
	}
}

// New creates a Manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		workers:  runtime.NumCPU(),
		notifier: notify.Noop{},
		out:      os.Stdout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add appends a task to the queue. Priority must be non-negative.
func (m *Manager) Add(fn TaskFunc, priority int) error {
	if fn == nil {
		return fmt.Errorf("task must not be nil")
	}
	if priority < 0 {
		return fmt.Errorf("priority must be non-negative, got %d", priority)
	}
	m.idCount++
	m.tasks = append(m.tasks, &task{
		run:        fn,
		identifier: fmt.Sprintf("Task %d", m.idCount),
		priority:   priority,
		index:      len(m.tasks),
	})
	return nil
}

// AddMany appends all given tasks with one shared priority.
func (m *Manager) AddMany(fns []TaskFunc, priority int) error {
	for _, fn := range fns {
		if err := m.Add(fn, priority); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of queued tasks.
func (m *Manager) Len() int {
	return len(m.tasks)
}

// Run executes all queued tasks and returns their results in submission
// order. The first task failure cancels outstanding dispatch and is returned
// to the caller after the failure notification has fired. The queue is
// cleared on return.
func (m *Manager) Run(ctx context.Context) ([]any, error) {
	logger := ctxlog.FromContext(ctx)
	total := len(m.tasks)
	if total == 0 {
		m.notifier.JobCompletion()
		return nil, nil
	}

	// Order pending tasks by priority before any dispatch.
	h := make(taskHeap, len(m.tasks))
	copy(h, m.tasks)
	heap.Init(&h)
	m.tasks = nil

	taskCh := make(chan *task, total)
	for h.Len() > 0 {
		taskCh <- heap.Pop(&h).(*task)
	}
	close(taskCh)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	resCh := make(chan taskResult, total)
	sup := newSupervisor(m, taskCh, resCh)
	sup.start(runCtx)

	logger.Debug("Worker pool started.", "workers", m.workers, "tasks", total)

	results := make([]any, total)
	for collected := 0; collected < total; collected++ {
		select {
		case res := <-resCh:
			if res.err != nil {
				cancel()
				sup.stop()
				return nil, fmt.Errorf("%s failed: %w", res.identifier, res.err)
			}
			results[res.index] = res.value
		case <-ctx.Done():
			sup.stop()
			return nil, ctx.Err()
		}
	}

	sup.stop()
	m.notifier.JobCompletion()
	logger.Debug("Worker pool finished.", "tasks", total)
	return results, nil
}
