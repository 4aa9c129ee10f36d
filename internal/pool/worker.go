package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/memogrid/internal/ctxlog"
)

// taskResult is one completed task, tagged with the submission index used to
// reassemble ordered results.
type taskResult struct {
	index      int
	identifier string
	value      any
	err        error
}

// supervisor owns the worker lifecycle: it launches the initial set of
// workers, replaces any worker that retires after reaching its task bound, and
// drains everything on shutdown.
type supervisor struct {
	m       *Manager
	taskCh  chan *task
	resCh   chan taskResult
	retired chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	stopped sync.Once
}

func newSupervisor(m *Manager, taskCh chan *task, resCh chan taskResult) *supervisor {
	return &supervisor{
		m:       m,
		taskCh:  taskCh,
		resCh:   resCh,
		retired: make(chan struct{}, m.workers),
		done:    make(chan struct{}),
	}
}

// start launches the initial workers and the respawn loop.
func (s *supervisor) start(ctx context.Context) {
	for i := 0; i < s.m.workers; i++ {
		s.spawn(ctx)
	}
	go s.respawnLoop(ctx)
}

// respawnLoop replaces retired workers until a shutdown signal is observed.
func (s *supervisor) respawnLoop(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-s.retired:
			logger.Debug("Worker reached task bound, spawning replacement.")
			s.spawn(ctx)
		}
	}
}

func (s *supervisor) spawn(ctx context.Context) {
	s.wg.Add(1)
	go s.worker(ctx)
}

// stop signals shutdown and joins all workers.
func (s *supervisor) stop() {
	s.stopped.Do(func() { close(s.done) })
	s.wg.Wait()
}

// worker pulls tasks until the queue is drained, the run is cancelled, or its
// task bound is reached. In the last case it retires and asks for a
// replacement.
func (s *supervisor) worker(ctx context.Context) {
	defer s.wg.Done()

	completed := 0
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-s.taskCh:
			if !ok {
				return
			}
			s.execute(ctx, t)
			completed++
			if s.m.maxTasksPerWorker > 0 && completed >= s.m.maxTasksPerWorker {
				select {
				case s.retired <- struct{}{}:
				case <-s.done:
				case <-ctx.Done():
				}
				return
			}
		}
	}
}

// execute runs one task with its attributed output stream and reports the
// result. Panics are converted to task errors so a single bad task cannot
// take down the pool.
func (s *supervisor) execute(ctx context.Context, t *task) {
	logger := ctxlog.FromContext(ctx).With("task", t.identifier)
	taskCtx := ctxlog.WithLogger(ctx, logger)
	taskCtx = withOutput(taskCtx, NewPrefixWriter(s.m.out, t.identifier+": "))

	value, err := func() (v any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panicked: %v", r)
			}
		}()
		return t.run(taskCtx)
	}()

	if err != nil {
		s.m.notifier.TaskFailure()
	} else {
		s.m.notifier.TaskCompletion()
	}

	select {
	case s.resCh <- taskResult{index: t.index, identifier: t.identifier, value: value, err: err}:
	case <-s.done:
	}
}
