package workerpool

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	gferrors "github.com/vnykmshr/stagehand/pkg/common/errors"
)

// Submit adds a task to the pool for execution.
// The task will be executed with context.Background().
// Use SubmitWithContext to provide a custom context.
func (p *workerPool) Submit(task Task) error {
	return p.SubmitWithContext(context.Background(), task)
}

// SubmitWithContext adds a task to the pool for execution with the given context.
// The context is passed to the task's Execute method, enabling timeout and
// cancellation propagation. If the pool has a TaskTimeout configured, the
// effective timeout will be the minimum of the context deadline and TaskTimeout.
func (p *workerPool) SubmitWithContext(ctx context.Context, task Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	select {
	case <-p.shutdownCh:
		return fmt.Errorf("cannot submit task: %w", gferrors.ErrClosed)
	default:
	}

	// Check if context is already canceled before attempting to queue
	select {
	case <-ctx.Done():
		return fmt.Errorf("cannot submit task: context canceled: %w", ctx.Err())
	default:
	}

	select {
	case p.taskQueue <- taskWithContext{task: task, ctx: ctx}:
		atomic.AddInt64(&p.totalSubmitted, 1)
		return nil
	case <-p.shutdownCh:
		return fmt.Errorf("cannot submit task: %w", gferrors.ErrClosed)
	case <-ctx.Done():
		return fmt.Errorf("cannot submit task: context canceled: %w", ctx.Err())
	}
}

// Shutdown initiates a graceful shutdown of the pool.
func (p *workerPool) Shutdown() <-chan struct{} {
	p.shutdownOnce.Do(func() {
		// Blocked submitters return once shutdownCh is closed, so the
		// write lock below cannot wait on them forever.
		close(p.shutdownCh)

		go func() {
			p.mu.Lock()
			close(p.taskQueue)
			p.mu.Unlock()

			p.workerWg.Wait()
			close(p.done)
		}()
	})

	return p.done
}

// run is the main loop for a worker. It drains the queue until it is closed.
func (p *workerPool) run(workerID int) {
	defer p.workerWg.Done()

	for twc := range p.taskQueue {
		p.executeTask(workerID, twc)
	}
}

// executeTask executes a single task with the provided context.
func (p *workerPool) executeTask(workerID int, twc taskWithContext) {
	atomic.AddInt32(&p.activeWorkers, 1)
	start := time.Now()
	var err error

	if p.config.OnTaskStart != nil {
		p.config.OnTaskStart(workerID, twc.task)
	}

	// Handle panics during task execution
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v\nStack trace:\n%s", r, debug.Stack())
			if p.config.PanicHandler != nil {
				p.config.PanicHandler(twc.task, r)
			}
		}

		atomic.AddInt32(&p.activeWorkers, -1)
		atomic.AddInt64(&p.totalCompleted, 1)

		if p.config.OnTaskComplete != nil {
			p.config.OnTaskComplete(workerID, Result{
				Task:     twc.task,
				Error:    err,
				Duration: time.Since(start),
				WorkerID: workerID,
			})
		}
	}()

	ctx := twc.ctx
	// The effective timeout is the minimum of the context deadline and TaskTimeout
	if p.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.TaskTimeout)
		defer cancel()
	}

	err = twc.task.Execute(ctx)
}
