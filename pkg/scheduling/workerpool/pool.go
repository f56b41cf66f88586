package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	gferrors "github.com/vnykmshr/stagehand/pkg/common/errors"
	"github.com/vnykmshr/stagehand/pkg/common/validation"
)

// Task represents a unit of work that can be executed by a worker.
type Task interface {
	// Execute runs the task with the given context.
	// It should respect context cancellation and return any error encountered.
	Execute(ctx context.Context) error
}

// TaskFunc is a function type that implements the Task interface.
type TaskFunc func(ctx context.Context) error

// Execute implements the Task interface for TaskFunc.
func (f TaskFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// Result represents the result of a task execution.
type Result struct {
	// Task is the original task that was executed
	Task Task

	// Error is any error that occurred during task execution
	Error error

	// Duration is how long the task took to execute
	Duration time.Duration

	// WorkerID identifies which worker executed the task
	WorkerID int
}

// Pool represents a worker pool that can execute tasks concurrently.
type Pool interface {
	// Submit adds a task to the pool for execution with context.Background().
	Submit(task Task) error

	// SubmitWithContext adds a task to the pool. The context bounds the
	// queuing and is passed to the task when it runs.
	SubmitWithContext(ctx context.Context, task Task) error

	// Shutdown stops accepting tasks. Queued tasks are still executed.
	// The returned channel closes once every worker has exited.
	Shutdown() <-chan struct{}

	// Size returns the number of workers in the pool.
	Size() int

	// QueueSize returns the current number of queued tasks waiting for execution.
	QueueSize() int

	// ActiveWorkers returns the number of workers currently executing tasks.
	ActiveWorkers() int

	// TotalSubmitted returns the total number of tasks submitted to the pool.
	TotalSubmitted() int64

	// TotalCompleted returns the total number of tasks completed by the pool.
	TotalCompleted() int64
}

// Config holds configuration options for creating a worker pool.
type Config struct {
	// WorkerCount is the number of workers in the pool.
	// Must be greater than 0.
	WorkerCount int

	// QueueSize is the number of tasks that may wait for a worker.
	// Zero hands each task directly to an idle worker.
	QueueSize int

	// TaskTimeout bounds each task execution. Zero means no timeout.
	TaskTimeout time.Duration

	// PanicHandler is called when a task panics. The panic is converted to
	// the task's error either way.
	PanicHandler func(task Task, recovered interface{})

	// OnTaskStart is called before a task begins execution.
	OnTaskStart func(workerID int, task Task)

	// OnTaskComplete is called after a task completes (success or failure).
	OnTaskComplete func(workerID int, result Result)
}

// workerPool implements the Pool interface.
type workerPool struct {
	config Config

	taskQueue    chan taskWithContext
	shutdownCh   chan struct{}
	done         chan struct{}
	shutdownOnce sync.Once

	// mu is held for reading by submitters and for writing while the
	// queue is closed.
	mu sync.RWMutex

	activeWorkers  int32
	totalSubmitted int64
	totalCompleted int64

	workerWg sync.WaitGroup
}

type taskWithContext struct {
	task Task
	ctx  context.Context
}

// New creates a new worker pool with the specified number of workers and queue size.
// It panics on invalid arguments; use NewSafe to get an error instead.
func New(workerCount, queueSize int) Pool {
	return NewWithConfig(Config{
		WorkerCount: workerCount,
		QueueSize:   queueSize,
	})
}

// NewSafe creates a new worker pool, returning an error on invalid arguments.
func NewSafe(workerCount, queueSize int) (Pool, error) {
	return NewWithConfigSafe(Config{
		WorkerCount: workerCount,
		QueueSize:   queueSize,
	})
}

// NewWithConfig creates a new worker pool with the specified configuration.
// It panics on an invalid configuration.
func NewWithConfig(config Config) Pool {
	pool, err := NewWithConfigSafe(config)
	if err != nil {
		panic(err)
	}
	return pool
}

// NewWithConfigSafe creates a new worker pool with the specified
// configuration, returning an error if it is invalid.
func NewWithConfigSafe(config Config) (Pool, error) {
	if err := validation.ValidatePositive("workerpool", "worker_count", config.WorkerCount); err != nil {
		return nil, err
	}
	if config.QueueSize < 0 {
		return nil, gferrors.NewValidationError("workerpool", "queue_size", config.QueueSize, "cannot be negative")
	}
	if err := validation.ValidateNonNegativeDuration("workerpool", "task_timeout", config.TaskTimeout); err != nil {
		return nil, err
	}

	pool := &workerPool{
		config:     config,
		taskQueue:  make(chan taskWithContext, config.QueueSize),
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}

	for i := 0; i < config.WorkerCount; i++ {
		pool.workerWg.Add(1)
		go pool.run(i)
	}

	return pool, nil
}

// Size returns the number of workers in the pool.
func (p *workerPool) Size() int {
	return p.config.WorkerCount
}

// QueueSize returns the current number of queued tasks waiting for execution.
func (p *workerPool) QueueSize() int {
	return len(p.taskQueue)
}

func (p *workerPool) ActiveWorkers() int {
	return int(atomic.LoadInt32(&p.activeWorkers))
}

func (p *workerPool) TotalSubmitted() int64 {
	return atomic.LoadInt64(&p.totalSubmitted)
}

func (p *workerPool) TotalCompleted() int64 {
	return atomic.LoadInt64(&p.totalCompleted)
}
