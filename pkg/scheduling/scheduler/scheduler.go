package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	gferrors "github.com/vnykmshr/stagehand/pkg/common/errors"
	"github.com/vnykmshr/stagehand/pkg/metrics"
	"github.com/vnykmshr/stagehand/pkg/scheduling/workerpool"
)

// Task describes a scheduled entry.
type Task struct {
	ID       string
	RunAt    time.Time
	Interval time.Duration // Zero for one-time and cron tasks
	Cron     string        // Empty unless scheduled with ScheduleCron
	Created  time.Time
}

// Scheduler triggers tasks at fixed times, at fixed intervals or on cron
// expressions, running them on a worker pool.
type Scheduler interface {
	// Basic scheduling
	Schedule(id string, task workerpool.Task, runAt time.Time) error
	ScheduleAfter(id string, task workerpool.Task, delay time.Duration) error
	ScheduleRepeating(id string, task workerpool.Task, interval time.Duration) error

	// Cron scheduling
	ScheduleCron(id string, cronExpr string, task workerpool.Task) error

	// Task management
	Cancel(id string) bool
	CancelAll()
	List() []Task
	Next(id string) (time.Time, error)

	// Lifecycle
	Start() error
	Stop() <-chan struct{}
}

// Config holds scheduler configuration.
type Config struct {
	WorkerPool   workerpool.Pool
	Location     *time.Location // For cron scheduling
	TickInterval time.Duration  // How often to check for ready tasks (default: 50ms)
	MaxTasks     int            // Maximum number of scheduled tasks (default: 10000)

	// TaskTimeout bounds each run when the scheduler creates its own pool.
	TaskTimeout time.Duration

	// Metrics counts runs per task and status. Nil disables counting.
	Metrics *metrics.Registry

	// Logger receives failed runs. If nil, slog.Default() is used.
	Logger *slog.Logger

	// OnError is called after a run fails.
	OnError func(id string, err error)
}

const maxIDLength = 255

type scheduledTask struct {
	id           string
	task         workerpool.Task
	runAt        time.Time
	interval     time.Duration
	cronExpr     string
	cronSchedule cron.Schedule
	created      time.Time
}

type scheduler struct {
	pool         workerpool.Pool
	ownPool      bool
	location     *time.Location
	tickInterval time.Duration
	maxTasks     int
	cronParser   cron.Parser
	metrics      *metrics.Registry
	logger       *slog.Logger
	onError      func(id string, err error)

	mu      sync.RWMutex
	tasks   map[string]*scheduledTask
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	loop    sync.WaitGroup
}

// New creates a scheduler with default configuration.
func New() Scheduler {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a scheduler with custom configuration.
func NewWithConfig(cfg Config) Scheduler {
	pool := cfg.WorkerPool
	ownPool := false
	if pool == nil {
		pool = workerpool.NewWithConfig(workerpool.Config{
			WorkerCount: 4,
			QueueSize:   100,
			TaskTimeout: cfg.TaskTimeout,
		})
		ownPool = true
	}

	location := cfg.Location
	if location == nil {
		location = time.Local
	}

	tickInterval := cfg.TickInterval
	if tickInterval <= 0 {
		tickInterval = 50 * time.Millisecond
	}

	maxTasks := cfg.MaxTasks
	if maxTasks <= 0 {
		maxTasks = 10000
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &scheduler{
		pool:         pool,
		ownPool:      ownPool,
		location:     location,
		tickInterval: tickInterval,
		maxTasks:     maxTasks,
		cronParser:   newParser(),
		metrics:      cfg.Metrics,
		logger:       logger.With(slog.String("component", "scheduler")),
		onError:      cfg.OnError,
		tasks:        make(map[string]*scheduledTask),
	}
}

// newParser accepts five-field expressions, an optional leading seconds
// field, and descriptors such as @hourly or @every 5m.
func newParser() cron.Parser {
	return cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// ValidateCronExpression reports whether expr can be scheduled.
func ValidateCronExpression(expr string) error {
	if expr == "" {
		return gferrors.NewValidationError("scheduler", "cron", expr, "cannot be empty")
	}
	if _, err := newParser().Parse(expr); err != nil {
		return gferrors.NewValidationError("scheduler", "cron", expr, err.Error())
	}
	return nil
}

func validateTask(id string, task workerpool.Task) error {
	if id == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("task ID too long (max %d characters)", maxIDLength)
	}
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}
	return nil
}

// add stores t. The caller must hold s.mu.
func (s *scheduler) add(t *scheduledTask) error {
	if _, exists := s.tasks[t.id]; exists {
		return fmt.Errorf("task with ID %q already exists, use a different ID or cancel the existing task first", t.id)
	}
	if len(s.tasks) >= s.maxTasks {
		return fmt.Errorf("cannot schedule task: maximum number of tasks (%d) reached", s.maxTasks)
	}
	s.tasks[t.id] = t
	return nil
}

func (s *scheduler) Schedule(id string, task workerpool.Task, runAt time.Time) error {
	if err := validateTask(id, task); err != nil {
		return err
	}
	if runAt.IsZero() {
		return fmt.Errorf("task run time cannot be zero")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.add(&scheduledTask{
		id:      id,
		task:    task,
		runAt:   runAt,
		created: time.Now(),
	})
}

func (s *scheduler) ScheduleAfter(id string, task workerpool.Task, delay time.Duration) error {
	return s.Schedule(id, task, time.Now().Add(delay))
}

func (s *scheduler) ScheduleRepeating(id string, task workerpool.Task, interval time.Duration) error {
	if err := validateTask(id, task); err != nil {
		return err
	}
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	return s.add(&scheduledTask{
		id:       id,
		task:     task,
		runAt:    now,
		interval: interval,
		created:  now,
	})
}

func (s *scheduler) ScheduleCron(id string, cronExpr string, task workerpool.Task) error {
	if err := validateTask(id, task); err != nil {
		return err
	}
	if cronExpr == "" {
		return fmt.Errorf("cron expression cannot be empty")
	}

	schedule, err := s.cronParser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.add(&scheduledTask{
		id:           id,
		task:         task,
		runAt:        schedule.Next(time.Now().In(s.location)),
		cronExpr:     cronExpr,
		cronSchedule: schedule,
		created:      time.Now(),
	})
}

func (s *scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[id]; exists {
		delete(s.tasks, id)
		return true
	}
	return false
}

func (s *scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = make(map[string]*scheduledTask)
}

func (s *scheduler) List() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, Task{
			ID:       t.id,
			RunAt:    t.runAt,
			Interval: t.interval,
			Cron:     t.cronExpr,
			Created:  t.created,
		})
	}

	// Sort by run time
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].RunAt.Before(tasks[j].RunAt)
	})

	return tasks
}

// Next returns when the task runs next.
func (s *scheduler) Next(id string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return time.Time{}, fmt.Errorf("task %q: %w", id, gferrors.ErrNotFound)
	}
	return t.runAt, nil
}

func (s *scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running, call Stop() first")
	}

	s.running = true
	s.done = make(chan struct{})
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.loop.Add(1)
	go s.run(s.done)
	return nil
}

func (s *scheduler) Stop() <-chan struct{} {
	s.mu.Lock()
	if s.running {
		s.running = false
		close(s.done)
		s.cancel()
	}
	s.mu.Unlock()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		s.loop.Wait()
		if s.ownPool {
			<-s.pool.Shutdown()
		}
	}()

	return stopped
}

func (s *scheduler) run(done <-chan struct{}) {
	defer s.loop.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.processReadyTasks()
		}
	}
}

func (s *scheduler) processReadyTasks() {
	now := time.Now()

	s.mu.Lock()
	if len(s.tasks) == 0 {
		s.mu.Unlock()
		return
	}

	readyTasks := make([]*scheduledTask, 0, len(s.tasks))
	for id, task := range s.tasks {
		if now.Before(task.runAt) {
			continue
		}
		readyTasks = append(readyTasks, task)

		switch {
		case task.interval > 0:
			task.runAt = now.Add(task.interval)
		case task.cronSchedule != nil:
			task.runAt = task.cronSchedule.Next(now.In(s.location))
		default:
			delete(s.tasks, id)
		}
	}
	ctx := s.ctx
	s.mu.Unlock()

	for _, task := range readyTasks {
		if err := s.pool.SubmitWithContext(ctx, s.instrument(task.id, task.task)); err != nil {
			s.logger.Warn("scheduled task not submitted",
				slog.String("task", task.id),
				slog.String("error", err.Error()))
		}
	}
}

// instrument wraps a run with logging, metrics and the error callback.
func (s *scheduler) instrument(id string, task workerpool.Task) workerpool.Task {
	return workerpool.TaskFunc(func(ctx context.Context) error {
		start := time.Now()
		err := task.Execute(ctx)

		status := metrics.StatusSuccess
		if err != nil {
			status = metrics.StatusError
			s.logger.Warn("scheduled task failed",
				slog.String("task", id),
				slog.Float64("duration_ms", metrics.Milliseconds(time.Since(start))),
				slog.String("error", err.Error()))
			if s.onError != nil {
				s.onError(id, err)
			}
		}
		if s.metrics != nil {
			s.metrics.ScheduledRuns.WithLabelValues(id, status).Inc()
		}
		return err
	})
}
