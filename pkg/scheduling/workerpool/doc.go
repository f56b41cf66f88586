/*
Package workerpool provides a bounded worker pool used to run independent
orchestrator executions concurrently.

A worker pool manages a fixed number of worker goroutines that execute tasks
concurrently. This keeps the number of in-flight pipelines predictable when a
batch of inputs is processed at once.

Basic usage:

	pool := workerpool.New(4, 100) // 4 workers, queue size 100
	defer func() { <-pool.Shutdown() }()

	task := workerpool.TaskFunc(func(ctx context.Context) error {
		// Do work
		return nil
	})

	if err := pool.Submit(task); err != nil {
		log.Printf("Failed to submit: %v", err)
	}

Results are delivered through the OnTaskComplete callback:

	pool := workerpool.NewWithConfig(workerpool.Config{
		WorkerCount: 4,
		QueueSize:   16,
		TaskTimeout: 30 * time.Second,
		OnTaskComplete: func(workerID int, result workerpool.Result) {
			if result.Error != nil {
				slog.Warn("task failed", "worker", workerID, "error", result.Error)
			}
		},
	})

Shutdown:

Shutdown stops accepting new tasks, lets the workers drain whatever is
already queued and closes the returned channel once every worker has exited.
Submitters blocked on a full queue return an error wrapping errors.ErrClosed.

Panics:

A panicking task does not take its worker down. The panic is recovered,
handed to Config.PanicHandler when set, and reported as the task's error
together with the stack trace.
*/
package workerpool
