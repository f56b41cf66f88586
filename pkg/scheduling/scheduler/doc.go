/*
Package scheduler triggers tasks at a fixed time, at a fixed interval or on
a cron expression, and runs them on a worker pool.

Basic Usage:

	s := scheduler.NewWithConfig(scheduler.Config{
		Metrics: metrics.DefaultRegistry,
		Logger:  logger.Logger,
	})
	if err := s.Start(); err != nil {
		return err
	}
	defer func() { <-s.Stop() }()

	task := workerpool.TaskFunc(func(ctx context.Context) error {
		return refreshCache(ctx)
	})

	// Run once, five minutes from now
	s.ScheduleAfter("warmup", task, 5*time.Minute)

	// Run every 30 seconds
	s.ScheduleRepeating("heartbeat", task, 30*time.Second)

	// Run at the top of every hour
	s.ScheduleCron("report", "0 * * * *", task)

Cron Expressions:

Expressions have five fields (minute hour day-of-month month day-of-week)
with an optional leading seconds field. Descriptors such as @hourly,
@daily and @every 10m are accepted too. Use ValidateCronExpression to check
an expression taken from configuration before scheduling it.

Orchestrators:

OrchestratorTask adapts an orchestrator into a task, so a calculation
pipeline can run on a schedule:

	s.ScheduleCron("user-summary", "@every 5m",
		scheduler.OrchestratorTask(summary, func() app.SummaryRequest {
			return app.SummaryRequest{}
		}))

Runs are counted in the stagehand_scheduler_runs_total counter, labelled by
task id and status, when Config.Metrics is set. Failed runs are logged at
WARN and passed to Config.OnError.

Lifecycle:

Start launches the ticker loop. Stop ends it, cancels submissions that are
waiting for a free worker and, when the scheduler created its own pool,
shuts that pool down after in-flight runs finish. A scheduler that owns its
pool cannot be restarted after Stop.
*/
package scheduler
