/*
Package scheduling groups the execution primitives that sit around the
orchestrator:

  - workerpool: fixed worker pool used to run batches of executions concurrently
  - scheduler: time, interval and cron triggers for recurring orchestrator runs

Worker Pool:

	pool := workerpool.New(4, 100) // 4 workers, queue size 100
	defer func() { <-pool.Shutdown() }()

	cfg := orchestrator.DefaultConfig("registration")
	cfg.WorkerPool = pool

Task Scheduler:

	s := scheduler.New()
	s.Start()
	defer func() { <-s.Stop() }()

	s.ScheduleCron("user-summary", "@every 5m", scheduler.OrchestratorTask(summary, nil))
*/
package scheduling
