/*
Package stagehand provides staged pipeline orchestration for Go services:
a named, ordered list of stages run over a shared context with per-stage
and per-pipeline timeouts, critical and non-critical stages, and latency
and error telemetry.

Orchestration (pkg/orchestrator):
  - Orchestrator: runs stages, builds results, reports metrics
  - PipelineContext: per-execution state shared by stages
  - PerformanceTracker: stage durations, failed attempts kept apart

Supporting packages:
  - metrics: Prometheus instruments behind a Sink port
  - store: storage handle passed to stages (memory, Redis)
  - scheduling/workerpool: concurrent batch execution
  - scheduling/scheduler: cron-triggered runs
  - ratelimit/bucket: token bucket admission control

Example usage:

	import "github.com/vnykmshr/stagehand/pkg/orchestrator"

	o, err := orchestrator.New(orchestrator.DefaultConfig("signup"),
		orchestrator.Hooks[Request, Response]{
			Pipeline: func() []orchestrator.Stage[Request] {
				return []orchestrator.Stage[Request]{
					orchestrator.NewStage("validate", validate),
					orchestrator.NewStage("notify", notify, orchestrator.NonCritical()),
				}
			},
			BuildResult: build,
		})

	res := o.Execute(ctx, req)
	if !res.Success {
		// res.Error names the failing stage
	}
*/
package stagehand
