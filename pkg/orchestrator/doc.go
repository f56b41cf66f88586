/*
Package orchestrator runs named, ordered pipelines of stages over a shared
per-request context, with stage and pipeline timeouts, critical and
non-critical stages, and latency and error telemetry.

An orchestrator is built from a Config and three hooks:

	registration, err := orchestrator.New(orchestrator.DefaultConfig("registration"),
		orchestrator.Hooks[Request, User]{
			Pipeline: func() []orchestrator.Stage[Request] {
				return []orchestrator.Stage[Request]{
					orchestrator.NewStage("validate", validate),
					orchestrator.NewStage("persist", persist),
					orchestrator.NewStage("notify", notify,
						orchestrator.NonCritical(),
						orchestrator.WithTimeout(2*time.Second)),
				}
			},
			BuildResult: func(pc *orchestrator.PipelineContext[Request]) (User, error) {
				user, ok := orchestrator.ResultAs[User](pc, "user")
				if !ok {
					return User{}, errors.New("user missing")
				}
				return user, nil
			},
		})

	result := registration.Execute(ctx, req)
	if !result.Success {
		return result.Error
	}

InitContext is optional; without it every execution starts from
NewContext(input).

Stages:

Stages run strictly one after another. A stage is critical unless marked
NonCritical: a critical failure stops the pipeline and becomes the result
error as a *StageError naming the stage. A non-critical failure is appended
to the context's error list and the next stage runs on the context as the
failed stage left it.

Only returned errors drive that decision. An operation that records a
problem with PipelineContext.AddError and returns nil has not failed; the
result builder decides what accumulated errors mean, typically by
returning pc.Err().

Timeouts:

Config.Timeout bounds the whole stage loop (30s by default) and
Stage.Timeout bounds a single stage. Both are cooperative. The operation
receives a context that is cancelled when either expires, and the
orchestrator stops waiting for it, but an operation that ignores its
context keeps running in the background after Execute has returned. Writes
made by such an orphaned operation are not rolled back. Operations that
talk to external systems should pass their context on.

A stage timeout is a stage failure and follows the critical or
non-critical policy. A pipeline timeout is always fatal and is reported as
a *PipelineTimeoutError; errors.Is(err, errors.ErrTimeout) matches both.

Telemetry:

Each execution owns a Tracker that records one duration per attempted
stage: under the stage name on success and under name + ErrorSuffix on
failure or timeout. Result.Metrics is a snapshot of it and may be partial.

When EnableMetrics is set, the orchestrator reports to a metrics.Sink: the
active-operations gauge, one pipeline-duration observation per execution
labelled success or error, one stage-latency observation per attempted
stage, and one error count per failed stage. Failures outside the stage
loop (initialization, result building, pipeline timeout, cancellation) are
counted under the stage label "unknown". With metrics disabled a
NoopTracker and metrics.NoopSink are used instead.

Concurrency:

An Orchestrator holds only configuration and may run any number of
executions concurrently. ExecuteAsync runs one execution in the background
and ExecuteAll fans a batch out over Config.WorkerPool.
*/
package orchestrator
