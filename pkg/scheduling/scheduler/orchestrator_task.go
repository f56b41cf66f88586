package scheduler

import (
	"context"

	"github.com/vnykmshr/stagehand/pkg/orchestrator"
	"github.com/vnykmshr/stagehand/pkg/scheduling/workerpool"
)

// OrchestratorTask turns an orchestrator run into a schedulable task.
// input is called once per run to build the request; a nil input runs
// with the zero value. A failed result fails the task with its error.
func OrchestratorTask[In, Out any](o *orchestrator.Orchestrator[In, Out], input func() In) workerpool.Task {
	return workerpool.TaskFunc(func(ctx context.Context) error {
		var in In
		if input != nil {
			in = input()
		}
		return o.Execute(ctx, in).Error
	})
}
