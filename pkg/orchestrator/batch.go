package orchestrator

import (
	"context"
	"sync"
	"time"

	gferrors "github.com/vnykmshr/stagehand/pkg/common/errors"
	"github.com/vnykmshr/stagehand/pkg/scheduling/workerpool"
)

// ExecuteAll runs Execute once per input and returns the results in input
// order. With a configured worker pool the executions run concurrently on
// the pool; otherwise they run one after another. An input that cannot be
// handed to the pool gets a failed result.
func (o *Orchestrator[In, Out]) ExecuteAll(ctx context.Context, inputs []In) []Result[Out] {
	results := make([]Result[Out], len(inputs))

	pool := o.config.WorkerPool
	if pool == nil {
		for i, input := range inputs {
			results[i] = o.Execute(ctx, input)
		}
		return results
	}

	var wg sync.WaitGroup
	for i, input := range inputs {
		wg.Add(1)
		task := workerpool.TaskFunc(func(taskCtx context.Context) error {
			defer wg.Done()
			results[i] = o.Execute(taskCtx, input)
			return results[i].Error
		})

		if err := pool.SubmitWithContext(ctx, task); err != nil {
			wg.Done()
			results[i] = Result[Out]{
				Error:   gferrors.NewOperationError(o.config.Name, "submit", err),
				Metrics: map[string]time.Duration{},
			}
		}
	}
	wg.Wait()

	return results
}
