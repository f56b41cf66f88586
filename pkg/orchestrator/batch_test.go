package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vnykmshr/stagehand/internal/testutil"
	gferrors "github.com/vnykmshr/stagehand/pkg/common/errors"
	"github.com/vnykmshr/stagehand/pkg/scheduling/workerpool"
)

func echoStage() Stage[greetRequest] {
	return NewStage("echo", func(_ context.Context, pc *PipelineContext[greetRequest]) (*PipelineContext[greetRequest], error) {
		if pc.Input.Name == "" {
			return pc, errors.New("name is required")
		}
		time.Sleep(2 * time.Millisecond)
		pc.SetResult("greeting", pc.Input.Name)
		return pc, nil
	})
}

func TestExecuteAll_Sequential(t *testing.T) {
	o := newGreeter(t, testConfig("greeter", newRecordingSink()), echoStage())

	inputs := []greetRequest{{Name: "a"}, {Name: ""}, {Name: "c"}}
	results := o.ExecuteAll(context.Background(), inputs)

	testutil.AssertEqual(t, len(results), 3)
	testutil.AssertEqual(t, results[0].Data.Text, "a")
	testutil.AssertEqual(t, results[1].Success, false)
	testutil.AssertEqual(t, results[2].Data.Text, "c")
}

func TestExecuteAll_WorkerPool(t *testing.T) {
	var maxActive, active int32
	pool := workerpool.NewWithConfig(workerpool.Config{
		WorkerCount: 4,
		QueueSize:   8,
		OnTaskStart: func(int, workerpool.Task) {
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
		},
		OnTaskComplete: func(int, workerpool.Result) {
			atomic.AddInt32(&active, -1)
		},
	})
	defer func() { <-pool.Shutdown() }()

	sink := newRecordingSink()
	cfg := testConfig("greeter", sink)
	cfg.WorkerPool = pool
	o := newGreeter(t, cfg, echoStage())

	inputs := make([]greetRequest, 20)
	for i := range inputs {
		inputs[i] = greetRequest{Name: fmt.Sprintf("n%d", i)}
	}
	inputs[7].Name = ""

	results := o.ExecuteAll(context.Background(), inputs)

	testutil.AssertEqual(t, len(results), len(inputs))
	for i, r := range results {
		if i == 7 {
			testutil.AssertEqual(t, r.Success, false)
			continue
		}
		testutil.AssertEqual(t, r.Success, true)
		testutil.AssertEqual(t, r.Data.Text, fmt.Sprintf("n%d", i))
	}
	if m := atomic.LoadInt32(&maxActive); m > 4 {
		t.Errorf("ran %d executions at once on a pool of 4", m)
	}
	testutil.AssertEqual(t, pool.TotalCompleted(), int64(len(inputs)))
	testutil.AssertEqual(t, sink.activeCount("greeter"), 0)
}

func TestExecuteAll_ClosedPool(t *testing.T) {
	pool := workerpool.New(1, 1)
	<-pool.Shutdown()

	cfg := testConfig("greeter", newRecordingSink())
	cfg.WorkerPool = pool
	o := newGreeter(t, cfg, echoStage())

	results := o.ExecuteAll(context.Background(), []greetRequest{{Name: "a"}, {Name: "b"}})

	for _, r := range results {
		testutil.AssertEqual(t, r.Success, false)
		testutil.AssertErrorIs(t, r.Error, gferrors.ErrClosed)

		var oerr *gferrors.OperationError
		if !errors.As(r.Error, &oerr) {
			t.Fatalf("expected *OperationError, got %T", r.Error)
		}
		testutil.AssertEqual(t, oerr.Operation, "submit")
	}
}

func TestExecuteAll_Empty(t *testing.T) {
	o := newGreeter(t, testConfig("greeter", newRecordingSink()), echoStage())
	testutil.AssertEqual(t, len(o.ExecuteAll(context.Background(), nil)), 0)
}
