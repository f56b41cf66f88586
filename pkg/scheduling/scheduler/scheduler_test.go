package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vnykmshr/stagehand/internal/testutil"
	gferrors "github.com/vnykmshr/stagehand/pkg/common/errors"
	"github.com/vnykmshr/stagehand/pkg/metrics"
	"github.com/vnykmshr/stagehand/pkg/scheduling/workerpool"
)

func newTestScheduler(t *testing.T, cfg Config) Scheduler {
	t.Helper()
	if cfg.TickInterval == 0 {
		cfg.TickInterval = 5 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := NewWithConfig(cfg)
	t.Cleanup(func() { <-s.Stop() })
	return s
}

func counting(counter *int32) workerpool.Task {
	return workerpool.TaskFunc(func(_ context.Context) error {
		atomic.AddInt32(counter, 1)
		return nil
	})
}

func TestScheduler_BasicScheduling(t *testing.T) {
	s := newTestScheduler(t, Config{})
	testutil.AssertNoError(t, s.Start())

	var executed int32
	task := counting(&executed)

	// Test immediate scheduling
	testutil.AssertNoError(t, s.Schedule("now", task, time.Now()))

	// Test delayed scheduling
	testutil.AssertNoError(t, s.ScheduleAfter("later", task, 30*time.Millisecond))

	testutil.AssertEventually(t, func() bool { return atomic.LoadInt32(&executed) == 2 })

	// One-time tasks are removed once they ran.
	testutil.AssertEventually(t, func() bool { return len(s.List()) == 0 })
}

func TestScheduler_RepeatingTask(t *testing.T) {
	s := newTestScheduler(t, Config{})
	testutil.AssertNoError(t, s.Start())

	var executed int32
	testutil.AssertNoError(t, s.ScheduleRepeating("repeat", counting(&executed), 20*time.Millisecond))

	testutil.AssertEventually(t, func() bool { return atomic.LoadInt32(&executed) >= 3 })

	testutil.AssertEqual(t, s.Cancel("repeat"), true)
	testutil.AssertEqual(t, s.Cancel("repeat"), false)
}

func TestScheduler_CronTask(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the next second boundary")
	}

	s := newTestScheduler(t, Config{})
	testutil.AssertNoError(t, s.Start())

	var executed int32
	testutil.AssertNoError(t, s.ScheduleCron("every-second", "* * * * * *", counting(&executed)))

	next, err := s.Next("every-second")
	testutil.AssertNoError(t, err)
	if until := time.Until(next); until > time.Second {
		t.Errorf("next run in %v, want within a second", until)
	}

	testutil.Eventually(t, func() bool { return atomic.LoadInt32(&executed) >= 1 }, 3*time.Second, 10*time.Millisecond)

	tasks := s.List()
	testutil.AssertEqual(t, len(tasks), 1)
	testutil.AssertEqual(t, tasks[0].Cron, "* * * * * *")
}

func TestScheduler_Validation(t *testing.T) {
	s := newTestScheduler(t, Config{MaxTasks: 1})
	var n int32
	task := counting(&n)

	tests := []struct {
		name string
		err  error
	}{
		{"empty id", s.Schedule("", task, time.Now())},
		{"long id", s.Schedule(strings.Repeat("x", 256), task, time.Now())},
		{"nil task", s.Schedule("nil", nil, time.Now())},
		{"zero time", s.Schedule("zero", task, time.Time{})},
		{"bad interval", s.ScheduleRepeating("interval", task, 0)},
		{"empty cron", s.ScheduleCron("cron", "", task)},
		{"bad cron", s.ScheduleCron("cron", "not a cron", task)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertError(t, tt.err)
		})
	}

	testutil.AssertNoError(t, s.ScheduleAfter("first", task, time.Hour))
	testutil.AssertError(t, s.ScheduleAfter("first", task, time.Hour))
	testutil.AssertError(t, s.ScheduleAfter("second", task, time.Hour))
}

func TestScheduler_NextAndList(t *testing.T) {
	s := newTestScheduler(t, Config{})
	var n int32

	later := time.Now().Add(time.Hour)
	sooner := time.Now().Add(time.Minute)
	testutil.AssertNoError(t, s.Schedule("later", counting(&n), later))
	testutil.AssertNoError(t, s.Schedule("sooner", counting(&n), sooner))

	next, err := s.Next("later")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, next.Equal(later), true)

	_, err = s.Next("missing")
	testutil.AssertErrorIs(t, err, gferrors.ErrNotFound)

	tasks := s.List()
	testutil.AssertEqual(t, len(tasks), 2)
	testutil.AssertEqual(t, tasks[0].ID, "sooner")

	s.CancelAll()
	testutil.AssertEqual(t, len(s.List()), 0)
}

func TestScheduler_StartTwice(t *testing.T) {
	s := newTestScheduler(t, Config{})
	testutil.AssertNoError(t, s.Start())
	testutil.AssertError(t, s.Start())
}

func TestScheduler_MetricsAndErrors(t *testing.T) {
	registry := metrics.NewRegistry(prometheus.NewRegistry())
	failures := testutil.NewCallbackTracker()

	s := newTestScheduler(t, Config{
		Metrics: registry,
		OnError: func(id string, err error) { failures.Mark(id) },
	})
	testutil.AssertNoError(t, s.Start())

	var ok int32
	testutil.AssertNoError(t, s.Schedule("good", counting(&ok), time.Now()))
	testutil.AssertNoError(t, s.Schedule("bad", workerpool.TaskFunc(func(context.Context) error {
		return errors.New("nope")
	}), time.Now()))

	runs := registry.ScheduledRuns
	testutil.AssertEventually(t, func() bool {
		return promtest.ToFloat64(runs.WithLabelValues("good", metrics.StatusSuccess)) == 1 &&
			promtest.ToFloat64(runs.WithLabelValues("bad", metrics.StatusError)) == 1
	})
	testutil.AssertEqual(t, failures.Value(), interface{}("bad"))
}

func TestScheduler_SharedPool(t *testing.T) {
	pool := workerpool.New(1, 4)
	s := newTestScheduler(t, Config{WorkerPool: pool})
	testutil.AssertNoError(t, s.Start())

	var executed int32
	testutil.AssertNoError(t, s.Schedule("once", counting(&executed), time.Now()))
	testutil.AssertEventually(t, func() bool { return atomic.LoadInt32(&executed) == 1 })

	<-s.Stop()

	// A pool passed in stays usable after Stop.
	testutil.AssertNoError(t, pool.Submit(counting(&executed)))
	<-pool.Shutdown()
	testutil.AssertEqual(t, atomic.LoadInt32(&executed), int32(2))
}

func TestValidateCronExpression(t *testing.T) {
	valid := []string{"* * * * *", "0 */2 * * *", "30 14 * * 1-5", "*/10 * * * * *", "@hourly", "@every 5m"}
	for _, expr := range valid {
		testutil.AssertNoError(t, ValidateCronExpression(expr))
	}

	for _, expr := range []string{"", "* * *", "61 * * * *", "@sometimes"} {
		err := ValidateCronExpression(expr)
		if !gferrors.IsValidationError(err) {
			t.Errorf("ValidateCronExpression(%q) = %v, want validation error", expr, err)
		}
	}
}
