package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vnykmshr/stagehand/internal/testutil"
)

func newTestSink(t *testing.T) (*PrometheusSink, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewSink(NewRegistry(reg)), reg
}

func TestPrometheusSink_ActiveOperations(t *testing.T) {
	sink, _ := newTestSink(t)

	sink.OperationStarted("registration")
	sink.OperationStarted("registration")
	sink.OperationFinished("registration")

	got := promtest.ToFloat64(sink.Registry().ActiveOperations.WithLabelValues("registration"))
	testutil.AssertEqual(t, got, 1.0)
}

func TestPrometheusSink_Histograms(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.PipelineCompleted("registration", StatusSuccess, 120*time.Millisecond)
	sink.PipelineCompleted("registration", StatusError, 5*time.Millisecond)
	sink.StageCompleted("registration", "validate", time.Millisecond)
	sink.StageCompleted("registration", "persist", 3*time.Millisecond)

	testutil.AssertEqual(t, promtest.CollectAndCount(sink.Registry().PipelineDuration), 2)
	testutil.AssertEqual(t, promtest.CollectAndCount(sink.Registry().StageLatency), 2)

	count, err := promtest.GatherAndCount(reg, "stagehand_stage_latency_milliseconds")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, count, 2)
}

func TestPrometheusSink_StageFailed(t *testing.T) {
	sink, _ := newTestSink(t)

	sink.StageFailed("registration", "notify")
	sink.StageFailed("registration", "notify")
	sink.StageFailed("registration", UnknownStage)

	errs := sink.Registry().PipelineErrors
	testutil.AssertEqual(t, promtest.ToFloat64(errs.WithLabelValues("registration", "notify")), 2.0)
	testutil.AssertEqual(t, promtest.ToFloat64(errs.WithLabelValues("registration", UnknownStage)), 1.0)
}

func TestPrometheusSink_Concurrent(t *testing.T) {
	sink, _ := newTestSink(t)

	const goroutines = 20
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink.OperationStarted("calc")
			sink.StageFailed("calc", "sum")
			sink.OperationFinished("calc")
		}()
	}
	wg.Wait()

	registry := sink.Registry()
	testutil.AssertEqual(t, promtest.ToFloat64(registry.ActiveOperations.WithLabelValues("calc")), 0.0)
	testutil.AssertEqual(t, promtest.ToFloat64(registry.PipelineErrors.WithLabelValues("calc", "sum")), float64(goroutines))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	testutil.AssertEqual(t, cfg.Namespace, DefaultNamespace)
	testutil.AssertEqual(t, len(cfg.Buckets), len(DefaultBuckets))
	testutil.AssertEqual[prometheus.Registerer](t, cfg.Registry, prometheus.DefaultRegisterer)

	empty := Config{}.withDefaults()
	testutil.AssertEqual(t, empty.Namespace, DefaultNamespace)
	testutil.AssertEqual[prometheus.Registerer](t, empty.Registry, prometheus.DefaultRegisterer)
}

func TestNewRegistryWithConfig_Namespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	registry := NewRegistryWithConfig(Config{
		Registry:  reg,
		Namespace: "myapp",
		Labels:    prometheus.Labels{"env": "test"},
	})

	registry.PipelineErrors.WithLabelValues("svc", "stage").Inc()

	count, err := promtest.GatherAndCount(reg, "myapp_pipeline_errors_total")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, count, 1)
}

func TestNoopSink(t *testing.T) {
	var sink Sink = NoopSink{}
	sink.OperationStarted("x")
	sink.OperationFinished("x")
	sink.PipelineCompleted("x", StatusSuccess, time.Second)
	sink.StageCompleted("x", "y", time.Second)
	sink.StageFailed("x", "y")
}

func TestMilliseconds(t *testing.T) {
	testutil.AssertEqual(t, Milliseconds(1500*time.Microsecond), 1.5)
	testutil.AssertEqual(t, Milliseconds(0), 0.0)
}
