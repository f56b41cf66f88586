package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/vnykmshr/stagehand/pkg/metrics"
)

type greetRequest struct {
	Name string
}

type greeting struct {
	Text   string
	Errors int
}

type sinkEvent struct {
	kind    string
	service string
	stage   string
	status  string
}

// recordingSink captures metric events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []sinkEvent
	active map[string]int
}

var _ metrics.Sink = (*recordingSink)(nil)

func newRecordingSink() *recordingSink {
	return &recordingSink{active: make(map[string]int)}
}

func (s *recordingSink) record(e sinkEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	switch e.kind {
	case "started":
		s.active[e.service]++
	case "finished":
		s.active[e.service]--
	}
}

func (s *recordingSink) OperationStarted(service string) {
	s.record(sinkEvent{kind: "started", service: service})
}

func (s *recordingSink) OperationFinished(service string) {
	s.record(sinkEvent{kind: "finished", service: service})
}

func (s *recordingSink) PipelineCompleted(service, status string, _ time.Duration) {
	s.record(sinkEvent{kind: "pipeline", service: service, status: status})
}

func (s *recordingSink) StageCompleted(service, stage string, _ time.Duration) {
	s.record(sinkEvent{kind: "latency", service: service, stage: stage})
}

func (s *recordingSink) StageFailed(service, stage string) {
	s.record(sinkEvent{kind: "failed", service: service, stage: stage})
}

// stages returns the stage labels of events of the given kind, in order.
func (s *recordingSink) stages(kind string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.events {
		if e.kind == kind {
			out = append(out, e.stage)
		}
	}
	return out
}

func (s *recordingSink) statuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.events {
		if e.kind == "pipeline" {
			out = append(out, e.status)
		}
	}
	return out
}

func (s *recordingSink) activeCount(service string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[service]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(name string, sink metrics.Sink) Config {
	cfg := DefaultConfig(name)
	cfg.Sink = sink
	cfg.Logger = discardLogger()
	return cfg
}

// buildGreeting returns the "greeting" result and the soft error count.
func buildGreeting(pc *PipelineContext[greetRequest]) (greeting, error) {
	text, _ := ResultAs[string](pc, "greeting")
	return greeting{Text: text, Errors: len(pc.Errors())}, nil
}

func newGreeter(t *testing.T, cfg Config, stages ...Stage[greetRequest]) *Orchestrator[greetRequest, greeting] {
	t.Helper()
	o, err := New(cfg, Hooks[greetRequest, greeting]{
		Pipeline:    func() []Stage[greetRequest] { return stages },
		BuildResult: buildGreeting,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

// step returns an operation that records its name in order and succeeds.
func step(name string, order *[]string) Operation[greetRequest] {
	return func(_ context.Context, pc *PipelineContext[greetRequest]) (*PipelineContext[greetRequest], error) {
		*order = append(*order, name)
		return pc, nil
	}
}

func failing(err error) Operation[greetRequest] {
	return func(_ context.Context, pc *PipelineContext[greetRequest]) (*PipelineContext[greetRequest], error) {
		return pc, err
	}
}

// hang returns an operation that ignores its context and blocks until the
// test ends. The returned channel is closed when the operation returns.
// The operation must be run at most once.
func hang(t *testing.T) (Operation[greetRequest], <-chan struct{}) {
	t.Helper()
	release := make(chan struct{})
	returned := make(chan struct{})
	t.Cleanup(func() { close(release) })

	op := func(_ context.Context, pc *PipelineContext[greetRequest]) (*PipelineContext[greetRequest], error) {
		defer close(returned)
		<-release
		return pc, nil
	}
	return op, returned
}

func metricKeys(m map[string]time.Duration) map[string]bool {
	keys := make(map[string]bool, len(m))
	for k := range m {
		keys[k] = true
	}
	return keys
}
