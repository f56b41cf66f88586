package metrics

import (
	"time"
)

// Sink is the port orchestrators report telemetry through. Implementations
// must be safe for concurrent use; observations never influence control flow.
type Sink interface {
	// OperationStarted marks an execution as in flight.
	OperationStarted(service string)
	// OperationFinished ends an execution started with OperationStarted.
	OperationFinished(service string)
	// PipelineCompleted observes the duration of one finished execution.
	PipelineCompleted(service, status string, d time.Duration)
	// StageCompleted observes the duration of one attempted stage.
	StageCompleted(service, stage string, d time.Duration)
	// StageFailed counts one failed stage.
	StageFailed(service, stage string)
}

// PrometheusSink records into a Registry.
type PrometheusSink struct {
	registry *Registry
}

var _ Sink = (*PrometheusSink)(nil)

// NewSink creates a sink over registry. A nil registry means DefaultRegistry.
func NewSink(registry *Registry) *PrometheusSink {
	if registry == nil {
		registry = DefaultRegistry
	}
	return &PrometheusSink{registry: registry}
}

// Default returns a sink over DefaultRegistry.
func Default() Sink {
	return NewSink(DefaultRegistry)
}

// Registry returns the registry backing the sink.
func (s *PrometheusSink) Registry() *Registry {
	return s.registry
}

func (s *PrometheusSink) OperationStarted(service string) {
	s.registry.ActiveOperations.WithLabelValues(service).Inc()
}

func (s *PrometheusSink) OperationFinished(service string) {
	s.registry.ActiveOperations.WithLabelValues(service).Dec()
}

func (s *PrometheusSink) PipelineCompleted(service, status string, d time.Duration) {
	s.registry.PipelineDuration.WithLabelValues(service, status).Observe(Milliseconds(d))
}

func (s *PrometheusSink) StageCompleted(service, stage string, d time.Duration) {
	s.registry.StageLatency.WithLabelValues(service, stage).Observe(Milliseconds(d))
}

func (s *PrometheusSink) StageFailed(service, stage string) {
	s.registry.PipelineErrors.WithLabelValues(service, stage).Inc()
}

// NoopSink discards all observations.
type NoopSink struct{}

var _ Sink = NoopSink{}

func (NoopSink) OperationStarted(string) {}
func (NoopSink) OperationFinished(string) {}
func (NoopSink) PipelineCompleted(string, string, time.Duration) {}
func (NoopSink) StageCompleted(string, string, time.Duration) {}
func (NoopSink) StageFailed(string, string) {}

// Milliseconds converts d to fractional milliseconds.
func Milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
