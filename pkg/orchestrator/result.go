package orchestrator

import "time"

// Result is the outcome of one Execute call. Exactly one of Data and Error
// is meaningful, depending on Success.
type Result[Out any] struct {
	// Success is true when every critical stage and the result builder
	// succeeded within the pipeline timeout.
	Success bool

	// Data is the built response.
	Data Out

	// Error is the failure cause when Success is false.
	Error error

	// Duration is the wall time of the whole execution.
	Duration time.Duration

	// Metrics maps stage names to durations. It is partial when the
	// pipeline failed part way.
	Metrics map[string]time.Duration

	// RequestID correlates the result with the logs of the run.
	RequestID string

	// Errors holds the soft errors accumulated in the pipeline context.
	Errors []error
}

// StageReport describes one stage attempt. It is passed to
// Config.OnStageComplete.
type StageReport struct {
	Orchestrator string
	RequestID    string
	Stage        string
	Critical     bool
	Duration     time.Duration
	Error        error
}

// Report summarises one execution. It is passed to
// Config.OnPipelineComplete.
type Report struct {
	Orchestrator string
	RequestID    string
	Success      bool
	Error        error
	Duration     time.Duration
	Metrics      map[string]time.Duration
}
