package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// ErrorSuffix is appended to a stage name when the tracker records a failed
// attempt, so failed and successful durations are never merged.
const ErrorSuffix = ":error"

// Operation is the unit of work a stage performs. It takes the pipeline
// context and returns it, possibly mutated, or fails. Returning a nil
// context with a nil error keeps the context that was passed in.
type Operation[In any] func(ctx context.Context, pc *PipelineContext[In]) (*PipelineContext[In], error)

// Stage is one named step of a pipeline.
type Stage[In any] struct {
	// Name labels the stage in metrics, logs and errors.
	Name string

	// Operation does the work.
	Operation Operation[In]

	// Optional marks a non-critical stage: its failure is recorded in the
	// context's error list and the pipeline continues. Stages are critical
	// by default.
	Optional bool

	// Timeout bounds the stage on its own. Zero means the stage is only
	// bounded by the pipeline timeout.
	Timeout time.Duration
}

// Critical reports whether a failure of this stage aborts the pipeline.
func (s Stage[In]) Critical() bool {
	return !s.Optional
}

// StageOption customises a stage built with NewStage.
type StageOption func(*stageSettings)

type stageSettings struct {
	optional bool
	timeout  time.Duration
}

// NonCritical lets the pipeline continue when the stage fails.
func NonCritical() StageOption {
	return func(s *stageSettings) { s.optional = true }
}

// WithTimeout gives the stage its own timeout.
func WithTimeout(d time.Duration) StageOption {
	return func(s *stageSettings) { s.timeout = d }
}

// NewStage builds a critical stage without its own timeout unless options
// say otherwise.
func NewStage[In any](name string, op Operation[In], opts ...StageOption) Stage[In] {
	var settings stageSettings
	for _, opt := range opts {
		opt(&settings)
	}
	return Stage[In]{
		Name:      name,
		Operation: op,
		Optional:  settings.optional,
		Timeout:   settings.timeout,
	}
}

// Wrap returns an operation that times op and records the duration in
// tracker: under name on success, under name+ErrorSuffix on failure.
// Errors are returned unchanged and panics are converted to errors.
func Wrap[In any](name string, op Operation[In], tracker Tracker) Operation[In] {
	return func(ctx context.Context, pc *PipelineContext[In]) (*PipelineContext[In], error) {
		start := time.Now()
		next, err := call(ctx, op, pc)
		elapsed := time.Since(start)

		if err != nil {
			tracker.Track(name+ErrorSuffix, elapsed)
			return next, err
		}
		tracker.Track(name, elapsed)
		return next, nil
	}
}

func call[In any](ctx context.Context, op Operation[In], pc *PipelineContext[In]) (next *PipelineContext[In], err error) {
	defer func() {
		if r := recover(); r != nil {
			next = nil
			err = fmt.Errorf("operation panicked: %v\nStack trace:\n%s", r, debug.Stack())
		}
	}()
	if op == nil {
		return nil, fmt.Errorf("operation is nil")
	}
	return op(ctx, pc)
}
