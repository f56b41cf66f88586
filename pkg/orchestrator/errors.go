package orchestrator

import (
	"errors"
	"fmt"
	"time"

	gferrors "github.com/vnykmshr/stagehand/pkg/common/errors"
)

// StageError reports a stage that failed or ran out of time.
// Critical failures are returned as the result error; non-critical ones
// are appended to the pipeline context.
type StageError struct {
	// Orchestrator is the name of the orchestrator that ran the stage.
	Orchestrator string

	// Stage is the failing stage.
	Stage string

	// Critical tells whether the failure aborted the pipeline.
	Critical bool

	// Timeout is the stage timeout that expired, zero otherwise.
	Timeout time.Duration

	// Cause is the error returned by the operation, or ErrTimeout.
	Cause error
}

func (e *StageError) Error() string {
	if e.Timeout > 0 && errors.Is(e.Cause, gferrors.ErrTimeout) {
		return fmt.Sprintf("%s: stage %q timed out after %v", e.Orchestrator, e.Stage, e.Timeout)
	}
	return fmt.Sprintf("%s: stage %q failed: %v", e.Orchestrator, e.Stage, e.Cause)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// TimedOut reports whether the stage exceeded its own timeout.
func (e *StageError) TimedOut() bool {
	return e.Timeout > 0 && errors.Is(e.Cause, gferrors.ErrTimeout)
}

// PipelineTimeoutError reports that the whole pipeline exceeded its timeout.
type PipelineTimeoutError struct {
	Orchestrator string
	Timeout      time.Duration
}

func (e *PipelineTimeoutError) Error() string {
	return fmt.Sprintf("%s: pipeline timed out after %v", e.Orchestrator, e.Timeout)
}

// Unwrap lets errors.Is match ErrTimeout.
func (e *PipelineTimeoutError) Unwrap() error {
	return gferrors.ErrTimeout
}

// FailedStage returns the name of the stage that caused err, if err came
// from a stage.
func FailedStage(err error) (string, bool) {
	var serr *StageError
	if errors.As(err, &serr) {
		return serr.Stage, true
	}
	return "", false
}
