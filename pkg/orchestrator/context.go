package orchestrator

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vnykmshr/stagehand/pkg/store"
)

// Metadata keys written by the orchestrator.
const (
	MetadataOrchestrator = "orchestrator"
	MetadataInputType    = "input_type"
)

// PipelineContext is the value threaded through every stage of one
// execution. Only one stage works on it at a time; the accessors are
// still guarded because a stage abandoned after a timeout keeps running
// in the background and may touch it.
type PipelineContext[In any] struct {
	// RequestID correlates logs of one execution.
	RequestID string

	// StartTime is when the context was created.
	StartTime time.Time

	// Input is the request payload. Stages must not modify it.
	Input In

	// Tracker records stage durations for this execution.
	Tracker Tracker

	// Store is the storage handle stages persist through. May be nil.
	Store store.Store

	mu       sync.RWMutex
	results  map[string]interface{}
	errs     []error
	metadata map[string]string
}

// NewContext creates a context for input with a fresh request id.
// The tracker is left nil; the orchestrator attaches one.
func NewContext[In any](input In) *PipelineContext[In] {
	return &PipelineContext[In]{
		RequestID: uuid.NewString(),
		StartTime: time.Now(),
		Input:     input,
		results:   make(map[string]interface{}),
		metadata:  make(map[string]string),
	}
}

// SetResult stashes a side product of a stage under key.
func (pc *PipelineContext[In]) SetResult(key string, value interface{}) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.results[key] = value
}

// Result returns the value stored under key.
func (pc *PipelineContext[In]) Result(key string) (interface{}, bool) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	v, ok := pc.results[key]
	return v, ok
}

// Results returns a copy of all stored results.
func (pc *PipelineContext[In]) Results() map[string]interface{} {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	out := make(map[string]interface{}, len(pc.results))
	for k, v := range pc.results {
		out[k] = v
	}
	return out
}

// AddError appends err to the accumulated error list. Nil is ignored.
func (pc *PipelineContext[In]) AddError(err error) {
	if err == nil {
		return
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.errs = append(pc.errs, err)
}

// Errors returns a copy of the accumulated errors, oldest first.
func (pc *PipelineContext[In]) Errors() []error {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return append([]error(nil), pc.errs...)
}

// HasErrors reports whether any error has been accumulated.
func (pc *PipelineContext[In]) HasErrors() bool {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return len(pc.errs) > 0
}

// Err joins the accumulated errors, or returns nil when there are none.
// Result builders use it to turn context-recorded errors into a failure.
func (pc *PipelineContext[In]) Err() error {
	return errors.Join(pc.Errors()...)
}

// SetMetadata tags the execution.
func (pc *PipelineContext[In]) SetMetadata(key, value string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.metadata[key] = value
}

// Metadata returns the tag stored under key.
func (pc *PipelineContext[In]) Metadata(key string) (string, bool) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	v, ok := pc.metadata[key]
	return v, ok
}

// AllMetadata returns a copy of all tags.
func (pc *PipelineContext[In]) AllMetadata() map[string]string {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	out := make(map[string]string, len(pc.metadata))
	for k, v := range pc.metadata {
		out[k] = v
	}
	return out
}

// ensureInitialized fills the collections of a context built as a struct
// literal by a custom initializer.
func (pc *PipelineContext[In]) ensureInitialized() {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.results == nil {
		pc.results = make(map[string]interface{})
	}
	if pc.metadata == nil {
		pc.metadata = make(map[string]string)
	}
	if pc.RequestID == "" {
		pc.RequestID = uuid.NewString()
	}
	if pc.StartTime.IsZero() {
		pc.StartTime = time.Now()
	}
}

// ResultAs returns the result stored under key as T.
func ResultAs[T any, In any](pc *PipelineContext[In], key string) (T, bool) {
	var zero T
	v, ok := pc.Result(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
