package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
	"time"

	"github.com/vnykmshr/stagehand/pkg/common/ctxutil"
	gferrors "github.com/vnykmshr/stagehand/pkg/common/errors"
	"github.com/vnykmshr/stagehand/pkg/common/validation"
	"github.com/vnykmshr/stagehand/pkg/metrics"
	"github.com/vnykmshr/stagehand/pkg/scheduling/workerpool"
	"github.com/vnykmshr/stagehand/pkg/store"
)

// DefaultTimeout bounds a pipeline when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

const module = "orchestrator"

// Config holds orchestrator configuration options.
type Config struct {
	// Name identifies the orchestrator in metrics, logs and errors.
	Name string

	// Timeout bounds the stage loop of one execution.
	// Zero means DefaultTimeout.
	Timeout time.Duration

	// EnableMetrics turns on stage tracking and metric emission.
	EnableMetrics bool

	// LogErrors turns on logging of stage failures.
	LogErrors bool

	// Sink receives metric events. If nil, metrics.Default() is used.
	Sink metrics.Sink

	// Logger receives stage failure logs. If nil, slog.Default() is used.
	Logger *slog.Logger

	// Store is attached to every pipeline context that has none.
	Store store.Store

	// WorkerPool runs ExecuteAll inputs concurrently.
	// If nil, ExecuteAll runs them one after another.
	WorkerPool workerpool.Pool

	// Clock feeds the per-execution tracker. If nil, the system clock is used.
	Clock Clock

	// OnStageComplete is called after every stage attempt that the
	// pipeline waited for.
	OnStageComplete func(report StageReport)

	// OnPipelineComplete is called once per execution, on every path.
	OnPipelineComplete func(report Report)
}

// DefaultConfig returns a configuration with metrics and error logging on.
func DefaultConfig(name string) Config {
	return Config{
		Name:          name,
		Timeout:       DefaultTimeout,
		EnableMetrics: true,
		LogErrors:     true,
	}
}

// Hooks supply the behaviour of a concrete orchestrator.
type Hooks[In, Out any] struct {
	// InitContext builds the pipeline context for input.
	// If nil, NewContext(input) is used.
	InitContext func(ctx context.Context, input In) (*PipelineContext[In], error)

	// Pipeline returns the ordered stage list. It is called once per
	// execution.
	Pipeline func() []Stage[In]

	// BuildResult turns the final context into the response.
	BuildResult func(pc *PipelineContext[In]) (Out, error)
}

// Orchestrator runs a fixed, ordered list of stages over a shared pipeline
// context. It holds only configuration, so one instance may serve any
// number of concurrent executions.
type Orchestrator[In, Out any] struct {
	config Config
	hooks  Hooks[In, Out]
	sink   metrics.Sink
	logger *slog.Logger
}

// New creates an orchestrator. It fails when the name is empty, the
// timeout is negative or a required hook is missing.
func New[In, Out any](config Config, hooks Hooks[In, Out]) (*Orchestrator[In, Out], error) {
	if err := validation.ValidateNotEmpty(module, "name", config.Name); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegativeDuration(module, "timeout", config.Timeout); err != nil {
		return nil, err
	}
	if hooks.Pipeline == nil {
		return nil, gferrors.NewValidationError(module, "pipeline", nil, "hook is required").
			WithHint("return the stage list from Hooks.Pipeline")
	}
	if hooks.BuildResult == nil {
		return nil, gferrors.NewValidationError(module, "build_result", nil, "hook is required")
	}

	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Clock == nil {
		config.Clock = systemClock{}
	}

	o := &Orchestrator[In, Out]{
		config: config,
		hooks:  hooks,
		sink:   metrics.NoopSink{},
		logger: config.Logger,
	}
	if config.EnableMetrics {
		o.sink = config.Sink
		if o.sink == nil {
			o.sink = metrics.Default()
		}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With(slog.String("orchestrator", config.Name))

	return o, nil
}

// Name returns the orchestrator name.
func (o *Orchestrator[In, Out]) Name() string {
	return o.config.Name
}

// MetricsEnabled reports whether the orchestrator records metrics.
func (o *Orchestrator[In, Out]) MetricsEnabled() bool {
	return o.config.EnableMetrics
}

// Timeout returns the effective pipeline timeout.
func (o *Orchestrator[In, Out]) Timeout() time.Duration {
	return o.config.Timeout
}

// Execute runs the pipeline for input. Every failure is reported through
// the returned Result; Execute itself never panics on behalf of a hook or
// stage.
//
// Timeouts are cooperative. Stages receive a context that is cancelled
// when their own timeout or the pipeline timeout expires, but an operation
// that ignores it keeps running in the background after Execute returned.
func (o *Orchestrator[In, Out]) Execute(ctx context.Context, input In) (result Result[Out]) {
	start := time.Now()
	o.sink.OperationStarted(o.config.Name)
	defer func() {
		result.Duration = time.Since(start)
		o.finish(result)
	}()

	pc, err := o.initialize(ctx, input)
	if err != nil {
		o.failOutside(nil, err)
		return o.failure(nil, err)
	}

	pc, err = o.run(ctx, pc)
	if err != nil {
		return o.failure(pc, err)
	}

	data, err := o.build(pc)
	if err != nil {
		o.failOutside(pc, err)
		return o.failure(pc, err)
	}

	return Result[Out]{
		Success:   true,
		Data:      data,
		Metrics:   pc.Tracker.Metrics(),
		RequestID: pc.RequestID,
		Errors:    pc.Errors(),
	}
}

// ExecuteAsync runs Execute in a new goroutine. The channel yields exactly
// one result and is then closed.
func (o *Orchestrator[In, Out]) ExecuteAsync(ctx context.Context, input In) <-chan Result[Out] {
	resultCh := make(chan Result[Out], 1)
	go func() {
		defer close(resultCh)
		resultCh <- o.Execute(ctx, input)
	}()
	return resultCh
}

func (o *Orchestrator[In, Out]) initialize(ctx context.Context, input In) (pc *PipelineContext[In], err error) {
	defer func() {
		if r := recover(); r != nil {
			pc = nil
			err = gferrors.NewOperationError(o.config.Name, "initialize", panicError(r))
		}
	}()

	if o.hooks.InitContext != nil {
		pc, err = o.hooks.InitContext(ctx, input)
	} else {
		pc = NewContext(input)
	}
	if err != nil {
		return nil, gferrors.NewOperationError(o.config.Name, "initialize", err)
	}
	if pc == nil {
		return nil, gferrors.NewOperationError(o.config.Name, "initialize", errors.New("initializer returned no context"))
	}

	pc.ensureInitialized()
	if pc.Tracker == nil {
		pc.Tracker = o.newTracker()
	}
	if pc.Store == nil {
		pc.Store = o.config.Store
	}
	pc.SetMetadata(MetadataOrchestrator, o.config.Name)
	pc.SetMetadata(MetadataInputType, typeName(input))

	return pc, nil
}

func (o *Orchestrator[In, Out]) newTracker() Tracker {
	if !o.config.EnableMetrics {
		return NoopTracker{}
	}
	return NewTrackerWithClock(o.config.Clock)
}

func (o *Orchestrator[In, Out]) stages() (stages []Stage[In], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = gferrors.NewOperationError(o.config.Name, "pipeline", panicError(r))
		}
	}()
	return o.hooks.Pipeline(), nil
}

type loopOutcome[In any] struct {
	pc  *PipelineContext[In]
	err error
}

// errAbandoned tells run that the loop stopped because the pipeline
// context was done.
var errAbandoned = errors.New("pipeline abandoned")

// run races the stage loop against the pipeline timeout and the caller's
// context.
func (o *Orchestrator[In, Out]) run(ctx context.Context, pc *PipelineContext[In]) (*PipelineContext[In], error) {
	stages, err := o.stages()
	if err != nil {
		o.failOutside(pc, err)
		return pc, err
	}

	pctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	done := make(chan loopOutcome[In], 1)
	go func() {
		done <- o.loop(pctx, pc, stages)
	}()

	var out loopOutcome[In]
	select {
	case out = <-done:
	case <-pctx.Done():
		select {
		case out = <-done:
		default:
			out = loopOutcome[In]{pc: pc, err: errAbandoned}
		}
	}

	if errors.Is(out.err, errAbandoned) {
		err := o.abandonCause(ctx, pctx)
		o.failOutside(pc, err)
		return pc, err
	}
	return out.pc, out.err
}

func (o *Orchestrator[In, Out]) abandonCause(ctx, pctx context.Context) error {
	if ctxutil.ExpiredHere(ctx, pctx) {
		return &PipelineTimeoutError{Orchestrator: o.config.Name, Timeout: o.config.Timeout}
	}
	return gferrors.NewOperationError(o.config.Name, "execute", ctx.Err())
}

// loop runs the stages in order. It returns errAbandoned as soon as it
// notices that ctx is done; nothing is recorded for the stage in flight at
// that moment.
func (o *Orchestrator[In, Out]) loop(ctx context.Context, pc *PipelineContext[In], stages []Stage[In]) loopOutcome[In] {
	for _, stage := range stages {
		if ctx.Err() != nil {
			return loopOutcome[In]{pc: pc, err: errAbandoned}
		}

		next, elapsed, timedOut, err := o.runStage(ctx, stage, pc)
		if ctx.Err() != nil {
			return loopOutcome[In]{pc: pc, err: errAbandoned}
		}

		o.sink.StageCompleted(o.config.Name, stage.Name, elapsed)

		if err == nil {
			if next != nil {
				pc = next
			}
			o.reportStage(pc, stage, elapsed, nil)
			continue
		}

		serr := &StageError{
			Orchestrator: o.config.Name,
			Stage:        stage.Name,
			Critical:     stage.Critical(),
			Cause:        err,
		}
		if timedOut {
			serr.Timeout = stage.Timeout
		}

		o.sink.StageFailed(o.config.Name, stage.Name)
		o.reportStage(pc, stage, elapsed, serr)

		if stage.Critical() {
			o.logStageFailure(slog.LevelError, "critical stage failed", pc, stage.Name, elapsed, serr)
			return loopOutcome[In]{pc: pc, err: serr}
		}

		o.logStageFailure(slog.LevelWarn, "non-critical stage failed", pc, stage.Name, elapsed, serr)
		pc.AddError(serr)
	}

	return loopOutcome[In]{pc: pc}
}

// runStage performs one stage attempt. With a stage timeout the wrapped
// operation runs in its own goroutine and is abandoned, not stopped, when
// the timeout wins.
func (o *Orchestrator[In, Out]) runStage(ctx context.Context, stage Stage[In], pc *PipelineContext[In]) (*PipelineContext[In], time.Duration, bool, error) {
	start := time.Now()
	tracker := &onceTracker{Tracker: pc.Tracker}
	wrapped := Wrap(stage.Name, stage.Operation, tracker)

	if stage.Timeout <= 0 {
		next, err := wrapped(ctx, pc)
		return next, time.Since(start), false, err
	}

	sctx, cancel := context.WithTimeout(ctx, stage.Timeout)
	defer cancel()

	done := make(chan loopOutcome[In], 1)
	go func() {
		next, err := wrapped(sctx, pc)
		done <- loopOutcome[In]{pc: next, err: err}
	}()

	var out loopOutcome[In]
	select {
	case out = <-done:
	case <-sctx.Done():
		select {
		case out = <-done:
		default:
			out.err = gferrors.ErrTimeout
		}
	}

	elapsed := time.Since(start)
	if out.err == nil {
		return out.pc, elapsed, false, nil
	}
	if !ctxutil.ExpiredHere(ctx, sctx) {
		return out.pc, elapsed, false, out.err
	}

	// An operation that gave up because its stage timeout fired counts as
	// a timeout too. The wrapper may already have recorded it.
	tracker.Track(stage.Name+ErrorSuffix, elapsed)
	return nil, elapsed, true, gferrors.ErrTimeout
}

func (o *Orchestrator[In, Out]) build(pc *PipelineContext[In]) (data Out, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = gferrors.NewOperationError(o.config.Name, "build result", panicError(r))
		}
	}()

	data, err = o.hooks.BuildResult(pc)
	if err != nil {
		var zero Out
		return zero, gferrors.NewOperationError(o.config.Name, "build result", err)
	}
	return data, nil
}

// failOutside records a failure that no stage is responsible for.
func (o *Orchestrator[In, Out]) failOutside(pc *PipelineContext[In], err error) {
	o.sink.StageFailed(o.config.Name, metrics.UnknownStage)
	if !o.config.LogErrors {
		return
	}

	attrs := []slog.Attr{slog.String("error", err.Error())}
	if pc != nil {
		attrs = append(attrs, slog.String("request_id", pc.RequestID))
	}
	o.logger.LogAttrs(context.Background(), slog.LevelError, "pipeline failed", attrs...)
}

func (o *Orchestrator[In, Out]) logStageFailure(level slog.Level, msg string, pc *PipelineContext[In], stage string, elapsed time.Duration, err error) {
	if !o.config.LogErrors {
		return
	}
	o.logger.LogAttrs(context.Background(), level, msg,
		slog.String("request_id", pc.RequestID),
		slog.String("stage", stage),
		slog.Float64("duration_ms", metrics.Milliseconds(elapsed)),
		slog.String("error", err.Error()),
	)
}

func (o *Orchestrator[In, Out]) reportStage(pc *PipelineContext[In], stage Stage[In], elapsed time.Duration, err error) {
	if o.config.OnStageComplete == nil {
		return
	}
	o.config.OnStageComplete(StageReport{
		Orchestrator: o.config.Name,
		RequestID:    pc.RequestID,
		Stage:        stage.Name,
		Critical:     stage.Critical(),
		Duration:     elapsed,
		Error:        err,
	})
}

func (o *Orchestrator[In, Out]) failure(pc *PipelineContext[In], err error) Result[Out] {
	result := Result[Out]{
		Error:   err,
		Metrics: map[string]time.Duration{},
	}
	if pc != nil {
		result.Metrics = pc.Tracker.Metrics()
		result.RequestID = pc.RequestID
		result.Errors = pc.Errors()
	}
	return result
}

func (o *Orchestrator[In, Out]) finish(result Result[Out]) {
	status := metrics.StatusSuccess
	if !result.Success {
		status = metrics.StatusError
	}
	o.sink.PipelineCompleted(o.config.Name, status, result.Duration)
	o.sink.OperationFinished(o.config.Name)

	if o.config.OnPipelineComplete != nil {
		o.config.OnPipelineComplete(Report{
			Orchestrator: o.config.Name,
			RequestID:    result.RequestID,
			Success:      result.Success,
			Error:        result.Error,
			Duration:     result.Duration,
			Metrics:      result.Metrics,
		})
	}
}

func panicError(r interface{}) error {
	return fmt.Errorf("panic: %v\nStack trace:\n%s", r, debug.Stack())
}

func typeName(v interface{}) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "nil"
	}
	return t.String()
}
