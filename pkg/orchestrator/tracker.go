package orchestrator

import (
	"sync"
	"time"
)

// Clock supplies the current time to trackers.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Tracker records how long each stage of one execution took.
type Tracker interface {
	// Track records d for stage, overwriting any earlier entry.
	Track(stage string, d time.Duration)

	// Metrics returns a snapshot of the recorded durations.
	Metrics() map[string]time.Duration

	// TotalDuration returns the time elapsed since the tracker was created.
	TotalDuration() time.Duration
}

// PerformanceTracker is the recording Tracker. It is safe for concurrent
// use: a timed-out stage may still report after the pipeline moved on.
type PerformanceTracker struct {
	clock   Clock
	started time.Time

	mu     sync.Mutex
	stages map[string]time.Duration
}

var _ Tracker = (*PerformanceTracker)(nil)

// NewTracker creates a tracker using the system clock.
func NewTracker() *PerformanceTracker {
	return NewTrackerWithClock(nil)
}

// NewTrackerWithClock creates a tracker reading time from clock.
// A nil clock means the system clock.
func NewTrackerWithClock(clock Clock) *PerformanceTracker {
	if clock == nil {
		clock = systemClock{}
	}
	return &PerformanceTracker{
		clock:   clock,
		started: clock.Now(),
		stages:  make(map[string]time.Duration),
	}
}

func (t *PerformanceTracker) Track(stage string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stages[stage] = d
}

func (t *PerformanceTracker) Metrics() map[string]time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := make(map[string]time.Duration, len(t.stages))
	for k, v := range t.stages {
		snapshot[k] = v
	}
	return snapshot
}

func (t *PerformanceTracker) TotalDuration() time.Duration {
	return t.clock.Now().Sub(t.started)
}

// NoopTracker discards everything. It stands in when metrics are disabled.
type NoopTracker struct{}

var _ Tracker = NoopTracker{}

func (NoopTracker) Track(string, time.Duration) {}

func (NoopTracker) Metrics() map[string]time.Duration { return map[string]time.Duration{} }

func (NoopTracker) TotalDuration() time.Duration { return 0 }

// onceTracker forwards only the first Track call. One is created per stage
// attempt so that the wrapper and the stage timeout never both record.
type onceTracker struct {
	Tracker
	once sync.Once
}

func (o *onceTracker) Track(stage string, d time.Duration) {
	o.once.Do(func() {
		o.Tracker.Track(stage, d)
	})
}
