// Package bucket provides a token bucket rate limiter used to admit work
// into the stagehand HTTP API. Tokens refill continuously at Rate per
// second up to Burst; each admitted event takes one.
package bucket

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/vnykmshr/stagehand/pkg/common/errors"
)

// Limit represents the maximum frequency of events per second.
// A zero Limit allows only the initial tokens. Use Inf for no limit.
type Limit float64

// Inf is the infinite rate limit; it allows all events.
var Inf = Limit(math.Inf(1))

// Every converts a minimum time interval between events to a Limit.
func Every(interval time.Duration) Limit {
	if interval <= 0 {
		return Inf
	}
	return Limit(time.Second) / Limit(interval)
}

// Limiter admits events at a bounded rate.
type Limiter interface {
	// Allow reports whether an event may happen now. It does not block.
	Allow() bool

	// AllowN reports whether n events may happen now. It does not block.
	AllowN(n int) bool

	// Wait blocks until an event can happen or ctx is done.
	Wait(ctx context.Context) error

	// Limit returns the refill rate.
	Limit() Limit

	// Burst returns the bucket capacity.
	Burst() int

	// Tokens returns the number of tokens currently available.
	Tokens() float64
}

// Clock provides the current time. It can be mocked for testing.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config holds configuration options for creating a Limiter.
type Config struct {
	// Rate is the number of tokens added per second.
	Rate Limit

	// Burst is the maximum number of tokens that can be stored.
	Burst int

	// Clock provides the current time. If nil, the system clock is used.
	Clock Clock

	// InitialTokens is the number of tokens to start with.
	// If negative, starts with full capacity.
	InitialTokens int
}

type tokenBucket struct {
	mu         sync.Mutex
	limit      Limit
	burst      int
	tokens     float64
	lastUpdate time.Time
	clock      Clock
}

// NewSafe creates a full limiter, returning an error for invalid settings.
func NewSafe(rate Limit, burst int) (Limiter, error) {
	return NewWithConfigSafe(Config{Rate: rate, Burst: burst, InitialTokens: -1})
}

// NewWithConfigSafe creates a limiter, returning an error for invalid settings.
func NewWithConfigSafe(config Config) (Limiter, error) {
	if config.Rate < 0 {
		return nil, errors.NewValidationError("bucket", "rate", config.Rate, "rate cannot be negative").
			WithHint("use 0 for no refill or a positive value")
	}
	if config.Burst <= 0 {
		return nil, errors.NewValidationError("bucket", "burst", config.Burst, "burst must be positive").
			WithHint("burst determines how many tokens can be consumed instantly")
	}
	if config.Clock == nil {
		config.Clock = systemClock{}
	}

	initial := float64(config.InitialTokens)
	if config.InitialTokens < 0 || config.InitialTokens > config.Burst {
		initial = float64(config.Burst)
	}

	return &tokenBucket{
		limit:      config.Rate,
		burst:      config.Burst,
		tokens:     initial,
		lastUpdate: config.Clock.Now(),
		clock:      config.Clock,
	}, nil
}

func (tb *tokenBucket) Allow() bool {
	return tb.AllowN(1)
}

func (tb *tokenBucket) AllowN(n int) bool {
	if n <= 0 {
		return true
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if tb.limit == Inf {
		return true
	}
	tb.refill(tb.clock.Now())
	if tb.tokens < float64(n) {
		return false
	}
	tb.tokens -= float64(n)
	return true
}

func (tb *tokenBucket) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	delay, err := tb.reserve()
	if err != nil {
		return err
	}
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		tb.restore()
		return ctx.Err()
	}
}

// reserve takes one token, possibly going negative, and returns how long
// the caller must wait for it.
func (tb *tokenBucket) reserve() (time.Duration, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if tb.limit == Inf {
		return 0, nil
	}
	tb.refill(tb.clock.Now())

	if tb.tokens >= 1 {
		tb.tokens--
		return 0, nil
	}
	if tb.limit == 0 {
		return 0, errors.NewOperationError("bucket", "wait", errors.ErrTimeout).
			WithContext("no tokens and zero refill rate")
	}

	wait := time.Duration(float64(time.Second) * (1 - tb.tokens) / float64(tb.limit))
	tb.tokens--
	return wait, nil
}

func (tb *tokenBucket) restore() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill(tb.clock.Now())
	tb.tokens = math.Min(tb.tokens+1, float64(tb.burst))
}

func (tb *tokenBucket) Limit() Limit {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.limit
}

func (tb *tokenBucket) Burst() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.burst
}

func (tb *tokenBucket) Tokens() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill(tb.clock.Now())
	return tb.tokens
}

// refill adds tokens for the time elapsed since the last update.
// Callers hold tb.mu.
func (tb *tokenBucket) refill(now time.Time) {
	if tb.limit == Inf {
		tb.tokens = float64(tb.burst)
		tb.lastUpdate = now
		return
	}

	elapsed := now.Sub(tb.lastUpdate)
	if elapsed <= 0 || tb.limit == 0 {
		tb.lastUpdate = now
		return
	}

	tb.tokens = math.Min(tb.tokens+elapsed.Seconds()*float64(tb.limit), float64(tb.burst))
	tb.lastUpdate = now
}
