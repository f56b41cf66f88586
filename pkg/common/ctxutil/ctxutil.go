// Package ctxutil holds small context helpers used by the orchestrator's
// timeout races.
package ctxutil

import (
	"context"
	"errors"
	"time"
)

// WithOptionalTimeout derives a context that is canceled when the parent is
// canceled or, if timeout is positive, when the timeout elapses.
// A non-positive timeout yields a plain cancelable child.
func WithOptionalTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

// IsCanceled returns true if the context has been canceled
func IsCanceled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// IsTimedOut returns true if the context was canceled due to a timeout
func IsTimedOut(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// ExpiredHere reports whether derived ended through its own deadline rather
// than because parent was canceled or hit an earlier deadline.
func ExpiredHere(parent, derived context.Context) bool {
	return parent.Err() == nil && IsTimedOut(derived)
}
