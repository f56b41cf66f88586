package orchestrator

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain enables goroutine leak detection for all tests in this package.
// Tests that leave a stage running past its timeout release it through
// t.Cleanup so the orphaned goroutine ends before the check.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
