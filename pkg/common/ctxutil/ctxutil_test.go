package ctxutil

import (
	"context"
	"testing"
	"time"

	"github.com/vnykmshr/stagehand/internal/testutil"
)

func TestWithOptionalTimeout(t *testing.T) {
	ctx, cancel := WithOptionalTimeout(context.Background(), 0)
	defer cancel()

	if _, ok := ctx.Deadline(); ok {
		t.Fatal("zero timeout should not set a deadline")
	}
	testutil.AssertEqual(t, IsCanceled(ctx), false)

	cancel()
	testutil.AssertEqual(t, IsCanceled(ctx), true)
	testutil.AssertEqual(t, IsTimedOut(ctx), false)
}

func TestExpiredHere(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	defer cancelParent()

	derived, cancel := WithOptionalTimeout(parent, 5*time.Millisecond)
	defer cancel()

	<-derived.Done()
	testutil.AssertEqual(t, IsTimedOut(derived), true)
	testutil.AssertEqual(t, ExpiredHere(parent, derived), true)

	other, cancelOther := WithOptionalTimeout(parent, time.Hour)
	defer cancelOther()
	cancelParent()
	<-other.Done()
	testutil.AssertEqual(t, ExpiredHere(parent, other), false)
}
