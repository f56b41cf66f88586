package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/vnykmshr/stagehand/pkg/metrics"
	"github.com/vnykmshr/stagehand/pkg/orchestrator"
	"github.com/vnykmshr/stagehand/pkg/store"
)

var (
	errStoreDown     = errors.New("store down")
	errReleaseFailed = errors.New("delete refused")
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(name string, st store.Store) orchestrator.Config {
	return orchestrator.Config{
		Name:          name,
		Timeout:       2 * time.Second,
		EnableMetrics: true,
		LogErrors:     true,
		Sink:          metrics.NoopSink{},
		Logger:        discardLogger(),
		Store:         st,
	}
}

// failingPuts accepts every write except Put on keys with the given prefix.
type failingPuts struct {
	store.Store
	prefix string
}

func (f failingPuts) Put(ctx context.Context, key string, value []byte) error {
	if len(key) >= len(f.prefix) && key[:len(f.prefix)] == f.prefix {
		return errStoreDown
	}
	return f.Store.Put(ctx, key, value)
}

// failingDeletes rejects every Delete.
type failingDeletes struct {
	store.Store
}

func (failingDeletes) Delete(context.Context, string) error {
	return errReleaseFailed
}

func quietNotifier() Notifier {
	return NotifierFunc(func(context.Context, User) error { return nil })
}
