package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vnykmshr/stagehand/internal/config"
	"github.com/vnykmshr/stagehand/internal/logger"
	"github.com/vnykmshr/stagehand/pkg/metrics"
	"github.com/vnykmshr/stagehand/pkg/orchestrator"
	"github.com/vnykmshr/stagehand/pkg/ratelimit/bucket"
	"github.com/vnykmshr/stagehand/pkg/scheduling/scheduler"
	"github.com/vnykmshr/stagehand/pkg/scheduling/workerpool"
	"github.com/vnykmshr/stagehand/pkg/store"
)

// SummaryJobID names the cron entry that recomputes the summary.
const SummaryJobID = "user-summary"

// Options override collaborators that New would otherwise build from the
// configuration.
type Options struct {
	// Store replaces the configured store. App.Close still closes it.
	Store store.Store

	// Registry receives all metrics. Nil means a fresh registry with the
	// Go and process collectors.
	Registry *prometheus.Registry

	Notifier Notifier
	Logger   *slog.Logger
}

// App holds the wired services of the binary.
type App struct {
	Config     *config.Config
	Store      store.Store
	Pool       workerpool.Pool
	Scheduler  scheduler.Scheduler
	Registrar  *Registrar
	Summarizer *Summarizer
	Handler    http.Handler

	logger *slog.Logger
}

// New builds the store, metrics, worker pool, orchestrators, scheduler
// and HTTP handler described by cfg.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	base := opts.Logger
	if base == nil {
		base = logger.Logger
	}

	st := opts.Store
	if st == nil {
		var err error
		if st, err = openStore(ctx, cfg.Store); err != nil {
			return nil, err
		}
	}

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	metricsRegistry := metrics.NewRegistry(reg)

	pool, err := workerpool.NewWithConfigSafe(workerpool.Config{
		WorkerCount: cfg.Workers,
		QueueSize:   cfg.Workers * 4,
		TaskTimeout: cfg.Orchestrator.Timeout * 2,
		PanicHandler: func(_ workerpool.Task, recovered interface{}) {
			base.Error("task panicked", slog.Any("panic", recovered))
		},
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	orchestratorConfig := func(name string) orchestrator.Config {
		return orchestrator.Config{
			Name:          name,
			Timeout:       cfg.Orchestrator.Timeout,
			EnableMetrics: cfg.Orchestrator.Metrics,
			LogErrors:     cfg.Orchestrator.LogErrors,
			Sink:          metrics.NewSink(metricsRegistry),
			Logger:        base,
			Store:         st,
			WorkerPool:    pool,
		}
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = LogNotifier{Logger: base}
	}

	registrar, err := NewRegistration(orchestratorConfig(RegistrationName), RegistrationDeps{
		Notifier:      notifier,
		NotifyTimeout: cfg.Orchestrator.NotifyTimeout,
	})
	if err != nil {
		<-pool.Shutdown()
		_ = st.Close()
		return nil, err
	}

	summarizer, err := NewSummary(orchestratorConfig(SummaryName))
	if err != nil {
		<-pool.Shutdown()
		_ = st.Close()
		return nil, err
	}

	var limiter bucket.Limiter
	if cfg.Server.RateLimit > 0 {
		if limiter, err = bucket.NewSafe(bucket.Limit(cfg.Server.RateLimit), cfg.Server.Burst); err != nil {
			<-pool.Shutdown()
			_ = st.Close()
			return nil, err
		}
	}

	sched := scheduler.NewWithConfig(scheduler.Config{
		WorkerPool: pool,
		Metrics:    metricsRegistry,
		Logger:     base,
	})

	return &App{
		Config:     cfg,
		Store:      st,
		Pool:       pool,
		Scheduler:  sched,
		Registrar:  registrar,
		Summarizer: summarizer,
		Handler: NewServer(ServerDeps{
			Registrar:  registrar,
			Summarizer: summarizer,
			Store:      st,
			Gatherer:   reg,
			Limiter:    limiter,
			Metrics:    metricsRegistry,
			Logger:     base,
		}),
		logger: base.With(slog.String("component", "app")),
	}, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverRedis:
		return store.NewRedisStore(ctx, cfg.RedisURL, cfg.Prefix)
	case config.DriverMemory, "":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// RunSummary computes and saves a summary once.
func (a *App) RunSummary(ctx context.Context) orchestrator.Result[Summary] {
	return a.Summarizer.Execute(ctx, SummaryRequest{AsOf: time.Now()})
}

// Run listens on the configured address and serves until ctx is done.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Config.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Config.Server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves HTTP on ln and runs the summary schedule until ctx is done,
// then shuts both down within the configured shutdown timeout.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	if expr := a.Config.Schedule.Summary; expr != "" {
		task := scheduler.OrchestratorTask(a.Summarizer, func() SummaryRequest {
			return SummaryRequest{AsOf: time.Now()}
		})
		if err := a.Scheduler.ScheduleCron(SummaryJobID, expr, task); err != nil {
			_ = ln.Close()
			return err
		}
		if err := a.Scheduler.Start(); err != nil {
			_ = ln.Close()
			return err
		}
		defer func() { <-a.Scheduler.Stop() }()
	}

	srv := &http.Server{
		Handler:           a.Handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	a.logger.Info("server started", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close drains the worker pool and closes the store.
func (a *App) Close() error {
	<-a.Pool.Shutdown()
	return a.Store.Close()
}
