// Package main provides the stagehand CLI: an HTTP service fronting the
// sample orchestrators, plus one-shot runs for scripts and cron jobs.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vnykmshr/stagehand/internal/app"
	"github.com/vnykmshr/stagehand/internal/config"
	"github.com/vnykmshr/stagehand/internal/logger"
	gferrors "github.com/vnykmshr/stagehand/pkg/common/errors"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitConfigError  = 1
	ExitRuntimeError = 3
)

// Build information (set via ldflags during build)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

type options struct {
	configPath string
	verbose    bool
	quiet      bool

	name  string
	email string
	file  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case gferrors.IsValidationError(err):
		return ExitConfigError
	default:
		return ExitRuntimeError
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "stagehand",
		Short: "stagehand - staged pipeline orchestration service",
		Long: `stagehand runs ordered pipelines of stages with per-stage and
per-pipeline timeouts, critical and non-critical stages, and Prometheus
telemetry.

Examples:
  # Serve the HTTP API with the default configuration
  stagehand serve

  # Serve with a configuration file
  stagehand serve --config stagehand.yaml

  # Compute the user summary once
  stagehand run summary`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML configuration file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "Only log errors")

	root.AddCommand(
		newServeCmd(opts),
		newRunCmd(opts),
		newValidateCmd(opts),
		newVersionCmd(),
	)
	return root
}

// setup loads the configuration and configures the default logger.
func setup(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	switch {
	case opts.verbose:
		level = "debug"
	case opts.quiet:
		level = "error"
	}
	if err := logger.Configure(level, cfg.Log.Format, cmd.ErrOrStderr()); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the summary schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup(cmd, opts)
			if err != nil {
				return err
			}

			a, err := app.New(cmd.Context(), cfg, app.Options{})
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.Warn("failed to close app", slog.String("error", err.Error()))
				}
			}()

			return a.Run(cmd.Context())
		},
	}
}

func newRunCmd(opts *options) *cobra.Command {
	run := &cobra.Command{
		Use:   "run",
		Short: "Run an orchestrator once and print the result as JSON",
	}

	summary := &cobra.Command{
		Use:   "summary",
		Short: "Compute and save the user summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				res := a.RunSummary(ctx)
				if !res.Success {
					return res.Error
				}
				return writeJSON(cmd.OutOrStdout(), res.Data)
			})
		},
	}

	register := &cobra.Command{
		Use:   "register",
		Short: "Register one user, or a batch read from a JSON file",
		Long: `Register one user from --name and --email, or every entry of a JSON
array of {"name","email"} objects read from --file. Batches run
concurrently on the worker pool.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reqs, err := registerRequests(opts)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				return registerUsers(ctx, cmd.OutOrStdout(), a, reqs)
			})
		},
	}
	register.Flags().StringVar(&opts.name, "name", "", "User name")
	register.Flags().StringVar(&opts.email, "email", "", "User email")
	register.Flags().StringVarP(&opts.file, "file", "f", "", "JSON file with a list of users")

	run.AddCommand(summary, register)
	return run
}

func withApp(cmd *cobra.Command, opts *options, fn func(context.Context, *app.App) error) error {
	cfg, err := setup(cmd, opts)
	if err != nil {
		return err
	}
	a, err := app.New(cmd.Context(), cfg, app.Options{})
	if err != nil {
		return err
	}
	return errors.Join(fn(cmd.Context(), a), a.Close())
}

func registerRequests(opts *options) ([]app.RegisterRequest, error) {
	if opts.file == "" {
		return []app.RegisterRequest{{Name: opts.name, Email: opts.email}}, nil
	}
	if opts.name != "" || opts.email != "" {
		return nil, gferrors.NewValidationError("cli", "file", opts.file, "cannot be combined with --name or --email")
	}

	data, err := os.ReadFile(opts.file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", opts.file, err)
	}
	var reqs []app.RegisterRequest
	if err := json.Unmarshal(data, &reqs); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", opts.file, err)
	}
	return reqs, nil
}

type registerOutcome struct {
	RequestID    string            `json:"request_id"`
	Registration *app.Registration `json:"registration,omitempty"`
	Error        string            `json:"error,omitempty"`
}

func registerUsers(ctx context.Context, w io.Writer, a *app.App, reqs []app.RegisterRequest) error {
	results := a.Registrar.ExecuteAll(ctx, reqs)

	outcomes := make([]registerOutcome, len(results))
	failed := 0
	for i, res := range results {
		outcomes[i].RequestID = res.RequestID
		if res.Success {
			reg := res.Data
			outcomes[i].Registration = &reg
			continue
		}
		failed++
		outcomes[i].Error = res.Error.Error()
	}

	if err := writeJSON(w, outcomes); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d registrations failed", failed, len(results))
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newValidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration valid (store=%s, workers=%d)\n", cfg.Store.Driver, cfg.Workers)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "stagehand %s (commit %s, built %s)\n", version, commit, buildDate)
		},
	}
}
