// Package config loads the stagehand binary configuration from an optional
// YAML file overlaid with STAGEHAND_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vnykmshr/stagehand/internal/logger"
	gferrors "github.com/vnykmshr/stagehand/pkg/common/errors"
	"github.com/vnykmshr/stagehand/pkg/common/validation"
	"github.com/vnykmshr/stagehand/pkg/scheduling/scheduler"
)

const module = "config"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STAGEHAND_"

// Store drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Store        StoreConfig        `yaml:"store"`
	Schedule     ScheduleConfig     `yaml:"schedule"`

	// Workers sizes the pool shared by batch runs and scheduled runs.
	Workers int `yaml:"workers"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// RateLimit admits at most this many API requests per second.
	// Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// LogConfig configures internal/logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// OrchestratorConfig is applied to every orchestrator the binary builds.
type OrchestratorConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	Metrics       bool          `yaml:"metrics"`
	LogErrors     bool          `yaml:"log_errors"`
	NotifyTimeout time.Duration `yaml:"notify_timeout"`
}

// StoreConfig selects the storage handle.
type StoreConfig struct {
	Driver   string `yaml:"driver"`
	RedisURL string `yaml:"redis_url"`
	Prefix   string `yaml:"prefix"`
}

// ScheduleConfig configures cron-triggered runs. An empty expression
// disables the run.
type ScheduleConfig struct {
	Summary string `yaml:"summary"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
			Burst:           20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: logger.FormatJSON,
		},
		Orchestrator: OrchestratorConfig{
			Timeout:       30 * time.Second,
			Metrics:       true,
			LogErrors:     true,
			NotifyTimeout: 2 * time.Second,
		},
		Store: StoreConfig{
			Driver:   DriverMemory,
			RedisURL: "redis://localhost:6379/0",
			Prefix:   "stagehand:",
		},
		Schedule: ScheduleConfig{
			Summary: "@every 1m",
		},
		Workers: 4,
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		defer f.Close()

		if err := decode(f, &cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes YAML content over the defaults and validates it. It does
// not read the environment.
func Parse(content []byte) (*Config, error) {
	cfg := Default()
	if err := decode(bytes.NewReader(content), &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

// applyEnv overlays STAGEHAND_* variables. A malformed value is an error.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("ADDR", &cfg.Server.Addr)
	e.duration("SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	e.float("RATE_LIMIT", &cfg.Server.RateLimit)
	e.integer("BURST", &cfg.Server.Burst)
	e.str("LOG_LEVEL", &cfg.Log.Level)
	e.str("LOG_FORMAT", &cfg.Log.Format)
	e.duration("TIMEOUT", &cfg.Orchestrator.Timeout)
	e.boolean("METRICS", &cfg.Orchestrator.Metrics)
	e.boolean("LOG_ERRORS", &cfg.Orchestrator.LogErrors)
	e.duration("NOTIFY_TIMEOUT", &cfg.Orchestrator.NotifyTimeout)
	e.str("STORE", &cfg.Store.Driver)
	e.str("REDIS_URL", &cfg.Store.RedisURL)
	e.str("STORE_PREFIX", &cfg.Store.Prefix)
	e.str("SUMMARY_CRON", &cfg.Schedule.Summary)
	e.integer("WORKERS", &cfg.Workers)

	return errors.Join(e.errs...)
}

type envReader struct {
	lookup lookupFunc
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(EnvPrefix + key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) integer(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return
		}
		*dst = n
	}
}

func (e *envReader) float(key string, dst *float64) {
	if v, ok := e.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return
		}
		*dst = f
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return
		}
		*dst = d
	}
}

// Validate checks every section and normalises the log settings.
func (c *Config) Validate() error {
	if err := validation.ValidateNotEmpty(module, "server.addr", c.Server.Addr); err != nil {
		return err
	}
	if err := validation.ValidatePositiveDuration(module, "server.shutdown_timeout", c.Server.ShutdownTimeout); err != nil {
		return err
	}
	if c.Server.RateLimit < 0 {
		return gferrors.NewValidationError(module, "server.rate_limit", c.Server.RateLimit, "cannot be negative").
			WithHint("use 0 to disable rate limiting")
	}
	if c.Server.RateLimit > 0 {
		if err := validation.ValidatePositive(module, "server.burst", c.Server.Burst); err != nil {
			return err
		}
	}

	level, err := logger.ParseLevel(c.Log.Level)
	if err != nil {
		return validation.ValidateOneOf(module, "log.level", c.Log.Level, "debug", "info", "warn", "error")
	}
	c.Log.Level = strings.ToLower(level.String())
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if err := validation.ValidateOneOf(module, "log.format", c.Log.Format, logger.FormatJSON, logger.FormatText); err != nil {
		return err
	}

	if err := validation.ValidatePositiveDuration(module, "orchestrator.timeout", c.Orchestrator.Timeout); err != nil {
		return err
	}
	if err := validation.ValidateNonNegativeDuration(module, "orchestrator.notify_timeout", c.Orchestrator.NotifyTimeout); err != nil {
		return err
	}

	if err := validation.ValidateOneOf(module, "store.driver", c.Store.Driver, DriverMemory, DriverRedis); err != nil {
		return err
	}
	if c.Store.Driver == DriverRedis {
		if err := validation.ValidateNotEmpty(module, "store.redis_url", c.Store.RedisURL); err != nil {
			return err
		}
	}

	if c.Schedule.Summary != "" {
		if err := scheduler.ValidateCronExpression(c.Schedule.Summary); err != nil {
			return err
		}
	}

	return validation.ValidatePositive(module, "workers", c.Workers)
}
