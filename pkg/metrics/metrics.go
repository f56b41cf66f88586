package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label keys and values shared with dashboards.
const (
	LabelService = "service"
	LabelStage   = "stage"
	LabelStatus  = "status"
	LabelJob     = "job"
	LabelRoute   = "route"

	StatusSuccess = "success"
	StatusError   = "error"

	// UnknownStage labels failures that happen outside the stage loop.
	UnknownStage = "unknown"
)

// Registry holds all metric instances for stagehand components.
type Registry struct {
	// Orchestrator metrics
	ActiveOperations *prometheus.GaugeVec
	PipelineDuration *prometheus.HistogramVec
	StageLatency     *prometheus.HistogramVec
	PipelineErrors   *prometheus.CounterVec

	// Scheduler metrics
	ScheduledRuns *prometheus.CounterVec

	// Admission metrics
	RejectedRequests *prometheus.CounterVec
}

// DefaultRegistry is the default metrics registry used by stagehand components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	cfg := DefaultConfig()
	cfg.Registry = reg
	return NewRegistryWithConfig(cfg)
}

// NewRegistryWithConfig creates a metrics registry honouring the namespace,
// buckets and constant labels in cfg. It panics if the instruments are
// already registered on cfg.Registry, as promauto does.
func NewRegistryWithConfig(cfg Config) *Registry {
	cfg = cfg.withDefaults()
	factory := promauto.With(cfg.Registry)

	return &Registry{
		ActiveOperations: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   cfg.Namespace,
				Name:        "active_operations",
				Help:        "Number of orchestrator executions currently in flight",
				ConstLabels: cfg.Labels,
			},
			[]string{LabelService},
		),

		PipelineDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   cfg.Namespace,
				Name:        "pipeline_duration_milliseconds",
				Help:        "Wall-clock time of orchestrator executions",
				Buckets:     cfg.Buckets,
				ConstLabels: cfg.Labels,
			},
			[]string{LabelService, LabelStatus},
		),

		StageLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   cfg.Namespace,
				Name:        "stage_latency_milliseconds",
				Help:        "Time spent in each attempted pipeline stage",
				Buckets:     cfg.Buckets,
				ConstLabels: cfg.Labels,
			},
			[]string{LabelService, LabelStage},
		),

		PipelineErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   cfg.Namespace,
				Name:        "pipeline_errors_total",
				Help:        "Total number of failed pipeline stages",
				ConstLabels: cfg.Labels,
			},
			[]string{LabelService, LabelStage},
		),

		ScheduledRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   cfg.Namespace,
				Subsystem:   "scheduler",
				Name:        "runs_total",
				Help:        "Total number of cron-triggered runs",
				ConstLabels: cfg.Labels,
			},
			[]string{LabelJob, LabelStatus},
		),

		RejectedRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   cfg.Namespace,
				Subsystem:   "http",
				Name:        "rejected_requests_total",
				Help:        "Total number of requests refused by the rate limiter",
				ConstLabels: cfg.Labels,
			},
			[]string{LabelRoute},
		),
	}
}
