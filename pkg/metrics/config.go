package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "stagehand"

// DefaultBuckets are the histogram buckets, in milliseconds.
var DefaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

// Config holds configuration for metrics collection. Collection is
// switched off per orchestrator, which then reports to NoopSink.
type Config struct {
	// Registry is the Prometheus registry to use. If nil, uses prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// Namespace overrides the default "stagehand" namespace for metrics.
	Namespace string

	// Buckets overrides DefaultBuckets for both latency histograms.
	Buckets []float64

	// Labels are constant labels added to all metrics.
	Labels prometheus.Labels
}

// DefaultConfig returns a default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Registry:  prometheus.DefaultRegisterer,
		Namespace: DefaultNamespace,
		Buckets:   DefaultBuckets,
	}
}

func (c Config) withDefaults() Config {
	if c.Registry == nil {
		c.Registry = prometheus.DefaultRegisterer
	}
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
	if len(c.Buckets) == 0 {
		c.Buckets = DefaultBuckets
	}
	return c
}
