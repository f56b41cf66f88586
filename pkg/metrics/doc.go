// Package metrics provides Prometheus instrumentation for stagehand
// orchestrators and schedulers.
//
// # Overview
//
// Orchestrators report through the Sink interface. The Prometheus-backed
// sink records into a Registry; NoopSink discards everything. Tests and
// embedding applications can hand an orchestrator a sink over a private
// registry instead of the process-wide default.
//
// # Quick Start
//
//	sink := metrics.Default() // backed by prometheus.DefaultRegisterer
//
//	http.Handle("/metrics", promhttp.Handler())
//
// # Custom Registry
//
//	reg := prometheus.NewRegistry()
//	sink := metrics.NewSink(metrics.NewRegistry(reg))
//
// # Available Metrics
//
//   - stagehand_active_operations{service}: executions currently in flight
//   - stagehand_pipeline_duration_milliseconds{service,status}: wall-clock
//     time of each Execute call, status is "success" or "error"
//   - stagehand_stage_latency_milliseconds{service,stage}: time spent in
//     each attempted stage
//   - stagehand_pipeline_errors_total{service,stage}: stage failures; the
//     stage label is "unknown" for failures outside the stage loop
//   - stagehand_scheduler_runs_total{job,status}: cron-triggered runs
//
// Dashboards depend on the label keys service and stage and on the status
// values success and error; treat them as a stable interface.
package metrics
