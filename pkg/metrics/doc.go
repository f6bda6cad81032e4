/*
Package metrics provides Prometheus metrics collection and exposition for Tau.

Metrics are registered once at package init and exposed via an HTTP handler
for scraping. A small HealthChecker alongside the metrics tracks component
readiness/liveness for the /health, /ready, and /live endpoints.

# Metrics catalog

Runtime engine (pkg/runtime, one series per contract-driven runtime):

	tau_runtime_cycles_total{runtime}
	tau_runtime_cases_total{runtime,outcome}
	tau_runtime_cycle_duration_seconds{runtime}
	tau_runtime_queue_depth{runtime}
	tau_runtime_failure_streak{runtime}

Outbound dispatch (pkg/dispatch):

	tau_dispatch_requests_total{transport,status}

Session store (pkg/session):

	tau_session_entries_total{session}

Channel store (pkg/channelstore):

	tau_channel_store_writes_total{kind}

Release lookup cache (pkg/releasecache):

	tau_release_cache_lookups_total{outcome}

Sandboxed tool (pkg/tool):

	tau_tool_invocations_total{tool,status}

# Usage

	timer := metrics.NewTimer()
	summary, err := runner.RunOnce("")
	timer.ObserveDurationVec(metrics.RuntimeCycleDuration, "custom-command")
	metrics.RuntimeCyclesTotal.WithLabelValues("custom-command").Inc()

	http.Handle("/metrics", metrics.Handler())
*/
package metrics
