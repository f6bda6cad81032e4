/*
Package scheduler coordinates the set of contract runtimes one daemon
process supervises.

Each configured runtime (custom-command, multi-channel, memory) is driven by
its own reconciler.Supervisor. The Coordinator registers one supervisor per
runtime, starts and stops them together, and folds their health snapshots
into the process-wide health checker so /health reports the true state of
every runtime, not just the process itself. /ready is not affected by
runtime components: it checks only the critical components listed in
pkg/metrics.

# Architecture

	┌──────────────────────── Coordinator ─────────────────────────┐
	│                                                                 │
	│  Register("custom-command", supervisor, runner)                │
	│  Register("multi-channel", supervisor, runner)                 │
	│  Register("memory", supervisor, runner)                        │
	│                                                                 │
	│  Start() → each supervisor.Start(), each runtime registered    │
	│            as health component "runtime:<name>"                │
	│                                                                 │
	│  RefreshHealth() → reads each runner.Health().Classify() and   │
	│                    updates the matching health component        │
	└─────────────────────────────────────────────────────────────────┘

# Usage

	coordinator := scheduler.NewCoordinator()
	coordinator.Register("custom-command", ccSupervisor, ccRunner)
	coordinator.Register("multi-channel", mcSupervisor, mcRunner)
	coordinator.Start()
	defer coordinator.Stop()

# Design notes

Registration is rejected once the coordinator has started: runtimes are
wired up front from configuration, not added dynamically at runtime. This
mirrors the ambient daemon idiom where every long-running subsystem is
assembled once at process start.

# See also

  - pkg/reconciler for the per-runtime supervisor this package coordinates
  - pkg/metrics for the health checker components are registered against
*/
package scheduler
