/*
Package reconciler supervises a single contract runtime, driving repeated
RunOnce cycles on a fixed interval the way a long-running daemon would.

Each configured runtime (custom-command, multi-channel, memory) gets its own
Supervisor. A Supervisor is stateless between ticks beyond what it holds:
all cycle state lives in the runtime engine's own state.json, so a missed or
restarted supervisor converges again on the next tick.

# Architecture

	┌───────────────────────────────────────────────┐
	│              Supervisor (per runtime)          │
	│                 (ticker interval)              │
	└───────────────────┬─────────────────────────────┘
	                    │
	                    ▼
	              runner.RunOnce(fixturePath)
	                    │
	        ┌───────────┼────────────┐
	        ▼           ▼            ▼
	  metrics update  health read  event publish
	 (cycles, cases,  (queue depth, (cycle.*, case.*,
	  cycle duration)  failure streak) runtime.degraded/unhealthy)

# Usage

	broker := events.NewBroker()
	broker.Start()

	sup := reconciler.New("custom-command", runner, fixturePath, 10*time.Second, broker)
	sup.Start()
	defer sup.Stop()

# Design notes

Unlike a container scheduler's reconciler, there is no separate "desired
state" to converge toward; RunOnce itself is idempotent per case (dedup by
case key) so calling it repeatedly on a ticker is sufficient to drain a
growing fixture over time. The Supervisor's job is purely the ambient
wrapper: timing, metrics, and event fan-out around a call the caller could
otherwise make by hand from a CLI subcommand.

# See also

  - pkg/scheduler for coordinating multiple supervisors under one process
  - pkg/runtime for the engine a Supervisor drives
  - pkg/events for the event types a cycle can publish
*/
package reconciler
