/*
Package log provides structured logging for Tau using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
context-specific child loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level.

# Usage

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	log.Info("runtime cycle started")

	runtimeLog := log.WithRuntime("custom-command")
	runtimeLog.Info().Int("queued_cases", 3).Msg("cycle queued")

	channelLog := log.WithChannel("telegram", "ops-alerts")
	channelLog.Warn().Msg("delivery rate limited")

# Context loggers

  - WithRuntime(name) — scopes logs to a contract runtime adapter.
  - WithTransport(name) — scopes logs to an outbound transport.
  - WithSessionID(id) — scopes logs to a session store path.
  - WithChannel(transport, channelID) — scopes logs to a channel directory.

# Integration points

This package is used by pkg/runtime (cycle lifecycle logging and state
reset diagnostics on schema mismatch), pkg/reconciler and pkg/scheduler
(supervisor lifecycle), pkg/config (the log section of the config file),
and cmd/tau (CLI-wide initialization from persistent flags).
*/
package log
