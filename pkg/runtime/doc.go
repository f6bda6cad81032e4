/*
Package runtime provides the contract-driven cycle engine shared by every
transport adapter (custom-command, multi-channel, memory).

Each adapter supplies a small Adapter[C, D] implementation: a case key and
ordering, a pure Evaluate function, a Validate check against the case's
declared expectation, and two persistence hooks (success, non-success).
The engine itself owns everything transport-independent: queue
backpressure, case dedupe against a bounded processed-key window,
bounded retries with exponential backoff, atomic state persistence, and
a per-cycle health classification and reason-code derivation appended
to runtime-events.jsonl.

# Cycle algorithm

Given a Fixture of cases, RunOnce:

  - sorts cases with Adapter.Less and truncates to Config.QueueLimit,
    recording the remainder as backlog;
  - skips any case whose Adapter.CaseKey is already in the processed
    window, counting it as a duplicate;
  - evaluates each remaining case, validates the result against the
    case's own expectation, and persists success or non-success;
  - retries a retryable failure up to Config.RetryMaxAttempts times
    with delay doubling per attempt, capped at 2^10 multiples of
    Config.RetryBaseDelayMs;
  - classifies the cycle's transporthealth.Snapshot and derives an
    ordered list of reason codes, falling back to "healthy_cycle" when
    nothing else applied;
  - rewrites state.json atomically and appends one line to
    runtime-events.jsonl.

A Validate error aborts the cycle before any state is rewritten; it
signals a contract the adapter itself cannot reconcile, not a
retryable or malformed case.
*/
package runtime
