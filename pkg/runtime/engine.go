// Package runtime implements the contract-driven runtime engine shared by
// every transport adapter (custom-command, multi-channel, memory, and —
// out of scope for this module — browser-automation and dashboard): load
// a fixture of contract cases, queue with backpressure, dedupe,
// evaluate with retries, validate against the declared expectation,
// persist state atomically, and emit a per-cycle observability record.
package runtime

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cuemby/tau/internal/atomicfile"
	"github.com/cuemby/tau/pkg/log"
	"github.com/cuemby/tau/pkg/transporthealth"
)

// EventsLogFileName is the per-runtime cycle events log, appended once
// per RunOnce call.
const EventsLogFileName = "runtime-events.jsonl"

// StateFileName is the per-runtime persisted state, rewritten atomically
// once per RunOnce call.
const StateFileName = "state.json"

// ReplayStep is the observed outcome of evaluating one contract case.
type ReplayStep int

const (
	StepSuccess ReplayStep = iota
	StepMalformedInput
	StepRetryableFailure
)

func (s ReplayStep) String() string {
	switch s {
	case StepSuccess:
		return "success"
	case StepMalformedInput:
		return "malformed_input"
	case StepRetryableFailure:
		return "retryable_failure"
	default:
		return "unknown"
	}
}

// ReplayResult is the observed outcome of Adapter.Evaluate.
type ReplayResult struct {
	Step      ReplayStep
	ErrorCode string
	Payload   any
}

// MutationCounts accumulates domain-specific counters returned by
// Adapter.PersistSuccess, keyed by a domain-chosen name (e.g.
// "upserted_commands", "executed_runs", "deliveries_sent"). The engine
// sums these across a cycle and surfaces them in the cycle report.
type MutationCounts map[string]int

// Fixture is the declarative input to one RunOnce call: a set of contract
// cases for one transport adapter.
type Fixture[C any] struct {
	Cases []C
}

// Adapter is implemented once per transport (custom-command,
// multi-channel, memory, ...). It supplies the small set of
// transport-specific functions the engine drives; the engine itself
// knows nothing about any particular domain.
type Adapter[C any, D any] interface {
	// CaseKey returns the dedupe key for a case.
	CaseKey(c C) string
	// Less orders two cases for deterministic queueing.
	Less(a, b C) bool
	// Evaluate is a pure function, including simulated failures; it must
	// never panic on malformed input.
	Evaluate(c C) ReplayResult
	// Validate compares an observed result against the case's declared
	// expectation. A non-nil error aborts the cycle (engine-level error);
	// state is not rewritten.
	Validate(c C, result ReplayResult) error
	// PersistSuccess writes domain side effects for a successful case and
	// returns counters to fold into the cycle summary.
	PersistSuccess(c C, caseKey string, result ReplayResult, domain *D) (MutationCounts, error)
	// PersistNonSuccess writes an audit trail only (no domain mutation).
	PersistNonSuccess(c C, caseKey string, result ReplayResult, domain *D) error
	// ReasonCodes contributes domain-specific reason codes for the cycle,
	// evaluated after the transport-independent codes and before the
	// healthy_cycle fallback.
	ReasonCodes(summary Summary) []string
}

// Config parameterizes one runtime's cycle behavior.
type Config struct {
	StateDir         string
	QueueLimit       int
	ProcessedCaseCap int
	RetryMaxAttempts int
	RetryBaseDelayMs int64
}

// State is the persisted per-runtime state.json payload.
type State[D any] struct {
	SchemaVersion      int                       `json:"schema_version"`
	ProcessedCaseKeys  []string                   `json:"processed_case_keys"`
	Domain             D                          `json:"domain"`
	Health             transporthealth.Snapshot   `json:"health"`
}

// StateSchemaVersion is the only schema version this engine understands;
// a mismatch is a soft reset, not a fatal error.
const StateSchemaVersion = 1

// Summary is the per-cycle counters, transport-independent plus folded
// domain counters.
type Summary struct {
	DiscoveredCases   int
	QueuedCases       int
	BacklogCases      int
	AppliedCases      int
	DuplicateSkips    int
	MalformedCases    int
	RetryableFailures int
	RetryAttempts     int
	FailedCases       int
	DomainCounters    MutationCounts
}

// CycleReport is the payload appended to runtime-events.jsonl once per
// RunOnce call.
type CycleReport struct {
	TimestampUnixMs   int64          `json:"timestamp_unix_ms"`
	HealthState       string         `json:"health_state"`
	HealthReason      string         `json:"health_reason"`
	ReasonCodes       []string       `json:"reason_codes"`
	DiscoveredCases   int            `json:"discovered_cases"`
	QueuedCases       int            `json:"queued_cases"`
	BacklogCases      int            `json:"backlog_cases"`
	AppliedCases      int            `json:"applied_cases"`
	DuplicateSkips    int            `json:"duplicate_skips"`
	MalformedCases    int            `json:"malformed_cases"`
	RetryableFailures int            `json:"retryable_failures"`
	RetryAttempts     int            `json:"retry_attempts"`
	FailedCases       int            `json:"failed_cases"`
	DomainCounters    MutationCounts `json:"domain_counters,omitempty"`
	FailureStreak     int            `json:"failure_streak"`
}

// Engine drives one adapter's cycles against one state directory.
type Engine[C any, D any] struct {
	config           Config
	adapter          Adapter[C, D]
	name             string
	state            State[D]
	processedLookup  map[string]struct{}
	nowFunc          func() time.Time
	sleepFunc        func(time.Duration)
}

// New constructs an Engine, loading existing state from
// config.StateDir/state.json if present.
func New[C any, D any](name string, config Config, adapter Adapter[C, D]) (*Engine[C, D], error) {
	if err := os.MkdirAll(config.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", config.StateDir, err)
	}
	state, err := loadState[D](statePath(config.StateDir))
	if err != nil {
		return nil, err
	}
	state.ProcessedCaseKeys = normalizeProcessedCaseKeys(state.ProcessedCaseKeys, config.ProcessedCaseCap)

	lookup := make(map[string]struct{}, len(state.ProcessedCaseKeys))
	for _, key := range state.ProcessedCaseKeys {
		lookup[key] = struct{}{}
	}

	return &Engine[C, D]{
		config:          config,
		adapter:         adapter,
		name:            name,
		state:           state,
		processedLookup: lookup,
		nowFunc:         time.Now,
		sleepFunc:       time.Sleep,
	}, nil
}

// Domain exposes the current persisted domain state for read access
// between cycles (e.g. for CLI snapshot rendering).
func (e *Engine[C, D]) Domain() D { return e.state.Domain }

// Health exposes the current persisted health snapshot.
func (e *Engine[C, D]) Health() transporthealth.Snapshot { return e.state.Health }

// RunOnce executes one cycle of the algorithm in spec.md §4.6.
func (e *Engine[C, D]) RunOnce(fixture Fixture[C]) (Summary, error) {
	cycleStart := e.nowFunc()
	runtimeLog := log.WithRuntime(e.name)

	summary := Summary{
		DiscoveredCases: len(fixture.Cases),
		DomainCounters:  MutationCounts{},
	}

	queued := make([]C, len(fixture.Cases))
	copy(queued, fixture.Cases)
	sort.SliceStable(queued, func(i, j int) bool { return e.adapter.Less(queued[i], queued[j]) })
	if len(queued) > e.config.QueueLimit {
		queued = queued[:e.config.QueueLimit]
	}
	summary.QueuedCases = len(queued)
	summary.BacklogCases = summary.DiscoveredCases - summary.QueuedCases

	for _, c := range queued {
		caseKey := e.adapter.CaseKey(c)
		if _, dup := e.processedLookup[caseKey]; dup {
			summary.DuplicateSkips++
			continue
		}

		attempt := 1
		for {
			result := e.adapter.Evaluate(c)
			if err := e.adapter.Validate(c, result); err != nil {
				return Summary{}, fmt.Errorf("contract validation failed for case %q: %w", caseKey, err)
			}

			switch result.Step {
			case StepSuccess:
				mutation, err := e.adapter.PersistSuccess(c, caseKey, result, &e.state.Domain)
				if err != nil {
					return Summary{}, fmt.Errorf("failed to persist success for case %q: %w", caseKey, err)
				}
				summary.AppliedCases++
				foldCounters(summary.DomainCounters, mutation)
				e.markProcessed(caseKey)
				goto nextCase
			case StepMalformedInput:
				summary.MalformedCases++
				if err := e.adapter.PersistNonSuccess(c, caseKey, result, &e.state.Domain); err != nil {
					return Summary{}, fmt.Errorf("failed to persist malformed result for case %q: %w", caseKey, err)
				}
				e.markProcessed(caseKey)
				goto nextCase
			case StepRetryableFailure:
				summary.RetryableFailures++
				if attempt >= e.config.RetryMaxAttempts {
					summary.FailedCases++
					if err := e.adapter.PersistNonSuccess(c, caseKey, result, &e.state.Domain); err != nil {
						return Summary{}, fmt.Errorf("failed to persist failure for case %q: %w", caseKey, err)
					}
					goto nextCase
				}
				summary.RetryAttempts++
				e.sleepFunc(retryDelay(e.config.RetryBaseDelayMs, attempt))
				attempt++
			}
		}
	nextCase:
	}

	cycleDuration := e.nowFunc().Sub(cycleStart)
	health := buildHealthSnapshot(summary, cycleDuration.Milliseconds(), e.state.Health.FailureStreak, e.nowFunc())
	classification := health.Classify()
	reasonCodes := cycleReasonCodes(summary, e.adapter)

	e.state.Health = health
	e.state.SchemaVersion = StateSchemaVersion

	if err := saveState(statePath(e.config.StateDir), e.state); err != nil {
		return Summary{}, err
	}
	if err := appendCycleReport(eventsPath(e.config.StateDir), summary, health, classification, reasonCodes, e.nowFunc()); err != nil {
		return Summary{}, err
	}

	runtimeLog.Info().
		Int("discovered", summary.DiscoveredCases).
		Int("queued", summary.QueuedCases).
		Int("applied", summary.AppliedCases).
		Int("failed", summary.FailedCases).
		Str("health", string(classification.State)).
		Msg("runtime cycle completed")

	return summary, nil
}

func (e *Engine[C, D]) markProcessed(caseKey string) {
	if _, ok := e.processedLookup[caseKey]; ok {
		return
	}
	e.state.ProcessedCaseKeys = append(e.state.ProcessedCaseKeys, caseKey)
	e.processedLookup[caseKey] = struct{}{}
	// cap == 0 means no dedupe: every push immediately evicts everything,
	// including the key just added, so the next RunOnce reprocesses it.
	if cap := e.config.ProcessedCaseCap; len(e.state.ProcessedCaseKeys) > cap {
		overflow := len(e.state.ProcessedCaseKeys) - cap
		if overflow < 0 {
			overflow = 0
		}
		if overflow > len(e.state.ProcessedCaseKeys) {
			overflow = len(e.state.ProcessedCaseKeys)
		}
		for _, removed := range e.state.ProcessedCaseKeys[:overflow] {
			delete(e.processedLookup, removed)
		}
		e.state.ProcessedCaseKeys = e.state.ProcessedCaseKeys[overflow:]
	}
}

func foldCounters(into MutationCounts, from MutationCounts) {
	for k, v := range from {
		into[k] += v
	}
}

// retryDelay mirrors the original engine's exponential backoff: base *
// 2^(attempt-1), exponent capped at 10.
func retryDelay(baseDelayMs int64, attempt int) time.Duration {
	if baseDelayMs == 0 {
		return 0
	}
	exponent := attempt - 1
	if exponent > 10 {
		exponent = 10
	}
	if exponent < 0 {
		exponent = 0
	}
	return time.Duration(baseDelayMs*(1<<uint(exponent))) * time.Millisecond
}

func buildHealthSnapshot(summary Summary, cycleDurationMs int64, previousFailureStreak int, now time.Time) transporthealth.Snapshot {
	failureStreak := 0
	if summary.FailedCases > 0 {
		failureStreak = previousFailureStreak + 1
	}
	return transporthealth.Snapshot{
		UpdatedUnixMs:       now.UnixMilli(),
		CycleDurationMs:     cycleDurationMs,
		QueueDepth:          summary.BacklogCases,
		ActiveRuns:          0,
		FailureStreak:       failureStreak,
		LastCycleDiscovered: summary.DiscoveredCases,
		LastCycleProcessed:  summary.AppliedCases + summary.MalformedCases + summary.FailedCases + summary.DuplicateSkips,
		LastCycleCompleted:  summary.AppliedCases + summary.MalformedCases,
		LastCycleFailed:     summary.FailedCases,
		LastCycleDuplicates: summary.DuplicateSkips,
	}
}

func cycleReasonCodes[C any, D any](summary Summary, adapter Adapter[C, D]) []string {
	var codes []string
	if summary.DiscoveredCases > summary.QueuedCases {
		codes = append(codes, "queue_backpressure_applied")
	}
	if summary.DuplicateSkips > 0 {
		codes = append(codes, "duplicate_cases_skipped")
	}
	if summary.MalformedCases > 0 {
		codes = append(codes, "malformed_inputs_observed")
	}
	if summary.RetryAttempts > 0 {
		codes = append(codes, "retry_attempted")
	}
	if summary.RetryableFailures > 0 {
		codes = append(codes, "retryable_failures_observed")
	}
	if summary.FailedCases > 0 {
		codes = append(codes, "case_processing_failed")
	}
	codes = append(codes, adapter.ReasonCodes(summary)...)
	if len(codes) == 0 {
		codes = append(codes, "healthy_cycle")
	}
	return codes
}

func appendCycleReport(path string, summary Summary, health transporthealth.Snapshot, classification transporthealth.Classification, reasonCodes []string, now time.Time) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	report := CycleReport{
		TimestampUnixMs:   now.UnixMilli(),
		HealthState:       string(classification.State),
		HealthReason:      classification.Reason,
		ReasonCodes:       reasonCodes,
		DiscoveredCases:   summary.DiscoveredCases,
		QueuedCases:       summary.QueuedCases,
		BacklogCases:      summary.BacklogCases,
		AppliedCases:      summary.AppliedCases,
		DuplicateSkips:    summary.DuplicateSkips,
		MalformedCases:    summary.MalformedCases,
		RetryableFailures: summary.RetryableFailures,
		RetryAttempts:     summary.RetryAttempts,
		FailedCases:       summary.FailedCases,
		DomainCounters:    summary.DomainCounters,
		FailureStreak:     health.FailureStreak,
	}
	line, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize runtime cycle report: %w", err)
	}
	line = append(line, '\n')

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()
	if _, err := file.Write(line); err != nil {
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	return file.Sync()
}

func loadState[D any](path string) (State[D], error) {
	var state State[D]
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			state.SchemaVersion = StateSchemaVersion
			return state, nil
		}
		return state, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		log.Warn(fmt.Sprintf("failed to parse runtime state file %s (%v); starting fresh", path, err))
		return State[D]{SchemaVersion: StateSchemaVersion}, nil
	}
	if state.SchemaVersion != StateSchemaVersion {
		log.Warn(fmt.Sprintf("unsupported runtime state schema %d in %s; starting fresh", state.SchemaVersion, path))
		return State[D]{SchemaVersion: StateSchemaVersion}, nil
	}
	return state, nil
}

func saveState[D any](path string, state State[D]) error {
	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize runtime state: %w", err)
	}
	return atomicfile.Write(path, payload)
}

func normalizeProcessedCaseKeys(raw []string, cap int) []string {
	seen := make(map[string]struct{}, len(raw))
	var normalized []string
	for _, key := range raw {
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		normalized = append(normalized, key)
	}
	if cap == 0 {
		return nil
	}
	if len(normalized) > cap {
		normalized = normalized[len(normalized)-cap:]
	}
	return normalized
}

func statePath(stateDir string) string  { return filepath.Join(stateDir, StateFileName) }
func eventsPath(stateDir string) string { return filepath.Join(stateDir, EventsLogFileName) }
