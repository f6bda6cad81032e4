// Package memoryrt adapts the generic contract runtime engine
// (pkg/runtime) to a small workspace-scoped memory store: extract
// upserts a summarized memory entry from free text, retrieve ranks a
// caller-supplied set of prior entries against a query and returns the
// top matches. Neither mode performs real embedding or vector search;
// both are deterministic replays of a declarative fixture.
package memoryrt

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/tau/pkg/runtime"
)

const (
	errBackendUnavailable = "memory_backend_unavailable"
	errEmptyInput         = "memory_empty_input"
	errInvalidScope       = "memory_invalid_scope"
)

// Entry is one persisted memory entry.
type Entry struct {
	MemoryID        string   `yaml:"memory_id" json:"memory_id"`
	Summary         string   `yaml:"summary" json:"summary"`
	Tags            []string `yaml:"tags,omitempty" json:"tags"`
	Facts           []string `yaml:"facts,omitempty" json:"facts"`
	SourceEventKey  string   `yaml:"source_event_key,omitempty" json:"source_event_key"`
	RecencyWeightBP int      `yaml:"recency_weight_bps,omitempty" json:"recency_weight_bps"`
	ConfidenceBP    int      `yaml:"confidence_bps,omitempty" json:"confidence_bps"`
}

// Scope identifies the workspace (and optional channel-store binding)
// a memory case is operating against.
type Scope struct {
	WorkspaceID string `yaml:"workspace_id"`
	ChannelID   string `yaml:"channel_id,omitempty"`
}

// Case is one declarative contract case: extract derives a new memory
// entry from input_text; retrieve ranks prior_entries against
// query_text and returns up to retrieval_limit matches.
type Case struct {
	CaseID                   string  `yaml:"case_id"`
	Mode                     string  `yaml:"mode"`
	Scope                    Scope   `yaml:"scope"`
	InputText                string  `yaml:"input_text,omitempty"`
	QueryText                string  `yaml:"query_text,omitempty"`
	PriorEntries             []Entry `yaml:"prior_entries,omitempty"`
	RetrievalLimit           int     `yaml:"retrieval_limit,omitempty"`
	SimulateRetryableFailure bool    `yaml:"simulate_retryable_failure,omitempty"`
	ExpectedStep             string  `yaml:"expected_step,omitempty"`
}

// Fixture is the top-level contract fixture document.
type Fixture struct {
	Cases []Case `yaml:"cases"`
}

// LoadFixture reads and parses a YAML contract fixture file.
func LoadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("failed to read memory fixture %s: %w", path, err)
	}
	var fixture Fixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return Fixture{}, fmt.Errorf("failed to parse memory fixture %s: %w", path, err)
	}
	return fixture, nil
}

// ToEngineFixture adapts a Fixture to the generic engine's Fixture[Case].
func (f Fixture) ToEngineFixture() runtime.Fixture[Case] {
	return runtime.Fixture[Case]{Cases: f.Cases}
}

// evaluatedPayload carries the derived/ranked entries through
// runtime.ReplayResult.Payload for use by PersistSuccess.
type evaluatedPayload struct {
	Entries []Entry
}

// Evaluate is a pure function of the case.
func Evaluate(c Case) runtime.ReplayResult {
	workspace := strings.TrimSpace(c.Scope.WorkspaceID)
	if workspace == "" {
		return runtime.ReplayResult{Step: runtime.StepMalformedInput, ErrorCode: errInvalidScope}
	}
	switch strings.ToLower(strings.TrimSpace(c.Mode)) {
	case "retrieve":
		if strings.TrimSpace(c.QueryText) == "" {
			return runtime.ReplayResult{Step: runtime.StepMalformedInput, ErrorCode: errEmptyInput}
		}
		if c.SimulateRetryableFailure {
			return runtime.ReplayResult{Step: runtime.StepRetryableFailure, ErrorCode: errBackendUnavailable}
		}
		return runtime.ReplayResult{Step: runtime.StepSuccess, Payload: evaluatedPayload{Entries: retrieveRankedEntries(c)}}
	default: // "extract"
		if strings.TrimSpace(c.InputText) == "" {
			return runtime.ReplayResult{Step: runtime.StepMalformedInput, ErrorCode: errEmptyInput}
		}
		if c.SimulateRetryableFailure {
			return runtime.ReplayResult{Step: runtime.StepRetryableFailure, ErrorCode: errBackendUnavailable}
		}
		return runtime.ReplayResult{Step: runtime.StepSuccess, Payload: evaluatedPayload{Entries: []Entry{deriveExtractEntry(c)}}}
	}
}

// Validate compares the observed result's step against the case's own
// declared expectation, when one was supplied.
func Validate(c Case, result runtime.ReplayResult) error {
	if strings.TrimSpace(c.ExpectedStep) == "" {
		return nil
	}
	expected := strings.ToLower(strings.TrimSpace(c.ExpectedStep))
	if expected != result.Step.String() {
		return fmt.Errorf("case %q expected step %q but observed %q", c.CaseID, expected, result.Step.String())
	}
	return nil
}

// caseRuntimeKey is the dedupe key: "{mode}:{case_id}".
func caseRuntimeKey(c Case) string {
	return fmt.Sprintf("%s:%s", strings.ToLower(strings.TrimSpace(c.Mode)), strings.TrimSpace(c.CaseID))
}

func entriesOf(result runtime.ReplayResult) []Entry {
	if payload, ok := result.Payload.(evaluatedPayload); ok {
		return payload.Entries
	}
	return nil
}

func deriveExtractEntry(c Case) Entry {
	normalized := normalizeWhitespace(c.InputText)
	workspace := strings.TrimSpace(c.Scope.WorkspaceID)
	return Entry{
		MemoryID:        fmt.Sprintf("mem-%s-%s", workspace, strings.TrimSpace(c.CaseID)),
		Summary:         normalized,
		Tags:            deriveTags(normalized),
		Facts:           []string{fmt.Sprintf("scope=%s", workspace)},
		SourceEventKey:  fmt.Sprintf("%s:%s:%s", workspace, strings.ToLower(strings.TrimSpace(c.Mode)), strings.TrimSpace(c.CaseID)),
		RecencyWeightBP: 9000,
		ConfidenceBP:    8200,
	}
}

type rankedEntry struct {
	score      int
	recency    int
	confidence int
	memoryID   string
	entry      Entry
}

func retrieveRankedEntries(c Case) []Entry {
	queryTokens := tokenizeWordSet(c.QueryText)
	ranked := make([]rankedEntry, 0, len(c.PriorEntries))
	for _, entry := range c.PriorEntries {
		ranked = append(ranked, rankedEntry{
			score:      scoreEntryAgainstQuery(entry, queryTokens),
			recency:    entry.RecencyWeightBP,
			confidence: entry.ConfidenceBP,
			memoryID:   entry.MemoryID,
			entry:      entry,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if ranked[i].recency != ranked[j].recency {
			return ranked[i].recency > ranked[j].recency
		}
		if ranked[i].confidence != ranked[j].confidence {
			return ranked[i].confidence > ranked[j].confidence
		}
		return ranked[i].memoryID < ranked[j].memoryID
	})
	limit := c.RetrievalLimit
	if limit <= 0 || limit > len(ranked) {
		limit = len(ranked)
	}
	out := make([]Entry, 0, limit)
	for _, r := range ranked[:limit] {
		out = append(out, r.entry)
	}
	return out
}

func scoreEntryAgainstQuery(entry Entry, queryTokens map[string]struct{}) int {
	if len(queryTokens) == 0 {
		return 0
	}
	summary := strings.ToLower(entry.Summary)
	facts := strings.ToLower(strings.Join(entry.Facts, " "))
	tags := map[string]struct{}{}
	for _, tag := range entry.Tags {
		tags[strings.ToLower(tag)] = struct{}{}
	}
	score := 0
	for token := range queryTokens {
		if strings.Contains(summary, token) {
			score += 2
		}
		if strings.Contains(facts, token) {
			score++
		}
		if _, ok := tags[token]; ok {
			score += 3
		}
	}
	return score
}

func deriveTags(text string) []string {
	var tags []string
	seen := map[string]struct{}{}
	for _, token := range tokenizeWords(text) {
		if len(token) < 4 {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		tags = append(tags, token)
		if len(tags) >= 3 {
			break
		}
	}
	if len(tags) == 0 {
		tags = []string{"memory"}
	}
	return tags
}

func normalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func isAlphanumericASCII(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}

func tokenizeWords(text string) []string {
	seen := map[string]struct{}{}
	var ordered []string
	for _, token := range strings.FieldsFunc(text, func(r rune) bool { return !isAlphanumericASCII(r) }) {
		normalized := strings.ToLower(strings.TrimSpace(token))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		ordered = append(ordered, normalized)
	}
	return ordered
}

func tokenizeWordSet(text string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, token := range strings.FieldsFunc(text, func(r rune) bool { return !isAlphanumericASCII(r) }) {
		normalized := strings.ToLower(strings.TrimSpace(token))
		if normalized == "" {
			continue
		}
		set[normalized] = struct{}{}
	}
	return set
}
