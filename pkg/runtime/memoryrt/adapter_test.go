package memoryrt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, dir, yamlContent string) string {
	t.Helper()
	path := filepath.Join(dir, "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))
	return path
}

func newTestRunner(t *testing.T, dir string) *Runner {
	t.Helper()
	runner, err := NewRunner(Config{
		StateDir:         filepath.Join(dir, "state"),
		ChannelStoreRoot: filepath.Join(dir, "channel-store"),
		QueueLimit:       64,
		ProcessedCaseCap: 1000,
		RetryMaxAttempts: 2,
		RetryBaseDelayMs: 0,
	})
	require.NoError(t, err)
	return runner
}

func TestRunOnceExtractsAndPersistsMemorySnapshot(t *testing.T) {
	dir := t.TempDir()
	fixturePath := writeFixture(t, dir, `
cases:
  - case_id: extract-user-preference
    mode: extract
    scope:
      workspace_id: tau-core
      channel_id: discord:agents
    input_text: "Prefers dark mode and compact diffs"
`)

	runner := newTestRunner(t, dir)
	summary, err := runner.RunOnce(fixturePath)
	require.NoError(t, err)
	require.Equal(t, 1, summary.AppliedCases)

	entries := runner.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, "mem-tau-core-extract-user-preference", entries[0].MemoryID)
}

func TestRunOnceRetrieveRanksHigherScoreAboveRecencyAndConfidence(t *testing.T) {
	dir := t.TempDir()
	fixturePath := writeFixture(t, dir, `
cases:
  - case_id: retrieve-rollout
    mode: retrieve
    scope:
      workspace_id: tau-core
    query_text: "rollout checklist"
    retrieval_limit: 1
    prior_entries:
      - memory_id: mem-a
        summary: "unrelated entry"
        tags: []
        facts: []
        recency_weight_bps: 9000
        confidence_bps: 9000
      - memory_id: mem-b
        summary: "rollout checklist details"
        tags: ["rollout"]
        facts: []
        recency_weight_bps: 1000
        confidence_bps: 1000
`)

	runner := newTestRunner(t, dir)
	summary, err := runner.RunOnce(fixturePath)
	require.NoError(t, err)
	require.Equal(t, 1, summary.AppliedCases)

	entries := runner.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, "mem-b", entries[0].MemoryID)
}

func TestRunOnceRecordsMalformedInputForEmptyScope(t *testing.T) {
	dir := t.TempDir()
	fixturePath := writeFixture(t, dir, `
cases:
  - case_id: c1
    mode: extract
    scope:
      workspace_id: ""
    input_text: "hello"
`)

	runner := newTestRunner(t, dir)
	summary, err := runner.RunOnce(fixturePath)
	require.NoError(t, err)
	require.Equal(t, 1, summary.MalformedCases)
	require.Empty(t, runner.Entries())
}

func TestRunOnceRetriesRetryableFailureThenFails(t *testing.T) {
	dir := t.TempDir()
	fixturePath := writeFixture(t, dir, `
cases:
  - case_id: c1
    mode: extract
    scope:
      workspace_id: tau-core
    input_text: "hello"
    simulate_retryable_failure: true
`)

	runner := newTestRunner(t, dir)
	summary, err := runner.RunOnce(fixturePath)
	require.NoError(t, err)
	require.Equal(t, 1, summary.FailedCases)
	require.Equal(t, 1, summary.RetryAttempts)
}

func TestRenderWorkspaceSnapshotFiltersByWorkspacePrefix(t *testing.T) {
	entries := []Entry{
		{MemoryID: "mem-a", Summary: "a", SourceEventKey: "tau-core:extract:a"},
		{MemoryID: "mem-b", Summary: "b", SourceEventKey: "other-workspace:extract:b"},
	}
	rendered := renderWorkspaceSnapshot(entries, "tau-core")
	require.Contains(t, rendered, "mem-a")
	require.NotContains(t, rendered, "mem-b")
}

func TestRenderWorkspaceSnapshotReportsEmpty(t *testing.T) {
	rendered := renderWorkspaceSnapshot(nil, "tau-core")
	require.Contains(t, rendered, "No persisted entries")
}
