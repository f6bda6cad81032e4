package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func textMessage(role Role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{{Kind: "text", Text: text}}}
}

func u64(v uint64) *uint64 { return &v }

func TestSessionLineageForking(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	store, err := Open(path)
	require.NoError(t, err)

	head, err := store.Append(nil, []Message{textMessage(RoleSystem, "s")})
	require.NoError(t, err)
	require.Equal(t, uint64(1), head)

	head, err = store.Append(u64(1), []Message{
		textMessage(RoleUser, "q1"),
		textMessage(RoleAssistant, "a1"),
		textMessage(RoleUser, "q2"),
		textMessage(RoleAssistant, "a2"),
	})
	require.NoError(t, err)
	require.Equal(t, uint64(5), head)

	head, err = store.Append(u64(3), []Message{
		textMessage(RoleUser, "q2b"),
		textMessage(RoleAssistant, "a2b"),
	})
	require.NoError(t, err)
	require.Equal(t, uint64(7), head)

	messages, err := store.LineageMessages(u64(7))
	require.NoError(t, err)
	texts := make([]string, len(messages))
	for i, m := range messages {
		texts[i] = m.Content[0].Text
	}
	require.Equal(t, []string{"s", "q1", "a1", "q2b", "a2b"}, texts)

	tips := store.BranchTips()
	require.Len(t, tips, 2)
	require.Equal(t, uint64(5), tips[0].ID)
	require.Equal(t, uint64(7), tips[1].ID)
}

func TestSessionAppendRejectsMissingParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	store, err := Open(path)
	require.NoError(t, err)

	_, err = store.Append(u64(99), []Message{textMessage(RoleUser, "hi")})
	require.ErrorContains(t, err, "parent id 99 does not exist in session")
}

func TestSessionLineageDetectsCycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	lines := `{"record_type":"meta","schema_version":1}
{"record_type":"entry","id":3,"parent_id":4,"message":{"role":"user","content":[{"kind":"text","text":"x"}]}}
{"record_type":"entry","id":4,"parent_id":3,"message":{"role":"user","content":[{"kind":"text","text":"y"}]}}
`
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	store, err := Open(path)
	require.NoError(t, err)

	_, err = store.LineageMessages(u64(3))
	require.ErrorContains(t, err, "detected a cycle while resolving session lineage at id")
}

func TestRepairRemovesDanglingParentsAndCycles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	lines := `{"record_type":"entry","id":1,"parent_id":null,"message":{"role":"system","content":[{"kind":"text","text":"root"}]}}
{"record_type":"entry","id":2,"parent_id":99,"message":{"role":"user","content":[{"kind":"text","text":"dangling"}]}}
{"record_type":"entry","id":3,"parent_id":4,"message":{"role":"user","content":[{"kind":"text","text":"cyc-a"}]}}
{"record_type":"entry","id":4,"parent_id":3,"message":{"role":"user","content":[{"kind":"text","text":"cyc-b"}]}}
`
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	store, err := Open(path)
	require.NoError(t, err)

	report, err := store.Repair()
	require.NoError(t, err)
	require.Equal(t, 0, report.RemovedDuplicates)
	require.Equal(t, 1, report.RemovedInvalidParent)
	require.Equal(t, 2, report.RemovedCycles)

	entries, _, err := Load(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, uint64(1), entries[0].ID)
}

func TestRepairIsIdempotentOnValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	store, err := Open(path)
	require.NoError(t, err)
	_, err = store.Append(nil, []Message{textMessage(RoleSystem, "s")})
	require.NoError(t, err)
	_, err = store.Append(u64(1), []Message{textMessage(RoleUser, "q")})
	require.NoError(t, err)

	first, err := store.Repair()
	require.NoError(t, err)
	require.Equal(t, RepairReport{}, first)

	second, err := store.Repair()
	require.NoError(t, err)
	require.Equal(t, RepairReport{}, second)
}

func TestLegacyBareEntriesLoadSuccessfully(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	lines := `{"id":1,"parent_id":null,"message":{"role":"system","content":[{"kind":"text","text":"legacy root"}]}}
{"id":2,"parent_id":1,"message":{"role":"user","content":[{"kind":"text","text":"legacy q"}]}}
`
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	entries, nextID, err := Load(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, uint64(3), nextID)
}

func TestLoadRejectsUnsupportedSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	lines := `{"record_type":"meta","schema_version":99}
`
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	_, _, err := Load(path)
	require.ErrorContains(t, err, "unsupported session schema version 99")
}

func TestEnsureInitializedAppendsSystemRootOnlyWhenEmptyAndNonBlank(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	store, err := Open(path)
	require.NoError(t, err)

	head, err := store.EnsureInitialized("  ")
	require.NoError(t, err)
	require.Nil(t, head)

	head, err = store.EnsureInitialized("you are a helpful agent")
	require.NoError(t, err)
	require.NotNil(t, head)
	require.Equal(t, uint64(1), *head)

	// Calling again on a non-empty store returns the existing head,
	// without appending a second root.
	head, err = store.EnsureInitialized("a different prompt")
	require.NoError(t, err)
	require.Equal(t, uint64(1), *head)
	entries, _, err := Load(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestCompactToLineageKeepsOnlyLineageEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	store, err := Open(path)
	require.NoError(t, err)
	_, err = store.Append(nil, []Message{textMessage(RoleSystem, "s")})
	require.NoError(t, err)
	_, err = store.Append(u64(1), []Message{textMessage(RoleUser, "q1"), textMessage(RoleAssistant, "a1")})
	require.NoError(t, err)
	_, err = store.Append(u64(1), []Message{textMessage(RoleUser, "other-branch")})
	require.NoError(t, err)

	before, err := store.LineageMessages(u64(3))
	require.NoError(t, err)

	require.NoError(t, store.CompactToLineage(u64(3)))

	after, err := store.LineageMessages(u64(3))
	require.NoError(t, err)
	require.Equal(t, before, after)

	entries, _, err := Load(path)
	require.NoError(t, err)
	require.Len(t, entries, 3)
}
