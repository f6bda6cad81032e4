package atomicfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteCreatesFileWithContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "state.json")

	require.NoError(t, WriteText(path, "hello"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestWriteOverwritesExistingFileAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	require.NoError(t, WriteText(path, "old"))
	require.NoError(t, WriteText(path, "new-and-longer-content"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "new-and-longer-content", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no leftover temp file should remain")
}

func TestWriteFailsWhenParentPathIsAFile(t *testing.T) {
	// Writing under a path whose parent cannot be created (a file, not a
	// directory, occupying the intended parent segment) must fail cleanly.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	err := WriteText(filepath.Join(blocker, "child", "state.json"), "data")
	require.Error(t, err)
}
