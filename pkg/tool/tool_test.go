package tool

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testPolicy(t *testing.T, root string) Policy {
	t.Helper()
	return NewPolicy([]string{root})
}

func TestReadReturnsFileContent(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test.txt")
	require.NoError(t, os.WriteFile(file, []byte("hello"), 0o644))

	result, err := Read(testPolicy(t, dir), file)
	require.NoError(t, err)
	require.Equal(t, "hello", result.Content)
}

func TestReadRejectsFileLargerThanLimit(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test.txt")
	require.NoError(t, os.WriteFile(file, []byte("hello world"), 0o644))

	policy := testPolicy(t, dir)
	policy.MaxFileReadBytes = 3
	_, err := Read(policy, file)
	require.Error(t, err)
	require.Contains(t, err.Error(), "too large")
}

func TestWriteCreatesParentDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "nested", "output.txt")

	result, err := Write(testPolicy(t, dir), file, "hello")
	require.NoError(t, err)
	require.Equal(t, 5, result.BytesWritten)

	content, err := os.ReadFile(file)
	require.NoError(t, err)
	require.Equal(t, "hello", string(content))
}

func TestWriteBlocksPathsOutsideAllowedRoots(t *testing.T) {
	dir := t.TempDir()
	outside := filepath.Join(filepath.Dir(dir), "outside.txt")

	_, err := Write(testPolicy(t, dir), outside, "data")
	require.Error(t, err)
	require.Contains(t, err.Error(), "outside allowed roots")
}

func TestEditReplacesSingleMatch(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test.txt")
	require.NoError(t, os.WriteFile(file, []byte("a a a"), 0o644))

	_, err := Edit(testPolicy(t, dir), file, "a", "b", false)
	require.NoError(t, err)

	content, err := os.ReadFile(file)
	require.NoError(t, err)
	require.Equal(t, "b a a", string(content))
}

func TestEditReplacesAllMatches(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test.txt")
	require.NoError(t, os.WriteFile(file, []byte("a a a"), 0o644))

	result, err := Edit(testPolicy(t, dir), file, "a", "b", true)
	require.NoError(t, err)
	require.Equal(t, 3, result.Replacements)

	content, err := os.ReadFile(file)
	require.NoError(t, err)
	require.Equal(t, "b b b", string(content))
}

func TestEditRejectsEmptyFind(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test.txt")
	require.NoError(t, os.WriteFile(file, []byte("a"), 0o644))

	_, err := Edit(testPolicy(t, dir), file, "", "b", false)
	require.Error(t, err)
}

func TestBashRunsAllowedCommand(t *testing.T) {
	dir := t.TempDir()
	result, err := Bash(testPolicy(t, dir), "printf 'ok'", dir)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "ok", result.Stdout)
}

func TestBashRejectsMultilineCommandsByDefault(t *testing.T) {
	dir := t.TempDir()
	_, err := Bash(testPolicy(t, dir), "printf 'a'\nprintf 'b'", dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "multiline commands are disabled")
}

func TestBashRejectsCommandNotInAllowlist(t *testing.T) {
	dir := t.TempDir()
	_, err := Bash(testPolicy(t, dir), "python --version", dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "is not allowed by \"balanced\" bash profile")
}

func TestBashRejectsCommandLongerThanPolicyLimit(t *testing.T) {
	dir := t.TempDir()
	policy := testPolicy(t, dir)
	policy.MaxCommandLength = 4
	_, err := Bash(policy, "printf", dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "too long")
}

func TestBashTimesOutLongCommand(t *testing.T) {
	dir := t.TempDir()
	policy := testPolicy(t, dir)
	policy.BashTimeoutMs = 100
	_, err := Bash(policy, "sleep 2", dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "command timed out after 100 ms")
}

func TestBashDoesNotInheritUnsafeEnvironmentVariables(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TAU_TEST_SECRET_NOT_INHERITED", "very-secret-value")

	result, err := Bash(testPolicy(t, dir), `printf "${TAU_TEST_SECRET_NOT_INHERITED:-missing}"`, dir)
	require.NoError(t, err)
	require.Equal(t, "missing", result.Stdout)
}

func TestRedactSecretsReplacesSensitiveEnvValues(t *testing.T) {
	t.Setenv("TEST_API_KEY", "secret-value-123")
	redacted := redactSecrets("token=secret-value-123")
	require.Equal(t, "token=[REDACTED]", redacted)
}

func TestTruncateBytesAppendsMarkerWhenOverLimit(t *testing.T) {
	value := "hello world"
	truncated := truncateBytes(value, 5)
	require.True(t, len(truncated) > 0)
	require.Contains(t, truncated, "<output truncated>")
}

func TestLeadingExecutableParsesAssignmentsAndPaths(t *testing.T) {
	executable, ok := leadingExecutable("FOO=1 /usr/bin/git status")
	require.True(t, ok)
	require.Equal(t, "git", executable)
}

func TestCommandAllowlistSupportsPrefixPatterns(t *testing.T) {
	allowlist := []string{"git", "go-*"}
	require.True(t, isCommandAllowed("git", allowlist))
	require.True(t, isCommandAllowed("go-staticcheck", allowlist))
	require.False(t, isCommandAllowed("python", allowlist))
}

func TestCanonicalizeBestEffortHandlesNonExistingChild(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a", "b", "c.txt")
	canonical, err := canonicalizeBestEffort(target)
	require.NoError(t, err)
	require.True(t, filepath.Base(canonical) == "c.txt")
}
