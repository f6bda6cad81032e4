package multichannel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/tau/pkg/dispatch"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, dir, yamlContent string) string {
	t.Helper()
	path := filepath.Join(dir, "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))
	return path
}

func TestRunOnceDeliversInChannelStoreMode(t *testing.T) {
	dir := t.TempDir()
	fixturePath := writeFixture(t, dir, `
cases:
  - case_id: c1
    transport: telegram
    conversation_id: chat-1
    actor_id: "1234"
    response_text: "hello there"
    simulated_step: success
`)

	runner, err := NewRunner(Config{
		StateDir:         filepath.Join(dir, "state"),
		ChannelStoreRoot: filepath.Join(dir, "channel-store"),
		QueueLimit:       64,
		ProcessedCaseCap: 1000,
		RetryMaxAttempts: 3,
		Dispatch:         dispatch.DefaultConfig(),
	})
	require.NoError(t, err)

	summary, err := runner.RunOnce(fixturePath)
	require.NoError(t, err)
	require.Equal(t, 1, summary.AppliedCases)

	deliveries := runner.Deliveries()
	require.Len(t, deliveries, 1)
	require.Equal(t, "delivered", deliveries[0].Status)
}

func TestRunOnceRecordsMalformedCase(t *testing.T) {
	dir := t.TempDir()
	fixturePath := writeFixture(t, dir, `
cases:
  - case_id: c1
    transport: telegram
    conversation_id: chat-1
    response_text: "hello"
    simulated_step: malformed_input
    simulated_error_code: bad_payload
`)

	runner, err := NewRunner(Config{
		StateDir:         filepath.Join(dir, "state"),
		ChannelStoreRoot: filepath.Join(dir, "channel-store"),
		QueueLimit:       64,
		ProcessedCaseCap: 1000,
		RetryMaxAttempts: 3,
		Dispatch:         dispatch.DefaultConfig(),
	})
	require.NoError(t, err)

	summary, err := runner.RunOnce(fixturePath)
	require.NoError(t, err)
	require.Equal(t, 1, summary.MalformedCases)
	require.Empty(t, runner.Deliveries())
}
