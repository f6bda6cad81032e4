package filelock

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireAndReleaseRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.lock")

	guard, err := Acquire(path, DefaultTimeout)
	require.NoError(t, err)
	require.FileExists(t, path)

	require.NoError(t, guard.Release())
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
}

func TestAcquireTimesOutWhenAlreadyHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.lock")

	first, err := Acquire(path, DefaultTimeout)
	require.NoError(t, err)
	defer first.Release()

	_, err = Acquire(path, 120*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "timed out acquiring lock")
}

func TestReleaseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.lock")
	guard, err := Acquire(path, DefaultTimeout)
	require.NoError(t, err)

	require.NoError(t, guard.Release())
	require.NoError(t, guard.Release())
}
