package releasecache

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "release.db")
	cache, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestLookupFetchesLiveOnFirstCall(t *testing.T) {
	cache := openTestCache(t)
	calls := 0
	fetch := func(sourceURL string) (json.RawMessage, error) {
		calls++
		return json.RawMessage(`{"version":"1.2.3"}`), nil
	}

	result, err := cache.Lookup("https://example.com/releases", time.Minute, fetch, 1_000)
	require.NoError(t, err)
	require.Equal(t, Live, result.Outcome)
	require.Equal(t, 1, calls)
}

func TestLookupReturnsCacheFreshWithinTTL(t *testing.T) {
	cache := openTestCache(t)
	fetch := func(sourceURL string) (json.RawMessage, error) {
		return json.RawMessage(`{"version":"1.2.3"}`), nil
	}

	_, err := cache.Lookup("https://example.com/releases", time.Minute, fetch, 1_000)
	require.NoError(t, err)

	calls := 0
	fetchAgain := func(sourceURL string) (json.RawMessage, error) {
		calls++
		return nil, errors.New("should not be called")
	}
	result, err := cache.Lookup("https://example.com/releases", time.Minute, fetchAgain, 1_000+5_000)
	require.NoError(t, err)
	require.Equal(t, CacheFresh, result.Outcome)
	require.Equal(t, 0, calls)
}

func TestLookupFallsBackToStaleCacheOnFetchError(t *testing.T) {
	cache := openTestCache(t)
	fetch := func(sourceURL string) (json.RawMessage, error) {
		return json.RawMessage(`{"version":"1.2.3"}`), nil
	}
	_, err := cache.Lookup("https://example.com/releases", time.Millisecond, fetch, 1_000)
	require.NoError(t, err)

	failingFetch := func(sourceURL string) (json.RawMessage, error) {
		return nil, errors.New("network unreachable")
	}
	result, err := cache.Lookup("https://example.com/releases", time.Millisecond, failingFetch, 1_000+10_000)
	require.NoError(t, err)
	require.Equal(t, CacheStaleFallback, result.Outcome)
}

func TestLookupPropagatesErrorWhenNoCacheExists(t *testing.T) {
	cache := openTestCache(t)
	failingFetch := func(sourceURL string) (json.RawMessage, error) {
		return nil, errors.New("network unreachable")
	}
	_, err := cache.Lookup("https://example.com/releases", time.Minute, failingFetch, 1_000)
	require.Error(t, err)
}

func TestSelectChannelPicksMostRecentMatchingEntry(t *testing.T) {
	payload := json.RawMessage(`[
		{"version":"1.0.0","channel":"stable","published_at_unix_ms":1000},
		{"version":"1.1.0","channel":"stable","published_at_unix_ms":2000},
		{"version":"1.2.0-beta.1","channel":"beta","published_at_unix_ms":3000}
	]`)
	entry, ok := SelectChannel(payload, ChannelStable)
	require.True(t, ok)
	require.Equal(t, "1.1.0", entry.Version)
}

func TestSelectChannelReturnsFalseWhenNoMatch(t *testing.T) {
	payload := json.RawMessage(`[{"version":"1.0.0","channel":"beta","published_at_unix_ms":1000}]`)
	_, ok := SelectChannel(payload, ChannelDev)
	require.False(t, ok)
}
