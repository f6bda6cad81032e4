package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cuemby/tau/pkg/metrics"
	"github.com/cuemby/tau/pkg/releasecache"
	"github.com/spf13/cobra"
)

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Look up and cache remote release metadata",
}

var releaseLookupCmd = &cobra.Command{
	Use:   "lookup SOURCE_URL",
	Short: "Look up the newest release on a channel, serving from cache when fresh",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sourceURL := args[0]
		dbPath, _ := cmd.Flags().GetString("db-path")
		ttlMs, _ := cmd.Flags().GetInt64("ttl-ms")
		channel, _ := cmd.Flags().GetString("channel")
		httpTimeoutMs, _ := cmd.Flags().GetInt64("http-timeout-ms")

		cache, err := releasecache.Open(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open release cache: %v", err)
		}
		defer cache.Close()

		client := &http.Client{Timeout: time.Duration(httpTimeoutMs) * time.Millisecond}
		fetch := func(url string) (json.RawMessage, error) {
			resp, err := client.Get(url)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, fmt.Errorf("release source returned status %d", resp.StatusCode)
			}
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, err
			}
			return json.RawMessage(body), nil
		}

		result, err := cache.Lookup(sourceURL, time.Duration(ttlMs)*time.Millisecond, fetch, time.Now().UnixMilli())
		if err != nil {
			metrics.ReleaseCacheLookupsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("release lookup failed: %v", err)
		}
		metrics.ReleaseCacheLookupsTotal.WithLabelValues(result.Outcome.String()).Inc()

		entry, found := releasecache.SelectChannel(result.Record.Payload, releasecache.Channel(channel))
		fmt.Printf("outcome=%s fetched_at_unix_ms=%d\n", result.Outcome, result.Record.FetchedAtUnixMs)
		if !found {
			fmt.Printf("no release found on channel %q\n", channel)
			return nil
		}
		fmt.Printf("version=%s channel=%s published_at_unix_ms=%d\n", entry.Version, entry.Channel, entry.PublishedAt)
		return nil
	},
}

func init() {
	releaseCmd.AddCommand(releaseLookupCmd)

	releaseLookupCmd.Flags().String("db-path", "state/release-cache.db", "Path to the bbolt-backed release cache")
	releaseLookupCmd.Flags().Int64("ttl-ms", (6 * time.Hour).Milliseconds(), "Cache freshness window in milliseconds")
	releaseLookupCmd.Flags().String("channel", string(releasecache.ChannelStable), "Release channel to select (stable, beta, dev)")
	releaseLookupCmd.Flags().Int64("http-timeout-ms", 5000, "HTTP timeout for the live fetch in milliseconds")
}
