package releasecache

import (
	"encoding/json"
	"sort"
)

// Channel is one release track.
type Channel string

const (
	ChannelStable Channel = "stable"
	ChannelBeta   Channel = "beta"
	ChannelDev    Channel = "dev"
)

// ReleaseEntry is one fetched release record, the shape expected inside
// a Record's Payload for lookups that go through SelectChannel.
type ReleaseEntry struct {
	Version     string `json:"version"`
	Channel     string `json:"channel"`
	PublishedAt int64  `json:"published_at_unix_ms"`
}

// SelectChannel is a pure function over the fetched records: it picks
// the most recently published entry matching channel, or false if none
// match.
func SelectChannel(payload json.RawMessage, channel Channel) (ReleaseEntry, bool) {
	var entries []ReleaseEntry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return ReleaseEntry{}, false
	}
	var matches []ReleaseEntry
	for _, entry := range entries {
		if Channel(entry.Channel) == channel {
			matches = append(matches, entry)
		}
	}
	if len(matches) == 0 {
		return ReleaseEntry{}, false
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].PublishedAt > matches[j].PublishedAt })
	return matches[0], true
}
