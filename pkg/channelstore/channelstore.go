// Package channelstore implements per-channel, append-only persistence of
// log/context/artifact records plus a rewritable memory snapshot. A
// channel directory is <root>/<transport>/<safe_channel_id>/.
package channelstore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/cuemby/tau/internal/atomicfile"
)

const (
	logFileName       = "log.jsonl"
	contextFileName   = "context.jsonl"
	artifactsFileName = "artifacts.jsonl"
	memoryFileName    = "memory.md"

	fallbackChannelID = "channel"
)

var safeChannelID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// LogEntry is one line of log.jsonl.
type LogEntry struct {
	TimestampUnixMs int64           `json:"timestamp_unix_ms"`
	Direction       string          `json:"direction"`
	EventKey        *string         `json:"event_key,omitempty"`
	Source          string          `json:"source"`
	Payload         json.RawMessage `json:"payload"`
}

// ContextEntry is one line of context.jsonl.
type ContextEntry struct {
	TimestampUnixMs int64  `json:"timestamp_unix_ms"`
	Role            string `json:"role"`
	Text            string `json:"text"`
}

// ArtifactRecord is one line of artifacts.jsonl.
type ArtifactRecord struct {
	TimestampUnixMs int64  `json:"timestamp_unix_ms"`
	RelativePath    string `json:"relative_path"`
	Type            string `json:"type"`
	SizeBytes       int64  `json:"size_bytes"`
	SourceEventKey  string `json:"source_event_key,omitempty"`
}

// Store is a handle to one channel's directory.
type Store struct {
	dir string
}

// Open resolves <root>/<transport>/<safeChannelID(channelID)>/ and
// ensures it exists.
func Open(root, transport, channelID string) (*Store, error) {
	dir := filepath.Join(root, transport, safeID(channelID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create channel directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func safeID(channelID string) string {
	if safeChannelID.MatchString(channelID) {
		return channelID
	}
	return fallbackChannelID
}

// Dir returns the channel's backing directory.
func (s *Store) Dir() string { return s.dir }

// AppendLogEntry serializes entry to a single JSON line and appends it,
// fsyncing before return.
func (s *Store) AppendLogEntry(entry LogEntry) error {
	return appendJSONLine(filepath.Join(s.dir, logFileName), entry)
}

// AppendContextEntry appends one context.jsonl line.
func (s *Store) AppendContextEntry(entry ContextEntry) error {
	return appendJSONLine(filepath.Join(s.dir, contextFileName), entry)
}

// AppendArtifactRecord appends one artifacts.jsonl line.
func (s *Store) AppendArtifactRecord(record ArtifactRecord) error {
	return appendJSONLine(filepath.Join(s.dir, artifactsFileName), record)
}

// WriteMemory replaces memory.md wholesale via the atomic file writer.
func (s *Store) WriteMemory(text string) error {
	return atomicfile.WriteText(filepath.Join(s.dir, memoryFileName), text)
}

// LoadMemory returns the current memory.md contents, or "" if it does
// not yet exist.
func (s *Store) LoadMemory() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, memoryFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read memory file: %w", err)
	}
	return string(data), nil
}

// LoadArtifactRecordsTolerant reads artifacts.jsonl, skipping and
// counting malformed lines rather than failing the whole load.
func (s *Store) LoadArtifactRecordsTolerant() ([]ArtifactRecord, int, error) {
	file, err := os.Open(filepath.Join(s.dir, artifactsFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("failed to open artifacts file: %w", err)
	}
	defer file.Close()

	var records []ArtifactRecord
	malformed := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record ArtifactRecord
		if err := json.Unmarshal(line, &record); err != nil {
			malformed++
			continue
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read artifacts file: %w", err)
	}
	return records, malformed, nil
}

func appendJSONLine(path string, value any) error {
	line, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize %s record: %w", filepath.Base(path), err)
	}
	line = append(line, '\n')

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	if _, err := file.Write(line); err != nil {
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	return file.Sync()
}
