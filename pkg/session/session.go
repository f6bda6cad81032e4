// Package session implements an append-only, forkable, cycle-free
// conversation log. Entries are never mutated in place; forking off an
// older entry is how branches are created. The file is rewritten
// atomically on every append, and cross-process writers are serialized
// through an advisory lock.
package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/cuemby/tau/internal/atomicfile"
	"github.com/cuemby/tau/internal/filelock"
)

// SchemaVersion is the highest session file schema this engine
// understands. A meta record declaring a higher version is a hard error;
// files with no meta record at all (legacy) are always accepted.
const SchemaVersion = 1

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentBlock is one opaque piece of a Message's content. Kind
// discriminates text/tool-call/tool-result/image/audio blocks; the
// session store never interprets content, only stores and replays it.
type ContentBlock struct {
	Kind string          `json:"kind"`
	Text string          `json:"text,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message is a single conversation turn. It is treated as an opaque
// value by the store: never mutated after append.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// Entry is one record in the session log.
type Entry struct {
	ID       uint64  `json:"id"`
	ParentID *uint64 `json:"parent_id"`
	Message  Message `json:"message"`
}

type metaRecord struct {
	RecordType    string `json:"record_type"`
	SchemaVersion int    `json:"schema_version"`
}

// wireRecord covers every shape a line in the file may take: a tagged
// meta record, a tagged entry record, or a legacy bare entry (no
// record_type field at all).
type wireRecord struct {
	RecordType    string  `json:"record_type"`
	SchemaVersion int     `json:"schema_version"`
	ID            uint64  `json:"id"`
	ParentID      *uint64 `json:"parent_id"`
	Message       Message `json:"message"`
}

// RepairReport summarizes what Repair removed.
type RepairReport struct {
	RemovedDuplicates   int
	RemovedInvalidParent int
	RemovedCycles       int
}

// Store is a handle to one session file. Append, Repair, and
// CompactToLineage re-read the file under the advisory lock before
// mutating, so concurrent writers across processes stay linearized.
type Store struct {
	path    string
	entries []Entry
	nextID  uint64
}

// Open loads path (which need not yet exist) into a Store.
func Open(path string) (*Store, error) {
	entries, nextID, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, entries: entries, nextID: nextID}, nil
}

// Load reads the file line by line, tolerating blank lines and both the
// tagged meta/entry format and legacy bare entries. It returns entries in
// file order and the next id to assign.
func Load(path string) ([]Entry, uint64, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 1, nil
		}
		return nil, 0, fmt.Errorf("failed to open session file %s: %w", path, err)
	}
	defer file.Close()

	var entries []Entry
	var maxID uint64
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var raw wireRecord
		if err := json.Unmarshal(line, &raw); err != nil {
			return nil, 0, fmt.Errorf("failed to parse session file %s at line %d: %w", path, lineNo, err)
		}

		switch raw.RecordType {
		case "meta":
			if raw.SchemaVersion > SchemaVersion {
				return nil, 0, fmt.Errorf("unsupported session schema version %d in %s (supported up to %d)", raw.SchemaVersion, path, SchemaVersion)
			}
		case "entry", "":
			entries = append(entries, Entry{ID: raw.ID, ParentID: raw.ParentID, Message: raw.Message})
			if raw.ID > maxID {
				maxID = raw.ID
			}
		default:
			return nil, 0, fmt.Errorf("failed to parse session file %s at line %d: unknown record_type %q", path, lineNo, raw.RecordType)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read session file %s: %w", path, err)
	}

	return entries, maxID + 1, nil
}

// EnsureInitialized appends a single system root if the store is empty
// and prompt is non-blank; otherwise it returns the existing head id (the
// highest-id entry), or nil if the store is empty and prompt is blank.
func (s *Store) EnsureInitialized(systemPrompt string) (*uint64, error) {
	if len(s.entries) > 0 {
		head := s.entries[len(s.entries)-1].ID
		return &head, nil
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, nil
	}
	head, err := s.Append(nil, []Message{{Role: RoleSystem, Content: []ContentBlock{{Kind: "text", Text: systemPrompt}}}})
	if err != nil {
		return nil, err
	}
	return &head, nil
}

// Append assigns consecutive ids to messages, chaining each to the
// previous (the first to parentID), rewrites the file atomically under
// the lock, and returns the new head id.
func (s *Store) Append(parentID *uint64, messages []Message) (uint64, error) {
	if len(messages) == 0 {
		return 0, fmt.Errorf("append requires at least one message")
	}

	guard, err := filelock.Acquire(s.lockPath(), filelock.DefaultTimeout)
	if err != nil {
		return 0, err
	}
	defer guard.Release()

	entries, nextID, err := Load(s.path)
	if err != nil {
		return 0, err
	}

	if parentID != nil {
		if !hasID(entries, *parentID) {
			return 0, fmt.Errorf("parent id %d does not exist in session", *parentID)
		}
	}

	prev := parentID
	for _, msg := range messages {
		id := nextID
		nextID++
		entries = append(entries, Entry{ID: id, ParentID: prev, Message: msg})
		assigned := id
		prev = &assigned
	}

	if err := writeEntries(s.path, entries); err != nil {
		return 0, err
	}

	s.entries = entries
	s.nextID = nextID
	return *prev, nil
}

// LineageMessages walks parent_id links from headID back to a root,
// returning messages in root-to-head order. A nil headID yields an empty
// sequence.
func (s *Store) LineageMessages(headID *uint64) ([]Message, error) {
	if headID == nil {
		return nil, nil
	}
	byID := make(map[uint64]Entry, len(s.entries))
	for _, e := range s.entries {
		byID[e.ID] = e
	}

	var chain []Entry
	visited := make(map[uint64]struct{})
	current := *headID
	for {
		if _, seen := visited[current]; seen {
			return nil, fmt.Errorf("detected a cycle while resolving session lineage at id %d", current)
		}
		visited[current] = struct{}{}
		entry, ok := byID[current]
		if !ok {
			return nil, fmt.Errorf("unknown session id %d", current)
		}
		chain = append(chain, entry)
		if entry.ParentID == nil {
			break
		}
		current = *entry.ParentID
	}

	messages := make([]Message, len(chain))
	for i, entry := range chain {
		messages[len(chain)-1-i] = entry.Message
	}
	return messages, nil
}

// BranchTips returns entries that are not any other entry's parent,
// sorted by id ascending.
func (s *Store) BranchTips() []Entry {
	isParent := make(map[uint64]struct{}, len(s.entries))
	for _, e := range s.entries {
		if e.ParentID != nil {
			isParent[*e.ParentID] = struct{}{}
		}
	}
	var tips []Entry
	for _, e := range s.entries {
		if _, ok := isParent[e.ID]; !ok {
			tips = append(tips, e)
		}
	}
	sort.Slice(tips, func(i, j int) bool { return tips[i].ID < tips[j].ID })
	return tips
}

// Repair drops duplicate ids (keeping the first occurrence), then
// iteratively drops entries with a missing parent until a fixed point,
// then drops any entry participating in a cycle, together with any entry
// whose parent chain leads into one. It is idempotent on an
// already-valid file.
func (s *Store) Repair() (RepairReport, error) {
	guard, err := filelock.Acquire(s.lockPath(), filelock.DefaultTimeout)
	if err != nil {
		return RepairReport{}, err
	}
	defer guard.Release()

	entries, _, err := Load(s.path)
	if err != nil {
		return RepairReport{}, err
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	var report RepairReport

	seen := make(map[uint64]struct{}, len(entries))
	deduped := entries[:0:0]
	for _, e := range entries {
		if _, dup := seen[e.ID]; dup {
			report.RemovedDuplicates++
			continue
		}
		seen[e.ID] = struct{}{}
		deduped = append(deduped, e)
	}
	entries = deduped

	for {
		ids := make(map[uint64]struct{}, len(entries))
		for _, e := range entries {
			ids[e.ID] = struct{}{}
		}
		var kept []Entry
		removedThisPass := 0
		for _, e := range entries {
			if e.ParentID != nil {
				if _, ok := ids[*e.ParentID]; !ok {
					removedThisPass++
					continue
				}
			}
			kept = append(kept, e)
		}
		entries = kept
		report.RemovedInvalidParent += removedThisPass
		if removedThisPass == 0 {
			break
		}
	}

	byID := make(map[uint64]Entry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}
	inCycle := make(map[uint64]struct{})
	for _, e := range entries {
		if _, already := inCycle[e.ID]; already {
			continue
		}
		visited := make(map[uint64]struct{})
		current := e.ID
		for {
			if _, seen := visited[current]; seen {
				for id := range visited {
					inCycle[id] = struct{}{}
				}
				break
			}
			visited[current] = struct{}{}
			entry, ok := byID[current]
			if !ok || entry.ParentID == nil {
				break
			}
			current = *entry.ParentID
		}
	}
	if len(inCycle) > 0 {
		var kept []Entry
		for _, e := range entries {
			if _, cyclic := inCycle[e.ID]; cyclic {
				report.RemovedCycles++
				continue
			}
			kept = append(kept, e)
		}
		entries = kept
	}

	if err := writeEntries(s.path, entries); err != nil {
		return RepairReport{}, err
	}
	s.entries = entries
	return report, nil
}

// CompactToLineage rewrites the file to contain only the lineage of
// preferredHead (or the last entry if nil), preserving original ids.
func (s *Store) CompactToLineage(preferredHead *uint64) error {
	guard, err := filelock.Acquire(s.lockPath(), filelock.DefaultTimeout)
	if err != nil {
		return err
	}
	defer guard.Release()

	entries, _, err := Load(s.path)
	if err != nil {
		return err
	}
	s.entries = entries

	head := preferredHead
	if head == nil {
		if len(entries) == 0 {
			return fmt.Errorf("cannot compact an empty session")
		}
		last := entries[len(entries)-1].ID
		head = &last
	}

	byID := make(map[uint64]Entry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}
	var lineage []Entry
	visited := make(map[uint64]struct{})
	current := *head
	for {
		if _, seen := visited[current]; seen {
			return fmt.Errorf("detected a cycle while resolving session lineage at id %d", current)
		}
		visited[current] = struct{}{}
		entry, ok := byID[current]
		if !ok {
			return fmt.Errorf("unknown session id %d", current)
		}
		lineage = append(lineage, entry)
		if entry.ParentID == nil {
			break
		}
		current = *entry.ParentID
	}
	for i, j := 0, len(lineage)-1; i < j; i, j = i+1, j-1 {
		lineage[i], lineage[j] = lineage[j], lineage[i]
	}

	if err := writeEntries(s.path, lineage); err != nil {
		return err
	}
	s.entries = lineage
	return nil
}

func (s *Store) lockPath() string {
	return s.path + ".lock"
}

func hasID(entries []Entry, id uint64) bool {
	for _, e := range entries {
		if e.ID == id {
			return true
		}
	}
	return false
}

func writeEntries(path string, entries []Entry) error {
	var buf bytes.Buffer
	meta := metaRecord{RecordType: "meta", SchemaVersion: SchemaVersion}
	metaLine, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to serialize session meta record: %w", err)
	}
	buf.Write(metaLine)
	buf.WriteByte('\n')

	for _, e := range entries {
		record := wireRecord{RecordType: "entry", ID: e.ID, ParentID: e.ParentID, Message: e.Message}
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to serialize session entry %d: %w", e.ID, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	return atomicfile.Write(path, buf.Bytes())
}
