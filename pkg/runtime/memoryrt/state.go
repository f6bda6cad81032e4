package memoryrt

import (
	"sort"
	"strings"
)

// Domain is the memory runtime's persisted domain state: a flat,
// workspace-agnostic set of memory entries keyed by MemoryID.
type Domain struct {
	Entries []Entry `json:"entries"`
}

func (d *Domain) upsert(entry Entry) {
	for i := range d.Entries {
		if d.Entries[i].MemoryID == entry.MemoryID {
			d.Entries[i] = entry
			return
		}
	}
	d.Entries = append(d.Entries, entry)
}

func (d *Domain) sort() {
	sort.Slice(d.Entries, func(i, j int) bool { return d.Entries[i].MemoryID < d.Entries[j].MemoryID })
}

// renderWorkspaceSnapshot renders the markdown memory snapshot scoped
// to entries whose SourceEventKey starts with "{workspaceID}:".
func renderWorkspaceSnapshot(entries []Entry, workspaceID string) string {
	workspaceID = strings.TrimSpace(workspaceID)
	prefix := workspaceID + ":"
	var scoped []Entry
	for _, entry := range entries {
		if strings.HasPrefix(entry.SourceEventKey, prefix) {
			scoped = append(scoped, entry)
		}
	}
	if len(scoped) == 0 {
		return "# Tau Memory Snapshot (" + workspaceID + ")\n\n- No persisted entries"
	}
	lines := []string{"# Tau Memory Snapshot (" + workspaceID + ")", ""}
	for _, entry := range scoped {
		lines = append(lines, "- "+entry.MemoryID+": "+entry.Summary)
	}
	return strings.Join(lines, "\n")
}
