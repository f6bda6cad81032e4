package customcommand

import (
	"fmt"
	"sort"
	"strings"
)

// CommandRecord is the persisted view of one registered command.
type CommandRecord struct {
	CaseKey        string `json:"case_key"`
	CaseID         string `json:"case_id"`
	CommandName    string `json:"command_name"`
	Template       string `json:"template"`
	Operation      string `json:"operation"`
	LastStatusCode int    `json:"last_status_code"`
	LastOutcome    string `json:"last_outcome"`
	RunCount       uint64 `json:"run_count"`
	UpdatedUnixMs  int64  `json:"updated_unix_ms"`
}

// Domain is the custom-command runtime's persisted domain state,
// embedded in runtime.State[Domain].Domain.
type Domain struct {
	Commands []CommandRecord `json:"commands"`
}

func (d *Domain) findIndex(commandName string) int {
	for i := range d.Commands {
		if d.Commands[i].CommandName == commandName {
			return i
		}
	}
	return -1
}

func (d *Domain) sortCommands() {
	sort.Slice(d.Commands, func(i, j int) bool { return d.Commands[i].CommandName < d.Commands[j].CommandName })
}

// renderSnapshot renders the markdown memory snapshot for a channel.
// channelID "registry" renders every command; any other channel id
// renders only the command of that name (per channelIDForCase's
// scoping rule, a channel only ever corresponds to one command name).
func renderSnapshot(commands []CommandRecord, channelID string) string {
	var filtered []CommandRecord
	if channelID == "registry" {
		filtered = commands
	} else {
		for _, record := range commands {
			if record.CommandName == channelID {
				filtered = append(filtered, record)
			}
		}
	}

	if len(filtered) == 0 {
		return fmt.Sprintf("# Tau Custom Command Snapshot (%s)\n\n- No registered commands", channelID)
	}

	lines := []string{fmt.Sprintf("# Tau Custom Command Snapshot (%s)", channelID), ""}
	for _, record := range filtered {
		lines = append(lines, fmt.Sprintf(
			"- %s op=%s status=%d runs=%d template=%s",
			record.CommandName,
			strings.ToLower(record.Operation),
			record.LastStatusCode,
			record.RunCount,
			record.Template,
		))
	}
	return strings.Join(lines, "\n")
}
