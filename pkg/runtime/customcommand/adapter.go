package customcommand

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/tau/pkg/channelstore"
	"github.com/cuemby/tau/pkg/runtime"
)

// adapter implements runtime.Adapter[Case, Domain].
type adapter struct {
	channelStoreRoot string
}

func newAdapter(channelStoreRoot string) *adapter {
	return &adapter{channelStoreRoot: channelStoreRoot}
}

func (a *adapter) CaseKey(c Case) string { return caseRuntimeKey(c) }

func (a *adapter) Less(x, y Case) bool {
	if x.CaseID != y.CaseID {
		return x.CaseID < y.CaseID
	}
	if x.Operation != y.Operation {
		return x.Operation < y.Operation
	}
	return x.CommandName < y.CommandName
}

func (a *adapter) Evaluate(c Case) runtime.ReplayResult { return Evaluate(c) }

func (a *adapter) Validate(c Case, result runtime.ReplayResult) error { return Validate(c, result) }

func (a *adapter) PersistSuccess(c Case, caseKey string, result runtime.ReplayResult, domain *Domain) (runtime.MutationCounts, error) {
	operation := normalizeOperation(c.Operation)
	commandName := strings.TrimSpace(c.CommandName)
	timestampUnixMs := time.Now().UnixMilli()
	statusCode := statusCodeOf(result)
	mutation := runtime.MutationCounts{}

	switch operation {
	case "CREATE", "UPDATE":
		runCount := uint64(0)
		if idx := domain.findIndex(commandName); idx >= 0 {
			runCount = domain.Commands[idx].RunCount
		}
		record := CommandRecord{
			CaseKey:        caseKey,
			CaseID:         c.CaseID,
			CommandName:    commandName,
			Template:       strings.TrimSpace(c.Template),
			Operation:      operation,
			LastStatusCode: statusCode,
			LastOutcome:    "success",
			RunCount:       runCount,
			UpdatedUnixMs:  timestampUnixMs,
		}
		if idx := domain.findIndex(commandName); idx >= 0 {
			domain.Commands[idx] = record
		} else {
			domain.Commands = append(domain.Commands, record)
		}
		mutation["upserted_commands"] = 1

	case "DELETE":
		before := len(domain.Commands)
		kept := domain.Commands[:0]
		for _, record := range domain.Commands {
			if record.CommandName != commandName {
				kept = append(kept, record)
			}
		}
		domain.Commands = kept
		mutation["deleted_commands"] = before - len(domain.Commands)

	case "RUN":
		if idx := domain.findIndex(commandName); idx >= 0 {
			domain.Commands[idx].CaseKey = caseKey
			domain.Commands[idx].CaseID = c.CaseID
			domain.Commands[idx].Operation = operation
			domain.Commands[idx].LastStatusCode = statusCode
			domain.Commands[idx].LastOutcome = "success"
			domain.Commands[idx].RunCount++
			domain.Commands[idx].UpdatedUnixMs = timestampUnixMs
		} else {
			domain.Commands = append(domain.Commands, CommandRecord{
				CaseKey:        caseKey,
				CaseID:         c.CaseID,
				CommandName:    commandName,
				Operation:      operation,
				LastStatusCode: statusCode,
				LastOutcome:    "success",
				RunCount:       1,
				UpdatedUnixMs:  timestampUnixMs,
			})
			mutation["upserted_commands"] = 1
		}
		mutation["executed_runs"] = 1

	case "LIST":
		// no domain mutation

	default:
		return nil, fmt.Errorf("unsupported custom-command operation %q for case %q", operation, c.CaseID)
	}

	domain.sortCommands()

	store, err := a.scopeChannelStore(c)
	if err != nil {
		return nil, err
	}
	channelID := channelIDForCase(c)
	if err := store.AppendLogEntry(channelstore.LogEntry{
		TimestampUnixMs: timestampUnixMs,
		Direction:       "system",
		EventKey:        &caseKey,
		Source:          "tau-custom-command-runner",
		Payload: mustJSON(map[string]any{
			"outcome":            "success",
			"operation":          strings.ToLower(operation),
			"case_id":            c.CaseID,
			"command_name":       commandName,
			"status_code":        statusCode,
			"upserted_commands":  mutation["upserted_commands"],
			"deleted_commands":   mutation["deleted_commands"],
			"executed_runs":      mutation["executed_runs"],
		}),
	}); err != nil {
		return nil, err
	}
	if err := store.AppendContextEntry(channelstore.ContextEntry{
		TimestampUnixMs: timestampUnixMs,
		Role:            "system",
		Text: fmt.Sprintf(
			"custom-command case %s applied operation=%s command=%s status=%d",
			c.CaseID, strings.ToLower(operation), channelID, statusCode,
		),
	}); err != nil {
		return nil, err
	}
	if err := store.WriteMemory(renderSnapshot(domain.Commands, channelID)); err != nil {
		return nil, err
	}

	return mutation, nil
}

func (a *adapter) PersistNonSuccess(c Case, caseKey string, result runtime.ReplayResult, domain *Domain) error {
	store, err := a.scopeChannelStore(c)
	if err != nil {
		return err
	}
	timestampUnixMs := time.Now().UnixMilli()
	outcome := result.Step.String()

	if err := store.AppendLogEntry(channelstore.LogEntry{
		TimestampUnixMs: timestampUnixMs,
		Direction:       "system",
		EventKey:        &caseKey,
		Source:          "tau-custom-command-runner",
		Payload: mustJSON(map[string]any{
			"outcome":      outcome,
			"case_id":      c.CaseID,
			"operation":    strings.ToLower(normalizeOperation(c.Operation)),
			"command_name": strings.TrimSpace(c.CommandName),
			"status_code":  statusCodeOf(result),
			"error_code":   result.ErrorCode,
		}),
	}); err != nil {
		return err
	}
	return store.AppendContextEntry(channelstore.ContextEntry{
		TimestampUnixMs: timestampUnixMs,
		Role:            "system",
		Text: fmt.Sprintf(
			"custom-command case %s outcome=%s error_code=%s status=%d",
			c.CaseID, outcome, result.ErrorCode, statusCodeOf(result),
		),
	})
}

func (a *adapter) ReasonCodes(summary runtime.Summary) []string {
	var codes []string
	if summary.DomainCounters["upserted_commands"] > 0 || summary.DomainCounters["deleted_commands"] > 0 {
		codes = append(codes, "command_registry_mutated")
	}
	if summary.DomainCounters["executed_runs"] > 0 {
		codes = append(codes, "command_runs_recorded")
	}
	return codes
}

func (a *adapter) scopeChannelStore(c Case) (*channelstore.Store, error) {
	return channelstore.Open(a.channelStoreRoot, "custom-command", channelIDForCase(c))
}

func mustJSON(value any) json.RawMessage {
	data, err := json.Marshal(value)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}
