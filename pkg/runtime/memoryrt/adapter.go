package memoryrt

import (
	"strconv"
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
	return strings.ToLower(x.Mode) < strings.ToLower(y.Mode)
}

func (a *adapter) Evaluate(c Case) runtime.ReplayResult { return Evaluate(c) }

func (a *adapter) Validate(c Case, result runtime.ReplayResult) error { return Validate(c, result) }

func (a *adapter) PersistSuccess(c Case, caseKey string, result runtime.ReplayResult, domain *Domain) (runtime.MutationCounts, error) {
	entries := entriesOf(result)
	for _, entry := range entries {
		domain.upsert(entry)
	}
	domain.sort()

	mutation := runtime.MutationCounts{}
	if len(entries) > 0 {
		mutation["upserted_entries"] = len(entries)
	}

	store, err := a.scopeChannelStore(c)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return mutation, nil
	}

	timestampUnixMs := time.Now().UnixMilli()
	if err := store.AppendLogEntry(channelstore.LogEntry{
		TimestampUnixMs: timestampUnixMs,
		Direction:       "system",
		EventKey:        &caseKey,
		Source:          "tau-memory-runner",
		Payload: mustJSON(map[string]any{
			"outcome":          "success",
			"mode":             c.Mode,
			"case_id":          c.CaseID,
			"upserted_entries": len(entries),
		}),
	}); err != nil {
		return nil, err
	}
	if err := store.AppendContextEntry(channelstore.ContextEntry{
		TimestampUnixMs: timestampUnixMs,
		Role:            "system",
		Text:            memoryApplyText(c.CaseID, len(entries)),
	}); err != nil {
		return nil, err
	}
	rendered := renderWorkspaceSnapshot(domain.Entries, c.Scope.WorkspaceID)
	return mutation, store.WriteMemory(rendered)
}

func (a *adapter) PersistNonSuccess(c Case, caseKey string, result runtime.ReplayResult, domain *Domain) error {
	store, err := a.scopeChannelStore(c)
	if err != nil {
		return err
	}
	if store == nil {
		return nil
	}
	timestampUnixMs := time.Now().UnixMilli()
	outcome := result.Step.String()
	if err := store.AppendLogEntry(channelstore.LogEntry{
		TimestampUnixMs: timestampUnixMs,
		Direction:       "system",
		EventKey:        &caseKey,
		Source:          "tau-memory-runner",
		Payload: mustJSON(map[string]any{
			"outcome":    outcome,
			"mode":       c.Mode,
			"case_id":    c.CaseID,
			"error_code": result.ErrorCode,
		}),
	}); err != nil {
		return err
	}
	return store.AppendContextEntry(channelstore.ContextEntry{
		TimestampUnixMs: timestampUnixMs,
		Role:            "system",
		Text:            memoryOutcomeText(c.CaseID, outcome, result.ErrorCode),
	})
}

func (a *adapter) ReasonCodes(summary runtime.Summary) []string {
	if summary.DomainCounters["upserted_entries"] > 0 {
		return []string{"memory_entries_upserted"}
	}
	return nil
}

// scopeChannelStore mirrors the original's rule: no channel_id means
// no channel-store side effects for this case.
func (a *adapter) scopeChannelStore(c Case) (*channelstore.Store, error) {
	channelID := strings.TrimSpace(c.Scope.ChannelID)
	if channelID == "" {
		return nil, nil
	}
	return channelstore.Open(a.channelStoreRoot, "memory", channelID)
}

func memoryApplyText(caseID string, upserted int) string {
	return "memory case " + caseID + " applied with " + strconv.Itoa(upserted) + " upserted entries"
}

func memoryOutcomeText(caseID, outcome, errorCode string) string {
	return "memory case " + caseID + " outcome=" + outcome + " error_code=" + errorCode
}
