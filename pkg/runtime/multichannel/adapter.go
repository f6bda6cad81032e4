package multichannel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/tau/pkg/channelstore"
	"github.com/cuemby/tau/pkg/dispatch"
	"github.com/cuemby/tau/pkg/runtime"
)

// adapter implements runtime.Adapter[Case, Domain].
type adapter struct {
	channelStoreRoot string
	dispatcher       *dispatch.Dispatcher
}

func newAdapter(channelStoreRoot string, dispatcher *dispatch.Dispatcher) *adapter {
	return &adapter{channelStoreRoot: channelStoreRoot, dispatcher: dispatcher}
}

func (a *adapter) CaseKey(c Case) string { return caseRuntimeKey(c) }

func (a *adapter) Less(x, y Case) bool {
	if x.ConversationID != y.ConversationID {
		return x.ConversationID < y.ConversationID
	}
	return x.CaseID < y.CaseID
}

func (a *adapter) Evaluate(c Case) runtime.ReplayResult { return Evaluate(c) }

func (a *adapter) Validate(c Case, result runtime.ReplayResult) error { return Validate(c, result) }

func (a *adapter) PersistSuccess(c Case, caseKey string, result runtime.ReplayResult, domain *Domain) (runtime.MutationCounts, error) {
	event := toDispatchEvent(c)
	deliveryResult, deliverErr := a.dispatcher.Deliver(context.Background(), event, c.ResponseText)
	timestampUnixMs := time.Now().UnixMilli()
	mutation := runtime.MutationCounts{}

	status := "delivered"
	chunkCount := 0
	if deliverErr != nil {
		status = "delivery_failed"
	} else {
		chunkCount = deliveryResult.ChunkCount
		switch a.dispatcher.Mode() {
		case dispatch.ModeDryRun:
			mutation["dry_run_deliveries"] = 1
		case dispatch.ModeProvider:
			mutation["deliveries_sent"] = 1
		}
	}

	domain.upsert(DeliveryRecord{
		CaseKey:        caseKey,
		Transport:      string(event.Transport),
		ConversationID: event.ConversationID,
		Status:         status,
		ChunkCount:     chunkCount,
		UpdatedUnixMs:  timestampUnixMs,
	})

	store, err := a.scopeChannelStore(c)
	if err != nil {
		return nil, err
	}
	logPayload := map[string]any{
		"outcome":     status,
		"case_id":     c.CaseID,
		"transport":   event.Transport,
		"chunk_count": chunkCount,
	}
	if deliverErr != nil {
		logPayload["reason_code"] = deliverErr.ReasonCode
		logPayload["detail"] = deliverErr.Detail
	}
	if err := store.AppendLogEntry(channelstore.LogEntry{
		TimestampUnixMs: timestampUnixMs,
		Direction:       "outbound",
		EventKey:        &caseKey,
		Source:          "tau-multi-channel-runner",
		Payload:         mustJSON(logPayload),
	}); err != nil {
		return nil, err
	}
	if err := store.AppendContextEntry(channelstore.ContextEntry{
		TimestampUnixMs: timestampUnixMs,
		Role:            "assistant",
		Text:            c.ResponseText,
	}); err != nil {
		return nil, err
	}

	if deliverErr != nil {
		return nil, fmt.Errorf("multi-channel delivery failed for case %q: %s", c.CaseID, deliverErr.Error())
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
	return store.AppendLogEntry(channelstore.LogEntry{
		TimestampUnixMs: timestampUnixMs,
		Direction:       "outbound",
		EventKey:        &caseKey,
		Source:          "tau-multi-channel-runner",
		Payload: mustJSON(map[string]any{
			"outcome":    outcome,
			"case_id":    c.CaseID,
			"error_code": result.ErrorCode,
		}),
	})
}

func (a *adapter) ReasonCodes(summary runtime.Summary) []string {
	var codes []string
	if summary.DomainCounters["deliveries_sent"] > 0 {
		codes = append(codes, "deliveries_sent")
	}
	if summary.DomainCounters["dry_run_deliveries"] > 0 {
		codes = append(codes, "dry_run_deliveries_recorded")
	}
	return codes
}

func (a *adapter) scopeChannelStore(c Case) (*channelstore.Store, error) {
	transport := strings.ToLower(strings.TrimSpace(c.Transport))
	return channelstore.Open(a.channelStoreRoot, transport, c.ConversationID)
}
