// Package dispatch implements SSRF-guarded outbound delivery to the
// three supported transports (Telegram, Discord, WhatsApp): per-transport
// payload shaping, deterministic chunking, a manual redirect loop that
// re-validates every hop through pkg/ssrf, and response classification
// into retryable versus terminal reason codes.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cuemby/tau/pkg/metrics"
	"github.com/cuemby/tau/pkg/ssrf"
)

// Transport identifies one of the three supported outbound channels.
type Transport string

const (
	Telegram Transport = "telegram"
	Discord  Transport = "discord"
	WhatsApp Transport = "whatsapp"
)

const (
	telegramSafeMaxChars = 4096
	discordSafeMaxChars  = 2000
	whatsappSafeMaxChars = 1024

	truncateLimit = 512
)

// Mode selects how Dispatcher.Deliver behaves.
type Mode string

const (
	// ModeChannelStore performs no outbound delivery at all; callers that
	// only want channel-store persistence use this mode.
	ModeChannelStore Mode = "channel_store"
	// ModeDryRun builds requests and records placeholder receipts
	// without performing any network I/O.
	ModeDryRun Mode = "dry_run"
	// ModeProvider performs real HTTP delivery against the transport's API.
	ModeProvider Mode = "provider"
)

// Event is the minimal inbound-event shape the dispatcher needs to build
// an outbound reply.
type Event struct {
	Transport      Transport
	ConversationID string
	ActorID        string
	Metadata       map[string]string
}

// Config parameterizes one Dispatcher instance.
type Config struct {
	Mode                   Mode
	MaxChars               int
	HTTPTimeout            time.Duration
	SSRFProtectionEnabled  bool
	SSRFAllowHTTP          bool
	SSRFAllowPrivateNet    bool
	MaxRedirects           int
	TelegramAPIBase        string
	DiscordAPIBase         string
	WhatsAppAPIBase        string
	TelegramBotToken       string
	DiscordBotToken        string
	WhatsAppAccessToken    string
	WhatsAppPhoneNumberID  string
}

// DefaultConfig mirrors the original's per-field defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                  ModeChannelStore,
		MaxChars:              1200,
		HTTPTimeout:           5 * time.Second,
		SSRFProtectionEnabled: true,
		MaxRedirects:          5,
		TelegramAPIBase:       "https://api.telegram.org",
		DiscordAPIBase:        "https://discord.com/api/v10",
		WhatsAppAPIBase:       "https://graph.facebook.com/v20.0",
	}
}

// Receipt records the outcome of delivering one chunk.
type Receipt struct {
	Transport         Transport       `json:"transport"`
	Mode              Mode            `json:"mode"`
	Status            string          `json:"status"`
	ChunkIndex        int             `json:"chunk_index"`
	ChunkCount        int             `json:"chunk_count"`
	Endpoint          string          `json:"endpoint"`
	RequestBody       json.RawMessage `json:"request_body"`
	ReasonCode        string          `json:"reason_code,omitempty"`
	Detail            string          `json:"detail,omitempty"`
	Retryable         bool            `json:"retryable"`
	HTTPStatus        int             `json:"http_status,omitempty"`
	ProviderMessageID string          `json:"provider_message_id,omitempty"`
}

// Result is the outcome of one Deliver call across every chunk.
type Result struct {
	Mode       Mode      `json:"mode"`
	ChunkCount int       `json:"chunk_count"`
	Receipts   []Receipt `json:"receipts"`
}

// DeliveryError is a terminal or retryable delivery failure.
type DeliveryError struct {
	ReasonCode  string
	Detail      string
	Retryable   bool
	ChunkIndex  int
	ChunkCount  int
	Endpoint    string
	RequestBody string
	HTTPStatus  int
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("reason_code=%s retryable=%t chunk=%d/%d endpoint=%s detail=%s",
		e.ReasonCode, e.Retryable, e.ChunkIndex, e.ChunkCount, e.Endpoint, e.Detail)
}

type outboundRequest struct {
	transport  Transport
	endpoint   string
	headers    [][2]string
	body       map[string]any
	chunkIndex int
	chunkCount int
}

// Dispatcher delivers chunked outbound replies to one of the three
// supported transports.
type Dispatcher struct {
	config Config
	client *http.Client
	guard  *ssrf.Guard
}

// New validates config and constructs a Dispatcher. In ModeProvider it
// builds an http.Client with redirects disabled, so every hop can be
// re-validated by the SSRF guard before being followed.
func New(config Config) (*Dispatcher, error) {
	if config.MaxChars <= 0 {
		return nil, fmt.Errorf("multi-channel outbound max chars must be greater than 0")
	}
	if config.Mode == ModeProvider && config.HTTPTimeout <= 0 {
		return nil, fmt.Errorf("multi-channel outbound provider mode requires http timeout > 0")
	}

	guard := ssrf.New(ssrf.Config{
		Enabled:             config.SSRFProtectionEnabled,
		AllowHTTP:           config.SSRFAllowHTTP,
		AllowPrivateNetwork: config.SSRFAllowPrivateNet,
	})

	var client *http.Client
	if config.Mode == ModeProvider {
		client = &http.Client{
			Timeout: config.HTTPTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}

	return &Dispatcher{config: config, client: client, guard: guard}, nil
}

// Mode returns the dispatcher's operating mode.
func (d *Dispatcher) Mode() Mode { return d.config.Mode }

// Deliver chunks responseText and delivers it per d.config.Mode.
func (d *Dispatcher) Deliver(ctx context.Context, event Event, responseText string) (Result, *DeliveryError) {
	if d.config.Mode == ModeChannelStore {
		return Result{Mode: d.config.Mode, ChunkCount: 0, Receipts: nil}, nil
	}

	requests, err := d.buildRequests(event, responseText)
	if err != nil {
		return Result{}, err
	}
	if len(requests) == 0 {
		return Result{Mode: d.config.Mode, ChunkCount: 0, Receipts: nil}, nil
	}

	receipts := make([]Receipt, 0, len(requests))
	for _, request := range requests {
		switch d.config.Mode {
		case ModeDryRun:
			receipts = append(receipts, Receipt{
				Transport:   request.transport,
				Mode:        d.config.Mode,
				Status:      "dry_run",
				ChunkIndex:  request.chunkIndex,
				ChunkCount:  request.chunkCount,
				Endpoint:    request.endpoint,
				RequestBody: mustMarshal(request.body),
			})
			metrics.DispatchRequestsTotal.WithLabelValues(string(request.transport), "dry_run").Inc()
		case ModeProvider:
			receipt, sendErr := d.sendRequest(ctx, request)
			if sendErr != nil {
				metrics.DispatchRequestsTotal.WithLabelValues(string(request.transport), "error").Inc()
				return Result{}, sendErr
			}
			receipts = append(receipts, receipt)
			metrics.DispatchRequestsTotal.WithLabelValues(string(request.transport), receipt.Status).Inc()
		}
	}

	return Result{Mode: d.config.Mode, ChunkCount: len(receipts), Receipts: receipts}, nil
}

func (d *Dispatcher) safeMaxChars(transport Transport) int {
	switch transport {
	case Telegram:
		return telegramSafeMaxChars
	case Discord:
		return discordSafeMaxChars
	case WhatsApp:
		return whatsappSafeMaxChars
	default:
		return d.config.MaxChars
	}
}

func (d *Dispatcher) buildRequests(event Event, responseText string) ([]outboundRequest, *DeliveryError) {
	trimmed := strings.TrimSpace(responseText)
	if trimmed == "" {
		return nil, nil
	}

	chunkMax := min(d.config.MaxChars, d.safeMaxChars(event.Transport))
	if chunkMax < 1 {
		chunkMax = 1
	}
	chunks := chunkText(trimmed, chunkMax)
	if len(chunks) == 0 {
		return nil, nil
	}

	requests := make([]outboundRequest, 0, len(chunks))
	for index, chunk := range chunks {
		request, err := d.buildRequestForChunk(event, chunk, index+1, len(chunks))
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	return requests, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func chunkText(text string, maxChars int) []string {
	if text == "" || maxChars <= 0 {
		return nil
	}
	var chunks []string
	var current []rune
	for _, r := range text {
		current = append(current, r)
		if len(current) >= maxChars {
			chunks = append(chunks, string(current))
			current = nil
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, string(current))
	}
	return chunks
}

func mustMarshal(value any) json.RawMessage {
	data, err := json.Marshal(value)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

func truncateDetail(raw string) string {
	trimmed := strings.TrimSpace(raw)
	runes := []rune(trimmed)
	if len(runes) <= truncateLimit {
		return trimmed
	}
	return string(runes[:truncateLimit]) + "..."
}

func compactRequestBody(body map[string]any) string {
	data, err := json.Marshal(body)
	if err != nil {
		return "{}"
	}
	runes := []rune(string(data))
	if len(runes) <= truncateLimit {
		return string(data)
	}
	return string(runes[:truncateLimit]) + "..."
}

func classifyProviderStatus(statusCode int) (reasonCode string, retryable bool) {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return "delivery_rate_limited", true
	case statusCode >= 500:
		return "delivery_provider_unavailable", true
	case statusCode >= 400:
		return "delivery_request_rejected", false
	default:
		return "delivery_unknown_http_failure", true
	}
}

func extractProviderMessageID(transport Transport, payload map[string]any) string {
	switch transport {
	case Telegram:
		if result, ok := payload["result"].(map[string]any); ok {
			if id, ok := result["message_id"].(float64); ok {
				return fmt.Sprintf("%d", int64(id))
			}
		}
	case Discord:
		if id, ok := payload["id"].(string); ok {
			return id
		}
	case WhatsApp:
		if messages, ok := payload["messages"].([]any); ok && len(messages) > 0 {
			if first, ok := messages[0].(map[string]any); ok {
				if id, ok := first["id"].(string); ok {
					return id
				}
			}
		}
	}
	return ""
}

func (d *Dispatcher) sendRequest(ctx context.Context, request outboundRequest) (Receipt, *DeliveryError) {
	if d.client == nil {
		return Receipt{}, &DeliveryError{
			ReasonCode:  "delivery_provider_client_unavailable",
			Detail:      "provider mode requested without initialized HTTP client",
			Retryable:   false,
			ChunkIndex:  request.chunkIndex,
			ChunkCount:  request.chunkCount,
			Endpoint:    request.endpoint,
			RequestBody: compactRequestBody(request.body),
		}
	}

	endpoint, err := d.guard.ParseAndValidate(ctx, request.endpoint)
	if err != nil {
		return Receipt{}, d.mapSSRFViolation(request, request.endpoint, err)
	}

	redirectCount := 0
	for {
		bodyBytes, marshalErr := json.Marshal(request.body)
		if marshalErr != nil {
			return Receipt{}, &DeliveryError{
				ReasonCode: "delivery_request_serialization_failed",
				Detail:     marshalErr.Error(),
				ChunkIndex: request.chunkIndex,
				ChunkCount: request.chunkCount,
				Endpoint:   endpoint.String(),
			}
		}

		httpRequest, newErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(bodyBytes))
		if newErr != nil {
			return Receipt{}, &DeliveryError{
				ReasonCode: "delivery_transport_error",
				Detail:     newErr.Error(),
				Retryable:  true,
				ChunkIndex: request.chunkIndex,
				ChunkCount: request.chunkCount,
				Endpoint:   endpoint.String(),
			}
		}
		httpRequest.Header.Set("Content-Type", "application/json")
		for _, header := range request.headers {
			httpRequest.Header.Set(header[0], header[1])
		}

		response, sendErr := d.client.Do(httpRequest)
		if sendErr != nil {
			return Receipt{}, &DeliveryError{
				ReasonCode:  "delivery_transport_error",
				Detail:      sendErr.Error(),
				Retryable:   true,
				ChunkIndex:  request.chunkIndex,
				ChunkCount:  request.chunkCount,
				Endpoint:    endpoint.String(),
				RequestBody: compactRequestBody(request.body),
			}
		}

		if response.StatusCode >= 300 && response.StatusCode < 400 {
			response.Body.Close()
			if redirectCount >= d.config.MaxRedirects {
				return Receipt{}, &DeliveryError{
					ReasonCode: "delivery_redirect_limit_exceeded",
					Detail: fmt.Sprintf(
						"redirect count exceeded configured max_redirects=%d for endpoint '%s'",
						d.config.MaxRedirects, endpoint),
					ChunkIndex:  request.chunkIndex,
					ChunkCount:  request.chunkCount,
					Endpoint:    endpoint.String(),
					RequestBody: compactRequestBody(request.body),
					HTTPStatus:  response.StatusCode,
				}
			}
			location := response.Header.Get("Location")
			if location == "" {
				return Receipt{}, &DeliveryError{
					ReasonCode: "delivery_redirect_missing_location",
					Detail: fmt.Sprintf(
						"provider returned redirect status %d without Location header", response.StatusCode),
					ChunkIndex:  request.chunkIndex,
					ChunkCount:  request.chunkCount,
					Endpoint:    endpoint.String(),
					RequestBody: compactRequestBody(request.body),
					HTTPStatus:  response.StatusCode,
				}
			}
			nextURL, parseErr := endpoint.Parse(location)
			if parseErr != nil {
				return Receipt{}, &DeliveryError{
					ReasonCode: "delivery_redirect_invalid_location",
					Detail: fmt.Sprintf(
						"provider redirect location '%s' could not be resolved against '%s': %v",
						location, endpoint, parseErr),
					ChunkIndex:  request.chunkIndex,
					ChunkCount:  request.chunkCount,
					Endpoint:    endpoint.String(),
					RequestBody: compactRequestBody(request.body),
					HTTPStatus:  response.StatusCode,
				}
			}
			if validateErr := d.guard.Validate(ctx, nextURL); validateErr != nil {
				return Receipt{}, d.mapSSRFViolation(request, nextURL.String(), validateErr)
			}
			endpoint = nextURL
			redirectCount++
			continue
		}

		defer response.Body.Close()
		bodyRaw, _ := io.ReadAll(response.Body)
		var bodyJSON map[string]any
		_ = json.Unmarshal(bodyRaw, &bodyJSON)

		if response.StatusCode >= 200 && response.StatusCode < 300 {
			return Receipt{
				Transport:         request.transport,
				Mode:              d.config.Mode,
				Status:            "sent",
				ChunkIndex:        request.chunkIndex,
				ChunkCount:        request.chunkCount,
				Endpoint:          endpoint.String(),
				RequestBody:       mustMarshal(request.body),
				Retryable:         false,
				HTTPStatus:        response.StatusCode,
				ProviderMessageID: extractProviderMessageID(request.transport, bodyJSON),
			}, nil
		}

		reasonCode, retryable := classifyProviderStatus(response.StatusCode)
		return Receipt{}, &DeliveryError{
			ReasonCode:  reasonCode,
			Detail:      truncateDetail(string(bodyRaw)),
			Retryable:   retryable,
			ChunkIndex:  request.chunkIndex,
			ChunkCount:  request.chunkCount,
			Endpoint:    endpoint.String(),
			RequestBody: compactRequestBody(request.body),
			HTTPStatus:  response.StatusCode,
		}
	}
}

func (d *Dispatcher) mapSSRFViolation(request outboundRequest, endpoint string, violation error) *DeliveryError {
	reasonCode := ""
	detail := violation.Error()
	if v, ok := violation.(*ssrf.Violation); ok {
		reasonCode = v.ReasonCode
		detail = v.Detail
	}
	return &DeliveryError{
		ReasonCode:  reasonCode,
		Detail:      detail,
		Retryable:   reasonCode == ssrf.ReasonDNSResolutionFailed,
		ChunkIndex:  request.chunkIndex,
		ChunkCount:  request.chunkCount,
		Endpoint:    endpoint,
		RequestBody: compactRequestBody(request.body),
	}
}
