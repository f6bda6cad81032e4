package dispatch

import (
	"strings"
)

// buildRequestForChunk shapes one chunk into a transport-specific
// outboundRequest, resolving credentials from config (falling back to a
// fixed dry-run placeholder in ModeDryRun) and returning a non-retryable
// DeliveryError when a required credential is missing in any other mode.
func (d *Dispatcher) buildRequestForChunk(event Event, chunk string, chunkIndex, chunkCount int) (outboundRequest, *DeliveryError) {
	switch event.Transport {
	case Telegram:
		token, err := d.resolveCredential(d.config.TelegramBotToken, "dry-run-telegram-token",
			"delivery_missing_telegram_bot_token",
			"Telegram outbound requires TAU_TELEGRAM_BOT_TOKEN or credential-store integration id telegram-bot-token",
			chunkIndex, chunkCount)
		if err != nil {
			return outboundRequest{}, err
		}
		endpoint := strings.TrimRight(d.config.TelegramAPIBase, "/") + "/bot" + token + "/sendMessage"
		return outboundRequest{
			transport: Telegram,
			endpoint:  endpoint,
			body: map[string]any{
				"chat_id":                  strings.TrimSpace(event.ConversationID),
				"text":                     chunk,
				"disable_web_page_preview": true,
			},
			chunkIndex: chunkIndex,
			chunkCount: chunkCount,
		}, nil

	case Discord:
		token, err := d.resolveCredential(d.config.DiscordBotToken, "dry-run-discord-token",
			"delivery_missing_discord_bot_token",
			"Discord outbound requires TAU_DISCORD_BOT_TOKEN or credential-store integration id discord-bot-token",
			chunkIndex, chunkCount)
		if err != nil {
			return outboundRequest{}, err
		}
		endpoint := strings.TrimRight(d.config.DiscordAPIBase, "/") + "/channels/" + strings.TrimSpace(event.ConversationID) + "/messages"
		return outboundRequest{
			transport: Discord,
			endpoint:  endpoint,
			headers:   [][2]string{{"Authorization", "Bot " + token}},
			body:      map[string]any{"content": chunk},
			chunkIndex: chunkIndex,
			chunkCount: chunkCount,
		}, nil

	case WhatsApp:
		return d.buildWhatsAppRequest(event, chunk, chunkIndex, chunkCount)

	default:
		return outboundRequest{}, &DeliveryError{
			ReasonCode: "delivery_unsupported_transport",
			Detail:     "unsupported transport " + string(event.Transport),
			ChunkIndex: chunkIndex,
			ChunkCount: chunkCount,
		}
	}
}

func (d *Dispatcher) buildWhatsAppRequest(event Event, chunk string, chunkIndex, chunkCount int) (outboundRequest, *DeliveryError) {
	accessToken, err := d.resolveCredential(d.config.WhatsAppAccessToken, "dry-run-whatsapp-token",
		"delivery_missing_whatsapp_access_token",
		"WhatsApp outbound requires TAU_WHATSAPP_ACCESS_TOKEN or credential-store integration id whatsapp-access-token",
		chunkIndex, chunkCount)
	if err != nil {
		return outboundRequest{}, err
	}

	phoneNumberID := strings.TrimSpace(d.config.WhatsAppPhoneNumberID)
	if phoneNumberID == "" {
		phoneNumberID = strings.TrimSpace(event.Metadata["whatsapp_phone_number_id"])
	}
	if phoneNumberID == "" {
		if d.config.Mode == ModeDryRun {
			phoneNumberID = "dry-run-phone-number-id"
		} else {
			return outboundRequest{}, &DeliveryError{
				ReasonCode: "delivery_missing_whatsapp_phone_number_id",
				Detail:     "WhatsApp outbound requires TAU_WHATSAPP_PHONE_NUMBER_ID, credential-store integration id whatsapp-phone-number-id, or inbound metadata.whatsapp_phone_number_id",
				ChunkIndex: chunkIndex,
				ChunkCount: chunkCount,
			}
		}
	}

	recipient := strings.TrimSpace(event.ActorID)
	if idx := strings.LastIndex(recipient, ":"); idx >= 0 {
		recipient = recipient[idx+1:]
	}
	recipient = strings.TrimSpace(recipient)
	if recipient == "" && d.config.Mode != ModeDryRun {
		return outboundRequest{}, &DeliveryError{
			ReasonCode: "delivery_missing_whatsapp_recipient",
			Detail:     "WhatsApp outbound requires a non-empty actor_id",
			ChunkIndex: chunkIndex,
			ChunkCount: chunkCount,
		}
	}
	if recipient == "" {
		recipient = "dry-run-recipient"
	}

	endpoint := strings.TrimRight(d.config.WhatsAppAPIBase, "/") + "/" + phoneNumberID + "/messages"
	return outboundRequest{
		transport: WhatsApp,
		endpoint:  endpoint,
		headers:   [][2]string{{"Authorization", "Bearer " + accessToken}},
		body: map[string]any{
			"messaging_product": "whatsapp",
			"to":                recipient,
			"type":              "text",
			"text":              map[string]any{"body": chunk},
		},
		chunkIndex: chunkIndex,
		chunkCount: chunkCount,
	}, nil
}

func (d *Dispatcher) resolveCredential(configured, dryRunPlaceholder, missingReasonCode, missingDetail string, chunkIndex, chunkCount int) (string, *DeliveryError) {
	trimmed := strings.TrimSpace(configured)
	if trimmed != "" {
		return trimmed, nil
	}
	if d.config.Mode == ModeDryRun {
		return dryRunPlaceholder, nil
	}
	return "", &DeliveryError{
		ReasonCode: missingReasonCode,
		Detail:     missingDetail,
		ChunkIndex: chunkIndex,
		ChunkCount: chunkCount,
	}
}
