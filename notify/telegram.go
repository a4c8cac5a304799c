package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/trendspark/config"
	"github.com/teranos/trendspark/internal/httpclient"
)

// ChannelTelegram is the audit channel name for Telegram deliveries.
const ChannelTelegram = "telegram"

// TelegramSender delivers messages through the Telegram bot API and
// records each successful delivery to the notifications audit table.
type TelegramSender struct {
	client   *httpclient.SaferClient
	baseURL  string
	botToken string
	chatID   string
	store    *Store
	log      *zap.SugaredLogger
}

// NewTelegramSender creates a Telegram sender from configuration.
func NewTelegramSender(cfg config.TelegramConfig, store *Store, log *zap.SugaredLogger) *TelegramSender {
	return &TelegramSender{
		client:   httpclient.New(time.Duration(cfg.TimeoutSeconds) * time.Second),
		baseURL:  "https://api.telegram.org",
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		store:    store,
		log:      log,
	}
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// Send delivers one message. All failures are absorbed: they are logged
// and surfaced only as a false return.
func (t *TelegramSender) Send(ctx context.Context, message, category string, payload map[string]any) bool {
	body, err := json.Marshal(sendMessageRequest{ChatID: t.chatID, Text: message})
	if err != nil {
		t.log.Errorw("failed to marshal telegram request", "error", err)
		return false
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.log.Errorw("failed to build telegram request", "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		t.log.Warnw("telegram delivery failed", "category", category, "error", err)
		return false
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var parsed sendMessageResponse
	if err := json.Unmarshal(raw, &parsed); err != nil || !parsed.OK {
		t.log.Warnw("telegram rejected message",
			"category", category, "status", resp.StatusCode, "description", parsed.Description)
		return false
	}

	if t.store != nil {
		if err := t.store.Record(ChannelTelegram, category, message, payload); err != nil {
			// Audit failure does not undo a successful delivery.
			t.log.Warnw("failed to audit notification", "error", err)
		}
	}
	return true
}
