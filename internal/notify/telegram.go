package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
)

// DefaultTelegramAPI is the Bot API base URL
const DefaultTelegramAPI = "https://api.telegram.org"

// TelegramNotifier posts notifications to a Telegram chat
type TelegramNotifier struct {
	baseURL  string
	botToken string
	chatID   string
	client   *http.Client
	log      zerolog.Logger
}

// NewTelegramNotifier creates a Telegram sink. baseURL may be empty for the public API.
func NewTelegramNotifier(baseURL, botToken, chatID string, log zerolog.Logger) *TelegramNotifier {
	if baseURL == "" {
		baseURL = DefaultTelegramAPI
	}
	return &TelegramNotifier{
		baseURL:  strings.TrimRight(baseURL, "/"),
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log.With().Str("component", "telegram").Logger(),
	}
}

// Enabled reports whether credentials are configured
func (n *TelegramNotifier) Enabled() bool {
	return n.botToken != "" && n.chatID != ""
}

// Notify formats and sends the notification, logging delivery failures
func (n *TelegramNotifier) Notify(ctx context.Context, ev *domain.Event, kind domain.NotificationKind, extra map[string]interface{}) {
	if err := n.Send(ctx, FormatMessage(ev, kind, extra)); err != nil {
		n.log.Warn().Err(err).Str("kind", string(kind)).Msg("Failed to deliver Telegram notification")
	}
}

// Send posts one text message
func (n *TelegramNotifier) Send(ctx context.Context, text string) error {
	if !n.Enabled() || text == "" {
		return nil
	}

	raw, err := json.Marshal(map[string]string{
		"chat_id": n.chatID,
		"text":    text,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
