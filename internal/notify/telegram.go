// internal/notify/telegram.go - Telegram Bot API client
package notify

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "time"

    "github.com/goodmeow/tg-monitoring/internal/config"
)

// Telegram sends HTML-formatted messages through the Bot API.
type Telegram struct {
    cfg    config.TelegramConfig
    client *http.Client
}

func NewTelegram(cfg config.TelegramConfig) *Telegram {
    return &Telegram{
        cfg:    cfg,
        client: &http.Client{Timeout: 15 * time.Second},
    }
}

// WithClient swaps the HTTP client, used by tests to stub transport.
func (t *Telegram) WithClient(c *http.Client) *Telegram {
    t.client = c
    return t
}

type sendMessageRequest struct {
    ChatID                string `json:"chat_id"`
    Text                  string `json:"text"`
    ParseMode             string `json:"parse_mode"`
    DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type sendMessageResponse struct {
    OK          bool   `json:"ok"`
    Description string `json:"description"`
}

// Send posts one message to the configured chat.
func (t *Telegram) Send(ctx context.Context, text string) error {
    return t.SendTo(ctx, t.cfg.ChatID, text)
}

// SendTo posts one message to an explicit chat, used for per-chat digests.
func (t *Telegram) SendTo(ctx context.Context, chatID, text string) error {
    payload, err := json.Marshal(sendMessageRequest{
        ChatID:                chatID,
        Text:                  text,
        ParseMode:             "HTML",
        DisableWebPagePreview: true,
    })
    if err != nil {
        return fmt.Errorf("failed to marshal message: %w", err)
    }

    url := fmt.Sprintf("%s/bot%s/sendMessage", t.cfg.APIBase, t.cfg.Token)
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
    if err != nil {
        return fmt.Errorf("failed to build telegram request: %w", err)
    }
    req.Header.Set("Content-Type", "application/json")

    resp, err := t.client.Do(req)
    if err != nil {
        return fmt.Errorf("failed to reach telegram: %w", err)
    }
    defer resp.Body.Close()

    var result sendMessageResponse
    if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
        return fmt.Errorf("failed to decode telegram response: %w", err)
    }
    if !result.OK {
        return fmt.Errorf("telegram rejected message: %s", result.Description)
    }
    return nil
}
