package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"perp-autotrader/internal/domain"
)

const (
	telegramBaseURL = "https://api.telegram.org"
	// Telegram rejects messages longer than this.
	telegramMaxText = 4096
)

// TelegramSender delivers notifications via the Telegram Bot API to every configured chat.
type TelegramSender struct {
	client  *resty.Client
	token   string
	chatIDs []string
}

func NewTelegramSender(token string, chatIDs []string) *TelegramSender {
	client := resty.New()
	client.SetBaseURL(telegramBaseURL)
	client.SetTimeout(10 * time.Second)
	client.SetHeader("Content-Type", "application/json")

	return &TelegramSender{client: client, token: token, chatIDs: chatIDs}
}

// WithBaseURL points the sender at another Bot API host.
func (t *TelegramSender) WithBaseURL(url string) *TelegramSender {
	t.client.SetBaseURL(strings.TrimRight(url, "/"))
	return t
}

func (t *TelegramSender) Name() string { return "telegram" }

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send posts n to each chat. Failures for one chat do not stop the others.
func (t *TelegramSender) Send(ctx context.Context, n domain.Notification) error {
	text := truncate(n.Text(), telegramMaxText)
	if text == "" {
		return nil
	}

	var errs []error
	for _, chatID := range t.chatIDs {
		if err := t.sendMessage(ctx, chatID, text); err != nil {
			errs = append(errs, fmt.Errorf("chat %s: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

func (t *TelegramSender) sendMessage(ctx context.Context, chatID, text string) error {
	var out telegramResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"chat_id":                  chatID,
			"text":                     text,
			"disable_web_page_preview": true,
		}).
		SetResult(&out).
		SetError(&out).
		Post("/bot" + t.token + "/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	if resp.IsError() || !out.OK {
		desc := out.Description
		if desc == "" {
			desc = truncate(resp.String(), 256)
		}
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode(), desc)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

var _ domain.Sender = (*TelegramSender)(nil)
