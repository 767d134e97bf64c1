package notify

import (
	"context"
	"fmt"
	"html"

	xhttp "MarketFlow/pkg/http"
)

// Telegram sends HTML messages through the Bot API.
type Telegram struct {
	ch     *httpChannel
	token  string
	chatID string
}

func NewTelegram(baseURL, token, chatID string, o Options) *Telegram {
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &Telegram{ch: newHTTPChannel("telegram", baseURL, o), token: token, chatID: chatID}
}

func (t *Telegram) Name() string { return "telegram" }

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

// Send posts title in bold followed by body. Both are HTML-escaped.
func (t *Telegram) Send(ctx context.Context, title, body string) error {
	var resp sendMessageResponse
	err := t.ch.do(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    t.ch.baseURL + "/bot" + t.token + "/sendMessage",
		Body: sendMessageRequest{
			ChatID:                t.chatID,
			Text:                  "<b>" + html.EscapeString(title) + "</b>\n\n" + html.EscapeString(body),
			ParseMode:             "HTML",
			DisableWebPagePreview: true,
		},
	}, &resp)
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("telegram: %s", resp.Description)
	}
	return nil
}
