package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"trading-simulator/internal/logger"
)

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier posts alerts to a chat through the Bot API. Info alerts
// are delivered silently.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	log      *slog.Logger
}

type telegramMessage struct {
	ChatID              string `json:"chat_id"`
	Text                string `json:"text"`
	ParseMode           string `json:"parse_mode"`
	DisableNotification bool   `json:"disable_notification,omitempty"`
}

type telegramReply struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NewTelegramNotifier creates a notifier for the bot token and target chat id.
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  telegramAPI,
		client:   &http.Client{Timeout: httpTimeout},
		log:      logger.Component("telegram"),
	}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	msg := telegramMessage{
		ChatID:              t.chatID,
		Text:                telegramText(alert),
		ParseMode:           "MarkdownV2",
		DisableNotification: alert.Level == AlertInfo,
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	data, err := postJSON(ctx, t.client, "telegram", url, msg)
	if err != nil {
		return err
	}

	// The Bot API can answer 200 with ok=false.
	var reply telegramReply
	if json.Unmarshal(data, &reply) == nil && !reply.OK && reply.Description != "" {
		return fmt.Errorf("telegram: %s", reply.Description)
	}
	t.log.Debug("sent alert", slog.String("title", alert.Title), slog.Uint64("seq", alert.Seq))
	return nil
}

func telegramText(a Alert) string {
	icon := "ℹ️"
	switch a.Level {
	case AlertWarning:
		icon = "⚠️"
	case AlertCritical:
		icon = "🚨"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s*\n\n%s", icon, escapeMarkdown(a.Title), escapeMarkdown(a.Message))
	if a.Event != "" {
		fmt.Fprintf(&b, "\n_%s \\#%d_", escapeMarkdown(string(a.Event)), a.Seq)
	}
	return b.String()
}

var markdownEscaper = func() *strings.Replacer {
	var pairs []string
	for _, c := range `_*[]()~` + "`" + `>#+-=|{}.!` {
		pairs = append(pairs, string(c), `\`+string(c))
	}
	return strings.NewReplacer(pairs...)
}()

// escapeMarkdown escapes the MarkdownV2 reserved characters.
func escapeMarkdown(s string) string { return markdownEscaper.Replace(s) }
