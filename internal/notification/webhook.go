package notification

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"trading-simulator/internal/logger"
)

// WebhookNotifier POSTs each alert as a JSON document to a fixed URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
	now    func() time.Time
	log    *slog.Logger
}

type webhookPayload struct {
	Alert
	TS string `json:"ts"`
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: httpTimeout},
		now:    time.Now,
		log:    logger.Component("webhook"),
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	payload := webhookPayload{Alert: alert, TS: w.now().UTC().Format(time.RFC3339Nano)}
	if _, err := postJSON(ctx, w.client, "webhook", w.url, payload); err != nil {
		return err
	}
	w.log.Debug("sent alert", slog.String("url", w.url), slog.String("title", alert.Title))
	return nil
}
