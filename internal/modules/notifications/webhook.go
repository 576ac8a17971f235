package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/aristath/watchtower/internal/domain"
)

// WebhookPayload is the JSON body posted to the webhook
type WebhookPayload struct {
	SentAt  time.Time       `json:"sent_at"`
	Text    string          `json:"text"`
	Notices []domain.Notice `json:"notices"`
}

// WebhookNotifier posts dispatched batches to an HTTP endpoint
type WebhookNotifier struct {
	client *resty.Client
	log    zerolog.Logger
	url    string
}

// NewWebhookNotifier creates a webhook notifier
func NewWebhookNotifier(url string, timeout time.Duration, log zerolog.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetHeader("Content-Type", "application/json")

	return &WebhookNotifier{
		client: client,
		url:    url,
		log:    log.With().Str("notifier", "webhook").Logger(),
	}
}

// Name returns the notifier name
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// Notify posts the batch
func (w *WebhookNotifier) Notify(ctx context.Context, notices []domain.Notice) error {
	if len(notices) == 0 {
		return nil
	}
	now := time.Now().UTC()
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(WebhookPayload{SentAt: now, Text: FormatDigest(domain.DateKey(now), notices), Notices: notices}).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	w.log.Debug().Int("notices", len(notices)).Int("status", resp.StatusCode()).Msg("Webhook delivered")
	return nil
}
