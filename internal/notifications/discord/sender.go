// Package discord delivers notifications to Discord incoming webhooks.
package discord

import (
	"context"

	"github.com/bissquit/alert-garden/internal/domain"
	"github.com/bissquit/alert-garden/internal/notifications"
	"github.com/bissquit/alert-garden/internal/notifications/webhook"
)

// Discord rejects content longer than this.
const maxContentLength = 2000

// Sender implements Discord notification sender.
type Sender struct {
	client *webhook.Client
}

// NewSender creates a new Discord sender. ratePerSecond <= 0 disables pacing.
func NewSender(ratePerSecond float64) *Sender {
	return &Sender{client: webhook.NewClient("discord", ratePerSecond)}
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypeDiscord
}

// Send posts the rendered text as message content.
func (s *Sender) Send(ctx context.Context, msg notifications.Message) error {
	return s.client.PostJSON(ctx, msg.WebhookURL, webhookPayload{Content: truncate(msg.Text, maxContentLength)})
}

type webhookPayload struct {
	Content string `json:"content"`
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
