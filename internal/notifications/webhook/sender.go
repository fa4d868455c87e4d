package webhook

import (
	"context"

	"github.com/bissquit/alert-garden/internal/domain"
	"github.com/bissquit/alert-garden/internal/notifications"
)

// Sender delivers channel types without a dedicated sender by posting the raw job payload.
type Sender struct {
	client *Client
}

// NewSender creates the fallback webhook sender.
func NewSender(ratePerSecond float64) *Sender {
	return &Sender{client: NewClient("webhook", ratePerSecond)}
}

// Type returns the fallback channel type.
func (s *Sender) Type() domain.ChannelType {
	return notifications.FallbackChannelType
}

// Send posts the job payload as JSON.
func (s *Sender) Send(ctx context.Context, msg notifications.Message) error {
	return s.client.PostJSON(ctx, msg.WebhookURL, msg.Payload)
}
