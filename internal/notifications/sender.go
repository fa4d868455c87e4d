package notifications

import (
	"context"

	"github.com/bissquit/alert-garden/internal/domain"
)

// FallbackChannelType is the Type of a sender that handles channel types without a dedicated sender.
const FallbackChannelType domain.ChannelType = "*"

// Message is a rendered notification ready for delivery.
type Message struct {
	WebhookURL string
	Text       string
	Payload    Payload
}

// Sender delivers messages of one channel type.
type Sender interface {
	Type() domain.ChannelType
	Send(ctx context.Context, msg Message) error
}
