// Package slack delivers notifications to Slack incoming webhooks.
package slack

import (
	"context"
	"errors"
	"net/http"

	"github.com/bissquit/alert-garden/internal/domain"
	"github.com/bissquit/alert-garden/internal/notifications"
	"github.com/bissquit/alert-garden/internal/notifications/webhook"
	"github.com/slack-go/slack"
	"golang.org/x/time/rate"
)

const service = "slack"

// Sender implements Slack notification sender.
type Sender struct {
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSender creates a new Slack sender. ratePerSecond <= 0 disables pacing.
func NewSender(ratePerSecond float64) *Sender {
	return &Sender{
		httpClient: &http.Client{},
		limiter:    webhook.NewLimiter(ratePerSecond),
	}
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypeSlack
}

// Send posts the rendered text as a webhook message.
func (s *Sender) Send(ctx context.Context, msg notifications.Message) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return &webhook.RetryableError{Service: service, Message: "rate limiter: " + err.Error()}
	}

	err := slack.PostWebhookCustomHTTPContext(ctx, msg.WebhookURL, s.httpClient, &slack.WebhookMessage{
		Text: msg.Text,
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

// classify maps slack-go errors to retryable or permanent webhook errors.
func classify(err error) error {
	var status interface{ HTTPStatusCode() int }
	if errors.As(err, &status) {
		return webhook.StatusError(service, status.HTTPStatusCode(), err.Error())
	}

	var retryable interface{ Retryable() bool }
	if errors.As(err, &retryable) && !retryable.Retryable() {
		return &webhook.PermanentError{Service: service, Message: err.Error()}
	}
	return &webhook.RetryableError{Service: service, Message: err.Error()}
}
