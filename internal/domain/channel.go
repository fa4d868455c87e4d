package domain

import "time"

type ChannelType string

const (
	ChannelTypeDiscord ChannelType = "discord"
	ChannelTypeSlack   ChannelType = "slack"
)

// NotificationChannel is a destination for incident notifications of one organization.
type NotificationChannel struct {
	ID         string      `json:"id"`
	OrgID      string      `json:"org_id"`
	Type       ChannelType `json:"type"`
	WebhookURL string      `json:"-"`
	Enabled    bool        `json:"enabled"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}
