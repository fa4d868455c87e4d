package notifications

// EventType identifies the incident transition a notification announces.
type EventType string

// Event types.
const (
	EventIncidentCreated EventType = "incident.created"
	EventIncidentUpdated EventType = "incident.updated"
)

// RenderedEvent is the channel-independent description of an incident transition.
type RenderedEvent struct {
	Type       EventType
	IncidentID string
	Title      string
	Status     string
	Severity   string
}

// Payload is stored with every job. It carries everything the worker needs
// to deliver the message without reading the channel again.
type Payload struct {
	WebhookURL string    `json:"webhookUrl"`
	Event      EventType `json:"event"`
	IncidentID string    `json:"incidentId"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	Severity   string    `json:"severity,omitempty"`
	Link       string    `json:"link,omitempty"`
}
