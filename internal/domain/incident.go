package domain

import "time"

type IncidentStatus string

const (
	IncidentStatusOpen          IncidentStatus = "open"
	IncidentStatusInvestigating IncidentStatus = "investigating"
	IncidentStatusResolved      IncidentStatus = "resolved"
)

// IsValid checks if the status is one of the known incident statuses.
func (s IncidentStatus) IsValid() bool {
	return s == IncidentStatusOpen || s == IncidentStatusInvestigating || s == IncidentStatusResolved
}

// IsActive reports whether an incident in this status still blocks a new one for the same fingerprint.
func (s IncidentStatus) IsActive() bool {
	return s == IncidentStatusOpen || s == IncidentStatusInvestigating
}

// CanTransitionTo reports whether moving from s to next is a real transition.
// Any valid status may follow any other, including reopening a resolved incident.
func (s IncidentStatus) CanTransitionTo(next IncidentStatus) bool {
	return next.IsValid() && next != s
}

type IncidentSource string

const (
	IncidentSourceManual IncidentSource = "manual"
	IncidentSourceAlert  IncidentSource = "alert"
)

type Incident struct {
	ID            string         `json:"id"`
	OrgID         string         `json:"org_id"`
	ServiceID     *string        `json:"service_id"`
	EnvironmentID *string        `json:"environment_id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Severity      Severity       `json:"severity"`
	Status        IncidentStatus `json:"status"`
	Source        IncidentSource `json:"source"`
	RuleID        *string        `json:"rule_id"`
	Fingerprint   *string        `json:"fingerprint"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	ResolvedAt    *time.Time     `json:"resolved_at"`
}

// ApplyStatus moves the incident to next and maintains ResolvedAt. It returns the previous status.
func (i *Incident) ApplyStatus(next IncidentStatus, at time.Time) IncidentStatus {
	prev := i.Status
	i.Status = next
	i.UpdatedAt = at
	if next == IncidentStatusResolved {
		resolvedAt := at
		i.ResolvedAt = &resolvedAt
	} else {
		i.ResolvedAt = nil
	}
	return prev
}

type IncidentEventType string

const (
	IncidentEventCreated      IncidentEventType = "created"
	IncidentEventTrigger      IncidentEventType = "trigger"
	IncidentEventStatusChange IncidentEventType = "status_change"
)

// IncidentEvent is an append-only timeline entry of an incident.
type IncidentEvent struct {
	ID         string            `json:"id"`
	IncidentID string            `json:"incident_id"`
	Type       IncidentEventType `json:"type"`
	Message    string            `json:"message"`
	Actor      *string           `json:"actor"`
	Metadata   map[string]any    `json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
}
