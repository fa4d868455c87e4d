// Package incidents manages the incident lifecycle and its append-only event timeline.
package incidents

import (
	"context"

	"github.com/bissquit/alert-garden/internal/domain"
)

// Repository defines the interface for incident data access.
// Methods ending in WithEvent write the incident and its event in one transaction.
type Repository interface {
	// CreateWithEvent inserts an incident and its first event.
	// Returns ErrOpenIncidentExists when an active incident holds the same rule and fingerprint.
	CreateWithEvent(ctx context.Context, incident *domain.Incident, event *domain.IncidentEvent) error

	// UpdateStatusWithEvent persists a status change made with Incident.ApplyStatus.
	// Returns ErrStatusConflict when the stored status is no longer prev.
	UpdateStatusWithEvent(ctx context.Context, incident *domain.Incident, prev domain.IncidentStatus, event *domain.IncidentEvent) error

	GetByID(ctx context.Context, id string) (*domain.Incident, error)

	// FindOpen returns the active incident for an alert or ErrIncidentNotFound.
	FindOpen(ctx context.Context, orgID, ruleID, fingerprint string) (*domain.Incident, error)

	AppendEvent(ctx context.Context, event *domain.IncidentEvent) error
	ListEvents(ctx context.Context, incidentID string) ([]domain.IncidentEvent, error)
}
