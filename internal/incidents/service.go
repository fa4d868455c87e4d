package incidents

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/alert-garden/internal/domain"
	"github.com/bissquit/alert-garden/internal/notifications"
	"github.com/bissquit/alert-garden/internal/pkg/ctxlog"
)

// EventPublisher streams appended timeline events to other systems.
type EventPublisher interface {
	Publish(ctx context.Context, incident *domain.Incident, event *domain.IncidentEvent) error
}

// Notifier enqueues notifications for an incident transition.
type Notifier interface {
	Enqueue(ctx context.Context, orgID string, event notifications.RenderedEvent) (int, error)
}

// AlertInput holds data for opening an incident from a firing alert rule.
type AlertInput struct {
	OrgID         string
	ServiceID     *string
	EnvironmentID *string
	RuleID        string
	RuleName      string
	Fingerprint   string
	Title         string
	Description   string
	Severity      domain.Severity
	Context       map[string]any
}

// Service implements incident business logic.
type Service struct {
	repo      Repository
	publisher EventPublisher
	notifier  Notifier
	now       func() time.Time
}

// NewService creates a new incident service. publisher and notifier may be nil.
// The notifier is used for operator status changes; alert transitions are announced by the evaluator.
func NewService(repo Repository, publisher EventPublisher, notifier Notifier) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		notifier:  notifier,
		now:       time.Now,
	}
}

// OpenFromAlert creates an open incident with source alert and its created event.
func (s *Service) OpenFromAlert(ctx context.Context, input AlertInput) (*domain.Incident, error) {
	if !input.Severity.IsValid() {
		input.Severity = domain.SeverityMajor
	}

	now := s.now()
	ruleID := input.RuleID
	fingerprint := input.Fingerprint

	incident := &domain.Incident{
		OrgID:         input.OrgID,
		ServiceID:     input.ServiceID,
		EnvironmentID: input.EnvironmentID,
		Title:         input.Title,
		Description:   input.Description,
		Severity:      input.Severity,
		Status:        domain.IncidentStatusOpen,
		Source:        domain.IncidentSourceAlert,
		RuleID:        &ruleID,
		Fingerprint:   &fingerprint,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	event := &domain.IncidentEvent{
		Type:      domain.IncidentEventCreated,
		Message:   fmt.Sprintf("Incident opened by alert rule %q", input.RuleName),
		Metadata:  eventMetadata(input.RuleID, fingerprint, input.Context),
		CreatedAt: now,
	}

	if err := s.repo.CreateWithEvent(ctx, incident, event); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}

	s.publish(ctx, incident, event)
	return incident, nil
}

// FindOpen returns the active incident for an alert rule and fingerprint, or ErrIncidentNotFound.
func (s *Service) FindOpen(ctx context.Context, orgID, ruleID, fingerprint string) (*domain.Incident, error) {
	return s.repo.FindOpen(ctx, orgID, ruleID, fingerprint)
}

// RecordTrigger appends a trigger event to an incident whose rule fired again.
func (s *Service) RecordTrigger(ctx context.Context, incident *domain.Incident, ruleName string, triggerContext map[string]any) error {
	var ruleID, fingerprint string
	if incident.RuleID != nil {
		ruleID = *incident.RuleID
	}
	if incident.Fingerprint != nil {
		fingerprint = *incident.Fingerprint
	}

	event := &domain.IncidentEvent{
		IncidentID: incident.ID,
		Type:       domain.IncidentEventTrigger,
		Message:    fmt.Sprintf("Alert rule %q fired again", ruleName),
		Metadata:   eventMetadata(ruleID, fingerprint, triggerContext),
		CreatedAt:  s.now(),
	}

	if err := s.repo.AppendEvent(ctx, event); err != nil {
		return fmt.Errorf("append trigger event: %w", err)
	}

	s.publish(ctx, incident, event)
	return nil
}

// ChangeStatus moves an incident to a new status on behalf of actor and records a status_change event.
func (s *Service) ChangeStatus(ctx context.Context, id string, status domain.IncidentStatus, actor string) (*domain.Incident, error) {
	if !status.IsValid() {
		return nil, ErrInvalidStatus
	}

	incident, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !incident.Status.CanTransitionTo(status) {
		return nil, ErrStatusUnchanged
	}

	now := s.now()
	prev := incident.ApplyStatus(status, now)

	event := &domain.IncidentEvent{
		IncidentID: incident.ID,
		Type:       domain.IncidentEventStatusChange,
		Message:    fmt.Sprintf("Status changed from %s to %s", prev, status),
		Metadata: map[string]any{
			"from": string(prev),
			"to":   string(status),
		},
		CreatedAt: now,
	}
	if actor != "" {
		event.Actor = &actor
	}

	if err := s.repo.UpdateStatusWithEvent(ctx, incident, prev, event); err != nil {
		return nil, fmt.Errorf("update incident status: %w", err)
	}

	ctxlog.FromContext(ctx).Info("incident status changed",
		"incident_id", incident.ID,
		"from", prev,
		"to", status,
		"actor", actor,
	)

	s.publish(ctx, incident, event)
	s.notify(ctx, incident)

	return incident, nil
}

// Get returns an incident by ID.
func (s *Service) Get(ctx context.Context, id string) (*domain.Incident, error) {
	return s.repo.GetByID(ctx, id)
}

// ListEvents returns the timeline of an incident, oldest first.
func (s *Service) ListEvents(ctx context.Context, id string) ([]domain.IncidentEvent, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListEvents(ctx, id)
}

// RenderEvent describes an incident transition for notification channels.
func RenderEvent(eventType notifications.EventType, incident *domain.Incident) notifications.RenderedEvent {
	return notifications.RenderedEvent{
		Type:       eventType,
		IncidentID: incident.ID,
		Title:      incident.Title,
		Status:     string(incident.Status),
		Severity:   string(incident.Severity),
	}
}

func (s *Service) publish(ctx context.Context, incident *domain.Incident, event *domain.IncidentEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, incident, event); err != nil {
		ctxlog.FromContext(ctx).Error("failed to publish incident event",
			"incident_id", incident.ID,
			"event_type", event.Type,
			"error", err,
		)
	}
}

func (s *Service) notify(ctx context.Context, incident *domain.Incident) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Enqueue(ctx, incident.OrgID, RenderEvent(notifications.EventIncidentUpdated, incident)); err != nil {
		ctxlog.FromContext(ctx).Error("failed to enqueue notifications",
			"incident_id", incident.ID,
			"error", err,
		)
	}
}

func eventMetadata(ruleID, fingerprint string, triggerContext map[string]any) map[string]any {
	metadata := map[string]any{
		"ruleId":      ruleID,
		"fingerprint": fingerprint,
	}
	if len(triggerContext) > 0 {
		metadata["context"] = triggerContext
	}
	return metadata
}
