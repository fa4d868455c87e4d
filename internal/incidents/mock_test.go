package incidents

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/bissquit/alert-garden/internal/domain"
	"github.com/bissquit/alert-garden/internal/notifications"
)

// memRepository is an in-memory Repository enforcing the single active incident per fingerprint.
type memRepository struct {
	mu        sync.Mutex
	incidents map[string]*domain.Incident
	events    []domain.IncidentEvent
	nextID    int

	appendErr error
}

func newMemRepository() *memRepository {
	return &memRepository{incidents: make(map[string]*domain.Incident)}
}

func (r *memRepository) id(prefix string) string {
	r.nextID++
	return fmt.Sprintf("%s-%d", prefix, r.nextID)
}

func (r *memRepository) activeFor(orgID, ruleID, fingerprint string) *domain.Incident {
	for _, inc := range r.incidents {
		if inc.OrgID == orgID && inc.RuleID != nil && *inc.RuleID == ruleID &&
			inc.Fingerprint != nil && *inc.Fingerprint == fingerprint && inc.Status.IsActive() {
			return inc
		}
	}
	return nil
}

func (r *memRepository) CreateWithEvent(_ context.Context, incident *domain.Incident, event *domain.IncidentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if incident.RuleID != nil && incident.Fingerprint != nil &&
		r.activeFor(incident.OrgID, *incident.RuleID, *incident.Fingerprint) != nil {
		return ErrOpenIncidentExists
	}

	incident.ID = r.id("inc")
	cp := *incident
	r.incidents[incident.ID] = &cp

	event.ID = r.id("ev")
	event.IncidentID = incident.ID
	r.events = append(r.events, *event)
	return nil
}

func (r *memRepository) UpdateStatusWithEvent(_ context.Context, incident *domain.Incident, prev domain.IncidentStatus, event *domain.IncidentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.incidents[incident.ID]
	if !ok || stored.Status != prev {
		return ErrStatusConflict
	}
	if incident.Status.IsActive() && incident.RuleID != nil && incident.Fingerprint != nil {
		if other := r.activeFor(incident.OrgID, *incident.RuleID, *incident.Fingerprint); other != nil && other.ID != incident.ID {
			return ErrOpenIncidentExists
		}
	}

	cp := *incident
	r.incidents[incident.ID] = &cp

	event.ID = r.id("ev")
	r.events = append(r.events, *event)
	return nil
}

func (r *memRepository) GetByID(_ context.Context, id string) (*domain.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inc, ok := r.incidents[id]
	if !ok {
		return nil, ErrIncidentNotFound
	}
	cp := *inc
	return &cp, nil
}

func (r *memRepository) FindOpen(_ context.Context, orgID, ruleID, fingerprint string) (*domain.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inc := r.activeFor(orgID, ruleID, fingerprint)
	if inc == nil {
		return nil, ErrIncidentNotFound
	}
	cp := *inc
	return &cp, nil
}

func (r *memRepository) AppendEvent(_ context.Context, event *domain.IncidentEvent) error {
	if r.appendErr != nil {
		return r.appendErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	event.ID = r.id("ev")
	r.events = append(r.events, *event)
	return nil
}

func (r *memRepository) ListEvents(_ context.Context, incidentID string) ([]domain.IncidentEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.IncidentEvent, 0)
	for _, e := range r.events {
		if e.IncidentID == incidentID {
			out = append(out, e)
		}
	}
	return out, nil
}

// fakePublisher records published events.
type fakePublisher struct {
	mu     sync.Mutex
	events []domain.IncidentEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, _ *domain.Incident, event *domain.IncidentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
	return p.err
}

func (p *fakePublisher) published() []domain.IncidentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.events)
}

// fakeNotifier records enqueued events.
type fakeNotifier struct {
	mu     sync.Mutex
	events []notifications.RenderedEvent
	err    error
}

func (n *fakeNotifier) Enqueue(_ context.Context, _ string, event notifications.RenderedEvent) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return 0, n.err
	}
	n.events = append(n.events, event)
	return 1, nil
}

func (n *fakeNotifier) enqueued() []notifications.RenderedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.events)
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService() (*Service, *memRepository, *fakePublisher, *fakeNotifier) {
	repo := newMemRepository()
	pub := &fakePublisher{}
	notifier := &fakeNotifier{}
	svc := NewService(repo, pub, notifier)
	svc.now = func() time.Time { return testNow }
	return svc, repo, pub, notifier
}

func alertInput() AlertInput {
	return AlertInput{
		OrgID:       "org-1",
		RuleID:      "rule-1",
		RuleName:    "Checkout errors",
		Fingerprint: "error_count:svc-1:all:5:10",
		Title:       "Checkout errors",
		Description: "12 error logs in the last 5 minutes (threshold 10)",
		Severity:    domain.SeverityCritical,
		Context:     map[string]any{"count": 12, "threshold": 10, "windowMinutes": 5},
	}
}
