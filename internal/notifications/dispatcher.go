package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bissquit/alert-garden/internal/pkg/ctxlog"
)

// Dispatcher turns an incident transition into one pending job per enabled channel.
type Dispatcher struct {
	repo    Repository
	baseURL string
	now     func() time.Time
}

// NewDispatcher creates a new notification dispatcher. baseURL prefixes incident links.
func NewDispatcher(repo Repository, baseURL string) *Dispatcher {
	return &Dispatcher{
		repo:    repo,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// IncidentLink returns the operator-facing URL of an incident.
func (d *Dispatcher) IncidentLink(incidentID string) string {
	return d.baseURL + "/incidents/" + incidentID
}

// Enqueue inserts one job per enabled channel of the organization and returns how many were created.
// It does not deduplicate; callers enqueue once per transition.
func (d *Dispatcher) Enqueue(ctx context.Context, orgID string, event RenderedEvent) (int, error) {
	channels, err := d.repo.ListEnabledChannels(ctx, orgID)
	if err != nil {
		return 0, fmt.Errorf("list channels: %w", err)
	}

	if len(channels) == 0 {
		ctxlog.FromContext(ctx).Debug("no enabled channels", "org_id", orgID, "incident_id", event.IncidentID)
		return 0, nil
	}

	now := d.now()
	link := d.IncidentLink(event.IncidentID)

	jobs := make([]*Job, 0, len(channels))
	for _, ch := range channels {
		jobs = append(jobs, &Job{
			OrgID:       orgID,
			ChannelType: ch.Type,
			Payload: Payload{
				WebhookURL: ch.WebhookURL,
				Event:      event.Type,
				IncidentID: event.IncidentID,
				Title:      event.Title,
				Status:     event.Status,
				Severity:   event.Severity,
				Link:       link,
			},
			Status:        JobStatusPending,
			NextAttemptAt: now,
		})
	}

	if err := d.repo.EnqueueJobs(ctx, jobs); err != nil {
		return 0, fmt.Errorf("enqueue jobs: %w", err)
	}

	ctxlog.FromContext(ctx).Info("notifications enqueued",
		"org_id", orgID,
		"incident_id", event.IncidentID,
		"event", event.Type,
		"jobs", len(jobs),
	)

	return len(jobs), nil
}
