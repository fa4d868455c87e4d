package incidents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bissquit/alert-garden/internal/domain"
	"github.com/bissquit/alert-garden/internal/notifications"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_OpenFromAlert(t *testing.T) {
	svc, repo, pub, notifier := newTestService()

	incident, err := svc.OpenFromAlert(context.Background(), alertInput())
	require.NoError(t, err)

	assert.NotEmpty(t, incident.ID)
	assert.Equal(t, domain.IncidentStatusOpen, incident.Status)
	assert.Equal(t, domain.IncidentSourceAlert, incident.Source)
	assert.Equal(t, domain.SeverityCritical, incident.Severity)
	require.NotNil(t, incident.RuleID)
	assert.Equal(t, "rule-1", *incident.RuleID)
	require.NotNil(t, incident.Fingerprint)
	assert.Equal(t, "error_count:svc-1:all:5:10", *incident.Fingerprint)
	assert.Equal(t, testNow, incident.CreatedAt)
	assert.Nil(t, incident.ResolvedAt)

	events, err := repo.ListEvents(context.Background(), incident.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.IncidentEventCreated, events[0].Type)
	assert.Nil(t, events[0].Actor)
	assert.Equal(t, map[string]any{"count": 12, "threshold": 10, "windowMinutes": 5}, events[0].Metadata["context"])

	assert.Len(t, pub.published(), 1)
	// Alert transitions are announced by the evaluator.
	assert.Empty(t, notifier.enqueued())
}

func TestService_OpenFromAlert_DefaultsSeverity(t *testing.T) {
	svc, _, _, _ := newTestService()
	input := alertInput()
	input.Severity = ""

	incident, err := svc.OpenFromAlert(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityMajor, incident.Severity)
}

func TestService_OpenFromAlert_ActiveIncidentExists(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.OpenFromAlert(context.Background(), alertInput())
	require.NoError(t, err)

	_, err = svc.OpenFromAlert(context.Background(), alertInput())
	require.ErrorIs(t, err, ErrOpenIncidentExists)
}

func TestService_FindOpen(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()
	input := alertInput()

	_, err := svc.FindOpen(ctx, input.OrgID, input.RuleID, input.Fingerprint)
	require.ErrorIs(t, err, ErrIncidentNotFound)

	created, err := svc.OpenFromAlert(ctx, input)
	require.NoError(t, err)

	found, err := svc.FindOpen(ctx, input.OrgID, input.RuleID, input.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = svc.ChangeStatus(ctx, created.ID, domain.IncidentStatusResolved, "")
	require.NoError(t, err)

	_, err = svc.FindOpen(ctx, input.OrgID, input.RuleID, input.Fingerprint)
	require.ErrorIs(t, err, ErrIncidentNotFound)
}

func TestService_RecordTrigger(t *testing.T) {
	svc, repo, pub, _ := newTestService()
	ctx := context.Background()

	incident, err := svc.OpenFromAlert(ctx, alertInput())
	require.NoError(t, err)

	err = svc.RecordTrigger(ctx, incident, "Checkout errors", map[string]any{"count": 15})
	require.NoError(t, err)

	events, err := repo.ListEvents(ctx, incident.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.IncidentEventTrigger, events[1].Type)
	assert.Equal(t, `Alert rule "Checkout errors" fired again`, events[1].Message)
	assert.Equal(t, "error_count:svc-1:all:5:10", events[1].Metadata["fingerprint"])
	assert.Len(t, pub.published(), 2)
}

func TestService_RecordTrigger_AppendError(t *testing.T) {
	svc, repo, pub, _ := newTestService()
	ctx := context.Background()

	incident, err := svc.OpenFromAlert(ctx, alertInput())
	require.NoError(t, err)

	repo.appendErr = errors.New("connection reset")
	err = svc.RecordTrigger(ctx, incident, "Checkout errors", nil)
	require.Error(t, err)
	assert.Len(t, pub.published(), 1)
}

func TestService_ChangeStatus(t *testing.T) {
	tests := []struct {
		name         string
		path         []domain.IncidentStatus
		wantResolved bool
	}{
		{"open to investigating", []domain.IncidentStatus{domain.IncidentStatusInvestigating}, false},
		{"open to resolved", []domain.IncidentStatus{domain.IncidentStatusResolved}, true},
		{"investigating to resolved", []domain.IncidentStatus{domain.IncidentStatusInvestigating, domain.IncidentStatusResolved}, true},
		{"resolved to open clears resolved_at", []domain.IncidentStatus{domain.IncidentStatusResolved, domain.IncidentStatusOpen}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _, notifier := newTestService()
			ctx := context.Background()

			incident, err := svc.OpenFromAlert(ctx, alertInput())
			require.NoError(t, err)

			var updated *domain.Incident
			for _, status := range tt.path {
				updated, err = svc.ChangeStatus(ctx, incident.ID, status, "alice@example.com")
				require.NoError(t, err)
			}

			last := tt.path[len(tt.path)-1]
			assert.Equal(t, last, updated.Status)
			if tt.wantResolved {
				require.NotNil(t, updated.ResolvedAt)
				assert.Equal(t, testNow, *updated.ResolvedAt)
			} else {
				assert.Nil(t, updated.ResolvedAt)
			}

			stored, err := repo.GetByID(ctx, incident.ID)
			require.NoError(t, err)
			assert.Equal(t, last, stored.Status)

			events, err := repo.ListEvents(ctx, incident.ID)
			require.NoError(t, err)
			require.Len(t, events, 1+len(tt.path))
			change := events[len(events)-1]
			assert.Equal(t, domain.IncidentEventStatusChange, change.Type)
			assert.Equal(t, string(last), change.Metadata["to"])
			require.NotNil(t, change.Actor)
			assert.Equal(t, "alice@example.com", *change.Actor)

			enqueued := notifier.enqueued()
			require.Len(t, enqueued, len(tt.path))
			assert.Equal(t, notifications.EventIncidentUpdated, enqueued[len(enqueued)-1].Type)
			assert.Equal(t, string(last), enqueued[len(enqueued)-1].Status)
		})
	}
}

func TestService_ChangeStatus_Errors(t *testing.T) {
	svc, _, _, notifier := newTestService()
	ctx := context.Background()

	incident, err := svc.OpenFromAlert(ctx, alertInput())
	require.NoError(t, err)

	_, err = svc.ChangeStatus(ctx, incident.ID, domain.IncidentStatusOpen, "")
	require.ErrorIs(t, err, ErrStatusUnchanged)

	_, err = svc.ChangeStatus(ctx, incident.ID, domain.IncidentStatus("closed"), "")
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = svc.ChangeStatus(ctx, "missing", domain.IncidentStatusResolved, "")
	require.ErrorIs(t, err, ErrIncidentNotFound)

	assert.Empty(t, notifier.enqueued())
}

func TestService_ChangeStatus_ReopenBlockedByNewerIncident(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	first, err := svc.OpenFromAlert(ctx, alertInput())
	require.NoError(t, err)
	_, err = svc.ChangeStatus(ctx, first.ID, domain.IncidentStatusResolved, "")
	require.NoError(t, err)

	_, err = svc.OpenFromAlert(ctx, alertInput())
	require.NoError(t, err)

	_, err = svc.ChangeStatus(ctx, first.ID, domain.IncidentStatusOpen, "")
	require.ErrorIs(t, err, ErrOpenIncidentExists)
}

func TestService_ChangeStatus_SideEffectFailuresAreNotReturned(t *testing.T) {
	svc, _, pub, notifier := newTestService()
	ctx := context.Background()

	incident, err := svc.OpenFromAlert(ctx, alertInput())
	require.NoError(t, err)

	pub.err = errors.New("kafka down")
	notifier.err = errors.New("db down")

	updated, err := svc.ChangeStatus(ctx, incident.ID, domain.IncidentStatusResolved, "")
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusResolved, updated.Status)
}

func TestService_NilCollaborators(t *testing.T) {
	svc := NewService(newMemRepository(), nil, nil)
	svc.now = func() time.Time { return testNow }
	ctx := context.Background()

	incident, err := svc.OpenFromAlert(ctx, alertInput())
	require.NoError(t, err)

	_, err = svc.ChangeStatus(ctx, incident.ID, domain.IncidentStatusResolved, "")
	require.NoError(t, err)
}

func TestService_ListEvents_UnknownIncident(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.ListEvents(context.Background(), "missing")
	require.ErrorIs(t, err, ErrIncidentNotFound)
}
