// Package alerting evaluates alert rules against recent telemetry and opens or updates incidents.
package alerting

import (
	"context"
	"errors"
	"time"

	"github.com/bissquit/alert-garden/internal/domain"
)

// ErrNoDeployment is returned by LatestDeployment when the scope has no deployments.
var ErrNoDeployment = errors.New("no deployment in scope")

// Repository defines the interface for rule, telemetry and firing data access.
type Repository interface {
	ListEnabledRules(ctx context.Context) ([]domain.AlertRule, error)

	// Telemetry
	CountErrorLogs(ctx context.Context, scope domain.TelemetryScope, since time.Time) (int, error)
	LatestDeployment(ctx context.Context, scope domain.TelemetryScope) (*domain.Deployment, error)

	// UpsertFiring records that the fingerprint fired at firedAt and returns the
	// last_notified_at stored before this call, nil for a first firing.
	UpsertFiring(ctx context.Context, ruleID, fingerprint string, firedAt time.Time) (*time.Time, error)
	MarkNotified(ctx context.Context, ruleID, fingerprint string, at time.Time) error
}
