// Package postgres provides PostgreSQL implementation of alerting repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/alert-garden/internal/alerting"
	"github.com/bissquit/alert-garden/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// scopeFilter matches rows of the organization; a NULL parameter matches every service or environment.
const scopeFilter = `org_id = $1
	AND ($2::text IS NULL OR service_id = $2)
	AND ($3::text IS NULL OR environment_id = $3)`

// Repository implements alerting.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ListEnabledRules returns all enabled rules ordered by creation time.
func (r *Repository) ListEnabledRules(ctx context.Context) ([]domain.AlertRule, error) {
	query := `
		SELECT id::text, org_id, service_id, environment_id, name, type, params,
		       severity, enabled, cooldown_seconds, created_at, updated_at
		FROM alert_rules
		WHERE enabled = true
		ORDER BY created_at, id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list enabled rules: %w", err)
	}
	defer rows.Close()

	rules := make([]domain.AlertRule, 0)
	for rows.Next() {
		var rule domain.AlertRule
		var params []byte
		err := rows.Scan(
			&rule.ID,
			&rule.OrgID,
			&rule.ServiceID,
			&rule.EnvironmentID,
			&rule.Name,
			&rule.Type,
			&params,
			&rule.Severity,
			&rule.Enabled,
			&rule.CooldownSeconds,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rule.Params = params
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}

	return rules, nil
}

// CountErrorLogs counts error-level logs in scope logged at or after since.
func (r *Repository) CountErrorLogs(ctx context.Context, scope domain.TelemetryScope, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM logs
		WHERE ` + scopeFilter + `
		  AND level = $4
		  AND logged_at >= $5
	`
	var count int
	err := r.db.QueryRow(ctx, query,
		scope.OrgID,
		scope.ServiceID,
		scope.EnvironmentID,
		domain.LogLevelError,
		since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count error logs: %w", err)
	}
	return count, nil
}

// LatestDeployment returns the most recent deployment in scope.
func (r *Repository) LatestDeployment(ctx context.Context, scope domain.TelemetryScope) (*domain.Deployment, error) {
	query := `
		SELECT id::text, org_id, service_id, environment_id, status, created_at
		FROM deployments
		WHERE ` + scopeFilter + `
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	var d domain.Deployment
	err := r.db.QueryRow(ctx, query, scope.OrgID, scope.ServiceID, scope.EnvironmentID).Scan(
		&d.ID,
		&d.OrgID,
		&d.ServiceID,
		&d.EnvironmentID,
		&d.Status,
		&d.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, alerting.ErrNoDeployment
	}
	if err != nil {
		return nil, fmt.Errorf("get latest deployment: %w", err)
	}
	return &d, nil
}

// UpsertFiring sets fired_at and returns the previous last_notified_at in one statement.
// The data-modifying CTE sees the snapshot taken before the insert, so previous holds the old row.
func (r *Repository) UpsertFiring(ctx context.Context, ruleID, fingerprint string, firedAt time.Time) (*time.Time, error) {
	query := `
		WITH previous AS (
			SELECT last_notified_at
			FROM alert_firings
			WHERE rule_id = $1 AND fingerprint = $2
		), upserted AS (
			INSERT INTO alert_firings (rule_id, fingerprint, fired_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (rule_id, fingerprint) DO UPDATE SET fired_at = EXCLUDED.fired_at
		)
		SELECT (SELECT last_notified_at FROM previous)
	`
	var lastNotifiedAt *time.Time
	if err := r.db.QueryRow(ctx, query, ruleID, fingerprint, firedAt).Scan(&lastNotifiedAt); err != nil {
		return nil, fmt.Errorf("upsert firing: %w", err)
	}
	return lastNotifiedAt, nil
}

// MarkNotified sets last_notified_at of a firing.
func (r *Repository) MarkNotified(ctx context.Context, ruleID, fingerprint string, at time.Time) error {
	query := `
		UPDATE alert_firings
		SET last_notified_at = $3
		WHERE rule_id = $1 AND fingerprint = $2
	`
	if _, err := r.db.Exec(ctx, query, ruleID, fingerprint, at); err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}

// GetFiring returns the firing record of a rule and fingerprint.
func (r *Repository) GetFiring(ctx context.Context, ruleID, fingerprint string) (*domain.AlertFiring, error) {
	query := `
		SELECT rule_id::text, fingerprint, fired_at, last_notified_at
		FROM alert_firings
		WHERE rule_id = $1 AND fingerprint = $2
	`
	var f domain.AlertFiring
	err := r.db.QueryRow(ctx, query, ruleID, fingerprint).Scan(&f.RuleID, &f.Fingerprint, &f.FiredAt, &f.LastNotifiedAt)
	if err != nil {
		return nil, fmt.Errorf("get firing: %w", err)
	}
	return &f, nil
}
