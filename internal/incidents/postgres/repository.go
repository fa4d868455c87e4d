// Package postgres provides PostgreSQL implementation of incidents repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bissquit/alert-garden/internal/domain"
	"github.com/bissquit/alert-garden/internal/incidents"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation      = "23505"
	openFingerprintIndex = "incidents_open_fingerprint_uniq"
	incidentColumns      = `id::text, org_id, service_id, environment_id, title, description, severity, status, source, rule_id::text, fingerprint, created_at, updated_at, resolved_at`
)

// querier is an interface for database operations that both *pgxpool.Pool and pgx.Tx implement.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements incidents.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateWithEvent inserts an incident and its first event in one transaction.
func (r *Repository) CreateWithEvent(ctx context.Context, incident *domain.Incident, event *domain.IncidentEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := `
		INSERT INTO incidents (
			org_id, service_id, environment_id, title, description, severity,
			status, source, rule_id, fingerprint, created_at, updated_at, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id::text
	`
	err = tx.QueryRow(ctx, query,
		incident.OrgID,
		incident.ServiceID,
		incident.EnvironmentID,
		incident.Title,
		incident.Description,
		incident.Severity,
		incident.Status,
		incident.Source,
		incident.RuleID,
		incident.Fingerprint,
		incident.CreatedAt,
		incident.UpdatedAt,
		incident.ResolvedAt,
	).Scan(&incident.ID)
	if err != nil {
		if isOpenFingerprintViolation(err) {
			return incidents.ErrOpenIncidentExists
		}
		return fmt.Errorf("insert incident: %w", err)
	}

	event.IncidentID = incident.ID
	if err := r.appendEvent(ctx, tx, event); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// UpdateStatusWithEvent stores the new status only if the row still has prev, then appends the event.
func (r *Repository) UpdateStatusWithEvent(ctx context.Context, incident *domain.Incident, prev domain.IncidentStatus, event *domain.IncidentEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := `
		UPDATE incidents
		SET status = $2, resolved_at = $3, updated_at = $4
		WHERE id = $1 AND status = $5
	`
	result, err := tx.Exec(ctx, query, incident.ID, incident.Status, incident.ResolvedAt, incident.UpdatedAt, prev)
	if err != nil {
		if isOpenFingerprintViolation(err) {
			return incidents.ErrOpenIncidentExists
		}
		return fmt.Errorf("update incident status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return incidents.ErrStatusConflict
	}

	if err := r.appendEvent(ctx, tx, event); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetByID retrieves an incident by ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id::text = $1`
	incident, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return incident, nil
}

// FindOpen returns the active incident for an alert rule and fingerprint.
func (r *Repository) FindOpen(ctx context.Context, orgID, ruleID, fingerprint string) (*domain.Incident, error) {
	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE org_id = $1 AND rule_id = $2 AND fingerprint = $3
		  AND status IN ('open', 'investigating')
		LIMIT 1
	`
	incident, err := scanIncident(r.db.QueryRow(ctx, query, orgID, ruleID, fingerprint))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("find open incident: %w", err)
	}
	return incident, nil
}

// AppendEvent inserts a timeline event.
func (r *Repository) AppendEvent(ctx context.Context, event *domain.IncidentEvent) error {
	return r.appendEvent(ctx, r.db, event)
}

func (r *Repository) appendEvent(ctx context.Context, q querier, event *domain.IncidentEvent) error {
	var metadata []byte
	if event.Metadata != nil {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshal event metadata: %w", err)
		}
	}

	query := `
		INSERT INTO incident_events (incident_id, type, message, actor, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id::text
	`
	err := q.QueryRow(ctx, query,
		event.IncidentID,
		event.Type,
		event.Message,
		event.Actor,
		metadata,
		event.CreatedAt,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("insert incident event: %w", err)
	}
	return nil
}

// ListEvents returns the timeline of an incident, oldest first.
func (r *Repository) ListEvents(ctx context.Context, incidentID string) ([]domain.IncidentEvent, error) {
	query := `
		SELECT id::text, incident_id::text, type, message, actor, metadata, created_at
		FROM incident_events
		WHERE incident_id::text = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list incident events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.IncidentEvent, 0)
	for rows.Next() {
		var event domain.IncidentEvent
		var metadata []byte
		err := rows.Scan(
			&event.ID,
			&event.IncidentID,
			&event.Type,
			&event.Message,
			&event.Actor,
			&metadata,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan incident event: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata of event %s: %w", event.ID, err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incident events: %w", err)
	}

	return events, nil
}

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var incident domain.Incident
	err := row.Scan(
		&incident.ID,
		&incident.OrgID,
		&incident.ServiceID,
		&incident.EnvironmentID,
		&incident.Title,
		&incident.Description,
		&incident.Severity,
		&incident.Status,
		&incident.Source,
		&incident.RuleID,
		&incident.Fingerprint,
		&incident.CreatedAt,
		&incident.UpdatedAt,
		&incident.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return &incident, nil
}

func isOpenFingerprintViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == openFingerprintIndex
}
