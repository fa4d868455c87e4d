// Package postgres provides PostgreSQL implementation of notifications repository.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/bissquit/alert-garden/internal/domain"
	"github.com/bissquit/alert-garden/internal/notifications"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id::text, org_id, channel_type, payload, status, attempts, next_attempt_at, last_error, created_at, updated_at, sent_at`

// Repository implements notifications.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateChannel creates a new notification channel.
func (r *Repository) CreateChannel(ctx context.Context, channel *domain.NotificationChannel) error {
	config, err := json.Marshal(map[string]string{"webhookUrl": channel.WebhookURL})
	if err != nil {
		return fmt.Errorf("marshal channel config: %w", err)
	}

	query := `
		INSERT INTO notification_channels (org_id, type, config, enabled)
		VALUES ($1, $2, $3, $4)
		RETURNING id::text, created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		channel.OrgID,
		channel.Type,
		config,
		channel.Enabled,
	).Scan(&channel.ID, &channel.CreatedAt, &channel.UpdatedAt)
}

// ListEnabledChannels returns enabled channels of an organization.
func (r *Repository) ListEnabledChannels(ctx context.Context, orgID string) ([]domain.NotificationChannel, error) {
	query := `
		SELECT id::text, org_id, type, COALESCE(config->>'webhookUrl', ''), enabled, created_at, updated_at
		FROM notification_channels
		WHERE org_id = $1 AND enabled = true
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("list enabled channels: %w", err)
	}
	defer rows.Close()

	channels := make([]domain.NotificationChannel, 0)
	for rows.Next() {
		var channel domain.NotificationChannel
		err := rows.Scan(
			&channel.ID,
			&channel.OrgID,
			&channel.Type,
			&channel.WebhookURL,
			&channel.Enabled,
			&channel.CreatedAt,
			&channel.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, channel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}

	return channels, nil
}

// EnqueueJobs inserts all jobs in one batch and fills their generated fields.
func (r *Repository) EnqueueJobs(ctx context.Context, jobs []*notifications.Job) error {
	if len(jobs) == 0 {
		return nil
	}

	query := `
		INSERT INTO notification_jobs (org_id, channel_type, payload, status, attempts, next_attempt_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id::text, created_at, updated_at
	`

	batch := &pgx.Batch{}
	for _, job := range jobs {
		payload, err := json.Marshal(job.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		batch.Queue(query, job.OrgID, job.ChannelType, payload, job.Status, job.Attempts, job.NextAttemptAt).
			QueryRow(func(row pgx.Row) error {
				return row.Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
			})
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert jobs: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// ClaimDueJobs moves due jobs to processing. Rows locked by a concurrent worker are skipped.
func (r *Repository) ClaimDueJobs(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*notifications.Job, error) {
	query := `
		UPDATE notification_jobs
		SET status = 'processing', updated_at = $1
		WHERE id IN (
			SELECT id FROM notification_jobs
			WHERE status IN ('pending', 'failed')
			  AND next_attempt_at <= $1
			  AND attempts < $2
			ORDER BY next_attempt_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	jobs, err := r.queryJobs(ctx, query, now, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}

	// RETURNING does not preserve the subquery order.
	slices.SortStableFunc(jobs, func(a, b *notifications.Job) int {
		return a.NextAttemptAt.Compare(b.NextAttemptAt)
	})

	return jobs, nil
}

// MarkAsSent marks a job as delivered.
func (r *Repository) MarkAsSent(ctx context.Context, id string, sentAt time.Time) error {
	query := `
		UPDATE notification_jobs
		SET status = 'sent', last_error = NULL, sent_at = $2, updated_at = $2
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, id, sentAt); err != nil {
		return fmt.Errorf("mark as sent: %w", err)
	}
	return nil
}

// MarkForRetry returns a job to pending with the next attempt time.
func (r *Repository) MarkForRetry(ctx context.Context, id string, attempts int, lastErr string, nextAttemptAt time.Time) error {
	query := `
		UPDATE notification_jobs
		SET status = 'pending', attempts = $2, last_error = $3, next_attempt_at = $4, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, id, attempts, lastErr, nextAttemptAt); err != nil {
		return fmt.Errorf("mark for retry: %w", err)
	}
	return nil
}

// MarkAsFailed marks a job as permanently failed.
func (r *Repository) MarkAsFailed(ctx context.Context, id string, attempts int, lastErr string) error {
	query := `
		UPDATE notification_jobs
		SET status = 'failed', attempts = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, id, attempts, lastErr); err != nil {
		return fmt.Errorf("mark as failed: %w", err)
	}
	return nil
}

// RecoverStuckJobs returns processing jobs not updated since before to pending.
func (r *Repository) RecoverStuckJobs(ctx context.Context, before time.Time) (int64, error) {
	query := `
		UPDATE notification_jobs
		SET status = 'pending', updated_at = NOW()
		WHERE status = 'processing' AND updated_at < $1
	`
	result, err := r.db.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("recover stuck jobs: %w", err)
	}
	return result.RowsAffected(), nil
}

// GetQueueStats returns job counts by status.
func (r *Repository) GetQueueStats(ctx context.Context) (*notifications.QueueStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM notification_jobs
	`
	var stats notifications.QueueStats
	err := r.db.QueryRow(ctx, query).Scan(&stats.Pending, &stats.Processing, &stats.Sent, &stats.Failed)
	if err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}
	return &stats, nil
}

// ListJobs returns the most recent jobs matching the filter.
func (r *Repository) ListJobs(ctx context.Context, filter notifications.JobFilter) ([]*notifications.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM notification_jobs WHERE 1=1`
	args := make([]any, 0, 3)

	if filter.OrgID != "" {
		args = append(args, filter.OrgID)
		query += ` AND org_id = $` + strconv.Itoa(len(args))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	jobs, err := r.queryJobs(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

func (r *Repository) queryJobs(ctx context.Context, query string, args ...any) ([]*notifications.Job, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]*notifications.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (*notifications.Job, error) {
	var job notifications.Job
	var payload []byte
	err := row.Scan(
		&job.ID,
		&job.OrgID,
		&job.ChannelType,
		&payload,
		&job.Status,
		&job.Attempts,
		&job.NextAttemptAt,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.SentAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	if err := json.Unmarshal(payload, &job.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload of job %s: %w", job.ID, err)
	}
	return &job, nil
}
