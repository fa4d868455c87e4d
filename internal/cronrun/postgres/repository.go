// Package postgres stores cron run records in PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bissquit/alert-garden/internal/cronrun"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements cronrun.Recorder.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL run record repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Record inserts a run record.
func (r *Repository) Record(ctx context.Context, job string, summary any) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}

	query := `INSERT INTO cron_runs (job, summary) VALUES ($1, $2)`
	if _, err := r.db.Exec(ctx, query, job, data); err != nil {
		return fmt.Errorf("insert cron run: %w", err)
	}
	return nil
}

// ListRecent returns the latest run records of a job, newest first.
func (r *Repository) ListRecent(ctx context.Context, job string, limit int) ([]cronrun.Run, error) {
	query := `
		SELECT id::text, job, summary, created_at
		FROM cron_runs
		WHERE job = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, job, limit)
	if err != nil {
		return nil, fmt.Errorf("query cron runs: %w", err)
	}
	defer rows.Close()

	var runs []cronrun.Run
	for rows.Next() {
		var run cronrun.Run
		var summary []byte
		if err := rows.Scan(&run.ID, &run.Job, &summary, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cron run: %w", err)
		}
		run.Summary = summary
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cron runs: %w", err)
	}
	return runs, nil
}

var _ cronrun.Recorder = (*Repository)(nil)
