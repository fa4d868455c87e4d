// Package notifications enqueues incident notifications and delivers them with retries.
package notifications

import (
	"context"
	"time"

	"github.com/bissquit/alert-garden/internal/domain"
)

// Repository defines the interface for notifications data access.
type Repository interface {
	// Channels
	ListEnabledChannels(ctx context.Context, orgID string) ([]domain.NotificationChannel, error)

	// Queue writes
	EnqueueJobs(ctx context.Context, jobs []*Job) error

	// ClaimDueJobs moves up to limit due jobs to processing and returns them
	// ordered by next_attempt_at. Rows locked by another worker are skipped.
	ClaimDueJobs(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*Job, error)
	MarkAsSent(ctx context.Context, id string, sentAt time.Time) error
	MarkForRetry(ctx context.Context, id string, attempts int, lastErr string, nextAttemptAt time.Time) error
	MarkAsFailed(ctx context.Context, id string, attempts int, lastErr string) error

	// RecoverStuckJobs returns processing jobs not updated since before to pending.
	RecoverStuckJobs(ctx context.Context, before time.Time) (int64, error)

	// Queue reads
	GetQueueStats(ctx context.Context) (*QueueStats, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*Job, error)
}
