package notifications

import (
	"time"

	"github.com/bissquit/alert-garden/internal/domain"
)

// JobStatus represents the delivery state of a job.
type JobStatus string

// Job statuses.
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSent       JobStatus = "sent"
	JobStatusFailed     JobStatus = "failed"
)

// IsValid checks if the status is one of the known job statuses.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusSent, JobStatusFailed:
		return true
	}
	return false
}

// Job is one notification to deliver to one channel.
type Job struct {
	ID            string             `json:"id"`
	OrgID         string             `json:"org_id"`
	ChannelType   domain.ChannelType `json:"channel_type"`
	Payload       Payload            `json:"-"`
	Status        JobStatus          `json:"status"`
	Attempts      int                `json:"attempts"`
	NextAttemptAt time.Time          `json:"next_attempt_at"`
	LastError     *string            `json:"last_error"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	SentAt        *time.Time         `json:"sent_at"`
}

// QueueStats contains job counts by status.
type QueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
}

// JobFilter narrows ListJobs. A nil Status lists every status.
type JobFilter struct {
	OrgID  string
	Status *JobStatus
	Limit  int
}
