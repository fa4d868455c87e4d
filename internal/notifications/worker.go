package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/alert-garden/internal/cronrun"
	"github.com/bissquit/alert-garden/internal/domain"
	"github.com/bissquit/alert-garden/internal/pkg/ctxlog"
	"github.com/bissquit/alert-garden/internal/pkg/metrics"
)

// WorkerConfig contains worker configuration.
type WorkerConfig struct {
	BatchSize   int
	MaxAttempts int
	// BackoffSchedule[i] is the delay after the (i+1)-th failed attempt.
	// Attempts beyond the schedule reuse its last entry.
	BackoffSchedule []time.Duration
	RequestTimeout  time.Duration
	// StuckTimeout returns processing jobs of a crashed run to pending. Zero disables recovery.
	StuckTimeout time.Duration
	// FailFastOnMisconfig marks jobs failed on the first non-retryable error,
	// such as a missing webhook URL, instead of spending the remaining attempts.
	FailFastOnMisconfig bool
}

// DefaultWorkerConfig returns default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:   10,
		MaxAttempts: 5,
		BackoffSchedule: []time.Duration{
			1 * time.Minute,
			2 * time.Minute,
			5 * time.Minute,
			10 * time.Minute,
			30 * time.Minute,
		},
		RequestTimeout: 5 * time.Second,
		StuckTimeout:   10 * time.Minute,
	}
}

// JobResult is the outcome of one job in a batch.
type JobResult struct {
	ID     string    `json:"id"`
	Status JobStatus `json:"status"`
	Error  string    `json:"error,omitempty"`
}

// BatchResult summarizes one RunOnce invocation.
type BatchResult struct {
	Processed int         `json:"processed"`
	Results   []JobResult `json:"results"`
}

// Worker delivers due jobs. Each RunOnce call processes one batch sequentially.
type Worker struct {
	config  WorkerConfig
	repo    Repository
	runs    cronrun.Recorder
	senders map[domain.ChannelType]Sender
	now     func() time.Time
}

// NewWorker creates a new notification worker.
func NewWorker(config WorkerConfig, repo Repository, runs cronrun.Recorder, senders ...Sender) *Worker {
	senderMap := make(map[domain.ChannelType]Sender, len(senders))
	for _, s := range senders {
		senderMap[s.Type()] = s
	}
	if runs == nil {
		runs = cronrun.Nop{}
	}
	return &Worker{
		config:  config,
		repo:    repo,
		runs:    runs,
		senders: senderMap,
		now:     time.Now,
	}
}

// RunOnce claims up to BatchSize due jobs and attempts each of them once.
// A failing job never stops the batch; only a failure to claim jobs is returned.
func (w *Worker) RunOnce(ctx context.Context) (result *BatchResult, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveCronRun(cronrun.JobProcessNotifications, time.Since(start).Seconds(), err)
	}()

	logger := ctxlog.FromContext(ctx)
	now := w.now()

	if w.config.StuckTimeout > 0 {
		recovered, err := w.repo.RecoverStuckJobs(ctx, now.Add(-w.config.StuckTimeout))
		if err != nil {
			logger.Error("failed to recover stuck jobs", "error", err)
		} else if recovered > 0 {
			logger.Warn("recovered stuck jobs", "count", recovered)
		}
	}

	jobs, err := w.repo.ClaimDueJobs(ctx, now, w.config.MaxAttempts, w.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}

	result = &BatchResult{
		Processed: len(jobs),
		Results:   make([]JobResult, 0, len(jobs)),
	}
	if len(jobs) == 0 {
		return result, nil
	}

	logger.Debug("processing notification jobs", "count", len(jobs))
	jobsClaimed.Add(float64(len(jobs)))

	for _, job := range jobs {
		result.Results = append(result.Results, w.processJob(ctx, job))
	}

	if err := w.runs.Record(ctx, cronrun.JobProcessNotifications, result); err != nil {
		logger.Error("failed to record run", "job", cronrun.JobProcessNotifications, "error", err)
	}

	return result, nil
}

func (w *Worker) processJob(ctx context.Context, job *Job) JobResult {
	logger := ctxlog.FromContext(ctx)
	channelType := string(job.ChannelType)

	start := time.Now()
	err := w.deliver(ctx, job)
	took := time.Since(start)

	if err != nil {
		return w.handleSendError(ctx, job, err, took)
	}

	if markErr := w.repo.MarkAsSent(ctx, job.ID, w.now()); markErr != nil {
		logger.Error("failed to mark as sent", "job_id", job.ID, "error", markErr)
	}
	recordDelivery(channelType, outcomeSent, took)

	logger.Debug("notification sent",
		"job_id", job.ID,
		"channel_type", job.ChannelType,
		"incident_id", job.Payload.IncidentID,
	)

	return JobResult{ID: job.ID, Status: JobStatusSent}
}

func (w *Worker) deliver(ctx context.Context, job *Job) error {
	if job.Payload.WebhookURL == "" {
		return NewNonRetryableError(ErrMissingWebhookURL)
	}

	sender, ok := w.senders[job.ChannelType]
	if !ok {
		sender, ok = w.senders[FallbackChannelType]
	}
	if !ok {
		return NewNonRetryableError(fmt.Errorf("%w: %s", ErrNoSender, job.ChannelType))
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.config.RequestTimeout)
	defer cancel()

	return sender.Send(sendCtx, Message{
		WebhookURL: job.Payload.WebhookURL,
		Text:       RenderText(job.Payload),
		Payload:    job.Payload,
	})
}

func (w *Worker) handleSendError(ctx context.Context, job *Job, err error, took time.Duration) JobResult {
	logger := ctxlog.FromContext(ctx)
	channelType := string(job.ChannelType)
	attempts := job.Attempts + 1
	retryable := IsRetryable(err)

	logger.Warn("send failed",
		"job_id", job.ID,
		"channel_type", job.ChannelType,
		"attempt", attempts,
		"max_attempts", w.config.MaxAttempts,
		"retryable", retryable,
		"error", err,
	)

	failFast := w.config.FailFastOnMisconfig && !retryable
	if attempts >= w.config.MaxAttempts || failFast {
		if failFast {
			// Attempts must reach the limit, otherwise the claim query would pick the job up again.
			attempts = max(attempts, w.config.MaxAttempts)
		}
		if markErr := w.repo.MarkAsFailed(ctx, job.ID, attempts, err.Error()); markErr != nil {
			logger.Error("failed to mark as failed", "job_id", job.ID, "error", markErr)
		}
		recordDelivery(channelType, outcomeFailed, took)
		return JobResult{ID: job.ID, Status: JobStatusFailed, Error: err.Error()}
	}

	nextAttempt := w.now().Add(w.Backoff(attempts))
	if markErr := w.repo.MarkForRetry(ctx, job.ID, attempts, err.Error(), nextAttempt); markErr != nil {
		logger.Error("failed to mark for retry", "job_id", job.ID, "error", markErr)
	}
	recordDelivery(channelType, outcomeRetry, took)

	logger.Info("notification scheduled for retry",
		"job_id", job.ID,
		"next_attempt", nextAttempt,
	)

	return JobResult{ID: job.ID, Status: JobStatusPending, Error: err.Error()}
}

// Backoff returns the delay before the next attempt after the given number of failed attempts.
func (w *Worker) Backoff(attempts int) time.Duration {
	schedule := w.config.BackoffSchedule
	if len(schedule) == 0 {
		return 0
	}
	idx := min(max(attempts-1, 0), len(schedule)-1)
	return schedule[idx]
}
