package notifications

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/bissquit/alert-garden/internal/domain"
)

// memRepository is an in-memory Repository mirroring the claim semantics of the PostgreSQL one.
type memRepository struct {
	mu       sync.Mutex
	channels map[string][]domain.NotificationChannel
	jobs     []*Job
	nextID   int

	listErr  error
	claimErr error
	stuckAt  []time.Time
}

func newMemRepository() *memRepository {
	return &memRepository{channels: make(map[string][]domain.NotificationChannel)}
}

func (r *memRepository) addChannel(orgID string, typ domain.ChannelType, url string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.channels[orgID] = append(r.channels[orgID], domain.NotificationChannel{
		ID:         fmt.Sprintf("ch-%d", r.nextID),
		OrgID:      orgID,
		Type:       typ,
		WebhookURL: url,
		Enabled:    enabled,
	})
}

func (r *memRepository) addJob(job *Job) *Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	if job.ID == "" {
		job.ID = fmt.Sprintf("job-%d", r.nextID)
	}
	if job.Status == "" {
		job.Status = JobStatusPending
	}
	r.jobs = append(r.jobs, job)
	return job
}

func (r *memRepository) job(id string) Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.ID == id {
			return *j
		}
	}
	panic("job not found: " + id)
}

func (r *memRepository) ListEnabledChannels(_ context.Context, orgID string) ([]domain.NotificationChannel, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.NotificationChannel
	for _, ch := range r.channels[orgID] {
		if ch.Enabled {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (r *memRepository) EnqueueJobs(_ context.Context, jobs []*Job) error {
	for _, j := range jobs {
		r.addJob(j)
	}
	return nil
}

func (r *memRepository) ClaimDueJobs(_ context.Context, now time.Time, maxAttempts, limit int) ([]*Job, error) {
	if r.claimErr != nil {
		return nil, r.claimErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*Job
	for _, j := range r.jobs {
		if (j.Status == JobStatusPending || j.Status == JobStatusFailed) &&
			!j.NextAttemptAt.After(now) && j.Attempts < maxAttempts {
			due = append(due, j)
		}
	}
	slices.SortStableFunc(due, func(a, b *Job) int { return a.NextAttemptAt.Compare(b.NextAttemptAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]*Job, 0, len(due))
	for _, j := range due {
		j.Status = JobStatusProcessing
		j.UpdatedAt = now
		cp := *j
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memRepository) update(id string, fn func(*Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.ID == id {
			fn(j)
			return nil
		}
	}
	return errors.New("job not found")
}

func (r *memRepository) MarkAsSent(_ context.Context, id string, sentAt time.Time) error {
	return r.update(id, func(j *Job) {
		j.Status = JobStatusSent
		j.LastError = nil
		j.SentAt = &sentAt
	})
}

func (r *memRepository) MarkForRetry(_ context.Context, id string, attempts int, lastErr string, next time.Time) error {
	return r.update(id, func(j *Job) {
		j.Status = JobStatusPending
		j.Attempts = attempts
		j.LastError = &lastErr
		j.NextAttemptAt = next
	})
}

func (r *memRepository) MarkAsFailed(_ context.Context, id string, attempts int, lastErr string) error {
	return r.update(id, func(j *Job) {
		j.Status = JobStatusFailed
		j.Attempts = attempts
		j.LastError = &lastErr
	})
}

func (r *memRepository) RecoverStuckJobs(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stuckAt = append(r.stuckAt, before)
	var n int64
	for _, j := range r.jobs {
		if j.Status == JobStatusProcessing && j.UpdatedAt.Before(before) {
			j.Status = JobStatusPending
			n++
		}
	}
	return n, nil
}

func (r *memRepository) GetQueueStats(context.Context) (*QueueStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &QueueStats{}
	for _, j := range r.jobs {
		switch j.Status {
		case JobStatusPending:
			stats.Pending++
		case JobStatusProcessing:
			stats.Processing++
		case JobStatusSent:
			stats.Sent++
		case JobStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (r *memRepository) ListJobs(_ context.Context, filter JobFilter) ([]*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Job, 0)
	for _, j := range r.jobs {
		if filter.OrgID != "" && j.OrgID != filter.OrgID {
			continue
		}
		if filter.Status != nil && j.Status != *filter.Status {
			continue
		}
		cp := *j
		out = append(out, &cp)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// fakeSender records deliveries and fails for URLs listed in failFor.
type fakeSender struct {
	mu       sync.Mutex
	typ      domain.ChannelType
	failFor  map[string]error
	messages []Message
}

func newFakeSender(typ domain.ChannelType) *fakeSender {
	return &fakeSender{typ: typ, failFor: make(map[string]error)}
}

func (s *fakeSender) Type() domain.ChannelType { return s.typ }

func (s *fakeSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	if err, ok := s.failFor[msg.WebhookURL]; ok {
		return err
	}
	return nil
}

func (s *fakeSender) sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// fakeRecorder captures run records.
type fakeRecorder struct {
	mu   sync.Mutex
	runs []any
}

func (r *fakeRecorder) Record(_ context.Context, _ string, summary any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, summary)
	return nil
}

func (r *fakeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
