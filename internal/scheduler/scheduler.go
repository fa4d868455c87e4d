// Package scheduler runs cron jobs in-process on fixed intervals.
// The HTTP cron endpoints stay the primary trigger; the scheduler is for deployments without an external cron.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/alert-garden/internal/pkg/ctxlog"
	"github.com/bissquit/alert-garden/internal/pkg/lock"
)

// Job is one periodically invoked function.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs each job on its own ticker. Invocations of one job never overlap.
type Scheduler struct {
	jobs   []Job
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a new scheduler for jobs.
func New(jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs:   jobs,
		stopCh: make(chan struct{}),
	}
}

// Start launches one goroutine per job. Jobs with a non-positive interval are skipped.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		if job.Interval <= 0 {
			slog.Warn("scheduler job disabled", "job", job.Name)
			continue
		}
		slog.Info("starting scheduler job", "job", job.Name, "interval", job.Interval)

		s.wg.Add(1)
		go s.run(ctx, job)
	}
}

// Stop signals all jobs to exit and waits for running invocations to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	slog.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.invoke(ctx, job)
		}
	}
}

func (s *Scheduler) invoke(ctx context.Context, job Job) {
	ctx = ctxlog.With(ctx, "job", job.Name)
	logger := ctxlog.FromContext(ctx)

	err := job.Run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, lock.ErrLocked):
		logger.Info("scheduler job skipped, lock held elsewhere")
	default:
		logger.Error("scheduler job failed", "error", err)
	}
}
