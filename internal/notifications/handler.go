package notifications

import (
	"context"
	"net/http"
	"strconv"

	"github.com/bissquit/alert-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

const (
	defaultJobsLimit = 50
	maxJobsLimit     = 500
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrInvalidJobStatus, Status: http.StatusBadRequest, Message: "status must be one of pending, processing, sent, failed"},
}

// BatchRunner processes one batch of due jobs.
type BatchRunner interface {
	RunOnce(ctx context.Context) (*BatchResult, error)
}

// QueueReader exposes queue contents to operators.
type QueueReader interface {
	GetQueueStats(ctx context.Context) (*QueueStats, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*Job, error)
}

// Handler handles HTTP requests for the notifications module.
type Handler struct {
	runner BatchRunner
	queue  QueueReader
}

// NewHandler creates a new notifications handler.
func NewHandler(runner BatchRunner, queue QueueReader) *Handler {
	return &Handler{
		runner: runner,
		queue:  queue,
	}
}

// RegisterCronRoutes registers routes guarded by the cron secret.
func (h *Handler) RegisterCronRoutes(r chi.Router) {
	r.Post("/cron/process-notifications", h.ProcessNotifications)
}

// RegisterOperatorRoutes registers routes that require an operator token.
func (h *Handler) RegisterOperatorRoutes(r chi.Router) {
	r.Get("/notifications/jobs", h.ListJobs)
	r.Get("/notifications/stats", h.GetQueueStats)
}

// ProcessNotifications handles POST /cron/process-notifications.
func (h *Handler) ProcessNotifications(w http.ResponseWriter, r *http.Request) {
	result, err := h.runner.RunOnce(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// ListJobs handles GET /notifications/jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter := JobFilter{
		OrgID: r.URL.Query().Get("org_id"),
		Limit: defaultJobsLimit,
	}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := JobStatus(raw)
		if !status.IsValid() {
			httputil.HandleError(r.Context(), w, ErrInvalidJobStatus, errorMappings)
			return
		}
		filter.Status = &status
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxJobsLimit {
			httputil.Error(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		filter.Limit = limit
	}

	jobs, err := h.queue.ListJobs(r.Context(), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, jobs)
}

// GetQueueStats handles GET /notifications/stats.
func (h *Handler) GetQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.GetQueueStats(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, stats)
}
