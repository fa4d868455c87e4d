package alerting

import (
	"context"
	"net/http"

	"github.com/bissquit/alert-garden/internal/pkg/httputil"
	"github.com/bissquit/alert-garden/internal/pkg/lock"
	"github.com/go-chi/chi/v5"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: lock.ErrLocked, Status: http.StatusConflict, Message: "evaluation already in progress"},
}

// Runner runs one evaluation.
type Runner interface {
	Run(ctx context.Context) (*Report, error)
}

// Handler handles HTTP requests for the alerting module.
type Handler struct {
	runner Runner
}

// NewHandler creates a new alerting handler.
func NewHandler(runner Runner) *Handler {
	return &Handler{runner: runner}
}

// RegisterCronRoutes registers routes guarded by the cron secret.
func (h *Handler) RegisterCronRoutes(r chi.Router) {
	r.Post("/cron/evaluate-alerts", h.EvaluateAlerts)
}

// EvaluateAlerts handles POST /cron/evaluate-alerts.
func (h *Handler) EvaluateAlerts(w http.ResponseWriter, r *http.Request) {
	report, err := h.runner.Run(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.JSON(w, http.StatusOK, report)
}
