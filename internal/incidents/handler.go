package incidents

import (
	"encoding/json"
	"net/http"

	"github.com/bissquit/alert-garden/internal/domain"
	"github.com/bissquit/alert-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrIncidentNotFound, Status: http.StatusNotFound},
	{Error: ErrInvalidStatus, Status: http.StatusBadRequest, Message: "status must be one of open, investigating, resolved"},
	{Error: ErrStatusUnchanged, Status: http.StatusConflict},
	{Error: ErrStatusConflict, Status: http.StatusConflict},
	{Error: ErrOpenIncidentExists, Status: http.StatusConflict},
}

// Handler handles HTTP requests for the incidents module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterOperatorRoutes registers routes that require an operator token.
func (h *Handler) RegisterOperatorRoutes(r chi.Router) {
	r.Route("/incidents/{id}", func(r chi.Router) {
		r.Get("/", h.GetIncident)
		r.Get("/events", h.ListEvents)
		r.Post("/status", h.ChangeStatus)
	})
}

// ChangeStatusRequest is the body of POST /incidents/{id}/status.
type ChangeStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// GetIncident handles GET /incidents/{id}.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	incident, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// ListEvents handles GET /incidents/{id}/events.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.ListEvents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, events)
}

// ChangeStatus handles POST /incidents/{id}/status.
func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req ChangeStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.ChangeStatus(r.Context(), chi.URLParam(r, "id"), domain.IncidentStatus(req.Status), httputil.GetActor(r.Context()))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}
