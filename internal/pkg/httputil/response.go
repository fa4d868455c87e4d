// Package httputil holds the JSON envelopes, error mapping and middleware shared by all handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorBody struct {
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes v as is. Cron endpoints return their reports this way.
func JSON(w http.ResponseWriter, status int, v any) {
	write(w, status, v)
}

// Success wraps data in {"data": ...}.
func Success(w http.ResponseWriter, status int, data any) {
	write(w, status, map[string]any{"data": data})
}

// Error writes {"error": {"message": ...}}.
func Error(w http.ResponseWriter, status int, message string) {
	write(w, status, map[string]errorBody{"error": {Message: message}})
}

// ValidationError writes a 400 listing the failed fields when err comes from validator.
func ValidationError(w http.ResponseWriter, err error) {
	body := errorBody{Message: "validation error", Details: err.Error()}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		details := make([]FieldError, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			details = append(details, FieldError{Field: fe.Field(), Message: fe.Tag()})
		}
		body.Details = details
	}

	write(w, http.StatusBadRequest, map[string]errorBody{"error": body})
}

// Text writes a plain text body, used by the probes.
func Text(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(text)); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "status", status, "error", err)
	}
}
