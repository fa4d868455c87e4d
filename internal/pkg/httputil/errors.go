package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/bissquit/alert-garden/internal/pkg/ctxlog"
)

// ErrorMapping turns a sentinel error into a status code. An empty Message exposes err.Error().
type ErrorMapping struct {
	Error   error
	Status  int
	Message string
}

// HandleError writes the first mapping matching err. Unmapped errors are logged and become 500.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	if m, ok := lookup(err, mappings); ok {
		msg := m.Message
		if msg == "" {
			msg = err.Error()
		}
		Error(w, m.Status, msg)
		return
	}

	ctxlog.FromContext(ctx).Error("unhandled error", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}

func lookup(err error, mappings []ErrorMapping) (ErrorMapping, bool) {
	for _, m := range mappings {
		if errors.Is(err, m.Error) {
			return m, true
		}
	}
	return ErrorMapping{}, false
}
