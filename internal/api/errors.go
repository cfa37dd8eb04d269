package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/star/debriswatch/internal/catalog"
	"github.com/star/debriswatch/internal/forecast"
	"github.com/star/debriswatch/internal/httputil"
	"github.com/star/debriswatch/internal/orbit"
)

func badRequest(w http.ResponseWriter, msg string) {
	httputil.WriteError(w, http.StatusBadRequest, msg)
}

// writeError maps a core error to an HTTP status and JSON error body.
func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var nf *catalog.NotFoundError
	switch {
	case errors.As(err, &nf):
		httputil.WriteError(w, http.StatusNotFound, nf.Error())
	case errors.Is(err, catalog.ErrNotFound):
		httputil.WriteError(w, http.StatusNotFound, "satellite not found")
	case errors.Is(err, forecast.ErrValidation):
		badRequest(w, err.Error())
	case errors.Is(err, orbit.ErrPropagation):
		httputil.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httputil.WriteError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		h.logger.Error("request failed",
			"component", "api",
			"path", r.URL.Path,
			"request_id", httputil.RequestIDFromContext(r.Context()),
			"error", err,
		)
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
