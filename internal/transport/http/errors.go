package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/juju/errors"

	"learning-platform/internal/app"
)

type errorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// statusOf maps the error taxonomy onto HTTP status codes.
func statusOf(err error) int {
	var fields app.FieldErrors
	switch {
	case errors.As(err, &fields):
		return http.StatusBadRequest
	case errors.Is(err, errors.Unauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errors.Forbidden):
		return http.StatusForbidden
	case errors.Is(err, errors.NotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.NotValid), errors.Is(err, errors.BadRequest):
		return http.StatusBadRequest
	case errors.Is(err, errors.NotSupported):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := statusOf(err)
	body := errorBody{Error: err.Error()}
	var fields app.FieldErrors
	if errors.As(err, &fields) {
		body = errorBody{Error: "validation failed", Details: fields}
	}
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", errors.ErrorStack(err)),
		)
		body = errorBody{Error: "internal server error"}
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

const maxJSONBody = 1 << 20

// decodeJSON reads a bounded JSON body; malformed input is a BadRequest.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return errors.BadRequestf("invalid JSON body")
	}
	return nil
}
