package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pauljones0/x-parser/internal/models"
	"github.com/pauljones0/x-parser/internal/monitor"
	"github.com/pauljones0/x-parser/internal/processor"
	"github.com/pauljones0/x-parser/internal/thread"
	"github.com/pauljones0/x-parser/internal/validator"
	"github.com/pauljones0/x-parser/internal/xclient"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeErr maps known errors to a status code. Anything unknown is logged
// and reported as a 500 without details.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "path", r.URL.Path, "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, status, "internal server error")
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Fields: validator.FailedFields(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, processor.ErrInvalidInput),
		errors.Is(err, thread.ErrInvalidBounds),
		errors.Is(err, thread.ErrMissingRoot),
		validator.FailedFields(err) != nil:
		return http.StatusBadRequest
	case errors.Is(err, xclient.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrTweetNotFound),
		errors.Is(err, xclient.ErrTweetUnavailable):
		return http.StatusNotFound
	case errors.Is(err, models.ErrTweetExists),
		errors.Is(err, monitor.ErrRunInProgress),
		errors.Is(err, monitor.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, processor.ErrAIDisabled),
		errors.Is(err, xclient.ErrNoCredentials):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}
