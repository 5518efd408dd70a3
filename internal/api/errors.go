package api

import (
	"errors"
	"net/http"

	"github.com/benmeehan/kitchen-simulator/internal/emitter"
	"github.com/benmeehan/kitchen-simulator/internal/scheduler"
	"github.com/benmeehan/kitchen-simulator/internal/services"
	"github.com/goccy/go-json"
)

// errorResponse is the body of every failed request. Alert carries the short
// message a user-facing client shows for failed manual sends.
type errorResponse struct {
	Error      string `json:"error"`
	Alert      string `json:"alert,omitempty"`
	StatusCode int    `json:"status_code,omitempty"` // Remote status of a failed HTTP delivery
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var (
		payloadErr   *emitter.PayloadSyntaxError
		transportErr *emitter.TransportError
	)

	switch {
	case errors.Is(err, services.ErrUnknownEmitter):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, emitter.ErrInvalidField):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.As(err, &payloadErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: err.Error(),
			Alert: "Invalid JSON payload",
		})
	case errors.As(err, &transportErr):
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error:      err.Error(),
			Alert:      "Failed to send data: " + transportErr.Err.Error(),
			StatusCode: transportErr.StatusCode(),
		})
	case errors.Is(err, emitter.ErrEmitterIdle):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error: err.Error(),
			Alert: "Start the emitter before sending",
		})
	case errors.Is(err, services.ErrPanelNotMounted), errors.Is(err, scheduler.ErrSchedulerClosed):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}
