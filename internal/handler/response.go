package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/nimblepay/webhook-service/internal/logging"
)

// APIResponse is the envelope shared by every endpoint. EventID is set once
// the pipeline has identified the event; RequestID correlates with
// server-side logs. Raw payloads, signatures and secrets are never echoed.
type APIResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	EventID   string    `json:"event_id,omitempty"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func RespondJSON(w http.ResponseWriter, r *http.Request, status int, resp APIResponse) {
	resp.RequestID = logging.RequestIDFromContext(r.Context())
	resp.Timestamp = time.Now().UTC()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func RespondSuccess(w http.ResponseWriter, r *http.Request, status int, message, eventID string) {
	RespondJSON(w, r, status, APIResponse{Success: true, Message: message, EventID: eventID})
}

func RespondData(w http.ResponseWriter, r *http.Request, status int, data any) {
	RespondJSON(w, r, status, APIResponse{Success: true, Data: data})
}

func RespondAppError(w http.ResponseWriter, r *http.Request, appErr *AppError, eventID string) {
	RespondJSON(w, r, appErr.Status, APIResponse{
		Success: false,
		EventID: eventID,
		Error:   &APIError{Code: appErr.Code, Message: appErr.Message},
	})
}
