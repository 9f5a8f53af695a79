package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nimblepay/webhook-service/internal/domain"
	"github.com/nimblepay/webhook-service/internal/logging"
	"github.com/nimblepay/webhook-service/internal/service"
)

type adminStore interface {
	ListFailed(ctx context.Context, limit int) ([]domain.IdempotencyRecord, error)
	RequeueFailed(ctx context.Context, eventID string) (*domain.IdempotencyRecord, error)
}

type replayer interface {
	Replay(ctx context.Context, rec *domain.IdempotencyRecord) service.Outcome
}

// AdminHandler serves the operator surface: inspecting failed events and
// replaying them through the pipeline. Signature verification is skipped on
// replay; the stored payload was verified at first receipt.
type AdminHandler struct {
	store    adminStore
	pipeline replayer
}

func NewAdminHandler(store adminStore, p replayer) *AdminHandler {
	return &AdminHandler{store: store, pipeline: p}
}

type failedEventView struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	AccountID string    `json:"account_id"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (h *AdminHandler) ListFailed(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	records, err := h.store.ListFailed(r.Context(), limit)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list failed events", "error", err)
		RespondAppError(w, r, ErrInternalError, "")
		return
	}

	views := make([]failedEventView, 0, len(records))
	for _, rec := range records {
		v := failedEventView{
			EventID:   rec.EventID,
			EventType: rec.EventType,
			AccountID: rec.AccountID,
			Attempts:  rec.Attempts,
			UpdatedAt: rec.UpdatedAt,
		}
		if rec.LastError != nil {
			v.LastError = *rec.LastError
		}
		views = append(views, v)
	}

	RespondData(w, r, http.StatusOK, views)
}

func (h *AdminHandler) ReplayFailed(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	eventID := r.PathValue("event_id")

	// Same as the live path: once the requeue flips the record to
	// processing, an operator disconnect must not abort the replay and
	// strand it there.
	ctx := context.WithoutCancel(r.Context())

	rec, err := h.store.RequeueFailed(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			RespondAppError(w, r, ErrResourceNotFound, eventID)
			return
		}
		log.Error("failed to requeue event", "event_id", eventID, "error", err)
		RespondAppError(w, r, ErrInternalError, eventID)
		return
	}

	out := h.pipeline.Replay(ctx, rec)
	switch out.Disposition {
	case service.DispositionProcessed:
		RespondSuccess(w, r, http.StatusOK, "replayed", out.EventID)
	case service.DispositionAcknowledged:
		RespondSuccess(w, r, http.StatusOK, "replayed without effect", out.EventID)
	case service.DispositionRejectedPayload, service.DispositionRejectedFields:
		RespondAppError(w, r, ErrInvalidPayload, out.EventID)
	default:
		RespondAppError(w, r, ErrRetryable, out.EventID)
	}
}
