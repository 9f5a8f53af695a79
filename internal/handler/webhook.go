package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/nimblepay/webhook-service/internal/logging"
	"github.com/nimblepay/webhook-service/internal/service"
)

const (
	signatureHeader = "X-Webhook-Signature"
	maxBodyBytes    = 1 << 20
)

type pipeline interface {
	Process(ctx context.Context, body []byte, sig string) service.Outcome
}

// WebhookHandler is the single inbound POST boundary. It hands raw bytes
// and the signature header to the pipeline and translates the outcome to
// the provider's retry contract: 200 stops redelivery, 500 invites it.
type WebhookHandler struct {
	pipeline pipeline
}

func NewWebhookHandler(p pipeline) *WebhookHandler {
	return &WebhookHandler{pipeline: p}
}

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		log.Error("failed to read webhook body", "error", err)
		RespondAppError(w, r, ErrInvalidRequest, "")
		return
	}

	// The provider's retry contract needs a definitive answer for every
	// delivery, so a client disconnect must not abort processing mid-way
	// and strand an admitted record in pending. Request-scoped values
	// (logger, request id) survive; only cancellation is dropped.
	ctx := context.WithoutCancel(r.Context())

	out := h.pipeline.Process(ctx, body, r.Header.Get(signatureHeader))

	switch out.Disposition {
	case service.DispositionProcessed:
		RespondSuccess(w, r, http.StatusOK, "processed", out.EventID)
	case service.DispositionDuplicate:
		RespondSuccess(w, r, http.StatusOK, "duplicate", out.EventID)
	case service.DispositionAcknowledged:
		RespondSuccess(w, r, http.StatusOK, "acknowledged", out.EventID)
	case service.DispositionRejectedSignature:
		RespondAppError(w, r, ErrInvalidSignature, "")
	case service.DispositionRejectedPayload, service.DispositionRejectedFields:
		RespondAppError(w, r, ErrInvalidPayload, out.EventID)
	case service.DispositionRetry:
		RespondAppError(w, r, ErrRetryable, out.EventID)
	default:
		log.Error("unhandled pipeline disposition", "disposition", out.Disposition)
		RespondAppError(w, r, ErrInternalError, out.EventID)
	}
}
