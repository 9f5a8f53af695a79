// Package handlers holds the route handlers that apply webhook events to
// business state. Each handler is idempotent per event id: the pipeline may
// re-dispatch after an ambiguous timeout, and the guarded SQL in the
// repositories makes a redo converge instead of double-applying.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nimblepay/webhook-service/internal/domain"
)

type paymentRepo interface {
	UpsertCaptured(ctx context.Context, providerID, accountID string, amount int64, currency string, method *string, capturedAt time.Time) (bool, error)
	UpsertFailed(ctx context.Context, providerID, accountID string, amount int64, currency, reason string) (bool, error)
	MarkRefunded(ctx context.Context, providerID string, refundedAt time.Time) (bool, error)
}

type PaymentHandler struct {
	payments paymentRepo
	logger   *slog.Logger
}

func NewPaymentHandler(payments paymentRepo, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, logger: logger}
}

// Captured handles payment.captured. Amount and currency are route-required
// fields, so they are present by the time this runs.
func (h *PaymentHandler) Captured(ctx context.Context, ev domain.ParsedEvent) domain.HandlerResult {
	providerID := ev.EntityString("id")
	amount, ok := ev.EntityInt64("amount")
	if !ok || amount <= 0 {
		return domain.HandlerResult{Success: false, Error: fmt.Sprintf("payment %s: non-positive amount", providerID)}
	}

	var method *string
	if m := ev.EntityString("method"); m != "" {
		method = &m
	}

	updated, err := h.payments.UpsertCaptured(ctx, providerID, ev.AccountID, amount, ev.EntityString("currency"), method, time.Now().UTC())
	if err != nil {
		return domain.HandlerFailure(fmt.Errorf("capture payment %s: %w", providerID, err), true)
	}
	if !updated {
		// Row already captured or refunded; a redelivered capture is a no-op.
		h.logger.InfoContext(ctx, "capture already applied", "payment_id", providerID)
		return domain.Skipped("payment already captured")
	}

	return domain.HandlerResult{
		Success: true, Processed: true,
		Details: &domain.HandlerDetails{PaymentID: providerID, Action: "captured"},
	}
}

// Failed handles payment.failed.
func (h *PaymentHandler) Failed(ctx context.Context, ev domain.ParsedEvent) domain.HandlerResult {
	providerID := ev.EntityString("id")
	amount, _ := ev.EntityInt64("amount")
	reason := ev.EntityString("error_description")
	if reason == "" {
		reason = "provider_declined"
	}

	updated, err := h.payments.UpsertFailed(ctx, providerID, ev.AccountID, amount, ev.EntityString("currency"), reason)
	if err != nil {
		return domain.HandlerFailure(fmt.Errorf("fail payment %s: %w", providerID, err), true)
	}
	if !updated {
		return domain.Skipped("payment already in terminal state")
	}

	return domain.HandlerResult{
		Success: true, Processed: true,
		Details: &domain.HandlerDetails{PaymentID: providerID, Action: "failed", Metadata: map[string]string{"reason": reason}},
	}
}
