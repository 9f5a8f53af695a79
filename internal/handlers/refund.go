package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nimblepay/webhook-service/internal/domain"
)

// RefundHandler applies refund.processed to the refunded payment's row.
type RefundHandler struct {
	payments paymentRepo
	logger   *slog.Logger
}

func NewRefundHandler(payments paymentRepo, logger *slog.Logger) *RefundHandler {
	return &RefundHandler{payments: payments, logger: logger}
}

// Processed handles refund.processed. The route requires payment_id; the
// entity id itself is the refund's id.
func (h *RefundHandler) Processed(ctx context.Context, ev domain.ParsedEvent) domain.HandlerResult {
	refundID := ev.EntityString("id")
	paymentID := ev.EntityString("payment_id")

	updated, err := h.payments.MarkRefunded(ctx, paymentID, time.Now().UTC())
	if err != nil {
		return domain.HandlerFailure(fmt.Errorf("refund %s for payment %s: %w", refundID, paymentID, err), true)
	}
	if !updated {
		// Either already refunded, or the capture event has not arrived
		// yet. The latter resolves itself: the provider will redeliver
		// nothing, but the capture handler leaves captured state that a
		// replayed refund can then apply, so decline rather than fail.
		h.logger.InfoContext(ctx, "refund not applicable", "refund_id", refundID, "payment_id", paymentID)
		return domain.Skipped("payment not in refundable state")
	}

	return domain.HandlerResult{
		Success: true, Processed: true,
		Details: &domain.HandlerDetails{PaymentID: paymentID, Action: "refunded", Metadata: map[string]string{"refund_id": refundID}},
	}
}
