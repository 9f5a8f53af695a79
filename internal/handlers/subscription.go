package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nimblepay/webhook-service/internal/domain"
)

type subscriptionRepo interface {
	UpsertActivated(ctx context.Context, providerID, accountID string, planID *string, activatedAt time.Time) (bool, error)
	RecordCharge(ctx context.Context, providerID, accountID string, paymentID *string, periodEnd *time.Time) (bool, error)
	MarkCancelled(ctx context.Context, providerID string, cancelledAt time.Time) (bool, error)
}

// SubscriptionHandler applies subscription lifecycle events. Events for the
// same subscription may arrive out of order (a charge before the
// activation); every method reads and converges current persisted state
// rather than assuming earlier events landed.
type SubscriptionHandler struct {
	subscriptions subscriptionRepo
	logger        *slog.Logger
}

func NewSubscriptionHandler(subscriptions subscriptionRepo, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions, logger: logger}
}

// Activated handles subscription.activated. The route requires id and
// status; any status other than "active" is declined, not failed, since
// the provider reuses this event type for intermediate states.
func (h *SubscriptionHandler) Activated(ctx context.Context, ev domain.ParsedEvent) domain.HandlerResult {
	providerID := ev.EntityString("id")
	if status := ev.EntityString("status"); status != "active" {
		return domain.Skipped(fmt.Sprintf("activation with status %q", status))
	}

	var planID *string
	if p := ev.EntityString("plan_id"); p != "" {
		planID = &p
	}

	updated, err := h.subscriptions.UpsertActivated(ctx, providerID, ev.AccountID, planID, time.Now().UTC())
	if err != nil {
		return domain.HandlerFailure(fmt.Errorf("activate subscription %s: %w", providerID, err), true)
	}
	if !updated {
		h.logger.InfoContext(ctx, "activation already applied or subscription cancelled", "subscription_id", providerID)
		return domain.Skipped("subscription not activatable")
	}

	return domain.HandlerResult{
		Success: true, Processed: true,
		Details: &domain.HandlerDetails{SubscriptionID: providerID, Action: "activated"},
	}
}

// Charged handles subscription.charged. payment_id is optional: older
// provider payloads omit it.
func (h *SubscriptionHandler) Charged(ctx context.Context, ev domain.ParsedEvent) domain.HandlerResult {
	providerID := ev.EntityString("id")

	var paymentID *string
	if p := ev.EntityString("payment_id"); p != "" {
		paymentID = &p
	}
	var periodEnd *time.Time
	if ts, ok := ev.EntityInt64("current_period_end"); ok && ts > 0 {
		end := time.Unix(ts, 0).UTC()
		periodEnd = &end
	}

	updated, err := h.subscriptions.RecordCharge(ctx, providerID, ev.AccountID, paymentID, periodEnd)
	if err != nil {
		return domain.HandlerFailure(fmt.Errorf("charge subscription %s: %w", providerID, err), true)
	}
	if !updated {
		return domain.Skipped("charge already recorded or subscription cancelled")
	}

	details := &domain.HandlerDetails{SubscriptionID: providerID, Action: "charged"}
	if paymentID != nil {
		details.PaymentID = *paymentID
	}
	return domain.HandlerResult{Success: true, Processed: true, Details: details}
}

// Cancelled handles subscription.cancelled.
func (h *SubscriptionHandler) Cancelled(ctx context.Context, ev domain.ParsedEvent) domain.HandlerResult {
	providerID := ev.EntityString("id")

	updated, err := h.subscriptions.MarkCancelled(ctx, providerID, time.Now().UTC())
	if err != nil {
		return domain.HandlerFailure(fmt.Errorf("cancel subscription %s: %w", providerID, err), true)
	}
	if !updated {
		return domain.Skipped("subscription already cancelled or unknown")
	}

	return domain.HandlerResult{
		Success: true, Processed: true,
		Details: &domain.HandlerDetails{SubscriptionID: providerID, Action: "cancelled"},
	}
}
