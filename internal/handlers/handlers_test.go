package handlers

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimblepay/webhook-service/internal/domain"
)

type fakePaymentRepo struct {
	captured bool
	failed   bool
	refunded bool
	updated  bool
	err      error

	lastProviderID string
	lastAmount     int64
}

func (f *fakePaymentRepo) UpsertCaptured(_ context.Context, providerID, _ string, amount int64, _ string, _ *string, _ time.Time) (bool, error) {
	f.captured = true
	f.lastProviderID = providerID
	f.lastAmount = amount
	return f.updated, f.err
}

func (f *fakePaymentRepo) UpsertFailed(_ context.Context, providerID, _ string, amount int64, _, _ string) (bool, error) {
	f.failed = true
	f.lastProviderID = providerID
	f.lastAmount = amount
	return f.updated, f.err
}

func (f *fakePaymentRepo) MarkRefunded(_ context.Context, providerID string, _ time.Time) (bool, error) {
	f.refunded = true
	f.lastProviderID = providerID
	return f.updated, f.err
}

type fakeSubscriptionRepo struct {
	updated bool
	err     error

	activated     bool
	charged       bool
	cancelled     bool
	lastPaymentID *string
}

func (f *fakeSubscriptionRepo) UpsertActivated(_ context.Context, _, _ string, _ *string, _ time.Time) (bool, error) {
	f.activated = true
	return f.updated, f.err
}

func (f *fakeSubscriptionRepo) RecordCharge(_ context.Context, _, _ string, paymentID *string, _ *time.Time) (bool, error) {
	f.charged = true
	f.lastPaymentID = paymentID
	return f.updated, f.err
}

func (f *fakeSubscriptionRepo) MarkCancelled(_ context.Context, _ string, _ time.Time) (bool, error) {
	f.cancelled = true
	return f.updated, f.err
}

func paymentEvent(entity map[string]any) domain.ParsedEvent {
	return domain.ParsedEvent{
		EventID:   "evt_1",
		EventType: "payment.captured",
		AccountID: "acc_1",
		Entity:    entity,
	}
}

func TestPaymentCaptured(t *testing.T) {
	repo := &fakePaymentRepo{updated: true}
	h := NewPaymentHandler(repo, slog.Default())

	res := h.Captured(context.Background(), paymentEvent(map[string]any{
		"id": "pay_1", "amount": float64(50000), "currency": "INR", "status": "captured",
	}))

	assert.True(t, res.Success)
	assert.True(t, res.Processed)
	require.NotNil(t, res.Details)
	assert.Equal(t, "pay_1", res.Details.PaymentID)
	assert.Equal(t, "pay_1", repo.lastProviderID)
	assert.Equal(t, int64(50000), repo.lastAmount)
}

func TestPaymentCaptured_ReplayIsSkip(t *testing.T) {
	repo := &fakePaymentRepo{updated: false}
	h := NewPaymentHandler(repo, slog.Default())

	res := h.Captured(context.Background(), paymentEvent(map[string]any{
		"id": "pay_1", "amount": float64(50000), "currency": "INR",
	}))

	assert.True(t, res.Success)
	assert.False(t, res.Processed, "already-applied capture must decline, not re-apply")
}

func TestPaymentCaptured_BadAmount(t *testing.T) {
	repo := &fakePaymentRepo{updated: true}
	h := NewPaymentHandler(repo, slog.Default())

	res := h.Captured(context.Background(), paymentEvent(map[string]any{
		"id": "pay_1", "amount": float64(-5), "currency": "INR",
	}))

	assert.False(t, res.Success)
	assert.False(t, repo.captured, "repo must not be touched on invalid amount")
}

func TestPaymentCaptured_RepoErrorIsRetryable(t *testing.T) {
	repo := &fakePaymentRepo{err: errors.New("connection refused")}
	h := NewPaymentHandler(repo, slog.Default())

	res := h.Captured(context.Background(), paymentEvent(map[string]any{
		"id": "pay_1", "amount": float64(100), "currency": "INR",
	}))

	assert.False(t, res.Success)
	assert.True(t, res.Retryable)
	assert.Contains(t, res.Error, "pay_1")
}

func TestPaymentFailed_DefaultsReason(t *testing.T) {
	repo := &fakePaymentRepo{updated: true}
	h := NewPaymentHandler(repo, slog.Default())

	res := h.Failed(context.Background(), paymentEvent(map[string]any{
		"id": "pay_2", "amount": float64(100), "currency": "INR",
	}))

	assert.True(t, res.Processed)
	require.NotNil(t, res.Details)
	assert.Equal(t, "provider_declined", res.Details.Metadata["reason"])
}

func subscriptionEvent(entity map[string]any) domain.ParsedEvent {
	return domain.ParsedEvent{
		EventID:   "evt_2",
		EventType: "subscription.activated",
		AccountID: "acc_1",
		Entity:    entity,
	}
}

func TestSubscriptionActivated(t *testing.T) {
	tests := []struct {
		name          string
		entity        map[string]any
		updated       bool
		wantProcessed bool
	}{
		{
			name:          "active status applies",
			entity:        map[string]any{"id": "sub_1", "status": "active"},
			updated:       true,
			wantProcessed: true,
		},
		{
			name:   "non-active status declines",
			entity: map[string]any{"id": "sub_1", "status": "authenticated"},
		},
		{
			name:   "cancelled subscription not resurrected",
			entity: map[string]any{"id": "sub_1", "status": "active"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := &fakeSubscriptionRepo{updated: tc.updated}
			h := NewSubscriptionHandler(repo, slog.Default())

			res := h.Activated(context.Background(), subscriptionEvent(tc.entity))

			assert.True(t, res.Success)
			assert.Equal(t, tc.wantProcessed, res.Processed)
		})
	}
}

func TestSubscriptionCharged_OptionalPaymentID(t *testing.T) {
	repo := &fakeSubscriptionRepo{updated: true}
	h := NewSubscriptionHandler(repo, slog.Default())

	res := h.Charged(context.Background(), subscriptionEvent(map[string]any{"id": "sub_1"}))
	assert.True(t, res.Processed)
	assert.Nil(t, repo.lastPaymentID)

	res = h.Charged(context.Background(), subscriptionEvent(map[string]any{"id": "sub_1", "payment_id": "pay_9"}))
	assert.True(t, res.Processed)
	require.NotNil(t, repo.lastPaymentID)
	assert.Equal(t, "pay_9", *repo.lastPaymentID)
	assert.Equal(t, "pay_9", res.Details.PaymentID)
}

func TestSubscriptionCancelled_Idempotent(t *testing.T) {
	repo := &fakeSubscriptionRepo{updated: false}
	h := NewSubscriptionHandler(repo, slog.Default())

	res := h.Cancelled(context.Background(), subscriptionEvent(map[string]any{"id": "sub_1"}))
	assert.True(t, res.Success)
	assert.False(t, res.Processed)
	assert.True(t, repo.cancelled)
}

func TestRefundProcessed(t *testing.T) {
	repo := &fakePaymentRepo{updated: true}
	h := NewRefundHandler(repo, slog.Default())

	res := h.Processed(context.Background(), domain.ParsedEvent{
		EventID:   "evt_3",
		EventType: "refund.processed",
		AccountID: "acc_1",
		Entity:    map[string]any{"id": "rfnd_1", "payment_id": "pay_1", "amount": float64(100)},
	})

	assert.True(t, res.Processed)
	assert.Equal(t, "pay_1", repo.lastProviderID)
	assert.Equal(t, "rfnd_1", res.Details.Metadata["refund_id"])
}

func TestRefundProcessed_NotRefundable(t *testing.T) {
	repo := &fakePaymentRepo{updated: false}
	h := NewRefundHandler(repo, slog.Default())

	res := h.Processed(context.Background(), domain.ParsedEvent{
		EventID:   "evt_3",
		EventType: "refund.processed",
		AccountID: "acc_1",
		Entity:    map[string]any{"id": "rfnd_1", "payment_id": "pay_404"},
	})

	assert.True(t, res.Success)
	assert.False(t, res.Processed)
}
