package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nimblepay/webhook-service/internal/domain"
)

const subscriptionColumns = `id, provider_id, account_id, plan_id, status, current_period_end,
	charge_count, last_payment_id, activated_at, cancelled_at, created_at, updated_at`

type SubscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) GetByProviderID(ctx context.Context, providerID string) (*domain.Subscription, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE provider_id = $1`,
		providerID,
	)
	s, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetByProviderID: %w", err)
	}
	return s, nil
}

// UpsertActivated records activation. A cancelled subscription is not
// resurrected by a late-arriving activation (updated=false).
func (r *SubscriptionRepository) UpsertActivated(ctx context.Context, providerID, accountID string, planID *string, activatedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, provider_id, account_id, plan_id, status, activated_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (provider_id) DO UPDATE
		SET status = EXCLUDED.status, plan_id = COALESCE(EXCLUDED.plan_id, subscriptions.plan_id),
			activated_at = COALESCE(subscriptions.activated_at, EXCLUDED.activated_at), updated_at = now()
		WHERE subscriptions.status NOT IN ($7, $8)`,
		uuid.New(), providerID, accountID, planID,
		domain.SubscriptionStatusActive, activatedAt,
		domain.SubscriptionStatusCancelled, domain.SubscriptionStatusActive,
	)
	if err != nil {
		return false, fmt.Errorf("UpsertActivated: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("UpsertActivated: rows affected: %w", err)
	}
	return n == 1, nil
}

// RecordCharge bumps the charge counter and remembers the charging payment.
// Inserts the row if the charge outran the activation event; handlers read
// current persisted state instead of assuming prior events landed.
func (r *SubscriptionRepository) RecordCharge(ctx context.Context, providerID, accountID string, paymentID *string, periodEnd *time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, provider_id, account_id, status, charge_count, last_payment_id, current_period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, $5, $6, now(), now())
		ON CONFLICT (provider_id) DO UPDATE
		SET charge_count = subscriptions.charge_count + 1,
			last_payment_id = COALESCE(EXCLUDED.last_payment_id, subscriptions.last_payment_id),
			current_period_end = COALESCE(EXCLUDED.current_period_end, subscriptions.current_period_end),
			updated_at = now()
		WHERE subscriptions.status != $7
			AND subscriptions.last_payment_id IS DISTINCT FROM EXCLUDED.last_payment_id`,
		uuid.New(), providerID, accountID, domain.SubscriptionStatusCreated,
		paymentID, periodEnd,
		domain.SubscriptionStatusCancelled,
	)
	if err != nil {
		return false, fmt.Errorf("RecordCharge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("RecordCharge: rows affected: %w", err)
	}
	return n == 1, nil
}

// MarkCancelled is idempotent: only a not-yet-cancelled row transitions.
func (r *SubscriptionRepository) MarkCancelled(ctx context.Context, providerID string, cancelledAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE subscriptions SET status = $1, cancelled_at = $2, updated_at = now()
		WHERE provider_id = $3 AND status != $1`,
		domain.SubscriptionStatusCancelled, cancelledAt, providerID,
	)
	if err != nil {
		return false, fmt.Errorf("MarkCancelled: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("MarkCancelled: rows affected: %w", err)
	}
	return n == 1, nil
}

func scanSubscription(s scanner) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := s.Scan(
		&sub.ID, &sub.ProviderID, &sub.AccountID, &sub.PlanID, &sub.Status,
		&sub.CurrentPeriodEnd, &sub.ChargeCount, &sub.LastPaymentID,
		&sub.ActivatedAt, &sub.CancelledAt, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
