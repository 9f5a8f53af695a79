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

const paymentColumns = `id, provider_id, account_id, amount, currency, status, method,
	failure_reason, captured_at, refunded_at, created_at, updated_at`

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) GetByProviderID(ctx context.Context, providerID string) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE provider_id = $1`,
		providerID,
	)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetByProviderID: %w", err)
	}
	return p, nil
}

// UpsertCaptured records a captured payment. Keyed on the provider's
// payment id so replays and out-of-order deliveries converge on one row;
// a row already refunded stays refunded (updated=false).
func (r *PaymentRepository) UpsertCaptured(ctx context.Context, providerID, accountID string, amount int64, currency string, method *string, capturedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (id, provider_id, account_id, amount, currency, status, method, captured_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (provider_id) DO UPDATE
		SET status = EXCLUDED.status, amount = EXCLUDED.amount, currency = EXCLUDED.currency,
			method = COALESCE(EXCLUDED.method, payments.method),
			captured_at = EXCLUDED.captured_at, updated_at = now()
		WHERE payments.status NOT IN ($9, $10)`,
		uuid.New(), providerID, accountID, amount, currency,
		domain.PaymentStatusCaptured, method, capturedAt,
		domain.PaymentStatusCaptured, domain.PaymentStatusRefunded,
	)
	if err != nil {
		return false, fmt.Errorf("UpsertCaptured: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("UpsertCaptured: rows affected: %w", err)
	}
	return n == 1, nil
}

// UpsertFailed records a failed payment attempt. A payment that already
// captured or refunded is left untouched.
func (r *PaymentRepository) UpsertFailed(ctx context.Context, providerID, accountID string, amount int64, currency, reason string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (id, provider_id, account_id, amount, currency, status, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (provider_id) DO UPDATE
		SET status = EXCLUDED.status, failure_reason = EXCLUDED.failure_reason, updated_at = now()
		WHERE payments.status = $8`,
		uuid.New(), providerID, accountID, amount, currency,
		domain.PaymentStatusFailed, reason,
		domain.PaymentStatusCreated,
	)
	if err != nil {
		return false, fmt.Errorf("UpsertFailed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("UpsertFailed: rows affected: %w", err)
	}
	return n == 1, nil
}

// MarkRefunded moves a captured payment to refunded. Idempotent: a second
// refund notification finds the row already refunded and reports
// updated=false.
func (r *PaymentRepository) MarkRefunded(ctx context.Context, providerID string, refundedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status = $1, refunded_at = $2, updated_at = now()
		WHERE provider_id = $3 AND status = $4`,
		domain.PaymentStatusRefunded, refundedAt, providerID, domain.PaymentStatusCaptured,
	)
	if err != nil {
		return false, fmt.Errorf("MarkRefunded: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("MarkRefunded: rows affected: %w", err)
	}
	return n == 1, nil
}

func scanPayment(s scanner) (*domain.Payment, error) {
	var p domain.Payment
	err := s.Scan(
		&p.ID, &p.ProviderID, &p.AccountID, &p.Amount, &p.Currency, &p.Status,
		&p.Method, &p.FailureReason, &p.CapturedAt, &p.RefundedAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
