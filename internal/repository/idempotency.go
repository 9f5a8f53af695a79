package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nimblepay/webhook-service/internal/domain"
)

const webhookEventColumns = `event_id, event_type, account_id, payload, signature, status,
	attempts, last_error, related_subscription_id, related_payment_id, created_at, updated_at`

// IdempotencyRepository is the durable source of truth for "has this event
// already taken effect". All mutation goes through its atomic operations;
// no caller reads-then-writes a record, and nothing caches its answers in
// process (a cache would go stale across server instances).
type IdempotencyRepository struct {
	db *sql.DB
}

func NewIdempotencyRepository(db *sql.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// CheckProcessed looks up the record for eventID. Returns nil when the
// event has never been admitted.
func (r *IdempotencyRepository) CheckProcessed(ctx context.Context, eventID string) (*domain.IdempotencyRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+webhookEventColumns+` FROM webhook_events WHERE event_id = $1`,
		eventID,
	)
	rec, err := scanIdempotencyRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("CheckProcessed: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return rec, nil
}

// RecordEvent attempts to claim eventID with a single atomic insert. The
// unique constraint on event_id is the concurrency linchpin: of two
// simultaneous deliveries exactly one insert lands, the loser gets
// admitted=false with a nil error and short-circuits to a duplicate ack.
func (r *IdempotencyRepository) RecordEvent(ctx context.Context, eventID, eventType, accountID string, payload json.RawMessage, sig string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO webhook_events (event_id, event_type, account_id, payload, signature, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 1, now(), now())
		ON CONFLICT (event_id) DO NOTHING`,
		eventID, eventType, accountID, payload, sig, domain.EventStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("RecordEvent: %w: %w", domain.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("RecordEvent: rows affected: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return n == 1, nil
}

// MarkProcessed finalizes a non-terminal record as processed, attaching the
// entity ids the handler touched. Idempotent: a second call finds a
// terminal row and returns updated=false.
func (r *IdempotencyRepository) MarkProcessed(ctx context.Context, eventID string, subscriptionID, paymentID *string) (bool, error) {
	return r.finalize(ctx, "MarkProcessed",
		`UPDATE webhook_events
		SET status = $1, related_subscription_id = COALESCE($2, related_subscription_id),
			related_payment_id = COALESCE($3, related_payment_id),
			last_error = NULL, attempts = attempts + 1, updated_at = now()
		WHERE event_id = $4 AND status IN ($5, $6)`,
		domain.EventStatusProcessed, subscriptionID, paymentID, eventID,
		domain.EventStatusPending, domain.EventStatusProcessing,
	)
}

// MarkFailed finalizes a non-terminal record as failed, keeping the error
// for operators and the replay endpoint.
func (r *IdempotencyRepository) MarkFailed(ctx context.Context, eventID, errMsg string) (bool, error) {
	return r.finalize(ctx, "MarkFailed",
		`UPDATE webhook_events
		SET status = $1, last_error = $2, attempts = attempts + 1, updated_at = now()
		WHERE event_id = $3 AND status IN ($4, $5)`,
		domain.EventStatusFailed, errMsg, eventID,
		domain.EventStatusPending, domain.EventStatusProcessing,
	)
}

// MarkSkipped finalizes a non-terminal record as skipped: the event was
// admitted but deliberately not acted on (no route, disabled route, or the
// handler declined). Leaving such records non-terminal would make every
// redelivery re-route them.
func (r *IdempotencyRepository) MarkSkipped(ctx context.Context, eventID, reason string) (bool, error) {
	return r.finalize(ctx, "MarkSkipped",
		`UPDATE webhook_events
		SET status = $1, last_error = $2, attempts = attempts + 1, updated_at = now()
		WHERE event_id = $3 AND status IN ($4, $5)`,
		domain.EventStatusSkipped, reason, eventID,
		domain.EventStatusPending, domain.EventStatusProcessing,
	)
}

func (r *IdempotencyRepository) finalize(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: rows affected: %w: %w", op, domain.ErrStoreUnavailable, err)
	}
	return n == 1, nil
}

// ListFailed returns the most recent failed records for the admin surface.
func (r *IdempotencyRepository) ListFailed(ctx context.Context, limit int) ([]domain.IdempotencyRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+webhookEventColumns+` FROM webhook_events
		WHERE status = $1 ORDER BY updated_at DESC LIMIT $2`,
		domain.EventStatusFailed, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListFailed: %w: %w", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var records []domain.IdempotencyRecord
	for rows.Next() {
		rec, err := scanIdempotencyRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ListFailed: scan: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListFailed: rows: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return records, nil
}

// RequeueFailed transitions a failed record back to processing so a replay
// can finalize it again. Returns the stored record.
func (r *IdempotencyRepository) RequeueFailed(ctx context.Context, eventID string) (*domain.IdempotencyRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE webhook_events SET status = $1, updated_at = now()
		WHERE event_id = $2 AND status = $3
		RETURNING `+webhookEventColumns,
		domain.EventStatusProcessing, eventID, domain.EventStatusFailed,
	)
	rec, err := scanIdempotencyRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("RequeueFailed: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return rec, nil
}

// DeleteOlderThan is the retention sweep. Correctness never depends on it:
// records inside the provider's redelivery window are never old enough to
// qualify.
func (r *IdempotencyRepository) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM webhook_events WHERE created_at < now() - $1::interval`,
		fmt.Sprintf("%d seconds", int64(age.Seconds())),
	)
	if err != nil {
		return 0, fmt.Errorf("DeleteOlderThan: %w: %w", domain.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteOlderThan: rows affected: %w", err)
	}
	return n, nil
}

func scanIdempotencyRecord(s scanner) (*domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	err := s.Scan(
		&rec.EventID, &rec.EventType, &rec.AccountID, &rec.Payload, &rec.Signature,
		&rec.Status, &rec.Attempts, &rec.LastError,
		&rec.RelatedSubscriptionID, &rec.RelatedPaymentID,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
