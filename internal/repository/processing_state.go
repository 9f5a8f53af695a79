package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nimblepay/webhook-service/internal/domain"
)

// ProcessingStateRepository persists the per-attempt audit trail. Callers
// treat write failures as non-fatal; the idempotency record carries
// correctness, this table carries crash visibility and replay forensics.
type ProcessingStateRepository struct {
	db *sql.DB
}

func NewProcessingStateRepository(db *sql.DB) *ProcessingStateRepository {
	return &ProcessingStateRepository{db: db}
}

func (r *ProcessingStateRepository) Create(ctx context.Context, state *domain.ProcessingState) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO processing_states (id, event_id, event_type, status, started_at, retry_count, max_retries)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		state.ID, state.EventID, state.EventType, state.Status,
		state.StartedAt, state.RetryCount, state.MaxRetries,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *ProcessingStateRepository) Finalize(ctx context.Context, state *domain.ProcessingState) error {
	results, err := json.Marshal(state.HandlerResults)
	if err != nil {
		return fmt.Errorf("Finalize: marshal results: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE processing_states
		SET status = $1, completed_at = $2, handler_results = $3, error = $4
		WHERE id = $5 AND completed_at IS NULL`,
		state.Status, state.CompletedAt, results, state.Error, state.ID,
	)
	if err != nil {
		return fmt.Errorf("Finalize: %w", err)
	}
	return nil
}

// GetByEventID returns the most recent attempt trace for an event.
func (r *ProcessingStateRepository) GetByEventID(ctx context.Context, eventID string) (*domain.ProcessingState, error) {
	var (
		state   domain.ProcessingState
		results []byte
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, event_id, event_type, status, started_at, completed_at, retry_count, max_retries, handler_results, error
		FROM processing_states WHERE event_id = $1
		ORDER BY started_at DESC LIMIT 1`,
		eventID,
	).Scan(
		&state.ID, &state.EventID, &state.EventType, &state.Status,
		&state.StartedAt, &state.CompletedAt, &state.RetryCount, &state.MaxRetries,
		&results, &state.Error,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetByEventID: %w", err)
	}

	if len(results) > 0 {
		if err := json.Unmarshal(results, &state.HandlerResults); err != nil {
			return nil, fmt.Errorf("GetByEventID: unmarshal results: %w", err)
		}
	}
	return &state, nil
}
