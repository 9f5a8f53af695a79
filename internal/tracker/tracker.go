// Package tracker records the lifecycle of one processing attempt for
// audit and replay forensics. Persistence is best-effort: a failed write
// is logged and processing continues, because the idempotency record, not
// this trace, decides whether an event took effect.
package tracker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nimblepay/webhook-service/internal/domain"
)

type stateRepository interface {
	Create(ctx context.Context, state *domain.ProcessingState) error
	Finalize(ctx context.Context, state *domain.ProcessingState) error
}

type Tracker struct {
	states     stateRepository
	logger     *slog.Logger
	maxRetries int
}

// New builds a Tracker. states may be nil, in which case traces live only
// for the duration of the request.
func New(states stateRepository, logger *slog.Logger, maxRetries int) *Tracker {
	return &Tracker{states: states, logger: logger, maxRetries: maxRetries}
}

// Begin creates the pending state for one attempt and persists it for
// crash visibility.
func (t *Tracker) Begin(ctx context.Context, event domain.ParsedEvent) *domain.ProcessingState {
	state := &domain.ProcessingState{
		ID:         uuid.New(),
		EventID:    event.EventID,
		EventType:  event.EventType,
		Status:     domain.EventStatusPending,
		StartedAt:  time.Now().UTC(),
		MaxRetries: t.maxRetries,
	}

	if t.states != nil {
		if err := t.states.Create(ctx, state); err != nil {
			t.logger.Warn("failed to persist processing state", "event_id", event.EventID, "error", err)
		}
	}
	return state
}

// RecordHandlerExecution appends the handler's outcome and finalizes the
// state: success+processed is processed, success without effect is
// skipped, anything else is failed with the handler's error retained. A
// finalized state is never touched again.
func (t *Tracker) RecordHandlerExecution(ctx context.Context, state *domain.ProcessingState, startedAt time.Time, result domain.HandlerResult) {
	if state.Finalized() {
		t.logger.Error("attempt to mutate finalized processing state", "event_id", state.EventID)
		return
	}

	state.HandlerResults = append(state.HandlerResults, domain.HandlerExecution{
		EventType:  state.EventType,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
		Result:     result,
	})

	switch {
	case result.Success && result.Processed:
		state.Status = domain.EventStatusProcessed
	case result.Success:
		state.Status = domain.EventStatusSkipped
	default:
		state.Status = domain.EventStatusFailed
		errMsg := result.Error
		state.Error = &errMsg
	}

	t.complete(ctx, state)
}

// Fail finalizes the state without a handler execution, for failures that
// happen before or instead of the handler (routing rejections, timeouts).
func (t *Tracker) Fail(ctx context.Context, state *domain.ProcessingState, err error) {
	if state.Finalized() {
		t.logger.Error("attempt to mutate finalized processing state", "event_id", state.EventID)
		return
	}
	state.Status = domain.EventStatusFailed
	errMsg := err.Error()
	state.Error = &errMsg
	t.complete(ctx, state)
}

// Skip finalizes the state as skipped (unrouted or disabled event types).
func (t *Tracker) Skip(ctx context.Context, state *domain.ProcessingState, reason string) {
	if state.Finalized() {
		t.logger.Error("attempt to mutate finalized processing state", "event_id", state.EventID)
		return
	}
	state.Status = domain.EventStatusSkipped
	state.Error = &reason
	t.complete(ctx, state)
}

func (t *Tracker) complete(ctx context.Context, state *domain.ProcessingState) {
	now := time.Now().UTC()
	state.CompletedAt = &now

	if t.states != nil {
		if err := t.states.Finalize(ctx, state); err != nil {
			t.logger.Warn("failed to finalize processing state", "event_id", state.EventID, "error", err)
		}
	}
}
