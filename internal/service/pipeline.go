// Package service sequences the webhook pipeline: verify, parse, admit,
// route, finalize. One Process call per inbound delivery; correctness under
// concurrent duplicate deliveries rests entirely on the store's atomic
// insert, never on in-process locking.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/nimblepay/webhook-service/internal/domain"
	"github.com/nimblepay/webhook-service/internal/event"
	"github.com/nimblepay/webhook-service/internal/router"
	"github.com/nimblepay/webhook-service/internal/tracker"
)

type idempotencyStore interface {
	CheckProcessed(ctx context.Context, eventID string) (*domain.IdempotencyRecord, error)
	RecordEvent(ctx context.Context, eventID, eventType, accountID string, payload json.RawMessage, sig string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string, subscriptionID, paymentID *string) (bool, error)
	MarkFailed(ctx context.Context, eventID, errMsg string) (bool, error)
	MarkSkipped(ctx context.Context, eventID, reason string) (bool, error)
}

type verifier interface {
	Verify(body []byte, sig string) error
}

type dispatcher interface {
	Dispatch(ctx context.Context, ev domain.ParsedEvent) router.RoutingResult
}

// Disposition is the pipeline's final decision for one delivery. The HTTP
// layer maps it to a status code; the pipeline itself never speaks HTTP.
type Disposition int

const (
	// DispositionProcessed: handler applied the event's effect.
	DispositionProcessed Disposition = iota
	// DispositionDuplicate: event already admitted or finalized; idempotent ack.
	DispositionDuplicate
	// DispositionAcknowledged: admitted but deliberately not acted on
	// (no route, disabled route, or handler declined); ack so the provider
	// stops resending an event we will never handle.
	DispositionAcknowledged
	// DispositionRejectedSignature: verification failed; nothing recorded.
	DispositionRejectedSignature
	// DispositionRejectedPayload: structurally invalid; nothing recorded.
	DispositionRejectedPayload
	// DispositionRejectedFields: a route-required field was absent; terminal.
	DispositionRejectedFields
	// DispositionRetry: transient failure; the provider should redeliver.
	DispositionRetry
)

// Outcome is the pipeline's answer for one delivery.
type Outcome struct {
	Disposition Disposition
	EventID     string
	Message     string
	Err         error
}

type Pipeline struct {
	verifier verifier
	store    idempotencyStore
	routes   dispatcher
	tracker  *tracker.Tracker
	logger   *slog.Logger
}

func NewPipeline(v verifier, store idempotencyStore, routes dispatcher, tr *tracker.Tracker, logger *slog.Logger) *Pipeline {
	return &Pipeline{verifier: v, store: store, routes: routes, tracker: tr, logger: logger}
}

// Process runs one delivery through the pipeline. Nothing is recorded
// before verification and parsing both succeed; admission strictly
// precedes routing, which strictly precedes finalization.
func (p *Pipeline) Process(ctx context.Context, body []byte, sig string) Outcome {
	if err := p.verifier.Verify(body, sig); err != nil {
		// Deliberately indistinguishable to the caller whether the
		// signature was malformed or the secret was wrong.
		p.logger.Warn("webhook signature verification failed")
		return Outcome{Disposition: DispositionRejectedSignature, Message: "signature verification failed", Err: err}
	}

	ev, err := event.Parse(body)
	if err != nil {
		p.logger.Warn("webhook payload rejected", "error", err)
		return Outcome{Disposition: DispositionRejectedPayload, Message: err.Error(), Err: err}
	}

	log := p.logger.With("event_id", ev.EventID, "event_type", ev.EventType, "account_id", ev.AccountID)

	existing, err := p.store.CheckProcessed(ctx, ev.EventID)
	if err != nil {
		log.Error("idempotency lookup failed", "error", err)
		return Outcome{Disposition: DispositionRetry, EventID: ev.EventID, Message: "store unavailable", Err: err}
	}
	if existing != nil && existing.Status.Terminal() {
		log.Info("duplicate webhook, already finalized", "status", existing.Status)
		return Outcome{Disposition: DispositionDuplicate, EventID: ev.EventID, Message: "duplicate event"}
	}

	admitted, err := p.store.RecordEvent(ctx, ev.EventID, ev.EventType, ev.AccountID, body, sig)
	if err != nil {
		log.Error("event admission failed", "error", err)
		return Outcome{Disposition: DispositionRetry, EventID: ev.EventID, Message: "store unavailable", Err: err}
	}
	if !admitted {
		// Lost the insert race (or an earlier attempt is in flight).
		// The winner will finalize; the provider gets an ack either way.
		log.Info("duplicate webhook, already admitted")
		return Outcome{Disposition: DispositionDuplicate, EventID: ev.EventID, Message: "duplicate event"}
	}

	log.Info("webhook admitted")
	state := p.tracker.Begin(ctx, *ev)

	return p.dispatchAndFinalize(ctx, log, *ev, state)
}

// Replay re-dispatches a previously failed, already verified event.
func (p *Pipeline) Replay(ctx context.Context, rec *domain.IdempotencyRecord) Outcome {
	ev, err := event.Parse(rec.Payload)
	if err != nil {
		return Outcome{Disposition: DispositionRejectedPayload, EventID: rec.EventID, Message: err.Error(), Err: err}
	}

	log := p.logger.With("event_id", ev.EventID, "event_type", ev.EventType, "replay", true)
	log.Info("replaying failed webhook")

	state := p.tracker.Begin(ctx, *ev)
	state.RetryCount = rec.Attempts

	return p.dispatchAndFinalize(ctx, log, *ev, state)
}

func (p *Pipeline) dispatchAndFinalize(ctx context.Context, log *slog.Logger, ev domain.ParsedEvent, state *domain.ProcessingState) Outcome {
	handlerStart := time.Now().UTC()
	routing := p.routes.Dispatch(ctx, ev)

	if routing.Err != nil {
		return p.finalizeRoutingFailure(ctx, log, ev, state, routing.Err)
	}

	result := routing.Result
	p.tracker.RecordHandlerExecution(ctx, state, handlerStart, result)
	log.Info("handler finished",
		"success", result.Success,
		"processed", result.Processed,
		"duration_ms", time.Since(handlerStart).Milliseconds(),
	)

	switch {
	case result.Success && result.Processed:
		subID, payID := relatedIDs(result)
		if _, err := p.store.MarkProcessed(ctx, ev.EventID, subID, payID); err != nil {
			// The handler's effect landed but the record did not flip; a
			// redelivery will hit the duplicate path only after this
			// succeeds, so report retryable and let the idempotent
			// handler absorb the redo.
			log.Error("failed to mark event processed", "error", err)
			return Outcome{Disposition: DispositionRetry, EventID: ev.EventID, Message: "store unavailable", Err: err}
		}
		return Outcome{Disposition: DispositionProcessed, EventID: ev.EventID, Message: "processed"}

	case result.Success:
		reason := "handler declined"
		if result.Details != nil && result.Details.Action != "" {
			reason = result.Details.Action
		}
		if _, err := p.store.MarkSkipped(ctx, ev.EventID, reason); err != nil {
			log.Error("failed to mark event skipped", "error", err)
			return Outcome{Disposition: DispositionRetry, EventID: ev.EventID, Message: "store unavailable", Err: err}
		}
		return Outcome{Disposition: DispositionAcknowledged, EventID: ev.EventID, Message: "acknowledged without effect"}

	default:
		if _, err := p.store.MarkFailed(ctx, ev.EventID, result.Error); err != nil {
			log.Error("failed to mark event failed", "error", err)
		}
		return Outcome{
			Disposition: DispositionRetry,
			EventID:     ev.EventID,
			Message:     "handler failed",
			Err:         errors.New(result.Error),
		}
	}
}

func (p *Pipeline) finalizeRoutingFailure(ctx context.Context, log *slog.Logger, ev domain.ParsedEvent, state *domain.ProcessingState, routeErr error) Outcome {
	var mfe *domain.MissingFieldError

	switch {
	case errors.Is(routeErr, domain.ErrNoHandlerRegistered), errors.Is(routeErr, domain.ErrHandlerDisabled):
		// Unknown and disabled types are acked: the provider would
		// otherwise resend an event type we will never handle. Logged,
		// not fatal.
		log.Info("webhook acknowledged without routing", "reason", routeErr)
		p.tracker.Skip(ctx, state, routeErr.Error())
		if _, err := p.store.MarkSkipped(ctx, ev.EventID, routeErr.Error()); err != nil {
			log.Error("failed to mark event skipped", "error", err)
			return Outcome{Disposition: DispositionRetry, EventID: ev.EventID, Message: "store unavailable", Err: err}
		}
		return Outcome{Disposition: DispositionAcknowledged, EventID: ev.EventID, Message: "no handler for event type"}

	case errors.As(routeErr, &mfe):
		log.Warn("webhook rejected, missing route-required field", "field", mfe.Field)
		p.tracker.Fail(ctx, state, routeErr)
		if _, err := p.store.MarkFailed(ctx, ev.EventID, routeErr.Error()); err != nil {
			log.Error("failed to mark event failed", "error", err)
		}
		return Outcome{Disposition: DispositionRejectedFields, EventID: ev.EventID, Message: routeErr.Error(), Err: routeErr}

	case errors.Is(routeErr, domain.ErrHandlerTimeout):
		log.Error("handler timed out", "error", routeErr)
		p.tracker.Fail(ctx, state, routeErr)
		if _, err := p.store.MarkFailed(ctx, ev.EventID, routeErr.Error()); err != nil {
			log.Error("failed to mark event failed", "error", err)
		}
		return Outcome{Disposition: DispositionRetry, EventID: ev.EventID, Message: "handler timed out", Err: routeErr}

	default:
		log.Error("routing failed", "error", routeErr)
		p.tracker.Fail(ctx, state, routeErr)
		if _, err := p.store.MarkFailed(ctx, ev.EventID, routeErr.Error()); err != nil {
			log.Error("failed to mark event failed", "error", err)
		}
		return Outcome{Disposition: DispositionRetry, EventID: ev.EventID, Message: "routing failed", Err: routeErr}
	}
}

func relatedIDs(result domain.HandlerResult) (subscriptionID, paymentID *string) {
	if result.Details == nil {
		return nil, nil
	}
	if result.Details.SubscriptionID != "" {
		subscriptionID = &result.Details.SubscriptionID
	}
	if result.Details.PaymentID != "" {
		paymentID = &result.Details.PaymentID
	}
	return subscriptionID, paymentID
}
