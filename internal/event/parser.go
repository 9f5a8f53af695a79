// Package event turns verified raw webhook bodies into typed events. It
// runs exactly once per request, after signature verification.
package event

import (
	"encoding/json"
	"fmt"

	"github.com/nimblepay/webhook-service/internal/domain"
)

type rawWebhook struct {
	Event     string      `json:"event"`
	EventID   string      `json:"event_id"`
	AccountID string      `json:"account_id"`
	Payload   *rawPayload `json:"payload"`
}

type rawPayload struct {
	Entity map[string]any `json:"entity"`
}

// Parse validates the body's structure and returns the typed event.
// Required fields are checked in declaration order and the first missing
// one is named in the error.
func Parse(body []byte) (*domain.ParsedEvent, error) {
	var raw rawWebhook
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("event.Parse: %w", domain.ErrMalformedPayload)
	}

	if raw.Event == "" {
		return nil, &domain.MissingFieldError{Field: "event"}
	}
	if raw.AccountID == "" {
		return nil, &domain.MissingFieldError{Field: "account_id"}
	}
	if raw.Payload == nil || raw.Payload.Entity == nil {
		return nil, &domain.MissingFieldError{Field: "payload.entity"}
	}

	entityID, _ := raw.Payload.Entity["id"].(string)
	if entityID == "" {
		return nil, &domain.MissingFieldError{Field: "payload.entity.id"}
	}

	category, _, ok := domain.SplitEventType(raw.Event)
	if !ok {
		return nil, fmt.Errorf("event.Parse: %q: %w", raw.Event, domain.ErrInvalidEventType)
	}
	if !category.IsValid() {
		return nil, fmt.Errorf("event.Parse: %q: %w", raw.Event, domain.ErrInvalidCategory)
	}

	return &domain.ParsedEvent{
		EventID:   eventID(raw, entityID),
		EventType: raw.Event,
		AccountID: raw.AccountID,
		Entity:    raw.Payload.Entity,
		RawBody:   body,
	}, nil
}

// eventID prefers the provider-assigned id when present. Older provider
// payloads omit it, so the fallback key is derived from the event type and
// entity id, which the provider keeps stable across redeliveries of the
// same notification.
func eventID(raw rawWebhook, entityID string) string {
	if raw.EventID != "" {
		return raw.EventID
	}
	return raw.Event + ":" + entityID
}
