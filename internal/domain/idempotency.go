package domain

import (
	"encoding/json"
	"time"
)

type EventStatus string

const (
	EventStatusPending    EventStatus = "pending"
	EventStatusProcessing EventStatus = "processing"
	EventStatusProcessed  EventStatus = "processed"
	EventStatusFailed     EventStatus = "failed"
	EventStatusSkipped    EventStatus = "skipped"
)

// Terminal reports whether the status admits no further transitions. A
// terminal record is the proof that the event already took effect (or was
// deliberately declined), so a redelivery must not be routed again.
func (s EventStatus) Terminal() bool {
	switch s {
	case EventStatusProcessed, EventStatusFailed, EventStatusSkipped:
		return true
	}
	return false
}

// IdempotencyRecord is the durable claim on one provider event id. The
// uniqueness constraint on EventID in the backing store is what turns
// at-least-once delivery into at-most-once effect.
type IdempotencyRecord struct {
	EventID               string
	EventType             string
	AccountID             string
	Payload               json.RawMessage
	Signature             string
	Status                EventStatus
	Attempts              int
	LastError             *string
	RelatedSubscriptionID *string
	RelatedPaymentID      *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}
