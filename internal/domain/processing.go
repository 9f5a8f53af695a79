package domain

import (
	"time"

	"github.com/google/uuid"
)

// HandlerDetails carries the entity ids a handler touched, for correlation
// on the idempotency record.
type HandlerDetails struct {
	SubscriptionID string
	PaymentID      string
	Action         string
	Metadata       map[string]string
}

// HandlerResult is the outcome a route handler reports. Immutable once
// returned. Success with Processed=false means the handler looked at the
// event and deliberately declined to act (e.g. an unknown sub-status).
type HandlerResult struct {
	Success   bool
	Processed bool
	Error     string
	// Retryable records the handler's own judgement of the failure for
	// the audit trail. The response contract deliberately ignores it:
	// every handler failure invites redelivery, and once the record is
	// failed the duplicate path absorbs further deliveries. Operators
	// read it when deciding whether a replay is worth attempting.
	Retryable bool
	Details   *HandlerDetails
}

// Skipped constructs the declined-to-act result.
func Skipped(reason string) HandlerResult {
	return HandlerResult{Success: true, Processed: false, Details: &HandlerDetails{Action: reason}}
}

// HandlerFailure constructs a failed result from err.
func HandlerFailure(err error, retryable bool) HandlerResult {
	return HandlerResult{Success: false, Error: err.Error(), Retryable: retryable}
}

// HandlerExecution is one handler invocation recorded on the processing
// state.
type HandlerExecution struct {
	EventType  string
	StartedAt  time.Time
	FinishedAt time.Time
	Result     HandlerResult
}

// ProcessingState is the in-request audit trail of one processing attempt.
// The idempotency record, not this trace, is the correctness source of
// truth; losing a state row loses visibility, never correctness.
type ProcessingState struct {
	ID               uuid.UUID
	EventID          string
	EventType        string
	Status           EventStatus
	StartedAt        time.Time
	CompletedAt      *time.Time
	RetryCount       int
	MaxRetries       int
	HandlerResults   []HandlerExecution
	Error            *string
}

// Finalized reports whether the state has been completed. A finalized state
// must never be mutated again.
func (s *ProcessingState) Finalized() bool {
	return s.CompletedAt != nil
}
