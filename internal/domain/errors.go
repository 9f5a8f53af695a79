package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSignatureInvalid    = errors.New("signature invalid")
	ErrSecretMisconfigured = errors.New("webhook secret misconfigured")
	ErrMalformedPayload    = errors.New("malformed payload")
	ErrInvalidCategory     = errors.New("invalid event category")
	ErrInvalidEventType    = errors.New("invalid event type")
	ErrNoHandlerRegistered = errors.New("no handler registered")
	ErrHandlerDisabled     = errors.New("handler disabled")
	ErrHandlerTimeout      = errors.New("handler timed out")
	ErrStoreUnavailable    = errors.New("idempotency store unavailable")
	ErrRecordNotFound      = errors.New("record not found")
)

// MissingFieldError names the first required field found absent, both for
// top-level payload fields and per-route entity fields.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

// Retryable reports whether the provider should redeliver after err.
// Everything else is terminal: either the event is structurally bad or it
// will never be handled, and acking it stops the provider's retries.
func Retryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrHandlerTimeout)
}
