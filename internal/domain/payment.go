package domain

import (
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentStatusCreated  PaymentStatus = "created"
	PaymentStatusCaptured PaymentStatus = "captured"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusRefunded
}

// Payment mirrors the provider's payment entity keyed by the provider's own
// id, so out-of-order and replayed events converge on the same row.
type Payment struct {
	ID            uuid.UUID
	ProviderID    string
	AccountID     string
	Amount        int64
	Currency      string
	Status        PaymentStatus
	Method        *string
	FailureReason *string
	CapturedAt    *time.Time
	RefundedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
