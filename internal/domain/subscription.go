package domain

import (
	"time"

	"github.com/google/uuid"
)

type SubscriptionStatus string

const (
	SubscriptionStatusCreated   SubscriptionStatus = "created"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// Subscription mirrors the provider's subscription entity, keyed by the
// provider's subscription id.
type Subscription struct {
	ID              uuid.UUID
	ProviderID      string
	AccountID       string
	PlanID          *string
	Status          SubscriptionStatus
	CurrentPeriodEnd *time.Time
	ChargeCount     int
	LastPaymentID   *string
	ActivatedAt     *time.Time
	CancelledAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
