package domain

import "strings"

// EventCategory is the first segment of a "category.action" event type.
type EventCategory string

const (
	CategoryPayment      EventCategory = "payment"
	CategorySubscription EventCategory = "subscription"
	CategoryOrder        EventCategory = "order"
	CategoryRefund       EventCategory = "refund"
	CategoryInvoice      EventCategory = "invoice"
)

var allowedCategories = map[EventCategory]bool{
	CategoryPayment:      true,
	CategorySubscription: true,
	CategoryOrder:        true,
	CategoryRefund:       true,
	CategoryInvoice:      true,
}

func (c EventCategory) IsValid() bool {
	return allowedCategories[c]
}

// SplitEventType splits a "category.action" type into its two segments.
// Both must be non-empty and there must be exactly one dot.
func SplitEventType(eventType string) (category EventCategory, action string, ok bool) {
	parts := strings.Split(eventType, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return EventCategory(parts[0]), parts[1], true
}

// ParsedEvent is one structurally valid provider notification. Immutable
// once produced by the parser; lives for a single processing attempt.
type ParsedEvent struct {
	EventID   string
	EventType string
	AccountID string
	Entity    map[string]any
	RawBody   []byte
}

func (e ParsedEvent) Category() EventCategory {
	c, _, _ := SplitEventType(e.EventType)
	return c
}

// EntityString returns a string field from the entity payload, or "" when
// absent or not a string.
func (e ParsedEvent) EntityString(key string) string {
	if s, ok := e.Entity[key].(string); ok {
		return s
	}
	return ""
}

// EntityInt64 returns a numeric entity field as int64. JSON numbers decode
// as float64, so provider amounts (integer minor units) round-trip exactly
// up to 2^53.
func (e ParsedEvent) EntityInt64(key string) (int64, bool) {
	switch v := e.Entity[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}
