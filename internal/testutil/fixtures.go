package testutil

import (
	"database/sql"
	"testing"

	"github.com/google/uuid"
)

func SeedEvent(t *testing.T, db *sql.DB, eventID, eventType, accountID, status string) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO webhook_events (event_id, event_type, account_id, payload, signature, status)
		VALUES ($1, $2, $3, '{}'::jsonb, 'sig', $4)`,
		eventID, eventType, accountID, status,
	)
	if err != nil {
		t.Fatalf("seed event %s: %v", eventID, err)
	}
}

func SeedPayment(t *testing.T, db *sql.DB, providerID, accountID, status string, amount int64) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO payments (id, provider_id, account_id, amount, currency, status)
		VALUES ($1, $2, $3, $4, 'USD', $5)`,
		uuid.New(), providerID, accountID, amount, status,
	)
	if err != nil {
		t.Fatalf("seed payment %s: %v", providerID, err)
	}
}

func SeedSubscription(t *testing.T, db *sql.DB, providerID, accountID, status string) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO subscriptions (id, provider_id, account_id, plan_id, status)
		VALUES ($1, $2, $3, 'plan_basic', $4)`,
		uuid.New(), providerID, accountID, status,
	)
	if err != nil {
		t.Fatalf("seed subscription %s: %v", providerID, err)
	}
}

func EventStatus(t *testing.T, db *sql.DB, eventID string) string {
	t.Helper()
	var status string
	if err := db.QueryRow(`SELECT status FROM webhook_events WHERE event_id = $1`, eventID).Scan(&status); err != nil {
		t.Fatalf("query event status %s: %v", eventID, err)
	}
	return status
}

func CountEvents(t *testing.T, db *sql.DB, eventID string) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM webhook_events WHERE event_id = $1`, eventID).Scan(&n); err != nil {
		t.Fatalf("count events %s: %v", eventID, err)
	}
	return n
}
