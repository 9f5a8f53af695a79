// mock-provider signs and fires a sample webhook lifecycle at a running
// server, optionally duplicating every delivery the way a real provider's
// at-least-once retry would.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/nimblepay/webhook-service/internal/signature"
)

type entity map[string]any

type webhookBody struct {
	Event     string `json:"event"`
	EventID   string `json:"event_id"`
	AccountID string `json:"account_id"`
	Payload   struct {
		Entity entity `json:"entity"`
	} `json:"payload"`
}

func main() {
	_ = godotenv.Load()

	url := flag.String("url", "http://localhost:8080/api/v1/webhooks/provider", "webhook endpoint")
	secret := flag.String("secret", os.Getenv("WEBHOOK_SECRET"), "signing secret")
	account := flag.String("account", "acct_demo", "account id stamped on every event")
	duplicate := flag.Bool("duplicate", false, "send every event twice")
	tamper := flag.Bool("tamper", false, "flip a byte after signing to exercise rejection")
	flag.Parse()

	if *secret == "" {
		slog.Error("no signing secret; set WEBHOOK_SECRET or pass -secret")
		os.Exit(1)
	}

	paymentID := "pay_" + uuid.NewString()[:8]
	subscriptionID := "sub_" + uuid.NewString()[:8]

	events := []struct {
		eventType string
		entity    entity
	}{
		{"payment.captured", entity{
			"id": paymentID, "amount": 4999, "currency": "USD",
			"status": "captured", "method": "card",
		}},
		{"subscription.activated", entity{
			"id": subscriptionID, "status": "active", "plan_id": "plan_pro",
		}},
		{"subscription.charged", entity{
			"id": subscriptionID, "payment_id": paymentID,
		}},
		{"refund.processed", entity{
			"id": "rfnd_" + uuid.NewString()[:8], "payment_id": paymentID, "amount": 4999,
		}},
		{"subscription.cancelled", entity{
			"id": subscriptionID,
		}},
		{"invoice.generated", entity{
			"id": "inv_" + uuid.NewString()[:8],
		}},
	}

	client := &http.Client{Timeout: 10 * time.Second}

	for _, ev := range events {
		body := webhookBody{
			Event:     ev.eventType,
			EventID:   "evt_" + uuid.NewString(),
			AccountID: *account,
		}
		body.Payload.Entity = ev.entity

		raw, err := json.Marshal(body)
		if err != nil {
			slog.Error("marshal event", "event", ev.eventType, "error", err)
			os.Exit(1)
		}

		sig := signature.Sign(raw, *secret)
		if *tamper {
			raw[len(raw)-2] ^= 0x01
		}

		deliveries := 1
		if *duplicate {
			deliveries = 2
		}
		for i := range deliveries {
			status, respBody, err := deliver(client, *url, raw, sig)
			if err != nil {
				slog.Error("delivery failed", "event", ev.eventType, "error", err)
				os.Exit(1)
			}
			slog.Info("delivered",
				"event", ev.eventType,
				"event_id", body.EventID,
				"attempt", i+1,
				"status", status,
				"response", respBody,
			)
		}
	}
}

func deliver(client *http.Client, url string, body []byte, sig string) (int, string, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", sig)

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, string(out), nil
}
