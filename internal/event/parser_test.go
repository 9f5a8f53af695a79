package event

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimblepay/webhook-service/internal/domain"
)

func TestParse_Valid(t *testing.T) {
	body := []byte(`{"event":"payment.captured","event_id":"evt_42","account_id":"acc_1","payload":{"entity":{"id":"pay_1","amount":50000,"currency":"INR","status":"captured"}}}`)

	ev, err := Parse(body)
	require.NoError(t, err)

	assert.Equal(t, "evt_42", ev.EventID)
	assert.Equal(t, "payment.captured", ev.EventType)
	assert.Equal(t, "acc_1", ev.AccountID)
	assert.Equal(t, domain.CategoryPayment, ev.Category())
	assert.Equal(t, "pay_1", ev.EntityString("id"))
	assert.Equal(t, "captured", ev.EntityString("status"))

	amount, ok := ev.EntityInt64("amount")
	require.True(t, ok)
	assert.Equal(t, int64(50000), amount)

	assert.Equal(t, body, ev.RawBody)
}

func TestParse_DerivedEventID(t *testing.T) {
	body := []byte(`{"event":"subscription.activated","account_id":"acc_1","payload":{"entity":{"id":"sub_9","status":"active"}}}`)

	ev, err := Parse(body)
	require.NoError(t, err)
	assert.Equal(t, "subscription.activated:sub_9", ev.EventID)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantErr      error
		missingField string
	}{
		{
			name:    "not json",
			body:    `not-json`,
			wantErr: domain.ErrMalformedPayload,
		},
		{
			name:    "json array instead of object",
			body:    `[1,2,3]`,
			wantErr: domain.ErrMalformedPayload,
		},
		{
			name:         "missing event",
			body:         `{"account_id":"acc_1","payload":{"entity":{"id":"x"}}}`,
			missingField: "event",
		},
		{
			name:         "missing account_id",
			body:         `{"event":"payment.captured","payload":{"entity":{"id":"x"}}}`,
			missingField: "account_id",
		},
		{
			name:         "missing payload",
			body:         `{"event":"payment.captured","account_id":"acc_1"}`,
			missingField: "payload.entity",
		},
		{
			name:         "missing entity id",
			body:         `{"event":"payment.captured","account_id":"acc_1","payload":{"entity":{"amount":1}}}`,
			missingField: "payload.entity.id",
		},
		{
			name:         "first missing field named in declaration order",
			body:         `{"payload":{}}`,
			missingField: "event",
		},
		{
			name:    "no dot in event type",
			body:    `{"event":"payment","account_id":"acc_1","payload":{"entity":{"id":"x"}}}`,
			wantErr: domain.ErrInvalidEventType,
		},
		{
			name:    "too many segments",
			body:    `{"event":"payment.captured.v2","account_id":"acc_1","payload":{"entity":{"id":"x"}}}`,
			wantErr: domain.ErrInvalidEventType,
		},
		{
			name:    "empty action segment",
			body:    `{"event":"payment.","account_id":"acc_1","payload":{"entity":{"id":"x"}}}`,
			wantErr: domain.ErrInvalidEventType,
		},
		{
			name:    "category not in allow-list",
			body:    `{"event":"shipment.dispatched","account_id":"acc_1","payload":{"entity":{"id":"x"}}}`,
			wantErr: domain.ErrInvalidCategory,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := Parse([]byte(tc.body))
			require.Error(t, err)
			assert.Nil(t, ev)

			if tc.missingField != "" {
				var mfe *domain.MissingFieldError
				require.True(t, errors.As(err, &mfe))
				assert.Equal(t, tc.missingField, mfe.Field)
			} else {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}
