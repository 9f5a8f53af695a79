package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimblepay/webhook-service/internal/domain"
	"github.com/nimblepay/webhook-service/internal/service"
)

type stubAdminStore struct {
	failed     []domain.IdempotencyRecord
	requeued   *domain.IdempotencyRecord
	requeueErr error
	gotLimit   int
	gotCtx     context.Context
}

func (s *stubAdminStore) ListFailed(_ context.Context, limit int) ([]domain.IdempotencyRecord, error) {
	s.gotLimit = limit
	return s.failed, nil
}

func (s *stubAdminStore) RequeueFailed(ctx context.Context, _ string) (*domain.IdempotencyRecord, error) {
	s.gotCtx = ctx
	return s.requeued, s.requeueErr
}

type stubReplayer struct {
	outcome service.Outcome
	gotCtx  context.Context
}

func (s *stubReplayer) Replay(ctx context.Context, _ *domain.IdempotencyRecord) service.Outcome {
	s.gotCtx = ctx
	return s.outcome
}

func TestListFailed(t *testing.T) {
	lastErr := "payment not found"
	store := &stubAdminStore{failed: []domain.IdempotencyRecord{
		{
			EventID:   "evt_1",
			EventType: "refund.processed",
			AccountID: "acct_1",
			Attempts:  2,
			LastError: &lastErr,
			UpdatedAt: time.Now().UTC(),
		},
	}}
	h := NewAdminHandler(store, &stubReplayer{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/webhooks/failed?limit=5", nil)
	rr := httptest.NewRecorder()
	h.ListFailed(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 5, store.gotLimit)

	resp := decodeResponse(t, rr)
	assert.True(t, resp.Success)

	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var views []failedEventView
	require.NoError(t, json.Unmarshal(raw, &views))
	require.Len(t, views, 1)
	assert.Equal(t, "evt_1", views[0].EventID)
	assert.Equal(t, "payment not found", views[0].LastError)
}

func TestListFailed_DefaultLimit(t *testing.T) {
	store := &stubAdminStore{}
	h := NewAdminHandler(store, &stubReplayer{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/webhooks/failed?limit=9999", nil)
	rr := httptest.NewRecorder()
	h.ListFailed(rr, req)

	assert.Equal(t, 50, store.gotLimit, "out-of-range limit falls back to the default")
}

func TestReplayFailed(t *testing.T) {
	rec := &domain.IdempotencyRecord{EventID: "evt_1", EventType: "payment.captured"}

	tests := []struct {
		name       string
		store      *stubAdminStore
		outcome    service.Outcome
		wantStatus int
		wantCode   string
	}{
		{
			name:       "replay succeeds",
			store:      &stubAdminStore{requeued: rec},
			outcome:    service.Outcome{Disposition: service.DispositionProcessed, EventID: "evt_1"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "record not failed or unknown",
			store:      &stubAdminStore{requeueErr: domain.ErrRecordNotFound},
			wantStatus: http.StatusNotFound,
			wantCode:   "RESOURCE_NOT_FOUND",
		},
		{
			name:       "replay fails again",
			store:      &stubAdminStore{requeued: rec},
			outcome:    service.Outcome{Disposition: service.DispositionRetry, EventID: "evt_1"},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "TRANSIENT_FAILURE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAdminHandler(tt.store, &stubReplayer{outcome: tt.outcome})

			req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/webhooks/evt_1/replay", nil)
			req.SetPathValue("event_id", "evt_1")
			rr := httptest.NewRecorder()
			h.ReplayFailed(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantCode != "" {
				resp := decodeResponse(t, rr)
				require.NotNil(t, resp.Error)
				assert.Equal(t, tt.wantCode, resp.Error.Code)
			}
		})
	}
}

func TestReplayFailed_OperatorDisconnectDoesNotCancelReplay(t *testing.T) {
	store := &stubAdminStore{requeued: &domain.IdempotencyRecord{EventID: "evt_1", EventType: "payment.captured"}}
	replayer := &stubReplayer{outcome: service.Outcome{Disposition: service.DispositionProcessed, EventID: "evt_1"}}
	h := NewAdminHandler(store, replayer)

	// Once the requeue flips the record to processing, the replay must
	// finish even if the operator's connection drops.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/webhooks/evt_1/replay", nil).WithContext(ctx)
	req.SetPathValue("event_id", "evt_1")
	rr := httptest.NewRecorder()
	h.ReplayFailed(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, store.gotCtx)
	assert.NoError(t, store.gotCtx.Err())
	require.NotNil(t, replayer.gotCtx)
	assert.NoError(t, replayer.gotCtx.Err(), "replay context must not carry the caller's cancellation")
}
