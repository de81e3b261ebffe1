package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memetic/internal/correction"
	"memetic/internal/engine"
	"memetic/internal/ingest"
	"memetic/internal/ledger"
	"memetic/internal/marketdata"
	"memetic/internal/models"
	"memetic/internal/repository/memory"
	"memetic/internal/scheduler"
	"memetic/internal/scoring"
	"memetic/internal/service"
)

const (
	apiKey = "secret"
	token  = "0x4ed4e862860bed51a9570b96d89af5e1b0efefed"
	txHash = "0xab00000000000000000000000000000000000000000000000000000000000001"
)

type flatSource struct{}

func (flatSource) Name() string { return "coingecko" }

func (flatSource) Metadata(_ context.Context, address string) (*marketdata.TokenInfo, error) {
	return &marketdata.TokenInfo{Address: address, Name: "Degen", Symbol: "DEGEN", Decimals: 18}, nil
}

func (flatSource) MarketCapAt(_ context.Context, _ *marketdata.TokenInfo, at time.Time) (marketdata.Quote, error) {
	return marketdata.Quote{At: at, MarketCap: decimal.NewFromInt(1_000_000)}, nil
}

type testServer struct {
	router *gin.Engine
	store  *memory.Store
	queue  *scheduler.MemoryQueue
	engine *engine.Engine
}

// brokenRecords fails every wallet authorization write.
type brokenRecords struct {
	*memory.Store
}

func (brokenRecords) InsertWalletAuthorization(context.Context, *models.WalletAuthorization) (bool, error) {
	return false, errors.New("connection reset")
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := memory.New()
	queue := scheduler.NewMemoryQueue(time.Minute)
	l := ledger.New(store, nil, 1735689600)
	sched := &scheduler.Scheduler{Queue: queue, Failed: store, Signals: store}
	eng := &engine.Engine{
		Ledger:  l,
		Market:  &marketdata.Resolver{Sources: []marketdata.Source{flatSource{}}},
		Policy:  scoring.FixedPolicy{Win: 10, Loss: -5},
		Queue:   sched,
		Records: store,
		Tokens:  store,
	}
	settings := &service.SystemSettingsService{Repo: store}
	dispatcher := &ingest.Dispatcher{
		Engine:      eng,
		Corrections: &correction.Handler{Ledger: l},
		Sync:        store,
		Rejections:  store,
	}

	r := gin.New()
	r.Use(RequireAPIKey(apiKey))
	(&HealthHandler{Checks: map[string]Check{
		"db": func(context.Context) error { return nil },
	}}).Register(r)
	(&SignalHandler{Repo: store}).Register(r)
	(&AuthorHandler{Repo: store}).Register(r)
	(&JobsHandler{Repo: store, Scheduler: sched}).Register(r)
	(&SystemHandler{Repo: store, Ledger: l, Queue: queue}).Register(r)
	(&EventsHandler{Dispatcher: dispatcher, Settings: settings, Rejected: store, MaxBatch: 3}).Register(r)
	(&SystemSettingsHandler{Settings: settings}).Register(r)
	return &testServer{router: r, store: store, queue: queue, engine: eng}
}

func (s *testServer) do(t *testing.T, method, path string, body any, authed bool) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch v := body.(type) {
		case string:
			buf.WriteString(v)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(v))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("X-API-Key", apiKey)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	var resp apiResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func createdEvent(id uint64, block uint64) map[string]any {
	return map[string]any{
		"kind":             "SignalCreated",
		"chain_id":         8453,
		"block_number":     block,
		"block_timestamp":  1_740_000_000,
		"transaction_hash": txHash,
		"log_index":        0,
		"args": map[string]any{
			"signalId":     id,
			"fid":          42,
			"token":        token,
			"direction":    true,
			"durationDays": 1,
		},
	}
}

func TestEventsRequireAPIKey(t *testing.T) {
	s := newTestServer(t)
	w, _ := s.do(t, http.MethodPost, "/api/v1/events", []any{createdEvent(1, 10)}, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewBufferString("[]"))
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/signals", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEventsThenReadAPI(t *testing.T) {
	s := newTestServer(t)
	w, resp := s.do(t, http.MethodPost, "/api/v1/events", map[string]any{
		"events": []any{createdEvent(1, 10), createdEvent(2, 11)},
	}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 2, resp.Meta[ingest.StatusApplied])

	w, resp = s.do(t, http.MethodPost, "/api/v1/events", []any{createdEvent(1, 10)}, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, resp.Meta[ingest.StatusDuplicate])

	w, _ = s.do(t, http.MethodGet, "/api/v1/signals/1", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"SignalID":1`)

	w, _ = s.do(t, http.MethodGet, "/api/v1/signals/999", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = s.do(t, http.MethodGet, "/api/v1/signals/abc", nil, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = s.do(t, http.MethodGet, "/api/v1/authors/42/signals?status=active", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, resp.Meta["total"])

	w, _ = s.do(t, http.MethodGet, "/api/v1/authors/42", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_mfs":"0"`)

	w, _ = s.do(t, http.MethodGet, "/api/v1/authors/7", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)

	n, err := s.queue.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	w, resp = s.do(t, http.MethodGet, "/api/v1/system-state", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, resp.Meta["queue_depth"])
	assert.Contains(t, w.Body.String(), `"active_signals":2`)
}

func TestEventsFailureIsRetryable(t *testing.T) {
	s := newTestServer(t)
	s.engine.Records = brokenRecords{Store: s.store}
	authorized := map[string]any{
		"kind":             "WalletAuthorized",
		"chain_id":         8453,
		"block_number":     12,
		"transaction_hash": txHash,
		"args":             map[string]any{"fid": 42, "wallet": "0x000000000000000000000000000000000000dEaD"},
	}
	w, resp := s.do(t, http.MethodPost, "/api/v1/events", []any{authorized, createdEvent(1, 13)}, true)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.EqualValues(t, 1, resp.Meta[ingest.StatusFailed])
	assert.EqualValues(t, 1, resp.Meta[ingest.StatusSkipped])
}

func TestEventsRejectionIsNotRetried(t *testing.T) {
	s := newTestServer(t)
	resolved := map[string]any{
		"kind":             "SignalResolved",
		"chain_id":         8453,
		"block_number":     12,
		"transaction_hash": txHash,
		"args":             map[string]any{"signalId": 5, "fid": 42, "mfsDelta": 10},
	}
	w, resp := s.do(t, http.MethodPost, "/api/v1/events", []any{resolved, createdEvent(1, 13)}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, resp.Meta[ingest.StatusRejected])
	assert.EqualValues(t, 1, resp.Meta[ingest.StatusApplied])

	w, resp = s.do(t, http.MethodGet, "/api/v1/events/rejected?signal_id=5", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, resp.Meta["total"])
	assert.Contains(t, w.Body.String(), `"Kind":"SignalResolved"`)

	w, _ = s.do(t, http.MethodGet, "/api/v1/system-state", nil, false)
	assert.Contains(t, w.Body.String(), `"rejected_events":1`)
}

func TestEventsBadBodyAndBatchLimit(t *testing.T) {
	s := newTestServer(t)
	w, _ := s.do(t, http.MethodPost, "/api/v1/events", "{not json", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	batch := []any{createdEvent(1, 1), createdEvent(2, 2), createdEvent(3, 3), createdEvent(4, 4)}
	w, _ = s.do(t, http.MethodPost, "/api/v1/events", batch, true)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestEventIngestSwitch(t *testing.T) {
	s := newTestServer(t)
	w, _ := s.do(t, http.MethodPut, "/api/v1/system-settings/switches/event_ingest_http", map[string]any{"enabled": false}, true)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/events", []any{createdEvent(1, 10)}, true)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w, _ = s.do(t, http.MethodPut, "/api/v1/system-settings/switches/teleport", map[string]any{"enabled": true}, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/system-settings/switches", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"key":"feature.event_ingest_http"`)
}

func TestSwitchRoutesOnly(t *testing.T) {
	s := newTestServer(t)
	w, _ := s.do(t, http.MethodGet, "/api/v1/system-settings/switches/feature.reconcile", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"reconcile"`)
	assert.Contains(t, w.Body.String(), `"enabled":true`)

	w, _ = s.do(t, http.MethodPut, "/api/v1/system-settings/switches/reconcile", map[string]any{}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPut, "/api/v1/system-settings/switches/reconcile", map[string]any{"enabled": false}, true)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodGet, "/api/v1/system-settings/switches/reconcile", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"enabled":false`)
	assert.Contains(t, w.Body.String(), `"default":true`)

	// Arbitrary settings keys are not exposed.
	w, _ = s.do(t, http.MethodPut, "/api/v1/system-settings/ingest.api_key", map[string]any{"value": "x"}, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = s.do(t, http.MethodGet, "/api/v1/system-settings", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequeueParkedJob(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, s.store.InsertFailedJob(ctx, &models.FailedResolutionJob{
		ID:       "job-1",
		SignalID: 9,
		Attempts: 5,
		Status:   models.FailedJobStatusParked,
		FailedAt: time.Now().UTC(),
	}))

	w, resp := s.do(t, http.MethodGet, "/api/v1/jobs/failed?status=parked", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, resp.Meta["total"])

	w, _ = s.do(t, http.MethodPost, "/api/v1/jobs/failed/job-1/requeue", nil, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	n, err := s.queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	w, _ = s.do(t, http.MethodPost, "/api/v1/jobs/failed/job-1/requeue", nil, true)
	assert.Equal(t, http.StatusConflict, w.Code)
	w, _ = s.do(t, http.MethodPost, "/api/v1/jobs/failed/missing/requeue", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReadyzReportsFailingCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	(&HealthHandler{Checks: map[string]Check{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}}).Register(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusOf(ledger.ErrSignalNotFound))
	assert.Equal(t, http.StatusConflict, statusOf(ledger.ErrAlreadyCorrected))
	assert.Equal(t, http.StatusBadRequest, statusOf(ledger.ErrReasonRequired))
	assert.Equal(t, http.StatusBadGateway, statusOf(errors.New("boom")))
}
