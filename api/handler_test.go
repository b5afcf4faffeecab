package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/viktsys/bolsaingest/ingest"
	"github.com/viktsys/bolsaingest/models"
)

type fakeQuerier struct {
	mu        sync.Mutex
	latest    []models.PriceSnapshot
	history   []models.HistoryPoint
	ranking   []models.RankEntry
	err       error
	gotSymbol string
	gotDays   int
	gotLimit  int
}

func (f *fakeQuerier) Latest(ctx context.Context) ([]models.PriceSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, f.err
}

func (f *fakeQuerier) History(ctx context.Context, symbol string, days int) ([]models.HistoryPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotSymbol, f.gotDays = symbol, days
	return f.history, f.err
}

func (f *fakeQuerier) Ranking(ctx context.Context, limit int) ([]models.RankEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotLimit = limit
	return f.ranking, f.err
}

type fakeRunner struct {
	res    ingest.CycleResult
	forced bool
}

func (f *fakeRunner) RunCycle(ctx context.Context, force bool) ingest.CycleResult {
	f.forced = force
	return f.res
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

var captured = time.Date(2024, 3, 6, 14, 0, 0, 0, time.UTC)

func sampleLatest() []models.PriceSnapshot {
	return []models.PriceSnapshot{
		{ID: 7, Symbol: "BNC", Name: "Banco Nacional de Crédito", Price: decimal.RequireFromString("1.25"), TimeOfQuote: "10:00", CapturedAt: captured},
	}
}

func newTestServer(q Querier, runner ingest.Runner, db Pinger) (*Server, *Hub) {
	hub := NewHub()
	return NewServer(q, runner, db, hub, zap.NewNop().Sugar()), hub
}

func do(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.SetupRoutes().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestGetLatest(t *testing.T) {
	s, _ := newTestServer(&fakeQuerier{latest: sampleLatest()}, &fakeRunner{}, fakePinger{})

	rec := do(t, s, http.MethodGet, "/api/bolsa/actual")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "BNC", body[0]["simbolo"])
	assert.Equal(t, 1.25, body[0]["precio"], "decimals are JSON numbers")
	assert.Equal(t, "2024-03-06T14:00:00Z", body[0]["fecha_registro"])
}

func TestGetLatestStorageError(t *testing.T) {
	s, _ := newTestServer(&fakeQuerier{err: errors.New("connection refused")}, &fakeRunner{}, fakePinger{})

	rec := do(t, s, http.MethodGet, "/api/bolsa/actual")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"connection refused"}`, rec.Body.String())
}

func TestGetHistory(t *testing.T) {
	q := &fakeQuerier{history: []models.HistoryPoint{
		{Price: decimal.RequireFromString("11"), TimeOfQuote: "12:00", CapturedAt: captured.Add(-22 * time.Hour)},
		{Price: decimal.RequireFromString("12"), TimeOfQuote: "10:00", CapturedAt: captured},
	}}
	s, _ := newTestServer(q, &fakeRunner{}, fakePinger{})

	rec := do(t, s, http.MethodGet, "/api/bolsa/historial/MVZ.A/5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MVZ.A", q.gotSymbol)
	assert.Equal(t, 5, q.gotDays)

	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 2)
	assert.Equal(t, 11.0, body[0]["precio"])
	assert.Equal(t, "12:00", body[0]["hora"])
	assert.Contains(t, body[0], "fecha_registro")
}

func TestGetHistoryDecodesSymbolAndDefaultsDays(t *testing.T) {
	tests := []struct {
		target     string
		wantSymbol string
		wantDays   int
	}{
		{"/api/bolsa/historial/BNC/abc", "BNC", 1},
		{"/api/bolsa/historial/BNC/0", "BNC", 1},
		{"/api/bolsa/historial/BNC/-4", "BNC", 1},
		{"/api/bolsa/historial/FVI%20B/7", "FVI B", 7},
		{"/api/bolsa/historial/ABC%2FD/30", "ABC/D", 30},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			q := &fakeQuerier{history: []models.HistoryPoint{}}
			s, _ := newTestServer(q, &fakeRunner{}, fakePinger{})

			rec := do(t, s, http.MethodGet, tt.target)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantSymbol, q.gotSymbol)
			assert.Equal(t, tt.wantDays, q.gotDays)
			assert.JSONEq(t, `[]`, rec.Body.String())
		})
	}
}

func TestGetHistoryStorageError(t *testing.T) {
	s, _ := newTestServer(&fakeQuerier{err: errors.New("timeout")}, &fakeRunner{}, fakePinger{})

	rec := do(t, s, http.MethodGet, "/api/bolsa/historial/BNC/1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"timeout"}`, rec.Body.String())
}

func TestGetRanking(t *testing.T) {
	q := &fakeQuerier{ranking: []models.RankEntry{{Position: 1, PriceSnapshot: sampleLatest()[0]}}}
	s, _ := newTestServer(q, &fakeRunner{}, fakePinger{})

	rec := do(t, s, http.MethodGet, "/api/bolsa/ranking?limit=3")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, q.gotLimit)

	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.EqualValues(t, 1, body[0]["posicion"])
	assert.Equal(t, "BNC", body[0]["simbolo"])

	do(t, s, http.MethodGet, "/api/bolsa/ranking?limit=nope")
	assert.Equal(t, 10, q.gotLimit)
}

func TestForceCycleStatuses(t *testing.T) {
	tests := []struct {
		status ingest.Status
		want   int
	}{
		{ingest.StatusOK, http.StatusAccepted},
		{ingest.StatusBusy, http.StatusConflict},
		{ingest.StatusFetchFailed, http.StatusBadGateway},
		{ingest.StatusWriteFailed, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			runner := &fakeRunner{res: ingest.CycleResult{Status: tt.status, Inserted: 3}}
			s, _ := newTestServer(&fakeQuerier{latest: sampleLatest()}, runner, fakePinger{})

			rec := do(t, s, http.MethodPost, "/api/bolsa/actualizar")
			assert.Equal(t, tt.want, rec.Code)
			assert.True(t, runner.forced)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, string(tt.status), body["status"])
		})
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(&fakeQuerier{}, &fakeRunner{}, fakePinger{})
	rec := do(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	s, _ = newTestServer(&fakeQuerier{}, &fakeRunner{}, fakePinger{err: errors.New("down")})
	rec = do(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(&fakeQuerier{}, &fakeRunner{}, fakePinger{})
	rec := do(t, s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bolsa_ws_clients")
}

func TestWebSocketGreetsAndBroadcasts(t *testing.T) {
	q := &fakeQuerier{latest: sampleLatest()}
	s, hub := newTestServer(q, &fakeRunner{}, fakePinger{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(s.SetupRoutes())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	readMsg := func() map[string]interface{} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg map[string]interface{}
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	greeting := readMsg()
	assert.Equal(t, "snapshot", greeting["type"])

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	q.mu.Lock()
	q.latest = append(q.latest, models.PriceSnapshot{Symbol: "MVZ.A", CapturedAt: captured})
	q.mu.Unlock()
	s.NotifyCycle(context.Background(), ingest.CycleResult{Status: ingest.StatusOK})

	update := readMsg()
	assert.Equal(t, "snapshot", update["type"])
	data, ok := update["data"].([]interface{})
	require.True(t, ok)
	assert.Len(t, data, 2)
}

func TestHubDropsClientsOnShutdown(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- hub.Run(ctx) }()

	client := &WSClient{hub: hub, send: make(chan WSMessage, 1)}
	require.True(t, hub.Register(client))
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	_, open := <-client.send
	assert.False(t, open)
	assert.False(t, hub.Register(&WSClient{hub: hub, send: make(chan WSMessage)}))
	hub.Unregister(client)
}
