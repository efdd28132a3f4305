package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-spread-lab/internal/backtest"
	"options-spread-lab/internal/config"
	"options-spread-lab/internal/domain"
	"options-spread-lab/internal/fixtures"
	"options-spread-lab/internal/observability"
	"options-spread-lab/internal/reporting"
	"options-spread-lab/internal/storage/memory"
	"options-spread-lab/internal/strategy"
	"options-spread-lab/internal/verification"
)

type testEnv struct {
	server *Server
	router *gin.Engine
	hub    *Hub
	store  *memory.TradeRecordStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	fx := fixtures.DefaultConfig()
	fx.Location = time.UTC
	fx.StartSpot = 10000
	fx.StrikesEachSide = 8
	provider := memory.NewMarketData()
	_, err := fixtures.Populate(ctx, provider, fx,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	cfg := config.DefaultStrategyConfig()
	cfg.Timezone = "UTC"
	cfg.LotSize = 15
	manager, err := strategy.NewLifecycleManager(cfg, provider, nil)
	require.NoError(t, err)

	m := observability.NewMetrics("api_test", prometheus.NewRegistry())
	hub := NewHub(m, nil)
	store := memory.NewTradeRecordStore()
	runner, err := backtest.NewRunner(manager, provider, store, nil,
		backtest.WithSinks(hub),
		backtest.WithMetrics(m),
		backtest.WithRunIDFunc(func() string { return "run-1" }))
	require.NoError(t, err)

	server := NewServer(Deps{
		Runner:    runner,
		Store:     store,
		Generator: reporting.NewGenerator(store, cfg),
		Verifier:  verification.NewReplayVerifier(store, manager),
		Hub:       hub,
		Location:  time.UTC,
	})
	return &testEnv{server: server, router: server.Router(), hub: hub, store: store}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) startRun(t *testing.T) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/runs", gin.H{"from": "2024-01-01", "to": "2024-01-05"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestStartRun_ReturnsSummary(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/runs", gin.H{"from": "2024-01-01", "to": "2024-01-05"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		RunID   string `json:"run_id"`
		Trades  int    `json:"trades"`
		Summary struct {
			TradingDays int `json:"trading_days"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, 5, resp.Trades)
	assert.Equal(t, 5, resp.Summary.TradingDays)
}

func TestStartRun_BadRequests(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body interface{}
		code int
	}{
		{"missing fields", gin.H{"from": "2024-01-01"}, http.StatusBadRequest},
		{"bad date", gin.H{"from": "01/01/2024", "to": "2024-01-05"}, http.StatusBadRequest},
		{"inverted", gin.H{"from": "2024-01-05", "to": "2024-01-01"}, http.StatusBadRequest},
		{"no dates", gin.H{"from": "2025-01-01", "to": "2025-01-05"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/runs", tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
		})
	}
}

func TestRunResults(t *testing.T) {
	env := newTestEnv(t)
	env.startRun(t)

	w := env.do(t, http.MethodGet, "/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"run_id":"run-1"`)
	assert.Contains(t, w.Body.String(), `"trade_count":5`)

	w = env.do(t, http.MethodGet, "/runs/run-1/trades", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var trades struct {
		Trades []domain.TradeRecord `json:"trades"`
		Count  int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &trades))
	assert.Equal(t, 5, trades.Count)

	w = env.do(t, http.MethodGet, "/trades/"+trades.Trades[0].TradeID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/runs/run-1/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"trading_days":5`)

	w = env.do(t, http.MethodGet, "/runs/run-1/report.md", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "# Backtest Report"))
	assert.Contains(t, w.Header().Get("Content-Type"), "text/markdown")

	w = env.do(t, http.MethodGet, "/runs/run-1/trades.csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "trade_id,"))

	w = env.do(t, http.MethodGet, "/runs/run-1/verify", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"MatchedTrades":5`)
}

func TestRunResults_NotFound(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{
		"/runs/missing/trades",
		"/runs/missing/trades.csv",
		"/runs/missing/summary",
		"/runs/missing/report.md",
		"/runs/missing/verify",
		"/trades/missing",
	} {
		w := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestStream_BroadcastsTrades(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	env.startRun(t)

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for i := 0; i < 5; i++ {
		var rec domain.TradeRecord
		require.NoError(t, conn.ReadJSON(&rec))
		assert.Equal(t, "run-1", rec.RunID)
	}
}

func TestStream_ClientDisconnect(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return env.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool { return env.hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
