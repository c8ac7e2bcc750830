package events_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel/mpc-engine/internal/events"
	"github.com/sentinel/mpc-engine/internal/metrics"
	"github.com/sentinel/mpc-engine/internal/model"
)

func TestWSHub_BroadcastsEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := events.NewWSHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	ev := model.Event{
		ID:            "ev-1",
		Kind:          model.EventLiquidationRiskCalculated,
		Circuit:       "calculate_liquidation_risk",
		CorrelationID: 7,
		Payload:       model.LiquidationRiskCalculated{RiskLevel: 2},
		Timestamp:     1700000000,
	}
	require.NoError(t, hub.Publish(ctx, ev))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got struct {
		ID            string          `json:"id"`
		Kind          string          `json:"kind"`
		CorrelationID uint64          `json:"correlation_id"`
		Payload       json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "ev-1", got.ID)
	assert.Equal(t, "LiquidationRiskCalculated", got.Kind)
	assert.Equal(t, uint64(7), got.CorrelationID)
	assert.JSONEq(t, `{"risk_level":2}`, string(got.Payload))
}

func TestWSHub_ClosesClientsOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := events.NewWSHub()
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-stopped
	assert.Equal(t, 0, hub.Clients())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestWSHub_UpgradesBehindServerMiddleware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := events.NewWSHub()
	go hub.Run(ctx)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)
	r.Get("/api/v1/ws", hub.HandleWS)

	srv := httptest.NewServer(r)
	defer srv.Close()

	upgraded := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/ws", "101")
	before := testutil.ToFloat64(upgraded)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return testutil.ToFloat64(upgraded) == before+1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(ctx, model.Event{
		ID:      "ev-mw",
		Kind:    model.EventLiquidationRiskCalculated,
		Payload: model.LiquidationRiskCalculated{RiskLevel: 1},
	}))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "ev-mw")
}
