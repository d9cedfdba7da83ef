package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/eventbus"
)

type staticStatus domain.EngineStatus

func (s staticStatus) Status() domain.EngineStatus { return domain.EngineStatus(s) }

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	var evt map[string]any
	require.NoError(t, json.Unmarshal(data, &evt))
	return evt
}

func TestHub_RelaysBusEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := eventbus.NewLocal()
	hub := NewHub(bus, staticStatus{Mode: "scan", Running: true}, slog.New(slog.DiscardHandler))
	go func() { _ = hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, srv)
	hello := readEvent(t, conn)
	assert.Equal(t, "engine_status", hello["event"])
	assert.Equal(t, "scan", hello["data"].(map[string]any)["mode"])

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	// The bus subscriptions start asynchronously, so keep publishing until
	// the first event arrives.
	payload, _ := json.Marshal(domain.Event{Type: "trade_executed", Data: map[string]any{"id": "o1"}})
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = bus.Publish(ctx, domain.ChannelTrade, payload)
			}
		}
	}()

	evt := readEvent(t, conn)
	assert.Equal(t, "trade_executed", evt["event"])
	assert.Equal(t, "o1", evt["data"].(map[string]any)["id"])
}

func TestClient_Subscriptions(t *testing.T) {
	c := &client{subs: map[string]bool{domain.ChannelTrade: true}}
	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{domain.ChannelTrade}})
	assert.False(t, c.isSubscribed(domain.ChannelTrade))

	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{domain.ChannelRisk}})
	assert.True(t, c.isSubscribed(domain.ChannelRisk))
	assert.False(t, c.isSubscribed(domain.ChannelOpportunity))
}
