package alpaca

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanovOleg/alpaca-markets-terminal/internal/domain"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/event"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/infra"
)

// newMockWSServer upgrades incoming connections and hands them to the
// scripted handler. The handler returns when the client hangs up.
func newMockWSServer(t *testing.T, handle func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handle(conn)
	}))
}

func httpToWS(url string) string {
	return strings.Replace(url, "http://", "ws://", 1)
}

func waitEvent(t *testing.T, inbox <-chan event.Event, timeout time.Duration) event.Event {
	t.Helper()
	select {
	case ev := <-inbox:
		return ev
	case <-time.After(timeout):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

// newTestTradingStream builds a stream without a config, pointed at url.
func newTestTradingStream(url string, inbox chan event.Event) *TradingStream {
	s := &TradingStream{
		url:       url,
		keyID:     "test-key",
		secretKey: "test-secret",
		inbox:     inbox,
	}
	s.base = infra.NewStreamWorker(s)
	s.base.ReconnectDelay = 100 * time.Millisecond
	return s
}

const fillFrame = `{
	"stream": "trade_updates",
	"data": {
		"event": "fill",
		"order": {
			"id": "ord-1",
			"client_order_id": "cli-1",
			"symbol": "AAPL",
			"side": "buy",
			"qty": "10",
			"filled_qty": "10",
			"type": "market",
			"status": "filled",
			"submitted_at": "2025-06-02T14:30:00Z",
			"updated_at": "2025-06-02T14:31:00Z"
		}
	}
}`

func TestTradingStream_HandshakeAndForwarding(t *testing.T) {
	server := newMockWSServer(t, func(conn *websocket.Conn) {
		// authenticate
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var auth wsAuthRequest
		assert.NoError(t, json.Unmarshal(msg, &auth))
		assert.Equal(t, "authenticate", auth.Action)
		assert.Equal(t, "test-key", auth.Data.KeyID)

		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"stream":"authorization","data":{"status":"authorized","action":"authenticate"}}`))

		// listen
		_, msg, err = conn.ReadMessage()
		if err != nil {
			return
		}
		var listen wsListenRequest
		assert.NoError(t, json.Unmarshal(msg, &listen))
		assert.Equal(t, "listen", listen.Action)
		assert.Contains(t, listen.Data.Streams, "trade_updates")

		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"stream":"listening","data":{"streams":["trade_updates"]}}`))
		conn.WriteMessage(websocket.TextMessage, []byte(fillFrame))

		// hold the connection until the client hangs up
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	inbox := make(chan event.Event, 16)
	stream := newTestTradingStream(httpToWS(server.URL)+"/stream", inbox)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, stream.Connect(ctx))
	defer stream.Disconnect()

	ev := waitEvent(t, inbox, 2*time.Second)
	status, ok := ev.(*event.StreamStatusEvent)
	require.True(t, ok, "expected StreamStatusEvent, got %T", ev)
	assert.Equal(t, event.SourceTrading, status.Source)
	assert.Equal(t, event.StateConnected, status.State)

	ev = waitEvent(t, inbox, 2*time.Second)
	trade, ok := ev.(*event.TradeUpdateEvent)
	require.True(t, ok, "expected TradeUpdateEvent, got %T", ev)
	assert.Equal(t, domain.KindFill, trade.Kind)
	assert.Equal(t, "ord-1", trade.Order.ID)
	assert.Equal(t, domain.StatusFilled, trade.Order.Status)
	assert.True(t, trade.Order.Qty.Equal(decimal.NewFromInt(10)))
}

func TestTradingStream_GateDropsEarlyFrames(t *testing.T) {
	inbox := make(chan event.Event, 16)
	stream := newTestTradingStream("ws://unused", inbox)
	ctx := context.Background()

	// Before the listening confirmation, trade updates are dropped.
	stream.OnMessage(ctx, []byte(fillFrame))
	select {
	case ev := <-inbox:
		t.Fatalf("unconfirmed frame was forwarded: %T", ev)
	case <-time.After(50 * time.Millisecond):
	}

	// Confirmation opens the gate and emits a connected status.
	stream.OnMessage(ctx, []byte(`{"stream":"listening","data":{"streams":["trade_updates"]}}`))
	ev := waitEvent(t, inbox, time.Second)
	status, ok := ev.(*event.StreamStatusEvent)
	require.True(t, ok, "expected StreamStatusEvent, got %T", ev)
	assert.Equal(t, event.StateConnected, status.State)

	stream.OnMessage(ctx, []byte(fillFrame))
	ev = waitEvent(t, inbox, time.Second)
	_, ok = ev.(*event.TradeUpdateEvent)
	require.True(t, ok, "expected TradeUpdateEvent, got %T", ev)
}

func TestTradingStream_IgnoresUnknownLifecycleKinds(t *testing.T) {
	inbox := make(chan event.Event, 16)
	stream := newTestTradingStream("ws://unused", inbox)
	stream.confirmed.Store(true)

	frame := `{"stream":"trade_updates","data":{"event":"done_for_day","order":{"id":"ord-1","symbol":"AAPL","side":"buy","qty":"1","type":"market","status":"new"}}}`
	stream.OnMessage(context.Background(), []byte(frame))

	select {
	case ev := <-inbox:
		t.Fatalf("unmapped lifecycle kind was forwarded: %T", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTradingStream_MalformedOrderDropped(t *testing.T) {
	inbox := make(chan event.Event, 16)
	stream := newTestTradingStream("ws://unused", inbox)
	stream.confirmed.Store(true)
	ctx := context.Background()

	// Unparseable money field.
	frame := `{"stream":"trade_updates","data":{"event":"fill","order":{"id":"ord-1","symbol":"AAPL","side":"buy","qty":"NaN-ish","type":"market","status":"filled"}}}`
	stream.OnMessage(ctx, []byte(frame))

	// Not JSON at all.
	stream.OnMessage(ctx, []byte(`{{{`))

	select {
	case ev := <-inbox:
		t.Fatalf("malformed frame was forwarded: %T", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTradingStream_DisconnectEmitsStatus(t *testing.T) {
	inbox := make(chan event.Event, 16)
	stream := newTestTradingStream("ws://unused", inbox)
	stream.confirmed.Store(true)

	stream.OnDisconnect(errors.New("read tcp: connection reset"))

	ev := waitEvent(t, inbox, time.Second)
	status, ok := ev.(*event.StreamStatusEvent)
	require.True(t, ok, "expected StreamStatusEvent, got %T", ev)
	assert.Equal(t, event.SourceTrading, status.Source)
	assert.Equal(t, event.StateDisconnected, status.State)
	assert.Contains(t, status.Reason, "connection reset")

	// The gate is closed again until the next confirmation.
	assert.False(t, stream.confirmed.Load())
}
