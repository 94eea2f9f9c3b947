package alpaca

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanovOleg/alpaca-markets-terminal/internal/event"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/infra"
)

func newTestMarketDataStream(url string, symbols []string, inbox chan event.Event) *MarketDataStream {
	s := &MarketDataStream{
		url:       url,
		keyID:     "test-key",
		secretKey: "test-secret",
		symbols:   symbols,
		inbox:     inbox,
	}
	s.base = infra.NewStreamWorker(s)
	s.base.ReconnectDelay = 100 * time.Millisecond
	return s
}

const barFrame = `[{
	"T": "b",
	"S": "AAPL",
	"t": "2025-06-02T14:30:00Z",
	"o": 190.12,
	"h": 190.80,
	"l": 189.95,
	"c": 190.55,
	"v": 12345,
	"n": 321,
	"vw": 190.33
}]`

func TestMarketDataStream_AuthSubscribeAndBars(t *testing.T) {
	server := newMockWSServer(t, func(conn *websocket.Conn) {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var auth mdAuthRequest
		assert.NoError(t, json.Unmarshal(msg, &auth))
		assert.Equal(t, "auth", auth.Action)
		assert.Equal(t, "test-key", auth.Key)

		conn.WriteMessage(websocket.TextMessage,
			[]byte(`[{"T":"success","msg":"authenticated"}]`))

		_, msg, err = conn.ReadMessage()
		if err != nil {
			return
		}
		var sub mdSubscribeRequest
		assert.NoError(t, json.Unmarshal(msg, &sub))
		assert.Equal(t, "subscribe", sub.Action)
		assert.Equal(t, []string{"AAPL"}, sub.Bars)

		conn.WriteMessage(websocket.TextMessage,
			[]byte(`[{"T":"subscription","trades":[],"quotes":[],"bars":["AAPL"]}]`))
		conn.WriteMessage(websocket.TextMessage, []byte(barFrame))

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	inbox := make(chan event.Event, 16)
	stream := newTestMarketDataStream(httpToWS(server.URL)+"/v2/iex", []string{"AAPL"}, inbox)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, stream.Connect(ctx))
	defer stream.Disconnect()

	ev := waitEvent(t, inbox, 2*time.Second)
	status, ok := ev.(*event.StreamStatusEvent)
	require.True(t, ok, "expected StreamStatusEvent, got %T", ev)
	assert.Equal(t, event.SourceMarketData, status.Source)
	assert.Equal(t, event.StateConnected, status.State)

	ev = waitEvent(t, inbox, 2*time.Second)
	bar, ok := ev.(*event.BarUpdateEvent)
	require.True(t, ok, "expected BarUpdateEvent, got %T", ev)
	assert.Equal(t, "AAPL", bar.Symbol)
	assert.True(t, bar.Bar.Open.Equal(decimal.RequireFromString("190.12")), "open: %s", bar.Bar.Open)
	assert.True(t, bar.Bar.Close.Equal(decimal.RequireFromString("190.55")))
	assert.Equal(t, int64(12345), bar.Bar.Volume)
	event.ReleaseBarUpdateEvent(bar)
}

func TestMarketDataStream_BarParsing(t *testing.T) {
	inbox := make(chan event.Event, 16)
	stream := newTestMarketDataStream("ws://unused", []string{"AAPL"}, inbox)

	stream.OnMessage(context.Background(), []byte(barFrame))

	ev := waitEvent(t, inbox, time.Second)
	bar, ok := ev.(*event.BarUpdateEvent)
	require.True(t, ok, "expected BarUpdateEvent, got %T", ev)
	assert.Equal(t, "AAPL", bar.Symbol)
	assert.Equal(t, time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC), bar.Bar.Start)
	assert.True(t, bar.Bar.High.Equal(decimal.RequireFromString("190.80")))
	assert.True(t, bar.Bar.Low.Equal(decimal.RequireFromString("189.95")))
	assert.Equal(t, int64(321), bar.Bar.TradeCount)
	event.ReleaseBarUpdateEvent(bar)
}

func TestMarketDataStream_FullInboxDropsBar(t *testing.T) {
	inbox := make(chan event.Event) // unbuffered, nobody reading
	stream := newTestMarketDataStream("ws://unused", []string{"AAPL"}, inbox)

	stream.OnMessage(context.Background(), []byte(barFrame))
	stream.OnMessage(context.Background(), []byte(barFrame))

	assert.Equal(t, uint64(2), stream.Dropped())
}

func TestMarketDataStream_MalformedElementsSkipped(t *testing.T) {
	inbox := make(chan event.Event, 16)
	stream := newTestMarketDataStream("ws://unused", []string{"AAPL"}, inbox)
	ctx := context.Background()

	// Bad OHLC value inside an otherwise valid frame.
	stream.OnMessage(ctx, []byte(`[{"T":"b","S":"AAPL","t":"2025-06-02T14:30:00Z","o":"oops","h":1,"l":1,"c":1,"v":1,"n":1}]`))
	// Not an array.
	stream.OnMessage(ctx, []byte(`{"T":"b"}`))
	// Unknown element type.
	stream.OnMessage(ctx, []byte(`[{"T":"q","S":"AAPL"}]`))
	// Server-side error element.
	stream.OnMessage(ctx, []byte(`[{"T":"error","code":405,"msg":"symbol limit exceeded"}]`))

	select {
	case ev := <-inbox:
		t.Fatalf("malformed input was forwarded: %T", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMarketDataStream_DisconnectEmitsStatus(t *testing.T) {
	inbox := make(chan event.Event, 16)
	stream := newTestMarketDataStream("ws://unused", []string{"AAPL"}, inbox)
	stream.subscribed.Store(true)

	stream.OnDisconnect(nil)

	ev := waitEvent(t, inbox, time.Second)
	status, ok := ev.(*event.StreamStatusEvent)
	require.True(t, ok, "expected StreamStatusEvent, got %T", ev)
	assert.Equal(t, event.SourceMarketData, status.Source)
	assert.Equal(t, event.StateDisconnected, status.State)
	assert.False(t, stream.subscribed.Load())
}
