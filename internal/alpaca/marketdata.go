package alpaca

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/IvanovOleg/alpaca-markets-terminal/internal/event"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/infra"
)

type mdAuthRequest struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

type mdSubscribeRequest struct {
	Action string   `json:"action"`
	Bars   []string `json:"bars"`
}

// mdFrameHead is the discriminator of one element of a v2 array frame.
type mdFrameHead struct {
	Type string `json:"T"`
	Msg  string `json:"msg"`
	Code int    `json:"code"`
}

// streamBar is a bar element; "S" carries the symbol, the rest matches
// the REST bar shape.
type streamBar struct {
	Symbol string `json:"S"`
	barDTO
}

// MarketDataStream consumes the v2 market data WebSocket for minute
// bars. Bars are derived data the REST backfill can always rebuild, so
// sends never block the socket: a full inbox drops the bar and counts it.
type MarketDataStream struct {
	url       string
	keyID     string
	secretKey string
	symbols   []string
	inbox     chan<- event.Event
	base      *infra.StreamWorker

	mu   sync.Mutex
	conn *websocket.Conn

	subscribed atomic.Bool
	dropped    atomic.Uint64
}

// NewMarketDataStream creates the worker; Connect starts it.
func NewMarketDataStream(cfg *infra.Config, inbox chan<- event.Event) *MarketDataStream {
	s := &MarketDataStream{
		url:       cfg.MarketStreamURL(),
		keyID:     cfg.Alpaca.KeyID,
		secretKey: cfg.Alpaca.SecretKey,
		symbols:   cfg.Chart.Symbols,
		inbox:     inbox,
	}
	s.base = infra.NewStreamWorker(s)
	tuneWorker(s.base, cfg)
	return s
}

// ID returns the worker identifier.
func (s *MarketDataStream) ID() string { return "ALPACA_MARKET_DATA" }

// URL returns the market data endpoint for the configured feed.
func (s *MarketDataStream) URL() string { return s.url }

// Connect starts the supervised connection loop.
func (s *MarketDataStream) Connect(ctx context.Context) error {
	s.base.Start(ctx)
	return nil
}

// Disconnect terminates the connection and waits for the worker.
func (s *MarketDataStream) Disconnect() {
	s.base.Stop()
}

// State reports the supervisor state of the underlying worker.
func (s *MarketDataStream) State() infra.ConnState {
	return s.base.State()
}

// Dropped returns how many bars were shed to backpressure.
func (s *MarketDataStream) Dropped() uint64 {
	return s.dropped.Load()
}

// OnConnect authenticates; the server answers with a success frame and
// the bar subscription follows from there.
func (s *MarketDataStream) OnConnect(ctx context.Context, conn *websocket.Conn) error {
	s.subscribed.Store(false)
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	req := mdAuthRequest{Action: "auth", Key: s.keyID, Secret: s.secretKey}
	b, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return s.base.Write(websocket.TextMessage, b)
}

// OnMessage handles one v2 frame: a JSON array of typed elements.
func (s *MarketDataStream) OnMessage(ctx context.Context, msg []byte) {
	var elems []json.RawMessage
	if err := json.Unmarshal(msg, &elems); err != nil {
		slog.Warn("Market data: undecodable frame", "err", err)
		return
	}

	for _, raw := range elems {
		var head mdFrameHead
		if err := json.Unmarshal(raw, &head); err != nil {
			slog.Warn("Market data: undecodable element", "err", err)
			continue
		}

		switch head.Type {
		case "success":
			if head.Msg == "authenticated" {
				s.subscribe()
			}
		case "subscription":
			s.handleSubscription(raw)
		case "b":
			s.handleBar(raw)
		case "error":
			slog.Error("Market data: server error", "code", head.Code, "msg", head.Msg)
			if strings.Contains(head.Msg, "auth") {
				s.closeConn() // forces the reconnect cycle
			}
		default:
			slog.Debug("Market data: ignoring element", "type", head.Type)
		}
	}
}

// OnDisconnect resets the subscription gate and surfaces the drop.
func (s *MarketDataStream) OnDisconnect(err error) {
	s.subscribed.Store(false)

	reason := ""
	if err != nil {
		reason = err.Error()
	}
	s.sendStatus(event.StateDisconnected, reason)
}

func (s *MarketDataStream) subscribe() {
	req := mdSubscribeRequest{Action: "subscribe", Bars: s.symbols}
	b, _ := json.Marshal(req)
	if err := s.base.Write(websocket.TextMessage, b); err != nil {
		slog.Warn("Market data: subscribe request failed", "err", err)
	}
}

func (s *MarketDataStream) handleSubscription(raw json.RawMessage) {
	var sub struct {
		Bars []string `json:"bars"`
	}
	if err := json.Unmarshal(raw, &sub); err != nil {
		slog.Warn("Market data: bad subscription frame", "err", err)
		return
	}

	if len(sub.Bars) == 0 {
		slog.Warn("Market data: subscription confirmed without bars")
		return
	}

	s.subscribed.Store(true)
	slog.Info("Market data: bar subscription confirmed", "symbols", sub.Bars)
	s.sendStatus(event.StateConnected, "")
}

func (s *MarketDataStream) handleBar(raw json.RawMessage) {
	var sb streamBar
	if err := json.Unmarshal(raw, &sb); err != nil {
		slog.Warn("Market data: undecodable bar", "err", err)
		return
	}

	candle, err := sb.toDomain()
	if err != nil {
		slog.Warn("Market data: dropping malformed bar", "symbol", sb.Symbol, "err", err)
		return
	}

	ev := event.AcquireBarUpdateEvent()
	ev.Ts = time.Now().UTC()
	ev.Symbol = sb.Symbol
	ev.Bar = candle

	select {
	case s.inbox <- ev:
	default:
		event.ReleaseBarUpdateEvent(ev)
		slog.Warn("Market data: inbox full, dropping bar",
			"symbol", sb.Symbol, "dropped", s.dropped.Add(1))
	}
}

func (s *MarketDataStream) sendStatus(state, reason string) {
	ev := &event.StreamStatusEvent{
		BaseEvent: event.BaseEvent{Ts: time.Now().UTC()},
		Source:    event.SourceMarketData,
		State:     state,
		Reason:    reason,
	}
	select {
	case s.inbox <- ev:
	default:
		slog.Warn("Market data: inbox full, dropping status event", "state", state)
	}
}

func (s *MarketDataStream) closeConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
	}
}
