package alpaca

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/IvanovOleg/alpaca-markets-terminal/internal/event"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/infra"
)

type wsAuthRequest struct {
	Action string     `json:"action"`
	Data   wsAuthData `json:"data"`
}

type wsAuthData struct {
	KeyID     string `json:"key_id"`
	SecretKey string `json:"secret_key"`
}

type wsListenRequest struct {
	Action string       `json:"action"`
	Data   listenResult `json:"data"`
}

// TradingStream consumes Alpaca's order-update WebSocket. The handshake
// is authenticate → authorized → listen → listening; only after the
// listening confirmation are trade_updates frames forwarded, earlier
// ones are dropped with a warning. Order events block on the inbox:
// they are journal-bearing and must never be lost to backpressure.
type TradingStream struct {
	url       string
	keyID     string
	secretKey string
	inbox     chan<- event.Event
	base      *infra.StreamWorker

	mu   sync.Mutex
	conn *websocket.Conn

	confirmed atomic.Bool
}

// NewTradingStream creates the worker; Connect starts it.
func NewTradingStream(cfg *infra.Config, inbox chan<- event.Event) *TradingStream {
	s := &TradingStream{
		url:       cfg.TradingStreamURL(),
		keyID:     cfg.Alpaca.KeyID,
		secretKey: cfg.Alpaca.SecretKey,
		inbox:     inbox,
	}
	s.base = infra.NewStreamWorker(s)
	tuneWorker(s.base, cfg)
	return s
}

// ID returns the worker identifier.
func (s *TradingStream) ID() string { return "ALPACA_TRADING" }

// URL returns the trading stream endpoint.
func (s *TradingStream) URL() string { return s.url }

// Connect starts the supervised connection loop.
func (s *TradingStream) Connect(ctx context.Context) error {
	s.base.Start(ctx)
	return nil
}

// Disconnect terminates the connection and waits for the worker.
func (s *TradingStream) Disconnect() {
	s.base.Stop()
}

// State reports the supervisor state of the underlying worker.
func (s *TradingStream) State() infra.ConnState {
	return s.base.State()
}

// OnConnect authenticates. The subscription is sent only after the
// server confirms authorization.
func (s *TradingStream) OnConnect(ctx context.Context, conn *websocket.Conn) error {
	s.confirmed.Store(false)
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	req := wsAuthRequest{
		Action: "authenticate",
		Data:   wsAuthData{KeyID: s.keyID, SecretKey: s.secretKey},
	}
	b, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return s.base.Write(websocket.TextMessage, b)
}

// OnMessage dispatches one frame. Decode failures skip the frame and
// keep the connection up.
func (s *TradingStream) OnMessage(ctx context.Context, msg []byte) {
	var frame streamFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		slog.Warn("Trading stream: undecodable frame", "err", err)
		return
	}

	switch frame.Stream {
	case streamAuthorization:
		s.handleAuthorization(frame.Data)
	case streamListening:
		s.handleListening(frame.Data)
	case streamTradeUpdates:
		s.handleTradeUpdate(ctx, frame.Data)
	default:
		slog.Debug("Trading stream: ignoring frame", "stream", frame.Stream)
	}
}

// OnDisconnect resets the subscription gate and surfaces the drop to
// the session; the supervisor handles the redial.
func (s *TradingStream) OnDisconnect(err error) {
	s.confirmed.Store(false)

	reason := ""
	if err != nil {
		reason = err.Error()
	}
	s.sendStatus(event.StateDisconnected, reason)
}

func (s *TradingStream) handleAuthorization(data json.RawMessage) {
	var res authResult
	if err := json.Unmarshal(data, &res); err != nil {
		slog.Warn("Trading stream: bad authorization frame", "err", err)
		return
	}

	if res.Status != "authorized" {
		slog.Error("Trading stream: authorization rejected", "status", res.Status)
		s.closeConn() // read loop errors out, supervisor redials
		return
	}

	req := wsListenRequest{
		Action: "listen",
		Data:   listenResult{Streams: []string{streamTradeUpdates}},
	}
	b, _ := json.Marshal(req)
	if err := s.base.Write(websocket.TextMessage, b); err != nil {
		slog.Warn("Trading stream: listen request failed", "err", err)
	}
}

func (s *TradingStream) handleListening(data json.RawMessage) {
	var res listenResult
	if err := json.Unmarshal(data, &res); err != nil {
		slog.Warn("Trading stream: bad listening frame", "err", err)
		return
	}

	for _, name := range res.Streams {
		if name == streamTradeUpdates {
			s.confirmed.Store(true)
			slog.Info("Trading stream: trade_updates subscription confirmed")
			s.sendStatus(event.StateConnected, "")
			return
		}
	}
	slog.Warn("Trading stream: listening without trade_updates", "streams", res.Streams)
}

func (s *TradingStream) handleTradeUpdate(ctx context.Context, data json.RawMessage) {
	if !s.confirmed.Load() {
		slog.Warn("Trading stream: dropping trade update before listen confirmation")
		return
	}

	var tu tradeUpdate
	if err := json.Unmarshal(data, &tu); err != nil {
		slog.Warn("Trading stream: undecodable trade update", "err", err)
		return
	}

	kind, ok := kindFromWire(tu.Event)
	if !ok {
		slog.Debug("Trading stream: ignoring lifecycle event", "event", tu.Event)
		return
	}

	ord, err := tu.Order.toDomain()
	if err != nil {
		slog.Warn("Trading stream: dropping malformed order update",
			"event", tu.Event, "err", err)
		return
	}

	ev := &event.TradeUpdateEvent{
		BaseEvent: event.BaseEvent{Ts: time.Now().UTC()},
		Kind:      kind,
		Order:     ord,
	}

	// Backpressure, not loss: block until the session takes the event.
	select {
	case s.inbox <- ev:
	case <-ctx.Done():
	}
}

// sendStatus delivers a connection state change without ever blocking:
// status events are reconstructible, a hang during shutdown is not
// worth one.
func (s *TradingStream) sendStatus(state, reason string) {
	ev := &event.StreamStatusEvent{
		BaseEvent: event.BaseEvent{Ts: time.Now().UTC()},
		Source:    event.SourceTrading,
		State:     state,
		Reason:    reason,
	}
	select {
	case s.inbox <- ev:
	default:
		slog.Warn("Trading stream: inbox full, dropping status event", "state", state)
	}
}

func (s *TradingStream) closeConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
	}
}

// tuneWorker applies the configured stream timings onto a worker.
func tuneWorker(w *infra.StreamWorker, cfg *infra.Config) {
	if cfg.Stream.ReconnectDelaySec > 0 {
		w.ReconnectDelay = time.Duration(cfg.Stream.ReconnectDelaySec) * time.Second
	}
	if cfg.Stream.ConnectTimeoutSec > 0 {
		w.ConnectTimeout = time.Duration(cfg.Stream.ConnectTimeoutSec) * time.Second
	}
	if cfg.Stream.ReadTimeoutSec > 0 {
		w.ReadTimeout = time.Duration(cfg.Stream.ReadTimeoutSec) * time.Second
	}
	if cfg.Stream.PingIntervalSec > 0 {
		w.PingInterval = time.Duration(cfg.Stream.PingIntervalSec) * time.Second
	}
}
