package infra

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ConnState is the supervisor state of a stream worker.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// StreamHandler defines stream-specific logic for the StreamWorker:
// which URL to dial, the auth/subscribe handshake, and frame handling.
// OnDisconnect fires once per established connection when it ends.
type StreamHandler interface {
	URL() string
	OnConnect(ctx context.Context, conn *websocket.Conn) error
	OnMessage(ctx context.Context, msg []byte)
	OnDisconnect(err error)
	ID() string
}

// StreamWorker manages the lifecycle of one WebSocket connection: dial,
// read loop, keepalive and reconnection. Reconnects use a fixed delay and
// never give up; only Stop or context cancellation ends the loop. The
// first dial is immediate, the delay applies between any two attempts.
type StreamWorker struct {
	handler StreamHandler
	mu      sync.RWMutex
	conn    *websocket.Conn
	state   ConnState
	writeMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	ReconnectDelay time.Duration
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
}

// NewStreamWorker creates a worker with the default timings.
func NewStreamWorker(handler StreamHandler) *StreamWorker {
	return &StreamWorker{
		handler:        handler,
		ReconnectDelay: 5 * time.Second,
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
	}
}

// Start initiates the connection loop.
func (w *StreamWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.runLoop(ctx)
}

// Stop terminates the worker and waits for its goroutines.
func (w *StreamWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.close()
	w.wg.Wait()
}

// State returns the current supervisor state.
func (w *StreamWorker) State() ConnState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *StreamWorker) setState(s ConnState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *StreamWorker) runLoop(ctx context.Context) {
	defer w.wg.Done()
	first := true

	for {
		select {
		case <-ctx.Done():
			w.setState(StateDisconnected)
			return
		default:
		}

		if !first {
			select {
			case <-ctx.Done():
				w.setState(StateDisconnected)
				return
			case <-time.After(w.ReconnectDelay):
			}
		}
		first = false

		if err := w.connect(ctx); err != nil {
			slog.Warn("WS Connection failed", "id", w.handler.ID(), "err", err)
			w.setState(StateDisconnected)
			continue
		}

		err := w.process(ctx)
		w.setState(StateDisconnected)
		w.handler.OnDisconnect(err)
	}
}

func (w *StreamWorker) connect(ctx context.Context) error {
	w.setState(StateConnecting)

	dialer := websocket.Dialer{HandshakeTimeout: w.ConnectTimeout}
	header := make(http.Header)
	header.Set("User-Agent", DefaultUserAgent)

	conn, _, err := dialer.DialContext(ctx, w.handler.URL(), header)
	if err != nil {
		return err
	}

	// Heartbeats are transport-internal: server pings get a pong and both
	// ping and pong traffic extend the read deadline, so a quiet but live
	// stream never trips the watchdog.
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(w.ReadTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(w.ReadTimeout))
		return nil
	})

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	if err := w.handler.OnConnect(ctx, conn); err != nil {
		w.close()
		return fmt.Errorf("OnConnect failed: %w", err)
	}

	if w.PingInterval > 0 {
		w.wg.Add(1)
		go w.pingLoop(ctx, conn)
	}

	w.setState(StateConnected)
	slog.Info("WS Connected", "id", w.handler.ID())
	return nil
}

func (w *StreamWorker) process(ctx context.Context) error {
	for {
		w.mu.RLock()
		c := w.conn
		w.mu.RUnlock()
		if c == nil {
			return nil
		}

		c.SetReadDeadline(time.Now().Add(w.ReadTimeout))
		_, msg, err := c.ReadMessage()
		if err != nil {
			slog.Warn("WS Read error", "id", w.handler.ID(), "err", err)
			w.close()
			return err
		}

		w.handler.OnMessage(ctx, msg)
	}
}

// pingLoop sends protocol-level pings so intermediaries keep the
// connection alive and the peer's pongs refresh our read deadline.
func (w *StreamWorker) pingLoop(ctx context.Context, conn *websocket.Conn) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				// Socket is gone; the read loop notices and reconnects.
				return
			}
		}
	}
}

// Write sends one message on the current connection. Writes are
// serialized; handlers use this for handshake and subscribe frames.
func (w *StreamWorker) Write(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.RLock()
	c := w.conn
	w.mu.RUnlock()

	if c == nil {
		return fmt.Errorf("ws not connected")
	}

	return c.WriteMessage(msgType, data)
}

func (w *StreamWorker) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}
