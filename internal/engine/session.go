package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/IvanovOleg/alpaca-markets-terminal/internal/domain"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/event"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/infra"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/storage"
)

// StreamHealth is the connection status the UI surfaces in its footer.
type StreamHealth struct {
	TradingConnected    bool      `json:"trading_connected"`
	MarketDataConnected bool      `json:"market_data_connected"`
	LastEventAt         time.Time `json:"last_event_at"`
}

// View is a read-only copy of the session state for presentation.
// Orders are the open ones, most recent first.
type View struct {
	Seq       uint64                 `json:"seq"`
	Orders    []domain.Order         `json:"orders"`
	Account   domain.AccountSnapshot `json:"account"`
	Positions []domain.Position      `json:"positions"`
	Health    StreamHealth           `json:"health"`
}

// Session is the single consumer of the event inbox. It owns the order
// book, account state, positions and candle series; every mutation goes
// through Run's loop, strictly in arrival order. External readers get
// copies through Snapshot and Candles.
type Session struct {
	inbox     chan event.Event
	book      domain.OrderBook
	account   domain.AccountSnapshot
	positions []domain.Position
	charts    map[string]*domain.CandleSeries
	health    StreamHealth

	// nextSeq is the stamp for the next dequeued event. Arrival order is
	// the authoritative order; producers never carry a sequence.
	nextSeq uint64

	journal   *storage.Journal
	snapshots *storage.SnapshotManager

	snapshotInterval int
	snapshotKeep     int
	sinceSnapshot    int

	chartTimeframe domain.Timeframe
	chartLimit     int

	// Boundary: notifies the UI (or any consumer) that state changed.
	onUpdate func()

	mu sync.RWMutex
}

// NewSession creates a session. journal and snapshots may be nil, which
// disables persistence and recovery.
func NewSession(cfg *infra.Config, journal *storage.Journal, snapshots *storage.SnapshotManager, onUpdate func()) *Session {
	return &Session{
		inbox:            make(chan event.Event, cfg.Stream.InboxSize),
		book:             make(domain.OrderBook),
		charts:           make(map[string]*domain.CandleSeries),
		nextSeq:          1,
		journal:          journal,
		snapshots:        snapshots,
		snapshotInterval: cfg.Journal.SnapshotInterval,
		snapshotKeep:     cfg.Journal.SnapshotKeep,
		chartTimeframe:   domain.Timeframe(cfg.Chart.Timeframe),
		chartLimit:       cfg.Chart.BarLimit,
		onUpdate:         onUpdate,
	}
}

// Inbox returns the event channel. Stream workers and executors send here.
func (s *Session) Inbox() chan<- event.Event {
	return s.inbox
}

// Recover restores state from the latest snapshot, then replays journaled
// events past it through the same reducers the live path uses.
func (s *Session) Recover(ctx context.Context) error {
	fromSeq := uint64(1)

	if s.snapshots != nil {
		snap, err := s.snapshots.LoadLatest()
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		if snap != nil {
			s.mu.Lock()
			s.book = snap.Orders
			if s.book == nil {
				s.book = make(domain.OrderBook)
			}
			s.account = snap.Account
			s.positions = snap.Positions
			s.mu.Unlock()

			s.nextSeq = snap.Seq + 1
			fromSeq = snap.Seq + 1
		}
	}

	if s.journal == nil {
		return nil
	}

	events, err := s.journal.LoadFrom(ctx, fromSeq)
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}
	if len(events) == 0 {
		slog.Info("Nothing to replay", "next_seq", s.nextSeq)
		return nil
	}

	slog.Info("Replaying journal", "from_seq", fromSeq, "count", len(events))
	for _, ev := range events {
		s.replayEvent(ev)
	}
	slog.Info("State recovered", "next_seq", s.nextSeq)
	return nil
}

// Run drains the inbox until ctx is canceled. This must be the only
// goroutine mutating session state.
func (s *Session) Run(ctx context.Context) {
	slog.Info("Session started")

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState("panic_dump.json")
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Session stopping")
			return
		case ev := <-s.inbox:
			s.processEvent(ctx, ev)
		}
	}
}

func (s *Session) processEvent(ctx context.Context, ev event.Event) {
	// 1. Stamp: dequeue position is the event's identity.
	ev.SetSeq(s.nextSeq)

	// 2. Journal-first for events that carry trading state. Bars and
	// stream status are reconstructible and stay out of the journal.
	// A write failure is logged, never fatal: the in-memory terminal
	// keeps working, only recovery fidelity degrades.
	if s.journal != nil && journaled(ev.GetType()) {
		if err := s.journal.Append(ctx, ev); err != nil {
			slog.Error("Journal write failed", "seq", ev.GetSeq(), "err", err)
		}
	}

	// 3. Reduce. Ts is read before dispatch: bar events go back to the
	// pool in there and must not be touched afterwards.
	ts := ev.GetTs()
	s.mu.Lock()
	s.dispatch(ev)
	s.health.LastEventAt = ts
	s.mu.Unlock()

	s.nextSeq++

	// 4. Periodic snapshot, then redraw signal.
	s.maybeSnapshot()
	if s.onUpdate != nil {
		s.onUpdate()
	}
}

// replayEvent applies a journaled event without re-journaling it. Journal
// sequence numbers are sparse (bars and status events consumed stamps but
// were not persisted), so the cursor jumps to each event's stamp.
func (s *Session) replayEvent(ev event.Event) {
	seq, ts := ev.GetSeq(), ev.GetTs()

	s.mu.Lock()
	s.dispatch(ev)
	s.health.LastEventAt = ts
	s.mu.Unlock()

	s.nextSeq = seq + 1
}

// dispatch applies one event to state. Callers hold the write lock.
func (s *Session) dispatch(ev event.Event) {
	switch e := ev.(type) {
	case *event.TradeUpdateEvent:
		s.book = domain.Apply(s.book, e.Kind, e.Order)

	case *event.AccountUpdateEvent:
		s.account = domain.ApplyAccountUpdate(s.account, e.Account)

	case *event.PositionsEvent:
		s.positions = make([]domain.Position, len(e.Positions))
		copy(s.positions, e.Positions)

	case *event.BarUpdateEvent:
		series, ok := s.charts[e.Symbol]
		if !ok {
			series = domain.NewCandleSeries(e.Symbol, s.chartTimeframe, s.chartLimit)
			s.charts[e.Symbol] = series
		}
		series.Merge(e.Bar)
		event.ReleaseBarUpdateEvent(e)

	case *event.StreamStatusEvent:
		connected := e.State == event.StateConnected
		switch e.Source {
		case event.SourceTrading:
			s.health.TradingConnected = connected
		case event.SourceMarketData:
			s.health.MarketDataConnected = connected
		}
		if !connected && e.Reason != "" {
			slog.Warn("Stream disconnected", "source", e.Source, "reason", e.Reason)
		}

	default:
		slog.Warn("Unknown event type", slog.Any("type", ev.GetType()))
	}
}

func (s *Session) maybeSnapshot() {
	if s.snapshots == nil || s.snapshotInterval <= 0 {
		return
	}
	s.sinceSnapshot++
	if s.sinceSnapshot < s.snapshotInterval {
		return
	}
	s.sinceSnapshot = 0

	s.mu.RLock()
	snap := storage.CreateSnapshot(s.nextSeq-1, s.book, s.account, s.positions)
	s.mu.RUnlock()

	if err := s.snapshots.Save(snap); err != nil {
		slog.Error("Snapshot save failed", "err", err)
		return
	}
	if err := s.snapshots.Cleanup(s.snapshotKeep); err != nil {
		slog.Warn("Snapshot cleanup failed", "err", err)
	}
}

// SaveSnapshot writes the current state unconditionally, for shutdown.
func (s *Session) SaveSnapshot() error {
	if s.snapshots == nil {
		return nil
	}
	s.mu.RLock()
	snap := storage.CreateSnapshot(s.nextSeq-1, s.book, s.account, s.positions)
	s.mu.RUnlock()
	return s.snapshots.Save(snap)
}

// Snapshot returns a deep copy of the session state for presentation.
func (s *Session) Snapshot() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := make([]domain.Position, len(s.positions))
	copy(positions, s.positions)

	return View{
		Seq:       s.nextSeq - 1,
		Orders:    s.book.Open(),
		Account:   s.account,
		Positions: positions,
		Health:    s.health,
	}
}

// Candles returns a copy of one symbol's series, oldest first.
func (s *Session) Candles(symbol string) []domain.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, ok := s.charts[symbol]
	if !ok {
		return nil
	}
	return series.Candles()
}

// SeedCandles backfills a symbol's series from REST history. Live bars
// arriving afterwards merge on top; older ones fall out as stale.
func (s *Session) SeedCandles(symbol string, candles []domain.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	series, ok := s.charts[symbol]
	if !ok {
		series = domain.NewCandleSeries(symbol, s.chartTimeframe, s.chartLimit)
		s.charts[symbol] = series
	}
	series.Seed(candles)
}

// DumpState writes the session state to a file for post-mortem analysis.
func (s *Session) DumpState(filename string) {
	slog.Info("Dumping session state", slog.String("file", filename))

	s.mu.RLock()
	data := struct {
		NextSeq   uint64                 `json:"next_seq"`
		Orders    domain.OrderBook       `json:"orders"`
		Account   domain.AccountSnapshot `json:"account"`
		Positions []domain.Position      `json:"positions"`
		Health    StreamHealth           `json:"health"`
	}{
		NextSeq:   s.nextSeq,
		Orders:    s.book,
		Account:   s.account,
		Positions: s.positions,
		Health:    s.health,
	}
	b, err := json.MarshalIndent(data, "", "  ")
	s.mu.RUnlock()

	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}
	if err := os.WriteFile(filename, b, 0644); err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}

// journaled reports whether an event type is persisted. Only state the
// terminal cannot refetch goes to disk.
func journaled(t event.Type) bool {
	switch t {
	case event.EvTradeUpdate, event.EvAccountUpdate, event.EvPositions:
		return true
	}
	return false
}
