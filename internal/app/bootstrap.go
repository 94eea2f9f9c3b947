package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/IvanovOleg/alpaca-markets-terminal/internal/alpaca"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/domain"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/engine"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/event"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/infra"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/storage"
)

// Bootstrap orchestrates the application startup sequence.
type Bootstrap struct {
	Config    *infra.Config
	Journal   *storage.Journal
	Snapshots *storage.SnapshotManager

	unlock func()
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization: config, logging,
// per-mode workspace directories, the instance lock and durability.
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping Alpaca Markets Terminal...")

	// Runtime warmup (GC optimization for the bar event pool).
	event.Warmup()
	slog.Info("🔥 Event pool warmed up")

	cfg, err := infra.LoadConfig(infra.ResolveConfigPath())
	if err != nil {
		return err // let main handle the error
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// Data isolation: _workspace/data/{mode}/ keeps paper, live and local
	// journals apart so a paper session can never replay into live state.
	mode := cfg.Mode()
	workDir := infra.GetWorkspaceDir()
	dataDir := filepath.Join(workDir, "data", mode)
	logDir := filepath.Join(workDir, "logs", mode)

	if err := infra.EnsureDir(dataDir); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := infra.EnsureDir(logDir); err != nil {
		return fmt.Errorf("failed to create log dir: %w", err)
	}

	// Singleton instance lock. Two terminals on one journal means a
	// corrupt journal.
	unlock, err := infra.CreateLockFile(workDir)
	if err != nil {
		return err
	}
	b.unlock = unlock

	if cfg.Journal.Enabled {
		journalPath := filepath.Join(dataDir, "events.db")
		journal, err := storage.NewJournal(journalPath)
		if err != nil {
			return err
		}
		b.Journal = journal
		slog.Info("✅ Journal initialized (WAL mode)", "path", journalPath, "mode", mode)
	} else {
		slog.Warn("Journal disabled: no recovery after restart")
	}

	b.Snapshots = storage.NewSnapshotManager(filepath.Join(dataDir, "snapshots"))
	slog.Info("✅ Snapshot manager ready", "dir", filepath.Join(dataDir, "snapshots"))

	return nil
}

// Close releases the instance lock and the journal. Safe to call once
// at shutdown.
func (b *Bootstrap) Close() {
	if b.Journal != nil {
		if err := b.Journal.Close(); err != nil {
			slog.Error("Failed to close journal", "error", err)
		}
	}
	if b.unlock != nil {
		b.unlock()
	}
}

// SyncState pulls the authoritative account, order and position state
// over REST and seeds chart history, so the terminal starts warm instead
// of waiting for the first stream event. Everything flows through the
// session inbox and is journaled like any stream event; candle backfill
// is reconstructible and seeds the session directly.
func (b *Bootstrap) SyncState(ctx context.Context, client *alpaca.Client, sess *engine.Session) {
	slog.Info("🔄 Syncing terminal state from REST...")
	inbox := sess.Inbox()

	if account, err := client.GetAccount(ctx); err != nil {
		slog.Warn("Account sync failed, stream will catch up", "error", err)
	} else {
		emit(ctx, inbox, &event.AccountUpdateEvent{
			BaseEvent: event.BaseEvent{Ts: time.Now().UTC()},
			Account:   account,
		})
	}

	if orders, err := client.ListOpenOrders(ctx); err != nil {
		slog.Warn("Open order sync failed", "error", err)
	} else {
		for _, order := range orders {
			emit(ctx, inbox, &event.TradeUpdateEvent{
				BaseEvent: event.BaseEvent{Ts: time.Now().UTC()},
				Kind:      kindForStatus(order.Status),
				Order:     order,
			})
		}
		slog.Info("✅ Open orders synced", "count", len(orders))
	}

	if positions, err := client.ListPositions(ctx); err != nil {
		slog.Warn("Position sync failed", "error", err)
	} else {
		emit(ctx, inbox, &event.PositionsEvent{
			BaseEvent: event.BaseEvent{Ts: time.Now().UTC()},
			Positions: positions,
		})
		slog.Info("✅ Positions synced", "count", len(positions))
	}

	b.backfillCharts(ctx, client, sess)
	slog.Info("✨ State sync completed")
}

// backfillCharts fetches candle history for every configured symbol with
// bounded concurrency, respecting the shared data rate limiter.
func (b *Bootstrap) backfillCharts(ctx context.Context, client *alpaca.Client, sess *engine.Session) {
	tf := domain.Timeframe(b.Config.Chart.Timeframe)
	limit := b.Config.Chart.BarLimit

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, 3)

	for _, symbol := range b.Config.Chart.Symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			candles, err := client.GetBars(ctx, sym, tf, limit)
			if err != nil {
				slog.Warn("Chart backfill failed", "symbol", sym, "error", err)
				return
			}
			sess.SeedCandles(sym, candles)
			slog.Info("📊 Chart backfilled", "symbol", sym, "candles", len(candles))
		}(symbol)
	}
	wg.Wait()
}

// kindForStatus maps a resting order's status to the lifecycle kind that
// would have produced it, so startup sync rides the same reducer as the
// stream.
func kindForStatus(status domain.Status) domain.EventKind {
	switch status {
	case domain.StatusPartiallyFilled:
		return domain.KindPartialFill
	case domain.StatusAccepted, domain.StatusPendingNew:
		return domain.KindAccepted
	default:
		return domain.KindNew
	}
}

func emit(ctx context.Context, inbox chan<- event.Event, ev event.Event) {
	select {
	case inbox <- ev:
	case <-ctx.Done():
	}
}
