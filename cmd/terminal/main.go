package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/IvanovOleg/alpaca-markets-terminal/internal/alpaca"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/app"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/engine"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/execution"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/infra"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// 1. Pprof server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. System bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	cfg := bootstrap.Config
	infra.PrintBanner(cfg)

	// 3. Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Session (the consumer context). The redraw hook is where a UI
	// layer attaches; headless runs leave it empty.
	session := engine.NewSession(cfg, bootstrap.Journal, bootstrap.Snapshots, func() {
		// view := session.Snapshot() → hand to the renderer
	})

	// Rebuild state from the last snapshot plus the journal tail before
	// any live event can arrive.
	if err := session.Recover(ctx); err != nil {
		slog.Error("❌ Recovery failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Start session in its own goroutine (the hotpath loop).
	go session.Run(ctx)
	slog.InfoContext(ctx, "✅ Session (consumer context) started", slog.Uint64("seq", session.Snapshot().Seq))

	// 5. Execution backend. The live safety latch runs here, before any
	// socket opens.
	var client *alpaca.Client
	if cfg.HasCredentials() {
		client = alpaca.NewClient(cfg)
	}
	exec, err := execution.New(cfg, client, session.Inbox(), lastClose(session))
	if err != nil {
		slog.Error("❌ Execution init failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 6. Stream workers (gateways) and REST warm-up
	if client != nil {
		go bootstrap.SyncState(ctx, client, session)

		trading := alpaca.NewTradingStream(cfg, session.Inbox())
		if err := trading.Connect(ctx); err != nil {
			slog.Error("Failed to connect trading stream", slog.Any("error", err))
		}
		defer trading.Disconnect()
		slog.InfoContext(ctx, "✅ Trading stream started")

		if len(cfg.Chart.Symbols) > 0 {
			marketData := alpaca.NewMarketDataStream(cfg, session.Inbox())
			if err := marketData.Connect(ctx); err != nil {
				slog.Error("Failed to connect market data stream", slog.Any("error", err))
			}
			defer marketData.Disconnect()
			slog.InfoContext(ctx, "✅ Market data stream started", slog.Int("symbols", len(cfg.Chart.Symbols)))
		}
	} else {
		slog.InfoContext(ctx, "🔌 No API keys: offline mode, orders go to the local simulator")
		bootstrap.SeedMockCharts(session)
	}

	slog.InfoContext(ctx, "✨ Terminal fully operational. Press Ctrl+C to exit.",
		slog.String("execution", exec.Mode()))

	// Wait for shutdown signal
	<-ctx.Done()

	slog.Info("👋 Shutting down gracefully...")
	if err := session.SaveSnapshot(); err != nil {
		slog.Error("Final snapshot failed", slog.Any("error", err))
	}
}

// lastClose adapts session candles into the simulator's price source.
func lastClose(s *engine.Session) execution.PriceFunc {
	return func(symbol string) (decimal.Decimal, bool) {
		candles := s.Candles(symbol)
		if len(candles) == 0 {
			return decimal.Decimal{}, false
		}
		return candles[len(candles)-1].Close, true
	}
}
