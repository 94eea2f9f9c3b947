package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/IvanovOleg/alpaca-markets-terminal/internal/alpaca"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/domain"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/engine"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/execution"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/infra"
)

// The order probe places a limit buy far below any plausible market
// price, confirms it rests, then cancels it. Safe against the paper host
// and fully offline; it refuses to run live.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	slog.Info("🚀 Starting order probe...")

	cfg, err := infra.LoadConfig(infra.ResolveConfigPath())
	if err != nil {
		slog.Error("❌ Failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.Mode() == infra.ModeLive {
		slog.Error("❌ The probe does not run against live. Use paper keys or no keys at all.")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// In-memory session: the probe verifies acknowledgements, it does not
	// need a journal.
	session := engine.NewSession(cfg, nil, nil, nil)
	go session.Run(ctx)

	var client *alpaca.Client
	if cfg.HasCredentials() {
		client = alpaca.NewClient(cfg)
	}
	exec, err := execution.New(cfg, client, session.Inbox(), func(symbol string) (decimal.Decimal, bool) {
		candles := session.Candles(symbol)
		if len(candles) == 0 {
			return decimal.Decimal{}, false
		}
		return candles[len(candles)-1].Close, true
	})
	if err != nil {
		slog.Error("❌ Failed to create executor", "error", err)
		os.Exit(1)
	}
	slog.Info("🔑 Probe ready", "mode", exec.Mode())

	// STEP 1: place a resting limit order. $1.00 is far enough below any
	// real AAPL print that it can never fill by accident.
	req := alpaca.OrderRequest{
		Symbol:      "AAPL",
		Qty:         decimal.NewFromInt(1),
		Side:        domain.SideBuy,
		Type:        domain.OrderTypeLimit,
		TimeInForce: domain.TimeInForceDay,
		LimitPrice:  decimal.NewNullDecimal(decimal.RequireFromString("1.00")),
	}
	slog.Info("STEP 1: Placing order...", "symbol", req.Symbol, "limit", "$1.00")
	order, err := exec.SubmitOrder(ctx, req)
	if err != nil {
		slog.Error("❌ SubmitOrder failed", "error", err)
		os.Exit(1)
	}
	slog.Info("✅ Order placed", "id", order.ID, "status", order.Status)

	// Give the synthetic events (local) or the paper backend time to settle.
	time.Sleep(2 * time.Second)
	if view := session.Snapshot(); len(view.Orders) > 0 {
		slog.Info("📖 Order visible in the book", "open", len(view.Orders))
	}

	// STEP 2: cancel it again.
	slog.Info("STEP 2: Canceling order...", "id", order.ID)
	if err := exec.CancelOrder(ctx, order.ID); err != nil {
		slog.Error("❌ CancelOrder failed", "error", err)
		os.Exit(1)
	}
	slog.Info("✅ Order canceled")
	slog.Info("🎉 Probe passed!")
}
