package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/IvanovOleg/alpaca-markets-terminal/internal/engine"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/event"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/infra"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/storage"
)

// Replay rebuilds terminal state from an event journal and prints what it
// finds. The same reducers run here and in the live session, so the
// output is exactly what the terminal would show after recovery.
func main() {
	var (
		mode    = flag.String("mode", infra.ModePaper, "journal to inspect: live, paper or local")
		dbPath  = flag.String("db", "", "explicit journal path (overrides -mode)")
		verbose = flag.Bool("v", false, "list every journaled event")
	)
	flag.Parse()

	// Keep slog quiet; this tool prints its own report.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	path := *dbPath
	if path == "" {
		path = filepath.Join(infra.GetWorkspaceDir(), "data", *mode, "events.db")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(os.Stderr, "no journal at %s\n", path)
		os.Exit(1)
	}

	journal, err := storage.NewJournal(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open journal: %v\n", err)
		os.Exit(1)
	}
	defer journal.Close()

	ctx := context.Background()

	fmt.Println("=== Alpaca Terminal Journal Replay ===")
	fmt.Println()
	fmt.Printf("📁 Journal: %s\n", path)

	events, err := journal.LoadFrom(ctx, 1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read journal: %v\n", err)
		os.Exit(1)
	}

	histogram := make(map[event.Type]int)
	for _, ev := range events {
		histogram[ev.GetType()]++
	}
	lastSeq, _ := journal.LastSeq(ctx)
	fmt.Printf("🧾 Events: %d (last seq %d)\n", len(events), lastSeq)
	for _, typ := range []event.Type{event.EvTradeUpdate, event.EvAccountUpdate, event.EvPositions} {
		if n := histogram[typ]; n > 0 {
			fmt.Printf("   %-15s %d\n", typ.String(), n)
		}
	}
	fmt.Println()

	if *verbose {
		for _, ev := range events {
			switch e := ev.(type) {
			case *event.TradeUpdateEvent:
				fmt.Printf("  #%-6d %s  %-12s %-6s %s %s %s\n",
					e.GetSeq(), e.GetTs().Format("15:04:05.000"),
					e.Kind, e.Order.Symbol, e.Order.Side, e.Order.Qty, e.Order.Status)
			case *event.AccountUpdateEvent:
				fmt.Printf("  #%-6d %s  account cash=%s equity=%s\n",
					e.GetSeq(), e.GetTs().Format("15:04:05.000"),
					e.Account.Cash.StringFixed(2), e.Account.Equity.StringFixed(2))
			case *event.PositionsEvent:
				fmt.Printf("  #%-6d %s  positions n=%d\n",
					e.GetSeq(), e.GetTs().Format("15:04:05.000"), len(e.Positions))
			default:
				fmt.Printf("  #%-6d %s  %s\n", ev.GetSeq(), ev.GetTs().Format("15:04:05.000"), ev.GetType())
			}
		}
		fmt.Println()
	}

	// Rebuild state through the live reducers.
	cfg := &infra.Config{}
	cfg.Stream.InboxSize = 1
	session := engine.NewSession(cfg, journal, nil, nil)
	if err := session.Recover(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "replay failed: %v\n", err)
		os.Exit(1)
	}
	view := session.Snapshot()

	fmt.Printf("📊 Recovered state @ seq %d\n", view.Seq)
	fmt.Println()

	fmt.Printf("💰 Account: cash $%s | buying power $%s | equity $%s\n",
		view.Account.Cash.StringFixed(2),
		view.Account.BuyingPower.StringFixed(2),
		view.Account.Equity.StringFixed(2))
	fmt.Println()

	fmt.Printf("📖 Open orders (%d)\n", len(view.Orders))
	for _, o := range view.Orders {
		limit := "market"
		if o.LimitPrice.Valid {
			limit = "$" + o.LimitPrice.Decimal.StringFixed(2)
		}
		fmt.Printf("   %-10s %-6s %-4s %8s @ %-10s %s\n",
			shortID(o.ID), o.Symbol, o.Side, o.Qty, limit, o.Status)
	}
	fmt.Println()

	fmt.Printf("📦 Positions (%d)\n", len(view.Positions))
	for _, p := range view.Positions {
		fmt.Printf("   %-6s %10s @ $%-10s PL $%s\n",
			p.Symbol, p.Qty, p.AvgEntryPrice.StringFixed(2), p.UnrealizedPL.StringFixed(2))
	}
	fmt.Println()
	fmt.Println("✅ Replay complete: state above is what the terminal recovers on start.")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
