package execution

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/shopspring/decimal"

	"github.com/IvanovOleg/alpaca-markets-terminal/internal/alpaca"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/event"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/infra"
)

// confirmRealMoneyEnv must be set to "yes" before the factory will hand
// out a live executor. Paper and local modes never check it.
const confirmRealMoneyEnv = "CONFIRM_REAL_MONEY"

// startingCash is the virtual balance the offline simulator begins with.
var startingCash = decimal.NewFromInt(100_000)

// New selects the execution backend for the effective trading mode.
// client may be nil in local mode; inbox and lastPrice are only used by
// the simulator.
func New(cfg *infra.Config, client *alpaca.Client, inbox chan<- event.Event, lastPrice PriceFunc) (Execution, error) {
	mode := cfg.Mode()
	slog.Info("Initializing execution", "mode", mode)

	switch mode {
	case infra.ModeLocal:
		slog.Info("🧪 Offline simulator active: orders fill against local candles")
		return NewLocalExecution(inbox, lastPrice, startingCash), nil

	case infra.ModePaper:
		slog.Info("📝 Paper trading via Alpaca paper host")
		return NewBrokerExecution(client, infra.ModePaper), nil

	case infra.ModeLive:
		if os.Getenv(confirmRealMoneyEnv) != "yes" {
			return nil, fmt.Errorf("live trading requires %s=yes in the environment", confirmRealMoneyEnv)
		}
		slog.Warn("🚨🚨🚨 LIVE trading enabled: orders spend real money 🚨🚨🚨")
		return NewBrokerExecution(client, infra.ModeLive), nil

	default:
		return nil, fmt.Errorf("unknown trading mode: %s", mode)
	}
}
