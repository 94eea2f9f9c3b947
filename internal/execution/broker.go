package execution

import (
	"context"
	"log/slog"

	"github.com/IvanovOleg/alpaca-markets-terminal/internal/alpaca"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/domain"
)

// BrokerExecution sends orders to Alpaca over REST. The same type serves
// paper and live; the mode only decides which host the client talks to
// and how loudly submissions are logged.
type BrokerExecution struct {
	client *alpaca.Client
	mode   string
}

// NewBrokerExecution wraps an Alpaca REST client. The live safety latch
// is the factory's job; by the time this runs the mode is already vetted.
func NewBrokerExecution(client *alpaca.Client, mode string) *BrokerExecution {
	return &BrokerExecution{client: client, mode: mode}
}

func (b *BrokerExecution) SubmitOrder(ctx context.Context, req alpaca.OrderRequest) (domain.Order, error) {
	slog.Info("Submitting order to broker",
		"mode", b.mode,
		"symbol", req.Symbol,
		"side", req.Side,
		"type", req.Type,
		"qty", req.Qty)

	order, err := b.client.SubmitOrder(ctx, req)
	if err != nil {
		slog.Error("Order submission failed", "symbol", req.Symbol, "error", err)
		return domain.Order{}, err
	}

	slog.Info("Order accepted by broker", "id", order.ID, "status", order.Status)
	return order, nil
}

func (b *BrokerExecution) CancelOrder(ctx context.Context, orderID string) error {
	slog.Info("Canceling order", "mode", b.mode, "id", orderID)
	return b.client.CancelOrder(ctx, orderID)
}

func (b *BrokerExecution) ClosePosition(ctx context.Context, symbol string) (domain.Order, error) {
	slog.Info("Closing position", "mode", b.mode, "symbol", symbol)
	return b.client.ClosePosition(ctx, symbol)
}

func (b *BrokerExecution) Mode() string { return b.mode }
