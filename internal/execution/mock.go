package execution

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/IvanovOleg/alpaca-markets-terminal/internal/alpaca"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/domain"
)

// MockExecution acknowledges every instruction without doing anything.
// Useful for UI work where order flow should be a no-op.
type MockExecution struct{}

func NewMockExecution() *MockExecution {
	return &MockExecution{}
}

func (m *MockExecution) SubmitOrder(_ context.Context, req alpaca.OrderRequest) (domain.Order, error) {
	slog.Info("MOCK EXECUTION: Submit order",
		slog.String("symbol", req.Symbol),
		slog.String("side", string(req.Side)),
		slog.String("type", string(req.Type)),
		slog.String("qty", req.Qty.String()),
	)
	now := time.Now().UTC()
	return domain.Order{
		ID:            uuid.NewString(),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Qty:           req.Qty,
		Type:          req.Type,
		LimitPrice:    req.LimitPrice,
		Status:        domain.StatusAccepted,
		SubmittedAt:   now,
		UpdatedAt:     now,
	}, nil
}

func (m *MockExecution) CancelOrder(_ context.Context, orderID string) error {
	slog.Info("MOCK EXECUTION: Cancel order", slog.String("id", orderID))
	return nil
}

func (m *MockExecution) ClosePosition(_ context.Context, symbol string) (domain.Order, error) {
	slog.Info("MOCK EXECUTION: Close position", slog.String("symbol", symbol))
	return domain.Order{ID: uuid.NewString(), Symbol: symbol, Status: domain.StatusAccepted}, nil
}

func (m *MockExecution) Mode() string { return "mock" }
