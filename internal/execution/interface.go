package execution

import (
	"context"

	"github.com/IvanovOleg/alpaca-markets-terminal/internal/alpaca"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/domain"
)

// Execution routes order instructions to whatever is on the other side:
// the broker REST API or the offline simulator. Fills always come back
// through the event inbox, never through these return values, so the UI
// reacts the same way in every mode.
type Execution interface {
	// SubmitOrder places a new order. The returned order is the broker's
	// (or simulator's) immediate acknowledgement; its lifecycle continues
	// on the trade stream.
	SubmitOrder(ctx context.Context, req alpaca.OrderRequest) (domain.Order, error)

	// CancelOrder cancels a working order by broker ID.
	CancelOrder(ctx context.Context, orderID string) error

	// ClosePosition liquidates the whole position in one market order.
	ClosePosition(ctx context.Context, symbol string) (domain.Order, error)

	// Mode reports which execution backend is active: live, paper or local.
	Mode() string
}
