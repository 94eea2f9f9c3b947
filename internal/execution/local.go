package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/IvanovOleg/alpaca-markets-terminal/internal/alpaca"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/domain"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/event"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/infra"
)

// PriceFunc returns the last known price for a symbol, usually the close
// of the most recent candle the session holds.
type PriceFunc func(symbol string) (decimal.Decimal, bool)

// Fill records one simulated execution.
type Fill struct {
	OrderID string
	Symbol  string
	Side    domain.Side
	Price   decimal.Decimal
	Qty     decimal.Decimal
	At      time.Time
}

type simPosition struct {
	qty      decimal.Decimal
	avgEntry decimal.Decimal
}

// LocalExecution simulates a cash account when no API keys are present.
// Market orders fill immediately at the last close; limit orders rest
// until canceled. Every fill produces the same accepted/new/fill
// lifecycle events and account updates a real stream would, pushed into
// the session inbox, so the rest of the terminal cannot tell the
// difference.
type LocalExecution struct {
	inbox     chan<- event.Event
	lastPrice PriceFunc

	mu        sync.Mutex
	cash      decimal.Decimal
	open      map[string]domain.Order // resting limit orders by ID
	positions map[string]*simPosition
	fills     []Fill
}

// NewLocalExecution creates the simulator with a virtual cash balance.
func NewLocalExecution(inbox chan<- event.Event, lastPrice PriceFunc, startingCash decimal.Decimal) *LocalExecution {
	return &LocalExecution{
		inbox:     inbox,
		lastPrice: lastPrice,
		cash:      startingCash,
		open:      make(map[string]domain.Order),
		positions: make(map[string]*simPosition),
	}
}

func (l *LocalExecution) Mode() string { return infra.ModeLocal }

func (l *LocalExecution) SubmitOrder(ctx context.Context, req alpaca.OrderRequest) (domain.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.submitLocked(ctx, req)
}

func (l *LocalExecution) submitLocked(ctx context.Context, req alpaca.OrderRequest) (domain.Order, error) {
	if err := validateRequest(req); err != nil {
		return domain.Order{}, err
	}

	now := time.Now().UTC()
	order := domain.Order{
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
	}
	if order.ClientOrderID == "" {
		order.ClientOrderID = uuid.NewString()
	}

	if err := l.emitTrade(ctx, domain.KindAccepted, order); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.StatusNew
	if err := l.emitTrade(ctx, domain.KindNew, order); err != nil {
		return domain.Order{}, err
	}

	if req.Type == domain.OrderTypeLimit {
		// Rests until canceled. The simulator never crosses the book.
		l.open[order.ID] = order
		slog.Info("LOCAL EXECUTION: Limit order resting",
			"id", order.ID, "symbol", order.Symbol, "limit", req.LimitPrice.Decimal)
		return order, nil
	}
	return l.fillLocked(ctx, order)
}

func (l *LocalExecution) fillLocked(ctx context.Context, order domain.Order) (domain.Order, error) {
	price, ok := l.lastPrice(order.Symbol)
	if !ok || price.Sign() <= 0 {
		return l.rejectLocked(ctx, order, fmt.Errorf("local: no price available for %s", order.Symbol))
	}
	cost := price.Mul(order.Qty)

	if order.Side == domain.SideBuy {
		if l.cash.LessThan(cost) {
			return l.rejectLocked(ctx, order, fmt.Errorf("local: insufficient cash: need %s, have %s", cost, l.cash))
		}
		l.cash = l.cash.Sub(cost)
		l.creditPosition(order.Symbol, order.Qty, price)
	} else {
		pos := l.positions[order.Symbol]
		if pos == nil || pos.qty.LessThan(order.Qty) {
			return l.rejectLocked(ctx, order, fmt.Errorf("local: insufficient position in %s to sell %s", order.Symbol, order.Qty))
		}
		l.cash = l.cash.Add(cost)
		pos.qty = pos.qty.Sub(order.Qty)
		if pos.qty.IsZero() {
			delete(l.positions, order.Symbol)
		}
	}

	now := time.Now().UTC()
	order.Status = domain.StatusFilled
	order.FilledQty = order.Qty
	order.UpdatedAt = now

	l.fills = append(l.fills, Fill{
		OrderID: order.ID,
		Symbol:  order.Symbol,
		Side:    order.Side,
		Price:   price,
		Qty:     order.Qty,
		At:      now,
	})

	slog.Info("LOCAL EXECUTION: Order filled",
		"id", order.ID,
		"symbol", order.Symbol,
		"side", order.Side,
		"price", price,
		"qty", order.Qty)

	if err := l.emitTrade(ctx, domain.KindFill, order); err != nil {
		return order, err
	}
	if err := l.emitAccountLocked(ctx); err != nil {
		return order, err
	}
	return order, nil
}

// rejectLocked emits the terminal rejected event so the order the
// accepted/new events put in the book does not linger there.
func (l *LocalExecution) rejectLocked(ctx context.Context, order domain.Order, cause error) (domain.Order, error) {
	order.Status = domain.StatusRejected
	order.UpdatedAt = time.Now().UTC()
	slog.Warn("LOCAL EXECUTION: Order rejected", "id", order.ID, "reason", cause)
	if err := l.emitTrade(ctx, domain.KindRejected, order); err != nil {
		return domain.Order{}, err
	}
	return domain.Order{}, cause
}

func (l *LocalExecution) CancelOrder(ctx context.Context, orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	order, ok := l.open[orderID]
	if !ok {
		return fmt.Errorf("local: order not found: %s", orderID)
	}
	delete(l.open, orderID)

	order.Status = domain.StatusCanceled
	order.UpdatedAt = time.Now().UTC()

	slog.Info("LOCAL EXECUTION: Order canceled", "id", orderID)
	return l.emitTrade(ctx, domain.KindCanceled, order)
}

func (l *LocalExecution) ClosePosition(ctx context.Context, symbol string) (domain.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[symbol]
	if !ok || pos.qty.Sign() <= 0 {
		return domain.Order{}, fmt.Errorf("local: no open position in %s", symbol)
	}
	return l.submitLocked(ctx, alpaca.OrderRequest{
		Symbol:      symbol,
		Qty:         pos.qty,
		Side:        domain.SideSell,
		Type:        domain.OrderTypeMarket,
		TimeInForce: domain.TimeInForceDay,
	})
}

// Fills returns a copy of the executed fills, oldest first.
func (l *LocalExecution) Fills() []Fill {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Fill, len(l.fills))
	copy(out, l.fills)
	return out
}

// Cash returns the current virtual cash balance.
func (l *LocalExecution) Cash() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

func (l *LocalExecution) creditPosition(symbol string, qty, price decimal.Decimal) {
	pos := l.positions[symbol]
	if pos == nil {
		l.positions[symbol] = &simPosition{qty: qty, avgEntry: price}
		return
	}
	total := pos.qty.Add(qty)
	pos.avgEntry = pos.avgEntry.Mul(pos.qty).Add(price.Mul(qty)).Div(total)
	pos.qty = total
}

// emitAccountLocked pushes the recomputed account snapshot and position
// list, mirroring the REST refresh a broker-backed session would run.
func (l *LocalExecution) emitAccountLocked(ctx context.Context) error {
	positions := make([]domain.Position, 0, len(l.positions))
	equity := l.cash
	for symbol, pos := range l.positions {
		mark := pos.avgEntry
		if last, ok := l.lastPrice(symbol); ok && last.Sign() > 0 {
			mark = last
		}
		marketValue := pos.qty.Mul(mark)
		costBasis := pos.qty.Mul(pos.avgEntry)
		pl := marketValue.Sub(costBasis)
		plpc := decimal.Zero
		if !costBasis.IsZero() {
			plpc = pl.Div(costBasis)
		}
		positions = append(positions, domain.Position{
			Symbol:         symbol,
			Qty:            pos.qty,
			AvgEntryPrice:  pos.avgEntry,
			CurrentPrice:   mark,
			MarketValue:    marketValue,
			UnrealizedPL:   pl,
			UnrealizedPLPC: plpc,
		})
		equity = equity.Add(marketValue)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })

	now := time.Now().UTC()
	account := domain.AccountSnapshot{
		BuyingPower:    l.cash, // cash account, no margin
		Cash:           l.cash,
		PortfolioValue: equity,
		Equity:         equity,
		UpdatedAt:      now,
	}

	if err := l.emit(ctx, &event.AccountUpdateEvent{
		BaseEvent: event.BaseEvent{Ts: now},
		Account:   account,
	}); err != nil {
		return err
	}
	return l.emit(ctx, &event.PositionsEvent{
		BaseEvent: event.BaseEvent{Ts: now},
		Positions: positions,
	})
}

func (l *LocalExecution) emitTrade(ctx context.Context, kind domain.EventKind, order domain.Order) error {
	return l.emit(ctx, &event.TradeUpdateEvent{
		BaseEvent: event.BaseEvent{Ts: time.Now().UTC()},
		Kind:      kind,
		Order:     order,
	})
}

// emit blocks until the session takes the event. Synthetic lifecycle
// events are journal-bearing like their stream counterparts, so they get
// backpressure, not loss.
func (l *LocalExecution) emit(ctx context.Context, ev event.Event) error {
	select {
	case l.inbox <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func validateRequest(req alpaca.OrderRequest) error {
	if req.Symbol == "" {
		return fmt.Errorf("local: order has no symbol")
	}
	if req.Qty.Sign() <= 0 {
		return fmt.Errorf("local: order qty must be positive, got %s", req.Qty)
	}
	switch req.Side {
	case domain.SideBuy, domain.SideSell:
	default:
		return fmt.Errorf("local: unknown side: %s", req.Side)
	}
	switch req.Type {
	case domain.OrderTypeMarket:
	case domain.OrderTypeLimit:
		if !req.LimitPrice.Valid {
			return fmt.Errorf("local: limit order without a limit price")
		}
	default:
		return fmt.Errorf("local: simulator supports market and limit orders, got %s", req.Type)
	}
	return nil
}
