package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the order direction in Alpaca's notation.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType mirrors Alpaca's order type strings.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// Status is the broker-side order status.
type Status string

const (
	StatusPendingNew      Status = "pending_new"
	StatusAccepted        Status = "accepted"
	StatusNew             Status = "new"
	StatusPartiallyFilled Status = "partially_filled"
	StatusFilled          Status = "filled"
	StatusCanceled        Status = "canceled"
	StatusExpired         Status = "expired"
	StatusRejected        Status = "rejected"
)

// Terminal reports whether the status ends the order's lifecycle.
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusExpired, StatusRejected:
		return true
	}
	return false
}

// TimeInForce is the order duration instruction.
type TimeInForce string

const (
	TimeInForceDay TimeInForce = "day"
	TimeInForceGTC TimeInForce = "gtc"
	TimeInForceIOC TimeInForce = "ioc"
)

// EventKind is the lifecycle kind carried by a trade_updates message.
// Heartbeats are a transport concern and never appear as a kind.
type EventKind string

const (
	KindAccepted    EventKind = "accepted"
	KindNew         EventKind = "new"
	KindPartialFill EventKind = "partial_fill"
	KindFill        EventKind = "fill"
	KindCanceled    EventKind = "canceled"
	KindExpired     EventKind = "expired"
	KindRejected    EventKind = "rejected"
)

// Terminal reports whether the kind removes the order from the working set.
func (k EventKind) Terminal() bool {
	switch k {
	case KindFill, KindCanceled, KindExpired, KindRejected:
		return true
	}
	return false
}

// Order represents a brokerage order.
// All monetary values are strictly decimal; floats never enter the domain.
type Order struct {
	ID            string              `json:"id"`
	ClientOrderID string              `json:"client_order_id,omitempty"`
	Symbol        string              `json:"symbol"`
	Side          Side                `json:"side"`
	Qty           decimal.Decimal     `json:"qty"`
	FilledQty     decimal.Decimal     `json:"filled_qty"`
	Type          OrderType           `json:"type"`
	LimitPrice    decimal.NullDecimal `json:"limit_price"`
	Status        Status              `json:"status"`
	SubmittedAt   time.Time           `json:"submitted_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// IsOpen checks if the order is still working at the broker.
func (o *Order) IsOpen() bool {
	return !o.Status.Terminal()
}
