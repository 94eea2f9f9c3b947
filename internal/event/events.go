package event

import (
	"fmt"
	"time"

	"github.com/IvanovOleg/alpaca-markets-terminal/internal/domain"
)

// Type defines the type of event.
type Type uint16

const (
	EvTradeUpdate Type = iota + 1
	EvAccountUpdate
	EvPositions
	EvBarUpdate
	EvStreamStatus
)

func (t Type) String() string {
	switch t {
	case EvTradeUpdate:
		return "trade_update"
	case EvAccountUpdate:
		return "account_update"
	case EvPositions:
		return "positions"
	case EvBarUpdate:
		return "bar_update"
	case EvStreamStatus:
		return "stream_status"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(t))
	}
}

// Event is the interface for everything flowing through the session inbox.
type Event interface {
	GetSeq() uint64
	GetTs() time.Time
	GetType() Type
	SetSeq(uint64)
}

// BaseEvent contains common fields for all events. Seq is zero in flight;
// the session stamps it at dequeue, so arrival order is the authoritative
// order.
type BaseEvent struct {
	Seq uint64    `json:"seq"`
	Ts  time.Time `json:"ts"`
}

func (e BaseEvent) GetSeq() uint64     { return e.Seq }
func (e BaseEvent) GetTs() time.Time   { return e.Ts }
func (e *BaseEvent) SetSeq(seq uint64) { e.Seq = seq }

// TradeUpdateEvent is one order lifecycle message from the trading stream.
type TradeUpdateEvent struct {
	BaseEvent
	Kind  domain.EventKind `json:"kind"`
	Order domain.Order     `json:"order"`
}

func (e *TradeUpdateEvent) GetType() Type { return EvTradeUpdate }

// AccountUpdateEvent carries a full account snapshot.
type AccountUpdateEvent struct {
	BaseEvent
	Account domain.AccountSnapshot `json:"account"`
}

func (e *AccountUpdateEvent) GetType() Type { return EvAccountUpdate }

// PositionsEvent replaces the position list wholesale.
type PositionsEvent struct {
	BaseEvent
	Positions []domain.Position `json:"positions"`
}

func (e *PositionsEvent) GetType() Type { return EvPositions }

// BarUpdateEvent is one OHLCV bar from the market data stream. Bar events
// are pooled: producers acquire, the session releases after folding the
// bar into its series.
type BarUpdateEvent struct {
	BaseEvent
	Symbol string        `json:"symbol"`
	Bar    domain.Candle `json:"bar"`
}

func (e *BarUpdateEvent) GetType() Type { return EvBarUpdate }

// Stream sources and states carried by StreamStatusEvent.
const (
	SourceTrading    = "trading"
	SourceMarketData = "market_data"

	StateConnected    = "connected"
	StateDisconnected = "disconnected"
)

// StreamStatusEvent reports a connection state change of one stream.
type StreamStatusEvent struct {
	BaseEvent
	Source string `json:"source"`
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

func (e *StreamStatusEvent) GetType() Type { return EvStreamStatus }
