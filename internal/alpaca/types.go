package alpaca

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/IvanovOleg/alpaca-markets-terminal/internal/domain"
)

// Wire DTOs for Alpaca's trading API. Alpaca sends money and quantity
// fields as JSON strings; conversion parses them as decimals and rejects
// malformed records instead of guessing.

// streamFrame is the envelope of the trading WebSocket.
type streamFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

const (
	streamAuthorization = "authorization"
	streamListening     = "listening"
	streamTradeUpdates  = "trade_updates"
)

type authResult struct {
	Status string `json:"status"` // authorized | unauthorized
	Action string `json:"action"`
}

type listenResult struct {
	Streams []string `json:"streams"`
}

type tradeUpdate struct {
	Event string   `json:"event"`
	Order orderDTO `json:"order"`
}

// kindFromWire maps a trade_updates lifecycle string onto an EventKind.
// Alpaca emits more kinds than the order book reacts to (replaced,
// done_for_day, pending_new, ...); those return ok=false and are skipped.
func kindFromWire(event string) (domain.EventKind, bool) {
	switch event {
	case "accepted":
		return domain.KindAccepted, true
	case "new":
		return domain.KindNew, true
	case "partial_fill":
		return domain.KindPartialFill, true
	case "fill":
		return domain.KindFill, true
	case "canceled":
		return domain.KindCanceled, true
	case "expired":
		return domain.KindExpired, true
	case "rejected":
		return domain.KindRejected, true
	}
	return "", false
}

type accountDTO struct {
	BuyingPower    string `json:"buying_power"`
	Cash           string `json:"cash"`
	PortfolioValue string `json:"portfolio_value"`
	Equity         string `json:"equity"`
}

func (d accountDTO) toDomain() (domain.AccountSnapshot, error) {
	var (
		acct domain.AccountSnapshot
		err  error
	)
	if acct.BuyingPower, err = parseMoney("buying_power", d.BuyingPower); err != nil {
		return domain.AccountSnapshot{}, err
	}
	if acct.Cash, err = parseMoney("cash", d.Cash); err != nil {
		return domain.AccountSnapshot{}, err
	}
	if acct.PortfolioValue, err = parseMoney("portfolio_value", d.PortfolioValue); err != nil {
		return domain.AccountSnapshot{}, err
	}
	if acct.Equity, err = parseMoney("equity", d.Equity); err != nil {
		return domain.AccountSnapshot{}, err
	}
	acct.UpdatedAt = time.Now().UTC()
	return acct, nil
}

type orderDTO struct {
	ID            string     `json:"id"`
	ClientOrderID string     `json:"client_order_id"`
	Symbol        string     `json:"symbol"`
	Side          string     `json:"side"`
	Qty           string     `json:"qty"`
	FilledQty     string     `json:"filled_qty"`
	Type          string     `json:"type"`
	LimitPrice    *string    `json:"limit_price"`
	Status        string     `json:"status"`
	SubmittedAt   *time.Time `json:"submitted_at"`
	UpdatedAt     *time.Time `json:"updated_at"`
	CreatedAt     *time.Time `json:"created_at"`
}

func (d orderDTO) toDomain() (domain.Order, error) {
	if d.ID == "" {
		return domain.Order{}, fmt.Errorf("order without id")
	}

	// Notional orders omit qty; the filled quantity is the only size the
	// API reports for them.
	qtyStr := d.Qty
	if qtyStr == "" {
		qtyStr = d.FilledQty
	}
	qty, err := parseMoney("qty", qtyStr)
	if err != nil {
		return domain.Order{}, err
	}

	filled := decimal.Zero
	if d.FilledQty != "" {
		if filled, err = parseMoney("filled_qty", d.FilledQty); err != nil {
			return domain.Order{}, err
		}
	}

	var limit decimal.NullDecimal
	if d.LimitPrice != nil && *d.LimitPrice != "" {
		p, err := parseMoney("limit_price", *d.LimitPrice)
		if err != nil {
			return domain.Order{}, err
		}
		limit = decimal.NewNullDecimal(p)
	}

	ord := domain.Order{
		ID:            d.ID,
		ClientOrderID: d.ClientOrderID,
		Symbol:        d.Symbol,
		Side:          domain.Side(d.Side),
		Qty:           qty,
		FilledQty:     filled,
		Type:          domain.OrderType(d.Type),
		LimitPrice:    limit,
		Status:        domain.Status(d.Status),
	}

	if d.SubmittedAt != nil {
		ord.SubmittedAt = *d.SubmittedAt
	} else if d.CreatedAt != nil {
		ord.SubmittedAt = *d.CreatedAt
	}
	if d.UpdatedAt != nil {
		ord.UpdatedAt = *d.UpdatedAt
	} else {
		ord.UpdatedAt = ord.SubmittedAt
	}

	return ord, nil
}

type positionDTO struct {
	Symbol         string `json:"symbol"`
	Qty            string `json:"qty"`
	AvgEntryPrice  string `json:"avg_entry_price"`
	CurrentPrice   string `json:"current_price"`
	MarketValue    string `json:"market_value"`
	UnrealizedPL   string `json:"unrealized_pl"`
	UnrealizedPLPC string `json:"unrealized_plpc"`
}

func (d positionDTO) toDomain() (domain.Position, error) {
	pos := domain.Position{Symbol: d.Symbol}

	var err error
	if pos.Qty, err = parseMoney("qty", d.Qty); err != nil {
		return domain.Position{}, err
	}
	if pos.AvgEntryPrice, err = parseMoney("avg_entry_price", d.AvgEntryPrice); err != nil {
		return domain.Position{}, err
	}
	// Fields past entry can be absent on a position that is mid-close.
	pos.CurrentPrice = parseMoneyOrZero(d.CurrentPrice)
	pos.MarketValue = parseMoneyOrZero(d.MarketValue)
	pos.UnrealizedPL = parseMoneyOrZero(d.UnrealizedPL)
	pos.UnrealizedPLPC = parseMoneyOrZero(d.UnrealizedPLPC)
	return pos, nil
}

// barDTO is one OHLCV bar as sent by the v2 market data API, both over
// the stream ("T":"b") and in REST bar pages. json.Number keeps prices
// out of float64.
type barDTO struct {
	Timestamp  time.Time   `json:"t"`
	Open       json.Number `json:"o"`
	High       json.Number `json:"h"`
	Low        json.Number `json:"l"`
	Close      json.Number `json:"c"`
	Volume     int64       `json:"v"`
	TradeCount int64       `json:"n"`
}

func (d barDTO) toDomain() (domain.Candle, error) {
	var (
		c   domain.Candle
		err error
	)
	c.Start = d.Timestamp.UTC()
	if c.Open, err = parseNumber("o", d.Open); err != nil {
		return domain.Candle{}, err
	}
	if c.High, err = parseNumber("h", d.High); err != nil {
		return domain.Candle{}, err
	}
	if c.Low, err = parseNumber("l", d.Low); err != nil {
		return domain.Candle{}, err
	}
	if c.Close, err = parseNumber("c", d.Close); err != nil {
		return domain.Candle{}, err
	}
	c.Volume = d.Volume
	c.TradeCount = d.TradeCount
	return c, nil
}

// barsPage is the REST response of GET /v2/stocks/{symbol}/bars.
type barsPage struct {
	Bars          []barDTO `json:"bars"`
	Symbol        string   `json:"symbol"`
	NextPageToken *string  `json:"next_page_token"`
}

// apiError is the JSON body Alpaca returns on 4xx.
type apiErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func parseMoney(field, s string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s %q: %w", field, s, err)
	}
	return v, nil
}

func parseMoneyOrZero(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return v
}

func parseNumber(field string, n json.Number) (decimal.Decimal, error) {
	return parseMoney(field, n.String())
}
