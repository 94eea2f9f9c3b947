package domain

import "github.com/shopspring/decimal"

// Position is an open position as reported by the broker. Positions are
// REST-sourced and replaced wholesale per refresh; the trade stream does
// not carry them.
type Position struct {
	Symbol         string          `json:"symbol"`
	Qty            decimal.Decimal `json:"qty"`
	AvgEntryPrice  decimal.Decimal `json:"avg_entry_price"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	MarketValue    decimal.Decimal `json:"market_value"`
	UnrealizedPL   decimal.Decimal `json:"unrealized_pl"`
	UnrealizedPLPC decimal.Decimal `json:"unrealized_plpc"`
}

// IsLong checks if the position is long.
func (p *Position) IsLong() bool {
	return p.Qty.Sign() > 0
}

// IsShort checks if the position is short.
func (p *Position) IsShort() bool {
	return p.Qty.Sign() < 0
}
