package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountSnapshot is the broker-reported account state. Values are
// fixed-precision decimals parsed from Alpaca's string fields; a payload
// that fails to parse is dropped at the wire boundary and never reaches
// the reducer.
type AccountSnapshot struct {
	BuyingPower    decimal.Decimal `json:"buying_power"`
	Cash           decimal.Decimal `json:"cash"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
	Equity         decimal.Decimal `json:"equity"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ApplyAccountUpdate replaces the whole snapshot. Account updates carry
// absolute values, so there is nothing to merge.
func ApplyAccountUpdate(_ AccountSnapshot, upd AccountSnapshot) AccountSnapshot {
	return upd
}
