package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/IvanovOleg/alpaca-markets-terminal/pkg/safe"
)

// Timeframe is a candle aggregation period in Alpaca's notation.
type Timeframe string

const (
	Timeframe1Min   Timeframe = "1Min"
	Timeframe5Min   Timeframe = "5Min"
	Timeframe15Min  Timeframe = "15Min"
	Timeframe1Hour  Timeframe = "1Hour"
	Timeframe1Day   Timeframe = "1Day"
	Timeframe1Week  Timeframe = "1Week"
	Timeframe1Month Timeframe = "1Month"
)

// Valid reports whether tf is a supported timeframe.
func (tf Timeframe) Valid() bool {
	switch tf {
	case Timeframe1Min, Timeframe5Min, Timeframe15Min, Timeframe1Hour,
		Timeframe1Day, Timeframe1Week, Timeframe1Month:
		return true
	}
	return false
}

// Align truncates t to the start of the period containing it. Weeks start
// on Monday and months on the first, both in UTC.
func (tf Timeframe) Align(t time.Time) time.Time {
	t = t.UTC()
	switch tf {
	case Timeframe1Min:
		return t.Truncate(time.Minute)
	case Timeframe5Min:
		return t.Truncate(5 * time.Minute)
	case Timeframe15Min:
		return t.Truncate(15 * time.Minute)
	case Timeframe1Hour:
		return t.Truncate(time.Hour)
	case Timeframe1Day:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case Timeframe1Week:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		monday := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -monday)
	case Timeframe1Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}

// Duration is the nominal length of one period. Weeks and months use
// fixed 7- and 30-day approximations; Align, not Duration, decides
// period boundaries.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case Timeframe1Min:
		return time.Minute
	case Timeframe5Min:
		return 5 * time.Minute
	case Timeframe15Min:
		return 15 * time.Minute
	case Timeframe1Hour:
		return time.Hour
	case Timeframe1Day:
		return 24 * time.Hour
	case Timeframe1Week:
		return 7 * 24 * time.Hour
	case Timeframe1Month:
		return 30 * 24 * time.Hour
	}
	return time.Minute
}

// Candle is one aggregated OHLCV bar. Start is aligned to the series
// timeframe before the candle enters a series.
type Candle struct {
	Start      time.Time       `json:"t"`
	Open       decimal.Decimal `json:"o"`
	High       decimal.Decimal `json:"h"`
	Low        decimal.Decimal `json:"l"`
	Close      decimal.Decimal `json:"c"`
	Volume     int64           `json:"v"`
	TradeCount int64           `json:"n"`
}

// CandleSeries aggregates incoming bars for one symbol at one timeframe,
// keeping at most limit candles. Live minute bars merge into whatever
// period the series is configured for, so a 5Min series absorbs five
// 1Min bars per candle.
type CandleSeries struct {
	Symbol    string
	Timeframe Timeframe

	limit   int
	candles []Candle
}

// NewCandleSeries creates an empty series. A non-positive limit falls
// back to 100 candles.
func NewCandleSeries(symbol string, tf Timeframe, limit int) *CandleSeries {
	if limit <= 0 {
		limit = 100
	}
	return &CandleSeries{
		Symbol:    symbol,
		Timeframe: tf,
		limit:     limit,
		candles:   make([]Candle, 0, limit),
	}
}

// Seed replaces the series content with historical candles, assumed to be
// in ascending time order. Used for REST backfill before live bars arrive.
func (s *CandleSeries) Seed(candles []Candle) {
	s.candles = s.candles[:0]
	for _, c := range candles {
		s.Merge(c)
	}
}

// Merge folds one bar into the series. A bar inside the latest candle's
// period updates it in place: the first open is kept, high/low widen,
// close takes the newest value and volume/trade count accumulate. A bar
// in a newer period appends a candle, evicting the oldest past the limit.
// A bar older than the latest period is stale (out-of-order delivery
// after a reconnect) and is dropped.
func (s *CandleSeries) Merge(bar Candle) {
	bar.Start = s.Timeframe.Align(bar.Start)
	if len(s.candles) == 0 {
		s.candles = append(s.candles, bar)
		return
	}
	last := &s.candles[len(s.candles)-1]
	switch {
	case bar.Start.Equal(last.Start):
		if bar.High.GreaterThan(last.High) {
			last.High = bar.High
		}
		if bar.Low.LessThan(last.Low) {
			last.Low = bar.Low
		}
		last.Close = bar.Close
		last.Volume = safe.SafeAdd(last.Volume, bar.Volume)
		last.TradeCount = safe.SafeAdd(last.TradeCount, bar.TradeCount)
	case bar.Start.After(last.Start):
		s.candles = append(s.candles, bar)
		if len(s.candles) > s.limit {
			s.candles = s.candles[len(s.candles)-s.limit:]
		}
	}
}

// Candles returns a copy of the series content, oldest first.
func (s *CandleSeries) Candles() []Candle {
	out := make([]Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// Last returns the most recent candle, if any.
func (s *CandleSeries) Last() (Candle, bool) {
	if len(s.candles) == 0 {
		return Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// Len reports the number of candles held.
func (s *CandleSeries) Len() int {
	return len(s.candles)
}
