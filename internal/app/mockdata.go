package app

import (
	"log/slog"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/IvanovOleg/alpaca-markets-terminal/internal/domain"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/engine"
)

// MockCandles generates a deterministic sine-walk chart around a $150
// base. Offline runs seed these so the chart has something to show and
// the simulator has a close to fill market orders against. Floats are
// fine here: this is scenery, not money arithmetic, and every value is
// rounded to cents on the way out.
func MockCandles(tf domain.Timeframe, limit int) []domain.Candle {
	if limit <= 0 {
		limit = 50
	}
	step := tf.Duration()
	start := time.Now().UTC().Add(-time.Duration(limit) * step)

	candles := make([]domain.Candle, 0, limit)
	for i := 0; i < limit; i++ {
		fi := float64(i)
		base := 150.0 + math.Sin(fi*0.5)*10 + math.Cos(fi*0.1)*5 + fi*0.2
		open := base + math.Sin(fi*0.3)*2
		high := math.Max(base, open) + math.Abs(fi*0.1) + 1
		low := math.Min(base, open) - math.Abs(fi*0.15) - 1

		candles = append(candles, domain.Candle{
			Start:      tf.Align(start.Add(time.Duration(i) * step)),
			Open:       cents(open),
			High:       cents(high),
			Low:        cents(low),
			Close:      cents(base),
			Volume:     50_000_000 + int64(i)*1_000_000,
			TradeCount: 10_000 + int64(i)*100,
		})
	}
	return candles
}

// SeedMockCharts fills every configured symbol with mock history. Only
// called in local mode; with credentials the REST backfill wins.
func (b *Bootstrap) SeedMockCharts(sess *engine.Session) {
	tf := domain.Timeframe(b.Config.Chart.Timeframe)
	limit := b.Config.Chart.BarLimit

	for _, symbol := range b.Config.Chart.Symbols {
		sess.SeedCandles(symbol, MockCandles(tf, limit))
	}
	slog.Info("📊 Mock charts seeded", "symbols", len(b.Config.Chart.Symbols), "candles", limit)
}

func cents(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}
