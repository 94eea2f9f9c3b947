package alpaca

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanovOleg/alpaca-markets-terminal/internal/domain"
)

func TestKindFromWire(t *testing.T) {
	tests := []struct {
		wire string
		want domain.EventKind
		ok   bool
	}{
		{"accepted", domain.KindAccepted, true},
		{"new", domain.KindNew, true},
		{"partial_fill", domain.KindPartialFill, true},
		{"fill", domain.KindFill, true},
		{"canceled", domain.KindCanceled, true},
		{"expired", domain.KindExpired, true},
		{"rejected", domain.KindRejected, true},
		{"replaced", "", false},
		{"done_for_day", "", false},
		{"pending_new", "", false},
		{"calculated", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := kindFromWire(tt.wire)
		assert.Equal(t, tt.ok, ok, "wire %q", tt.wire)
		assert.Equal(t, tt.want, got, "wire %q", tt.wire)
	}
}

func TestOrderDTO_ToDomain(t *testing.T) {
	submitted := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	updated := submitted.Add(time.Minute)
	limit := "190.50"

	dto := orderDTO{
		ID:            "ord-1",
		ClientOrderID: "cli-1",
		Symbol:        "AAPL",
		Side:          "buy",
		Qty:           "10",
		FilledQty:     "4",
		Type:          "limit",
		LimitPrice:    &limit,
		Status:        "partially_filled",
		SubmittedAt:   &submitted,
		UpdatedAt:     &updated,
	}

	ord, err := dto.toDomain()
	require.NoError(t, err)
	assert.Equal(t, "ord-1", ord.ID)
	assert.Equal(t, domain.SideBuy, ord.Side)
	assert.Equal(t, domain.OrderTypeLimit, ord.Type)
	assert.Equal(t, domain.StatusPartiallyFilled, ord.Status)
	assert.True(t, ord.Qty.Equal(decimal.NewFromInt(10)))
	assert.True(t, ord.FilledQty.Equal(decimal.NewFromInt(4)))
	require.True(t, ord.LimitPrice.Valid)
	assert.True(t, ord.LimitPrice.Decimal.Equal(decimal.RequireFromString("190.50")))
	assert.Equal(t, submitted, ord.SubmittedAt)
	assert.Equal(t, updated, ord.UpdatedAt)
}

func TestOrderDTO_NotionalQtyFallsBackToFilled(t *testing.T) {
	dto := orderDTO{
		ID:        "ord-1",
		Symbol:    "AAPL",
		Side:      "buy",
		Qty:       "", // notional orders carry no qty
		FilledQty: "2.5",
		Type:      "market",
		Status:    "filled",
	}

	ord, err := dto.toDomain()
	require.NoError(t, err)
	assert.True(t, ord.Qty.Equal(decimal.RequireFromString("2.5")))
}

func TestOrderDTO_Invalid(t *testing.T) {
	tests := []struct {
		name string
		dto  orderDTO
	}{
		{"missing id", orderDTO{Symbol: "AAPL", Qty: "1"}},
		{"bad qty", orderDTO{ID: "x", Qty: "ten"}},
		{"bad limit price", orderDTO{ID: "x", Qty: "1", LimitPrice: strPtr("$5")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.dto.toDomain()
			assert.Error(t, err)
		})
	}
}

func TestOrderDTO_TimestampFallbacks(t *testing.T) {
	created := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	// No submitted_at: created_at stands in; no updated_at: mirror it.
	dto := orderDTO{ID: "ord-1", Qty: "1", CreatedAt: &created}
	ord, err := dto.toDomain()
	require.NoError(t, err)
	assert.Equal(t, created, ord.SubmittedAt)
	assert.Equal(t, created, ord.UpdatedAt)
}

func TestAccountDTO_ToDomain(t *testing.T) {
	dto := accountDTO{
		BuyingPower:    "200000.00",
		Cash:           "100000.00",
		PortfolioValue: "105341.12",
		Equity:         "105341.12",
	}

	acct, err := dto.toDomain()
	require.NoError(t, err)
	assert.True(t, acct.BuyingPower.Equal(decimal.RequireFromString("200000.00")))
	assert.True(t, acct.PortfolioValue.Equal(decimal.RequireFromString("105341.12")))
	assert.False(t, acct.UpdatedAt.IsZero())

	_, err = accountDTO{BuyingPower: "lots"}.toDomain()
	assert.Error(t, err, "malformed account update must be rejected")
}

func TestPositionDTO_ToDomain(t *testing.T) {
	dto := positionDTO{
		Symbol:        "AAPL",
		Qty:           "-5",
		AvgEntryPrice: "190.50",
		// remaining fields absent mid-close
	}

	pos, err := dto.toDomain()
	require.NoError(t, err)
	assert.Equal(t, "AAPL", pos.Symbol)
	assert.True(t, pos.IsShort())
	assert.True(t, pos.CurrentPrice.IsZero())

	_, err = positionDTO{Symbol: "AAPL", Qty: "many"}.toDomain()
	assert.Error(t, err)
}

func TestBarDTO_DecodesNumbersAsDecimals(t *testing.T) {
	raw := `{"t":"2025-06-02T14:30:00Z","o":190.12,"h":190.8,"l":189.95,"c":190.55,"v":12345,"n":321}`

	var dto barDTO
	require.NoError(t, json.Unmarshal([]byte(raw), &dto))

	c, err := dto.toDomain()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC), c.Start)
	assert.True(t, c.Open.Equal(decimal.RequireFromString("190.12")), "open: %s", c.Open)
	assert.True(t, c.High.Equal(decimal.RequireFromString("190.8")))
	assert.True(t, c.Low.Equal(decimal.RequireFromString("189.95")))
	assert.True(t, c.Close.Equal(decimal.RequireFromString("190.55")))
	assert.Equal(t, int64(12345), c.Volume)
}

func strPtr(s string) *string { return &s }
