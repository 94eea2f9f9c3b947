package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func testOrder(id string, status Status, updated time.Time) Order {
	return Order{
		ID:          id,
		Symbol:      "AAPL",
		Side:        SideBuy,
		Qty:         decimal.NewFromInt(10),
		Type:        OrderTypeLimit,
		LimitPrice:  decimal.NewNullDecimal(decimal.RequireFromString("184.50")),
		Status:      status,
		SubmittedAt: updated,
		UpdatedAt:   updated,
	}
}

func TestApply_InsertOnUnknownID(t *testing.T) {
	book := OrderBook{}
	ts := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

	book = Apply(book, KindNew, testOrder("ord-1", StatusNew, ts))

	if len(book) != 1 {
		t.Fatalf("book size = %d, want 1", len(book))
	}
	got := book["ord-1"]
	if got.Symbol != "AAPL" || got.Side != SideBuy {
		t.Errorf("inserted order = %+v, want AAPL/buy", got)
	}
}

func TestApply_TerminalKindsNeverRetained(t *testing.T) {
	ts := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	for _, kind := range []EventKind{KindFill, KindCanceled, KindExpired, KindRejected} {
		t.Run(string(kind), func(t *testing.T) {
			book := OrderBook{}
			book = Apply(book, KindNew, testOrder("ord-1", StatusNew, ts))
			book = Apply(book, kind, testOrder("ord-1", StatusFilled, ts.Add(time.Second)))

			if _, ok := book["ord-1"]; ok {
				t.Errorf("order retained after terminal kind %q", kind)
			}
		})
	}
}

func TestApply_RemoveAbsentIsNoOp(t *testing.T) {
	ts := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	book := OrderBook{}
	book = Apply(book, KindNew, testOrder("ord-1", StatusNew, ts))

	// Cancel confirmation for an order that was never inserted (e.g. it
	// completed before this client connected). Must not disturb the rest.
	book = Apply(book, KindCanceled, testOrder("ghost", StatusCanceled, ts))

	if len(book) != 1 {
		t.Fatalf("book size = %d, want 1", len(book))
	}
	if _, ok := book["ord-1"]; !ok {
		t.Error("unrelated order lost on absent removal")
	}
}

func TestApply_PreservesFirstInsertFields(t *testing.T) {
	t0 := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	t1 := t0.Add(3 * time.Second)

	book := OrderBook{}
	book = Apply(book, KindNew, testOrder("ord-1", StatusNew, t0))

	// Later frame carries drifted identity fields; only progress fields
	// may change.
	update := Order{
		ID:        "ord-1",
		Symbol:    "MSFT",
		Side:      SideSell,
		Qty:       decimal.NewFromInt(999),
		FilledQty: decimal.NewFromInt(4),
		Status:    StatusPartiallyFilled,
		UpdatedAt: t1,
	}
	book = Apply(book, KindPartialFill, update)

	got := book["ord-1"]
	if got.Symbol != "AAPL" {
		t.Errorf("Symbol = %q, want first-insert %q", got.Symbol, "AAPL")
	}
	if got.Side != SideBuy {
		t.Errorf("Side = %q, want first-insert %q", got.Side, SideBuy)
	}
	if !got.Qty.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Qty = %s, want first-insert 10", got.Qty)
	}
	if !got.SubmittedAt.Equal(t0) {
		t.Errorf("SubmittedAt = %v, want first-insert %v", got.SubmittedAt, t0)
	}
	if got.Status != StatusPartiallyFilled {
		t.Errorf("Status = %q, want %q", got.Status, StatusPartiallyFilled)
	}
	if !got.FilledQty.Equal(decimal.NewFromInt(4)) {
		t.Errorf("FilledQty = %s, want 4", got.FilledQty)
	}
	if !got.UpdatedAt.Equal(t1) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, t1)
	}
}

// Scenario: submit, two partial fills, full fill. The order must be
// visible through the partials and gone at the fill.
func TestApply_PartialFillLifecycle(t *testing.T) {
	t0 := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	book := OrderBook{}

	book = Apply(book, KindNew, testOrder("ord-1", StatusNew, t0))
	book = Apply(book, KindPartialFill, Order{ID: "ord-1", Status: StatusPartiallyFilled, FilledQty: decimal.NewFromInt(3), UpdatedAt: t0.Add(time.Second)})
	if got := book["ord-1"].Status; got != StatusPartiallyFilled {
		t.Errorf("after first partial: Status = %q, want %q", got, StatusPartiallyFilled)
	}

	book = Apply(book, KindPartialFill, Order{ID: "ord-1", Status: StatusPartiallyFilled, FilledQty: decimal.NewFromInt(7), UpdatedAt: t0.Add(2 * time.Second)})
	if _, ok := book["ord-1"]; !ok {
		t.Fatal("order missing between partial fills")
	}

	book = Apply(book, KindFill, Order{ID: "ord-1", Status: StatusFilled, FilledQty: decimal.NewFromInt(10), UpdatedAt: t0.Add(3 * time.Second)})
	if len(book) != 0 {
		t.Errorf("book size after fill = %d, want 0", len(book))
	}
}

// Scenario: submit then cancel before any fill.
func TestApply_CancelLifecycle(t *testing.T) {
	t0 := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	book := OrderBook{}

	book = Apply(book, KindAccepted, testOrder("ord-2", StatusAccepted, t0))
	book = Apply(book, KindNew, Order{ID: "ord-2", Status: StatusNew, UpdatedAt: t0.Add(time.Second)})
	book = Apply(book, KindCanceled, Order{ID: "ord-2", Status: StatusCanceled, UpdatedAt: t0.Add(2 * time.Second)})

	if len(book) != 0 {
		t.Errorf("book size after cancel = %d, want 0", len(book))
	}
}

// Folding the same update sequence twice must produce identical books.
func TestApply_Deterministic(t *testing.T) {
	t0 := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	type step struct {
		kind  EventKind
		order Order
	}
	seq := []step{
		{KindNew, testOrder("a", StatusNew, t0)},
		{KindNew, testOrder("b", StatusNew, t0.Add(time.Second))},
		{KindPartialFill, Order{ID: "a", Status: StatusPartiallyFilled, FilledQty: decimal.NewFromInt(5), UpdatedAt: t0.Add(2 * time.Second)}},
		{KindCanceled, Order{ID: "b", Status: StatusCanceled, UpdatedAt: t0.Add(3 * time.Second)}},
		{KindFill, Order{ID: "a", Status: StatusFilled, UpdatedAt: t0.Add(4 * time.Second)}},
		{KindNew, testOrder("c", StatusNew, t0.Add(5 * time.Second))},
	}

	run := func() OrderBook {
		book := OrderBook{}
		for _, s := range seq {
			book = Apply(book, s.kind, s.order)
		}
		return book
	}

	first, second := run(), run()
	if len(first) != len(second) {
		t.Fatalf("book sizes differ: %d vs %d", len(first), len(second))
	}
	for id, o := range first {
		o2, ok := second[id]
		if !ok {
			t.Errorf("order %q missing on second run", id)
			continue
		}
		if o.Status != o2.Status || !o.Qty.Equal(o2.Qty) || !o.UpdatedAt.Equal(o2.UpdatedAt) {
			t.Errorf("order %q diverged: %+v vs %+v", id, o, o2)
		}
	}
}

func TestOrderBook_OpenStableOrder(t *testing.T) {
	t0 := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	book := OrderBook{}
	book = Apply(book, KindNew, testOrder("b", StatusNew, t0))
	book = Apply(book, KindNew, testOrder("a", StatusNew, t0))
	book = Apply(book, KindNew, testOrder("c", StatusNew, t0.Add(time.Minute)))

	got := book.Open()
	if len(got) != 3 {
		t.Fatalf("Open() len = %d, want 3", len(got))
	}
	// Most recent first, then ID tie-break.
	wantIDs := []string{"c", "a", "b"}
	for i, want := range wantIDs {
		if got[i].ID != want {
			t.Errorf("Open()[%d].ID = %q, want %q", i, got[i].ID, want)
		}
	}
}

func TestOrderBook_Clone(t *testing.T) {
	t0 := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	book := OrderBook{}
	book = Apply(book, KindNew, testOrder("a", StatusNew, t0))

	snap := book.Clone()
	book = Apply(book, KindFill, Order{ID: "a", Status: StatusFilled, UpdatedAt: t0.Add(time.Second)})

	if _, ok := snap["a"]; !ok {
		t.Error("clone mutated by later apply")
	}
}
