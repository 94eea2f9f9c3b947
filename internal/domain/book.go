package domain

import "sort"

// OrderBook is the working set of live orders keyed by broker order ID.
// The session goroutine owns it; external readers receive copies.
type OrderBook map[string]Order

// Apply folds one trade update into the book and returns it.
//
// Terminal kinds (fill, canceled, expired, rejected) remove the order;
// removing an ID that is not present is a no-op. Non-terminal kinds
// upsert: a known ID has only its progress fields refreshed (status,
// filled quantity, update timestamp), so the symbol, side, quantity and
// price recorded at first insert survive later partial frames. Unknown
// IDs are inserted as received.
func Apply(book OrderBook, kind EventKind, incoming Order) OrderBook {
	if kind.Terminal() {
		delete(book, incoming.ID)
		return book
	}
	if cur, ok := book[incoming.ID]; ok {
		cur.Status = incoming.Status
		cur.FilledQty = incoming.FilledQty
		cur.UpdatedAt = incoming.UpdatedAt
		book[incoming.ID] = cur
		return book
	}
	book[incoming.ID] = incoming
	return book
}

// Open returns the orders sorted most recently updated first, ID as the
// tie-break, so repeated renders of the same book are stable.
func (b OrderBook) Open() []Order {
	out := make([]Order, 0, len(b))
	for _, o := range b {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Clone copies the book for snapshots. Decimal values are immutable, so
// the element copy is safe to share.
func (b OrderBook) Clone() OrderBook {
	out := make(OrderBook, len(b))
	for id, o := range b {
		out[id] = o
	}
	return out
}
