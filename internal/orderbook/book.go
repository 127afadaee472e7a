// Package orderbook maintains the bounded order-book snapshot held in the
// shared cache.
package orderbook

import (
	"slices"

	"github.com/shopspring/decimal"

	"exchange/internal/event"
)

// DefaultDepth is the number of levels kept per side.
const DefaultDepth = 100

// Level is one price level of a snapshot.
type Level struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

// Snapshot is the cached view of one symbol's book. Bids are sorted by
// price descending, asks ascending, and no level has a zero quantity.
type Snapshot struct {
	Symbol    string  `json:"symbol"`
	Bids      []Level `json:"bids"`
	Asks      []Level `json:"asks"`
	Sequence  uint64  `json:"sequence"`
	Timestamp int64   `json:"timestamp"`
}

// Pairs renders a side as [price, quantity] pairs for client messages.
func Pairs(levels []Level) [][2]string {
	out := make([][2]string, len(levels))
	for i, l := range levels {
		out[i] = [2]string{l.Price, l.Quantity}
	}
	return out
}

// Merge applies delta to prev and returns the new snapshot. Levels are keyed
// by numeric price, so "100" and "100.0" are the same level.
func Merge(prev Snapshot, delta event.OrderbookDelta, depth int) Snapshot {
	if depth <= 0 {
		depth = DefaultDepth
	}

	next := Snapshot{
		Symbol:    delta.Symbol,
		Bids:      mergeSide(prev.Bids, delta.Bids, true, depth),
		Asks:      mergeSide(prev.Asks, delta.Asks, false, depth),
		Sequence:  max(prev.Sequence, delta.Sequence),
		Timestamp: delta.Timestamp,
	}
	return next
}

type pricedLevel struct {
	price decimal.Decimal
	level Level
}

func mergeSide(prev []Level, changes []event.Level, descending bool, depth int) []Level {
	book := make(map[string]pricedLevel, len(prev)+len(changes))
	for _, l := range prev {
		p, err := decimal.NewFromString(l.Price)
		if err != nil {
			continue
		}
		book[p.String()] = pricedLevel{price: p, level: l}
	}

	for _, c := range changes {
		p, err := decimal.NewFromString(c.Price())
		if err != nil {
			continue
		}
		key := p.String()
		qty, err := decimal.NewFromString(c.Quantity())
		if err != nil || !qty.IsPositive() {
			delete(book, key)
			continue
		}
		book[key] = pricedLevel{price: p, level: Level{Price: c.Price(), Quantity: c.Quantity()}}
	}

	levels := make([]pricedLevel, 0, len(book))
	for _, pl := range book {
		levels = append(levels, pl)
	}
	slices.SortFunc(levels, func(a, b pricedLevel) int {
		if descending {
			return b.price.Cmp(a.price)
		}
		return a.price.Cmp(b.price)
	})
	if len(levels) > depth {
		levels = levels[:depth]
	}

	out := make([]Level, len(levels))
	for i, pl := range levels {
		out[i] = pl.level
	}
	return out
}
