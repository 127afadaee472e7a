package orderbook

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange/internal/event"
)

func assertBookInvariants(t *testing.T, s Snapshot, depth int) {
	t.Helper()
	assert.LessOrEqual(t, len(s.Bids), depth)
	assert.LessOrEqual(t, len(s.Asks), depth)
	for i, side := range [][]Level{s.Bids, s.Asks} {
		for j, l := range side {
			q := decimal.RequireFromString(l.Quantity)
			assert.True(t, q.IsPositive(), "zero level %v", l)
			if j == 0 {
				continue
			}
			cur := decimal.RequireFromString(l.Price)
			prev := decimal.RequireFromString(side[j-1].Price)
			if i == 0 {
				assert.True(t, cur.LessThan(prev), "bids not strictly descending at %d", j)
			} else {
				assert.True(t, cur.GreaterThan(prev), "asks not strictly ascending at %d", j)
			}
		}
	}
}

func TestMergeRemovesZeroLevel(t *testing.T) {
	prev := Snapshot{Symbol: "BTC/USDT", Bids: []Level{{"100", "5"}, {"99", "1"}}, Sequence: 3}

	next := Merge(prev, event.OrderbookDelta{Symbol: "BTC/USDT", Sequence: 4, Bids: []event.Level{{"100", "0"}}}, DefaultDepth)
	assert.Equal(t, []Level{{"99", "1"}}, next.Bids)
	assert.Empty(t, next.Asks)
	assert.Equal(t, uint64(4), next.Sequence)
}

func TestMergeSortsNumerically(t *testing.T) {
	next := Merge(Snapshot{}, event.OrderbookDelta{
		Symbol:   "BTC/USDT",
		Sequence: 1,
		Bids:     []event.Level{{"9.5", "1"}, {"10", "2"}, {"100", "3"}},
		Asks:     []event.Level{{"101", "1"}, {"1000", "1"}, {"200", "1"}},
	}, DefaultDepth)

	assert.Equal(t, []Level{{"100", "3"}, {"10", "2"}, {"9.5", "1"}}, next.Bids)
	assert.Equal(t, []Level{{"101", "1"}, {"200", "1"}, {"1000", "1"}}, next.Asks)
	assertBookInvariants(t, next, DefaultDepth)
}

func TestMergeTreatsEquivalentPricesAsOneLevel(t *testing.T) {
	prev := Snapshot{Asks: []Level{{"100.0", "1"}}}
	next := Merge(prev, event.OrderbookDelta{Asks: []event.Level{{"100", "2"}}}, DefaultDepth)
	assert.Equal(t, []Level{{"100", "2"}}, next.Asks)

	next = Merge(next, event.OrderbookDelta{Asks: []event.Level{{"100.00", "0.000"}}}, DefaultDepth)
	assert.Empty(t, next.Asks)
}

func TestMergeTruncatesToDepth(t *testing.T) {
	delta := event.OrderbookDelta{Symbol: "BTC/USDT"}
	for i := 1; i <= 150; i++ {
		delta.Bids = append(delta.Bids, event.Level{fmt.Sprint(i), "1"})
		delta.Asks = append(delta.Asks, event.Level{fmt.Sprint(1000 + i), "1"})
	}

	next := Merge(Snapshot{}, delta, DefaultDepth)
	require.Len(t, next.Bids, 100)
	require.Len(t, next.Asks, 100)
	assert.Equal(t, "150", next.Bids[0].Price)
	assert.Equal(t, "51", next.Bids[99].Price)
	assert.Equal(t, "1001", next.Asks[0].Price)
	assert.Equal(t, "1100", next.Asks[99].Price)
	assertBookInvariants(t, next, DefaultDepth)
}

func TestMergeKeepsHighestSequence(t *testing.T) {
	prev := Snapshot{Sequence: 10}
	next := Merge(prev, event.OrderbookDelta{Sequence: 7, Bids: []event.Level{{"1", "1"}}}, DefaultDepth)
	assert.Equal(t, uint64(10), next.Sequence)
	assert.Equal(t, []Level{{"1", "1"}}, next.Bids)
}

func TestPairs(t *testing.T) {
	assert.Equal(t, [][2]string{{"1", "2"}}, Pairs([]Level{{"1", "2"}}))
	assert.Equal(t, [][2]string{}, Pairs(nil))
}
