package orderbook

import (
	"context"
	"errors"

	"github.com/bytedance/sonic"
	yerrors "github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"exchange/internal/cache"
	"exchange/internal/event"
	"exchange/internal/notify"
	"exchange/internal/obs"
	"exchange/pkg/exception"
)

// Maintainer folds order-book deltas into the cached snapshot and republishes
// each delta on the orderbook channel.
type Maintainer struct {
	cache   cache.Store
	pub     notify.Publisher
	depth   int
	metrics *obs.Metrics
}

func NewMaintainer(store cache.Store, pub notify.Publisher, depth int, metrics *obs.Metrics) *Maintainer {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Maintainer{cache: store, pub: pub, depth: depth, metrics: metrics}
}

// Handle decodes a raw delta and applies it. It is the event-log handler of
// the order-book stream.
func (m *Maintainer) Handle(ctx context.Context, data []byte) error {
	delta, err := event.DecodeOrderbookDelta(data)
	if err != nil {
		return err
	}
	return m.Apply(ctx, delta)
}

// Apply merges delta into the cached snapshot. Deltas are applied in
// delivery order; an older sequence never lowers the stored one.
// Re-applying a delta is harmless because levels carry absolute quantities.
func (m *Maintainer) Apply(ctx context.Context, delta event.OrderbookDelta) error {
	if m == nil || m.cache == nil {
		return exception.ErrNilInstance
	}

	prev, ok, err := Load(ctx, m.cache, delta.Symbol)
	if err != nil && !errors.Is(err, exception.ErrInvalidSnapshot) {
		return err
	}
	if err != nil {
		logs.Warnf("orderbook %s cached snapshot unreadable, rebuilding, err: %+v", delta.Symbol, err)
	}
	if ok && delta.Sequence < prev.Sequence {
		logs.Warnf("orderbook %s delta sequence %d behind cached %d, applying anyway", delta.Symbol, delta.Sequence, prev.Sequence)
	}

	next := Merge(prev, delta, m.depth)
	value, err := sonic.Marshal(next)
	if err != nil {
		return yerrors.Wrapf(err, "marshal snapshot %s", delta.Symbol)
	}
	if err := m.cache.Set(ctx, Key(delta.Symbol), value); err != nil {
		return err
	}

	if m.pub == nil {
		return nil
	}
	err = notify.PublishBook(ctx, m.pub, delta.Symbol, notify.Book{
		Type:      notify.BookDelta,
		Sequence:  delta.Sequence,
		Bids:      levelPairs(delta.Bids),
		Asks:      levelPairs(delta.Asks),
		Timestamp: delta.Timestamp,
	})
	if err != nil {
		m.metrics.IncNotifyFailure()
		logs.Errorf("orderbook publish delta %s #%d, err: %+v", delta.Symbol, delta.Sequence, err)
	}
	return nil
}

// Key is the cache key of a symbol's snapshot.
func Key(symbol string) string {
	return notify.OrderbookChannel(symbol)
}

// Load reads the cached snapshot of symbol. ok is false on a cold cache.
func Load(ctx context.Context, store cache.Store, symbol string) (Snapshot, bool, error) {
	raw, err := store.Get(ctx, Key(symbol))
	if errors.Is(err, exception.ErrCacheMiss) {
		return Snapshot{Symbol: symbol}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}

	var snap Snapshot
	if err := sonic.Unmarshal(raw, &snap); err != nil {
		return Snapshot{Symbol: symbol}, false, yerrors.Wrap(exception.ErrInvalidSnapshot, err.Error())
	}
	return snap, true, nil
}

func levelPairs(levels []event.Level) [][2]string {
	out := make([][2]string, len(levels))
	for i, l := range levels {
		out[i] = [2]string(l)
	}
	return out
}
