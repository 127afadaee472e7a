package candle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"exchange/internal/event"
	"exchange/internal/model"
	"exchange/internal/notify"
	"exchange/internal/obs"
	"exchange/pkg/exception"
)

// DefaultFlushInterval is how often open candles are written to the store.
const DefaultFlushInterval = 10 * time.Second

// Store persists candles. Upserts widen high and low and never reopen a
// closed row.
type Store interface {
	UpsertCandle(ctx context.Context, c model.Candle) error
	OpenCandles(ctx context.Context) ([]model.Candle, error)
}

type seriesKey struct {
	symbol    string
	timeframe string
}

// Aggregator keeps exactly one open candle per (symbol, timeframe) in memory.
// Trades and flushes are serialized by one mutex, so a flush never writes a
// candle older than one already persisted.
type Aggregator struct {
	store      Store
	pub        notify.Publisher
	timeframes []Timeframe
	metrics    *obs.Metrics

	mu      sync.Mutex
	open    map[seriesKey]*model.Candle
	pending []model.Candle
}

func NewAggregator(store Store, pub notify.Publisher, timeframes []Timeframe, metrics *obs.Metrics) *Aggregator {
	if len(timeframes) == 0 {
		timeframes, _ = ParseTimeframes(DefaultTimeframes)
	}
	return &Aggregator{
		store:      store,
		pub:        pub,
		timeframes: timeframes,
		metrics:    metrics,
		open:       make(map[seriesKey]*model.Candle),
	}
}

// Handle decodes a raw trade and aggregates it. It is the event-log handler
// of the candle stream.
func (a *Aggregator) Handle(ctx context.Context, data []byte) error {
	t, err := event.DecodeTrade(data)
	if err != nil {
		return err
	}
	return a.OnTrade(ctx, t)
}

// OnTrade folds t into the open candle of every timeframe. A trade that
// starts a new bucket closes the previous candle first. Persistence failures
// of closed candles are queued for the next flush instead of failing the
// trade, since replaying a trade would count its volume twice.
func (a *Aggregator) OnTrade(ctx context.Context, t event.Trade) error {
	if a == nil {
		return exception.ErrNilInstance
	}
	amounts, err := t.Amounts()
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var closed, touched []model.Candle
	for _, tf := range a.timeframes {
		bucket := tf.Bucket(t.ExecutedAt)
		key := seriesKey{symbol: t.Symbol, timeframe: tf.Name}
		cur := a.open[key]

		if cur != nil && bucket < cur.OpenTime {
			logs.Warnf("candle %s %s ignoring late trade %s for bucket %d, open bucket %d", t.Symbol, tf.Name, t.TradeID, bucket, cur.OpenTime)
			continue
		}
		if cur != nil && bucket > cur.OpenTime {
			cur.Closed = true
			closed = append(closed, *cur)
			cur = nil
		}

		if cur == nil {
			cur = seed(t.Symbol, tf.Name, bucket, amounts)
			a.open[key] = cur
		} else {
			apply(cur, amounts)
		}
		touched = append(touched, *cur)
	}

	for _, c := range closed {
		a.persist(ctx, c)
		a.publish(ctx, c)
	}
	for _, c := range touched {
		a.publish(ctx, c)
	}
	return nil
}

func seed(symbol, timeframe string, bucket int64, a event.TradeAmounts) *model.Candle {
	return &model.Candle{
		Symbol:      symbol,
		Timeframe:   timeframe,
		OpenTime:    bucket,
		Open:        a.Price,
		High:        a.Price,
		Low:         a.Price,
		Close:       a.Price,
		Volume:      a.Quantity,
		QuoteVolume: a.QuoteQty,
		TradeCount:  1,
	}
}

func apply(c *model.Candle, a event.TradeAmounts) {
	c.High = decimal.Max(c.High, a.Price)
	c.Low = decimal.Min(c.Low, a.Price)
	c.Close = a.Price
	c.Volume = c.Volume.Add(a.Quantity)
	c.QuoteVolume = c.QuoteVolume.Add(a.QuoteQty)
	c.TradeCount++
}

// persist must be called with mu held.
func (a *Aggregator) persist(ctx context.Context, c model.Candle) {
	if err := a.store.UpsertCandle(ctx, c); err != nil {
		a.pending = append(a.pending, c)
		logs.Errorf("candle persist closed %s %s %d, queued for next flush, err: %+v", c.Symbol, c.Timeframe, c.OpenTime, err)
		return
	}
	a.metrics.IncCandlePersisted()
}

func (a *Aggregator) publish(ctx context.Context, c model.Candle) {
	if a.pub == nil {
		return
	}
	err := notify.PublishCandle(ctx, a.pub, c.Symbol, c.Timeframe, notify.Candle{
		OpenTime: c.OpenTime,
		Open:     c.Open.String(),
		High:     c.High.String(),
		Low:      c.Low.String(),
		Close:    c.Close.String(),
		Volume:   c.Volume.String(),
		Closed:   c.Closed,
	})
	if err != nil {
		a.metrics.IncNotifyFailure()
		logs.Errorf("candle publish %s %s %d, err: %+v", c.Symbol, c.Timeframe, c.OpenTime, err)
	}
}

// Flush retries queued closed candles and upserts every open candle without
// closing it.
func (a *Aggregator) Flush(ctx context.Context) error {
	if a == nil {
		return exception.ErrNilInstance
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	pending := a.pending
	a.pending = nil
	for _, c := range pending {
		if err := a.store.UpsertCandle(ctx, c); err != nil {
			a.pending = append(a.pending, c)
			errs = append(errs, err)
			continue
		}
		a.metrics.IncCandlePersisted()
	}

	for _, c := range a.open {
		if err := a.store.UpsertCandle(ctx, *c); err != nil {
			errs = append(errs, err)
			continue
		}
		a.metrics.IncCandlePersisted()
	}
	return errors.Join(errs...)
}

// Run flushes on every tick until ctx is done. The final flush is left to
// Close so it can run after the consumer has stopped.
func (a *Aggregator) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.Flush(ctx); err != nil {
				logs.Errorf("candle periodic flush, err: %+v", err)
			}
		}
	}
}

// Close persists every open candle. Call it once the trade consumer stopped.
func (a *Aggregator) Close(ctx context.Context) error {
	err := a.Flush(ctx)
	if err == nil {
		logs.Infof("candle flushed %d open candles on shutdown", a.OpenCount())
	}
	return err
}

// Reseed loads the latest unclosed candle of every configured series so a
// restart continues the current buckets instead of starting new ones.
func (a *Aggregator) Reseed(ctx context.Context) error {
	if a == nil {
		return exception.ErrNilInstance
	}
	rows, err := a.store.OpenCandles(ctx)
	if err != nil {
		return err
	}

	configured := make(map[string]struct{}, len(a.timeframes))
	for _, tf := range a.timeframes {
		configured[tf.Name] = struct{}{}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for _, r := range rows {
		if _, ok := configured[r.Timeframe]; !ok {
			continue
		}
		key := seriesKey{symbol: r.Symbol, timeframe: r.Timeframe}
		if cur, ok := a.open[key]; ok && cur.OpenTime >= r.OpenTime {
			continue
		}
		c := r
		a.open[key] = &c
		n++
	}
	logs.Infof("candle reseeded %d open candles", n)
	return nil
}

// Current returns a copy of the open candle of (symbol, timeframe).
func (a *Aggregator) Current(symbol, timeframe string) (model.Candle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.open[seriesKey{symbol: symbol, timeframe: timeframe}]
	if !ok {
		return model.Candle{}, false
	}
	return *c, true
}

// OpenCount is the number of open candles held in memory.
func (a *Aggregator) OpenCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.open)
}
