package notify

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
)

// Publisher fans a payload out on a named channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// BookType distinguishes full order-book snapshots from incremental deltas.
type BookType string

const (
	BookSnapshot BookType = "snapshot"
	BookDelta    BookType = "delta"
)

// TradeTape is the public view of a settled trade.
type TradeTape struct {
	ID        string `json:"id"`
	Price     string `json:"price"`
	Quantity  string `json:"quantity"`
	Side      string `json:"side"`
	Timestamp int64  `json:"timestamp"`
}

// Book is an order-book update on the orderbook channel.
type Book struct {
	Type      BookType    `json:"type"`
	Sequence  uint64      `json:"sequence"`
	Bids      [][2]string `json:"bids"`
	Asks      [][2]string `json:"asks"`
	Timestamp int64       `json:"timestamp"`
}

// Candle is a live or closed candle on the candles channel.
type Candle struct {
	OpenTime int64  `json:"openTime"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
	Closed   bool   `json:"closed"`
}

func PublishTrade(ctx context.Context, pub Publisher, symbol string, t TradeTape) error {
	return publish(ctx, pub, TradesChannel(symbol), t)
}

func PublishBook(ctx context.Context, pub Publisher, symbol string, b Book) error {
	return publish(ctx, pub, OrderbookChannel(symbol), b)
}

func PublishCandle(ctx context.Context, pub Publisher, symbol, timeframe string, c Candle) error {
	return publish(ctx, pub, CandlesChannel(symbol, timeframe), c)
}

func publish(ctx context.Context, pub Publisher, channel string, v any) error {
	payload, err := sonic.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", channel)
	}
	if err := pub.Publish(ctx, channel, payload); err != nil {
		return errors.Wrapf(err, "publish %s", channel)
	}
	return nil
}
