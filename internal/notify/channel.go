package notify

import (
	"strings"

	"exchange/pkg/exception"
)

// Topic is the prefix of a pub/sub channel name.
type Topic string

const (
	TopicOrderbook Topic = "orderbook"
	TopicTrades    Topic = "trades"
	TopicCandles   Topic = "candles"
)

func (t Topic) IsAvailable() bool {
	return t == TopicOrderbook || t == TopicTrades || t == TopicCandles
}

func OrderbookChannel(symbol string) string {
	return string(TopicOrderbook) + ":" + symbol
}

func TradesChannel(symbol string) string {
	return string(TopicTrades) + ":" + symbol
}

func CandlesChannel(symbol, timeframe string) string {
	return string(TopicCandles) + ":" + symbol + ":" + timeframe
}

// Channel is a parsed channel name.
type Channel struct {
	Topic     Topic
	Symbol    string
	Timeframe string
}

func (c Channel) String() string {
	if c.Topic == TopicCandles {
		return CandlesChannel(c.Symbol, c.Timeframe)
	}
	return string(c.Topic) + ":" + c.Symbol
}

// ParseChannel splits "orderbook:<symbol>", "trades:<symbol>" and
// "candles:<symbol>:<timeframe>".
func ParseChannel(name string) (Channel, error) {
	prefix, rest, ok := strings.Cut(name, ":")
	if !ok || rest == "" {
		return Channel{}, exception.ErrInvalidChannel
	}

	topic := Topic(prefix)
	if !topic.IsAvailable() {
		return Channel{}, exception.ErrUnknownChannel
	}

	if topic != TopicCandles {
		if strings.Contains(rest, ":") {
			return Channel{}, exception.ErrInvalidChannel
		}
		return Channel{Topic: topic, Symbol: rest}, nil
	}

	symbol, timeframe, ok := strings.Cut(rest, ":")
	if !ok || symbol == "" || timeframe == "" || strings.Contains(timeframe, ":") {
		return Channel{}, exception.ErrInvalidChannel
	}
	return Channel{Topic: topic, Symbol: symbol, Timeframe: timeframe}, nil
}
