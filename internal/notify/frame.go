package notify

import (
	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"exchange/pkg/exception"
)

// Frame is a pub/sub notification reshaped into the message a client receives.
type Frame struct {
	Channel  string
	Topic    Topic
	Sequence uint64
	Data     []byte
}

// Reshape turns a raw pub/sub payload into a client frame, dispatching on the
// channel prefix.
func Reshape(channel string, payload []byte) (Frame, error) {
	ch, err := ParseChannel(channel)
	if err != nil {
		return Frame{}, err
	}

	f := Frame{Channel: channel, Topic: ch.Topic}
	switch ch.Topic {
	case TopicTrades:
		var t TradeTape
		if err := sonic.Unmarshal(payload, &t); err != nil {
			return Frame{}, errors.Wrap(exception.ErrMalformedEvent, err.Error())
		}
		f.Data, err = EncodeTrade(channel, t)
	case TopicOrderbook:
		var b Book
		if err := sonic.Unmarshal(payload, &b); err != nil {
			return Frame{}, errors.Wrap(exception.ErrMalformedEvent, err.Error())
		}
		if b.Type == "" {
			b.Type = BookDelta
		}
		f.Sequence = b.Sequence
		f.Data, err = EncodeBook(channel, b)
	case TopicCandles:
		var c Candle
		if err := sonic.Unmarshal(payload, &c); err != nil {
			return Frame{}, errors.Wrap(exception.ErrMalformedEvent, err.Error())
		}
		f.Data, err = EncodeCandle(channel, c)
	default:
		return Frame{}, exception.ErrUnknownChannel
	}
	if err != nil {
		return Frame{}, errors.Wrapf(err, "encode %s", channel)
	}
	return f, nil
}
