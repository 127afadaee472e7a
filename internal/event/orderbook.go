package event

import (
	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"exchange/pkg/exception"
)

// Level is one (price, quantity) pair on the wire.
type Level [2]string

func (l Level) Price() string    { return l[0] }
func (l Level) Quantity() string { return l[1] }

// OrderbookDelta carries changed price levels. A quantity of zero removes the level.
type OrderbookDelta struct {
	Symbol    string  `json:"symbol" validate:"required"`
	Sequence  uint64  `json:"sequence"`
	Bids      []Level `json:"bids" validate:"dive,dive,numeric"`
	Asks      []Level `json:"asks" validate:"dive,dive,numeric"`
	Timestamp int64   `json:"timestamp" validate:"gte=0"`
}

// DecodeOrderbookDelta parses and validates a delta payload. Every failure
// wraps exception.ErrMalformedEvent.
func DecodeOrderbookDelta(data []byte) (OrderbookDelta, error) {
	var d OrderbookDelta
	if err := sonic.Unmarshal(data, &d); err != nil {
		return OrderbookDelta{}, errors.Wrap(exception.ErrMalformedEvent, err.Error())
	}
	if err := validate.Struct(d); err != nil {
		return OrderbookDelta{}, errors.Wrap(exception.ErrMalformedEvent, err.Error())
	}
	for _, side := range [][]Level{d.Bids, d.Asks} {
		for _, l := range side {
			qty, err := decimal.NewFromString(l.Quantity())
			if err != nil || qty.IsNegative() {
				return OrderbookDelta{}, errors.Wrapf(exception.ErrMalformedEvent, "negative quantity at %s", l.Price())
			}
		}
	}
	return d, nil
}
