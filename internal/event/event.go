// Package event holds the inbound contracts published by the matching engine.
package event

import (
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"exchange/pkg/exception"
)

var validate = validator.New()

// Trade is one match emitted by the matching engine.
type Trade struct {
	TradeID      string `json:"tradeId" validate:"required"`
	Symbol       string `json:"symbol" validate:"required,contains=/"`
	Price        string `json:"price" validate:"required,numeric"`
	Quantity     string `json:"quantity" validate:"required,numeric"`
	QuoteQty     string `json:"quoteQty" validate:"required,numeric"`
	MakerOrderID string `json:"makerOrderId" validate:"required"`
	TakerOrderID string `json:"takerOrderId" validate:"required"`
	MakerUserID  string `json:"makerUserId" validate:"required"`
	TakerUserID  string `json:"takerUserId" validate:"required"`
	IsBuyerMaker bool   `json:"isBuyerMaker"`
	MakerFee     string `json:"makerFee" validate:"omitempty,numeric"`
	TakerFee     string `json:"takerFee" validate:"omitempty,numeric"`
	ExecutedAt   int64  `json:"executedAt" validate:"gt=0"`
}

// TradeAmounts is the decimal form of a trade's string amounts.
type TradeAmounts struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	QuoteQty decimal.Decimal
	MakerFee decimal.Decimal
	TakerFee decimal.Decimal
}

// DecodeTrade parses and validates a trade payload. Every failure wraps
// exception.ErrMalformedEvent.
func DecodeTrade(data []byte) (Trade, error) {
	var t Trade
	if err := sonic.Unmarshal(data, &t); err != nil {
		return Trade{}, errors.Wrap(exception.ErrMalformedEvent, err.Error())
	}
	if err := validate.Struct(t); err != nil {
		return Trade{}, errors.Wrap(exception.ErrMalformedEvent, err.Error())
	}
	return t, nil
}

// Amounts parses the decimal fields. Price and quantities must be positive,
// fees default to zero and must not be negative.
func (t Trade) Amounts() (TradeAmounts, error) {
	var (
		a   TradeAmounts
		err error
	)
	if a.Price, err = positive(t.Price); err != nil {
		return TradeAmounts{}, errors.Wrapf(err, "price %q", t.Price)
	}
	if a.Quantity, err = positive(t.Quantity); err != nil {
		return TradeAmounts{}, errors.Wrapf(err, "quantity %q", t.Quantity)
	}
	if a.QuoteQty, err = positive(t.QuoteQty); err != nil {
		return TradeAmounts{}, errors.Wrapf(err, "quote quantity %q", t.QuoteQty)
	}
	if a.MakerFee, err = fee(t.MakerFee); err != nil {
		return TradeAmounts{}, errors.Wrapf(err, "maker fee %q", t.MakerFee)
	}
	if a.TakerFee, err = fee(t.TakerFee); err != nil {
		return TradeAmounts{}, errors.Wrapf(err, "taker fee %q", t.TakerFee)
	}
	return a, nil
}

// Assets splits the symbol into base and quote, "BTC/USDT" -> ("BTC", "USDT").
func (t Trade) Assets() (base, quote string) {
	base, quote, _ = strings.Cut(t.Symbol, "/")
	return base, quote
}

// Time returns the execution time in UTC.
func (t Trade) Time() time.Time {
	return time.UnixMilli(t.ExecutedAt).UTC()
}

func positive(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, exception.ErrInvalidAmount
	}
	if !d.IsPositive() {
		return decimal.Zero, exception.ErrInvalidAmount
	}
	return d, nil
}

func fee(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero, exception.ErrInvalidAmount
	}
	return d, nil
}
