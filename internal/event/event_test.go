package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange/pkg/exception"
)

const tradePayload = `{
	"tradeId": "t-1",
	"symbol": "BTC/USDT",
	"price": "50000",
	"quantity": "0.1",
	"quoteQty": "5000",
	"makerOrderId": "o-a",
	"takerOrderId": "o-b",
	"makerUserId": "u-a",
	"takerUserId": "u-b",
	"isBuyerMaker": true,
	"makerFee": "0",
	"takerFee": "",
	"executedAt": 1700000000000
}`

func TestDecodeTrade(t *testing.T) {
	tr, err := DecodeTrade([]byte(tradePayload))
	require.NoError(t, err)
	assert.Equal(t, "t-1", tr.TradeID)
	assert.True(t, tr.IsBuyerMaker)

	base, quote := tr.Assets()
	assert.Equal(t, "BTC", base)
	assert.Equal(t, "USDT", quote)
	assert.Equal(t, int64(1700000000000), tr.Time().UnixMilli())

	a, err := tr.Amounts()
	require.NoError(t, err)
	assert.Equal(t, "50000", a.Price.String())
	assert.Equal(t, "0.1", a.Quantity.String())
	assert.True(t, a.TakerFee.IsZero())
}

func TestDecodeTradeMalformed(t *testing.T) {
	payloads := []string{
		`not json`,
		`{"tradeId":"t-1"}`,
		`{"tradeId":"t-1","symbol":"BTCUSDT","price":"1","quantity":"1","quoteQty":"1","makerOrderId":"a","takerOrderId":"b","makerUserId":"c","takerUserId":"d","executedAt":1}`,
		`{"tradeId":"t-1","symbol":"BTC/USDT","price":"abc","quantity":"1","quoteQty":"1","makerOrderId":"a","takerOrderId":"b","makerUserId":"c","takerUserId":"d","executedAt":1}`,
	}
	for _, p := range payloads {
		_, err := DecodeTrade([]byte(p))
		assert.ErrorIs(t, err, exception.ErrMalformedEvent, p)
		assert.True(t, exception.IsPermanent(err))
	}
}

func TestTradeAmountsRejectsNonPositive(t *testing.T) {
	tr := Trade{Price: "0", Quantity: "1", QuoteQty: "1"}
	_, err := tr.Amounts()
	assert.ErrorIs(t, err, exception.ErrInvalidAmount)

	tr = Trade{Price: "1", Quantity: "1", QuoteQty: "1", MakerFee: "-0.1"}
	_, err = tr.Amounts()
	assert.ErrorIs(t, err, exception.ErrInvalidAmount)
}

func TestDecodeOrderbookDelta(t *testing.T) {
	d, err := DecodeOrderbookDelta([]byte(`{"symbol":"BTC/USDT","sequence":7,"bids":[["100","0"],["99.5","2"]],"asks":[],"timestamp":1700000000000}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), d.Sequence)
	require.Len(t, d.Bids, 2)
	assert.Equal(t, "100", d.Bids[0].Price())
	assert.Equal(t, "0", d.Bids[0].Quantity())

	_, err = DecodeOrderbookDelta([]byte(`{"symbol":"BTC/USDT","bids":[["x","1"]]}`))
	assert.ErrorIs(t, err, exception.ErrMalformedEvent)

	_, err = DecodeOrderbookDelta([]byte(`{"symbol":"BTC/USDT","bids":[["100","-1"]]}`))
	assert.ErrorIs(t, err, exception.ErrMalformedEvent)

	_, err = DecodeOrderbookDelta([]byte(`{"bids":[]}`))
	assert.ErrorIs(t, err, exception.ErrMalformedEvent)
}
