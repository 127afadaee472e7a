package orderbook

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange/internal/cache"
	"exchange/internal/notify"
	"exchange/internal/obs"
	"exchange/pkg/exception"
)

func TestMaintainerApply(t *testing.T) {
	bus := cache.NewMemory(0)
	ctx := t.Context()

	var published []notify.Book
	_, err := bus.Subscribe(ctx, func(channel string, payload []byte) {
		require.Equal(t, "orderbook:BTC/USDT", channel)
		var b notify.Book
		require.NoError(t, sonic.Unmarshal(payload, &b))
		published = append(published, b)
	})
	require.NoError(t, err)

	m := NewMaintainer(bus, bus, 0, obs.NewMetrics())

	require.NoError(t, m.Handle(ctx, []byte(`{"symbol":"BTC/USDT","sequence":1,"bids":[["100","5"],["99","1"]],"asks":[["101","2"]],"timestamp":1}`)))
	require.NoError(t, m.Handle(ctx, []byte(`{"symbol":"BTC/USDT","sequence":2,"bids":[["100","0"]],"asks":[],"timestamp":2}`)))

	snap, ok, err := Load(ctx, bus, "BTC/USDT")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []Level{{"99", "1"}}, snap.Bids)
	assert.Equal(t, []Level{{"101", "2"}}, snap.Asks)
	assert.Equal(t, uint64(2), snap.Sequence)
	assert.Equal(t, int64(2), snap.Timestamp)

	require.Len(t, published, 2)
	assert.Equal(t, notify.BookDelta, published[1].Type)
	assert.Equal(t, uint64(2), published[1].Sequence)
	assert.Equal(t, [][2]string{{"100", "0"}}, published[1].Bids)
}

func TestMaintainerColdStartAndCorruptCache(t *testing.T) {
	bus := cache.NewMemory(0)
	ctx := t.Context()

	_, ok, err := Load(ctx, bus, "ETH/USDT")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, bus.Set(ctx, Key("ETH/USDT"), []byte("not json")))
	_, _, err = Load(ctx, bus, "ETH/USDT")
	assert.ErrorIs(t, err, exception.ErrInvalidSnapshot)

	m := NewMaintainer(bus, nil, 10, nil)
	require.NoError(t, m.Handle(ctx, []byte(`{"symbol":"ETH/USDT","sequence":5,"asks":[["3000","1"]]}`)))

	snap, ok, err := Load(ctx, bus, "ETH/USDT")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []Level{{"3000", "1"}}, snap.Asks)
}

func TestMaintainerMalformed(t *testing.T) {
	m := NewMaintainer(cache.NewMemory(0), nil, 0, nil)
	err := m.Handle(t.Context(), []byte(`{"symbol":"BTC/USDT","bids":[["abc","1"]]}`))
	assert.ErrorIs(t, err, exception.ErrMalformedEvent)
}

func TestMaintainerCacheFailureIsRetryable(t *testing.T) {
	bus := cache.NewMemory(0)
	bus.Close()

	m := NewMaintainer(bus, bus, 0, nil)
	err := m.Handle(t.Context(), []byte(`{"symbol":"BTC/USDT","bids":[["1","1"]]}`))
	require.ErrorIs(t, err, exception.ErrCacheClosed)
	assert.False(t, exception.IsPermanent(err))
}
