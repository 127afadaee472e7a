package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange/pkg/exception"
)

func TestMemoryStoreExpires(t *testing.T) {
	m := NewMemory(time.Minute)
	now := time.Unix(1700000000, 0)
	m.now = func() time.Time { return now }
	ctx := t.Context()

	_, err := m.Get(ctx, "orderbook:BTC/USDT")
	assert.ErrorIs(t, err, exception.ErrCacheMiss)

	require.NoError(t, m.Set(ctx, "orderbook:BTC/USDT", []byte(`{"sequence":1}`)))
	v, err := m.Get(ctx, "orderbook:BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, `{"sequence":1}`, string(v))

	now = now.Add(time.Minute)
	_, err = m.Get(ctx, "orderbook:BTC/USDT")
	assert.ErrorIs(t, err, exception.ErrCacheMiss)
}

func TestMemoryPubSub(t *testing.T) {
	m := NewMemory(0)
	ctx := t.Context()

	var got []string
	cancel, err := m.Subscribe(ctx, func(channel string, payload []byte) {
		got = append(got, channel+"="+string(payload))
	})
	require.NoError(t, err)

	require.NoError(t, m.Publish(ctx, "trades:BTC/USDT", []byte("a")))
	cancel()
	require.NoError(t, m.Publish(ctx, "trades:BTC/USDT", []byte("b")))

	assert.Equal(t, []string{"trades:BTC/USDT=a"}, got)

	m.Close()
	assert.ErrorIs(t, m.Publish(ctx, "x:y", nil), exception.ErrCacheClosed)
	assert.ErrorIs(t, m.Set(ctx, "k", nil), exception.ErrCacheClosed)
}

func TestKeyReplacer(t *testing.T) {
	assert.Equal(t, "orderbook.BTC/USDT", keyReplacer.Replace("orderbook:BTC/USDT"))
}
