package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange/internal/bus"
	"exchange/internal/notify"
	"exchange/internal/obs"
)

const tradesChannel = "trades:BTC/USDT"
const bookChannel = "orderbook:BTC/USDT"

func detachedClient(t *testing.T, hub *Hub, queueSize int, metrics *obs.Metrics) *Client {
	t.Helper()
	c := newClient(nil, hub, nil, ClientOption{QueueSize: queueSize}, metrics)
	require.NoError(t, hub.Add(c))
	return c
}

func drain(t *testing.T, c *Client) []bus.Frame {
	t.Helper()
	c.queue.Close()
	var out []bus.Frame
	require.NoError(t, c.queue.Run(context.Background(), func(f bus.Frame) error {
		out = append(out, f)
		return nil
	}))
	return out
}

func TestHubMembership(t *testing.T) {
	hub := NewHub(nil)
	a := detachedClient(t, hub, 8, nil)
	b := detachedClient(t, hub, 8, nil)

	require.True(t, hub.Subscribe(a, tradesChannel))
	require.True(t, hub.Subscribe(b, tradesChannel))
	require.True(t, hub.Subscribe(a, bookChannel))
	assert.Equal(t, 2, hub.Subscribers(tradesChannel))

	n := hub.Broadcast(notify.Frame{Channel: tradesChannel, Data: []byte("t1")})
	assert.Equal(t, 2, n)
	assert.Zero(t, hub.Broadcast(notify.Frame{Channel: "trades:ETH/USDT", Data: []byte("x")}))

	hub.Unsubscribe(b, tradesChannel)
	assert.Equal(t, 1, hub.Subscribers(tradesChannel))

	hub.Remove(a)
	assert.Zero(t, hub.Subscribers(tradesChannel))
	assert.Zero(t, hub.Subscribers(bookChannel))
	assert.Equal(t, 1, hub.Len())
	assert.False(t, hub.Subscribe(a, tradesChannel))

	frames := drain(t, a)
	require.Len(t, frames, 1)
	assert.Equal(t, "t1", string(frames[0].Payload))
}

func TestHubRejectsAfterClose(t *testing.T) {
	hub := NewHub(nil)
	c := detachedClient(t, hub, 8, nil)

	hub.Close()
	assert.True(t, c.closed)
	assert.Error(t, hub.Add(newClient(nil, hub, nil, ClientOption{}, nil)))
}

func TestSnapshotPrecedesHeldDeltas(t *testing.T) {
	hub := NewHub(nil)
	c := detachedClient(t, hub, 8, nil)

	c.beginSnapshot(bookChannel)
	require.True(t, hub.Subscribe(c, bookChannel))
	hub.Broadcast(notify.Frame{Channel: bookChannel, Topic: notify.TopicOrderbook, Sequence: 4, Data: []byte("d4")})
	hub.Broadcast(notify.Frame{Channel: bookChannel, Topic: notify.TopicOrderbook, Sequence: 7, Data: []byte("d7")})
	hub.Broadcast(notify.Frame{Channel: tradesChannel, Data: []byte("ignored")})
	c.reply([]byte("ack"))

	c.finishSnapshot(bookChannel, &notify.Frame{Channel: bookChannel, Topic: notify.TopicOrderbook, Sequence: 5, Data: []byte("snap")})
	hub.Broadcast(notify.Frame{Channel: bookChannel, Topic: notify.TopicOrderbook, Sequence: 8, Data: []byte("d8")})

	var got []string
	for _, f := range drain(t, c) {
		got = append(got, string(f.Payload))
	}
	assert.Equal(t, []string{"ack", "snap", "d7", "d8"}, got)
}

func TestColdSnapshotReleasesHeldDeltas(t *testing.T) {
	hub := NewHub(nil)
	c := detachedClient(t, hub, 8, nil)

	c.beginSnapshot(bookChannel)
	require.True(t, hub.Subscribe(c, bookChannel))
	hub.Broadcast(notify.Frame{Channel: bookChannel, Sequence: 1, Data: []byte("d1")})
	c.finishSnapshot(bookChannel, nil)

	frames := drain(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, "d1", string(frames[0].Payload))
}

func TestSlowConsumerIsClosed(t *testing.T) {
	metrics := obs.NewMetrics()
	hub := NewHub(metrics)
	slow := detachedClient(t, hub, 1, metrics)
	other := detachedClient(t, hub, 8, metrics)
	require.True(t, hub.Subscribe(slow, tradesChannel))
	require.True(t, hub.Subscribe(other, tradesChannel))

	hub.Broadcast(notify.Frame{Channel: tradesChannel, Data: []byte("t1")})
	hub.Broadcast(notify.Frame{Channel: tradesChannel, Data: []byte("t2")})

	assert.True(t, slow.closed)
	assert.Equal(t, 1, hub.Len())
	assert.Equal(t, 1, hub.Subscribers(tradesChannel))
	assert.Equal(t, uint64(1), metrics.Snapshot().SlowConsumers)
	assert.Len(t, drain(t, other), 2)
}
