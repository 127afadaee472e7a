package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange/internal/cache"
	"exchange/internal/notify"
	"exchange/internal/obs"
	"exchange/internal/orderbook"
)

type harness struct {
	srv     *Server
	hub     *Hub
	bus     *cache.Memory
	metrics *obs.Metrics
	ts      *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, Option{})
}

func newHarnessWith(t *testing.T, opt Option) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &harness{bus: cache.NewMemory(0), metrics: obs.NewMetrics()}
	h.hub = NewHub(h.metrics)
	h.srv = NewServer(opt, h.hub, h.bus, h.metrics)

	cancel, err := Bridge(t.Context(), h.bus, h.hub)
	require.NoError(t, err)

	h.ts = httptest.NewServer(h.srv.Handler())
	t.Cleanup(func() {
		cancel()
		ctx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		h.srv.Shutdown(ctx)
		h.ts.Close()
	})
	return h
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	greeting := readMessage(t, conn)
	require.Equal(t, notify.MessageConnected, greeting["type"])
	require.NotEmpty(t, greeting["clientId"])
	return conn
}

func (h *harness) seedBook(t *testing.T, snap orderbook.Snapshot) {
	t.Helper()
	raw, err := sonic.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, h.bus.Set(t.Context(), orderbook.Key(snap.Symbol), raw))
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, sonic.Unmarshal(data, &msg))
	return msg
}

func send(t *testing.T, conn *websocket.Conn, v string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(v)))
}

func TestProtocolReplies(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	send(t, conn, "not json")
	msg := readMessage(t, conn)
	assert.Equal(t, notify.MessageError, msg["type"])
	assert.Equal(t, notify.CodeInvalidJSON, msg["code"])

	send(t, conn, `{"type":"dance"}`)
	msg = readMessage(t, conn)
	assert.Equal(t, notify.CodeUnknownMessage, msg["code"])

	send(t, conn, `{"type":"ping"}`)
	msg = readMessage(t, conn)
	assert.Equal(t, notify.MessagePong, msg["type"])
	assert.NotZero(t, msg["timestamp"])

	send(t, conn, `{"type":"subscribe","channels":["bogus"]}`)
	msg = readMessage(t, conn)
	assert.Equal(t, notify.CodeInvalidChannel, msg["code"])
	msg = readMessage(t, conn)
	assert.Equal(t, notify.MessageSubscribed, msg["type"])
	assert.Empty(t, msg["channels"])
}

func TestSubscribeDeliversSnapshotThenDeltas(t *testing.T) {
	h := newHarness(t)
	h.seedBook(t, orderbook.Snapshot{
		Symbol:    "BTC/USDT",
		Bids:      []orderbook.Level{{Price: "100", Quantity: "5"}},
		Asks:      []orderbook.Level{{Price: "101", Quantity: "2"}},
		Sequence:  5,
		Timestamp: 1000,
	})
	conn := h.dial(t)

	send(t, conn, `{"type":"subscribe","channels":["orderbook:BTC/USDT"]}`)
	msg := readMessage(t, conn)
	assert.Equal(t, notify.MessageSubscribed, msg["type"])
	assert.Equal(t, []any{bookChannel}, msg["channels"])

	msg = readMessage(t, conn)
	assert.Equal(t, string(notify.BookSnapshot), msg["type"])
	assert.Equal(t, bookChannel, msg["channel"])
	assert.Equal(t, float64(5), msg["sequence"])
	assert.Equal(t, []any{[]any{"100", "5"}}, msg["bids"])

	require.NoError(t, notify.PublishBook(t.Context(), h.bus, "BTC/USDT", notify.Book{
		Type:     notify.BookDelta,
		Sequence: 6,
		Bids:     [][2]string{{"100", "0"}},
	}))
	msg = readMessage(t, conn)
	assert.Equal(t, string(notify.BookDelta), msg["type"])
	assert.Equal(t, float64(6), msg["sequence"])
}

func TestBroadcastOnlyToSubscribedChannel(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	send(t, conn, `{"type":"subscribe","channels":["trades:BTC/USDT"]}`)
	readMessage(t, conn)

	require.NoError(t, notify.PublishTrade(t.Context(), h.bus, "ETH/USDT", notify.TradeTape{ID: "other"}))
	require.NoError(t, notify.PublishCandle(t.Context(), h.bus, "BTC/USDT", "1m", notify.Candle{OpenTime: 60_000}))
	require.NoError(t, notify.PublishTrade(t.Context(), h.bus, "BTC/USDT", notify.TradeTape{
		ID: "t1", Price: "50000", Quantity: "0.1", Side: "BUY", Timestamp: 1,
	}))

	msg := readMessage(t, conn)
	assert.Equal(t, notify.MessageTrade, msg["type"])
	assert.Equal(t, tradesChannel, msg["channel"])
	data, ok := msg["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "t1", data["id"])

	send(t, conn, `{"type":"unsubscribe","channels":["trades:BTC/USDT"]}`)
	msg = readMessage(t, conn)
	assert.Equal(t, notify.MessageUnsubscribed, msg["type"])
	assert.Zero(t, h.hub.Subscribers(tradesChannel))
}

func TestDisconnectRemovesClient(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	send(t, conn, `{"type":"subscribe","channels":["trades:BTC/USDT","candles:BTC/USDT:1m"]}`)
	readMessage(t, conn)
	require.Equal(t, 1, h.hub.Subscribers("candles:BTC/USDT:1m"))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return h.hub.Len() == 0 && h.hub.Subscribers(tradesChannel) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSweepEvictsSilentClient(t *testing.T) {
	h := newHarness(t)
	h.dial(t)
	require.Equal(t, 1, h.hub.Len())

	// the dialer never reads, so the ping is never answered
	h.hub.Sweep()
	require.Equal(t, 1, h.hub.Len())
	h.hub.Sweep()

	require.Eventually(t, func() bool { return h.hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(1), h.metrics.Snapshot().Evictions)
}

func TestStalledReaderDoesNotBlockBroadcast(t *testing.T) {
	h := newHarnessWith(t, Option{Client: ClientOption{QueueSize: 4, WriteWait: 3 * time.Second}})
	conn := h.dial(t)

	send(t, conn, `{"type":"subscribe","channels":["trades:BTC/USDT"]}`)
	readMessage(t, conn)
	require.Equal(t, 1, h.hub.Subscribers(tradesChannel))

	// the dialer stops reading, so the server write blocks once the socket buffers fill
	payload := []byte(`"` + strings.Repeat("x", 1<<20) + `"`)
	var worst time.Duration
	for range 64 {
		start := time.Now()
		h.hub.Broadcast(notify.Frame{Channel: tradesChannel, Data: payload})
		worst = max(worst, time.Since(start))
	}
	assert.Less(t, worst, 500*time.Millisecond)

	require.Eventually(t, func() bool {
		return h.metrics.Snapshot().SlowConsumers >= 1 && h.hub.Subscribers(tradesChannel) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestShutdownClosesWithGoingAway(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	h.srv.Shutdown(ctx)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)
	assert.Zero(t, h.hub.Len())
}

func TestHTTPRoutes(t *testing.T) {
	h := newHarness(t)
	h.seedBook(t, orderbook.Snapshot{
		Symbol:   "BTC/USDT",
		Bids:     []orderbook.Level{{Price: "100", Quantity: "5"}},
		Sequence: 3,
	})

	testCases := []struct {
		desc   string
		path   string
		status int
		body   string
	}{
		{desc: "health", path: "/health", status: http.StatusOK, body: `"status":"ok"`},
		{desc: "cached book", path: "/v1/orderbook/BTC/USDT", status: http.StatusOK, body: `"sequence":3`},
		{desc: "cold book", path: "/v1/orderbook/ETH/USDT", status: http.StatusNotFound, body: "not found"},
		{desc: "metrics", path: "/metrics", status: http.StatusOK, body: "exchange_gateway_connections"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			h.srv.Handler().ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.body)
		})
	}
}
