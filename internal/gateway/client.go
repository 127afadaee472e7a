package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/yanun0323/logs"

	"exchange/internal/bus"
	"exchange/internal/cache"
	"exchange/internal/notify"
	"exchange/internal/obs"
	"exchange/internal/orderbook"
	"exchange/pkg/exception"
)

// ClientOption tunes one connection.
type ClientOption struct {
	WriteWait time.Duration
	QueueSize int
	ReadLimit int64
}

func (o ClientOption) withDefaults() ClientOption {
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 << 10
	}
	return o
}

// Client is one websocket connection. Only the write loop writes data frames
// and the close frame once it runs; pings go through WriteControl, which
// gorilla allows concurrently.
type Client struct {
	id      string
	conn    *websocket.Conn
	hub     *Hub
	books   cache.Store
	queue   *bus.Queue
	opt     ClientOption
	metrics *obs.Metrics
	alive   atomic.Bool
	pinging atomic.Bool

	// mu orders enqueues against Close and snapshot delivery.
	mu          sync.Mutex
	closed      bool
	writing     bool
	stop        context.CancelFunc
	closeCode   int
	closeReason string
	pending     map[string][]notify.Frame
}

func newClient(conn *websocket.Conn, hub *Hub, books cache.Store, opt ClientOption, metrics *obs.Metrics) *Client {
	opt = opt.withDefaults()
	c := &Client{
		id:      uuid.NewString(),
		conn:    conn,
		hub:     hub,
		books:   books,
		queue:   bus.NewQueue(opt.QueueSize),
		opt:     opt,
		metrics: metrics,
		pending: make(map[string][]notify.Frame),
	}
	c.alive.Store(true)
	return c
}

func (c *Client) ID() string {
	return c.id
}

// Run serves the connection until it fails or ctx is done. The client is
// removed from the hub before Run returns.
func (c *Client) Run(ctx context.Context) {
	c.metrics.ConnOpened()
	defer c.metrics.ConnClosed()
	defer c.hub.Remove(c)

	c.conn.SetReadLimit(c.opt.ReadLimit)
	c.conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})

	wctx, stop := context.WithCancel(ctx)
	defer stop()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.writing = true
	c.stop = stop
	c.mu.Unlock()

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		c.writeLoop(wctx)
	}()

	if greeting, err := notify.EncodeConnected(c.id, time.Now().UnixMilli()); err == nil {
		c.reply(greeting)
	}

	c.readLoop(ctx)
	c.Terminate()
	<-writeDone
	logs.Infof("gateway client %s disconnected", c.id)
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logs.Warnf("gateway client %s read, err: %+v", c.id, err)
			}
			return
		}
		c.handle(ctx, data)
	}
}

func (c *Client) writeLoop(ctx context.Context) {
	err := c.queue.Run(ctx, func(f bus.Frame) error {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.opt.WriteWait)); err != nil {
			return err
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, f.Payload); err != nil {
			return err
		}
		c.metrics.IncFrameSent()
		return nil
	})
	if err != nil && ctx.Err() == nil {
		logs.Warnf("gateway client %s write, err: %+v", c.id, err)
	}

	c.mu.Lock()
	code, reason := c.closeCode, c.closeReason
	c.mu.Unlock()
	if code != 0 {
		c.writeClose(code, reason)
	}
	c.Terminate()
}

func (c *Client) handle(ctx context.Context, data []byte) {
	req, err := notify.DecodeRequest(data)
	if err != nil {
		c.replyError(notify.CodeInvalidJSON, "invalid JSON")
		return
	}

	switch req.Type {
	case notify.RequestSubscribe:
		c.subscribe(ctx, req.Channels)
	case notify.RequestUnsubscribe:
		c.unsubscribe(req.Channels)
	case notify.RequestPing:
		if pong, err := notify.EncodePong(time.Now().UnixMilli()); err == nil {
			c.reply(pong)
		}
	default:
		c.replyError(notify.CodeUnknownMessage, "unknown message type")
	}
}

// subscribe registers channels, acknowledges them, then delivers an order-book
// snapshot per orderbook channel. Deltas arriving before the snapshot is
// delivered are held back so the snapshot is always the first book frame.
func (c *Client) subscribe(ctx context.Context, channels []string) {
	accepted := make([]string, 0, len(channels))
	var books []string
	for _, name := range channels {
		ch, err := notify.ParseChannel(name)
		if err != nil {
			c.replyError(notify.CodeInvalidChannel, "invalid channel "+name)
			continue
		}
		if ch.Topic == notify.TopicOrderbook {
			c.beginSnapshot(name)
			books = append(books, name)
		}
		if !c.hub.Subscribe(c, name) {
			return
		}
		accepted = append(accepted, name)
	}

	if ack, err := notify.EncodeAck(notify.MessageSubscribed, accepted); err == nil {
		c.reply(ack)
	}

	for _, name := range books {
		c.finishSnapshot(name, c.loadSnapshot(ctx, name))
	}
}

func (c *Client) loadSnapshot(ctx context.Context, channel string) *notify.Frame {
	ch, err := notify.ParseChannel(channel)
	if err != nil {
		return nil
	}
	snap, ok, err := orderbook.Load(ctx, c.books, ch.Symbol)
	if err != nil {
		logs.Warnf("gateway client %s load snapshot %s, err: %+v", c.id, channel, err)
		return nil
	}
	if !ok {
		return nil
	}
	data, err := notify.EncodeBook(channel, notify.Book{
		Type:      notify.BookSnapshot,
		Sequence:  snap.Sequence,
		Bids:      orderbook.Pairs(snap.Bids),
		Asks:      orderbook.Pairs(snap.Asks),
		Timestamp: snap.Timestamp,
	})
	if err != nil {
		logs.Errorf("gateway client %s encode snapshot %s, err: %+v", c.id, channel, err)
		return nil
	}
	return &notify.Frame{Channel: channel, Topic: notify.TopicOrderbook, Sequence: snap.Sequence, Data: data}
}

func (c *Client) unsubscribe(channels []string) {
	c.mu.Lock()
	for _, name := range channels {
		delete(c.pending, name)
	}
	c.mu.Unlock()

	for _, name := range channels {
		c.hub.Unsubscribe(c, name)
	}
	if ack, err := notify.EncodeAck(notify.MessageUnsubscribed, channels); err == nil {
		c.reply(ack)
	}
}

func (c *Client) beginSnapshot(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[channel]; !ok {
		c.pending[channel] = []notify.Frame{}
	}
}

// finishSnapshot enqueues snap, when present, followed by the deltas held
// back for channel that are newer than it.
func (c *Client) finishSnapshot(channel string, snap *notify.Frame) {
	c.mu.Lock()
	held, ok := c.pending[channel]
	delete(c.pending, channel)
	full := false
	if ok {
		if snap != nil {
			full = c.pushLocked(*snap)
		}
		for _, f := range held {
			if full {
				break
			}
			if snap != nil && f.Sequence <= snap.Sequence {
				continue
			}
			full = c.pushLocked(f)
		}
	}
	c.mu.Unlock()

	if full {
		c.overflow()
	}
}

// Send queues a broadcast frame without blocking. A client whose queue is
// full is closed.
func (c *Client) Send(f notify.Frame) {
	c.mu.Lock()
	if held, ok := c.pending[f.Channel]; ok && !c.closed {
		if len(held) < c.opt.QueueSize {
			c.pending[f.Channel] = append(held, f)
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		c.overflow()
		return
	}
	full := c.pushLocked(f)
	c.mu.Unlock()

	if full {
		c.overflow()
	}
}

func (c *Client) reply(payload []byte) {
	c.Send(notify.Frame{Data: payload})
}

func (c *Client) replyError(code, message string) {
	if data, err := notify.EncodeError(code, message); err == nil {
		c.reply(data)
	}
}

// pushLocked must be called with mu held. It reports whether the queue
// overflowed.
func (c *Client) pushLocked(f notify.Frame) bool {
	if c.closed {
		return false
	}
	err := c.queue.TryPublish(bus.Frame{Channel: f.Channel, Payload: f.Data})
	return errors.Is(err, exception.ErrQueueFull)
}

func (c *Client) overflow() {
	logs.Warnf("gateway client %s outbound queue full, closing slow consumer", c.id)
	c.metrics.IncSlowConsumer()
	c.hub.Remove(c)
	c.Close(websocket.CloseTryAgainLater, "slow consumer")
}

// Ping sends a ping control frame. The pong handler marks the client alive.
// A ping still waiting on a stuck writer makes further calls no-ops.
func (c *Client) Ping() {
	if c.conn == nil || !c.pinging.CompareAndSwap(false, true) {
		return
	}
	defer c.pinging.Store(false)
	if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opt.WriteWait)); err != nil {
		logs.Warnf("gateway client %s ping, err: %+v", c.id, err)
	}
}

// Close stops delivery and sends a close frame with code and reason before
// dropping the connection. It never waits on the peer: once the write loop
// runs, the frame is written from there and queued data frames are discarded.
func (c *Client) Close(code int, reason string) {
	c.mu.Lock()
	first := c.closeLocked()
	if first {
		c.closeCode, c.closeReason = code, reason
	}
	writing := c.writing
	c.mu.Unlock()

	if !first || writing || c.conn == nil {
		return
	}
	c.writeClose(code, reason)
	_ = c.conn.Close()
}

// Terminate drops the connection without a close handshake.
func (c *Client) Terminate() {
	c.mu.Lock()
	c.closeLocked()
	c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c *Client) writeClose(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opt.WriteWait)); err != nil {
		logs.Debugf("gateway client %s close frame, err: %+v", c.id, err)
	}
}

// closeLocked must be called with mu held. It reports whether this call
// closed the client.
func (c *Client) closeLocked() bool {
	if c.closed {
		return false
	}
	c.closed = true
	c.pending = make(map[string][]notify.Frame)
	c.queue.Close()
	if c.stop != nil {
		c.stop()
	}
	return true
}
