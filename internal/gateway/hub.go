// Package gateway fans pub/sub notifications out to subscribed websocket
// clients.
package gateway

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/logs"

	"exchange/internal/notify"
	"exchange/internal/obs"
	"exchange/pkg/exception"
)

// Hub owns the connection registry. Every membership change goes through it.
type Hub struct {
	metrics *obs.Metrics

	mu       sync.RWMutex
	channels map[string]map[*Client]struct{}
	clients  map[*Client]map[string]struct{}
	closed   bool
}

func NewHub(metrics *obs.Metrics) *Hub {
	return &Hub{
		metrics:  metrics,
		channels: make(map[string]map[*Client]struct{}),
		clients:  make(map[*Client]map[string]struct{}),
	}
}

// Add registers c with no subscriptions.
func (h *Hub) Add(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return exception.ErrGatewayShutdown
	}
	if _, ok := h.clients[c]; !ok {
		h.clients[c] = make(map[string]struct{})
	}
	return nil
}

// Subscribe adds c to channel. It reports false when c is not registered.
func (h *Hub) Subscribe(c *Client, channel string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.clients[c]
	if !ok {
		return false
	}
	subs[channel] = struct{}{}
	members := h.channels[channel]
	if members == nil {
		members = make(map[*Client]struct{})
		h.channels[channel] = members
	}
	members[c] = struct{}{}
	return true
}

func (h *Hub) Unsubscribe(c *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.clients[c]; ok {
		delete(subs, channel)
	}
	h.leave(c, channel)
}

// Remove drops c from every channel and from the registry.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.clients[c]
	if !ok {
		return
	}
	for channel := range subs {
		h.leave(c, channel)
	}
	delete(h.clients, c)
}

// leave must be called with mu held.
func (h *Hub) leave(c *Client, channel string) {
	members := h.channels[channel]
	if members == nil {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.channels, channel)
	}
}

// Broadcast hands f to every client subscribed to exactly f.Channel and
// returns how many received it.
func (h *Hub) Broadcast(f notify.Frame) int {
	h.mu.RLock()
	members := h.channels[f.Channel]
	targets := make([]*Client, 0, len(members))
	for c := range members {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.Send(f)
	}
	return len(targets)
}

// Sweep closes every client that did not answer the previous ping and pings
// the rest.
func (h *Hub) Sweep() {
	for _, c := range h.snapshot() {
		if !c.alive.Swap(false) {
			logs.Infof("gateway evicting unresponsive client %s", c.ID())
			h.metrics.IncEviction()
			h.Remove(c)
			c.Terminate()
			continue
		}
		go c.Ping()
	}
}

// Close refuses new clients and closes every open one with 1001.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	clients := h.snapshot()
	for _, c := range clients {
		c.Close(websocket.CloseGoingAway, "server shutting down")
	}
	logs.Infof("gateway closed %d clients", len(clients))
}

// Len is the number of registered clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Subscribers is the number of clients subscribed to channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

func (h *Hub) snapshot() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}
