package cache

import (
	"context"
	"sync"
	"time"

	"exchange/pkg/exception"
)

type memoryEntry struct {
	value    []byte
	expireAt time.Time
}

// Memory is a single-process Bus. Subscribers are called synchronously from
// Publish, in subscription order.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]memoryEntry
	subs    map[uint64]Handler
	nextSub uint64
	closed  bool
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Memory{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
		subs:    make(map[uint64]Handler),
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok || !m.now().Before(e.expireAt) {
		return nil, exception.ErrCacheMiss
	}
	return append([]byte(nil), e.value...), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return exception.ErrCacheClosed
	}
	m.entries[key] = memoryEntry{value: append([]byte(nil), value...), expireAt: m.now().Add(m.ttl)}
	return nil
}

func (m *Memory) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return exception.ErrCacheClosed
	}
	handlers := make([]Handler, 0, len(m.subs))
	for id := uint64(0); id < m.nextSub; id++ {
		if h, ok := m.subs[id]; ok {
			handlers = append(handlers, h)
		}
	}
	m.mu.RUnlock()

	for _, h := range handlers {
		h(channel, append([]byte(nil), payload...))
	}
	return nil
}

func (m *Memory) Subscribe(_ context.Context, handler Handler) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, exception.ErrCacheClosed
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = handler

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}, nil
}

// Close rejects further writes and drops every subscriber.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.subs = make(map[uint64]Handler)
}
