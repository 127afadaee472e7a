// Package cache is the shared key-value cache and pub/sub fabric between the
// consumers and the gateway.
package cache

import (
	"context"

	"exchange/internal/notify"
)

// Store is a key-value cache whose entries expire after a fixed TTL.
// Get returns exception.ErrCacheMiss for absent or expired keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Handler receives one pub/sub message.
type Handler func(channel string, payload []byte)

// Subscriber delivers every published channel to handler until the returned
// cancel func is called.
type Subscriber interface {
	Subscribe(ctx context.Context, handler Handler) (cancel func(), err error)
}

// Bus is the full cache surface.
type Bus interface {
	Store
	notify.Publisher
	Subscriber
}
