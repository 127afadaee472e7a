package gateway

import (
	"context"

	"github.com/yanun0323/logs"

	"exchange/internal/cache"
	"exchange/internal/notify"
)

// Bridge forwards every pub/sub notification to the hub until the returned
// cancel func is called. Payloads that cannot be reshaped are logged and
// dropped.
func Bridge(ctx context.Context, sub cache.Subscriber, hub *Hub) (func(), error) {
	return sub.Subscribe(ctx, func(channel string, payload []byte) {
		f, err := notify.Reshape(channel, payload)
		if err != nil {
			logs.Warnf("gateway drop notification on %s, err: %+v", channel, err)
			return
		}
		hub.Broadcast(f)
	})
}
