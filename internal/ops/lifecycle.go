package ops

import (
	"context"

	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

// SignalContext is canceled when the process receives a shutdown signal or
// cancel is called.
func SignalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-sys.Shutdown():
			logs.Infof("shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
